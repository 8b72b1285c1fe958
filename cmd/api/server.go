package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"docketflow/appeal"
	"docketflow/auth"
	"docketflow/disposition"
	"docketflow/distribution"
	"docketflow/docket"
	"docketflow/integrity"
	"docketflow/judge"
)

type ctxKey string

const ctxKeyActor ctxKey = "actor"

type Distributor interface {
	Distribute(ctx context.Context, req distribution.Request) (distribution.Result, error)
}

type RunReader interface {
	GetRun(ctx context.Context, runID string) (distribution.Run, error)
	EntriesForRun(ctx context.Context, runID string) ([]distribution.Entry, error)
}

type StatsProvider interface {
	Snapshot(ctx context.Context, d appeal.DocketType) (docket.Snapshot, error)
}

type JudgeDirectory interface {
	GetByID(ctx context.Context, id string) (judge.Profile, error)
	List(ctx context.Context, limit int, activeOnly bool) ([]judge.Profile, error)
}

type DispositionSweeper interface {
	Sweep(ctx context.Context) (disposition.Report, error)
}

type IntegrityChecker interface {
	Check(ctx context.Context) (integrity.Report, error)
}

type TokenVerifier interface {
	Verify(token string) (auth.Actor, error)
}

// Server holds the operator API dependencies.
type Server struct {
	distributor  Distributor
	runs         RunReader
	stats        StatsProvider
	judges       JudgeDirectory
	sweeper      DispositionSweeper
	integrity    IntegrityChecker
	verifier     TokenVerifier
	defaultLimit int
	logger       *slog.Logger
}

func (s *Server) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/healthz", handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/distributions", s.handleCreateDistribution)
		r.Get("/distributions/{id}", s.handleDistribution)
		r.Get("/dockets/{docket}/stats", s.handleDocketStats)
		r.Get("/judges", s.handleJudges)
		r.Get("/judges/{id}", s.handleJudge)
		r.Post("/dispositions/sweep", s.handleSweep)
		r.Get("/integrity", s.handleIntegrity)
	})
	return r
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		actor, err := s.verifier.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyActor, actor)))
	})
}

func actorFrom(ctx context.Context) (auth.Actor, bool) {
	actor, ok := ctx.Value(ctxKeyActor).(auth.Actor)
	return actor, ok && actor.ID != ""
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type distributionRequest struct {
	Docket   appeal.DocketType `json:"docket"`
	JudgeID  string            `json:"judge_id"`
	Priority *bool             `json:"priority"`
	Ready    *bool             `json:"ready"`
	// Limit is nil when the caller leaves it out; an explicit value,
	// zero included, goes to the engine as given.
	Limit    *int              `json:"limit"`
}

type runResponse struct {
	Run     distribution.Run     `json:"run"`
	Entries []distribution.Entry `json:"entries"`
}

func (s *Server) handleCreateDistribution(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var body distributionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if actor.Role == auth.RoleJudge && body.JudgeID != "" && body.JudgeID != actor.ID {
		writeError(w, http.StatusForbidden, "judges may only request their own distributions")
		return
	}
	if actor.Role == auth.RoleJudge && body.JudgeID == "" {
		body.JudgeID = actor.ID
	}
	limit := s.defaultLimit
	if body.Limit != nil {
		limit = *body.Limit
	}

	result, err := s.distributor.Distribute(r.Context(), distribution.Request{
		Docket:   body.Docket,
		JudgeID:  body.JudgeID,
		ActorID:  actor.ID,
		Priority: body.Priority,
		Ready:    body.Ready,
		Limit:    limit,
	})
	if err != nil && result.Run.ID != "" {
		s.writeAbortedRun(w, r, result, err)
		return
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleDistribution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "distribution id required")
		return
	}
	run, err := s.runs.GetRun(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	entries, err := s.runs.EntriesForRun(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runResponse{Run: run, Entries: entries})
}

func (s *Server) handleDocketStats(w http.ResponseWriter, r *http.Request) {
	d := appeal.DocketType(chi.URLParam(r, "docket"))
	snap, err := s.stats.Snapshot(r.Context(), d)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleJudges(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	activeOnly := r.URL.Query().Get("active") == "true"

	profiles, err := s.judges.List(r.Context(), limit, activeOnly)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": profiles, "total": len(profiles)})
}

func (s *Server) handleJudge(w http.ResponseWriter, r *http.Request) {
	profile, err := s.judges.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if !s.requireStaff(w, r) {
		return
	}
	report, err := s.sweeper.Sweep(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	if !s.requireStaff(w, r) {
		return
	}
	report, err := s.integrity.Check(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	status := http.StatusOK
	if !report.OK() {
		status = http.StatusConflict
	}
	writeJSON(w, status, report)
}

// requireStaff admits operators and system tokens.
func (s *Server) requireStaff(w http.ResponseWriter, r *http.Request) bool {
	actor, ok := actorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return false
	}
	if actor.Role != auth.RoleOperator && actor.Role != auth.RoleSystem {
		writeError(w, http.StatusForbidden, "operator role required")
		return false
	}
	return true
}

// abortedRunResponse reports a run that closed early. Entries already
// committed stay assigned and are returned alongside the error.
type abortedRunResponse struct {
	Error   string              `json:"error"`
	Partial distribution.Result `json:"partial"`
}

func (s *Server) writeAbortedRun(w http.ResponseWriter, r *http.Request, result distribution.Result, err error) {
	status, body := s.classify(r, err)
	writeJSON(w, status, abortedRunResponse{Error: body["error"], Partial: result})
}

func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := s.classify(r, err)
	writeJSON(w, status, body)
}

func (s *Server) classify(r *http.Request, err error) (int, map[string]string) {
	var pe *docket.PreconditionError
	switch {
	case errors.As(err, &pe):
		status := http.StatusBadRequest
		if errors.Is(err, distribution.ErrRunInFlight) || errors.Is(err, distribution.ErrJudgeInactive) ||
			errors.Is(err, distribution.ErrRunClosed) {
			status = http.StatusConflict
		}
		return status, map[string]string{"error": pe.Reason, "field": pe.Field}
	case errors.Is(err, distribution.ErrRunNotFound), errors.Is(err, judge.ErrNotFound):
		return http.StatusNotFound, map[string]string{"error": "not found"}
	case errors.Is(err, distribution.ErrRunClosed):
		return http.StatusConflict, map[string]string{"error": "distribution run closed"}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, map[string]string{"error": "request cancelled"}
	default:
		s.log().Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		return http.StatusInternalServerError, map[string]string{"error": "internal error"}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
