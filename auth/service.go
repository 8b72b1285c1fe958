package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrEmptySecret  = errors.New("auth: empty token secret")
)

// Service issues and verifies the bearer tokens that identify the actor of
// a distribution or sweep.
type Service struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewService(secret, issuer string, ttl time.Duration) (*Service, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Issue signs a token for actorID.
func (s *Service) Issue(actorID string, role Role) (string, error) {
	if actorID == "" {
		return "", fmt.Errorf("auth: actor id required")
	}
	if !role.Valid() {
		return "", fmt.Errorf("auth: invalid role %q", role)
	}
	now := s.now()
	c := claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return token, nil
}

// Verify validates tokenString and returns the actor it names.
func (s *Service) Verify(tokenString string) (Actor, error) {
	var c claims
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &c, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || c.Subject == "" {
		return Actor{}, ErrInvalidToken
	}
	if !c.Role.Valid() {
		return Actor{}, fmt.Errorf("%w: role %q", ErrInvalidToken, c.Role)
	}
	return Actor{ID: c.Subject, Role: c.Role}, nil
}
