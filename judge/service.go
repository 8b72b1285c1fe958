package judge

import (
	"context"
	"errors"
)

// ErrInactive signals the judge exists but cannot receive work.
var ErrInactive = errors.New("judge: inactive")

// ProfileReader abstracts repository operations for the service.
type ProfileReader interface {
	GetByID(ctx context.Context, id string) (Profile, error)
	List(ctx context.Context, limit int, activeOnly bool) ([]Profile, error)
}

// Service exposes business-level judge operations.
type Service struct {
	repo ProfileReader
}

// NewService builds a Service using the provided repository.
func NewService(repo ProfileReader) *Service {
	return &Service{repo: repo}
}

// GetByID returns the judge profile for the given identifier.
func (s *Service) GetByID(ctx context.Context, id string) (Profile, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns up to limit judge profiles.
func (s *Service) List(ctx context.Context, limit int, activeOnly bool) ([]Profile, error) {
	return s.repo.List(ctx, limit, activeOnly)
}

// ResolveActive returns the profile for id when the judge can take new
// distributions.
func (s *Service) ResolveActive(ctx context.Context, id string) (Profile, error) {
	if id == "" {
		return Profile{}, ErrNotFound
	}
	profile, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	if !profile.Active {
		return Profile{}, ErrInactive
	}
	return profile, nil
}
