package target

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("target not found")

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, domainID string, typ Type, config Config) (Target, error) {
	t, err := New(uuid.NewString(), domainID, typ, config)
	if err != nil {
		return Target{}, err
	}
	if err := s.repo.Save(ctx, nil, t); err != nil {
		return Target{}, err
	}
	return t, nil
}

func (s *Service) ListEnabled(ctx context.Context, domainID string, limit int) ([]Target, error) {
	return s.repo.ListEnabled(ctx, nil, domainID, limit)
}

func (s *Service) List(ctx context.Context, domainID string, limit int) ([]Target, error) {
	return s.repo.ListByDomain(ctx, nil, domainID, limit)
}

func (s *Service) UpdateConfig(ctx context.Context, domainID, id string, partial Config) (Target, error) {
	t, err := s.owned(ctx, domainID, id)
	if err != nil {
		return Target{}, err
	}
	next := t.WithConfig(partial)
	if err := next.Validate(); err != nil {
		return Target{}, err
	}
	if err := s.repo.Save(ctx, nil, next); err != nil {
		return Target{}, err
	}
	return next, nil
}

func (s *Service) Toggle(ctx context.Context, domainID, id string) (Target, error) {
	t, err := s.owned(ctx, domainID, id)
	if err != nil {
		return Target{}, err
	}
	next := t.ToggleEnabled()
	if err := s.repo.Save(ctx, nil, next); err != nil {
		return Target{}, err
	}
	return next, nil
}

func (s *Service) Delete(ctx context.Context, domainID, id string) error {
	if _, err := s.owned(ctx, domainID, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, nil, id)
}

// owned loads a target and hides targets of other domains behind ErrNotFound.
func (s *Service) owned(ctx context.Context, domainID, id string) (Target, error) {
	t, found, err := s.repo.GetByID(ctx, nil, id)
	var corrupt *CorruptError
	if errors.As(err, &corrupt) && corrupt.DomainID != domainID {
		return Target{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Target{}, err
	}
	if !found || !t.BelongsTo(domainID) {
		return Target{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, nil
}
