package scout

import (
	"context"
	"strings"

	"github.com/wepublish/dorfkoenig/internal/domain"
)

// Repository stores scouts.
type Repository interface {
	Create(ctx context.Context, scout *domain.Scout) error
	GetByID(ctx context.Context, id, userID string) (*domain.Scout, error)
	List(ctx context.Context, userID string) ([]domain.Scout, error)
	Update(ctx context.Context, scout *domain.Scout) error
	Delete(ctx context.Context, id, userID string) error
}

// Service is the owner-scoped scout registry.
type Service struct {
	repo Repository
}

// NewService creates a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create validates in and stores a new scout for userID.
func (s *Service) Create(ctx context.Context, userID string, in domain.ScoutInput) (*domain.Scout, error) {
	if err := in.Validate(true); err != nil {
		return nil, err
	}

	scout := &domain.Scout{
		UserID:    userID,
		Frequency: domain.FrequencyDaily,
		IsActive:  true,
	}
	apply(scout, in)

	if err := s.repo.Create(ctx, scout); err != nil {
		return nil, err
	}
	return scout, nil
}

// Get returns one scout.
func (s *Service) Get(ctx context.Context, id, userID string) (*domain.Scout, error) {
	return s.repo.GetByID(ctx, id, userID)
}

// List returns the user's scouts, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]domain.Scout, error) {
	return s.repo.List(ctx, userID)
}

// Update applies the set fields of in.
func (s *Service) Update(ctx context.Context, id, userID string, in domain.ScoutInput) (*domain.Scout, error) {
	if in.Empty() {
		return nil, domain.Invalid("", "no fields to update")
	}
	if err := in.Validate(false); err != nil {
		return nil, err
	}

	scout, err := s.repo.GetByID(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	apply(scout, in)

	if err := s.repo.Update(ctx, scout); err != nil {
		return nil, err
	}
	return scout, nil
}

// Delete removes a scout together with its executions and units.
func (s *Service) Delete(ctx context.Context, id, userID string) error {
	return s.repo.Delete(ctx, id, userID)
}

func apply(scout *domain.Scout, in domain.ScoutInput) {
	if in.Name != nil {
		scout.Name = strings.TrimSpace(*in.Name)
	}
	if in.URL != nil {
		scout.URL = strings.TrimSpace(*in.URL)
	}
	if in.Criteria != nil {
		scout.Criteria = strings.TrimSpace(*in.Criteria)
	}
	if in.Location != nil {
		scout.Location = in.Location
	}
	if in.Topic != nil {
		scout.Topic = optional(*in.Topic)
	}
	if in.Frequency != nil {
		scout.Frequency = *in.Frequency
	}
	if in.NotificationEmail != nil {
		scout.NotificationEmail = optional(*in.NotificationEmail)
	}
	if in.IsActive != nil {
		scout.IsActive = *in.IsActive
	}
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}
