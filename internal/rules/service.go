package rules

import (
	"context"
	"fmt"

	"github.com/guestdesk/pkg/models"
)

// Patch carries a partial rule update. Nil fields are left unchanged; an empty
// string clears PropertyID or Intent.
type Patch struct {
	PropertyID *string                `json:"propertyId"`
	Intent     *string                `json:"intent"`
	RiskMax    *string                `json:"riskMax"`
	Conditions map[string]interface{} `json:"conditions"`
	Action     *string                `json:"action"`
	Enabled    *bool                  `json:"enabled"`
}

// Service is the rule administration surface
type Service struct {
	store Store
}

func NewService(store Store) *Service { return &Service{store: store} }

// Create applies defaults (riskMax low, empty conditions), validates and stores r
func (s *Service) Create(ctx context.Context, r *models.AutoRule) error {
	if err := Normalize(r); err != nil {
		return err
	}
	if err := s.store.Create(ctx, r); err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	return nil
}

func (s *Service) Update(ctx context.Context, id string, p Patch) (*models.AutoRule, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.PropertyID != nil {
		r.PropertyID = *p.PropertyID
	}
	if p.Intent != nil {
		r.Intent = *p.Intent
	}
	if p.RiskMax != nil {
		r.RiskMax = models.RiskLevel(*p.RiskMax)
	}
	if p.Conditions != nil {
		r.Conditions = p.Conditions
	}
	if p.Action != nil {
		r.Action = models.RuleAction(*p.Action)
	}
	if p.Enabled != nil {
		r.Enabled = *p.Enabled
	}
	if err := Validate(r); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("update rule: %w", err)
	}
	return r, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

func (s *Service) Get(ctx context.Context, id string) (*models.AutoRule, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter) ([]*models.AutoRule, error) {
	return s.store.List(ctx, f)
}
