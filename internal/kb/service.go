package kb

import (
	"context"

	"github.com/guestdesk/pkg/models"
)

type Service struct {
	store Store
}

func NewService(store Store) *Service { return &Service{store: store} }

func (s *Service) Create(ctx context.Context, e *models.KbEntry) error {
	if err := Validate(e); err != nil {
		return err
	}
	return s.store.Create(ctx, e)
}

func (s *Service) Get(ctx context.Context, id string) (*models.KbEntry, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter) ([]*models.KbEntry, error) {
	return s.store.List(ctx, f)
}

// Search is a substring search over title and content within a client
func (s *Service) Search(ctx context.Context, clientID, query string, limit int) ([]*models.KbEntry, error) {
	return s.store.List(ctx, Filter{ClientID: clientID, Query: query, Limit: limit})
}

// ForThread returns the entries used as classification context for a thread
func (s *Service) ForThread(ctx context.Context, t *models.Thread) ([]*models.KbEntry, error) {
	return s.store.ForScope(ctx, t.ClientID, t.PropertyID, ContextLimit)
}
