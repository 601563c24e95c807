package analytics

import (
	"context"
	"time"

	"github.com/qrdine/core/internal/models"
	"github.com/qrdine/core/internal/pkg/pagination"
	"github.com/qrdine/core/internal/pkg/response"
	"github.com/qrdine/core/internal/store"
)

type Service struct {
	store store.Events
}

func NewService(st store.Events) *Service {
	return &Service{store: st}
}

func (s *Service) List(ctx context.Context, filter store.EventFilter, q pagination.Query) ([]models.AnalyticsEventModel, response.Pagination, error) {
	items, pag, err := s.store.ListEvents(ctx, filter, q)
	if err != nil {
		return nil, response.Pagination{}, err
	}
	if items == nil {
		items = []models.AnalyticsEventModel{}
	}
	return items, pag, nil
}

// Summary counts a tenant's events by type.
type Summary struct {
	OrganizationID string           `json:"organization_id"`
	Since          *time.Time       `json:"since,omitempty"`
	Total          int64            `json:"total"`
	Counts         map[string]int64 `json:"counts"`
}

func (s *Service) Summary(ctx context.Context, orgID string, since time.Time) (*Summary, error) {
	counts, err := s.store.CountEventsByType(ctx, orgID, since)
	if err != nil {
		return nil, err
	}
	out := &Summary{OrganizationID: orgID, Counts: counts}
	if !since.IsZero() {
		out.Since = &since
	}
	for _, n := range counts {
		out.Total += n
	}
	return out, nil
}
