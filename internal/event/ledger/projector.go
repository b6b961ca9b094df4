package ledger

import (
	"context"
	"errors"
	"time"

	"civreg/internal/event/models"
	"civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"
	"civreg/pkg/platform/sentinel"
)

// View is the materialized read model of one event: the left-fold of its
// accepted actions. It is derived state; the ledger can rebuild it from the
// action list at any time, so caching it is safe.
type View struct {
	EventID       string             `json:"eventId"`
	Type          models.EventType   `json:"type"`
	TransactionID string             `json:"transactionId"`
	Status        models.EventStatus `json:"status"`
	Declaration   models.Declaration `json:"declaration"`
	AssignedTo    string             `json:"assignedTo,omitempty"`
	Version       int                `json:"version"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// ProjectionCache stores views keyed by event id. The cache is not a second
// source of truth: misses and failures fall back to recomputing the fold,
// and every append invalidates.
type ProjectionCache interface {
	Get(ctx context.Context, id domain.EventID) (*View, bool)
	Set(ctx context.Context, id domain.EventID, view *View)
	Invalidate(ctx context.Context, id domain.EventID)
}

// Project folds an event into its current view.
func Project(ev *models.Event) *View {
	view := &View{
		EventID:       ev.ID.String(),
		Type:          ev.Type,
		TransactionID: string(ev.TransactionID),
		Status:        models.ComputeStatus(ev.Actions),
		Declaration:   models.ProjectDeclaration(ev.Actions),
		Version:       ev.Version,
		UpdatedAt:     ev.UpdatedAt,
	}
	if current, held := models.ComputeAssignment(ev.Actions); held {
		view.AssignedTo = current.UserID.String()
	}
	return view
}

// GetEvent loads the raw event with its action history.
func (s *Service) GetEvent(ctx context.Context, id domain.EventID) (*models.Event, error) {
	ev, err := s.store.GetEvent(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "event does not exist")
	}
	return ev, err
}

// GetView returns the event's materialized view, read-through cached.
func (s *Service) GetView(ctx context.Context, id domain.EventID) (*View, error) {
	if s.cache != nil {
		if view, ok := s.cache.Get(ctx, id); ok {
			return view, nil
		}
	}
	ev, err := s.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	view := Project(ev)
	if s.cache != nil {
		s.cache.Set(ctx, id, view)
	}
	return view, nil
}
