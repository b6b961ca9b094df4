// Package feed publishes one change-feed message per accepted action, via
// the transactional outbox written by the ledger. External projections
// (search index, audit, notifications) consume the feed; only the emission
// contract lives here.
package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"civreg/internal/event/models"
	"civreg/internal/event/store"
)

// ChangeEvent is the payload emitted for every accepted action: enough for
// consumers to update projections without a read back into the ledger.
type ChangeEvent struct {
	EventID     string             `json:"eventId"`
	ActionID    string             `json:"actionId"`
	ActionType  string             `json:"actionType"`
	Declaration models.Declaration `json:"declaration"`
	Status      string             `json:"status"`
}

// NewOutboxEntry builds the outbox row for an accepted action, carrying the
// resulting declaration and status as of that action.
func NewOutboxEntry(ev *models.Event, action models.Action, declaration models.Declaration, status models.EventStatus) (store.OutboxEntry, error) {
	payload, err := json.Marshal(ChangeEvent{
		EventID:     ev.ID.String(),
		ActionID:    action.ID.String(),
		ActionType:  string(action.Type),
		Declaration: declaration,
		Status:      string(status),
	})
	if err != nil {
		return store.OutboxEntry{}, fmt.Errorf("marshal change event: %w", err)
	}
	return store.OutboxEntry{
		ID:         uuid.New(),
		EventID:    ev.ID,
		ActionID:   action.ID,
		ActionType: action.Type,
		Payload:    payload,
		CreatedAt:  time.Now(),
	}, nil
}
