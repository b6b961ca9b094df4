// Package store defines the persistence contract for events, actions,
// drafts, and the change-feed outbox. The postgres implementation is the
// durable one; the memory implementation backs tests and local development.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"civreg/internal/event/models"
	"civreg/pkg/domain"
)

// Draft is an ephemeral, not-yet-committed declaration edit keyed by
// (owner, transaction id). Drafts never enter the durable action history.
type Draft struct {
	EventID       domain.EventID
	OwnerID       domain.UserID
	TransactionID domain.TransactionID
	ActionType    models.ActionType
	Declaration   *models.Patch
	CreatedAt     time.Time
}

// OutboxEntry is one pending change-feed publication, written in the same
// transaction as the action it announces.
type OutboxEntry struct {
	ID          uuid.UUID
	EventID     domain.EventID
	ActionID    domain.ActionID
	ActionType  models.ActionType
	Payload     []byte
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// Store is the ledger's persistence boundary. Implementations return
// sentinel errors (pkg/platform/sentinel) for infrastructure facts:
// ErrNotFound, ErrConflict (optimistic version check failed), ErrDuplicate
// (transaction id already used).
type Store interface {
	// CreateEvent atomically inserts the event row, its CREATE action, and
	// the outbox entry. Returns ErrDuplicate when an event with the same
	// create transaction id already exists.
	CreateEvent(ctx context.Context, ev *models.Event, outbox OutboxEntry) error

	// GetEvent loads an event with its full ordered action history.
	GetEvent(ctx context.Context, id domain.EventID) (*models.Event, error)

	// FindEventByTransaction resolves a client create-transaction id to the
	// canonical event.
	FindEventByTransaction(ctx context.Context, txn domain.TransactionID) (*models.Event, error)

	// FindActionByTransaction returns a previously accepted action with the
	// given transaction id and the event it belongs to, for idempotent
	// replay. Deleted events are still found: their history stays
	// replayable so retries of accepted submissions keep converging.
	FindActionByTransaction(ctx context.Context, txn domain.TransactionID) (*models.Action, *models.Event, error)

	// AppendAction atomically appends the action and outbox entry iff the
	// event's version still equals expectedVersion. ErrConflict otherwise.
	AppendAction(ctx context.Context, eventID domain.EventID, expectedVersion int, action models.Action, outbox OutboxEntry) error

	// DeleteEvent appends the DELETE action and tombstones the event in one
	// transaction iff the event's version still equals expectedVersion
	// (ErrConflict otherwise), writing the change-feed outbox entry
	// alongside. The tombstoned event is invisible to GetEvent and
	// FindEventByTransaction but its actions remain replayable. Returns the
	// event including the DELETE action.
	DeleteEvent(ctx context.Context, id domain.EventID, expectedVersion int, action models.Action, outbox OutboxEntry) (*models.Event, error)

	// PutDraft stores a draft, overwriting any prior draft with the same
	// (owner, transaction id) key.
	PutDraft(ctx context.Context, d Draft) error
	ListDraftsByOwner(ctx context.Context, owner domain.UserID) ([]Draft, error)
	ListDraftsByEvent(ctx context.Context, eventID domain.EventID) ([]Draft, error)
	DeleteDraft(ctx context.Context, owner domain.UserID, txn domain.TransactionID) error

	// DeleteDraftsByEvent removes every draft targeting the event and
	// returns them so the caller can garbage-collect attachments.
	DeleteDraftsByEvent(ctx context.Context, eventID domain.EventID) ([]Draft, error)

	// PendingOutbox returns unpublished entries in insertion order.
	PendingOutbox(ctx context.Context, limit int) ([]OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}
