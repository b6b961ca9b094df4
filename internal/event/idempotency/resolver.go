// Package idempotency deduplicates action submissions by transaction id and
// reconciles client-generated transaction ids to server-canonical event ids.
// It makes retried, possibly offline-originated submissions converge on a
// single accepted result.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"civreg/internal/event/models"
	"civreg/internal/event/store"
	"civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"
	"civreg/pkg/platform/sentinel"
)

// Resolver answers two questions: has this transaction id already produced
// an action, and which canonical event does this submission address.
type Resolver struct {
	store store.Store
}

func NewResolver(st store.Store) *Resolver {
	return &Resolver{store: st}
}

// Replay returns the previously accepted action for a transaction id along
// with the event it was accepted against. A hit means the submission is a
// retry: the caller returns the stored result without re-applying effects.
// Tombstoned events replay too, so a retried DELETE converges.
func (r *Resolver) Replay(ctx context.Context, txn domain.TransactionID) (*models.Action, *models.Event, bool, error) {
	action, ev, err := r.store.FindActionByTransaction(ctx, txn)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, err
	}
	return action, ev, true, nil
}

// Resolve maps a submission's addressing (canonical event id, or the create
// transaction id of an offline-created event) to the canonical event id.
//
// A transaction id with no canonical event yet is EventNotYetCreated: a
// retryable condition distinct from NotFound, so clients back off and retry
// instead of abandoning.
func (r *Resolver) Resolve(ctx context.Context, eventID domain.EventID, createTxn domain.TransactionID) (domain.EventID, error) {
	if !eventID.IsNil() {
		return eventID, nil
	}
	if createTxn == "" {
		return domain.EventID{}, dErrors.New(dErrors.CodeInvalidInput, "either event id or event transaction id is required")
	}
	ev, err := r.store.FindEventByTransaction(ctx, createTxn)
	if errors.Is(err, sentinel.ErrNotFound) {
		return domain.EventID{}, dErrors.New(dErrors.CodeNotYetCreated,
			"event "+string(createTxn)+" has no canonical id yet")
	}
	if err != nil {
		return domain.EventID{}, err
	}
	return ev.ID, nil
}

// Await is phase two of the two-phase submission protocol: it polls Resolve
// with bounded exponential backoff until the canonical id exists or the
// caller-supplied wait budget runs out. The retry is explicit and bounded,
// never an implicit unbounded wrapper.
func (r *Resolver) Await(ctx context.Context, createTxn domain.TransactionID, maxWait time.Duration) (domain.EventID, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = maxWait

	var resolved domain.EventID
	operation := func() error {
		id, err := r.Resolve(ctx, domain.EventID{}, createTxn)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotYetCreated) {
				return err // retryable
			}
			return backoff.Permanent(err)
		}
		resolved = id
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return domain.EventID{}, err
	}
	return resolved, nil
}
