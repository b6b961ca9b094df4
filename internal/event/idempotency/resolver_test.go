package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civreg/internal/event/models"
	"civreg/internal/event/store"
	"civreg/internal/event/store/memory"
	"civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"
)

func seedEvent(t *testing.T, st *memory.Store, txn domain.TransactionID) *models.Event {
	t.Helper()
	now := time.Now()
	ev := &models.Event{
		ID:            domain.NewEventID(),
		Type:          models.EventBirth,
		TransactionID: txn,
		Version:       1,
		Actions: []models.Action{{
			ID: domain.NewActionID(), Type: models.ActionCreate,
			Status: models.StatusAccepted, CreatedAt: now,
			TransactionID: txn, Sequence: 1,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, st.CreateEvent(context.Background(), ev, store.OutboxEntry{ID: uuid.New()}))
	return ev
}

func TestReplay(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	r := NewResolver(st)
	ev := seedEvent(t, st, "create-txn")

	t.Run("known transaction returns the stored action and event", func(t *testing.T) {
		action, owner, hit, err := r.Replay(ctx, "create-txn")
		require.NoError(t, err)
		require.True(t, hit)
		assert.Equal(t, ev.ID, owner.ID)
		assert.Equal(t, models.ActionCreate, action.Type)
	})

	t.Run("deleted event's transactions still replay", func(t *testing.T) {
		gone := seedEvent(t, st, "doomed-txn")
		del := models.Action{
			ID: domain.NewActionID(), Type: models.ActionDelete,
			Status: models.StatusAccepted, CreatedAt: time.Now(),
			TransactionID: "doomed-delete", Sequence: 2,
		}
		_, err := st.DeleteEvent(ctx, gone.ID, 1, del, store.OutboxEntry{ID: uuid.New()})
		require.NoError(t, err)

		action, owner, hit, err := r.Replay(ctx, "doomed-delete")
		require.NoError(t, err)
		require.True(t, hit)
		assert.Equal(t, models.ActionDelete, action.Type)
		assert.Equal(t, gone.ID, owner.ID)
	})

	t.Run("unknown transaction is a clean miss", func(t *testing.T) {
		_, _, hit, err := r.Replay(ctx, "never-seen")
		require.NoError(t, err)
		assert.False(t, hit)
	})
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	r := NewResolver(st)
	ev := seedEvent(t, st, "create-txn")

	t.Run("canonical id passes through", func(t *testing.T) {
		id, err := r.Resolve(ctx, ev.ID, "")
		require.NoError(t, err)
		assert.Equal(t, ev.ID, id)
	})

	t.Run("create transaction id maps to the canonical id", func(t *testing.T) {
		id, err := r.Resolve(ctx, domain.EventID{}, "create-txn")
		require.NoError(t, err)
		assert.Equal(t, ev.ID, id)
	})

	t.Run("unknown create transaction is retryable, not NotFound", func(t *testing.T) {
		_, err := r.Resolve(ctx, domain.EventID{}, "not-yet")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotYetCreated))
		assert.True(t, dErrors.Retryable(err))
	})

	t.Run("no addressing at all is invalid input", func(t *testing.T) {
		_, err := r.Resolve(ctx, domain.EventID{}, "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestAwait(t *testing.T) {
	ctx := context.Background()

	t.Run("returns immediately when the event exists", func(t *testing.T) {
		st := memory.New()
		r := NewResolver(st)
		ev := seedEvent(t, st, "create-txn")

		id, err := r.Await(ctx, "create-txn", time.Second)
		require.NoError(t, err)
		assert.Equal(t, ev.ID, id)
	})

	t.Run("resolves once a concurrent create lands", func(t *testing.T) {
		st := memory.New()
		r := NewResolver(st)

		go func() {
			time.Sleep(150 * time.Millisecond)
			ev := &models.Event{
				ID: domain.NewEventID(), Type: models.EventBirth,
				TransactionID: "late-txn", Version: 1,
			}
			_ = st.CreateEvent(ctx, ev, store.OutboxEntry{ID: uuid.New()})
		}()

		id, err := r.Await(ctx, "late-txn", 5*time.Second)
		require.NoError(t, err)
		assert.False(t, id.IsNil())
	})

	t.Run("gives up after the wait budget", func(t *testing.T) {
		st := memory.New()
		r := NewResolver(st)

		start := time.Now()
		_, err := r.Await(ctx, "never", 200*time.Millisecond)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotYetCreated))
		assert.Less(t, time.Since(start), 3*time.Second)
	})
}
