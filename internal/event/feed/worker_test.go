package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civreg/internal/event/models"
	"civreg/internal/event/store/memory"
	"civreg/pkg/domain"
)

type capturePublisher struct {
	keys     [][]byte
	payloads [][]byte
	failAt   int // 1-based message index to fail at; 0 never fails
	calls    int
}

func (p *capturePublisher) Produce(_ context.Context, key, value []byte) error {
	p.calls++
	if p.failAt > 0 && p.calls >= p.failAt {
		return fmt.Errorf("broker unavailable")
	}
	p.keys = append(p.keys, key)
	p.payloads = append(p.payloads, value)
	return nil
}

func seedOutbox(t *testing.T, st *memory.Store, n int) []*models.Event {
	t.Helper()
	ctx := context.Background()
	events := make([]*models.Event, 0, n)
	for i := 0; i < n; i++ {
		now := time.Now()
		action := models.Action{
			ID: domain.NewActionID(), Type: models.ActionCreate,
			Status: models.StatusAccepted, CreatedAt: now,
			TransactionID: domain.TransactionID(uuid.NewString()), Sequence: 1,
		}
		ev := &models.Event{
			ID: domain.NewEventID(), Type: models.EventBirth,
			TransactionID: action.TransactionID, Version: 1,
			Actions: []models.Action{action}, CreatedAt: now, UpdatedAt: now,
		}
		entry, err := NewOutboxEntry(ev, action, models.Declaration{}, models.StatusInProgress)
		require.NoError(t, err)
		require.NoError(t, st.CreateEvent(ctx, ev, entry))
		events = append(events, ev)
	}
	return events
}

func newWorker(st *memory.Store, pub Publisher) *Worker {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWorker(st, pub, log, nil, time.Second)
}

func TestDrain(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes pending entries keyed by event id", func(t *testing.T) {
		st := memory.New()
		events := seedOutbox(t, st, 3)
		pub := &capturePublisher{}

		require.NoError(t, newWorker(st, pub).Drain(ctx))
		require.Len(t, pub.keys, 3)
		for i, ev := range events {
			assert.Equal(t, ev.ID.String(), string(pub.keys[i]))

			var change ChangeEvent
			require.NoError(t, json.Unmarshal(pub.payloads[i], &change))
			assert.Equal(t, ev.ID.String(), change.EventID)
			assert.Equal(t, string(models.ActionCreate), change.ActionType)
			assert.Equal(t, string(models.StatusInProgress), change.Status)
		}

		pending, err := st.PendingOutbox(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, pending, "published entries are marked")
	})

	t.Run("draining an empty outbox is a no-op", func(t *testing.T) {
		pub := &capturePublisher{}
		require.NoError(t, newWorker(memory.New(), pub).Drain(ctx))
		assert.Zero(t, pub.calls)
	})

	t.Run("a publish failure stops the batch and re-delivers later", func(t *testing.T) {
		st := memory.New()
		seedOutbox(t, st, 3)
		pub := &capturePublisher{failAt: 2}
		w := newWorker(st, pub)

		require.NoError(t, w.Drain(ctx))
		assert.Len(t, pub.keys, 1, "only the message before the failure went out")

		pending, err := st.PendingOutbox(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, pending, 2, "unacknowledged entries stay pending")

		// Broker recovers; the next drain picks up where it stopped.
		pub.failAt = 0
		require.NoError(t, w.Drain(ctx))
		pending, err = st.PendingOutbox(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("run drains on the ticker until cancelled", func(t *testing.T) {
		st := memory.New()
		seedOutbox(t, st, 1)
		pub := &capturePublisher{}
		log := slog.New(slog.NewTextHandler(io.Discard, nil))
		w := NewWorker(st, pub, log, nil, 10*time.Millisecond)

		runCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		defer cancel()
		err := w.Run(runCtx)
		require.ErrorIs(t, err, context.DeadlineExceeded)

		pending, perr := st.PendingOutbox(ctx, 10)
		require.NoError(t, perr)
		assert.Empty(t, pending)
	})
}
