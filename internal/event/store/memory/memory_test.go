package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"civreg/internal/event/models"
	"civreg/internal/event/store"
	"civreg/pkg/domain"
	"civreg/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *Store
	ctx   context.Context
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = New()
	s.ctx = context.Background()
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) newEvent(txn domain.TransactionID) *models.Event {
	now := time.Now()
	action := models.Action{
		ID:            domain.NewActionID(),
		Type:          models.ActionCreate,
		Status:        models.StatusAccepted,
		CreatedBy:     domain.UserID(uuid.New()),
		CreatedAt:     now,
		TransactionID: txn,
		Sequence:      1,
	}
	return &models.Event{
		ID:            domain.NewEventID(),
		Type:          models.EventBirth,
		TransactionID: txn,
		Version:       1,
		Actions:       []models.Action{action},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (s *MemoryStoreSuite) outboxFor(ev *models.Event) store.OutboxEntry {
	return store.OutboxEntry{
		ID:        uuid.New(),
		EventID:   ev.ID,
		ActionID:  ev.Actions[len(ev.Actions)-1].ID,
		CreatedAt: time.Now(),
	}
}

func (s *MemoryStoreSuite) TestCreateAndLookups() {
	s.Run("creates and finds by id and transaction", func() {
		ev := s.newEvent("txn-1")
		s.Require().NoError(s.store.CreateEvent(s.ctx, ev, s.outboxFor(ev)))

		found, err := s.store.GetEvent(s.ctx, ev.ID)
		s.Require().NoError(err)
		s.Equal(ev.TransactionID, found.TransactionID)

		byTxn, err := s.store.FindEventByTransaction(s.ctx, "txn-1")
		s.Require().NoError(err)
		s.Equal(ev.ID, byTxn.ID)
	})

	s.Run("duplicate create transaction is rejected", func() {
		ev := s.newEvent("txn-dup")
		s.Require().NoError(s.store.CreateEvent(s.ctx, ev, s.outboxFor(ev)))

		again := s.newEvent("txn-dup")
		s.Require().ErrorIs(s.store.CreateEvent(s.ctx, again, s.outboxFor(again)), sentinel.ErrDuplicate)
	})

	s.Run("unknown lookups return ErrNotFound", func() {
		_, err := s.store.GetEvent(s.ctx, domain.NewEventID())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)

		_, err = s.store.FindEventByTransaction(s.ctx, "missing")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)

		_, _, err = s.store.FindActionByTransaction(s.ctx, "missing")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("finds action by its transaction id", func() {
		ev := s.newEvent("txn-act")
		s.Require().NoError(s.store.CreateEvent(s.ctx, ev, s.outboxFor(ev)))

		action, owner, err := s.store.FindActionByTransaction(s.ctx, "txn-act")
		s.Require().NoError(err)
		s.Equal(ev.ID, owner.ID)
		s.Equal(models.ActionCreate, action.Type)
	})
}

func (s *MemoryStoreSuite) TestAppendAction() {
	s.Run("append bumps the version", func() {
		ev := s.newEvent("txn-append")
		s.Require().NoError(s.store.CreateEvent(s.ctx, ev, s.outboxFor(ev)))

		next := models.Action{
			ID: domain.NewActionID(), Type: models.ActionAssign,
			Status: models.StatusAccepted, TransactionID: "txn-append-2",
			CreatedAt: time.Now(), Sequence: 2,
		}
		s.Require().NoError(s.store.AppendAction(s.ctx, ev.ID, 1, next, s.outboxFor(ev)))

		found, err := s.store.GetEvent(s.ctx, ev.ID)
		s.Require().NoError(err)
		s.Equal(2, found.Version)
		s.Len(found.Actions, 2)
	})

	s.Run("stale expected version conflicts", func() {
		ev := s.newEvent("txn-stale")
		s.Require().NoError(s.store.CreateEvent(s.ctx, ev, s.outboxFor(ev)))

		next := models.Action{ID: domain.NewActionID(), Type: models.ActionAssign, Status: models.StatusAccepted, Sequence: 2}
		s.Require().ErrorIs(s.store.AppendAction(s.ctx, ev.ID, 7, next, s.outboxFor(ev)), sentinel.ErrConflict)
	})

	s.Run("append to a missing event is ErrNotFound", func() {
		next := models.Action{ID: domain.NewActionID(), Type: models.ActionAssign, Status: models.StatusAccepted}
		s.Require().ErrorIs(s.store.AppendAction(s.ctx, domain.NewEventID(), 1, next, store.OutboxEntry{}), sentinel.ErrNotFound)
	})
}

func (s *MemoryStoreSuite) TestDeleteEvent() {
	deleteAction := func(seq int) models.Action {
		return models.Action{
			ID: domain.NewActionID(), Type: models.ActionDelete,
			Status: models.StatusAccepted, TransactionID: "txn-del-action",
			CreatedAt: time.Now(), Sequence: seq,
		}
	}

	s.Run("tombstones the event and keeps its history replayable", func() {
		ev := s.newEvent("txn-del")
		s.Require().NoError(s.store.CreateEvent(s.ctx, ev, s.outboxFor(ev)))

		removed, err := s.store.DeleteEvent(s.ctx, ev.ID, 1, deleteAction(2), s.outboxFor(ev))
		s.Require().NoError(err)
		s.Equal(ev.ID, removed.ID)
		s.Equal(2, removed.Version)
		s.Len(removed.Actions, 2)

		_, err = s.store.GetEvent(s.ctx, ev.ID)
		s.Require().ErrorIs(err, sentinel.ErrNotFound)

		// The create transaction id is released with the event.
		_, err = s.store.FindEventByTransaction(s.ctx, "txn-del")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)

		// Both the DELETE and the earlier actions still replay.
		action, owner, err := s.store.FindActionByTransaction(s.ctx, "txn-del-action")
		s.Require().NoError(err)
		s.Equal(models.ActionDelete, action.Type)
		s.Equal(ev.ID, owner.ID)

		action, _, err = s.store.FindActionByTransaction(s.ctx, "txn-del")
		s.Require().NoError(err)
		s.Equal(models.ActionCreate, action.Type)
	})

	s.Run("stale expected version conflicts", func() {
		ev := s.newEvent("txn-del-stale")
		s.Require().NoError(s.store.CreateEvent(s.ctx, ev, s.outboxFor(ev)))

		_, err := s.store.DeleteEvent(s.ctx, ev.ID, 7, deleteAction(2), s.outboxFor(ev))
		s.Require().ErrorIs(err, sentinel.ErrConflict)

		// The event survives a conflicted delete untouched.
		found, err := s.store.GetEvent(s.ctx, ev.ID)
		s.Require().NoError(err)
		s.Equal(1, found.Version)
	})

	s.Run("deleting a missing event is ErrNotFound", func() {
		_, err := s.store.DeleteEvent(s.ctx, domain.NewEventID(), 1, deleteAction(2), store.OutboxEntry{})
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *MemoryStoreSuite) TestDrafts() {
	owner := domain.UserID(uuid.New())
	eventID := domain.NewEventID()

	draft := func(txn domain.TransactionID, at time.Time) store.Draft {
		return store.Draft{
			EventID:       eventID,
			OwnerID:       owner,
			TransactionID: txn,
			ActionType:    models.ActionDeclare,
			CreatedAt:     at,
		}
	}

	s.Run("put overwrites by owner and transaction", func() {
		base := time.Now()
		s.Require().NoError(s.store.PutDraft(s.ctx, draft("d-1", base)))
		s.Require().NoError(s.store.PutDraft(s.ctx, draft("d-1", base.Add(time.Minute))))

		drafts, err := s.store.ListDraftsByOwner(s.ctx, owner)
		s.Require().NoError(err)
		s.Len(drafts, 1)
	})

	s.Run("lists by owner in creation order", func() {
		base := time.Now()
		s.Require().NoError(s.store.PutDraft(s.ctx, draft("d-2", base.Add(2*time.Minute))))
		s.Require().NoError(s.store.PutDraft(s.ctx, draft("d-0", base.Add(-time.Minute))))

		drafts, err := s.store.ListDraftsByOwner(s.ctx, owner)
		s.Require().NoError(err)
		s.Require().Len(drafts, 3)
		s.Equal(domain.TransactionID("d-0"), drafts[0].TransactionID)
		s.Equal(domain.TransactionID("d-2"), drafts[2].TransactionID)
	})

	s.Run("delete by event returns the removed drafts", func() {
		removed, err := s.store.DeleteDraftsByEvent(s.ctx, eventID)
		s.Require().NoError(err)
		s.Len(removed, 3)

		drafts, err := s.store.ListDraftsByEvent(s.ctx, eventID)
		s.Require().NoError(err)
		s.Empty(drafts)
	})

	s.Run("deleting a missing draft is ErrNotFound", func() {
		s.Require().ErrorIs(s.store.DeleteDraft(s.ctx, owner, "missing"), sentinel.ErrNotFound)
	})
}

func (s *MemoryStoreSuite) TestOutbox() {
	ev := s.newEvent("txn-outbox")
	entry := s.outboxFor(ev)
	s.Require().NoError(s.store.CreateEvent(s.ctx, ev, entry))

	pending, err := s.store.PendingOutbox(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(entry.ID, pending[0].ID)

	s.Require().NoError(s.store.MarkPublished(s.ctx, []uuid.UUID{entry.ID}))

	pending, err = s.store.PendingOutbox(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)
}
