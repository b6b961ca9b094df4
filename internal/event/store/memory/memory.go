// Package memory is the in-memory store implementation. It backs the unit
// tests and local development; semantics (version checks, sentinel errors)
// match the postgres store exactly.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"civreg/internal/event/models"
	"civreg/internal/event/store"
	"civreg/pkg/domain"
	"civreg/pkg/platform/sentinel"
)

type draftKey struct {
	owner domain.UserID
	txn   domain.TransactionID
}

// Store holds everything behind one mutex; per-event contention is not a
// concern at test scale.
type Store struct {
	mu sync.Mutex

	events map[domain.EventID]*models.Event
	byTxn  map[domain.TransactionID]domain.EventID
	// deleted holds tombstoned events: invisible to reads, but their
	// actions stay replayable by transaction id.
	deleted map[domain.EventID]*models.Event
	drafts  map[draftKey]store.Draft
	outbox  []store.OutboxEntry
}

func New() *Store {
	return &Store{
		events:  make(map[domain.EventID]*models.Event),
		byTxn:   make(map[domain.TransactionID]domain.EventID),
		deleted: make(map[domain.EventID]*models.Event),
		drafts:  make(map[draftKey]store.Draft),
	}
}

func (s *Store) CreateEvent(_ context.Context, ev *models.Event, outbox store.OutboxEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byTxn[ev.TransactionID]; exists {
		return sentinel.ErrDuplicate
	}
	cp := cloneEvent(ev)
	s.events[cp.ID] = cp
	s.byTxn[cp.TransactionID] = cp.ID
	s.outbox = append(s.outbox, outbox)
	return nil
}

func (s *Store) GetEvent(_ context.Context, id domain.EventID) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneEvent(ev), nil
}

func (s *Store) FindEventByTransaction(_ context.Context, txn domain.TransactionID) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byTxn[txn]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneEvent(s.events[id]), nil
}

func (s *Store) FindActionByTransaction(_ context.Context, txn domain.TransactionID) (*models.Action, *models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, events := range []map[domain.EventID]*models.Event{s.events, s.deleted} {
		for _, ev := range events {
			for i := range ev.Actions {
				if ev.Actions[i].TransactionID == txn {
					a := cloneAction(ev.Actions[i])
					return &a, cloneEvent(ev), nil
				}
			}
		}
	}
	return nil, nil, sentinel.ErrNotFound
}

func (s *Store) AppendAction(_ context.Context, eventID domain.EventID, expectedVersion int, action models.Action, outbox store.OutboxEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[eventID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if ev.Version != expectedVersion {
		return sentinel.ErrConflict
	}
	ev.Actions = append(ev.Actions, cloneAction(action))
	ev.Version++
	ev.UpdatedAt = action.CreatedAt
	s.outbox = append(s.outbox, outbox)
	return nil
}

func (s *Store) DeleteEvent(_ context.Context, id domain.EventID, expectedVersion int, action models.Action, outbox store.OutboxEntry) (*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if ev.Version != expectedVersion {
		return nil, sentinel.ErrConflict
	}
	ev.Actions = append(ev.Actions, cloneAction(action))
	ev.Version++
	ev.UpdatedAt = action.CreatedAt
	s.deleted[id] = ev
	delete(s.events, id)
	delete(s.byTxn, ev.TransactionID)
	s.outbox = append(s.outbox, outbox)
	return cloneEvent(ev), nil
}

func (s *Store) PutDraft(_ context.Context, d store.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d.Declaration = d.Declaration.Clone()
	s.drafts[draftKey{owner: d.OwnerID, txn: d.TransactionID}] = d
	return nil
}

func (s *Store) ListDraftsByOwner(_ context.Context, owner domain.UserID) ([]store.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.Draft
	for k, d := range s.drafts {
		if k.owner == owner {
			d.Declaration = d.Declaration.Clone()
			out = append(out, d)
		}
	}
	sortDrafts(out)
	return out, nil
}

func (s *Store) ListDraftsByEvent(_ context.Context, eventID domain.EventID) ([]store.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.Draft
	for _, d := range s.drafts {
		if d.EventID == eventID {
			d.Declaration = d.Declaration.Clone()
			out = append(out, d)
		}
	}
	sortDrafts(out)
	return out, nil
}

func (s *Store) DeleteDraft(_ context.Context, owner domain.UserID, txn domain.TransactionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := draftKey{owner: owner, txn: txn}
	if _, ok := s.drafts[key]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.drafts, key)
	return nil
}

func (s *Store) DeleteDraftsByEvent(_ context.Context, eventID domain.EventID) ([]store.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []store.Draft
	for k, d := range s.drafts {
		if d.EventID == eventID {
			removed = append(removed, d)
			delete(s.drafts, k)
		}
	}
	sortDrafts(removed)
	return removed, nil
}

func (s *Store) PendingOutbox(_ context.Context, limit int) ([]store.OutboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.OutboxEntry
	for _, e := range s.outbox {
		if e.PublishedAt != nil {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkPublished(_ context.Context, ids []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	for i := range s.outbox {
		if _, ok := set[s.outbox[i].ID]; ok && s.outbox[i].PublishedAt == nil {
			now := time.Now()
			s.outbox[i].PublishedAt = &now
		}
	}
	return nil
}

func sortDrafts(drafts []store.Draft) {
	sort.Slice(drafts, func(i, j int) bool {
		if drafts[i].CreatedAt.Equal(drafts[j].CreatedAt) {
			return drafts[i].TransactionID < drafts[j].TransactionID
		}
		return drafts[i].CreatedAt.Before(drafts[j].CreatedAt)
	})
}

func cloneEvent(ev *models.Event) *models.Event {
	cp := *ev
	cp.Actions = make([]models.Action, len(ev.Actions))
	for i := range ev.Actions {
		cp.Actions[i] = cloneAction(ev.Actions[i])
	}
	return &cp
}

func cloneAction(a models.Action) models.Action {
	a.Declaration = a.Declaration.Clone()
	if a.Annotation != nil {
		ann := make(map[string]any, len(a.Annotation))
		for k, v := range a.Annotation {
			ann[k] = v
		}
		a.Annotation = ann
	}
	return a
}
