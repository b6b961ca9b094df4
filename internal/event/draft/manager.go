// Package draft manages the ephemeral edit layer in front of the ledger:
// not-yet-committed declaration patches keyed by client transaction, and the
// garbage collection of attachments that lose their last reference when
// drafts are superseded or discarded.
package draft

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"civreg/internal/event/models"
	"civreg/internal/event/store"
	"civreg/internal/platform/metrics"
	"civreg/internal/storage"
	"civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"
	"civreg/pkg/platform/sentinel"
)

// Manager stores drafts and runs attachment GC. Drafts are per-owner and
// have no cross-event contention; GC runs outside the ledger transaction.
type Manager struct {
	store store.Store
	files storage.Client
	log   *slog.Logger
	meter *metrics.Metrics
	now   func() time.Time
}

func NewManager(st store.Store, files storage.Client, log *slog.Logger, meter *metrics.Metrics) *Manager {
	return &Manager{
		store: st,
		files: files,
		log:   log,
		meter: meter,
		now:   time.Now,
	}
}

// Create stores a draft, overwriting any prior draft with the same
// (owner, transaction id). Attachments referenced only by the replaced
// version become GC candidates immediately.
func (m *Manager) Create(ctx context.Context, d store.Draft) (store.Draft, error) {
	if d.TransactionID == "" {
		return store.Draft{}, dErrors.New(dErrors.CodeInvalidInput, "draft transaction id must not be empty")
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = m.now()
	}

	var replaced *store.Draft
	existing, err := m.store.ListDraftsByOwner(ctx, d.OwnerID)
	if err != nil {
		return store.Draft{}, err
	}
	for i := range existing {
		if existing[i].TransactionID == d.TransactionID {
			replaced = &existing[i]
			break
		}
	}

	if err := m.store.PutDraft(ctx, d); err != nil {
		return store.Draft{}, err
	}

	if replaced != nil {
		m.sweepEvent(ctx, d.EventID, replaced.Declaration.Attachments())
	}
	return d, nil
}

// List returns the caller's drafts.
func (m *Manager) List(ctx context.Context, owner domain.UserID) ([]store.Draft, error) {
	return m.store.ListDraftsByOwner(ctx, owner)
}

// Discard removes a single draft and garbage-collects its attachments.
func (m *Manager) Discard(ctx context.Context, owner domain.UserID, txn domain.TransactionID) error {
	drafts, err := m.store.ListDraftsByOwner(ctx, owner)
	if err != nil {
		return err
	}
	var target *store.Draft
	for i := range drafts {
		if drafts[i].TransactionID == txn {
			target = &drafts[i]
			break
		}
	}
	if target == nil {
		return dErrors.New(dErrors.CodeNotFound, "draft does not exist")
	}
	if err := m.store.DeleteDraft(ctx, owner, txn); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "draft does not exist")
		}
		return err
	}
	m.sweepEvent(ctx, target.EventID, target.Declaration.Attachments())
	return nil
}

// CleanupEvent discards every draft targeting the event and garbage-collects
// attachments. It runs after a final (non-draft) action is accepted or after
// an unassignment; promoted carries the just-accepted patch so its
// attachments get their one existence check too.
//
// Failures here are logged, never propagated: the committed action must not
// be affected by best-effort cleanup.
func (m *Manager) CleanupEvent(ctx context.Context, eventID domain.EventID, promoted *models.Patch) {
	discarded, err := m.store.DeleteDraftsByEvent(ctx, eventID)
	if err != nil {
		m.log.Error("discard drafts for event", "event_id", eventID.String(), "error", err)
		return
	}

	candidates := map[string]struct{}{}
	for _, d := range discarded {
		for _, name := range d.Declaration.Attachments() {
			candidates[name] = struct{}{}
		}
	}
	for _, name := range promoted.Attachments() {
		candidates[name] = struct{}{}
	}
	if len(candidates) == 0 {
		return
	}
	m.sweep(ctx, eventID, sorted(candidates))
}

// sweepEvent collects the surviving references and sweeps the candidates.
func (m *Manager) sweepEvent(ctx context.Context, eventID domain.EventID, candidates []string) {
	if len(candidates) == 0 {
		return
	}
	m.sweep(ctx, eventID, candidates)
}

// sweep performs the per-attachment check-then-delete pass. Each candidate
// gets exactly one existence check; a file still referenced by a surviving
// draft or by any accepted action's declaration is never deleted. A partial
// failure leaves files orphaned-but-not-lost, never wrongly deleted.
func (m *Manager) sweep(ctx context.Context, eventID domain.EventID, candidates []string) {
	if m.files == nil {
		return
	}
	protected, err := m.protectedAttachments(ctx, eventID)
	if err != nil {
		m.log.Error("collect protected attachments", "event_id", eventID.String(), "error", err)
		return
	}

	for _, name := range candidates {
		exists, err := m.files.Head(ctx, name)
		if err != nil {
			m.meter.IncGCFailure()
			m.log.Warn("attachment existence check failed, leaving orphaned",
				"filename", name, "error", err)
			continue
		}
		if !exists {
			continue
		}
		if _, keep := protected[name]; keep {
			m.meter.IncAttachmentKept()
			continue
		}
		if err := m.files.Delete(ctx, name); err != nil {
			m.meter.IncGCFailure()
			m.log.Warn("attachment delete failed, leaving orphaned",
				"filename", name, "error", err)
			continue
		}
		m.meter.IncAttachmentDeleted()
		m.log.Info("deleted unreferenced attachment",
			"filename", name, "event_id", eventID.String())
	}
}

// protectedAttachments returns every attachment that must survive: those in
// surviving drafts and those in the event's accepted declaration. The event
// may already be gone (DELETE action); then only drafts protect.
func (m *Manager) protectedAttachments(ctx context.Context, eventID domain.EventID) (map[string]struct{}, error) {
	protected := map[string]struct{}{}

	drafts, err := m.store.ListDraftsByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	for _, d := range drafts {
		for _, name := range d.Declaration.Attachments() {
			protected[name] = struct{}{}
		}
	}

	ev, err := m.store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return protected, nil
		}
		return nil, err
	}
	declaration := models.ProjectDeclaration(ev.Actions)
	for _, name := range declaration.Attachments() {
		protected[name] = struct{}{}
	}
	return protected, nil
}

func sorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	// Deterministic GC order keeps logs and tests stable.
	sort.Strings(out)
	return out
}
