// Package ledger owns the append-only action history. Append is the sole
// serialization point per event: idempotency check, assignment guard,
// validation, the durable write, and the derived status all resolve inside
// one optimistically-locked unit, retried a bounded number of times when a
// concurrent append wins the race.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"civreg/internal/event/assignment"
	"civreg/internal/event/draft"
	"civreg/internal/event/feed"
	"civreg/internal/event/idempotency"
	"civreg/internal/event/models"
	"civreg/internal/event/store"
	"civreg/internal/event/validation"
	"civreg/internal/platform/metrics"
	"civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"
	"civreg/pkg/platform/sentinel"
)

// maxAppendAttempts bounds the internal retry against concurrent appends
// before the conflict is surfaced as a transient error.
const maxAppendAttempts = 3

// Service is the ledger's write side plus its read projection.
type Service struct {
	store    store.Store
	resolver *idempotency.Resolver
	drafts   *draft.Manager
	cache    ProjectionCache
	schemas  map[models.EventType]validation.FormSchema
	log      *slog.Logger
	meter    *metrics.Metrics
	now      func() time.Time
}

// NewService wires the ledger. cache may be nil (projection recomputed per
// read); drafts may be nil only in narrow tests.
func NewService(
	st store.Store,
	drafts *draft.Manager,
	cache ProjectionCache,
	schemas map[models.EventType]validation.FormSchema,
	log *slog.Logger,
	meter *metrics.Metrics,
) *Service {
	return &Service{
		store:    st,
		resolver: idempotency.NewResolver(st),
		drafts:   drafts,
		cache:    cache,
		schemas:  schemas,
		log:      log,
		meter:    meter,
		now:      time.Now,
	}
}

// Resolver exposes the two-phase resolve protocol for transport callers.
func (s *Service) Resolver() *idempotency.Resolver { return s.resolver }

// SubmitRequest is one authenticated action submission. Exactly one of
// EventID / EventTransactionID addresses the event (CREATE needs neither).
type SubmitRequest struct {
	UserID domain.UserID
	Scopes []string

	EventID            domain.EventID
	EventTransactionID domain.TransactionID

	Type        models.ActionType
	EventType   models.EventType // CREATE only
	Declaration *models.Patch
	Annotation  map[string]any
	AssignedTo  domain.UserID   // ASSIGN target; defaults to the caller
	RequestID   domain.ActionID // correction approve/reject target

	TransactionID domain.TransactionID
}

// SubmitResult reports the converged outcome. Retries with the same
// transaction id return an identical result with Replayed set; idempotent
// no-ops (unassign-when-unassigned, re-assign to self) return the unchanged
// event with Action nil.
type SubmitResult struct {
	Event       *models.Event
	Action      *models.Action
	Declaration models.Declaration
	Status      models.EventStatus
	Replayed    bool
	NoOp        bool
}

// Submit runs the full append path for one action.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	started := s.now()
	res, err := s.submit(ctx, req)
	s.meter.ObserveAppend(s.now().Sub(started))
	if err != nil {
		s.meter.IncRejected(rejectionKind(err))
		return nil, err
	}
	if res.Action != nil && !res.Replayed {
		s.meter.IncAccepted(string(res.Action.Type))
	}
	return res, nil
}

func (s *Service) submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if req.TransactionID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "transaction id is required")
	}

	// At-most-once: a transaction id that already produced an action always
	// returns the stored result, never a second append.
	if prior, ev, hit, err := s.resolver.Replay(ctx, req.TransactionID); err != nil {
		return nil, err
	} else if hit {
		return replayedResult(ev, prior), nil
	}

	if req.Type == models.ActionCreate {
		return s.create(ctx, req)
	}

	eventID, err := s.resolver.Resolve(ctx, req.EventID, req.EventTransactionID)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		var res *SubmitResult
		var err error
		if req.Type == models.ActionDelete {
			res, err = s.tryDelete(ctx, eventID, req)
		} else {
			res, err = s.tryAppend(ctx, eventID, req)
		}
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, err
		}
		s.meter.IncConflict()
		if attempt >= maxAppendAttempts {
			return nil, dErrors.Wrap(dErrors.CodeConflict,
				"concurrent appends exhausted retries", err)
		}
		// Another append committed first; re-read and re-decide against the
		// fresh history.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * 25 * time.Millisecond):
		}
	}
}

// tryAppend makes one authorize/validate/append pass against a snapshot of
// the event. A version mismatch at commit surfaces as sentinel.ErrConflict.
func (s *Service) tryAppend(ctx context.Context, eventID domain.EventID, req SubmitRequest) (*SubmitResult, error) {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "event does not exist")
		}
		return nil, err
	}

	decision, err := assignment.Authorize(req.UserID, req.Scopes, ev, req.Type)
	if err != nil {
		return nil, err
	}
	if decision.NoOp {
		return s.noOpResult(ev), nil
	}

	current := models.ComputeStatus(ev.Actions)
	next, legal := models.NextStatus(current, req.Type)
	if !legal {
		return nil, dErrors.New(dErrors.CodeInvalidTransition,
			string(req.Type)+" is not allowed while the event is "+statusName(current))
	}
	// Registering straight from declared skips the validation step; only
	// users who could have validated may take the shortcut.
	if req.Type == models.ActionRegister && current == models.StatusDeclared &&
		!assignment.HasScope(req.Scopes, assignment.ScopeValidate) {
		return nil, dErrors.New(dErrors.CodeForbidden, "missing scope "+assignment.ScopeValidate)
	}
	if err := s.checkCorrection(ev, &req); err != nil {
		return nil, err
	}

	if req.Declaration != nil || requiresComplete(req.Type) {
		existing := models.ProjectDeclaration(ev.Actions)
		if req.Type == models.ActionCorrectionAppr {
			// The approve validates the merged view including the pending
			// request's proposed changes.
			if pending, ok := models.PendingCorrection(ev.Actions); ok {
				existing = existing.Apply(pending.Declaration)
			}
		}
		schema := s.schemaFor(ev.Type)
		if err := validation.Validate(schema, existing, req.Declaration, requiresComplete(req.Type)); err != nil {
			return nil, err
		}
	}

	action := s.buildAction(ev, req, decision)
	declaration := models.ProjectDeclaration(append(ev.Accepted(), action))
	entry, err := feed.NewOutboxEntry(ev, action, declaration, next)
	if err != nil {
		return nil, err
	}

	if err := s.store.AppendAction(ctx, ev.ID, ev.Version, action, entry); err != nil {
		if errors.Is(err, sentinel.ErrDuplicate) {
			// A concurrent retry with the same transaction id won; replay it.
			if prior, winner, hit, rerr := s.resolver.Replay(ctx, req.TransactionID); rerr == nil && hit {
				return replayedResult(winner, prior), nil
			}
		}
		return nil, err
	}

	ev.Actions = append(ev.Actions, action)
	ev.Version++
	s.afterCommit(ctx, ev.ID, action)

	return &SubmitResult{
		Event:       ev,
		Action:      &action,
		Declaration: declaration,
		Status:      next,
	}, nil
}

// create handles the CREATE special case: the first accepted CREATE assigns
// the canonical id; replays of the same transaction id return the existing
// event untouched.
func (s *Service) create(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if _, err := assignment.Authorize(req.UserID, req.Scopes, nil, models.ActionCreate); err != nil {
		return nil, err
	}
	eventType := req.EventType
	if eventType == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "event type is required for CREATE")
	}
	if req.Declaration != nil {
		if err := validation.Validate(s.schemaFor(eventType), models.Declaration{}, req.Declaration, false); err != nil {
			return nil, err
		}
	}

	now := s.now()
	action := models.Action{
		ID:            domain.NewActionID(),
		Type:          models.ActionCreate,
		Status:        models.StatusAccepted,
		Declaration:   req.Declaration.Clone(),
		Annotation:    req.Annotation,
		CreatedBy:     req.UserID,
		CreatedAt:     now,
		TransactionID: req.TransactionID,
		Sequence:      1,
	}
	ev := &models.Event{
		ID:            domain.NewEventID(),
		Type:          eventType,
		TransactionID: req.TransactionID,
		Version:       1,
		Actions:       []models.Action{action},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	declaration := models.ProjectDeclaration(ev.Actions)
	entry, err := feed.NewOutboxEntry(ev, action, declaration, models.StatusInProgress)
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateEvent(ctx, ev, entry); err != nil {
		if errors.Is(err, sentinel.ErrDuplicate) {
			// Same create transaction retried: converge on the existing event.
			existing, ferr := s.store.FindEventByTransaction(ctx, req.TransactionID)
			if ferr != nil {
				return nil, ferr
			}
			return replayedResult(existing, &existing.Actions[0]), nil
		}
		return nil, err
	}

	s.afterCommit(ctx, ev.ID, action)
	return &SubmitResult{
		Event:       ev,
		Action:      &action,
		Declaration: declaration,
		Status:      models.StatusInProgress,
	}, nil
}

// tryDelete makes one authorize/check/tombstone pass. Registered records
// are permanent and cannot be deleted. The store's version check serializes
// the delete against concurrent appends exactly like tryAppend; ErrConflict
// goes back to the caller's retry loop.
func (s *Service) tryDelete(ctx context.Context, eventID domain.EventID, req SubmitRequest) (*SubmitResult, error) {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "event does not exist")
		}
		return nil, err
	}

	if _, err := assignment.Authorize(req.UserID, req.Scopes, ev, models.ActionDelete); err != nil {
		return nil, err
	}
	current := models.ComputeStatus(ev.Actions)
	if _, legal := models.NextStatus(current, models.ActionDelete); !legal {
		return nil, dErrors.New(dErrors.CodeInvalidTransition,
			"DELETE is not allowed while the event is "+statusName(current))
	}

	action := models.Action{
		ID:            domain.NewActionID(),
		Type:          models.ActionDelete,
		Status:        models.StatusAccepted,
		Annotation:    req.Annotation,
		CreatedBy:     req.UserID,
		CreatedAt:     s.now(),
		TransactionID: req.TransactionID,
		Sequence:      len(ev.Actions) + 1,
	}
	entry, err := feed.NewOutboxEntry(ev, action, models.Declaration{}, "deleted")
	if err != nil {
		return nil, err
	}

	removed, err := s.store.DeleteEvent(ctx, eventID, ev.Version, action, entry)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "event does not exist")
		}
		return nil, err
	}

	s.afterCommit(ctx, eventID, action)
	return &SubmitResult{
		Event:  removed,
		Action: &action,
		Status: models.StatusNone,
	}, nil
}

// afterCommit runs the post-transaction work: cache invalidation and draft
// cleanup with attachment GC. Both are best-effort; the committed action is
// unaffected by their failures.
func (s *Service) afterCommit(ctx context.Context, eventID domain.EventID, action models.Action) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, eventID)
	}
	if s.drafts == nil {
		return
	}
	switch {
	case action.Type == models.ActionUnassign:
		s.drafts.CleanupEvent(ctx, eventID, nil)
	case action.Type == models.ActionDelete:
		s.drafts.CleanupEvent(ctx, eventID, nil)
	case action.Declaration != nil || isPromotion(action.Type):
		s.drafts.CleanupEvent(ctx, eventID, action.Declaration)
	}
}

// buildAction materializes the accepted action for the request.
func (s *Service) buildAction(ev *models.Event, req SubmitRequest, decision assignment.Decision) models.Action {
	action := models.Action{
		ID:            domain.NewActionID(),
		Type:          req.Type,
		Status:        models.StatusAccepted,
		Declaration:   req.Declaration.Clone(),
		Annotation:    req.Annotation,
		RequestID:     req.RequestID,
		AssignmentID:  decision.Assignment.ActionID,
		CreatedBy:     req.UserID,
		CreatedAt:     s.now(),
		TransactionID: req.TransactionID,
		Sequence:      len(ev.Actions) + 1,
	}
	if req.Type == models.ActionAssign {
		action.AssignedTo = req.AssignedTo
		if action.AssignedTo.IsNil() {
			action.AssignedTo = req.UserID
		}
	}
	return action
}

// checkCorrection enforces that approvals and rejections settle the pending
// request, and that only one request is in flight at a time. A settle
// submitted without an explicit request id is resolved to the pending
// request, so the appended action always references what it settled.
func (s *Service) checkCorrection(ev *models.Event, req *SubmitRequest) error {
	switch req.Type {
	case models.ActionCorrectionReq:
		if _, pending := models.PendingCorrection(ev.Actions); pending {
			return dErrors.New(dErrors.CodeInvalidTransition, "a correction request is already pending")
		}
	case models.ActionCorrectionAppr, models.ActionCorrectionReject:
		pending, ok := models.PendingCorrection(ev.Actions)
		if !ok {
			return dErrors.New(dErrors.CodeInvalidTransition, "no pending correction request")
		}
		if req.RequestID.IsNil() {
			req.RequestID = pending.ID
		} else if req.RequestID != pending.ID {
			return dErrors.New(dErrors.CodeInvalidTransition, "correction request mismatch")
		}
	}
	return nil
}

// replayedResult reconstructs the outcome a retried transaction id saw the
// first time. A replayed DELETE mirrors the original delete result rather
// than the tombstone's folded state.
func replayedResult(ev *models.Event, prior *models.Action) *SubmitResult {
	if prior.Type == models.ActionDelete {
		return &SubmitResult{
			Event:    ev,
			Action:   prior,
			Status:   models.StatusNone,
			Replayed: true,
		}
	}
	return &SubmitResult{
		Event:       ev,
		Action:      prior,
		Declaration: models.ProjectDeclaration(ev.Actions),
		Status:      models.ComputeStatus(ev.Actions),
		Replayed:    true,
	}
}

func (s *Service) noOpResult(ev *models.Event) *SubmitResult {
	return &SubmitResult{
		Event:       ev,
		Declaration: models.ProjectDeclaration(ev.Actions),
		Status:      models.ComputeStatus(ev.Actions),
		NoOp:        true,
	}
}

func (s *Service) schemaFor(t models.EventType) validation.FormSchema {
	return s.schemas[t]
}

// requiresComplete marks the submissions after which every visible required
// field must hold a value.
func requiresComplete(at models.ActionType) bool {
	switch at {
	case models.ActionDeclare, models.ActionValidate, models.ActionRegister, models.ActionCorrectionAppr:
		return true
	default:
		return false
	}
}

// isPromotion marks final actions that end a drafting flow even when they
// carry no patch of their own.
func isPromotion(at models.ActionType) bool {
	switch at {
	case models.ActionDeclare, models.ActionValidate, models.ActionRegister,
		models.ActionNotify, models.ActionCorrectionAppr:
		return true
	default:
		return false
	}
}

func statusName(st models.EventStatus) string {
	if st == models.StatusNone {
		return "not yet created"
	}
	return string(st)
}

func rejectionKind(err error) string {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return string(de.Code)
	}
	return string(dErrors.CodeInternal)
}
