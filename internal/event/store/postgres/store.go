// Package postgres implements the ledger store on PostgreSQL. The append
// path relies on an optimistic version check against the events row so two
// concurrent appends can never both commit against a stale view.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"civreg/internal/event/models"
	"civreg/internal/event/store"
	"civreg/pkg/domain"
	"civreg/pkg/platform/sentinel"
	txcontext "civreg/pkg/platform/tx"
)

// Store implements store.Store on *sql.DB (pgx stdlib driver).
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) q(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (s *Store) CreateEvent(ctx context.Context, ev *models.Event, outbox store.OutboxEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create event: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO events (id, type, transaction_id, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.UUID(ev.ID), string(ev.Type), string(ev.TransactionID), ev.Version, ev.CreatedAt, ev.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrDuplicate
		}
		return fmt.Errorf("insert event: %w", err)
	}

	for _, a := range ev.Actions {
		if err := insertAction(ctx, tx, ev.ID, a); err != nil {
			return err
		}
	}
	if err := insertOutbox(ctx, tx, outbox); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create event: %w", err)
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, id domain.EventID) (*models.Event, error) {
	return s.loadEvent(ctx, `WHERE id = $1 AND deleted_at IS NULL`, uuid.UUID(id))
}

func (s *Store) FindEventByTransaction(ctx context.Context, txn domain.TransactionID) (*models.Event, error) {
	return s.loadEvent(ctx, `WHERE transaction_id = $1 AND deleted_at IS NULL`, string(txn))
}

func (s *Store) loadEvent(ctx context.Context, where string, arg any) (*models.Event, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT id, type, transaction_id, version, created_at, updated_at
		FROM events `+where, arg)

	var (
		ev  models.Event
		id  uuid.UUID
		typ string
		txn string
	)
	err := row.Scan(&id, &typ, &txn, &ev.Version, &ev.CreatedAt, &ev.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	ev.ID = domain.EventID(id)
	ev.Type = models.EventType(typ)
	ev.TransactionID = domain.TransactionID(txn)

	actions, err := s.loadActions(ctx, ev.ID)
	if err != nil {
		return nil, err
	}
	ev.Actions = actions
	return &ev, nil
}

func (s *Store) loadActions(ctx context.Context, eventID domain.EventID) ([]models.Action, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, type, status, declaration, annotation, assigned_to,
		       request_id, assignment_id, created_by, created_at,
		       transaction_id, sequence
		FROM actions
		WHERE event_id = $1
		ORDER BY sequence
	`, uuid.UUID(eventID))
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	var actions []models.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	return actions, nil
}

func (s *Store) FindActionByTransaction(ctx context.Context, txn domain.TransactionID) (*models.Action, *models.Event, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, type, status, declaration, annotation, assigned_to,
		       request_id, assignment_id, created_by, created_at,
		       transaction_id, sequence, event_id
		FROM actions
		WHERE transaction_id = $1
	`, string(txn))
	if err != nil {
		return nil, nil, fmt.Errorf("query action by transaction: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, nil, fmt.Errorf("iterate action by transaction: %w", err)
		}
		return nil, nil, sentinel.ErrNotFound
	}
	a, eventID, err := scanActionWithEvent(rows)
	if err != nil {
		return nil, nil, err
	}
	rows.Close()

	// Load without the deleted_at filter: a tombstoned event's history
	// stays replayable.
	ev, err := s.loadEvent(ctx, `WHERE id = $1`, uuid.UUID(eventID))
	if err != nil {
		return nil, nil, err
	}
	return &a, ev, nil
}

func (s *Store) AppendAction(ctx context.Context, eventID domain.EventID, expectedVersion int, action models.Action, outbox store.OutboxEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE events SET version = version + 1, updated_at = $1
		WHERE id = $2 AND version = $3
	`, action.CreatedAt, uuid.UUID(eventID), expectedVersion)
	if err != nil {
		return fmt.Errorf("bump event version: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("append rows affected: %w", err)
	}
	if affected == 0 {
		// Either the event vanished or another append won the race.
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`,
			uuid.UUID(eventID)).Scan(&exists); err != nil {
			return fmt.Errorf("check event exists: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}

	if err := insertAction(ctx, tx, eventID, action); err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrDuplicate
		}
		return err
	}
	if err := insertOutbox(ctx, tx, outbox); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

// DeleteEvent tombstones the event: the row keeps its history (so retries
// of accepted transaction ids still replay) but stops resolving for reads.
// The version check mirrors AppendAction so a concurrent append between the
// caller's read and the delete surfaces as ErrConflict, not a lost action.
func (s *Store) DeleteEvent(ctx context.Context, id domain.EventID, expectedVersion int, action models.Action, outbox store.OutboxEntry) (*models.Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete event: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE events SET version = version + 1, updated_at = $1, deleted_at = $1
		WHERE id = $2 AND version = $3 AND deleted_at IS NULL
	`, action.CreatedAt, uuid.UUID(id), expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("tombstone event: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("delete rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM events WHERE id = $1 AND deleted_at IS NULL)`,
			uuid.UUID(id)).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check event exists: %w", err)
		}
		if !exists {
			return nil, sentinel.ErrNotFound
		}
		return nil, sentinel.ErrConflict
	}

	if err := insertAction(ctx, tx, id, action); err != nil {
		if isUniqueViolation(err) {
			return nil, sentinel.ErrDuplicate
		}
		return nil, err
	}
	if err := insertOutbox(ctx, tx, outbox); err != nil {
		return nil, err
	}

	// Read the event back through the same transaction.
	ev, err := s.loadEvent(txcontext.WithTx(ctx, tx), `WHERE id = $1`, uuid.UUID(id))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete event: %w", err)
	}
	return ev, nil
}

func (s *Store) PutDraft(ctx context.Context, d store.Draft) error {
	declaration, err := marshalNullable(d.Declaration)
	if err != nil {
		return err
	}
	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO drafts (owner_id, transaction_id, event_id, action_type, declaration, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (owner_id, transaction_id) DO UPDATE
		SET event_id = EXCLUDED.event_id,
		    action_type = EXCLUDED.action_type,
		    declaration = EXCLUDED.declaration,
		    created_at = EXCLUDED.created_at
	`, uuid.UUID(d.OwnerID), string(d.TransactionID), uuid.UUID(d.EventID),
		string(d.ActionType), declaration, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert draft: %w", err)
	}
	return nil
}

func (s *Store) ListDraftsByOwner(ctx context.Context, owner domain.UserID) ([]store.Draft, error) {
	return s.listDrafts(ctx, `WHERE owner_id = $1`, uuid.UUID(owner))
}

func (s *Store) ListDraftsByEvent(ctx context.Context, eventID domain.EventID) ([]store.Draft, error) {
	return s.listDrafts(ctx, `WHERE event_id = $1`, uuid.UUID(eventID))
}

func (s *Store) listDrafts(ctx context.Context, where string, arg any) ([]store.Draft, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT owner_id, transaction_id, event_id, action_type, declaration, created_at
		FROM drafts `+where+` ORDER BY created_at, transaction_id`, arg)
	if err != nil {
		return nil, fmt.Errorf("query drafts: %w", err)
	}
	defer rows.Close()
	return scanDrafts(rows)
}

func (s *Store) DeleteDraft(ctx context.Context, owner domain.UserID, txn domain.TransactionID) error {
	res, err := s.q(ctx).ExecContext(ctx,
		`DELETE FROM drafts WHERE owner_id = $1 AND transaction_id = $2`,
		uuid.UUID(owner), string(txn))
	if err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete draft rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteDraftsByEvent(ctx context.Context, eventID domain.EventID) ([]store.Draft, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		DELETE FROM drafts WHERE event_id = $1
		RETURNING owner_id, transaction_id, event_id, action_type, declaration, created_at
	`, uuid.UUID(eventID))
	if err != nil {
		return nil, fmt.Errorf("delete drafts by event: %w", err)
	}
	defer rows.Close()
	return scanDrafts(rows)
}

func (s *Store) PendingOutbox(ctx context.Context, limit int) ([]store.OutboxEntry, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, event_id, action_id, action_type, payload, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var entries []store.OutboxEntry
	for rows.Next() {
		var (
			e                 store.OutboxEntry
			eventID, actionID uuid.UUID
			actionType        string
		)
		if err := rows.Scan(&e.ID, &eventID, &actionID, &actionType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		e.EventID = domain.EventID(eventID)
		e.ActionID = domain.ActionID(actionID)
		e.ActionType = models.ActionType(actionType)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return entries, nil
}

func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	now := time.Now()
	for _, id := range ids {
		_, err := s.q(ctx).ExecContext(ctx,
			`UPDATE outbox SET published_at = $1 WHERE id = $2 AND published_at IS NULL`,
			now, id)
		if err != nil {
			return fmt.Errorf("mark outbox published: %w", err)
		}
	}
	return nil
}

func insertAction(ctx context.Context, tx *sql.Tx, eventID domain.EventID, a models.Action) error {
	declaration, err := marshalNullable(a.Declaration)
	if err != nil {
		return err
	}
	var annotation []byte
	if a.Annotation != nil {
		annotation, err = json.Marshal(a.Annotation)
		if err != nil {
			return fmt.Errorf("marshal annotation: %w", err)
		}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO actions (
			id, event_id, type, status, declaration, annotation,
			assigned_to, request_id, assignment_id, created_by,
			created_at, transaction_id, sequence
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, uuid.UUID(a.ID), uuid.UUID(eventID), string(a.Type), string(a.Status),
		declaration, annotation,
		nullableUUID(uuid.UUID(a.AssignedTo)),
		nullableUUID(uuid.UUID(a.RequestID)),
		nullableUUID(uuid.UUID(a.AssignmentID)),
		uuid.UUID(a.CreatedBy), a.CreatedAt, string(a.TransactionID), a.Sequence)
	if err != nil {
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

func insertOutbox(ctx context.Context, tx *sql.Tx, e store.OutboxEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO outbox (id, event_id, action_id, action_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, uuid.UUID(e.EventID), uuid.UUID(e.ActionID), string(e.ActionType), e.Payload, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

type actionScanner interface {
	Scan(dest ...any) error
}

func scanAction(row actionScanner) (models.Action, error) {
	a, _, err := scanActionInto(row, false)
	return a, err
}

func scanActionWithEvent(row actionScanner) (models.Action, domain.EventID, error) {
	return scanActionInto(row, true)
}

func scanActionInto(row actionScanner, withEvent bool) (models.Action, domain.EventID, error) {
	var (
		a            models.Action
		id           uuid.UUID
		typ, status  string
		declaration  []byte
		annotation   []byte
		assignedTo   *uuid.UUID
		requestID    *uuid.UUID
		assignmentID *uuid.UUID
		createdBy    uuid.UUID
		txn          string
		eventID      uuid.UUID
	)
	dest := []any{
		&id, &typ, &status, &declaration, &annotation, &assignedTo,
		&requestID, &assignmentID, &createdBy, &a.CreatedAt, &txn, &a.Sequence,
	}
	if withEvent {
		dest = append(dest, &eventID)
	}
	if err := row.Scan(dest...); err != nil {
		return models.Action{}, domain.EventID{}, fmt.Errorf("scan action: %w", err)
	}

	a.ID = domain.ActionID(id)
	a.Type = models.ActionType(typ)
	a.Status = models.ActionStatus(status)
	a.CreatedBy = domain.UserID(createdBy)
	a.TransactionID = domain.TransactionID(txn)
	if assignedTo != nil {
		a.AssignedTo = domain.UserID(*assignedTo)
	}
	if requestID != nil {
		a.RequestID = domain.ActionID(*requestID)
	}
	if assignmentID != nil {
		a.AssignmentID = domain.ActionID(*assignmentID)
	}
	if len(declaration) > 0 {
		var p models.Patch
		if err := json.Unmarshal(declaration, &p); err != nil {
			return models.Action{}, domain.EventID{}, fmt.Errorf("unmarshal declaration: %w", err)
		}
		a.Declaration = &p
	}
	if len(annotation) > 0 {
		if err := json.Unmarshal(annotation, &a.Annotation); err != nil {
			return models.Action{}, domain.EventID{}, fmt.Errorf("unmarshal annotation: %w", err)
		}
	}
	return a, domain.EventID(eventID), nil
}

func scanDrafts(rows *sql.Rows) ([]store.Draft, error) {
	var drafts []store.Draft
	for rows.Next() {
		var (
			d           store.Draft
			owner       uuid.UUID
			txn         string
			eventID     uuid.UUID
			actionType  string
			declaration []byte
		)
		if err := rows.Scan(&owner, &txn, &eventID, &actionType, &declaration, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		d.OwnerID = domain.UserID(owner)
		d.TransactionID = domain.TransactionID(txn)
		d.EventID = domain.EventID(eventID)
		d.ActionType = models.ActionType(actionType)
		if len(declaration) > 0 {
			var p models.Patch
			if err := json.Unmarshal(declaration, &p); err != nil {
				return nil, fmt.Errorf("unmarshal draft declaration: %w", err)
			}
			d.Declaration = &p
		}
		drafts = append(drafts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drafts: %w", err)
	}
	return drafts, nil
}

func marshalNullable(p *models.Patch) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal declaration: %w", err)
	}
	return b, nil
}

func nullableUUID(u uuid.UUID) any {
	if u == uuid.Nil {
		return nil
	}
	return u
}
