// Package models holds the event action ledger's domain types. The ordered
// list of accepted actions is the sole source of an event's current state;
// everything else (declaration, status, assignment) is derived from it.
package models

import (
	"time"

	"civreg/pkg/domain"
)

// EventType classifies the registered vital event.
type EventType string

const (
	EventBirth    EventType = "birth"
	EventDeath    EventType = "death"
	EventMarriage EventType = "marriage"
)

// ActionType enumerates every kind of entry the ledger accepts.
type ActionType string

const (
	ActionCreate           ActionType = "CREATE"
	ActionDeclare          ActionType = "DECLARE"
	ActionValidate         ActionType = "VALIDATE"
	ActionRegister         ActionType = "REGISTER"
	ActionReject           ActionType = "REJECT"
	ActionEdit             ActionType = "EDIT"
	ActionAssign           ActionType = "ASSIGN"
	ActionUnassign         ActionType = "UNASSIGN"
	ActionCorrectionReq    ActionType = "CORRECTION_REQUEST"
	ActionCorrectionAppr   ActionType = "CORRECTION_APPROVE"
	ActionCorrectionReject ActionType = "CORRECTION_REJECT"
	ActionPrintCertificate ActionType = "PRINT_CERTIFICATE"
	ActionNotify           ActionType = "NOTIFY"
	ActionDelete           ActionType = "DELETE"
)

// ActionStatus is the terminal outcome of a submitted action. Requested is
// transient and never stored; only Accepted and Rejected reach the ledger.
type ActionStatus string

const (
	StatusRequested ActionStatus = "Requested"
	StatusAccepted  ActionStatus = "Accepted"
	StatusRejected  ActionStatus = "Rejected"
)

// Action is one immutable, ordered entry in an event's history. Once written
// with a terminal status it is never mutated.
type Action struct {
	ID     domain.ActionID
	Type   ActionType
	Status ActionStatus

	// Declaration is a partial field-update patch, not a full snapshot.
	// Nil for actions that carry no field changes (ASSIGN, UNASSIGN, ...).
	Declaration *Patch

	// Annotation holds non-declaration metadata, e.g. a correction
	// justification or a rejection comment.
	Annotation map[string]any

	// AssignedTo is the target user of an ASSIGN action.
	AssignedTo domain.UserID

	// RequestID links CORRECTION_APPROVE / CORRECTION_REJECT to the
	// CORRECTION_REQUEST they settle.
	RequestID domain.ActionID

	// AssignmentID references the accepted ASSIGN action under which the
	// acting user held the event, for authorization auditing.
	AssignmentID domain.ActionID

	CreatedBy     domain.UserID
	CreatedAt     time.Time
	TransactionID domain.TransactionID

	// Sequence is the position within the event's history, starting at 1.
	Sequence int
}

// Event is the case being tracked as it moves through the workflow. The
// canonical ID is assigned exactly once, on acceptance of the CREATE action;
// before that the event is addressed only by its transaction id.
type Event struct {
	ID   domain.EventID
	Type EventType

	// TransactionID is the client transaction id of the accepted CREATE,
	// kept so offline-originated submissions can be reconciled to the
	// canonical id.
	TransactionID domain.TransactionID

	// Version counts accepted appends and serves as the optimistic
	// concurrency token for the ledger.
	Version int

	Actions []Action

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Accepted returns the accepted actions in insertion order.
func (e *Event) Accepted() []Action {
	out := make([]Action, 0, len(e.Actions))
	for _, a := range e.Actions {
		if a.Status == StatusAccepted {
			out = append(out, a)
		}
	}
	return out
}

// FindAction returns the action with the given id, if present.
func (e *Event) FindAction(id domain.ActionID) (Action, bool) {
	for _, a := range e.Actions {
		if a.ID == id {
			return a, true
		}
	}
	return Action{}, false
}
