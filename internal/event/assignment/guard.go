// Package assignment decides whether a user may submit an action against an
// event, based on granted scopes and the event's derived assignment state.
package assignment

import (
	"civreg/internal/event/models"
	"civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"
)

// Scopes granted to users by the upstream authorization layer.
const (
	ScopeDeclare  = "record.declare"
	ScopeNotify   = "record.notify"
	ScopeValidate = "record.validate"
	ScopeRegister = "record.register"
	ScopeAssign   = "record.assign"
	ScopeCorrect  = "record.correct"
	ScopePrint    = "record.print"
	ScopeDelete   = "record.delete"

	// ScopeUnassignOthers is the elevated scope required to release an
	// assignment held by someone else. Unassigning yourself needs no scope.
	ScopeUnassignOthers = "record.unassign-others"
)

// requiredScope names the minimum scope per action type. UNASSIGN is absent:
// self-unassign is always allowed and unassigning others is checked against
// ScopeUnassignOthers separately.
var requiredScope = map[models.ActionType]string{
	models.ActionCreate:           ScopeDeclare,
	models.ActionNotify:           ScopeNotify,
	models.ActionDeclare:          ScopeDeclare,
	models.ActionEdit:             ScopeDeclare,
	models.ActionValidate:         ScopeValidate,
	models.ActionReject:           ScopeValidate,
	models.ActionRegister:         ScopeRegister,
	models.ActionAssign:           ScopeAssign,
	models.ActionCorrectionReq:    ScopeCorrect,
	models.ActionCorrectionAppr:   ScopeCorrect,
	models.ActionCorrectionReject: ScopeCorrect,
	models.ActionPrintCertificate: ScopePrint,
	models.ActionDelete:           ScopeDelete,
}

// Decision is the outcome of a successful authorization.
type Decision struct {
	// NoOp marks an idempotent success that must append nothing: unassign
	// on an unassigned event, or re-assign to the current holder.
	NoOp bool

	// Assignment is the hold under which the action proceeds, for audit
	// referencing on the appended action. Zero when the event is unassigned
	// (assign/unassign paths).
	Assignment models.Assignment
}

// Authorize checks scopes first, then assignment. The event may be nil only
// for CREATE, which precedes any event state.
//
// Scope failures and assignment failures are both Forbidden but carry
// distinct messages so callers can tell missing-scope from not-assigned.
func Authorize(userID domain.UserID, scopes []string, ev *models.Event, at models.ActionType) (Decision, error) {
	if at == models.ActionUnassign {
		return authorizeUnassign(userID, scopes, ev)
	}

	need, ok := requiredScope[at]
	if !ok {
		return Decision{}, dErrors.New(dErrors.CodeForbidden, "unknown action type "+string(at))
	}
	if !HasScope(scopes, need) {
		return Decision{}, dErrors.New(dErrors.CodeForbidden, "missing scope "+need)
	}

	if at == models.ActionCreate {
		return Decision{}, nil
	}
	if ev == nil {
		return Decision{}, dErrors.New(dErrors.CodeNotFound, "event does not exist")
	}

	current, held := models.ComputeAssignment(ev.Actions)

	if at == models.ActionAssign {
		switch {
		case !held:
			return Decision{}, nil
		case current.UserID == userID:
			// Idempotent re-assign to self: success, nothing to append.
			return Decision{NoOp: true, Assignment: current}, nil
		default:
			return Decision{}, dErrors.New(dErrors.CodeForbidden, "event is assigned to another user")
		}
	}

	// All remaining action types mutate the event and require the caller to
	// hold the assignment.
	if !held || current.UserID != userID {
		return Decision{}, dErrors.New(dErrors.CodeForbidden, "not assigned to this event")
	}
	return Decision{Assignment: current}, nil
}

// authorizeUnassign implements the unassign rules: releasing nothing is a
// success-no-op, releasing your own hold is always allowed, releasing
// another user's hold needs the elevated scope.
func authorizeUnassign(userID domain.UserID, scopes []string, ev *models.Event) (Decision, error) {
	if ev == nil {
		return Decision{}, dErrors.New(dErrors.CodeNotFound, "event does not exist")
	}
	current, held := models.ComputeAssignment(ev.Actions)
	if !held {
		return Decision{NoOp: true}, nil
	}
	if current.UserID == userID {
		return Decision{Assignment: current}, nil
	}
	if !HasScope(scopes, ScopeUnassignOthers) {
		return Decision{}, dErrors.New(dErrors.CodeForbidden, "missing scope "+ScopeUnassignOthers)
	}
	return Decision{Assignment: current}, nil
}

// HasScope reports whether the grant list contains the scope.
func HasScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}
