package models

import "civreg/pkg/domain"

// Assignment is the derived exclusive-write lock on an event: the user named
// by the most recent accepted ASSIGN with no later accepted UNASSIGN.
type Assignment struct {
	UserID domain.UserID
	// ActionID is the accepted ASSIGN action that granted the hold.
	ActionID domain.ActionID
}

// ComputeAssignment folds the accepted actions into the current assignment.
// It is a pure function of the action list; assignment is never stored as a
// separately-mutated field that could drift from the history.
func ComputeAssignment(actions []Action) (Assignment, bool) {
	var (
		current Assignment
		held    bool
	)
	for _, a := range actions {
		if a.Status != StatusAccepted {
			continue
		}
		switch a.Type {
		case ActionAssign:
			current = Assignment{UserID: a.AssignedTo, ActionID: a.ID}
			held = true
		case ActionUnassign:
			current = Assignment{}
			held = false
		}
	}
	return current, held
}
