package models

// EventStatus is the primary workflow status of an event, derived from the
// most recent status-changing accepted action.
type EventStatus string

const (
	// StatusNone is the status before any action has been accepted.
	StatusNone       EventStatus = ""
	StatusInProgress EventStatus = "in_progress"
	StatusDeclared   EventStatus = "declared"
	StatusValidated  EventStatus = "validated"
	StatusRegistered EventStatus = "registered"
)

// statusTransitions maps each status-changing action type to the statuses it
// is reachable from and the status it produces. Side-channel actions are
// listed in sideChannelFrom instead.
var statusTransitions = map[ActionType]map[EventStatus]EventStatus{
	ActionCreate: {
		StatusNone: StatusInProgress,
	},
	ActionDeclare: {
		StatusInProgress: StatusDeclared,
	},
	ActionValidate: {
		StatusDeclared: StatusValidated,
	},
	ActionRegister: {
		// Registering straight from declared skips validation; the ledger
		// additionally requires the validate scope for that shortcut.
		StatusDeclared:  StatusRegistered,
		StatusValidated: StatusRegistered,
	},
	ActionReject: {
		// Rejection sends the record back for rework, not to a dead end.
		StatusDeclared:  StatusInProgress,
		StatusValidated: StatusInProgress,
	},
}

// sideChannelFrom lists, per side-channel action type, the statuses from
// which it may be accepted. Side-channel actions never change the status.
var sideChannelFrom = map[ActionType]map[EventStatus]bool{
	ActionEdit: {
		StatusInProgress: true,
		StatusDeclared:   true,
		StatusValidated:  true,
	},
	ActionAssign: {
		StatusInProgress: true,
		StatusDeclared:   true,
		StatusValidated:  true,
		StatusRegistered: true,
	},
	ActionUnassign: {
		StatusInProgress: true,
		StatusDeclared:   true,
		StatusValidated:  true,
		StatusRegistered: true,
	},
	ActionNotify: {
		StatusInProgress: true,
		StatusDeclared:   true,
		StatusValidated:  true,
		StatusRegistered: true,
	},
	ActionCorrectionReq: {
		StatusRegistered: true,
	},
	ActionCorrectionAppr: {
		StatusRegistered: true,
	},
	ActionCorrectionReject: {
		StatusRegistered: true,
	},
	ActionPrintCertificate: {
		StatusRegistered: true,
	},
	ActionDelete: {
		// Registered records are permanent; everything earlier may be
		// deleted by an authorized user.
		StatusInProgress: true,
		StatusDeclared:   true,
		StatusValidated:  true,
	},
}

// NextStatus returns the status the event would hold after accepting an
// action of the given type, and whether the transition is legal from the
// current status. Side-channel actions return the current status unchanged.
func NextStatus(current EventStatus, at ActionType) (EventStatus, bool) {
	if targets, ok := statusTransitions[at]; ok {
		next, legal := targets[current]
		return next, legal
	}
	if from, ok := sideChannelFrom[at]; ok {
		return current, from[current]
	}
	return current, false
}

// IsSideChannel reports whether the action type preserves workflow status.
func IsSideChannel(at ActionType) bool {
	_, ok := sideChannelFrom[at]
	return ok
}

// ComputeStatus folds the accepted actions into the event's current
// workflow status. Illegal entries cannot occur in a well-formed ledger;
// they are skipped rather than guessed at.
func ComputeStatus(actions []Action) EventStatus {
	status := StatusNone
	for _, a := range actions {
		if a.Status != StatusAccepted {
			continue
		}
		if next, ok := NextStatus(status, a.Type); ok {
			status = next
		}
	}
	return status
}
