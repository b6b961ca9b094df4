package models

import "civreg/pkg/domain"

// ProjectDeclaration folds the ordered accepted actions into the event's
// materialized declaration. Correction requests are held back until an
// approval referencing them is accepted; a rejected correction never touches
// the declaration.
func ProjectDeclaration(actions []Action) Declaration {
	byID := make(map[domain.ActionID]Action, len(actions))
	for _, a := range actions {
		byID[a.ID] = a
	}

	var d Declaration
	for _, a := range actions {
		if a.Status != StatusAccepted {
			continue
		}
		switch a.Type {
		case ActionAssign, ActionUnassign, ActionReject,
			ActionPrintCertificate, ActionCorrectionReject:
			// No declaration payload by definition.
		case ActionCorrectionReq:
			// Proposed changes apply only on approval.
		case ActionCorrectionAppr:
			if req, ok := byID[a.RequestID]; ok {
				d = d.Apply(req.Declaration)
			}
			d = d.Apply(a.Declaration)
		default:
			d = d.Apply(a.Declaration)
		}
	}
	return d
}

// PendingCorrection returns the accepted CORRECTION_REQUEST that has not yet
// been settled by an accepted approve or reject.
func PendingCorrection(actions []Action) (Action, bool) {
	settled := make(map[domain.ActionID]bool)
	for _, a := range actions {
		if a.Status != StatusAccepted {
			continue
		}
		if a.Type == ActionCorrectionAppr || a.Type == ActionCorrectionReject {
			settled[a.RequestID] = true
		}
	}
	// Walk backwards: at most one request can be pending at a time.
	for i := len(actions) - 1; i >= 0; i-- {
		a := actions[i]
		if a.Status == StatusAccepted && a.Type == ActionCorrectionReq && !settled[a.ID] {
			return a, true
		}
	}
	return Action{}, false
}
