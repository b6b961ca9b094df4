package httptransport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"civreg/internal/event/ledger"
	"civreg/internal/event/models"
	"civreg/internal/platform/middleware"
	"civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"
)

type submitActionRequest struct {
	Type               string         `json:"type"`
	EventID            string         `json:"eventId,omitempty"`
	EventTransactionID string         `json:"eventTransactionId,omitempty"`
	EventType          string         `json:"eventType,omitempty"`
	Declaration        *models.Patch  `json:"declaration,omitempty"`
	Annotation         map[string]any `json:"annotation,omitempty"`
	AssignedTo         string         `json:"assignedTo,omitempty"`
	RequestID          string         `json:"requestId,omitempty"`
	TransactionID      string         `json:"transactionId"`
}

type submitActionResponse struct {
	EventID     string             `json:"eventId"`
	ActionID    string             `json:"actionId,omitempty"`
	Status      models.EventStatus `json:"status"`
	Declaration models.Declaration `json:"declaration"`
	Version     int                `json:"version"`
	Replayed    bool               `json:"replayed"`
	NoOp        bool               `json:"noOp"`
}

// handleSubmitAction is the single write endpoint: every action type flows
// through here and converges in the ledger.
func (h *Handler) handleSubmitAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := middleware.GetIdentity(ctx)
	if !ok {
		writeError(w, dErrors.New(dErrors.CodeInternal, "identity missing from context"))
		return
	}

	var body submitActionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	req, err := h.buildSubmitRequest(identity, body)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.ledger.Submit(ctx, req)
	if err != nil && dErrors.HasCode(err, dErrors.CodeNotYetCreated) && h.awaitMaxWait > 0 {
		// The CREATE this submission points at is still in flight. Wait for
		// it to land rather than bouncing the retry back to the caller.
		res, err = h.awaitAndResubmit(r, req)
	}
	if err != nil {
		h.logger.WarnContext(ctx, "action rejected",
			"request_id", middleware.GetRequestID(ctx),
			"action_type", string(req.Type),
			"error", err.Error(),
		)
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if res.Action != nil && !res.Replayed && res.Action.Sequence == 1 {
		status = http.StatusCreated
	}
	writeJSON(w, status, toSubmitResponse(res))
}

func (h *Handler) awaitAndResubmit(r *http.Request, req ledger.SubmitRequest) (*ledger.SubmitResult, error) {
	ctx := r.Context()
	eventID, err := h.ledger.Resolver().Await(ctx, req.EventTransactionID, h.awaitMaxWait)
	if err != nil {
		return nil, err
	}
	req.EventID = eventID
	req.EventTransactionID = ""
	return h.ledger.Submit(ctx, req)
}

func (h *Handler) buildSubmitRequest(identity middleware.Identity, body submitActionRequest) (ledger.SubmitRequest, error) {
	req := ledger.SubmitRequest{
		UserID:      identity.UserID,
		Scopes:      identity.Scopes,
		Type:        models.ActionType(body.Type),
		EventType:   models.EventType(body.EventType),
		Declaration: body.Declaration,
		Annotation:  body.Annotation,
	}

	txn, err := domain.ParseTransactionID(body.TransactionID)
	if err != nil {
		return req, err
	}
	req.TransactionID = txn

	if body.EventID != "" {
		if req.EventID, err = domain.ParseEventID(body.EventID); err != nil {
			return req, err
		}
	}
	if body.EventTransactionID != "" {
		if req.EventTransactionID, err = domain.ParseTransactionID(body.EventTransactionID); err != nil {
			return req, err
		}
	}
	if body.AssignedTo != "" {
		if req.AssignedTo, err = domain.ParseUserID(body.AssignedTo); err != nil {
			return req, err
		}
	}
	if body.RequestID != "" {
		if req.RequestID, err = domain.ParseActionID(body.RequestID); err != nil {
			return req, err
		}
	}
	return req, nil
}

func toSubmitResponse(res *ledger.SubmitResult) submitActionResponse {
	out := submitActionResponse{
		EventID:     res.Event.ID.String(),
		Status:      res.Status,
		Declaration: res.Declaration,
		Version:     res.Event.Version,
		Replayed:    res.Replayed,
		NoOp:        res.NoOp,
	}
	if res.Action != nil {
		out.ActionID = res.Action.ID.String()
	}
	return out
}

type assignRequest struct {
	TransactionID string `json:"transactionId"`
	AssignedTo    string `json:"assignedTo,omitempty"`
}

// handleAssign and handleUnassign are convenience routes over the single
// action endpoint for the two most common workqueue operations.
func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	h.submitAssignment(w, r, models.ActionAssign)
}

func (h *Handler) handleUnassign(w http.ResponseWriter, r *http.Request) {
	h.submitAssignment(w, r, models.ActionUnassign)
}

func (h *Handler) submitAssignment(w http.ResponseWriter, r *http.Request, actionType models.ActionType) {
	ctx := r.Context()
	identity, ok := middleware.GetIdentity(ctx)
	if !ok {
		writeError(w, dErrors.New(dErrors.CodeInternal, "identity missing from context"))
		return
	}

	eventID, err := domain.ParseEventID(chi.URLParam(r, "eventID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var body assignRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	req := ledger.SubmitRequest{
		UserID:  identity.UserID,
		Scopes:  identity.Scopes,
		EventID: eventID,
		Type:    actionType,
	}
	if req.TransactionID, err = domain.ParseTransactionID(body.TransactionID); err != nil {
		writeError(w, err)
		return
	}
	if body.AssignedTo != "" {
		if req.AssignedTo, err = domain.ParseUserID(body.AssignedTo); err != nil {
			writeError(w, err)
			return
		}
	}

	res, err := h.ledger.Submit(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubmitResponse(res))
}

// handleGetEvent returns the materialized view plus the raw action history.
func (h *Handler) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	eventID, err := domain.ParseEventID(chi.URLParam(r, "eventID"))
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := h.ledger.GetView(ctx, eventID)
	if err != nil {
		writeError(w, err)
		return
	}
	ev, err := h.ledger.GetEvent(ctx, eventID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"event":   view,
		"actions": ev.Actions,
	})
}

// handleDeleteEvent submits a DELETE action for the event. The transaction
// id rides in the query string because DELETE bodies are unreliable.
func (h *Handler) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := middleware.GetIdentity(ctx)
	if !ok {
		writeError(w, dErrors.New(dErrors.CodeInternal, "identity missing from context"))
		return
	}

	eventID, err := domain.ParseEventID(chi.URLParam(r, "eventID"))
	if err != nil {
		writeError(w, err)
		return
	}
	txn, err := domain.ParseTransactionID(r.URL.Query().Get("transactionId"))
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := h.ledger.Submit(ctx, ledger.SubmitRequest{
		UserID:        identity.UserID,
		Scopes:        identity.Scopes,
		EventID:       eventID,
		Type:          models.ActionDelete,
		TransactionID: txn,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubmitResponse(res))
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := h.checker.Run(r.Context())
	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}
