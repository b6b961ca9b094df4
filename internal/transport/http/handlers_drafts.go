package httptransport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"civreg/internal/event/models"
	"civreg/internal/event/store"
	"civreg/internal/platform/middleware"
	"civreg/pkg/domain"
	dErrors "civreg/pkg/domain-errors"
)

type createDraftRequest struct {
	EventID       string        `json:"eventId"`
	TransactionID string        `json:"transactionId"`
	ActionType    string        `json:"actionType"`
	Declaration   *models.Patch `json:"declaration"`
}

type draftResponse struct {
	EventID       string        `json:"eventId"`
	TransactionID string        `json:"transactionId"`
	ActionType    string        `json:"actionType"`
	Declaration   *models.Patch `json:"declaration,omitempty"`
	CreatedAt     string        `json:"createdAt"`
}

// handleCreateDraft stores work-in-progress declaration data without
// touching the ledger. Saving again under the same transaction id
// overwrites the previous draft.
func (h *Handler) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := middleware.GetIdentity(ctx)
	if !ok {
		writeError(w, dErrors.New(dErrors.CodeInternal, "identity missing from context"))
		return
	}

	var body createDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	eventID, err := domain.ParseEventID(body.EventID)
	if err != nil {
		writeError(w, err)
		return
	}
	txn, err := domain.ParseTransactionID(body.TransactionID)
	if err != nil {
		writeError(w, err)
		return
	}

	saved, err := h.drafts.Create(ctx, store.Draft{
		EventID:       eventID,
		OwnerID:       identity.UserID,
		TransactionID: txn,
		ActionType:    models.ActionType(body.ActionType),
		Declaration:   body.Declaration,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDraftResponse(saved))
}

func (h *Handler) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := middleware.GetIdentity(ctx)
	if !ok {
		writeError(w, dErrors.New(dErrors.CodeInternal, "identity missing from context"))
		return
	}

	drafts, err := h.drafts.List(ctx, identity.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]draftResponse, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, toDraftResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"drafts": out})
}

func (h *Handler) handleDiscardDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := middleware.GetIdentity(ctx)
	if !ok {
		writeError(w, dErrors.New(dErrors.CodeInternal, "identity missing from context"))
		return
	}

	txn, err := domain.ParseTransactionID(chi.URLParam(r, "transactionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.drafts.Discard(ctx, identity.UserID, txn); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toDraftResponse(d store.Draft) draftResponse {
	return draftResponse{
		EventID:       d.EventID.String(),
		TransactionID: string(d.TransactionID),
		ActionType:    string(d.ActionType),
		Declaration:   d.Declaration,
		CreatedAt:     d.CreatedAt.UTC().Format(time.RFC3339),
	}
}
