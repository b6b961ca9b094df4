package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "civreg/pkg/domain-errors"
)

type errorBody struct {
	Error   string               `json:"error"`
	Message string               `json:"message,omitempty"`
	Fields  []dErrors.FieldError `json:"fields,omitempty"`
}

// writeError centralizes domain error translation so every handler emits
// the same JSON envelope.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := errorBody{Error: string(dErrors.CodeInternal)}

	var de *dErrors.Error
	if errors.As(err, &de) {
		status = dErrors.ToHTTPStatus(de.Code)
		body = errorBody{Error: string(de.Code), Message: de.Message, Fields: de.Fields}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
