package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	dueltypes "github.com/quizwars/duelsvc/app/modules/duel/domain/types"
)

// errorResponse is the JSON error envelope. Snapshot is attached for stale
// game actions so clients can reconcile without a second request.
type errorResponse struct {
	Error    string                  `json:"error"`
	Code     string                  `json:"code"`
	Snapshot *dueltypes.DuelSnapshot `json:"snapshot,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// errorStatus maps the domain error taxonomy to HTTP status codes and a
// machine-readable code string.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, dueltypes.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, dueltypes.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, dueltypes.ErrAlreadyAnswered):
		return http.StatusConflict, "already_answered"
	case errors.Is(err, dueltypes.ErrRoundClosed):
		return http.StatusConflict, "round_closed"
	case errors.Is(err, dueltypes.ErrDuelNotActive):
		return http.StatusConflict, "duel_not_active"
	case errors.Is(err, dueltypes.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, dueltypes.ErrInsufficientContent):
		return http.StatusUnprocessableEntity, "insufficient_content"
	}
	return http.StatusInternalServerError, "internal"
}

func writeError(w http.ResponseWriter, err error, snapshot *dueltypes.DuelSnapshot) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		// Do not leak storage details to clients.
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg, Code: code, Snapshot: snapshot})
}
