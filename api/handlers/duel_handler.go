package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	duelservice "github.com/quizwars/duelsvc/app/modules/duel/application"
	dueltypes "github.com/quizwars/duelsvc/app/modules/duel/domain/types"
	matchmakingservice "github.com/quizwars/duelsvc/app/modules/matchmaking/application"
)

// DuelHandler exposes the duel engine over HTTP. The surface is
// transport-agnostic JSON; the Telegram webapp and the polling clients both
// speak it.
type DuelHandler struct {
	Duels       duelservice.Service
	Matchmaking matchmakingservice.Service
	Logger      *slog.Logger
}

type matchRequest struct {
	UserID   dueltypes.UserID `json:"user_id"`
	Category *string          `json:"category,omitempty"`
}

type matchResponse struct {
	Duel    *dueltypes.Duel `json:"duel"`
	Matched bool            `json:"matched"`
}

// Match pairs the caller via matchmaking, creating a ticket when no open one
// fits.
func (h *DuelHandler) Match(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if !decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "user_id is required", Code: "bad_request"})
		return
	}
	duel, matched, err := h.Matchmaking.Match(r.Context(), req.UserID, req.Category)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	status := http.StatusCreated
	if matched {
		status = http.StatusOK
	}
	writeJSON(w, status, matchResponse{Duel: duel, Matched: matched})
}

type invitationRequest struct {
	UserID         dueltypes.UserID  `json:"user_id"`
	Category       *string           `json:"category,omitempty"`
	TargetUserID   *dueltypes.UserID `json:"target_user_id,omitempty"`
	TargetUsername *string           `json:"target_username,omitempty"`
}

// CreateInvitation creates a code-shareable duel invitation.
func (h *DuelHandler) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	var req invitationRequest
	if !decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "user_id is required", Code: "bad_request"})
		return
	}
	duel, err := h.Matchmaking.CreateInvitation(r.Context(), req.UserID, req.Category, req.TargetUserID, req.TargetUsername)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, duel)
}

type acceptRequest struct {
	UserID   dueltypes.UserID `json:"user_id"`
	Username string           `json:"username,omitempty"`
}

// AcceptInvitation accepts an invitation by code.
func (h *DuelHandler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	var req acceptRequest
	if !decode(w, r, &req) {
		return
	}
	duel, err := h.Matchmaking.AcceptInvitation(r.Context(), code, req.UserID, req.Username)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, duel)
}

type startRequest struct {
	UserID dueltypes.UserID `json:"user_id"`
}

// StartDuel starts a matched duel.
func (h *DuelHandler) StartDuel(w http.ResponseWriter, r *http.Request) {
	duelID, ok := duelIDParam(w, r)
	if !ok {
		return
	}
	var req startRequest
	if !decode(w, r, &req) {
		return
	}
	snapshot, err := h.Duels.StartDuel(r.Context(), duelID, req.UserID)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

type answerRequest struct {
	UserID   dueltypes.UserID `json:"user_id"`
	AnswerID *string          `json:"answer_id,omitempty"`
}

// SubmitAnswer records an answer for a round. Stale actions get a snapshot
// attached so the client can reconcile immediately.
func (h *DuelHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	duelID, ok := duelIDParam(w, r)
	if !ok {
		return
	}
	roundNumber, err := strconv.Atoi(chi.URLParam(r, "roundNumber"))
	if err != nil || roundNumber < 1 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid round number", Code: "bad_request"})
		return
	}
	var req answerRequest
	if !decode(w, r, &req) {
		return
	}
	outcome, err := h.Duels.SubmitAnswer(r.Context(), duelID, roundNumber, req.UserID, req.AnswerID)
	if err != nil {
		writeError(w, err, h.staleSnapshot(r, duelID, req.UserID, err))
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// GetStatus is the polling fallback: a full reconciliation snapshot.
func (h *DuelHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	duelID, ok := duelIDParam(w, r)
	if !ok {
		return
	}
	userID := dueltypes.UserID(r.URL.Query().Get("user_id"))
	snapshot, err := h.Duels.GetStatus(r.Context(), duelID, userID)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// CancelWaiting cancels a waiting duel.
func (h *DuelHandler) CancelWaiting(w http.ResponseWriter, r *http.Request) {
	duelID, ok := duelIDParam(w, r)
	if !ok {
		return
	}
	userID := dueltypes.UserID(r.URL.Query().Get("user_id"))
	if err := h.Duels.CancelWaiting(r.Context(), duelID, userID); err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// CancelAllActive is the administrative bulk cancel.
func (h *DuelHandler) CancelAllActive(w http.ResponseWriter, r *http.Request) {
	cancelled, err := h.Duels.CancelAllActive(r.Context())
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cancelled": cancelled})
}

// staleSnapshot fetches a best-effort snapshot for stale game actions so the
// error response is immediately reconcilable.
func (h *DuelHandler) staleSnapshot(r *http.Request, duelID uuid.UUID, userID dueltypes.UserID, cause error) *dueltypes.DuelSnapshot {
	stale := errors.Is(cause, dueltypes.ErrRoundClosed) ||
		errors.Is(cause, dueltypes.ErrAlreadyAnswered) ||
		errors.Is(cause, dueltypes.ErrDuelNotActive) ||
		errors.Is(cause, dueltypes.ErrConflict)
	if !stale {
		return nil
	}
	snapshot, err := h.Duels.GetStatus(r.Context(), duelID, userID)
	if err != nil {
		h.Logger.WarnContext(r.Context(), "Failed to fetch snapshot for stale action",
			slog.String("duel_id", duelID.String()),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return snapshot
}

func duelIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	duelID, err := uuid.Parse(chi.URLParam(r, "duelID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid duel id", Code: "bad_request"})
		return uuid.Nil, false
	}
	return duelID, true
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "bad_request"})
		return false
	}
	return true
}
