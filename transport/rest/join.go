package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/apperror"
)

const maxRequestBody = 1 << 12

type JoinRequest struct {
	GameID   string `json:"game_id"`
	PlayerID string `json:"player_id"`
}

type JoinResponse struct {
	Accepted bool `json:"accepted"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type JoinHandler struct {
	logger      *zap.Logger
	coordinator coordinator
}

func NewJoinHandler(logger *zap.Logger, coordinator coordinator) *JoinHandler {
	return &JoinHandler{
		logger:      logger,
		coordinator: coordinator,
	}
}

// Join runs the conditional slot claim on behalf of a remote session.
func (that *JoinHandler) Join(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With(zap.String("method", "Join"))

	var request JoinRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&request); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	accepted, err := that.coordinator.TryJoin(r.Context(), request.GameID, request.PlayerID)
	if errors.Is(err, apperror.ErrInvalidArgs) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if err != nil {
		log.Error("failed to join game", zap.String("game_id", request.GameID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to join game"})
		return
	}

	writeJSON(w, http.StatusOK, JoinResponse{Accepted: accepted})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
