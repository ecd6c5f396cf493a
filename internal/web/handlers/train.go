package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/kozaktomas/facegate/internal/constants"
	"github.com/kozaktomas/facegate/internal/session"
	"github.com/kozaktomas/facegate/internal/training"
)

// Retrainer rebuilds and publishes the recognition model.
type Retrainer interface {
	Retrain(ctx context.Context) (*training.Model, error)
}

// TrainResponse describes a freshly published model.
type TrainResponse struct {
	ModelID   string    `json:"model_id"`
	Matcher   string    `json:"matcher"`
	Classes   int       `json:"classes"`
	Samples   int       `json:"samples"`
	Skipped   int       `json:"skipped"`
	Conflicts []int     `json:"conflicts"`
	TrainedAt time.Time `json:"trained_at"`
}

// TrainHandler triggers a retrain.
type TrainHandler struct {
	trainer Retrainer
	timeout time.Duration
}

// NewTrainHandler creates a train handler.
func NewTrainHandler(trainer Retrainer) *TrainHandler {
	return &TrainHandler{trainer: trainer, timeout: constants.TrainTimeout}
}

// Train handles POST /api/v1/train. The previous model stays active on failure.
func (h *TrainHandler) Train(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	model, err := h.trainer.Retrain(ctx)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrTrainingInProgress):
		respondError(w, http.StatusConflict, "training already in progress")
		return
	case errors.Is(err, training.ErrInsufficientData):
		respondError(w, http.StatusUnprocessableEntity, "no usable training samples")
		return
	default:
		slog.Error("web: retrain failed", "remote", sanitizeForLog(r.RemoteAddr), "error", err)
		respondError(w, http.StatusInternalServerError, "training failed")
		return
	}

	conflicts := model.Conflicts
	if conflicts == nil {
		conflicts = []int{}
	}
	respondJSON(w, http.StatusOK, TrainResponse{
		ModelID:   model.ID.String(),
		Matcher:   string(model.Kind()),
		Classes:   model.Classes(),
		Samples:   model.Loaded,
		Skipped:   model.Skipped,
		Conflicts: conflicts,
		TrainedAt: model.TrainedAt,
	})
}
