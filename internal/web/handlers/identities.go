package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/training"
)

// IdentityResponse is one enrolled identity.
type IdentityResponse struct {
	UserID       int       `json:"user_id"`
	UserName     string    `json:"user_name"`
	Samples      int       `json:"samples"`
	LastCaptured time.Time `json:"last_captured"`
	Conflicted   bool      `json:"conflicted"`
}

// IdentitiesHandler lists enrolled identities.
type IdentitiesHandler struct {
	store database.SampleReader
}

// NewIdentitiesHandler creates an identities handler.
func NewIdentitiesHandler(store database.SampleReader) *IdentitiesHandler {
	return &IdentitiesHandler{store: store}
}

// List handles GET /api/v1/identities.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	identities, conflicts, err := training.Survey(r.Context(), h.store)
	if err != nil {
		slog.Error("web: list identities", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list identities")
		return
	}

	resp := make([]IdentityResponse, 0, len(identities))
	for _, ident := range identities {
		resp = append(resp, IdentityResponse{
			UserID:       ident.UserID,
			UserName:     ident.UserName,
			Samples:      ident.Samples,
			LastCaptured: ident.LastCaptured,
			Conflicted:   conflicts.Contains(ident.UserID),
		})
	}
	respondJSON(w, http.StatusOK, resp)
}
