package handlers

import (
	"net/http"

	"github.com/kozaktomas/facegate/internal/session"
)

// SessionView exposes the running session.
type SessionView interface {
	Snapshot() session.Snapshot
}

// LinkStatus reports the serial link.
type LinkStatus interface {
	Connected() (bool, string)
}

// SerialStatus is the serial part of the status response.
type SerialStatus struct {
	Connected bool   `json:"connected"`
	Port      string `json:"port,omitempty"`
}

// StatusResponse is returned by GET /api/v1/status.
type StatusResponse struct {
	DeviceID string `json:"device_id"`
	session.Snapshot
	Serial SerialStatus `json:"serial"`
}

// StatusHandler serves the controller status.
type StatusHandler struct {
	deviceID string
	session  SessionView
	link     LinkStatus
}

// NewStatusHandler creates a status handler. link may be nil.
func NewStatusHandler(deviceID string, s SessionView, link LinkStatus) *StatusHandler {
	return &StatusHandler{deviceID: deviceID, session: s, link: link}
}

// Get handles GET /api/v1/status.
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		DeviceID: h.deviceID,
		Snapshot: h.session.Snapshot(),
	}
	if h.link != nil {
		resp.Serial.Connected, resp.Serial.Port = h.link.Connected()
	}
	respondJSON(w, http.StatusOK, resp)
}
