package cmd

import (
	"log/slog"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/recognition"
	"github.com/kozaktomas/facegate/internal/vision"
)

// loadDetector returns the Haar face detector, or nil when the cascade or OpenCV is missing.
func loadDetector(cfg *config.CameraConfig) recognition.Detector {
	path, err := vision.FindCascade(vision.CascadeCandidates(cfg), nil)
	if err != nil {
		slog.Warn("vision: face detection disabled", "error", err)
		return nil
	}
	detector, err := vision.NewDetector(path)
	if err != nil {
		slog.Warn("vision: face detection disabled", "cascade", path, "error", err)
		return nil
	}
	slog.Info("vision: face cascade loaded", "cascade", path)
	return detector
}
