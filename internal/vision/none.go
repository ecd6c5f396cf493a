//go:build !opencv

package vision

import (
	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/recognition"
)

// Supported reports whether OpenCV capture and detection are compiled in.
func Supported() bool { return false }

// NewOpener returns an Opener that always fails with ErrUnsupported.
func NewOpener(*config.CameraConfig) Opener {
	return func() (Source, error) { return nil, ErrUnsupported }
}

// NewDetector always fails with ErrUnsupported.
func NewDetector(string) (recognition.Detector, error) {
	return nil, ErrUnsupported
}
