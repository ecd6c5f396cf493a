// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Frame loop constants
const (
	// TickInterval is the period of the capture/decide/actuate loop (~30fps)
	TickInterval = 33 * time.Millisecond

	// EmptyFrameLimit is the number of consecutive empty reads before the
	// capture source is reopened (~0.5s at TickInterval)
	EmptyFrameLimit = 15
)

// Face sample constants
const (
	// FaceSize is the edge length in pixels of normalised face images
	FaceSize = 128

	// EnrollCropMax is the largest centre crop taken when an enrollment image has no face region
	EnrollCropMax = 256

	// UnknownName is the display name used when a predicted label has no mapping
	UnknownName = "unknown"
)

// Door actuation constants
const (
	// DefaultOpenConfirmFrames is the number of consecutive accepted frames required before OPEN
	DefaultOpenConfirmFrames = 5

	// DefaultCloseGrace is the time since the last accepted frame before CLOSE
	DefaultCloseGrace = 3000 * time.Millisecond
)

// Serial link constants
const (
	// DefaultBaudRate matches the HC-06 module factory setting
	DefaultBaudRate = 9600

	// ReconnectDelay is the wait before the single reopen attempt after a port fault
	ReconnectDelay = 500 * time.Millisecond

	// WriteWait bounds how long a send waits for the OS to accept the bytes
	WriteWait = 10 * time.Millisecond

	// ReadTimeout is the poll interval of the inbound line reader
	ReadTimeout = 100 * time.Millisecond
)

// Device defaults
const (
	// DefaultDeviceID identifies this controller in published events
	DefaultDeviceID = "front-door-01"
)
