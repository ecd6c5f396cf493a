// Package constants provides shared constants used across the codebase.
package constants

import "time"

// Web server constants
const (
	// DefaultWebPort is the port of the status API
	DefaultWebPort = 8080

	// DefaultWebHost is the bind address of the status API
	DefaultWebHost = "0.0.0.0"

	// TrainTimeout bounds an operator-triggered retrain
	TrainTimeout = 2 * time.Minute
)

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100

	// LineQueueBuffer is the buffer size of the inbound serial line queue
	LineQueueBuffer = 32
)
