package database

import (
	"time"
)

// Sample is one enrolled face image as stored in face_images.
type Sample struct {
	ID         int64
	UserID     int
	UserName   string
	Data       []byte // encoded image, PNG for samples written by enroll
	CapturedAt time.Time
}

// Identity summarises the samples stored for one (user id, name) pair.
type Identity struct {
	UserID       int
	UserName     string
	Samples      int
	LastCaptured time.Time
}
