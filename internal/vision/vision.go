// Package vision finds the camera and the face cascade and keeps the capture source alive.
//
// The OpenCV-backed source and detector are compiled with the "opencv" build tag; without it
// the controller runs with no camera.
package vision

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/constants"
)

// CascadeFile is the frontal face Haar cascade looked up next to the binary and in the cwd.
const CascadeFile = "haarcascade_frontalface_default.xml"

var (
	// ErrNoCamera is returned when no stream URL or local index could be opened.
	ErrNoCamera = errors.New("no camera available")
	// ErrNoCascade is returned when no cascade file exists in any candidate location.
	ErrNoCascade = errors.New("face cascade not found")
	// ErrUnsupported is returned when the binary was built without OpenCV.
	ErrUnsupported = errors.New("built without opencv support")
)

// Source yields frames. Read returns ok=false for an empty frame.
type Source interface {
	Read() (frame image.Image, ok bool)
	Name() string
	Close() error
}

// Opener opens the best available source.
type Opener func() (Source, error)

// CascadeCandidates returns the cascade lookup order: explicit path, executable
// directory, working directory, then the configured system locations.
func CascadeCandidates(cfg *config.CameraConfig) []string {
	var out []string
	if cfg.CascadePath != "" {
		out = append(out, cfg.CascadePath)
	}
	if exe, err := os.Executable(); err == nil {
		out = append(out, filepath.Join(filepath.Dir(exe), CascadeFile))
	}
	if wd, err := os.Getwd(); err == nil {
		out = append(out, filepath.Join(wd, CascadeFile))
	}
	return append(out, cfg.CascadeCandidates...)
}

// FindCascade returns the first candidate that exists.
func FindCascade(candidates []string, exists func(string) bool) (string, error) {
	if exists == nil {
		exists = fileExists
	}
	for _, c := range candidates {
		if exists(c) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: tried %d locations", ErrNoCascade, len(candidates))
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

// Camera supervises a Source and reopens it after a run of empty frames.
type Camera struct {
	open  Opener
	limit int

	src     Source
	empties int
	reopens int
}

// NewCamera wraps open. The source is opened lazily on the first Read.
func NewCamera(open Opener, emptyFrameLimit int) *Camera {
	if emptyFrameLimit <= 0 {
		emptyFrameLimit = constants.EmptyFrameLimit
	}
	return &Camera{open: open, limit: emptyFrameLimit}
}

// Read returns the next frame. After limit consecutive empty reads the source is
// closed and reopened through the full discovery order; reopened reports that.
func (c *Camera) Read() (frame image.Image, reopened bool) {
	if c.src == nil {
		c.empties++
		if c.empties >= c.limit {
			return nil, c.reopen()
		}
		return nil, false
	}

	frame, ok := c.src.Read()
	if ok && frame != nil {
		c.empties = 0
		return frame, false
	}

	c.empties++
	if c.empties < c.limit {
		return nil, false
	}
	slog.Warn("vision: frames stopped, reopening camera", "source", c.src.Name(), "empty_frames", c.empties)
	return nil, c.reopen()
}

// Open opens the source immediately.
func (c *Camera) Open() error {
	src, err := c.open()
	if err != nil {
		return err
	}
	c.src = src
	c.empties = 0
	slog.Info("vision: camera opened", "source", src.Name())
	return nil
}

func (c *Camera) reopen() bool {
	c.empties = 0
	c.reopens++
	if c.src != nil {
		if err := c.src.Close(); err != nil {
			slog.Debug("vision: close camera", "error", err)
		}
		c.src = nil
	}
	if err := c.Open(); err != nil {
		slog.Warn("vision: reopen camera failed", "error", err)
	}
	return true
}

// Name returns the current source name, or "" when closed.
func (c *Camera) Name() string {
	if c.src == nil {
		return ""
	}
	return c.src.Name()
}


// Close releases the source.
func (c *Camera) Close() error {
	if c.src == nil {
		return nil
	}
	err := c.src.Close()
	c.src = nil
	return err
}
