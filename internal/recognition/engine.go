// Package recognition turns a camera frame into an accept/reject verdict using the
// currently published model.
package recognition

import (
	"fmt"
	"image"
	"sync/atomic"

	"github.com/kozaktomas/facegate/internal/constants"
	"github.com/kozaktomas/facegate/internal/facecodec"
	"github.com/kozaktomas/facegate/internal/training"
)

// Detector finds candidate face regions in a frame.
type Detector interface {
	Detect(frame image.Image) []image.Rectangle
}

// Reason explains a verdict.
type Reason string

const (
	ReasonAccepted              Reason = "accepted"
	ReasonRejected              Reason = "rejected" // score above threshold
	ReasonNoFace                Reason = "no_face"
	ReasonDetectorUnavailable   Reason = "detector_unavailable"
	ReasonPredictionUnavailable Reason = "prediction_unavailable"
	ReasonUnknownLabel          Reason = "unknown_label"
)

// Verdict is the per-frame recognition result.
type Verdict struct {
	Matched bool
	Name    string
	Label   int
	Score   float64
	Region  image.Rectangle
	Reason  Reason
}

// FaceFound reports whether a region was detected and scored.
func (v Verdict) FaceFound() bool {
	switch v.Reason {
	case ReasonAccepted, ReasonRejected, ReasonUnknownLabel:
		return true
	}
	return false
}

func (v Verdict) String() string {
	switch v.Reason {
	case ReasonAccepted:
		return fmt.Sprintf("recognised: %s (label=%d, score=%.1f)", v.Name, v.Label, v.Score)
	case ReasonRejected, ReasonUnknownLabel:
		return fmt.Sprintf("rejected: %s (label=%d, score=%.1f)", v.Name, v.Label, v.Score)
	default:
		return string(v.Reason)
	}
}

// Engine decides whether the largest face in a frame belongs to an enrolled identity.
// The model is swapped atomically so a retrain never blocks the frame loop.
type Engine struct {
	detector  Detector
	threshold float64
	model     atomic.Pointer[training.Model]
}

// NewEngine creates an engine. A nil detector leaves the engine in preview-only mode.
func NewEngine(detector Detector, threshold float64) *Engine {
	return &Engine{detector: detector, threshold: threshold}
}

// Publish makes m the active model. Readers see either the old or the new model, never a mix.
func (e *Engine) Publish(m *training.Model) {
	e.model.Store(m)
}

// Model returns the active model, or nil when recognition is disabled.
func (e *Engine) Model() *training.Model {
	return e.model.Load()
}

// Threshold returns the maximum accepted score.
func (e *Engine) Threshold() float64 {
	return e.threshold
}

// DetectorAvailable reports whether face detection is possible.
func (e *Engine) DetectorAvailable() bool {
	return e.detector != nil
}

// Decide scores the largest detected face. It never calls the matcher when no face is found.
func (e *Engine) Decide(frame image.Image) Verdict {
	if e.detector == nil {
		return Verdict{Reason: ReasonDetectorUnavailable}
	}

	region, ok := LargestRegion(e.detector.Detect(frame))
	if !ok {
		return Verdict{Reason: ReasonNoFace}
	}

	model := e.model.Load()
	if model == nil {
		return Verdict{Region: region, Reason: ReasonPredictionUnavailable}
	}

	roi, err := facecodec.Crop(frame, region)
	if err != nil {
		return Verdict{Region: region, Reason: ReasonPredictionUnavailable}
	}

	p, err := model.Matcher.Predict(model.Matcher.Prepare(roi))
	if err != nil {
		return Verdict{Region: region, Reason: ReasonPredictionUnavailable}
	}

	v := Verdict{Label: int(p.Label), Score: p.Score, Region: region}
	name, known := model.Labels.Name(p.Label)
	switch {
	case !known:
		v.Name = constants.UnknownName
		v.Reason = ReasonUnknownLabel
	case p.Score <= e.threshold:
		v.Name = name
		v.Matched = true
		v.Reason = ReasonAccepted
	default:
		v.Name = name
		v.Reason = ReasonRejected
	}
	return v
}

// LargestRegion returns the region with the greatest area; the first one wins ties.
func LargestRegion(regions []image.Rectangle) (image.Rectangle, bool) {
	var (
		best     image.Rectangle
		bestArea = -1
	)
	for _, r := range regions {
		if r.Empty() {
			continue
		}
		if area := r.Dx() * r.Dy(); area > bestArea {
			best, bestArea = r, area
		}
	}
	return best, bestArea >= 0
}
