// Package matcher provides the interchangeable face recognisers behind the decision engine.
//
// Both implementations share one contract: faces are normalised by Prepare to a fixed-size
// greyscale image, and Predict returns the closest label with a distance score where
// lower means more similar.
package matcher

import (
	"errors"
	"fmt"
	"image"

	"github.com/kozaktomas/facegate/internal/constants"
	"github.com/kozaktomas/facegate/internal/facecodec"
	"github.com/kozaktomas/facegate/internal/labels"
)

// Kind selects a matcher implementation.
type Kind string

const (
	KindLBPH    Kind = "lbph"    // local binary pattern histograms, chi-square distance
	KindNearest Kind = "nearest" // nearest neighbour on raw pixels, L2 distance
)

var (
	// ErrNotTrained is returned by Predict before a successful Train.
	ErrNotTrained = errors.New("matcher not trained")
	// ErrEmptyTrainingSet is returned by Train when no samples are given.
	ErrEmptyTrainingSet = errors.New("empty training set")
	// ErrSizeMismatch is returned when a face was not produced by Prepare.
	ErrSizeMismatch = errors.New("face size does not match matcher input")
)

// Prediction is the closest enrolled label and its distance.
type Prediction struct {
	Label labels.Label
	Score float64
}

// Matcher is a trainable face recogniser.
type Matcher interface {
	// Kind identifies the implementation.
	Kind() Kind
	// Prepare normalises any image to the matcher's input format.
	Prepare(img image.Image) *image.Gray
	// Train replaces the model with faces[i] labelled lbls[i].
	Train(faces []*image.Gray, lbls []labels.Label) error
	// Predict returns the closest label for a prepared face.
	Predict(face *image.Gray) (Prediction, error)
}

// Factory creates untrained matchers; each training pass gets a fresh one.
type Factory func() Matcher

// NewFactory returns a factory for the given kind and face size.
func NewFactory(kind Kind, faceSize int) (Factory, error) {
	if faceSize <= 0 {
		faceSize = constants.FaceSize
	}
	switch kind {
	case KindLBPH:
		return func() Matcher { return NewLBPH(faceSize) }, nil
	case KindNearest:
		return func() Matcher { return NewNearest(faceSize) }, nil
	default:
		return nil, fmt.Errorf("unknown matcher kind %q", kind)
	}
}

func prepare(img image.Image, size int) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds() == image.Rect(0, 0, size, size) {
		return g
	}
	return facecodec.Gray(img, size)
}

func validateTrainingSet(faces []*image.Gray, lbls []labels.Label, size int) error {
	if len(faces) == 0 {
		return ErrEmptyTrainingSet
	}
	if len(faces) != len(lbls) {
		return fmt.Errorf("got %d faces but %d labels", len(faces), len(lbls))
	}
	for i, f := range faces {
		if err := checkSize(f, size); err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
	}
	return nil
}

func checkSize(face *image.Gray, size int) error {
	if face == nil || face.Bounds().Dx() != size || face.Bounds().Dy() != size {
		return ErrSizeMismatch
	}
	return nil
}
