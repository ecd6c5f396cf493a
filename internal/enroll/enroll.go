// Package enroll imports face images into the sample store.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/kozaktomas/facegate/internal/constants"
	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/facecodec"
	"github.com/kozaktomas/facegate/internal/recognition"
)

// ErrInvalidIdentity is returned for a non-positive id or an empty name.
var ErrInvalidIdentity = errors.New("identity needs a positive id and a name")

// Importer stores enrollment shots as size x size colour PNGs.
type Importer struct {
	store    database.SampleWriter
	detector recognition.Detector
	size     int
	now      func() time.Time
}

// NewImporter creates an importer. With a nil detector every shot is centre-cropped.
func NewImporter(store database.SampleWriter, detector recognition.Detector) *Importer {
	return &Importer{store: store, detector: detector, size: constants.FaceSize, now: time.Now}
}

// Result describes one imported sample.
type Result struct {
	ID       int64
	Region   image.Rectangle
	Detected bool // region came from the face detector
}

// Import crops the largest detected face, or the centre square when none is found,
// and stores it for the given identity.
func (im *Importer) Import(ctx context.Context, userID int, userName string, data []byte) (Result, error) {
	userName = strings.TrimSpace(userName)
	if userID <= 0 || userName == "" {
		return Result{}, ErrInvalidIdentity
	}

	img, err := facecodec.Decode(data)
	if err != nil {
		return Result{}, err
	}

	var res Result
	if im.detector != nil {
		res.Region, res.Detected = recognition.LargestRegion(im.detector.Detect(img))
	}
	if !res.Detected {
		res.Region = facecodec.CenterSquare(img.Bounds(), constants.EnrollCropMax, im.size)
	}

	roi, err := facecodec.Crop(img, res.Region)
	if err != nil {
		return Result{}, err
	}
	encoded, err := facecodec.EncodePNG(facecodec.Resize(roi, im.size))
	if err != nil {
		return Result{}, err
	}

	res.ID, err = im.store.InsertSample(ctx, database.Sample{
		UserID:     userID,
		UserName:   userName,
		Data:       encoded,
		CapturedAt: im.now().UTC(),
	})
	if err != nil {
		return Result{}, fmt.Errorf("storing sample: %w", err)
	}
	return res, nil
}
