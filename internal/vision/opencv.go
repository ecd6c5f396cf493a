//go:build opencv

package vision

import (
	"fmt"
	"image"
	"log/slog"

	"gocv.io/x/gocv"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/facecodec"
	"github.com/kozaktomas/facegate/internal/recognition"
)

// Haar cascade parameters used for every frame.
const (
	scaleFactor  = 1.1
	minNeighbors = 3
	minFaceSize  = 60
)

// Supported reports whether OpenCV capture and detection are compiled in.
func Supported() bool { return true }

type videoSource struct {
	name string
	cap  *gocv.VideoCapture
	mat  gocv.Mat
}

func (s *videoSource) Read() (image.Image, bool) {
	if ok := s.cap.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, false
	}
	img, err := s.mat.ToImage()
	if err != nil {
		slog.Debug("vision: convert frame", "source", s.name, "error", err)
		return nil, false
	}
	return img, true
}

func (s *videoSource) Name() string { return s.name }

func (s *videoSource) Close() error {
	_ = s.mat.Close()
	return s.cap.Close()
}

// NewOpener returns an Opener that tries stream URLs (FFmpeg, then GStreamer) and then
// local device indexes.
func NewOpener(cfg *config.CameraConfig) Opener {
	urls := append([]string(nil), cfg.StreamURLs...)
	indexes := append([]int(nil), cfg.Indexes...)
	return func() (Source, error) {
		for _, url := range urls {
			for _, api := range []gocv.VideoCaptureAPI{gocv.VideoCaptureFFmpeg, gocv.VideoCaptureGstreamer} {
				vc, err := gocv.OpenVideoCaptureWithAPI(url, api)
				if err != nil || !vc.IsOpened() {
					if vc != nil {
						_ = vc.Close()
					}
					continue
				}
				vc.Set(gocv.VideoCaptureBufferSize, 1)
				return &videoSource{name: fmt.Sprintf("%s (%s)", url, apiName(api)), cap: vc, mat: gocv.NewMat()}, nil
			}
		}
		for _, idx := range indexes {
			vc, err := gocv.OpenVideoCapture(idx)
			if err != nil || !vc.IsOpened() {
				if vc != nil {
					_ = vc.Close()
				}
				continue
			}
			return &videoSource{name: fmt.Sprintf("index=%d", idx), cap: vc, mat: gocv.NewMat()}, nil
		}
		return nil, ErrNoCamera
	}
}

func apiName(api gocv.VideoCaptureAPI) string {
	if api == gocv.VideoCaptureGstreamer {
		return "gstreamer"
	}
	return "ffmpeg"
}

// CascadeDetector finds faces with a Haar cascade.
type CascadeDetector struct {
	classifier gocv.CascadeClassifier
}

// NewDetector loads the cascade at path.
func NewDetector(path string) (recognition.Detector, error) {
	c := gocv.NewCascadeClassifier()
	if !c.Load(path) {
		_ = c.Close()
		return nil, fmt.Errorf("load cascade %s", path)
	}
	return &CascadeDetector{classifier: c}, nil
}

// Detect returns face rectangles in frame coordinates.
func (d *CascadeDetector) Detect(frame image.Image) []image.Rectangle {
	gray, err := gocv.ImageGrayToMatGray(facecodec.Luma(frame))
	if err != nil {
		return nil
	}
	defer gray.Close()
	gocv.EqualizeHist(gray, &gray)

	rects := d.classifier.DetectMultiScaleWithParams(gray, scaleFactor, minNeighbors, 0,
		image.Pt(minFaceSize, minFaceSize), image.Pt(0, 0))

	offset := frame.Bounds().Min
	for i := range rects {
		rects[i] = rects[i].Add(offset)
	}
	return rects
}

// Close releases the classifier.
func (d *CascadeDetector) Close() error {
	return d.classifier.Close()
}
