// Package facecodec converts stored samples and camera regions into the fixed-size
// greyscale images the matchers consume.
package facecodec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// ErrEmptyRegion is returned when a crop rectangle does not intersect the frame.
var ErrEmptyRegion = errors.New("region outside frame")

// Decode decodes an encoded sample (PNG, JPEG, GIF or BMP).
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image data")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Gray converts img to greyscale and scales it to size x size.
func Gray(img image.Image, size int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// Luma converts img to greyscale at full size, rebased to the origin. Channel order never
// leaves Go, so the ITU-R 601 weights apply to the right channels.
func Luma(img image.Image) *image.Gray {
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Resize scales img to size x size keeping colour.
func Resize(img image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// Crop returns the part of frame inside region, copied so the frame buffer can be reused.
func Crop(frame image.Image, region image.Rectangle) (image.Image, error) {
	r := region.Intersect(frame.Bounds())
	if r.Empty() {
		return nil, ErrEmptyRegion
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), frame, r.Min, draw.Src)
	return dst, nil
}

// CenterSquare returns the centred square used when an enrollment shot has no detected face:
// the shorter side capped at maxSize, or the full shorter side when that is below minSize.
func CenterSquare(bounds image.Rectangle, maxSize, minSize int) image.Rectangle {
	w, h := bounds.Dx(), bounds.Dy()
	side := min(w, h, maxSize)
	if side < minSize {
		side = min(w, h)
	}
	x := bounds.Min.X + max(0, w/2-side/2)
	y := bounds.Min.Y + max(0, h/2-side/2)
	return image.Rect(x, y, x+min(side, w-(x-bounds.Min.X)), y+min(side, h-(y-bounds.Min.Y)))
}

// EncodePNG encodes img as PNG, the format samples are stored in.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
