package frame

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"time"

	"golang.org/x/image/draw"
)

// maxDetectorDim caps the longer side of frames shipped to detection
// services; cameras commonly produce 1080p and the models downscale anyway.
const maxDetectorDim = 640

// Frame is one captured video frame.
type Frame struct {
	Image      image.Image
	CapturedAt time.Time
}

// Decode builds a frame from encoded image bytes (JPEG/PNG/GIF).
func Decode(data []byte) (*Frame, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return &Frame{Image: img, CapturedAt: time.Now().UTC()}, nil
}

// Empty reports whether the frame has no readable pixels, which happens
// while a video source is still warming up.
func (f *Frame) Empty() bool {
	if f == nil || f.Image == nil {
		return true
	}
	b := f.Image.Bounds()
	return b.Dx() <= 0 || b.Dy() <= 0
}

// JPEG encodes the frame as JPEG, downscaling so the longer side does not
// exceed maxDetectorDim.
func (f *Frame) JPEG() ([]byte, error) {
	if f.Empty() {
		return nil, fmt.Errorf("empty frame")
	}
	img := f.Image
	b := img.Bounds()
	if w, h := b.Dx(), b.Dy(); w > maxDetectorDim || h > maxDetectorDim {
		scale := float64(maxDetectorDim) / float64(max(w, h))
		dst := image.NewRGBA(image.Rect(0, 0, int(float64(w)*scale), int(float64(h)*scale)))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
		img = dst
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// DataURL encodes the frame as a base64 JPEG data URL for detector payloads.
func (f *Frame) DataURL() (string, error) {
	data, err := f.JPEG()
	if err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data), nil
}
