// Package qrscan locates and decodes QR symbols in captured video frames.
package qrscan

import (
	"image"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"sitecheck/internal/frame"
)

// Result is the outcome of scanning one frame. A frame without a readable
// symbol is Found=false: that is "keep trying", never an error.
type Result struct {
	Found   bool
	Payload string
	Quad    []image.Point
}

// Decoder extracts QR payloads from frames.
type Decoder struct {
	reader gozxing.Reader
}

// NewDecoder creates a decoder.
func NewDecoder() *Decoder {
	return &Decoder{reader: qrcode.NewQRCodeReader()}
}

// Decode scans a single frame. Frames from a source that is not yet
// producing readable dimensions decode as not-found.
func (d *Decoder) Decode(f *frame.Frame) Result {
	if f.Empty() {
		return Result{}
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(f.Image)
	if err != nil {
		return Result{}
	}
	res, err := d.reader.Decode(bmp, nil)
	if err != nil {
		return Result{}
	}

	var quad []image.Point
	for _, p := range res.GetResultPoints() {
		quad = append(quad, image.Pt(int(p.GetX()), int(p.GetY())))
	}
	return Result{Found: true, Payload: res.GetText(), Quad: quad}
}

// ParseWorkerID extracts the worker id from a QR payload. Badges carry
// "worker_<id>"; older printed codes used "workerId_<id>", so both prefixes
// are stripped in that order.
func ParseWorkerID(payload string) (string, bool) {
	id := strings.TrimSpace(strings.Replace(payload, "workerId_", "", 1))
	id = strings.TrimPrefix(id, "worker_")
	if id == "" {
		return "", false
	}
	return id, true
}
