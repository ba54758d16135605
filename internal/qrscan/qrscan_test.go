package qrscan

import (
	"image"
	"testing"
	"time"

	"sitecheck/internal/badge"
	"sitecheck/internal/frame"
)

func TestDecodeBadgeRoundtrip(t *testing.T) {
	png, err := badge.EncodePNG("W-042")
	if err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	f, err := frame.Decode(png)
	if err != nil {
		t.Fatalf("frame.Decode: %v", err)
	}

	res := NewDecoder().Decode(f)
	if !res.Found {
		t.Fatal("badge not found in frame")
	}
	if res.Payload != "worker_W-042" {
		t.Errorf("payload = %q, want %q", res.Payload, "worker_W-042")
	}
	if len(res.Quad) == 0 {
		t.Error("no locator points returned")
	}

	id, ok := ParseWorkerID(res.Payload)
	if !ok || id != "W-042" {
		t.Errorf("ParseWorkerID = (%q, %v), want (W-042, true)", id, ok)
	}
}

func TestDecodeEmptyFrame(t *testing.T) {
	tests := []struct {
		name string
		f    *frame.Frame
	}{
		{"nil frame", nil},
		{"nil image", &frame.Frame{CapturedAt: time.Now()}},
		{"zero bounds", &frame.Frame{Image: image.NewRGBA(image.Rect(0, 0, 0, 0))}},
	}
	d := NewDecoder()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if res := d.Decode(tc.f); res.Found {
				t.Error("found a symbol in an empty frame")
			}
		})
	}
}

func TestDecodeBlankFrame(t *testing.T) {
	f := &frame.Frame{Image: image.NewRGBA(image.Rect(0, 0, 320, 240))}
	if res := NewDecoder().Decode(f); res.Found {
		t.Error("found a symbol in a blank frame")
	}
}

func TestParseWorkerID(t *testing.T) {
	tests := []struct {
		payload string
		wantID  string
		wantOK  bool
	}{
		{"worker_123", "123", true},
		{"workerId_123", "123", true},
		{"worker_W-042", "W-042", true},
		{"  worker_7  ", "7", true},
		{"worker_", "", false},
		{"workerId_", "", false},
		{"", "", false},
		{"123", "123", true},
		{"https://example.com/menu", "https://example.com/menu", true},
	}
	for _, tc := range tests {
		id, ok := ParseWorkerID(tc.payload)
		if id != tc.wantID || ok != tc.wantOK {
			t.Errorf("ParseWorkerID(%q) = (%q, %v), want (%q, %v)",
				tc.payload, id, ok, tc.wantID, tc.wantOK)
		}
	}
}
