// Package badge generates the printable QR badges handed to workers.
package badge

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// Payload wire format is the plain string "worker_<id>"; the scanner strips
// the prefix and the directory existence check is the only validation.
const payloadPrefix = "worker_"

// badgeSize matches the 300px code plus quiet-zone border the admin panel
// has always produced.
const badgeSize = 340

// Payload returns the QR payload for a worker id.
func Payload(workerID string) string { return payloadPrefix + workerID }

// EncodePNG renders a worker's badge as a PNG with a white border.
func EncodePNG(workerID string) ([]byte, error) {
	if workerID == "" {
		return nil, fmt.Errorf("worker id required")
	}
	png, err := qrcode.Encode(Payload(workerID), qrcode.Medium, badgeSize)
	if err != nil {
		return nil, fmt.Errorf("encode badge: %w", err)
	}
	return png, nil
}
