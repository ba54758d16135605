package facematch

import (
	"context"
	"fmt"
	"log"
	"sync"

	"sitecheck/internal/directory"
	"sitecheck/internal/frame"
)

// MatchThreshold is the embedding distance below which a match is
// confident. Matches at or beyond it are labeled unknown.
const MatchThreshold = 0.6

// LabelUnknown marks a face with no gallery entry within threshold.
const LabelUnknown = "unknown"

// Match is one face from a live frame with its nearest gallery label.
type Match struct {
	Label    string
	Distance float64
	Box      [4]float64
}

// Confident reports whether the label can be trusted. Whether it equals the
// session's claim is the pipeline's decision, not the matcher's.
func (m Match) Confident() bool { return m.Label != LabelUnknown }

type embedder interface {
	EmbedURL(ctx context.Context, imageURL string) (*EmbedResult, error)
	DetectFaces(ctx context.Context, imageData []byte) ([]FaceDetection, error)
}

type workerLister interface {
	List(ctx context.Context) ([]directory.WorkerRecord, error)
}

// Matcher builds the face gallery from directory reference images and runs
// live matches against it.
type Matcher struct {
	client    embedder
	workers   workerLister
	threshold float64

	mu      sync.Mutex
	gallery *Gallery
}

// NewMatcher creates a matcher; the gallery is built lazily via EnsureGallery.
func NewMatcher(client *Client, workers workerLister) *Matcher {
	return newMatcher(client, workers)
}

func newMatcher(client embedder, workers workerLister) *Matcher {
	return &Matcher{
		client:    client,
		workers:   workers,
		threshold: MatchThreshold,
	}
}

// EnsureGallery builds the gallery on first use. A worker with a cached
// embedding is added directly; otherwise the reference image is embedded
// through the face service. One bad image never fails the build: workers
// with zero or multiple faces in their reference image are skipped with a
// warning.
func (m *Matcher) EnsureGallery(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gallery != nil {
		return nil
	}

	recs, err := m.workers.List(ctx)
	if err != nil {
		return fmt.Errorf("list workers: %w", err)
	}

	gallery := NewGallery()
	for _, rec := range recs {
		if len(rec.FaceEmbedding) > 0 {
			gallery.Add(rec.WorkerID, rec.FaceEmbedding)
			continue
		}
		if rec.FaceImageURL == "" {
			log.Printf("warning: worker %s has no face reference image, skipping", rec.WorkerID)
			continue
		}
		res, err := m.client.EmbedURL(ctx, rec.FaceImageURL)
		if err != nil {
			log.Printf("warning: embed reference image for worker %s failed: %v", rec.WorkerID, err)
			continue
		}
		if res.FacesDetected != 1 {
			log.Printf("warning: reference image for worker %s has %d faces, skipping", rec.WorkerID, res.FacesDetected)
			continue
		}
		gallery.Add(rec.WorkerID, res.Embedding)
	}

	log.Printf("face gallery built: %d of %d workers enrolled", gallery.Len(), len(recs))
	m.gallery = gallery
	return nil
}

// Reset discards the gallery so the next EnsureGallery rebuilds it.
func (m *Matcher) Reset() {
	m.mu.Lock()
	m.gallery = nil
	m.mu.Unlock()
}

// Match detects every face in the frame and labels each with the nearest
// gallery entry, or unknown when nothing is within threshold.
func (m *Matcher) Match(ctx context.Context, f *frame.Frame) ([]Match, error) {
	m.mu.Lock()
	gallery := m.gallery
	m.mu.Unlock()
	if gallery == nil {
		return nil, fmt.Errorf("gallery not built")
	}

	data, err := f.JPEG()
	if err != nil {
		return nil, err
	}
	faces, err := m.client.DetectFaces(ctx, data)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(faces))
	for _, face := range faces {
		match := Match{Label: LabelUnknown, Box: face.Box}
		if label, dist, ok := gallery.Nearest(face.Embedding); ok {
			match.Distance = dist
			if dist < m.threshold {
				match.Label = label
			}
		}
		matches = append(matches, match)
	}
	return matches, nil
}
