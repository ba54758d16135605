package facematch

import (
	"sync"

	"github.com/coder/hnsw"
)

// hnswMaxNeighbors tunes graph connectivity; galleries are small so the
// default-ish value is plenty.
const hnswMaxNeighbors = 16

// Gallery holds labeled face embeddings for one pipeline activation.
// Built once, read-only afterwards.
type Gallery struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[string]
	size  int
}

// NewGallery creates an empty gallery.
func NewGallery() *Gallery {
	g := hnsw.NewGraph[string]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.Distance = hnsw.CosineDistance
	return &Gallery{graph: g}
}

// Add inserts an embedding labeled with a worker id.
func (g *Gallery) Add(workerID string, embedding []float32) {
	if workerID == "" || len(embedding) == 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.graph.Add(hnsw.MakeNode(workerID, embedding))
	g.size++
}

// Nearest returns the closest label and its cosine distance to the query.
// ok is false for an empty gallery.
func (g *Gallery) Nearest(query []float32) (label string, distance float64, ok bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.size == 0 {
		return "", 0, false
	}
	neighbors := g.graph.Search(query, 1)
	if len(neighbors) == 0 {
		return "", 0, false
	}
	n := neighbors[0]
	return n.Key, float64(hnsw.CosineDistance(query, n.Value)), true
}

// Len returns the number of gallery entries.
func (g *Gallery) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.size
}
