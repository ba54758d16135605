package facematch

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// EmbedResult contains the face embedding and detection confidence for a
// reference image.
type EmbedResult struct {
	Embedding     []float32
	Score         float64
	FacesDetected int
}

// FaceDetection is one face found in a live frame.
type FaceDetection struct {
	Embedding []float32  `json:"embedding"`
	Box       [4]float64 `json:"bbox"`
	DetScore  float64    `json:"det_score"`
}

// Client calls the face embedding microservice.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// NewClient creates a client. Skip short-circuits every call with canned
// results for development without the service running.
func NewClient(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second, // face processing can take time
		},
	}
}

// EmbedURL requests an embedding for a reference image URL. FacesDetected
// lets the caller reject ambiguous reference images.
func (c *Client) EmbedURL(ctx context.Context, imageURL string) (*EmbedResult, error) {
	if c.Skip {
		return &EmbedResult{
			Embedding:     []float32{0.1, 0.2, 0.3},
			Score:         0.95,
			FacesDetected: 1,
		}, nil
	}
	if imageURL == "" {
		return nil, fmt.Errorf("image url required")
	}

	body, _ := json.Marshal(map[string]string{"image_url": imageURL})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out struct {
		Embedding     []float32 `json:"embedding"`
		Score         float64   `json:"score"`
		FacesDetected int       `json:"faces_detected"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &EmbedResult{
		Embedding:     out.Embedding,
		Score:         out.Score,
		FacesDetected: out.FacesDetected,
	}, nil
}

// DetectFaces finds every face in a live frame and returns its embedding.
func (c *Client) DetectFaces(ctx context.Context, imageData []byte) ([]FaceDetection, error) {
	if c.Skip {
		return []FaceDetection{{
			Embedding: []float32{0.1, 0.2, 0.3},
			Box:       [4]float64{10, 10, 110, 110},
			DetScore:  0.95,
		}}, nil
	}

	body, _ := json.Marshal(map[string]string{
		"image": base64.StdEncoding.EncodeToString(imageData),
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/faces", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out struct {
		FacesCount int             `json:"faces_count"`
		Faces      []FaceDetection `json:"faces"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return out.Faces, nil
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}

	return nil
}
