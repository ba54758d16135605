package ppe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client calls the PPE detection service.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient creates a client.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Detect runs object detection over one frame, encoded as a base64 JPEG
// data URL. Network and service failures are returned as errors for the
// caller to degrade on.
func (c *Client) Detect(ctx context.Context, imageDataURL string) ([]Detection, error) {
	body, _ := json.Marshal(map[string]string{"image": imageDataURL})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/detect", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ppe service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ppe service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out struct {
		Success    bool        `json:"success"`
		Detections []Detection `json:"detections"`
		Error      string      `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !out.Success {
		return nil, fmt.Errorf("ppe service failed: %s", out.Error)
	}
	return out.Detections, nil
}

// Status is a lightweight probe the pipeline can poll independently of a
// detection request.
func (c *Client) Status(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/status", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("ppe service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("ppe service unhealthy: %s", resp.Status)
	}

	var out struct {
		Status      string `json:"status"`
		ModelLoaded bool   `json:"model_loaded"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode status: %w", err)
	}
	if !out.ModelLoaded {
		return fmt.Errorf("ppe model not loaded")
	}
	return nil
}
