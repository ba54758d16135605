package ppe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientDetect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/detect" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req struct {
			Image string `json:"image"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Image == "" {
			t.Error("empty image payload")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"detections": []map[string]any{
				{"class": "Hardhat", "confidence": 0.91, "box": []float64{10, 10, 50, 50}},
				{"class": "Safety Vest", "confidence": 0.82, "box": []float64{5, 60, 80, 140}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	dets, err := c.Detect(context.Background(), "data:image/jpeg;base64,abc")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(dets) != 2 {
		t.Fatalf("got %d detections, want 2", len(dets))
	}
	if dets[0].Class != "Hardhat" || dets[0].Confidence != 0.91 {
		t.Errorf("unexpected first detection: %+v", dets[0])
	}
}

func TestClientDetectServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   "model not loaded",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.Detect(context.Background(), "data:image/jpeg;base64,abc"); err == nil {
		t.Fatal("want error when service reports failure")
	}
}

func TestClientDetectUnreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")
	if _, err := c.Detect(context.Background(), "data:image/jpeg;base64,abc"); err == nil {
		t.Fatal("want error when service is unreachable")
	}
}

func TestClientStatus(t *testing.T) {
	tests := []struct {
		name    string
		loaded  bool
		wantErr bool
	}{
		{"model loaded", true, false},
		{"model missing", false, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/status" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				_ = json.NewEncoder(w).Encode(map[string]any{"model_loaded": tc.loaded})
			}))
			defer srv.Close()

			err := NewClient(srv.URL).Status(context.Background())
			if (err != nil) != tc.wantErr {
				t.Errorf("Status err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
