package facematch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientSkipMode(t *testing.T) {
	c := NewClient("http://unused", true)

	res, err := c.EmbedURL(context.Background(), "https://cdn/face.jpg")
	if err != nil {
		t.Fatalf("EmbedURL: %v", err)
	}
	if res.FacesDetected != 1 || len(res.Embedding) == 0 {
		t.Errorf("skip embed result = %+v", res)
	}

	faces, err := c.DetectFaces(context.Background(), []byte("frame"))
	if err != nil {
		t.Fatalf("DetectFaces: %v", err)
	}
	if len(faces) != 1 {
		t.Errorf("skip detect returned %d faces", len(faces))
	}

	if err := c.Health(context.Background()); err != nil {
		t.Errorf("Health in skip mode: %v", err)
	}
}

func TestClientEmbedURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req struct {
			ImageURL string `json:"image_url"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.ImageURL != "https://cdn/face.jpg" {
			t.Errorf("image_url = %q", req.ImageURL)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embedding":      []float32{0.5, 0.5},
			"score":          0.98,
			"faces_detected": 1,
		})
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL, false).EmbedURL(context.Background(), "https://cdn/face.jpg")
	if err != nil {
		t.Fatalf("EmbedURL: %v", err)
	}
	if res.FacesDetected != 1 || len(res.Embedding) != 2 || res.Score != 0.98 {
		t.Errorf("result = %+v", res)
	}
}

func TestClientDetectFaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/faces" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"faces_count": 2,
			"faces": []map[string]any{
				{"embedding": []float32{1, 0}, "bbox": []float64{0, 0, 50, 50}, "det_score": 0.9},
				{"embedding": []float32{0, 1}, "bbox": []float64{60, 0, 110, 50}, "det_score": 0.8},
			},
		})
	}))
	defer srv.Close()

	faces, err := NewClient(srv.URL, false).DetectFaces(context.Background(), []byte("frame"))
	if err != nil {
		t.Fatalf("DetectFaces: %v", err)
	}
	if len(faces) != 2 {
		t.Fatalf("got %d faces, want 2", len(faces))
	}
	if faces[0].Box != [4]float64{0, 0, 50, 50} {
		t.Errorf("bbox = %v", faces[0].Box)
	}
}

func TestClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no face found", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, false)
	if _, err := c.EmbedURL(context.Background(), "https://cdn/face.jpg"); err == nil {
		t.Error("want error for embed failure")
	}
	if _, err := c.DetectFaces(context.Background(), []byte("frame")); err == nil {
		t.Error("want error for detect failure")
	}
	if err := c.Health(context.Background()); err == nil {
		t.Error("want error for unhealthy service")
	}
}
