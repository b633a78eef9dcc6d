package webmonitor

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gocv.io/x/gocv"
)

func testServer() *Server {
	return New(
		func() map[string]any { return map[string]any{"fps": 12.5, "provider": "CPU"} },
		func() []string { return []string{"started", "first frame"} },
		nil,
	)
}

func TestHealthEndpoint(t *testing.T) {
	s := testServer()
	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("health status = %q, want ok", body["status"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	s := testServer()
	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["provider"] != "CPU" {
		t.Fatalf("provider = %v, want CPU", body["provider"])
	}
}

func TestEventsEndpoint(t *testing.T) {
	s := testServer()
	rec := httptest.NewRecorder()
	s.handleEvents(rec, httptest.NewRequest(http.MethodGet, "/events", nil))

	var body struct {
		Events []string `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Events) != 2 || body.Events[0] != "started" {
		t.Fatalf("events = %v", body.Events)
	}
}

func TestUpdateSurfaceDownscales(t *testing.T) {
	s := testServer()

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(30, 60, 90, 0), 720, 1280, gocv.MatTypeCV8UC3)
	defer frame.Close()

	if err := s.UpdateSurface(SurfaceInput, frame); err != nil {
		t.Fatalf("UpdateSurface: %v", err)
	}

	data, ok := s.latestFrame(SurfaceInput)
	if !ok {
		t.Fatal("no preview stored")
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("stored preview is not a JPEG: %v", err)
	}
	if cfg.Width != previewWidth {
		t.Fatalf("preview width = %d, want %d", cfg.Width, previewWidth)
	}
	if cfg.Height != 720*previewWidth/1280 {
		t.Fatalf("preview height = %d, want %d", cfg.Height, 720*previewWidth/1280)
	}
}

func TestUpdateSurfaceRejectsEmptyFrame(t *testing.T) {
	s := testServer()
	empty := gocv.NewMat()
	defer empty.Close()
	if err := s.UpdateSurface(SurfaceOutput, empty); err == nil {
		t.Fatal("expected error for empty frame")
	}
}

func TestEncodePreviewKeepsSmallImages(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 200, B: 30, A: 255})
		}
	}

	data, err := encodePreview(img)
	if err != nil {
		t.Fatalf("encodePreview: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Width != 320 || cfg.Height != 240 {
		t.Fatalf("small image resized to %dx%d, want 320x240", cfg.Width, cfg.Height)
	}
}

// flushRecorder adds Flush support so the MJPEG handler accepts it.
type flushRecorder struct {
	*httptest.ResponseRecorder
}

func (f *flushRecorder) Flush() {}

func TestStreamHandlerEmitsFrames(t *testing.T) {
	s := testServer()

	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 128, 0), 120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()
	if err := s.UpdateSurface(SurfaceOutput, frame); err != nil {
		t.Fatalf("UpdateSurface: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 350*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/stream/output", nil).WithContext(ctx)
	rec := &flushRecorder{httptest.NewRecorder()}

	s.streamHandler(SurfaceOutput)(rec, req)

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "multipart/x-mixed-replace") {
		t.Fatalf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "--frame") || !strings.Contains(body, "Content-Type: image/jpeg") {
		t.Fatalf("stream body missing multipart framing: %.100q", body)
	}
}

func TestStreamHandlerRequiresFlusher(t *testing.T) {
	s := testServer()

	// A bare writer without Flush support must be rejected.
	rec := struct{ http.ResponseWriter }{httptest.NewRecorder()}
	inner := rec.ResponseWriter.(*httptest.ResponseRecorder)

	s.streamHandler(SurfaceInput)(rec, httptest.NewRequest(http.MethodGet, "/stream/input", nil))
	if inner.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", inner.Code)
	}
}
