// Package webmonitor serves a lightweight HTTP view of the running
// pipeline: MJPEG previews of the display surfaces, a websocket status
// feed, Prometheus metrics, and a health endpoint.
package webmonitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"gocv.io/x/gocv"
	"golang.org/x/image/draw"
)

// Surface names served under /stream/.
const (
	SurfaceInput   = "input"
	SurfaceBlurred = "blurred"
	SurfaceOutput  = "output"
)

const (
	previewWidth  = 480
	jpegQuality   = 75
	streamPeriod  = 100 * time.Millisecond
	statusPeriod  = time.Second
	writeDeadline = 10 * time.Second
)

// Server publishes pipeline state over HTTP.
type Server struct {
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	frames map[string][]byte // surface -> latest JPEG preview

	statusFn       func() map[string]any
	eventsFn       func() []string
	metricsHandler http.Handler
}

// New creates a monitor server. statusFn supplies the live status payload,
// eventsFn the recent-event ring, metricsHandler the /metrics endpoint.
func New(statusFn func() map[string]any, eventsFn func() []string, metricsHandler http.Handler) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		frames:         make(map[string][]byte),
		statusFn:       statusFn,
		eventsFn:       eventsFn,
		metricsHandler: metricsHandler,
	}
}

// UpdateSurface stores a downscaled JPEG preview of one display surface.
// The Mat is read synchronously; the caller keeps ownership.
func (s *Server) UpdateSurface(name string, frame gocv.Mat) error {
	if frame.Empty() {
		return fmt.Errorf("empty frame for surface %q", name)
	}

	img, err := frame.ToImage()
	if err != nil {
		return fmt.Errorf("convert surface %q: %w", name, err)
	}

	data, err := encodePreview(img)
	if err != nil {
		return fmt.Errorf("encode surface %q: %w", name, err)
	}

	s.mu.Lock()
	s.frames[name] = data
	s.mu.Unlock()
	return nil
}

// encodePreview downscales to the preview width and JPEG-encodes.
func encodePreview(img image.Image) ([]byte, error) {
	bounds := img.Bounds()
	if bounds.Dx() > previewWidth {
		h := bounds.Dy() * previewWidth / bounds.Dx()
		thumb := image.NewRGBA(image.Rect(0, 0, previewWidth, h))
		draw.ApproxBiLinear.Scale(thumb, thumb.Bounds(), img, bounds, draw.Over, nil)
		img = thumb
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Server) latestFrame(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.frames[name]
	return data, ok
}

// Run serves until the context is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/ws", s.handleWS)
	for _, surface := range []string{SurfaceInput, SurfaceBlurred, SurfaceOutput} {
		mux.HandleFunc("/stream/"+surface, s.streamHandler(surface))
	}
	if s.metricsHandler != nil {
		mux.Handle("/metrics", s.metricsHandler)
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	err := httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{}
	if s.statusFn != nil {
		payload = s.statusFn()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events := []string{}
	if s.eventsFn != nil {
		events = s.eventsFn()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"events": events})
}

// streamHandler serves one surface as multipart MJPEG.
func (s *Server) streamHandler(surface string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache")

		ticker := time.NewTicker(streamPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				data, ok := s.latestFrame(surface)
				if !ok {
					continue
				}
				if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(data)); err != nil {
					return
				}
				if _, err := w.Write(data); err != nil {
					return
				}
				if _, err := fmt.Fprint(w, "\r\n"); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

// handleWS pushes the status payload to the client once per second.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(statusPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			payload := map[string]any{}
			if s.statusFn != nil {
				payload = s.statusFn()
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteJSON(payload); err != nil {
				return
			}
		}
	}
}
