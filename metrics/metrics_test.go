package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d, want 200", rec.Code)
	}
	return rec.Body.String()
}

func TestMetricsExposition(t *testing.T) {
	m := New()
	m.FramesCaptured.Inc()
	m.FramesCaptured.Inc()
	m.FramesProcessed.Inc()
	m.CaptureErrors.Inc()
	m.ContoursPerFrame.Set(7)
	m.ObserveInfer(120 * time.Millisecond)
	m.ObserveSegment(2 * time.Millisecond)
	m.ObserveRender(time.Millisecond)

	body := scrape(t, m)

	for _, want := range []string{
		"depthcam_frames_captured_total 2",
		"depthcam_frames_processed_total 1",
		"depthcam_capture_errors_total 1",
		"depthcam_contours 7",
		"depthcam_infer_seconds_count 1",
		"depthcam_segment_seconds_count 1",
		"depthcam_render_seconds_count 1",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("exposition missing %q\n%s", want, body)
		}
	}
}

func TestSetProviderSwitchesLabel(t *testing.T) {
	m := New()
	m.SetProvider("GPU")
	if body := scrape(t, m); !strings.Contains(body, `depthcam_provider_up{provider="GPU"} 1`) {
		t.Fatalf("GPU provider not marked up:\n%s", body)
	}

	m.SetProvider("CPU")
	body := scrape(t, m)
	if !strings.Contains(body, `depthcam_provider_up{provider="CPU"} 1`) {
		t.Fatalf("CPU provider not marked up:\n%s", body)
	}
	if strings.Contains(body, `provider="GPU"`) {
		t.Fatalf("stale GPU series survived Reset:\n%s", body)
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	a := New()
	b := New()
	a.FramesDropped.Inc()

	if body := scrape(t, b); strings.Contains(body, "depthcam_frames_dropped_total 1") {
		t.Fatal("counter from one registry leaked into another")
	}
}
