package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ShichengRao/transcription-and-summary/internal/capture"
	"github.com/ShichengRao/transcription-and-summary/internal/config"
	"github.com/ShichengRao/transcription-and-summary/internal/recorder"
	"github.com/ShichengRao/transcription-and-summary/internal/transcription"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStream struct{}

func (fakeStream) Start() error { return nil }
func (fakeStream) Stop() error  { return nil }
func (fakeStream) Close() error { return nil }

type fakeSource struct{}

func (fakeSource) Devices() ([]capture.Device, error) { return nil, nil }
func (fakeSource) Open(config capture.StreamConfig) (capture.Stream, error) {
	return fakeStream{}, nil
}
func (fakeSource) Close() error { return nil }

type fakeEngine struct{}

func (fakeEngine) Name() string                     { return "fake" }
func (fakeEngine) Probe(ctx context.Context) error  { return nil }
func (fakeEngine) Transcribe(ctx context.Context, audioPath string) (*transcription.Output, error) {
	return &transcription.Output{Language: "en"}, nil
}

func testServer(t *testing.T) (*HTTPServer, *recorder.Recorder) {
	t.Helper()

	cfg := config.Default()
	cfg.Storage.OutputDir = t.TempDir()

	rec, err := recorder.New(cfg, testLogger(), nil, fakeSource{}, fakeEngine{})
	if err != nil {
		t.Fatalf("failed to create recorder: %v", err)
	}

	if err := rec.Start(); err != nil {
		t.Fatalf("failed to start recorder: %v", err)
	}
	t.Cleanup(func() { rec.Stop() })

	return NewHTTPServer(cfg, rec, testLogger(), nil), rec
}

func getJSON(t *testing.T, handler http.Handler, path string, out any) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if out != nil {
		if err := json.Unmarshal(rr.Body.Bytes(), out); err != nil {
			t.Fatalf("failed to decode %s response: %v", path, err)
		}
	}
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	var body map[string]any
	rr := getJSON(t, srv.Handler(), "/health", &body)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
	if body["recording"] != true {
		t.Errorf("expected recording true, got %v", body["recording"])
	}
}

func TestLevelsEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	var body map[string]any
	rr := getJSON(t, srv.Handler(), "/levels", &body)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
	if _, ok := body["threshold"]; !ok {
		t.Error("levels response missing threshold")
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	var body map[string]any
	rr := getJSON(t, srv.Handler(), "/stats", &body)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
	for _, section := range []string{"capture", "accumulator", "queue", "worker"} {
		if _, ok := body[section]; !ok {
			t.Errorf("stats response missing %s section", section)
		}
	}
}

func TestConfigEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	var body map[string]any
	rr := getJSON(t, srv.Handler(), "/config", &body)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
	if _, ok := body["audio"]; !ok {
		t.Error("config response missing audio section")
	}
}

func TestPauseResumeEndpoints(t *testing.T) {
	srv, rec := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/pause", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("pause: expected 200, got %d", rr.Code)
	}
	if rec.IsRecording() {
		t.Error("expected paused recorder")
	}

	req = httptest.NewRequest(http.MethodPost, "/resume", nil)
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("resume: expected 200, got %d", rr.Code)
	}
	if !rec.IsRecording() {
		t.Error("expected recording recorder")
	}
}

func TestPauseRequiresPost(t *testing.T) {
	srv, _ := testServer(t)

	rr := getJSON(t, srv.Handler(), "/pause", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET /pause, got %d", rr.Code)
	}
}

func TestUnknownPath(t *testing.T) {
	srv, _ := testServer(t)

	rr := getJSON(t, srv.Handler(), "/nope", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
}

func TestResultsEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	var body map[string]any
	rr := getJSON(t, srv.Handler(), "/results", &body)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
	if body["count"] != float64(0) {
		t.Errorf("expected 0 results, got %v", body["count"])
	}
}
