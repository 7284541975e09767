package capture

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/ShichengRao/transcription-and-summary/internal/audio"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStream is an inert stream handle
type fakeStream struct {
	mu      sync.Mutex
	started bool
	closed  bool
}

func (s *fakeStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// fakeSource hands out fake streams and lets tests drive the frame and error
// callbacks directly
type fakeSource struct {
	mu        sync.Mutex
	opens     int
	failOpens int // fail this many Open calls after the first success
	config    StreamConfig
}

func (s *fakeSource) Devices() ([]Device, error) {
	return []Device{{ID: 0, Name: "fake mic", Channels: 1, SampleRate: 16000}}, nil
}

func (s *fakeSource) Open(config StreamConfig) (Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.opens++
	if s.opens > 1 && s.failOpens > 0 {
		s.failOpens--
		return nil, fmt.Errorf("device unplugged")
	}

	s.config = config
	return &fakeStream{}, nil
}

func (s *fakeSource) Close() error { return nil }

func (s *fakeSource) pushFrames(samples []float32, channels int) {
	s.mu.Lock()
	onFrames := s.config.OnFrames
	s.mu.Unlock()
	onFrames(samples, channels)
}

func (s *fakeSource) pushError(err error) {
	s.mu.Lock()
	onError := s.config.OnError
	s.mu.Unlock()
	onError(err)
}

func (s *fakeSource) openCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

func sineFrame(numSamples int, amplitude float64) []float32 {
	samples := make([]float32, numSamples)
	for i := range samples {
		samples[i] = float32(amplitude * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	return samples
}

func testController(t *testing.T, source Source, outputDir string) (*Controller, *audio.Accumulator) {
	t.Helper()

	acc, err := audio.NewAccumulator(audio.AccumulatorConfig{
		SampleRate:       16000,
		ChunkDuration:    10 * time.Second,
		SilenceThreshold: 0.02,
		SilenceDuration:  200 * time.Millisecond,
		MinAudioDuration: 50 * time.Millisecond,
		NoiseGate:        0.015,
		OutputDir:        outputDir,
	}, testLogger(), nil)
	if err != nil {
		t.Fatalf("failed to create accumulator: %v", err)
	}

	controller := NewController(ControllerConfig{
		DeviceID:        -1,
		SampleRate:      16000,
		Channels:        1,
		FramesPerBuffer: 1024,
		PollInterval:    10 * time.Millisecond,
		MaxRestarts:     2,
		RestartBackoff:  time.Millisecond,
	}, source, acc, audio.NewLevelMonitor(0, 0.02), testLogger(), nil)

	return controller, acc
}

func TestControllerStartStop(t *testing.T) {
	source := &fakeSource{}
	controller, _ := testController(t, source, t.TempDir())

	if err := controller.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !controller.IsRecording() {
		t.Error("expected recording state after start")
	}

	if err := controller.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if controller.IsRecording() {
		t.Error("expected stopped state")
	}
}

func TestControllerStartFailsOnDeviceError(t *testing.T) {
	source := &fakeSource{}
	source.opens = 1 // next Open is treated as a retry and fails
	source.failOpens = 1

	controller, _ := testController(t, source, t.TempDir())
	if err := controller.Start(); err == nil {
		controller.Stop()
		t.Fatal("expected start to fail when the device cannot open")
	}
}

func TestControllerFeedsAccumulator(t *testing.T) {
	source := &fakeSource{}
	controller, acc := testController(t, source, t.TempDir())

	if err := controller.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer controller.Stop()

	source.pushFrames(sineFrame(1600, 0.1), 1)
	source.pushFrames(sineFrame(1600, 0.1), 1)

	if got := acc.BufferedSamples(); got != 3200 {
		t.Errorf("expected 3200 buffered samples, got %d", got)
	}

	stats := controller.Stats()
	if stats.FramesReceived != 2 {
		t.Errorf("expected 2 frames received, got %d", stats.FramesReceived)
	}
}

func TestControllerDownmixesStereo(t *testing.T) {
	source := &fakeSource{}
	controller, acc := testController(t, source, t.TempDir())

	if err := controller.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer controller.Stop()

	// 4 interleaved stereo frames collapse to 4 mono samples
	source.pushFrames([]float32{0.2, 0.4, -0.2, -0.4, 0.1, 0.3, 0, 0}, 2)

	if got := acc.BufferedSamples(); got != 4 {
		t.Errorf("expected 4 mono samples, got %d", got)
	}
}

func TestDownmixMonoAverages(t *testing.T) {
	mono := downmixMono([]float32{0.2, 0.4, -0.6, 0.6}, 2)

	if len(mono) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(mono))
	}
	if math.Abs(float64(mono[0])-0.3) > 1e-6 {
		t.Errorf("expected 0.3, got %f", mono[0])
	}
	if math.Abs(float64(mono[1])) > 1e-6 {
		t.Errorf("expected 0, got %f", mono[1])
	}
}

func TestControllerPauseDropsFrames(t *testing.T) {
	source := &fakeSource{}
	controller, acc := testController(t, source, t.TempDir())

	if err := controller.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer controller.Stop()

	controller.Pause()
	if controller.IsRecording() {
		t.Error("expected not recording while paused")
	}

	source.pushFrames(sineFrame(1600, 0.1), 1)
	if got := acc.BufferedSamples(); got != 0 {
		t.Errorf("paused frames must not buffer, got %d samples", got)
	}

	stats := controller.Stats()
	if stats.FramesDropped != 1 {
		t.Errorf("expected 1 dropped frame, got %d", stats.FramesDropped)
	}

	controller.Resume()
	source.pushFrames(sineFrame(1600, 0.1), 1)
	if got := acc.BufferedSamples(); got != 1600 {
		t.Errorf("expected 1600 samples after resume, got %d", got)
	}
}

func TestControllerSilenceFlushProducesSegment(t *testing.T) {
	source := &fakeSource{}
	controller, _ := testController(t, source, t.TempDir())

	segmentCh := make(chan *audio.Segment, 1)
	controller.SetSegmentCallback(func(s *audio.Segment) {
		segmentCh <- s
	})

	if err := controller.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer controller.Stop()

	// One second of speech, then silence until the 200ms trigger fires
	for i := 0; i < 10; i++ {
		source.pushFrames(sineFrame(1600, 0.1), 1)
	}
	silent := make([]float32, 1600)
	deadline := time.Now().Add(3 * time.Second)

	for {
		source.pushFrames(silent, 1)

		select {
		case segment := <-segmentCh:
			if segment.Duration < time.Second {
				t.Errorf("unexpected segment duration %s", segment.Duration)
			}
			return
		case <-time.After(50 * time.Millisecond):
		}

		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for silence flush")
		}
	}
}

func TestControllerRestartsAfterStreamError(t *testing.T) {
	source := &fakeSource{}
	controller, _ := testController(t, source, t.TempDir())

	if err := controller.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer controller.Stop()

	source.pushError(fmt.Errorf("stream died"))

	deadline := time.Now().Add(3 * time.Second)
	for controller.Stats().Restarts == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for restart")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if source.openCount() != 2 {
		t.Errorf("expected 2 opens, got %d", source.openCount())
	}
	if !controller.IsRecording() {
		t.Error("expected recording state after restart")
	}
}

func TestControllerRestartsOnStalledStream(t *testing.T) {
	source := &fakeSource{}

	acc, err := audio.NewAccumulator(audio.AccumulatorConfig{
		SampleRate:       16000,
		ChunkDuration:    10 * time.Second,
		SilenceThreshold: 0.02,
		SilenceDuration:  2 * time.Second,
		MinAudioDuration: time.Second,
		NoiseGate:        0.015,
		OutputDir:        t.TempDir(),
	}, testLogger(), nil)
	if err != nil {
		t.Fatalf("failed to create accumulator: %v", err)
	}

	controller := NewController(ControllerConfig{
		DeviceID:        -1,
		SampleRate:      16000,
		Channels:        1,
		FramesPerBuffer: 1024,
		PollInterval:    10 * time.Millisecond,
		MaxRestarts:     2,
		RestartBackoff:  time.Millisecond,
		StallTimeout:    50 * time.Millisecond,
	}, source, acc, audio.NewLevelMonitor(0, 0.02), testLogger(), nil)

	if err := controller.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer controller.Stop()

	// One frame arrives, then the stream goes dead without reporting
	source.pushFrames(sineFrame(1600, 0.1), 1)

	deadline := time.Now().Add(3 * time.Second)
	for controller.Stats().Restarts == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for stall-triggered restart")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if source.openCount() < 2 {
		t.Errorf("expected the stalled stream to be reopened, opens=%d", source.openCount())
	}
}

func TestControllerGivesUpAfterMaxRestarts(t *testing.T) {
	source := &fakeSource{failOpens: 100}
	controller, _ := testController(t, source, t.TempDir())

	fatalCh := make(chan error, 1)
	controller.SetFatalCallback(func(err error) {
		fatalCh <- err
	})

	if err := controller.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer controller.Stop()

	source.pushError(fmt.Errorf("stream died"))

	select {
	case err := <-fatalCh:
		if err == nil {
			t.Error("expected a fatal error")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for fatal callback")
	}

	if controller.IsRecording() {
		t.Error("expected capture to stop after exhausting restarts")
	}

	stats := controller.Stats()
	if stats.LastError == "" {
		t.Error("expected last error to be recorded")
	}
}
