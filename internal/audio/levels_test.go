package audio

import (
	"math"
	"testing"
)

func TestRMSSineWave(t *testing.T) {
	// RMS of a sine wave is amplitude / sqrt(2)
	samples := generateSineFloat32(440, 16000, 16000, 0.5)

	rms := RMS(samples)
	expected := 0.5 / math.Sqrt2
	if math.Abs(rms-expected) > 0.005 {
		t.Errorf("expected RMS %f, got %f", expected, rms)
	}
}

func TestRMSSilence(t *testing.T) {
	if rms := RMS(make([]float32, 1600)); rms != 0 {
		t.Errorf("expected RMS 0 for silence, got %f", rms)
	}
	if rms := RMS(nil); rms != 0 {
		t.Errorf("expected RMS 0 for empty input, got %f", rms)
	}
}

func TestLevelMonitorBasic(t *testing.T) {
	monitor := NewLevelMonitor(10, 0.02)

	levels := monitor.Levels()
	if levels.SampleCount != 0 {
		t.Errorf("expected empty monitor, got %d samples", levels.SampleCount)
	}
	if levels.Threshold != 0.02 {
		t.Errorf("expected threshold 0.02, got %f", levels.Threshold)
	}

	monitor.Observe(0.1)
	monitor.Observe(0.3)
	monitor.Observe(0.2)

	levels = monitor.Levels()
	if levels.Current != 0.2 {
		t.Errorf("expected current 0.2, got %f", levels.Current)
	}
	if levels.Maximum != 0.3 {
		t.Errorf("expected maximum 0.3, got %f", levels.Maximum)
	}
	if math.Abs(levels.Average-0.2) > 0.0001 {
		t.Errorf("expected average 0.2, got %f", levels.Average)
	}
	if levels.SampleCount != 3 {
		t.Errorf("expected 3 samples, got %d", levels.SampleCount)
	}
}

func TestLevelMonitorRingWrap(t *testing.T) {
	monitor := NewLevelMonitor(5, 0.02)

	// Fill past capacity; only the last 5 observations survive
	for i := 1; i <= 8; i++ {
		monitor.Observe(float64(i))
	}

	levels := monitor.Levels()
	if levels.SampleCount != 5 {
		t.Errorf("expected 5 samples after wrap, got %d", levels.SampleCount)
	}
	if levels.Current != 8 {
		t.Errorf("expected current 8, got %f", levels.Current)
	}
	if levels.Maximum != 8 {
		t.Errorf("expected maximum 8, got %f", levels.Maximum)
	}
	// Window is 4..8, average 6
	if math.Abs(levels.Average-6) > 0.0001 {
		t.Errorf("expected average 6, got %f", levels.Average)
	}
}

func TestAnalyzeContentSpeech(t *testing.T) {
	sampleRate := 16000
	samples := generateSineFloat32(440, sampleRate, sampleRate*2, 0.1)

	analysis := AnalyzeContent(samples, sampleRate, 0.015)
	if !analysis.Acceptable() {
		t.Errorf("loud sine should be acceptable: %+v", analysis)
	}
	if analysis.ContentRatio < 0.99 {
		t.Errorf("expected all chunks above gate, got ratio %f", analysis.ContentRatio)
	}
	if analysis.TotalChunks != 20 {
		t.Errorf("expected 20 chunks for 2s at 100ms, got %d", analysis.TotalChunks)
	}
}

func TestAnalyzeContentSilence(t *testing.T) {
	sampleRate := 16000
	samples := make([]float32, sampleRate*2)

	analysis := AnalyzeContent(samples, sampleRate, 0.015)
	if analysis.Acceptable() {
		t.Errorf("silence should not be acceptable: %+v", analysis)
	}
	if analysis.ChunksAboveGate != 0 {
		t.Errorf("expected 0 chunks above gate, got %d", analysis.ChunksAboveGate)
	}
}

func TestAnalyzeContentSingleClick(t *testing.T) {
	sampleRate := 16000
	samples := make([]float32, sampleRate*3)

	// One loud 100ms burst inside three seconds of silence
	burst := generateSineFloat32(440, sampleRate, sampleRate/10, 0.8)
	copy(samples[sampleRate:], burst)

	analysis := AnalyzeContent(samples, sampleRate, 0.015)
	if analysis.ContentRatio > 0.1 {
		t.Errorf("expected low content ratio for a single click, got %f", analysis.ContentRatio)
	}
}

func TestAnalyzeContentEmpty(t *testing.T) {
	analysis := AnalyzeContent(nil, 16000, 0.015)
	if analysis.Acceptable() {
		t.Error("empty buffer should not be acceptable")
	}
}
