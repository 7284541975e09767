package audio

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// RMS returns the root-mean-square amplitude of a sample window, used as a
// loudness proxy for silence detection
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}

	var energy float64
	for _, s := range samples {
		energy += float64(s) * float64(s)
	}

	return math.Sqrt(energy / float64(len(samples)))
}

// Levels is a snapshot of recent frame loudness for diagnostics
type Levels struct {
	Current     float64 `json:"current"`
	Average     float64 `json:"average"`
	Maximum     float64 `json:"maximum"`
	Threshold   float64 `json:"threshold"`
	SampleCount int     `json:"sample_count"`
}

// LevelMonitor tracks recent frame RMS values in a fixed-capacity ring buffer.
// Writes never reallocate, so it is safe to call Observe from the frame path.
type LevelMonitor struct {
	values    []float64
	next      int
	count     int
	threshold float64

	mu sync.RWMutex
}

// NewLevelMonitor creates a monitor holding up to capacity recent values
func NewLevelMonitor(capacity int, threshold float64) *LevelMonitor {
	if capacity <= 0 {
		capacity = 100
	}

	return &LevelMonitor{
		values:    make([]float64, capacity),
		threshold: threshold,
	}
}

// Observe records one frame RMS value, overwriting the oldest when full
func (m *LevelMonitor) Observe(rms float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[m.next] = rms
	m.next = (m.next + 1) % len(m.values)
	if m.count < len(m.values) {
		m.count++
	}
}

// Levels returns a snapshot of the current level statistics
func (m *LevelMonitor) Levels() Levels {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.count == 0 {
		return Levels{Threshold: m.threshold}
	}

	window := make([]float64, m.count)
	for i := 0; i < m.count; i++ {
		// Walk backwards from the most recent write
		idx := (m.next - 1 - i + len(m.values)*2) % len(m.values)
		window[i] = m.values[idx]
	}

	return Levels{
		Current:     window[0],
		Average:     floats.Sum(window) / float64(m.count),
		Maximum:     floats.Max(window),
		Threshold:   m.threshold,
		SampleCount: m.count,
	}
}

// ContentAnalysis is the result of scoring a finished buffer against the noise gate
type ContentAnalysis struct {
	OverallRMS      float64 `json:"overall_rms"`
	ContentRatio    float64 `json:"content_ratio"`
	ChunksAboveGate int     `json:"chunks_above_gate"`
	TotalChunks     int     `json:"total_chunks"`
	NoiseGate       float64 `json:"noise_gate"`
}

// minContentRatio is the fraction of 100ms sub-chunks that must exceed the
// noise gate for a segment to be worth transcribing
const minContentRatio = 0.10

// AnalyzeContent scores a sample buffer: overall RMS plus the fraction of
// 100ms sub-chunks whose RMS exceeds the noise gate. The sub-chunk ratio
// prevents a single loud click from validating an otherwise silent segment.
func AnalyzeContent(samples []float32, sampleRate int, noiseGate float64) ContentAnalysis {
	analysis := ContentAnalysis{
		OverallRMS: RMS(samples),
		NoiseGate:  noiseGate,
	}

	chunkSize := sampleRate / 10 // 100ms
	if chunkSize <= 0 {
		chunkSize = len(samples)
	}

	chunkRMS := make([]float64, 0, len(samples)/chunkSize+1)
	for i := 0; i < len(samples); i += chunkSize {
		end := i + chunkSize
		if end > len(samples) {
			end = len(samples)
		}
		chunkRMS = append(chunkRMS, RMS(samples[i:end]))
	}

	analysis.TotalChunks = len(chunkRMS)
	for _, rms := range chunkRMS {
		if rms > noiseGate {
			analysis.ChunksAboveGate++
		}
	}

	if analysis.TotalChunks > 0 {
		analysis.ContentRatio = float64(analysis.ChunksAboveGate) / float64(analysis.TotalChunks)
	}

	return analysis
}

// Acceptable reports whether the buffer carries enough content to keep
func (a ContentAnalysis) Acceptable() bool {
	if a.TotalChunks == 0 {
		return false
	}

	if a.OverallRMS < a.NoiseGate {
		return false
	}

	return a.ContentRatio >= minContentRatio
}
