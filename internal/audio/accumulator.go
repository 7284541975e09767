package audio

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShichengRao/transcription-and-summary/internal/metrics"
)

// State represents the current state of the segmentation machine
type State int

const (
	StateIdle State = iota
	StateAccumulating
	StateTrailingSilence
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case StateAccumulating:
		return "accumulating"
	case StateTrailingSilence:
		return "trailing_silence"
	default:
		return "idle"
	}
}

// FlushReason identifies which trigger finalized a buffer
type FlushReason string

const (
	FlushSilence     FlushReason = "silence"
	FlushMaxDuration FlushReason = "max_duration"
	FlushShutdown    FlushReason = "shutdown"
)

// Segment is a finalized, persisted unit of audio ready for transcription.
// It is immutable once created; ownership of the backing file passes to the
// transcription side, which removes it after a successful transcription.
type Segment struct {
	ID         string        `json:"id"`
	FilePath   string        `json:"file_path"`
	StartTime  time.Time     `json:"start_time"`
	EndTime    time.Time     `json:"end_time"`
	Duration   time.Duration `json:"duration"`
	SampleRate int           `json:"sample_rate"`
}

// AccumulatorConfig contains segmentation parameters
type AccumulatorConfig struct {
	SampleRate       int
	ChunkDuration    time.Duration // hard cap regardless of silence
	SilenceThreshold float64
	SilenceDuration  time.Duration
	MinAudioDuration time.Duration
	NoiseGate        float64
	OutputDir        string
}

// AccumulatorStats represents accumulator statistics for monitoring
type AccumulatorStats struct {
	State               string  `json:"state"`
	BufferedSamples     int     `json:"buffered_samples"`
	BufferedSeconds     float64 `json:"buffered_seconds"`
	SegmentsSaved       uint64  `json:"segments_saved"`
	SegmentsDiscarded   uint64  `json:"segments_discarded"`
	DiscardedShort      uint64  `json:"discarded_short"`
	DiscardedLowContent uint64  `json:"discarded_low_content"`
	EncodeFailures      uint64  `json:"encode_failures"`
}

// Accumulator owns the growing sample buffer and the silence-detection state.
// Append runs on the stream callback path and only takes a brief lock to grow
// the active buffer; Flush swaps buffers under the same lock and does all file
// I/O on the retired buffer without holding it.
type Accumulator struct {
	config  AccumulatorConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	// Active sample buffer, exclusively appended by the capture side
	bufMu       sync.Mutex
	active      []float32
	bufferStart time.Time

	// Silence scoring state, separate lock so flush checks from the control
	// loop never contend with buffer appends
	silMu        sync.Mutex
	state        State
	silenceStart time.Time
	lastAudio    time.Time

	// Statistics
	statsMu             sync.Mutex
	segmentsSaved       uint64
	segmentsDiscarded   uint64
	discardedShort      uint64
	discardedLowContent uint64
	encodeFailures      uint64
}

// NewAccumulator creates a segment accumulator writing artifacts to config.OutputDir
func NewAccumulator(config AccumulatorConfig, logger *slog.Logger, m *metrics.Metrics) (*Accumulator, error) {
	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}

	if config.ChunkDuration <= 0 {
		return nil, fmt.Errorf("chunk duration must be positive, got %s", config.ChunkDuration)
	}

	if config.SilenceDuration <= 0 {
		return nil, fmt.Errorf("silence duration must be positive, got %s", config.SilenceDuration)
	}

	if config.NoiseGate <= 0 {
		config.NoiseGate = config.SilenceThreshold
	}

	return &Accumulator{
		config:  config,
		logger:  logger,
		metrics: m,
		active:  make([]float32, 0, config.SampleRate*2),
	}, nil
}

// Append adds one mono frame to the active buffer and updates the silence
// state. Returns the frame RMS so the caller can feed level diagnostics
// without scoring twice.
func (a *Accumulator) Append(samples []float32, now time.Time) float64 {
	if len(samples) == 0 {
		return 0
	}

	a.bufMu.Lock()
	if len(a.active) == 0 {
		a.bufferStart = now
	}
	a.active = append(a.active, samples...)
	a.bufMu.Unlock()

	rms := RMS(samples)

	a.silMu.Lock()
	if rms > a.config.SilenceThreshold {
		// Audio detected - clear the silence timer
		a.silenceStart = time.Time{}
		a.lastAudio = now
		a.state = StateAccumulating
	} else {
		if a.silenceStart.IsZero() {
			a.silenceStart = now
		}
		if a.state == StateIdle {
			a.state = StateAccumulating
		} else if a.state == StateAccumulating {
			a.state = StateTrailingSilence
		}
	}
	a.silMu.Unlock()

	return rms
}

// ShouldFlush reports whether a flush trigger has fired: either the trailing
// silence has lasted long enough, or the buffer has hit the hard duration cap.
func (a *Accumulator) ShouldFlush(now time.Time) (FlushReason, bool) {
	a.bufMu.Lock()
	buffered := len(a.active)
	start := a.bufferStart
	a.bufMu.Unlock()

	if buffered == 0 {
		return "", false
	}

	if now.Sub(start) >= a.config.ChunkDuration {
		return FlushMaxDuration, true
	}

	a.silMu.Lock()
	silenceStart := a.silenceStart
	lastAudio := a.lastAudio
	a.silMu.Unlock()

	if !silenceStart.IsZero() && !lastAudio.IsZero() && now.Sub(silenceStart) >= a.config.SilenceDuration {
		return FlushSilence, true
	}

	return "", false
}

// Flush finalizes the current buffer. It either discards the buffer (too
// short, or not enough content above the noise gate) or writes exactly one
// WAV artifact and returns its Segment. The buffer and silence state are
// reset regardless of outcome.
func (a *Accumulator) Flush(now time.Time, reason FlushReason) (*Segment, error) {
	// Swap the active buffer out under a brief lock; everything below works
	// on the retired buffer only.
	a.bufMu.Lock()
	retired := a.active
	a.active = make([]float32, 0, a.config.SampleRate*2)
	a.bufMu.Unlock()

	a.silMu.Lock()
	a.state = StateIdle
	a.silenceStart = time.Time{}
	a.lastAudio = time.Time{}
	a.silMu.Unlock()

	if len(retired) == 0 {
		return nil, nil
	}

	duration := time.Duration(float64(len(retired)) / float64(a.config.SampleRate) * float64(time.Second))

	if duration < a.config.MinAudioDuration {
		a.recordDiscard(&a.discardedShort, "short")
		a.logger.Debug("Skipping short audio segment",
			slog.Float64("duration", duration.Seconds()),
			slog.String("reason", string(reason)),
		)
		return nil, nil
	}

	analysis := AnalyzeContent(retired, a.config.SampleRate, a.config.NoiseGate)
	if !analysis.Acceptable() {
		a.recordDiscard(&a.discardedLowContent, "low_content")
		a.logger.Debug("Skipping low-content audio segment",
			slog.Float64("duration", duration.Seconds()),
			slog.Float64("overall_rms", analysis.OverallRMS),
			slog.Float64("content_ratio", analysis.ContentRatio),
			slog.String("reason", string(reason)),
		)
		return nil, nil
	}

	filename := fmt.Sprintf("audio_%s.wav", now.Format("20060102_150405"))
	path := filepath.Join(a.config.OutputDir, filename)

	if err := WriteWAVFile(path, retired, a.config.SampleRate); err != nil {
		a.statsMu.Lock()
		a.encodeFailures++
		a.statsMu.Unlock()
		return nil, fmt.Errorf("failed to save segment: %w", err)
	}

	segment := &Segment{
		ID:         uuid.NewString(),
		FilePath:   path,
		StartTime:  now.Add(-duration),
		EndTime:    now,
		Duration:   duration,
		SampleRate: a.config.SampleRate,
	}

	a.statsMu.Lock()
	a.segmentsSaved++
	a.statsMu.Unlock()
	a.metrics.RecordSegmentSaved(duration.Seconds())

	a.logger.Info("Audio segment saved",
		slog.String("segment_id", segment.ID),
		slog.String("file", filename),
		slog.Float64("duration", duration.Seconds()),
		slog.String("reason", string(reason)),
	)

	return segment, nil
}

func (a *Accumulator) recordDiscard(counter *uint64, reason string) {
	a.statsMu.Lock()
	a.segmentsDiscarded++
	*counter++
	a.statsMu.Unlock()
	a.metrics.RecordSegmentDiscarded(reason)
}

// State returns the current segmentation state
func (a *Accumulator) State() State {
	a.silMu.Lock()
	defer a.silMu.Unlock()
	return a.state
}

// BufferedSamples returns the number of samples in the active buffer
func (a *Accumulator) BufferedSamples() int {
	a.bufMu.Lock()
	defer a.bufMu.Unlock()
	return len(a.active)
}

// Stats returns current accumulator statistics
func (a *Accumulator) Stats() AccumulatorStats {
	a.bufMu.Lock()
	buffered := len(a.active)
	a.bufMu.Unlock()

	a.statsMu.Lock()
	defer a.statsMu.Unlock()

	return AccumulatorStats{
		State:               a.State().String(),
		BufferedSamples:     buffered,
		BufferedSeconds:     float64(buffered) / float64(a.config.SampleRate),
		SegmentsSaved:       a.segmentsSaved,
		SegmentsDiscarded:   a.segmentsDiscarded,
		DiscardedShort:      a.discardedShort,
		DiscardedLowContent: a.discardedLowContent,
		EncodeFailures:      a.encodeFailures,
	}
}
