package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ShichengRao/transcription-and-summary/internal/audio"
	"github.com/ShichengRao/transcription-and-summary/internal/capture"
	"github.com/ShichengRao/transcription-and-summary/internal/config"
	"github.com/ShichengRao/transcription-and-summary/internal/metrics"
	"github.com/ShichengRao/transcription-and-summary/internal/transcription"
)

const (
	probeTimeout = 30 * time.Second

	// stopSubmitTimeout bounds how long the shutdown flush may wait on a
	// full segment queue before its submission is abandoned. The segment's
	// audio file stays on disk either way.
	stopSubmitTimeout = 5 * time.Second
)

// EventKind identifies a pipeline event
type EventKind string

const (
	// EventSegmentReady fires when a segment has been saved and queued
	EventSegmentReady EventKind = "segment_ready"
	// EventTranscriptionReady fires when a segment has been transcribed
	EventTranscriptionReady EventKind = "transcription_ready"
	// EventCaptureFatal fires when capture gives up after exhausting restarts
	EventCaptureFatal EventKind = "capture_fatal"
)

// Event is one typed pipeline notification. Exactly one of Segment, Result
// and Err is set, matching Kind.
type Event struct {
	Kind    EventKind             `json:"kind"`
	Time    time.Time             `json:"time"`
	Segment *audio.Segment        `json:"segment,omitempty"`
	Result  *transcription.Result `json:"result,omitempty"`
	Err     error                 `json:"-"`
}

// Stats aggregates statistics from all pipeline stages
type Stats struct {
	Capture     capture.ControllerStats   `json:"capture"`
	Accumulator audio.AccumulatorStats    `json:"accumulator"`
	Queue       transcription.QueueStats  `json:"queue"`
	Worker      transcription.WorkerStats `json:"worker"`
	StartedAt   time.Time                 `json:"started_at"`
}

// Recorder owns the full capture-to-transcript pipeline
type Recorder struct {
	config  *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	acc        *audio.Accumulator
	levels     *audio.LevelMonitor
	controller *capture.Controller
	queue      *transcription.SegmentQueue
	worker     *transcription.Worker

	submitCtx     context.Context
	submitCancel  context.CancelFunc
	submitTimeout time.Duration

	events chan Event

	startedAt time.Time
}

// New assembles a recorder from configuration. The source and engine are
// injected so tests can run the pipeline without hardware or Python.
func New(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics,
	source capture.Source, engine transcription.Transcriber) (*Recorder, error) {

	acc, err := audio.NewAccumulator(audio.AccumulatorConfig{
		SampleRate:       cfg.Audio.SampleRate,
		ChunkDuration:    cfg.Audio.GetChunkDuration(),
		SilenceThreshold: cfg.Audio.SilenceThreshold,
		SilenceDuration:  cfg.Audio.GetSilenceDuration(),
		MinAudioDuration: cfg.Audio.GetMinAudioDuration(),
		NoiseGate:        cfg.Audio.EffectiveNoiseGate(),
		OutputDir:        cfg.Storage.OutputDir,
	}, logger, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create accumulator: %w", err)
	}

	levels := audio.NewLevelMonitor(0, cfg.Audio.SilenceThreshold)

	queue := transcription.NewSegmentQueue(cfg.Queue.Capacity,
		transcription.OverflowPolicy(cfg.Queue.Overflow), logger, m)

	worker := transcription.NewWorker(transcription.WorkerConfig{
		Timeout:        cfg.Transcription.GetTimeoutDuration(),
		QuarantineDir:  cfg.Storage.GetQuarantineDir(),
		ResultCapacity: cfg.Queue.ResultCapacity,
	}, engine, queue, logger, m)

	controller := capture.NewController(capture.ControllerConfig{
		DeviceID:        cfg.Capture.DeviceID,
		SampleRate:      cfg.Audio.SampleRate,
		Channels:        cfg.Audio.Channels,
		FramesPerBuffer: cfg.Capture.FramesPerBuffer,
		PollInterval:    cfg.Capture.GetPollInterval(),
		MaxRestarts:     cfg.Capture.MaxRestarts,
		RestartBackoff:  cfg.Capture.GetRestartBackoff(),
	}, source, acc, levels, logger, m)

	r := &Recorder{
		config:        cfg,
		logger:        logger,
		metrics:       m,
		acc:           acc,
		levels:        levels,
		controller:    controller,
		queue:         queue,
		worker:        worker,
		submitTimeout: stopSubmitTimeout,
		events:        make(chan Event, cfg.Queue.EventCapacity),
	}

	controller.SetSegmentCallback(r.onSegment)
	controller.SetFatalCallback(r.onCaptureFatal)
	worker.SetResultCallback(r.onResult)

	return r, nil
}

// Start probes the transcription engine, creates the output directory and
// brings the pipeline up. A probe failure means nothing starts.
func (r *Recorder) Start() error {
	probeCtx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	if err := r.worker.Engine().Probe(probeCtx); err != nil {
		return fmt.Errorf("transcription engine unavailable: %w", err)
	}

	if err := os.MkdirAll(r.config.Storage.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	r.submitCtx, r.submitCancel = context.WithCancel(context.Background())

	r.worker.Start()

	if err := r.controller.Start(); err != nil {
		r.worker.Stop()
		return err
	}

	r.startedAt = time.Now()

	r.logger.Info("Recorder started",
		slog.String("output_dir", r.config.Storage.OutputDir),
		slog.String("backend", r.worker.Stats().Backend),
	)

	return nil
}

// Stop shuts the pipeline down in capture-first order: the controller flushes
// its final segment before the worker drains, so the worker sees everything
// capture produced.
func (r *Recorder) Stop() error {
	var firstErr error

	// The controller's final flush submits through submitCtx. Arm a timer so
	// a full queue under the block policy cannot stall shutdown past the
	// submit budget; the abandoned segment's file survives on disk.
	var submitTimer *time.Timer
	if r.submitCancel != nil {
		submitTimer = time.AfterFunc(r.submitTimeout, r.submitCancel)
	}

	if err := r.controller.Stop(); err != nil {
		firstErr = err
	}

	if submitTimer != nil {
		submitTimer.Stop()
	}
	if r.submitCancel != nil {
		r.submitCancel()
	}

	if err := r.worker.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}

	remaining := r.queue.Drain()
	if len(remaining) > 0 {
		r.logger.Warn("Untranscribed segments remain on disk",
			slog.Int("count", len(remaining)),
		)
	}

	stats := r.Stats()
	r.logger.Info("Recorder stopped",
		slog.Uint64("segments_saved", stats.Accumulator.SegmentsSaved),
		slog.Uint64("transcribed", stats.Worker.Processed),
		slog.Uint64("failed", stats.Worker.Failed),
	)

	return firstErr
}

// Pause suspends frame ingestion
func (r *Recorder) Pause() {
	r.controller.Pause()
}

// Resume re-enables frame ingestion
func (r *Recorder) Resume() {
	r.controller.Resume()
}

// IsRecording reports whether audio is being ingested
func (r *Recorder) IsRecording() bool {
	return r.controller.IsRecording()
}

// Events returns the typed event stream. When consumers fall behind, the
// oldest event is dropped in favor of the newest.
func (r *Recorder) Events() <-chan Event {
	return r.events
}

// DrainSegments removes and returns all segments still waiting for
// transcription. Their audio files stay on disk; the caller owns them.
func (r *Recorder) DrainSegments() []*audio.Segment {
	return r.queue.Drain()
}

// DrainResults returns all buffered transcription results without waiting
func (r *Recorder) DrainResults() []*transcription.Result {
	return r.worker.DrainResults()
}

// AudioLevels returns a snapshot of recent input levels
func (r *Recorder) AudioLevels() audio.Levels {
	return r.levels.Levels()
}

// Stats returns aggregated pipeline statistics
func (r *Recorder) Stats() Stats {
	return Stats{
		Capture:     r.controller.Stats(),
		Accumulator: r.acc.Stats(),
		Queue:       r.queue.Stats(),
		Worker:      r.worker.Stats(),
		StartedAt:   r.startedAt,
	}
}

// onSegment queues a saved segment and then announces it. Queueing comes
// first so an event consumer never observes a segment the worker cannot see.
func (r *Recorder) onSegment(segment *audio.Segment) {
	if err := r.queue.Submit(r.submitCtx, segment); err != nil {
		r.logger.Error("Failed to queue segment",
			slog.String("segment_id", segment.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	r.emit(Event{
		Kind:    EventSegmentReady,
		Time:    time.Now(),
		Segment: segment,
	})
}

func (r *Recorder) onResult(result *transcription.Result) {
	r.emit(Event{
		Kind:   EventTranscriptionReady,
		Time:   time.Now(),
		Result: result,
	})
}

// onCaptureFatal announces capture death. Transcription keeps draining the
// backlog; only new audio stops arriving.
func (r *Recorder) onCaptureFatal(err error) {
	r.logger.Error("Capture stopped permanently", slog.String("error", err.Error()))

	r.emit(Event{
		Kind: EventCaptureFatal,
		Time: time.Now(),
		Err:  err,
	})
}

// emit delivers an event, evicting the oldest one if the buffer is full
func (r *Recorder) emit(event Event) {
	select {
	case r.events <- event:
		return
	default:
	}

	r.metrics.RecordEventDropped()
	select {
	case <-r.events:
	default:
	}

	select {
	case r.events <- event:
	default:
		r.metrics.RecordEventDropped()
	}
}
