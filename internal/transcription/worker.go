package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShichengRao/transcription-and-summary/internal/audio"
	"github.com/ShichengRao/transcription-and-summary/internal/metrics"
)

const (
	dequeueTimeout    = 1 * time.Second
	workerJoinTimeout = 10 * time.Second
)

// Result is one completed transcription
type Result struct {
	ID                  string          `json:"id"`
	Segment             *audio.Segment  `json:"segment"`
	Text                string          `json:"text"`
	Language            string          `json:"language"`
	LanguageProbability float64         `json:"language_probability"`
	Segments            []SegmentTiming `json:"segments"`
	ProcessingTime      time.Duration   `json:"processing_time"`
	CompletedAt         time.Time       `json:"completed_at"`
}

// WorkerStats represents worker statistics for monitoring
type WorkerStats struct {
	Backend              string  `json:"backend"`
	Processed            uint64  `json:"processed"`
	Failed               uint64  `json:"failed"`
	Skipped              uint64  `json:"skipped"`
	Quarantined          uint64  `json:"quarantined"`
	TotalProcessingSec   float64 `json:"total_processing_seconds"`
	AverageProcessingSec float64 `json:"average_processing_seconds"`
}

// WorkerConfig contains transcription worker configuration
type WorkerConfig struct {
	Timeout        time.Duration // per engine invocation
	QuarantineDir  string        // failed segments' audio files move here
	ResultCapacity int
}

// Worker drains the segment queue through a single engine instance. One
// segment is in flight at a time; the model lock also serializes any direct
// engine use from outside the loop.
type Worker struct {
	config   WorkerConfig
	engine   Transcriber
	queue    *SegmentQueue
	logger   *slog.Logger
	metrics  *metrics.Metrics
	onResult func(*Result)

	modelMu sync.Mutex

	results chan *Result

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	statsMu         sync.Mutex
	running         bool
	processed       uint64
	failed          uint64
	skipped         uint64
	quarantined     uint64
	totalProcessing time.Duration
}

// NewWorker creates a transcription worker over the given engine and queue
func NewWorker(config WorkerConfig, engine Transcriber, queue *SegmentQueue,
	logger *slog.Logger, m *metrics.Metrics) *Worker {

	return &Worker{
		config:  config,
		engine:  engine,
		queue:   queue,
		logger:  logger,
		metrics: m,
		results: make(chan *Result, config.ResultCapacity),
	}
}

// SetResultCallback sets the function invoked for each completed result.
// Must be called before Start.
func (w *Worker) SetResultCallback(callback func(*Result)) {
	w.onResult = callback
}

// Start launches the worker loop
func (w *Worker) Start() {
	w.statsMu.Lock()
	if w.running {
		w.statsMu.Unlock()
		w.logger.Warn("Transcription worker already running")
		return
	}
	w.running = true
	w.statsMu.Unlock()

	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.done = make(chan struct{})

	go w.loop()

	w.logger.Info("Transcription worker started",
		slog.String("backend", w.engine.Name()),
		slog.Duration("timeout", w.config.Timeout),
	)
}

// Stop signals the loop and waits for the in-flight segment to finish, up to
// a bounded timeout. A segment abandoned at the timeout keeps its audio file
// on disk and is picked up manually.
func (w *Worker) Stop() error {
	w.statsMu.Lock()
	if !w.running {
		w.statsMu.Unlock()
		return nil
	}
	w.running = false
	w.statsMu.Unlock()

	w.cancel()

	select {
	case <-w.done:
	case <-time.After(workerJoinTimeout):
		w.logger.Warn("Transcription worker did not stop in time, abandoning in-flight segment")
		return fmt.Errorf("transcription worker did not stop within %s", workerJoinTimeout)
	}

	w.logger.Info("Transcription worker stopped",
		slog.Uint64("processed", w.Stats().Processed),
		slog.Uint64("failed", w.Stats().Failed),
	)

	return nil
}

// Engine returns the underlying transcription engine
func (w *Worker) Engine() Transcriber {
	return w.engine
}

// Results returns the channel of completed transcriptions
func (w *Worker) Results() <-chan *Result {
	return w.results
}

// DrainResults removes and returns all buffered results without waiting
func (w *Worker) DrainResults() []*Result {
	var drained []*Result
	for {
		select {
		case result := <-w.results:
			drained = append(drained, result)
		default:
			return drained
		}
	}
}

// Stats returns current worker statistics
func (w *Worker) Stats() WorkerStats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()

	stats := WorkerStats{
		Backend:            w.engine.Name(),
		Processed:          w.processed,
		Failed:             w.failed,
		Skipped:            w.skipped,
		Quarantined:        w.quarantined,
		TotalProcessingSec: w.totalProcessing.Seconds(),
	}
	if w.processed > 0 {
		stats.AverageProcessingSec = w.totalProcessing.Seconds() / float64(w.processed)
	}
	return stats
}

func (w *Worker) loop() {
	defer close(w.done)

	for {
		segment, err := w.queue.Dequeue(w.ctx, dequeueTimeout)
		if err != nil {
			// Context cancelled
			return
		}
		if segment == nil {
			continue
		}

		w.process(segment)

		select {
		case <-w.ctx.Done():
			return
		default:
		}
	}
}

// process transcribes one segment. On success the audio file is deleted; on
// failure it moves to the quarantine directory so nothing reprocesses it.
func (w *Worker) process(segment *audio.Segment) {
	if _, err := os.Stat(segment.FilePath); err != nil {
		w.statsMu.Lock()
		w.skipped++
		w.statsMu.Unlock()
		w.metrics.RecordTranscriptionSkipped()
		w.logger.Warn("Segment audio file missing, skipping",
			slog.String("segment_id", segment.ID),
			slog.String("file", segment.FilePath),
		)
		return
	}

	ctx, cancel := context.WithTimeout(w.ctx, w.config.Timeout)
	defer cancel()

	w.metrics.RecordTranscriptionRequest()
	start := time.Now()

	w.modelMu.Lock()
	output, err := w.engine.Transcribe(ctx, segment.FilePath)
	w.modelMu.Unlock()

	elapsed := time.Since(start)

	if err != nil {
		w.statsMu.Lock()
		w.failed++
		w.statsMu.Unlock()
		w.metrics.RecordTranscriptionFailure(elapsed.Seconds())

		w.logger.Error("Transcription failed",
			slog.String("segment_id", segment.ID),
			slog.String("file", segment.FilePath),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)

		w.quarantine(segment)
		return
	}

	result := &Result{
		ID:                  uuid.NewString(),
		Segment:             segment,
		Text:                joinSegmentText(output.Segments),
		Language:            output.Language,
		LanguageProbability: output.LanguageProbability,
		Segments:            output.Segments,
		ProcessingTime:      elapsed,
		CompletedAt:         time.Now(),
	}

	w.statsMu.Lock()
	w.processed++
	w.totalProcessing += elapsed
	w.statsMu.Unlock()
	w.metrics.RecordTranscriptionSuccess(elapsed.Seconds())

	w.logger.Info("Transcription completed",
		slog.String("segment_id", segment.ID),
		slog.String("language", result.Language),
		slog.Int("characters", len(result.Text)),
		slog.Duration("elapsed", elapsed),
	)

	if err := removeSegmentFile(segment.FilePath); err != nil {
		w.logger.Warn("Failed to remove transcribed audio file",
			slog.String("file", segment.FilePath),
			slog.String("error", err.Error()),
		)
	}

	select {
	case w.results <- result:
	default:
		w.logger.Warn("Result buffer full, dropping oldest result")
		select {
		case <-w.results:
		default:
		}
		select {
		case w.results <- result:
		default:
		}
	}

	if w.onResult != nil {
		w.onResult(result)
	}
}

// quarantine moves a failed segment's audio file out of the output directory
func (w *Worker) quarantine(segment *audio.Segment) {
	if w.config.QuarantineDir == "" {
		return
	}

	if err := os.MkdirAll(w.config.QuarantineDir, 0o755); err != nil {
		w.logger.Error("Failed to create quarantine directory",
			slog.String("dir", w.config.QuarantineDir),
			slog.String("error", err.Error()),
		)
		return
	}

	dest := filepath.Join(w.config.QuarantineDir, filepath.Base(segment.FilePath))
	if err := os.Rename(segment.FilePath, dest); err != nil {
		w.logger.Error("Failed to quarantine segment audio file",
			slog.String("file", segment.FilePath),
			slog.String("error", err.Error()),
		)
		return
	}

	w.statsMu.Lock()
	w.quarantined++
	w.statsMu.Unlock()

	w.logger.Warn("Segment audio file quarantined",
		slog.String("segment_id", segment.ID),
		slog.String("file", dest),
	)
}

// joinSegmentText concatenates per-segment text into one transcript
func joinSegmentText(segments []SegmentTiming) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		text := strings.TrimSpace(s.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// removeSegmentFile deletes a segment artifact, tolerating a file that is
// already gone
func removeSegmentFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
