package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ShichengRao/transcription-and-summary/internal/audio"
	"github.com/ShichengRao/transcription-and-summary/internal/metrics"
)

const (
	maxRestartBackoff   = 30 * time.Second
	levelLogInterval    = 5 * time.Second
	stopJoinTimeout     = 5 * time.Second
	defaultStallTimeout = 5 * time.Second
)

// ControllerConfig contains capture controller configuration
type ControllerConfig struct {
	DeviceID        int
	SampleRate      int
	Channels        int
	FramesPerBuffer int
	PollInterval    time.Duration
	MaxRestarts     int
	RestartBackoff  time.Duration

	// StallTimeout is how long the stream may deliver no frames before it
	// is treated as failed. A live input stream delivers frames
	// continuously, silence included, so a quiet room never trips this.
	StallTimeout time.Duration
}

// ControllerStats represents controller statistics for monitoring
type ControllerStats struct {
	Running        bool   `json:"running"`
	Paused         bool   `json:"paused"`
	FramesReceived uint64 `json:"frames_received"`
	FramesDropped  uint64 `json:"frames_dropped"`
	Restarts       uint64 `json:"restarts"`
	LastError      string `json:"last_error,omitempty"`
}

// Controller drives the audio source and feeds frames to the accumulator.
// The frame callback path only downmixes, appends, and scores; flushes (which
// perform file I/O) run from the 100ms control loop. Stream failures are
// retried with exponential backoff before being reported as fatal.
type Controller struct {
	config    ControllerConfig
	source    Source
	acc       *audio.Accumulator
	levels    *audio.LevelMonitor
	logger    *slog.Logger
	metrics   *metrics.Metrics
	onSegment func(*audio.Segment)
	onFatal   func(error)

	paused  atomic.Bool
	running atomic.Bool

	framesReceived atomic.Uint64
	framesDropped  atomic.Uint64
	restarts       atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	errCh  chan error

	streamMu sync.Mutex
	stream   Stream

	errMu   sync.Mutex
	lastErr string
}

// NewController creates a capture controller over the given source
func NewController(config ControllerConfig, source Source, acc *audio.Accumulator,
	levels *audio.LevelMonitor, logger *slog.Logger, m *metrics.Metrics) *Controller {

	if config.StallTimeout <= 0 {
		config.StallTimeout = defaultStallTimeout
	}

	return &Controller{
		config:  config,
		source:  source,
		acc:     acc,
		levels:  levels,
		logger:  logger,
		metrics: m,
		errCh:   make(chan error, 1),
	}
}

// SetSegmentCallback sets the function invoked for each finalized segment.
// Must be called before Start.
func (c *Controller) SetSegmentCallback(callback func(*audio.Segment)) {
	c.onSegment = callback
}

// SetFatalCallback sets the function invoked when capture gives up after
// exhausting restarts. Must be called before Start.
func (c *Controller) SetFatalCallback(callback func(error)) {
	c.onFatal = callback
}

// Start opens the input stream and launches the control loop. A device-open
// failure is returned immediately; failures after a successful start go
// through the supervised restart path instead.
func (c *Controller) Start() error {
	if c.running.Load() {
		c.logger.Warn("Capture already running")
		return nil
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.done = make(chan struct{})

	stream, err := c.openStream()
	if err != nil {
		c.cancel()
		return fmt.Errorf("failed to start capture: %w", err)
	}

	c.streamMu.Lock()
	c.stream = stream
	c.streamMu.Unlock()

	c.running.Store(true)
	c.paused.Store(false)

	go c.controlLoop()

	c.logger.Info("Audio capture started",
		slog.Int("device_id", c.config.DeviceID),
		slog.Int("sample_rate", c.config.SampleRate),
		slog.Int("channels", c.config.Channels),
		slog.Int("frames_per_buffer", c.config.FramesPerBuffer),
	)

	return nil
}

// Stop signals the control loop, joins it with a bounded timeout, closes the
// stream and flushes whatever remains in the buffer.
func (c *Controller) Stop() error {
	if !c.running.Load() {
		return nil
	}

	c.cancel()

	var joinErr error
	select {
	case <-c.done:
	case <-time.After(stopJoinTimeout):
		joinErr = fmt.Errorf("capture control loop did not stop within %s", stopJoinTimeout)
		c.logger.Warn("Capture control loop join timed out")
	}

	c.closeStream()
	c.running.Store(false)

	// Late flush of whatever the buffer still holds, outside the stopped loop
	c.flush(time.Now(), audio.FlushShutdown)

	c.logger.Info("Audio capture stopped",
		slog.Uint64("frames_received", c.framesReceived.Load()),
		slog.Uint64("frames_dropped", c.framesDropped.Load()),
		slog.Uint64("restarts", c.restarts.Load()),
	)

	return joinErr
}

// Pause stops frame ingestion without tearing down the stream. Frames are
// still delivered but dropped; silence and duration timers are not reset.
func (c *Controller) Pause() {
	c.paused.Store(true)
	c.logger.Info("Audio capture paused")
}

// Resume re-enables frame ingestion
func (c *Controller) Resume() {
	c.paused.Store(false)
	c.logger.Info("Audio capture resumed")
}

// IsRecording reports whether the controller is running and not paused
func (c *Controller) IsRecording() bool {
	return c.running.Load() && !c.paused.Load()
}

// Stats returns current controller statistics
func (c *Controller) Stats() ControllerStats {
	c.errMu.Lock()
	lastErr := c.lastErr
	c.errMu.Unlock()

	return ControllerStats{
		Running:        c.running.Load(),
		Paused:         c.paused.Load(),
		FramesReceived: c.framesReceived.Load(),
		FramesDropped:  c.framesDropped.Load(),
		Restarts:       c.restarts.Load(),
		LastError:      lastErr,
	}
}

// openStream opens and starts an input stream on the source
func (c *Controller) openStream() (Stream, error) {
	stream, err := c.source.Open(StreamConfig{
		DeviceID:        c.config.DeviceID,
		SampleRate:      c.config.SampleRate,
		Channels:        c.config.Channels,
		FramesPerBuffer: c.config.FramesPerBuffer,
		OnFrames:        c.handleFrames,
		OnError: func(err error) {
			select {
			case c.errCh <- err:
			default:
			}
		},
	})
	if err != nil {
		return nil, err
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, err
	}

	return stream, nil
}

func (c *Controller) closeStream() {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()

	if c.stream != nil {
		if err := c.stream.Stop(); err != nil {
			c.logger.Warn("Error stopping audio stream", slog.String("error", err.Error()))
		}
		if err := c.stream.Close(); err != nil {
			c.logger.Warn("Error closing audio stream", slog.String("error", err.Error()))
		}
		c.stream = nil
	}
}

// handleFrames is the real-time callback path: downmix, append, score.
// No file I/O happens here.
func (c *Controller) handleFrames(samples []float32, channels int) {
	c.framesReceived.Add(1)

	if c.paused.Load() {
		c.framesDropped.Add(1)
		c.metrics.RecordFrameDropped()
		return
	}

	mono := downmixMono(samples, channels)
	rms := c.acc.Append(mono, time.Now())
	c.levels.Observe(rms)
	c.metrics.RecordFrameCaptured()
}

// downmixMono averages interleaved multi-channel samples into mono
func downmixMono(samples []float32, channels int) []float32 {
	if channels <= 1 {
		return samples
	}

	frames := len(samples) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += samples[i*channels+ch]
		}
		mono[i] = sum / float32(channels)
	}

	return mono
}

// controlLoop polls flush triggers and handles stream failures
func (c *Controller) controlLoop() {
	defer close(c.done)

	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	lastLevelLog := time.Now()
	lastFrames := c.framesReceived.Load()
	lastProgress := time.Now()

	c.logger.Debug("Capture control loop started",
		slog.Duration("poll_interval", c.config.PollInterval),
	)

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Debug("Capture control loop stopping")
			return

		case err := <-c.errCh:
			if !c.superviseRestart(err) {
				return
			}
			lastFrames = c.framesReceived.Load()
			lastProgress = time.Now()

		case <-ticker.C:
			now := time.Now()

			// Not every backend reports asynchronous failures, so a
			// stream that stops delivering frames counts as failed too
			if frames := c.framesReceived.Load(); frames != lastFrames {
				lastFrames = frames
				lastProgress = now
			} else if now.Sub(lastProgress) >= c.config.StallTimeout {
				if !c.superviseRestart(fmt.Errorf("no frames received for %s", now.Sub(lastProgress).Round(time.Millisecond))) {
					return
				}
				lastFrames = c.framesReceived.Load()
				lastProgress = time.Now()
				continue
			}

			if reason, ok := c.acc.ShouldFlush(now); ok {
				c.flush(now, reason)
			}

			if now.Sub(lastLevelLog) >= levelLogInterval {
				levels := c.levels.Levels()
				c.logger.Debug("Audio levels",
					slog.Float64("current", levels.Current),
					slog.Float64("average", levels.Average),
					slog.Float64("maximum", levels.Maximum),
					slog.Float64("threshold", levels.Threshold),
				)
				lastLevelLog = now
			}
		}
	}
}

// flush finalizes the buffer and hands any resulting segment upward
func (c *Controller) flush(now time.Time, reason audio.FlushReason) {
	segment, err := c.acc.Flush(now, reason)
	if err != nil {
		// Encode failure: the segment is dropped, no callback fires
		c.logger.Error("Failed to flush audio segment", slog.String("error", err.Error()))
		return
	}

	if segment != nil && c.onSegment != nil {
		c.onSegment(segment)
	}
}

// superviseRestart tears down the failed stream and retries with exponential
// backoff. Returns false when restarts are exhausted and capture must stop.
func (c *Controller) superviseRestart(cause error) bool {
	c.errMu.Lock()
	c.lastErr = cause.Error()
	c.errMu.Unlock()

	c.logger.Error("Audio stream failed, attempting restart",
		slog.String("error", cause.Error()),
	)

	c.closeStream()

	backoff := c.config.RestartBackoff
	for attempt := 1; ; attempt++ {
		if attempt > c.config.MaxRestarts {
			c.logger.Error("Capture restarts exhausted, giving up",
				slog.Int("attempts", attempt-1),
				slog.String("error", cause.Error()),
			)
			c.running.Store(false)
			if c.onFatal != nil {
				c.onFatal(fmt.Errorf("capture failed after %d restart attempts: %w", attempt-1, cause))
			}
			return false
		}

		select {
		case <-c.ctx.Done():
			return false
		case <-time.After(backoff):
		}

		stream, err := c.openStream()
		if err == nil {
			c.streamMu.Lock()
			c.stream = stream
			c.streamMu.Unlock()

			c.restarts.Add(1)
			c.metrics.RecordCaptureRestart()
			c.logger.Info("Audio stream restarted",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff),
			)
			return true
		}

		cause = err
		c.logger.Warn("Stream restart failed",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()),
		)

		backoff *= 2
		if backoff > maxRestartBackoff {
			backoff = maxRestartBackoff
		}
	}
}
