package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ShichengRao/transcription-and-summary/internal/audio"
	"github.com/ShichengRao/transcription-and-summary/internal/metrics"
)

// OverflowPolicy determines what happens when a segment is submitted to a
// full queue
type OverflowPolicy string

const (
	// OverflowBlock makes Submit wait for space (or context cancellation)
	OverflowBlock OverflowPolicy = "block"
	// OverflowDropOldest evicts the oldest queued segment to make room
	OverflowDropOldest OverflowPolicy = "drop_oldest"
	// OverflowReject fails the submission and keeps the queue unchanged
	OverflowReject OverflowPolicy = "reject"
)

// ErrQueueFull is returned by Submit under the reject policy
var ErrQueueFull = fmt.Errorf("segment queue full")

// QueueStats represents queue statistics for monitoring
type QueueStats struct {
	Depth     int    `json:"depth"`
	Capacity  int    `json:"capacity"`
	Submitted uint64 `json:"submitted"`
	Dropped   uint64 `json:"dropped"`
	Rejected  uint64 `json:"rejected"`
}

// SegmentQueue is the bounded hand-off between capture and transcription.
// Segments come out in submission order.
type SegmentQueue struct {
	ch      chan *audio.Segment
	policy  OverflowPolicy
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	submitted uint64
	dropped   uint64
	rejected  uint64
}

// NewSegmentQueue creates a bounded segment queue
func NewSegmentQueue(capacity int, policy OverflowPolicy, logger *slog.Logger, m *metrics.Metrics) *SegmentQueue {
	return &SegmentQueue{
		ch:      make(chan *audio.Segment, capacity),
		policy:  policy,
		logger:  logger,
		metrics: m,
	}
}

// Submit enqueues a segment according to the overflow policy. Under the
// drop_oldest policy the evicted segment's audio file is deleted, since
// nothing downstream will ever see it.
func (q *SegmentQueue) Submit(ctx context.Context, segment *audio.Segment) error {
	switch q.policy {
	case OverflowDropOldest:
		for {
			select {
			case q.ch <- segment:
				q.recordSubmit()
				return nil
			default:
			}

			select {
			case evicted := <-q.ch:
				q.discardEvicted(evicted)
			default:
			}
		}

	case OverflowReject:
		select {
		case q.ch <- segment:
			q.recordSubmit()
			return nil
		default:
			q.mu.Lock()
			q.rejected++
			q.mu.Unlock()
			q.metrics.RecordQueueOverflow("rejected")
			return ErrQueueFull
		}

	default: // OverflowBlock
		select {
		case q.ch <- segment:
			q.recordSubmit()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Dequeue removes the oldest segment, waiting up to timeout. Returns nil when
// the timeout elapses with an empty queue.
func (q *SegmentQueue) Dequeue(ctx context.Context, timeout time.Duration) (*audio.Segment, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case segment := <-q.ch:
		q.metrics.SetQueueDepth(len(q.ch))
		return segment, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Drain removes and returns all currently queued segments without waiting
func (q *SegmentQueue) Drain() []*audio.Segment {
	var segments []*audio.Segment
	for {
		select {
		case segment := <-q.ch:
			segments = append(segments, segment)
		default:
			q.metrics.SetQueueDepth(0)
			return segments
		}
	}
}

// Len returns the current queue depth
func (q *SegmentQueue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity
func (q *SegmentQueue) Cap() int {
	return cap(q.ch)
}

// Stats returns current queue statistics
func (q *SegmentQueue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return QueueStats{
		Depth:     len(q.ch),
		Capacity:  cap(q.ch),
		Submitted: q.submitted,
		Dropped:   q.dropped,
		Rejected:  q.rejected,
	}
}

func (q *SegmentQueue) recordSubmit() {
	q.mu.Lock()
	q.submitted++
	q.mu.Unlock()
	q.metrics.SetQueueDepth(len(q.ch))
}

func (q *SegmentQueue) discardEvicted(segment *audio.Segment) {
	q.mu.Lock()
	q.dropped++
	q.mu.Unlock()
	q.metrics.RecordQueueOverflow("dropped")

	if err := removeSegmentFile(segment.FilePath); err != nil {
		q.logger.Warn("Failed to remove evicted segment file",
			slog.String("segment_id", segment.ID),
			slog.String("error", err.Error()),
		)
	}

	q.logger.Warn("Segment queue full, dropped oldest segment",
		slog.String("segment_id", segment.ID),
		slog.Float64("duration", segment.Duration.Seconds()),
	)
}
