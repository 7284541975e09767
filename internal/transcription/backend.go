package transcription

import (
	"context"
	"fmt"
	"log/slog"
)

// SegmentTiming is a single timed span of recognized speech
type SegmentTiming struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	AvgLogProb float64 `json:"avg_logprob,omitempty"`
}

// Output is the raw result of one engine invocation
type Output struct {
	Segments            []SegmentTiming `json:"segments"`
	Language            string          `json:"language"`
	LanguageProbability float64         `json:"language_probability"`
}

// Transcriber is the speech-to-text engine capability
type Transcriber interface {
	// Name identifies the backend for logs and stats
	Name() string

	// Probe verifies the engine is usable before the pipeline starts
	Probe(ctx context.Context) error

	// Transcribe runs the engine on one audio file
	Transcribe(ctx context.Context, audioPath string) (*Output, error)
}

// Config contains engine parameters shared by all backends
type Config struct {
	ModelSize   string
	Language    string // ISO code or "auto"
	Device      string // auto, cpu, cuda
	ComputeType string
	BeamSize    int
	Temperature float64
	Python      string // interpreter for the faster-whisper backend
}

// NewTranscriber creates the configured backend
func NewTranscriber(backend string, config Config, logger *slog.Logger) (Transcriber, error) {
	switch backend {
	case "faster-whisper":
		return NewFasterWhisper(config, logger), nil
	case "whisper":
		return NewWhisperCLI(config, logger), nil
	default:
		return nil, fmt.Errorf("unknown transcription backend '%s'", backend)
	}
}
