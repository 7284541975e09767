package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// WhisperCLI runs the reference openai-whisper command line tool. The tool
// writes its result as a JSON file next to the requested output directory.
type WhisperCLI struct {
	config Config
	logger *slog.Logger
}

// NewWhisperCLI creates a whisper CLI backend
func NewWhisperCLI(config Config, logger *slog.Logger) *WhisperCLI {
	return &WhisperCLI{
		config: config,
		logger: logger,
	}
}

// Name returns the backend identifier
func (w *WhisperCLI) Name() string {
	return "whisper"
}

// Probe checks that the whisper binary is on PATH
func (w *WhisperCLI) Probe(ctx context.Context) error {
	if _, err := exec.LookPath("whisper"); err != nil {
		return fmt.Errorf("whisper binary not found: %w", err)
	}
	return nil
}

// Transcribe runs the whisper CLI on one audio file and reads back the JSON
// document it writes
func (w *WhisperCLI) Transcribe(ctx context.Context, audioPath string) (*Output, error) {
	outDir, err := os.MkdirTemp("", "whisper-out-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	args := []string{
		audioPath,
		"--model", w.config.ModelSize,
		"--output_format", "json",
		"--output_dir", outDir,
		"--beam_size", strconv.Itoa(w.config.BeamSize),
		"--temperature", strconv.FormatFloat(w.config.Temperature, 'f', -1, 64),
	}
	if w.config.Language != "auto" {
		args = append(args, "--language", w.config.Language)
	}
	if w.config.Device == "cpu" || w.config.Device == "cuda" {
		args = append(args, "--device", w.config.Device)
	}

	cmd := exec.CommandContext(ctx, "whisper", args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("whisper failed: %w (%s)", err, bytes.TrimSpace(stderr.Bytes()))
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	resultPath := filepath.Join(outDir, base+".json")

	data, err := os.ReadFile(resultPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read whisper output: %w", err)
	}

	var payload struct {
		Language string `json:"language"`
		Segments []struct {
			Start      float64 `json:"start"`
			End        float64 `json:"end"`
			Text       string  `json:"text"`
			AvgLogProb float64 `json:"avg_logprob"`
		} `json:"segments"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse whisper output: %w", err)
	}

	output := &Output{
		Language: payload.Language,
		// The CLI does not report a detection confidence
		LanguageProbability: 1.0,
	}
	for _, s := range payload.Segments {
		output.Segments = append(output.Segments, SegmentTiming{
			Start:      s.Start,
			End:        s.End,
			Text:       s.Text,
			AvgLogProb: s.AvgLogProb,
		})
	}

	return output, nil
}
