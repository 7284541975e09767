package transcription

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
)

//go:embed assets/faster_whisper.py
var fasterWhisperScript []byte

// FasterWhisper runs the faster-whisper engine through an embedded Python
// helper that prints a JSON document on stdout.
type FasterWhisper struct {
	config Config
	logger *slog.Logger

	scriptOnce sync.Once
	scriptPath string
	scriptErr  error
}

// NewFasterWhisper creates a faster-whisper backend
func NewFasterWhisper(config Config, logger *slog.Logger) *FasterWhisper {
	return &FasterWhisper{
		config: config,
		logger: logger,
	}
}

// Name returns the backend identifier
func (f *FasterWhisper) Name() string {
	return "faster-whisper"
}

// Probe checks that the interpreter exists and can import faster_whisper
func (f *FasterWhisper) Probe(ctx context.Context) error {
	if _, err := exec.LookPath(f.config.Python); err != nil {
		return fmt.Errorf("python interpreter '%s' not found: %w", f.config.Python, err)
	}

	cmd := exec.CommandContext(ctx, f.config.Python, "-c", "import faster_whisper")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("faster_whisper module unavailable: %w (%s)", err, bytes.TrimSpace(out))
	}

	return nil
}

// Transcribe runs the helper script on one audio file
func (f *FasterWhisper) Transcribe(ctx context.Context, audioPath string) (*Output, error) {
	script, err := f.ensureScript()
	if err != nil {
		return nil, err
	}

	args := []string{
		script,
		audioPath,
		"--model", f.config.ModelSize,
		"--language", f.config.Language,
		"--device", f.config.Device,
		"--compute-type", f.config.ComputeType,
		"--beam-size", strconv.Itoa(f.config.BeamSize),
		"--temperature", strconv.FormatFloat(f.config.Temperature, 'f', -1, 64),
	}

	cmd := exec.CommandContext(ctx, f.config.Python, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	// The helper prints a JSON error document before exiting non-zero, so
	// try to decode stdout either way.
	var payload struct {
		Output
		Error string `json:"error"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &payload); err != nil {
		if runErr != nil {
			return nil, fmt.Errorf("faster-whisper failed: %w (%s)", runErr, bytes.TrimSpace(stderr.Bytes()))
		}
		return nil, fmt.Errorf("failed to parse faster-whisper output: %w", err)
	}

	if payload.Error != "" {
		return nil, fmt.Errorf("faster-whisper error: %s", payload.Error)
	}

	if runErr != nil {
		return nil, fmt.Errorf("faster-whisper failed: %w", runErr)
	}

	return &payload.Output, nil
}

// ensureScript materializes the embedded helper once per process
func (f *FasterWhisper) ensureScript() (string, error) {
	f.scriptOnce.Do(func() {
		dir, err := os.MkdirTemp("", "faster-whisper-*")
		if err != nil {
			f.scriptErr = fmt.Errorf("failed to create helper dir: %w", err)
			return
		}

		path := filepath.Join(dir, "faster_whisper.py")
		if err := os.WriteFile(path, fasterWhisperScript, 0o755); err != nil {
			f.scriptErr = fmt.Errorf("failed to write helper script: %w", err)
			return
		}

		f.scriptPath = path
	})

	return f.scriptPath, f.scriptErr
}
