package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete recorder configuration
type Config struct {
	Audio         AudioConfig         `yaml:"audio"`
	Capture       CaptureConfig       `yaml:"capture"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Queue         QueueConfig         `yaml:"queue"`
	Storage       StorageConfig       `yaml:"storage"`
	HTTP          HTTPConfig          `yaml:"http"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// AudioConfig contains segmentation parameters
type AudioConfig struct {
	SampleRate         int     `yaml:"sample_rate"`
	Channels           int     `yaml:"channels"`
	ChunkDuration      float64 `yaml:"chunk_duration"`       // seconds, hard cap per segment
	SilenceThreshold   float64 `yaml:"silence_threshold"`    // RMS below this is candidate silence
	SilenceDuration    float64 `yaml:"silence_duration"`     // seconds of silence that triggers a flush
	MinAudioDuration   float64 `yaml:"min_audio_duration"`   // seconds, shorter segments are discarded
	NoiseGateThreshold float64 `yaml:"noise_gate_threshold"` // content-acceptance RMS floor
}

// CaptureConfig contains audio source and control loop configuration
type CaptureConfig struct {
	DeviceID        int     `yaml:"device_id"` // -1 selects the default input device
	FramesPerBuffer int     `yaml:"frames_per_buffer"`
	PollInterval    float64 `yaml:"poll_interval"`   // seconds between flush checks
	MaxRestarts     int     `yaml:"max_restarts"`    // consecutive stream failures before giving up
	RestartBackoff  float64 `yaml:"restart_backoff"` // seconds, initial backoff (doubles, capped at 30s)
}

// TranscriptionConfig contains transcription engine configuration
type TranscriptionConfig struct {
	Backend     string  `yaml:"backend"`    // "faster-whisper" or "whisper"
	ModelSize   string  `yaml:"model_size"` // tiny, base, small, medium, large
	Language    string  `yaml:"language"`   // ISO code or "auto"
	Device      string  `yaml:"device"`     // auto, cpu, cuda
	ComputeType string  `yaml:"compute_type"`
	BeamSize    int     `yaml:"beam_size"`
	Temperature float64 `yaml:"temperature"`
	Timeout     int     `yaml:"timeout"` // seconds per engine invocation
	Python      string  `yaml:"python"`  // interpreter used by the faster-whisper backend
}

// QueueConfig contains the capture→transcription hand-off configuration
type QueueConfig struct {
	Capacity       int    `yaml:"capacity"`
	Overflow       string `yaml:"overflow"` // block, drop_oldest, reject
	ResultCapacity int    `yaml:"result_capacity"`
	EventCapacity  int    `yaml:"event_capacity"`
}

// StorageConfig contains artifact directory configuration
type StorageConfig struct {
	OutputDir     string `yaml:"output_dir"`
	QuarantineDir string `yaml:"quarantine_dir"` // default: <output_dir>/quarantine
}

// HTTPConfig contains the diagnostics API server configuration
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a configuration with working defaults for a 16kHz mono microphone
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:         16000,
			Channels:           1,
			ChunkDuration:      300.0,
			SilenceThreshold:   0.02,
			SilenceDuration:    5.0,
			MinAudioDuration:   3.0,
			NoiseGateThreshold: 0.015,
		},
		Capture: CaptureConfig{
			DeviceID:        -1,
			FramesPerBuffer: 1024,
			PollInterval:    0.1,
			MaxRestarts:     5,
			RestartBackoff:  1.0,
		},
		Transcription: TranscriptionConfig{
			Backend:     "faster-whisper",
			ModelSize:   "base",
			Language:    "en",
			Device:      "auto",
			ComputeType: "float32",
			BeamSize:    5,
			Temperature: 0.0,
			Timeout:     300,
			Python:      "python3",
		},
		Queue: QueueConfig{
			Capacity:       64,
			Overflow:       "block",
			ResultCapacity: 256,
			EventCapacity:  128,
		},
		Storage: StorageConfig{
			OutputDir: "recordings",
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Address: "127.0.0.1",
			Port:    8090,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file. Fields missing from the file
// keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Queue.Validate(); err != nil {
		return fmt.Errorf("queue config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates audio segmentation configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", a.SampleRate)
	}

	if a.Channels < 1 || a.Channels > 8 {
		return fmt.Errorf("channels must be between 1 and 8, got %d", a.Channels)
	}

	if a.ChunkDuration <= 0 {
		return fmt.Errorf("chunk_duration must be positive, got %f", a.ChunkDuration)
	}

	if a.SilenceThreshold <= 0 || a.SilenceThreshold >= 1 {
		return fmt.Errorf("silence_threshold must be between 0 and 1 (exclusive), got %f", a.SilenceThreshold)
	}

	if a.SilenceDuration <= 0 {
		return fmt.Errorf("silence_duration must be positive, got %f", a.SilenceDuration)
	}

	if a.MinAudioDuration <= 0 {
		return fmt.Errorf("min_audio_duration must be positive, got %f", a.MinAudioDuration)
	}

	if a.MinAudioDuration >= a.ChunkDuration {
		return fmt.Errorf("min_audio_duration (%f) must be less than chunk_duration (%f)",
			a.MinAudioDuration, a.ChunkDuration)
	}

	if a.NoiseGateThreshold < 0 || a.NoiseGateThreshold >= 1 {
		return fmt.Errorf("noise_gate_threshold must be between 0 and 1, got %f", a.NoiseGateThreshold)
	}

	return nil
}

// Validate validates capture configuration
func (c *CaptureConfig) Validate() error {
	if c.DeviceID < -1 {
		return fmt.Errorf("device_id must be -1 (default device) or a device index, got %d", c.DeviceID)
	}

	if c.FramesPerBuffer < 64 || c.FramesPerBuffer > 16384 {
		return fmt.Errorf("frames_per_buffer must be between 64 and 16384, got %d", c.FramesPerBuffer)
	}

	if c.PollInterval <= 0 || c.PollInterval > 5 {
		return fmt.Errorf("poll_interval must be between 0 and 5 seconds, got %f", c.PollInterval)
	}

	if c.MaxRestarts < 0 {
		return fmt.Errorf("max_restarts cannot be negative, got %d", c.MaxRestarts)
	}

	if c.RestartBackoff <= 0 {
		return fmt.Errorf("restart_backoff must be positive, got %f", c.RestartBackoff)
	}

	return nil
}

// supportedLanguages mirrors the Whisper language list plus "auto"
var supportedLanguages = map[string]bool{
	"auto": true, "en": true, "es": true, "fr": true, "de": true, "it": true,
	"pt": true, "ru": true, "ja": true, "ko": true, "zh": true, "ar": true,
	"hi": true, "tr": true, "pl": true, "nl": true, "sv": true, "da": true,
	"no": true, "fi": true, "uk": true,
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	validBackends := map[string]bool{"faster-whisper": true, "whisper": true}
	if !validBackends[t.Backend] {
		return fmt.Errorf("backend must be 'faster-whisper' or 'whisper', got '%s'", t.Backend)
	}

	validSizes := map[string]bool{"tiny": true, "base": true, "small": true, "medium": true, "large": true}
	if !validSizes[t.ModelSize] {
		return fmt.Errorf("model_size must be one of [tiny, base, small, medium, large], got '%s'", t.ModelSize)
	}

	if !supportedLanguages[t.Language] {
		return fmt.Errorf("unsupported language '%s'", t.Language)
	}

	validDevices := map[string]bool{"auto": true, "cpu": true, "cuda": true}
	if !validDevices[t.Device] {
		return fmt.Errorf("device must be one of [auto, cpu, cuda], got '%s'", t.Device)
	}

	if t.BeamSize < 1 || t.BeamSize > 20 {
		return fmt.Errorf("beam_size must be between 1 and 20, got %d", t.BeamSize)
	}

	if t.Temperature < 0 || t.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", t.Temperature)
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.Python == "" {
		return fmt.Errorf("python interpreter cannot be empty")
	}

	return nil
}

// Validate validates queue configuration
func (q *QueueConfig) Validate() error {
	if q.Capacity < 1 {
		return fmt.Errorf("capacity must be at least 1, got %d", q.Capacity)
	}

	validPolicies := map[string]bool{"block": true, "drop_oldest": true, "reject": true}
	if !validPolicies[q.Overflow] {
		return fmt.Errorf("overflow must be one of [block, drop_oldest, reject], got '%s'", q.Overflow)
	}

	if q.ResultCapacity < 1 {
		return fmt.Errorf("result_capacity must be at least 1, got %d", q.ResultCapacity)
	}

	if q.EventCapacity < 1 {
		return fmt.Errorf("event_capacity must be at least 1, got %d", q.EventCapacity)
	}

	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	if s.OutputDir == "" {
		return fmt.Errorf("output_dir cannot be empty")
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// EffectiveNoiseGate returns the content-acceptance threshold, falling back to
// the silence threshold when no separate gate is configured
func (a *AudioConfig) EffectiveNoiseGate() float64 {
	if a.NoiseGateThreshold > 0 {
		return a.NoiseGateThreshold
	}
	return a.SilenceThreshold
}

// GetChunkDuration returns the hard segment cap as a time.Duration
func (a *AudioConfig) GetChunkDuration() time.Duration {
	return time.Duration(a.ChunkDuration * float64(time.Second))
}

// GetSilenceDuration returns the silence flush trigger as a time.Duration
func (a *AudioConfig) GetSilenceDuration() time.Duration {
	return time.Duration(a.SilenceDuration * float64(time.Second))
}

// GetMinAudioDuration returns the minimum segment length as a time.Duration
func (a *AudioConfig) GetMinAudioDuration() time.Duration {
	return time.Duration(a.MinAudioDuration * float64(time.Second))
}

// GetPollInterval returns the flush check interval as a time.Duration
func (c *CaptureConfig) GetPollInterval() time.Duration {
	return time.Duration(c.PollInterval * float64(time.Second))
}

// GetRestartBackoff returns the initial restart backoff as a time.Duration
func (c *CaptureConfig) GetRestartBackoff() time.Duration {
	return time.Duration(c.RestartBackoff * float64(time.Second))
}

// GetTimeoutDuration returns the per-invocation engine timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetQuarantineDir returns the quarantine directory, derived from the output
// directory when not configured explicitly
func (s *StorageConfig) GetQuarantineDir() string {
	if s.QuarantineDir != "" {
		return s.QuarantineDir
	}
	return filepath.Join(s.OutputDir, "quarantine")
}
