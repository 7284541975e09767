package capture

import "fmt"

// Device describes an audio input device
type Device struct {
	ID         int     `json:"id"`
	Name       string  `json:"name"`
	Channels   int     `json:"channels"`    // max input channels
	SampleRate float64 `json:"sample_rate"` // default sample rate
}

// StreamConfig configures an input stream opened on a Source
type StreamConfig struct {
	DeviceID        int // -1 selects the default input device
	SampleRate      int
	Channels        int
	FramesPerBuffer int

	// OnFrames receives interleaved float32 samples from the real-time
	// stream thread. It must not block on I/O.
	OnFrames func(samples []float32, channels int)

	// OnError receives asynchronous stream failures. Optional; the
	// PortAudio binding has no failure callback, so backends that cannot
	// report errors rely on the controller's frame stall detection instead.
	OnError func(err error)
}

// Stream is an open audio input stream
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// Source is the audio input capability boundary: it enumerates input devices
// and opens callback-driven streams on them.
type Source interface {
	Devices() ([]Device, error)
	Open(config StreamConfig) (Stream, error)
	Close() error
}

// DeviceError wraps failures to open or query an audio device
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio device error (%s): %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}
