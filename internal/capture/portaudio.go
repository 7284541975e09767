package capture

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// PortAudioSource is the hardware-backed audio source. A single instance owns
// the PortAudio runtime; Close terminates it.
type PortAudioSource struct{}

// NewPortAudioSource initializes the PortAudio runtime
func NewPortAudioSource() (*PortAudioSource, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, &DeviceError{Op: "initialize", Err: err}
	}
	return &PortAudioSource{}, nil
}

// Devices enumerates available input devices. Device IDs are indexes into the
// host's full device list, so they remain valid for Open.
func (s *PortAudioSource) Devices() ([]Device, error) {
	all, err := portaudio.Devices()
	if err != nil {
		return nil, &DeviceError{Op: "enumerate", Err: err}
	}

	devices := make([]Device, 0, len(all))
	for i, info := range all {
		if info.MaxInputChannels <= 0 {
			continue
		}
		devices = append(devices, Device{
			ID:         i,
			Name:       info.Name,
			Channels:   info.MaxInputChannels,
			SampleRate: info.DefaultSampleRate,
		})
	}

	return devices, nil
}

// Open opens an input stream on the configured device
func (s *PortAudioSource) Open(config StreamConfig) (Stream, error) {
	if config.OnFrames == nil {
		return nil, fmt.Errorf("stream config requires an OnFrames callback")
	}

	var info *portaudio.DeviceInfo
	var err error

	if config.DeviceID < 0 {
		info, err = portaudio.DefaultInputDevice()
		if err != nil {
			return nil, &DeviceError{Op: "default device", Err: err}
		}
	} else {
		all, err := portaudio.Devices()
		if err != nil {
			return nil, &DeviceError{Op: "enumerate", Err: err}
		}
		if config.DeviceID >= len(all) {
			return nil, &DeviceError{Op: "open", Err: fmt.Errorf("device id %d out of range (%d devices)", config.DeviceID, len(all))}
		}
		info = all[config.DeviceID]
	}

	if info.MaxInputChannels < config.Channels {
		return nil, &DeviceError{Op: "open", Err: fmt.Errorf("device %q supports %d input channels, need %d",
			info.Name, info.MaxInputChannels, config.Channels)}
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: config.Channels,
			Latency:  info.DefaultLowInputLatency,
		},
		SampleRate:      float64(config.SampleRate),
		FramesPerBuffer: config.FramesPerBuffer,
	}

	stream, err := portaudio.OpenStream(params, func(in []float32) {
		config.OnFrames(in, config.Channels)
	})
	if err != nil {
		return nil, &DeviceError{Op: "open", Err: err}
	}

	return &paStream{stream: stream}, nil
}

// Close terminates the PortAudio runtime
func (s *PortAudioSource) Close() error {
	return portaudio.Terminate()
}

type paStream struct {
	stream *portaudio.Stream
}

func (p *paStream) Start() error {
	if err := p.stream.Start(); err != nil {
		return &DeviceError{Op: "start", Err: err}
	}
	return nil
}

func (p *paStream) Stop() error {
	return p.stream.Stop()
}

func (p *paStream) Close() error {
	return p.stream.Close()
}
