// Package capture bridges a real-time audio input stream to the segment
// accumulator. It defines the audio source capability, a PortAudio-backed
// implementation, and the controller that feeds frames to the accumulator
// and drives flush checks from a low-frequency control loop.
package capture
