// Package audio implements the sample-level core of the recorder: RMS level
// analysis, the silence-driven segment accumulator, and encoding of finished
// segments to 16-bit PCM WAV files for transcription.
package audio
