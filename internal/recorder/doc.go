// Package recorder assembles the transcription pipeline: capture controller,
// segment accumulator, hand-off queue and transcription worker. It owns their
// lifecycle and exposes a typed event stream for consumers.
package recorder
