// Package transcription turns saved audio segments into text. It defines the
// engine capability, two Whisper-based backends, the bounded hand-off queue
// between capture and transcription, and the worker that drains it.
package transcription
