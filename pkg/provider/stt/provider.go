// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a real-time transcription service and exposes a
// uniform streaming interface. The central abstraction is SessionHandle: once
// opened, a session accepts raw PCM audio frames and emits two streams of
// Transcript values: low-latency partials for display and authoritative finals
// for the lecture transcript.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrNotSupported is returned by optional SessionHandle operations the
// provider cannot perform.
var ErrNotSupported = errors.New("stt: operation not supported")

// StreamConfig describes the audio format and recognition hints for a new STT
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Zero selects the provider
	// default (16000 for all shipped providers).
	SampleRate int

	// Language is the BCP-47 language tag for recognition (e.g., "en", "de").
	// An empty string selects the provider default.
	Language string

	// Keyterms are domain words the recogniser should favour, typically the
	// vocabulary of the current lecture context.
	Keyterms []string
}

// SessionHandle represents an open STT streaming session.
//
// Callers must call Close when the session is no longer needed. All methods
// must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of 16-bit little-endian mono PCM at the
	// agreed sample rate. Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Partials emits interim transcripts. The channel is closed when the
	// session ends.
	Partials() <-chan Transcript

	// Finals emits committed transcripts. The channel is closed when the
	// session ends.
	Finals() <-chan Transcript

	// SetKeyterms replaces the keyterm list without restarting the session.
	// Providers that cannot do this return ErrNotSupported.
	SetKeyterms(keyterms []string) error

	// Err returns the error that ended the session, or nil while it is
	// running or after a clean Close.
	Err() error

	// Close flushes pending audio, waits for the provider to finish and
	// releases all resources. After Close returns, Partials and Finals are
	// closed. Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// StartStream opens a new streaming transcription session. The returned
	// SessionHandle is ready to accept audio immediately; the caller owns it
	// and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
