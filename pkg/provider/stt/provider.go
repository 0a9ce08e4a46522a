// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (a local whisper.cpp server,
// the whisper.cpp library itself, or Deepgram's streaming API) behind a uniform
// streaming interface. A [SessionHandle] accepts raw PCM audio and emits
// [Transcript] values: optional low-latency partials and authoritative finals.
//
// Callers that only need one utterance reduce a session to a [Result], the
// tagged outcome consumed by the conversation loop.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// StreamConfig describes the audio format and recognition settings for a new
// STT session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz (16000 for Solace).
	SampleRate int

	// Channels is the number of audio channels. 1 = mono.
	Channels int

	// Language is the BCP-47 tag for recognition (e.g. "en-US"). Empty lets
	// the provider use its default.
	Language string

	// InterimResults enables partial transcripts. When false, Partials never
	// delivers a value.
	InterimResults bool

	// MaxAlternatives is the number of recognition alternatives requested.
	// Only the best one is surfaced; values below 1 mean 1.
	MaxAlternatives int

	// Keywords are vocabulary hints that raise recognition probability for
	// the given words. Providers without hint support ignore them.
	Keywords []KeywordBoost
}

// SessionHandle is an open STT streaming session.
//
// Callers must call Close when done. All methods must be safe for concurrent
// use.
type SessionHandle interface {
	// SendAudio delivers a chunk of 16-bit little-endian PCM matching the
	// StreamConfig. Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Partials emits interim transcripts. Closed when the session ends.
	Partials() <-chan Transcript

	// Finals emits committed transcripts. Closed when the session ends.
	Finals() <-chan Transcript

	// Err returns the error that terminated the session, or nil if it ended
	// normally or is still running. It is meaningful once Finals is closed.
	Err() error

	// Close terminates the session, flushes pending audio and releases
	// resources. Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// StartStream opens a new transcription session. The returned handle is
	// ready to accept audio immediately; the caller owns it and must Close it.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
