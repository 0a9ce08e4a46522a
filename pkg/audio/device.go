package audio

import "context"

// Microphone captures PCM audio from a local input device.
//
// Implementations must be safe for concurrent use, but only one capture is
// expected to be active at a time.
type Microphone interface {
	// Capture starts recording in the requested format and returns a channel
	// of frames. The channel is closed when ctx is cancelled or the device
	// fails; a close while ctx is still live means the capture broke.
	Capture(ctx context.Context, format Format) (<-chan AudioFrame, error)

	// Probe reports whether an input device is present and can be opened.
	Probe(ctx context.Context) error
}

// Player plays PCM audio on a local output device.
type Player interface {
	// Play writes every chunk received on pcm to the device and returns once
	// pcm is closed and the audio has been handed to the device, or when ctx
	// is cancelled. Chunks are in the given format.
	Play(ctx context.Context, format Format, pcm <-chan []byte) error
}

// Device is a local input and output pair such as the host's default sound
// card. Close releases it.
type Device interface {
	Microphone
	Player
	Close() error
}
