// Package audio defines the PCM frame and format types shared by the capture,
// transcription, synthesis and playback stages, the local device interfaces
// ([Microphone] and [Player]), and helpers to convert between formats.
//
// All PCM in Solace is signed 16-bit little-endian, interleaved when there is
// more than one channel.
//
// Device implementations live in sub-packages (audio/portaudio, audio/mock).
package audio

import (
	"fmt"
	"time"
)

// AudioFrame is one chunk of captured PCM audio.
type AudioFrame struct {
	// Data holds int16 little-endian PCM samples.
	Data []byte

	// SampleRate in Hz (e.g. 16000 for STT input).
	SampleRate int

	// Channels is 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to capture start.
	Timestamp time.Duration
}

// Format returns the frame's sample rate and channel count.
func (f AudioFrame) Format() Format {
	return Format{SampleRate: f.SampleRate, Channels: f.Channels}
}

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Common formats.
var (
	// Speech is 16 kHz mono, the input format every STT provider accepts.
	Speech = Format{SampleRate: 16000, Channels: 1}
)

// Valid reports whether both fields are positive.
func (f Format) Valid() bool { return f.SampleRate > 0 && f.Channels > 0 }

// BytesPerSecond returns the PCM byte rate for 16-bit samples.
func (f Format) BytesPerSecond() int { return f.SampleRate * f.Channels * 2 }

// Duration returns the play time of n bytes of PCM in this format.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

// String returns e.g. "48000Hz stereo".
func (f Format) String() string {
	ch := "mono"
	switch {
	case f.Channels == 2:
		ch = "stereo"
	case f.Channels > 2:
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}
