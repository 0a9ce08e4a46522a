// Package speak plays a reply through text-to-speech and the local output
// device as one blocking call.
package speak

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/solace/pkg/audio"
	"github.com/MrWong99/solace/pkg/provider/tts"
)

// ErrNoAudio is returned when synthesis finished without producing any audio,
// which is how TTS providers signal a failed synthesis.
var ErrNoAudio = errors.New("speak: synthesis produced no audio")

// Option configures a [Speaker].
type Option func(*Speaker)

// WithDeviceFormat converts synthesised audio to f before playback. Without
// it the provider's output format is passed to the player unchanged.
func WithDeviceFormat(f audio.Format) Option {
	return func(s *Speaker) { s.device = f }
}

// Speaker synthesises text and plays it. It is safe for concurrent use, but
// concurrent calls compete for the same output device.
type Speaker struct {
	provider tts.Provider
	out      audio.Player
	device   audio.Format
}

// New creates a Speaker.
func New(provider tts.Provider, out audio.Player, opts ...Option) *Speaker {
	s := &Speaker{provider: provider, out: out}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Speak synthesises text with voice and blocks until playback finishes, ctx
// is cancelled, or an error occurs. Blank text is a no-op.
func (s *Speaker) Speak(ctx context.Context, text string, voice tts.VoiceProfile) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if s.provider == nil || s.out == nil {
		return errors.New("speak: no text-to-speech provider or output device")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	in := make(chan string, 1)
	in <- text
	close(in)

	pcm, err := s.provider.SynthesizeStream(ctx, in, voice)
	if err != nil {
		return fmt.Errorf("speak: start synthesis: %w", err)
	}

	src := s.provider.OutputFormat()
	dst := src
	if s.device.Valid() {
		dst = s.device
	}

	var played int
	counted := make(chan []byte, cap(pcm))
	go func() {
		defer close(counted)
		converted := audio.ConvertByteStream(pcm, src, dst)
		for chunk := range converted {
			played += len(chunk)
			select {
			case counted <- chunk:
			case <-ctx.Done():
				audio.Drain(converted)
				return
			}
		}
	}()

	playErr := s.out.Play(ctx, dst, counted)
	// Play may return early on error; wait for the converter to finish so
	// played is settled.
	cancel()
	audio.Drain(counted)

	if playErr != nil {
		return fmt.Errorf("speak: play: %w", playErr)
	}
	if played == 0 {
		return ErrNoAudio
	}
	return nil
}
