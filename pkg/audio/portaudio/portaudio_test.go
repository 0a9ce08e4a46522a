package portaudio_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/solace/pkg/audio"
	"github.com/MrWong99/solace/pkg/audio/portaudio"
)

func TestDevice_NotOpen(t *testing.T) {
	t.Parallel()
	d := portaudio.New()
	ctx := context.Background()

	if _, err := d.Capture(ctx, audio.Speech); !errors.Is(err, portaudio.ErrNotOpen) {
		t.Errorf("Capture() error = %v, want ErrNotOpen", err)
	}
	if err := d.Probe(ctx); !errors.Is(err, portaudio.ErrNotOpen) {
		t.Errorf("Probe() error = %v, want ErrNotOpen", err)
	}

	pcm := make(chan []byte, 1)
	pcm <- []byte{0, 0}
	close(pcm)
	if err := d.Play(ctx, audio.Speech, pcm); !errors.Is(err, portaudio.ErrNotOpen) {
		t.Errorf("Play() error = %v, want ErrNotOpen", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close() on unopened device = %v, want nil", err)
	}
}
