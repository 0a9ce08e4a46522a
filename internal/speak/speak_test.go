package speak_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/solace/internal/speak"
	"github.com/MrWong99/solace/pkg/audio"
	audiomock "github.com/MrWong99/solace/pkg/audio/mock"
	"github.com/MrWong99/solace/pkg/provider/tts"
	ttsmock "github.com/MrWong99/solace/pkg/provider/tts/mock"
)

var female = tts.VoiceProfile{ID: "female", Pitch: 1.02, Rate: 1, Language: "en-US"}

func TestSpeak(t *testing.T) {
	t.Parallel()
	p := &ttsmock.Provider{SynthesizeChunks: [][]byte{make([]byte, 320), make([]byte, 320)}}
	out := &audiomock.Player{}

	s := speak.New(p, out)
	if err := s.Speak(context.Background(), "  I hear you.  ", female); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if got := p.Text(0); got != "I hear you." {
		t.Errorf("synthesised %q, want %q", got, "I hear you.")
	}
	if v := p.SynthesizeStreamCalls[0].Voice; v.Pitch != 1.02 {
		t.Errorf("voice pitch = %v, want 1.02", v.Pitch)
	}
	if out.PlayCount() != 1 {
		t.Fatalf("PlayCount = %d, want 1", out.PlayCount())
	}
	call := out.Calls[0]
	if call.Format != audio.Speech || len(call.Data) != 640 {
		t.Errorf("played %v/%d bytes, want %v/640", call.Format, len(call.Data), audio.Speech)
	}
}

func TestSpeak_DeviceFormat(t *testing.T) {
	t.Parallel()
	// 10ms at 16 kHz mono, split mid-sample to exercise frame carry-over.
	p := &ttsmock.Provider{SynthesizeChunks: [][]byte{make([]byte, 161), make([]byte, 159)}}
	out := &audiomock.Player{}
	device := audio.Format{SampleRate: 48000, Channels: 2}

	s := speak.New(p, out, speak.WithDeviceFormat(device))
	if err := s.Speak(context.Background(), "hello", female); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	call := out.Calls[0]
	if call.Format != device {
		t.Errorf("format = %v, want %v", call.Format, device)
	}
	// 160 mono frames at 16 kHz → 480 stereo frames at 48 kHz.
	if len(call.Data) != 1920 {
		t.Errorf("played %d bytes, want 1920", len(call.Data))
	}
}

func TestSpeak_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		provider *ttsmock.Provider
		player   *audiomock.Player
		wantErr  error
	}{
		{
			name:     "synthesis cannot start",
			provider: &ttsmock.Provider{SynthesizeErr: errors.New("quota")},
			player:   &audiomock.Player{},
		},
		{
			name:     "no audio produced",
			provider: &ttsmock.Provider{},
			player:   &audiomock.Player{},
			wantErr:  speak.ErrNoAudio,
		},
		{
			name:     "playback fails",
			provider: &ttsmock.Provider{SynthesizeChunks: [][]byte{make([]byte, 32)}},
			player:   &audiomock.Player{PlayErr: errors.New("device unplugged")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := speak.New(tt.provider, tt.player).Speak(context.Background(), "hi", female)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSpeak_BlankText(t *testing.T) {
	t.Parallel()
	p := &ttsmock.Provider{}
	if err := speak.New(p, &audiomock.Player{}).Speak(context.Background(), " \n", female); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if p.CallCount() != 0 {
		t.Errorf("SynthesizeStream called %d times for blank text", p.CallCount())
	}
}

func TestSpeak_Cancelled(t *testing.T) {
	t.Parallel()
	p := &ttsmock.Provider{SynthesizeChunks: [][]byte{make([]byte, 32)}}
	out := &audiomock.Player{Block: true}
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- speak.New(p, out).Speak(ctx, "long reply", female) }()
	cancel()

	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
