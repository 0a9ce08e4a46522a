// Package cue renders the short audible prompt played when Solace starts
// listening.
//
// A cue is decoded once (MP3 or WAV via faiface/beep, or a generated tone)
// and kept as int16 PCM in the output device format, so playing it is a
// single [audio.Player] call through the same device as speech.
package cue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/wav"

	"github.com/MrWong99/solace/pkg/audio"
)

// ErrUnsupported is returned by [Load] for files that are neither MP3 nor WAV.
var ErrUnsupported = errors.New("cue: unsupported file type")

// Default tone parameters used when no cue file is configured.
const (
	DefaultFrequency = 880.0
	DefaultDuration  = 120 * time.Millisecond
)

// resampleQuality is passed to beep.Resample. 4 is beep's recommended
// quality for speech-band audio.
const resampleQuality = 4

// Cue is pre-rendered PCM ready to play.
type Cue struct {
	pcm    []byte
	format audio.Format
}

// Load decodes the file at path and renders it in format. The decoder is
// chosen by file extension.
func Load(path string, format audio.Format) (*Cue, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cue: open %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f, strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."), format)
}

// Decode reads an encoded cue from r. kind is "mp3" or "wav".
func Decode(r io.ReadCloser, kind string, format audio.Format) (*Cue, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("cue: invalid output format %s", format)
	}
	var (
		s   beep.StreamSeekCloser
		src beep.Format
		err error
	)
	switch kind {
	case "mp3":
		s, src, err = mp3.Decode(r)
	case "wav":
		s, src, err = wav.Decode(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("cue: decode %s: %w", kind, err)
	}
	defer s.Close()

	var stream beep.Streamer = s
	target := beep.SampleRate(format.SampleRate)
	if src.SampleRate != target {
		stream = beep.Resample(resampleQuality, src.SampleRate, target, stream)
	}
	pcm, err := render(stream, format.Channels)
	if err != nil {
		return nil, fmt.Errorf("cue: render %s: %w", kind, err)
	}
	return &Cue{pcm: pcm, format: format}, nil
}

// Tone generates a sine beep of freq Hz lasting d, with a short linear fade
// at both ends to avoid clicks.
func Tone(format audio.Format, freq float64, d time.Duration) *Cue {
	if !format.Valid() {
		format = audio.Speech
	}
	if freq <= 0 {
		freq = DefaultFrequency
	}
	if d <= 0 {
		d = DefaultDuration
	}
	sr := beep.SampleRate(format.SampleRate)
	total := sr.N(d)
	fade := min(sr.N(5*time.Millisecond), total/2)
	step := 2 * math.Pi * freq / float64(format.SampleRate)

	pos := 0
	gen := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			gain := 0.3
			switch {
			case pos < fade:
				gain *= float64(pos) / float64(fade)
			case total-pos < fade:
				gain *= float64(total-pos) / float64(fade)
			}
			v := gain * math.Sin(step*float64(pos))
			samples[i] = [2]float64{v, v}
			pos++
		}
		return len(samples), true
	})
	pcm, _ := render(beep.Take(total, gen), format.Channels)
	return &Cue{pcm: pcm, format: format}
}

// Format returns the PCM format of the cue.
func (c *Cue) Format() audio.Format { return c.format }

// PCM returns the rendered samples. The slice must not be modified.
func (c *Cue) PCM() []byte { return c.pcm }

// Duration returns the play time of the cue.
func (c *Cue) Duration() time.Duration { return c.format.Duration(len(c.pcm)) }

// Play sends the cue to p and waits for playback to finish.
func (c *Cue) Play(ctx context.Context, p audio.Player) error {
	ch := make(chan []byte, 1)
	ch <- c.pcm
	close(ch)
	if err := p.Play(ctx, c.format, ch); err != nil {
		return fmt.Errorf("cue: play: %w", err)
	}
	return nil
}

// render drains s into int16 PCM with the given channel count. beep streams
// are always stereo; mono output averages both sides.
func render(s beep.Streamer, channels int) ([]byte, error) {
	var out []byte
	buf := make([][2]float64, 512)
	for {
		n, ok := s.Stream(buf)
		for _, frame := range buf[:n] {
			if channels == 1 {
				out = appendSample(out, (frame[0]+frame[1])/2)
				continue
			}
			for c := range channels {
				out = appendSample(out, frame[min(c, 1)])
			}
		}
		if !ok {
			break
		}
	}
	return out, s.Err()
}

func appendSample(out []byte, v float64) []byte {
	v = max(-1, min(1, v))
	s := int16(v * math.MaxInt16)
	return append(out, byte(s), byte(uint16(s)>>8))
}
