// Package espeak provides a TTS provider backed by a local espeak-ng binary.
// It implements the tts.Provider interface.
//
// Each sentence is synthesised by one espeak-ng process writing a WAV file to
// stdout. Voice pitch and rate multipliers map onto espeak-ng's -p (0-99,
// default 50) and -s (words per minute, default 175) flags.
//
// Typical usage:
//
//	p := espeak.New(espeak.WithBinary("/usr/bin/espeak-ng"))
//	audio, err := p.SynthesizeStream(ctx, textCh, voice)
package espeak

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/MrWong99/solace/pkg/audio"
	"github.com/MrWong99/solace/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	defaultBinary   = "espeak-ng"
	defaultLanguage = "en-US"
	defaultPitch    = 50
	defaultSpeed    = 175
	minSpeed        = 80
	maxSpeed        = 450
	audioChanBuf    = 64
	pcmChunkSize    = 4096
)

// NativeFormat is the format espeak-ng writes.
var NativeFormat = audio.Format{SampleRate: 22050, Channels: 1}

// runFunc executes the binary with args, feeding stdin, and returns stdout.
type runFunc func(ctx context.Context, name string, args []string, stdin string) ([]byte, error)

// Option is a functional option for configuring the espeak Provider.
type Option func(*Provider)

// WithBinary sets the espeak-ng executable. Defaults to "espeak-ng" on PATH.
func WithBinary(path string) Option {
	return func(p *Provider) {
		if path != "" {
			p.binary = path
		}
	}
}

// WithOutputFormat resamples synthesised audio to f. Defaults to [NativeFormat].
func WithOutputFormat(f audio.Format) Option {
	return func(p *Provider) {
		if f.Valid() {
			p.format = f
		}
	}
}

// Provider implements tts.Provider by shelling out to espeak-ng.
type Provider struct {
	binary string
	format audio.Format
	run    runFunc
}

// New creates an espeak Provider. The binary is not looked up until first use;
// call [Provider.Probe] to check it up front.
func New(opts ...Option) *Provider {
	p := &Provider{
		binary: defaultBinary,
		format: NativeFormat,
		run:    execRun,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Probe reports whether the espeak-ng binary can be found.
func (p *Provider) Probe() error {
	if _, err := exec.LookPath(p.binary); err != nil {
		return fmt.Errorf("espeak: %w", err)
	}
	return nil
}

// OutputFormat implements tts.Provider.
func (p *Provider) OutputFormat() audio.Format { return p.format }

// SynthesizeStream splits text into sentences and synthesises them one after
// another. A failing espeak-ng run closes the audio channel early.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	args := buildArgs(voice)
	audioCh := make(chan []byte, audioChanBuf)

	go func() {
		defer close(audioCh)
		sentences := tts.Sentences(ctx, text)
		defer audio.Drain(sentences)

		for sentence := range sentences {
			wav, err := p.run(ctx, p.binary, args, sentence)
			if err != nil {
				return
			}
			pcm, err := tts.DecodeWAV(wav, p.format)
			if err != nil {
				return
			}
			for len(pcm) > 0 {
				end := min(pcmChunkSize, len(pcm))
				select {
				case audioCh <- pcm[:end]:
				case <-ctx.Done():
					return
				}
				pcm = pcm[end:]
			}
		}
	}()
	return audioCh, nil
}

// ListVoices runs "espeak-ng --voices" and parses its table.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	out, err := p.run(ctx, p.binary, []string{"--voices"}, "")
	if err != nil {
		return nil, fmt.Errorf("espeak: list voices: %w", err)
	}
	return parseVoices(out), nil
}

// buildArgs maps a voice profile onto espeak-ng flags. Text is read from stdin.
func buildArgs(voice tts.VoiceProfile) []string {
	name := voice.ID
	if name == "" {
		name = voice.Language
	}
	if name == "" {
		name = defaultLanguage
	}
	pitch := int(math.Round(defaultPitch * voice.PitchOrDefault()))
	pitch = max(0, min(99, pitch))
	speed := int(math.Round(defaultSpeed * voice.RateOrDefault()))
	speed = max(minSpeed, min(maxSpeed, speed))

	return []string{
		"--stdout",
		"-v", strings.ToLower(name),
		"-p", strconv.Itoa(pitch),
		"-s", strconv.Itoa(speed),
	}
}

// parseVoices parses the "espeak-ng --voices" table:
//
//	Pty Language       Age/Gender VoiceName          File                 Other Languages
//	 5  en-us           --/M      English_(America)  gmw/en-US            (en 2)
func parseVoices(out []byte) []tts.VoiceProfile {
	var profiles []tts.VoiceProfile
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 || fields[0] == "Pty" {
			continue
		}
		lang, ageGender, name := fields[1], fields[2], fields[3]
		meta := map[string]string{}
		if _, g, ok := strings.Cut(ageGender, "/"); ok && g != "" && g != "-" {
			meta["gender"] = strings.ToLower(g)
		}
		if len(fields) >= 5 {
			meta["file"] = fields[4]
		}
		profiles = append(profiles, tts.VoiceProfile{
			ID:       lang,
			Name:     strings.ReplaceAll(name, "_", " "),
			Provider: "espeak",
			Language: lang,
			Metadata: meta,
		})
	}
	return profiles
}

func execRun(ctx context.Context, name string, args []string, stdin string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = strings.NewReader(stdin)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("espeak: %s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("espeak: %s: %w", name, err)
	}
	if len(out) == 0 {
		return nil, errors.New("espeak: empty output")
	}
	return out, nil
}
