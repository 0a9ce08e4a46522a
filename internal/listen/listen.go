// Package listen turns one microphone capture plus one STT session into a
// single tagged [stt.Result].
//
// Each [Listener.Listen] call opens a fresh recognition stream, forwards
// captured audio until the first non-empty final transcript arrives, and
// tears both down again. The conversation loop calls it once per cycle.
package listen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/solace/pkg/audio"
	"github.com/MrWong99/solace/pkg/provider/stt"
)

// ErrUnavailable is returned by [Listener.Available] when speech recognition
// cannot be used at all.
var ErrUnavailable = errors.New("listen: speech recognition unavailable")

// errMicStopped is reported when the capture channel closes mid-listen.
var errMicStopped = errors.New("listen: microphone stopped delivering audio")

const (
	defaultLanguage        = "en-US"
	defaultNoSpeechTimeout = 8 * time.Second
	defaultKeywordBoost    = 2
)

// Config holds the recognition settings applied to every stream.
type Config struct {
	// Language is the BCP-47 recognition locale. Default "en-US".
	Language string

	// Keywords are passed to the provider as recognition hints.
	Keywords []string

	// KeywordBoost is the hint intensity. Default 2.
	KeywordBoost float64

	// NoSpeechTimeout ends an attempt that produced no transcript.
	// Default 8s.
	NoSpeechTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Language == "" {
		c.Language = defaultLanguage
	}
	if c.KeywordBoost <= 0 {
		c.KeywordBoost = defaultKeywordBoost
	}
	if c.NoSpeechTimeout <= 0 {
		c.NoSpeechTimeout = defaultNoSpeechTimeout
	}
	return c
}

// Listener captures one utterance at a time. It is safe for concurrent use,
// although the microphone normally serves one Listen call at a time.
type Listener struct {
	provider stt.Provider
	mic      audio.Microphone
	cfg      Config

	mu       sync.RWMutex
	keywords []stt.KeywordBoost
}

// New creates a Listener. provider or mic may be nil, in which case
// [Listener.Available] reports [ErrUnavailable].
func New(provider stt.Provider, mic audio.Microphone, cfg Config) *Listener {
	cfg = cfg.withDefaults()
	return &Listener{
		provider: provider,
		mic:      mic,
		cfg:      cfg,
		keywords: stt.Keywords(cfg.Keywords, cfg.KeywordBoost),
	}
}

// SetKeywords replaces the recognition hints used by subsequent streams.
func (l *Listener) SetKeywords(words []string) {
	l.mu.Lock()
	kw := stt.Keywords(words, l.cfg.KeywordBoost)
	l.keywords = kw
	l.mu.Unlock()
}

// SetKeywordBoost changes the hint intensity for the current and future
// keywords. A non-positive boost selects the default.
func (l *Listener) SetKeywordBoost(boost float64) {
	if boost <= 0 {
		boost = defaultKeywordBoost
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg.KeywordBoost = boost
	for i := range l.keywords {
		l.keywords[i].Boost = boost
	}
}

// Available reports whether a recognition provider is configured and the
// microphone can be opened. Any failure wraps [ErrUnavailable].
func (l *Listener) Available(ctx context.Context) error {
	switch {
	case l.provider == nil:
		return fmt.Errorf("%w: no speech-to-text provider", ErrUnavailable)
	case l.mic == nil:
		return fmt.Errorf("%w: no microphone", ErrUnavailable)
	}
	if err := l.mic.Probe(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// StreamConfig returns the configuration sent to the provider on each
// Listen call.
func (l *Listener) StreamConfig() stt.StreamConfig {
	l.mu.RLock()
	kw := append([]stt.KeywordBoost(nil), l.keywords...)
	l.mu.RUnlock()
	return stt.StreamConfig{
		SampleRate:      audio.Speech.SampleRate,
		Channels:        audio.Speech.Channels,
		Language:        l.cfg.Language,
		InterimResults:  false,
		MaxAlternatives: 1,
		Keywords:        kw,
	}
}

// Listen records until the first non-empty final transcript and returns it.
// It never returns an error value; failures are reported as
// [stt.ResultError] and silence as [stt.ResultEnded]:
//
//   - the stream cannot be started: [stt.ErrorService]
//   - the microphone cannot be opened or stops: [stt.ErrorAudioCapture]
//   - the stream ends with an error: [stt.ErrorNetwork]
//   - ctx is cancelled: [stt.ErrorAborted]
//   - the stream ends cleanly or the no-speech timeout fires: ended
func (l *Listener) Listen(ctx context.Context) stt.Result {
	if l.provider == nil || l.mic == nil {
		return stt.ErrorResult(stt.ErrorService, ErrUnavailable)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess, err := l.provider.StartStream(ctx, l.StreamConfig())
	if err != nil {
		if ctx.Err() != nil {
			return stt.ErrorResult(stt.ErrorAborted, ctx.Err())
		}
		return stt.ErrorResult(stt.ErrorService, fmt.Errorf("listen: start stream: %w", err))
	}
	defer func() {
		if err := sess.Close(); err != nil {
			slog.Debug("listen: close stt session", "err", err)
		}
	}()

	frames, err := l.mic.Capture(ctx, audio.Speech)
	if err != nil {
		if ctx.Err() != nil {
			return stt.ErrorResult(stt.ErrorAborted, ctx.Err())
		}
		return stt.ErrorResult(stt.ErrorAudioCapture, fmt.Errorf("listen: open microphone: %w", err))
	}
	defer func() {
		cancel()
		go audio.Drain(frames)
	}()

	return l.await(ctx, sess, frames)
}

func (l *Listener) await(ctx context.Context, sess stt.SessionHandle, frames <-chan audio.AudioFrame) stt.Result {
	timer := time.NewTimer(l.cfg.NoSpeechTimeout)
	defer timer.Stop()

	conv := audio.Converter{Target: audio.Speech}
	partials, finals := sess.Partials(), sess.Finals()
	var sendErrLogged bool

	for {
		select {
		case <-ctx.Done():
			return stt.ErrorResult(stt.ErrorAborted, ctx.Err())

		case frame, ok := <-frames:
			if !ok {
				if ctx.Err() != nil {
					return stt.ErrorResult(stt.ErrorAborted, ctx.Err())
				}
				return stt.ErrorResult(stt.ErrorAudioCapture, errMicStopped)
			}
			frame = conv.Convert(frame)
			if len(frame.Data) == 0 {
				continue
			}
			if err := sess.SendAudio(frame.Data); err != nil && !sendErrLogged {
				slog.Debug("listen: forward audio", "err", err)
				sendErrLogged = true
			}

		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			if strings.TrimSpace(t.Text) != "" {
				timer.Reset(l.cfg.NoSpeechTimeout)
			}

		case t, ok := <-finals:
			if !ok {
				if err := sess.Err(); err != nil {
					return stt.ErrorResult(stt.ErrorNetwork, fmt.Errorf("listen: stream: %w", err))
				}
				return stt.EndedResult()
			}
			if text := strings.TrimSpace(t.Text); text != "" {
				return stt.TextResult(text)
			}

		case <-timer.C:
			slog.Debug("listen: no speech detected", "timeout", l.cfg.NoSpeechTimeout)
			return stt.EndedResult()
		}
	}
}
