package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/solace/internal/config"
	"github.com/MrWong99/solace/internal/observe"
	"github.com/MrWong99/solace/internal/resilience"
)

// FallbackConfig builds the failover settings for one provider kind from the
// resilience section. Every attempt is counted in m.
func FallbackConfig(rc config.ResilienceConfig, kind string, m *observe.Metrics) resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  rc.MaxFailures,
			ResetTimeout: rc.ResetTimeout,
			HalfOpenMax:  rc.HalfOpenMax,
		},
		OnResult: func(provider string, err error) {
			if m == nil {
				return
			}
			ctx := context.Background()
			status := "ok"
			switch {
			case errors.Is(err, resilience.ErrCircuitOpen):
				status = "circuit_open"
			case err != nil:
				status = "error"
				m.RecordProviderError(ctx, provider, kind)
			}
			m.RecordProviderRequest(ctx, provider, kind, status)
		},
	}
}

// BuildProviders instantiates every provider named in cfg using the registry.
// STT, TTS and LLM providers are wrapped in their failover group together
// with any configured fallbacks. Kinds left unnamed stay nil.
func BuildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*Providers, error) {
	ps := &Providers{}
	pc := cfg.Providers
	rc := cfg.Resilience

	if pc.STT.Name != "" {
		p, err := reg.CreateSTT(pc.STT)
		if err != nil {
			return nil, fmt.Errorf("app: create stt provider %q: %w", pc.STT.Name, err)
		}
		fb := resilience.NewSTTFallback(p, pc.STT.Name, FallbackConfig(rc, "stt", m))
		for _, e := range pc.STT.Fallbacks {
			alt, err := reg.CreateSTT(e)
			if err != nil {
				return nil, fmt.Errorf("app: create stt fallback %q: %w", e.Name, err)
			}
			fb.AddFallback(e.Name, alt)
		}
		ps.STT = fb
		logCreated("stt", pc.STT)
	}

	if pc.TTS.Name != "" {
		p, err := reg.CreateTTS(pc.TTS)
		if err != nil {
			return nil, fmt.Errorf("app: create tts provider %q: %w", pc.TTS.Name, err)
		}
		fb := resilience.NewTTSFallback(p, pc.TTS.Name, FallbackConfig(rc, "tts", m))
		for _, e := range pc.TTS.Fallbacks {
			alt, err := reg.CreateTTS(e)
			if err != nil {
				return nil, fmt.Errorf("app: create tts fallback %q: %w", e.Name, err)
			}
			fb.AddFallback(e.Name, alt)
		}
		ps.TTS = fb
		logCreated("tts", pc.TTS)
	}

	if pc.LLM.Name != "" {
		p, err := reg.CreateLLM(pc.LLM)
		if err != nil {
			return nil, fmt.Errorf("app: create llm provider %q: %w", pc.LLM.Name, err)
		}
		fb := resilience.NewLLMFallback(p, pc.LLM.Name, FallbackConfig(rc, "llm", m))
		for _, e := range pc.LLM.Fallbacks {
			alt, err := reg.CreateLLM(e)
			if err != nil {
				return nil, fmt.Errorf("app: create llm fallback %q: %w", e.Name, err)
			}
			fb.AddFallback(e.Name, alt)
		}
		ps.LLM = fb
		logCreated("llm", pc.LLM)
	}

	if pc.Audio.Name != "" {
		d, err := reg.CreateAudio(pc.Audio)
		if err != nil {
			return nil, fmt.Errorf("app: create audio device %q: %w", pc.Audio.Name, err)
		}
		ps.Audio = d
		logCreated("audio", pc.Audio)
	}

	return ps, nil
}

func logCreated(kind string, e config.ProviderEntry) {
	names := make([]string, 0, len(e.Fallbacks))
	for _, f := range e.Fallbacks {
		names = append(names, f.Name)
	}
	slog.Info("provider created", "kind", kind, "name", e.Name, "model", e.Model, "fallbacks", names)
}
