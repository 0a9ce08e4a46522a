package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":   {"deepgram", "whisper", "whisper-native"},
	"tts":   {"espeak", "coqui", "elevenlabs"},
	"llm":   {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"audio": {"portaudio"},
}

// LoadEnv loads KEY=VALUE pairs from the given dotenv files into the process
// environment. Variables that are already set win. Missing files are skipped.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				slog.Debug("dotenv file not found", "path", p)
				continue
			}
			return fmt.Errorf("config: load env %q: %w", p, err)
		}
	}
	return nil
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// ${VAR} references are expanded from the environment before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(data)))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	errs = append(errs, validateEntry("stt", cfg.Providers.STT)...)
	errs = append(errs, validateEntry("tts", cfg.Providers.TTS)...)
	errs = append(errs, validateEntry("llm", cfg.Providers.LLM)...)
	errs = append(errs, validateEntry("audio", cfg.Providers.Audio)...)
	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt is not configured; the conversation cannot be started")
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("providers.tts is not configured; replies will not be spoken")
	}

	// Reply
	switch {
	case cfg.Reply.Endpoint == "" && cfg.Providers.LLM.Name == "":
		errs = append(errs, errors.New("reply.endpoint is empty and providers.llm is not configured; one of them is required"))
	case cfg.Reply.Endpoint != "":
		if u, err := url.Parse(cfg.Reply.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("reply.endpoint %q must be an absolute http(s) URL", cfg.Reply.Endpoint))
		}
	}
	if cfg.Reply.LLMFallback && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("reply.llm_fallback requires providers.llm"))
	}
	if cfg.Reply.Proxy != "" && cfg.Reply.Endpoint == "" {
		slog.Warn("reply.proxy is set but reply.endpoint is empty; the proxy is unused")
	}
	if cfg.Reply.Timeout < 0 {
		errs = append(errs, fmt.Errorf("reply.timeout %s must not be negative", cfg.Reply.Timeout))
	}

	// Conversation
	c := cfg.Conversation
	if c.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("conversation.max_entries %d must not be negative", c.MaxEntries))
	}
	for name, d := range map[string]int64{
		"error_backoff":     int64(c.ErrorBackoff),
		"empty_backoff":     int64(c.EmptyBackoff),
		"no_speech_timeout": int64(c.NoSpeechTimeout),
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("conversation.%s must not be negative", name))
		}
	}
	if c.KeywordBoost < 0 {
		errs = append(errs, fmt.Errorf("conversation.keyword_boost %.2f must not be negative", c.KeywordBoost))
	}
	switch c.DefaultVoice {
	case "", "male", "female":
	default:
		errs = append(errs, fmt.Errorf("conversation.default_voice %q is invalid; valid values: male, female", c.DefaultVoice))
	}

	// Voices
	errs = append(errs, validateVoice("voices.male", cfg.Voices.Male)...)
	errs = append(errs, validateVoice("voices.female", cfg.Voices.Female)...)

	// Store
	switch cfg.Store.Kind {
	case "", StoreMemory, StoreFile:
	case StorePostgres:
		if cfg.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("store.postgres_dsn is required when store.kind is postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.kind %q is invalid; valid values: memory, file, postgres", cfg.Store.Kind))
	}
	if cfg.Store.Kind == StoreMemory {
		slog.Warn("store.kind is memory; session history will not survive a restart")
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 || cfg.Resilience.HalfOpenMax < 0 || cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, errors.New("resilience values must not be negative"))
	}

	return errors.Join(errs...)
}

func validateEntry(kind string, e ProviderEntry) []error {
	var errs []error
	validateProviderName(kind, e.Name)
	if e.Name == "" && len(e.Fallbacks) > 0 {
		errs = append(errs, fmt.Errorf("providers.%s.fallbacks requires providers.%s.name", kind, kind))
	}
	if kind == "audio" && len(e.Fallbacks) > 0 {
		errs = append(errs, errors.New("providers.audio does not support fallbacks"))
	}
	for i, fb := range e.Fallbacks {
		prefix := fmt.Sprintf("providers.%s.fallbacks[%d]", kind, i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		if len(fb.Fallbacks) > 0 {
			errs = append(errs, fmt.Errorf("%s.fallbacks: nested fallbacks are not supported", prefix))
		}
		validateProviderName(kind, fb.Name)
	}
	return errs
}

func validateVoice(prefix string, v VoiceConfig) []error {
	var errs []error
	if v.Pitch < 0 || v.Pitch > 2 {
		errs = append(errs, fmt.Errorf("%s.pitch %.2f is out of range (0, 2]", prefix, v.Pitch))
	}
	if v.Rate != 0 && (v.Rate < 0.1 || v.Rate > 10) {
		errs = append(errs, fmt.Errorf("%s.rate %.2f is out of range [0.1, 10]", prefix, v.Rate))
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
