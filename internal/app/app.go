// Package app wires all Solace subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the control API until its context ends, and
// Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithStore, WithReplier, etc.) and mock providers in [Providers]. When an
// option is not provided, New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/solace/internal/config"
	"github.com/MrWong99/solace/internal/conversation"
	"github.com/MrWong99/solace/internal/cue"
	"github.com/MrWong99/solace/internal/emotion"
	"github.com/MrWong99/solace/internal/health"
	"github.com/MrWong99/solace/internal/listen"
	"github.com/MrWong99/solace/internal/observe"
	"github.com/MrWong99/solace/internal/resilience"
	"github.com/MrWong99/solace/internal/speak"
	"github.com/MrWong99/solace/pkg/audio"
	"github.com/MrWong99/solace/pkg/provider/llm"
	"github.com/MrWong99/solace/pkg/provider/reply"
	"github.com/MrWong99/solace/pkg/provider/reply/chat"
	"github.com/MrWong99/solace/pkg/provider/reply/remote"
	"github.com/MrWong99/solace/pkg/provider/stt"
	"github.com/MrWong99/solace/pkg/provider/tts"
	"github.com/MrWong99/solace/pkg/store"
	"github.com/MrWong99/solace/pkg/store/file"
	"github.com/MrWong99/solace/pkg/store/postgres"
)

// shutdownTimeout bounds the HTTP server drain when Run's context ends.
const shutdownTimeout = 5 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by [BuildProviders] or by tests.
type Providers struct {
	STT   stt.Provider
	TTS   tts.Provider
	LLM   llm.Provider
	Audio audio.Device
}

// stateReporter is implemented by the resilience failover wrappers.
type stateReporter interface {
	States() []resilience.ProviderState
}

// App owns all subsystem lifetimes and serves the conversation control API.
type App struct {
	cfg       *config.Config
	providers *Providers

	store      store.Store
	replier    reply.Provider
	detector   *emotion.Detector
	listener   *listen.Listener
	speaker    *speak.Speaker
	controller *conversation.Controller
	health     *health.Handler
	metrics    *observe.Metrics
	telemetry  *observe.Telemetry
	watcher    *config.Watcher
	logLevel   *slog.LevelVar
	convOpts   []conversation.Option
	handler    http.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a store instead of creating one from config. The
// injected store is not closed by Shutdown.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithReplier injects the reply provider instead of building the remote or
// LLM-backed one from config.
func WithReplier(r reply.Provider) Option {
	return func(a *App) { a.replier = r }
}

// WithMetrics sets the metric instruments. Default [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithTelemetry mounts t.MetricsHandler at /metrics and shuts t down last.
func WithTelemetry(t *observe.Telemetry) Option {
	return func(a *App) { a.telemetry = t }
}

// WithWatcher polls the config file during Run. Its change callback should
// call [App.ApplyConfig].
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// WithLogLevel lets hot reload adjust the process log level.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithConversationOptions appends options for the conversation controller.
func WithConversationOptions(opts ...conversation.Option) Option {
	return func(a *App) { a.convOpts = append(a.convOpts, opts...) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via [BuildProviders]). Use Option functions
// to inject test doubles for any subsystem.
//
// New restores the persisted session history but does not start listening;
// that happens through the control API or conversation.auto_start.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Store ─────────────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Reply provider ────────────────────────────────────────────────
	if err := a.initReplier(); err != nil {
		return nil, fmt.Errorf("app: init reply: %w", err)
	}

	// ── 3. Listener and speaker ──────────────────────────────────────────
	conv := cfg.Conversation
	a.detector = emotion.New(conv.EmotionKeywords)
	a.listener = listen.New(providers.STT, mic(providers.Audio), listen.Config{
		Language:        conv.Language,
		Keywords:        a.detector.Keywords(),
		KeywordBoost:    conv.KeywordBoost,
		NoSpeechTimeout: conv.NoSpeechTimeout,
	})
	a.speaker = speak.New(providers.TTS, player(providers.Audio))

	// ── 4. Listening cue ─────────────────────────────────────────────────
	cueOpt, err := a.initCue()
	if err != nil {
		return nil, fmt.Errorf("app: init cue: %w", err)
	}

	// ── 5. Conversation controller ───────────────────────────────────────
	if err := a.initController(ctx, cueOpt); err != nil {
		return nil, fmt.Errorf("app: init conversation: %w", err)
	}

	// ── 6. Health and routes ─────────────────────────────────────────────
	a.initHealth()
	a.handler = a.routes()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore opens the configured persistence backend unless one was injected.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	sc := a.cfg.Store
	switch sc.Kind {
	case config.StoreMemory:
		a.store = store.NewMemory()
	case config.StorePostgres:
		s, err := postgres.New(ctx, sc.PostgresDSN)
		if err != nil {
			return err
		}
		a.store = s
	case config.StoreFile, "":
		dir := sc.Path
		if dir == "" {
			dir = defaultStateDir()
		}
		s, err := file.New(dir)
		if err != nil {
			return err
		}
		a.store = s
	default:
		return fmt.Errorf("unknown store kind %q", sc.Kind)
	}
	a.closers = append(a.closers, a.store.Close)
	slog.Info("store opened", "kind", storeKind(sc.Kind))
	return nil
}

// initReplier builds the reply chain: the remote service, the local LLM, or
// the remote service with the LLM as failover. The chain is always wrapped
// in a [resilience.ReplyFallback] so its breakers show up in /readyz.
func (a *App) initReplier() error {
	if a.replier != nil {
		return nil
	}

	rc := a.cfg.Reply
	var local reply.Provider
	if a.providers.LLM != nil && (rc.Endpoint == "" || rc.LLMFallback) {
		var opts []chat.Option
		if rc.SystemPrompt != "" {
			opts = append(opts, chat.WithSystemPrompt(rc.SystemPrompt))
		}
		if rc.EmotionPrompt != "" {
			opts = append(opts, chat.WithEmotionPrompt(rc.EmotionPrompt))
		}
		p, err := chat.New(a.providers.LLM, opts...)
		if err != nil {
			return err
		}
		local = p
	}

	fbCfg := FallbackConfig(a.cfg.Resilience, "reply", a.metrics)
	var chain *resilience.ReplyFallback
	switch {
	case rc.Endpoint != "":
		var opts []remote.Option
		if rc.Timeout > 0 {
			opts = append(opts, remote.WithTimeout(rc.Timeout))
		}
		if rc.Proxy != "" {
			opts = append(opts, remote.WithProxy(rc.Proxy))
		}
		rp, err := remote.New(rc.Endpoint, opts...)
		if err != nil {
			return err
		}
		chain = resilience.NewReplyFallback(rp, "remote", fbCfg)
		if local != nil {
			chain.AddFallback("llm", local)
		}
	case local != nil:
		chain = resilience.NewReplyFallback(local, "llm", fbCfg)
	default:
		return errors.New("reply.endpoint or providers.llm is required")
	}
	a.replier = chain
	return nil
}

// initCue renders the listening cue in the speech output format. It returns
// a nil option when the cue is disabled or there is no output device.
func (a *App) initCue() (conversation.Option, error) {
	path := a.cfg.Conversation.ListeningCue
	out := a.providers.Audio
	if path == config.CueOff || out == nil {
		return nil, nil
	}

	format := audio.Speech
	if a.providers.TTS != nil && a.providers.TTS.OutputFormat().Valid() {
		format = a.providers.TTS.OutputFormat()
	}

	var c *cue.Cue
	if path == "" {
		c = cue.Tone(format, cue.DefaultFrequency, cue.DefaultDuration)
	} else {
		var err error
		if c, err = cue.Load(path, format); err != nil {
			return nil, err
		}
	}
	slog.Debug("listening cue ready", "source", cueSource(path), "duration", c.Duration())

	return conversation.WithCue(func(ctx context.Context) {
		if err := c.Play(ctx, out); err != nil && ctx.Err() == nil {
			slog.Warn("listening cue failed", "err", err)
		}
	}), nil
}

// initController creates the conversation controller and restores the
// persisted history.
func (a *App) initController(ctx context.Context, cueOpt conversation.Option) error {
	conv := a.cfg.Conversation
	ccfg := conversation.Config{
		MaxEntries:   conv.MaxEntries,
		FallbackText: a.cfg.Reply.FallbackText,
		ClarifyText:  a.cfg.Reply.ClarifyText,
		ErrorBackoff: conv.ErrorBackoff,
		EmptyBackoff: conv.EmptyBackoff,
		Voices:       voiceProfiles(a.cfg.Voices),
	}
	if conv.DefaultVoice != "" {
		v, err := conversation.ParseVoice(conv.DefaultVoice)
		if err != nil {
			return err
		}
		ccfg.DefaultVoice = v
	}

	opts := []conversation.Option{
		conversation.WithDetector(a.detector),
		conversation.WithMetrics(a.metrics),
	}
	if cueOpt != nil {
		opts = append(opts, cueOpt)
	}
	opts = append(opts, a.convOpts...)

	a.controller = conversation.New(ccfg, a.listener, a.replier, a.speaker, a.store, opts...)
	if err := a.controller.Restore(ctx); err != nil {
		slog.Warn("could not restore session history", "err", err)
	}
	return nil
}

// initHealth registers the readiness checkers.
func (a *App) initHealth() {
	checkers := []health.Checker{
		health.Store(a.store),
		health.Func("speech", a.listener.Available),
	}
	if a.providers.Audio != nil {
		checkers = append(checkers, health.Microphone(a.providers.Audio))
	}
	for name, v := range map[string]any{
		"stt":   a.providers.STT,
		"tts":   a.providers.TTS,
		"reply": a.replier,
	} {
		if r, ok := v.(stateReporter); ok {
			checkers = append(checkers, health.Breakers(name, r.States))
		}
	}
	a.health = health.New(checkers...)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the control API and polls the config file until ctx is
// cancelled. When ctx is done, Run stops the conversation loop and returns
// ctx.Err(). A server that fails to start ends Run with that error.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           a.handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			var err error
			if tlsCfg := a.cfg.Server.TLS; tlsCfg != nil {
				err = srv.ListenAndServeTLS(tlsCfg.CertFile, tlsCfg.KeyFile)
			} else {
				err = srv.ListenAndServe()
			}
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("app: serve %s: %w", addr, err)
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
		slog.Info("control API listening", "addr", addr, "tls", a.cfg.Server.TLS != nil)
	}

	if a.cfg.Conversation.AutoStart {
		if err := a.controller.Start(ctx); err != nil {
			slog.Warn("could not start conversation", "err", err)
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		a.controller.Stop()
		return nil
	})

	slog.Info("app running", "history", len(a.controller.History()))
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Handler returns the HTTP handler serving the control API, health probes
// and metrics.
func (a *App) Handler() http.Handler { return a.handler }

// Controller returns the conversation controller.
func (a *App) Controller() *conversation.Controller { return a.controller }

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable differences between old and new.
// Settings that need a restart are logged and otherwise ignored.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.Slog())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.KeywordsChanged {
		kw := d.NewKeywords
		if kw == nil {
			kw = emotion.DefaultKeywords
		}
		a.controller.SetKeywords(kw)
		a.listener.SetKeywordBoost(new.Conversation.KeywordBoost)
		a.listener.SetKeywords(a.detector.Keywords())
		slog.Info("emotion keywords changed", "count", len(a.detector.Keywords()))
	}
	if d.VoicesChanged {
		a.controller.SetVoices(voiceProfiles(new.Voices))
		slog.Info("voice profiles changed")
	}
	if d.ReplyTextsChanged {
		a.controller.SetReplyTexts(new.Reply.FallbackText, new.Reply.ClarifyText)
		slog.Info("reply texts changed")
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the conversation loop and tears down all subsystems. It
// respects the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.controller.Close(); err != nil {
			slog.Warn("conversation close error", "err", err)
		}

		closers := a.closers
		if a.providers.Audio != nil {
			closers = append(closers, a.providers.Audio.Close)
		}
		if a.telemetry != nil {
			closers = append(closers, func() error { return a.telemetry.Shutdown(ctx) })
		}

		for i, closer := range closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// voiceProfiles overlays the configured voice settings on the built-in
// profiles. Zero fields keep the defaults.
func voiceProfiles(vc config.VoicesConfig) map[conversation.Voice]tts.VoiceProfile {
	out := conversation.DefaultVoices()
	for v, c := range map[conversation.Voice]config.VoiceConfig{
		conversation.VoiceMale:   vc.Male,
		conversation.VoiceFemale: vc.Female,
	} {
		p := out[v]
		if c.VoiceID != "" {
			p.ID = c.VoiceID
		}
		if c.Name != "" {
			p.Name = c.Name
		}
		if c.Pitch != 0 {
			p.Pitch = c.Pitch
		}
		if c.Rate != 0 {
			p.Rate = c.Rate
		}
		if c.Language != "" {
			p.Language = c.Language
		}
		out[v] = p
	}
	return out
}

// defaultStateDir returns $XDG_STATE_HOME/solace, falling back to
// ~/.local/state/solace and finally ./solace-state.
func defaultStateDir() string {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "solace")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", "solace")
	}
	return "solace-state"
}

func storeKind(k config.StoreKind) config.StoreKind {
	if k == "" {
		return config.StoreFile
	}
	return k
}

func cueSource(path string) string {
	if path == "" {
		return "tone"
	}
	return path
}

// mic and player keep a nil device a nil interface.
func mic(d audio.Device) audio.Microphone {
	if d == nil {
		return nil
	}
	return d
}

func player(d audio.Device) audio.Player {
	if d == nil {
		return nil
	}
	return d
}
