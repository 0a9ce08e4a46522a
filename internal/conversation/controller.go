// Package conversation implements the continuous voice loop: listen for one
// utterance, ask the reply service for an answer, speak it, and repeat until
// stopped.
//
// Every utterance is first recorded in the session history as a provisional
// entry whose reply is pending. The request to the reply service carries the
// history as it stands at that moment, provisional entry included. When the
// reply arrives the entry is reconciled by its correlation ID; if it was
// evicted or cleared in the meantime a complete entry is appended instead.
// The history is persisted after every mutation.
//
// No error stops the loop. Transcription failures back off briefly and retry,
// reply failures are replaced by a fallback text, and playback failures are
// logged and treated as completion. Only [Controller.Stop] and
// [Controller.Close] end it. Stop interrupts listening and backoff waits but
// lets a reply request or playback in progress finish; Close interrupts
// playback too.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/solace/internal/emotion"
	"github.com/MrWong99/solace/internal/observe"
	"github.com/MrWong99/solace/pkg/provider/reply"
	"github.com/MrWong99/solace/pkg/provider/stt"
	"github.com/MrWong99/solace/pkg/provider/tts"
	"github.com/MrWong99/solace/pkg/session"
	"github.com/MrWong99/solace/pkg/store"
)

// Sentinel errors.
var (
	// ErrCapabilityUnavailable is returned by Start when speech recognition
	// cannot be used.
	ErrCapabilityUnavailable = errors.New("conversation: speech recognition unavailable")

	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("conversation: controller closed")

	// ErrStopping reports that the previous loop has not exited yet. See
	// [Controller.Stopping].
	ErrStopping = errors.New("conversation: previous loop still stopping")

	// ErrInvalidVoice is returned for a voice other than male or female.
	ErrInvalidVoice = errors.New("conversation: invalid voice")
)

// Default configuration values.
const (
	DefaultFallbackText = "I am here to listen. Could you say that again?"
	DefaultClarifyText  = "I hear you. Can you tell me more about how that feels?"
	DefaultErrorBackoff = 700 * time.Millisecond
	DefaultEmptyBackoff = 250 * time.Millisecond
)

// Listener produces one transcription result per call.
type Listener interface {
	// Available reports whether recognition can be used at all.
	Available(ctx context.Context) error

	// Listen waits for one utterance.
	Listen(ctx context.Context) stt.Result
}

// Speaker plays a reply and blocks until playback ends.
type Speaker interface {
	Speak(ctx context.Context, text string, voice tts.VoiceProfile) error
}

// Config holds the controller settings. Zero values select defaults.
type Config struct {
	// MaxEntries bounds the session history. Default 10.
	MaxEntries int

	// FallbackText replaces the reply when the reply service fails.
	FallbackText string

	// ClarifyText replaces the reply when the service returns none.
	ClarifyText string

	// ErrorBackoff is the wait after a transcription error. Default 700ms.
	ErrorBackoff time.Duration

	// EmptyBackoff is the wait after a listen attempt without speech.
	// Default 250ms.
	EmptyBackoff time.Duration

	// DefaultVoice is the voice selected at construction. Default male.
	DefaultVoice Voice

	// Voices maps each voice to its TTS profile. Missing entries fall back
	// to [DefaultVoices].
	Voices map[Voice]tts.VoiceProfile
}

func (c Config) withDefaults() Config {
	if c.MaxEntries < 1 {
		c.MaxEntries = session.DefaultCapacity
	}
	if c.FallbackText == "" {
		c.FallbackText = DefaultFallbackText
	}
	if c.ClarifyText == "" {
		c.ClarifyText = DefaultClarifyText
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = DefaultErrorBackoff
	}
	if c.EmptyBackoff <= 0 {
		c.EmptyBackoff = DefaultEmptyBackoff
	}
	if !c.DefaultVoice.IsValid() {
		c.DefaultVoice = VoiceMale
	}
	c.Voices = mergeVoices(c.Voices)
	return c
}

func mergeVoices(custom map[Voice]tts.VoiceProfile) map[Voice]tts.VoiceProfile {
	out := DefaultVoices()
	for v, p := range custom {
		if v.IsValid() {
			out[v] = p
		}
	}
	return out
}

// Option configures a [Controller].
type Option func(*Controller)

// WithDetector sets the emotion detector. Default: [emotion.DefaultKeywords].
func WithDetector(d *emotion.Detector) Option {
	return func(c *Controller) { c.detector = d }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithClock overrides time.Now for latency measurements.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithSleep overrides the backoff wait. fn must return false when ctx ends
// before d elapses.
func WithSleep(fn func(ctx context.Context, d time.Duration) bool) Option {
	return func(c *Controller) { c.sleep = fn }
}

// WithStatusHook registers fn to receive every status change. fn runs on the
// goroutine that caused the change and must not block.
func WithStatusHook(fn func(Status)) Option {
	return func(c *Controller) { c.statusHook = fn }
}

// WithCue registers fn to play an audible prompt before each listen attempt.
func WithCue(fn func(ctx context.Context)) Option {
	return func(c *Controller) { c.cue = fn }
}

// Controller runs the conversation loop. At most one loop runs at a time.
// All methods are safe for concurrent use.
type Controller struct {
	listener Listener
	replier  reply.Provider
	speaker  Speaker
	store    store.Store
	history  *session.History

	detector   *emotion.Detector
	metrics    *observe.Metrics
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) bool
	statusHook func(Status)
	cue        func(ctx context.Context)

	// persistMu orders history snapshots with their store writes.
	persistMu sync.Mutex

	// closing is cancelled by Close. Playback runs under it instead of the
	// loop context so that Stop does not cut a reply off.
	closing   context.Context
	closeFunc context.CancelFunc

	mu     sync.Mutex
	cfg    Config
	active bool
	closed bool
	state  State
	voice  Voice
	text   string
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an idle Controller. A nil st keeps state in memory only.
func New(cfg Config, listener Listener, replier reply.Provider, speaker Speaker, st store.Store, opts ...Option) *Controller {
	cfg = cfg.withDefaults()
	if st == nil {
		st = store.NewMemory()
	}
	c := &Controller{
		listener: listener,
		replier:  replier,
		speaker:  speaker,
		store:    st,
		history:  session.NewHistory(cfg.MaxEntries),
		now:      time.Now,
		sleep:    sleepCtx,
		cfg:      cfg,
		voice:    cfg.DefaultVoice,
	}
	c.closing, c.closeFunc = context.WithCancel(context.Background())
	for _, o := range opts {
		o(c)
	}
	if c.detector == nil {
		c.detector = emotion.New(nil)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Start begins the loop. It is a no-op while the loop is active. When
// speech recognition is unavailable it returns an error wrapping
// [ErrCapabilityUnavailable] and the loop does not start. If a previous loop
// is still winding down after Stop, Start waits for it to exit first; that
// includes a reply request and its playback, which Stop does not interrupt.
// Callers that must not block check [Controller.Stopping] first.
//
// The loop outlives ctx's cancellation; only Stop and Close end it.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.active {
		c.mu.Unlock()
		return nil
	}
	prev := c.done
	c.mu.Unlock()

	if err := c.listener.Available(ctx); err != nil {
		c.setStatus(StateIdle, TextUnavailable)
		return fmt.Errorf("%w: %w", ErrCapabilityUnavailable, err)
	}

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.active {
		c.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	c.active = true
	c.cancel = cancel
	c.done = done
	c.state = StateListening
	c.text = TextListening
	st := c.statusLocked()
	c.mu.Unlock()

	c.publish(st)
	slog.Info("conversation started", "voice", st.Voice)
	go c.loop(loopCtx, done)
	return nil
}

// Stop ends the loop. The current listen attempt or backoff wait is cancelled
// at once. A reply request already in flight completes, is recorded and is
// still spoken; a reply being spoken plays to the end. Neither re-arms
// listening. Stop returns without waiting for the loop goroutine and is
// idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	c.cancel()
	c.state = StateIdle
	c.text = TextStopped
	st := c.statusLocked()
	c.mu.Unlock()

	c.publish(st)
	slog.Info("conversation stopped")
}

// Close stops the loop, cuts off any playback and waits for the loop to exit.
// A reply request in flight is still awaited. Start returns [ErrClosed]
// afterwards. Close is idempotent and always returns nil.
func (c *Controller) Close() error {
	c.Stop()
	c.mu.Lock()
	c.closed = true
	done := c.done
	c.mu.Unlock()
	c.closeFunc()
	if done != nil {
		<-done
	}
	return nil
}

// Stopping reports whether a stopped loop is still finishing its reply or
// playback. Start blocks until it has.
func (c *Controller) Stopping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active || c.done == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// SetVoice selects the voice used from the next reply on.
func (c *Controller) SetVoice(v Voice) error {
	if !v.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidVoice, v)
	}
	c.mu.Lock()
	c.voice = v
	c.text = voiceSelected(v)
	st := c.statusLocked()
	c.mu.Unlock()
	c.publish(st)
	return nil
}

// SetVoices replaces the voice profiles. Voices missing from profiles keep
// their built-in defaults.
func (c *Controller) SetVoices(profiles map[Voice]tts.VoiceProfile) {
	merged := mergeVoices(profiles)
	c.mu.Lock()
	c.cfg.Voices = merged
	c.mu.Unlock()
}

// SetReplyTexts replaces the fallback and clarify texts. Empty values keep
// the current text.
func (c *Controller) SetReplyTexts(fallback, clarify string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fallback != "" {
		c.cfg.FallbackText = fallback
	}
	if clarify != "" {
		c.cfg.ClarifyText = clarify
	}
}

// SetKeywords replaces the emotion keywords.
func (c *Controller) SetKeywords(keywords []string) {
	c.detector.SetKeywords(keywords)
}

// Status returns the current status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// History returns the session history, oldest first.
func (c *Controller) History() []session.Entry {
	return c.history.Entries()
}

// ClearHistory empties the history and removes it from the store.
func (c *Controller) ClearHistory(ctx context.Context) error {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	c.history.Clear()
	if err := store.ClearSession(ctx, c.store); err != nil {
		return fmt.Errorf("conversation: clear history: %w", err)
	}
	return nil
}

// Restore loads the persisted history, keeping the newest MaxEntries
// entries. A missing or undecodable value leaves the history empty; only a
// failing store is reported.
func (c *Controller) Restore(ctx context.Context) error {
	data, err := c.store.Get(ctx, store.KeySession)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("conversation: restore history: %w", err)
	}
	entries, err := session.Unmarshal(data)
	if err != nil {
		slog.Warn("ignoring corrupt session history", "err", err)
		return nil
	}
	c.persistMu.Lock()
	c.history.Replace(entries)
	c.persistMu.Unlock()
	slog.Debug("session history restored", "entries", c.history.Len())
	return nil
}

// FirstLaunchDone reports whether the welcome notice was acknowledged.
func (c *Controller) FirstLaunchDone(ctx context.Context) (bool, error) {
	return store.FirstLaunchDone(ctx, c.store)
}

// AcknowledgeFirstLaunch records that the welcome notice was shown.
func (c *Controller) AcknowledgeFirstLaunch(ctx context.Context) error {
	return store.MarkFirstLaunchDone(ctx, c.store)
}

func (c *Controller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	c.metrics.ActiveLoops.Add(ctx, 1)
	defer c.metrics.ActiveLoops.Add(context.WithoutCancel(ctx), -1)

	for c.isActive() && ctx.Err() == nil {
		c.runCycle(ctx)
	}
}

// runCycle is one listen, reply, speak iteration.
func (c *Controller) runCycle(ctx context.Context) {
	c.setStatus(StateListening, TextListening)
	if c.cue != nil {
		c.cue(ctx)
	}

	res := c.listen(ctx)
	c.metrics.RecordCycle(ctx, res.Kind.String())

	switch res.Kind {
	case stt.ResultText:
		c.respond(ctx, res.Text)

	case stt.ResultError:
		if ctx.Err() != nil {
			return
		}
		c.metrics.RecordTranscriptionError(ctx, string(res.ErrKind))
		slog.Warn("transcription failed", "kind", res.ErrKind, "err", res.Err)
		c.setText(TextRetrying)
		c.sleep(ctx, c.config().ErrorBackoff)

	case stt.ResultEnded:
		slog.Debug("listen attempt ended without speech")
		c.sleep(ctx, c.config().EmptyBackoff)
	}
}

func (c *Controller) listen(ctx context.Context) stt.Result {
	ctx, span := observe.StartStage(ctx, observe.StageTranscription)
	defer span.End()
	start := c.now()
	res := c.listener.Listen(ctx)
	c.metrics.RecordStage(ctx, observe.StageTranscription, c.now().Sub(start))
	return res
}

// respond handles one transcript. The reply request and its playback ignore
// Stop, so the result is always recorded and spoken; the loop then exits
// instead of listening again.
func (c *Controller) respond(ctx context.Context, text string) {
	id := c.history.AppendProvisional(text)
	c.persist(ctx)

	flag := c.detector.Detect(text)
	if flag {
		c.metrics.RecordEmotionFlag(ctx)
		slog.Debug("emotion keywords detected", "keywords", c.detector.Match(text))
	}
	c.setStatus(StateSpeaking, youSaid(text))

	cfg := c.config()
	answer := c.fetchReply(context.WithoutCancel(ctx), reply.Request{
		Text:        text,
		Session:     c.history.Recent(cfg.MaxEntries),
		EmotionFlag: flag,
	})

	c.persistMu.Lock()
	if !c.history.Reconcile(id, text, answer) {
		slog.Debug("provisional entry gone, appended reply as new entry")
	}
	c.persistMu.Unlock()
	c.persist(ctx)

	c.setStatus(StateSpeaking, TextSpeaking)
	c.speak(ctx, answer)
}

func (c *Controller) fetchReply(ctx context.Context, req reply.Request) string {
	ctx, span := observe.StartStage(ctx, observe.StageReply)
	defer span.End()
	cfg := c.config()

	start := c.now()
	text, err := c.replier.Reply(ctx, req)
	c.metrics.RecordStage(ctx, observe.StageReply, c.now().Sub(start))

	switch {
	case errors.Is(err, reply.ErrNoReply), err == nil && strings.TrimSpace(text) == "":
		c.metrics.RecordReplyFallback(ctx, "no_reply")
		return cfg.ClarifyText
	case err != nil:
		c.metrics.RecordReplyFallback(ctx, "error")
		span.RecordError(err)
		observe.Logger(ctx).Warn("reply service failed, using fallback", "err", err)
		return cfg.FallbackText
	}
	return text
}

// speak plays text under a context that only Close cancels.
func (c *Controller) speak(ctx context.Context, text string) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	defer context.AfterFunc(c.closing, cancel)()

	ctx, span := observe.StartStage(ctx, observe.StageSpeech)
	defer span.End()

	start := c.now()
	err := c.speaker.Speak(ctx, text, c.voiceProfile())
	c.metrics.RecordStage(ctx, observe.StageSpeech, c.now().Sub(start))
	if err != nil && ctx.Err() == nil {
		observe.Logger(ctx).Warn("playback failed", "err", err)
	}
}

// persist writes the history snapshot. Failures are logged and ignored.
func (c *Controller) persist(ctx context.Context) {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	if err := store.SaveSession(context.WithoutCancel(ctx), c.store, c.history.Entries()); err != nil {
		slog.Warn("failed to persist session history", "err", err)
	}
}

func (c *Controller) isActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Controller) config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

func (c *Controller) voiceProfile() tts.VoiceProfile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Voices[c.voice]
}

// setStatus updates state and text. Loop transitions are dropped once the
// controller is inactive so they cannot overwrite the stopped status.
func (c *Controller) setStatus(state State, text string) {
	c.mu.Lock()
	if !c.active && state != StateIdle {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.text = text
	st := c.statusLocked()
	c.mu.Unlock()
	c.publish(st)
}

func (c *Controller) setText(text string) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.text = text
	st := c.statusLocked()
	c.mu.Unlock()
	c.publish(st)
}

// statusLocked builds a snapshot. Caller holds c.mu.
func (c *Controller) statusLocked() Status {
	return Status{
		State:   c.state,
		Active:  c.active,
		Voice:   c.voice,
		Text:    c.text,
		Entries: c.history.Len(),
	}
}

func (c *Controller) publish(st Status) {
	if c.statusHook != nil {
		c.statusHook(st)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
