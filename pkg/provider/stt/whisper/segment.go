package whisper

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/MrWong99/solace/pkg/audio"
	"github.com/MrWong99/solace/pkg/provider/stt"
)

const (
	// defaultRMSThreshold is the root-mean-square energy (in 16-bit PCM units)
	// below which a chunk counts as silence.
	defaultRMSThreshold = 300.0

	defaultLanguage            = "en"
	defaultSampleRate          = 16000
	defaultSilenceThresholdMs  = 500
	defaultMaxBufferDurationMs = 10_000

	// closeFlushTimeout bounds the final inference run by Close.
	closeFlushTimeout = 30 * time.Second
)

var errSessionClosed = errors.New("whisper: session is closed")

// segmentConfig holds the silence-detection parameters shared by both
// providers.
type segmentConfig struct {
	silenceThresholdMs  int
	maxBufferDurationMs int
}

// segmenter accumulates PCM and cuts it into utterances: a run of speech is
// committed after silenceThresholdMs of trailing silence or once it reaches
// the maximum buffer size. Leading silence is discarded. It is confined to
// one goroutine.
type segmenter struct {
	format         audio.Format
	silenceLimitMs int
	maxBytes       int

	buffer    []byte
	hadSpeech bool
	silenceMs int
}

func newSegmenter(format audio.Format, cfg segmentConfig) *segmenter {
	maxBytes := int(int64(cfg.maxBufferDurationMs) * int64(format.BytesPerSecond()) / 1000)
	return &segmenter{
		format:         format,
		silenceLimitMs: cfg.silenceThresholdMs,
		maxBytes:       maxBytes,
	}
}

// push adds chunk and returns a completed utterance, or nil.
func (g *segmenter) push(chunk []byte) []byte {
	if computeRMS(chunk) < defaultRMSThreshold {
		if !g.hadSpeech {
			return nil
		}
		g.silenceMs += int(g.format.Duration(len(chunk)) / time.Millisecond)
		g.buffer = append(g.buffer, chunk...)
		if g.silenceMs >= g.silenceLimitMs {
			return g.flush()
		}
		return nil
	}

	g.hadSpeech = true
	g.silenceMs = 0
	g.buffer = append(g.buffer, chunk...)
	if g.maxBytes > 0 && len(g.buffer) >= g.maxBytes {
		return g.flush()
	}
	return nil
}

// flush returns the buffered utterance, or nil when no speech was seen, and
// resets the segmenter.
func (g *segmenter) flush() []byte {
	pcm := g.buffer
	speech := g.hadSpeech
	g.buffer = nil
	g.hadSpeech = false
	g.silenceMs = 0
	if !speech || len(pcm) == 0 {
		return nil
	}
	return pcm
}

// inferFunc transcribes one utterance.
type inferFunc func(ctx context.Context, pcm []byte) (string, error)

// session is a live whisper transcription session shared by the HTTP and
// native providers; only the inference step differs. All buffering state is
// confined to the run goroutine.
type session struct {
	infer   inferFunc
	seg     *segmenter
	interim bool

	audioCh  chan []byte
	partials chan stt.Transcript
	finals   chan stt.Transcript

	mu  sync.Mutex
	err error

	done   chan struct{}
	exited chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

var _ stt.SessionHandle = (*session)(nil)

func startSession(ctx context.Context, cfg stt.StreamConfig, seg segmentConfig, infer inferFunc) *session {
	format := audio.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels}
	s := &session{
		infer:    infer,
		seg:      newSegmenter(format, seg),
		interim:  cfg.InterimResults,
		audioCh:  make(chan []byte, 256),
		partials: make(chan stt.Transcript, 64),
		finals:   make(chan stt.Transcript, 64),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run(ctx)
	return s
}

// SendAudio queues a chunk of PCM for silence analysis and buffering.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errSessionClosed
	case <-s.exited:
		return s.closedErr()
	default:
	}
	select {
	case s.audioCh <- chunk:
		return nil
	case <-s.done:
		return errSessionClosed
	case <-s.exited:
		return s.closedErr()
	}
}

func (s *session) closedErr() error {
	if err := s.Err(); err != nil {
		return err
	}
	return errSessionClosed
}

// Partials emits a copy of each final when interim results were requested.
// whisper.cpp has no true streaming partials.
func (s *session) Partials() <-chan stt.Transcript { return s.partials }

// Finals emits one transcript per committed utterance.
func (s *session) Finals() <-chan stt.Transcript { return s.finals }

// Err returns the inference error that ended the session, if any.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close flushes any buffered speech through a final inference, closes the
// output channels and waits for the session goroutine. Cancelling the
// StartStream context instead ends the session without the final flush.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

func (s *session) run(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)
	defer close(s.exited)

	finalFlush := func() {
		fc, cancel := context.WithTimeout(context.Background(), closeFlushTimeout)
		defer cancel()
		s.commit(fc, s.seg.flush())
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			finalFlush()
			return
		case chunk := <-s.audioCh:
			if pcm := s.seg.push(chunk); pcm != nil {
				if !s.commit(ctx, pcm) {
					return
				}
			}
		}
	}
}

// commit runs inference on pcm and publishes the transcript. It returns false
// when inference failed; the failure is recorded for Err and ends the session.
func (s *session) commit(ctx context.Context, pcm []byte) bool {
	if pcm == nil {
		return true
	}
	text, err := s.infer(ctx, pcm)
	if err != nil {
		if ctx.Err() == nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
		}
		return false
	}
	if text == "" {
		return true
	}

	d := s.seg.format.Duration(len(pcm))
	if s.interim {
		select {
		case s.partials <- stt.Transcript{Text: text, Duration: d}:
		default:
		}
	}
	select {
	case s.finals <- stt.Transcript{Text: text, IsFinal: true, Duration: d}:
	default:
	}
	return true
}

// computeRMS returns the root-mean-square energy of 16-bit PCM in sample
// units (0–32767). Returns 0 for buffers shorter than one sample.
func computeRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// normaliseConfig fills zero StreamConfig fields from provider defaults.
func normaliseConfig(cfg stt.StreamConfig, lang string, rate int) stt.StreamConfig {
	if cfg.Language == "" {
		cfg.Language = lang
	}
	cfg.Language = stt.BaseLanguage(cfg.Language)
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = rate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	return cfg
}
