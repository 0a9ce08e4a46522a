package resilience

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/solace/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] over an ordered list of recognition
// backends, typically a hosted streaming service backed by a local whisper
// server.
//
// A backend is charged with a failure when it refuses to open a stream and
// also when a stream it opened ends with an error. The listener opens one
// stream per utterance, so a backend whose streams keep breaking trips its
// breaker and later utterances go to the next backend.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]

	mu      sync.Mutex
	serving string
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	f := &STTFallback{}
	f.group = NewFallbackGroup[stt.Provider](namedSTT{name: primaryName, Provider: primary}, primaryName, cfg)
	return f
}

// AddFallback registers an additional recognition backend.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, namedSTT{name: name, Provider: provider})
}

// States reports the breaker state of every backend.
func (f *STTFallback) States() []ProviderState { return f.group.States() }

// Serving returns the name of the backend that opened the latest stream, or
// "" before the first one.
func (f *STTFallback) Serving() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.serving
}

// StartStream opens a session on the first healthy backend. The returned
// handle reports a terminal stream error back to that backend's breaker.
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (stt.SessionHandle, error) {
		n := p.(namedSTT)
		sess, err := n.StartStream(ctx, cfg)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.serving = n.name
		f.mu.Unlock()
		return &watchedSession{SessionHandle: sess, fail: func(err error) {
			f.group.RecordFailure(n.name, err)
		}}, nil
	})
}

// namedSTT carries the backend name into the attempt so a late stream error
// can be charged to the right breaker.
type namedSTT struct {
	stt.Provider
	name string
}

// watchedSession forwards to the backend session and reports its terminal
// error once. Cancellation is not a backend failure.
type watchedSession struct {
	stt.SessionHandle
	fail func(error)
	once sync.Once
}

func (s *watchedSession) Err() error {
	err := s.SessionHandle.Err()
	if err != nil && !errors.Is(err, context.Canceled) {
		s.once.Do(func() { s.fail(err) })
	}
	return err
}
