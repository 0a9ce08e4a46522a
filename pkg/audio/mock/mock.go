// Package mock provides in-memory mock implementations of [audio.Microphone],
// [audio.Player] and [audio.Device] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every call so that tests
// can assert on call counts and arguments, and they expose exported fields that
// control return values.
//
// Typical usage:
//
//	mic := &mock.Microphone{Frames: []audio.AudioFrame{{Data: pcm, SampleRate: 16000, Channels: 1}}}
//	frames, err := mic.Capture(ctx, audio.Speech)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/solace/pkg/audio"
)

var (
	_ audio.Microphone = (*Microphone)(nil)
	_ audio.Player     = (*Player)(nil)
	_ audio.Device     = (*Device)(nil)
)

// ─── Microphone ───────────────────────────────────────────────────────────────

// Microphone is a mock implementation of [audio.Microphone].
type Microphone struct {
	mu sync.Mutex

	// Frames are delivered in order on every Capture call.
	Frames []audio.AudioFrame

	// KeepOpen leaves the capture channel open after Frames are sent until
	// ctx is cancelled. When false the channel is closed right after the
	// last frame, which the caller sees as a capture failure.
	KeepOpen bool

	// CaptureErr is returned by [Microphone.Capture] when non-nil.
	CaptureErr error

	// ProbeErr is returned by [Microphone.Probe].
	ProbeErr error

	// CaptureFormats records the format requested by each Capture call.
	CaptureFormats []audio.Format

	// CallCountProbe records how many times Probe was called.
	CallCountProbe int
}

// Capture implements [audio.Microphone].
func (m *Microphone) Capture(ctx context.Context, format audio.Format) (<-chan audio.AudioFrame, error) {
	m.mu.Lock()
	m.CaptureFormats = append(m.CaptureFormats, format)
	if m.CaptureErr != nil {
		err := m.CaptureErr
		m.mu.Unlock()
		return nil, err
	}
	frames := make([]audio.AudioFrame, len(m.Frames))
	copy(frames, m.Frames)
	keepOpen := m.KeepOpen
	m.mu.Unlock()

	ch := make(chan audio.AudioFrame)
	go func() {
		defer close(ch)
		for _, f := range frames {
			select {
			case ch <- f:
			case <-ctx.Done():
				return
			}
		}
		if keepOpen {
			<-ctx.Done()
		}
	}()
	return ch, nil
}

// Probe implements [audio.Microphone].
func (m *Microphone) Probe(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCountProbe++
	return m.ProbeErr
}

// CaptureCount returns the number of Capture calls.
func (m *Microphone) CaptureCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.CaptureFormats)
}

// ─── Player ───────────────────────────────────────────────────────────────────

// PlayCall records a single [Player.Play] invocation.
type PlayCall struct {
	// Format is the format argument passed to Play.
	Format audio.Format

	// Data is the concatenation of every chunk received.
	Data []byte
}

// Player is a mock implementation of [audio.Player].
type Player struct {
	mu sync.Mutex

	// PlayErr is returned by [Player.Play] after the stream is drained.
	PlayErr error

	// Block makes Play wait for ctx cancellation after draining, to simulate
	// long playback.
	Block bool

	// Calls records every Play invocation.
	Calls []PlayCall
}

// Play implements [audio.Player]. It drains pcm, records the data and
// returns PlayErr.
func (p *Player) Play(ctx context.Context, format audio.Format, pcm <-chan []byte) error {
	var data []byte
loop:
	for {
		select {
		case chunk, ok := <-pcm:
			if !ok {
				break loop
			}
			data = append(data, chunk...)
		case <-ctx.Done():
			go audio.Drain(pcm)
			p.record(format, data)
			return ctx.Err()
		}
	}
	p.record(format, data)

	p.mu.Lock()
	block, err := p.Block, p.PlayErr
	p.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (p *Player) record(format audio.Format, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, PlayCall{Format: format, Data: data})
}

// PlayCount returns the number of Play calls.
func (p *Player) PlayCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// PlayCalls returns a copy of the recorded Play calls.
func (p *Player) PlayCalls() []PlayCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PlayCall, len(p.Calls))
	copy(out, p.Calls)
	return out
}

// ─── Device ───────────────────────────────────────────────────────────────────

// Device is a mock implementation of [audio.Device] that pairs a [Microphone]
// with a [Player].
type Device struct {
	*Microphone
	*Player

	closeMu sync.Mutex
	closes  int
}

// NewDevice returns a Device with a fresh Microphone and Player.
func NewDevice() *Device {
	return &Device{Microphone: &Microphone{}, Player: &Player{}}
}

// Close implements [audio.Device]. It records the call and returns nil.
func (d *Device) Close() error {
	d.closeMu.Lock()
	defer d.closeMu.Unlock()
	d.closes++
	return nil
}

// CloseCount returns the number of Close calls.
func (d *Device) CloseCount() int {
	d.closeMu.Lock()
	defer d.closeMu.Unlock()
	return d.closes
}
