// Package portaudio implements [audio.Microphone] and [audio.Player] on top of
// the PortAudio library, using the host's default input and output devices.
//
// PortAudio keeps global state: call [Device.Open] once before use and
// [Device.Close] when done.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/solace/pkg/audio"
)

var (
	_ audio.Microphone = (*Device)(nil)
	_ audio.Player     = (*Device)(nil)
	_ audio.Device     = (*Device)(nil)
)

// DefaultBufferDuration is the length of one capture/playback buffer.
const DefaultBufferDuration = 20 * time.Millisecond

// ErrNotOpen is returned when the device is used before [Device.Open].
var ErrNotOpen = errors.New("portaudio: device not open")

// Option configures a [Device].
type Option func(*Device)

// WithBufferDuration sets the buffer length. Shorter buffers lower latency at
// the cost of more wake-ups.
func WithBufferDuration(d time.Duration) Option {
	return func(dev *Device) {
		if d > 0 {
			dev.bufferDuration = d
		}
	}
}

// Device is the host's default audio input and output.
type Device struct {
	mu             sync.Mutex
	open           bool
	bufferDuration time.Duration
}

// New returns an unopened Device.
func New(opts ...Option) *Device {
	d := &Device{bufferDuration: DefaultBufferDuration}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Open initialises PortAudio.
func (d *Device) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio: initialize: %w", err)
	}
	d.open = true
	return nil
}

// Close terminates PortAudio. Streams still running are invalid afterwards.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return nil
	}
	d.open = false
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("portaudio: terminate: %w", err)
	}
	return nil
}

func (d *Device) isOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

func (d *Device) framesPerBuffer(rate int) int {
	n := int(int64(rate) * int64(d.bufferDuration) / int64(time.Second))
	return max(n, 1)
}

// Probe implements [audio.Microphone]. It checks that a default input device
// exists.
func (d *Device) Probe(context.Context) error {
	if !d.isOpen() {
		return ErrNotOpen
	}
	info, err := portaudio.DefaultInputDevice()
	if err != nil {
		return fmt.Errorf("portaudio: default input device: %w", err)
	}
	if info == nil || info.MaxInputChannels < 1 {
		return errors.New("portaudio: default input device has no input channels")
	}
	return nil
}

// Capture implements [audio.Microphone].
func (d *Device) Capture(ctx context.Context, format audio.Format) (<-chan audio.AudioFrame, error) {
	if !d.isOpen() {
		return nil, ErrNotOpen
	}
	if !format.Valid() {
		return nil, fmt.Errorf("portaudio: invalid capture format %s", format)
	}

	frames := d.framesPerBuffer(format.SampleRate)
	buf := make([]int16, frames*format.Channels)
	stream, err := portaudio.OpenDefaultStream(format.Channels, 0, float64(format.SampleRate), frames, buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("portaudio: start input stream: %w", err)
	}

	out := make(chan audio.AudioFrame, 16)
	go func() {
		defer close(out)
		defer stream.Close()
		defer stream.Stop()

		start := time.Now()
		for ctx.Err() == nil {
			if err := stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
				slog.Warn("portaudio: capture read failed", "err", err)
				return
			}
			frame := audio.AudioFrame{
				Data:       int16ToBytes(buf),
				SampleRate: format.SampleRate,
				Channels:   format.Channels,
				Timestamp:  time.Since(start),
			}
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Play implements [audio.Player]. The final partial buffer is padded with
// silence.
func (d *Device) Play(ctx context.Context, format audio.Format, pcm <-chan []byte) error {
	if !d.isOpen() {
		go audio.Drain(pcm)
		return ErrNotOpen
	}
	if !format.Valid() {
		go audio.Drain(pcm)
		return fmt.Errorf("portaudio: invalid playback format %s", format)
	}

	frames := d.framesPerBuffer(format.SampleRate)
	buf := make([]int16, frames*format.Channels)
	stream, err := portaudio.OpenDefaultStream(0, format.Channels, float64(format.SampleRate), frames, buf)
	if err != nil {
		go audio.Drain(pcm)
		return fmt.Errorf("portaudio: open output stream: %w", err)
	}
	defer stream.Close()
	if err := stream.Start(); err != nil {
		go audio.Drain(pcm)
		return fmt.Errorf("portaudio: start output stream: %w", err)
	}
	defer stream.Stop()

	write := func() error {
		if err := stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			return fmt.Errorf("portaudio: write: %w", err)
		}
		return nil
	}

	var pending []byte
	filled := 0
	for {
		select {
		case <-ctx.Done():
			go audio.Drain(pcm)
			return ctx.Err()
		case chunk, ok := <-pcm:
			if !ok {
				if filled == 0 {
					return nil
				}
				clear(buf[filled:])
				return write()
			}
			pending = append(pending, chunk...)
			for len(pending) >= 2 {
				buf[filled] = int16(uint16(pending[0]) | uint16(pending[1])<<8)
				pending = pending[2:]
				filled++
				if filled == len(buf) {
					if err := write(); err != nil {
						go audio.Drain(pcm)
						return err
					}
					filled = 0
				}
			}
		}
	}
}

func int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[2*i] = byte(s)
		out[2*i+1] = byte(uint16(s) >> 8)
	}
	return out
}
