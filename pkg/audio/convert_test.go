package audio_test

import (
	"encoding/binary"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"

	"github.com/MrWong99/solace/pkg/audio"
)

// samplesToBytes converts int16 samples to little-endian bytes.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts little-endian bytes to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func assertSamples(t *testing.T, got, want []int16) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

var (
	mono16k   = audio.Format{SampleRate: 16000, Channels: 1}
	mono8k    = audio.Format{SampleRate: 8000, Channels: 1}
	stereo16k = audio.Format{SampleRate: 16000, Channels: 2}
	stereo8k  = audio.Format{SampleRate: 8000, Channels: 2}
)

func TestConvertPCM(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		in       []int16
		from, to audio.Format
		want     []int16
	}{
		{
			name: "identity",
			in:   []int16{1, 2, 3},
			from: mono16k, to: mono16k,
			want: []int16{1, 2, 3},
		},
		{
			name: "mono to stereo",
			in:   []int16{100, 200, 300},
			from: mono16k, to: stereo16k,
			want: []int16{100, 100, 200, 200, 300, 300},
		},
		{
			name: "stereo to mono averages",
			in:   []int16{100, 200, -100, -200},
			from: stereo16k, to: mono16k,
			want: []int16{150, -150},
		},
		{
			name: "stereo to mono no overflow",
			in:   []int16{32767, 32767, -32768, -32768},
			from: stereo16k, to: mono16k,
			want: []int16{32767, -32768},
		},
		{
			name: "downsample halves",
			in:   []int16{0, 100, 200, 300},
			from: mono16k, to: mono8k,
			want: []int16{0, 200},
		},
		{
			name: "upsample interpolates",
			in:   []int16{0, 100},
			from: mono8k, to: mono16k,
			want: []int16{0, 50, 100, 100},
		},
		{
			name: "stereo 8k to mono 16k",
			in:   []int16{0, 200, 100, 300},
			from: stereo8k, to: mono16k,
			want: []int16{100, 150, 200, 200},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := bytesToSamples(audio.ConvertPCM(samplesToBytes(tt.in), tt.from, tt.to))
			assertSamples(t, got, tt.want)
		})
	}
}

func TestConverter_DropsOddFrames(t *testing.T) {
	t.Parallel()
	c := audio.Converter{Target: mono16k}
	out := c.Convert(audio.AudioFrame{Data: []byte{1, 2, 3}, SampleRate: 48000, Channels: 2})
	if len(out.Data) != 0 {
		t.Errorf("expected empty frame, got %d bytes", len(out.Data))
	}
	if out.Format() != mono16k {
		t.Errorf("format = %v, want %v", out.Format(), mono16k)
	}
}

func TestConverter_FastPath(t *testing.T) {
	t.Parallel()
	c := audio.Converter{Target: mono16k}
	data := samplesToBytes([]int16{5, 6})
	out := c.Convert(audio.AudioFrame{Data: data, SampleRate: 16000, Channels: 1})
	if &out.Data[0] != &data[0] {
		t.Error("matching frame should be returned without copying")
	}
}

func TestConvertStream(t *testing.T) {
	t.Parallel()
	in := make(chan audio.AudioFrame, 4)
	in <- audio.AudioFrame{Data: samplesToBytes([]int16{10, 20}), SampleRate: 16000, Channels: 2}
	in <- audio.AudioFrame{Data: []byte{1}, SampleRate: 16000, Channels: 2}
	in <- audio.AudioFrame{Data: samplesToBytes([]int16{30, 50}), SampleRate: 16000, Channels: 2}
	close(in)

	var got []int16
	for f := range audio.ConvertStream(in, mono16k) {
		got = append(got, bytesToSamples(f.Data)...)
	}
	assertSamples(t, got, []int16{15, 40})
}

func TestConvertByteStream(t *testing.T) {
	t.Parallel()
	in := make(chan []byte, 3)
	// 160 mono frames at 16 kHz split across chunks mid-sample.
	in <- make([]byte, 101)
	in <- make([]byte, 99)
	in <- make([]byte, 121) // last byte is a dangling half sample
	close(in)

	var total int
	for chunk := range audio.ConvertByteStream(in, audio.Speech, audio.Format{SampleRate: 48000, Channels: 2}) {
		if len(chunk)%4 != 0 {
			t.Errorf("chunk of %d bytes is not frame aligned", len(chunk))
		}
		total += len(chunk)
	}
	// 160 frames → 480 stereo frames.
	if total != 1920 {
		t.Errorf("total = %d bytes, want 1920", total)
	}
}

func TestConvertByteStream_SameFormat(t *testing.T) {
	t.Parallel()
	in := make(chan []byte)
	if got := audio.ConvertByteStream(in, audio.Speech, audio.Speech); got != (<-chan []byte)(in) {
		t.Error("same-format stream was wrapped")
	}
}

func TestFromIntBuffer_BitDepths(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		depth int
		in    []int
		want  []int16
	}{
		{name: "16 bit", depth: 16, in: []int{-5, 7}, want: []int16{-5, 7}},
		{name: "unset", depth: 0, in: []int{40000}, want: []int16{32767}},
		{name: "24 bit", depth: 24, in: []int{256 * 1000}, want: []int16{1000}},
		{name: "8 bit unsigned", depth: 8, in: []int{128, 255, 0}, want: []int16{0, 127 << 8, -32768}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			buf := &goaudio.IntBuffer{
				Format:         &goaudio.Format{NumChannels: 1, SampleRate: 16000},
				Data:           tt.in,
				SourceBitDepth: tt.depth,
			}
			assertSamples(t, bytesToSamples(audio.FromIntBuffer(buf)), tt.want)
		})
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()
	if got := stereo16k.String(); got != "16000Hz stereo" {
		t.Errorf("String() = %q", got)
	}
	if got := (audio.Format{SampleRate: 48000, Channels: 6}).String(); got != "48000Hz 6ch" {
		t.Errorf("String() = %q", got)
	}
	if got := mono16k.Duration(32000); got != time.Second {
		t.Errorf("Duration(32000) = %v, want 1s", got)
	}
	if (audio.Format{}).Valid() {
		t.Error("zero Format should not be valid")
	}
}
