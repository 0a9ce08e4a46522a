package audio

import (
	"log/slog"
	"sync"

	goaudio "github.com/go-audio/audio"
)

// Converter converts [AudioFrame] values to a target format. It logs a
// warning on the first format mismatch and on the first misaligned frame.
// Create one per stream; it is not meant to be shared across goroutines.
type Converter struct {
	Target         Format
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert returns frame in the target format. A frame already in the target
// format is returned unchanged. A frame with an odd byte count is dropped and
// an empty frame is returned.
func (c *Converter) Convert(frame AudioFrame) AudioFrame {
	if len(frame.Data)%2 != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio converter: odd byte count in PCM data, dropping frame",
				"bytes", len(frame.Data),
				"format", frame.Format().String(),
			)
		})
		return AudioFrame{SampleRate: c.Target.SampleRate, Channels: c.Target.Channels, Timestamp: frame.Timestamp}
	}
	if frame.Format() == c.Target {
		return frame
	}

	c.warnedMismatch.Do(func() {
		slog.Debug("audio format mismatch: converting",
			"from", frame.Format().String(),
			"to", c.Target.String(),
		)
	})

	return AudioFrame{
		Data:       ConvertPCM(frame.Data, frame.Format(), c.Target),
		SampleRate: c.Target.SampleRate,
		Channels:   c.Target.Channels,
		Timestamp:  frame.Timestamp,
	}
}

// ConvertStream wraps in with a conversion goroutine. The returned channel is
// closed when in closes and uses cap(in) as its buffer. Empty frames are
// dropped.
func ConvertStream(in <-chan AudioFrame, target Format) <-chan AudioFrame {
	out := make(chan AudioFrame, cap(in))
	go func() {
		defer close(out)
		conv := Converter{Target: target}
		for frame := range in {
			converted := conv.Convert(frame)
			if len(converted.Data) == 0 {
				continue
			}
			out <- converted
		}
	}()
	return out
}

// ConvertByteStream converts a stream of raw PCM chunks from one format to
// another. Partial frames at the end of a chunk are carried over to the next
// one so every conversion sees whole frames; a trailing partial frame is
// dropped when in closes. The returned channel uses cap(in) as its buffer and
// is closed after in closes. When from equals to, in is returned as is.
func ConvertByteStream(in <-chan []byte, from, to Format) <-chan []byte {
	if from == to || !from.Valid() || !to.Valid() {
		return in
	}
	out := make(chan []byte, cap(in))
	go func() {
		defer close(out)
		frame := 2 * from.Channels
		var rest []byte
		for chunk := range in {
			if len(rest) > 0 {
				chunk = append(rest, chunk...)
				rest = nil
			}
			if tail := len(chunk) % frame; tail != 0 {
				rest = append([]byte(nil), chunk[len(chunk)-tail:]...)
				chunk = chunk[:len(chunk)-tail]
			}
			if len(chunk) == 0 {
				continue
			}
			out <- ConvertPCM(chunk, from, to)
		}
	}()
	return out
}

// ConvertPCM converts int16 PCM from one format to another. Resampling runs
// before channel conversion when downmixing and after it when upmixing, so the
// interpolation always works on the smaller channel count.
func ConvertPCM(pcm []byte, from, to Format) []byte {
	if from == to || !from.Valid() || !to.Valid() {
		return pcm
	}
	buf := ToIntBuffer(pcm, from)
	if to.Channels <= from.Channels {
		buf = Remix(Resample(buf, to.SampleRate), to.Channels)
	} else {
		buf = Resample(Remix(buf, to.Channels), to.SampleRate)
	}
	return FromIntBuffer(buf)
}

// ToIntBuffer decodes int16 little-endian PCM into a go-audio buffer.
// A trailing odd byte is ignored.
func ToIntBuffer(pcm []byte, f Format) *goaudio.IntBuffer {
	data := make([]int, len(pcm)/2)
	for i := range data {
		data[i] = int(int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8))
	}
	return &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
}

// FromIntBuffer encodes buf as int16 little-endian PCM, rescaling samples
// from buf.SourceBitDepth. A zero bit depth is treated as 16; 8-bit samples
// are taken to be unsigned as WAV stores them.
func FromIntBuffer(buf *goaudio.IntBuffer) []byte {
	if buf == nil {
		return nil
	}
	out := make([]byte, len(buf.Data)*2)
	depth := buf.SourceBitDepth
	for i, v := range buf.Data {
		switch {
		case depth == 8:
			v = (v - 128) << 8
		case depth > 16:
			v >>= depth - 16
		}
		s := clamp16(v)
		out[2*i] = byte(s)
		out[2*i+1] = byte(uint16(s) >> 8)
	}
	return out
}

// BufferFormat returns the [Format] of a go-audio buffer.
func BufferFormat(buf *goaudio.IntBuffer) Format {
	if buf == nil || buf.Format == nil {
		return Format{}
	}
	return Format{SampleRate: buf.Format.SampleRate, Channels: buf.Format.NumChannels}
}

// Remix changes the channel count of buf. Downmixing to mono averages all
// channels; upmixing from mono duplicates the sample. Other conversions keep
// the leading channels and repeat the last one to fill.
func Remix(buf *goaudio.IntBuffer, channels int) *goaudio.IntBuffer {
	src := BufferFormat(buf)
	if channels <= 0 || src.Channels <= 0 || src.Channels == channels {
		return buf
	}
	frames := len(buf.Data) / src.Channels
	out := make([]int, frames*channels)
	for f := range frames {
		in := buf.Data[f*src.Channels : (f+1)*src.Channels]
		dst := out[f*channels : (f+1)*channels]
		if channels == 1 {
			sum := 0
			for _, v := range in {
				sum += v
			}
			dst[0] = sum / len(in)
			continue
		}
		for c := range dst {
			dst[c] = in[min(c, len(in)-1)]
		}
	}
	return &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: src.SampleRate},
		Data:           out,
		SourceBitDepth: buf.SourceBitDepth,
	}
}

// Resample converts buf to rate using linear interpolation per channel.
func Resample(buf *goaudio.IntBuffer, rate int) *goaudio.IntBuffer {
	src := BufferFormat(buf)
	if rate <= 0 || src.SampleRate <= 0 || src.Channels <= 0 || src.SampleRate == rate {
		return buf
	}
	ch := src.Channels
	srcFrames := len(buf.Data) / ch
	dstFrames := int(int64(srcFrames) * int64(rate) / int64(src.SampleRate))
	out := make([]int, dstFrames*ch)
	ratio := float64(src.SampleRate) / float64(rate)

	for i := range dstFrames {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		next := min(idx+1, srcFrames-1)
		for c := range ch {
			s0 := float64(buf.Data[idx*ch+c])
			s1 := float64(buf.Data[next*ch+c])
			out[i*ch+c] = int(s0*(1-frac) + s1*frac)
		}
	}
	return &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: ch, SampleRate: rate},
		Data:           out,
		SourceBitDepth: buf.SourceBitDepth,
	}
}

func clamp16(v int) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
