package tts

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-audio/wav"

	"github.com/MrWong99/solace/pkg/audio"
)

// ErrInvalidWAV is returned by [DecodeWAV] for data that is not a RIFF/WAVE
// PCM file.
var ErrInvalidWAV = errors.New("tts: invalid WAV data")

// DecodeWAV decodes a PCM WAV file and converts the samples to int16 PCM in
// the target format. An invalid target keeps the file's own format.
func DecodeWAV(data []byte, target audio.Format) ([]byte, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, ErrInvalidWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("tts: decode WAV: %w", err)
	}
	if buf == nil || buf.Format == nil {
		return nil, ErrInvalidWAV
	}
	if buf.SourceBitDepth == 0 {
		buf.SourceBitDepth = int(dec.BitDepth)
	}
	pcm := audio.FromIntBuffer(buf)
	if !target.Valid() {
		return pcm, nil
	}
	return audio.ConvertPCM(pcm, audio.BufferFormat(buf), target), nil
}
