package mock

import (
	"encoding/binary"

	"github.com/MrWong99/solace/pkg/audio"
)

// WAV wraps int16 PCM in a minimal RIFF/WAVE container with a standard
// 44-byte header. Useful for faking backends that return WAV files.
func WAV(pcm []byte, f audio.Format) []byte {
	fmtSize := uint32(16)
	dataSize := uint32(len(pcm))
	fileSize := 4 + (8 + fmtSize) + (8 + dataSize)

	buf := make([]byte, 0, 12+8+fmtSize+8+dataSize)
	le := binary.LittleEndian
	putU32 := func(v uint32) { buf = le.AppendUint32(buf, v) }
	putU16 := func(v uint16) { buf = le.AppendUint16(buf, v) }

	buf = append(buf, "RIFF"...)
	putU32(fileSize)
	buf = append(buf, "WAVE"...)

	buf = append(buf, "fmt "...)
	putU32(fmtSize)
	putU16(1) // PCM
	putU16(uint16(f.Channels))
	putU32(uint32(f.SampleRate))
	putU32(uint32(f.BytesPerSecond()))
	putU16(uint16(2 * f.Channels))
	putU16(16)

	buf = append(buf, "data"...)
	putU32(dataSize)
	return append(buf, pcm...)
}
