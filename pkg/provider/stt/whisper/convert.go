package whisper

import (
	"strings"

	"github.com/MrWong99/solace/pkg/audio"
)

// pcmToFloat32Mono down-mixes 16-bit PCM to mono float32 samples normalised
// to [-1.0, 1.0], the input whisper.cpp expects. A trailing odd byte is
// ignored.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	buf := audio.Remix(audio.ToIntBuffer(pcm, audio.Format{SampleRate: defaultSampleRate, Channels: channels}), 1)
	out := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		out[i] = float32(v) / 32768.0
	}
	return out
}

// nonSpeechMarkers are placeholders whisper.cpp emits for audio that holds
// no words.
var nonSpeechMarkers = []string{"[BLANK_AUDIO]", "[SILENCE]", "(silence)", "[MUSIC]", "[NOISE]"}

// cleanText trims whitespace and drops whisper.cpp's non-speech markers.
func cleanText(text string) string {
	for _, m := range nonSpeechMarkers {
		text = strings.ReplaceAll(text, m, "")
	}
	return strings.Join(strings.Fields(text), " ")
}
