package conversation

import (
	"fmt"
	"strings"

	"github.com/MrWong99/solace/pkg/provider/tts"
)

// Voice selects one of the two reply voices.
type Voice string

const (
	VoiceMale   Voice = "male"
	VoiceFemale Voice = "female"
)

// IsValid reports whether v is a known voice.
func (v Voice) IsValid() bool { return v == VoiceMale || v == VoiceFemale }

// Title returns v with an upper-case first letter ("Female").
func (v Voice) Title() string {
	if v == "" {
		return ""
	}
	return strings.ToUpper(string(v[:1])) + string(v[1:])
}

// ParseVoice parses a case-insensitive voice name.
func ParseVoice(s string) (Voice, error) {
	v := Voice(strings.ToLower(strings.TrimSpace(s)))
	if !v.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidVoice, s)
	}
	return v, nil
}

// DefaultVoices returns the built-in profiles. Both speak en-US at normal
// rate; the female voice is pitched slightly up and the male voice slightly
// down.
func DefaultVoices() map[Voice]tts.VoiceProfile {
	return map[Voice]tts.VoiceProfile{
		VoiceMale:   {ID: "male", Name: "Male", Pitch: 0.98, Rate: 1, Language: "en-US"},
		VoiceFemale: {ID: "female", Name: "Female", Pitch: 1.02, Rate: 1, Language: "en-US"},
	}
}

// State is the phase of the conversation loop.
type State int

const (
	StateIdle State = iota
	StateListening
	StateSpeaking
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state as its name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Human-readable status texts.
const (
	TextListening   = "Listening..."
	TextSpeaking    = "Speaking..."
	TextRetrying    = "Error listening, retrying..."
	TextStopped     = "Stopped."
	TextUnavailable = "Speech recognition unavailable"
)

// youSaid is the status text while the reply is being fetched.
func youSaid(text string) string { return `You said: "` + text + `"` }

// voiceSelected is the status text after a voice change.
func voiceSelected(v Voice) string { return v.Title() + " voice selected" }

// Status is a point-in-time snapshot of the controller.
type Status struct {
	State   State  `json:"state"`
	Active  bool   `json:"active"`
	Voice   Voice  `json:"voice"`
	Text    string `json:"text,omitempty"`
	Entries int    `json:"entries"`
}
