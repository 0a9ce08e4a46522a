package tts

import "math"

// VoiceProfile describes how a reply should sound.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier. Empty selects the
	// provider's default voice for Language.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Pitch is a multiplier around 1.0. Zero means 1.0.
	Pitch float64

	// Rate is a speaking-rate multiplier around 1.0. Zero means 1.0.
	Rate float64

	// Language is a BCP-47 tag such as "en-US".
	Language string

	// Metadata holds provider-specific voice attributes (gender, accent, etc.).
	Metadata map[string]string
}

// PitchOrDefault returns Pitch, or 1 when unset or not finite.
func (v VoiceProfile) PitchOrDefault() float64 { return multiplier(v.Pitch) }

// RateOrDefault returns Rate, or 1 when unset or not finite.
func (v VoiceProfile) RateOrDefault() float64 { return multiplier(v.Rate) }

func multiplier(f float64) float64 {
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 1
	}
	return f
}
