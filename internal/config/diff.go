package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are applied; everything else is
// listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// KeywordsChanged reports a new emotion keyword list (or boost).
	KeywordsChanged bool
	NewKeywords     []string

	// VoicesChanged reports different voice profiles or default voice.
	VoicesChanged bool

	// ReplyTextsChanged reports new fallback or clarify texts.
	ReplyTextsChanged bool

	// RestartRequired names the top-level settings that changed but only
	// take effect after a restart.
	RestartRequired []string
}

// Changed reports whether any hot-reloadable setting changed.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.KeywordsChanged || d.VoicesChanged || d.ReplyTextsChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oc, nc := old.Conversation, new.Conversation
	if !slices.Equal(oc.EmotionKeywords, nc.EmotionKeywords) ||
		(oc.EmotionKeywords == nil) != (nc.EmotionKeywords == nil) ||
		oc.KeywordBoost != nc.KeywordBoost {
		d.KeywordsChanged = true
		d.NewKeywords = nc.EmotionKeywords
	}

	if old.Voices != new.Voices || oc.DefaultVoice != nc.DefaultVoice {
		d.VoicesChanged = true
	}

	if old.Reply.FallbackText != new.Reply.FallbackText || old.Reply.ClarifyText != new.Reply.ClarifyText {
		d.ReplyTextsChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || !reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	or, nr := old.Reply, new.Reply
	or.FallbackText, or.ClarifyText = nr.FallbackText, nr.ClarifyText
	if or != nr {
		d.RestartRequired = append(d.RestartRequired, "reply")
	}
	oc.EmotionKeywords, oc.KeywordBoost, oc.DefaultVoice = nil, nc.KeywordBoost, nc.DefaultVoice
	nc.EmotionKeywords = nil
	if !reflect.DeepEqual(oc, nc) {
		d.RestartRequired = append(d.RestartRequired, "conversation")
	}
	if old.Store != new.Store {
		d.RestartRequired = append(d.RestartRequired, "store")
	}
	if old.Resilience != new.Resilience {
		d.RestartRequired = append(d.RestartRequired, "resilience")
	}

	return d
}
