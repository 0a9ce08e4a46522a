// Package emotion flags utterances that contain emotionally significant
// keywords. The flag is forwarded to the reply service so it can answer more
// carefully.
//
// Matching is a case-insensitive substring test, not a whole-word match: the
// keyword "suicid" matches "suicidal" and "suicide", and "sad" also matches
// "sadly" or "crusade". Detector is safe for concurrent use and its keyword
// list can be swapped at runtime.
package emotion

import (
	"strings"
	"sync"
)

// DefaultKeywords is the built-in keyword list.
var DefaultKeywords = []string{
	"sad", "hopeless", "depressed", "anxious", "alone", "suicid",
	"worthless", "panic", "overwhelmed", "stressed", "lonely", "helpless",
}

// Detector matches text against a keyword list.
type Detector struct {
	mu       sync.RWMutex
	keywords []string
}

// New returns a Detector for keywords. A nil slice selects
// [DefaultKeywords]; an empty non-nil slice disables detection.
func New(keywords []string) *Detector {
	if keywords == nil {
		keywords = DefaultKeywords
	}
	d := &Detector{}
	d.SetKeywords(keywords)
	return d
}

// SetKeywords replaces the keyword list. Keywords are trimmed and lowered;
// empty entries and duplicates are dropped.
func (d *Detector) SetKeywords(keywords []string) {
	seen := make(map[string]struct{}, len(keywords))
	norm := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		norm = append(norm, k)
	}
	d.mu.Lock()
	d.keywords = norm
	d.mu.Unlock()
}

// Keywords returns a copy of the normalised keyword list.
func (d *Detector) Keywords() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.keywords...)
}

// Detect reports whether text contains any keyword.
func (d *Detector) Detect(text string) bool {
	lower := strings.ToLower(text)
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, k := range d.keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// Match returns every keyword found in text, in keyword-list order.
func (d *Detector) Match(text string) []string {
	lower := strings.ToLower(text)
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []string
	for _, k := range d.keywords {
		if strings.Contains(lower, k) {
			out = append(out, k)
		}
	}
	return out
}
