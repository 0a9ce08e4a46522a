// Package session holds the short-term conversation memory exchanged with the
// reply service: a bounded, chronologically ordered list of user/AI turns.
//
// A turn is first recorded provisionally, before the reply is known, and later
// reconciled with the reply. Reconciliation is keyed by a per-turn correlation
// ID rather than by text, so two identical consecutive utterances can never be
// confused with each other.
//
// History is safe for concurrent use.
package session

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Pending is the AI text stored for a provisional entry whose reply has not
// arrived yet. It is persisted verbatim.
const Pending = "..."

// DefaultCapacity is the number of turns retained when no capacity is given.
const DefaultCapacity = 10

// Entry is one user/AI exchange.
type Entry struct {
	// ID correlates a provisional entry with its reply. Never serialised.
	ID string `json:"-"`

	// User is the transcribed user utterance.
	User string `json:"user"`

	// AI is the reply text, or [Pending] while the reply is outstanding.
	AI string `json:"ai"`
}

// IsPending reports whether the entry is still waiting for its reply.
func (e Entry) IsPending() bool { return e.AI == Pending }

// History is a capacity-bounded FIFO of entries, oldest first.
type History struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
}

// NewHistory returns an empty History holding at most capacity entries.
// A capacity below 1 selects [DefaultCapacity].
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &History{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
	}
}

// Cap returns the maximum number of retained entries.
func (h *History) Cap() int { return h.capacity }

// Len returns the current number of entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// AppendProvisional records user with a pending reply and returns the
// correlation ID to pass to [History.Reconcile].
func (h *History) AppendProvisional(user string) string {
	id := newID()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.push(Entry{ID: id, User: user, AI: Pending})
	return id
}

// Append records a complete exchange.
func (h *History) Append(user, ai string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.push(Entry{ID: newID(), User: user, AI: ai})
}

// Reconcile sets the reply of the provisional entry identified by id. When
// that entry is no longer present (evicted or cleared) a complete entry
// {user, ai} is appended instead. It reports whether the provisional entry
// was found.
func (h *History) Reconcile(id, user, ai string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.entries) - 1; i >= 0; i-- {
		if h.entries[i].ID == id {
			h.entries[i].AI = ai
			return true
		}
	}
	h.push(Entry{ID: newID(), User: user, AI: ai})
	return false
}

// Entries returns a copy of all entries, oldest first.
func (h *History) Entries() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Recent returns a copy of the newest n entries, oldest first. n <= 0 or
// n >= Len returns every entry.
func (h *History) Recent(n int) []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	src := h.entries
	if n > 0 && n < len(src) {
		src = src[len(src)-n:]
	}
	out := make([]Entry, len(src))
	copy(out, src)
	return out
}

// Clear removes every entry.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = h.entries[:0]
}

// Replace discards the current contents and loads entries, keeping only the
// newest Cap of them. Entries without an ID are assigned one.
func (h *History) Replace(entries []Entry) {
	if len(entries) > h.capacity {
		entries = entries[len(entries)-h.capacity:]
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = h.entries[:0]
	for _, e := range entries {
		if e.ID == "" {
			e.ID = newID()
		}
		h.entries = append(h.entries, e)
	}
}

// push appends e, evicting the oldest entry when full. Caller holds h.mu.
func (h *History) push(e Entry) {
	if len(h.entries) >= h.capacity {
		copy(h.entries, h.entries[1:])
		h.entries = h.entries[:len(h.entries)-1]
	}
	h.entries = append(h.entries, e)
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Marshal encodes entries in the persisted form: a JSON array of
// {"user","ai"} objects. A nil slice encodes as an empty array.
func Marshal(entries []Entry) ([]byte, error) {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("session: marshal entries: %w", err)
	}
	return data, nil
}

// Unmarshal decodes the persisted form produced by [Marshal]. Empty input
// yields an empty slice.
func Unmarshal(data []byte) ([]Entry, error) {
	if len(data) == 0 {
		return []Entry{}, nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("session: unmarshal entries: %w", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}
