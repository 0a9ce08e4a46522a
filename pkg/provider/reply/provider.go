// Package reply defines the Provider interface for reply generation: given
// what the user just said, the recent session history and whether the
// utterance carries emotional keywords, produce the listener's answer.
//
// The reference backend is a remote HTTP service (package remote). Package
// chat serves the same contract locally through an LLM.
//
// Implementations must be safe for concurrent use.
package reply

import (
	"context"
	"errors"

	"github.com/MrWong99/solace/pkg/session"
)

// ErrNoReply is returned when the backend answered but produced no reply
// text. Callers respond with a clarifying prompt rather than the generic
// fallback.
var ErrNoReply = errors.New("reply: no reply in response")

// Request is one reply request.
type Request struct {
	// Text is the user's utterance.
	Text string

	// Session is the recent history, oldest first. It includes the
	// provisional entry for Text.
	Session []session.Entry

	// EmotionFlag reports that Text contains an emotional keyword.
	EmotionFlag bool
}

// Provider generates replies.
type Provider interface {
	// Reply returns the reply text for req. A backend that responds without
	// reply text returns [ErrNoReply]; any other failure returns a wrapped
	// error.
	Reply(ctx context.Context, req Request) (string, error)
}
