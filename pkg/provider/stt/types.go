package stt

import (
	"strings"
	"time"
)

// Transcript is a speech-to-text result. Partial and final transcripts share
// this type.
type Transcript struct {
	// Text is the transcribed speech.
	Text string

	// IsFinal distinguishes committed results from interim guesses.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). Zero if unknown.
	Confidence float64

	// Timestamp marks when the utterance started, relative to session start.
	Timestamp time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}

// KeywordBoost is a keyword to boost in recognition.
type KeywordBoost struct {
	// Keyword is the text to boost (e.g. "hopeless").
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}

// Keywords builds boosts with the same intensity for every word.
func Keywords(words []string, boost float64) []KeywordBoost {
	out := make([]KeywordBoost, 0, len(words))
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			out = append(out, KeywordBoost{Keyword: w, Boost: boost})
		}
	}
	return out
}

// BaseLanguage returns the primary subtag of a BCP-47 tag: "en-US" → "en".
func BaseLanguage(tag string) string {
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		return strings.ToLower(tag[:i])
	}
	return strings.ToLower(tag)
}

// ResultKind tags a [Result].
type ResultKind int

const (
	// ResultText carries a non-empty transcript.
	ResultText ResultKind = iota

	// ResultError reports a failed transcription attempt.
	ResultError

	// ResultEnded reports that recognition finished without any speech.
	ResultEnded
)

// String returns the lower-case name of the kind.
func (k ResultKind) String() string {
	switch k {
	case ResultText:
		return "text"
	case ResultError:
		return "error"
	case ResultEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// ErrorKind classifies a transcription failure.
type ErrorKind string

const (
	// ErrorNetwork means the recognition service connection failed mid-stream.
	ErrorNetwork ErrorKind = "network"

	// ErrorAudioCapture means the microphone could not be opened or failed.
	ErrorAudioCapture ErrorKind = "audio-capture"

	// ErrorAborted means the attempt was cancelled by the caller.
	ErrorAborted ErrorKind = "aborted"

	// ErrorService means the recognition service refused to start a session.
	ErrorService ErrorKind = "service"
)

// Result is the outcome of a single listen attempt: exactly one of a
// transcript, an error, or an empty end.
type Result struct {
	Kind ResultKind

	// Text is set when Kind is ResultText.
	Text string

	// ErrKind and Err are set when Kind is ResultError.
	ErrKind ErrorKind
	Err     error
}

// TextResult returns a [ResultText] result.
func TextResult(text string) Result { return Result{Kind: ResultText, Text: text} }

// ErrorResult returns a [ResultError] result.
func ErrorResult(kind ErrorKind, err error) Result {
	return Result{Kind: ResultError, ErrKind: kind, Err: err}
}

// EndedResult returns a [ResultEnded] result.
func EndedResult() Result { return Result{Kind: ResultEnded} }
