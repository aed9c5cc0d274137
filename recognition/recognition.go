// Package recognition defines the speech-recognition capability consumed by
// the session engine. Recognition itself is external; this package models it
// as a cancellable subscription yielding a stream of revisable events.
package recognition

import (
	"context"
	"errors"
	"fmt"
)

// Alternative is one candidate transcription of a result.
type Alternative struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Event is a single recognition result. Interim events (IsFinal false) are
// revisable and resent cumulatively; final events are permanent.
type Event struct {
	ResultIndex  int           `json:"resultIndex"`
	Alternatives []Alternative `json:"alternatives"`
	IsFinal      bool          `json:"isFinal"`
}

// Best returns the highest-confidence alternative. Ties keep the
// first-seen alternative. Returns a zero Alternative when there are none.
func (e Event) Best() Alternative {
	var best Alternative
	for i, alt := range e.Alternatives {
		if i == 0 || alt.Confidence > best.Confidence {
			best = alt
		}
	}
	return best
}

// Code classifies why a recognition stream terminated.
type Code string

const (
	CodeNetwork      Code = "network"
	CodeNoSpeech     Code = "no-speech"
	CodeAudioCapture Code = "audio-capture"
	CodeNotAllowed   Code = "not-allowed"
	CodeOther        Code = "other"
)

// ErrUnavailable means no recognition capability is present at all.
var ErrUnavailable = errors.New("recognition capability unavailable")

// StreamError is a coded terminal error from a recognition stream.
type StreamError struct {
	Code    Code
	Message string
}

func (e *StreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("recognition stream error: %s", e.Code)
	}
	return fmt.Sprintf("recognition stream error: %s: %s", e.Code, e.Message)
}

// Transient reports whether the stream may be restarted after this error.
func (e *StreamError) Transient() bool {
	switch e.Code {
	case CodeNetwork, CodeNoSpeech, CodeAudioCapture, CodeOther:
		return true
	}
	return false
}

// CodeOf extracts the error code, defaulting to CodeOther.
func CodeOf(err error) Code {
	var se *StreamError
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeOther
}

// Stream is one live recognition subscription.
//
// Events delivers results in arrival order and is closed when the stream
// terminates. Done yields the terminal error (nil for a clean end) and is
// then closed, so late readers observe nil.
type Stream interface {
	Events() <-chan Event
	Done() <-chan error
	Stop()
}

// Recognizer opens recognition streams. Streams are not guaranteed to stay
// alive; callers own restart policy.
type Recognizer interface {
	Name() string
	Start(ctx context.Context) (Stream, error)
}
