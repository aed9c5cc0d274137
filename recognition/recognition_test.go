package recognition

import (
	"context"
	"errors"
	"testing"
)

func TestBestPicksHighestConfidence(t *testing.T) {
	ev := Event{Alternatives: []Alternative{
		{Text: "hello word", Confidence: 0.62},
		{Text: "hello world", Confidence: 0.91},
		{Text: "hollow world", Confidence: 0.91},
	}}
	got := ev.Best()
	if got.Text != "hello world" {
		t.Errorf("Best().Text = %q, want %q (ties keep first-seen)", got.Text, "hello world")
	}
}

func TestBestEmpty(t *testing.T) {
	if got := (Event{}).Best(); got.Text != "" || got.Confidence != 0 {
		t.Errorf("Best() on empty event = %+v, want zero", got)
	}
}

func TestStreamErrorTransient(t *testing.T) {
	for _, tt := range []struct {
		code Code
		want bool
	}{
		{CodeNetwork, true},
		{CodeNoSpeech, true},
		{CodeAudioCapture, true},
		{CodeOther, true},
		{CodeNotAllowed, false},
	} {
		err := &StreamError{Code: tt.code}
		if got := err.Transient(); got != tt.want {
			t.Errorf("Transient(%s) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(&StreamError{Code: CodeNoSpeech}); got != CodeNoSpeech {
		t.Errorf("CodeOf = %s, want no-speech", got)
	}
	if got := CodeOf(errors.New("boom")); got != CodeOther {
		t.Errorf("CodeOf(plain error) = %s, want other", got)
	}
}

func TestFakeScriptedRun(t *testing.T) {
	want := &StreamError{Code: CodeNetwork}
	fake := NewFake(Run{
		Events: []Event{
			{Alternatives: []Alternative{{Text: "hi", Confidence: 1}}},
		},
		Err: want,
	})

	stream, err := fake.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	var events []Event
	for ev := range stream.Events() {
		events = append(events, ev)
	}
	if len(events) != 1 || events[0].Best().Text != "hi" {
		t.Fatalf("events = %+v, want one %q event", events, "hi")
	}
	if got := <-stream.Done(); !errors.Is(got, want) {
		t.Errorf("Done() = %v, want %v", got, want)
	}
	// Done is closed after delivery; late readers see nil.
	if got := <-stream.Done(); got != nil {
		t.Errorf("second Done() read = %v, want nil", got)
	}
	if fake.MaxActive() != 1 {
		t.Errorf("MaxActive = %d, want 1", fake.MaxActive())
	}
}

func TestFakeHoldUntilStop(t *testing.T) {
	fake := NewFake()
	stream, err := fake.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	stream.Stop()
	if got := <-stream.Done(); got != nil {
		t.Errorf("Done() after Stop = %v, want nil", got)
	}
}
