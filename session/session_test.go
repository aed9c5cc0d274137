package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"meetscribe/capture"
	"meetscribe/kv"
	"meetscribe/recognition"
	"meetscribe/store"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func interim(text string) recognition.Event {
	return recognition.Event{
		Alternatives: []recognition.Alternative{{Text: text, Confidence: 0.9}},
	}
}

func final(text string) recognition.Event {
	ev := interim(text)
	ev.IsFinal = true
	return ev
}

type fixture struct {
	recorder *Recorder
	fake     *recognition.Fake
	backend  *capture.FakeBackend
	store    *store.Store
	clock    *clock
}

func newFixture(t *testing.T, runs ...recognition.Run) *fixture {
	t.Helper()
	fake := recognition.NewFake(runs...)
	backend := capture.NewFakeBackend()
	st := store.New(kv.NewMemory(), nil)
	r := NewRecorder(fake, backend, st)
	r.finalizeIdle = 10 * time.Millisecond
	r.finalizeMax = 100 * time.Millisecond
	r.delayScale = 0.01
	c := newClock()
	r.now = c.now
	t.Cleanup(func() { r.Stop() })
	return &fixture{recorder: r, fake: fake, backend: backend, store: st, clock: c}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMicFallbackWhenSystemAudioDenied(t *testing.T) {
	f := newFixture(t, recognition.Run{
		Events: []recognition.Event{final("hello from the meeting")},
		Hold:   true,
	})
	f.backend.Deny(capture.SystemAudio, capture.ErrPermissionDenied)

	if err := f.recorder.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := f.recorder.Status().Source; got != capture.Microphone {
		t.Errorf("source = %s, want microphone fallback", got)
	}
	waitFor(t, "words", func() bool {
		return strings.Contains(renderText(f), "meeting")
	})
}

func TestSystemAudioPreferred(t *testing.T) {
	f := newFixture(t)
	if err := f.recorder.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := f.recorder.Status().Source; got != capture.SystemAudio {
		t.Errorf("source = %s, want system audio", got)
	}
	if acquired := f.backend.Acquired(); len(acquired) != 1 || acquired[0] != capture.SystemAudio {
		t.Errorf("acquired = %v", acquired)
	}
}

func TestStartWhileRecordingIsNoOp(t *testing.T) {
	f := newFixture(t)
	if err := f.recorder.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := f.recorder.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := f.fake.Starts(); got != 1 {
		t.Errorf("recognizer starts = %d, want 1", got)
	}
	if got := len(f.backend.Acquired()); got != 1 {
		t.Errorf("captures acquired = %d, want 1", got)
	}
}

func TestBothSourcesDeniedFailsIdle(t *testing.T) {
	f := newFixture(t)
	f.backend.Deny(capture.SystemAudio, capture.ErrPermissionDenied)
	f.backend.Deny(capture.Microphone, capture.ErrNoDevice)

	err := f.recorder.Start(context.Background())
	if err == nil {
		t.Fatal("Start succeeded with no audio source")
	}
	if !errors.Is(err, capture.ErrNoDevice) {
		t.Errorf("err = %v, want wrapped ErrNoDevice", err)
	}
	if got := f.recorder.Status().State; got != StateIdle {
		t.Errorf("state = %s, want idle", got)
	}
}

func TestStopSavesTranscript(t *testing.T) {
	f := newFixture(t, recognition.Run{
		Events: []recognition.Event{
			final("the quick brown"),
			interim("fox jum"),
			interim("fox jumps"),
		},
		Hold: true,
	})
	if err := f.recorder.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "all events applied", func() bool {
		return strings.Contains(renderText(f), "jumps")
	})

	saved, err := f.recorder.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if saved == nil {
		t.Fatal("Stop saved nothing")
	}
	// The pending tail survives into the final text.
	if saved.Text != "the quick brown fox jumps" {
		t.Errorf("Text = %q", saved.Text)
	}
	if got := f.recorder.Status().State; got != StateIdle {
		t.Errorf("state after stop = %s, want idle", got)
	}
	if h := f.backend.LastHandle(); h == nil || !h.Stopped() {
		t.Errorf("capture handle not released on stop")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	f := newFixture(t, recognition.Run{
		Events: []recognition.Event{final("once")},
		Hold:   true,
	})
	if err := f.recorder.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "event applied", func() bool { return renderText(f) != "" })

	first, err := f.recorder.Stop()
	if err != nil || first == nil {
		t.Fatalf("first Stop = %v, %v", first, err)
	}
	second, err := f.recorder.Stop()
	if err != nil || second != nil {
		t.Errorf("second Stop = %v, %v, want nil, nil", second, err)
	}
	list, _ := f.store.List()
	if len(list) != 1 {
		t.Errorf("stored transcripts = %d, want 1", len(list))
	}
}

func TestShortSilentSessionNotSaved(t *testing.T) {
	f := newFixture(t)
	if err := f.recorder.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.clock.advance(2 * time.Second)

	saved, err := f.recorder.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if saved != nil {
		t.Errorf("short silent session saved: %+v", saved)
	}
	list, _ := f.store.List()
	if len(list) != 0 {
		t.Errorf("store not empty: %+v", list)
	}
}

func TestLongSilentSessionSavedEmpty(t *testing.T) {
	f := newFixture(t)
	if err := f.recorder.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.clock.advance(6 * time.Second)

	saved, err := f.recorder.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if saved == nil {
		t.Fatal("long session not saved")
	}
	if saved.Text != "" {
		t.Errorf("Text = %q, want empty", saved.Text)
	}
	if saved.DurationSeconds != 6 {
		t.Errorf("DurationSeconds = %v, want 6", saved.DurationSeconds)
	}
}

func TestRecognitionRestartsAfterTransientError(t *testing.T) {
	f := newFixture(t,
		recognition.Run{
			Events: []recognition.Event{final("before the drop")},
			Err:    &recognition.StreamError{Code: recognition.CodeNetwork},
		},
		recognition.Run{
			Events: []recognition.Event{final("after the drop")},
			Hold:   true,
		},
	)
	if err := f.recorder.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "restart", func() bool { return f.fake.Starts() == 2 })
	waitFor(t, "words from both streams", func() bool {
		return strings.Contains(renderText(f), "after the drop")
	})

	if got := f.fake.MaxActive(); got != 1 {
		t.Errorf("concurrent streams = %d, want at most 1", got)
	}
	text := renderText(f)
	if !strings.Contains(text, "before the drop") {
		t.Errorf("words from first stream lost: %q", text)
	}
}

func TestNotAllowedEndsSession(t *testing.T) {
	f := newFixture(t, recognition.Run{
		Events: []recognition.Event{final("partial words")},
		Err:    &recognition.StreamError{Code: recognition.CodeNotAllowed},
	})
	if err := f.recorder.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "auto-stop", func() bool {
		return f.recorder.Status().State == StateIdle
	})
	if got := f.fake.Starts(); got != 1 {
		t.Errorf("recognizer restarted after not-allowed: starts = %d", got)
	}
	waitFor(t, "transcript stored", func() bool {
		list, _ := f.store.List()
		return len(list) == 1
	})
	if notice := f.recorder.Status().Notice; !strings.Contains(notice, "recognition unavailable") {
		t.Errorf("notice = %q, want recognition-failure text", notice)
	}
}

func TestCaptureLossStopsSession(t *testing.T) {
	f := newFixture(t, recognition.Run{
		Events: []recognition.Event{final("words before unplug")},
		Hold:   true,
	})
	if err := f.recorder.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "words applied", func() bool { return renderText(f) != "" })

	f.backend.LastHandle().ForceDone(errors.New("device unplugged"))

	waitFor(t, "implicit stop", func() bool {
		return f.recorder.Status().State == StateIdle
	})
	list, _ := f.store.List()
	if len(list) != 1 || list[0].Text != "words before unplug" {
		t.Errorf("stored = %+v, want the pre-loss words", list)
	}
	if notice := f.recorder.Status().Notice; !strings.Contains(notice, "device lost") {
		t.Errorf("notice = %q, want device-loss text", notice)
	}
}

func TestMicFallbackSetsNotice(t *testing.T) {
	f := newFixture(t)
	f.backend.Deny(capture.SystemAudio, capture.ErrPermissionDenied)
	if err := f.recorder.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if notice := f.recorder.Status().Notice; !strings.Contains(notice, "microphone") {
		t.Errorf("notice = %q, want microphone fallback text", notice)
	}
}

func TestDetachingViewKeepsRecording(t *testing.T) {
	f := newFixture(t)
	v := &recordingView{}
	f.recorder.Attach(v)
	if err := f.recorder.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.recorder.Attach(nil)
	if got := f.recorder.Status().State; got != StateRecording {
		t.Errorf("state after detach = %s, want recording", got)
	}
}

func TestViewSeesWordUpdates(t *testing.T) {
	f := newFixture(t, recognition.Run{
		Events: []recognition.Event{final("words for the view")},
		Hold:   true,
	})
	v := &recordingView{}
	f.recorder.Attach(v)
	if err := f.recorder.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "view update with words", func() bool {
		return strings.Contains(v.lastText(), "view")
	})
}

type recordingView struct {
	mu   sync.Mutex
	last Snapshot
}

func (v *recordingView) Update(s Snapshot) {
	v.mu.Lock()
	v.last = s
	v.mu.Unlock()
}

func (v *recordingView) lastText() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	var words []string
	for _, line := range v.last.Lines {
		words = append(words, line.Words()...)
	}
	return strings.Join(words, " ")
}

func renderText(f *fixture) string {
	var words []string
	for _, line := range f.recorder.Status().Lines {
		words = append(words, line.Words()...)
	}
	return strings.Join(words, " ")
}
