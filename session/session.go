// Package session runs the recording lifecycle: acquire audio, stream
// recognition into the word reconciler, survive recognition restarts, and
// on stop finalize the words into a stored transcript.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"meetscribe/capture"
	"meetscribe/log"
	"meetscribe/recognition"
	"meetscribe/store"
	"meetscribe/wordstream"
)

type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateFinalizing State = "finalizing"
)

const (
	// minSaveDuration saves long sessions even when no words were heard,
	// so the user sees that the recording happened.
	minSaveDuration = 5 * time.Second

	// Grace for late final results after stop: wait while events keep
	// arriving, but never longer than the cap.
	finalizeIdle = 200 * time.Millisecond
	finalizeMax  = time.Second

	// Restart delays by termination kind.
	restartOnEnd     = 150 * time.Millisecond
	restartNoSpeech  = 500 * time.Millisecond
	restartTransient = time.Second
	restartNetwork   = 2 * time.Second

	// After this many consecutive failures the delay floor rises.
	persistentFailures = 3
	persistentFloor    = 2 * time.Second
)

// Snapshot is what a surface needs to draw the session. Notice carries
// user-visible degradation text (mic fallback, device loss), empty when
// all is well.
type Snapshot struct {
	State     State
	Source    capture.Source
	Lines     []wordstream.Line
	StartedAt time.Time
	Notice    string
}

// View receives a snapshot after every visible change. Updates arrive on
// engine goroutines; implementations must not block.
type View interface {
	Update(Snapshot)
}

// Recorder is the session state machine. All methods are safe for
// concurrent use; Start during an active session and Stop while idle are
// no-ops.
type Recorder struct {
	recognizer recognition.Recognizer
	backend    capture.Backend
	store      *store.Store

	mu        sync.Mutex
	state     State
	gen       int
	source    capture.Source
	startedAt time.Time
	handle    capture.Handle
	stream    recognition.Stream
	words     wordstream.Reconciler
	failures  int
	notice    string
	stopCh    chan struct{}
	doneCh    chan struct{}
	view      View

	now          func() time.Time
	finalizeIdle time.Duration
	finalizeMax  time.Duration
	delayScale   float64
}

func NewRecorder(recognizer recognition.Recognizer, backend capture.Backend, st *store.Store) *Recorder {
	return &Recorder{
		recognizer:   recognizer,
		backend:      backend,
		store:        st,
		state:        StateIdle,
		now:          time.Now,
		finalizeIdle: finalizeIdle,
		finalizeMax:  finalizeMax,
		delayScale:   1,
	}
}

// Attach points the recorder at a surface and pushes the current snapshot.
// A nil view detaches; detaching never affects the session itself.
func (r *Recorder) Attach(v View) {
	r.mu.Lock()
	r.view = v
	r.mu.Unlock()
	r.pushView()
}

// Status returns the current snapshot.
func (r *Recorder) Status() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Start begins a session. System audio is tried first; when it is denied
// or absent the microphone is used instead. Starting while a session is
// active is a no-op.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateIdle {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	handle, source, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	stream, err := r.recognizer.Start(ctx)
	if err != nil {
		handle.Stop()
		return fmt.Errorf("start recognition: %w", err)
	}

	r.mu.Lock()
	if r.state != StateIdle {
		// Lost a start race; the other session wins.
		r.mu.Unlock()
		stream.Stop()
		handle.Stop()
		return nil
	}
	r.gen++
	gen := r.gen
	r.state = StateRecording
	r.source = source
	r.handle = handle
	r.stream = stream
	r.startedAt = r.now()
	r.failures = 0
	r.notice = ""
	if source == capture.Microphone {
		r.notice = "system audio unavailable; recording from microphone"
	}
	r.words.Reset()
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	r.stopCh = stopCh
	r.doneCh = doneCh
	r.mu.Unlock()

	log.SessionStart(string(source))
	r.pushView()
	go r.watchCapture(gen, handle)
	go r.supervise(ctx, gen, stream, stopCh, doneCh)
	return nil
}

// Stop ends the session: absorb late final results, then save when the
// transcript has text or the session ran long enough. Returns the saved
// transcript, or nil when nothing warranted saving. Stopping an idle or
// already-finalizing session is a no-op.
func (r *Recorder) Stop() (*store.Transcript, error) {
	r.mu.Lock()
	if r.state != StateRecording {
		r.mu.Unlock()
		return nil, nil
	}
	r.state = StateFinalizing
	stream := r.stream
	handle := r.handle
	stopCh := r.stopCh
	doneCh := r.doneCh
	startedAt := r.startedAt
	r.mu.Unlock()
	r.pushView()

	close(stopCh)
	if stream != nil {
		stream.Stop()
	}
	r.absorb(doneCh)

	r.mu.Lock()
	text := r.words.FinalText()
	wordCount := r.words.Len()
	duration := r.now().Sub(startedAt)
	r.state = StateIdle
	r.stream = nil
	r.handle = nil
	r.mu.Unlock()

	if handle != nil {
		handle.Stop()
	}

	var saved *store.Transcript
	var err error
	if text != "" || duration > minSaveDuration {
		saved, err = r.store.Save(text, duration)
	}
	log.SessionEnd(duration.Seconds(), wordCount, saved != nil)
	r.pushView()
	return saved, err
}

func (r *Recorder) acquire(ctx context.Context) (capture.Handle, capture.Source, error) {
	handle, sysErr := r.backend.Acquire(ctx, capture.SystemAudio)
	if sysErr == nil {
		return handle, capture.SystemAudio, nil
	}
	log.Warnf("system audio unavailable, trying microphone: %v", sysErr)
	handle, micErr := r.backend.Acquire(ctx, capture.Microphone)
	if micErr == nil {
		return handle, capture.Microphone, nil
	}
	return nil, "", fmt.Errorf("no audio source: system audio: %v; microphone: %w", sysErr, micErr)
}

// supervise consumes one recognition stream after another, restarting with
// a backoff chosen by how the previous stream ended. It exits when the
// session stops or recognition fails permanently.
func (r *Recorder) supervise(ctx context.Context, gen int, stream recognition.Stream, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	for {
		sawEvents := false
		for ev := range stream.Events() {
			if r.applyEvent(gen, ev) {
				sawEvents = true
			}
		}
		err := <-stream.Done()

		select {
		case <-stopCh:
			return
		default:
		}

		if sawEvents {
			r.setFailures(0)
		}
		delay, reason, restart := r.restartPlan(err)
		if !restart {
			log.Errorf("recognition ended permanently: %v", err)
			r.noteFailure("recognition unavailable; recording stopped")
			go r.Stop()
			return
		}
		attempt := r.failureCount()
		select {
		case <-stopCh:
			return
		case <-time.After(r.scaled(delay)):
		}
		log.RecognitionRestart(reason, attempt, delay.Milliseconds())

		next, startErr := r.startNext(ctx, stopCh)
		if startErr != nil {
			log.Errorf("recognition unavailable, ending session: %v", startErr)
			r.noteFailure("recognition unavailable; recording stopped")
			go r.Stop()
			return
		}
		if next == nil {
			return
		}
		if !r.swapStream(gen, next) {
			next.Stop()
			return
		}
		stream = next
	}
}

// startNext retries recognizer start until it succeeds, the session stops
// (nil, nil), or the capability is gone entirely.
func (r *Recorder) startNext(ctx context.Context, stopCh chan struct{}) (recognition.Stream, error) {
	for {
		stream, err := r.recognizer.Start(ctx)
		if err == nil {
			return stream, nil
		}
		if errors.Is(err, recognition.ErrUnavailable) {
			return nil, err
		}
		r.bumpFailures()
		select {
		case <-stopCh:
			return nil, nil
		case <-time.After(r.scaled(restartTransient)):
		}
	}
}

// restartPlan maps a stream's terminal error to a restart delay. Rapid
// consecutive failures raise the floor so a flapping engine is not hammered.
func (r *Recorder) restartPlan(err error) (time.Duration, string, bool) {
	var delay time.Duration
	var reason string
	if err == nil {
		delay, reason = restartOnEnd, "end"
	} else {
		code := recognition.CodeOf(err)
		switch code {
		case recognition.CodeNoSpeech:
			delay = restartNoSpeech
		case recognition.CodeNetwork:
			delay = restartNetwork
		case recognition.CodeNotAllowed:
			return 0, string(code), false
		default:
			delay = restartTransient
		}
		reason = string(code)
		if r.bumpFailures() >= persistentFailures && delay < persistentFloor {
			delay = persistentFloor
		}
	}
	return delay, reason, true
}

// applyEvent folds an event into the word stream if it belongs to the
// current session. Late events from a superseded stream are dropped.
func (r *Recorder) applyEvent(gen int, ev recognition.Event) bool {
	r.mu.Lock()
	if r.gen != gen || r.state == StateIdle {
		r.mu.Unlock()
		return false
	}
	r.words.Apply(ev)
	r.mu.Unlock()
	r.pushView()
	return true
}

// swapStream installs the restarted stream unless the session moved on.
func (r *Recorder) swapStream(gen int, stream recognition.Stream) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen || r.state != StateRecording {
		return false
	}
	r.stream = stream
	return true
}

// absorb waits for the supervisor to drain late final results, giving up
// once events stop arriving or the cap elapses.
func (r *Recorder) absorb(doneCh <-chan struct{}) {
	limit := time.NewTimer(r.finalizeMax)
	defer limit.Stop()
	for {
		r.mu.Lock()
		before := r.words.Len()
		r.mu.Unlock()
		select {
		case <-doneCh:
			return
		case <-limit.C:
			return
		case <-time.After(r.finalizeIdle):
			r.mu.Lock()
			after := r.words.Len()
			r.mu.Unlock()
			if after == before {
				return
			}
		}
	}
}

// watchCapture ends the session when the audio device is lost; whatever
// words arrived so far go through the normal save rules.
func (r *Recorder) watchCapture(gen int, handle capture.Handle) {
	err := <-handle.Done()
	if err == nil {
		return
	}
	r.mu.Lock()
	current := r.gen == gen && r.state == StateRecording
	if current {
		r.notice = "audio device lost; recording stopped"
	}
	r.mu.Unlock()
	if current {
		log.Warnf("audio capture ended mid-session: %v", err)
		r.Stop()
	}
}

// noteFailure records user-visible degradation text for an active session,
// kept on the snapshot through the stop that follows.
func (r *Recorder) noteFailure(msg string) {
	r.mu.Lock()
	if r.state == StateRecording {
		r.notice = msg
	}
	r.mu.Unlock()
}

func (r *Recorder) bumpFailures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures++
	return r.failures
}

func (r *Recorder) setFailures(n int) {
	r.mu.Lock()
	r.failures = n
	r.mu.Unlock()
}

func (r *Recorder) failureCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures
}

func (r *Recorder) scaled(d time.Duration) time.Duration {
	return time.Duration(float64(d) * r.delayScale)
}

func (r *Recorder) snapshotLocked() Snapshot {
	return Snapshot{
		State:     r.state,
		Source:    r.source,
		Lines:     r.words.Render(),
		StartedAt: r.startedAt,
		Notice:    r.notice,
	}
}

func (r *Recorder) pushView() {
	r.mu.Lock()
	v := r.view
	snap := r.snapshotLocked()
	r.mu.Unlock()
	if v != nil {
		v.Update(snap)
	}
}
