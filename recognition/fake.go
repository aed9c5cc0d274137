package recognition

import (
	"context"
	"sync"
)

// Run scripts the lifetime of one fake stream: its events, then either a
// terminal error (nil = clean end) or, with Hold, staying open until Stop.
type Run struct {
	Events []Event
	Err    error
	Hold   bool
}

// Fake is a scripted Recognizer for tests. Each Start consumes the next
// Run; once runs are exhausted, streams stay open until stopped.
type Fake struct {
	mu        sync.Mutex
	runs      []Run
	startErr  error
	starts    int
	active    int
	maxActive int
}

func NewFake(runs ...Run) *Fake {
	return &Fake{runs: runs}
}

// FailStart makes every subsequent Start return err.
func (f *Fake) FailStart(err error) {
	f.mu.Lock()
	f.startErr = err
	f.mu.Unlock()
}

func (f *Fake) Starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

// MaxActive reports the highest number of concurrently live streams.
func (f *Fake) MaxActive() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxActive
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Start(_ context.Context) (Stream, error) {
	f.mu.Lock()
	if f.startErr != nil {
		err := f.startErr
		f.mu.Unlock()
		return nil, err
	}
	f.starts++
	run := Run{Hold: true}
	if len(f.runs) > 0 {
		run = f.runs[0]
		f.runs = f.runs[1:]
	}
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.mu.Unlock()

	fs := &fakeStream{
		owner:  f,
		run:    run,
		events: make(chan Event, len(run.Events)+1),
		done:   make(chan error, 1),
		stop:   make(chan struct{}),
	}
	go fs.play()
	return fs, nil
}

func (f *Fake) release() {
	f.mu.Lock()
	f.active--
	f.mu.Unlock()
}

type fakeStream struct {
	owner  *Fake
	run    Run
	events chan Event
	done   chan error
	stop   chan struct{}
	once   sync.Once
}

func (s *fakeStream) Events() <-chan Event { return s.events }
func (s *fakeStream) Done() <-chan error   { return s.done }

func (s *fakeStream) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

func (s *fakeStream) play() {
	for _, ev := range s.run.Events {
		select {
		case s.events <- ev:
		case <-s.stop:
			s.finish(nil)
			return
		}
	}
	if s.run.Hold {
		<-s.stop
		s.finish(nil)
		return
	}
	s.finish(s.run.Err)
}

func (s *fakeStream) finish(err error) {
	s.once.Do(func() {
		close(s.events)
		s.done <- err
		close(s.done)
		s.owner.release()
	})
}
