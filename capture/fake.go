package capture

import (
	"context"
	"fmt"
	"sync"
)

// FakeBackend is a scripted Backend for tests. Per-source errors make a
// source unavailable; acquired handles stay open until stopped or forced.
type FakeBackend struct {
	mu       sync.Mutex
	denied   map[Source]error
	acquired []Source
	handles  []*FakeHandle
}

func NewFakeBackend() *FakeBackend {
	return &FakeBackend{denied: make(map[Source]error)}
}

// Deny makes Acquire fail for source with err.
func (b *FakeBackend) Deny(source Source, err error) {
	b.mu.Lock()
	b.denied[source] = err
	b.mu.Unlock()
}

// Acquired returns the sources acquired so far, in order.
func (b *FakeBackend) Acquired() []Source {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Source(nil), b.acquired...)
}

// LastHandle returns the most recently acquired handle, or nil.
func (b *FakeBackend) LastHandle() *FakeHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.handles) == 0 {
		return nil
	}
	return b.handles[len(b.handles)-1]
}

func (b *FakeBackend) Acquire(_ context.Context, source Source) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.denied[source]; err != nil {
		return nil, err
	}
	b.acquired = append(b.acquired, source)
	h := &FakeHandle{handleBase: newHandleBase(source, fmt.Sprintf("fake %s", source))}
	go func() {
		<-h.stop
		h.finish(h.forced)
	}()
	b.handles = append(b.handles, h)
	return h, nil
}

func (b *FakeBackend) Close() {}

type FakeHandle struct {
	handleBase
	forced error
}

// ForceDone terminates the handle as if the device failed.
func (h *FakeHandle) ForceDone(err error) {
	h.forced = err
	h.handleBase.Stop()
}

// Stopped reports whether Stop or ForceDone has been called.
func (h *FakeHandle) Stopped() bool {
	select {
	case <-h.stop:
		return true
	default:
		return false
	}
}
