// Package capture acquires audio input for a recording session. The engine
// prefers system audio (what the machine is playing, e.g. remote meeting
// participants) and falls back to the microphone when system audio is
// unavailable or denied.
package capture

import (
	"context"
	"errors"
)

// Source identifies which kind of audio a handle captures.
type Source string

const (
	SystemAudio Source = "system_audio"
	Microphone  Source = "microphone"
)

var (
	// ErrPermissionDenied means the platform refused access to the source.
	ErrPermissionDenied = errors.New("capture: permission denied")
	// ErrNoDevice means no device exists for the requested source.
	ErrNoDevice = errors.New("capture: no device for source")
)

// Handle is one live capture. Done yields the terminal error (nil when the
// handle was stopped deliberately) and is then closed. Stop is idempotent.
type Handle interface {
	Source() Source
	Device() string
	Done() <-chan error
	Stop()
}

// Backend opens capture handles. Implementations are platform specific.
type Backend interface {
	Acquire(ctx context.Context, source Source) (Handle, error)
	Close()
}

// handleBase carries the lifecycle shared by all backends.
type handleBase struct {
	source Source
	device string
	done   chan error
	stop   chan struct{}
}

func newHandleBase(source Source, device string) handleBase {
	return handleBase{
		source: source,
		device: device,
		done:   make(chan error, 1),
		stop:   make(chan struct{}),
	}
}

func (h *handleBase) Source() Source     { return h.source }
func (h *handleBase) Device() string     { return h.device }
func (h *handleBase) Done() <-chan error { return h.done }

func (h *handleBase) Stop() {
	select {
	case <-h.stop:
	default:
		close(h.stop)
	}
}

func (h *handleBase) finish(err error) {
	h.done <- err
	close(h.done)
}
