//go:build linux

package capture

import (
	"context"
	"fmt"
	"strings"

	"github.com/jfreymuth/pulse"
)

const sampleRate = 16000

// NewBackend connects to PulseAudio. System audio is captured from a sink
// monitor source; the microphone uses the default input source.
func NewBackend() (Backend, error) {
	client, err := pulse.NewClient()
	if err != nil {
		return nil, fmt.Errorf("pulse: %w", err)
	}
	return &pulseBackend{client: client}, nil
}

type pulseBackend struct {
	client *pulse.Client
}

func (b *pulseBackend) Acquire(_ context.Context, source Source) (Handle, error) {
	src, err := b.pickSource(source)
	if err != nil {
		return nil, err
	}

	h := &pulseHandle{handleBase: newHandleBase(source, src.Name())}

	// Audio goes nowhere; recognition is external. The stream exists so
	// device loss surfaces as a capture failure instead of silence.
	writer := pulse.Int16Writer(func(buf []int16) (int, error) {
		return len(buf), nil
	})
	stream, err := b.client.NewRecord(writer,
		pulse.RecordMono,
		pulse.RecordSampleRate(sampleRate),
		pulse.RecordLatency(0.1),
		pulse.RecordSource(src),
	)
	if err != nil {
		return nil, fmt.Errorf("pulse record: %w", err)
	}

	go func() {
		stream.Start()
		<-h.stop
		stream.Stop()
		stream.Close()
		h.finish(nil)
	}()
	return h, nil
}

func (b *pulseBackend) pickSource(source Source) (*pulse.Source, error) {
	sources, err := b.client.ListSources()
	if err != nil {
		return nil, fmt.Errorf("pulse list sources: %w", err)
	}
	for _, s := range sources {
		monitor := strings.HasSuffix(s.ID(), ".monitor")
		if (source == SystemAudio) == monitor {
			return s, nil
		}
	}
	if source == Microphone {
		if def, err := b.client.DefaultSource(); err == nil {
			return def, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoDevice, source)
}

func (b *pulseBackend) Close() {
	b.client.Close()
}

type pulseHandle struct {
	handleBase
}
