//go:build !linux

package capture

import (
	"context"
	"fmt"

	"github.com/gen2brain/malgo"
)

const sampleRate = 16000

// NewBackend initializes a miniaudio context. Only microphone capture is
// supported off linux; system audio reports ErrNoDevice so callers fall
// back to the microphone.
func NewBackend() (Backend, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("malgo: %w", err)
	}
	return &malgoBackend{ctx: ctx}, nil
}

type malgoBackend struct {
	ctx *malgo.AllocatedContext
}

func (b *malgoBackend) Acquire(_ context.Context, source Source) (Handle, error) {
	if source != Microphone {
		return nil, fmt.Errorf("%w: %s", ErrNoDevice, source)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = sampleRate

	callbacks := malgo.DeviceCallbacks{
		// Audio goes nowhere; recognition is external.
		Data: func(_, _ []byte, _ uint32) {},
	}
	dev, err := malgo.InitDevice(b.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("malgo device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("malgo start: %w", err)
	}

	h := &malgoHandle{handleBase: newHandleBase(source, "default microphone")}
	go func() {
		<-h.stop
		dev.Stop()
		dev.Uninit()
		h.finish(nil)
	}()
	return h, nil
}

func (b *malgoBackend) Close() {
	b.ctx.Uninit()
	b.ctx.Free()
}

type malgoHandle struct {
	handleBase
}
