package overlay

import (
	"testing"
	"time"

	"meetscribe/kv"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	k := NewKeeper(kv.NewMemory())
	if err := k.Save(State{X: 120, Y: 48, Visible: true}); err != nil {
		t.Fatal(err)
	}
	got, err := k.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.X != 120 || got.Y != 48 || !got.Visible {
		t.Errorf("Load = %+v, want saved state", got)
	}
}

func TestLoadEmpty(t *testing.T) {
	k := NewKeeper(kv.NewMemory())
	got, err := k.Load()
	if err != nil || got != nil {
		t.Errorf("Load on empty area = %+v, %v, want nil, nil", got, err)
	}
}

func TestStaleStateDiscardedAndRemoved(t *testing.T) {
	mem := kv.NewMemory()
	k := NewKeeper(mem)
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	k.now = func() time.Time { return base }
	if err := k.Save(State{X: 1, Y: 2, Visible: true}); err != nil {
		t.Fatal(err)
	}

	k.now = func() time.Time { return base.Add(TTL + time.Minute) }
	got, err := k.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("stale state restored: %+v", got)
	}
	if data, _ := mem.Get("overlayState"); data != nil {
		t.Errorf("stale state not removed from storage")
	}
}

func TestFreshStateWithinTTL(t *testing.T) {
	k := NewKeeper(kv.NewMemory())
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	k.now = func() time.Time { return base }
	k.Save(State{X: 5, Y: 6})

	k.now = func() time.Time { return base.Add(TTL - time.Minute) }
	got, err := k.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("fresh state discarded")
	}
}

func TestCorruptStateRemoved(t *testing.T) {
	mem := kv.NewMemory()
	mem.Set("overlayState", []byte("nope"))
	k := NewKeeper(mem)

	got, err := k.Load()
	if err != nil || got != nil {
		t.Errorf("Load of corrupt state = %+v, %v, want nil, nil", got, err)
	}
	if data, _ := mem.Get("overlayState"); data != nil {
		t.Errorf("corrupt state not removed")
	}
}
