package kv

import (
	"meetscribe/log"
)

// Failover reads and writes through the primary store, degrading to the
// fallback when a primary operation fails. Data written while degraded is
// not migrated back; the two areas may diverge and the primary wins once it
// recovers.
type Failover struct {
	primary  Store
	fallback Store
}

func NewFailover(primary, fallback Store) *Failover {
	return &Failover{primary: primary, fallback: fallback}
}

func (f *Failover) Get(key string) ([]byte, error) {
	v, err := f.primary.Get(key)
	if err == nil {
		return v, nil
	}
	log.StoreFallback("get", err)
	return f.fallback.Get(key)
}

func (f *Failover) Set(key string, value []byte) error {
	err := f.primary.Set(key, value)
	if err == nil {
		return nil
	}
	log.StoreFallback("set", err)
	return f.fallback.Set(key, value)
}

func (f *Failover) Remove(key string) error {
	err := f.primary.Remove(key)
	if err == nil {
		return nil
	}
	log.StoreFallback("remove", err)
	return f.fallback.Remove(key)
}

// Subscribe registers with both areas; a change lands on whichever area
// accepted the mutation.
func (f *Failover) Subscribe(fn func(Change)) func() {
	cancelPrimary := f.primary.Subscribe(fn)
	cancelFallback := f.fallback.Subscribe(fn)
	return func() {
		cancelPrimary()
		cancelFallback()
	}
}

func (f *Failover) Close() error {
	err := f.primary.Close()
	if ferr := f.fallback.Close(); err == nil {
		err = ferr
	}
	return err
}
