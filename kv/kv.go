// Package kv is the durable key-value layer beneath the transcript store.
// It mirrors an extension storage area: flat string keys, opaque values,
// and change subscriptions. The sqlite store is the primary area; the file
// store is the degraded fallback when sqlite cannot be opened or written.
package kv

import "sync"

// Change describes one key mutation. OldValue is nil when the key was
// absent; NewValue is nil when the key was removed.
type Change struct {
	Key      string
	OldValue []byte
	NewValue []byte
}

// Store is one storage area. Get returns (nil, nil) for an absent key.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Remove(key string) error
	Subscribe(fn func(Change)) (cancel func())
	Close() error
}

// notifier fans changes out to subscribers. Callbacks run synchronously on
// the mutating goroutine, like an in-process change listener.
type notifier struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Change)
}

func (n *notifier) subscribe(fn func(Change)) func() {
	n.mu.Lock()
	if n.subs == nil {
		n.subs = make(map[int]func(Change))
	}
	id := n.next
	n.next++
	n.subs[id] = fn
	n.mu.Unlock()
	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

func (n *notifier) notify(c Change) {
	n.mu.Lock()
	fns := make([]func(Change), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}
