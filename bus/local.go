package bus

import "sync"

// Broker is the in-process channel. Handlers run on the publishing
// goroutine.
type Broker struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]func()
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[int]func())}
}

func (b *Broker) Publish(topic string) {
	b.mu.Lock()
	fns := make([]func(), 0, len(b.subs[topic]))
	for _, fn := range b.subs[topic] {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (b *Broker) Subscribe(topic string, fn func()) func() {
	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]func())
	}
	id := b.next
	b.next++
	b.subs[topic][id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.subs[topic], id)
		b.mu.Unlock()
	}
}
