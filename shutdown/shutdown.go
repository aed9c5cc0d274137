// Package shutdown runs cleanup exactly once, whether triggered by a
// signal or by the surface quitting.
package shutdown

import (
	"os"
	"sync"
)

var (
	once  sync.Once
	mu    sync.Mutex
	hooks []func()
)

// OnExit registers a cleanup hook. Hooks run in registration order.
func OnExit(fn func()) {
	mu.Lock()
	hooks = append(hooks, fn)
	mu.Unlock()
}

// Watch triggers Run when a termination signal arrives, then exits.
func Watch() {
	ch := make(chan os.Signal, 1)
	notify(ch)
	go func() {
		<-ch
		Run()
		os.Exit(0)
	}()
}

// Run executes the registered hooks. Safe to call more than once.
func Run() {
	once.Do(func() {
		mu.Lock()
		fns := append([]func(){}, hooks...)
		mu.Unlock()
		for _, fn := range fns {
			fn()
		}
	})
}
