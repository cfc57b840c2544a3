// Package timer provides a small registry of cancellable timers and
// tickers so the lifecycle supervisor's cleanup sequence can enumerate
// and cancel every outstanding timer instead of tracking raw handles
// scattered across the topology builder, the fan-out, and the
// supervisor itself.
package timer

import (
	"sync"
	"time"
)

// Registry owns a set of named, cancellable timers.
type Registry struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	tickers map[string]*time.Ticker
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		timers:  make(map[string]*time.Timer),
		tickers: make(map[string]*time.Ticker),
	}
}

// After schedules fn to run once after d, registered under name. A
// prior timer under the same name is cancelled first.
func (r *Registry) After(name string, d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.timers[name]; ok {
		t.Stop()
	}
	r.timers[name] = time.AfterFunc(d, func() {
		fn()
		r.mu.Lock()
		delete(r.timers, name)
		r.mu.Unlock()
	})
}

// Every starts a ticker under name firing fn every d, until Cancel or
// CancelAll is called. A prior ticker under the same name is stopped
// first.
func (r *Registry) Every(name string, d time.Duration, fn func()) {
	r.mu.Lock()
	if t, ok := r.tickers[name]; ok {
		t.Stop()
	}
	ticker := time.NewTicker(d)
	r.tickers[name] = ticker
	r.mu.Unlock()

	go func() {
		for range ticker.C {
			fn()
		}
	}()
}

// Cancel stops and removes the named timer or ticker, if any.
func (r *Registry) Cancel(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.timers[name]; ok {
		t.Stop()
		delete(r.timers, name)
	}
	if t, ok := r.tickers[name]; ok {
		t.Stop()
		delete(r.tickers, name)
	}
}

// CancelAll stops and removes every outstanding timer and ticker. It
// is the single call the cleanup sequence makes at "clear all timers
// and intervals".
func (r *Registry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, t := range r.timers {
		t.Stop()
		delete(r.timers, name)
	}
	for name, t := range r.tickers {
		t.Stop()
		delete(r.tickers, name)
	}
}

// Names returns every currently registered timer/ticker name, for
// diagnostics and tests.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.timers)+len(r.tickers))
	for name := range r.timers {
		names = append(names, name)
	}
	for name := range r.tickers {
		names = append(names, name)
	}
	return names
}
