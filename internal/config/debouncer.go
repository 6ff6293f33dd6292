package config

import (
	"sync"
	"time"
)

// Debouncer collapses bursts of file events into one flush per window.
type Debouncer struct {
	window  time.Duration
	pending map[string]struct{}
	mu      sync.Mutex
	timer   *time.Timer
	onFlush func([]string)
	stopped bool
}

func NewDebouncer(window time.Duration, onFlush func([]string)) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]struct{}),
		onFlush: onFlush,
	}
}

func (d *Debouncer) Add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.pending[path] = struct{}{}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	if d.stopped || len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}

	paths := make([]string, 0, len(d.pending))
	for p := range d.pending {
		paths = append(paths, p)
	}
	d.pending = make(map[string]struct{})
	d.timer = nil
	d.mu.Unlock()

	if d.onFlush != nil {
		d.onFlush(paths)
	}
}

// Stop drops pending events. No flush runs after Stop returns, except one
// that had already started.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = make(map[string]struct{})
}
