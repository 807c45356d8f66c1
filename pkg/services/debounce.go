package services

import (
	"strings"
	"sync"
	"time"
)

// debouncer coalesces bursts of calls per key into a single trailing-edge
// invocation. Each Schedule for a key cancels the key's pending timer and
// arms a new one, so only the last call in a burst runs.
type debouncer struct {
	mu     sync.Mutex
	delay  time.Duration
	timers map[string]*time.Timer
	closed bool
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{
		delay:  delay,
		timers: make(map[string]*time.Timer),
	}
}

// Schedule arms (or re-arms) the timer for key. fn runs on its own goroutine
// after the default delay elapses without another Schedule for the same key.
func (d *debouncer) Schedule(key string, fn func()) {
	d.ScheduleAfter(key, d.delay, fn)
}

// ScheduleAfter is Schedule with an explicit window for this call.
func (d *debouncer) ScheduleAfter(key string, delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	if delay <= 0 {
		delay = d.delay
	}

	if timer, ok := d.timers[key]; ok {
		timer.Stop()
	}

	d.timers[key] = time.AfterFunc(delay, func() {
		d.mu.Lock()
		delete(d.timers, key)
		closed := d.closed
		d.mu.Unlock()
		if !closed {
			fn()
		}
	})
}

// Cancel drops the pending invocation for key, if any.
func (d *debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, ok := d.timers[key]; ok {
		timer.Stop()
		delete(d.timers, key)
	}
}

// CancelPrefix drops every pending invocation whose key starts with prefix.
// Used on session teardown to clear all timers for one estimate.
func (d *debouncer) CancelPrefix(prefix string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, timer := range d.timers {
		if strings.HasPrefix(key, prefix) {
			timer.Stop()
			delete(d.timers, key)
		}
	}
}

// Close cancels all pending invocations and rejects future ones.
func (d *debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	for key, timer := range d.timers {
		timer.Stop()
		delete(d.timers, key)
	}
}
