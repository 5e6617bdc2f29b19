package sqlite

import (
	"log"
	"sync"
	"time"
)

// flushState tracks the debouncer's single pending timer.
type flushState int

const (
	flushIdle flushState = iota
	flushScheduled
)

// debouncer coalesces rapid writes into one delayed flush. Schedule arms a
// timer when idle and is a no-op while one is pending, so any burst of
// writes inside the delay window produces exactly one flush.
type debouncer struct {
	mu     sync.Mutex
	state  flushState
	timer  *time.Timer
	delay  time.Duration
	flush  func() error
	closed bool
}

func newDebouncer(delay time.Duration, flush func() error) *debouncer {
	return &debouncer{delay: delay, flush: flush}
}

// Schedule requests a flush after the debounce delay. Calls made while a
// flush is already pending coalesce into it.
func (d *debouncer) Schedule() {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.state == flushScheduled {
		return
	}
	d.state = flushScheduled
	d.timer = time.AfterFunc(d.delay, d.fire)
}

func (d *debouncer) fire() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.state = flushIdle
	d.timer = nil
	d.mu.Unlock()

	if err := d.flush(); err != nil {
		log.Printf("analytics snapshot flush: %v", err)
	}
}

// FlushNow cancels any pending timer and flushes synchronously.
func (d *debouncer) FlushNow() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.state = flushIdle
	d.mu.Unlock()

	return d.flush()
}

// Close performs a final synchronous flush and rejects further scheduling.
func (d *debouncer) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.state = flushIdle
	d.closed = true
	d.mu.Unlock()

	if err := d.flush(); err != nil {
		log.Printf("analytics snapshot final flush: %v", err)
	}
}
