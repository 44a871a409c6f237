// Package typing debounces outbound typing signals per conversation.
package typing

import (
	"sync"
	"time"
)

const DefaultQuietPeriod = 3 * time.Second

// Emitter receives the start and stop signals. It is called without any
// debouncer lock held.
type Emitter interface {
	EmitTyping(conversationID string, typing bool)
}

type EmitterFunc func(conversationID string, typing bool)

func (f EmitterFunc) EmitTyping(conversationID string, typing bool) { f(conversationID, typing) }

// Timer is the part of *time.Timer the debouncer needs.
type Timer interface {
	Stop() bool
}

type AfterFunc func(d time.Duration, f func()) Timer

type Option func(*Debouncer)

// WithAfterFunc replaces time.AfterFunc, mostly for tests.
func WithAfterFunc(fn AfterFunc) Option {
	return func(d *Debouncer) {
		d.after = fn
	}
}

type pending struct {
	generation uint64
	timer      Timer
}

// Debouncer keeps at most one live quiet-period timer per conversation.
type Debouncer struct {
	quiet time.Duration
	emit  Emitter
	after AfterFunc

	mu      sync.Mutex
	pending map[string]*pending
	nextGen uint64
}

func NewDebouncer(quiet time.Duration, emit Emitter, opts ...Option) *Debouncer {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	d := &Debouncer{
		quiet:   quiet,
		emit:    emit,
		pending: make(map[string]*pending),
		after: func(dur time.Duration, f func()) Timer {
			return time.AfterFunc(dur, f)
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Keystroke emits a start signal if the conversation is not already
// signaling and re-arms its quiet-period timer.
func (d *Debouncer) Keystroke(conversationID string) {
	d.mu.Lock()
	p, signaling := d.pending[conversationID]
	if signaling {
		p.timer.Stop()
	} else {
		p = &pending{}
		d.pending[conversationID] = p
	}
	d.nextGen++
	gen := d.nextGen
	p.generation = gen
	p.timer = d.after(d.quiet, func() { d.expire(conversationID, gen) })
	d.mu.Unlock()

	if !signaling {
		d.emit.EmitTyping(conversationID, true)
	}
}

// Stop emits a stop signal right away when the conversation is signaling.
// It reports whether a signal was emitted.
func (d *Debouncer) Stop(conversationID string) bool {
	if !d.drop(conversationID) {
		return false
	}
	d.emit.EmitTyping(conversationID, false)
	return true
}

// Cancel drops the conversation's timer without emitting anything.
func (d *Debouncer) Cancel(conversationID string) {
	d.drop(conversationID)
}

func (d *Debouncer) CancelAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, id)
	}
}

func (d *Debouncer) Signaling(conversationID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[conversationID]
	return ok
}

func (d *Debouncer) drop(conversationID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pending[conversationID]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(d.pending, conversationID)
	return true
}

// expire runs on the timer goroutine. A callback from a timer that was
// re-armed or dropped after it fired carries a stale generation.
func (d *Debouncer) expire(conversationID string, gen uint64) {
	d.mu.Lock()
	p, ok := d.pending[conversationID]
	if !ok || p.generation != gen {
		d.mu.Unlock()
		return
	}
	delete(d.pending, conversationID)
	d.mu.Unlock()

	d.emit.EmitTyping(conversationID, false)
}
