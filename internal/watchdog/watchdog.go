// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package watchdog implements the timeout/clock watchdog (C6, spec.md
// section 4.6): one virtual-time event armed at the start of every
// iteration, cancelled on a normal stop, firing a timeout callback
// otherwise.
package watchdog

import (
	"time"

	"github.com/intel/tsffs-go/pkg/simulator"
)

// EventPoster is the slice of simulator.Host the watchdog needs -- posting
// and cancelling a single virtual-time event -- spelled out narrowly so
// tests can supply a fake clock instead of a full simulator.Host.
type EventPoster interface {
	PostEvent(d time.Duration, cb func()) simulator.EventHandle
	CancelEvent(h simulator.EventHandle)
}

// Watchdog arms and disarms exactly one outstanding virtual-time event at a
// time. It is not safe for concurrent use; the engine drives it from its
// single-threaded iteration loop, matching spec.md's note that the
// simulator's event loop and the core are cooperative, not concurrent.
type Watchdog struct {
	host    EventPoster
	timeout time.Duration

	handle  simulator.EventHandle
	armed   bool
	onFire  func()
}

// New returns a Watchdog that, once armed, waits timeout before invoking the
// callback passed to Arm.
func New(host EventPoster, timeout time.Duration) *Watchdog {
	return &Watchdog{host: host, timeout: timeout}
}

// Arm posts a virtual-time event timeout in the future (spec.md 4.6: "post
// a simulator event T virtual seconds ahead"). onFire is invoked at most
// once, and not at all if Disarm runs first. Arming while already armed
// first disarms the previous event -- the engine never does this in
// practice (one watchdog per iteration) but it keeps Arm total.
func (w *Watchdog) Arm(onFire func()) {
	if w.armed {
		w.Disarm()
	}
	w.onFire = onFire
	w.handle = w.host.PostEvent(w.timeout, w.fire)
	w.armed = true
}

func (w *Watchdog) fire() {
	if !w.armed {
		return
	}
	w.armed = false
	cb := w.onFire
	w.onFire = nil
	if cb != nil {
		cb()
	}
}

// Disarm cancels the outstanding event (spec.md 4.6: "On Stop before fire,
// cancel the event"). A no-op if nothing is armed.
func (w *Watchdog) Disarm() {
	if !w.armed {
		return
	}
	w.host.CancelEvent(w.handle)
	w.armed = false
	w.onFire = nil
	w.handle = nil
}

// Armed reports whether an event is currently outstanding.
func (w *Watchdog) Armed() bool {
	return w.armed
}

// Timeout returns the configured virtual-time duration.
func (w *Watchdog) Timeout() time.Duration {
	return w.timeout
}

// SetTimeout updates the duration used by future calls to Arm; it does not
// affect an event already posted.
func (w *Watchdog) SetTimeout(d time.Duration) {
	w.timeout = d
}
