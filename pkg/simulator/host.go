// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package simulator declares the boundary between this module and the
// full-system simulator host. Per spec.md section 1, the simulator host
// itself is out of scope -- "treated as an external collaborator, an
// interface only". This package is that interface: it never ships a real
// backing implementation (one lives in a SIMICS Python/C binding outside
// this repository), only Host itself and, for tests, the in-memory fake in
// pkg/simulator/simtest.
package simulator

import (
	"time"

	"github.com/intel/tsffs-go/internal/arch"
)

// Unregister removes a previously-registered callback. Calling it more than
// once is a no-op.
type Unregister func()

// SnapshotHandle is an opaque micro-checkpoint identifier, per spec.md
// section 3 ("Snapshot Handle").
type SnapshotHandle interface{}

// EventHandle is an opaque virtual-time event identifier returned by
// PostEvent, used to cancel it before it fires.
type EventHandle interface{}

// Host is everything the core needs from the simulator: registering the
// magic-instruction and exception haps, subscribing to per-instruction
// callbacks for the tracer, posting/cancelling virtual-time events for the
// watchdog, and the snapshot/restore/discard and memory read/write
// primitives for C4/C5.
//
// Spec.md's Design Notes single out the "cyclic relation between state
// machine and simulator": the simulator must expose its callbacks as plain
// function values with no reference back into the core, so the core never
// has to pretend to be owned by the thing it drives. Host satisfies that by
// construction -- every Register* method takes a closure and hands back an
// Unregister, never a handle the host could use to reach back into the
// core on its own.
type Host interface {
	// RegisterMagicHap subscribes to the guest-executed magic instruction
	// trap (spec.md 4.1); cb receives the guest's general-purpose register
	// snapshot at the moment of the trap.
	RegisterMagicHap(cb func(arch.RegisterFile)) (Unregister, error)

	// RegisterExceptionHap subscribes to the simulator's exception hap
	// (spec.md 4.7); cb receives the CPU id and the exception vector.
	RegisterExceptionHap(cb func(cpuID int, vector uint64)) (Unregister, error)

	// OnCachedInstruction is called once per newly-cached instruction
	// address; the tracer uses it to decide, per spec.md 4.3, which
	// addresses need an after-execution callback installed (branch-class
	// instructions only).
	OnCachedInstruction(cb func(addr uint64, mnemonic string)) (Unregister, error)

	// OnAfterExecute installs a callback that fires every time the
	// instruction at addr finishes executing.
	OnAfterExecute(addr uint64, cb func()) (Unregister, error)

	// PC returns the guest program counter at the moment of the most
	// recent OnAfterExecute callback. Reading it outside of such a
	// callback is undefined.
	PC() (uint64, error)

	// PostEvent arms a virtual-time event d in the future; cb fires
	// exactly once unless CancelEvent is called first (spec.md 4.6).
	PostEvent(d time.Duration, cb func()) EventHandle
	// CancelEvent cancels a previously-posted event; a no-op if it
	// already fired or was already cancelled.
	CancelEvent(h EventHandle)

	// Snapshot takes a micro-checkpoint of the current simulator state
	// (spec.md 4.4).
	Snapshot() (SnapshotHandle, error)
	// Restore returns the simulator to exactly the state captured by h.
	Restore(h SnapshotHandle) error
	// DiscardSnapshot releases h; called at core teardown.
	DiscardSnapshot(h SnapshotHandle) error

	// WriteMemory writes data to guest virtual memory starting at addr
	// (spec.md 4.5 step 2).
	WriteMemory(addr uint64, data []byte) error
	// ReadMemory reads size bytes of guest virtual memory starting at
	// addr.
	ReadMemory(addr uint64, size int) ([]byte, error)

	// StopSimulation halts the simulation, called on a runtime-fatal
	// condition or explicit shutdown (spec.md 7, 5).
	StopSimulation()
}
