// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package simtest provides an in-memory, scripted implementation of
// simulator.Host for unit and integration tests, standing in for the real
// full-system simulator backend. It is grounded on the teacher's local,
// in-process executor wiring (RunLocal in
// pkg/rpcserver/local.go) -- adapted here from "spawn a subprocess executor
// over RPC and drive it with real VM state" to "run a scripted guest
// program against a fake host in-process."
package simtest

import (
	"fmt"
	"time"

	"github.com/intel/tsffs-go/internal/arch"
	"github.com/intel/tsffs-go/pkg/simulator"
)

type afterExecuteCB struct {
	addr uint64
	cb   func()
}

type postedEvent struct {
	id       int
	due      time.Duration
	cb       func()
	cancelled bool
}

type memSnapshot struct {
	memory map[uint64]byte
	clock  time.Duration
}

// Host is a scripted, in-process stand-in for the real simulator. Test code
// drives the guest side explicitly through TriggerMagic, Execute, and
// TriggerException; Host fans those out to whatever callbacks the engine
// registered, exactly as the real simulator would from its own event loop.
type Host struct {
	memory map[uint64]byte
	clock  time.Duration

	magicCB     func(arch.RegisterFile)
	exceptionCB func(cpuID int, vector uint64)
	cachedCB    func(addr uint64, mnemonic string)
	afterCBs    []afterExecuteCB

	lastPC uint64

	events   []*postedEvent
	nextID   int

	snapshots map[int]memSnapshot
	nextSnap  int

	stopped bool

	// Stopped counts StopSimulation calls so tests can assert on it
	// without reaching into unexported state.
	Stopped int
}

// New returns an empty Host with no memory and virtual time at zero.
func New() *Host {
	return &Host{memory: map[uint64]byte{}, snapshots: map[int]memSnapshot{}}
}

// --- simulator.Host ---

func (h *Host) RegisterMagicHap(cb func(arch.RegisterFile)) (simulator.Unregister, error) {
	h.magicCB = cb
	return func() { h.magicCB = nil }, nil
}

func (h *Host) RegisterExceptionHap(cb func(cpuID int, vector uint64)) (simulator.Unregister, error) {
	h.exceptionCB = cb
	return func() { h.exceptionCB = nil }, nil
}

func (h *Host) OnCachedInstruction(cb func(addr uint64, mnemonic string)) (simulator.Unregister, error) {
	h.cachedCB = cb
	return func() { h.cachedCB = nil }, nil
}

func (h *Host) OnAfterExecute(addr uint64, cb func()) (simulator.Unregister, error) {
	h.afterCBs = append(h.afterCBs, afterExecuteCB{addr: addr, cb: cb})
	idx := len(h.afterCBs) - 1
	return func() {
		if idx < len(h.afterCBs) {
			h.afterCBs[idx].cb = nil
		}
	}, nil
}

func (h *Host) PC() (uint64, error) {
	return h.lastPC, nil
}

func (h *Host) PostEvent(d time.Duration, cb func()) simulator.EventHandle {
	h.nextID++
	ev := &postedEvent{id: h.nextID, due: h.clock + d, cb: cb}
	h.events = append(h.events, ev)
	return ev
}

func (h *Host) CancelEvent(handle simulator.EventHandle) {
	ev, ok := handle.(*postedEvent)
	if !ok {
		return
	}
	ev.cancelled = true
}

func (h *Host) Snapshot() (simulator.SnapshotHandle, error) {
	h.nextSnap++
	id := h.nextSnap
	cp := make(map[uint64]byte, len(h.memory))
	for k, v := range h.memory {
		cp[k] = v
	}
	h.snapshots[id] = memSnapshot{memory: cp, clock: h.clock}
	return id, nil
}

func (h *Host) Restore(handle simulator.SnapshotHandle) error {
	id, ok := handle.(int)
	if !ok {
		return fmt.Errorf("simtest: invalid snapshot handle %v", handle)
	}
	snap, ok := h.snapshots[id]
	if !ok {
		return fmt.Errorf("simtest: unknown snapshot handle %d", id)
	}
	cp := make(map[uint64]byte, len(snap.memory))
	for k, v := range snap.memory {
		cp[k] = v
	}
	h.memory = cp
	h.clock = snap.clock
	h.events = nil
	return nil
}

func (h *Host) DiscardSnapshot(handle simulator.SnapshotHandle) error {
	id, ok := handle.(int)
	if !ok {
		return fmt.Errorf("simtest: invalid snapshot handle %v", handle)
	}
	delete(h.snapshots, id)
	return nil
}

func (h *Host) WriteMemory(addr uint64, data []byte) error {
	for i, b := range data {
		h.memory[addr+uint64(i)] = b
	}
	return nil
}

func (h *Host) ReadMemory(addr uint64, size int) ([]byte, error) {
	out := make([]byte, size)
	for i := range out {
		out[i] = h.memory[addr+uint64(i)]
	}
	return out, nil
}

func (h *Host) StopSimulation() {
	h.stopped = true
	h.Stopped++
}

// --- test-side scripting API ---

// TriggerMagic delivers regs to the registered magic hap, as if the guest
// had just executed the magic instruction.
func (h *Host) TriggerMagic(regs arch.RegisterFile) {
	if h.magicCB != nil {
		h.magicCB(regs)
	}
}

// TriggerException delivers (cpuID, vector) to the registered exception
// hap.
func (h *Host) TriggerException(cpuID int, vector uint64) {
	if h.exceptionCB != nil {
		h.exceptionCB(cpuID, vector)
	}
}

// CacheInstruction notifies the registered cached-instruction callback of a
// newly-cached address/mnemonic pair, as the tracer expects at arm time.
func (h *Host) CacheInstruction(addr uint64, mnemonic string) {
	if h.cachedCB != nil {
		h.cachedCB(addr, mnemonic)
	}
}

// Execute sets the program counter to addr and fires every after-execute
// callback installed for addr, simulating the guest having just executed
// the instruction there.
func (h *Host) Execute(addr uint64) {
	h.lastPC = addr
	for _, a := range h.afterCBs {
		if a.addr == addr && a.cb != nil {
			a.cb()
		}
	}
}

// AdvanceVirtualTime moves the virtual clock forward by d and fires every
// posted event now due, in the order they were posted -- the watchdog's
// only consumer of virtual time.
func (h *Host) AdvanceVirtualTime(d time.Duration) {
	h.clock += d
	due := h.events[:0:0]
	remaining := h.events[:0:0]
	for _, ev := range h.events {
		if !ev.cancelled && ev.due <= h.clock {
			due = append(due, ev)
		} else if !ev.cancelled {
			remaining = append(remaining, ev)
		}
	}
	h.events = remaining
	for _, ev := range due {
		ev.cb()
	}
}

// IsStopped reports whether StopSimulation has been called.
func (h *Host) IsStopped() bool {
	return h.stopped
}

// MemoryAt returns the byte at addr, for test assertions.
func (h *Host) MemoryAt(addr uint64) byte {
	return h.memory[addr]
}
