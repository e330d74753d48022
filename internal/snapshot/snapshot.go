// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package snapshot implements the micro-checkpoint manager (C4, spec.md
// section 4.4): one snapshot per arm cycle, taken on first Start and
// restored at the end of every iteration.
package snapshot

import (
	"fmt"

	"github.com/intel/tsffs-go/pkg/simulator"
)

// Manager owns the single live SnapshotHandle for an arm cycle. Per
// spec.md's open question in section 9 ("multiple start indices with one
// snapshot"), this module resolves it as reuse: EnsureSnapshot only
// actually calls Host.Snapshot on its first invocation after Reset, unless
// reSnapshotPerIndex is set, in which case a new snapshot is taken whenever
// a distinct start index is seen.
type Manager struct {
	host               simulator.Host
	reSnapshotPerIndex bool

	handle      simulator.SnapshotHandle
	haveHandle  bool
	lastIndex   uint32
	haveIndex   bool
}

// New returns a Manager bound to host.
func New(host simulator.Host, reSnapshotPerIndex bool) *Manager {
	return &Manager{host: host, reSnapshotPerIndex: reSnapshotPerIndex}
}

// EnsureSnapshot is called from the engine the first time a Start event is
// observed after arm (and on every subsequent Start if reSnapshotPerIndex
// is set and the start index changed). It is idempotent otherwise.
func (m *Manager) EnsureSnapshot(startIndex uint32) error {
	if m.haveHandle {
		if !m.reSnapshotPerIndex {
			return nil
		}
		if m.haveIndex && m.lastIndex == startIndex {
			return nil
		}
		if err := m.discardLocked(); err != nil {
			return fmt.Errorf("snapshot: discarding previous snapshot before re-snapshot: %w", err)
		}
	}
	h, err := m.host.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	m.handle = h
	m.haveHandle = true
	m.lastIndex = startIndex
	m.haveIndex = true
	return nil
}

// Restore returns the guest to exactly the post-Start state captured by
// EnsureSnapshot (spec.md 4.4: registers, memory, device state, virtual
// clock).
func (m *Manager) Restore() error {
	if !m.haveHandle {
		return fmt.Errorf("snapshot: restore called with no live snapshot")
	}
	return m.host.Restore(m.handle)
}

// Discard releases the snapshot at core teardown.
func (m *Manager) Discard() error {
	return m.discardLocked()
}

func (m *Manager) discardLocked() error {
	if !m.haveHandle {
		return nil
	}
	err := m.host.DiscardSnapshot(m.handle)
	m.haveHandle = false
	m.handle = nil
	m.haveIndex = false
	return err
}

// Reset clears any live snapshot bookkeeping without discarding the handle
// from the host -- used when the engine's configuration is reset and a
// fresh arm cycle is about to begin (the host-side handle was already
// released via Discard in that path).
func (m *Manager) Reset() {
	m.haveHandle = false
	m.handle = nil
	m.haveIndex = false
}

// HasSnapshot reports whether a snapshot is currently live.
func (m *Manager) HasSnapshot() bool {
	return m.haveHandle
}
