// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package coverage implements the fixed-size, AFL-style edge-hit-count map
// described in spec.md section 4.2, and the "new edge" feedback check spec
// gives to the fuzzing driver in section 4.9.
package coverage

import "fmt"

// MinSizeLog2 and MaxSizeLog2 bound Config.CoverageMapSizeLog2 (spec.md 4.10
// validation); a map smaller than 256 entries collides too often to be
// useful, one larger than 16M entries is never observed in practice.
const (
	MinSizeLog2 = 8
	MaxSizeLog2 = 24
)

// Map is the edge coverage map: index = (hash(cur) ^ prev) mod 2^k,
// map[index] saturating-incremented, prev := hash(cur) >> 1. It is reused
// across iterations (Reset zeroes it) and is never reallocated once the
// owning engine has armed (spec.md section 3, "Edge Coverage Map").
type Map struct {
	bytes []byte
	mask  uint64
	prev  uint64
}

// New allocates a map of size 2^sizeLog2 bytes. It panics if sizeLog2 is
// out of [MinSizeLog2, MaxSizeLog2] -- Config.Validate is expected to have
// already rejected that case synchronously (spec.md 4.10).
func New(sizeLog2 uint) *Map {
	if sizeLog2 < MinSizeLog2 || sizeLog2 > MaxSizeLog2 {
		panic(fmt.Sprintf("coverage: size log2 %d out of [%d, %d]", sizeLog2, MinSizeLog2, MaxSizeLog2))
	}
	size := uint64(1) << sizeLog2
	return &Map{
		bytes: make([]byte, size),
		mask:  size - 1,
	}
}

// Len returns the map size in bytes (always a power of two).
func (m *Map) Len() int {
	return len(m.bytes)
}

// Reset zeroes the map and the edge-hashing state. Called at the start of
// every iteration (spec.md invariant 1: "the coverage map is all-zero at
// the moment the test case is injected").
func (m *Map) Reset() {
	for i := range m.bytes {
		m.bytes[i] = 0
	}
	m.prev = 0
}

// hashPC is the AFL-style address hash. It is intentionally a simple,
// cheap, order-sensitive mix -- fidelity of the hash only affects how
// densely edges pack into the map, never correctness.
func hashPC(pc uint64) uint64 {
	h := pc * 2654435761 // Knuth's multiplicative hash constant.
	h ^= h >> 33
	return h
}

// Record registers a control-transfer to target address cur, per spec.md
// 4.2/4.3: it is called by the tracer (C3) from the after-execution
// callback on every branch-class instruction.
func (m *Map) Record(cur uint64) {
	h := hashPC(cur)
	idx := (h ^ m.prev) & m.mask
	if m.bytes[idx] != 0xff {
		m.bytes[idx]++
	}
	m.prev = h >> 1
}

// Snapshot returns a copy of the current map contents, safe to retain after
// the next Reset. The driver (C9) must never be handed the live buffer --
// see spec.md Design Notes, "Coverage map as shared memory".
func (m *Map) Snapshot() []byte {
	out := make([]byte, len(m.bytes))
	copy(out, m.bytes)
	return out
}

// NewEdges reports whether, for some index, before[index] was zero and
// after[index] is nonzero -- the feedback the fuzzing driver uses to decide
// an iteration is "interesting" (spec.md 4.9). Slices of mismatched length
// are treated as having no overlap past the shorter one.
func NewEdges(before, after []byte) bool {
	n := len(before)
	if len(after) < n {
		n = len(after)
	}
	for i := 0; i < n; i++ {
		if before[i] == 0 && after[i] != 0 {
			return true
		}
	}
	return false
}

// DiffCount returns the number of indices that went from zero to nonzero,
// used by the default driver (pkg/fuzzer) to rank how "interesting" an
// iteration was instead of a plain boolean.
func DiffCount(before, after []byte) int {
	n := len(before)
	if len(after) < n {
		n = len(after)
	}
	count := 0
	for i := 0; i < n; i++ {
		if before[i] == 0 && after[i] != 0 {
			count++
		}
	}
	return count
}
