// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsOutOfRangeSize(t *testing.T) {
	assert.Panics(t, func() { New(4) })
	assert.Panics(t, func() { New(32) })
}

func TestMapIsZeroAfterReset(t *testing.T) {
	m := New(MinSizeLog2)
	m.Record(0x1000)
	m.Record(0x2000)
	m.Reset()
	for _, b := range m.Snapshot() {
		require.Zero(t, b)
	}
}

func TestRecordIsOrderSensitive(t *testing.T) {
	// a->b and b->a should not, in general, land on the same index,
	// because of the prev := hash(cur)>>1 asymmetry (spec.md 4.2).
	m1 := New(MinSizeLog2)
	m1.Record(0x1000)
	m1.Record(0x2000)

	m2 := New(MinSizeLog2)
	m2.Record(0x2000)
	m2.Record(0x1000)

	assert.NotEqual(t, m1.Snapshot(), m2.Snapshot())
}

func TestRecordSaturates(t *testing.T) {
	m := New(MinSizeLog2)
	for i := 0; i < 1000; i++ {
		m.Record(0xdead)
	}
	snap := m.Snapshot()
	found := false
	for _, b := range snap {
		if b == 0xff {
			found = true
		}
	}
	assert.True(t, found, "expected some byte to saturate at 0xff")
}

func TestNewEdges(t *testing.T) {
	before := []byte{0, 1, 0, 0}
	after := []byte{0, 1, 2, 0}
	assert.True(t, NewEdges(before, after))
	assert.Equal(t, 1, DiffCount(before, after))

	assert.False(t, NewEdges([]byte{1, 1}, []byte{1, 1}))
	assert.Equal(t, 0, DiffCount([]byte{1, 1}, []byte{1, 1}))
}
