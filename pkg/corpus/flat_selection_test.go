// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package corpus

import (
	"math/rand"
	"testing"

	"github.com/intel/tsffs-go/pkg/testutil"
	"github.com/stretchr/testify/assert"
)

func TestFlatSelectionUniformAmongSaved(t *testing.T) {
	sel := NewFlatSelection()
	r := rand.New(testutil.RandSource(t))

	sel.SaveTestCase([]byte("a"), []int{1})
	sel.SaveTestCase([]byte("b"), nil)

	counts := map[string]int{}
	for i := 0; i < 2000; i++ {
		counts[string(sel.ChooseTestCase(r))]++
	}
	assert.InDelta(t, 1000, counts["a"], 150)
	assert.InDelta(t, 1000, counts["b"], 150)
}

func TestFlatSelectionEmpty(t *testing.T) {
	sel := NewFlatSelection()
	r := rand.New(testutil.RandSource(t))
	assert.Nil(t, sel.ChooseTestCase(r))
}

func TestFlatSelectionTestCasesReturnsIndependentSlice(t *testing.T) {
	sel := NewFlatSelection()
	sel.SaveTestCase([]byte("a"), nil)

	got := sel.TestCases()
	got = append(got, []byte("b"))

	assert.Len(t, sel.TestCases(), 1, "appending to the returned slice must not grow the internal one")
}
