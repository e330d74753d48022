// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package corpus

import (
	"math/rand"
	"testing"

	"github.com/intel/tsffs-go/pkg/testutil"
	"github.com/stretchr/testify/assert"
)

func TestWeightedEdgeSelection(t *testing.T) {
	// Test case A touches edge 100.
	// Test case B touches edges 100, 200.
	// Test case C touches edge 200.
	//
	// Counts:
	// edge 100: A, B (2 test cases) -> weight 0.5
	// edge 200: B, C (2 test cases) -> weight 0.5
	// Total weight: 1.0
	//
	// Within each edge's bucket a test case is picked in proportion to
	// how many edges it covered (A 1, B 2, C 1), so bucket 100 yields
	// A 1/3, B 2/3 and bucket 200 yields B 2/3, C 1/3.
	//
	// Expected selection probabilities: A 1/6, B 2/3, C 1/6.
	selection := NewWeightedEdgeSelection()
	r := rand.New(testutil.RandSource(t))

	tcA := []byte("A")
	tcB := []byte("B")
	tcC := []byte("C")

	selection.SaveTestCase(tcA, []int{100})
	selection.SaveTestCase(tcB, []int{100, 200})
	selection.SaveTestCase(tcC, []int{200})

	counts := map[string]int{}
	const total = 100000
	for i := 0; i < total; i++ {
		tc := selection.ChooseTestCase(r)
		counts[string(tc)]++
	}

	assert.InDelta(t, 16667, counts["A"], 1000)
	assert.InDelta(t, 66667, counts["B"], 1000)
	assert.InDelta(t, 16667, counts["C"], 1000)
}

func TestWeightedEdgeSelectionMany(t *testing.T) {
	selection := NewWeightedEdgeSelection().(*WeightedEdgeSelection)
	r := rand.New(testutil.RandSource(t))

	tc := []byte("only")

	for i := 0; i < 200; i++ {
		selection.SaveTestCase(tc, []int{i})
	}

	assert.Equal(t, 200, len(selection.tree))
	assert.Equal(t, 200, len(selection.edgeIdx))
	assert.InDelta(t, 200.0, selection.tree[0].sum, 0.001)

	for i := 0; i < 2000; i++ {
		assert.Equal(t, tc, selection.ChooseTestCase(r))
	}
}

func TestWeightedEdgeSelectionEmpty(t *testing.T) {
	selection := NewWeightedEdgeSelection()
	r := rand.New(testutil.RandSource(t))
	assert.Nil(t, selection.ChooseTestCase(r))
}
