// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package corpus

import (
	"math/rand"
	"testing"

	"github.com/intel/tsffs-go/pkg/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRandomEdgeSelectionEmpty(t *testing.T) {
	sel := NewRandomEdgeSelection()
	r := rand.New(testutil.RandSource(t))
	assert.Nil(t, sel.ChooseTestCase(r))
	assert.Empty(t, sel.TestCases())
}

func TestRandomEdgeSelectionOnlyReturnsSavedTestCases(t *testing.T) {
	sel := NewRandomEdgeSelection()
	r := rand.New(testutil.RandSource(t))

	sel.SaveTestCase([]byte("a"), []int{1})
	sel.SaveTestCase([]byte("b"), []int{2, 3})

	saved := map[string]bool{"a": true, "b": true}
	for i := 0; i < 500; i++ {
		tc := sel.ChooseTestCase(r)
		assert.True(t, saved[string(tc)])
	}
}

func TestRandomEdgeSelectionCapsBucketSize(t *testing.T) {
	sel := NewRandomEdgeSelection().(*RandomEdgeSelection)
	for i := 0; i < maxPerEdge+5; i++ {
		sel.SaveTestCase([]byte{byte(i)}, []int{7})
	}
	assert.Equal(t, maxPerEdge, len(sel.perEdge[7].seeds))
}

func TestRandomEdgeSelectionEmptyReturnsFreshStrategy(t *testing.T) {
	sel := NewRandomEdgeSelection()
	sel.SaveTestCase([]byte("a"), []int{1})

	fresh := sel.Empty()
	assert.Empty(t, fresh.TestCases())
}
