// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMutateRespectsMaxSize(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	seed := []byte("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	for i := 0; i < 200; i++ {
		out := mutate(seed, rnd, 16)
		assert.LessOrEqual(t, len(out), 16)
		assert.NotEmpty(t, out)
	}
}

func TestMutateNeverPanicsOnEmptySeed(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))
	for i := 0; i < 50; i++ {
		out := mutate(nil, rnd, 8)
		assert.NotEmpty(t, out)
		assert.LessOrEqual(t, len(out), 8)
	}
}

func TestSpliceCrossesOverTwoSeeds(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	a := []byte("aaaaaaaa")
	b := []byte("bbbbbbbb")
	out := splice(a, b, rnd, 0)
	assert.Len(t, out, len(a))
	assert.Contains(t, string(out), "a")
}

func TestSpliceFallsBackOnShortInput(t *testing.T) {
	rnd := rand.New(rand.NewSource(4))
	out := splice([]byte("a"), []byte("b"), rnd, 0)
	assert.Equal(t, []byte("a"), out)
}
