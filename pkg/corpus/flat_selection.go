// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package corpus

import (
	"math/rand"
	"sync"
)

// FlatSelection picks uniformly among every test case ever saved, ignoring
// how much coverage each one contributed. It exists as the cheap baseline
// strategy -- useful when the corpus is still small enough that weighting
// by rare edges isn't worth the bookkeeping, and as Empty()'s return value
// for strategies that don't need their own "start over" state.
//
// Grounded on the teacher's ProgramsList (pkg/corpus/prio.go), retargeted
// from *prog.Prog + signal.Signal to []byte + edge indices. sumPrios is
// carried over from the teacher even though today's ChooseTestCase ignores
// it, same as the teacher's ChooseProgram does -- kept for a
// prioritized-by-sum variant that isn't needed by this driver yet.
type FlatSelection struct {
	mu        sync.RWMutex
	testCases [][]byte
	sumPrios  int64
	edgeSets  [][]int
}

func NewFlatSelection() SeedSelection {
	return &FlatSelection{}
}

func (fl *FlatSelection) ChooseTestCase(r *rand.Rand) []byte {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	if len(fl.testCases) == 0 {
		return nil
	}
	idx := r.Intn(len(fl.testCases))
	return fl.testCases[idx]
}

func (fl *FlatSelection) TestCases() [][]byte {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	out := make([][]byte, len(fl.testCases))
	copy(out, fl.testCases)
	return out
}

func (fl *FlatSelection) SaveTestCase(testCase []byte, edges []int) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	prio := int64(len(edges))
	if prio == 0 {
		prio = 1
	}
	fl.sumPrios += prio
	fl.testCases = append(fl.testCases, testCase)
	fl.edgeSets = append(fl.edgeSets, edges)
}

func (fl *FlatSelection) Empty() SeedSelection {
	return NewFlatSelection()
}
