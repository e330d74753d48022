// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package corpus

import (
	"math/rand"
	"slices"
	"sort"
	"sync"
)

// seedInfo is one test case held in an edgeBucket, weighted by how many
// edges it was credited with when it was saved.
type seedInfo struct {
	weight   int64
	testCase []byte
}

// maxPerEdge caps how many test cases an edgeBucket retains for a single
// edge index, pruning to the heaviest on overflow.
const maxPerEdge = 10

// edgeBucket is a weight-capped reservoir of test cases that touched one
// particular coverage-map edge index.
type edgeBucket struct {
	seeds []seedInfo
}

func (b *edgeBucket) choose(r *rand.Rand) []byte {
	if len(b.seeds) == 0 {
		return nil
	}
	var total int64
	for _, s := range b.seeds {
		total += s.weight
	}
	randVal := r.Int63n(total)
	var running int64
	for _, s := range b.seeds {
		running += s.weight
		if running > randVal {
			return s.testCase
		}
	}
	panic("it should not happen")
}

func (b *edgeBucket) save(testCase []byte, weight int64) {
	b.seeds = append(b.seeds, seedInfo{weight: weight, testCase: testCase})
	if len(b.seeds) > maxPerEdge {
		sort.Slice(b.seeds, func(i, j int) bool {
			return b.seeds[i].weight > b.seeds[j].weight
		})
		b.seeds = b.seeds[:maxPerEdge]
	}
}

// RandomEdgeSelection picks a random edge index among those ever recorded
// (uniformly), then picks a test case from that edge's bucket weighted by
// how many edges the test case covered when it was saved.
//
// Grounded on the teacher's progSelector (pkg/corpus/selection.go),
// retargeted from per-syscall-PC *prog.Prog bookkeeping (signal.Signal
// coverage) to per-edge-index []byte bookkeeping (internal/coverage edge
// indices, spec.md 4.9's feedback signal).
type RandomEdgeSelection struct {
	mu        sync.Mutex
	perEdge   map[int]*edgeBucket
	knownEdge map[int]bool
	edgeList  []int
	testCases [][]byte
}

func NewRandomEdgeSelection() SeedSelection {
	return &RandomEdgeSelection{
		perEdge:   map[int]*edgeBucket{},
		knownEdge: map[int]bool{},
	}
}

func (rs *RandomEdgeSelection) ChooseTestCase(r *rand.Rand) []byte {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if len(rs.edgeList) == 0 {
		return nil
	}
	edge := rs.edgeList[r.Intn(len(rs.edgeList))]
	return rs.perEdge[edge].choose(r)
}

func (rs *RandomEdgeSelection) TestCases() [][]byte {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return slices.Clone(rs.testCases)
}

func (rs *RandomEdgeSelection) SaveTestCase(testCase []byte, edges []int) {
	weight := int64(len(edges))
	if weight == 0 {
		weight = 1
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.testCases = append(rs.testCases, testCase)

	for _, edge := range edges {
		if !rs.knownEdge[edge] {
			rs.knownEdge[edge] = true
			rs.edgeList = append(rs.edgeList, edge)
			rs.perEdge[edge] = &edgeBucket{}
		}
		rs.perEdge[edge].save(testCase, weight)
	}
}

func (rs *RandomEdgeSelection) Empty() SeedSelection {
	return NewRandomEdgeSelection()
}
