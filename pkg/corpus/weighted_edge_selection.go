// Copyright 2025 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package corpus

import (
	"math/rand"
)

// WeightedEdgeSelection is a binary-indexed-tree seed selector: each known
// edge index gets a tree leaf weighted 1/(number of test cases that touch
// it), so rarely-hit edges dominate selection probability. Walking the tree
// picks an edge in O(log n), then the edge's own bucket picks a test case
// weighted by coverage breadth, same as RandomEdgeSelection's buckets.
//
// Grounded on the teacher's WeightedPCSelection (pkg/corpus/weighted_pc_selection.go),
// retargeted from per-syscall-PC *prog.Prog selection (signal.Signal cover
// lists) to per-edge-index []byte selection (internal/coverage edge
// indices). The teacher's WeightedSelection per-node selector -- not itself
// present in the retrieved sources -- is replaced here by edgeBucket, the
// same per-edge reservoir RandomEdgeSelection uses.
func NewWeightedEdgeSelection() SeedSelection {
	return &WeightedEdgeSelection{
		edgeIdx: make(map[int]int),
	}
}

type WeightedEdgeSelection struct {
	tree         []weightedEdgeNode
	edgeIdx      map[int]int
	allTestCases [][]byte
}

type weightedEdgeNode struct {
	bucket *edgeBucket
	count  int
	weight float64
	sum    float64
}

func (s *WeightedEdgeSelection) ChooseTestCase(r *rand.Rand) []byte {
	if len(s.tree) == 0 {
		return nil
	}
	idx := 0
	val := r.Float64() * s.tree[0].sum
	for {
		// Try left child.
		left := 2*idx + 1
		if left < len(s.tree) {
			if val < s.tree[left].sum {
				idx = left
				continue
			}
			val -= s.tree[left].sum
		}

		// Try current node.
		if val < s.tree[idx].weight {
			return s.tree[idx].bucket.choose(r)
		}
		val -= s.tree[idx].weight

		// Try right child.
		right := 2*idx + 2
		if right < len(s.tree) {
			idx = right
			continue
		}

		// Fallback for floating point errors or edge cases: pick current.
		return s.tree[idx].bucket.choose(r)
	}
}

func (s *WeightedEdgeSelection) SaveTestCase(testCase []byte, edges []int) {
	if s.edgeIdx == nil {
		s.edgeIdx = make(map[int]int)
	}
	weight := int64(len(edges))
	if weight == 0 {
		weight = 1
	}
	for _, edge := range edges {
		idx, ok := s.edgeIdx[edge]
		if !ok {
			idx = len(s.tree)
			s.edgeIdx[edge] = idx
			s.tree = append(s.tree, weightedEdgeNode{bucket: &edgeBucket{}})
		}
		node := &s.tree[idx]
		node.bucket.save(testCase, weight)
		node.count++
		// Weight is 1/count: an edge that only one test case still
		// touches dominates an edge that a hundred test cases touch.
		node.weight = 1.0 / float64(node.count)

		s.updateSum(idx)
	}
	s.allTestCases = append(s.allTestCases, testCase)
}

func (s *WeightedEdgeSelection) updateSum(idx int) {
	for {
		node := &s.tree[idx]
		sum := node.weight
		left := 2*idx + 1
		if left < len(s.tree) {
			sum += s.tree[left].sum
		}
		right := 2*idx + 2
		if right < len(s.tree) {
			sum += s.tree[right].sum
		}
		node.sum = sum

		if idx == 0 {
			break
		}
		idx = (idx - 1) / 2
	}
}

func (s *WeightedEdgeSelection) TestCases() [][]byte {
	out := make([][]byte, len(s.allTestCases))
	copy(out, s.allTestCases)
	return out
}

func (s *WeightedEdgeSelection) Empty() SeedSelection {
	return NewWeightedEdgeSelection()
}
