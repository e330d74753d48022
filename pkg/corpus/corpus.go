// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package corpus is C11 (spec.md section 4.11): it loads the initial
// corpus directory at arm time, keeps an in-memory, coverage-weighted
// SeedSelection in sync as the driver (pkg/fuzzer) executes test cases, and
// persists every input that raised new coverage or produced a solution,
// named by a stable content fingerprint rather than a random one.
//
// Grounded on the teacher's pkg/corpus (selection.go, prio.go,
// weighted_pc_selection.go), retargeted from syscall-program selection by
// signal.Signal to byte-buffer selection by internal/coverage edge index.
package corpus

import (
	"encoding/hex"
	"hash/fnv"
	"math/rand"
	"path/filepath"
	"sync"

	"github.com/intel/tsffs-go/internal/coverage"
	"github.com/intel/tsffs-go/internal/solution"
	"github.com/intel/tsffs-go/pkg/osutil"
)

// SeedSelection is the pluggable corpus-entry selection strategy. The three
// implementations in this package (RandomEdgeSelection, WeightedEdgeSelection,
// FlatSelection) all satisfy it.
type SeedSelection interface {
	// ChooseTestCase picks one test case to mutate, or nil if the
	// selection holds none yet.
	ChooseTestCase(r *rand.Rand) []byte
	// SaveTestCase records a test case and the edge indices it newly
	// touched (possibly empty, if it only re-hit known edges).
	SaveTestCase(testCase []byte, edges []int)
	// TestCases returns every test case ever saved, for corpus
	// minimization and diagnostics.
	TestCases() [][]byte
	// Empty returns a fresh selection of the same strategy, used when
	// rebuilding the corpus from scratch (e.g. after minimization).
	Empty() SeedSelection
}

// Store is the corpus and solutions directory manager. It owns the
// in-memory SeedSelection and mirrors every addition to disk, named by
// content fingerprint so re-running Load after a crash never double-counts
// or loses an input (spec.md section 6, "no index file; the directory
// listing is the index").
type Store struct {
	mu sync.Mutex

	corpusDir    string
	solutionsDir string
	selection    SeedSelection

	// cumulative is the union of every edge ever observed across the
	// whole campaign, sized and allocated lazily from the first
	// RecordExecution call. RecordExecution diffs each iteration's
	// coverage.Map snapshot against this, not against that iteration's
	// own all-zero-at-injection starting state (spec.md invariant 1) --
	// otherwise every single execution would look "interesting".
	cumulative []byte
}

// NewStore builds a Store around the given selection strategy. corpusDir
// and solutionsDir are created on first write if they don't exist.
func NewStore(corpusDir, solutionsDir string, selection SeedSelection) *Store {
	return &Store{
		corpusDir:    corpusDir,
		solutionsDir: solutionsDir,
		selection:    selection,
	}
}

// Load reads every file in corpusDir into the in-memory selection with no
// coverage credit (edges are discovered the first time the driver replays
// them), and returns how many were loaded. Called once, at arm time
// (spec.md 4.11).
func (s *Store) Load() (int, error) {
	if s.corpusDir == "" {
		return 0, nil
	}
	names, err := osutil.ReadDirFileNames(s.corpusDir)
	if err != nil {
		return 0, err
	}
	for _, name := range names {
		data, err := osutil.ReadFile(filepath.Join(s.corpusDir, name))
		if err != nil {
			return 0, err
		}
		s.mu.Lock()
		s.selection.SaveTestCase(data, nil)
		s.mu.Unlock()
	}
	return len(names), nil
}

// ChooseTestCase delegates to the selection strategy, returning nil if the
// corpus is still empty.
func (s *Store) ChooseTestCase(r *rand.Rand) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection.ChooseTestCase(r)
}

// TestCases returns every test case currently held by the selection.
func (s *Store) TestCases() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection.TestCases()
}

// EdgeCount returns the number of distinct coverage-map edges observed
// across the whole campaign so far, for pkg/metrics' Edges gauge.
func (s *Store) EdgeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, b := range s.cumulative {
		if b != 0 {
			count++
		}
	}
	return count
}

// RecordExecution is called by the driver (pkg/fuzzer) after every
// iteration with that iteration's coverage.Map.Snapshot(). If the
// iteration touched any edge the campaign has never seen before, the test
// case is credited in the in-memory selection, folded into the cumulative
// edge set, and persisted to corpusDir under its content fingerprint. It
// reports whether the iteration was interesting.
func (s *Store) RecordExecution(testCase []byte, iterationCoverage []byte) (bool, error) {
	s.mu.Lock()
	if s.cumulative == nil {
		s.cumulative = make([]byte, len(iterationCoverage))
	}
	interesting := coverage.NewEdges(s.cumulative, iterationCoverage)
	var edges []int
	if interesting {
		edges = newEdgeIndices(s.cumulative, iterationCoverage)
		mergeCoverage(s.cumulative, iterationCoverage)
		s.selection.SaveTestCase(testCase, edges)
	}
	s.mu.Unlock()

	if !interesting {
		return false, nil
	}
	if s.corpusDir == "" {
		return true, nil
	}
	return true, s.persist(s.corpusDir, testCase)
}

// RecordSolution persists testCase under solutionsDir, named by the bare
// content fingerprint (spec.md section 6; E6's literal path is exactly
// this, with no stop-reason prefix).
func (s *Store) RecordSolution(testCase []byte, reason solution.Reason) error {
	if s.solutionsDir == "" {
		return nil
	}
	return s.persist(s.solutionsDir, testCase)
}

func (s *Store) persist(dir string, testCase []byte) error {
	return osutil.WriteFile(filepath.Join(dir, fingerprint(testCase)), testCase)
}

// LoadReproInput reads the single file named by path, for repro mode
// (Config.ReproInput, spec.md 4.11 and E6).
func LoadReproInput(path string) ([]byte, error) {
	return osutil.ReadFile(path)
}

// fingerprint computes hex(fnv1a64(bytes))[:16], the stable, dependency-free
// content fingerprint spec.md section 6 requires for naming persisted
// inputs -- chosen over a random identifier (github.com/google/uuid, used
// elsewhere in this module for run IDs) specifically because the name must
// be a function of the bytes, not of when the input was found.
func fingerprint(data []byte) string {
	h := fnv.New64a()
	h.Write(data)
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)[:16]
}

// newEdgeIndices returns the byte indices that went from zero to nonzero
// between before and after, the per-execution edge signal SaveTestCase
// expects. Mirrors coverage.NewEdges/DiffCount's walk, returning the
// indices themselves instead of just a bool or a count.
func newEdgeIndices(before, after []byte) []int {
	n := len(before)
	if len(after) < n {
		n = len(after)
	}
	var edges []int
	for i := 0; i < n; i++ {
		if before[i] == 0 && after[i] != 0 {
			edges = append(edges, i)
		}
	}
	return edges
}

// mergeCoverage folds iteration's hit counts into cumulative wherever
// iteration recorded a hit, growing cumulative's notion of "ever seen" but
// never shrinking it.
func mergeCoverage(cumulative, iteration []byte) {
	n := len(cumulative)
	if len(iteration) < n {
		n = len(iteration)
	}
	for i := 0; i < n; i++ {
		if iteration[i] != 0 {
			cumulative[i] = iteration[i]
		}
	}
}
