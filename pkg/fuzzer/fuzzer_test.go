// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intel/tsffs-go/internal/engine"
	"github.com/intel/tsffs-go/internal/solution"
	"github.com/intel/tsffs-go/pkg/corpus"
)

func newTestFuzzer(t *testing.T) *Fuzzer {
	t.Helper()
	store := corpus.NewStore("", "", corpus.NewRandomEdgeSelection())
	return New(Config{MaxTestCaseSize: 32, Seed: 42}, store)
}

func TestNextTestCaseAlwaysProducesNonEmptyBytes(t *testing.T) {
	f := newTestFuzzer(t)
	for i := 0; i < 50; i++ {
		tc, ok := f.NextTestCase()
		require.True(t, ok)
		assert.NotEmpty(t, tc)
		assert.LessOrEqual(t, len(tc), 32)
	}
}

func TestDeliverCreditsNewCoverage(t *testing.T) {
	f := newTestFuzzer(t)
	tc, ok := f.NextTestCase()
	require.True(t, ok)

	cov := make([]byte, 1<<8)
	cov[5] = 1
	f.Deliver(engine.IterationResult{TestCase: tc, Coverage: cov, StopReason: solution.NormalReason(0)})

	assert.Equal(t, uint64(1), f.Stats().Executions)
	assert.Equal(t, uint64(1), f.Stats().NewCoverage)
	assert.Equal(t, uint64(0), f.Stats().Solutions)

	// Re-delivering the exact same coverage is no longer new.
	tc2, ok := f.NextTestCase()
	require.True(t, ok)
	f.Deliver(engine.IterationResult{TestCase: tc2, Coverage: cov, StopReason: solution.NormalReason(0)})
	assert.Equal(t, uint64(1), f.Stats().NewCoverage)
}

func TestDeliverTracksHitRate(t *testing.T) {
	f := newTestFuzzer(t)

	tc, ok := f.NextTestCase()
	require.True(t, ok)
	f.Deliver(engine.IterationResult{TestCase: tc, Coverage: coverageWithEdge(1), StopReason: solution.NormalReason(0)})
	assert.Equal(t, 1.0, f.Stats().HitRate)

	tc2, ok := f.NextTestCase()
	require.True(t, ok)
	f.Deliver(engine.IterationResult{TestCase: tc2, Coverage: coverageWithEdge(1), StopReason: solution.NormalReason(0)})
	assert.Equal(t, 0.5, f.Stats().HitRate)
}

func TestDeliverRecordsSolutionCount(t *testing.T) {
	f := newTestFuzzer(t)
	tc, ok := f.NextTestCase()
	require.True(t, ok)
	f.Deliver(engine.IterationResult{
		TestCase:   tc,
		Coverage:   make([]byte, 1<<8),
		StopReason: solution.AssertReason(0),
	})
	assert.Equal(t, uint64(1), f.Stats().Solutions)
}

func TestLoadCandidatesServedBeforeBanditChoices(t *testing.T) {
	store := corpus.NewStore("", "", corpus.NewRandomEdgeSelection())
	store.RecordExecution([]byte("seed-one"), coverageWithEdge(1))
	store.RecordExecution([]byte("seed-two"), coverageWithEdge(2))

	f := New(Config{MaxTestCaseSize: 64, Seed: 7}, store)
	f.LoadCandidates()
	require.Equal(t, 2, f.CandidateQueueLen())

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		tc, ok := f.NextTestCase()
		require.True(t, ok)
		seen[string(tc)] = true
	}
	assert.True(t, seen["seed-one"])
	assert.True(t, seen["seed-two"])
	assert.Equal(t, 0, f.CandidateQueueLen())
}

func TestSetReproInputServesExactlyOnce(t *testing.T) {
	f := newTestFuzzer(t)
	f.SetReproInput([]byte("repro"))

	tc, ok := f.NextTestCase()
	require.True(t, ok)
	assert.Equal(t, []byte("repro"), tc)

	_, ok = f.NextTestCase()
	assert.False(t, ok)
}

func coverageWithEdge(idx int) []byte {
	cov := make([]byte, 1<<8)
	cov[idx] = 1
	return cov
}

type fakeIncrementer struct{ n int }

func (f *fakeIncrementer) Inc() { f.n++ }

type fakeSetter struct{ v float64 }

func (f *fakeSetter) Set(v float64) { f.v = v }

type fakeObserver struct{ n int }

func (f *fakeObserver) Observe(float64) { f.n++ }

func TestDeliverUpdatesMetricsHooks(t *testing.T) {
	store := corpus.NewStore("", "", corpus.NewRandomEdgeSelection())
	iterations := &fakeIncrementer{}
	solutions := &fakeIncrementer{}
	edges := &fakeSetter{}
	duration := &fakeObserver{}

	f := New(Config{
		MaxTestCaseSize:   32,
		Seed:              42,
		Iterations:        iterations,
		Solutions:         solutions,
		Edges:             edges,
		IterationDuration: duration,
	}, store)

	tc, ok := f.NextTestCase()
	require.True(t, ok)
	f.Deliver(engine.IterationResult{TestCase: tc, Coverage: coverageWithEdge(3), StopReason: solution.NormalReason(0)})

	assert.Equal(t, 1, iterations.n)
	assert.Equal(t, 0, solutions.n)
	assert.Equal(t, 1.0, edges.v)
	assert.Equal(t, 1, duration.n)

	tc2, ok := f.NextTestCase()
	require.True(t, ok)
	f.Deliver(engine.IterationResult{TestCase: tc2, Coverage: coverageWithEdge(3), StopReason: solution.AssertReason(0)})

	assert.Equal(t, 2, iterations.n)
	assert.Equal(t, 1, solutions.n)
	assert.Equal(t, 2, duration.n)
}
