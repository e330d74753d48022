// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package fuzzer is the embedded default evolutionary fuzzing driver
// (spec.md section 4.9, C9). Spec.md's Non-goals disclaim a general
// mutation algorithm, but section 4.9 still requires some
// executor/feedback/objective to exist for the module to be runnable end
// to end -- this package is that default, swappable by any type
// satisfying internal/engine.Driver.
//
// Grounded on the teacher's pkg/fuzzer: the generate/mutate bandit choice
// (Fuzzer.nextInput, genFuzzMAB) is reused verbatim via
// pkg/learning.PlainMAB[string], retargeted from *prog.Prog requests to
// raw []byte test cases scored by internal/coverage edge novelty instead
// of syscall signal novelty.
package fuzzer

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/intel/tsffs-go/internal/engine"
	"github.com/intel/tsffs-go/pkg/corpus"
	"github.com/intel/tsffs-go/pkg/learning"
	"github.com/intel/tsffs-go/pkg/log"
	"github.com/intel/tsffs-go/pkg/queue"
)

const (
	statGenerate = "generate"
	statMutate   = "mutate"

	// hitRateWindow is how many recent executions Stats.HitRate smooths
	// over, matching the order of magnitude of the teacher's own
	// avgGenSpeed window (pkg/fuzzer/fuzzer.go).
	hitRateWindow = 10000
)

// Config holds the default driver's own tunables -- distinct from
// internal/config.Config (spec.md's C10), which governs the engine, not
// the driver spec.md leaves unspecified.
type Config struct {
	// MaxTestCaseSize bounds generated and mutated test cases. Should
	// match the harness's declared maximum once known; zero means
	// unbounded until then.
	MaxTestCaseSize int
	// Seed seeds the driver's random source, for reproducible fuzzing
	// runs in tests.
	Seed int64
	// QueueCounter, if set, is incremented/decremented as candidates are
	// queued/dequeued -- satisfied directly by a pkg/metrics gauge
	// (prometheus.Gauge has an Add(float64) method).
	QueueCounter queue.Counter

	// Iterations, if set, is incremented once per Deliver call, and
	// Solutions once per Deliver call whose stop reason is a solution --
	// satisfied directly by a pkg/metrics counter
	// (prometheus.Counter has an Inc() method).
	Iterations Incrementer
	Solutions  Incrementer
	// Edges, if set, is updated to the campaign's cumulative edge count
	// after every Deliver call -- satisfied directly by a pkg/metrics
	// gauge (prometheus.Gauge has a Set(float64) method).
	Edges Setter
	// IterationDuration, if set, observes the wall-clock time between the
	// test case being handed out and its result being delivered --
	// satisfied directly by a pkg/metrics histogram (prometheus.Histogram
	// has an Observe(float64) method).
	IterationDuration Observer
}

// Incrementer, Setter, and Observer are the narrow capabilities pkg/metrics'
// counter, gauge, and histogram types expose, spelled out independently so
// this package doesn't need to import prometheus/client_golang directly --
// the same narrow-interface style internal/inject.MemoryWriter and
// internal/tracer.HostTracer use for their own narrow host slices.
type Incrementer interface {
	Inc()
}

type Setter interface {
	Set(float64)
}

type Observer interface {
	Observe(float64)
}

// Stats is a read-only snapshot of the driver's running counters, used by
// core's shutdown summary line (SPEC_FULL.md section 3, "Run Record").
type Stats struct {
	Executions  uint64
	NewCoverage uint64
	Solutions   uint64
	// HitRate is the fraction of the last hitRateWindow iterations that
	// raised new coverage, smoothed the way the teacher's Fuzzer tracks
	// avgFuzzSpeed/avgGenSpeed via pkg/learning.RunningRatioAverage.
	HitRate float64
}

// Fuzzer is the default engine.Driver: NextTestCase asks a multi-armed
// bandit to choose between generating fresh random bytes and mutating a
// corpus entry (mirroring the teacher's Fuzzer.nextInput), and Deliver
// triages the finished iteration into the corpus or the solutions
// directory and feeds the bandit its reward.
type Fuzzer struct {
	mu  sync.Mutex
	rnd *rand.Rand

	store   *corpus.Store
	maxSize int

	genFuzzMAB learning.MAB[string]

	candidates *queue.PlainQueue

	pendingAction learning.Action[string]
	havePending   bool

	reproTestCase []byte
	reproServed   bool

	hitRate *learning.RunningRatioAverage[float64]

	iterStart time.Time

	iterations        Incrementer
	solutions         Incrementer
	edges             Setter
	iterationDuration Observer

	stats Stats
}

// New returns a Fuzzer backed by store. Call LoadCandidates once, at arm
// time, before the engine starts pulling test cases.
func New(cfg Config, store *corpus.Store) *Fuzzer {
	mab := &learning.PlainMAB[string]{
		ExplorationRate: 0.1,
		LearningRate:    0.05,
	}
	mab.AddArm(statGenerate)
	mab.AddArm(statMutate)

	seed := cfg.Seed
	if seed == 0 {
		seed = 1
	}
	candidates := queue.Plain()
	if cfg.QueueCounter != nil {
		candidates = queue.PlainWithStat(cfg.QueueCounter)
	}
	return &Fuzzer{
		rnd:               rand.New(rand.NewSource(seed)),
		store:             store,
		maxSize:           cfg.MaxTestCaseSize,
		genFuzzMAB:        mab,
		candidates:        candidates,
		hitRate:           learning.NewRunningRatioAverage[float64](hitRateWindow),
		iterations:        cfg.Iterations,
		solutions:         cfg.Solutions,
		edges:             cfg.Edges,
		iterationDuration: cfg.IterationDuration,
	}
}

// SetReproInput makes NextTestCase serve testCase exactly once, then
// behave as if the corpus were exhausted -- the Fuzzer-side half of
// spec.md 4.11's repro mode (E6): the engine is responsible for halting
// after the single iteration, this just ensures exactly one test case is
// ever handed out.
func (f *Fuzzer) SetReproInput(testCase []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reproTestCase = testCase
	f.reproServed = false
}

// LoadCandidates queues every corpus entry currently held by the store as
// a candidate, shortest first -- the teacher's own "smaller inputs run
// faster, try them first" intuition (pkg/fuzzer/job.go's candidateJobPrio
// always outranks genJobPrio); spec.md itself doesn't mandate an order.
func (f *Fuzzer) LoadCandidates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	testCases := append([][]byte(nil), f.store.TestCases()...)
	sort.Slice(testCases, func(i, j int) bool { return len(testCases[i]) < len(testCases[j]) })
	for _, tc := range testCases {
		f.candidates.Submit(&queue.Request{TestCase: tc})
	}
}

// NextTestCase implements internal/engine.Driver.
func (f *Fuzzer) NextTestCase() ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.iterStart = time.Now()

	if f.reproTestCase != nil {
		if f.reproServed {
			return nil, false
		}
		f.reproServed = true
		return f.reproTestCase, true
	}

	if req := f.candidates.Next(); req != nil {
		f.havePending = false
		return req.TestCase, true
	}

	action := f.genFuzzMAB.Action(f.rnd)
	f.pendingAction = action
	f.havePending = true

	if action.Arm == statGenerate {
		return f.generate(), true
	}
	return f.mutateFromCorpus(), true
}

// Deliver implements internal/engine.Driver: it triages the finished
// iteration into the corpus (if it raised new coverage) or the solutions
// directory (if its stop reason is a solution, spec.md 4.9's objective),
// and rewards the bandit action that produced it.
func (f *Fuzzer) Deliver(result engine.IterationResult) {
	f.mu.Lock()
	action, hadAction := f.pendingAction, f.havePending
	f.havePending = false
	elapsed := time.Since(f.iterStart)
	f.mu.Unlock()

	interesting, err := f.store.RecordExecution(result.TestCase, result.Coverage)
	if err != nil {
		log.Errorf("fuzzer: recording execution: %v", err)
	}

	hit := 0.0
	if interesting {
		hit = 1.0
	}
	f.mu.Lock()
	f.stats.Executions++
	if interesting {
		f.stats.NewCoverage++
	}
	f.hitRate.Save(hit, 1)
	f.mu.Unlock()

	if f.iterations != nil {
		f.iterations.Inc()
	}
	if f.iterationDuration != nil {
		f.iterationDuration.Observe(elapsed.Seconds())
	}
	if f.edges != nil {
		f.edges.Set(float64(f.store.EdgeCount()))
	}

	if result.StopReason.IsSolution() {
		f.mu.Lock()
		f.stats.Solutions++
		f.mu.Unlock()
		if f.solutions != nil {
			f.solutions.Inc()
		}
		if err := f.store.RecordSolution(result.TestCase, result.StopReason); err != nil {
			log.Errorf("fuzzer: recording solution: %v", err)
		}
	}

	if hadAction {
		reward := 0.0
		if interesting {
			reward = 1.0
		}
		f.mu.Lock()
		f.genFuzzMAB.SaveReward(action, reward)
		f.mu.Unlock()
	}
}

// Stats returns a snapshot of the driver's running counters.
func (f *Fuzzer) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.stats
	s.HitRate = f.hitRate.Load()
	return s
}

func (f *Fuzzer) generate() []byte {
	size := f.maxSize
	if size <= 0 || size > 4096 {
		size = 64 + f.rnd.Intn(192)
	} else {
		size = 1 + f.rnd.Intn(size)
	}
	out := make([]byte, size)
	f.rnd.Read(out)
	return out
}

func (f *Fuzzer) mutateFromCorpus() []byte {
	seed := f.store.ChooseTestCase(f.rnd)
	if seed == nil {
		return f.generate()
	}
	if f.rnd.Intn(4) == 0 {
		if other := f.store.ChooseTestCase(f.rnd); other != nil {
			return splice(seed, other, f.rnd, f.maxSize)
		}
	}
	return mutate(seed, f.rnd, f.maxSize)
}

// CandidateQueueLen reports how many loaded candidates are still waiting
// for their first run -- the same depth the QueueCounter gauge tracks.
func (f *Fuzzer) CandidateQueueLen() int {
	return f.candidates.Len()
}
