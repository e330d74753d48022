// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package metrics is the expansion's observability surface
// (SPEC_FULL.md section 2): iteration throughput, edge count, solution
// count, and queue depth as a prometheus.Registry an embedder can scrape.
// It generalizes the teacher's ad hoc pkg/stats counters
// (stats.Create(...), referenced throughout pkg/fuzzer) to a real metrics
// library, since pkg/stats's own source was not part of the retrieval
// pack -- only a downstream consumer (pkg/stats/syzbotstats) was.
//
// Grounded on the counter/gauge/histogram registration style of
// _examples/other_examples's etalazz-vsa cmd/tfd-sim/main.go
// (prometheus.NewCounter + reg.MustRegister), the only retrieved file
// that actually wires prometheus/client_golang end to end.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Set is every metric the core package updates over the life of a fuzzing
// session.
type Set struct {
	// Iterations counts every completed snapshot->inject->run->stop->
	// restore cycle (spec.md section 3, "Iteration").
	Iterations prometheus.Counter
	// Solutions counts iterations whose stop reason is a solution
	// (spec.md 4.9's objective: AssertHarness, Exception, or Timeout).
	Solutions prometheus.Counter
	// Edges is the cumulative count of distinct coverage-map edges ever
	// observed across the whole campaign.
	Edges prometheus.Gauge
	// CandidateQueueDepth tracks how many loaded corpus entries are still
	// waiting for their first run after arm.
	CandidateQueueDepth prometheus.Gauge
	// IterationDuration observes wall-clock seconds per iteration --
	// useful for spotting simulation slowdowns even though the watchdog
	// itself only ever measures virtual time (spec.md section 4.6).
	IterationDuration prometheus.Histogram
}

// New creates a fresh Set and registers every metric with reg.
func New(reg prometheus.Registerer) *Set {
	s := &Set{
		Iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tsffs_iterations_total",
			Help: "Total number of completed fuzzing iterations.",
		}),
		Solutions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tsffs_solutions_total",
			Help: "Total number of iterations classified as a solution.",
		}),
		Edges: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tsffs_edges",
			Help: "Cumulative number of distinct coverage-map edges observed.",
		}),
		CandidateQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tsffs_candidate_queue_depth",
			Help: "Number of loaded corpus entries awaiting their first run.",
		}),
		IterationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tsffs_iteration_duration_seconds",
			Help:    "Wall-clock seconds spent per fuzzing iteration.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(s.Iterations, s.Solutions, s.Edges, s.CandidateQueueDepth, s.IterationDuration)
	return s
}
