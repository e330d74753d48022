// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package core is the embedding entry point (SPEC_FULL.md section 2 and
// 9.1): it wires internal/config, internal/engine, pkg/corpus, pkg/fuzzer,
// and pkg/metrics around one pkg/simulator.Host into a single value an
// embedder constructs once per fuzzing session.
//
// Spec.md section 9 describes a process-wide singleton because the
// simulator's own C API can only hand callbacks a function pointer plus one
// void* context handle. Go callbacks are closures, so nothing here is
// enforced as a package-level singleton -- core.New returns an ordinary
// value, and nothing stops an embedder from constructing more than one
// against independent hosts in the same process. See SPEC_FULL.md section
// 9.1 and DESIGN.md's open-question resolutions.
package core

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/intel/tsffs-go/internal/arch"
	"github.com/intel/tsffs-go/internal/config"
	"github.com/intel/tsffs-go/internal/engine"
	"github.com/intel/tsffs-go/pkg/corpus"
	"github.com/intel/tsffs-go/pkg/fuzzer"
	"github.com/intel/tsffs-go/pkg/log"
	"github.com/intel/tsffs-go/pkg/metrics"
	"github.com/intel/tsffs-go/pkg/simulator"
)

// pollInterval is how often Run checks the engine's state for a terminal
// transition. The engine itself is driven synchronously by the host's own
// callbacks (spec.md section 5); this only watches for the moment it stops
// needing to be driven at all.
const pollInterval = 20 * time.Millisecond

// Core is one fuzzing (or repro) session bound to one simulator.Host. Every
// field is set once by New and never replaced; Core itself is safe to use
// from the single cooperative thread spec.md section 5 describes, same as
// internal/engine.Engine.
type Core struct {
	runID uuid.UUID

	cfg    *config.Config
	host   simulator.Host
	a      arch.Arch
	store  *corpus.Store
	driver *fuzzer.Fuzzer
	engine *engine.Engine
	stats  *metrics.Set
	reg    *prometheus.Registry

	metricsAddr string
	startedAt   time.Time
}

// Option configures an optional aspect of New.
type Option func(*Core)

// WithMetricsAddr opts into serving a prometheus-format /metrics endpoint
// on addr for the lifetime of Run. Unset by default: an embedder that
// wants to scrape pkg/metrics through its own server can reach it via
// Core.Registry instead.
func WithMetricsAddr(addr string) Option {
	return func(c *Core) { c.metricsAddr = addr }
}

// New builds a Core around host for the named architecture, validating cfg
// and constructing the corpus store, default driver, metrics set, and
// engine. It does not touch the filesystem or the simulator yet -- that
// happens in Arm.
func New(host simulator.Host, archName string, cfg *config.Config, opts ...Option) (*Core, error) {
	a, ok := arch.ByName(archName)
	if !ok {
		return nil, fmt.Errorf("core: unsupported architecture %q (have: %v)", archName, arch.Names())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.SetLevel(cfg.LogLevel)

	reg := prometheus.NewRegistry()
	stats := metrics.New(reg)

	store := corpus.NewStore(cfg.CorpusDirectory, cfg.SolutionsDirectory, corpus.NewRandomEdgeSelection())
	driver := fuzzer.New(fuzzer.Config{
		QueueCounter:      stats.CandidateQueueDepth,
		Iterations:        stats.Iterations,
		Solutions:         stats.Solutions,
		Edges:             stats.Edges,
		IterationDuration: stats.IterationDuration,
	}, store)

	c := &Core{
		runID:  uuid.New(),
		cfg:    cfg,
		host:   host,
		a:      a,
		store:  store,
		driver: driver,
		engine: engine.New(host, a, driver),
		stats:  stats,
		reg:    reg,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// RunID returns the session's run identifier, stamped into log lines and
// the shutdown summary so concurrent runs against the same corpus
// directory are distinguishable (SPEC_FULL.md section 10).
func (c *Core) RunID() uuid.UUID { return c.runID }

// Registry exposes the session's prometheus registry, for an embedder that
// already runs its own metrics server instead of using WithMetricsAddr.
func (c *Core) Registry() *prometheus.Registry { return c.reg }

// Engine returns the underlying state machine, mainly so tests can assert
// on its State() directly.
func (c *Core) Engine() *engine.Engine { return c.engine }

// Arm loads the initial corpus (or the single repro input), configures and
// arms the engine, transitioning it to Armed and ready to accept the first
// Start harness magic instruction (spec.md 4.8).
func (c *Core) Arm() error {
	if c.cfg.ReproInput != "" {
		testCase, err := corpus.LoadReproInput(c.cfg.ReproInput)
		if err != nil {
			return fmt.Errorf("core: loading repro input: %w", err)
		}
		c.driver.SetReproInput(testCase)
		log.Logf(0, "core[%s]: repro mode, replaying %s", c.runID, c.cfg.ReproInput)
	} else {
		n, err := c.store.Load()
		if err != nil {
			return fmt.Errorf("core: loading corpus: %w", err)
		}
		c.driver.LoadCandidates()
		log.Logf(0, "core[%s]: loaded %d corpus entries from %s", c.runID, n, c.cfg.CorpusDirectory)
	}

	if err := c.engine.Configure(c.cfg); err != nil {
		return err
	}
	c.startedAt = time.Now()
	return c.engine.Arm()
}

// Run blocks until ctx is cancelled or the engine reaches a terminal state
// (Shutdown, Halted, or Error), supervising the optional metrics server
// alongside it with an errgroup -- the one place in this module goroutines
// run concurrently with the single-threaded engine, since neither the
// metrics server nor the terminal-state poll ever touches the Coverage Map
// or calls back into the simulator (SPEC_FULL.md section 5's carve-out for
// ancillary goroutines that only serialize through a queue or, here, don't
// touch engine state at all).
func (c *Core) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if c.metricsAddr != "" {
		srv := &http.Server{Addr: c.metricsAddr, Handler: promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})}
		g.Go(func() error {
			errc := make(chan error, 1)
			go func() { errc <- srv.ListenAndServe() }()
			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			case err := <-errc:
				if err != nil && err != http.ErrServerClosed {
					return err
				}
				return nil
			}
		})
	}

	g.Go(func() error {
		return c.waitForTerminal(ctx)
	})

	return g.Wait()
}

// waitForTerminal polls the engine's state until it leaves the
// Armed/AwaitingStart/Running/Stopping/Restoring family, or ctx is done.
func (c *Core) waitForTerminal(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.Shutdown()
			return ctx.Err()
		case <-ticker.C:
			switch c.engine.State() {
			case engine.StateShutdown, engine.StateHalted:
				return nil
			case engine.StateError:
				return fmt.Errorf("core[%s]: engine entered Error state", c.runID)
			}
		}
	}
}

// Shutdown requests an orderly stop; safe to call more than once, and safe
// to call even if Run was never started.
func (c *Core) Shutdown() {
	c.engine.Shutdown()
}

// Summary is the Run Record expansion from SPEC_FULL.md section 3: a
// printed summary of one session, not part of any invariant.
type Summary struct {
	RunID            uuid.UUID
	Executions       uint64
	NewCoverage      uint64
	Solutions        uint64
	HitRate          float64
	WallClock        time.Duration
	FinalEngineState engine.State
}

// Summary snapshots the session's running counters for the
// log_level=info shutdown line (SPEC_FULL.md section 3).
func (c *Core) Summary() Summary {
	st := c.driver.Stats()
	wall := time.Duration(0)
	if !c.startedAt.IsZero() {
		wall = time.Since(c.startedAt)
	}
	return Summary{
		RunID:            c.runID,
		Executions:       st.Executions,
		NewCoverage:      st.NewCoverage,
		Solutions:        st.Solutions,
		HitRate:          st.HitRate,
		WallClock:        wall,
		FinalEngineState: c.engine.State(),
	}
}

// LogSummary writes the shutdown summary line at log_level=info.
func (c *Core) LogSummary() {
	s := c.Summary()
	log.Logf(0, "core[%s]: %d executions, %d new-coverage, %d solutions, %.4f hit-rate, %s wall-clock, final state %s",
		s.RunID, s.Executions, s.NewCoverage, s.Solutions, s.HitRate, s.WallClock, s.FinalEngineState)
}
