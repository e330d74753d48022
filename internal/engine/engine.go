// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package engine implements the iteration state machine (C8, spec.md
// section 4.8): it couples the magic-instruction decoder, the snapshot
// manager, the injector, the watchdog, and the solution detector into the
// snapshot -> inject -> run -> stop -> restore cycle, and hands finished
// iterations to a fuzzing driver.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/intel/tsffs-go/internal/arch"
	"github.com/intel/tsffs-go/internal/config"
	"github.com/intel/tsffs-go/internal/coverage"
	"github.com/intel/tsffs-go/internal/errs"
	"github.com/intel/tsffs-go/internal/inject"
	"github.com/intel/tsffs-go/internal/snapshot"
	"github.com/intel/tsffs-go/internal/solution"
	"github.com/intel/tsffs-go/internal/tracer"
	"github.com/intel/tsffs-go/internal/watchdog"
	"github.com/intel/tsffs-go/pkg/log"
	"github.com/intel/tsffs-go/pkg/simulator"
)

// State is one node of the iteration state machine (spec.md section 4.8).
type State int

const (
	StateUninitialized State = iota
	StateConfigured
	StateArmed
	StateAwaitingStart
	StateRunning
	StateStopping
	StateRestoring
	// StateHalted is entered only in repro mode (spec.md 4.11, scenario
	// E6): after the one scripted iteration stops, the engine halts
	// without restoring instead of looping.
	StateHalted
	// StateShutdown is entered when the driver reports it has no further
	// test cases, or Shutdown is called explicitly (spec.md section 5,
	// "Cancellation").
	StateShutdown
	// StateError is entered on any runtime-fatal condition (spec.md
	// section 7): snapshot restore failure, vanished callbacks, or an
	// impossible transition.
	StateError
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateConfigured:
		return "Configured"
	case StateArmed:
		return "Armed"
	case StateAwaitingStart:
		return "AwaitingStart"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateRestoring:
		return "Restoring"
	case StateHalted:
		return "Halted"
	case StateShutdown:
		return "Shutdown"
	case StateError:
		return "Error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// IterationResult is handed to the driver at the end of every iteration
// (spec.md section 3, "Iteration"): the bytes that were run, the resulting
// coverage map contents, and the classified stop reason.
type IterationResult struct {
	Sequence   uint64
	TestCase   []byte
	Coverage   []byte
	StopReason solution.Reason
}

// Driver is what spec.md section 4.9 calls the fuzzing driver interface:
// the engine delivers finished iterations and pulls the next test case from
// it. ok is false when the driver has no further work, which the engine
// treats as a request to shut down (spec.md section 5).
type Driver interface {
	Deliver(result IterationResult)
	NextTestCase() (testCase []byte, ok bool)
}

// Engine drives one simulator.Host through the iteration cycle. It is not
// safe for concurrent use -- per spec.md section 5, the simulator, tracer
// callbacks, state machine, and driver all run on one cooperative thread,
// so Engine itself never needs a mutex.
type Engine struct {
	host   simulator.Host
	a      arch.Arch
	driver Driver

	cfg  *config.Config
	cov  *coverage.Map
	snap *snapshot.Manager
	tr   *tracer.Tracer
	wd   *watchdog.Watchdog
	det  *solution.Detector

	state State

	sequence        uint64
	currentTestCase []byte

	site      inject.Site
	siteIndex uint32
	haveSite  bool

	stopLatched bool

	unregisterMagic     simulator.Unregister
	unregisterException simulator.Unregister
}

// New returns an Engine bound to host and a, in State Uninitialized.
// Configure must be called before Arm.
func New(host simulator.Host, a arch.Arch, driver Driver) *Engine {
	return &Engine{host: host, a: a, driver: driver, state: StateUninitialized}
}

// State reports the engine's current state.
func (e *Engine) State() State {
	return e.state
}

// Configure validates cfg and stores it, transitioning Uninitialized (or
// Configured) to Configured (spec.md 4.8: "configure() -> Configured: store
// config"). Per spec.md section 7, a configuration error is reported
// synchronously and the engine remains un-armed.
func (e *Engine) Configure(cfg *config.Config) error {
	if e.state != StateUninitialized && e.state != StateConfigured {
		return &errs.ConfigurationError{Option: "state", Reason: fmt.Sprintf("Configure called from %s", e.state)}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.cfg = cfg
	e.cov = coverage.New(cfg.CoverageMapSizeLog2)
	e.snap = snapshot.New(e.host, cfg.ReSnapshotPerIndex)
	e.tr = tracer.New(e.host, e.cov, cfg.TracerFaultThreshold)
	e.wd = watchdog.New(e.host, time.Duration(cfg.TimeoutSeconds*float64(time.Second)))
	e.det = solution.NewDetector(cfg.IsSolutionException)
	e.state = StateConfigured
	return nil
}

// Arm registers the magic-instruction hap, the exception hap, and the
// tracer's callbacks, transitioning Configured to Armed (spec.md 4.8:
// "arm() -> Armed: register C3 callbacks; start guest"). Registration
// failure is an ArmError (spec.md section 7) and the engine transitions to
// Error.
func (e *Engine) Arm() error {
	if e.state != StateConfigured {
		return &errs.ArmError{Reason: fmt.Sprintf("Arm called from %s, want Configured", e.state)}
	}

	unregMagic, err := e.host.RegisterMagicHap(e.onMagic)
	if err != nil {
		e.state = StateError
		return &errs.ArmError{Reason: "registering magic hap", Cause: err}
	}
	unregExc, err := e.host.RegisterExceptionHap(e.onException)
	if err != nil {
		unregMagic()
		e.state = StateError
		return &errs.ArmError{Reason: "registering exception hap", Cause: err}
	}
	if err := e.tr.Arm(e.onTracerFault); err != nil {
		unregMagic()
		unregExc()
		e.state = StateError
		return &errs.ArmError{Reason: "arming tracer", Cause: err}
	}

	e.unregisterMagic = unregMagic
	e.unregisterException = unregExc
	e.state = StateArmed
	log.Logf(1, "engine: armed, awaiting first start harness")
	return nil
}

// Shutdown unregisters all callbacks, cancels the watchdog, discards the
// live snapshot, and refuses further transitions (spec.md section 5,
// "Cancellation": "if the host sends a shutdown..."). Safe to call more
// than once.
func (e *Engine) Shutdown() {
	if e.state == StateError || e.state == StateShutdown {
		return
	}
	e.teardown("host requested shutdown")
	e.state = StateShutdown
}

func (e *Engine) onMagic(regs arch.RegisterFile) {
	ev, err := e.a.Decode(regs)
	if err != nil {
		if errors.Is(err, arch.ErrNotMagic) {
			return
		}
		var unknown *arch.ErrUnknownKind
		if errors.As(err, &unknown) {
			log.Errorf("engine: %v", err)
			if e.state == StateRunning {
				e.finishIteration(solution.InternalErrorReason(errs.UnknownHarnessKind))
			}
			return
		}
		log.Errorf("engine: decoding magic instruction: %v", err)
		return
	}

	switch ev.Kind {
	case arch.KindStartPtrSizePtr, arch.KindStartPtrSizeVal, arch.KindStartPtrSizePtrVal:
		e.onStart(ev)
	case arch.KindStopNormal:
		e.onStop(ev, false)
	case arch.KindStopAssert:
		e.onStop(ev, true)
	}
}

// onStart implements spec.md 4.8's "Armed | first Start magic |
// AwaitingStart" row. Only the first Start seen in state Armed is acted on;
// later Start magic instructions are ignored, so EnsureSnapshot runs once
// per arm cycle and Config.ReSnapshotPerIndex has no effect here. The
// iterations that follow are driven internally by finishIteration, not by
// further magic instructions, since Restore rewinds execution to just
// after this call.
func (e *Engine) onStart(ev arch.Event) {
	if e.state != StateArmed {
		return
	}
	if !e.cfg.StartOnHarness {
		return
	}
	if !e.cfg.StartIndexEnabled(ev.Index) {
		return
	}

	site := inject.Site{BufferAddr: ev.Arg0}
	switch ev.Kind {
	case arch.KindStartPtrSizePtr:
		site.SizePtr, site.HasSizePtr = ev.Arg1, true
	case arch.KindStartPtrSizeVal:
		site.MaxSize = ev.Arg1
	case arch.KindStartPtrSizePtrVal:
		site.SizePtr, site.HasSizePtr = ev.Arg1, true
		site.MaxSize = ev.Arg2
	}
	e.site = site
	e.siteIndex = ev.Index
	e.haveSite = true

	if err := e.snap.EnsureSnapshot(ev.Index); err != nil {
		log.Errorf("engine: %v", err)
		e.fail(errs.SnapshotRestoreFailed)
		return
	}

	e.state = StateAwaitingStart
	testCase, ok := e.driver.NextTestCase()
	if !ok {
		e.shutdownLocked("driver had no test case for the first iteration")
		return
	}
	e.cov.Reset()
	e.injectAndRun(testCase)
}

func (e *Engine) onStop(ev arch.Event, assert bool) {
	if e.state != StateRunning {
		return
	}
	if !assert && !e.cfg.StopOnHarness {
		return
	}
	if !e.cfg.StopIndexEnabled(ev.Index) {
		return
	}
	if assert {
		e.finishIteration(solution.AssertReason(ev.Index))
	} else {
		e.finishIteration(solution.NormalReason(ev.Index))
	}
}

func (e *Engine) onException(cpuID int, vector uint64) {
	if e.state != StateRunning {
		return
	}
	reason, ok := e.det.Classify(cpuID, vector)
	if !ok {
		return
	}
	e.finishIteration(reason)
}

func (e *Engine) onTimeout() {
	if e.state != StateRunning {
		return
	}
	e.finishIteration(solution.TimeoutReason())
}

func (e *Engine) onTracerFault() {
	log.Errorf("engine: tracer fault threshold exceeded (%d faults)", e.tr.FaultCount())
	e.fail(errs.TracerFaultThresholdExceeded)
}

// finishIteration implements spec.md 4.8's "Running -> Stopping -> (deliver
// to C9) -> Restoring -> Running" chain in one call, since none of the
// intermediate edges is driven by an external event. The tie-break rule
// (spec.md section 4.8, "the first one observed wins") is enforced by
// stopLatched: every caller already checked state == Running, but two haps
// can both observe Running before either one calls finishIteration.
func (e *Engine) finishIteration(reason solution.Reason) {
	if e.stopLatched {
		return
	}
	e.stopLatched = true
	e.state = StateStopping
	e.wd.Disarm()

	testCase := e.currentTestCase
	e.state = StateRestoring
	e.deliver(reason, testCase)

	if e.cfg.ReproInput != "" {
		log.Logf(0, "engine: repro iteration finished with %v, halting", reason.Kind)
		e.state = StateHalted
		e.host.StopSimulation()
		return
	}

	next, ok := e.driver.NextTestCase()
	if !ok {
		e.shutdownLocked("driver exhausted after iteration")
		return
	}
	if err := e.snap.Restore(); err != nil {
		log.Errorf("engine: %v", err)
		e.fail(errs.SnapshotRestoreFailed)
		return
	}
	e.cov.Reset()
	e.injectAndRun(next)
}

// injectAndRun injects testCase at the current snapshot point and arms the
// watchdog to begin Running. Per spec.md section 7, an injection failure is
// runtime-transient: it does not halt the engine, it is reported as an
// InternalError iteration and the driver gets a chance to supply a
// different test case against the same (already-restored) snapshot point.
func (e *Engine) injectAndRun(testCase []byte) {
	for {
		if _, err := inject.Inject(e.host, e.a, e.site, testCase); err != nil {
			log.Errorf("engine: injecting test case: %v", err)
			e.deliver(solution.InternalErrorReason(errs.InjectFailed), testCase)
			next, ok := e.driver.NextTestCase()
			if !ok {
				e.shutdownLocked("driver exhausted after injection failure")
				return
			}
			testCase = next
			continue
		}
		e.currentTestCase = testCase
		e.stopLatched = false
		e.wd.Arm(e.onTimeout)
		e.state = StateRunning
		return
	}
}

func (e *Engine) deliver(reason solution.Reason, testCase []byte) {
	result := IterationResult{
		Sequence:   e.sequence,
		TestCase:   testCase,
		Coverage:   e.cov.Snapshot(),
		StopReason: reason,
	}
	e.sequence++
	e.driver.Deliver(result)
}

func (e *Engine) shutdownLocked(reason string) {
	log.Logf(1, "engine: shutting down: %s", reason)
	e.teardown(reason)
	e.state = StateShutdown
}

// fail implements spec.md 4.8's "any | fatal | Error: unregister callbacks;
// stop simulation" row.
func (e *Engine) fail(kind errs.InternalErrorKind) {
	e.teardown(kind.String())
	e.state = StateError
}

func (e *Engine) teardown(reason string) {
	e.wd.Disarm()
	if e.unregisterMagic != nil {
		e.unregisterMagic()
		e.unregisterMagic = nil
	}
	if e.unregisterException != nil {
		e.unregisterException()
		e.unregisterException = nil
	}
	if e.tr != nil {
		e.tr.Disarm()
	}
	if e.snap != nil && e.snap.HasSnapshot() {
		if err := e.snap.Discard(); err != nil {
			log.Errorf("engine: discarding snapshot during teardown (%s): %v", reason, err)
		}
	}
	e.host.StopSimulation()
}
