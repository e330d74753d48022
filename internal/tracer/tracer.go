// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package tracer implements the per-instruction coverage tracer (C3,
// spec.md section 4.3): it watches newly-cached instructions for the
// branch-class mnemonics, installs an after-execution callback on each, and
// feeds the program counter at that point into the edge coverage map.
package tracer

import (
	"github.com/intel/tsffs-go/internal/coverage"
	"github.com/intel/tsffs-go/pkg/simulator"
)

// HostTracer is the slice of simulator.Host the tracer needs to arm and run
// -- named narrowly in the teacher's style of small, capability-scoped
// interfaces (compare fuzzer.Incrementer/fuzzer.Setter/fuzzer.Observer).
type HostTracer interface {
	OnCachedInstruction(cb func(addr uint64, mnemonic string)) (simulator.Unregister, error)
	OnAfterExecute(addr uint64, cb func()) (simulator.Unregister, error)
	PC() (uint64, error)
}

// ComparisonOperandReader is an optional extension a Host may implement to
// support Redqueen-style token feedback (spec.md 4.3, "I2S/Redqueen-style
// feedback (optional)"). Hosts that do not implement it simply never
// produce tokens -- the base coverage feedback is unaffected, matching the
// spec's "implementations may stub it initially".
type ComparisonOperandReader interface {
	ReadComparisonOperands(addr uint64) (a, b uint64, ok bool)
}

// Token is a captured comparison operand pair, published to the fuzzing
// driver as a dictionary entry candidate.
type Token struct {
	Addr uint64
	A, B uint64
}

// defaultBranchMnemonics lists the branch-class instructions the tracer
// installs after-execution callbacks for, per spec.md 4.3's "branch set
// {call, return, conditional jumps}". Per-architecture decoders may extend
// this; the zero value of Tracer uses exactly this set.
var defaultBranchMnemonics = map[string]bool{
	"call": true, "ret": true,
	"jmp": true, "je": true, "jne": true, "jz": true, "jnz": true,
	"jg": true, "jge": true, "jl": true, "jle": true,
	"ja": true, "jae": true, "jb": true, "jbe": true,
	"jo": true, "jno": true, "js": true, "jns": true,
	"beq": true, "bne": true, "blt": true, "bge": true, "bltu": true, "bgeu": true,
	"b": true, "bl": true, "bx": true, "cbz": true, "cbnz": true,
}

// Tracer owns registration of the tracer's simulator callbacks and drives
// the coverage map on each branch.
type Tracer struct {
	host HostTracer
	cov  *coverage.Map

	isBranch func(mnemonic string) bool

	faultThreshold uint64
	faultCount     uint64

	onToken func(Token)

	unregisterCached func()
	unregisterAfter  map[uint64]func()
}

// New returns a Tracer that feeds cov from host's per-instruction
// callbacks. faultThreshold is the number of per-callback errors tolerated
// before Arm's registered callback reports a fatal fault (spec.md 4.3,
// "Per-callback errors are counted and, above a threshold, transition C8 to
// InternalError").
func New(host HostTracer, cov *coverage.Map, faultThreshold uint64) *Tracer {
	return &Tracer{
		host:            host,
		cov:             cov,
		isBranch:        func(m string) bool { return defaultBranchMnemonics[m] },
		faultThreshold:  faultThreshold,
		unregisterAfter: make(map[uint64]func()),
	}
}

// SetBranchPredicate overrides which mnemonics count as branch-class
// instructions; used by architectures whose decoder wants a different set
// than defaultBranchMnemonics.
func (t *Tracer) SetBranchPredicate(pred func(mnemonic string) bool) {
	t.isBranch = pred
}

// OnToken subscribes to comparison-operand tokens surfaced through an
// optional ComparisonOperandReader host (spec.md 4.3). It is a no-op to
// call this if the host never implements that interface.
func (t *Tracer) OnToken(cb func(Token)) {
	t.onToken = cb
}

// Arm registers the cached-instruction callback with the host. onFault is
// invoked at most once, the moment faultThreshold is exceeded (spec.md 4.3:
// "registration failures are fatal at arm time" is the caller's
// responsibility -- Arm itself only returns the registration error).
func (t *Tracer) Arm(onFault func()) error {
	unreg, err := t.host.OnCachedInstruction(func(addr uint64, mnemonic string) {
		if !t.isBranch(mnemonic) {
			return
		}
		if _, already := t.unregisterAfter[addr]; already {
			return
		}
		u, err := t.host.OnAfterExecute(addr, func() {
			t.onAfterExecute(addr, onFault)
		})
		if err != nil {
			t.countFault(onFault)
			return
		}
		t.unregisterAfter[addr] = u
	})
	if err != nil {
		return err
	}
	t.unregisterCached = unreg
	return nil
}

func (t *Tracer) onAfterExecute(addr uint64, onFault func()) {
	pc, err := t.host.PC()
	if err != nil {
		t.countFault(onFault)
		return
	}
	t.cov.Record(pc)

	if t.onToken != nil {
		if reader, ok := t.host.(ComparisonOperandReader); ok {
			if a, b, ok := reader.ReadComparisonOperands(addr); ok {
				t.onToken(Token{Addr: addr, A: a, B: b})
			}
		}
	}
}

func (t *Tracer) countFault(onFault func()) {
	t.faultCount++
	if t.faultThreshold > 0 && t.faultCount == t.faultThreshold+1 && onFault != nil {
		onFault()
	}
}

// FaultCount reports the number of per-callback errors observed so far.
func (t *Tracer) FaultCount() uint64 {
	return t.faultCount
}

// Disarm unregisters every callback installed by Arm. Safe to call more
// than once.
func (t *Tracer) Disarm() {
	if t.unregisterCached != nil {
		t.unregisterCached()
		t.unregisterCached = nil
	}
	for addr, u := range t.unregisterAfter {
		u()
		delete(t.unregisterAfter, addr)
	}
}
