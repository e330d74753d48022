// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package solution carries the Stop Reason tagged variant (spec.md section
// 3) and the exception classifier (C7, spec.md section 4.7).
package solution

import (
	"fmt"

	"github.com/intel/tsffs-go/internal/errs"
)

// Kind discriminates the Reason tagged variant.
type Kind int

const (
	// Normal means the target executed a Stop harness.
	Normal Kind = iota
	// AssertHarness means the target executed an Assert harness; always a
	// solution.
	AssertHarness
	// Exception means the CPU raised a vector in the configured solution
	// set; always a solution.
	Exception
	// Timeout means the virtual-time watchdog expired before a Stop;
	// always a solution.
	Timeout
	// InternalError means an invariant was violated; fatal to the
	// iteration, not necessarily to the process (see errs.InternalErrorKind.Fatal).
	InternalError
)

func (k Kind) String() string {
	switch k {
	case Normal:
		return "Normal"
	case AssertHarness:
		return "AssertHarness"
	case Exception:
		return "Exception"
	case Timeout:
		return "Timeout"
	case InternalError:
		return "InternalError"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Reason is the Stop Reason tagged variant from spec.md section 3. Only the
// fields relevant to Kind are meaningful; the rest are zero.
type Reason struct {
	Kind Kind

	// Normal, AssertHarness
	Index uint32

	// Exception
	CPUID  int
	Vector uint64

	// InternalError
	ErrorKind errs.InternalErrorKind
}

// IsSolution reports whether reason flags the iteration as a solution --
// true iff the stop reason is AssertHarness, Exception, or Timeout
// (spec.md section 4.9's objective definition).
func (r Reason) IsSolution() bool {
	switch r.Kind {
	case AssertHarness, Exception, Timeout:
		return true
	default:
		return false
	}
}

func NormalReason(index uint32) Reason { return Reason{Kind: Normal, Index: index} }

func AssertReason(index uint32) Reason { return Reason{Kind: AssertHarness, Index: index} }

func ExceptionReason(cpuID int, vector uint64) Reason {
	return Reason{Kind: Exception, CPUID: cpuID, Vector: vector}
}

func TimeoutReason() Reason { return Reason{Kind: Timeout} }

func InternalErrorReason(kind errs.InternalErrorKind) Reason {
	return Reason{Kind: InternalError, ErrorKind: kind}
}

// Detector subscribes to the simulator's exception hap (C7, spec.md section
// 4.7) and classifies each exception vector against the configured solution
// set. Asserts are not handled here -- they are raised directly by the
// magic-instruction decoder (C1) and delivered to the engine as a distinct
// event, per spec.md section 4.7's closing note.
type Detector struct {
	isSolutionVector func(vector uint64) bool
}

// NewDetector returns a Detector that consults isSolutionVector to decide
// whether an observed exception vector belongs to the configured solution
// set (Configuration.exception_solutions).
func NewDetector(isSolutionVector func(vector uint64) bool) *Detector {
	return &Detector{isSolutionVector: isSolutionVector}
}

// Classify implements spec.md section 4.7 steps 1-3: given the CPU id and
// exception vector delivered by the simulator's exception hap, it reports
// whether the exception is a configured solution and, if so, the Reason to
// raise. ok is false when the exception is a normal part of execution and
// should be ignored.
func (d *Detector) Classify(cpuID int, vector uint64) (reason Reason, ok bool) {
	if !d.isSolutionVector(vector) {
		return Reason{}, false
	}
	return ExceptionReason(cpuID, vector), true
}
