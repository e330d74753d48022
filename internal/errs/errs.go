// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package errs carries the error taxonomy from spec.md section 7:
// configuration errors, arm errors, and internal-error kinds used for
// runtime-transient and runtime-fatal conditions.
package errs

import "fmt"

// ConfigurationError reports an invalid option value or a conflict between
// options, detected synchronously by Config.Validate or Engine.Configure.
// The engine remains in Configured/Uninitialized (spec.md 7).
type ConfigurationError struct {
	Option string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Option, e.Reason)
}

// ArmError reports that the simulator refused a callback registration, the
// snapshot subsystem was unavailable, or no CPU was selected. The engine
// transitions to Error (spec.md 7).
type ArmError struct {
	Reason string
	Cause  error
}

func (e *ArmError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("arm error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("arm error: %s", e.Reason)
}

func (e *ArmError) Unwrap() error { return e.Cause }

// InternalErrorKind enumerates the causes of an InternalError stop reason
// (spec.md section 3 and 4.1/4.5/4.8).
type InternalErrorKind int

const (
	UnknownHarnessKind InternalErrorKind = iota
	InjectFailed
	MalformedProgramCounter
	TracerFaultThresholdExceeded
	ImpossibleTransition
	SnapshotRestoreFailed
	CallbacksVanished
)

func (k InternalErrorKind) String() string {
	switch k {
	case UnknownHarnessKind:
		return "UnknownHarnessKind"
	case InjectFailed:
		return "InjectFailed"
	case MalformedProgramCounter:
		return "MalformedProgramCounter"
	case TracerFaultThresholdExceeded:
		return "TracerFaultThresholdExceeded"
	case ImpossibleTransition:
		return "ImpossibleTransition"
	case SnapshotRestoreFailed:
		return "SnapshotRestoreFailed"
	case CallbacksVanished:
		return "CallbacksVanished"
	default:
		return fmt.Sprintf("InternalErrorKind(%d)", int(k))
	}
}

// Fatal reports whether this kind is a "runtime fatal" condition (spec.md
// 7: snapshot restore failed, callbacks vanished, or an impossible
// transition) as opposed to a "runtime transient" one that merely aborts
// the current iteration.
func (k InternalErrorKind) Fatal() bool {
	switch k {
	case SnapshotRestoreFailed, CallbacksVanished, ImpossibleTransition:
		return true
	default:
		return false
	}
}
