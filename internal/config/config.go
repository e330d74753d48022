// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package config is the configuration surface (C10, spec.md section 6):
// every option there is reproduced here as a typed field, mutable only
// while the owning engine is Configured (spec.md section 3, "Lifecycle").
package config

import (
	"github.com/intel/tsffs-go/internal/coverage"
	"github.com/intel/tsffs-go/internal/errs"
	"github.com/intel/tsffs-go/pkg/log"
)

// Config holds every runtime-settable tunable from spec.md section 6.
type Config struct {
	// TimeoutSeconds is the virtual-time duration the watchdog (C6) arms
	// each iteration. Default 3.0.
	TimeoutSeconds float64

	// ExceptionSolutions is the set of CPU exception vectors that the
	// solution detector (C7) classifies as a solution.
	ExceptionSolutions map[uint64]bool

	// StartOnHarness: if false, the engine ignores Start magic
	// instructions. The engine has no other way to begin an iteration, so
	// nothing runs while it is false.
	StartOnHarness bool
	// StopOnHarness: if false, the engine ignores normal Stop magic
	// instructions; Assert magic still ends the iteration. There is no
	// other stop call, so iterations then end only by Assert, a solution
	// exception, or the watchdog timeout.
	StopOnHarness bool

	// EnabledStartIndices is the set of start-harness indices to honor;
	// empty means all.
	EnabledStartIndices map[uint32]bool
	// EnabledStopIndices is the symmetric option for Stop.
	EnabledStopIndices map[uint32]bool

	// CoverageMapSizeLog2 is k for the 2^k-byte coverage map. Default 16.
	CoverageMapSizeLog2 uint

	// CorpusDirectory and SolutionsDirectory are filesystem paths C11
	// loads from / persists to.
	CorpusDirectory    string
	SolutionsDirectory string

	// ReproInput, if set, makes the engine run exactly one iteration with
	// this file's contents injected, then halt instead of looping
	// (spec.md 4.11, E6).
	ReproInput string

	// LogLevel controls pkg/log verbosity.
	LogLevel log.Level

	// TracerFaultThreshold bounds the number of per-callback tracer faults
	// tolerated before the engine transitions to Error (spec.md 4.3).
	// Default 64.
	TracerFaultThreshold uint64

	// ReSnapshotPerIndex is passed to snapshot.Manager, which then takes a
	// new snapshot whenever EnsureSnapshot sees a new start index. The
	// engine only calls EnsureSnapshot for the first Start after Arm, so
	// one snapshot per arm cycle is taken either way.
	ReSnapshotPerIndex bool

	// Comparisons names the optional Redqueen-style comparison-operand
	// token feedback (spec.md 4.3). Off by default. The engine does not
	// read this field, and no driver receives tracer tokens.
	Comparisons bool
}

// Default returns a Config with every field set to the defaults named in
// spec.md section 6.
func Default() *Config {
	return &Config{
		TimeoutSeconds:       3.0,
		ExceptionSolutions:   map[uint64]bool{},
		StartOnHarness:       true,
		StopOnHarness:        true,
		EnabledStartIndices:  map[uint32]bool{},
		EnabledStopIndices:   map[uint32]bool{},
		CoverageMapSizeLog2:  16,
		LogLevel:             log.Info,
		TracerFaultThreshold: 64,
	}
}

// Validate enforces the synchronous configuration-error checks from
// spec.md section 7.
func (c *Config) Validate() error {
	if c.CoverageMapSizeLog2 < coverage.MinSizeLog2 || c.CoverageMapSizeLog2 > coverage.MaxSizeLog2 {
		return &errs.ConfigurationError{
			Option: "CoverageMapSizeLog2",
			Reason: "must be between 8 and 24",
		}
	}
	if c.TimeoutSeconds <= 0 {
		return &errs.ConfigurationError{
			Option: "TimeoutSeconds",
			Reason: "must be positive",
		}
	}
	if c.ReproInput == "" {
		if c.CorpusDirectory == "" {
			return &errs.ConfigurationError{
				Option: "CorpusDirectory",
				Reason: "must be set unless ReproInput is set",
			}
		}
		if c.SolutionsDirectory == "" {
			return &errs.ConfigurationError{
				Option: "SolutionsDirectory",
				Reason: "must be set unless ReproInput is set",
			}
		}
	}
	return nil
}

// StartIndexEnabled reports whether idx should be honored as a start
// index, per the "empty ⇒ all" rule in spec.md section 3.
func (c *Config) StartIndexEnabled(idx uint32) bool {
	if len(c.EnabledStartIndices) == 0 {
		return true
	}
	return c.EnabledStartIndices[idx]
}

// StopIndexEnabled is the symmetric check for stop indices.
func (c *Config) StopIndexEnabled(idx uint32) bool {
	if len(c.EnabledStopIndices) == 0 {
		return true
	}
	return c.EnabledStopIndices[idx]
}

// IsSolutionException reports whether vector is in the configured solution
// exception set (spec.md 4.7 step 2).
func (c *Config) IsSolutionException(vector uint64) bool {
	return c.ExceptionSolutions[vector]
}
