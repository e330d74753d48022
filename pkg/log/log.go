// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package log is the process-wide logging surface used throughout this
// module, in the teacher's style: a package-level verbosity gate plus a
// leveled Logf, rather than a configurable per-call logger object. Unlike
// the teacher, callers configure verbosity via the named Level enumerated
// in spec.md section 6 ("trace/debug/info/warn/error") instead of a bare
// integer; SetLevel translates that into the internal 0-4 verbosity scale
// Logf already uses everywhere else in this codebase.
package log

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Level is one of the five named verbosities from spec.md's configuration
// table ("log_level": trace/debug/info/warn/error).
type Level int

const (
	Trace Level = iota
	Debug
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Trace:
		return "trace"
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// verbosity maps a named Level to the internal 0-4 scale Logf callers
// already pass (0 = always shown at Info, 4 = only shown at Trace).
func (l Level) verbosity() int {
	switch l {
	case Trace:
		return 4
	case Debug:
		return 2
	case Info:
		return 0
	case Warn, Error:
		return -1 // Warn/Error always print regardless of V().
	default:
		return 0
	}
}

var current atomic.Int64

func init() {
	current.Store(int64(Info))
}

// SetLevel sets the process-wide verbosity.
func SetLevel(l Level) {
	current.Store(int64(l))
}

// CurrentLevel returns the process-wide verbosity.
func CurrentLevel() Level {
	return Level(current.Load())
}

// V reports whether a message logged with Logf(verbosity, ...) would be
// printed at the current level, mirroring the teacher's log.V(n) gate used
// e.g. in pkg/rpcserver/local.go ("cfg.PrintMachineCheck = log.V(1)").
func V(verbosity int) bool {
	return verbosity <= CurrentLevel().verbosity()
}

var mu sync.Mutex

// Logf prints a message if verbosity is within the current level's budget.
// Verbosity 0 always prints at Info or more verbose; higher numbers need a
// more verbose level (Debug, Trace).
func Logf(verbosity int, msg string, args ...interface{}) {
	if !V(verbosity) {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(os.Stderr, "%s %s\n", time.Now().Format("2006/01/02 15:04:05"), fmt.Sprintf(msg, args...))
}

// Errorf always prints, regardless of level, and is meant for conditions
// the engine recovers from (runtime-transient errors, spec.md 7).
func Errorf(msg string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(os.Stderr, "%s ERROR %s\n", time.Now().Format("2006/01/02 15:04:05"), fmt.Sprintf(msg, args...))
}

// Fatalf prints unconditionally and exits the process, matching the
// teacher's log.Fatalf used at impossible-state boundaries
// (e.g. syz-fuzzer/proc.go's "unknown output type").
func Fatalf(msg string, args ...interface{}) {
	Errorf(msg, args...)
	os.Exit(1)
}
