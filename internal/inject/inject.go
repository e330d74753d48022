// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package inject implements the test-case injector (C5, spec.md section
// 4.5): writing the current test case into the guest buffer captured at
// Start, and writing back the injected length through the size-pointer
// variant when present.
package inject

import (
	"encoding/binary"
	"fmt"

	"github.com/intel/tsffs-go/internal/arch"
)

// MemoryWriter is the one simulator.Host method the injector needs;
// spelled out as its own small interface, in the teacher's style of
// depending on the narrowest capability set a component actually uses
// (e.g. fuzzer.Incrementer/fuzzer.Setter in pkg/fuzzer), so tests can
// supply a minimal fake instead of a full simulator.Host.
type MemoryWriter interface {
	WriteMemory(addr uint64, data []byte) error
}

// Site is the harness-site information captured at Start, frozen for the
// lifetime of one arm cycle per spec.md's "reuse" resolution of the
// multi-start-index open question.
type Site struct {
	BufferAddr uint64
	SizePtr    uint64 // zero if this Start variant carries no size pointer
	HasSizePtr bool
	MaxSize    uint64 // the recorded maximum from the first Start (spec.md 4.5 step 1)
}

// Inject writes min(len(testCase), site.MaxSize) bytes of testCase to
// site.BufferAddr (all of testCase when site.MaxSize is zero), and, if the
// harness variant carries a size pointer,
// writes that length back as an unsigned integer of the architecture's
// pointer width (spec.md 4.5 steps 1-3). It returns the injected length.
//
// Short test cases are not padded -- the remainder of the buffer is
// whatever the snapshot contained (spec.md 4.5, "Short test cases").
func Inject(host MemoryWriter, a arch.Arch, site Site, testCase []byte) (uint64, error) {
	length := uint64(len(testCase))
	if site.MaxSize > 0 && length > site.MaxSize {
		length = site.MaxSize
	}

	if err := host.WriteMemory(site.BufferAddr, testCase[:length]); err != nil {
		// Surfaced by the engine as InternalError(InjectFailed), per
		// spec.md 4.5 step 2 -- unmapped or read-only page.
		return 0, fmt.Errorf("inject: write test case bytes: %w", err)
	}

	if site.HasSizePtr {
		buf := make([]byte, a.PointerWidth())
		switch a.PointerWidth() {
		case 4:
			binary.LittleEndian.PutUint32(buf, uint32(length))
		case 8:
			binary.LittleEndian.PutUint64(buf, length)
		default:
			return 0, fmt.Errorf("inject: unsupported pointer width %d", a.PointerWidth())
		}
		if err := host.WriteMemory(site.SizePtr, buf); err != nil {
			return 0, fmt.Errorf("inject: write size pointer: %w", err)
		}
	}

	return length, nil
}
