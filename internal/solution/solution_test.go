// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package solution

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/intel/tsffs-go/internal/errs"
)

func TestIsSolutionClassification(t *testing.T) {
	assert.False(t, NormalReason(0).IsSolution())
	assert.True(t, AssertReason(0).IsSolution())
	assert.True(t, ExceptionReason(0, 13).IsSolution())
	assert.True(t, TimeoutReason().IsSolution())
	assert.False(t, InternalErrorReason(errs.InjectFailed).IsSolution())
}

func TestDetectorClassifiesConfiguredVector(t *testing.T) {
	solutions := map[uint64]bool{13: true, 14: true}
	d := NewDetector(func(v uint64) bool { return solutions[v] })

	reason, ok := d.Classify(0, 13)
	assert.True(t, ok)
	assert.Equal(t, Exception, reason.Kind)
	assert.EqualValues(t, 0, reason.CPUID)
	assert.EqualValues(t, 13, reason.Vector)
}

func TestDetectorIgnoresUnconfiguredVector(t *testing.T) {
	d := NewDetector(func(v uint64) bool { return false })
	_, ok := d.Classify(1, 6)
	assert.False(t, ok)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "Exception", Exception.String())
	assert.Equal(t, "Timeout", Timeout.String())
}
