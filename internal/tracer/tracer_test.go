// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package tracer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intel/tsffs-go/internal/coverage"
	"github.com/intel/tsffs-go/pkg/simulator"
)

// fakeHost is a minimal HostTracer: it lets the test drive
// OnCachedInstruction and OnAfterExecute callbacks directly.
type fakeHost struct {
	cachedCB    func(addr uint64, mnemonic string)
	afterCBs    map[uint64]func()
	pc          uint64
	pcErr       error
	afterErrOn  uint64
	unregisters int
}

func newFakeHost() *fakeHost {
	return &fakeHost{afterCBs: map[uint64]func(){}}
}

func (f *fakeHost) OnCachedInstruction(cb func(addr uint64, mnemonic string)) (simulator.Unregister, error) {
	f.cachedCB = cb
	return func() { f.unregisters++ }, nil
}

func (f *fakeHost) OnAfterExecute(addr uint64, cb func()) (simulator.Unregister, error) {
	if addr == f.afterErrOn {
		return nil, errors.New("simulated registration failure")
	}
	f.afterCBs[addr] = cb
	return func() { f.unregisters++; delete(f.afterCBs, addr) }, nil
}

func (f *fakeHost) PC() (uint64, error) {
	return f.pc, f.pcErr
}

func (f *fakeHost) cacheInstruction(addr uint64, mnemonic string) {
	f.cachedCB(addr, mnemonic)
}

func (f *fakeHost) execute(addr uint64) {
	if cb, ok := f.afterCBs[addr]; ok {
		cb()
	}
}

func TestArmInstallsAfterExecuteOnlyForBranches(t *testing.T) {
	host := newFakeHost()
	cov := coverage.New(coverage.MinSizeLog2)
	tr := New(host, cov, 0)
	require.NoError(t, tr.Arm(nil))

	host.cacheInstruction(0x1000, "mov")
	host.cacheInstruction(0x1004, "jmp")

	assert.Len(t, host.afterCBs, 1)
	_, ok := host.afterCBs[0x1004]
	assert.True(t, ok)
}

func TestAfterExecuteRecordsProgramCounter(t *testing.T) {
	host := newFakeHost()
	cov := coverage.New(coverage.MinSizeLog2)
	tr := New(host, cov, 0)
	require.NoError(t, tr.Arm(nil))

	host.cacheInstruction(0x2000, "call")
	host.pc = 0x2000
	before := cov.Snapshot()
	host.execute(0x2000)
	after := cov.Snapshot()

	assert.True(t, coverage.NewEdges(before, after))
}

func TestDisarmUnregistersEverything(t *testing.T) {
	host := newFakeHost()
	cov := coverage.New(coverage.MinSizeLog2)
	tr := New(host, cov, 0)
	require.NoError(t, tr.Arm(nil))

	host.cacheInstruction(0x3000, "ret")
	tr.Disarm()

	assert.Equal(t, 0, len(host.afterCBs))
	assert.Equal(t, 2, host.unregisters) // cached-instruction + one after-execute
}

func TestFaultThresholdTriggersOnFault(t *testing.T) {
	host := newFakeHost()
	host.pcErr = errors.New("pc unavailable")
	cov := coverage.New(coverage.MinSizeLog2)
	tr := New(host, cov, 2)

	faulted := false
	require.NoError(t, tr.Arm(func() { faulted = true }))

	host.cacheInstruction(0x4000, "jne")
	host.execute(0x4000) // fault 1
	assert.False(t, faulted)
	host.execute(0x4000) // fault 2
	assert.False(t, faulted)
	host.execute(0x4000) // fault 3, exceeds threshold of 2
	assert.True(t, faulted)
	assert.EqualValues(t, 3, tr.FaultCount())
}

func TestCustomBranchPredicate(t *testing.T) {
	host := newFakeHost()
	cov := coverage.New(coverage.MinSizeLog2)
	tr := New(host, cov, 0)
	tr.SetBranchPredicate(func(m string) bool { return m == "weird_branch" })
	require.NoError(t, tr.Arm(nil))

	host.cacheInstruction(0x5000, "jmp") // no longer considered a branch
	host.cacheInstruction(0x5004, "weird_branch")

	assert.Len(t, host.afterCBs, 1)
	_, ok := host.afterCBs[0x5004]
	assert.True(t, ok)
}

func TestTokenCallbackFromComparisonOperandReader(t *testing.T) {
	host := &tokenHost{fakeHost: newFakeHost()}
	cov := coverage.New(coverage.MinSizeLog2)
	tr := New(host, cov, 0)

	var got Token
	tr.OnToken(func(tok Token) { got = tok })
	require.NoError(t, tr.Arm(nil))

	host.cacheInstruction(0x6000, "call")
	host.execute(0x6000)

	assert.Equal(t, Token{Addr: 0x6000, A: 1, B: 2}, got)
}

type tokenHost struct {
	*fakeHost
}

func (t *tokenHost) ReadComparisonOperands(addr uint64) (a, b uint64, ok bool) {
	return 1, 2, true
}
