// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package arch

// riscvArch implements Arch for RISC-V 32 and 64 bit. RISC-V has no
// CPUID-like leaf, so per spec.md 4.1 the magic instruction is an
// otherwise-inert arithmetic instruction -- "srai zero, zero, kind" --
// whose shift-amount immediate encodes only the kind; the host is expected
// to have already pulled that immediate out into the "kind" pseudo-register
// before calling Decode. index and a1..a3 come from pre-agreed registers
// a0..a3 (the standard RISC-V argument registers).
type riscvArch struct {
	wide bool // true for riscv64, false for riscv32
}

func (a riscvArch) Name() string {
	if a.wide {
		return "riscv64"
	}
	return "riscv32"
}

func (a riscvArch) PointerWidth() int {
	if a.wide {
		return 8
	}
	return 4
}

func (a riscvArch) Decode(regs RegisterFile) (Event, error) {
	// The host encodes "this is a magic srai" by populating the "kind"
	// pseudo-register; any other trapped srai never reaches Decode.
	rawKind, ok := regs["kind"]
	if !ok {
		return Event{}, ErrNotMagic
	}
	kind := Kind(rawKind)
	switch kind {
	case KindStartPtrSizePtr, KindStartPtrSizeVal, KindStartPtrSizePtrVal,
		KindStopNormal, KindStopAssert:
	default:
		return Event{}, &ErrUnknownKind{Kind: kind}
	}
	return Event{
		Kind:  kind,
		Index: uint32(regs["a0"]),
		Arg0:  regs["a1"],
		Arg1:  regs["a2"],
		Arg2:  regs["a3"],
	}, nil
}
