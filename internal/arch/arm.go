// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package arch

// armArch implements Arch for 32-bit ARM and AArch64. Like RISC-V, ARM has
// no CPUID-like leaf, so the magic instruction is an otherwise-inert
// "orr rN, rN, rN" whose register operand N encodes kind (spec.md 4.1); the
// host pre-decodes N into the "kind" pseudo-register the same way it does
// for RISC-V. Argument registers follow the AAPCS convention, r0..r3 /
// x0..x3.
type armArch struct {
	wide bool // true for aarch64, false for arm
}

func (a armArch) Name() string {
	if a.wide {
		return "aarch64"
	}
	return "arm"
}

func (a armArch) PointerWidth() int {
	if a.wide {
		return 8
	}
	return 4
}

func (a armArch) regPrefix() string {
	if a.wide {
		return "x"
	}
	return "r"
}

func (a armArch) Decode(regs RegisterFile) (Event, error) {
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
	p := a.regPrefix()
	return Event{
		Kind:  kind,
		Index: uint32(regs[p+"0"]),
		Arg0:  regs[p+"1"],
		Arg1:  regs[p+"2"],
		Arg2:  regs[p+"3"],
	}, nil
}
