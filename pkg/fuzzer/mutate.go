// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

import "math/rand"

// mutate returns a mutated copy of seed, never longer than maxSize. Spec.md
// section 1 explicitly delegates "a general mutation algorithm" to the
// driver as a non-goal; this is the one default implementation the driver
// needs to be runnable end to end (SPEC_FULL.md section 4.9), not a
// mandated algorithm. It applies a small, fixed menu of AFL-style havoc
// operators chosen at random, 1-4 per call.
func mutate(seed []byte, rnd *rand.Rand, maxSize int) []byte {
	out := append([]byte(nil), seed...)
	if len(out) == 0 {
		out = []byte{0}
	}

	steps := 1 + rnd.Intn(4)
	for i := 0; i < steps; i++ {
		switch rnd.Intn(6) {
		case 0:
			out = flipBit(out, rnd)
		case 1:
			out = randomizeByte(out, rnd)
		case 2:
			out = arithByte(out, rnd)
		case 3:
			out = insertBytes(out, rnd, maxSize)
		case 4:
			out = deleteBytes(out, rnd)
		case 5:
			out = duplicateChunk(out, rnd, maxSize)
		}
		if len(out) == 0 {
			out = []byte{0}
		}
	}
	if maxSize > 0 && len(out) > maxSize {
		out = out[:maxSize]
	}
	return out
}

// splice crosses over a prefix of a and a suffix of b at a random cut
// point, a classic AFL operator for escaping a local coverage plateau by
// recombining two corpus entries instead of perturbing one.
func splice(a, b []byte, rnd *rand.Rand, maxSize int) []byte {
	if len(a) < 2 || len(b) < 2 {
		return append([]byte(nil), a...)
	}
	cut := 1 + rnd.Intn(min(len(a), len(b))-1)
	out := make([]byte, 0, cut+len(b)-cut)
	out = append(out, a[:cut]...)
	out = append(out, b[cut:]...)
	if maxSize > 0 && len(out) > maxSize {
		out = out[:maxSize]
	}
	return out
}

func flipBit(b []byte, rnd *rand.Rand) []byte {
	idx := rnd.Intn(len(b))
	b[idx] ^= 1 << uint(rnd.Intn(8))
	return b
}

func randomizeByte(b []byte, rnd *rand.Rand) []byte {
	idx := rnd.Intn(len(b))
	b[idx] = byte(rnd.Intn(256))
	return b
}

func arithByte(b []byte, rnd *rand.Rand) []byte {
	idx := rnd.Intn(len(b))
	delta := byte(1 + rnd.Intn(35))
	if rnd.Intn(2) == 0 {
		b[idx] += delta
	} else {
		b[idx] -= delta
	}
	return b
}

func insertBytes(b []byte, rnd *rand.Rand, maxSize int) []byte {
	if maxSize > 0 && len(b) >= maxSize {
		return b
	}
	n := 1 + rnd.Intn(8)
	if maxSize > 0 && len(b)+n > maxSize {
		n = maxSize - len(b)
	}
	if n <= 0 {
		return b
	}
	at := rnd.Intn(len(b) + 1)
	chunk := make([]byte, n)
	rnd.Read(chunk)
	out := make([]byte, 0, len(b)+n)
	out = append(out, b[:at]...)
	out = append(out, chunk...)
	out = append(out, b[at:]...)
	return out
}

func deleteBytes(b []byte, rnd *rand.Rand) []byte {
	if len(b) <= 1 {
		return b
	}
	n := 1 + rnd.Intn(min(8, len(b)-1))
	at := rnd.Intn(len(b) - n + 1)
	out := make([]byte, 0, len(b)-n)
	out = append(out, b[:at]...)
	out = append(out, b[at+n:]...)
	return out
}

func duplicateChunk(b []byte, rnd *rand.Rand, maxSize int) []byte {
	if len(b) == 0 || (maxSize > 0 && len(b) >= maxSize) {
		return b
	}
	n := 1 + rnd.Intn(min(8, len(b)))
	at := rnd.Intn(len(b) - n + 1)
	chunk := b[at : at+n]
	if maxSize > 0 && len(b)+n > maxSize {
		n = maxSize - len(b)
		if n <= 0 {
			return b
		}
		chunk = chunk[:n]
	}
	insertAt := rnd.Intn(len(b) + 1)
	out := make([]byte, 0, len(b)+len(chunk))
	out = append(out, b[:insertAt]...)
	out = append(out, chunk...)
	out = append(out, b[insertAt:]...)
	return out
}
