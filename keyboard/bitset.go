package keyboard

import "math/bits"

// bitset is a fixed-size bit array addressed by the row/col scheme used in
// key translation tables: the upper bits of a position select the byte, the
// low three bits select the bit. All accesses are range checked so a
// malformed translation table cannot index out of bounds.
type bitset struct {
	bits []byte
	n    int
}

func newBitset(n int) bitset {
	return bitset{bits: make([]byte, (n+7)/8), n: n}
}

// set turns on bit pos and reports whether the bit actually changed.
func (b *bitset) set(pos uint8) bool {
	if int(pos) >= b.n {
		return false
	}
	mask := byte(1) << (pos & 0x07)
	if b.bits[pos>>3]&mask != 0 {
		return false
	}
	b.bits[pos>>3] |= mask
	return true
}

// clear turns off bit pos and reports whether the bit actually changed.
func (b *bitset) clear(pos uint8) bool {
	if int(pos) >= b.n {
		return false
	}
	mask := byte(1) << (pos & 0x07)
	if b.bits[pos>>3]&mask == 0 {
		return false
	}
	b.bits[pos>>3] &^= mask
	return true
}

// get reports the state of bit pos; out-of-range positions read as off.
func (b *bitset) get(pos uint8) bool {
	if int(pos) >= b.n {
		return false
	}
	return b.bits[pos>>3]&(1<<(pos&0x07)) != 0
}

// popcount returns the number of set bits.
func (b *bitset) popcount() int {
	total := 0
	for _, v := range b.bits {
		total += bits.OnesCount8(v)
	}
	return total
}

// reset clears every bit.
func (b *bitset) reset() {
	for i := range b.bits {
		b.bits[i] = 0
	}
}
