package wire

import "github.com/willf/bitset"

// EncodeBitfield converts an in-memory bitset (bit i set means piece i is
// held) into the wire's byte-string form: bits are packed MSB-first within
// each byte, and the string is padded with zero bits to a whole number of
// bytes.
func EncodeBitfield(have *bitset.BitSet, numPieces int) []byte {
	out := make([]byte, (numPieces+7)/8)
	for i := 0; i < numPieces; i++ {
		if have.Test(uint(i)) {
			out[i/8] |= 0x80 >> uint(i%8)
		}
	}
	return out
}

// DecodeBitfield converts a wire-format bitfield payload into an in-memory
// bitset of numPieces bits. Trailing bits beyond numPieces (padding) are
// ignored; a payload shorter than required for numPieces leaves the
// remaining bits unset.
func DecodeBitfield(raw []byte, numPieces int) *bitset.BitSet {
	have := bitset.New(uint(numPieces))
	for i := 0; i < numPieces; i++ {
		byteIdx := i / 8
		if byteIdx >= len(raw) {
			break
		}
		if raw[byteIdx]&(0x80>>uint(i%8)) != 0 {
			have.Set(uint(i))
		}
	}
	return have
}
