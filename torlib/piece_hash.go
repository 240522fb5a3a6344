package torlib

// PieceHash is the 20-byte SHA-1 digest declared by the metainfo for one
// piece. A piece's downloaded bytes are verified against this hash before
// the piece is ever considered complete.
type PieceHash [20]byte

// PieceHashFromBytes wraps a 20-byte slice as a PieceHash. Callers must
// ensure len(b) == 20; this is only ever called against already-chunked
// slices of the metainfo "pieces" string.
func PieceHashFromBytes(b []byte) PieceHash {
	var h PieceHash
	copy(h[:], b)
	return h
}

func (h PieceHash) Bytes() []byte {
	return h[:]
}
