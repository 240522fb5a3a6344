// Package store holds the shared download state: the piece/block table, the
// peer set, and the status of the run as a whole. It is the single
// mutex-guarded record that every other component (tracker, DHT, peer
// sessions, file writer) reads and mutates, per the "one struct, one lock,
// short critical sections" design used throughout this client.
package store

import (
	"crypto/sha1"
	"fmt"

	"github.com/ivanjermakov/biter/torlib"
)

// BlockSize is the fixed block length used for all piece requests; only the
// final block of the final piece may be shorter.
const BlockSize = 16384

// PieceStatus is a piece's place in its download lifecycle. Status only ever
// advances forward; a hash mismatch resets Downloading blocks but never
// regresses status away from Downloading.
type PieceStatus int

const (
	PieceDownloading PieceStatus = iota
	PieceDownloaded
	PieceSaved
)

func (s PieceStatus) String() string {
	switch s {
	case PieceDownloading:
		return "downloading"
	case PieceDownloaded:
		return "downloaded"
	case PieceSaved:
		return "saved"
	default:
		return "unknown"
	}
}

// Piece is one entry of the download's piece table.
type Piece struct {
	Index  int
	Length int64
	Hash   torlib.PieceHash
	Blocks map[int][]byte
	Status PieceStatus
	Files  []FileLocation
}

// NumBlocks is the number of BlockSize chunks this piece is split into.
func (p *Piece) NumBlocks() int {
	return int((p.Length + BlockSize - 1) / BlockSize)
}

// BlockLength returns the expected length of block blockIndex -- BlockSize,
// except for the piece's final block which may be shorter.
func (p *Piece) BlockLength(blockIndex int) int64 {
	if blockIndex < p.NumBlocks()-1 {
		return BlockSize
	}
	return p.Length - int64(blockIndex)*BlockSize
}

// complete reports whether every block of p has been received.
func (p *Piece) complete() bool {
	return len(p.Blocks) == p.NumBlocks()
}

// assemble concatenates p's blocks in index order. Only meaningful once
// complete() is true.
func (p *Piece) assemble() []byte {
	buf := make([]byte, 0, p.Length)
	for i := 0; i < p.NumBlocks(); i++ {
		buf = append(buf, p.Blocks[i]...)
	}
	return buf
}

// verify reports whether p's assembled bytes match its declared hash.
func (p *Piece) verify() bool {
	sum := sha1.Sum(p.assemble())
	return torlib.PieceHashFromBytes(sum[:]) == p.Hash
}

func newPieceTable(info torlib.Info) ([]*Piece, error) {
	total := info.TotalLength()
	pieceLength := info.PieceLength
	if pieceLength <= 0 {
		return nil, fmt.Errorf("invalid piece length %d", pieceLength)
	}

	filesStart := make([]int64, len(info.Files))
	var cursor int64
	for i, f := range info.Files {
		filesStart[i] = cursor
		cursor += f.Length
	}

	n := info.NumPieces()
	pieces := make([]*Piece, 0, n)
	for i := 0; i < n; i++ {
		length := pieceLength
		if i == n-1 {
			if rem := total % pieceLength; rem != 0 {
				length = rem
			}
		}
		pieceStart := int64(i) * pieceLength
		pieceEnd := pieceStart + length

		var locations []FileLocation
		for f, file := range info.Files {
			fileStart := filesStart[f]
			fileEnd := fileStart + file.Length
			overlapStart := max64(pieceStart, fileStart)
			overlapEnd := min64(pieceEnd, fileEnd)
			if overlapEnd <= overlapStart {
				continue
			}
			locations = append(locations, FileLocation{
				FileIndex:   f,
				FileOffset:  overlapStart - fileStart,
				PieceOffset: overlapStart - pieceStart,
				Length:      overlapEnd - overlapStart,
			})
		}

		hash, err := info.PieceHashAt(i)
		if err != nil {
			return nil, err
		}
		pieces = append(pieces, &Piece{
			Index:  i,
			Length: length,
			Hash:   hash,
			Blocks: make(map[int][]byte),
			Status: PieceDownloading,
			Files:  locations,
		})
	}
	return pieces, nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
