package session

import (
	"crypto/sha1"
	"fmt"

	"github.com/ivanjermakov/biter/bencode"
	"github.com/ivanjermakov/biter/core"
	"github.com/ivanjermakov/biter/torlib"
	"github.com/ivanjermakov/biter/wire"
)

// metainfoPieceSize is the fixed chunk size ut_metadata splits the info dict
// into (BEP-9); every piece except the last is exactly this size.
const metainfoPieceSize = wire.MetadataPieceSize

// metainfoState accumulates ut_metadata pieces until the full info dict has
// arrived, mirroring the data model's MetainfoState: total size is unknown
// until the first Data message reports it.
type metainfoState struct {
	totalSize *int
	pieces    map[int][]byte
}

func newMetainfoState() *metainfoState {
	return &metainfoState{pieces: make(map[int][]byte)}
}

// nextPiece returns the next metadata piece index to request, or -1 once
// every piece is held.
func (m *metainfoState) nextPiece() int {
	if m.totalSize == nil {
		return 0
	}
	n := (*m.totalSize + metainfoPieceSize - 1) / metainfoPieceSize
	for i := 0; i < n; i++ {
		if _, ok := m.pieces[i]; !ok {
			return i
		}
	}
	return -1
}

func (m *metainfoState) addData(piece, totalSize int, data []byte) {
	if m.totalSize == nil {
		m.totalSize = &totalSize
	}
	m.pieces[piece] = data
}

func (m *metainfoState) complete() bool {
	if m.totalSize == nil {
		return false
	}
	n := (*m.totalSize + metainfoPieceSize - 1) / metainfoPieceSize
	return len(m.pieces) == n
}

func (m *metainfoState) assemble() []byte {
	n := len(m.pieces)
	buf := make([]byte, 0, n*metainfoPieceSize)
	for i := 0; i < n; i++ {
		buf = append(buf, m.pieces[i]...)
	}
	return buf
}

// verifyAndBuild checks the assembled info dict's SHA-1 against the
// magnet's target info-hash and, on a match, wraps it into a MetaInfo.
func (m *metainfoState) verifyAndBuild(target core.InfoHash) (*torlib.MetaInfo, error) {
	raw := m.assemble()
	sum := sha1.Sum(raw)
	if core.InfoHash(sum) != target {
		return nil, fmt.Errorf("metadata info-hash mismatch")
	}
	v, tail, err := bencode.DecodeBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("decode assembled info dict: %w", err)
	}
	if len(tail) != 0 {
		return nil, fmt.Errorf("trailing data after assembled info dict: %d bytes", len(tail))
	}
	root := bencode.Dict(map[string]bencode.Value{"info": v})
	mi, err := torlib.ParseMetaInfo(root)
	if err != nil {
		return nil, fmt.Errorf("parse reconstructed metainfo: %w", err)
	}
	return mi, nil
}
