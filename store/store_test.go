package store

import (
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ivanjermakov/biter/core"
	"github.com/ivanjermakov/biter/torlib"
)

func testLogger(t *testing.T) *zap.SugaredLogger {
	t.Helper()
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	return logger.Sugar()
}

func infoHashFixture(t *testing.T) core.InfoHash {
	t.Helper()
	h, err := core.NewInfoHashFromRawBytes(make([]byte, 20))
	require.NoError(t, err)
	return h
}

func peerIDFixture(t *testing.T) core.PeerID {
	t.Helper()
	id, err := core.NewPeerIDFromBytes(make([]byte, 20))
	require.NoError(t, err)
	return id
}

// S3: single-file piece mapping.
func TestPieceMappingSingleFile(t *testing.T) {
	info := torlib.Info{
		PieceLength: 4,
		Pieces:      make([]torlib.PieceHash, 3),
		Name:        "x",
		Files:       []torlib.FileEntry{{Length: 10, Path: []string{"x"}}},
	}
	pieces, err := newPieceTable(info)
	require.NoError(t, err)
	require.Len(t, pieces, 3)
	require.EqualValues(t, 4, pieces[0].Length)
	require.EqualValues(t, 4, pieces[1].Length)
	require.EqualValues(t, 2, pieces[2].Length)
	require.Equal(t, []FileLocation{{FileIndex: 0, FileOffset: 8, PieceOffset: 0, Length: 2}}, pieces[2].Files)
}

// S4: multi-file piece mapping spanning a file boundary.
func TestPieceMappingMultiFile(t *testing.T) {
	info := torlib.Info{
		PieceLength: 5,
		Pieces:      make([]torlib.PieceHash, 2),
		Name:        "bundle",
		Files: []torlib.FileEntry{
			{Length: 3, Path: []string{"a"}},
			{Length: 7, Path: []string{"b"}},
		},
	}
	pieces, err := newPieceTable(info)
	require.NoError(t, err)
	require.Len(t, pieces, 2)
	require.Equal(t, []FileLocation{
		{FileIndex: 0, FileOffset: 0, PieceOffset: 0, Length: 3},
		{FileIndex: 1, FileOffset: 0, PieceOffset: 3, Length: 2},
	}, pieces[0].Files)
	require.Equal(t, []FileLocation{
		{FileIndex: 1, FileOffset: 2, PieceOffset: 0, Length: 5},
	}, pieces[1].Files)
}

// Property 4: every piece's FileLocations sum to its length.
func TestPieceMappingCoversWholeLength(t *testing.T) {
	info := torlib.Info{
		PieceLength: 5,
		Pieces:      make([]torlib.PieceHash, 2),
		Name:        "bundle",
		Files: []torlib.FileEntry{
			{Length: 3, Path: []string{"a"}},
			{Length: 7, Path: []string{"b"}},
		},
	}
	pieces, err := newPieceTable(info)
	require.NoError(t, err)
	for _, p := range pieces {
		var sum int64
		for _, loc := range p.Files {
			sum += loc.Length
		}
		require.Equal(t, p.Length, sum)
	}
}

func newTestStore(t *testing.T, info torlib.Info) *Store {
	t.Helper()
	s, err := New(infoHashFixture(t), peerIDFixture(t), &info, testLogger(t), nil)
	require.NoError(t, err)
	return s
}

// S5: hash verify gate, both the matching and the bit-flipped case.
func TestAdmitBlockHashVerify(t *testing.T) {
	block := make([]byte, BlockSize)
	for i := range block {
		block[i] = byte(i)
	}
	sum := sha1.Sum(block)

	info := torlib.Info{
		PieceLength: BlockSize,
		Pieces:      []torlib.PieceHash{torlib.PieceHashFromBytes(sum[:])},
		Name:        "f",
		Files:       []torlib.FileEntry{{Length: BlockSize, Path: []string{"f"}}},
	}
	s := newTestStore(t, info)

	result := s.AdmitBlock(0, 0, block)
	require.Equal(t, BlockCompletedVerified, result)

	data, _, ok := s.PieceForWrite(0)
	require.True(t, ok)
	require.Equal(t, block, data)
}

func TestAdmitBlockHashMismatchDiscards(t *testing.T) {
	block := make([]byte, BlockSize)
	badHash := make([]byte, 20)
	badHash[0] = 0xFF

	info := torlib.Info{
		PieceLength: BlockSize,
		Pieces:      []torlib.PieceHash{torlib.PieceHashFromBytes(badHash)},
		Name:        "f",
		Files:       []torlib.FileEntry{{Length: BlockSize, Path: []string{"f"}}},
	}
	s := newTestStore(t, info)

	result := s.AdmitBlock(0, 0, block)
	require.Equal(t, BlockCompletedMismatch, result)
	require.Equal(t, []int{0}, s.MissingBlocks(0))
}

// Property 5: submitting the same (piece_index, begin, block) twice has the
// same store-visible effect as submitting it once.
func TestAdmitBlockDuplicateIsIdempotent(t *testing.T) {
	block := make([]byte, BlockSize)
	info := torlib.Info{
		PieceLength: 2 * BlockSize,
		Pieces:      make([]torlib.PieceHash, 1),
		Name:        "f",
		Files:       []torlib.FileEntry{{Length: 2 * BlockSize, Path: []string{"f"}}},
	}
	s := newTestStore(t, info)

	first := s.AdmitBlock(0, 0, block)
	require.Equal(t, BlockAccepted, first)
	second := s.AdmitBlock(0, 0, block)
	require.Equal(t, BlockDuplicate, second)
	require.Equal(t, []int{1}, s.MissingBlocks(0))
}

func TestAdmitBlockRejectsMisalignedBegin(t *testing.T) {
	info := torlib.Info{
		PieceLength: 8,
		Pieces:      make([]torlib.PieceHash, 1),
		Name:        "f",
		Files:       []torlib.FileEntry{{Length: 8, Path: []string{"f"}}},
	}
	s := newTestStore(t, info)
	result := s.AdmitBlock(0, 3, make([]byte, 4))
	require.Equal(t, BlockRejected, result)
}

func TestMergePeersNeverDrops(t *testing.T) {
	info := torlib.Info{
		PieceLength: 8,
		Pieces:      make([]torlib.PieceHash, 1),
		Name:        "f",
		Files:       []torlib.FileEntry{{Length: 8, Path: []string{"f"}}},
	}
	s := newTestStore(t, info)

	a := core.NewPeerInfo("10.0.0.1", 6881)
	b := core.NewPeerInfo("10.0.0.2", 6881)
	require.Equal(t, 2, s.MergePeers([]core.PeerInfo{a, b}))
	s.SetPeerStatus(a, PeerConnected)

	require.Equal(t, 0, s.MergePeers([]core.PeerInfo{a, b}))
	connected := s.PeersByStatus(PeerConnected)
	require.Len(t, connected, 1)
	require.Equal(t, a, connected[0].Info)
}

func TestAllSavedAndMarkDownloaded(t *testing.T) {
	info := torlib.Info{
		PieceLength: 4,
		Pieces:      make([]torlib.PieceHash, 2),
		Name:        "f",
		Files:       []torlib.FileEntry{{Length: 8, Path: []string{"f"}}},
	}
	s := newTestStore(t, info)
	require.False(t, s.AllSaved())

	s.mu.Lock()
	s.pieces[0].Status = PieceDownloaded
	s.pieces[1].Status = PieceDownloaded
	s.mu.Unlock()

	s.MarkDownloaded()
	require.Equal(t, StatusDownloaded, s.Status())

	s.MarkSaved(0)
	s.MarkSaved(1)
	require.True(t, s.AllSaved())
}
