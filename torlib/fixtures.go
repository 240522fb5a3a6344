package torlib

import (
	"github.com/ivanjermakov/biter/bencode"
	"github.com/ivanjermakov/biter/core"
)

// NewInfoFixture builds an Info for tests: a single file of totalLength
// bytes split into pieces of pieceLength bytes (the final piece possibly
// shorter), with placeholder (non-matching) piece hashes. Callers that need
// hash-matching blocks should compute real hashes from actual content
// instead of using this fixture.
func NewInfoFixture(name string, pieceLength, totalLength int64) Info {
	n := int((totalLength + pieceLength - 1) / pieceLength)
	pieces := make([]PieceHash, n)
	for i := range pieces {
		pieces[i] = PieceHash{byte(i)}
	}
	return Info{
		PieceLength: pieceLength,
		Pieces:      pieces,
		Name:        name,
		Files:       []FileEntry{{Length: totalLength, Path: []string{name}}},
	}
}

// NewMultiFileInfoFixture builds an Info for tests spanning multiple files.
func NewMultiFileInfoFixture(name string, pieceLength int64, files []FileEntry) Info {
	var total int64
	for _, f := range files {
		total += f.Length
	}
	n := int((total + pieceLength - 1) / pieceLength)
	pieces := make([]PieceHash, n)
	for i := range pieces {
		pieces[i] = PieceHash{byte(i)}
	}
	return Info{
		PieceLength: pieceLength,
		Pieces:      pieces,
		Name:        name,
		Files:       files,
	}
}

// NewMetaInfoFixture wraps an Info fixture into a full MetaInfo with a
// computed info-hash, for tests that exercise tracker/session code needing
// an InfoHash.
func NewMetaInfoFixture(info Info) *MetaInfo {
	return &MetaInfo{
		Info:     info,
		Announce: "http://tracker.example.com/announce",
		InfoHash: core.NewInfoHashFromBytes(EncodeInfoBytes(info)),
	}
}

// EncodeInfoBytes re-encodes info as the canonical bencoded "info" dict
// bytes, the exact content a ut_metadata exchange reconstructs piece by
// piece and whose SHA-1 is the torrent's info-hash.
func EncodeInfoBytes(info Info) []byte {
	return bencode.Marshal(info.encodeValue())
}
