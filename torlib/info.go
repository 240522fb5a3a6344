package torlib

import (
	"fmt"
	"path/filepath"

	"github.com/ivanjermakov/biter/bencode"
)

// FileEntry is one file in a torrent's file table: either the single
// synthesised entry for a single-file torrent ({length, path=name}), or one
// element of a multi-file torrent's "files" list.
type FileEntry struct {
	Length int64
	// Path is the list of path components, joined with the OS separator by
	// JoinedPath() -- kept as components so a multi-file torrent's nested
	// directories round-trip exactly as the metainfo declared them.
	Path   []string
	MD5Sum string
}

// JoinedPath returns f's path as a single OS-native relative path.
func (f FileEntry) JoinedPath() string {
	return filepath.Join(f.Path...)
}

// Info is the typed view over a metainfo's "info" subdictionary.
type Info struct {
	PieceLength int64
	Pieces      []PieceHash
	Name        string
	Files       []FileEntry
	Private     *bool
}

// TotalLength is the sum of every file's length.
func (info Info) TotalLength() int64 {
	var total int64
	for _, f := range info.Files {
		total += f.Length
	}
	return total
}

// NumPieces is the number of piece hashes declared by the metainfo.
func (info Info) NumPieces() int {
	return len(info.Pieces)
}

// ExpectedNumPieces is ceil(TotalLength / PieceLength), the piece count a
// well-formed metainfo is expected to declare. Per the design notes, a
// mismatch between this and NumPieces is a warning, not a hard failure --
// the piece hash list is authoritative either way.
func (info Info) ExpectedNumPieces() int {
	if info.PieceLength == 0 {
		return 0
	}
	return int((info.TotalLength() + info.PieceLength - 1) / info.PieceLength)
}

// PieceHashAt returns the declared hash for piece i.
func (info Info) PieceHashAt(i int) (PieceHash, error) {
	if i < 0 || i >= len(info.Pieces) {
		return PieceHash{}, fmt.Errorf("piece index %d out of range [0, %d)", i, len(info.Pieces))
	}
	return info.Pieces[i], nil
}

// encodeValue re-encodes Info as a bencode.Value dict, in canonical
// (key-sorted) form. This only round-trips bit-exact when the source dict
// carried no keys beyond the ones modeled here -- real-world info dicts
// sometimes do (source, publisher, x_cross_seed, ...), so this is only
// used for synthetic fixtures built directly from an Info, never for
// computing the info-hash of a dict this client actually parsed. For that,
// ParseMetaInfo hashes the generic parsed bencode.Value instead.
func (info Info) encodeValue() bencode.Value {
	d := map[string]bencode.Value{
		"piece length": bencode.Int(info.PieceLength),
		"pieces":       bencode.String(concatPieceHashes(info.Pieces)),
		"name":         bencode.StringFrom(info.Name),
	}
	if info.Private != nil {
		v := int64(0)
		if *info.Private {
			v = 1
		}
		d["private"] = bencode.Int(v)
	}
	if len(info.Files) == 1 && len(info.Files[0].Path) == 1 && info.Files[0].Path[0] == info.Name {
		d["length"] = bencode.Int(info.Files[0].Length)
		if info.Files[0].MD5Sum != "" {
			d["md5sum"] = bencode.StringFrom(info.Files[0].MD5Sum)
		}
	} else {
		files := make([]bencode.Value, len(info.Files))
		for i, f := range info.Files {
			path := make([]bencode.Value, len(f.Path))
			for j, c := range f.Path {
				path[j] = bencode.StringFrom(c)
			}
			fd := map[string]bencode.Value{
				"length": bencode.Int(f.Length),
				"path":   bencode.List(path),
			}
			if f.MD5Sum != "" {
				fd["md5sum"] = bencode.StringFrom(f.MD5Sum)
			}
			files[i] = bencode.Dict(fd)
		}
		d["files"] = bencode.List(files)
	}
	return bencode.Dict(d)
}

func concatPieceHashes(pieces []PieceHash) []byte {
	b := make([]byte, 0, len(pieces)*20)
	for _, p := range pieces {
		b = append(b, p.Bytes()...)
	}
	return b
}

func parseInfo(v bencode.Value) (Info, error) {
	d, ok := v.Dict()
	if !ok {
		return Info{}, fmt.Errorf("'info' is not a dict")
	}

	pieceLength, ok := getInt(d, "piece length")
	if !ok {
		return Info{}, fmt.Errorf("'info.piece length' missing or not an int")
	}

	piecesRaw, ok := getStr(d, "pieces")
	if !ok {
		return Info{}, fmt.Errorf("'info.pieces' missing or not a string")
	}
	if len(piecesRaw)%20 != 0 {
		return Info{}, fmt.Errorf("'info.pieces' length %d is not a multiple of 20", len(piecesRaw))
	}
	pieces := make([]PieceHash, 0, len(piecesRaw)/20)
	for i := 0; i+20 <= len(piecesRaw); i += 20 {
		pieces = append(pieces, PieceHashFromBytes(piecesRaw[i:i+20]))
	}

	name, ok := getStr(d, "name")
	if !ok {
		return Info{}, fmt.Errorf("'info.name' missing or not a string")
	}

	var private *bool
	if pv, ok := d["private"]; ok {
		if n, ok := pv.Int(); ok {
			b := n == 1
			private = &b
		}
	}

	var files []FileEntry
	if filesVal, ok := d["files"]; ok {
		list, ok := filesVal.List()
		if !ok {
			return Info{}, fmt.Errorf("'info.files' is not a list")
		}
		for _, fv := range list {
			fe, err := parseFileEntry(fv)
			if err != nil {
				return Info{}, fmt.Errorf("parse file entry: %w", err)
			}
			files = append(files, fe)
		}
	} else {
		length, ok := getInt(d, "length")
		if !ok {
			return Info{}, fmt.Errorf("'info.length' missing or not an int (single-file torrent)")
		}
		md5 := ""
		if s, ok := getStr(d, "md5sum"); ok {
			md5 = string(s)
		}
		files = []FileEntry{{Length: length, Path: []string{string(name)}, MD5Sum: md5}}
	}

	return Info{
		PieceLength: pieceLength,
		Pieces:      pieces,
		Name:        string(name),
		Files:       files,
		Private:     private,
	}, nil
}

func parseFileEntry(v bencode.Value) (FileEntry, error) {
	d, ok := v.Dict()
	if !ok {
		return FileEntry{}, fmt.Errorf("file entry is not a dict")
	}
	length, ok := getInt(d, "length")
	if !ok {
		return FileEntry{}, fmt.Errorf("'length' missing or not an int")
	}
	pathList, ok := d["path"]
	if !ok {
		return FileEntry{}, fmt.Errorf("'path' missing")
	}
	items, ok := pathList.List()
	if !ok {
		return FileEntry{}, fmt.Errorf("'path' is not a list")
	}
	path := make([]string, len(items))
	for i, it := range items {
		s, ok := it.Str()
		if !ok {
			return FileEntry{}, fmt.Errorf("'path' element %d is not a string", i)
		}
		path[i] = string(s)
	}
	md5 := ""
	if s, ok := getStr(d, "md5sum"); ok {
		md5 = string(s)
	}
	return FileEntry{Length: length, Path: path, MD5Sum: md5}, nil
}

func getStr(d map[string]bencode.Value, key string) ([]byte, bool) {
	v, ok := d[key]
	if !ok {
		return nil, false
	}
	return v.Str()
}

func getInt(d map[string]bencode.Value, key string) (int64, bool) {
	v, ok := d[key]
	if !ok {
		return 0, false
	}
	return v.Int()
}
