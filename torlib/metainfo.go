package torlib

import (
	"fmt"
	"io"

	"github.com/ivanjermakov/biter/bencode"
	"github.com/ivanjermakov/biter/core"
)

// AnnounceList is a list of tracker tiers: within a tier, try each URL until
// one succeeds; on a tier's full failure, fall through to the next tier.
type AnnounceList [][]string

// MetaInfo is the typed view over a parsed metainfo dict.
type MetaInfo struct {
	Info         Info
	Announce     string
	AnnounceList AnnounceList
	CreationDate int64
	Comment      string
	CreatedBy    string
	Encoding     string

	// InfoHash is computed once from Info and cached here so callers never
	// need to re-encode and re-hash the info dict.
	InfoHash core.InfoHash
}

// ParseMetaInfo builds a MetaInfo from an already-decoded root bencode
// value.
func ParseMetaInfo(v bencode.Value) (*MetaInfo, error) {
	root, ok := v.Dict()
	if !ok {
		return nil, fmt.Errorf("metainfo is not a dict")
	}

	infoVal, ok := root["info"]
	if !ok {
		return nil, fmt.Errorf("'info' key missing")
	}
	info, err := parseInfo(infoVal)
	if err != nil {
		return nil, fmt.Errorf("parse info: %w", err)
	}

	announce := ""
	if s, ok := getStr(root, "announce"); ok {
		announce = string(s)
	}

	var announceList AnnounceList
	if alVal, ok := root["announce-list"]; ok {
		tiers, ok := alVal.List()
		if !ok {
			return nil, fmt.Errorf("'announce-list' is not a list")
		}
		for _, tierVal := range tiers {
			urls, ok := tierVal.List()
			if !ok {
				continue
			}
			tier := make([]string, 0, len(urls))
			for _, u := range urls {
				if s, ok := u.Str(); ok {
					tier = append(tier, string(s))
				}
			}
			if len(tier) > 0 {
				announceList = append(announceList, tier)
			}
		}
	}

	mi := &MetaInfo{
		Info:         info,
		Announce:     announce,
		AnnounceList: announceList,
	}
	if n, ok := getInt(root, "creation date"); ok {
		mi.CreationDate = n
	}
	if s, ok := getStr(root, "comment"); ok {
		mi.Comment = string(s)
	}
	if s, ok := getStr(root, "created by"); ok {
		mi.CreatedBy = string(s)
	}
	if s, ok := getStr(root, "encoding"); ok {
		mi.Encoding = string(s)
	}

	// Hash the generic parsed value, not the typed Info re-encoding: an
	// info dict can carry keys this model doesn't know about (source,
	// publisher, x_cross_seed, ...) and parseInfo doesn't reject them, so
	// re-encoding only the modeled fields would silently drop them and
	// produce the wrong hash. infoVal is exactly the bytes the tracker and
	// every peer hashed.
	mi.InfoHash = core.NewInfoHashFromBytes(bencode.Marshal(infoVal))

	return mi, nil
}

// ParseMetaInfoReader decodes and parses a metainfo file from r.
func ParseMetaInfoReader(r io.Reader) (*MetaInfo, error) {
	v, err := bencode.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode metainfo: %w", err)
	}
	return ParseMetaInfo(v)
}

// ParseMetaInfoBytes decodes and parses a metainfo file held entirely in
// memory.
func ParseMetaInfoBytes(b []byte) (*MetaInfo, error) {
	v, tail, err := bencode.DecodeBytes(b)
	if err != nil {
		return nil, fmt.Errorf("decode metainfo: %w", err)
	}
	if len(tail) != 0 {
		return nil, fmt.Errorf("trailing data after metainfo: %d bytes", len(tail))
	}
	return ParseMetaInfo(v)
}

// Name returns the torrent's name, used as the top-level download directory
// for both single-file and multi-file torrents.
func (mi *MetaInfo) Name() string {
	return mi.Info.Name
}

// AnnounceTiers returns the tracker tiers to iterate, in priority order.
// When the metainfo carries no announce-list, the single "announce" URL is
// treated as a one-element, one-tracker tier list.
func (mi *MetaInfo) AnnounceTiers() AnnounceList {
	if len(mi.AnnounceList) > 0 {
		return mi.AnnounceList
	}
	if mi.Announce == "" {
		return nil
	}
	return AnnounceList{{mi.Announce}}
}

// PieceCountMismatch reports whether the declared piece hash count disagrees
// with what the file lengths imply. Per the design notes this is logged as
// a warning by the caller, never treated as fatal -- the hash list itself
// remains authoritative.
func (mi *MetaInfo) PieceCountMismatch() bool {
	return mi.Info.NumPieces() != mi.Info.ExpectedNumPieces()
}
