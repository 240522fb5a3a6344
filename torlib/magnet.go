package torlib

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ivanjermakov/biter/core"
)

// Magnet is the parsed form of a "magnet:?xt=urn:btih:..." URI. Per BEP-9
// the metainfo itself is unknown at this point -- only the info-hash and,
// optionally, a display name and a seed list of trackers are available
// until the ut_metadata extension (C8) reconstructs the full info dict.
type Magnet struct {
	InfoHash     core.InfoHash
	DisplayName  string
	AnnounceList AnnounceList
}

// ParseMagnet parses a magnet URI. Only "xt=urn:btih:<hex>" is required; an
// optional "dn" supplies a display name to use before the real metainfo
// name is known, and any number of "tr" parameters seed the tracker list
// (the spec's announce-list) before the reconstructed metainfo can supply
// its own.
func ParseMagnet(uri string) (*Magnet, error) {
	if !strings.HasPrefix(uri, "magnet:?") {
		return nil, fmt.Errorf("not a magnet uri: %q", uri)
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parse magnet uri: %w", err)
	}
	q := u.Query()

	xt := q.Get("xt")
	if xt == "" {
		return nil, fmt.Errorf("magnet uri missing 'xt' parameter")
	}
	const prefix = "urn:btih:"
	if !strings.HasPrefix(xt, prefix) {
		return nil, fmt.Errorf("unsupported magnet 'xt' urn: %q", xt)
	}
	hash := strings.TrimPrefix(xt, prefix)
	infoHash, err := core.NewInfoHashFromHex(strings.ToLower(hash))
	if err != nil {
		return nil, fmt.Errorf("magnet info hash: %w", err)
	}

	m := &Magnet{
		InfoHash:    infoHash,
		DisplayName: q.Get("dn"),
	}
	if trs := q["tr"]; len(trs) > 0 {
		m.AnnounceList = AnnounceList{trs}
	}
	return m, nil
}
