// Package dht implements the client side of BEP-5's get_peers query: an
// iterative breadth-first search over a queue of known nodes, issued as
// one-shot UDP KRPC queries. This client holds no routing table and runs no
// listening DHT socket -- it only ever originates outbound get_peers
// queries.
package dht

import (
	"fmt"
	"math/rand"

	"github.com/ivanjermakov/biter/bencode"
	"github.com/ivanjermakov/biter/core"
)

const txIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomTxID() string {
	b := make([]byte, 2)
	for i := range b {
		b[i] = txIDAlphabet[rand.Intn(len(txIDAlphabet))]
	}
	return string(b)
}

// encodeGetPeers builds the KRPC get_peers query dict.
func encodeGetPeers(txID string, selfID core.PeerID, infoHash core.InfoHash) []byte {
	return bencode.Marshal(bencode.Dict(map[string]bencode.Value{
		"t": bencode.StringFrom(txID),
		"y": bencode.StringFrom("q"),
		"q": bencode.StringFrom("get_peers"),
		"a": bencode.Dict(map[string]bencode.Value{
			"id":        bencode.String(selfID.Bytes()),
			"info_hash": bencode.String(infoHash.Bytes()),
		}),
	}))
}

// getPeersResult is the decoded payload of a get_peers reply: either a
// direct hit (Values) or a redirect to closer nodes (Nodes), per BEP-5.
type getPeersResult struct {
	Values []core.PeerInfo
	Nodes  []core.PeerInfo
}

func decodeGetPeersResponse(raw []byte) (getPeersResult, error) {
	v, _, err := bencode.DecodeBytes(raw)
	if err != nil {
		return getPeersResult{}, fmt.Errorf("decode krpc response: %w", err)
	}
	root, ok := v.Dict()
	if !ok {
		return getPeersResult{}, fmt.Errorf("krpc response is not a dict")
	}
	if y, ok := root["y"]; ok {
		if s, ok := y.Str(); ok && string(s) == "e" {
			return getPeersResult{}, fmt.Errorf("krpc error response: %v", root["e"])
		}
	}
	rVal, ok := root["r"]
	if !ok {
		return getPeersResult{}, fmt.Errorf("krpc response missing 'r'")
	}
	r, ok := rVal.Dict()
	if !ok {
		return getPeersResult{}, fmt.Errorf("krpc 'r' is not a dict")
	}

	var result getPeersResult
	if valuesVal, ok := r["values"]; ok {
		list, ok := valuesVal.List()
		if !ok {
			return getPeersResult{}, fmt.Errorf("krpc 'values' is not a list")
		}
		for _, item := range list {
			s, ok := item.Str()
			if !ok || len(s) != 6 {
				continue
			}
			peer, err := core.NewPeerInfoFromCompact(s)
			if err != nil {
				continue
			}
			result.Values = append(result.Values, peer)
		}
	}
	if nodesVal, ok := r["nodes"]; ok {
		s, ok := nodesVal.Str()
		if ok {
			for i := 0; i+6 <= len(s); i += 6 {
				peer, err := core.NewPeerInfoFromCompact(s[i : i+6])
				if err != nil {
					continue
				}
				result.Nodes = append(result.Nodes, peer)
			}
		}
	}
	return result, nil
}
