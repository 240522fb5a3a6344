package store

import (
	"github.com/willf/bitset"

	"github.com/ivanjermakov/biter/core"
)

// PeerStatus is a peer's connection lifecycle within this run.
type PeerStatus int

const (
	PeerDisconnected PeerStatus = iota
	PeerConnected
	PeerDone
)

func (s PeerStatus) String() string {
	switch s {
	case PeerDisconnected:
		return "disconnected"
	case PeerConnected:
		return "connected"
	case PeerDone:
		return "done"
	default:
		return "unknown"
	}
}

// Peer is one swarm member known to this run, discovered via tracker, DHT,
// or the Port message of another session.
type Peer struct {
	Info core.PeerInfo

	Status      PeerStatus
	Choked      bool
	Interested  bool
	DHTPort     *int
	ExtensionID map[string]uint8
	// Bitfield records the pieces the peer has announced holding, either via
	// its initial Bitfield message or accumulated Have messages. Nil until
	// the peer has sent either.
	Bitfield *bitset.BitSet
}

// newPeer constructs a freshly discovered peer, not yet connected.
func newPeer(info core.PeerInfo) *Peer {
	return &Peer{
		Info:        info,
		Status:      PeerDisconnected,
		Choked:      true,
		ExtensionID: make(map[string]uint8),
	}
}
