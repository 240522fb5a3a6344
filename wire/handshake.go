package wire

import (
	"fmt"
	"io"

	"github.com/ivanjermakov/biter/core"
)

const (
	protocolName   = "BitTorrent protocol"
	handshakeLen   = 49 + len(protocolName)
	pstrlenByte    = byte(len(protocolName))
	infoHashOffset = 1 + len(protocolName) + 8
	peerIDOffset   = infoHashOffset + 20
)

// Handshake is the fixed 68-byte frame exchanged before any length-prefixed
// message: pstrlen, pstr, 8 reserved bytes, the 20-byte info-hash, and the
// 20-byte remote peer id.
type Handshake struct {
	Reserved [8]byte
	InfoHash core.InfoHash
	PeerID   core.PeerID
}

// WriteHandshake writes h's 68-byte wire form to w.
func WriteHandshake(w io.Writer, h Handshake) error {
	buf := make([]byte, 0, handshakeLen)
	buf = append(buf, pstrlenByte)
	buf = append(buf, protocolName...)
	buf = append(buf, h.Reserved[:]...)
	buf = append(buf, h.InfoHash.Bytes()...)
	buf = append(buf, h.PeerID.Bytes()...)
	_, err := w.Write(buf)
	return err
}

// ReadHandshake reads and validates a 68-byte handshake frame from r.
func ReadHandshake(r io.Reader) (Handshake, error) {
	buf := make([]byte, handshakeLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Handshake{}, fmt.Errorf("read handshake: %w", err)
	}
	if buf[0] != pstrlenByte {
		return Handshake{}, fmt.Errorf("invalid pstrlen: %d", buf[0])
	}
	if string(buf[1:1+len(protocolName)]) != protocolName {
		return Handshake{}, fmt.Errorf("invalid protocol string: %q", buf[1:1+len(protocolName)])
	}

	var h Handshake
	copy(h.Reserved[:], buf[1+len(protocolName):infoHashOffset])

	infoHash, err := core.NewInfoHashFromRawBytes(buf[infoHashOffset:peerIDOffset])
	if err != nil {
		return Handshake{}, err
	}
	h.InfoHash = infoHash

	peerID, err := core.NewPeerIDFromBytes(buf[peerIDOffset:handshakeLen])
	if err != nil {
		return Handshake{}, fmt.Errorf("parse peer id: %w", err)
	}
	h.PeerID = peerID

	return h, nil
}
