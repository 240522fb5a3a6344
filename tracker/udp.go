package tracker

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/rand"
	"net"
	"net/url"
	"time"

	"github.com/ivanjermakov/biter/core"
)

// protocolConnID is the magic constant opening every UDP tracker session
// (BEP-15).
const protocolConnID uint64 = 0x41727101980

const (
	actionConnect  uint32 = 0
	actionAnnounce uint32 = 1
)

func announceUDP(ctx context.Context, announce string, req Request) (Response, error) {
	u, err := url.Parse(announce)
	if err != nil {
		return Response{}, fmt.Errorf("parse udp tracker url: %w", err)
	}
	if u.Port() == "" {
		return Response{}, fmt.Errorf("udp tracker url missing port: %s", announce)
	}

	conn, err := net.Dial("udp", u.Host)
	if err != nil {
		return Response{}, fmt.Errorf("dial udp tracker: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(udpReadTimeout))
	}

	connID, err := udpConnect(conn)
	if err != nil {
		return Response{}, fmt.Errorf("udp connect: %w", err)
	}

	return udpAnnounce(conn, connID, req)
}

func udpConnect(conn net.Conn) (uint64, error) {
	txID := rand.Uint32()
	var pkt [16]byte
	binary.BigEndian.PutUint64(pkt[0:8], protocolConnID)
	binary.BigEndian.PutUint32(pkt[8:12], actionConnect)
	binary.BigEndian.PutUint32(pkt[12:16], txID)

	if _, err := conn.Write(pkt[:]); err != nil {
		return 0, fmt.Errorf("write connect packet: %w", err)
	}

	resp := make([]byte, 16)
	n, err := conn.Read(resp)
	if err != nil {
		return 0, fmt.Errorf("read connect response: %w", err)
	}
	if n < 16 {
		return 0, fmt.Errorf("connect packet too short: %d bytes", n)
	}
	if binary.BigEndian.Uint32(resp[0:4]) != actionConnect {
		return 0, fmt.Errorf("connect response action mismatch")
	}
	if binary.BigEndian.Uint32(resp[4:8]) != txID {
		return 0, fmt.Errorf("connect response transaction id mismatch")
	}
	return binary.BigEndian.Uint64(resp[8:16]), nil
}

func udpAnnounce(conn net.Conn, connID uint64, req Request) (Response, error) {
	txID := rand.Uint32()
	pkt := make([]byte, 98)
	binary.BigEndian.PutUint64(pkt[0:8], connID)
	binary.BigEndian.PutUint32(pkt[8:12], actionAnnounce)
	binary.BigEndian.PutUint32(pkt[12:16], txID)
	copy(pkt[16:36], req.InfoHash.Bytes())
	copy(pkt[36:56], req.PeerID.Bytes())
	binary.BigEndian.PutUint64(pkt[56:64], 0) // downloaded
	binary.BigEndian.PutUint64(pkt[64:72], 0) // left
	binary.BigEndian.PutUint64(pkt[72:80], 0) // uploaded
	binary.BigEndian.PutUint32(pkt[80:84], udpEventCode(req.Event))
	binary.BigEndian.PutUint32(pkt[84:88], 0) // ip, unspecified
	binary.BigEndian.PutUint32(pkt[88:92], 0) // key
	binary.BigEndian.PutUint32(pkt[92:96], uint32(int32(-1)))
	binary.BigEndian.PutUint16(pkt[96:98], uint16(req.Port))

	if len(pkt) != 98 {
		return Response{}, fmt.Errorf("invariant violation: announce packet is %d bytes, not 98", len(pkt))
	}
	if _, err := conn.Write(pkt); err != nil {
		return Response{}, fmt.Errorf("write announce packet: %w", err)
	}

	resp := make([]byte, 1<<16)
	n, err := conn.Read(resp)
	if err != nil {
		return Response{}, fmt.Errorf("read announce response: %w", err)
	}
	resp = resp[:n]
	if len(resp) < 20 {
		return Response{}, fmt.Errorf("announce packet too short: %d bytes", len(resp))
	}
	if (len(resp)-20)%6 != 0 {
		return Response{}, fmt.Errorf("announce packet size %d is not 20+6N", len(resp))
	}
	if binary.BigEndian.Uint32(resp[0:4]) != actionAnnounce {
		return Response{}, fmt.Errorf("announce response action mismatch")
	}
	if binary.BigEndian.Uint32(resp[4:8]) != txID {
		return Response{}, fmt.Errorf("announce response transaction id mismatch")
	}

	numPeers := (len(resp) - 20) / 6
	peers := make([]core.PeerInfo, 0, numPeers)
	for i := 0; i < numPeers; i++ {
		off := 20 + 6*i
		peer, err := core.NewPeerInfoFromCompact(resp[off : off+6])
		if err != nil {
			return Response{}, fmt.Errorf("parse peer %d: %w", i, err)
		}
		peers = append(peers, peer)
	}

	return Response{
		Peers:    peers,
		Interval: int64(binary.BigEndian.Uint32(resp[8:12])),
	}, nil
}

func udpEventCode(e Event) uint32 {
	switch e {
	case EventCompleted:
		return 1
	case EventStarted:
		return 2
	case EventStopped:
		return 3
	default:
		return 0
	}
}

// udpReadTimeout bounds how long a single connect/announce round-trip waits
// for a reply when the caller's context carries no deadline.
const udpReadTimeout = 15 * time.Second
