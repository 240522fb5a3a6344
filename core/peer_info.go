// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package core

import (
	"fmt"
	"net"
	"sort"
	"strconv"
)

// PeerInfo is the addressing identity of a remote peer: an (ip, port) pair.
// Equality and ordering are purely structural over the pair, which is what
// lets it serve as a map key in the shared piece/block store -- peers are
// looked up and deduplicated by address alone, never by a pointer or a
// peer id the remote reports in its handshake.
type PeerInfo struct {
	IP   string
	Port int
}

// NewPeerInfo creates a PeerInfo from an ip/port pair.
func NewPeerInfo(ip string, port int) PeerInfo {
	return PeerInfo{IP: ip, Port: port}
}

// NewPeerInfoFromCompact parses a 6-byte compact peer endpoint, as used by
// BEP-23 compact tracker responses, BEP-15 UDP tracker announces, and DHT
// get_peers "values" and "nodes" entries: 4 bytes of big-endian IPv4 address
// followed by 2 bytes of big-endian port.
func NewPeerInfoFromCompact(b []byte) (PeerInfo, error) {
	if len(b) != 6 {
		return PeerInfo{}, fmt.Errorf("invalid compact peer length: expected 6 bytes, got %d", len(b))
	}
	ip := net.IPv4(b[0], b[1], b[2], b[3]).String()
	port := int(b[4])<<8 | int(b[5])
	return PeerInfo{IP: ip, Port: port}, nil
}

// Addr returns the "ip:port" dial address for p.
func (p PeerInfo) Addr() string {
	return net.JoinHostPort(p.IP, strconv.Itoa(p.Port))
}

func (p PeerInfo) String() string {
	return p.Addr()
}

// LessThan gives PeerInfo a stable ordering for sorted iteration in logs and
// tests.
func (p PeerInfo) LessThan(o PeerInfo) bool {
	if p.IP != o.IP {
		return p.IP < o.IP
	}
	return p.Port < o.Port
}

// SortedPeerInfos returns a copy of peers sorted by (ip, port).
func SortedPeerInfos(peers []PeerInfo) []PeerInfo {
	c := make([]PeerInfo, len(peers))
	copy(c, peers)
	sort.Slice(c, func(i, j int) bool { return c[i].LessThan(c[j]) })
	return c
}
