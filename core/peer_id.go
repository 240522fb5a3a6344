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
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// clientTag and clientVersion make up the Azureus-style prefix of every
// PeerID this client generates: "-XX0000-" followed by 12 random printable
// ASCII characters.
const (
	clientTag     = "XX"
	clientVersion = "0000"
	idAlphabet    = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// PeerID represents a fixed size peer id, as sent in the handshake frame and
// to the tracker.
type PeerID [20]byte

// NewPeerID parses a PeerID from the given string. Must be in hexadecimal
// notation, encoding exactly 20 bytes.
func NewPeerID(s string) (PeerID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return PeerID{}, fmt.Errorf("parse peer id: %s", err)
	}
	return NewPeerIDFromBytes(b)
}

// NewPeerIDFromBytes wraps a raw 20-byte peer id.
func NewPeerIDFromBytes(b []byte) (PeerID, error) {
	if len(b) != 20 {
		return PeerID{}, fmt.Errorf("invalid peer id length: expected 20 bytes, got %d", len(b))
	}
	var p PeerID
	copy(p[:], b)
	return p, nil
}

func (p PeerID) String() string {
	return hex.EncodeToString(p[:])
}

// Bytes returns the raw 20 bytes of p.
func (p PeerID) Bytes() []byte {
	return p[:]
}

// LessThan returns whether p is less than o. Used to give the peer set a
// stable iteration order in tests and logs.
func (p PeerID) LessThan(o PeerID) bool {
	return bytes.Compare(p[:], o[:]) < 0
}

// GenerateAzureusPeerID returns a fresh Azureus-style peer id: "-XX0000-"
// followed by 12 random ASCII characters from idAlphabet.
func GenerateAzureusPeerID() (PeerID, error) {
	prefix := fmt.Sprintf("-%s%s-", clientTag, clientVersion)
	if len(prefix) != 8 {
		panic("invariant violation: azureus prefix must be exactly 8 bytes")
	}
	suffix := make([]byte, 20-len(prefix))
	idx := make([]byte, len(suffix))
	if _, err := rand.Read(idx); err != nil {
		return PeerID{}, fmt.Errorf("read random suffix: %w", err)
	}
	for i, b := range idx {
		suffix[i] = idAlphabet[int(b)%len(idAlphabet)]
	}

	var p PeerID
	copy(p[:], prefix)
	copy(p[len(prefix):], suffix)
	return p, nil
}
