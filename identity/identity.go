// Package identity persists the two pieces of state a run should not have
// to rediscover on every process start: this client's own peer id (BEP-20
// recommends keeping it stable so trackers and peers can recognise repeat
// visits) and the last known set of responsive DHT peers, used to seed the
// next run's resolution instead of starting from nothing.
//
// The grounding source has nothing that persists process-local state to a
// JSON file on disk -- its state lives in origin/tracker storage backends,
// not the agent. This package is grounded loosely on the same file package's
// write-then-rename discipline (client/store/base/local_file_entry_internal.go
// creates into a temp location before the entry is visible under its real
// name) adapted to a single small file instead of a sharded blob store.
package identity

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/ivanjermakov/biter/core"
	"github.com/ivanjermakov/biter/errs"
)

// State is the on-disk persisted record, one per torrent run's config path.
type State struct {
	PeerIDHex string   `json:"peer_id"`
	DHTPeers  []string `json:"dht_peers,omitempty"`
}

// Load reads path and decodes it into a State. A missing file is not an
// error: it reports a zero State so the caller can generate a fresh peer id.
func Load(path string) (State, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return State{}, nil
	}
	if err != nil {
		return State{}, &errs.IOError{Path: path, Err: err}
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return State{}, &errs.IOError{Path: path, Err: err}
	}
	return st, nil
}

// Save writes st to path, replacing any existing file atomically: it writes
// to a sibling temp file first and renames over the target, so a crash
// mid-write never leaves a half-written state file behind.
func Save(path string, st State) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &errs.IOError{Path: path, Err: err}
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return &errs.IOError{Path: path, Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return &errs.IOError{Path: path, Err: err}
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &errs.IOError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &errs.IOError{Path: path, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return &errs.IOError{Path: path, Err: err}
	}
	return nil
}

// PeerID returns st's stored peer id, or the zero id and ok=false if none is
// stored yet or it fails to parse. It generates no id itself.
func (st State) PeerID() (id core.PeerID, ok bool) {
	if st.PeerIDHex == "" {
		return core.PeerID{}, false
	}
	id, err := core.NewPeerID(st.PeerIDHex)
	if err != nil {
		return core.PeerID{}, false
	}
	return id, true
}

// WithPeerID returns a copy of st carrying id as its persisted peer id.
func (st State) WithPeerID(id core.PeerID) State {
	st.PeerIDHex = id.String()
	return st
}

// WithDHTPeers returns a copy of st carrying addrs as its persisted DHT
// seed list, replacing any prior one.
func (st State) WithDHTPeers(addrs []string) State {
	st.DHTPeers = addrs
	return st
}
