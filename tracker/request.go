// Package tracker implements the HTTP and UDP tracker announce protocols
// (BEP-3 and BEP-15) plus the periodic re-announce loop that keeps a
// store.Store's peer set fresh.
package tracker

import (
	"net/url"
	"strconv"

	"github.com/ivanjermakov/biter/core"
)

// Event is the announce lifecycle event, omitted on periodic re-announces.
type Event int

const (
	EventNone Event = iota
	EventStarted
	EventStopped
	EventCompleted
)

func (e Event) String() string {
	switch e {
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	case EventCompleted:
		return "completed"
	default:
		return ""
	}
}

// Request is the set of announce parameters sent to a tracker. Uploaded,
// downloaded and left are always 0: this client does not seed and does not
// track partial-file resume state (both non-goals).
type Request struct {
	InfoHash  core.InfoHash
	PeerID    core.PeerID
	Port      int
	Event     Event
	TrackerID string // Echoed back from a prior response, if any.
}

// httpParams returns the request's HTTP query parameters, holding the raw
// info-hash and peer-id bytes; url.Values.Encode percent-encodes them as
// BEP-3 requires.
func (r Request) httpParams() url.Values {
	v := url.Values{}
	v.Set("info_hash", string(r.InfoHash.Bytes()))
	v.Set("peer_id", string(r.PeerID.Bytes()))
	v.Set("port", strconv.Itoa(r.Port))
	v.Set("uploaded", "0")
	v.Set("downloaded", "0")
	v.Set("left", "0")
	v.Set("compact", "0")
	v.Set("no_peer_id", "0")
	if r.Event != EventNone {
		v.Set("event", r.Event.String())
	}
	if r.TrackerID != "" {
		v.Set("tracker_id", r.TrackerID)
	}
	return v
}
