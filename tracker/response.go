package tracker

import (
	"fmt"

	"github.com/ivanjermakov/biter/bencode"
	"github.com/ivanjermakov/biter/core"
)

// Response is the parsed result of an announce, HTTP or UDP alike. A
// failure carries only FailureReason; a success carries the rest.
type Response struct {
	FailureReason string

	Peers          []core.PeerInfo
	Interval       int64
	WarningMessage string
	MinInterval    int64
	TrackerID      string
	Complete       int64
	Incomplete     int64
}

// IsFailure reports whether the tracker returned a failure_reason instead of
// a peer list.
func (r Response) IsFailure() bool {
	return r.FailureReason != ""
}

// parseHTTPResponse decodes a bencoded HTTP tracker response body.
func parseHTTPResponse(body []byte) (Response, error) {
	v, _, err := bencode.DecodeBytes(body)
	if err != nil {
		return Response{}, fmt.Errorf("decode tracker response: %w", err)
	}
	d, ok := v.Dict()
	if !ok {
		return Response{}, fmt.Errorf("tracker response is not a dict")
	}

	if reason, ok := d["failure_reason"]; ok {
		s, ok := reason.Str()
		if !ok {
			return Response{}, fmt.Errorf("'failure_reason' is not a string")
		}
		return Response{FailureReason: string(s)}, nil
	}

	peersVal, ok := d["peers"]
	if !ok {
		return Response{}, fmt.Errorf("tracker response missing 'peers'")
	}
	peerList, ok := peersVal.List()
	if !ok {
		return Response{}, fmt.Errorf("'peers' is not a list")
	}
	peers := make([]core.PeerInfo, 0, len(peerList))
	for _, pv := range peerList {
		pd, ok := pv.Dict()
		if !ok {
			return Response{}, fmt.Errorf("peer entry is not a dict")
		}
		ip, ok := pd["ip"]
		if !ok {
			return Response{}, fmt.Errorf("peer entry missing 'ip'")
		}
		ipStr, ok := ip.Str()
		if !ok {
			return Response{}, fmt.Errorf("peer 'ip' is not a string")
		}
		port, ok := pd["port"]
		if !ok {
			return Response{}, fmt.Errorf("peer entry missing 'port'")
		}
		portNum, ok := port.Int()
		if !ok {
			return Response{}, fmt.Errorf("peer 'port' is not an int")
		}
		peers = append(peers, core.NewPeerInfo(string(ipStr), int(portNum)))
	}

	resp := Response{Peers: peers}
	interval, ok := d["interval"]
	if !ok {
		return Response{}, fmt.Errorf("tracker response missing 'interval'")
	}
	n, ok := interval.Int()
	if !ok {
		return Response{}, fmt.Errorf("'interval' is not an int")
	}
	resp.Interval = n

	if warn, ok := d["warning_message"]; ok {
		if s, ok := warn.Str(); ok {
			resp.WarningMessage = string(s)
		}
	}
	if mi, ok := d["min_interval"]; ok {
		if n, ok := mi.Int(); ok {
			resp.MinInterval = n
		}
	}
	if tid, ok := d["tracker id"]; ok {
		if s, ok := tid.Str(); ok {
			resp.TrackerID = string(s)
		}
	}
	if c, ok := d["complete"]; ok {
		if n, ok := c.Int(); ok {
			resp.Complete = n
		}
	}
	if ic, ok := d["incomplete"]; ok {
		if n, ok := ic.Int(); ok {
			resp.Incomplete = n
		}
	}
	return resp, nil
}
