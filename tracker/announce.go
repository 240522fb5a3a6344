package tracker

import (
	"context"
	"fmt"
	"strings"
)

// Announce issues a single announce against one tracker URL, dispatching to
// the HTTP or UDP implementation by URL scheme.
func Announce(ctx context.Context, announceURL string, req Request) (Response, error) {
	switch {
	case strings.HasPrefix(announceURL, "http"):
		return announceHTTP(ctx, announceURL, req)
	case strings.HasPrefix(announceURL, "udp"):
		return announceUDP(ctx, announceURL, req)
	default:
		return Response{}, fmt.Errorf("unsupported tracker url scheme: %s", announceURL)
	}
}
