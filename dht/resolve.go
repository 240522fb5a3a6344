package dht

import (
	"context"
	"net"
	"time"

	"github.com/uber-go/tally"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ivanjermakov/biter/core"
)

// Config bundles the resolver's tunables, mirrored from config.Config so
// this package need not import it directly.
type Config struct {
	Chunk        int
	MinPeers     int
	QueryTimeout time.Duration

	// Stats is optional; when nil, no get_peers query counters are
	// recorded (this package's test builds its Config without Stats and
	// relies on this staying nil-safe).
	Stats tally.Scope
}

// Resolve performs the iterative BFS described by the design: drain up to
// Chunk queued nodes per round, issue parallel get_peers queries, adopt any
// discovered peer endpoints, and push any redirect nodes onto the queue
// (deduplicated), stopping once MinPeers have been found or the queue runs
// dry. Unlike the grounding source's recursive fan-out, this never spawns
// unbounded concurrent queries -- each round is capped at Chunk in flight.
func Resolve(ctx context.Context, seeds []core.PeerInfo, selfID core.PeerID, infoHash core.InfoHash, cfg Config, logger *zap.SugaredLogger) []core.PeerInfo {
	queue := dedup(seeds)
	seen := make(map[string]bool)
	for _, n := range queue {
		seen[n.Addr()] = true
	}

	var found []core.PeerInfo
	foundSeen := make(map[string]bool)

	for len(queue) > 0 && len(found) < cfg.MinPeers {
		batchSize := cfg.Chunk
		if batchSize > len(queue) {
			batchSize = len(queue)
		}
		batch := queue[:batchSize]
		queue = queue[batchSize:]

		results := queryBatch(ctx, batch, selfID, infoHash, cfg.QueryTimeout, cfg.Stats, logger)
		for _, r := range results {
			for _, v := range r.Values {
				key := v.Addr()
				if !foundSeen[key] {
					foundSeen[key] = true
					found = append(found, v)
				}
			}
			for _, n := range r.Nodes {
				key := n.Addr()
				if !seen[key] {
					seen[key] = true
					queue = append([]core.PeerInfo{n}, queue...)
				}
			}
		}
	}
	return found
}

func queryBatch(ctx context.Context, nodes []core.PeerInfo, selfID core.PeerID, infoHash core.InfoHash, timeout time.Duration, stats tally.Scope, logger *zap.SugaredLogger) []getPeersResult {
	results := make([]getPeersResult, len(nodes))
	g, gctx := errgroup.WithContext(ctx)
	for i, node := range nodes {
		i, node := i, node
		g.Go(func() error {
			r, err := queryOne(gctx, node, selfID, infoHash, timeout)
			if err != nil {
				if stats != nil {
					stats.Counter("dht.query.timeout").Inc(1)
				}
				logger.Debugw("dht query failed", "node", node, "error", err)
				return nil
			}
			if stats != nil {
				stats.Counter("dht.query.ok").Inc(1)
			}
			results[i] = r
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func queryOne(ctx context.Context, node core.PeerInfo, selfID core.PeerID, infoHash core.InfoHash, timeout time.Duration) (getPeersResult, error) {
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := net.Dial("udp", node.Addr())
	if err != nil {
		return getPeersResult{}, err
	}
	defer conn.Close()
	if deadline, ok := queryCtx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	req := encodeGetPeers(randomTxID(), selfID, infoHash)
	if _, err := conn.Write(req); err != nil {
		return getPeersResult{}, err
	}

	buf := make([]byte, 1<<16)
	n, err := conn.Read(buf)
	if err != nil {
		return getPeersResult{}, err
	}
	return decodeGetPeersResponse(buf[:n])
}

func dedup(peers []core.PeerInfo) []core.PeerInfo {
	seen := make(map[string]bool)
	var out []core.PeerInfo
	for _, p := range peers {
		key := p.Addr()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}
