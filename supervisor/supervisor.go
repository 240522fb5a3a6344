// Package supervisor implements the download supervisor (C10): it owns the
// shared store for the lifetime of one torrent run, drives metainfo
// acquisition, tracker and DHT discovery, and the peer reconnect loop, and
// persists identity state on the way out. It plays the same top-level
// orchestration role the grounding source's lib/torrent/scheduler.Scheduler
// plays for a swarm of torrents, narrowed here to exactly one.
package supervisor

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ivanjermakov/biter/config"
	"github.com/ivanjermakov/biter/core"
	"github.com/ivanjermakov/biter/dht"
	"github.com/ivanjermakov/biter/errs"
	"github.com/ivanjermakov/biter/filewriter"
	"github.com/ivanjermakov/biter/identity"
	"github.com/ivanjermakov/biter/session"
	"github.com/ivanjermakov/biter/store"
	"github.com/ivanjermakov/biter/torlib"
	"github.com/ivanjermakov/biter/tracker"
)

// Target is either a fully-known torrent or a magnet link awaiting metainfo
// reconstruction (C8); exactly one of MetaInfo/Magnet is set.
type Target struct {
	MetaInfo *torlib.MetaInfo
	Magnet   *torlib.Magnet
}

// Supervisor drives exactly one torrent run from identity load through
// completion and final state persistence.
type Supervisor struct {
	cfg       config.Config
	logger    *zap.SugaredLogger
	stats     tally.Scope
	clk       clock.Clock
	writer    *filewriter.Writer
	statePath string

	st            *store.Store
	announceList  torlib.AnnounceList
	magnetID      *core.InfoHash
	selfID        core.PeerID
	priorDHTSeeds []core.PeerInfo // from a prior run's persisted identity state

	sessionsMu sync.Mutex
	active     map[string]bool // peer addr -> a session task is currently running for it
}

// New constructs a Supervisor for target, loading (or generating) this
// run's persistent identity from cfg.StateFilePath.
func New(cfg config.Config, target Target, logger *zap.SugaredLogger, stats tally.Scope, clk clock.Clock) (*Supervisor, error) {
	if (target.MetaInfo == nil) == (target.Magnet == nil) {
		return nil, &errs.ConfigError{Reason: "exactly one of metainfo or magnet must be supplied"}
	}

	idState, err := identity.Load(cfg.StateFilePath)
	if err != nil {
		return nil, err
	}
	selfID, ok := idState.PeerID()
	if !ok {
		selfID, err = core.GenerateAzureusPeerID()
		if err != nil {
			return nil, fmt.Errorf("generate peer id: %w", err)
		}
	}

	var infoHash core.InfoHash
	var info *torlib.Info
	var announceList torlib.AnnounceList
	var magnetID *core.InfoHash

	if target.MetaInfo != nil {
		infoHash = target.MetaInfo.InfoHash
		info = &target.MetaInfo.Info
		announceList = target.MetaInfo.AnnounceTiers()
	} else {
		infoHash = target.Magnet.InfoHash
		announceList = target.Magnet.AnnounceList
		magnetID = &target.Magnet.InfoHash
	}

	st, err := store.New(infoHash, selfID, info, logger, stats)
	if err != nil {
		return nil, fmt.Errorf("construct store: %w", err)
	}

	return &Supervisor{
		cfg:           cfg,
		logger:        logger,
		stats:         stats,
		clk:           clk,
		writer:        filewriter.New(cfg.DownloadRoot, logger),
		statePath:     cfg.StateFilePath,
		st:            st,
		announceList:  announceList,
		magnetID:      magnetID,
		selfID:        selfID,
		priorDHTSeeds: parsePeerAddrs(idState.DHTPeers),
		active:        make(map[string]bool),
	}, nil
}

// parsePeerAddrs turns persisted "ip:port" strings back into PeerInfo,
// silently skipping any that no longer parse (a state file is advisory,
// never load-bearing for correctness).
func parsePeerAddrs(addrs []string) []core.PeerInfo {
	var out []core.PeerInfo
	for _, a := range addrs {
		host, portStr, err := net.SplitHostPort(a)
		if err != nil {
			continue
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			continue
		}
		out = append(out, core.NewPeerInfo(host, port))
	}
	return out
}

// Store exposes the run's shared state, mainly for tests and callers that
// want to report progress.
func (sp *Supervisor) Store() *store.Store { return sp.st }

// Run drives the torrent to completion per the design's numbered sequence,
// persisting identity state on every exit path, success or failure.
func (sp *Supervisor) Run(ctx context.Context) (err error) {
	defer func() {
		if saveErr := sp.saveIdentity(); saveErr != nil {
			err = multierr.Append(err, saveErr)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	dhtPeers := sp.resolveDHT(runCtx)
	sp.st.MergePeers(dhtPeers)

	req := tracker.Request{
		InfoHash: sp.st.InfoHash(),
		PeerID:   sp.selfID,
		Port:     sp.cfg.Port,
		Event:    tracker.EventStarted,
	}

	reannounceURL := ""
	initialInterval := int64(0)
	if len(sp.announceList) > 0 {
		resp, announceErr := tracker.AnnounceTiers(runCtx, sp.announceList, req, sp.stats, sp.logger)
		if announceErr != nil {
			sp.logger.Warnw("every tracker tier failed, continuing DHT-only", "error", announceErr)
		} else {
			added := sp.st.MergePeers(resp.Peers)
			sp.logger.Infow("initial announce complete", "new_peers", added)
			reannounceURL = firstURL(sp.announceList)
			initialInterval = int64(resp.Interval)
			req.TrackerID = resp.TrackerID
		}
	} else {
		sp.logger.Infow("no trackers configured, running DHT-only")
	}

	var wg sync.WaitGroup
	if reannounceURL != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Loop(runCtx, reannounceURL, req, initialInterval, sp.st.MergePeers, sp.clk, sp.stats, sp.logger)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		sp.dhtSeedLoop(runCtx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sp.reconnectLoop(runCtx)
	}()

	sp.waitUntilDownloaded(runCtx)
	cancel()
	wg.Wait()

	if !sp.st.AllSaved() {
		return &errs.IOError{Path: sp.cfg.DownloadRoot, Err: fmt.Errorf("run ended before every piece was saved")}
	}
	return nil
}

func firstURL(tiers torlib.AnnounceList) string {
	for _, tier := range tiers {
		if len(tier) > 0 {
			return tier[0]
		}
	}
	return ""
}

// resolveDHT seeds the resolver from any peers the identity store
// remembers from a prior run; a run with no prior DHT history simply
// starts the swarm from tracker peers alone.
func (sp *Supervisor) resolveDHT(ctx context.Context) []core.PeerInfo {
	if len(sp.priorDHTSeeds) == 0 {
		return nil
	}
	return dht.Resolve(ctx, sp.priorDHTSeeds, sp.selfID, sp.st.InfoHash(), dht.Config{
		Chunk:        sp.cfg.DHTChunk,
		MinPeers:     sp.cfg.DHTMinPeers,
		QueryTimeout: sp.cfg.DHTQueryTimeout,
		Stats:        sp.stats,
	}, sp.logger)
}

// dhtSeedLoop periodically re-resolves the DHT using peers discovered so
// far (via their advertised dht_port) as the next round's seed set,
// folding any newly discovered peers back into the store.
func (sp *Supervisor) dhtSeedLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sp.clk.After(sp.cfg.DownloadedCheckWait * 5):
		}
		seeds := sp.st.DHTSeedPeers()
		if len(seeds) == 0 {
			continue
		}
		found := dht.Resolve(ctx, seeds, sp.selfID, sp.st.InfoHash(), dht.Config{
			Chunk:        sp.cfg.DHTChunk,
			MinPeers:     sp.cfg.DHTMinPeers,
			QueryTimeout: sp.cfg.DHTQueryTimeout,
			Stats:        sp.stats,
		}, sp.logger)
		added := sp.st.MergePeers(found)
		if added > 0 {
			sp.logger.Infow("dht seed round complete", "new_peers", added)
		}
	}
}

// reconnectLoop spawns one session task per Disconnected peer every
// reconnect_wait, skipping any peer that already has a task in flight.
func (sp *Supervisor) reconnectLoop(ctx context.Context) {
	for {
		sp.spawnDisconnected(ctx)
		select {
		case <-ctx.Done():
			return
		case <-sp.clk.After(sp.cfg.ReconnectWait):
		}
	}
}

func (sp *Supervisor) spawnDisconnected(ctx context.Context) {
	for _, p := range sp.st.PeersByStatus(store.PeerDisconnected) {
		addr := p.Info.Addr()

		sp.sessionsMu.Lock()
		if sp.active[addr] {
			sp.sessionsMu.Unlock()
			continue
		}
		sp.active[addr] = true
		sp.sessionsMu.Unlock()

		peer := p.Info
		go func() {
			defer func() {
				sp.sessionsMu.Lock()
				delete(sp.active, addr)
				sp.sessionsMu.Unlock()
			}()
			sess := session.New(peer, sp.st, sp.cfg, sp.clk, sp.logger, sp.magnetID)
			sess.SetWriter(sp.writer)
			if err := sess.Run(ctx); err != nil {
				sp.logger.Debugw("peer session ended", "peer", peer.Addr(), "error", err)
			}
		}()
	}
}

// waitUntilDownloaded polls the store at downloaded_check_wait until every
// piece is Saved or ctx is cancelled.
func (sp *Supervisor) waitUntilDownloaded(ctx context.Context) {
	for {
		if sp.st.Status() != store.StatusMetainfo && sp.st.AllSaved() {
			sp.st.MarkDownloaded()
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-sp.clk.After(sp.cfg.DownloadedCheckWait):
		}
	}
}

func (sp *Supervisor) saveIdentity() error {
	addrs := make([]string, 0)
	for _, p := range sp.st.DHTSeedPeers() {
		addrs = append(addrs, p.Addr())
	}
	st := identity.State{}.WithPeerID(sp.selfID).WithDHTPeers(addrs)
	return identity.Save(sp.statePath, st)
}
