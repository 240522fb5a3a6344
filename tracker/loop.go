package tracker

import (
	"context"
	"time"

	"github.com/andres-erbsen/clock"
	backoff "github.com/cenkalti/backoff"
	"github.com/uber-go/tally"
	"go.uber.org/zap"

	"github.com/ivanjermakov/biter/core"
	"github.com/ivanjermakov/biter/torlib"
)

// PeerSink receives peers discovered by an announce. store.Store.MergePeers
// satisfies this signature.
type PeerSink func(peers []core.PeerInfo) int

// AnnounceTiers issues req against the tiers in order: within a tier, each
// URL is retried with backoff before moving to the next URL; a tier fails
// only once every URL in it has failed, at which point the next tier is
// tried. Returns the first successful response and the tracker id to echo
// on future announces, or an error if every tier failed.
// stats may be nil; when set, it records per-announce success/failure
// counters (biter.tracker.announce.ok / .failure).
func AnnounceTiers(ctx context.Context, tiers torlib.AnnounceList, req Request, stats tally.Scope, logger *zap.SugaredLogger) (Response, error) {
	var lastErr error
	for _, tier := range tiers {
		for _, url := range tier {
			resp, err := announceWithRetry(ctx, url, req, logger)
			if err != nil {
				if stats != nil {
					stats.Counter("tracker.announce.failure").Inc(1)
				}
				logger.Warnw("tracker announce failed", "url", url, "error", err)
				lastErr = err
				continue
			}
			if resp.IsFailure() {
				if stats != nil {
					stats.Counter("tracker.announce.failure").Inc(1)
				}
				logger.Warnw("tracker returned failure", "url", url, "reason", resp.FailureReason)
				lastErr = &failureError{url: url, reason: resp.FailureReason}
				continue
			}
			if stats != nil {
				stats.Counter("tracker.announce.ok").Inc(1)
			}
			return resp, nil
		}
	}
	if lastErr == nil {
		lastErr = errNoTrackers
	}
	return Response{}, lastErr
}

func announceWithRetry(ctx context.Context, url string, req Request, logger *zap.SugaredLogger) (Response, error) {
	var resp Response
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	err := backoff.Retry(func() error {
		r, err := Announce(ctx, url, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}, bo)
	return resp, err
}

// Loop runs the periodic re-announce described by the design: after the
// caller's initial "started" announce, sleep the tracker-supplied interval,
// re-announce with no event, and merge discovered peers without ever
// dropping or downgrading an existing one. It runs until ctx is cancelled.
func Loop(ctx context.Context, announceURL string, req Request, initialInterval int64, sink PeerSink, clk clock.Clock, stats tally.Scope, logger *zap.SugaredLogger) {
	interval := initialInterval
	if interval <= 0 {
		interval = 1800
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-clk.After(time.Duration(interval) * time.Second):
		}

		req.Event = EventNone
		resp, err := Announce(ctx, announceURL, req)
		if err != nil {
			if stats != nil {
				stats.Counter("tracker.announce.failure").Inc(1)
			}
			logger.Warnw("re-announce failed", "error", err)
			continue
		}
		if resp.IsFailure() {
			if stats != nil {
				stats.Counter("tracker.announce.failure").Inc(1)
			}
			logger.Warnw("re-announce tracker failure", "reason", resp.FailureReason)
			continue
		}
		if stats != nil {
			stats.Counter("tracker.announce.ok").Inc(1)
		}
		added := sink(resp.Peers)
		logger.Infow("re-announce complete", "new_peers", added, "interval", resp.Interval)
		if resp.Interval > 0 {
			interval = resp.Interval
		}
		if resp.TrackerID != "" {
			req.TrackerID = resp.TrackerID
		}
	}
}

type failureError struct {
	url    string
	reason string
}

func (e *failureError) Error() string {
	return "tracker " + e.url + " failure: " + e.reason
}

var errNoTrackers = trackerError("no tracker tiers configured")

type trackerError string

func (e trackerError) Error() string { return string(e) }
