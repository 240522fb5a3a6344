// Package metrics constructs the tally.Scope (C13) threaded through every
// component that counts or gauges swarm health, mirroring the grounding
// source's metrics package shape -- a small registry of named backends
// behind one New() constructor -- minus its statsd/m3 reporter backends,
// which this single-process leech client has no operational need for.
package metrics

import (
	"time"

	"github.com/uber-go/tally"
)

// New constructs the root metrics scope this client reports through for the
// lifetime of a run. A disabled reporter is always available and is the
// only backend wired in (see DESIGN.md for why statsd/m3 are not); the
// scope is still a real tally.Scope so every call site (store.go's
// pieces.total/pieces.saved/peers.known, tracker announce counters, DHT
// query counters) behaves identically whether or not metrics are actually
// being shipped anywhere.
func New() (tally.Scope, func()) {
	scope, closer := tally.NewRootScope(tally.ScopeOptions{
		Prefix:   "biter",
		Reporter: disabledReporter{},
	}, time.Second)
	return scope, func() { _ = closer.Close() }
}

// disabledReporter discards every reported metric. It exists so the rest of
// the client can depend on a real tally.Scope unconditionally rather than
// threading a nullable pointer through every constructor.
type disabledReporter struct{}

func (disabledReporter) ReportCounter(string, map[string]string, int64)       {}
func (disabledReporter) ReportGauge(string, map[string]string, float64)       {}
func (disabledReporter) ReportTimer(string, map[string]string, time.Duration) {}
func (disabledReporter) ReportHistogramValueSamples(
	string, map[string]string, tally.Buckets, float64, float64, int64) {
}
func (disabledReporter) ReportHistogramDurationSamples(
	string, map[string]string, tally.Buckets, time.Duration, time.Duration, int64) {
}
func (disabledReporter) Capabilities() tally.Capabilities { return disabledReporter{} }
func (disabledReporter) Reporting() bool                  { return true }
func (disabledReporter) Tagging() bool                    { return false }
func (disabledReporter) Flush()                           {}
