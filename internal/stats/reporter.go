package stats

import (
	"context"
	"time"

	"github.com/aredn/aredn-ldap-bridge/internal/applog"
)

var logger = applog.For("aredn_ldap_bridge.stats")

// Reporter periodically logs a Stats snapshot until its context is
// canceled. Run is intended to be started as its own goroutine.
type Reporter struct {
	stats    *Stats
	interval time.Duration
}

// NewReporter constructs a Reporter logging a summary every interval.
func NewReporter(s *Stats, interval time.Duration) *Reporter {
	return &Reporter{stats: s, interval: interval}
}

// Run logs a snapshot every interval until ctx is canceled.
func (r *Reporter) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := r.stats.Snapshot()
			logger.Info().
				Dur("elapsed", snap.Elapsed.Truncate(time.Second)).
				Int64("connections_accepted", snap.ConnectionsAccepted).
				Int64("binds", snap.Binds).
				Int64("searches", snap.Searches).
				Int64("entries_returned", snap.EntriesReturned).
				Int64("cache_refreshes", snap.CacheRefreshes).
				Int64("cache_hits", snap.CacheHits).
				Int64("cache_misses", snap.CacheMisses).
				Int64("write_rejections", snap.WriteRejections).
				Int64("upstream_latency_count", snap.UpstreamLatency.Count).
				Dur("upstream_latency_avg", snap.UpstreamLatency.Avg).
				Dur("upstream_latency_p50", snap.UpstreamLatency.P50).
				Dur("upstream_latency_p95", snap.UpstreamLatency.P95).
				Msg("periodic stats")
		}
	}
}
