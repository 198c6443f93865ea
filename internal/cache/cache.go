// Package cache implements the shared, multi-reader TTL cache that fronts
// the upstream HTTP fetch: single-flight refresh coalescing, last-known-good
// fallback on upstream failure, and live reconfiguration via ReloadSettings.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/aredn/aredn-ldap-bridge/internal/applog"
	"github.com/aredn/aredn-ldap-bridge/internal/model"
	"github.com/aredn/aredn-ldap-bridge/internal/staticentries"
	"github.com/aredn/aredn-ldap-bridge/internal/stats"
)

var logger = applog.For("aredn_ldap_bridge.cache")

// Fetcher is the subset of upstream.Client the cache depends on, so tests
// can substitute a fake without standing up an HTTP server.
type Fetcher interface {
	FetchServices(ctx context.Context, nodes []string, protocolFilter string) ([]model.Service, error)
}

// Settings bundles the mutable dependencies a refresh needs.
type Settings struct {
	Upstream          Fetcher
	UpstreamNodes     []string
	UpstreamTimeout   time.Duration
	ProtocolFilter    string
	BaseDN            string
	StaticEntriesPath string
	TTL               time.Duration
}

// Cache is the concurrent TTL cache described in spec.md §4.C. The zero
// value is not usable; construct with New.
type Cache struct {
	mu          sync.Mutex
	cond        *sync.Cond
	settings    Settings
	entries     []model.Entry
	lastRefresh time.Time
	haveRefresh bool
	refreshing  bool
	stats       *stats.Stats
}

// New constructs a Cache with the given initial settings, recording its
// activity (hits, refreshes, misses, upstream fetch latency) to st.
func New(settings Settings, st *stats.Stats) *Cache {
	c := &Cache{settings: settings, stats: st}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// GetEntries never fails; it may return a stale or empty list. It implements
// the single-flight/last-known-good refresh protocol from spec.md §4.C.
func (c *Cache) GetEntries(ctx context.Context) []model.Entry {
	c.mu.Lock()

	if c.isFreshLocked() {
		out := cloneEntries(c.entries)
		c.mu.Unlock()
		c.stats.CacheHits.Add(1)
		return out
	}

	if c.refreshing {
		logger.Info().Msg("cache refresh in-flight; waiting")
		ttl := c.settings.TTL
		done := make(chan struct{})

		go func() {
			c.mu.Lock()
			for c.refreshing {
				c.cond.Wait()
			}
			c.mu.Unlock()
			close(done)
		}()

		c.mu.Unlock()

		select {
		case <-done:
		case <-time.After(ttl):
		}

		c.mu.Lock()
		out := cloneEntries(c.entries)
		c.mu.Unlock()
		c.stats.CacheHits.Add(1)
		return out
	}

	c.refreshing = true
	settings := c.settings
	c.mu.Unlock()

	c.stats.CacheMisses.Add(1)
	refreshed, ok := c.refresh(ctx, settings)
	c.stats.CacheRefreshes.Add(1)

	c.mu.Lock()
	c.refreshing = false
	if ok {
		c.entries = refreshed
		c.lastRefresh = time.Now()
		c.haveRefresh = true
	}
	out := cloneEntries(c.entries)
	c.cond.Broadcast()
	c.mu.Unlock()

	return out
}

// isFreshLocked reports whether the cache is within its TTL window. Caller
// must hold mu.
func (c *Cache) isFreshLocked() bool {
	if !c.haveRefresh {
		return false
	}
	return time.Since(c.lastRefresh) < c.settings.TTL
}

// refresh performs the upstream fetch and projection outside the lock. It
// returns the newly built entry list and true on success, or (nil, false) on
// failure — in which case the caller retains the previous entries.
func (c *Cache) refresh(ctx context.Context, settings Settings) ([]model.Entry, bool) {
	logger.Info().Msg("refreshing cache from upstream")

	fetchCtx := ctx
	var cancel context.CancelFunc
	if settings.UpstreamTimeout > 0 {
		fetchCtx, cancel = context.WithTimeout(ctx, settings.UpstreamTimeout)
		defer cancel()
	}

	fetchStart := time.Now()
	services, err := settings.Upstream.FetchServices(fetchCtx, settings.UpstreamNodes, settings.ProtocolFilter)
	c.stats.RecordUpstreamLatency(time.Since(fetchStart))
	if err != nil {
		logger.Warn().Err(err).Msg("cache refresh failed")
		return nil, false
	}

	entries := model.EntriesFromServices(services, settings.BaseDN)

	static, staticErr := staticentries.Load(settings.StaticEntriesPath, settings.BaseDN)
	if staticErr != nil {
		logger.Warn().Err(staticErr).Msg("failed to load static entries overlay")
	} else if len(static) > 0 {
		combined := make([]model.Entry, 0, len(static)+len(entries))
		combined = append(combined, static...)
		combined = append(combined, entries...)
		entries = combined
	}

	logger.Info().Int("count", len(entries)).Msg("cache refresh succeeded")

	return entries, true
}

// ReloadSettings replaces the cache's dependencies atomically and forces the
// next GetEntries call to refresh (by invalidating the freshness window).
func (c *Cache) ReloadSettings(settings Settings) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.settings = settings
	c.haveRefresh = false
}

func cloneEntries(entries []model.Entry) []model.Entry {
	out := make([]model.Entry, len(entries))
	copy(out, entries)
	return out
}
