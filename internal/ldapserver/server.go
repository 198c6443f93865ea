// Package ldapserver implements the per-connection LDAP state machine
// (component F): it accepts TCP connections, frames and dispatches
// messages via internal/ldapwire, answers searches from internal/cache
// filtered through internal/filter, and rejects every write-class request.
// Accept-loop and goroutine-per-connection shape grounded on the
// MDM23-ldapserver skeleton's Server/client split; shutdown via context
// cancellation and WaitGroup-tracked connection goroutines follows the
// teacher's runner.go pattern, except that Run does not wait on the
// WaitGroup.
package ldapserver

import (
	"context"
	"net"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/aredn/aredn-ldap-bridge/internal/applog"
	"github.com/aredn/aredn-ldap-bridge/internal/audit"
	"github.com/aredn/aredn-ldap-bridge/internal/cache"
	"github.com/aredn/aredn-ldap-bridge/internal/config"
	"github.com/aredn/aredn-ldap-bridge/internal/stats"
)

var logger = applog.For("aredn_ldap_bridge.ldapserver")

// Server accepts LDAP connections and dispatches each to its own handler
// goroutine.
type Server struct {
	cfg   *config.Config
	cache *cache.Cache
	audit *audit.Logger
	stats *stats.Stats

	listener net.Listener
	wg       sync.WaitGroup
	ready    chan struct{}
}

// New constructs a Server. The config is consulted live (via cfg.Snap) on
// every search request, so a SIGHUP reload takes effect without restarting
// the listener.
func New(cfg *config.Config, c *cache.Cache, auditLogger *audit.Logger, st *stats.Stats) *Server {
	return &Server{cfg: cfg, cache: c, audit: auditLogger, stats: st, ready: make(chan struct{})}
}

// Addr blocks until the listener is bound, then returns its address. Used
// by tests and by "0" (OS-assigned) port configurations that need to learn
// what port was actually chosen.
func (s *Server) Addr() net.Addr {
	<-s.ready
	return s.listener.Addr()
}

// Run binds the listen address/port from cfg and serves connections until
// ctx is canceled. It returns once the listener has been closed; in-flight
// connections are allowed to finish on their own, matching the daemon's
// documented shutdown contract (process exit does not wait for them).
func (s *Server) Run(ctx context.Context) error {
	s.cfg.Mu.RLock()
	addr := net.JoinHostPort(s.cfg.ListenAddress, strconv.Itoa(s.cfg.ListenPort))
	s.cfg.Mu.RUnlock()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	close(s.ready)

	logger.Info().Str("addr", addr).Msg("listening for LDAP connections")

	go func() {
		<-ctx.Done()
		logger.Info().Msg("shutting down listener")
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				// Daemonized shutdown: in-flight connections finish on
				// their own: Run does not wait for them.
				return nil
			default:
				logger.Warn().Err(err).Msg("accept failed")
				return err
			}
		}

		s.stats.ConnectionsAccepted.Add(1)
		connID := uuid.New().String()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			h := &connHandler{
				conn:   conn,
				connID: connID,
				cfg:    s.cfg,
				cache:  s.cache,
				audit:  s.audit,
				stats:  s.stats,
			}
			h.serve(ctx)
		}()
	}
}
