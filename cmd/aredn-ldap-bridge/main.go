// Entry point for the aredn-ldap-bridge daemon. Parses CLI flags and the
// optional INI config file, wires up the upstream fetcher, entry cache,
// audit trail and stats reporter, then runs the LDAP listener until a
// termination signal arrives. SIGHUP reloads the config file in place;
// a changed listen address/port is logged but requires a restart to take
// effect.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aredn/aredn-ldap-bridge/internal/applog"
	"github.com/aredn/aredn-ldap-bridge/internal/audit"
	"github.com/aredn/aredn-ldap-bridge/internal/cache"
	"github.com/aredn/aredn-ldap-bridge/internal/check"
	"github.com/aredn/aredn-ldap-bridge/internal/config"
	"github.com/aredn/aredn-ldap-bridge/internal/ldapserver"
	"github.com/aredn/aredn-ldap-bridge/internal/stats"
	"github.com/aredn/aredn-ldap-bridge/internal/upstream"
)

var logger = applog.For("aredn_ldap_bridge.main")

func main() {
	flags := config.ParseFlags()

	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}

	applog.Configure(cfg.LogLevel)

	if !cfg.AllowAnonymousBind || !cfg.AllowSimpleBindAnyCreds {
		logger.Warn().Msg("allow_anonymous_bind/allow_simple_bind_any_creds are advisory only; every bind is still accepted")
	}

	if flags.CheckOnly {
		if err := check.Run(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			os.Exit(2)
		}
		os.Exit(0)
	}

	upstreamClient := upstream.New(secondsOrOne(cfg.UpstreamTimeoutSeconds))

	st := stats.New()

	entryCache := cache.New(cache.Settings{
		Upstream:          upstreamClient,
		UpstreamNodes:     cfg.UpstreamNodes,
		UpstreamTimeout:   secondsOrOne(cfg.UpstreamTimeoutSeconds),
		ProtocolFilter:    cfg.ProtocolFilter,
		BaseDN:            cfg.BaseDN,
		StaticEntriesPath: cfg.StaticEntriesPath,
		TTL:               secondsOrOne(cfg.CacheTTLSeconds),
	}, st)

	var auditLogger *audit.Logger
	if cfg.AuditLogPath != "" {
		auditLogger = audit.New(cfg.AuditLogPath, cfg.AuditLogBatch)
		defer auditLogger.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reporter := stats.NewReporter(st, secondsOrOne(cfg.StatsIntervalSeconds))
	go reporter.Run(ctx)

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go handleSignals(ctx, cancel, sigCh, cfg, flags.ConfigPath, entryCache, upstreamClient)

	srv := ldapserver.New(cfg, entryCache, auditLogger, st)

	logger.Info().Msg("aredn-ldap-bridge starting")
	if err := srv.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "run error: %v\n", err)
		os.Exit(1)
	}
}

// handleSignals reacts to SIGINT/SIGTERM by canceling ctx (triggering the
// daemonized shutdown described in ldapserver.Server.Run), and to SIGHUP by
// reloading the config file in place. A reload that changes the listen
// address or port is logged but not applied: the listener must be
// restarted for that to take effect.
func handleSignals(ctx context.Context, cancel context.CancelFunc, sigCh chan os.Signal, cfg *config.Config, configPath string, entryCache *cache.Cache, upstreamClient *upstream.Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				reload(cfg, configPath, entryCache, upstreamClient)
			default:
				logger.Info().Str("signal", sig.String()).Msg("shutting down")
				cancel()
				return
			}
		}
	}
}

func reload(cfg *config.Config, configPath string, entryCache *cache.Cache, upstreamClient *upstream.Client) {
	newCfg, err := config.Load(configPath)
	if err != nil {
		logger.Error().Err(err).Msg("config reload failed, keeping previous configuration")
		return
	}

	if listenChanged := cfg.ApplyReload(newCfg); listenChanged {
		logger.Warn().Msg("listen_address/listen_port changed in reloaded config; restart required to take effect")
	}

	applog.Configure(cfg.LogLevel)

	entryCache.ReloadSettings(cache.Settings{
		Upstream:          upstreamClient,
		UpstreamNodes:     cfg.UpstreamNodes,
		UpstreamTimeout:   secondsOrOne(cfg.UpstreamTimeoutSeconds),
		ProtocolFilter:    cfg.ProtocolFilter,
		BaseDN:            cfg.BaseDN,
		StaticEntriesPath: cfg.StaticEntriesPath,
		TTL:               secondsOrOne(cfg.CacheTTLSeconds),
	})

	logger.Info().Msg("configuration reloaded")
}

func secondsOrOne(seconds int) time.Duration {
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}
