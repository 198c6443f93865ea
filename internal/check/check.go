// Package check implements the --check run mode: validate configuration,
// fetch the upstream service catalog once, project it, and report
// reachability without starting the listener.
package check

import (
	"context"
	"fmt"
	"time"

	"github.com/aredn/aredn-ldap-bridge/internal/config"
	"github.com/aredn/aredn-ldap-bridge/internal/model"
	"github.com/aredn/aredn-ldap-bridge/internal/staticentries"
	"github.com/aredn/aredn-ldap-bridge/internal/upstream"
)

// Fetcher is the subset of upstream.Client that Run depends on.
type Fetcher interface {
	FetchServices(ctx context.Context, nodes []string, protocolFilter string) ([]model.Service, error)
}

// newFetcher is a small indirection to allow tests to inject a fake
// upstream client without changing Run's public signature. In production
// it points to upstream.New.
var newFetcher = func(timeout time.Duration) Fetcher {
	return upstream.New(timeout)
}

// Run performs a one-shot configuration and upstream-connectivity check,
// printing human-readable OK lines, and returns the first failure it hits.
func Run(cfg *config.Config) error {
	snap := cfg.Snap()

	if len(snap.UpstreamNodes) == 0 {
		return fmt.Errorf("config error: no upstream_nodes configured")
	}
	fmt.Printf("OK: %d upstream node(s) configured\n", len(snap.UpstreamNodes))

	if snap.BaseDN == "" {
		return fmt.Errorf("config error: base_dn is empty")
	}
	fmt.Printf("OK: base_dn '%s'\n", snap.BaseDN)

	timeout := time.Duration(snap.UpstreamTimeoutSeconds) * time.Second
	client := newFetcher(timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	services, err := client.FetchServices(ctx, snap.UpstreamNodes, snap.ProtocolFilter)
	if err != nil {
		return fmt.Errorf("upstream fetch failed: %w", err)
	}
	fmt.Printf("OK: upstream fetch returned %d service(s) matching protocol_filter '%s'\n", len(services), snap.ProtocolFilter)

	entries := model.EntriesFromServices(services, snap.BaseDN)
	fmt.Printf("OK: projected %d directory entry(ies)\n", len(entries))

	if snap.StaticEntriesPath != "" {
		staticEntries, err := staticentries.Load(snap.StaticEntriesPath, snap.BaseDN)
		if err != nil {
			return fmt.Errorf("static_entries_path error: %w", err)
		}
		fmt.Printf("OK: static overlay '%s' loaded (%d entries)\n", snap.StaticEntriesPath, len(staticEntries))
	}

	fmt.Println("OK: configuration and upstream connectivity check passed")
	return nil
}
