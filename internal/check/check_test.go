package check

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aredn/aredn-ldap-bridge/internal/config"
	"github.com/aredn/aredn-ldap-bridge/internal/model"
)

type fakeFetcher struct {
	services []model.Service
	err      error
}

func (f *fakeFetcher) FetchServices(ctx context.Context, nodes []string, protocolFilter string) ([]model.Service, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.services, nil
}

func withFakeFetcher(t *testing.T, f *fakeFetcher) {
	t.Helper()
	old := newFetcher
	newFetcher = func(timeout time.Duration) Fetcher { return f }
	t.Cleanup(func() { newFetcher = old })
}

func TestRun_OK(t *testing.T) {
	withFakeFetcher(t, &fakeFetcher{services: []model.Service{
		{Name: "Node A [phone]", IP: "10.0.0.1", Protocol: "phone"},
	}})

	cfg := config.Defaults()

	if err := Run(cfg); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

func TestRun_FailsWhenNoUpstreamNodes(t *testing.T) {
	withFakeFetcher(t, &fakeFetcher{})

	cfg := config.Defaults()
	cfg.UpstreamNodes = nil

	if err := Run(cfg); err == nil {
		t.Fatal("expected error for empty upstream_nodes")
	}
}

func TestRun_FailsWhenBaseDNEmpty(t *testing.T) {
	withFakeFetcher(t, &fakeFetcher{})

	cfg := config.Defaults()
	cfg.BaseDN = ""

	if err := Run(cfg); err == nil {
		t.Fatal("expected error for empty base_dn")
	}
}

func TestRun_PropagatesUpstreamFetchError(t *testing.T) {
	withFakeFetcher(t, &fakeFetcher{err: fmt.Errorf("boom")})

	cfg := config.Defaults()

	if err := Run(cfg); err == nil {
		t.Fatal("expected upstream fetch error to propagate")
	}
}

func TestRun_ValidatesStaticEntriesPath(t *testing.T) {
	withFakeFetcher(t, &fakeFetcher{})

	cfg := config.Defaults()
	cfg.StaticEntriesPath = "/nonexistent/path/static.csv"

	if err := Run(cfg); err == nil {
		t.Fatal("expected error for unreadable static_entries_path")
	}
}
