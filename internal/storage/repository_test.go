package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/micro-ha/mikrotik-router/internal/model"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()

	repo, err := New(context.Background(), filepath.Join(t.TempDir(), "hosts.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestUpsertAndLoadHosts(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	seen := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	hosts := []model.Host{
		{MAC: "aa:bb:cc:00:00:01", Address: "192.168.88.10", HostName: "nas", Interface: "bridge", Source: model.SourceDHCP, LastSeen: seen},
		{MAC: "AA:BB:CC:00:00:02", Address: "192.168.88.11", Source: model.SourceARP, LastSeen: seen},
	}
	if err := repo.UpsertHosts(ctx, hosts); err != nil {
		t.Fatalf("UpsertHosts returned error: %v", err)
	}

	later := seen.Add(time.Hour)
	if err := repo.UpsertHosts(ctx, []model.Host{{MAC: "AA:BB:CC:00:00:02", Address: "192.168.88.12", Source: model.SourceDHCP, LastSeen: later}}); err != nil {
		t.Fatalf("UpsertHosts returned error: %v", err)
	}

	got, err := repo.LoadHosts(ctx)
	if err != nil {
		t.Fatalf("LoadHosts returned error: %v", err)
	}
	want := map[string]model.Host{
		"AA:BB:CC:00:00:01": {MAC: "AA:BB:CC:00:00:01", Address: "192.168.88.10", HostName: "nas", Interface: "bridge", Source: model.SourceDHCP, LastSeen: seen},
		"AA:BB:CC:00:00:02": {MAC: "AA:BB:CC:00:00:02", Address: "192.168.88.12", Source: model.SourceDHCP, LastSeen: later},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("hosts mismatch (-want +got):\n%s", diff)
	}
}

func TestDeleteHost(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if err := repo.UpsertHosts(ctx, []model.Host{{MAC: "AA:BB:CC:00:00:03", LastSeen: time.Now()}}); err != nil {
		t.Fatalf("UpsertHosts returned error: %v", err)
	}
	if err := repo.DeleteHost(ctx, "aa:bb:cc:00:00:03"); err != nil {
		t.Fatalf("DeleteHost returned error: %v", err)
	}
	if err := repo.DeleteHost(ctx, "aa:bb:cc:00:00:03"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
