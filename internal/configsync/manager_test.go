package configsync

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/micro-ha/mikrotik-router/internal/model"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	return NewManager(model.RouterConfig{Host: "192.168.88.1", Username: "admin", Password: "secret"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestApplyUpdatesRuntimeOptions(t *testing.T) {
	t.Helper()

	m := newTestManager(t)
	interval := 60
	unit := "Mbps"
	off := false
	changed, err := m.Apply(Patch{ScanIntervalSec: &interval, Unit: &unit, TrackARP: &off})
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if !changed || m.Version() != 2 {
		t.Fatalf("expected change and version bump, changed=%v version=%d", changed, m.Version())
	}

	got := m.Get()
	if got.ScanInterval() != time.Minute || got.DisplayUnit() != "Mbps" || got.ARPTracking() {
		t.Fatalf("unexpected options: %+v", got)
	}
	if got.Host != "192.168.88.1" || got.Password != "secret" {
		t.Fatalf("connection settings must be preserved: %+v", got)
	}

	changed, err = m.Apply(Patch{Unit: &unit})
	if err != nil || changed {
		t.Fatalf("expected no-op patch, changed=%v err=%v", changed, err)
	}
	if m.Version() != 2 {
		t.Fatalf("version bumped on no-op patch: %d", m.Version())
	}
}

func TestApplyRejectsInvalidOptions(t *testing.T) {
	t.Helper()

	negative := -1
	blank := "  "
	cases := []struct {
		name  string
		patch Patch
	}{
		{name: "negative interval", patch: Patch{ScanIntervalSec: &negative}},
		{name: "negative timeout", patch: Patch{TrackHostsTimeoutSec: &negative}},
		{name: "blank unit", patch: Patch{Unit: &blank}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestManager(t)
			_, err := m.Apply(tc.patch)
			if !errors.Is(err, ErrInvalidOption) {
				t.Fatalf("expected ErrInvalidOption, got %v", err)
			}
			if m.Version() != 1 {
				t.Fatalf("rejected patch changed version: %d", m.Version())
			}
		})
	}
}

func TestGetReturnsCopy(t *testing.T) {
	t.Helper()

	m := newTestManager(t)
	off := false
	if _, err := m.Apply(Patch{TrackARP: &off}); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	cfg := m.Get()
	*cfg.TrackARP = true
	if m.Get().ARPTracking() {
		t.Fatalf("mutating a snapshot leaked into the manager")
	}
}
