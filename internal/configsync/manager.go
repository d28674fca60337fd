// Package configsync holds the live router options. Connection settings
// are fixed at startup; polling and tracking options can be changed at
// runtime and apply from the next cycle.
package configsync

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/micro-ha/mikrotik-router/internal/model"
)

var ErrInvalidOption = errors.New("invalid option")

// Patch lists the runtime-tunable options. Nil fields are left unchanged.
type Patch struct {
	ScanIntervalSec      *int    `json:"scan_interval_sec,omitempty"`
	Unit                 *string `json:"unit_of_measurement,omitempty"`
	TrackARP             *bool   `json:"track_arp,omitempty"`
	TrackHosts           *bool   `json:"track_hosts,omitempty"`
	TrackHostsTimeoutSec *int    `json:"track_hosts_timeout_sec,omitempty"`
	TrackAccounting      *bool   `json:"track_accounting,omitempty"`
}

type Manager struct {
	logger *slog.Logger

	mu      sync.RWMutex
	config  model.RouterConfig
	version int64
}

func NewManager(cfg model.RouterConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{config: cfg, version: 1, logger: logger.With("component", "configsync")}
}

// Get returns the current option snapshot.
func (m *Manager) Get() model.RouterConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := m.config
	if cfg.TrackARP != nil {
		v := *cfg.TrackARP
		cfg.TrackARP = &v
	}
	return cfg
}

func (m *Manager) Version() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// Apply validates p and merges it into the options. It reports whether
// anything changed.
func (m *Manager) Apply(p Patch) (bool, error) {
	if p.ScanIntervalSec != nil && *p.ScanIntervalSec < 0 {
		return false, fmt.Errorf("%w: scan_interval_sec must not be negative", ErrInvalidOption)
	}
	if p.TrackHostsTimeoutSec != nil && *p.TrackHostsTimeoutSec < 0 {
		return false, fmt.Errorf("%w: track_hosts_timeout_sec must not be negative", ErrInvalidOption)
	}
	if p.Unit != nil && strings.TrimSpace(*p.Unit) == "" {
		return false, fmt.Errorf("%w: unit_of_measurement must not be empty", ErrInvalidOption)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.config
	if p.ScanIntervalSec != nil {
		next.ScanIntervalSec = *p.ScanIntervalSec
	}
	if p.Unit != nil {
		next.Unit = strings.TrimSpace(*p.Unit)
	}
	if p.TrackARP != nil {
		v := *p.TrackARP
		next.TrackARP = &v
	}
	if p.TrackHosts != nil {
		next.TrackHosts = *p.TrackHosts
	}
	if p.TrackHostsTimeoutSec != nil {
		next.TrackHostsTimeoutSec = *p.TrackHostsTimeoutSec
	}
	if p.TrackAccounting != nil {
		next.TrackAccounting = *p.TrackAccounting
	}

	if sameOptions(m.config, next) {
		return false, nil
	}
	m.config = next
	m.version++
	m.logger.Info("options updated",
		"version", m.version,
		"scan_interval", next.ScanInterval(),
		"unit", next.DisplayUnit(),
		"track_arp", next.ARPTracking(),
		"track_hosts", next.TrackHosts,
		"track_accounting", next.TrackAccounting,
	)
	return true, nil
}

func sameOptions(a, b model.RouterConfig) bool {
	return a.ScanIntervalSec == b.ScanIntervalSec &&
		a.Unit == b.Unit &&
		a.ARPTracking() == b.ARPTracking() &&
		a.TrackHosts == b.TrackHosts &&
		a.TrackHostsTimeoutSec == b.TrackHostsTimeoutSec &&
		a.TrackAccounting == b.TrackAccounting
}
