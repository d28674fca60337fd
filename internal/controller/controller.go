// Package controller drives polling cycles against one device and merges
// the results into the entity store.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/micro-ha/mikrotik-router/internal/metrics"
	"github.com/micro-ha/mikrotik-router/internal/model"
	"github.com/micro-ha/mikrotik-router/internal/routeros"
	"github.com/micro-ha/mikrotik-router/internal/storage"
	"github.com/micro-ha/mikrotik-router/internal/store"
)

const defaultLockTimeout = 10 * time.Second

var (
	ErrBusy         = errors.New("cycle in progress")
	ErrHostNotFound = errors.New("host not found")
)

// API is the device surface the controller needs. *routeros.Client
// implements it.
type API interface {
	Connected() bool
	Print(ctx context.Context, path string, words ...string) ([]routeros.Row, error)
	MonitorTraffic(ctx context.Context, names []string) ([]routeros.Row, error)
	AccountingSnapshot(ctx context.Context) ([]routeros.Row, time.Duration, error)
	Update(ctx context.Context, path, param string, value any, modParam string, modValue any) error
	RunScript(ctx context.Context, name string) error
}

// HostRegistry persists hosts between restarts.
type HostRegistry interface {
	LoadHosts(ctx context.Context) (map[string]model.Host, error)
	UpsertHosts(ctx context.Context, hosts []model.Host) error
	DeleteHost(ctx context.Context, mac string) error
}

// VendorLookup resolves a MAC address to a manufacturer name.
type VendorLookup interface {
	Lookup(mac string) string
}

// Listener is called after every completed cycle.
type Listener func()

// ListenerID identifies a subscription for Unsubscribe.
type ListenerID uint64

type Options struct {
	// Config returns the option snapshot used for one cycle.
	Config      func() model.RouterConfig
	Registry    HostRegistry
	Vendors     VendorLookup
	Metrics     *metrics.Metrics
	LockTimeout time.Duration
	Now         func() time.Time
}

type Controller struct {
	api      API
	store    *store.Store
	logger   *slog.Logger
	config   func() model.RouterConfig
	registry HostRegistry
	vendors  VendorLookup
	metrics  *metrics.Metrics
	nowFn    func() time.Time

	gate        *semaphore.Weighted
	lockTimeout time.Duration
	steps       []step

	mu          sync.Mutex
	listeners   map[ListenerID]Listener
	nextID      ListenerID
	natReported map[string]struct{}
	hostsLoaded bool
}

func New(api API, st *store.Store, logger *slog.Logger, opts Options) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if st == nil {
		st = store.New()
	}
	if opts.Config == nil {
		opts.Config = func() model.RouterConfig { return model.RouterConfig{} }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = defaultLockTimeout
	}
	return &Controller{
		api:         api,
		store:       st,
		logger:      logger.With("component", "controller"),
		config:      opts.Config,
		registry:    opts.Registry,
		vendors:     opts.Vendors,
		metrics:     opts.Metrics,
		nowFn:       opts.Now,
		gate:        semaphore.NewWeighted(1),
		lockTimeout: opts.LockTimeout,
		steps:       cycleSteps(),
		listeners:   make(map[ListenerID]Listener),
		natReported: make(map[string]struct{}),
	}
}

// Subscribe registers fn for the post-cycle notification.
func (c *Controller) Subscribe(fn Listener) ListenerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.listeners[c.nextID] = fn
	return c.nextID
}

func (c *Controller) Unsubscribe(id ListenerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.listeners, id)
}

// Reset drops every listener.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = make(map[ListenerID]Listener)
}

func (c *Controller) publish() {
	c.mu.Lock()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// Connected reports the device session state.
func (c *Controller) Connected() bool {
	return c.api.Connected()
}

// Snapshot returns a deep copy of the entity store.
func (c *Controller) Snapshot() store.Snapshot {
	return c.store.Snapshot()
}

// Store exposes the entity store for read access.
func (c *Controller) Store() *store.Store {
	return c.store
}

// ForceUpdate runs a full cycle now unless one is in flight.
func (c *Controller) ForceUpdate(ctx context.Context) bool {
	return c.Update(ctx)
}

// Update runs one full polling cycle. It returns false without touching
// the device when another cycle holds the gate past the lock timeout.
func (c *Controller) Update(ctx context.Context) bool {
	if !c.acquire(ctx) {
		c.metrics.CycleSkipped()
		c.logger.Debug("cycle skipped; another cycle is running")
		return false
	}
	defer c.gate.Release(1)

	started := c.nowFn()
	cfg := c.config()

	if !c.store.Single(store.FWUpdate).Has("available") {
		c.runStep(ctx, firmwareStep{}, cfg)
	}
	if len(c.store.Single(store.Routerboard)) == 0 {
		c.runStep(ctx, routerboardStep{}, cfg)
	}

	result := "ok"
	for _, s := range c.steps {
		if err := c.runStep(ctx, s, cfg); errors.Is(err, routeros.ErrNotConnected) {
			result = "disconnected"
			break
		}
	}

	c.metrics.ObserveCycle(result, c.nowFn().Sub(started))
	c.metrics.SetConnected(c.api.Connected())
	for _, category := range c.store.Categories() {
		c.metrics.SetEntities(category, len(c.store.Section(category)))
	}
	c.publish()
	return true
}

// HWInfo fetches routerboard and resource data, typically once at start.
func (c *Controller) HWInfo(ctx context.Context) bool {
	if !c.acquire(ctx) {
		return false
	}
	defer c.gate.Release(1)

	cfg := c.config()
	c.runStep(ctx, routerboardStep{}, cfg)
	c.runStep(ctx, resourceStep{}, cfg)
	return true
}

// FirmwareCheck refreshes the fw-update category and notifies listeners.
func (c *Controller) FirmwareCheck(ctx context.Context) bool {
	if !c.acquire(ctx) {
		c.metrics.CycleSkipped()
		return false
	}
	defer c.gate.Release(1)

	c.runStep(ctx, firmwareStep{}, c.config())
	c.publish()
	return true
}

// RunScript starts a device script by name.
func (c *Controller) RunScript(ctx context.Context, name string) error {
	if err := c.api.RunScript(ctx, name); err != nil {
		c.logger.Error("run script failed", "script", name, "err", err)
		return err
	}
	return nil
}

// SetValue sets modParam=modValue on every entry of path whose param
// equals value.
func (c *Controller) SetValue(ctx context.Context, path, param string, value any, modParam string, modValue any) error {
	return c.api.Update(ctx, path, param, value, modParam, modValue)
}

// ForgetHost drops a tracked host from the model and the registry. A host
// that is still seen by the device reappears on the next cycle.
func (c *Controller) ForgetHost(ctx context.Context, mac string) error {
	if !c.acquire(ctx) {
		return ErrBusy
	}
	defer c.gate.Release(1)

	mac = strings.ToUpper(strings.TrimSpace(mac))
	found := false
	err := c.store.Update(store.Host, func(section store.Section) (store.Section, error) {
		_, found = section[mac]
		delete(section, mac)
		return section, nil
	})
	if err != nil {
		return err
	}
	if c.registry != nil {
		switch err := c.registry.DeleteHost(ctx, mac); {
		case err == nil:
			found = true
		case !errors.Is(err, storage.ErrNotFound):
			return fmt.Errorf("delete host %s: %w", mac, err)
		}
	}
	if !found {
		return fmt.Errorf("%s: %w", mac, ErrHostNotFound)
	}
	c.logger.Info("host forgotten", "mac", mac)
	return nil
}

func (c *Controller) acquire(ctx context.Context) bool {
	acquireCtx, cancel := context.WithTimeout(ctx, c.lockTimeout)
	defer cancel()
	return c.gate.Acquire(acquireCtx, 1) == nil
}

func (c *Controller) runStep(ctx context.Context, s step, cfg model.RouterConfig) error {
	err := s.run(ctx, c, cfg)
	switch {
	case err == nil:
	case errors.Is(err, routeros.ErrNotConnected):
		c.logger.Debug("fetch step skipped; device not connected", "step", s.name())
	default:
		c.metrics.StepFailed(s.name())
		c.logger.Warn("fetch step failed", "step", s.name(), "err", err)
	}
	return err
}
