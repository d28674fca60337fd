// Package poller schedules controller cycles: the scan timer, the hourly
// firmware check and manual refreshes all feed one worker.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"
)

const (
	DefaultFirmwareInterval = time.Hour
	releaseTimeout          = 15 * time.Second
)

// Controller is the cycle surface the poller drives.
type Controller interface {
	Update(ctx context.Context) bool
	FirmwareCheck(ctx context.Context) bool
	HWInfo(ctx context.Context) bool
}

type Poller struct {
	controller       Controller
	interval         func() time.Duration
	firmwareInterval time.Duration
	pool             *ants.Pool
	refreshCh        chan struct{}
	logger           *slog.Logger
}

// New builds a poller. interval is read each time the scan timer is
// re-armed, so option changes apply from the next scan.
func New(c Controller, interval func() time.Duration, logger *slog.Logger) (*Poller, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "poller")
	pool, err := ants.NewPool(1,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(recovered any) {
			logger.Error("cycle panicked", "panic", fmt.Sprint(recovered))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Poller{
		controller:       c,
		interval:         interval,
		firmwareInterval: DefaultFirmwareInterval,
		pool:             pool,
		refreshCh:        make(chan struct{}, 1),
		logger:           logger,
	}, nil
}

// TriggerRefresh requests a cycle as soon as possible. Requests made while
// one is already pending collapse into it.
func (p *Poller) TriggerRefresh() {
	select {
	case p.refreshCh <- struct{}{}:
	default:
	}
}

// Run fetches hardware info, runs a first cycle and then serves the timers
// until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	p.submit(ctx, "startup", func(ctx context.Context) {
		p.controller.HWInfo(ctx)
		p.controller.Update(ctx)
	})

	firmware := time.NewTicker(p.firmwareInterval)
	defer firmware.Stop()
	scan := time.NewTimer(p.interval())
	defer scan.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.refreshCh:
			p.submit(ctx, "refresh", func(ctx context.Context) { p.controller.Update(ctx) })
		case <-scan.C:
			p.submit(ctx, "scan", func(ctx context.Context) { p.controller.Update(ctx) })
			scan.Reset(p.interval())
		case <-firmware.C:
			p.submit(ctx, "firmware", func(ctx context.Context) { p.controller.FirmwareCheck(ctx) })
		}
	}
}

// submit hands fn to the worker. When the worker is busy the tick is
// dropped, never queued.
func (p *Poller) submit(ctx context.Context, reason string, fn func(context.Context)) bool {
	err := p.pool.Submit(func() { fn(ctx) })
	switch {
	case err == nil:
		return true
	case errors.Is(err, ants.ErrPoolOverload):
		p.logger.Debug("tick dropped; cycle in flight", "reason", reason)
	default:
		p.logger.Warn("submit cycle failed", "reason", reason, "err", err)
	}
	return false
}

// Close waits for the running cycle and stops the worker.
func (p *Poller) Close() error {
	return p.pool.ReleaseTimeout(releaseTimeout)
}
