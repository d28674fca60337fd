package controller

import (
	"context"
	"fmt"

	"github.com/micro-ha/mikrotik-router/internal/model"
	"github.com/micro-ha/mikrotik-router/internal/normalize"
	"github.com/micro-ha/mikrotik-router/internal/store"
)

// step fetches one resource family and merges it into the store.
type step interface {
	name() string
	run(ctx context.Context, c *Controller, cfg model.RouterConfig) error
}

// cycleSteps lists the full-cycle steps in execution order. Later steps
// read identifiers produced by earlier ones.
func cycleSteps() []step {
	return []step{
		interfaceStep{},
		arpStep{},
		dnsStep{},
		dhcpStep{},
		hostStep{},
		trafficStep{},
		clientStep{},
		natStep{},
		resourceStep{},
		scriptStep{},
		queueStep{},
		accountingStep{},
	}
}

// printInto lists path and merges the rows into category using spec.
func (c *Controller) printInto(ctx context.Context, path, category string, spec normalize.Spec) error {
	rows, err := c.api.Print(ctx, path)
	if err != nil {
		return fmt.Errorf("%s: %w", category, err)
	}
	return c.store.Update(category, func(section store.Section) (store.Section, error) {
		return normalize.Apply(section, rows, spec), nil
	})
}

// interfaceUIDs maps the current interface name to its UID.
func (c *Controller) interfaceUIDs() map[string]string {
	out := map[string]string{}
	for uid, record := range c.store.Section(store.Interface) {
		out[record.String("name")] = uid
	}
	return out
}
