package controller

import (
	"context"
	"fmt"
	"math"

	"github.com/micro-ha/mikrotik-router/internal/model"
	"github.com/micro-ha/mikrotik-router/internal/normalize"
	"github.com/micro-ha/mikrotik-router/internal/store"
)

type interfaceStep struct{}

func (interfaceStep) name() string { return "interface" }

func (interfaceStep) run(ctx context.Context, c *Controller, cfg model.RouterConfig) error {
	spec := normalize.Spec{
		Key: "default-name",
		Fields: []normalize.Field{
			{Name: "default-name"},
			{Name: "name", DefaultFrom: "default-name"},
			{Name: "type", Default: "unknown"},
			{Name: "running", Kind: normalize.Bool},
			{Name: "enabled", Source: "disabled", Kind: normalize.Bool, Reverse: true},
			{Name: "port-mac-address", Source: "mac-address"},
			{Name: "comment"},
			{Name: "last-link-down-time"},
			{Name: "last-link-up-time"},
			{Name: "link-downs"},
			{Name: "tx-queue-drop"},
			{Name: "actual-mtu"},
		},
		Ensure: []normalize.Ensure{
			{Name: "rx-bits-per-second", Default: int64(0)},
			{Name: "tx-bits-per-second", Default: int64(0)},
		},
	}
	if cfg.ARPTracking() {
		spec.Ensure = append(spec.Ensure,
			normalize.Ensure{Name: "client-ip-address"},
			normalize.Ensure{Name: "client-mac-address"},
		)
	}
	return c.printInto(ctx, "/interface", store.Interface, spec)
}

type trafficStep struct{}

func (trafficStep) name() string { return "traffic" }

func (trafficStep) run(ctx context.Context, c *Controller, cfg model.RouterConfig) error {
	interfaces := c.store.Section(store.Interface)
	if len(interfaces) == 0 {
		return nil
	}
	names := make([]string, 0, len(interfaces))
	byName := make(store.Section, len(interfaces))
	for _, uid := range interfaces.UIDs() {
		name := interfaces[uid].String("name")
		names = append(names, name)
		byName[uid] = store.Record{"name": name}
	}

	rows, err := c.api.MonitorTraffic(ctx, names)
	if err != nil {
		return fmt.Errorf("traffic: %w", err)
	}
	samples := normalize.Apply(byName, rows, normalize.Spec{
		KeySearch: "name",
		Fields: []normalize.Field{
			{Name: "rx-bits-per-second", Kind: normalize.Float},
			{Name: "tx-bits-per-second", Kind: normalize.Float},
		},
	})

	unit := UnitLabel(cfg.DisplayUnit())
	return c.store.Update(store.Interface, func(section store.Section) (store.Section, error) {
		for uid, record := range section {
			record["rx-bits-per-second-attr"] = unit
			record["tx-bits-per-second-attr"] = unit
			sample, ok := samples[uid]
			if !ok || !sample.Has("rx-bits-per-second") {
				continue
			}
			record["rx-bits-per-second"] = roundInt(Convert(sample.Float64("rx-bits-per-second"), unit))
			record["tx-bits-per-second"] = roundInt(Convert(sample.Float64("tx-bits-per-second"), unit))
		}
		return section, nil
	})
}

type clientStep struct{}

func (clientStep) name() string { return "client" }

func (clientStep) run(_ context.Context, c *Controller, cfg model.RouterConfig) error {
	clients := c.store.Section(store.Client)
	tracking := cfg.ARPTracking()
	return c.store.Update(store.Interface, func(section store.Section) (store.Section, error) {
		for uid, record := range section {
			record["client-tracking"] = tracking
			if !tracking {
				delete(record, "client-ip-address")
				delete(record, "client-mac-address")
				continue
			}
			client, ok := clients[uid]
			if !ok {
				continue
			}
			record["client-ip-address"] = client.String("address")
			record["client-mac-address"] = client.String("mac-address")
		}
		return section, nil
	})
}

func roundInt(v float64) int64 {
	return int64(math.Round(v))
}
