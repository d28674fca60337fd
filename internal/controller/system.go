package controller

import (
	"context"
	"fmt"

	"github.com/micro-ha/mikrotik-router/internal/model"
	"github.com/micro-ha/mikrotik-router/internal/normalize"
	"github.com/micro-ha/mikrotik-router/internal/store"
)

const firmwareAvailable = "New version is available"

type resourceStep struct{}

func (resourceStep) name() string { return "resource" }

func (resourceStep) run(ctx context.Context, c *Controller, _ model.RouterConfig) error {
	rows, err := c.api.Print(ctx, "/system/resource")
	if err != nil {
		return fmt.Errorf("resource: %w", err)
	}
	return c.store.Update(store.Resource, func(section store.Section) (store.Section, error) {
		section = normalize.Apply(section, rows, normalize.Spec{
			Fields: []normalize.Field{
				{Name: "platform", Kind: normalize.String},
				{Name: "board-name", Kind: normalize.String},
				{Name: "version", Kind: normalize.String},
				{Name: "uptime", Kind: normalize.String},
				{Name: "cpu-load", Kind: normalize.Int},
				{Name: "free-memory", Kind: normalize.Int},
				{Name: "total-memory", Kind: normalize.Int},
				{Name: "free-hdd-space", Kind: normalize.Int},
				{Name: "total-hdd-space", Kind: normalize.Int},
			},
		})
		record := section.Ensure(store.SingleUID)
		record["memory-usage"] = Usage(record.Int64("total-memory"), record.Int64("free-memory"))
		record["hdd-usage"] = Usage(record.Int64("total-hdd-space"), record.Int64("free-hdd-space"))
		return section, nil
	})
}

type routerboardStep struct{}

func (routerboardStep) name() string { return "routerboard" }

func (routerboardStep) run(ctx context.Context, c *Controller, _ model.RouterConfig) error {
	return c.printInto(ctx, "/system/routerboard", store.Routerboard, normalize.Spec{
		Fields: []normalize.Field{
			{Name: "routerboard", Kind: normalize.Bool},
			{Name: "model", Default: "unknown"},
			{Name: "serial-number", Default: "unknown"},
			{Name: "firmware", DefaultFrom: "current-firmware", Default: "unknown"},
		},
	})
}

type firmwareStep struct{}

func (firmwareStep) name() string { return "fw-update" }

func (firmwareStep) run(ctx context.Context, c *Controller, _ model.RouterConfig) error {
	rows, err := c.api.Print(ctx, "/system/package/update")
	if err != nil {
		return fmt.Errorf("fw-update: %w", err)
	}
	return c.store.Update(store.FWUpdate, func(section store.Section) (store.Section, error) {
		section = normalize.Apply(section, rows, normalize.Spec{
			Fields: []normalize.Field{
				{Name: "status", Kind: normalize.String},
				{Name: "channel", Default: "unknown"},
				{Name: "installed-version", Default: "unknown"},
				{Name: "latest-version", Default: "unknown"},
			},
		})
		record := section.Ensure(store.SingleUID)
		record["available"] = record.String("status") == firmwareAvailable
		return section, nil
	})
}

type scriptStep struct{}

func (scriptStep) name() string { return "script" }

func (scriptStep) run(ctx context.Context, c *Controller, _ model.RouterConfig) error {
	return c.printInto(ctx, "/system/script", store.Script, normalize.Spec{
		Key: "name",
		Fields: []normalize.Field{
			{Name: "name"},
			{Name: "last-started", Default: "unknown"},
			{Name: "run-count", Default: "unknown"},
		},
	})
}
