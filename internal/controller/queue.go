package controller

import (
	"context"
	"fmt"
	"strings"

	"github.com/micro-ha/mikrotik-router/internal/model"
	"github.com/micro-ha/mikrotik-router/internal/normalize"
	"github.com/micro-ha/mikrotik-router/internal/routeros/proto"
	"github.com/micro-ha/mikrotik-router/internal/store"
)

// queueSplitFields hold "upload/download" pairs on the device.
var queueSplitFields = []string{"max-limit", "limit-at", "burst-limit", "burst-threshold", "burst-time", "queue"}

type queueStep struct{}

func (queueStep) name() string { return "queue" }

func (queueStep) run(ctx context.Context, c *Controller, _ model.RouterConfig) error {
	rows, err := c.api.Print(ctx, "/queue/simple")
	if err != nil {
		return fmt.Errorf("queue: %w", err)
	}
	fields := []normalize.Field{
		{Name: "name"},
		{Name: "target", Kind: normalize.String},
		{Name: "comment", Kind: normalize.String},
		{Name: "parent", Default: "none"},
		{Name: "priority", Kind: normalize.String},
		{Name: "enabled", Source: "disabled", Kind: normalize.Bool, Reverse: true},
	}
	for _, name := range queueSplitFields {
		fields = append(fields, normalize.Field{Name: name, Kind: normalize.String})
	}

	return c.store.Update(store.Queue, func(section store.Section) (store.Section, error) {
		section = normalize.Apply(section, rows, normalize.Spec{Key: "name", Fields: fields})
		for _, record := range section {
			for _, name := range queueSplitFields {
				upload, download := splitPair(record.String(name))
				record["upload-"+name] = upload
				record["download-"+name] = download
			}
		}
		return section, nil
	})
}

// splitPair splits RouterOS "upload/download" notation. A value without
// a separator applies to both directions.
func splitPair(value string) (any, any) {
	upload, download, ok := strings.Cut(value, "/")
	if !ok {
		download = upload
	}
	return proto.ParseValue(upload), proto.ParseValue(download)
}
