package controller

import (
	"context"
	"fmt"
	"sort"

	"github.com/micro-ha/mikrotik-router/internal/model"
	"github.com/micro-ha/mikrotik-router/internal/normalize"
	"github.com/micro-ha/mikrotik-router/internal/store"
)

var natSpec = normalize.Spec{
	Key:  ".id",
	Only: []normalize.Predicate{{Key: "action", Value: "dst-nat"}},
	Fields: []normalize.Field{
		{Name: ".id"},
		{Name: "protocol", Default: "any"},
		{Name: "dst-port", Default: "any"},
		{Name: "in-interface", Default: "any"},
		{Name: "to-addresses"},
		{Name: "to-ports"},
		{Name: "comment"},
		{Name: "enabled", Source: "disabled", Kind: normalize.Bool, Reverse: true},
	},
	Derived: []normalize.Derived{{
		Name:  "name",
		Parts: []normalize.Part{{Key: "protocol"}, {Text: ":"}, {Key: "dst-port"}},
	}},
}

type natStep struct{}

func (natStep) name() string { return "nat" }

// run rebuilds the dst-nat section. Rules sharing a display name cannot
// be told apart, so every one of them is dropped.
func (natStep) run(ctx context.Context, c *Controller, _ model.RouterConfig) error {
	rows, err := c.api.Print(ctx, "/ip/firewall/nat")
	if err != nil {
		return fmt.Errorf("nat: %w", err)
	}

	section := normalize.Apply(store.Section{}, rows, natSpec)
	byName := map[string][]string{}
	for uid, record := range section {
		name := record.String("name")
		byName[name] = append(byName[name], uid)
	}

	names := make([]string, 0, len(byName))
	for name, uids := range byName {
		if len(uids) < 2 {
			continue
		}
		for _, uid := range uids {
			delete(section, uid)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c.reportDuplicateNAT(name)
	}

	c.store.Replace(store.NAT, section)
	return nil
}

func (c *Controller) reportDuplicateNAT(name string) {
	c.mu.Lock()
	_, reported := c.natReported[name]
	c.natReported[name] = struct{}{}
	c.mu.Unlock()
	if !reported {
		c.logger.Error("duplicate nat rule name; rules removed", "name", name)
	}
}
