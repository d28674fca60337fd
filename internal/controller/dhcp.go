package controller

import (
	"context"

	"github.com/micro-ha/mikrotik-router/internal/model"
	"github.com/micro-ha/mikrotik-router/internal/normalize"
	"github.com/micro-ha/mikrotik-router/internal/store"
)

type dnsStep struct{}

func (dnsStep) name() string { return "dns" }

func (dnsStep) run(ctx context.Context, c *Controller, _ model.RouterConfig) error {
	return c.printInto(ctx, "/ip/dns/static", store.DNS, normalize.Spec{
		Key: "name",
		Fields: []normalize.Field{
			{Name: "name"},
			{Name: "address"},
			{Name: "comment"},
		},
	})
}

type dhcpStep struct{}

func (dhcpStep) name() string { return "dhcp" }

// run refreshes servers, networks and leases. Servers go first so each
// lease can be attributed to the interface its server listens on.
func (dhcpStep) run(ctx context.Context, c *Controller, _ model.RouterConfig) error {
	err := c.printInto(ctx, "/ip/dhcp-server", store.DHCPServer, normalize.Spec{
		Key: "name",
		Fields: []normalize.Field{
			{Name: "name"},
			{Name: "interface"},
			{Name: "address-pool"},
			{Name: "enabled", Source: "disabled", Kind: normalize.Bool, Reverse: true},
		},
	})
	if err != nil {
		return err
	}

	err = c.printInto(ctx, "/ip/dhcp-server/network", store.DHCPNetwork, normalize.Spec{
		Key: "address",
		Fields: []normalize.Field{
			{Name: "address"},
			{Name: "gateway"},
			{Name: "netmask"},
			{Name: "dns-server"},
			{Name: "domain"},
		},
	})
	if err != nil {
		return err
	}

	if err := c.printInto(ctx, "/ip/dhcp-server/lease", store.DHCP, normalize.Spec{
		Key: "mac-address",
		Fields: []normalize.Field{
			{Name: "mac-address"},
			{Name: "address", Source: "active-address", DefaultFrom: "address"},
			{Name: "host-name", Kind: normalize.String},
			{Name: "comment", Kind: normalize.String},
			{Name: "server", Kind: normalize.String},
			{Name: "status", Kind: normalize.String},
			{Name: "last-seen", Kind: normalize.String},
			{Name: "enabled", Source: "disabled", Kind: normalize.Bool, Reverse: true},
			{Name: "dynamic", Kind: normalize.Bool},
		},
	}); err != nil {
		return err
	}

	servers := c.store.Section(store.DHCPServer)
	return c.store.Update(store.DHCP, func(section store.Section) (store.Section, error) {
		for _, record := range section {
			server, ok := servers[record.String("server")]
			if !ok {
				record["interface"] = "unknown"
				continue
			}
			record["interface"] = server.String("interface")
		}
		return section, nil
	})
}
