package controller

import (
	"context"
	"fmt"

	"github.com/spf13/cast"

	"github.com/micro-ha/mikrotik-router/internal/model"
	"github.com/micro-ha/mikrotik-router/internal/routeros"
	"github.com/micro-ha/mikrotik-router/internal/store"
)

const (
	bridgeInterface = "bridge"
	multiple        = "multiple"
)

type arpStep struct{}

func (arpStep) name() string { return "arp" }

// run rebuilds the arp section from /ip/arp and, when ARP tracking is on,
// the per-interface client section. Entries seen on the bridge itself are
// resolved through the bridge host table.
func (arpStep) run(ctx context.Context, c *Controller, cfg model.RouterConfig) error {
	rows, err := c.api.Print(ctx, "/ip/arp")
	if err != nil {
		return fmt.Errorf("arp: %w", err)
	}

	entries := store.Section{}
	for _, row := range rows {
		mac := rowString(row, "mac-address")
		if mac == "" {
			continue
		}
		iface := rowString(row, "interface")
		entries[mac] = store.Record{
			"mac-address": mac,
			"address":     rowString(row, "address"),
			"interface":   iface,
			"bridge":      iface == bridgeInterface,
			"status":      rowString(row, "status"),
		}
	}

	if !cfg.ARPTracking() {
		c.store.Replace(store.ARP, entries)
		c.store.Replace(store.Client, store.Section{})
		return nil
	}

	uids := c.interfaceUIDs()
	clients, mac2ip, bridged := resolveARP(rows, uids)
	if bridged {
		hosts, err := c.api.Print(ctx, "/interface/bridge/host")
		if err != nil {
			return fmt.Errorf("bridge host: %w", err)
		}
		resolveBridgeHosts(clients, hosts, uids, mac2ip)
	}

	c.store.Replace(store.ARP, entries)
	c.store.Replace(store.Client, clients)
	return nil
}

// resolveARP attributes ARP rows to interface UIDs. Rows on the bridge
// only feed the returned MAC to address table.
func resolveARP(rows []routeros.Row, uids map[string]string) (store.Section, map[string]string, bool) {
	clients := store.Section{}
	mac2ip := map[string]string{}
	bridged := false
	for _, row := range rows {
		if rowBool(row, "invalid") {
			continue
		}
		iface := rowString(row, "interface")
		mac := rowString(row, "mac-address")
		address := rowString(row, "address")
		if iface == bridgeInterface {
			bridged = true
			if mac != "" {
				mac2ip[mac] = address
			}
			continue
		}
		uid, ok := uids[iface]
		if !ok {
			continue
		}
		setClient(clients, uid, mac, address)
	}
	return clients, mac2ip, bridged
}

func resolveBridgeHosts(clients store.Section, rows []routeros.Row, uids map[string]string, mac2ip map[string]string) {
	for _, row := range rows {
		if rowBool(row, "local") {
			continue
		}
		iface := rowString(row, "interface")
		if iface == "" {
			iface = rowString(row, "on-interface")
		}
		uid, ok := uids[iface]
		if !ok {
			continue
		}
		mac := rowString(row, "mac-address")
		setClient(clients, uid, mac, mac2ip[mac])
	}
}

// setClient records mac and address for uid. A second, different value
// degrades the field to "multiple" for the rest of the pass.
func setClient(clients store.Section, uid, mac, address string) {
	record, seen := clients[uid]
	if !seen {
		clients[uid] = store.Record{"mac-address": mac, "address": address}
		return
	}
	if record.String("mac-address") != mac {
		record["mac-address"] = multiple
		record["address"] = multiple
		return
	}
	if record.String("address") != address {
		record["address"] = multiple
	}
}

func rowString(row routeros.Row, key string) string {
	return cast.ToString(row[key])
}

func rowBool(row routeros.Row, key string) bool {
	value, ok := row[key].(bool)
	return ok && value
}

func rowInt(row routeros.Row, key string) int64 {
	return cast.ToInt64(row[key])
}
