package controller

import (
	"context"
	"strings"
	"time"

	"github.com/micro-ha/mikrotik-router/internal/model"
	"github.com/micro-ha/mikrotik-router/internal/store"
)

type hostStep struct{}

func (hostStep) name() string { return "host" }

// run reconciles the host section from DHCP leases, ARP entries and the
// registry. DHCP wins over ARP, which wins over restored entries.
func (hostStep) run(ctx context.Context, c *Controller, cfg model.RouterConfig) error {
	if !cfg.TrackHosts {
		return nil
	}
	now := c.nowFn().UTC()
	restored := c.restoreHosts(ctx)
	leases := c.store.Section(store.DHCP)
	arp := c.store.Section(store.ARP)
	dns := c.store.Section(store.DNS)

	var seen []model.Host
	err := c.store.Update(store.Host, func(section store.Section) (store.Section, error) {
		for mac, host := range restored {
			if _, ok := section[mac]; ok {
				continue
			}
			section[mac] = store.Record{
				"mac-address": mac,
				"address":     host.Address,
				"host-name":   host.HostName,
				"interface":   host.Interface,
				"source":      model.SourceRestored,
				"last-seen":   formatSeen(host.LastSeen),
			}
		}

		for mac, lease := range leases {
			record := section.Ensure(mac)
			record["mac-address"] = mac
			record["address"] = lease.String("address")
			record["interface"] = lease.String("interface")
			record["source"] = model.SourceDHCP
			if lease.String("status") == "bound" {
				record["last-seen"] = formatSeen(now)
			} else if ts, ok := lastSeen(lease.String("last-seen"), now); ok {
				record["last-seen"] = formatSeen(ts)
			}
		}

		for mac, entry := range arp {
			record := section.Ensure(mac)
			record["mac-address"] = mac
			if record.String("source") != model.SourceDHCP {
				record["address"] = entry.String("address")
				record["interface"] = entry.String("interface")
				record["source"] = model.SourceARP
			}
			switch entry.String("status") {
			case "failed", "incomplete":
			default:
				record["last-seen"] = formatSeen(now)
			}
		}

		timeout := cfg.TrackHostsTimeout()
		for mac, record := range section {
			record["host-name"] = hostName(record, leases[mac], dns)
			if c.vendors != nil && record.String("manufacturer") == "" {
				record["manufacturer"] = c.vendors.Lookup(mac)
			}
			ts, ok := parseSeen(record.String("last-seen"))
			if !ok {
				record["last-seen"] = "unknown"
			}
			record["available"] = ok && now.Sub(ts) < timeout
			if ok {
				seen = append(seen, model.Host{
					MAC:       mac,
					Address:   record.String("address"),
					HostName:  record.String("host-name"),
					Interface: record.String("interface"),
					Source:    record.String("source"),
					LastSeen:  ts,
				})
			}
		}
		return section, nil
	})
	if err != nil {
		return err
	}

	if c.registry != nil && len(seen) > 0 {
		if err := c.registry.UpsertHosts(ctx, seen); err != nil {
			c.logger.Warn("persist hosts failed", "err", err)
		}
	}
	return nil
}

// restoreHosts loads the registry once per process. A failed load is
// retried on the next cycle.
func (c *Controller) restoreHosts(ctx context.Context) map[string]model.Host {
	c.mu.Lock()
	loaded := c.hostsLoaded
	c.mu.Unlock()
	if loaded || c.registry == nil {
		return nil
	}

	hosts, err := c.registry.LoadHosts(ctx)
	if err != nil {
		c.logger.Warn("load hosts failed", "err", err)
		return nil
	}
	c.mu.Lock()
	c.hostsLoaded = true
	c.mu.Unlock()
	return hosts
}

// hostName picks the first non-empty name from static DNS, the lease
// comment, the lease host name and finally the MAC itself.
func hostName(record, lease store.Record, dns store.Section) string {
	address := record.String("address")
	if address != "" {
		for _, uid := range dns.UIDs() {
			if dns[uid].String("address") == address {
				return dns[uid].String("name")
			}
		}
	}
	if lease != nil {
		if comment := strings.TrimSpace(lease.String("comment")); comment != "" {
			return comment
		}
		if name := lease.String("host-name"); name != "" {
			return name
		}
	}
	if name := record.String("host-name"); name != "" && record.String("source") == model.SourceRestored {
		return name
	}
	return record.String("mac-address")
}

func formatSeen(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339)
}

func parseSeen(value string) (time.Time, bool) {
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
