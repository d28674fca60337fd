package controller

import (
	"context"
	"fmt"

	"github.com/micro-ha/mikrotik-router/internal/model"
	"github.com/micro-ha/mikrotik-router/internal/store"
	"github.com/micro-ha/mikrotik-router/internal/subnet"
)

var accountingCounters = []string{"lan-tx", "lan-rx", "wan-tx", "wan-rx"}

type flowTotals struct {
	lanTx, lanRx, wanTx, wanRx int64
}

type accountingStep struct{}

func (accountingStep) name() string { return "accounting" }

// run turns the device accounting snapshot into per-host rates. Flows are
// classified by whether each end lies inside a DHCP network; flows with
// both ends outside are ignored.
func (accountingStep) run(ctx context.Context, c *Controller, cfg model.RouterConfig) error {
	if !cfg.TrackAccounting {
		return nil
	}
	status, err := c.api.Print(ctx, "/ip/accounting")
	if err != nil {
		return fmt.Errorf("accounting: %w", err)
	}
	enabled := len(status) > 0 && rowBool(status[0], "enabled")

	leases := c.store.Section(store.DHCP)
	err = c.store.Update(store.Accounting, func(section store.Section) (store.Section, error) {
		for mac, lease := range leases {
			record := section.Ensure(mac)
			record["mac-address"] = mac
			record["address"] = lease.String("address")
			record["host-name"] = hostName(record, lease, nil)
			for _, counter := range accountingCounters {
				if !record.Has(counter) {
					record[counter] = int64(0)
				}
			}
		}
		if !enabled {
			for _, record := range section {
				for _, counter := range accountingCounters {
					record[counter] = int64(0)
				}
			}
		}
		return section, nil
	})
	if err != nil || !enabled {
		return err
	}

	rows, elapsed, err := c.api.AccountingSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("accounting snapshot: %w", err)
	}
	if elapsed <= 0 {
		return nil
	}

	local := subnet.New().WithNetworks(c.store.Section(store.DHCPNetwork).UIDs())
	if local.Len() == 0 {
		c.logger.Debug("no dhcp networks; every accounting flow is external")
	}
	totals := map[string]*flowTotals{}
	at := func(address string) *flowTotals {
		t, ok := totals[address]
		if !ok {
			t = &flowTotals{}
			totals[address] = t
		}
		return t
	}
	for _, row := range rows {
		src := rowString(row, "src-address")
		dst := rowString(row, "dst-address")
		bytes := rowInt(row, "bytes")
		srcLocal, dstLocal := local.Contains(src), local.Contains(dst)
		switch {
		case srcLocal && dstLocal:
			at(src).lanTx += bytes
			at(dst).lanRx += bytes
		case srcLocal:
			at(src).wanTx += bytes
		case dstLocal:
			at(dst).wanRx += bytes
		}
	}

	unit := UnitLabel(cfg.DisplayUnit())
	seconds := elapsed.Seconds()
	rate := func(bytes int64) int64 {
		return roundInt(Convert(float64(bytes)*8/seconds, unit))
	}
	return c.store.Update(store.Accounting, func(section store.Section) (store.Section, error) {
		for _, record := range section {
			t, ok := totals[record.String("address")]
			if !ok {
				t = &flowTotals{}
			}
			record["lan-tx"] = rate(t.lanTx)
			record["lan-rx"] = rate(t.lanRx)
			record["wan-tx"] = rate(t.wanTx)
			record["wan-rx"] = rate(t.wanRx)
			record["unit"] = unit
		}
		return section, nil
	})
}
