package storage

import (
	"context"
	"strings"
	"time"

	"github.com/micro-ha/mikrotik-router/internal/model"
)

// LoadHosts returns every registered host keyed by MAC address.
func (r *Repository) LoadHosts(ctx context.Context) (map[string]model.Host, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT mac, address, host_name, interface, source, last_seen
		FROM hosts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := map[string]model.Host{}
	for rows.Next() {
		var (
			host     model.Host
			lastSeen string
		)
		if err := rows.Scan(&host.MAC, &host.Address, &host.HostName, &host.Interface, &host.Source, &lastSeen); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, lastSeen); err == nil {
			host.LastSeen = ts.UTC()
		}
		result[host.MAC] = host
	}
	return result, rows.Err()
}

// UpsertHosts stores hosts in one transaction.
func (r *Repository) UpsertHosts(ctx context.Context, hosts []model.Host) error {
	if len(hosts) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO hosts (mac, address, host_name, interface, source, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(mac) DO UPDATE SET
			address=excluded.address,
			host_name=excluded.host_name,
			interface=excluded.interface,
			source=excluded.source,
			last_seen=excluded.last_seen`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, host := range hosts {
		mac := strings.ToUpper(strings.TrimSpace(host.MAC))
		if mac == "" {
			continue
		}
		if _, err := stmt.ExecContext(
			ctx,
			mac,
			host.Address,
			host.HostName,
			host.Interface,
			host.Source,
			host.LastSeen.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteHost forgets one host.
func (r *Repository) DeleteHost(ctx context.Context, mac string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM hosts WHERE mac = ?`, strings.ToUpper(strings.TrimSpace(mac)))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
