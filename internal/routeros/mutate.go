package routeros

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/micro-ha/mikrotik-router/internal/routeros/proto"
)

// lockedRunner runs commands on a client whose mutex is already held.
type lockedRunner struct {
	client *Client
}

func (r lockedRunner) Run(ctx context.Context, cmd string, args ...string) (*Reply, error) {
	return r.client.runLocked(ctx, cmd, args...)
}

// Update sets modParam=modValue on every entry of path whose param equals
// value. No matching entry yields *EntryNotFoundError.
func (c *Client) Update(ctx context.Context, path, param string, value any, modParam string, modValue any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := NewPath(lockedRunner{client: c}).Join(path)
	ids, err := matchingIDs(ctx, p, param, value)
	if err != nil {
		return fmt.Errorf("update %s: %w", p, err)
	}
	for _, id := range ids {
		if err := p.Update(ctx, map[string]any{".id": id, modParam: modValue}); err != nil {
			return fmt.Errorf("update %s %s: %w", p, id, err)
		}
	}
	return nil
}

// RunScript starts the named /system/script entry.
func (c *Client) RunScript(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p := NewPath(lockedRunner{client: c}).Join("/system/script")
	ids, err := matchingIDs(ctx, p, "name", name)
	if err != nil {
		return fmt.Errorf("run script: %w", err)
	}
	for _, id := range ids {
		if _, err := p.Call(ctx, "run", map[string]any{".id": id}); err != nil {
			return fmt.Errorf("run script %q: %w", name, err)
		}
	}
	return nil
}

// Add creates an entry below path and returns its id.
func (c *Client) Add(ctx context.Context, path string, values map[string]any) (string, error) {
	return c.Path(path).Add(ctx, values)
}

// Remove deletes entries below path by id.
func (c *Client) Remove(ctx context.Context, path string, ids ...string) error {
	return c.Path(path).Remove(ctx, ids...)
}

// MonitorTraffic samples /interface/monitor-traffic once for names.
func (c *Client) MonitorTraffic(ctx context.Context, names []string) ([]Row, error) {
	if len(names) == 0 {
		return nil, nil
	}
	reply, err := c.Run(ctx, "/interface/monitor-traffic",
		proto.ComposeAttribute("interface", strings.Join(names, ",")),
		"=once=",
	)
	if err != nil {
		return nil, fmt.Errorf("monitor traffic: %w", err)
	}
	return reply.Rows(), nil
}

// AccountingSnapshot takes a device-side accounting snapshot and returns
// its flows together with the time elapsed since the previous snapshot.
// The first snapshot after a (re)connect reports zero elapsed.
func (c *Client) AccountingSnapshot(ctx context.Context) ([]Row, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.runLocked(ctx, "/ip/accounting/snapshot/take"); err != nil {
		return nil, 0, fmt.Errorf("take accounting snapshot: %w", err)
	}
	now := c.nowFn()
	var elapsed time.Duration
	if !c.snapshotAt.IsZero() {
		elapsed = now.Sub(c.snapshotAt)
	}
	c.snapshotAt = now

	reply, err := c.runLocked(ctx, "/ip/accounting/snapshot/print")
	if err != nil {
		return nil, 0, fmt.Errorf("read accounting snapshot: %w", err)
	}
	return reply.Rows(), elapsed, nil
}

func matchingIDs(ctx context.Context, p Path, param string, value any) ([]string, error) {
	rows, err := p.Print(ctx)
	if err != nil {
		return nil, err
	}
	want := proto.FormatValue(value)
	var ids []string
	for _, row := range rows {
		current, ok := row[param]
		if !ok || proto.FormatValue(current) != want {
			continue
		}
		id, _ := row[".id"].(string)
		if id == "" {
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, &EntryNotFoundError{Path: p.String(), Field: param, Value: value}
	}
	return ids, nil
}
