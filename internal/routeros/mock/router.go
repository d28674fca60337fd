package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/micro-ha/mikrotik-router/internal/routeros"
)

// Call stores one API invocation.
type Call struct {
	Method string
	Path   string
	Args   []string
}

// Snapshot is one canned accounting snapshot answer.
type Snapshot struct {
	Rows    []routeros.Row
	Elapsed time.Duration
}

// Router is a programmable fake of the device API used by the controller.
type Router struct {
	mu sync.Mutex

	Disconnected bool
	Rows         map[string][]routeros.Row
	Errors       map[string]error
	Traffic      []routeros.Row
	Snapshots    []Snapshot

	PrintFunc     func(ctx context.Context, path string) ([]routeros.Row, error)
	UpdateFunc    func(ctx context.Context, path, param string, value any, modParam string, modValue any) error
	RunScriptFunc func(ctx context.Context, name string) error

	Calls []Call
}

func New() *Router {
	return &Router{Rows: map[string][]routeros.Row{}, Errors: map[string]error{}}
}

// Set replaces the rows returned for path.
func (r *Router) Set(path string, rows ...routeros.Row) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Rows == nil {
		r.Rows = map[string][]routeros.Row{}
	}
	r.Rows[path] = rows
}

// Fail makes every call on path return err.
func (r *Router) Fail(path string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Errors == nil {
		r.Errors = map[string]error{}
	}
	r.Errors[path] = err
}

func (r *Router) SetConnected(connected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Disconnected = !connected
}

func (r *Router) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.Disconnected
}

func (r *Router) Print(ctx context.Context, path string, words ...string) ([]routeros.Row, error) {
	r.mu.Lock()
	r.Calls = append(r.Calls, Call{Method: "print", Path: path, Args: append([]string(nil), words...)})
	printFn := r.PrintFunc
	disconnected := r.Disconnected
	err := r.Errors[path]
	rows := cloneRows(r.Rows[path])
	r.mu.Unlock()

	if disconnected {
		return nil, fmt.Errorf("%s: %w", path, routeros.ErrNotConnected)
	}
	if printFn != nil {
		return printFn(ctx, path)
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Router) MonitorTraffic(ctx context.Context, names []string) ([]routeros.Row, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, Call{Method: "monitor-traffic", Path: "/interface/monitor-traffic", Args: append([]string(nil), names...)})
	if r.Disconnected {
		return nil, routeros.ErrNotConnected
	}
	if err := r.Errors["/interface/monitor-traffic"]; err != nil {
		return nil, err
	}
	return cloneRows(r.Traffic), nil
}

func (r *Router) AccountingSnapshot(ctx context.Context) ([]routeros.Row, time.Duration, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, Call{Method: "accounting-snapshot", Path: "/ip/accounting/snapshot"})
	if r.Disconnected {
		return nil, 0, routeros.ErrNotConnected
	}
	if err := r.Errors["/ip/accounting/snapshot"]; err != nil {
		return nil, 0, err
	}
	if len(r.Snapshots) == 0 {
		return nil, 0, nil
	}
	next := r.Snapshots[0]
	r.Snapshots = r.Snapshots[1:]
	return cloneRows(next.Rows), next.Elapsed, nil
}

func (r *Router) Update(ctx context.Context, path, param string, value any, modParam string, modValue any) error {
	r.mu.Lock()
	r.Calls = append(r.Calls, Call{Method: "update", Path: path, Args: []string{param, fmt.Sprint(value), modParam, fmt.Sprint(modValue)}})
	update := r.UpdateFunc
	r.mu.Unlock()
	if update == nil {
		return nil
	}
	return update(ctx, path, param, value, modParam, modValue)
}

func (r *Router) RunScript(ctx context.Context, name string) error {
	r.mu.Lock()
	r.Calls = append(r.Calls, Call{Method: "run-script", Path: "/system/script", Args: []string{name}})
	run := r.RunScriptFunc
	r.mu.Unlock()
	if run == nil {
		return nil
	}
	return run(ctx, name)
}

// CallsSnapshot returns copy of accumulated calls.
func (r *Router) CallsSnapshot() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.Calls))
	copy(out, r.Calls)
	return out
}

// Count returns how many calls of method hit path.
func (r *Router) Count(method, path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, call := range r.Calls {
		if call.Method == method && call.Path == path {
			n++
		}
	}
	return n
}

func cloneRows(rows []routeros.Row) []routeros.Row {
	if rows == nil {
		return nil
	}
	out := make([]routeros.Row, 0, len(rows))
	for _, row := range rows {
		copied := make(routeros.Row, len(row))
		for key, value := range row {
			copied[key] = value
		}
		out = append(out, copied)
	}
	return out
}
