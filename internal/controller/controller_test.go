package controller

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/micro-ha/mikrotik-router/internal/logging"
	"github.com/micro-ha/mikrotik-router/internal/model"
	"github.com/micro-ha/mikrotik-router/internal/routeros"
	"github.com/micro-ha/mikrotik-router/internal/routeros/mock"
	"github.com/micro-ha/mikrotik-router/internal/routeros/routerostest"
	"github.com/micro-ha/mikrotik-router/internal/store"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func boolPtr(v bool) *bool { return &v }

func newTestController(t *testing.T, api API, cfg model.RouterConfig, opts Options) *Controller {
	t.Helper()

	opts.Config = func() model.RouterConfig { return cfg }
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	return New(api, store.New(), logging.Discard(), opts)
}

func TestUpdatePublishesToListeners(t *testing.T) {
	t.Helper()

	router := mock.New()
	router.Set("/interface", routeros.Row{"default-name": "ether1", "name": "ether1"})
	c := newTestController(t, router, model.RouterConfig{}, Options{})

	var first, second int
	c.Subscribe(func() { first++ })
	id := c.Subscribe(func() { second++ })

	if !c.Update(context.Background()) {
		t.Fatalf("expected cycle to run")
	}
	c.Unsubscribe(id)
	if !c.Update(context.Background()) {
		t.Fatalf("expected second cycle to run")
	}
	if first != 2 || second != 1 {
		t.Fatalf("unexpected notifications: first=%d second=%d", first, second)
	}

	c.Reset()
	c.Update(context.Background())
	if first != 2 {
		t.Fatalf("listener called after reset: %d", first)
	}
}

func TestUpdateRunsStepsInOrder(t *testing.T) {
	t.Helper()

	router := mock.New()
	router.Set("/system/package/update", routeros.Row{"status": "System is already up to date"})
	router.Set("/system/routerboard", routeros.Row{"routerboard": true, "model": "RB5009"})
	c := newTestController(t, router, model.RouterConfig{TrackHosts: true, TrackAccounting: true}, Options{})
	c.Update(context.Background())

	var paths []string
	for _, call := range router.CallsSnapshot() {
		if call.Method == "print" {
			paths = append(paths, call.Path)
		}
	}
	want := []string{
		"/system/package/update",
		"/system/routerboard",
		"/interface",
		"/ip/arp",
		"/ip/dns/static",
		"/ip/dhcp-server",
		"/ip/dhcp-server/network",
		"/ip/dhcp-server/lease",
		"/ip/firewall/nat",
		"/system/resource",
		"/system/script",
		"/queue/simple",
		"/ip/accounting",
	}
	if strings.Join(paths, " ") != strings.Join(want, " ") {
		t.Fatalf("unexpected step order:\n got %v\nwant %v", paths, want)
	}

	c.Update(context.Background())
	if n := router.Count("print", "/system/routerboard"); n != 1 {
		t.Fatalf("routerboard fetched %d times, want 1", n)
	}
	if n := router.Count("print", "/system/package/update"); n != 1 {
		t.Fatalf("firmware fetched %d times, want 1", n)
	}
}

func TestUpdateSkipsWhileCycleInFlight(t *testing.T) {
	t.Helper()

	router := mock.New()
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	router.PrintFunc = func(ctx context.Context, path string) ([]routeros.Row, error) {
		if path == "/interface" {
			once.Do(func() { close(started) })
			<-release
		}
		return nil, nil
	}
	c := newTestController(t, router, model.RouterConfig{}, Options{LockTimeout: 20 * time.Millisecond})

	done := make(chan bool)
	go func() { done <- c.Update(context.Background()) }()
	<-started

	if c.ForceUpdate(context.Background()) {
		t.Fatalf("expected refresh to be skipped while a cycle holds the gate")
	}
	if c.FirmwareCheck(context.Background()) {
		t.Fatalf("expected firmware check to be skipped while a cycle holds the gate")
	}
	close(release)
	if !<-done {
		t.Fatalf("expected in-flight cycle to complete")
	}
	if n := router.Count("print", "/interface"); n != 1 {
		t.Fatalf("interface fetched %d times, want 1", n)
	}
}

func TestUpdateStopsWhenDisconnected(t *testing.T) {
	t.Helper()

	router := mock.New()
	router.SetConnected(false)
	c := newTestController(t, router, model.RouterConfig{}, Options{})

	notified := 0
	c.Subscribe(func() { notified++ })
	if !c.Update(context.Background()) {
		t.Fatalf("expected cycle to run")
	}
	if n := router.Count("print", "/ip/arp"); n != 0 {
		t.Fatalf("expected cycle to stop after first not-connected step, arp fetched %d times", n)
	}
	if notified != 1 {
		t.Fatalf("expected one notification, got %d", notified)
	}
	if c.Connected() {
		t.Fatalf("expected controller to report disconnected")
	}
}

func TestStepFailureKeepsPreviousSection(t *testing.T) {
	t.Helper()

	router := mock.New()
	router.Set("/ip/dns/static", routeros.Row{"name": "nas.lan", "address": "192.168.88.5"})
	c := newTestController(t, router, model.RouterConfig{}, Options{})
	c.Update(context.Background())

	router.Fail("/ip/dns/static", &routeros.TrapError{Message: "no such command"})
	router.Set("/system/script", routeros.Row{"name": "backup", "run-count": int64(3)})
	c.Update(context.Background())

	if got := c.Snapshot()[store.DNS]["nas.lan"].String("address"); got != "192.168.88.5" {
		t.Fatalf("expected stale dns record to survive, got %q", got)
	}
	if got := c.Snapshot()[store.Script]["backup"].Int64("run-count"); got != 3 {
		t.Fatalf("expected later steps to run, run-count=%d", got)
	}
}

func TestRunScriptAndSetValue(t *testing.T) {
	t.Helper()

	router := mock.New()
	router.RunScriptFunc = func(ctx context.Context, name string) error {
		return &routeros.EntryNotFoundError{Path: "/system/script", Field: "name", Value: name}
	}
	c := newTestController(t, router, model.RouterConfig{}, Options{})

	err := c.RunScript(context.Background(), "missing")
	var notFound *routeros.EntryNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected EntryNotFoundError, got %v", err)
	}

	if err := c.SetValue(context.Background(), "/ip/firewall/nat", ".id", "*2", "disabled", true); err != nil {
		t.Fatalf("SetValue returned error: %v", err)
	}
	calls := router.CallsSnapshot()
	last := calls[len(calls)-1]
	if last.Method != "update" || last.Path != "/ip/firewall/nat" || strings.Join(last.Args, ",") != ".id,*2,disabled,true" {
		t.Fatalf("unexpected update call: %+v", last)
	}
}

func TestNATDuplicateLoggedOnce(t *testing.T) {
	t.Helper()

	router := mock.New()
	router.Set("/ip/firewall/nat",
		routeros.Row{".id": "*1", "action": "dst-nat", "protocol": "tcp", "dst-port": "80", "to-addresses": "192.168.88.2"},
		routeros.Row{".id": "*2", "action": "dst-nat", "protocol": "tcp", "dst-port": "80", "to-addresses": "192.168.88.3"},
		routeros.Row{".id": "*3", "action": "dst-nat", "protocol": "udp", "dst-port": "53"},
		routeros.Row{".id": "*4", "action": "masquerade"},
	)
	var logs bytes.Buffer
	c := New(router, store.New(), slog.New(slog.NewJSONHandler(&logs, nil)), Options{})

	c.Update(context.Background())
	c.Update(context.Background())

	nat := c.Snapshot()[store.NAT]
	if len(nat) != 1 {
		t.Fatalf("expected only the unique rule to remain, got %v", nat.UIDs())
	}
	if got := nat["*3"].String("name"); got != "udp:53" {
		t.Fatalf("unexpected derived name %q", got)
	}
	if n := strings.Count(logs.String(), "duplicate nat rule name"); n != 1 {
		t.Fatalf("expected one duplicate log line, got %d:\n%s", n, logs.String())
	}
}

func TestHWInfoAndFirmwareCheck(t *testing.T) {
	t.Helper()

	router := mock.New()
	router.Set("/system/routerboard", routeros.Row{"routerboard": true, "model": "RB4011", "serial-number": "ABC", "current-firmware": "7.14"})
	router.Set("/system/resource", routeros.Row{"total-memory": int64(1000), "free-memory": int64(250), "total-hdd-space": int64(0)})
	router.Set("/system/package/update", routeros.Row{"status": "New version is available", "installed-version": "7.14", "latest-version": "7.15"})
	c := newTestController(t, router, model.RouterConfig{}, Options{})

	notified := 0
	c.Subscribe(func() { notified++ })
	if !c.HWInfo(context.Background()) {
		t.Fatalf("expected HWInfo to run")
	}
	if !c.FirmwareCheck(context.Background()) {
		t.Fatalf("expected firmware check to run")
	}

	snap := c.Snapshot()
	board := snap[store.Routerboard][store.SingleUID]
	if board.String("model") != "RB4011" || board.String("firmware") != "7.14" || !board.Bool("routerboard") {
		t.Fatalf("unexpected routerboard record: %v", board)
	}
	resource := snap[store.Resource][store.SingleUID]
	if resource["memory-usage"] != int64(75) || resource["hdd-usage"] != "unknown" {
		t.Fatalf("unexpected usage values: %v", resource)
	}
	fw := snap[store.FWUpdate][store.SingleUID]
	if !fw.Bool("available") || fw.String("channel") != "unknown" {
		t.Fatalf("unexpected fw-update record: %v", fw)
	}
	if notified != 1 {
		t.Fatalf("expected firmware check to notify once, got %d", notified)
	}
}

func TestCycleAgainstDevice(t *testing.T) {
	t.Helper()

	srv := routerostest.New(t)
	srv.Handle("/interface/print", routerostest.Response{Rows: []map[string]string{
		{"default-name": "ether1", "name": "ether1", "running": "true", "disabled": "false", "type": "ether"},
	}})
	srv.Handle("/ip/arp/print", routerostest.Response{Rows: []map[string]string{
		{".id": "*1", "address": "192.168.88.20", "mac-address": "AA:BB:CC:00:00:01", "interface": "ether1"},
	}})

	client, err := routeros.NewClient(routeros.Config{
		Address:  srv.Addr(),
		Username: routerostest.DefaultUsername,
		Password: routerostest.DefaultPassword,
	}, logging.Discard())
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	c := newTestController(t, client, model.RouterConfig{}, Options{})
	if !c.Update(context.Background()) {
		t.Fatalf("expected cycle to run")
	}

	iface, ok := c.Store().Record(store.Interface, "ether1")
	if !ok {
		t.Fatalf("expected ether1 interface record")
	}
	if got := iface.String("client-ip-address"); got != "192.168.88.20" {
		t.Fatalf("unexpected client-ip-address %q", got)
	}
	if got := iface.String("client-mac-address"); got != "AA:BB:CC:00:00:01" {
		t.Fatalf("unexpected client-mac-address %q", got)
	}
	if iface["enabled"] != true || iface["running"] != true {
		t.Fatalf("unexpected flags: enabled=%v running=%v", iface["enabled"], iface["running"])
	}
	if !c.Connected() {
		t.Fatalf("expected traps on unhandled paths to keep the session")
	}
}
