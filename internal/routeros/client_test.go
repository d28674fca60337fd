package routeros

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/micro-ha/mikrotik-router/internal/routeros/proto"
	"github.com/micro-ha/mikrotik-router/internal/routeros/transport"
)

type fakeSession struct {
	mu     sync.Mutex
	runFn  func(cmd string, args ...string) (*Reply, error)
	calls  []string
	closed int
}

func (s *fakeSession) Run(ctx context.Context, cmd string, args ...string) (*Reply, error) {
	_ = ctx
	s.mu.Lock()
	s.calls = append(s.calls, strings.Join(append([]string{cmd}, args...), " "))
	run := s.runFn
	s.mu.Unlock()
	if run == nil {
		return doneReply(nil), nil
	}
	return run(cmd, args...)
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSession) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestClient(t *testing.T, dial func(ctx context.Context, cfg Config) (Session, error)) (*Client, *fakeClock) {
	t.Helper()

	client, err := NewClient(Config{Address: "192.0.2.1", Username: "admin"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	client.nowFn = clock.Now
	client.dialFn = dial
	return client, clock
}

func doneReply(done map[string]string, rows ...map[string]string) *Reply {
	reply := &Reply{Done: sentence("!done", done)}
	for _, row := range rows {
		reply.Re = append(reply.Re, sentence("!re", row))
	}
	return reply
}

func sentence(word string, attrs map[string]string) *proto.Sentence {
	out := &proto.Sentence{Word: word, Map: map[string]string{}}
	for key, value := range attrs {
		out.List = append(out.List, proto.Pair{Key: key, Value: value})
		out.Map[key] = value
	}
	return out
}

func TestClientRetryWindowSuppressesDial(t *testing.T) {
	t.Helper()

	dialCalls := 0
	client, clock := newTestClient(t, func(ctx context.Context, cfg Config) (Session, error) {
		dialCalls++
		return nil, errors.New("dial tcp 192.0.2.1:8728: connect: connection refused")
	})

	if client.Connect(context.Background()) {
		t.Fatalf("expected connect to fail")
	}
	if client.Error() != ErrorCannotConnect {
		t.Fatalf("expected cannot_connect, got %q", client.Error())
	}

	clock.Advance(30 * time.Second)
	if _, err := client.Print(context.Background(), "/interface"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected inside retry window, got %v", err)
	}
	if dialCalls != 1 {
		t.Fatalf("expected 1 dial inside retry window, got %d", dialCalls)
	}

	clock.Advance(29 * time.Second)
	client.Connect(context.Background())
	if dialCalls != 2 {
		t.Fatalf("expected redial after retry window, got %d dials", dialCalls)
	}
}

func TestClientDisconnectsOnConnectionError(t *testing.T) {
	t.Helper()

	first := &fakeSession{runFn: func(cmd string, args ...string) (*Reply, error) {
		return nil, transport.ErrConnectionClosed
	}}
	second := &fakeSession{}
	sessions := []*fakeSession{first, second}
	dialCalls := 0
	client, _ := newTestClient(t, func(ctx context.Context, cfg Config) (Session, error) {
		session := sessions[dialCalls]
		dialCalls++
		return session, nil
	})

	_, err := client.Run(context.Background(), "/system/resource/print")
	if !errors.Is(err, ErrNotConnected) || !errors.Is(err, transport.ErrConnectionClosed) {
		t.Fatalf("expected not connected wrapping connection closed, got %v", err)
	}
	if client.Connected() {
		t.Fatalf("expected client to be disconnected")
	}
	if first.closed != 1 {
		t.Fatalf("expected broken session to be closed once, got %d", first.closed)
	}

	// A disconnect clears the retry window so the next call redials at once.
	if _, err := client.Run(context.Background(), "/system/resource/print"); err != nil {
		t.Fatalf("Run after reconnect returned error: %v", err)
	}
	if dialCalls != 2 {
		t.Fatalf("expected 2 dials, got %d", dialCalls)
	}
}

func TestClientTrapKeepsConnection(t *testing.T) {
	t.Helper()

	session := &fakeSession{runFn: func(cmd string, args ...string) (*Reply, error) {
		return nil, &TrapError{Message: "no such command prefix"}
	}}
	client, _ := newTestClient(t, func(ctx context.Context, cfg Config) (Session, error) {
		return session, nil
	})

	_, err := client.Print(context.Background(), "/ip/accounting")
	var trap *TrapError
	if !errors.As(err, &trap) {
		t.Fatalf("expected trap error, got %v", err)
	}
	if errors.Is(err, ErrNotConnected) {
		t.Fatalf("trap must not be reported as disconnect")
	}
	if !client.Connected() {
		t.Fatalf("expected connection to survive a trap")
	}
}

func TestClientUpdate(t *testing.T) {
	t.Helper()

	session := &fakeSession{runFn: func(cmd string, args ...string) (*Reply, error) {
		if cmd == "/ip/firewall/nat/print" {
			return doneReply(nil,
				map[string]string{".id": "*1", "comment": "web", "disabled": "no"},
				map[string]string{".id": "*2", "comment": "ssh", "disabled": "no"},
			), nil
		}
		return doneReply(nil), nil
	}}
	client, _ := newTestClient(t, func(ctx context.Context, cfg Config) (Session, error) {
		return session, nil
	})

	if err := client.Update(context.Background(), "/ip/firewall/nat", "comment", "ssh", "disabled", true); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	calls := session.Calls()
	want := "/ip/firewall/nat/set =.id=*2 =disabled=yes"
	if len(calls) != 2 || calls[1] != want {
		t.Fatalf("unexpected calls: %#v", calls)
	}

	err := client.Update(context.Background(), "/ip/firewall/nat", "comment", "ftp", "disabled", true)
	var notFound *EntryNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected entry not found, got %v", err)
	}
	if notFound.Field != "comment" || notFound.Value != "ftp" {
		t.Fatalf("unexpected entry not found details: %+v", notFound)
	}
}

func TestClientRunScript(t *testing.T) {
	t.Helper()

	session := &fakeSession{runFn: func(cmd string, args ...string) (*Reply, error) {
		if cmd == "/system/script/print" {
			return doneReply(nil, map[string]string{".id": "*A", "name": "backup"}), nil
		}
		return doneReply(nil), nil
	}}
	client, _ := newTestClient(t, func(ctx context.Context, cfg Config) (Session, error) {
		return session, nil
	})

	if err := client.RunScript(context.Background(), "backup"); err != nil {
		t.Fatalf("RunScript returned error: %v", err)
	}
	calls := session.Calls()
	if calls[len(calls)-1] != "/system/script/run =.id=*A" {
		t.Fatalf("unexpected run call: %q", calls[len(calls)-1])
	}

	var notFound *EntryNotFoundError
	if err := client.RunScript(context.Background(), "missing"); !errors.As(err, &notFound) {
		t.Fatalf("expected entry not found, got %v", err)
	}
}

func TestClientMonitorTraffic(t *testing.T) {
	t.Helper()

	session := &fakeSession{runFn: func(cmd string, args ...string) (*Reply, error) {
		return doneReply(nil, map[string]string{"name": "ether1", "rx-bits-per-second": "1000"}), nil
	}}
	client, _ := newTestClient(t, func(ctx context.Context, cfg Config) (Session, error) {
		return session, nil
	})

	rows, err := client.MonitorTraffic(context.Background(), []string{"ether1", "wlan1"})
	if err != nil {
		t.Fatalf("MonitorTraffic returned error: %v", err)
	}
	if len(rows) != 1 || rows[0]["rx-bits-per-second"] != int64(1000) {
		t.Fatalf("unexpected rows: %#v", rows)
	}
	if got := session.Calls()[0]; got != "/interface/monitor-traffic =interface=ether1,wlan1 =once=" {
		t.Fatalf("unexpected command: %q", got)
	}
}

func TestClientAccountingSnapshotElapsed(t *testing.T) {
	t.Helper()

	broken := false
	session := &fakeSession{runFn: func(cmd string, args ...string) (*Reply, error) {
		if broken {
			broken = false
			return nil, io.EOF
		}
		return doneReply(nil), nil
	}}
	client, clock := newTestClient(t, func(ctx context.Context, cfg Config) (Session, error) {
		return session, nil
	})

	_, elapsed, err := client.AccountingSnapshot(context.Background())
	if err != nil {
		t.Fatalf("AccountingSnapshot returned error: %v", err)
	}
	if elapsed != 0 {
		t.Fatalf("expected zero elapsed on first snapshot, got %s", elapsed)
	}

	clock.Advance(30 * time.Second)
	_, elapsed, err = client.AccountingSnapshot(context.Background())
	if err != nil {
		t.Fatalf("AccountingSnapshot returned error: %v", err)
	}
	if elapsed != 30*time.Second {
		t.Fatalf("expected 30s elapsed, got %s", elapsed)
	}

	broken = true
	if _, _, err := client.AccountingSnapshot(context.Background()); err == nil {
		t.Fatalf("expected error on broken connection")
	}
	clock.Advance(30 * time.Second)
	_, elapsed, err = client.AccountingSnapshot(context.Background())
	if err != nil {
		t.Fatalf("AccountingSnapshot after reconnect returned error: %v", err)
	}
	if elapsed != 0 {
		t.Fatalf("expected zero elapsed after reconnect, got %s", elapsed)
	}
}

func TestClassifyError(t *testing.T) {
	t.Helper()

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "nil", err: nil, want: ErrorNone},
		{name: "wrong login", err: &TrapError{Message: "invalid user name or password (6)"}, want: ErrorWrongLogin},
		{name: "handshake", err: &transport.HandshakeError{Err: errors.New("remote error")}, want: ErrorSSLHandshake},
		{name: "handshake text", err: errors.New("SSLV3_ALERT_HANDSHAKE_FAILURE"), want: ErrorSSLHandshake},
		{name: "refused", err: errors.New("connection refused"), want: ErrorCannotConnect},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyError(tc.err); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestNormalizeConfig(t *testing.T) {
	t.Helper()

	cfg, err := normalizeConfig(Config{Address: "10.0.0.1", Username: "admin", UseTLS: true})
	if err != nil {
		t.Fatalf("normalizeConfig returned error: %v", err)
	}
	if cfg.Address != "10.0.0.1:8729" {
		t.Fatalf("expected TLS default port, got %q", cfg.Address)
	}
	if cfg.LoginMethod != LoginPlain || cfg.Timeout != defaultTimeout {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	if _, err := normalizeConfig(Config{Address: "10.0.0.1", Username: "admin", LoginMethod: "digest"}); err == nil {
		t.Fatalf("expected unsupported login method error")
	}
	var validation *ValidationError
	if _, err := normalizeConfig(Config{Username: "admin"}); !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
