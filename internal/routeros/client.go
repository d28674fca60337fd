package routeros

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/micro-ha/mikrotik-router/internal/routeros/transport"
)

const (
	defaultTimeout = 10 * time.Second
	// connectRetryWindow suppresses reconnect attempts after a failed or
	// fresh connect so an unreachable device is not hammered every tick.
	connectRetryWindow = 58 * time.Second
)

// Client owns one logical device connection: it dials lazily, serializes
// every command and degrades to ErrNotConnected while the device is down.
type Client struct {
	config Config
	logger *slog.Logger

	dialFn func(ctx context.Context, cfg Config) (Session, error)
	nowFn  func() time.Time

	// mu serializes device I/O and guards the session fields below it.
	mu            sync.Mutex
	session       Session
	lastAttempt   time.Time
	errorReported bool
	snapshotAt    time.Time

	// Connection state is readable while mu is held by a round trip.
	connected atomic.Bool
	stateMu   sync.Mutex
	errKind   ErrorKind
	lastErr   error
}

// NewClient validates cfg and returns a disconnected client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	normalized, err := normalizeConfig(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	client := &Client{
		config: normalized,
		logger: logger.With("component", "routeros", "host", normalized.Address),
		nowFn:  time.Now,
	}
	client.dialFn = client.dial
	return client, nil
}

// Connect tries to establish a session unless one is already up or the
// previous attempt is still inside the retry window.
func (c *Client) Connect(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureLocked(ctx)
}

// Connected reports the current session state without dialing.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Error returns the classification of the last connect failure.
func (c *Client) Error() ErrorKind {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.errKind
}

// LastError returns the last connect or connection-level failure.
func (c *Client) LastError() error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.lastErr
}

// Close drops the session. The client may reconnect afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	c.connected.Store(false)
	return err
}

// Run executes one raw command.
func (c *Client) Run(ctx context.Context, cmd string, args ...string) (*Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runLocked(ctx, cmd, args...)
}

// Print lists path and returns its rows.
func (c *Client) Print(ctx context.Context, path string, words ...string) ([]Row, error) {
	reply, err := c.Run(ctx, joinPath(path, "print"), words...)
	if err != nil {
		return nil, err
	}
	return reply.Rows(), nil
}

// Path returns a command builder rooted at path.
func (c *Client) Path(path ...string) Path {
	return NewPath(c).Join(path...)
}

func (c *Client) runLocked(ctx context.Context, cmd string, args ...string) (*Reply, error) {
	if !c.ensureLocked(ctx) {
		return nil, fmt.Errorf("%s: %w", cmd, ErrNotConnected)
	}
	reply, err := c.session.Run(ctx, cmd, args...)
	if err != nil {
		if isConnectionError(err) {
			c.disconnectLocked(cmd, err)
			return nil, fmt.Errorf("%s: %w: %w", cmd, ErrNotConnected, err)
		}
		return nil, fmt.Errorf("%s: %w", cmd, err)
	}
	return reply, nil
}

func (c *Client) ensureLocked(ctx context.Context) bool {
	if c.session != nil {
		return true
	}
	if !c.lastAttempt.IsZero() && c.nowFn().Sub(c.lastAttempt) < connectRetryWindow {
		return false
	}
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) bool {
	c.lastAttempt = c.nowFn()
	c.setState(ErrorNone, nil)

	session, err := c.dialFn(ctx, c.config)
	if err != nil {
		kind := classifyError(err)
		c.setState(kind, err)
		if !c.errorReported {
			c.logger.Error("routeros connect failed", "err", err, "kind", string(kind))
			c.errorReported = true
		}
		return false
	}

	if c.errorReported {
		c.logger.Warn("routeros reconnected")
		c.errorReported = false
	} else {
		c.logger.Debug("routeros connected")
	}
	c.session = session
	c.connected.Store(true)
	c.snapshotAt = time.Time{}
	return true
}

func (c *Client) disconnectLocked(location string, err error) {
	if !c.errorReported {
		if err == nil {
			c.logger.Error("routeros connection closed")
		} else {
			c.logger.Error("routeros connection error", "while", location, "err", err)
		}
		c.errorReported = true
	}
	if c.session != nil {
		if closeErr := c.session.Close(); closeErr != nil && !errors.Is(closeErr, transport.ErrConnectionClosed) {
			c.logger.Debug("close routeros session", "err", closeErr)
		}
	}
	c.session = nil
	c.connected.Store(false)
	c.lastAttempt = time.Time{}
	c.stateMu.Lock()
	c.lastErr = err
	c.stateMu.Unlock()
}

func (c *Client) setState(kind ErrorKind, err error) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.errKind = kind
	c.lastErr = err
}

func (c *Client) dial(ctx context.Context, cfg Config) (Session, error) {
	opts := transport.Options{Timeout: cfg.Timeout}
	if cfg.UseTLS {
		opts.Wrap = transport.TLSWrap(&tls.Config{InsecureSkipVerify: !cfg.VerifyTLS}) //nolint:gosec
	}
	conn, err := transport.Dial(ctx, cfg.Address, opts)
	if err != nil {
		return nil, err
	}
	session := NewConn(conn, c.logger)
	if err := Login(ctx, session, cfg.Username, cfg.Password, cfg.LoginMethod); err != nil {
		_ = session.Close()
		return nil, err
	}
	return session, nil
}
