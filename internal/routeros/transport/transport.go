// Package transport delivers bytes to and from a RouterOS API socket.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// ErrConnectionClosed is returned when the peer closes the stream mid-read.
var ErrConnectionClosed = errors.New("connection unexpectedly closed")

// HandshakeError wraps a failed connection-time transform such as TLS.
type HandshakeError struct {
	Err error
}

func (e *HandshakeError) Error() string {
	if e == nil || e.Err == nil {
		return "handshake failed"
	}
	return "handshake failed: " + e.Err.Error()
}

func (e *HandshakeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WrapFunc transforms a freshly dialed connection once.
type WrapFunc func(ctx context.Context, conn net.Conn) (net.Conn, error)

// TLSWrap returns a WrapFunc performing a client TLS handshake.
func TLSWrap(cfg *tls.Config) WrapFunc {
	return func(ctx context.Context, conn net.Conn) (net.Conn, error) {
		tlsConn := tls.Client(conn, cfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return nil, err
		}
		return tlsConn, nil
	}
}

// Options configure Dial.
type Options struct {
	Timeout time.Duration
	Wrap    WrapFunc
}

// Conn is a blocking byte stream with exact-length reads.
type Conn struct {
	conn    net.Conn
	timeout time.Duration
}

// Dial connects to address and applies opts.Wrap.
func Dial(ctx context.Context, address string, opts Options) (*Conn, error) {
	dialer := net.Dialer{Timeout: opts.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	if opts.Wrap != nil {
		wrapCtx := ctx
		if opts.Timeout > 0 {
			var cancel context.CancelFunc
			wrapCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
			defer cancel()
		}
		wrapped, err := opts.Wrap(wrapCtx, conn)
		if err != nil {
			_ = conn.Close()
			return nil, &HandshakeError{Err: err}
		}
		conn = wrapped
	}
	return New(conn, opts.Timeout), nil
}

// New wraps an established connection. A zero timeout disables deadlines.
func New(conn net.Conn, timeout time.Duration) *Conn {
	return &Conn{conn: conn, timeout: timeout}
}

// ReadExact blocks until n bytes are read.
func (c *Conn) ReadExact(n int) ([]byte, error) {
	if err := c.setDeadline(c.conn.SetReadDeadline); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	read := 0
	for read < n {
		m, err := c.conn.Read(buf[read:])
		read += m
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrConnectionClosed
			}
			return nil, err
		}
		if m == 0 {
			return nil, ErrConnectionClosed
		}
	}
	return buf, nil
}

// Read satisfies io.Reader with exact-length semantics.
func (c *Conn) Read(p []byte) (int, error) {
	buf, err := c.ReadExact(len(p))
	if err != nil {
		return 0, err
	}
	return copy(p, buf), nil
}

// Write blocks until all of p is written.
func (c *Conn) Write(p []byte) (int, error) {
	if err := c.setDeadline(c.conn.SetWriteDeadline); err != nil {
		return 0, err
	}
	written := 0
	for written < len(p) {
		m, err := c.conn.Write(p[written:])
		written += m
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) setDeadline(set func(time.Time) error) error {
	if c.timeout <= 0 {
		return nil
	}
	return set(time.Now().Add(c.timeout))
}
