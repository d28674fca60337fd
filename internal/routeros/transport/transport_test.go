package transport

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestReadExactLoopsOverShortReads(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		_, _ = server.Write([]byte("ab"))
		_, _ = server.Write([]byte("cde"))
	}()

	conn := New(client, time.Second)
	got, err := conn.ReadExact(5)
	if err != nil {
		t.Fatalf("ReadExact returned error: %v", err)
	}
	if string(got) != "abcde" {
		t.Fatalf("unexpected bytes %q", got)
	}
}

func TestReadExactReportsClosedConnection(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	go func() {
		_, _ = server.Write([]byte("a"))
		_ = server.Close()
	}()

	conn := New(client, time.Second)
	_, err := conn.ReadExact(4)
	if !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("expected ErrConnectionClosed, got %v", err)
	}
}

func TestWriteDeliversFullBuffer(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 6)
		n, _ := New(server, time.Second).Read(buf)
		done <- buf[:n]
	}()

	if _, err := New(client, time.Second).Write([]byte("abcdef")); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if got := <-done; string(got) != "abcdef" {
		t.Fatalf("unexpected bytes %q", got)
	}
}

func TestDialWrapFailureIsHandshakeError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			defer conn.Close()
			time.Sleep(100 * time.Millisecond)
		}
	}()

	wrapErr := errors.New("alert handshake failure")
	_, err = Dial(context.Background(), ln.Addr().String(), Options{
		Timeout: time.Second,
		Wrap: func(ctx context.Context, conn net.Conn) (net.Conn, error) {
			return nil, wrapErr
		},
	})
	var hsErr *HandshakeError
	if !errors.As(err, &hsErr) {
		t.Fatalf("expected HandshakeError, got %v", err)
	}
	if !errors.Is(err, wrapErr) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}
