package routeros

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/micro-ha/mikrotik-router/internal/routeros/proto"
	"github.com/micro-ha/mikrotik-router/internal/routeros/transport"
)

// ErrNotConnected is returned while the device is unreachable or inside the
// reconnect suppression window.
var ErrNotConnected = errors.New("routeros not connected")

// ErrorKind classifies connection failures for configuration UIs.
type ErrorKind string

const (
	ErrorNone          ErrorKind = ""
	ErrorWrongLogin    ErrorKind = "wrong_login"
	ErrorSSLHandshake  ErrorKind = "ssl_handshake_failure"
	ErrorCannotConnect ErrorKind = "cannot_connect"
)

// ValidationError describes a user-supplied invalid value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "validation error"
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TrapError is a device-reported failure of one command.
type TrapError struct {
	Message  string
	Category int64
}

func (e *TrapError) Error() string {
	if e == nil {
		return "trap"
	}
	if e.Category != 0 {
		return fmt.Sprintf("trap: %s (category %d)", e.Message, e.Category)
	}
	return "trap: " + e.Message
}

// MultiTrapError aggregates more than one trap received for one command.
type MultiTrapError struct {
	Traps []*TrapError
}

func (e *MultiTrapError) Error() string {
	if e == nil || len(e.Traps) == 0 {
		return "multiple traps"
	}
	messages := make([]string, 0, len(e.Traps))
	for _, trap := range e.Traps {
		messages = append(messages, trap.Message)
	}
	return fmt.Sprintf("%d traps: %s", len(e.Traps), strings.Join(messages, "; "))
}

// Unwrap lets errors.As find the individual traps.
func (e *MultiTrapError) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, len(e.Traps))
	for _, trap := range e.Traps {
		out = append(out, trap)
	}
	return out
}

// FatalError is an unrecoverable device error; the connection is closed.
type FatalError struct {
	Message string
}

func (e *FatalError) Error() string {
	if e == nil {
		return "fatal"
	}
	return "fatal: " + e.Message
}

// EntryNotFoundError means a mutation target could not be located.
type EntryNotFoundError struct {
	Path  string
	Field string
	Value any
}

func (e *EntryNotFoundError) Error() string {
	if e == nil {
		return "entry not found"
	}
	return fmt.Sprintf("%s: entry with %s=%q not found", e.Path, e.Field, proto.FormatValue(e.Value))
}

func trapFromSentence(sentence *proto.Sentence) *TrapError {
	trap := &TrapError{Message: sentence.Map["message"]}
	if category, ok := sentence.Values()["category"].(int64); ok {
		trap.Category = category
	}
	return trap
}

// classifyError maps a connect failure onto an ErrorKind.
func classifyError(err error) ErrorKind {
	if err == nil {
		return ErrorNone
	}
	var trap *TrapError
	if errors.As(err, &trap) && strings.Contains(trap.Message, "invalid user name or password") {
		return ErrorWrongLogin
	}
	var handshake *transport.HandshakeError
	if errors.As(err, &handshake) {
		return ErrorSSLHandshake
	}
	if strings.Contains(strings.ToUpper(err.Error()), "HANDSHAKE_FAILURE") {
		return ErrorSSLHandshake
	}
	return ErrorCannotConnect
}

// isConnectionError reports whether err leaves the session unusable.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var trap *TrapError
	var multi *MultiTrapError
	if errors.As(err, &multi) || (errors.As(err, &trap) && !errors.Is(err, transport.ErrConnectionClosed)) {
		return false
	}
	if errors.Is(err, transport.ErrConnectionClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var perr *proto.ProtocolError
	if errors.As(err, &perr) {
		return true
	}
	var fatal *FatalError
	if errors.As(err, &fatal) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}

	message := strings.ToLower(err.Error())
	return strings.Contains(message, "broken pipe") ||
		strings.Contains(message, "connection reset") ||
		strings.Contains(message, "use of closed network connection") ||
		strings.Contains(message, "i/o timeout")
}
