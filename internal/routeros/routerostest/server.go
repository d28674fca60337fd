// Package routerostest provides a loopback RouterOS API device for tests.
package routerostest

import (
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"net"
	"sort"
	"sync"
	"testing"

	"github.com/micro-ha/mikrotik-router/internal/routeros/proto"
)

const (
	DefaultUsername  = "admin"
	DefaultPassword  = "secret"
	DefaultChallenge = "ebddd18303a54111e2dea05a92ab46b4"
)

// Response is the canned answer to one command.
type Response struct {
	Rows  []map[string]string
	Done  map[string]string
	Traps []string
	// Fatal sends !fatal with this message and drops the connection.
	Fatal string
}

// Call is one command received after login.
type Call struct {
	Command string
	Attrs   map[string]string
	Words   []string
}

// HandlerFunc computes a response from the received call.
type HandlerFunc func(call Call) Response

// Server is a fake device speaking the API sentence protocol.
type Server struct {
	Username  string
	Password  string
	Challenge string

	ln net.Listener
	wg sync.WaitGroup

	mu       sync.Mutex
	handlers map[string]HandlerFunc
	calls    []Call
	conns    map[net.Conn]struct{}
	logins   int
}

// New starts a server on 127.0.0.1 and stops it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &Server{
		Username:  DefaultUsername,
		Password:  DefaultPassword,
		Challenge: DefaultChallenge,
		ln:        ln,
		handlers:  make(map[string]HandlerFunc),
		conns:     make(map[net.Conn]struct{}),
	}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

// Addr returns host:port of the listener.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Handle registers a static response for cmd.
func (s *Server) Handle(cmd string, resp Response) {
	s.HandleFunc(cmd, func(Call) Response { return resp })
}

// HandleFunc registers a dynamic response for cmd.
func (s *Server) HandleFunc(cmd string, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[cmd] = fn
}

// Calls returns a copy of the commands received after login.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Logins returns the number of successful logins.
func (s *Server) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

// DropConnections closes every accepted connection.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

func (s *Server) Close() {
	_ = s.ln.Close()
	s.DropConnections()
	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.conns, conn)
				s.mu.Unlock()
				_ = conn.Close()
			}()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	r := proto.NewReader(conn)
	w := proto.NewWriter(conn)
	loggedIn := false
	for {
		sentence, err := r.ReadSentence()
		if err != nil {
			return
		}
		call := Call{Command: sentence.Word, Attrs: sentence.Map, Words: sentence.Words}

		if call.Command == "/login" {
			ok, resp := s.login(call)
			if ok {
				loggedIn = true
			}
			if err := writeResponse(w, resp); err != nil {
				return
			}
			continue
		}
		if !loggedIn {
			_ = writeResponse(w, Response{Fatal: "not logged in"})
			return
		}

		s.mu.Lock()
		s.calls = append(s.calls, call)
		handler, found := s.handlers[call.Command]
		s.mu.Unlock()

		resp := Response{}
		if found {
			resp = handler(call)
		} else {
			resp.Traps = []string{"no such command prefix"}
		}
		if err := writeResponse(w, resp); err != nil || resp.Fatal != "" {
			return
		}
	}
}

func (s *Server) login(call Call) (bool, Response) {
	name, hasName := call.Attrs["name"]
	password, hasPassword := call.Attrs["password"]
	response, hasResponse := call.Attrs["response"]

	switch {
	case !hasName:
		return false, Response{Done: map[string]string{"ret": s.Challenge}}
	case hasPassword && name == s.Username && password == s.Password:
	case hasResponse && name == s.Username && response == challengeResponse(s.Challenge, s.Password):
	default:
		return false, Response{Traps: []string{"invalid user name or password (6)"}}
	}

	s.mu.Lock()
	s.logins++
	s.mu.Unlock()
	return true, Response{}
}

func challengeResponse(challenge, password string) string {
	raw, err := hex.DecodeString(challenge)
	if err != nil {
		return ""
	}
	sum := md5.Sum(append(append([]byte{0x00}, password...), raw...)) //nolint:gosec
	return "00" + hex.EncodeToString(sum[:])
}

func writeResponse(w *proto.Writer, resp Response) error {
	if resp.Fatal != "" {
		return w.WriteSentence("!fatal", resp.Fatal)
	}
	for _, row := range resp.Rows {
		if err := w.WriteSentence(append([]string{"!re"}, attributeWords(row)...)...); err != nil {
			return err
		}
	}
	for _, message := range resp.Traps {
		if err := w.WriteSentence("!trap", "=message="+message); err != nil {
			return err
		}
	}
	return w.WriteSentence(append([]string{"!done"}, attributeWords(resp.Done)...)...)
}

func attributeWords(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	words := make([]string, 0, len(keys))
	for _, key := range keys {
		words = append(words, "="+key+"="+values[key])
	}
	return words
}

