package routeros

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/micro-ha/mikrotik-router/internal/routeros/proto"
)

// Session runs commands against one logged-in device connection.
type Session interface {
	Run(ctx context.Context, cmd string, args ...string) (*Reply, error)
	Close() error
}

// Conn speaks the sentence protocol over a byte stream.
type Conn struct {
	mu     sync.Mutex
	rw     io.ReadWriteCloser
	r      *proto.Reader
	w      *proto.Writer
	logger *slog.Logger
	closed bool
}

func NewConn(rw io.ReadWriteCloser, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{rw: rw, r: proto.NewReader(rw), w: proto.NewWriter(rw), logger: logger}
}

// Run writes one command sentence and reads replies until !done.
// One trap yields a *TrapError, several a *MultiTrapError; no rows are
// returned in either case.
func (c *Conn) Run(ctx context.Context, cmd string, args ...string) (*Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, &FatalError{Message: "connection closed"}
	}

	words := append([]string{cmd}, args...)
	c.trace("<---", words)
	if err := c.w.WriteSentence(words...); err != nil {
		c.closeLocked()
		return nil, err
	}

	reply, err := c.readReply()
	if err != nil {
		if isConnectionError(err) {
			c.closeLocked()
		}
		return nil, err
	}
	return reply, nil
}

func (c *Conn) readReply() (*Reply, error) {
	reply := &Reply{}
	var traps []*TrapError
	for reply.Done == nil {
		sentence, err := c.r.ReadSentence()
		if err != nil {
			return nil, err
		}
		c.trace("--->", append([]string{sentence.Word}, sentenceWords(sentence)...))

		switch sentence.Word {
		case "!re":
			reply.Re = append(reply.Re, sentence)
		case "!trap":
			traps = append(traps, trapFromSentence(sentence))
		case "!done":
			reply.Done = sentence
		case "!fatal":
			message := strings.Join(sentence.Words, " ")
			if message == "" {
				message = sentence.Map["message"]
			}
			return nil, &FatalError{Message: message}
		default:
			c.logger.Debug("ignoring unexpected reply word", "word", sentence.Word)
		}
	}

	switch len(traps) {
	case 0:
		return reply, nil
	case 1:
		return nil, traps[0]
	default:
		return nil, &MultiTrapError{Traps: traps}
	}
}

// Close closes the underlying transport.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Conn) closeLocked() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rw.Close()
}

func (c *Conn) trace(direction string, words []string) {
	if !c.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	for _, word := range words {
		if strings.HasPrefix(word, "=password=") {
			word = "=password=***"
		}
		c.logger.Debug("api word", "direction", direction, "word", word)
	}
	c.logger.Debug("api word", "direction", direction, "word", "EOS")
}

func sentenceWords(sentence *proto.Sentence) []string {
	words := make([]string, 0, len(sentence.List)+len(sentence.Words))
	for _, pair := range sentence.List {
		words = append(words, "="+pair.Key+"="+pair.Value)
	}
	return append(words, sentence.Words...)
}
