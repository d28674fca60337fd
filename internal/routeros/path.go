package routeros

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/micro-ha/mikrotik-router/internal/routeros/proto"
)

// Runner executes one raw command. Client and Conn both satisfy it.
type Runner interface {
	Run(ctx context.Context, cmd string, args ...string) (*Reply, error)
}

// Path is an absolute menu path such as /ip/firewall/nat.
type Path struct {
	api  Runner
	path string
}

func NewPath(api Runner) Path {
	return Path{api: api}
}

// Join appends segments, collapsing duplicate and trailing slashes.
func (p Path) Join(segments ...string) Path {
	return Path{api: p.api, path: joinPath(p.path, segments...)}
}

func (p Path) String() string {
	if p.path == "" {
		return "/"
	}
	return p.path
}

// Call runs cmd below this path with named arguments.
func (p Path) Call(ctx context.Context, cmd string, args map[string]any) ([]Row, error) {
	reply, err := p.api.Run(ctx, joinPath(p.path, cmd), attributeWords(args)...)
	if err != nil {
		return nil, err
	}
	return reply.Rows(), nil
}

// Print lists every entry of the path.
func (p Path) Print(ctx context.Context) ([]Row, error) {
	return p.Call(ctx, "print", nil)
}

// Select starts a projected query returning only keys.
func (p Path) Select(keys ...string) *Query {
	return &Query{path: p, keys: keys}
}

// Add creates an entry and returns its device-assigned id.
func (p Path) Add(ctx context.Context, values map[string]any) (string, error) {
	reply, err := p.api.Run(ctx, joinPath(p.path, "add"), attributeWords(values)...)
	if err != nil {
		return "", err
	}
	ret := reply.Ret()
	if ret == "" {
		return "", fmt.Errorf("%s add: reply carries no id", p)
	}
	return ret, nil
}

// Update sets values on the entry referenced by the ".id" value.
func (p Path) Update(ctx context.Context, values map[string]any) error {
	if _, ok := values[".id"]; !ok {
		return &ValidationError{Field: ".id", Reason: "is required"}
	}
	_, err := p.api.Run(ctx, joinPath(p.path, "set"), attributeWords(values)...)
	return err
}

// Remove deletes entries by id.
func (p Path) Remove(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return &ValidationError{Field: ".id", Reason: "is required"}
	}
	_, err := p.api.Run(ctx, joinPath(p.path, "remove"), proto.ComposeAttribute(".id", strings.Join(ids, ",")))
	return err
}

func joinPath(base string, segments ...string) string {
	parts := make([]string, 0, len(segments)+1)
	for _, segment := range append([]string{base}, segments...) {
		for _, part := range strings.Split(segment, "/") {
			if part = strings.TrimSpace(part); part != "" {
				parts = append(parts, part)
			}
		}
	}
	return "/" + strings.Join(parts, "/")
}

func attributeWords(values map[string]any) []string {
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	words := make([]string, 0, len(keys))
	for _, key := range keys {
		trimmed := strings.TrimPrefix(strings.TrimSpace(key), "=")
		if trimmed == "" {
			continue
		}
		words = append(words, proto.ComposeAttribute(trimmed, values[key]))
	}
	return words
}
