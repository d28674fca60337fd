package routeros

import (
	"context"
	"strings"

	"github.com/micro-ha/mikrotik-router/internal/routeros/proto"
)

// Predicate is a sequence of query words evaluated on the device.
type Predicate []string

// Key names an attribute in a query predicate.
type Key string

func (k Key) Eq(value any) Predicate {
	return Predicate{"?" + string(k) + "=" + proto.FormatValue(value)}
}

func (k Key) Ne(value any) Predicate {
	return append(k.Eq(value), "?#!")
}

func (k Key) Lt(value any) Predicate {
	return Predicate{"?<" + string(k) + "=" + proto.FormatValue(value)}
}

func (k Key) Gt(value any) Predicate {
	return Predicate{"?>" + string(k) + "=" + proto.FormatValue(value)}
}

// And matches when every predicate matches.
func And(left, right Predicate, rest ...Predicate) Predicate {
	return combine("?#&", left, right, rest)
}

// Or matches when any predicate matches.
func Or(left, right Predicate, rest ...Predicate) Predicate {
	return combine("?#|", left, right, rest)
}

func combine(op string, left, right Predicate, rest []Predicate) Predicate {
	out := make(Predicate, 0, len(left)+len(right)+len(rest)+1)
	out = append(out, left...)
	out = append(out, right...)
	for _, predicate := range rest {
		out = append(out, predicate...)
	}
	for i := 0; i <= len(rest); i++ {
		out = append(out, op)
	}
	return out
}

// Query is a filtered, projected print.
type Query struct {
	path  Path
	keys  []string
	where []string
}

// Where replaces the filter with the concatenation of predicates.
func (q *Query) Where(predicates ...Predicate) *Query {
	q.where = q.where[:0]
	for _, predicate := range predicates {
		q.where = append(q.where, predicate...)
	}
	return q
}

// Words returns the argument words sent after the print command.
func (q *Query) Words() []string {
	words := make([]string, 0, len(q.where)+1)
	if len(q.keys) > 0 {
		words = append(words, "=.proplist="+strings.Join(q.keys, ","))
	}
	return append(words, q.where...)
}

func (q *Query) Run(ctx context.Context) ([]Row, error) {
	reply, err := q.path.api.Run(ctx, joinPath(q.path.path, "print"), q.Words()...)
	if err != nil {
		return nil, err
	}
	return reply.Rows(), nil
}
