package routeros

import "github.com/micro-ha/mikrotik-router/internal/routeros/proto"

// Row is one attribute map with typed values (string, bool or int64).
type Row map[string]any

// Reply collects the sentences answering one command.
type Reply struct {
	Re   []*proto.Sentence
	Done *proto.Sentence
}

// Rows returns each !re sentence's attributes in order received. Values
// carried by !done are read through Ret.
func (r *Reply) Rows() []Row {
	if r == nil {
		return nil
	}
	rows := make([]Row, 0, len(r.Re))
	for _, sentence := range r.Re {
		rows = append(rows, Row(sentence.Values()))
	}
	return rows
}

// Ret returns the raw "ret" attribute of the !done sentence.
func (r *Reply) Ret() string {
	if r == nil || r.Done == nil {
		return ""
	}
	return r.Done.Map["ret"]
}
