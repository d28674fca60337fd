// Package normalize merges raw API rows into store sections following a
// small declarative description of each category.
package normalize

import (
	"strings"

	"github.com/spf13/cast"

	"github.com/micro-ha/mikrotik-router/internal/routeros"
	"github.com/micro-ha/mikrotik-router/internal/routeros/proto"
	"github.com/micro-ha/mikrotik-router/internal/store"
)

// Kind selects the coercion applied to a field value.
type Kind int

const (
	// Raw keeps the value as decoded from the wire.
	Raw Kind = iota
	String
	Bool
	Int
	Float
)

// Field copies one row attribute into the record.
type Field struct {
	Name string
	// Source is the row attribute to read; Name when empty.
	Source string
	Kind   Kind
	// Default is used when the row lacks Source and DefaultFrom.
	Default any
	// DefaultFrom names a row attribute to fall back on when Source is absent.
	DefaultFrom string
	// Reverse negates a Bool field, default included.
	Reverse bool
}

// Ensure seeds Name with Default only when the record has no such field.
type Ensure struct {
	Name    string
	Default any
}

// Part is one piece of a derived value: a record field or literal text.
type Part struct {
	Key  string
	Text string
}

// Derived concatenates parts into a synthetic field.
type Derived struct {
	Name  string
	Parts []Part
}

// Predicate matches rows whose Key equals Value.
type Predicate struct {
	Key   string
	Value any
}

// Spec describes how one category is keyed, filtered and filled.
type Spec struct {
	// Key is the row attribute holding the UID. Empty Key and KeySearch
	// means a singleton category stored under store.SingleUID.
	Key string
	// KeySearch re-keys rows by matching this attribute against the same
	// field of records already in the section.
	KeySearch string
	Fields    []Field
	Ensure    []Ensure
	Derived   []Derived
	// Only keeps rows matching every predicate.
	Only []Predicate
	// Skip drops rows matching any predicate.
	Skip []Predicate
}

// Apply merges rows into section and returns it. Fields not named by spec
// are never removed from existing records.
func Apply(section store.Section, rows []routeros.Row, spec Spec) store.Section {
	if section == nil {
		section = store.Section{}
	}

	var keymap map[string]string
	if spec.KeySearch != "" {
		keymap = make(map[string]string, len(section))
		for uid, record := range section {
			if value, ok := record[spec.KeySearch]; ok {
				keymap[proto.FormatValue(value)] = uid
			}
		}
	}

	for _, row := range rows {
		if !matchesAll(row, spec.Only) || matchesAny(row, spec.Skip) {
			continue
		}
		uid, ok := rowUID(row, spec, keymap)
		if !ok {
			continue
		}
		record := section.Ensure(uid)
		for _, field := range spec.Fields {
			record[field.Name] = fieldValue(row, field)
		}
		for _, ensure := range spec.Ensure {
			if !record.Has(ensure.Name) {
				record[ensure.Name] = ensureDefault(ensure.Default)
			}
		}
		for _, derived := range spec.Derived {
			record[derived.Name] = compose(record, derived.Parts)
		}
	}
	return section
}

func rowUID(row routeros.Row, spec Spec, keymap map[string]string) (string, bool) {
	switch {
	case spec.KeySearch != "":
		value, ok := row[spec.KeySearch]
		if !ok {
			return "", false
		}
		uid, ok := keymap[proto.FormatValue(value)]
		return uid, ok
	case spec.Key != "":
		value, ok := row[spec.Key]
		if !ok {
			return "", false
		}
		uid := proto.FormatValue(value)
		return uid, uid != ""
	default:
		return store.SingleUID, true
	}
}

func fieldValue(row routeros.Row, field Field) any {
	source := field.Source
	if source == "" {
		source = field.Name
	}
	value, ok := row[source]
	if !ok && field.DefaultFrom != "" {
		value, ok = row[field.DefaultFrom]
	}

	switch field.Kind {
	case Bool:
		result := cast.ToBool(field.Default)
		if ok {
			result = cast.ToBool(value)
		}
		if field.Reverse {
			return !result
		}
		return result
	case Int:
		if ok {
			if n, err := cast.ToInt64E(value); err == nil {
				return n
			}
		}
		return cast.ToInt64(field.Default)
	case Float:
		if ok {
			if f, err := cast.ToFloat64E(value); err == nil {
				return f
			}
		}
		return cast.ToFloat64(field.Default)
	case String:
		if ok {
			return cast.ToString(value)
		}
		return cast.ToString(field.Default)
	default:
		if ok {
			return value
		}
		if field.Default == nil {
			return ""
		}
		return field.Default
	}
}

func ensureDefault(value any) any {
	if value == nil {
		return ""
	}
	return value
}

func compose(record store.Record, parts []Part) string {
	var b strings.Builder
	for _, part := range parts {
		if part.Key != "" {
			b.WriteString(proto.FormatValue(record[part.Key]))
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

func matchesAll(row routeros.Row, predicates []Predicate) bool {
	for _, predicate := range predicates {
		if !matches(row, predicate) {
			return false
		}
	}
	return true
}

func matchesAny(row routeros.Row, predicates []Predicate) bool {
	for _, predicate := range predicates {
		if matches(row, predicate) {
			return true
		}
	}
	return false
}

func matches(row routeros.Row, predicate Predicate) bool {
	value, ok := row[predicate.Key]
	if !ok {
		return false
	}
	return proto.FormatValue(value) == proto.FormatValue(predicate.Value)
}
