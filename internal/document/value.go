// Package document holds the generic tree that task definitions and API
// responses are decoded into. A Value is null, a scalar, a sequence or an
// ordered mapping; mappings keep the key order of the source document.
package document

import (
	"fmt"
	"strings"
)

// Kind identifies the shape of a Value.
type Kind int

// Value kinds.
const (
	NullKind Kind = iota
	ScalarKind
	SequenceKind
	MappingKind
)

// String returns a lowercase name for the kind.
func (k Kind) String() string {
	switch k {
	case NullKind:
		return "null"
	case ScalarKind:
		return "scalar"
	case SequenceKind:
		return "sequence"
	case MappingKind:
		return "mapping"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Entry is one key/value pair of a mapping.
type Entry struct {
	Key   string
	Value Value
}

// Value is an immutable document node. The zero Value is null.
type Value struct {
	kind    Kind
	scalar  any // string, bool, int64 or float64
	items   []Value
	entries []Entry
}

// Null returns the null Value.
func Null() Value {
	return Value{}
}

// Scalar wraps a string, bool, integer or float.
func Scalar(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case int:
		v = int64(x)
	case int32:
		v = int64(x)
	case float32:
		v = float64(x)
	}
	return Value{kind: ScalarKind, scalar: v}
}

// Sequence builds a sequence of items.
func Sequence(items ...Value) Value {
	return Value{kind: SequenceKind, items: items}
}

// Mapping builds a mapping from ordered entries. A repeated key replaces the
// earlier value but keeps its position.
func Mapping(entries ...Entry) Value {
	m := Value{kind: MappingKind, entries: make([]Entry, 0, len(entries))}
	for _, e := range entries {
		m.entries = setEntry(m.entries, e)
	}
	return m
}

func setEntry(entries []Entry, e Entry) []Entry {
	for i := range entries {
		if entries[i].Key == e.Key {
			entries[i].Value = e.Value
			return entries
		}
	}
	return append(entries, e)
}

// Kind returns the kind of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == NullKind }

// IsScalar reports whether v is a scalar.
func (v Value) IsScalar() bool { return v.kind == ScalarKind }

// IsSequence reports whether v is a sequence.
func (v Value) IsSequence() bool { return v.kind == SequenceKind }

// IsMapping reports whether v is a mapping.
func (v Value) IsMapping() bool { return v.kind == MappingKind }

// Raw returns the scalar's Go value, or nil for other kinds.
func (v Value) Raw() any {
	if v.kind != ScalarKind {
		return nil
	}
	return v.scalar
}

// String returns the text of a scalar and "" for null. Sequences and
// mappings render in a compact debugging form.
func (v Value) String() string {
	switch v.kind {
	case NullKind:
		return ""
	case ScalarKind:
		return fmt.Sprint(v.scalar)
	case SequenceKind:
		parts := make([]string, len(v.items))
		for i, item := range v.items {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, " ") + "]"
	default:
		parts := make([]string, len(v.entries))
		for i, e := range v.entries {
			parts[i] = e.Key + ":" + e.Value.String()
		}
		return "{" + strings.Join(parts, " ") + "}"
	}
}

// Len returns the number of items or entries; 0 for scalars and null.
func (v Value) Len() int {
	switch v.kind {
	case SequenceKind:
		return len(v.items)
	case MappingKind:
		return len(v.entries)
	default:
		return 0
	}
}

// Items returns the elements of a sequence.
func (v Value) Items() []Value {
	if v.kind != SequenceKind {
		return nil
	}
	return append([]Value(nil), v.items...)
}

// Entries returns the entries of a mapping in document order.
func (v Value) Entries() []Entry {
	if v.kind != MappingKind {
		return nil
	}
	return append([]Entry(nil), v.entries...)
}

// Keys returns the keys of a mapping in document order.
func (v Value) Keys() []string {
	if v.kind != MappingKind {
		return nil
	}
	keys := make([]string, len(v.entries))
	for i, e := range v.entries {
		keys[i] = e.Key
	}
	return keys
}

// Get returns the value stored under key in a mapping.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != MappingKind {
		return Value{}, false
	}
	for _, e := range v.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return Value{}, false
}

// Lookup follows a path of mapping keys from v.
func (v Value) Lookup(path ...string) (Value, bool) {
	cur := v
	for _, key := range path {
		next, ok := cur.Get(key)
		if !ok {
			return Value{}, false
		}
		cur = next
	}
	return cur, true
}

// Interface converts v to plain Go values: nil, scalars, []any and
// map[string]any. Key order is lost.
func (v Value) Interface() any {
	switch v.kind {
	case ScalarKind:
		return v.scalar
	case SequenceKind:
		out := make([]any, len(v.items))
		for i, item := range v.items {
			out[i] = item.Interface()
		}
		return out
	case MappingKind:
		out := make(map[string]any, len(v.entries))
		for _, e := range v.entries {
			out[e.Key] = e.Value.Interface()
		}
		return out
	default:
		return nil
	}
}
