package document

import "strconv"

// Visitor is called for every node reached by Walk. path holds the mapping
// keys and sequence indexes leading to v; it must not be retained. Returning
// false skips v's children.
type Visitor func(path []string, v Value) bool

// Walk visits v and its descendants depth-first in document order.
func (v Value) Walk(fn Visitor) {
	walk(nil, v, fn)
}

func walk(path []string, v Value, fn Visitor) {
	if !fn(path, v) {
		return
	}
	switch v.kind {
	case SequenceKind:
		for i, item := range v.items {
			walk(append(path, strconv.Itoa(i)), item, fn)
		}
	case MappingKind:
		for _, e := range v.entries {
			walk(append(path, e.Key), e.Value, fn)
		}
	}
}

// FindAll returns every value stored under key in any mapping at any depth,
// in document order. Matches nested inside other matches are included.
func (v Value) FindAll(key string) []Value {
	var found []Value
	v.Walk(func(_ []string, node Value) bool {
		if node.kind != MappingKind {
			return true
		}
		for _, e := range node.entries {
			if e.Key == key {
				found = append(found, e.Value)
			}
		}
		return true
	})
	return found
}
