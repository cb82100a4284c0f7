package document

import (
	"bytes"
	"strings"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/snap-telemetry/snapharness/internal/errors"
)

// Format names a serialization of a document.
type Format string

// Supported formats.
const (
	YAML Format = "yaml"
	JSON Format = "json"
)

// Decode parses data in the given format.
func Decode(data []byte, format Format) (Value, error) {
	switch format {
	case JSON:
		return FromJSON(data)
	case YAML:
		return FromYAML(data)
	default:
		return Value{}, errors.Wrapf(errors.ErrInvalidInput, "unknown document format %q", format)
	}
}

// FromYAML parses a YAML document. An empty document is null. Aliases that
// refer to an enclosing node, or that expand the document far beyond its
// written size, are parse errors.
func FromYAML(data []byte) (Value, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return Value{}, errors.Wrapf(errors.ErrParse, "invalid YAML: %v", err)
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return Null(), nil
	}
	d := &nodeDecoder{open: make(map[*yaml.Node]bool)}
	return d.fromNode(root.Content[0])
}

// Alias expansion limits, matching the ratios yaml.v3 applies when decoding
// into Go values.
const (
	aliasRatioRangeLow  = 400000
	aliasRatioRangeHigh = 4000000
	aliasRatioRange     = float64(aliasRatioRangeHigh - aliasRatioRangeLow)
)

// allowedAliasRatio returns the share of decoded nodes that may come from
// alias expansion once decoded nodes reach decodeCount.
func allowedAliasRatio(decodeCount int) float64 {
	switch {
	case decodeCount <= aliasRatioRangeLow:
		return 0.99
	case decodeCount >= aliasRatioRangeHigh:
		return 0.10
	default:
		return 0.99 - 0.89*(float64(decodeCount-aliasRatioRangeLow)/aliasRatioRange)
	}
}

// nodeDecoder converts a yaml.Node tree, tracking the nodes being decoded
// and how many were reached through aliases.
type nodeDecoder struct {
	open        map[*yaml.Node]bool
	aliasDepth  int
	decodeCount int
	aliasCount  int
}

func (d *nodeDecoder) fromNode(n *yaml.Node) (Value, error) {
	d.decodeCount++
	if d.aliasDepth > 0 {
		d.aliasCount++
	}
	if d.aliasCount > 100 && d.decodeCount > 1000 &&
		float64(d.aliasCount)/float64(d.decodeCount) > allowedAliasRatio(d.decodeCount) {
		return Value{}, errors.Wrapf(errors.ErrParse, "excessive aliasing at line %d", n.Line)
	}

	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Null(), nil
		}
		return d.fromNode(n.Content[0])

	case yaml.AliasNode:
		if n.Alias == nil {
			return Value{}, errors.Wrapf(errors.ErrParse, "unknown anchor %q at line %d", n.Value, n.Line)
		}
		if d.open[n.Alias] {
			return Value{}, errors.Wrapf(errors.ErrParse, "recursive alias %q at line %d", n.Value, n.Line)
		}
		d.aliasDepth++
		v, err := d.fromNode(n.Alias)
		d.aliasDepth--
		return v, err

	case yaml.ScalarNode:
		return fromScalarNode(n)

	case yaml.SequenceNode:
		d.open[n] = true
		defer delete(d.open, n)

		items := make([]Value, 0, len(n.Content))
		for _, c := range n.Content {
			item, err := d.fromNode(c)
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
		}
		return Sequence(items...), nil

	case yaml.MappingNode:
		d.open[n] = true
		defer delete(d.open, n)

		entries := make([]Entry, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, val := n.Content[i], n.Content[i+1]
			if k.Kind == yaml.ScalarNode && k.ShortTag() == "!!merge" {
				merged, err := d.mergeEntries(val)
				if err != nil {
					return Value{}, err
				}
				for _, e := range merged {
					if !hasKey(entries, e.Key) {
						entries = append(entries, e)
					}
				}
				continue
			}
			v, err := d.fromNode(val)
			if err != nil {
				return Value{}, err
			}
			entries = setEntry(entries, Entry{Key: k.Value, Value: v})
		}
		return Value{kind: MappingKind, entries: entries}, nil

	default:
		return Value{}, errors.Wrapf(errors.ErrParse, "unsupported YAML node at line %d", n.Line)
	}
}

// mergeEntries resolves the value of a "<<" key: a mapping or a sequence of
// mappings, earlier ones taking precedence.
func (d *nodeDecoder) mergeEntries(n *yaml.Node) ([]Entry, error) {
	v, err := d.fromNode(n)
	if err != nil {
		return nil, err
	}
	switch v.kind {
	case MappingKind:
		return v.entries, nil
	case SequenceKind:
		var out []Entry
		for _, item := range v.items {
			for _, e := range item.entries {
				if !hasKey(out, e.Key) {
					out = append(out, e)
				}
			}
		}
		return out, nil
	default:
		return nil, errors.Wrapf(errors.ErrParse, "merge key at line %d must reference a mapping", n.Line)
	}
}

func hasKey(entries []Entry, key string) bool {
	for _, e := range entries {
		if e.Key == key {
			return true
		}
	}
	return false
}

func fromScalarNode(n *yaml.Node) (Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return Null(), nil
	case "!!bool", "!!int", "!!float":
		var out any
		if err := n.Decode(&out); err != nil {
			return Value{}, errors.Wrapf(errors.ErrParse, "line %d: %v", n.Line, err)
		}
		if i, ok := out.(int); ok {
			return Scalar(int64(i)), nil
		}
		return Scalar(out), nil
	default:
		return Scalar(n.Value), nil
	}
}

// FromJSON parses a JSON document. Empty input is null.
func FromJSON(data []byte) (Value, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Null(), nil
	}
	if !gjson.ValidBytes(data) {
		return Value{}, errors.Wrap(errors.ErrParse, "invalid JSON")
	}
	return fromResult(gjson.ParseBytes(data)), nil
}

func fromResult(r gjson.Result) Value {
	switch {
	case r.IsObject():
		var entries []Entry
		r.ForEach(func(key, value gjson.Result) bool {
			entries = setEntry(entries, Entry{Key: key.String(), Value: fromResult(value)})
			return true
		})
		return Value{kind: MappingKind, entries: entries}
	case r.IsArray():
		var items []Value
		r.ForEach(func(_, value gjson.Result) bool {
			items = append(items, fromResult(value))
			return true
		})
		return Sequence(items...)
	}

	switch r.Type {
	case gjson.String:
		return Scalar(r.Str)
	case gjson.True, gjson.False:
		return Scalar(r.Bool())
	case gjson.Number:
		if strings.ContainsAny(r.Raw, ".eE") {
			return Scalar(r.Float())
		}
		return Scalar(r.Int())
	default:
		return Null()
	}
}
