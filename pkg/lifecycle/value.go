package lifecycle

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	ValueNull ValueKind = iota
	ValueBool
	ValueNumber
	ValueString
	ValueArray
	ValueObject
)

// Value is a JSON value as a tagged variant. Scalars are Null, Bool, Number
// and String; Array and Object hold children.
type Value struct {
	kind ValueKind
	b    bool
	s    string // String payload, or the literal of a Number
	arr  []Value
	obj  map[string]Value
}

// ValueOf converts a decoded JSON value (as produced by encoding/json into
// any) into a Value. Unknown Go types are rendered through fmt as strings.
func ValueOf(v any) Value {
	switch t := v.(type) {
	case nil:
		return Value{kind: ValueNull}
	case Value:
		return t
	case bool:
		return Value{kind: ValueBool, b: t}
	case string:
		return Value{kind: ValueString, s: t}
	case json.Number:
		return Value{kind: ValueNumber, s: t.String()}
	case float64:
		return Value{kind: ValueNumber, s: strconv.FormatFloat(t, 'f', -1, 64)}
	case int:
		return Value{kind: ValueNumber, s: strconv.Itoa(t)}
	case int64:
		return Value{kind: ValueNumber, s: strconv.FormatInt(t, 10)}
	case []any:
		arr := make([]Value, len(t))
		for i, e := range t {
			arr[i] = ValueOf(e)
		}
		return Value{kind: ValueArray, arr: arr}
	case map[string]any:
		obj := make(map[string]Value, len(t))
		for k, e := range t {
			obj[k] = ValueOf(e)
		}
		return Value{kind: ValueObject, obj: obj}
	case Document:
		return ValueOf(map[string]any(t))
	default:
		return Value{kind: ValueString, s: fmt.Sprint(t)}
	}
}

// Kind returns the variant tag.
func (v Value) Kind() ValueKind { return v.kind }

// IsScalar reports whether v is a leaf.
func (v Value) IsScalar() bool {
	return v.kind != ValueArray && v.kind != ValueObject
}

// Str returns the payload of a String value.
func (v Value) Str() (string, bool) {
	return v.s, v.kind == ValueString
}

func (v Value) String() string {
	switch v.kind {
	case ValueNull:
		return "null"
	case ValueBool:
		return strconv.FormatBool(v.b)
	case ValueNumber, ValueString:
		return v.s
	case ValueArray:
		return fmt.Sprintf("[%d items]", len(v.arr))
	default:
		return fmt.Sprintf("{%d fields}", len(v.obj))
	}
}

// Path locates a leaf inside a Value: object keys and array indices.
type Path []string

func (p Path) String() string {
	if len(p) == 0 {
		return "$"
	}
	return "$." + strings.Join(p, ".")
}

// Leaf is a scalar value together with its location.
type Leaf struct {
	Path  Path
	Value Value
}

// Walk visits every scalar leaf in depth-first order, object keys sorted.
// Returning false from visit stops the traversal.
func (v Value) Walk(visit func(Leaf) bool) {
	v.walk(nil, visit)
}

func (v Value) walk(path Path, visit func(Leaf) bool) bool {
	switch v.kind {
	case ValueArray:
		for i, e := range v.arr {
			if !e.walk(appendPath(path, strconv.Itoa(i)), visit) {
				return false
			}
		}
		return true
	case ValueObject:
		keys := make([]string, 0, len(v.obj))
		for k := range v.obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !v.obj[k].walk(appendPath(path, k), visit) {
				return false
			}
		}
		return true
	default:
		return visit(Leaf{Path: path, Value: v})
	}
}

// Leaves collects every scalar leaf.
func (v Value) Leaves() []Leaf {
	var out []Leaf
	v.Walk(func(l Leaf) bool {
		out = append(out, l)
		return true
	})
	return out
}

func appendPath(p Path, seg string) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = seg
	return out
}
