package herald

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"

	"github.com/m-mizutani/goerr/v2"
)

// ValueKind identifies the variant held by a Value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindObject
)

// String returns the string representation of the kind.
func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a closed sum type over JSON-like data. Accessors fail closed:
// asking for the wrong variant returns the zero value with ok=false, never a
// coerced value.
type Value struct {
	kind ValueKind
	b    bool
	i    int64
	f    float64
	s    string
	a    []Value
	o    map[string]Value
}

func Null() Value                   { return Value{kind: KindNull} }
func Bool(v bool) Value             { return Value{kind: KindBool, b: v} }
func Int(v int64) Value             { return Value{kind: KindInt, i: v} }
func Float(v float64) Value         { return Value{kind: KindFloat, f: v} }
func String(v string) Value         { return Value{kind: KindString, s: v} }
func Array(vs ...Value) Value       { return Value{kind: KindArray, a: vs} }
func Object(m map[string]Value) Value { return Value{kind: KindObject, o: m} }

// Kind returns the variant of the value.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether the value is the null variant.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool returns the boolean payload. ok is false for any other variant.
func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// Int returns the integer payload. A float value is not truncated; ok is
// false for any non-int variant.
func (v Value) Int() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// Float returns the float payload. ok is false for any other variant,
// including int.
func (v Value) Float() (float64, bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return v.f, true
}

// String returns the string payload. ok is false for any other variant.
func (v Value) String() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// Array returns the array payload. ok is false for any other variant.
func (v Value) Array() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.a, true
}

// Object returns the object payload. ok is false for any other variant.
func (v Value) Object() (map[string]Value, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.o, true
}

// FromAny converts a decoded JSON value (as produced by encoding/json) into
// a Value. Unsupported Go types are rejected.
func FromAny(raw any) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(v), nil
	case string:
		return String(v), nil
	case int:
		return Int(int64(v)), nil
	case int64:
		return Int(v), nil
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) && math.Abs(v) < float64(math.MaxInt64) {
			return Int(int64(v)), nil
		}
		return Float(v), nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := v.Float64()
		if err != nil {
			return Value{}, goerr.Wrap(ErrInvalidValue, "invalid number", goerr.V("number", v.String()))
		}
		return Float(f), nil
	case []any:
		items := make([]Value, len(v))
		for i, item := range v {
			converted, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			items[i] = converted
		}
		return Array(items...), nil
	case map[string]any:
		fields := make(map[string]Value, len(v))
		for key, item := range v {
			converted, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			fields[key] = converted
		}
		return Object(fields), nil
	case Value:
		return v, nil
	default:
		return Value{}, goerr.Wrap(ErrInvalidValue, "unsupported type", goerr.V("value", raw))
	}
}

// Any converts the value back into plain Go types suitable for
// encoding/json and tool invocation.
func (v Value) Any() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindArray:
		items := make([]any, len(v.a))
		for i, item := range v.a {
			items[i] = item.Any()
		}
		return items
	case KindObject:
		fields := make(map[string]any, len(v.o))
		for key, item := range v.o {
			fields[key] = item.Any()
		}
		return fields
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindObject:
		// Deterministic key order for stable wire output.
		keys := make([]string, 0, len(v.o))
		for k := range v.o {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			name, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(name)
			buf.WriteByte(':')
			item, err := json.Marshal(v.o[k])
			if err != nil {
				return nil, err
			}
			buf.Write(item)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return json.Marshal(v.Any())
	}
}

// UnmarshalJSON implements json.Unmarshaler with strict number handling.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return goerr.Wrap(err, "failed to decode value")
	}

	decoded, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// Arguments is a named set of tool call arguments.
type Arguments map[string]Value

// ArgumentsFromAny converts raw decoded arguments into Arguments.
func ArgumentsFromAny(raw map[string]any) (Arguments, error) {
	args := make(Arguments, len(raw))
	for name, item := range raw {
		converted, err := FromAny(item)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid argument", goerr.V("argument", name))
		}
		args[name] = converted
	}
	return args, nil
}

// AnyMap converts the arguments into plain Go values for tool invocation.
func (a Arguments) AnyMap() map[string]any {
	out := make(map[string]any, len(a))
	for name, item := range a {
		out[name] = item.Any()
	}
	return out
}
