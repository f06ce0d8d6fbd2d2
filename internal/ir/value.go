package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"unicode/utf16"
)

// Value is a sealed interface over the deterministic value types that may
// appear in action arguments, query results, events and state snapshots.
// There is no float type: floats break bit-identical replay.
type Value interface {
	irValue()
}

// Null is an explicit JSON null, used for absent optional fields.
type Null struct{}

// String is a UTF-8 string value.
type String string

// Int is a signed 64-bit integer value.
type Int int64

// Uint is an unsigned 64-bit integer value, used for balances and u64
// identifiers that may exceed the int64 range.
type Uint uint64

// Bool is a boolean value.
type Bool bool

// Array is an ordered list of values.
type Array []Value

// Object maps string keys to values. Iterate with SortedKeys for
// deterministic order.
type Object map[string]Value

func (Null) irValue()   {}
func (String) irValue() {}
func (Int) irValue()    {}
func (Uint) irValue()   {}
func (Bool) irValue()   {}
func (Array) irValue()  {}
func (Object) irValue() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// Pair is a key-value pair for building objects.
type Pair struct {
	Key   string
	Value Value
}

// O is shorthand for a Pair.
func O(key string, value Value) Pair {
	return Pair{Key: key, Value: value}
}

// Obj builds an Object from pairs.
func Obj(pairs ...Pair) Object {
	obj := make(Object, len(pairs))
	for _, p := range pairs {
		obj[p.Key] = p.Value
	}
	return obj
}

// Strings converts a string slice to an Array.
func Strings(ss []string) Array {
	arr := make(Array, len(ss))
	for i, s := range ss {
		arr[i] = String(s)
	}
	return arr
}

// OptString returns Null for nil and String otherwise.
func OptString(s *string) Value {
	if s == nil {
		return Null{}
	}
	return String(*s)
}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
// Go string comparison orders by UTF-8 bytes, which differs for
// characters outside the BMP.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// FromGo converts plain Go values (as produced by YAML or JSON decoders)
// into a Value. Whole-number floats are accepted because YAML and
// encoding/json hand integers back as float64; fractional values are not.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return Uint(val), nil
		}
		return Int(val), nil
	case uint:
		return FromGo(uint64(val))
	case float64:
		if val != math.Trunc(val) || val > math.MaxInt64 || val < math.MinInt64 {
			return nil, fmt.Errorf("non-integer number %v not allowed", val)
		}
		return Int(int64(val)), nil
	case json.Number:
		return numberValue(val)
	case []string:
		return Strings(val), nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			ev, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = ev
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			ev, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = ev
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ObjectFromGo converts a string-keyed map into an Object.
func ObjectFromGo(m map[string]any) (Object, error) {
	if m == nil {
		return Object{}, nil
	}
	v, err := FromGo(m)
	if err != nil {
		return nil, err
	}
	return v.(Object), nil
}

// ToGo converts a Value into plain Go values: string, int64, uint64,
// bool, nil, []any and map[string]any.
func ToGo(v Value) any {
	switch val := v.(type) {
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Uint:
		return uint64(val)
	case Bool:
		return bool(val)
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToGo(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToGo(elem)
		}
		return out
	default:
		return nil
	}
}

func numberValue(n json.Number) (Value, error) {
	if i, err := n.Int64(); err == nil {
		return Int(i), nil
	}
	if u, err := strconv.ParseUint(string(n), 10, 64); err == nil {
		return Uint(u), nil
	}
	return nil, fmt.Errorf("floats are not allowed: %s", n)
}

// ParseJSON decodes JSON into a Value, keeping integers exact.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromGo(raw)
}

// ParseObject decodes a JSON object into an Object.
func ParseObject(data []byte) (Object, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Object{}, nil
	}
	v, err := ParseJSON(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(Object)
	if !ok {
		return nil, fmt.Errorf("expected JSON object, got %T", v)
	}
	return obj, nil
}

// UnmarshalJSON implements json.Unmarshaler for Object.
func (obj *Object) UnmarshalJSON(data []byte) error {
	parsed, err := ParseObject(data)
	if err != nil {
		return err
	}
	*obj = parsed
	return nil
}

// MarshalJSON renders the object as canonical JSON.
func (obj Object) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(obj)
}
