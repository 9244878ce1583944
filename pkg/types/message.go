package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Message is one decoded request or response payload.
// Maps are always Message, integers and whole-valued floats int64, other
// numbers float64.
type Message map[string]any

// Has reports whether key is present (even when its value is nil).
func (m Message) Has(key string) bool {
	if m == nil {
		return false
	}
	_, ok := m[key]
	return ok
}

// HasAll reports whether every key is present.
func (m Message) HasAll(keys ...string) bool {
	for _, k := range keys {
		if !m.Has(k) {
			return false
		}
	}
	return true
}

// Map returns the nested map at key, or nil.
func (m Message) Map(key string) Message {
	if m == nil {
		return nil
	}
	v, _ := m[key].(Message)
	return v
}

// Slice returns the sequence at key, or nil.
func (m Message) Slice(key string) []any {
	if m == nil {
		return nil
	}
	v, _ := m[key].([]any)
	return v
}

// Maps returns the map elements of the sequence at key, skipping anything else.
func (m Message) Maps(key string) []Message {
	raw := m.Slice(key)
	out := make([]Message, 0, len(raw))
	for _, v := range raw {
		if mm, ok := v.(Message); ok {
			out = append(out, mm)
		}
	}
	return out
}

// Int returns the integer at key, or 0.
func (m Message) Int(key string) int64 {
	n, _ := m.IntOK(key)
	return n
}

// IntOK returns the integer at key and whether it was a number.
func (m Message) IntOK(key string) (int64, bool) {
	if m == nil {
		return 0, false
	}
	return AsInt(m[key])
}

// Ints returns the integer elements of the sequence at key.
func (m Message) Ints(key string) []int64 {
	raw := m.Slice(key)
	out := make([]int64, 0, len(raw))
	for _, v := range raw {
		if n, ok := AsInt(v); ok {
			out = append(out, n)
		}
	}
	return out
}

// String returns the string at key, or "".
func (m Message) String(key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Bool treats non-zero numbers and true as true.
func (m Message) Bool(key string) bool {
	if m == nil {
		return false
	}
	switch v := m[key].(type) {
	case bool:
		return v
	default:
		n, ok := AsInt(v)
		return ok && n != 0
	}
}

// Clone returns a deep copy.
func (m Message) Clone() Message {
	if m == nil {
		return nil
	}
	return cloneValue(m).(Message)
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case Message:
		out := make(Message, len(val))
		for k, v2 := range val {
			out[k] = cloneValue(v2)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i := range val {
			out[i] = cloneValue(val[i])
		}
		return out
	default:
		return val
	}
}

// AsInt converts any numeric representation to int64.
func AsInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return int64(f), true
		}
		return 0, false
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Normalize converts a generically decoded tree (msgpack or JSON) into the
// canonical shape used by Message.
func Normalize(v any) any {
	switch val := v.(type) {
	case Message:
		for k, v2 := range val {
			val[k] = Normalize(v2)
		}
		return val
	case map[string]any:
		out := make(Message, len(val))
		for k, v2 := range val {
			out[k] = Normalize(v2)
		}
		return out
	case map[any]any:
		out := make(Message, len(val))
		for k, v2 := range val {
			out[keyString(k)] = Normalize(v2)
		}
		return out
	case []any:
		for i := range val {
			val[i] = Normalize(val[i])
		}
		return val
	case []byte:
		return string(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return wholeFloat(f)
	case float32:
		return wholeFloat(float64(val))
	case float64:
		return wholeFloat(val)
	case bool, string, nil:
		return val
	default:
		if n, ok := AsInt(val); ok {
			return n
		}
		return val
	}
}

// wholeFloat narrows an integral float to int64 so typed views accept it.
func wholeFloat(f float64) any {
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return int64(f)
	}
	return f
}

func keyString(k any) string {
	switch kk := k.(type) {
	case string:
		return kk
	case []byte:
		return string(kk)
	default:
		if n, ok := AsInt(kk); ok {
			return strconv.FormatInt(n, 10)
		}
		return fmt.Sprint(kk)
	}
}

// AsMessage normalizes v and returns it when it is a map.
func AsMessage(v any) (Message, bool) {
	m, ok := Normalize(v).(Message)
	return m, ok
}
