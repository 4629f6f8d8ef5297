package graphobject

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"
)

// decodeAPI is jsonAPI with numbers decoded as json.Number, so integers are
// not forced through float64.
var decodeAPI = sonic.Config{
	EscapeHTML:       true,
	SortMapKeys:      true,
	CompactMarshaler: true,
	CopyString:       true,
	ValidateString:   true,
	UseNumber:        true,
}.Froze()

// Canonicalize rewrites e into the exact form it has after being written to
// JSON and read back, so a buffered copy and a persisted copy compare equal.
// Integers become int64 (uint64 above MaxInt64), other numbers float64, and
// arrays of one scalar kind become []string, []bool, []int64 or []float64.
// Values the codec cannot encode, such as NaN, are rejected.
func (e *Entity) Canonicalize() error {
	data, err := jsonAPI.Marshal(e)
	if err != nil {
		return fmt.Errorf("%w: entity %q cannot be encoded: %v", ErrInvalidObject, e.Key, err)
	}
	var c Entity
	if err := c.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("%w: entity %q: %v", ErrInvalidObject, e.Key, err)
	}
	*e = c
	return nil
}

// Canonicalize is the relationship counterpart of Entity.Canonicalize.
func (r *Relationship) Canonicalize() error {
	data, err := jsonAPI.Marshal(r)
	if err != nil {
		return fmt.Errorf("%w: relationship %q cannot be encoded: %v", ErrInvalidObject, r.Key, err)
	}
	var c Relationship
	if err := c.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("%w: relationship %q: %v", ErrInvalidObject, r.Key, err)
	}
	*r = c
	return nil
}

func canonicalValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		return canonicalNumber(t)
	case []any:
		return canonicalArray(t)
	case map[string]any:
		for k, item := range t {
			t[k] = canonicalValue(item)
		}
		return t
	default:
		return v
	}
}

func canonicalNumber(n json.Number) any {
	s := string(n)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return u
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func canonicalArray(items []any) any {
	for i, item := range items {
		items[i] = canonicalValue(item)
	}
	if len(items) == 0 {
		return items
	}
	if out, ok := allOf[string](items); ok {
		return out
	}
	if out, ok := allOf[bool](items); ok {
		return out
	}
	if out, ok := allOf[int64](items); ok {
		return out
	}
	if out, ok := asFloats(items); ok {
		return out
	}
	return items
}

func allOf[T any](items []any) ([]T, bool) {
	out := make([]T, len(items))
	for i, item := range items {
		v, ok := item.(T)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// asFloats accepts a mix of int64 and float64.
func asFloats(items []any) ([]float64, bool) {
	out := make([]float64, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case float64:
			out[i] = v
		case int64:
			out[i] = float64(v)
		default:
			return nil, false
		}
	}
	return out, true
}

func canonicalProperties(props map[string]any) map[string]any {
	for k, v := range props {
		props[k] = canonicalValue(v)
	}
	return props
}
