// Package jsonutil provides tolerant accessors over decoded JSON maps.
// Engine streams are adversary-grade input: every field access must
// survive missing keys and wrong types.
package jsonutil

import "encoding/json"

// Str returns m[key] as a string, or "" when absent or not a string.
func Str(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// StrOr returns m[key] as a string, or fallback when absent or empty.
func StrOr(m map[string]any, key, fallback string) string {
	if s := Str(m, key); s != "" {
		return s
	}
	return fallback
}

// Map returns m[key] as a map, or nil.
func Map(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	sub, _ := m[key].(map[string]any)
	return sub
}

// Slice returns m[key] as a []any, or nil.
func Slice(m map[string]any, key string) []any {
	if m == nil {
		return nil
	}
	arr, _ := m[key].([]any)
	return arr
}

// Bool returns m[key] as a bool, or false.
func Bool(m map[string]any, key string) bool {
	if m == nil {
		return false
	}
	b, _ := m[key].(bool)
	return b
}

// Int returns m[key] as an int, accepting float64 and json.Number
// encodings. Returns 0 when absent or not numeric.
func Int(m map[string]any, key string) int {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return 0
}

// MarshalAny renders v as compact JSON, or "" on failure. Used to
// stash structured detail as an opaque string.
func MarshalAny(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
