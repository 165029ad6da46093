package samp

import (
	"fmt"
	"strconv"
	"strings"
)

// Params holds the samp.params of a message. SAMP encodes every scalar as a
// string, so the getters accept strings and convert.
type Params map[string]any

// Set stores value under key and returns p for chaining.
func (p Params) Set(key string, value any) Params {
	p[key] = value
	return p
}

// Get returns the raw value for a key.
func (p Params) Get(key string) (any, bool) {
	v, ok := p[key]
	return v, ok
}

// String returns the value for key as a string.
func (p Params) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	case int:
		return strconv.Itoa(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	}
	return "", false
}

// Int returns the value for key as an int.
func (p Params) Int(key string) (int, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	return toInt(v)
}

// Float returns the value for key as a float64.
func (p Params) Float(key string) (float64, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Ints returns the list value for key as ints. Any unconvertible element makes
// the whole lookup fail.
func (p Params) Ints(key string) ([]int, bool) {
	v, ok := p[key]
	if !ok {
		return nil, false
	}
	switch list := v.(type) {
	case []any:
		out := make([]int, 0, len(list))
		for _, e := range list {
			i, ok := toInt(e)
			if !ok {
				return nil, false
			}
			out = append(out, i)
		}
		return out, true
	case []string:
		out := make([]int, 0, len(list))
		for _, e := range list {
			i, ok := toInt(e)
			if !ok {
				return nil, false
			}
			out = append(out, i)
		}
		return out, true
	case []int:
		return list, true
	}
	return nil, false
}

func toInt(v any) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case float64:
		return int(val), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

// EncodeInts renders row indices the way SAMP expects them on the wire.
func EncodeInts(idx []int) []any {
	out := make([]any, len(idx))
	for i, v := range idx {
		out[i] = strconv.Itoa(v)
	}
	return out
}

func requireString(p Params, key string) (string, error) {
	s, ok := p.String(key)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("missing param %q", key)
	}
	return s, nil
}
