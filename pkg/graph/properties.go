package graph

import (
	"github.com/spf13/cast"
)

// Properties holds entity or relationship properties. Values are strings,
// string lists, or engine scalars passed through unchanged.
type Properties map[string]any

// String returns key as a string when it is present and scalar.
func (p Properties) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", false
	}
	switch v.(type) {
	case []string, []any:
		return "", false
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", false
	}
	return s, true
}

// Strings returns key as a string list. A scalar value yields a one-element
// list so callers can treat both storage shapes alike.
func (p Properties) Strings(key string) ([]string, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, false
	}
	switch v.(type) {
	case []string, []any:
		out, err := cast.ToStringSliceE(v)
		if err != nil {
			return nil, false
		}
		return out, true
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return nil, false
	}
	return []string{s}, true
}

// Float returns key as a float64 when it parses as a number.
func (p Properties) Float(key string) (float64, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, false
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, false
	}
	return f, true
}
