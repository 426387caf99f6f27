package query

import (
	"fmt"
	"strings"

	"github.com/orneryd/advisorgraph/pkg/graph"
)

// Strategy is how a node property is matched against a set of requested
// values. Every filter field is bound to exactly one strategy in the field
// table; nothing is inferred from the stored values at runtime.
type Strategy int

const (
	// StrategyScalar matches a property that is always a bare value.
	StrategyScalar Strategy = iota + 1
	// StrategyScalarOrList matches a property stored as a bare value on some
	// entities and as a list on others.
	StrategyScalarOrList
)

func (s Strategy) String() string {
	switch s {
	case StrategyScalar:
		return "scalar"
	case StrategyScalarOrList:
		return "scalar-or-list"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// propertyFragment renders the match for one property under a strategy.
// Absent properties never match: `null IN $x` is null, and `[] + null` is
// null, so both forms fall through to false.
func propertyFragment(strategy Strategy, prop, param string) string {
	ref := nodeVar + "." + prop
	switch strategy {
	case StrategyScalarOrList:
		// `[] + v` yields [v] for a bare value and v itself for a list.
		return fmt.Sprintf("(%s IS NOT NULL AND any(v IN [] + %s WHERE v IN $%s))", ref, ref, param)
	default:
		return fmt.Sprintf("%s IN $%s", ref, param)
	}
}

// propertiesFragment ORs the match across alias property names.
func propertiesFragment(strategy Strategy, props []string, param string) string {
	if len(props) == 1 {
		return propertyFragment(strategy, props[0], param)
	}
	parts := make([]string, len(props))
	for i, p := range props {
		parts[i] = propertyFragment(strategy, p, param)
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

// propertyMatcher is the in-process twin of propertiesFragment.
func propertyMatcher(strategy Strategy, props []string, want stringSet) func(*graph.Entity) bool {
	lists := strategy == StrategyScalarOrList
	return func(e *graph.Entity) bool {
		for _, p := range props {
			if want.hasAny(storedStrings(e.Properties[p], lists)) {
				return true
			}
		}
		return false
	}
}

// storedStrings returns the values a stored property offers to `IN $x` when
// $x is a string list. Cypher never equates a number with its decimal form,
// so only real strings take part. With lists set, the string elements of a
// list value take part too; otherwise a list is compared whole and never
// matches.
func storedStrings(v any, lists bool) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []string:
		if lists {
			return t
		}
	case []any:
		if !lists {
			return nil
		}
		out := make([]string, 0, len(t))
		for _, elem := range t {
			if s, ok := elem.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// storedString is storedStrings for a property compared as a bare value.
func storedString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}
