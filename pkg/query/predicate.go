// Package query compiles filter specifications into parameterized Cypher.
//
// Compilation happens in two steps. Compile turns each populated filter field
// into a Predicate (a Cypher fragment, its bound parameters and an equivalent
// in-process matcher). Select then chooses the traversal shape and renders the
// final query. Both steps are pure: the same input always yields the same
// fragments and parameter map.
//
// Example:
//
//	compiled, err := query.Compile(&graph.Filter{Regions: []string{"EMEA"}})
//	if err != nil {
//		return err
//	}
//	page, _ := query.ResolvePage(0, 0, query.DefaultOptions())
//	plan := query.Select(compiled, page, query.DefaultOptions())
//	fmt.Println(plan.Cypher, plan.Params)
package query

import (
	"github.com/orneryd/advisorgraph/pkg/graph"
)

// Cypher variables referenced by compiled fragments.
const (
	nodeVar = "n"
	relVar  = "r"
)

// Target says what a predicate is evaluated against.
type Target int

const (
	TargetNode Target = iota
	TargetRelationship
)

func (t Target) String() string {
	if t == TargetRelationship {
		return "relationship"
	}
	return "node"
}

// Predicate is one compiled filter field.
type Predicate struct {
	// Field is the filter field this predicate came from.
	Field  string
	Target Target
	// Cypher is the WHERE fragment. It references n (node) or r (relationship).
	Cypher string
	Params map[string]any

	matchNode func(*graph.Entity) bool
	matchRel  func(*graph.Relationship) bool
}

// MatchNode evaluates the predicate against an entity in process.
// Relationship predicates always match nodes.
func (p *Predicate) MatchNode(e *graph.Entity) bool {
	if p.Target != TargetNode || p.matchNode == nil {
		return true
	}
	return p.matchNode(e)
}

// MatchRelationship evaluates the predicate against a relationship in process.
// Node predicates always match relationships.
func (p *Predicate) MatchRelationship(r *graph.Relationship) bool {
	if p.Target != TargetRelationship || p.matchRel == nil {
		return true
	}
	return p.matchRel(r)
}

// stringSet is a lookup built from requested filter values.
type stringSet map[string]struct{}

func newStringSet(values []string) stringSet {
	s := make(stringSet, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

func (s stringSet) has(v string) bool {
	_, ok := s[v]
	return ok
}

func (s stringSet) hasAny(values []string) bool {
	for _, v := range values {
		if s.has(v) {
			return true
		}
	}
	return false
}
