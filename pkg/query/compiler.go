package query

import (
	"fmt"

	"github.com/orneryd/advisorgraph/pkg/graph"
)

// Compiled is the output of Compile: predicates split by target, in field
// table order, plus the merged parameter map.
type Compiled struct {
	Node         []*Predicate
	Relationship []*Predicate
	Params       map[string]any
}

// HasRelationshipPredicates reports whether any relationship field compiled to
// a fragment. This alone decides the traversal shape.
func (c *Compiled) HasRelationshipPredicates() bool {
	return len(c.Relationship) > 0
}

// Fields returns the names of the fields that produced predicates.
func (c *Compiled) Fields() []string {
	out := make([]string, 0, len(c.Node)+len(c.Relationship))
	for _, p := range c.Node {
		out = append(out, p.Field)
	}
	for _, p := range c.Relationship {
		out = append(out, p.Field)
	}
	return out
}

// Compile turns a filter into predicates. A nil filter compiles to nothing.
// Errors wrap graph.ErrInvalidFilter.
func Compile(f *graph.Filter) (*Compiled, error) {
	out := &Compiled{Params: map[string]any{}}
	if f == nil {
		return out, nil
	}
	for _, spec := range fieldTable {
		p, err := spec.compile(f)
		if err != nil {
			return nil, err
		}
		if p == nil {
			continue
		}
		for k, v := range p.Params {
			if _, dup := out.Params[k]; dup {
				return nil, fmt.Errorf("query: parameter %q bound twice (field %s)", k, spec.name)
			}
			out.Params[k] = v
		}
		if p.Target == TargetRelationship {
			out.Relationship = append(out.Relationship, p)
		} else {
			out.Node = append(out.Node, p)
		}
	}
	return out, nil
}
