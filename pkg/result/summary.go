package result

import (
	"github.com/spf13/cast"

	"github.com/orneryd/advisorgraph/pkg/graph"
)

// Distribution derives a value histogram over one property of one
// relationship type.
type Distribution struct {
	Key      string
	Type     graph.RelType
	Property string
}

// DefaultDistributions is the set wired into query metadata. Only mandate
// status on OWNS is a product requirement.
var DefaultDistributions = []Distribution{
	{Key: "mandate_status", Type: graph.RelOwns, Property: "mandate_status"},
}

// Summarize computes metadata over an aggregated result and echoes the
// applied filter and page.
func Summarize(nodes []*graph.Entity, edges []*graph.Relationship, filter *graph.Filter, page graph.Page) graph.Metadata {
	return SummarizeWith(DefaultDistributions, nodes, edges, filter, page)
}

// SummarizeWith is Summarize with an explicit distribution set.
func SummarizeWith(dists []Distribution, nodes []*graph.Entity, edges []*graph.Relationship, filter *graph.Filter, page graph.Page) graph.Metadata {
	if filter == nil {
		filter = &graph.Filter{}
	}
	md := graph.Metadata{
		TotalNodes:     len(nodes),
		TotalEdges:     len(edges),
		NodeTypeCounts: make(map[graph.Kind]int),
		EdgeTypeCounts: make(map[graph.RelType]int),
		Distributions:  make(map[string]map[string]int, len(dists)),
		AppliedFilters: filter,
		QueryParams:    page,
	}
	for _, n := range nodes {
		md.NodeTypeCounts[n.Kind]++
	}
	for _, d := range dists {
		md.Distributions[d.Key] = make(map[string]int)
	}
	for _, e := range edges {
		md.EdgeTypeCounts[e.Type]++
		for _, d := range dists {
			if e.Type != d.Type {
				continue
			}
			v, ok := e.Properties[d.Property]
			if !ok || v == nil {
				continue
			}
			md.Distributions[d.Key][cast.ToString(v)]++
		}
	}
	return md
}
