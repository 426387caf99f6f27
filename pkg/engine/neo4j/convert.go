package neo4j

import (
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/spf13/cast"

	"github.com/orneryd/advisorgraph/pkg/graph"
)

// record is the subset of *neo4j.Record used for conversion.
type record interface {
	Get(key string) (any, bool)
}

func recordToRow(rec record) (graph.Row, error) {
	var row graph.Row
	nv, ok := rec.Get("n")
	if !ok {
		return row, fmt.Errorf("missing column n")
	}
	node, err := toEntity(nv)
	if err != nil {
		return row, err
	}
	row.Node = node

	if rv, ok := rec.Get("relationships"); ok && rv != nil {
		list, ok := rv.([]any)
		if !ok {
			return row, fmt.Errorf("relationships: expected list, got %T", rv)
		}
		for _, item := range list {
			if item == nil {
				continue
			}
			rel, err := toRelationship(item)
			if err != nil {
				return row, err
			}
			row.Relationships = append(row.Relationships, rel)
		}
	}

	if cv, ok := rec.Get("connected_nodes"); ok && cv != nil {
		list, ok := cv.([]any)
		if !ok {
			return row, fmt.Errorf("connected_nodes: expected list, got %T", cv)
		}
		for _, item := range list {
			if item == nil {
				continue
			}
			ent, err := toEntity(item)
			if err != nil {
				return row, err
			}
			row.Connected = append(row.Connected, ent)
		}
	}
	return row, nil
}

func toEntity(v any) (*graph.Entity, error) {
	n, ok := v.(neo4j.Node)
	if !ok {
		return nil, fmt.Errorf("expected node, got %T", v)
	}
	labels := append([]string(nil), n.Labels...)
	return graph.NewEntity(n.ElementId, labels, convertProps(n.Props)), nil
}

func toRelationship(v any) (*graph.Relationship, error) {
	r, ok := v.(neo4j.Relationship)
	if !ok {
		return nil, fmt.Errorf("expected relationship, got %T", v)
	}
	return &graph.Relationship{
		ID:         r.ElementId,
		Type:       graph.RelType(r.Type),
		SourceID:   r.StartElementId,
		TargetID:   r.EndElementId,
		Properties: convertProps(r.Props),
	}, nil
}

func convertProps(in map[string]any) graph.Properties {
	out := make(graph.Properties, len(in))
	for k, v := range in {
		out[k] = convertValue(v)
	}
	return out
}

// convertValue normalizes driver values: homogeneous string lists become
// []string and temporal values become RFC 3339 text.
func convertValue(v any) any {
	switch t := v.(type) {
	case []any:
		if allStrings(t) {
			return cast.ToStringSlice(t)
		}
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = convertValue(item)
		}
		return out
	case map[string]any:
		return map[string]any(convertProps(t))
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case neo4j.Date:
		return t.Time().Format("2006-01-02")
	case neo4j.LocalDateTime:
		return t.Time().Format("2006-01-02T15:04:05.999999999")
	case fmt.Stringer:
		return t.String()
	}
	return v
}

func allStrings(list []any) bool {
	for _, item := range list {
		if _, ok := item.(string); !ok {
			return false
		}
	}
	return true
}
