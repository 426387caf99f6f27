package neo4j

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/orneryd/advisorgraph/pkg/graph"
)

// FixtureIDProperty records the id an entity or relationship had in the
// seeded fixture. Engine ids are assigned by the server.
const FixtureIDProperty = "fixture_id"

// SeedOptions controls Seed.
type SeedOptions struct {
	// Wipe deletes previously seeded entities before writing.
	Wipe bool
	// BatchSize bounds rows per UNWIND statement. Zero means 500.
	BatchSize int
}

// SeedStats counts what Seed wrote.
type SeedStats struct {
	NodesDeleted         int `json:"nodes_deleted"`
	NodesCreated         int `json:"nodes_created"`
	RelationshipsCreated int `json:"relationships_created"`
}

// statement is one batched write.
type statement struct {
	cypher string
	params map[string]any
}

// Seed writes a fixture graph. Nodes are created before relationships, and
// relationships resolve their endpoints through FixtureIDProperty. Each
// batch runs in its own managed transaction.
func (e *Engine) Seed(ctx context.Context, nodes []*graph.Entity, rels []*graph.Relationship, opts SeedOptions) (*SeedStats, error) {
	stmts, err := seedStatements(nodes, rels, opts.BatchSize)
	if err != nil {
		return nil, err
	}

	sess := e.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: e.config.Database,
	})
	defer sess.Close(context.WithoutCancel(ctx))

	stats := &SeedStats{}
	if opts.Wipe {
		deleted, err := e.write(ctx, sess, statement{
			cypher: fmt.Sprintf("MATCH (n) WHERE n.%s IS NOT NULL DETACH DELETE n", FixtureIDProperty),
		})
		if err != nil {
			return stats, err
		}
		stats.NodesDeleted = deleted.NodesDeleted()
	}

	for _, st := range stmts {
		counters, err := e.write(ctx, sess, st)
		if err != nil {
			return stats, err
		}
		stats.NodesCreated += counters.NodesCreated()
		stats.RelationshipsCreated += counters.RelationshipsCreated()
	}

	e.logger.Info("seeded graph",
		zap.Int("nodes_deleted", stats.NodesDeleted),
		zap.Int("nodes_created", stats.NodesCreated),
		zap.Int("relationships_created", stats.RelationshipsCreated),
	)
	if stats.RelationshipsCreated < len(rels) {
		e.logger.Warn("some relationships were not created; endpoints missing",
			zap.Int("expected", len(rels)),
			zap.Int("created", stats.RelationshipsCreated),
		)
	}
	return stats, nil
}

func (e *Engine) write(ctx context.Context, sess neo4j.SessionWithContext, st statement) (neo4j.Counters, error) {
	out, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, st.cypher, st.params)
		if err != nil {
			return nil, err
		}
		summary, err := res.Consume(ctx)
		if err != nil {
			return nil, err
		}
		return summary.Counters(), nil
	})
	if err != nil {
		e.logger.Error("seed statement failed", zap.String("cypher", st.cypher), zap.Error(err))
		return nil, classify(err)
	}
	return out.(neo4j.Counters), nil
}

// seedStatements groups nodes by label set and relationships by type, since
// labels and types cannot be parameters.
func seedStatements(nodes []*graph.Entity, rels []*graph.Relationship, batchSize int) ([]statement, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	nodeGroups := map[string][]map[string]any{}
	for _, n := range nodes {
		if n == nil {
			continue
		}
		labels := append([]string(nil), n.Labels...)
		sort.Strings(labels)
		for _, l := range labels {
			if !identifier.MatchString(l) {
				return nil, fmt.Errorf("neo4j: node %s: invalid label %q", n.ID, l)
			}
		}
		props, err := storable(n.Properties)
		if err != nil {
			return nil, fmt.Errorf("neo4j: node %s: %w", n.ID, err)
		}
		key := strings.Join(labels, ":")
		nodeGroups[key] = append(nodeGroups[key], map[string]any{"id": n.ID, "properties": props})
	}

	relGroups := map[string][]map[string]any{}
	for _, r := range rels {
		if r == nil {
			continue
		}
		if !identifier.MatchString(string(r.Type)) {
			return nil, fmt.Errorf("neo4j: relationship %s: invalid type %q", r.ID, r.Type)
		}
		props, err := storable(r.Properties)
		if err != nil {
			return nil, fmt.Errorf("neo4j: relationship %s: %w", r.ID, err)
		}
		relGroups[string(r.Type)] = append(relGroups[string(r.Type)], map[string]any{
			"id": r.ID, "source": r.SourceID, "target": r.TargetID, "properties": props,
		})
	}

	var out []statement
	for _, key := range sortedKeys(nodeGroups) {
		pattern := "n"
		if key != "" {
			pattern = "n:" + key
		}
		cypher := fmt.Sprintf("UNWIND $rows AS row\nCREATE (%s)\nSET n = row.properties, n.%s = row.id", pattern, FixtureIDProperty)
		out = append(out, batched(cypher, nodeGroups[key], batchSize)...)
	}
	for _, typ := range sortedKeys(relGroups) {
		cypher := fmt.Sprintf("UNWIND $rows AS row\n"+
			"MATCH (a {%[1]s: row.source})\n"+
			"MATCH (b {%[1]s: row.target})\n"+
			"CREATE (a)-[r:%[2]s]->(b)\n"+
			"SET r = row.properties, r.%[1]s = row.id", FixtureIDProperty, typ)
		out = append(out, batched(cypher, relGroups[typ], batchSize)...)
	}
	return out, nil
}

func batched(cypher string, rows []map[string]any, size int) []statement {
	var out []statement
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		out = append(out, statement{cypher: cypher, params: map[string]any{"rows": rows[start:end]}})
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// storable checks that every value can be a Neo4j property: scalars or
// homogeneous lists of scalars. Nested maps are rejected.
func storable(props graph.Properties) (map[string]any, error) {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if k == FixtureIDProperty {
			return nil, fmt.Errorf("property %q is reserved", k)
		}
		switch val := v.(type) {
		case nil:
			continue
		case string, bool, int, int64, float64, []string:
			out[k] = val
		case int32:
			out[k] = int64(val)
		case float32:
			out[k] = float64(val)
		case []any:
			list, err := homogeneous(k, val)
			if err != nil {
				return nil, err
			}
			out[k] = list
		default:
			return nil, fmt.Errorf("property %q has unsupported type %T", k, v)
		}
	}
	return out, nil
}

func homogeneous(key string, list []any) (any, error) {
	if len(list) == 0 {
		return []string{}, nil
	}
	switch list[0].(type) {
	case string:
		out := make([]string, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("property %q mixes list element types", key)
			}
			out[i] = s
		}
		return out, nil
	case int, int64, float64, bool:
		kind := fmt.Sprintf("%T", list[0])
		for _, item := range list {
			if fmt.Sprintf("%T", item) != kind {
				return nil, fmt.Errorf("property %q mixes list element types", key)
			}
		}
		return list, nil
	}
	return nil, fmt.Errorf("property %q has unsupported list element type %T", key, list[0])
}
