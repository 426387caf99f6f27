// Package engine defines the contract between the query service and a graph
// traversal engine.
//
// The service never holds a process-wide connection. Each operation asks the
// Engine for a scoped Session and closes it on every exit path. Engines own
// pooling; sessions are cheap handles over the pool.
//
// Implementations:
//   - neo4j: Bolt driver against a Neo4j-compatible server
//   - memory: in-process graph loaded from a fixture, for tests and demos
package engine

import (
	"context"

	"github.com/orneryd/advisorgraph/pkg/graph"
	"github.com/orneryd/advisorgraph/pkg/query"
)

// Engine hands out scoped sessions.
type Engine interface {
	// Session acquires a session. Failure to acquire is reported as
	// graph.ErrEngineUnavailable.
	Session(ctx context.Context) (Session, error)
	// Close releases the engine's pool.
	Close(ctx context.Context) error
}

// Session runs read-only work for one operation. Sessions are not safe for
// concurrent use.
//
// Errors wrap graph.ErrEngineUnavailable for connectivity and deadline
// failures and graph.ErrEngineError for everything else.
type Session interface {
	// Traverse executes a plan and returns every row. The whole row set is
	// materialized before returning.
	Traverse(ctx context.Context, plan *query.Plan) ([]graph.Row, error)
	// Statistics counts nodes, relationships, labels and relationship types
	// across the entire graph.
	Statistics(ctx context.Context) (*Statistics, error)
	// DistinctValues lists the sorted distinct values of a property. List
	// valued properties are flattened.
	DistinctValues(ctx context.Context, src ValueSource) ([]string, error)
	// Entities lists (id, name) pairs for one kind, sorted by name. Entities
	// without a name are skipped.
	Entities(ctx context.Context, kind graph.Kind) ([]graph.NamedEntity, error)
	// Close releases the session. Safe to call more than once.
	Close(ctx context.Context) error
}

// Statistics are whole-graph counts.
type Statistics struct {
	Nodes  int64
	Edges  int64
	Labels map[string]int64
	Types  map[string]int64
}

// ValueSource names a property to enumerate.
type ValueSource struct {
	Property string
	// Label restricts node sources to one label. Empty means any node.
	Label string
	// RelType reads the property from relationships of this type instead of
	// nodes.
	RelType graph.RelType
}
