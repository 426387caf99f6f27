// Package memory provides an in-process graph engine.
//
// Engine is a thread-safe in-memory graph that evaluates query plans with the
// same predicates the Cypher renderer emits. It's useful for:
//   - Unit and handler tests (no server required)
//   - Local demos from a YAML fixture
//   - Checking a filter against a small extract before running it on Neo4j
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/spf13/cast"

	"github.com/orneryd/advisorgraph/pkg/engine"
	"github.com/orneryd/advisorgraph/pkg/graph"
)

var (
	ErrAlreadyExists = errors.New("already exists")
	ErrMissingNode   = errors.New("relationship endpoint does not exist")
	ErrInvalidID     = errors.New("invalid id")
	ErrClosed        = errors.New("engine closed")
)

// Engine is an in-memory engine.Engine.
type Engine struct {
	mu sync.RWMutex

	nodes     map[string]*graph.Entity
	nodeOrder []string
	edges     map[string]*graph.Relationship
	edgeOrder []string

	// adjacency: node id -> ids of incident relationships, in insertion order
	incident map[string][]string

	closed bool

	// failure, when set, is returned by every session operation.
	failure atomic.Pointer[error]
	open    atomic.Int64
}

var _ engine.Engine = (*Engine)(nil)

// New creates an empty engine.
func New() *Engine {
	return &Engine{
		nodes:    make(map[string]*graph.Entity),
		edges:    make(map[string]*graph.Relationship),
		incident: make(map[string][]string),
	}
}

// AddNode stores a copy of e. Kind is re-derived from labels.
func (m *Engine) AddNode(e *graph.Entity) error {
	if e == nil || e.ID == "" {
		return ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, exists := m.nodes[e.ID]; exists {
		return fmt.Errorf("node %s: %w", e.ID, ErrAlreadyExists)
	}
	m.nodes[e.ID] = copyEntity(e)
	m.nodeOrder = append(m.nodeOrder, e.ID)
	return nil
}

// AddRelationship stores a copy of r. Both endpoints must exist.
func (m *Engine) AddRelationship(r *graph.Relationship) error {
	if r == nil || r.ID == "" {
		return ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, exists := m.edges[r.ID]; exists {
		return fmt.Errorf("relationship %s: %w", r.ID, ErrAlreadyExists)
	}
	if _, ok := m.nodes[r.SourceID]; !ok {
		return fmt.Errorf("relationship %s source %s: %w", r.ID, r.SourceID, ErrMissingNode)
	}
	if _, ok := m.nodes[r.TargetID]; !ok {
		return fmt.Errorf("relationship %s target %s: %w", r.ID, r.TargetID, ErrMissingNode)
	}
	m.edges[r.ID] = copyRelationship(r)
	m.edgeOrder = append(m.edgeOrder, r.ID)
	m.incident[r.SourceID] = append(m.incident[r.SourceID], r.ID)
	if r.TargetID != r.SourceID {
		m.incident[r.TargetID] = append(m.incident[r.TargetID], r.ID)
	}
	return nil
}

// NodeCount returns the number of stored nodes.
func (m *Engine) NodeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}

// EdgeCount returns the number of stored relationships.
func (m *Engine) EdgeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.edges)
}

// FailWith makes every subsequent session call return err. nil clears it.
func (m *Engine) FailWith(err error) {
	if err == nil {
		m.failure.Store(nil)
		return
	}
	m.failure.Store(&err)
}

func (m *Engine) injected() error {
	if p := m.failure.Load(); p != nil {
		return *p
	}
	return nil
}

// OpenSessions reports sessions handed out and not yet closed.
func (m *Engine) OpenSessions() int64 {
	return m.open.Load()
}

// Session returns a session over the live graph.
func (m *Engine) Session(ctx context.Context) (engine.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", graph.ErrEngineUnavailable, err)
	}
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("%w: %v", graph.ErrEngineUnavailable, ErrClosed)
	}
	m.open.Add(1)
	return &session{engine: m}, nil
}

// Close marks the engine closed. Open sessions fail on their next call.
func (m *Engine) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func copyEntity(e *graph.Entity) *graph.Entity {
	labels := append([]string(nil), e.Labels...)
	return graph.NewEntity(e.ID, labels, copyProps(e.Properties))
}

func copyRelationship(r *graph.Relationship) *graph.Relationship {
	return &graph.Relationship{
		ID:         r.ID,
		Type:       r.Type,
		SourceID:   r.SourceID,
		TargetID:   r.TargetID,
		Properties: copyProps(r.Properties),
	}
}

// copyProps deep-copies list values and normalizes string lists to []string.
func copyProps(in graph.Properties) graph.Properties {
	out := make(graph.Properties, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case []string:
			out[k] = append([]string(nil), t...)
		case []any:
			if s, err := cast.ToStringSliceE(t); err == nil && allStrings(t) {
				out[k] = s
			} else {
				out[k] = append([]any(nil), t...)
			}
		default:
			out[k] = v
		}
	}
	return out
}

func allStrings(list []any) bool {
	for _, v := range list {
		if _, ok := v.(string); !ok {
			return false
		}
	}
	return true
}
