// Package service runs graph operations end to end: compile the filter, pick
// the traversal shape, execute on a scoped engine session, aggregate and
// summarize.
//
// Every operation opens exactly one session and closes it on every exit path.
// Engine failures are logged in full (with the compiled query and parameters)
// and surfaced to callers as an *OperationError that carries only the error
// class and a request id.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orneryd/advisorgraph/pkg/engine"
	"github.com/orneryd/advisorgraph/pkg/graph"
	"github.com/orneryd/advisorgraph/pkg/metrics"
	"github.com/orneryd/advisorgraph/pkg/query"
)

// Graph is the operation surface shared by Service and its decorators.
type Graph interface {
	Query(ctx context.Context, req Request) (*graph.QueryResult, error)
	Detail(ctx context.Context, id string) (*graph.Detail, error)
	Summary(ctx context.Context) (*graph.Summary, error)
	FilterOptions(ctx context.Context) (*graph.FilterOptions, error)
	Expand(ctx context.Context, req ExpandRequest) (*graph.QueryResult, error)
	CascadingOptions(ctx context.Context, f *graph.Filter) (*graph.FilterOptions, error)
	FindPaths(ctx context.Context, req PathRequest) (*graph.QueryResult, error)
	Influence(ctx context.Context, req InfluenceRequest) (*graph.InfluenceNetwork, error)
}

// Request is a filtered bulk query.
type Request struct {
	Filter *graph.Filter `json:"filters"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// ExpandRequest asks for the neighborhood of a set of entities.
type ExpandRequest struct {
	NodeIDs []string `json:"node_ids"`
	// Depth is the hop bound; 0 means the configured default.
	Depth int `json:"depth"`
}

// PathRequest asks how two sets of entities are connected.
type PathRequest struct {
	SourceIDs []string `json:"source_ids"`
	TargetIDs []string `json:"target_ids"`
	// MaxDepth bounds path length; 0 means the configured default.
	MaxDepth int `json:"max_depth"`
}

// InfluenceRequest names the professionals whose networks are gathered.
type InfluenceRequest struct {
	ProfessionalIDs []string `json:"professional_ids"`
}

// Config tunes a Service.
type Config struct {
	// Timeout bounds each operation, session acquisition included. Zero
	// leaves the caller's deadline alone.
	Timeout time.Duration
	// SlowQueryThreshold logs operations slower than this at WARN. Zero
	// disables it.
	SlowQueryThreshold time.Duration
	Query              query.Options
}

// DefaultConfig returns the built-in limits.
func DefaultConfig() Config {
	return Config{
		Timeout:            30 * time.Second,
		SlowQueryThreshold: 2 * time.Second,
		Query:              query.DefaultOptions(),
	}
}

// Service implements Graph against an engine.Engine.
type Service struct {
	engine engine.Engine
	config Config
	logger *zap.Logger
}

var _ Graph = (*Service)(nil)

// New creates a Service. A nil logger discards output.
func New(eng engine.Engine, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{engine: eng, config: cfg, logger: logger}
}

// OperationError is what callers see when the engine fails. The detailed
// cause stays in the log under RequestID.
type OperationError struct {
	Kind      error
	RequestID string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%v (request id %s)", e.Kind, e.RequestID)
}

func (e *OperationError) Unwrap() error { return e.Kind }

type requestIDKey struct{}

// WithRequestID attaches a request id that operations log and report.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the id attached by WithRequestID, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// trace collects what run needs to log about an operation.
type trace struct {
	plan  *query.Plan
	nodes int
}

// run is the shared operation skeleton. prepare does pure work (compile,
// validate) before any session is opened; exec runs with the session.
func (s *Service) run(
	ctx context.Context,
	op string,
	prepare func(tr *trace) error,
	exec func(ctx context.Context, sess engine.Session, tr *trace) error,
) (err error) {
	start := time.Now()
	reqID := RequestIDFrom(ctx)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	log := s.logger.With(zap.String("op", op), zap.String("request_id", reqID))
	tr := &trace{}

	defer func() {
		elapsed := time.Since(start)
		metrics.OperationsTotal.WithLabelValues(op, outcome(err)).Inc()
		metrics.OperationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
		if err == nil {
			metrics.ResultNodes.WithLabelValues(op).Observe(float64(tr.nodes))
		}
		s.logSlowQuery(log, tr, elapsed)
	}()

	if prepare != nil {
		if err := prepare(tr); err != nil {
			log.Debug("rejected", zap.Error(err))
			return err
		}
	}

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	sess, err := s.engine.Session(ctx)
	if err != nil {
		return s.fail(log, reqID, tr, err)
	}
	defer func() {
		// Close with a fresh context so a timed-out operation still
		// releases its session.
		if cerr := sess.Close(context.WithoutCancel(ctx)); cerr != nil {
			log.Warn("closing session", zap.Error(cerr))
		}
	}()

	if err := exec(ctx, sess, tr); err != nil {
		return s.fail(log, reqID, tr, err)
	}
	log.Debug("completed", zap.Int("nodes", tr.nodes), zap.Duration("elapsed", time.Since(start)))
	return nil
}

// fail logs err and converts engine failures into an *OperationError.
// Caller-facing errors (invalid filter, not found) pass through unchanged.
func (s *Service) fail(log *zap.Logger, reqID string, tr *trace, err error) error {
	if errors.Is(err, graph.ErrInvalidFilter) || errors.Is(err, graph.ErrNotFound) {
		log.Debug("rejected", zap.Error(err))
		return err
	}
	kind := graph.ErrEngineError
	if errors.Is(err, graph.ErrEngineUnavailable) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		kind = graph.ErrEngineUnavailable
	}
	fields := []zap.Field{zap.Error(err)}
	if tr.plan != nil {
		fields = append(fields,
			zap.String("shape", tr.plan.Shape.String()),
			zap.String("cypher", tr.plan.Cypher),
			zap.Any("params", tr.plan.Params),
		)
	}
	log.Error("engine failure", fields...)
	return &OperationError{Kind: kind, RequestID: reqID}
}

func (s *Service) logSlowQuery(log *zap.Logger, tr *trace, elapsed time.Duration) {
	if s.config.SlowQueryThreshold <= 0 || elapsed < s.config.SlowQueryThreshold {
		return
	}
	fields := []zap.Field{zap.Duration("elapsed", elapsed), zap.Int("nodes", tr.nodes)}
	if tr.plan != nil {
		fields = append(fields, zap.String("cypher", tr.plan.Cypher), zap.Any("params", tr.plan.Params))
	}
	log.Warn("slow query", fields...)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, graph.ErrInvalidFilter):
		return metrics.OutcomeInvalid
	case errors.Is(err, graph.ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, graph.ErrEngineUnavailable):
		return metrics.OutcomeUnavailable
	default:
		return metrics.OutcomeError
	}
}
