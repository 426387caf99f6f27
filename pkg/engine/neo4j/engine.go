// Package neo4j runs query plans against a Neo4j-compatible server over Bolt.
//
// The driver owns a connection pool; every service operation takes one
// session from it and closes it when done. Queries run as auto-commit
// transactions so the driver never retries on its own; retry policy belongs
// to the caller.
package neo4j

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/orneryd/advisorgraph/pkg/engine"
	"github.com/orneryd/advisorgraph/pkg/graph"
)

// Config holds connection settings.
type Config struct {
	URI      string
	Username string
	Password string
	// Database is the target database. Empty uses the server default.
	Database string
	// MaxConnectionPoolSize caps pooled connections (driver default 100).
	MaxConnectionPoolSize int
	// ConnectionAcquisitionTimeout bounds waiting for a pooled connection.
	ConnectionAcquisitionTimeout time.Duration
	// QueryTimeout is sent to the server as the transaction timeout. Zero
	// uses the server setting.
	QueryTimeout time.Duration
	// FetchSize is the number of records pulled per batch. Zero uses the
	// driver default.
	FetchSize int
}

// Engine is an engine.Engine backed by the official Neo4j Go driver.
type Engine struct {
	driver neo4j.DriverWithContext
	config Config
	logger *zap.Logger
	open   atomic.Int64
}

var _ engine.Engine = (*Engine)(nil)

// New creates the driver. It does not contact the server; call
// VerifyConnectivity for a startup check.
func New(cfg Config, logger *zap.Logger) (*Engine, error) {
	if cfg.URI == "" {
		return nil, errors.New("neo4j: uri is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		if cfg.MaxConnectionPoolSize > 0 {
			c.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
		}
		if cfg.ConnectionAcquisitionTimeout > 0 {
			c.ConnectionAcquisitionTimeout = cfg.ConnectionAcquisitionTimeout
		}
		c.Log = &driverLogger{logger: logger.Named("neo4j")}
	})
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}
	return &Engine{driver: driver, config: cfg, logger: logger}, nil
}

// VerifyConnectivity checks that the server is reachable.
func (e *Engine) VerifyConnectivity(ctx context.Context) error {
	if err := e.driver.VerifyConnectivity(ctx); err != nil {
		return classify(err)
	}
	return nil
}

// Session opens a read session on the configured database.
func (e *Engine) Session(ctx context.Context) (engine.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify(err)
	}
	cfg := neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: e.config.Database,
	}
	if e.config.FetchSize > 0 {
		cfg.FetchSize = e.config.FetchSize
	}
	e.open.Add(1)
	return &session{
		engine: e,
		inner:  e.driver.NewSession(ctx, cfg),
	}, nil
}

// OpenSessions reports sessions handed out and not yet closed.
func (e *Engine) OpenSessions() int64 {
	return e.open.Load()
}

// Close shuts the driver and its pool down.
func (e *Engine) Close(ctx context.Context) error {
	return e.driver.Close(ctx)
}

// classify maps driver failures onto the service error taxonomy. The original
// error text is kept for logging; callers surface only the sentinel.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || neo4j.IsConnectivityError(err) {
		return fmt.Errorf("%w: %v", graph.ErrEngineUnavailable, err)
	}
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) && isTimeoutCode(neoErr.Code) {
		return fmt.Errorf("%w: %v", graph.ErrEngineUnavailable, err)
	}
	return fmt.Errorf("%w: %v", graph.ErrEngineError, err)
}

func isTimeoutCode(code string) bool {
	switch code {
	case "Neo.ClientError.Transaction.TransactionTimedOut",
		"Neo.ClientError.Transaction.TransactionTimedOutClientConfiguration":
		return true
	}
	return false
}

// driverLogger routes driver diagnostics into zap.
type driverLogger struct {
	logger *zap.Logger
}

func (l *driverLogger) Error(name, id string, err error) {
	l.logger.Error("driver error", zap.String("component", name), zap.String("id", id), zap.Error(err))
}

func (l *driverLogger) Warnf(name, id, msg string, args ...any) {
	l.logger.Warn(fmt.Sprintf(msg, args...), zap.String("component", name), zap.String("id", id))
}

func (l *driverLogger) Infof(name, id, msg string, args ...any) {
	l.logger.Info(fmt.Sprintf(msg, args...), zap.String("component", name), zap.String("id", id))
}

func (l *driverLogger) Debugf(name, id, msg string, args ...any) {
	if ce := l.logger.Check(zap.DebugLevel, "driver debug"); ce != nil {
		l.logger.Debug(fmt.Sprintf(msg, args...), zap.String("component", name), zap.String("id", id))
	}
}
