package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/orneryd/advisorgraph/pkg/cache"
	"github.com/orneryd/advisorgraph/pkg/config"
	"github.com/orneryd/advisorgraph/pkg/engine"
	"github.com/orneryd/advisorgraph/pkg/engine/memory"
	"github.com/orneryd/advisorgraph/pkg/engine/neo4j"
	"github.com/orneryd/advisorgraph/pkg/logging"
	"github.com/orneryd/advisorgraph/pkg/query"
	"github.com/orneryd/advisorgraph/pkg/service"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configFile string
	envFile    string
	driver     string
	uri        string
	username   string
	password   string
	database   string
	fixture    string
	logLevel   string
	timeout    time.Duration
}

func (o *globalOptions) register(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&o.configFile, "config", "", "Config file (default: search ~/.advisorgraph, binary dir, working dir)")
	f.StringVar(&o.envFile, "env-file", ".env", "Dotenv file loaded before reading ADVISORGRAPH_* variables")
	f.StringVar(&o.driver, "driver", "", "Engine driver: neo4j or memory")
	f.StringVar(&o.uri, "neo4j-uri", "", "Neo4j URI (e.g. neo4j://localhost:7687)")
	f.StringVar(&o.username, "neo4j-user", "", "Neo4j username")
	f.StringVar(&o.password, "neo4j-password", "", "Neo4j password")
	f.StringVar(&o.database, "database", "", "Neo4j database name")
	f.StringVar(&o.fixture, "fixture", "", "YAML graph for the memory driver (implies --driver memory)")
	f.StringVar(&o.logLevel, "log-level", "", "Log level: DEBUG, INFO, WARN, ERROR")
	f.DurationVar(&o.timeout, "timeout", 0, "Per-operation timeout (e.g. 30s)")
}

// loadConfig applies defaults, file, environment and flags, in that order.
func (o *globalOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", o.envFile, err)
	}

	path := o.configFile
	if path == "" {
		path = config.FindConfigFile()
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("driver") {
		cfg.Engine.Driver = o.driver
	}
	if flags.Changed("neo4j-uri") {
		cfg.Engine.URI = o.uri
	}
	if flags.Changed("neo4j-user") {
		cfg.Engine.Username = o.username
	}
	if flags.Changed("neo4j-password") {
		cfg.Engine.Password = o.password
	}
	if flags.Changed("database") {
		cfg.Engine.Database = o.database
	}
	if flags.Changed("fixture") {
		cfg.Engine.Fixture = o.fixture
		if !flags.Changed("driver") {
			cfg.Engine.Driver = "memory"
		}
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = o.logLevel
	}
	if flags.Changed("timeout") {
		cfg.Query.Timeout = o.timeout
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// app is the wired object graph for one command invocation.
type app struct {
	config  *config.Config
	logger  *zap.Logger
	engine  engine.Engine
	graph   service.Graph
	cache   *cache.Cache
	service *service.Service
}

func newApp(cmd *cobra.Command, o *globalOptions, withCache bool) (*app, error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	eng, err := openEngine(cmd.Context(), cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	svc := service.New(eng, serviceConfig(cfg), logger)
	a := &app{config: cfg, logger: logger, engine: eng, graph: svc, service: svc}

	if withCache && cfg.Cache.Enabled {
		c, err := cache.New(svc, cache.Options{Dir: cfg.Cache.Dir, TTL: cfg.Cache.TTL, Logger: logger})
		if err != nil {
			a.Close(context.Background())
			return nil, err
		}
		a.cache = c
		a.graph = c
	}
	return a, nil
}

func (a *app) Close(ctx context.Context) {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("closing cache", zap.Error(err))
		}
	}
	if err := a.engine.Close(ctx); err != nil {
		a.logger.Warn("closing engine", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func openEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger) (engine.Engine, error) {
	switch cfg.Engine.Driver {
	case "memory":
		if cfg.Engine.Fixture == "" {
			logger.Info("memory engine started empty")
			return memory.New(), nil
		}
		eng, err := memory.LoadFile(cfg.Engine.Fixture)
		if err != nil {
			return nil, err
		}
		logger.Info("memory engine loaded",
			zap.String("fixture", cfg.Engine.Fixture),
			zap.Int("nodes", eng.NodeCount()),
			zap.Int("relationships", eng.EdgeCount()),
		)
		return eng, nil

	case "neo4j":
		eng, err := neo4j.New(neo4j.Config{
			URI:                          cfg.Engine.URI,
			Username:                     cfg.Engine.Username,
			Password:                     cfg.Engine.Password,
			Database:                     cfg.Engine.Database,
			MaxConnectionPoolSize:        cfg.Engine.MaxConnectionPoolSize,
			ConnectionAcquisitionTimeout: cfg.Engine.ConnectionAcquisitionTimeout,
			QueryTimeout:                 cfg.Query.Timeout,
			FetchSize:                    cfg.Engine.FetchSize,
		}, logger)
		if err != nil {
			return nil, err
		}
		if cfg.Engine.VerifyOnStart {
			vctx := ctx
			if vctx == nil {
				vctx = context.Background()
			}
			vctx, cancel := withOptionalTimeout(vctx, cfg.Engine.ConnectionAcquisitionTimeout)
			defer cancel()
			if err := eng.VerifyConnectivity(vctx); err != nil {
				_ = eng.Close(context.Background())
				return nil, err
			}
		}
		return eng, nil
	}
	return nil, fmt.Errorf("unknown engine driver %q", cfg.Engine.Driver)
}

func serviceConfig(cfg *config.Config) service.Config {
	return service.Config{
		Timeout:            cfg.Query.Timeout,
		SlowQueryThreshold: cfg.Query.SlowQueryThreshold,
		Query:              queryOptions(cfg),
	}
}

func queryOptions(cfg *config.Config) query.Options {
	return query.Options{
		DefaultLimit:    cfg.Query.DefaultLimit,
		MaxLimit:        cfg.Query.MaxLimit,
		ExpandNeighbors: cfg.Query.ExpandNeighbors,
		DefaultDepth:    cfg.Query.DefaultDepth,
		MaxDepth:        cfg.Query.MaxDepth,
		MaxPaths:        cfg.Query.MaxPaths,

		DefaultPathDepth: cfg.Query.DefaultPathDepth,
		MaxPathDepth:     cfg.Query.MaxPathDepth,
	}
}

// withOptionalTimeout bounds ctx by d. Zero or negative d leaves the
// driver's own acquisition timeout in charge.
func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
