package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/orneryd/advisorgraph/pkg/config"
	"github.com/orneryd/advisorgraph/pkg/engine/memory"
	"github.com/orneryd/advisorgraph/pkg/engine/neo4j"
	"github.com/orneryd/advisorgraph/pkg/graph"
	"github.com/orneryd/advisorgraph/pkg/logging"
	"github.com/orneryd/advisorgraph/pkg/query"
	"github.com/orneryd/advisorgraph/pkg/server"
	"github.com/orneryd/advisorgraph/pkg/service"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var (
		address string
		port    int
		noCache bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP query server",
		Long: `Start the HTTP server exposing graph queries, entity detail,
metadata summary, filter options and network expansion.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts, !noCache)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			srvCfg := serverConfig(a.config)
			if cmd.Flags().Changed("address") {
				srvCfg.Address = address
			}
			if cmd.Flags().Changed("port") {
				srvCfg.Port = port
			}
			return runServe(a, srvCfg)
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "Address to bind")
	cmd.Flags().IntVar(&port, "port", 0, "HTTP port")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Disable the result cache even if configured")
	return cmd
}

func runServe(a *app, srvCfg *server.Config) error {
	a.logger.Info("starting advisorgraph",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("engine", a.config.Engine.Driver),
		zap.Bool("cache", a.cache != nil),
	)

	httpServer := server.New(a.graph, srvCfg, a.logger)
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("starting http server: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	a.logger.Info("shutting down", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Stop(ctx); err != nil {
		a.logger.Warn("http server shutdown", zap.Error(err))
	}
	stats := httpServer.Stats()
	a.logger.Info("server stopped",
		zap.Int64("requests", stats.RequestCount),
		zap.Int64("errors", stats.ErrorCount),
	)
	return nil
}

func serverConfig(cfg *config.Config) *server.Config {
	return &server.Config{
		Address:        cfg.Server.Address,
		Port:           cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxRequestSize: cfg.Server.MaxRequestSize,
		EnableMetrics:  cfg.Server.EnableMetrics,
		EnableDocs:     cfg.Server.EnableDocs,
		EnableCORS:     cfg.Server.EnableCORS,
		CORSOrigins:    cfg.Server.CORSOrigins,
	}
}

// filterInput is the --filter / --filter-file pair shared by query and explain.
type filterInput struct {
	inline string
	file   string
	limit  int
	offset int
}

func (f *filterInput) register(cmd *cobra.Command) {
	f.registerFilter(cmd)
	cmd.Flags().IntVar(&f.limit, "limit", 0, "Maximum rows (0 uses the configured default)")
	cmd.Flags().IntVar(&f.offset, "offset", 0, "Rows to skip")
}

func (f *filterInput) registerFilter(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.inline, "filter", "f", "", `Filter as JSON, e.g. '{"node_types":["CONSULTANT"]}'`)
	cmd.Flags().StringVar(&f.file, "filter-file", "", "Read the filter from a JSON or YAML file (- for stdin)")
	cmd.MarkFlagsMutuallyExclusive("filter", "filter-file")
}

func (f *filterInput) given() bool {
	return f.inline != "" || f.file != ""
}

func (f *filterInput) filter(stdin io.Reader) (*graph.Filter, error) {
	switch {
	case f.inline != "":
		return graph.ParseFilter([]byte(f.inline))
	case f.file == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, err
		}
		return graph.ParseFilter(data)
	case f.file != "":
		data, err := os.ReadFile(f.file)
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(filepath.Ext(f.file)) {
		case ".yaml", ".yml":
			return parseYAMLFilter(data)
		}
		return graph.ParseFilter(data)
	}
	return &graph.Filter{}, nil
}

func parseYAMLFilter(data []byte) (*graph.Filter, error) {
	var flt graph.Filter
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&flt); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: %v", graph.ErrInvalidFilter, err)
	}
	return &flt, nil
}

func (f *filterInput) request(stdin io.Reader) (service.Request, error) {
	flt, err := f.filter(stdin)
	if err != nil {
		return service.Request{}, err
	}
	return service.Request{Filter: flt, Limit: f.limit, Offset: f.offset}, nil
}

func newQueryCmd(opts *globalOptions) *cobra.Command {
	in := &filterInput{}
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a filtered graph query and print the result as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := in.request(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, g service.Graph) (any, error) {
				return g.Query(ctx, req)
			})
		},
	}
	in.register(cmd)
	return cmd
}

// explanation is what explain prints: the compiled plan without running it.
type explanation struct {
	Shape  string         `json:"shape"`
	Fields []string       `json:"fields"`
	Cypher string         `json:"cypher"`
	Params map[string]any `json:"params"`
}

func newExplainCmd(opts *globalOptions) *cobra.Command {
	in := &filterInput{}
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Print the Cypher and parameters a filter compiles to",
		Long: `Compile a filter and print the selected traversal shape, the
parameterized Cypher and its parameters. No engine is contacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			req, err := in.request(cmd.InOrStdin())
			if err != nil {
				return err
			}
			qopts := queryOptions(cfg)
			compiled, err := query.Compile(req.Filter)
			if err != nil {
				return err
			}
			page, err := query.ResolvePage(req.Limit, req.Offset, qopts)
			if err != nil {
				return err
			}
			plan := query.Select(compiled, page, qopts)
			return printJSON(cmd.OutOrStdout(), explanation{
				Shape:  plan.Shape.String(),
				Fields: compiled.Fields(),
				Cypher: plan.Cypher,
				Params: plan.Params,
			})
		},
	}
	in.register(cmd)
	return cmd
}

func newNodeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "node <id>",
		Short: "Show an entity with its relationships and neighbors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, g service.Graph) (any, error) {
				return g.Detail(ctx, args[0])
			})
		},
	}
}

func newSummaryCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print graph-wide entity and relationship counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, g service.Graph) (any, error) {
				return g.Summary(ctx)
			})
		},
	}
}

func newOptionsCmd(opts *globalOptions) *cobra.Command {
	in := &filterInput{}
	cmd := &cobra.Command{
		Use:   "options",
		Short: "List the values available to each filter",
		Long: `List the values available to each filter. With --filter or
--filter-file the values are taken only from the entities the filter
matches and their neighbors.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !in.given() {
				return withApp(cmd, opts, func(ctx context.Context, g service.Graph) (any, error) {
					return g.FilterOptions(ctx)
				})
			}
			flt, err := in.filter(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, g service.Graph) (any, error) {
				return g.CascadingOptions(ctx, flt)
			})
		},
	}
	in.registerFilter(cmd)
	return cmd
}

func newExpandCmd(opts *globalOptions) *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "expand <id>...",
		Short: "Walk the network around one or more entities",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := service.ExpandRequest{NodeIDs: args, Depth: depth}
			return withApp(cmd, opts, func(ctx context.Context, g service.Graph) (any, error) {
				return g.Expand(ctx, req)
			})
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 0, "Hop bound (0 uses the configured default)")
	return cmd
}

func newPathsCmd(opts *globalOptions) *cobra.Command {
	var (
		from, to []string
		depth    int
	)
	cmd := &cobra.Command{
		Use:   "paths",
		Short: "Find shortest paths between two sets of entities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := service.PathRequest{SourceIDs: from, TargetIDs: to, MaxDepth: depth}
			return withApp(cmd, opts, func(ctx context.Context, g service.Graph) (any, error) {
				return g.FindPaths(ctx, req)
			})
		},
	}
	cmd.Flags().StringSliceVar(&from, "from", nil, "Source entity ids")
	cmd.Flags().StringSliceVar(&to, "to", nil, "Target entity ids")
	cmd.Flags().IntVar(&depth, "max-depth", 0, "Longest path considered (0 uses the configured default)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newInfluenceCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "influence <professional-id>...",
		Short: "Show the influence network of one or more professionals",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := service.InfluenceRequest{ProfessionalIDs: args}
			return withApp(cmd, opts, func(ctx context.Context, g service.Graph) (any, error) {
				return g.Influence(ctx, req)
			})
		},
	}
}

func newSeedCmd(opts *globalOptions) *cobra.Command {
	var (
		from      string
		wipe      bool
		batchSize int
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a YAML graph fixture into Neo4j",
		Long: `Write the nodes and relationships of a fixture file into the
configured Neo4j database. Fixture ids are kept in the fixture_id property;
--wipe removes previously seeded entities first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Engine.Driver != "neo4j" {
				return fmt.Errorf("seed needs the neo4j driver (configured: %s)", cfg.Engine.Driver)
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			f, err := os.Open(from)
			if err != nil {
				return err
			}
			defer f.Close()
			fx, err := memory.DecodeFixture(f)
			if err != nil {
				return fmt.Errorf("%s: %w", from, err)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			eng, err := openEngine(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer eng.Close(context.Background())

			stats, err := eng.(*neo4j.Engine).Seed(ctx, fx.Nodes, fx.Relationships, neo4j.SeedOptions{
				Wipe:      wipe,
				BatchSize: batchSize,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
	cmd.Flags().StringVar(&from, "from", "data/sample-graph.yaml", "Fixture file to load")
	cmd.Flags().BoolVar(&wipe, "wipe", false, "Delete previously seeded entities first")
	cmd.Flags().IntVar(&batchSize, "batch-size", 500, "Rows per write statement")
	return cmd
}

// withApp runs one service call against a freshly wired app and prints the
// result. The CLI never uses the result cache.
func withApp(cmd *cobra.Command, opts *globalOptions, call func(context.Context, service.Graph) (any, error)) error {
	a, err := newApp(cmd, opts, false)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out, err := call(ctx, a.graph)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
