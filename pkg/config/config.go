// Package config handles advisorgraph configuration via YAML files and
// environment variables.
//
// Configuration Precedence (highest to lowest):
//  1. Command-line flags (--neo4j-uri, --port, etc.)
//  2. Environment variables (ADVISORGRAPH_*)
//  3. Config file (advisorgraph.yaml)
//  4. Built-in defaults
//
// Example Usage:
//
//	cfg, err := config.LoadFromFile(config.FindConfigFile())
//	if err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//	fmt.Println(cfg)
//
// Environment Variables (all use the ADVISORGRAPH_ prefix):
//
// Engine:
//   - ADVISORGRAPH_ENGINE_DRIVER="neo4j" or "memory"
//   - ADVISORGRAPH_ENGINE_URI="neo4j://localhost:7687"
//   - ADVISORGRAPH_ENGINE_USERNAME / ADVISORGRAPH_ENGINE_PASSWORD
//   - ADVISORGRAPH_ENGINE_FIXTURE="./data/sample-graph.yaml"
//
// Query:
//   - ADVISORGRAPH_QUERY_TIMEOUT="30s"
//   - ADVISORGRAPH_QUERY_DEFAULT_LIMIT=1000
//   - ADVISORGRAPH_QUERY_MAX_LIMIT=10000
//   - ADVISORGRAPH_QUERY_MAX_PATHS=10000
//
// Server:
//   - ADVISORGRAPH_SERVER_ADDRESS="0.0.0.0"
//   - ADVISORGRAPH_SERVER_PORT=8080
//   - ADVISORGRAPH_SERVER_CORS_ORIGINS="https://app.example.com,http://localhost:3000"
//
// Cache:
//   - ADVISORGRAPH_CACHE_ENABLED=true
//   - ADVISORGRAPH_CACHE_TTL="5m"
//
// Logging:
//   - ADVISORGRAPH_LOG_LEVEL="INFO"
//   - ADVISORGRAPH_LOG_FORMAT="json"
//   - ADVISORGRAPH_LOG_OUTPUT="stderr"
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by ApplyEnvVars.
const EnvPrefix = "ADVISORGRAPH_"

// Config holds all advisorgraph configuration.
//
// Configuration is organized into logical sections:
//   - Engine: graph backend and connection pool
//   - Query: paging, expansion and timeouts
//   - Server: HTTP listener
//   - Cache: query result cache
//   - Logging: zap logger settings
type Config struct {
	Engine  EngineConfig  `yaml:"engine" envPrefix:"ENGINE_"`
	Query   QueryConfig   `yaml:"query" envPrefix:"QUERY_"`
	Server  ServerConfig  `yaml:"server" envPrefix:"SERVER_"`
	Cache   CacheConfig   `yaml:"cache" envPrefix:"CACHE_"`
	Logging LoggingConfig `yaml:"logging" envPrefix:"LOG_"`
}

// EngineConfig selects and configures the graph backend.
type EngineConfig struct {
	// Driver is "neo4j" or "memory".
	Driver   string `yaml:"driver" env:"DRIVER"`
	URI      string `yaml:"uri" env:"URI"`
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
	// Database is the Neo4j database name. Empty uses the server default.
	Database                     string        `yaml:"database" env:"DATABASE"`
	MaxConnectionPoolSize        int           `yaml:"max_connection_pool_size" env:"MAX_POOL_SIZE"`
	ConnectionAcquisitionTimeout time.Duration `yaml:"connection_acquisition_timeout" env:"ACQUISITION_TIMEOUT"`
	FetchSize                    int           `yaml:"fetch_size" env:"FETCH_SIZE"`
	// Fixture is the YAML graph loaded by the memory driver.
	Fixture string `yaml:"fixture" env:"FIXTURE"`
	// VerifyOnStart pings the server before serving.
	VerifyOnStart bool `yaml:"verify_on_start" env:"VERIFY_ON_START"`
}

// QueryConfig holds paging and timeout limits.
type QueryConfig struct {
	Timeout            time.Duration `yaml:"timeout" env:"TIMEOUT"`
	DefaultLimit       int           `yaml:"default_limit" env:"DEFAULT_LIMIT"`
	MaxLimit           int           `yaml:"max_limit" env:"MAX_LIMIT"`
	ExpandNeighbors    bool          `yaml:"expand_neighbors" env:"EXPAND_NEIGHBORS"`
	DefaultDepth       int           `yaml:"default_depth" env:"DEFAULT_DEPTH"`
	MaxDepth           int           `yaml:"max_depth" env:"MAX_DEPTH"`
	MaxPaths           int           `yaml:"max_paths" env:"MAX_PATHS"`
	DefaultPathDepth   int           `yaml:"default_path_depth" env:"DEFAULT_PATH_DEPTH"`
	MaxPathDepth       int           `yaml:"max_path_depth" env:"MAX_PATH_DEPTH"`
	SlowQueryThreshold time.Duration `yaml:"slow_query_threshold" env:"SLOW_QUERY_THRESHOLD"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Address         string        `yaml:"address" env:"ADDRESS"`
	Port            int           `yaml:"port" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	MaxRequestSize  int64         `yaml:"max_request_size" env:"MAX_REQUEST_SIZE"`
	EnableMetrics   bool          `yaml:"enable_metrics" env:"ENABLE_METRICS"`
	EnableDocs      bool          `yaml:"enable_docs" env:"ENABLE_DOCS"`
	EnableCORS      bool          `yaml:"enable_cors" env:"ENABLE_CORS"`
	// CORSOrigins is comma separated in the environment.
	CORSOrigins []string `yaml:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Dir persists the cache on disk. Empty keeps it in memory.
	Dir string        `yaml:"dir" env:"DIR"`
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	// Level is DEBUG, INFO, WARN or ERROR.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is "json" or "console".
	Format string `yaml:"format" env:"FORMAT"`
	// Output is "stdout", "stderr" or a file path. Files are rotated.
	Output     string `yaml:"output" env:"OUTPUT"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" env:"MAX_AGE_DAYS"`
	Compress   bool   `yaml:"compress" env:"COMPRESS"`
}

// LoadDefaults returns a Config with built-in defaults only.
func LoadDefaults() *Config {
	return &Config{
		Engine: EngineConfig{
			Driver:                       "neo4j",
			URI:                          "neo4j://localhost:7687",
			Username:                     "neo4j",
			MaxConnectionPoolSize:        50,
			ConnectionAcquisitionTimeout: 10 * time.Second,
		},
		Query: QueryConfig{
			Timeout:            30 * time.Second,
			DefaultLimit:       1000,
			MaxLimit:           10000,
			ExpandNeighbors:    true,
			DefaultDepth:       2,
			MaxDepth:           5,
			MaxPaths:           10000,
			DefaultPathDepth:   4,
			MaxPathDepth:       6,
			SlowQueryThreshold: 2 * time.Second,
		},
		Server: ServerConfig{
			Address:         "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxRequestSize:  1 << 20,
			EnableMetrics:   true,
			EnableDocs:      true,
		},
		Cache: CacheConfig{
			Enabled: false,
			TTL:     5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:      "INFO",
			Format:     "json",
			Output:     "stderr",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// LoadFromFile loads defaults, overlays the YAML file at path (skipped when
// path is empty), then environment variables.
func LoadFromFile(path string) (*Config, error) {
	cfg := LoadDefaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := ApplyEnvVars(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvVars overlays ADVISORGRAPH_* variables onto cfg. Unset variables
// leave fields untouched.
func ApplyEnvVars(cfg *Config) error {
	if err := env.Parse(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}
	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	switch c.Engine.Driver {
	case "neo4j":
		if c.Engine.URI == "" {
			result = multierror.Append(result, fmt.Errorf("engine.uri is required for the neo4j driver"))
		}
	case "memory":
	default:
		result = multierror.Append(result, fmt.Errorf("unknown engine driver %q (want neo4j or memory)", c.Engine.Driver))
	}
	if c.Engine.ConnectionAcquisitionTimeout < 0 {
		result = multierror.Append(result, fmt.Errorf("invalid connection acquisition timeout: %v", c.Engine.ConnectionAcquisitionTimeout))
	}
	if c.Engine.MaxConnectionPoolSize < 0 {
		result = multierror.Append(result, fmt.Errorf("invalid max connection pool size: %d", c.Engine.MaxConnectionPoolSize))
	}

	if c.Query.Timeout < 0 {
		result = multierror.Append(result, fmt.Errorf("invalid query timeout: %v", c.Query.Timeout))
	}
	if c.Query.DefaultLimit <= 0 {
		result = multierror.Append(result, fmt.Errorf("invalid default limit: %d", c.Query.DefaultLimit))
	}
	if c.Query.MaxLimit < c.Query.DefaultLimit {
		result = multierror.Append(result, fmt.Errorf("max limit %d is below default limit %d", c.Query.MaxLimit, c.Query.DefaultLimit))
	}
	if c.Query.MaxDepth < 1 {
		result = multierror.Append(result, fmt.Errorf("invalid max depth: %d", c.Query.MaxDepth))
	}
	if c.Query.DefaultDepth < 1 || c.Query.DefaultDepth > c.Query.MaxDepth {
		result = multierror.Append(result, fmt.Errorf("default depth %d must be between 1 and max depth %d", c.Query.DefaultDepth, c.Query.MaxDepth))
	}
	if c.Query.MaxPaths < 0 {
		result = multierror.Append(result, fmt.Errorf("invalid max paths: %d", c.Query.MaxPaths))
	}
	if c.Query.MaxPathDepth < 1 {
		result = multierror.Append(result, fmt.Errorf("invalid max path depth: %d", c.Query.MaxPathDepth))
	}
	if c.Query.DefaultPathDepth < 1 || c.Query.DefaultPathDepth > c.Query.MaxPathDepth {
		result = multierror.Append(result, fmt.Errorf("default path depth %d must be between 1 and max path depth %d", c.Query.DefaultPathDepth, c.Query.MaxPathDepth))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("invalid server port: %d", c.Server.Port))
	}
	if c.Server.MaxRequestSize <= 0 {
		result = multierror.Append(result, fmt.Errorf("invalid max request size: %d", c.Server.MaxRequestSize))
	}

	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		result = multierror.Append(result, fmt.Errorf("cache enabled with non-positive ttl: %v", c.Cache.TTL))
	}

	switch strings.ToUpper(c.Logging.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		result = multierror.Append(result, fmt.Errorf("invalid log level %q", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		result = multierror.Append(result, fmt.Errorf("invalid log format %q", c.Logging.Format))
	}

	return result.ErrorOrNil()
}

// String returns a representation safe for logging. The engine password is
// never included.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Engine: %s %s db=%q, HTTP: %s:%d, Limit: %d/%d, Timeout: %v, Cache: %v}",
		c.Engine.Driver, c.engineTarget(), c.Engine.Database,
		c.Server.Address, c.Server.Port,
		c.Query.DefaultLimit, c.Query.MaxLimit, c.Query.Timeout,
		c.Cache.Enabled,
	)
}

func (c *Config) engineTarget() string {
	if c.Engine.Driver == "memory" {
		return c.Engine.Fixture
	}
	return c.Engine.URI
}

// FindConfigFile returns the first config file found, or "".
//
// Search order:
//  1. ~/.advisorgraph/config.yaml
//  2. config.yaml / advisorgraph.yaml next to the binary
//  3. config.yaml / advisorgraph.yaml in the working directory
//  4. ~/.config/advisorgraph/config.yaml
func FindConfigFile() string {
	var candidates []string

	home, homeErr := os.UserHomeDir()
	if homeErr == nil {
		candidates = append(candidates, filepath.Join(home, ".advisorgraph", "config.yaml"))
	}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(dir, "config.yaml"),
			filepath.Join(dir, "advisorgraph.yaml"),
		)
	}
	candidates = append(candidates, "config.yaml", "advisorgraph.yaml")
	if homeErr == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "advisorgraph", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
