package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/mahino/scalar"
	"github.com/mahino/scalar/factory"
	"github.com/mahino/scalar/internal"
)

// Server represents the HTTP server over the scaling engine
type Server struct {
	components  *factory.Components
	providerCfg scalar.ProviderConfig
	seeder      *internal.Seeder
	exporter    scalar.Exporter
	mux         *http.ServeMux
}

// NewServer creates a new Server instance. seeder may be nil when no
// live reference provider is configured; exporter may be nil when no
// export bucket is.
func NewServer(components *factory.Components, providerCfg scalar.ProviderConfig, seeder *internal.Seeder, exporter scalar.Exporter) *Server {
	return &Server{
		components:  components,
		providerCfg: providerCfg,
		seeder:      seeder,
		exporter:    exporter,
		mux:         http.NewServeMux(),
	}
}

// RegisterRoutes registers all API routes
func (s *Server) RegisterRoutes() {
	s.mux.HandleFunc("/api/v1/analyze", s.handleAnalyze)
	s.mux.HandleFunc("/api/v1/preview", s.handlePreview)
	s.mux.HandleFunc("/api/v1/generate", s.handleGenerate)
	s.mux.HandleFunc("/api/v1/seed", s.handleSeed)
	// Rule set CRUD plus history/responses - custom path matching in handler
	s.mux.HandleFunc("/api/v1/rulesets/", s.handleRuleSets)
	s.mux.HandleFunc("/api/v1/rulesets", s.handleRuleSets)
	s.mux.HandleFunc("/health", s.handleHealth)
}

// Start starts the HTTP server on the given port
func (s *Server) Start(port string) error {
	zap.S().Infow("starting server", "port", port)
	return http.ListenAndServe(":"+port, s.mux)
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	config := scalar.DefaultConfig()
	config.Storage.Backend = getEnv("STORAGE_BACKEND", config.Storage.Backend)
	config.Storage.Directory = getEnv("STORAGE_DIR", config.Storage.Directory)
	config.Blueprint.Enabled = getEnv("BLUEPRINT_MODE", "true") == "true"
	config.Blueprint.SingleVMMode = getEnv("SINGLE_VM_MODE", "false") == "true"

	config.Database = scalar.DatabaseConfig{
		Host:           getEnv("DB_HOST", "localhost"),
		Port:           getEnvInt("DB_PORT", 5432),
		Database:       getEnv("DB_NAME", "scalar"),
		Username:       getEnv("DB_USER", "postgres"),
		Password:       getEnv("DB_PASSWORD", ""),
		SSLMode:        getEnv("DB_SSL_MODE", "disable"),
		MaxConnections: getEnvInt("DB_MAX_CONNECTIONS", 25),
		Timeout:        time.Duration(getEnvInt("DB_TIMEOUT_SECONDS", 30)) * time.Second,
		RuleSetTable:   getEnv("RULESET_TABLE", "rule_sets"),
		HistoryTable:   getEnv("HISTORY_TABLE", "generation_history"),
	}

	var pool *pgxpool.Pool
	if config.Storage.Backend == "postgres" {
		pool, err = createDatabasePoolFromConfig(config.Database)
		if err != nil {
			sugar.Fatalf("failed to create database pool: %v", err)
		}
		defer pool.Close()
	}

	config.Provider = scalar.ProviderConfig{
		Endpoint: getEnv("PROVIDER_ENDPOINT", ""),
		Username: getEnv("PROVIDER_USER", ""),
		Password: getEnv("PROVIDER_PASSWORD", ""),
		Timeout:  time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 15)) * time.Second,
		Insecure: getEnv("PROVIDER_INSECURE", "false") == "true",
	}

	components, err := factory.Build(context.Background(), config, pool, sugar)
	if err != nil {
		sugar.Fatalf("failed to build engine: %v", err)
	}

	var seeder *internal.Seeder
	if config.Provider.Endpoint != "" {
		provider := internal.NewHTTPReferenceProvider(config.Provider, sugar)
		seeder = internal.NewSeeder(provider, sugar)
	}

	config.Export.Bucket = getEnv("EXPORT_BUCKET", config.Export.Bucket)
	config.Export.Prefix = getEnv("EXPORT_PREFIX", config.Export.Prefix)
	config.Export.Region = getEnv("EXPORT_REGION", config.Export.Region)
	var exporter scalar.Exporter
	if config.Export.Bucket != "" {
		exporter, err = internal.NewS3Exporter(context.Background(), config.Export, sugar)
		if err != nil {
			sugar.Fatalf("failed to build exporter: %v", err)
		}
	}

	server := NewServer(components, config.Provider, seeder, exporter)
	server.RegisterRoutes()

	port := getEnv("PORT", "8080")
	if err := server.Start(port); err != nil {
		sugar.Fatalf("server error: %v", err)
	}
}

// createDatabasePoolFromConfig creates a PostgreSQL connection pool from config
func createDatabasePoolFromConfig(config scalar.DatabaseConfig) (*pgxpool.Pool, error) {
	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		config.Username,
		config.Password,
		config.Host,
		config.Port,
		config.Database,
		config.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(config.MaxConnections)
	poolConfig.ConnConfig.ConnectTimeout = config.Timeout

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
