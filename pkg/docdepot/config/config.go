// Package config loads server configuration and assembles a ready
// docdepot.Service from it.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docdepot/docdepot/pkg/docdepot"
	"github.com/docdepot/docdepot/pkg/docdepot/announce/rabbitmq"
	memoryrepo "github.com/docdepot/docdepot/pkg/docdepot/repo/memory"
	postgresrepo "github.com/docdepot/docdepot/pkg/docdepot/repo/postgres"
	fsstorage "github.com/docdepot/docdepot/pkg/docdepot/storage/fs"
	memorystorage "github.com/docdepot/docdepot/pkg/docdepot/storage/memory"
	s3storage "github.com/docdepot/docdepot/pkg/docdepot/storage/s3"
)

// StorageBackendConfig configures one named blob storage backend.
type StorageBackendConfig struct {
	Name string `toml:"name"`
	Type string `toml:"type"` // memory, fs, s3

	// fs
	BaseDir string `toml:"base_dir"`

	// s3
	Region                 string `toml:"region"`
	Bucket                 string `toml:"bucket"`
	AccessKeyID            string `toml:"access_key_id"`
	SecretAccessKey        string `toml:"secret_access_key"`
	Endpoint               string `toml:"endpoint"`
	UsePathStyle           bool   `toml:"use_path_style"`
	EnableSSE              bool   `toml:"enable_sse"`
	SSEAlgorithm           string `toml:"sse_algorithm"`
	CreateBucketIfNotExist bool   `toml:"create_bucket_if_not_exist"`
}

// ServerConfig is the full server configuration.
type ServerConfig struct {
	Port        string `toml:"port"`
	Host        string `toml:"host"`
	Environment string `toml:"environment"` // development, staging, production

	DatabaseType string `toml:"database_type"` // memory, postgres
	DatabaseURL  string `toml:"database_url"`
	DBSchema     string `toml:"db_schema"`

	DefaultStorageBackend string                 `toml:"default_storage_backend"`
	StorageBackends       []StorageBackendConfig `toml:"storage_backends"`

	DedupCacheSize int           `toml:"dedup_cache_size"`
	DedupCacheTTL  time.Duration `toml:"dedup_cache_ttl"`

	AMQPURL   string `toml:"amqp_url"`
	AMQPQueue string `toml:"amqp_queue"`
}

// Option mutates the configuration during Load.
type Option func(*ServerConfig) error

// Load builds a configuration from defaults, applies the given options
// in order and validates the result.
func Load(options ...Option) (*ServerConfig, error) {
	cfg := defaults()
	for _, option := range options {
		if err := option(cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *ServerConfig {
	return &ServerConfig{
		Port:                  "8080",
		Host:                  "0.0.0.0",
		Environment:           "development",
		DatabaseType:          "memory",
		DBSchema:              "docdepot",
		DefaultStorageBackend: "memory",
		StorageBackends: []StorageBackendConfig{
			{Name: "memory", Type: "memory"},
		},
		DedupCacheSize: 1024,
		DedupCacheTTL:  5 * time.Minute,
		AMQPQueue:      "docdepot.events",
	}
}

// WithFile overlays configuration from a TOML file.
func WithFile(path string) Option {
	return func(cfg *ServerConfig) error {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return fmt.Errorf("read config file %s: %w", path, err)
		}
		return nil
	}
}

// WithFileIfPresent overlays configuration from a TOML file when it
// exists and does nothing when it does not.
func WithFileIfPresent(path string) Option {
	return func(cfg *ServerConfig) error {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil
		}
		return WithFile(path)(cfg)
	}
}

// Validate checks the configuration for contradictions before anything
// is built from it.
func (c *ServerConfig) Validate() error {
	switch c.DatabaseType {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}

	if len(c.StorageBackends) == 0 {
		return fmt.Errorf("at least one storage backend is required")
	}
	names := make(map[string]bool, len(c.StorageBackends))
	for _, backend := range c.StorageBackends {
		if backend.Name == "" {
			return fmt.Errorf("storage backend name is required")
		}
		if names[backend.Name] {
			return fmt.Errorf("duplicate storage backend name: %s", backend.Name)
		}
		names[backend.Name] = true

		switch backend.Type {
		case "memory":
		case "fs":
			if backend.BaseDir == "" {
				return fmt.Errorf("backend %s: base directory is required", backend.Name)
			}
		case "s3":
			if backend.Bucket == "" {
				return fmt.Errorf("backend %s: bucket is required", backend.Name)
			}
		default:
			return fmt.Errorf("backend %s: unsupported type: %s", backend.Name, backend.Type)
		}
	}
	if !names[c.DefaultStorageBackend] {
		return fmt.Errorf("default storage backend %s is not configured", c.DefaultStorageBackend)
	}

	if c.AMQPURL != "" && c.AMQPQueue == "" {
		return fmt.Errorf("AMQP queue name is required when a broker URL is set")
	}
	return nil
}

// BuildService assembles a Service with all configured collaborators.
// The returned cleanup releases the database pool and broker connection;
// call it at shutdown.
func (c *ServerConfig) BuildService(ctx context.Context, logger *slog.Logger) (docdepot.Service, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	repo, repoCleanup, err := c.buildRepository(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("build repository: %w", err)
	}
	if repoCleanup != nil {
		cleanups = append(cleanups, repoCleanup)
	}

	options := []docdepot.Option{
		docdepot.WithRepository(repo),
		docdepot.WithDefaultBackend(c.DefaultStorageBackend),
		docdepot.WithDedupCache(c.DedupCacheSize, c.DedupCacheTTL),
		docdepot.WithLogger(logger),
	}

	for _, backendCfg := range c.StorageBackends {
		store, err := buildStorageBackend(backendCfg)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("build storage backend %s: %w", backendCfg.Name, err)
		}
		options = append(options, docdepot.WithBlobStore(backendCfg.Name, store))
	}

	if c.AMQPURL != "" {
		announcer, err := rabbitmq.New(rabbitmq.Config{URL: c.AMQPURL, Queue: c.AMQPQueue})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("build announcer: %w", err)
		}
		cleanups = append(cleanups, func() { announcer.Close() })
		options = append(options, docdepot.WithAnnouncer(announcer))
	}

	svc, err := docdepot.New(options...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return svc, cleanup, nil
}

func (c *ServerConfig) buildRepository(ctx context.Context) (docdepot.Repository, func(), error) {
	switch c.DatabaseType {
	case "memory":
		return memoryrepo.New(), nil, nil

	case "postgres":
		if err := postgresrepo.EnsureSchema(ctx, c.DatabaseURL, c.DBSchema); err != nil {
			return nil, nil, err
		}
		if err := postgresrepo.MigrateUp(c.DatabaseURL, c.DBSchema); err != nil {
			return nil, nil, err
		}

		poolConfig, err := pgxpool.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse database URL: %w", err)
		}
		if c.DBSchema != "" {
			schema := c.DBSchema
			poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
				_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
				return err
			}
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("create connection pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping database: %w", err)
		}
		return postgresrepo.NewWithPool(pool), pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

func buildStorageBackend(cfg StorageBackendConfig) (docdepot.BlobStore, error) {
	switch cfg.Type {
	case "memory":
		return memorystorage.New(), nil
	case "fs":
		return fsstorage.New(fsstorage.Config{BaseDir: cfg.BaseDir})
	case "s3":
		return s3storage.New(s3storage.Config{
			Region:                 cfg.Region,
			Bucket:                 cfg.Bucket,
			AccessKeyID:            cfg.AccessKeyID,
			SecretAccessKey:        cfg.SecretAccessKey,
			Endpoint:               cfg.Endpoint,
			UsePathStyle:           cfg.UsePathStyle,
			EnableSSE:              cfg.EnableSSE,
			SSEAlgorithm:           cfg.SSEAlgorithm,
			CreateBucketIfNotExist: cfg.CreateBucketIfNotExist,
		})
	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", cfg.Type)
	}
}
