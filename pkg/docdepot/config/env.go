package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// WithEnv overrides configuration from environment variables carrying the
// given prefix (prefix "DOCDEPOT_" reads DOCDEPOT_PORT and so on). Unset
// variables leave the current value alone, so WithEnv composes with
// WithFile in either order.
func WithEnv(prefix string) Option {
	return func(cfg *ServerConfig) error {
		lookup := func(key string) (string, bool) {
			return os.LookupEnv(prefix + key)
		}

		setString(lookup, "PORT", &cfg.Port)
		setString(lookup, "HOST", &cfg.Host)
		setString(lookup, "ENVIRONMENT", &cfg.Environment)

		setString(lookup, "DATABASE_TYPE", &cfg.DatabaseType)
		setString(lookup, "DATABASE_URL", &cfg.DatabaseURL)
		setString(lookup, "DB_SCHEMA", &cfg.DBSchema)

		if err := setInt(lookup, "DEDUP_CACHE_SIZE", &cfg.DedupCacheSize); err != nil {
			return err
		}
		if err := setDuration(lookup, "DEDUP_CACHE_TTL", &cfg.DedupCacheTTL); err != nil {
			return err
		}

		setString(lookup, "AMQP_URL", &cfg.AMQPURL)
		setString(lookup, "AMQP_QUEUE", &cfg.AMQPQueue)

		// STORAGE_BACKEND selects a single backend built from the
		// matching variables; multi-backend setups come from a file.
		if backendType, ok := lookup("STORAGE_BACKEND"); ok {
			backend := StorageBackendConfig{Name: backendType, Type: backendType}
			switch backendType {
			case "fs":
				setString(lookup, "FS_BASE_DIR", &backend.BaseDir)
			case "s3":
				setString(lookup, "S3_REGION", &backend.Region)
				setString(lookup, "S3_BUCKET", &backend.Bucket)
				setString(lookup, "S3_ACCESS_KEY_ID", &backend.AccessKeyID)
				setString(lookup, "S3_SECRET_ACCESS_KEY", &backend.SecretAccessKey)
				setString(lookup, "S3_ENDPOINT", &backend.Endpoint)
				setString(lookup, "S3_SSE_ALGORITHM", &backend.SSEAlgorithm)
				if err := setBool(lookup, "S3_USE_PATH_STYLE", &backend.UsePathStyle); err != nil {
					return err
				}
				if err := setBool(lookup, "S3_ENABLE_SSE", &backend.EnableSSE); err != nil {
					return err
				}
				if err := setBool(lookup, "S3_CREATE_BUCKET", &backend.CreateBucketIfNotExist); err != nil {
					return err
				}
			}
			cfg.StorageBackends = []StorageBackendConfig{backend}
			cfg.DefaultStorageBackend = backend.Name
		}
		return nil
	}
}

type lookupFunc func(string) (string, bool)

func setString(lookup lookupFunc, key string, dst *string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setBool(lookup lookupFunc, key string, dst *bool) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = parsed
	return nil
}

func setInt(lookup lookupFunc, key string, dst *int) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = parsed
	return nil
}

func setDuration(lookup lookupFunc, key string, dst *time.Duration) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = parsed
	return nil
}
