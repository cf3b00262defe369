// Package config resolves runtime settings from defaults, an optional YAML
// file, DBTLINEAGE_* environment variables and bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ErrInvalidConfig marks a setting outside its allowed values.
var ErrInvalidConfig = errors.New("invalid configuration")

// EnvPrefix namespaces every environment override.
const EnvPrefix = "DBTLINEAGE"

// Keys understood by the loader. Flags bind to the same keys.
const (
	KeyStorageDriver   = "storage.driver"
	KeySQLitePath      = "storage.sqlite_path"
	KeyPostgresDSN     = "storage.postgres_dsn"
	KeyBlobDriver      = "blob.driver"
	KeyBlobFSRoot      = "blob.fs_root"
	KeyBlobS3Bucket    = "blob.s3.bucket"
	KeyBlobS3Region    = "blob.s3.region"
	KeyBlobS3Endpoint  = "blob.s3.endpoint"
	KeyBlobS3AccessKey = "blob.s3.access_key"
	KeyBlobS3SecretKey = "blob.s3.secret_key"
	KeyBlobS3PathStyle = "blob.s3.use_path_style"
	KeyBlobS3Prefix    = "blob.s3.prefix"
	KeyLockDriver      = "lock.driver"
	KeyRedisAddr       = "lock.redis_addr"
	KeyLogMode         = "log.mode"
	KeyConcurrency     = "ingest.concurrency"
	KeyCreateMissing   = "ingest.create_missing"
	KeyMetricsDriver   = "metrics.driver"
	KeyMetricsTextfile = "metrics.textfile"
	KeyTraceFile       = "metrics.trace_file"
)

// env names are flat, so each key is bound explicitly
var envBindings = map[string]string{
	KeyStorageDriver:   "STORAGE_DRIVER",
	KeySQLitePath:      "SQLITE_PATH",
	KeyPostgresDSN:     "POSTGRES_DSN",
	KeyBlobDriver:      "BLOB_DRIVER",
	KeyBlobFSRoot:      "BLOB_FS_ROOT",
	KeyBlobS3Bucket:    "BLOB_S3_BUCKET",
	KeyBlobS3Region:    "BLOB_S3_REGION",
	KeyBlobS3Endpoint:  "BLOB_S3_ENDPOINT",
	KeyBlobS3AccessKey: "BLOB_S3_ACCESS_KEY",
	KeyBlobS3SecretKey: "BLOB_S3_SECRET_KEY",
	KeyBlobS3PathStyle: "BLOB_S3_USE_PATH_STYLE",
	KeyBlobS3Prefix:    "BLOB_S3_PREFIX",
	KeyLockDriver:      "LOCK_DRIVER",
	KeyRedisAddr:       "REDIS_ADDR",
	KeyLogMode:         "LOG_MODE",
	KeyConcurrency:     "INGEST_CONCURRENCY",
	KeyCreateMissing:   "INGEST_CREATE_MISSING",
	KeyMetricsDriver:   "METRICS_DRIVER",
	KeyMetricsTextfile: "METRICS_TEXTFILE",
	KeyTraceFile:       "TRACE_FILE",
}

// Config is the resolved runtime configuration.
type Config struct {
	Storage Storage
	Blob    Blob
	Lock    Lock
	Log     Log
	Ingest  Ingest
	Metrics Metrics
}

// Storage selects the persistence backend.
type Storage struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

// Blob selects where batch reports are archived.
type Blob struct {
	Driver string
	FSRoot string
	S3     S3
}

// S3 holds bucket settings for the s3 blob driver.
type S3 struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	Prefix       string
}

// Lock selects how EnsureDesign serializes on lineage hashes.
type Lock struct {
	Driver    string
	RedisAddr string
}

// Log controls logger construction.
type Log struct {
	Mode string
}

// Ingest tunes the batch pipeline.
type Ingest struct {
	Concurrency   int
	CreateMissing bool
}

// Metrics selects the metrics recorder and optional exports. Textfile is
// written in the Prometheus text format when the process exits; TraceFile
// receives one JSON line per traced operation.
type Metrics struct {
	Driver    string
	Textfile  string
	TraceFile string
}

// New returns a viper instance with defaults and environment bindings applied.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyStorageDriver, "sqlite")
	v.SetDefault(KeySQLitePath, "dbtlineage.db")
	v.SetDefault(KeyBlobDriver, "fs")
	v.SetDefault(KeyBlobFSRoot, "reports")
	v.SetDefault(KeyBlobS3Region, "us-east-1")
	v.SetDefault(KeyLockDriver, "local")
	v.SetDefault(KeyRedisAddr, "localhost:6379")
	v.SetDefault(KeyLogMode, "dev")
	v.SetDefault(KeyConcurrency, 1)
	v.SetDefault(KeyCreateMissing, false)
	v.SetDefault(KeyMetricsDriver, "none")
	for key, env := range envBindings {
		_ = v.BindEnv(key, EnvPrefix+"_"+env)
	}
	return v
}

// ReadFile merges the YAML file at path into v. An empty path searches the
// working directory for dbtlineage.yaml; a missing file is not an error.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("dbtlineage")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load resolves configuration from defaults, the optional file and the environment.
func Load(path string) (Config, error) {
	v := New()
	if err := ReadFile(v, path); err != nil {
		return Config{}, err
	}
	return Decode(v)
}

// Decode materializes and validates a Config from v.
func Decode(v *viper.Viper) (Config, error) {
	cfg := Config{
		Storage: Storage{
			Driver:      strings.ToLower(v.GetString(KeyStorageDriver)),
			SQLitePath:  v.GetString(KeySQLitePath),
			PostgresDSN: v.GetString(KeyPostgresDSN),
		},
		Blob: Blob{
			Driver: strings.ToLower(v.GetString(KeyBlobDriver)),
			FSRoot: v.GetString(KeyBlobFSRoot),
			S3: S3{
				Bucket:       v.GetString(KeyBlobS3Bucket),
				Region:       v.GetString(KeyBlobS3Region),
				Endpoint:     v.GetString(KeyBlobS3Endpoint),
				AccessKey:    v.GetString(KeyBlobS3AccessKey),
				SecretKey:    v.GetString(KeyBlobS3SecretKey),
				UsePathStyle: v.GetBool(KeyBlobS3PathStyle),
				Prefix:       v.GetString(KeyBlobS3Prefix),
			},
		},
		Lock: Lock{
			Driver:    strings.ToLower(v.GetString(KeyLockDriver)),
			RedisAddr: v.GetString(KeyRedisAddr),
		},
		Log:    Log{Mode: strings.ToLower(v.GetString(KeyLogMode))},
		Ingest: Ingest{Concurrency: v.GetInt(KeyConcurrency), CreateMissing: v.GetBool(KeyCreateMissing)},
		Metrics: Metrics{
			Driver:    strings.ToLower(v.GetString(KeyMetricsDriver)),
			Textfile:  v.GetString(KeyMetricsTextfile),
			TraceFile: v.GetString(KeyTraceFile),
		},
	}
	return cfg, cfg.Validate()
}

// Validate checks enumerated settings and required companions.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("%w: %s requires a postgres dsn", ErrInvalidConfig, KeyStorageDriver)
		}
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalidConfig, c.Storage.Driver)
	}
	switch c.Blob.Driver {
	case "memory", "fs":
	case "s3":
		if c.Blob.S3.Bucket == "" {
			return fmt.Errorf("%w: s3 blob driver requires a bucket", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown blob driver %q", ErrInvalidConfig, c.Blob.Driver)
	}
	switch c.Lock.Driver {
	case "local":
	case "redis":
		if c.Lock.RedisAddr == "" {
			return fmt.Errorf("%w: redis lock driver requires an address", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown lock driver %q", ErrInvalidConfig, c.Lock.Driver)
	}
	switch c.Metrics.Driver {
	case "", "none", "expvar":
		if c.Metrics.Textfile != "" {
			return fmt.Errorf("%w: %s requires the prometheus metrics driver", ErrInvalidConfig, KeyMetricsTextfile)
		}
	case "prometheus":
	default:
		return fmt.Errorf("%w: unknown metrics driver %q", ErrInvalidConfig, c.Metrics.Driver)
	}
	if c.Ingest.Concurrency < 1 {
		return fmt.Errorf("%w: ingest concurrency must be at least 1", ErrInvalidConfig)
	}
	return nil
}
