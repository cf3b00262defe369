package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "dbtlineage.db", cfg.Storage.SQLitePath)
	assert.Equal(t, "fs", cfg.Blob.Driver)
	assert.Equal(t, "local", cfg.Lock.Driver)
	assert.Equal(t, 1, cfg.Ingest.Concurrency)
	assert.False(t, cfg.Ingest.CreateMissing)
	assert.Equal(t, "none", cfg.Metrics.Driver)
	assert.Empty(t, cfg.Metrics.Textfile)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DBTLINEAGE_STORAGE_DRIVER", "POSTGRES")
	t.Setenv("DBTLINEAGE_POSTGRES_DSN", "postgres://db/lineage")
	t.Setenv("DBTLINEAGE_LOCK_DRIVER", "redis")
	t.Setenv("DBTLINEAGE_REDIS_ADDR", "cache:6379")
	t.Setenv("DBTLINEAGE_INGEST_CONCURRENCY", "4")
	t.Setenv("DBTLINEAGE_INGEST_CREATE_MISSING", "true")
	t.Setenv("DBTLINEAGE_METRICS_DRIVER", "Prometheus")
	t.Setenv("DBTLINEAGE_METRICS_TEXTFILE", "/var/lib/node_exporter/dbtlineage.prom")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "postgres://db/lineage", cfg.Storage.PostgresDSN)
	assert.Equal(t, "cache:6379", cfg.Lock.RedisAddr)
	assert.Equal(t, 4, cfg.Ingest.Concurrency)
	assert.True(t, cfg.Ingest.CreateMissing)
	assert.Equal(t, "prometheus", cfg.Metrics.Driver)
	assert.Equal(t, "/var/lib/node_exporter/dbtlineage.prom", cfg.Metrics.Textfile)
}

func TestLoadFileThenEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  driver: memory
blob:
  driver: s3
  s3:
    bucket: reports-bucket
    use_path_style: true
log:
  mode: prod
`), 0o600))
	t.Setenv("DBTLINEAGE_LOG_MODE", "dev")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "reports-bucket", cfg.Blob.S3.Bucket)
	assert.True(t, cfg.Blob.S3.UsePathStyle)
	assert.Equal(t, "dev", cfg.Log.Mode)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{
		Storage: Storage{Driver: "memory"},
		Blob:    Blob{Driver: "memory"},
		Lock:    Lock{Driver: "local"},
		Ingest:  Ingest{Concurrency: 1},
	}
	require.NoError(t, valid.Validate())

	cases := map[string]func(*Config){
		"unknown storage":  func(c *Config) { c.Storage.Driver = "mongo" },
		"postgres no dsn":  func(c *Config) { c.Storage.Driver = "postgres" },
		"s3 no bucket":     func(c *Config) { c.Blob.Driver = "s3" },
		"unknown blob":     func(c *Config) { c.Blob.Driver = "gcs" },
		"redis no address": func(c *Config) { c.Lock.Driver = "redis" },
		"unknown lock":     func(c *Config) { c.Lock.Driver = "etcd" },
		"zero concurrency": func(c *Config) { c.Ingest.Concurrency = 0 },
		"unknown metrics":  func(c *Config) { c.Metrics.Driver = "statsd" },
		"textfile no prom": func(c *Config) { c.Metrics = Metrics{Driver: "expvar", Textfile: "out.prom"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
