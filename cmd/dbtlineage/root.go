package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dbtlineage/internal/config"
	"dbtlineage/internal/core"
	"dbtlineage/internal/infra/lock"
	"dbtlineage/internal/platform/logger"
)

// annotationStore marks commands that open the entity store.
const annotationStore = "dbtlineage/store"

// Metrics drivers that build a recorder. Any other accepted value disables metrics.
const (
	metricsExpvar     = "expvar"
	metricsPrometheus = "prometheus"
)

// app carries the resources resolved by PersistentPreRunE. close releases
// them and must run whether or not the command succeeded.
type app struct {
	configFile string
	v          *viper.Viper
	cfg        config.Config
	log        *logger.Logger
	svc        *core.Service
	closers    []io.Closer

	metrics  core.MetricsRecorder
	tracer   core.Tracer
	registry *prometheus.Registry
	expvar   *core.ExpvarMetricsRecorder
}

func newApp() *app {
	return &app{v: config.New()}
}

// run executes args against a fresh command tree and releases every resource
// opened along the way.
func run(args []string, stdout, stderr io.Writer) error {
	a := newApp()
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.Execute()
	return errors.Join(err, a.close())
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "dbtlineage",
		Short:         "Design/build/test lineage hashing and result matching",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default: ./dbtlineage.yaml)")
	flags.String("storage", "", "storage driver: memory|sqlite|postgres")
	flags.String("sqlite-path", "", "sqlite database file")
	flags.String("postgres-dsn", "", "postgres connection string")
	flags.String("lock", "", "lock driver for design creation: local|redis")
	flags.String("redis-addr", "", "redis address for the redis lock driver")
	flags.String("log-mode", "", "log mode: dev|prod")
	flags.String("metrics", "", "metrics driver: none|expvar|prometheus")
	flags.String("metrics-textfile", "", "write prometheus metrics to this file on exit")
	flags.String("trace-file", "", "append one JSON line per traced operation to this file")
	for key, name := range map[string]string{
		config.KeyStorageDriver:   "storage",
		config.KeySQLitePath:      "sqlite-path",
		config.KeyPostgresDSN:     "postgres-dsn",
		config.KeyLockDriver:      "lock",
		config.KeyRedisAddr:       "redis-addr",
		config.KeyLogMode:         "log-mode",
		config.KeyMetricsDriver:   "metrics",
		config.KeyMetricsTextfile: "metrics-textfile",
		config.KeyTraceFile:       "trace-file",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(name))
	}

	root.AddCommand(
		newVersionCmd(),
		newHashCmd(),
		newNormalizeCmd(),
		newDesignCmd(a),
		newBuildCmd(a),
		newMatchCmd(a),
		newIngestCmd(a),
		newReportCmd(a),
	)
	return root
}

// setup resolves configuration with flag > config file > env > default
// precedence, builds the logger and observability hooks and, for
// store-backed commands, the service.
func (a *app) setup(cmd *cobra.Command) error {
	if err := config.ReadFile(a.v, a.configFile); err != nil {
		return err
	}
	cfg, err := config.Decode(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.log = log

	if err := a.setupObservability(); err != nil {
		return err
	}

	if _, ok := cmd.Annotations[annotationStore]; !ok {
		return nil
	}

	store, err := core.OpenPersistentStore(cfg.Storage, core.NewDefaultRulesEngine())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	locker, err := core.OpenLocker(cmd.Context(), cfg.Lock)
	if err != nil {
		return fmt.Errorf("open locker: %w", err)
	}
	if c, ok := locker.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	a.svc = core.NewService(store, a.serviceOptions(locker)...)
	log.Debug("store opened", "driver", cfg.Storage.Driver, "lock", cfg.Lock.Driver)
	return nil
}

func (a *app) setupObservability() error {
	switch a.cfg.Metrics.Driver {
	case metricsPrometheus:
		reg := prometheus.NewRegistry()
		rec, err := core.NewPrometheusMetricsRecorder(reg)
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
		a.registry = reg
		a.metrics = rec
	case metricsExpvar:
		a.expvar = core.NewExpvarMetricsRecorder("")
		a.metrics = a.expvar
	}

	if path := a.cfg.Metrics.TraceFile; path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		a.closers = append(a.closers, f)
		a.tracer = core.NewJSONTracer(f)
	}
	return nil
}

func (a *app) serviceOptions(locker lock.KeyedLocker) []core.Option {
	opts := []core.Option{
		core.WithLogger(a.log),
		core.WithLocker(locker),
		core.WithAuditRecorder(core.NewLogAuditRecorder(a.log)),
	}
	if a.metrics != nil {
		opts = append(opts, core.WithMetricsRecorder(a.metrics))
	}
	if a.tracer != nil {
		opts = append(opts, core.WithTracer(a.tracer))
	}
	return opts
}

// close flushes metrics, then releases closers in reverse order. It is safe
// to call more than once.
func (a *app) close() error {
	var errs []error
	if a.registry != nil && a.cfg.Metrics.Textfile != "" {
		if err := prometheus.WriteToTextfile(a.cfg.Metrics.Textfile, a.registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics textfile: %w", err))
		}
	}
	a.registry = nil
	if a.expvar != nil && a.log != nil {
		a.log.Info("metrics", "snapshot", a.expvar.Snapshot())
	}
	a.expvar = nil
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	if a.log != nil {
		a.log.Sync()
	}
	return errors.Join(errs...)
}

func storeCommand(cmd *cobra.Command) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = make(map[string]string)
	}
	cmd.Annotations[annotationStore] = "true"
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
