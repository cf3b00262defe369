package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"dbtlineage/internal/blob"
	"dbtlineage/internal/config"
	"dbtlineage/internal/ingest"
)

const (
	formatCSV  = "csv"
	formatJSON = "json"
)

func newIngestCmd(a *app) *cobra.Command {
	var (
		format  string
		archive bool
	)
	cmd := &cobra.Command{
		Use:   "ingest FILE",
		Short: "Match a batch of result rows and record them as tests",
		Long: "Reads rows from FILE (.csv or .json, or - for stdin with --format),\n" +
			"matches each row to a design or build and commits the matched rows\n" +
			"as tests in a single transaction. The batch report is printed as JSON.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := readRows(cmd.InOrStdin(), args[0], format)
			if err != nil {
				return err
			}

			opts := []ingest.Option{
				ingest.WithConcurrency(a.cfg.Ingest.Concurrency),
				ingest.WithLogger(a.log),
			}
			if a.metrics != nil {
				opts = append(opts, ingest.WithMetricsRecorder(a.metrics))
			}
			if a.tracer != nil {
				opts = append(opts, ingest.WithTracer(a.tracer))
			}
			if a.cfg.Ingest.CreateMissing {
				opts = append(opts, ingest.WithCreateMissing(a.svc))
			}
			report, ingestErr := ingest.New(a.svc.Store(), opts...).Ingest(cmd.Context(), rows)

			if archive && report.BatchID != "" {
				store, err := a.openBlob(cmd)
				if err != nil {
					return err
				}
				info, err := ingest.Archive(cmd.Context(), store, report)
				if err != nil {
					return err
				}
				a.log.Info("report archived", "batch", report.BatchID, "key", info.Key, "driver", store.Driver())
			}
			if report.BatchID != "" {
				if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			}
			return ingestErr
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&format, "format", "", "input format: csv|json (default: from the file extension)")
	flags.BoolVar(&archive, "archive", false, "archive the batch report to the configured blob store")
	flags.Int("concurrency", 0, "rows matched in parallel")
	flags.Bool("create-missing", false, "create a root design for unmatched rows carrying an alias and a sequence")
	_ = a.v.BindPFlag(config.KeyConcurrency, flags.Lookup("concurrency"))
	_ = a.v.BindPFlag(config.KeyCreateMissing, flags.Lookup("create-missing"))
	return storeCommand(cmd)
}

func newReportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Inspect archived batch reports",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List archived batch reports",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				store, err := a.openBlob(cmd)
				if err != nil {
					return err
				}
				reports, err := ingest.ListReports(cmd.Context(), store)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), reports)
			},
		},
		&cobra.Command{
			Use:   "show BATCH_ID",
			Short: "Print an archived batch report",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := a.openBlob(cmd)
				if err != nil {
					return err
				}
				report, err := ingest.LoadReport(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), report)
			},
		},
		&cobra.Command{
			Use:   "info BATCH_ID",
			Short: "Print the blob metadata of an archived report",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := a.openBlob(cmd)
				if err != nil {
					return err
				}
				info, err := ingest.ReportInfo(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), info)
			},
		},
		&cobra.Command{
			Use:   "delete BATCH_ID",
			Short: "Remove an archived report so the batch can be archived again",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := a.openBlob(cmd)
				if err != nil {
					return err
				}
				removed, err := ingest.DeleteReport(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("report %s: %w", args[0], blob.ErrNotFound)
				}
				a.log.Info("report deleted", "batch", args[0])
				return nil
			},
		},
	)
	return cmd
}

func (a *app) openBlob(cmd *cobra.Command) (blob.Store, error) {
	store, err := blob.Open(cmd.Context(), a.cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	return store, nil
}

func readRows(stdin io.Reader, path, format string) ([]ingest.Row, error) {
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	switch format {
	case formatCSV:
		return ingest.DecodeCSV(r)
	case formatJSON:
		return ingest.DecodeJSON(r)
	default:
		return nil, fmt.Errorf("unsupported input format %q (use --format csv|json)", format)
	}
}
