package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/gravitytiming/core/internal/csvimport"
	"github.com/gravitytiming/core/internal/ir"
	"github.com/gravitytiming/core/internal/store"
)

// ExportOptions holds flags shared by the export subcommands.
type ExportOptions struct {
	*RootOptions
	Database  string
	EventID   int64
	File      string
	StageID   int64
	Attempt   int
	Precision string
}

// NewExportCommand creates the "export" command group: stage-results
// and overall-results CSV exports (spec §6).
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export CSV results from an event",
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.PersistentFlags().Int64Var(&opts.EventID, "event", 0, "event id (required)")
	cmd.PersistentFlags().StringVar(&opts.File, "out", "", "path to write the CSV file (required)")
	cmd.PersistentFlags().StringVar(&opts.Precision, "precision", "", "override the event's time precision: seconds|tenths|hundredths")
	_ = cmd.MarkPersistentFlagRequired("db")
	_ = cmd.MarkPersistentFlagRequired("event")
	_ = cmd.MarkPersistentFlagRequired("out")

	cmd.AddCommand(newExportStageCommand(opts))
	cmd.AddCommand(newExportOverallCommand(opts))
	return cmd
}

func newExportStageCommand(opts *ExportOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stage",
		Short:         "Export one stage's results as Pos;BIB;Namn;Klubb;Klass;Åk;Tid;Diff;Status",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd, func(ctx context.Context, st *store.Store, precision ir.TimePrecision, w *os.File) (int, error) {
				return csvimport.ExportStageResults(ctx, st, opts.EventID, opts.StageID, w, precision, opts.Attempt)
			})
		},
	}
	cmd.Flags().Int64Var(&opts.StageID, "stage", 0, "stage id (required)")
	cmd.Flags().IntVar(&opts.Attempt, "attempt", 0, "export only this attempt number (0 = all attempts)")
	_ = cmd.MarkFlagRequired("stage")
	return cmd
}

func newExportOverallCommand(opts *ExportOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "overall",
		Short:         "Export overall results across all classes",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd, func(ctx context.Context, st *store.Store, precision ir.TimePrecision, w *os.File) (int, error) {
				return csvimport.ExportOverallResults(ctx, st, opts.EventID, w, precision)
			})
		},
	}
}

type exportSummary struct {
	Rows int    `json:"rows"`
	File string `json:"file"`
}

func runExport(opts *ExportOptions, cmd *cobra.Command, fn func(context.Context, *store.Store, ir.TimePrecision, *os.File) (int, error)) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmdContext(cmd)

	precision := ir.TimePrecision(opts.Precision)
	if precision == "" {
		event, err := st.ReadEvent(ctx, opts.EventID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read event", err)
		}
		precision = event.TimePrecision
	}

	f, err := os.Create(opts.File)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create output file", err)
	}
	defer f.Close()

	rows, err := fn(ctx, st, precision, f)
	if err != nil {
		return WrapExitError(ExitFailure, "export failed", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return formatter.Success(exportSummary{Rows: rows, File: opts.File})
}
