package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gravitytiming/core/internal/ir"
)

// cmdContext returns cmd's context, falling back to Background if cobra
// hasn't attached one (e.g. when invoked outside Execute/ExecuteContext).
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	Database    string
	EventID     int64
	ChipID      int64
	ControlCode int
	Time        string
	Source      string
	UpstreamID  int64
}

// NewIngestCommand creates the "ingest" command, a one-shot manual
// punch entry point mirroring spec §6's ingest boundary
// (`ingest_punch(event_id, chip_id, control_code, punch_time, source,
// upstream_id?)`).
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a single punch",
		Long: `Submit one punch through the live pipeline: admission control,
duplicate detection, chip/control resolution, and stage-run assembly.

Example:
  gravitytiming ingest --db ./race.db --event 1 --chip 500123 --control 11 \
    --time "2026-06-01 10:00:00" --source manual`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().Int64Var(&opts.EventID, "event", 0, "event id (required)")
	cmd.Flags().Int64Var(&opts.ChipID, "chip", 0, "chip id (required)")
	cmd.Flags().IntVar(&opts.ControlCode, "control", 0, "control code (required)")
	cmd.Flags().StringVar(&opts.Time, "time", "", "punch time, \"YYYY-MM-DD HH:MM:SS\" UTC (required)")
	cmd.Flags().StringVar(&opts.Source, "source", string(ir.SourceManual), "punch source: usb|sirap|roc|manual")
	cmd.Flags().Int64Var(&opts.UpstreamID, "upstream-id", 0, "upstream id for dedup against batch re-import (optional)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("event")
	_ = cmd.MarkFlagRequired("chip")
	_ = cmd.MarkFlagRequired("control")
	_ = cmd.MarkFlagRequired("time")

	return cmd
}

func runIngest(opts *IngestOptions, cmd *cobra.Command) error {
	source := ir.PunchSource(opts.Source)
	switch source {
	case ir.SourceUSB, ir.SourceSIRAP, ir.SourceROC, ir.SourceManual:
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid source %q", opts.Source))
	}

	punchTime, err := ir.ParseTimestamp(opts.Time)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --time", err)
	}

	st, eng, err := openEngine(opts.Database, opts.Verbose)
	if err != nil {
		return err
	}
	defer st.Close()

	var upstreamID *int64
	if opts.UpstreamID != 0 {
		upstreamID = &opts.UpstreamID
	}

	result, err := eng.IngestPunch(cmdContext(cmd), opts.EventID, opts.ChipID, opts.ControlCode, punchTime, source, upstreamID)
	if err != nil {
		return WrapExitError(ExitFailure, "ingest failed", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return formatter.Success(result)
}
