package cli

import (
	"github.com/spf13/cobra"
)

// RecomputeOptions holds flags for the recompute command.
type RecomputeOptions struct {
	*RootOptions
	Database string
	EventID  int64
}

// NewRecomputeCommand creates the "recompute" command, a manual
// trigger for the bulk-recompute fixed point (spec §4.5) — useful
// after editing controls/stages or suspecting drift between stored
// and derived state.
func NewRecomputeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecomputeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "recompute",
		Short:         "Recompute an event's stage runs and overall results from scratch",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecompute(opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().Int64Var(&opts.EventID, "event", 0, "event id (required)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("event")
	return cmd
}

func runRecompute(opts *RecomputeOptions, cmd *cobra.Command) error {
	st, eng, err := openEngine(opts.Database, opts.Verbose)
	if err != nil {
		return err
	}
	defer st.Close()

	diffs, err := eng.Recompute(cmdContext(cmd), opts.EventID)
	if err != nil {
		return WrapExitError(ExitFailure, "recompute failed", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return formatter.Success(struct {
		Diffs []string `json:"diffs,omitempty"`
	}{Diffs: diffs})
}
