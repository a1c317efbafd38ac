package cli

import (
	"github.com/spf13/cobra"

	"github.com/gravitytiming/core/internal/store"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	Database string
	EventID  int64
	Unsynced bool
}

// NewJournalCommand creates the "journal" command, an inspection tool
// over the append-only event journal (run_created, run_superseded and
// the other ir.JournalKind entries; spec §6) used
// to audit or debug what the pipeline has recorded for an event.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "journal",
		Short:         "Inspect an event's journal entries",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournal(opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().Int64Var(&opts.EventID, "event", 0, "event id (required)")
	cmd.Flags().BoolVar(&opts.Unsynced, "unsynced", false, "only show entries not yet marked synced")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("event")

	return cmd
}

func runJournal(opts *JournalOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmdContext(cmd)
	var entries interface{}
	if opts.Unsynced {
		rows, err := st.ReadUnsyncedJournal(ctx, opts.EventID)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read journal", err)
		}
		entries = rows
	} else {
		rows, err := st.ReadAllJournal(ctx, opts.EventID)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read journal", err)
		}
		entries = rows
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return formatter.Success(entries)
}
