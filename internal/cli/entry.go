package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gravitytiming/core/internal/ir"
)

// EntryOptions holds flags for the "entry" command family.
type EntryOptions struct {
	*RootOptions
	Database string
	EventID  int64
	Bib      int
}

// NewEntryCommand creates the "entry" command, covering operations on
// a single competitor's entry — currently just marking its terminal
// status (spec §3/§9).
func NewEntryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EntryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "entry",
		Short: "Manage a competitor's entry",
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.PersistentFlags().Int64Var(&opts.EventID, "event", 0, "event id (required)")
	cmd.PersistentFlags().IntVar(&opts.Bib, "bib", 0, "competitor bib number (required)")
	_ = cmd.MarkPersistentFlagRequired("db")
	_ = cmd.MarkPersistentFlagRequired("event")
	_ = cmd.MarkPersistentFlagRequired("bib")

	cmd.AddCommand(newEntrySetStatusCommand(opts))
	return cmd
}

func newEntrySetStatusCommand(opts *EntryOptions) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:           "set-status",
		Short:         "Set an entry's terminal status (dns, dnf, dsq, or registered)",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEntrySetStatus(opts, cmd, status)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "registered|dns|dnf|dsq (required)")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func runEntrySetStatus(opts *EntryOptions, cmd *cobra.Command, status string) error {
	entryStatus, err := parseEntryStatus(status)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --status", err)
	}

	st, eng, err := openEngine(opts.Database, opts.Verbose)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmdContext(cmd)
	entry, found, err := st.ReadEntryByBib(ctx, opts.EventID, opts.Bib)
	if err != nil {
		return WrapExitError(ExitCommandError, "read entry failed", err)
	}
	if !found {
		return NewExitError(ExitCommandError, fmt.Sprintf("no entry with bib %d in event %d", opts.Bib, opts.EventID))
	}

	if err := eng.SetEntryStatus(ctx, opts.EventID, entry.ID, entryStatus); err != nil {
		return WrapExitError(ExitFailure, "set entry status failed", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return formatter.Success(struct {
		Bib    int    `json:"bib"`
		Status string `json:"status"`
	}{Bib: opts.Bib, Status: string(entryStatus)})
}

func parseEntryStatus(s string) (ir.EntryStatus, error) {
	switch ir.EntryStatus(s) {
	case ir.EntryRegistered, ir.EntryDNS, ir.EntryDNF, ir.EntryDSQ:
		return ir.EntryStatus(s), nil
	default:
		return "", fmt.Errorf("unknown status %q: must be registered, dns, dnf, or dsq", s)
	}
}
