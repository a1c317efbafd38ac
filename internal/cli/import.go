package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/gravitytiming/core/internal/engine"
)

// ImportOptions holds flags shared by the import subcommands.
type ImportOptions struct {
	*RootOptions
	Database string
	EventID  int64
	File     string
}

// NewImportCommand creates the "import" command group: startlist,
// chipmapping, and punches, mirroring spec §6's CSV formats.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import CSV data into an event",
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.PersistentFlags().Int64Var(&opts.EventID, "event", 0, "event id (required)")
	cmd.PersistentFlags().StringVar(&opts.File, "file", "", "path to the CSV file (required)")
	_ = cmd.MarkPersistentFlagRequired("db")
	_ = cmd.MarkPersistentFlagRequired("event")
	_ = cmd.MarkPersistentFlagRequired("file")

	cmd.AddCommand(newImportStartlistCommand(opts))
	cmd.AddCommand(newImportChipMappingCommand(opts))
	cmd.AddCommand(newImportPunchesCommand(opts))
	return cmd
}

func newImportStartlistCommand(opts *ImportOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "startlist",
		Short:         "Import a startlist CSV (Bib;Förnamn;Efternamn;Klubb;Klass)",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withImportFile(opts, cmd, func(eng *engine.Engine, f *os.File) (any, error) {
				imported, warnings, err := eng.ImportStartlist(cmdContext(cmd), opts.EventID, f)
				return importSummary{Imported: imported, Warnings: warnings}, err
			})
		},
	}
}

func newImportChipMappingCommand(opts *ImportOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "chipmapping",
		Short:         "Import a chip-mapping CSV (BIB;SIAC1;SIAC2, SIAC2 optional)",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withImportFile(opts, cmd, func(eng *engine.Engine, f *os.File) (any, error) {
				imported, warnings, err := eng.ImportChipMapping(cmdContext(cmd), opts.EventID, f)
				return importSummary{Imported: imported, Warnings: warnings}, err
			})
		},
	}
}

func newImportPunchesCommand(opts *ImportOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "punches",
		Short:         "Replay a ROC-shaped punch export through the live ingest path",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withImportFile(opts, cmd, func(eng *engine.Engine, f *os.File) (any, error) {
				total, imported, warnings, err := eng.ImportPunches(cmdContext(cmd), opts.EventID, f)
				return punchImportSummary{Total: total, Imported: imported, Warnings: warnings}, err
			})
		},
	}
}

type importSummary struct {
	Imported int      `json:"imported"`
	Warnings []string `json:"warnings,omitempty"`
}

type punchImportSummary struct {
	Total    int      `json:"total"`
	Imported int      `json:"imported"`
	Warnings []string `json:"warnings,omitempty"`
}

func withImportFile(opts *ImportOptions, cmd *cobra.Command, fn func(*engine.Engine, *os.File) (any, error)) error {
	f, err := os.Open(opts.File)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open file", err)
	}
	defer f.Close()

	st, eng, err := openEngine(opts.Database, opts.Verbose)
	if err != nil {
		return err
	}
	defer st.Close()

	result, err := fn(eng, f)
	if err != nil {
		return WrapExitError(ExitFailure, "import failed", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return formatter.Success(result)
}
