package cli

import (
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gravitytiming/core/internal/store"
)

// BackupOptions holds flags for the backup command group.
type BackupOptions struct {
	*RootOptions
	Database string
	Dir      string
	Label    string
	From     string
}

// NewBackupCommand creates the "backup" command group: a consistent
// online snapshot via VACUUM INTO, and a restore that overwrites the
// live database from a prior snapshot after taking a pre_restore
// snapshot of its own (spec §6).
func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BackupOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Take or restore consistent database snapshots",
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	cmd.AddCommand(newBackupCreateCommand(opts))
	cmd.AddCommand(newBackupRestoreCommand(opts))
	return cmd
}

func newBackupCreateCommand(opts *BackupOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "create",
		Short:         "Write a consistent snapshot into a sibling directory",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackupCreate(opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Dir, "dir", "", "destination directory for the snapshot (required)")
	cmd.Flags().StringVar(&opts.Label, "label", "auto", "label embedded in the snapshot filename")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

func newBackupRestoreCommand(opts *BackupOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "restore",
		Short:         "Restore the database from a prior snapshot, after snapshotting the current state",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackupRestore(opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.From, "from", "", "path to the snapshot file to restore from (required)")
	cmd.Flags().StringVar(&opts.Dir, "dir", "", "destination directory for the pre_restore snapshot (required)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

type backupResult struct {
	Path string `json:"path"`
}

func runBackupCreate(opts *BackupOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	path, err := st.Backup(cmdContext(cmd), opts.Dir, opts.Label, time.Now().UTC())
	if err != nil {
		return WrapExitError(ExitFailure, "backup failed", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return formatter.Success(backupResult{Path: path})
}

func runBackupRestore(opts *BackupOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}

	preRestorePath, err := st.Backup(cmdContext(cmd), opts.Dir, "pre_restore", time.Now().UTC())
	if err != nil {
		st.Close()
		return WrapExitError(ExitFailure, "pre_restore snapshot failed", err)
	}
	if err := st.Close(); err != nil {
		return WrapExitError(ExitFailure, "failed to close database before restore", err)
	}

	if err := copyFile(opts.From, opts.Database); err != nil {
		return WrapExitError(ExitFailure, "restore failed", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return formatter.Success(struct {
		Restored       string `json:"restored_from"`
		PreRestorePath string `json:"pre_restore_snapshot"`
	}{Restored: opts.From, PreRestorePath: preRestorePath})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
