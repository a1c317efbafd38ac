package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gravitytiming/core/internal/template"
)

// TemplateOptions holds flags for the template command group.
type TemplateOptions struct {
	*RootOptions
	Database string
	EventID  int64
	Name     string
	File     string
}

// NewTemplateCommand creates the "template" command group: listing
// builtin templates and applying one to an event (spec §6).
func NewTemplateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TemplateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "template",
		Short: "List and apply built-in event templates",
	}
	cmd.AddCommand(newTemplateListCommand(opts))
	cmd.AddCommand(newTemplateApplyCommand(opts))
	cmd.AddCommand(newTemplateLoadCommand(opts))
	return cmd
}

func newTemplateListCommand(opts *TemplateOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List built-in template names",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
			return formatter.Success(template.Names())
		},
	}
}

func newTemplateApplyCommand(opts *TemplateOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "apply",
		Short:         "Apply a built-in template to an event, replacing its structural entities",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTemplateApply(opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().Int64Var(&opts.EventID, "event", 0, "event id (required)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "template name, see 'template list' (required)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("event")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newTemplateLoadCommand(opts *TemplateOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "load",
		Short:         "Apply a custom YAML event-structure template (spec §6 shape) to an event",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTemplateLoad(opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().Int64Var(&opts.EventID, "event", 0, "event id (required)")
	cmd.Flags().StringVar(&opts.File, "file", "", "path to a YAML template document (required)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("event")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runTemplateLoad(opts *TemplateOptions, cmd *cobra.Command) error {
	f, err := os.Open(opts.File)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open template file", err)
	}
	defer f.Close()

	tmpl, err := template.LoadYAML(f)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to parse template file", err)
	}

	st, eng, err := openEngine(opts.Database, opts.Verbose)
	if err != nil {
		return err
	}
	defer st.Close()

	warnings, err := eng.ApplyTemplate(cmdContext(cmd), opts.EventID, tmpl)
	if err != nil {
		return WrapExitError(ExitFailure, "template apply failed", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return formatter.Success(struct {
		Warnings []string `json:"warnings,omitempty"`
	}{Warnings: warnings})
}

func runTemplateApply(opts *TemplateOptions, cmd *cobra.Command) error {
	tmpl, ok := template.Builtin(opts.Name)
	if !ok {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown template %q", opts.Name))
	}

	st, eng, err := openEngine(opts.Database, opts.Verbose)
	if err != nil {
		return err
	}
	defer st.Close()

	warnings, err := eng.ApplyTemplate(cmdContext(cmd), opts.EventID, tmpl)
	if err != nil {
		return WrapExitError(ExitFailure, "template apply failed", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return formatter.Success(struct {
		Warnings []string `json:"warnings,omitempty"`
	}{Warnings: warnings})
}
