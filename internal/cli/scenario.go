package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gravitytiming/core/internal/engine"
	"github.com/gravitytiming/core/internal/observer"
	"github.com/gravitytiming/core/internal/scenario"
	"github.com/gravitytiming/core/internal/store"
)

// ScenarioOptions holds flags for the scenario command.
type ScenarioOptions struct {
	*RootOptions
}

// NewScenarioCommand creates the "scenario" command, which runs spec
// §8's literal boundary scenarios against a fresh in-memory
// repository — a built-in conformance smoke test that needs no
// database file of its own.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScenarioOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Run built-in boundary scenarios from the specification",
	}
	cmd.AddCommand(newScenarioListCommand(opts))
	cmd.AddCommand(newScenarioRunCommand(opts))
	return cmd
}

func newScenarioListCommand(opts *ScenarioOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List available boundary scenarios",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			names := make([]string, 0, len(scenario.Boundary))
			for _, s := range scenario.Boundary {
				names = append(names, fmt.Sprintf("%s: %s", s.Name, s.Description))
			}
			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
			return formatter.Success(names)
		},
	}
}

func newScenarioRunCommand(opts *ScenarioOptions) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:           "run",
		Short:         "Run one boundary scenario (--name), or every one when --name is omitted",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, cmd, name)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "scenario name, see 'scenario list' (omit to run all)")
	return cmd
}

type scenarioOutcome struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

func runScenario(opts *ScenarioOptions, cmd *cobra.Command, name string) error {
	scenarios := scenario.Boundary
	if name != "" {
		s, ok := scenario.ByName(name)
		if !ok {
			return NewExitError(ExitCommandError, fmt.Sprintf("unknown scenario %q", name))
		}
		scenarios = []scenario.Scenario{s}
	}

	outcomes := make([]scenarioOutcome, 0, len(scenarios))
	anyFailed := false
	for _, s := range scenarios {
		st, err := store.Open(":memory:")
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open in-memory database", err)
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		eng := engine.New(st, logger, observer.NewMemorySink())

		result, err := s.Run(cmdContext(cmd), st, eng)
		st.Close()
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("scenario %q errored", s.Name), err)
		}

		outcomes = append(outcomes, scenarioOutcome{Name: s.Name, Pass: result.Pass, Errors: result.Errors})
		if !result.Pass {
			anyFailed = true
		}
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if err := formatter.Success(outcomes); err != nil {
		return err
	}
	if anyFailed {
		return NewExitError(ExitFailure, "one or more scenarios failed")
	}
	return nil
}
