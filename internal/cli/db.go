package cli

import (
	"log/slog"
	"os"

	"github.com/gravitytiming/core/internal/engine"
	"github.com/gravitytiming/core/internal/observer"
	"github.com/gravitytiming/core/internal/store"
)

// openEngine opens the repository at path and wires it into an Engine
// publishing to an in-process MemorySink, the shared bootstrap every
// mutating subcommand uses.
func openEngine(path string, verbose bool) (*store.Store, *engine.Engine, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	eng := engine.New(st, logger, observer.NewMemorySink())
	return st, eng, nil
}
