package scenario

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitytiming/core/internal/engine"
	"github.com/gravitytiming/core/internal/observer"
	"github.com/gravitytiming/core/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBoundaryScenarios(t *testing.T) {
	for _, s := range Boundary {
		s := s
		t.Run(s.Name, func(t *testing.T) {
			st, err := store.Open(":memory:")
			require.NoError(t, err)
			defer st.Close()

			eng := engine.New(st, testLogger(), observer.NewMemorySink())

			result, err := s.Run(context.Background(), st, eng)
			require.NoError(t, err)
			assert.True(t, result.Pass, "scenario %s failed: %v", s.Name, result.Errors)
		})
	}
}

func TestByName(t *testing.T) {
	s, ok := ByName("cross-chip")
	require.True(t, ok)
	assert.Equal(t, "cross-chip", s.Name)

	_, ok = ByName("does-not-exist")
	assert.False(t, ok)
}
