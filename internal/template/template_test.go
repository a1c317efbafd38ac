package template

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitytiming/core/internal/ir"
	"github.com/gravitytiming/core/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestNamesListsBuiltinsInPreferredOrder(t *testing.T) {
	names := Names()
	require.NotEmpty(t, names)
	assert.Equal(t, "Enduro - Tävling", names[0])
}

func TestBuiltinReturnsIndependentCopies(t *testing.T) {
	a, ok := Builtin("Downhill - Kval/Final")
	require.True(t, ok)
	b, ok := Builtin("Downhill - Kval/Final")
	require.True(t, ok)

	a.Controls[0].Name = "mutated"
	assert.NotEqual(t, a.Controls[0].Name, b.Controls[0].Name, "Builtin must deep-copy, not share slices across callers")
}

func TestBuiltinUnknownNameNotFound(t *testing.T) {
	_, ok := Builtin("does-not-exist")
	assert.False(t, ok)
}

func TestApplyDownhillTemplateCreatesStructure(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	eventID, err := st.CreateEvent(ctx, ir.Event{Name: "E", Date: "2026-06-01", Format: ir.FormatEnduro})
	require.NoError(t, err)

	tmpl, ok := Builtin("Downhill - Kval/Final")
	require.True(t, ok)

	warnings, err := Apply(ctx, st, eventID, tmpl)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	event, err := st.ReadEvent(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, ir.FormatDownhill, event.Format)

	stages, err := st.ReadStages(ctx, eventID)
	require.NoError(t, err)
	assert.NotEmpty(t, stages)

	classes, err := st.ReadAllClasses(ctx, eventID)
	require.NoError(t, err)
	assert.NotEmpty(t, classes)
}

func TestApplyWarnsOnDanglingStageControlReference(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	eventID, err := st.CreateEvent(ctx, ir.Event{Name: "E", Date: "2026-06-01", Format: ir.FormatEnduro})
	require.NoError(t, err)

	tmpl := Template{
		Format: "enduro", StageOrder: "fixed", TimePrecision: "seconds",
		Controls: []ControlSpec{{Code: 1, Name: "Start", Type: "start"}},
		Stages: []StageSpec{
			{StageNumber: 1, Name: "SS1", StartControlCode: 1, FinishControlCode: 99, IsTimed: true, RunsToCount: 1},
		},
	}

	warnings, err := Apply(ctx, st, eventID, tmpl)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "finish control code 99")

	stages, err := st.ReadStages(ctx, eventID)
	require.NoError(t, err)
	assert.Empty(t, stages, "a stage with an unresolvable control reference is skipped, not created")
}

func TestApplyClearsPreviousStructureBeforeReimporting(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	eventID, err := st.CreateEvent(ctx, ir.Event{Name: "E", Date: "2026-06-01", Format: ir.FormatEnduro})
	require.NoError(t, err)

	first, ok := Builtin("Downhill - Kval/Final")
	require.True(t, ok)
	_, err = Apply(ctx, st, eventID, first)
	require.NoError(t, err)

	second, ok := Builtin("XCO")
	require.True(t, ok)
	_, err = Apply(ctx, st, eventID, second)
	require.NoError(t, err)

	event, err := st.ReadEvent(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, ir.Format(second.Format), event.Format, "the second apply's format must win, not be merged with the first")
}
