package recompute

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitytiming/core/internal/aggregator"
	"github.com/gravitytiming/core/internal/ingest"
	"github.com/gravitytiming/core/internal/ir"
	"github.com/gravitytiming/core/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func buildFixture(t *testing.T, st *store.Store) (eventID, entryID int64) {
	t.Helper()
	ctx := context.Background()

	eventID, err := st.CreateEvent(ctx, ir.Event{
		Name: "E", Date: "2026-06-01", Format: ir.FormatEnduro,
		StageOrder: ir.StageOrderFixed, TimePrecision: ir.PrecisionSeconds,
	})
	require.NoError(t, err)

	startID, err := st.CreateControl(ctx, ir.Control{EventID: eventID, Code: 1, Name: "Start", Type: ir.ControlStart})
	require.NoError(t, err)
	finishID, err := st.CreateControl(ctx, ir.Control{EventID: eventID, Code: 2, Name: "Finish", Type: ir.ControlFinish})
	require.NoError(t, err)

	_, err = st.CreateStage(ctx, ir.Stage{
		EventID: eventID, StageNumber: 1, Name: "SS1",
		StartControlID: startID, FinishControlID: finishID, IsTimed: true, RunsToCount: 1,
	})
	require.NoError(t, err)

	courseID, err := st.CreateCourse(ctx, ir.Course{EventID: eventID, Name: "C", Laps: 1})
	require.NoError(t, err)
	classID, err := st.CreateClass(ctx, ir.Class{EventID: eventID, CourseID: courseID, Name: "Elite"})
	require.NoError(t, err)

	entryID, err = st.UpsertEntry(ctx, ir.Entry{EventID: eventID, Bib: 1, FirstName: "A", ClassID: classID, Status: ir.EntryRegistered})
	require.NoError(t, err)
	require.NoError(t, st.UpsertChipMapping(ctx, ir.ChipMapping{EventID: eventID, Bib: 1, ChipID: 1001, IsPrimary: true}))

	return eventID, entryID
}

func TestRecomputeAllIsIdempotentAfterFreshIngest(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	eventID, _ := buildFixture(t, st)

	start, err := ir.ParseTimestamp("2026-06-01 10:00:00")
	require.NoError(t, err)
	finish, err := ir.ParseTimestamp("2026-06-01 10:00:30")
	require.NoError(t, err)

	_, err = ingest.Ingest(ctx, st, testLogger(), eventID, 1001, 1, start, ir.SourceManual, nil)
	require.NoError(t, err)
	_, err = ingest.Ingest(ctx, st, testLogger(), eventID, 1001, 2, finish, ir.SourceManual, nil)
	require.NoError(t, err)
	require.NoError(t, aggregator.Recalculate(ctx, st, eventID))

	diffs, err := RecomputeAll(ctx, st, testLogger(), eventID)
	require.NoError(t, err)
	assert.Empty(t, diffs, "replaying the same punches through the same pipeline must reproduce identical results")
}

func TestRecomputeAllRepairsCorruptedOverallResult(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	eventID, entryID := buildFixture(t, st)

	start, err := ir.ParseTimestamp("2026-06-01 10:00:00")
	require.NoError(t, err)
	finish, err := ir.ParseTimestamp("2026-06-01 10:00:30")
	require.NoError(t, err)
	_, err = ingest.Ingest(ctx, st, testLogger(), eventID, 1001, 1, start, ir.SourceManual, nil)
	require.NoError(t, err)
	_, err = ingest.Ingest(ctx, st, testLogger(), eventID, 1001, 2, finish, ir.SourceManual, nil)
	require.NoError(t, err)
	require.NoError(t, aggregator.Recalculate(ctx, st, eventID))

	// Simulate a stale overall result (e.g. from a crash mid-write).
	stale := 999.0
	require.NoError(t, st.WriteOverallResult(ctx, ir.OverallResult{
		EventID: eventID, EntryID: entryID, TotalSeconds: &stale, Status: ir.RunOK,
	}))

	diffs, err := RecomputeAll(ctx, st, testLogger(), eventID)
	require.NoError(t, err)
	assert.NotEmpty(t, diffs, "recompute must report the overall total returning to 30s from the stale 999s")

	result, found, err := st.ReadOverallResult(ctx, eventID, entryID)
	require.NoError(t, err)
	require.True(t, found)
	require.NotNil(t, result.TotalSeconds)
	assert.Equal(t, 30.0, *result.TotalSeconds)
}
