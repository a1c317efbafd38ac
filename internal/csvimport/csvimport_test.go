package csvimport

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitytiming/core/internal/aggregator"
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

func buildEvent(t *testing.T, st *store.Store) int64 {
	t.Helper()
	eventID, err := st.CreateEvent(context.Background(), ir.Event{
		Name: "E", Date: "2026-06-01", Format: ir.FormatEnduro,
		StageOrder: ir.StageOrderFixed, TimePrecision: ir.PrecisionSeconds,
	})
	require.NoError(t, err)
	return eventID
}

func TestImportStartlistCreatesDefaultCourseAndClasses(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	eventID := buildEvent(t, st)

	csv := "BIB;FirstName;LastName;Club;Class\n1;Alice;Anderson;TeamA;Elite\n2;Bob;Baker;TeamB;Amateur\n"
	count, warnings, err := ImportStartlist(ctx, st, testLogger(), eventID, strings.NewReader(csv))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 2, count)

	entry, found, err := st.ReadEntryByBib(ctx, eventID, 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Alice", entry.FirstName)

	classes, err := st.ReadAllClasses(ctx, eventID)
	require.NoError(t, err)
	assert.Len(t, classes, 2)
}

func TestImportStartlistWarnsOnShortRowButContinues(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	eventID := buildEvent(t, st)

	csv := "BIB;FirstName;LastName;Club;Class\n1;Alice;Anderson;TeamA\n2;Bob;Baker;TeamB;Amateur\n"
	count, warnings, err := ImportStartlist(ctx, st, testLogger(), eventID, strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "row 2")
}

func TestImportChipMappingHandlesSecondaryChip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	eventID := buildEvent(t, st)

	csv := "BIB;SIAC1;SIAC2\n1;1001;1002\n2;2001;\n"
	count, warnings, err := ImportChipMapping(ctx, st, testLogger(), eventID, strings.NewReader(csv))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 3, count, "bib 1 contributes two chips, bib 2 contributes one")

	entry, found, err := st.ReadEntryByChip(ctx, eventID, 1002)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, entry.Bib)
}

func TestImportPunchesIsIdempotentAcrossUpstreamID(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	eventID := buildEvent(t, st)

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
	_, err = st.UpsertEntry(ctx, ir.Entry{EventID: eventID, Bib: 1, FirstName: "A", ClassID: classID, Status: ir.EntryRegistered})
	require.NoError(t, err)
	require.NoError(t, st.UpsertChipMapping(ctx, ir.ChipMapping{EventID: eventID, Bib: 1, ChipID: 1001, IsPrimary: true}))

	punches := "100;1;1001;2026-06-01 10:00:00\n101;2;1001;2026-06-01 10:00:30\n"
	total, imported, warnings, err := ImportPunches(ctx, st, testLogger(), eventID, strings.NewReader(punches))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 2, total)
	assert.Equal(t, 2, imported)

	// Re-importing the same file (e.g. a re-run after a partial download)
	// must not duplicate punches already seen under the same upstream id.
	total2, imported2, warnings2, err := ImportPunches(ctx, st, testLogger(), eventID, strings.NewReader(punches))
	require.NoError(t, err)
	assert.Empty(t, warnings2)
	assert.Equal(t, 2, total2)
	assert.Equal(t, 0, imported2, "both rows already exist under upstream id 100/101")
}

func TestExportStageResultsOrdersByElapsedAndComputesDiff(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	eventID := buildEvent(t, st)

	startID, err := st.CreateControl(ctx, ir.Control{EventID: eventID, Code: 1, Name: "Start", Type: ir.ControlStart})
	require.NoError(t, err)
	finishID, err := st.CreateControl(ctx, ir.Control{EventID: eventID, Code: 2, Name: "Finish", Type: ir.ControlFinish})
	require.NoError(t, err)
	stageID, err := st.CreateStage(ctx, ir.Stage{
		EventID: eventID, StageNumber: 1, Name: "SS1",
		StartControlID: startID, FinishControlID: finishID, IsTimed: true, RunsToCount: 1,
	})
	require.NoError(t, err)
	courseID, err := st.CreateCourse(ctx, ir.Course{EventID: eventID, Name: "C", Laps: 1})
	require.NoError(t, err)
	classID, err := st.CreateClass(ctx, ir.Class{EventID: eventID, CourseID: courseID, Name: "Elite"})
	require.NoError(t, err)

	entry1, err := st.UpsertEntry(ctx, ir.Entry{EventID: eventID, Bib: 1, FirstName: "A", LastName: "One", ClassID: classID, Status: ir.EntryRegistered})
	require.NoError(t, err)
	entry2, err := st.UpsertEntry(ctx, ir.Entry{EventID: eventID, Bib: 2, FirstName: "B", LastName: "Two", ClassID: classID, Status: ir.EntryRegistered})
	require.NoError(t, err)

	elapsed1, elapsed2 := 42.0, 40.0
	_, err = st.WriteStageRunAndJournal(ctx, store.StageRunWrite{Run: ir.StageRun{
		EventID: eventID, EntryID: entry1, StageID: stageID, Attempt: 1,
		ElapsedSeconds: &elapsed1, Status: ir.RunOK, RunState: ir.RunStateValid,
	}})
	require.NoError(t, err)
	_, err = st.WriteStageRunAndJournal(ctx, store.StageRunWrite{Run: ir.StageRun{
		EventID: eventID, EntryID: entry2, StageID: stageID, Attempt: 1,
		ElapsedSeconds: &elapsed2, Status: ir.RunOK, RunState: ir.RunStateValid,
	}})
	require.NoError(t, err)

	var buf bytes.Buffer
	rows, err := ExportStageResults(ctx, st, eventID, stageID, &buf, ir.PrecisionSeconds, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3) // header + 2 rows
	assert.Contains(t, lines[1], "Two", "the faster rider (40s) is exported first")
	assert.Contains(t, lines[2], "One")
}

func TestExportOverallResultsAfterRecalculate(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	eventID := buildEvent(t, st)

	startID, err := st.CreateControl(ctx, ir.Control{EventID: eventID, Code: 1, Name: "Start", Type: ir.ControlStart})
	require.NoError(t, err)
	finishID, err := st.CreateControl(ctx, ir.Control{EventID: eventID, Code: 2, Name: "Finish", Type: ir.ControlFinish})
	require.NoError(t, err)
	stageID, err := st.CreateStage(ctx, ir.Stage{
		EventID: eventID, StageNumber: 1, Name: "SS1",
		StartControlID: startID, FinishControlID: finishID, IsTimed: true, RunsToCount: 1,
	})
	require.NoError(t, err)
	courseID, err := st.CreateCourse(ctx, ir.Course{EventID: eventID, Name: "C", Laps: 1})
	require.NoError(t, err)
	require.NoError(t, st.LinkCourseStage(ctx, courseID, stageID, 1))
	classID, err := st.CreateClass(ctx, ir.Class{EventID: eventID, CourseID: courseID, Name: "Elite"})
	require.NoError(t, err)

	entry1, err := st.UpsertEntry(ctx, ir.Entry{EventID: eventID, Bib: 1, FirstName: "A", LastName: "One", ClassID: classID, Status: ir.EntryRegistered})
	require.NoError(t, err)

	elapsed := 30.0
	_, err = st.WriteStageRunAndJournal(ctx, store.StageRunWrite{Run: ir.StageRun{
		EventID: eventID, EntryID: entry1, StageID: stageID, Attempt: 1,
		ElapsedSeconds: &elapsed, Status: ir.RunOK, RunState: ir.RunStateValid,
	}})
	require.NoError(t, err)
	require.NoError(t, aggregator.Recalculate(ctx, st, eventID))

	var buf bytes.Buffer
	rows, err := ExportOverallResults(ctx, st, eventID, &buf, ir.PrecisionSeconds)
	require.NoError(t, err)
	assert.Equal(t, 1, rows)
	assert.Contains(t, buf.String(), "One")
}
