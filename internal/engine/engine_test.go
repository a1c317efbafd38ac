package engine

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitytiming/core/internal/ir"
	"github.com/gravitytiming/core/internal/observer"
	"github.com/gravitytiming/core/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupEnduroEvent builds a one-stage enduro event with a single
// entry and chip mapping, returning the ids a test needs.
func setupEnduroEvent(t *testing.T, st *store.Store) (eventID int64, entryID int64, stageID int64, chipID int64) {
	t.Helper()
	ctx := context.Background()

	eventID, err := st.CreateEvent(ctx, ir.Event{
		Name: "Test Enduro", Date: "2026-06-01", Format: ir.FormatEnduro,
		StageOrder: ir.StageOrderFixed, TimePrecision: ir.PrecisionSeconds, Status: ir.EventActive,
	})
	require.NoError(t, err)

	startID, err := st.CreateControl(ctx, ir.Control{EventID: eventID, Code: 11, Name: "Start SS1", Type: ir.ControlStart})
	require.NoError(t, err)
	finishID, err := st.CreateControl(ctx, ir.Control{EventID: eventID, Code: 12, Name: "Mål SS1", Type: ir.ControlFinish})
	require.NoError(t, err)

	stageID, err = st.CreateStage(ctx, ir.Stage{
		EventID: eventID, StageNumber: 1, Name: "SS1",
		StartControlID: startID, FinishControlID: finishID, IsTimed: true, RunsToCount: 1,
	})
	require.NoError(t, err)

	courseID, err := st.CreateCourse(ctx, ir.Course{EventID: eventID, Name: "Huvudbana", Laps: 1})
	require.NoError(t, err)
	require.NoError(t, st.LinkCourseStage(ctx, courseID, stageID, 1))

	classID, err := st.CreateClass(ctx, ir.Class{EventID: eventID, CourseID: courseID, Name: "Herr Elite"})
	require.NoError(t, err)

	entryID, err = st.UpsertEntry(ctx, ir.Entry{
		EventID: eventID, Bib: 7, FirstName: "Test", LastName: "Rider", ClassID: classID, Status: ir.EntryRegistered,
	})
	require.NoError(t, err)

	chipID = int64(123456)
	require.NoError(t, st.UpsertChipMapping(ctx, ir.ChipMapping{
		EventID: eventID, Bib: 7, ChipID: chipID, IsPrimary: true,
	}))

	return eventID, entryID, stageID, chipID
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "engine_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestEngine_IngestPunch_FinalizesRunAndPublishes(t *testing.T) {
	st := newTestStore(t)
	eventID, _, stageID, chipID := setupEnduroEvent(t, st)

	sink := observer.NewMemorySink()
	sub := sink.Subscribe()
	defer sink.Unsubscribe(sub)

	e := New(st, testLogger(), sink)
	ctx := context.Background()
	start := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	_, err := e.IngestPunch(ctx, eventID, chipID, 11, start, ir.SourceUSB, nil)
	require.NoError(t, err)

	result, err := e.IngestPunch(ctx, eventID, chipID, 12, start.Add(90*time.Second), ir.SourceUSB, nil)
	require.NoError(t, err)
	require.NotNil(t, result.StageRun)
	assert.Equal(t, ir.RunOK, result.StageRun.Status)
	require.NotNil(t, result.StageRun.ElapsedSeconds)
	assert.InDelta(t, 90.0, *result.StageRun.ElapsedSeconds, 0.001)
	assert.Equal(t, stageID, result.StageRun.StageID)

	var sawPunch, sawStandings bool
	for i := 0; i < 8; i++ {
		select {
		case msg := <-sub:
			switch msg.Kind {
			case observer.EventPunch:
				sawPunch = true
			case observer.EventStandings:
				sawStandings = true
			}
		default:
		}
	}
	assert.True(t, sawPunch, "expected a punch event to be published")
	assert.True(t, sawStandings, "expected a standings event to be published")
}

func TestEngine_IngestPunch_RespectsPausedSetting(t *testing.T) {
	st := newTestStore(t)
	eventID, _, _, chipID := setupEnduroEvent(t, st)

	e := New(st, testLogger(), observer.NewMemorySink())
	ctx := context.Background()
	require.NoError(t, e.SetIngestPaused(ctx, true))

	_, err := e.IngestPunch(ctx, eventID, chipID, 11, time.Now().UTC(), ir.SourceUSB, nil)
	require.Error(t, err)
}

func TestEngine_DistinctEventsDoNotShareALock(t *testing.T) {
	st := newTestStore(t)
	eventA, _, _, _ := setupEnduroEvent(t, st)
	eventB, _, _, _ := setupEnduroEvent(t, st)

	e := New(st, testLogger(), observer.NewMemorySink())
	require.NotSame(t, e.lockFor(eventA), e.lockFor(eventB))
	assert.Same(t, e.lockFor(eventA), e.lockFor(eventA), "repeated lookups for the same event must return the same mutex")
}
