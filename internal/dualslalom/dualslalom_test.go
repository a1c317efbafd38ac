package dualslalom

import (
	"context"
	"path/filepath"
	"testing"
	"time"

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

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := ir.ParseTimestamp(s)
	require.NoError(t, err)
	return ts
}

func TestGroupByWindowPartitionsChronologically(t *testing.T) {
	punches := []ir.Punch{
		{ID: 1, PunchTime: mustTime(t, "2026-06-01 12:00:00")},
		{ID: 2, PunchTime: mustTime(t, "2026-06-01 12:00:03")},
		{ID: 3, PunchTime: mustTime(t, "2026-06-01 12:00:20")},
	}
	groups := groupByWindow(punches, 5.0)
	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 2)
	assert.Len(t, groups[1], 1)
}

func TestGroupByWindowAnchorsOnGroupStartNotPreviousPunch(t *testing.T) {
	// Each punch is 4s after the one before, so naive pairwise grouping
	// would chain all three together; the window must be measured
	// against the group's anchor (first punch), not the prior punch.
	punches := []ir.Punch{
		{ID: 1, PunchTime: mustTime(t, "2026-06-01 12:00:00")},
		{ID: 2, PunchTime: mustTime(t, "2026-06-01 12:00:04")},
		{ID: 3, PunchTime: mustTime(t, "2026-06-01 12:00:08")},
	}
	groups := groupByWindow(punches, 5.0)
	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 2, "punches 1 and 2 are within 5s of the anchor")
	assert.Len(t, groups[1], 1, "punch 3 is 8s from the anchor, outside the window")
}

// buildFixture creates one event/start+finish controls/stage and returns
// their ids; it does not create entries, since GroupStarts operates
// purely on punches and stage_runs keyed by start_punch_id.
func buildFixture(t *testing.T, st *store.Store) (eventID, stageID, startControlID, finishControlID int64) {
	t.Helper()
	ctx := context.Background()

	eventID, err := st.CreateEvent(ctx, ir.Event{
		Name: "E", Date: "2026-06-01", Format: ir.FormatDualSlalom,
		StageOrder: ir.StageOrderFixed, TimePrecision: ir.PrecisionSeconds,
	})
	require.NoError(t, err)

	startControlID, err = st.CreateControl(ctx, ir.Control{EventID: eventID, Code: 1, Name: "Start", Type: ir.ControlStart})
	require.NoError(t, err)
	finishControlID, err = st.CreateControl(ctx, ir.Control{EventID: eventID, Code: 2, Name: "Finish", Type: ir.ControlFinish})
	require.NoError(t, err)

	stageID, err = st.CreateStage(ctx, ir.Stage{
		EventID: eventID, StageNumber: 1, Name: "Head-to-head",
		StartControlID: startControlID, FinishControlID: finishControlID, IsTimed: true, RunsToCount: 1,
	})
	require.NoError(t, err)

	return eventID, stageID, startControlID, finishControlID
}

func TestGroupStartsRewritesElapsedForGroupedFinishers(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	eventID, stageID, _, _ := buildFixture(t, st)

	start1 := mustTime(t, "2026-06-01 12:00:00")
	start2 := mustTime(t, "2026-06-01 12:00:03")
	finish1 := mustTime(t, "2026-06-01 12:00:30")
	finish2 := mustTime(t, "2026-06-01 12:00:31")

	startPunch1, err := st.WritePunch(ctx, ir.Punch{EventID: eventID, ChipID: 1001, ControlCode: 1, PunchTime: start1, Source: ir.SourceManual})
	require.NoError(t, err)
	startPunch2, err := st.WritePunch(ctx, ir.Punch{EventID: eventID, ChipID: 1002, ControlCode: 1, PunchTime: start2, Source: ir.SourceManual})
	require.NoError(t, err)

	elapsed1 := finish1.Sub(start1).Seconds()
	elapsed2 := finish2.Sub(start2).Seconds()
	_, err = st.WriteStageRunAndJournal(ctx, store.StageRunWrite{Run: ir.StageRun{
		EventID: eventID, EntryID: 1, StageID: stageID, Attempt: 1,
		StartPunchID: &startPunch1, StartTime: &start1, FinishTime: &finish1,
		ElapsedSeconds: &elapsed1, Status: ir.RunOK, RunState: ir.RunStateValid,
	}})
	require.NoError(t, err)
	_, err = st.WriteStageRunAndJournal(ctx, store.StageRunWrite{Run: ir.StageRun{
		EventID: eventID, EntryID: 2, StageID: stageID, Attempt: 1,
		StartPunchID: &startPunch2, StartTime: &start2, FinishTime: &finish2,
		ElapsedSeconds: &elapsed2, Status: ir.RunOK, RunState: ir.RunStateValid,
	}})
	require.NoError(t, err)

	groups, err := GroupStarts(ctx, st, eventID, 5.0)
	require.NoError(t, err)
	assert.Equal(t, 1, groups)

	runs1, err := st.ReadStageRunsByStartPunch(ctx, startPunch1)
	require.NoError(t, err)
	require.Len(t, runs1, 1)
	runs2, err := st.ReadStageRunsByStartPunch(ctx, startPunch2)
	require.NoError(t, err)
	require.Len(t, runs2, 1)
	run1, run2 := runs1[0], runs2[0]

	require.NotNil(t, run1.ElapsedSeconds)
	require.NotNil(t, run2.ElapsedSeconds)
	assert.Equal(t, 30.0, *run1.ElapsedSeconds, "rider 1 started at the group's anchor time already")
	assert.Equal(t, 31.0, *run2.ElapsedSeconds, "rider 2's elapsed is now measured from rider 1's earlier start")
	require.NotNil(t, run1.StartTime)
	require.NotNil(t, run2.StartTime)
	assert.Equal(t, start1, run1.StartTime.UTC())
	assert.Equal(t, start1, run2.StartTime.UTC())
}
