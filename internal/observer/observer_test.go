package observer

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

func TestMemorySinkFansOutToAllSubscribers(t *testing.T) {
	sink := NewMemorySink()
	a := sink.Subscribe()
	b := sink.Subscribe()
	assert.Equal(t, 2, sink.ConnectionCount())

	require.NoError(t, sink.Publish(context.Background(), EventPunch, PunchEvent{EventID: 1, Bib: 7}))

	for _, ch := range []<-chan Message{a, b} {
		select {
		case msg := <-ch:
			assert.Equal(t, EventPunch, msg.Kind)
		case <-time.After(time.Second):
			t.Fatal("subscriber never received published message")
		}
	}

	sink.Unsubscribe(a)
	assert.Equal(t, 1, sink.ConnectionCount())
}

func TestMemorySinkDropsOnFullSubscriberRatherThanBlocking(t *testing.T) {
	sink := NewMemorySink()
	ch := sink.Subscribe()

	for i := 0; i < 100; i++ {
		require.NoError(t, sink.Publish(context.Background(), EventPunch, nil))
	}
	// Publish must return promptly regardless of channel capacity; no
	// assertion needed beyond not hanging (test timeout would catch it).
	_ = ch
}

// buildHighlightFixture creates one event/stage/class with three
// entries sharing a course, used to exercise new_leader/close_finish/podium.
func buildHighlightFixture(t *testing.T, st *store.Store) (eventID, stageID int64, entryIDs []int64) {
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

	stageID, err = st.CreateStage(ctx, ir.Stage{
		EventID: eventID, StageNumber: 1, Name: "SS1",
		StartControlID: startID, FinishControlID: finishID, IsTimed: true, RunsToCount: 1,
	})
	require.NoError(t, err)

	courseID, err := st.CreateCourse(ctx, ir.Course{EventID: eventID, Name: "C", Laps: 1})
	require.NoError(t, err)
	classID, err := st.CreateClass(ctx, ir.Class{EventID: eventID, CourseID: courseID, Name: "Elite"})
	require.NoError(t, err)

	for i, name := range []string{"Alice", "Bob", "Cara"} {
		entryID, err := st.UpsertEntry(ctx, ir.Entry{
			EventID: eventID, Bib: i + 1, FirstName: string(name[0]), LastName: name, ClassID: classID, Status: ir.EntryRegistered,
		})
		require.NoError(t, err)
		entryIDs = append(entryIDs, entryID)
	}
	return eventID, stageID, entryIDs
}

func writeOKRun(t *testing.T, st *store.Store, eventID, entryID, stageID int64, elapsed float64) {
	t.Helper()
	elapsedCopy := elapsed
	_, err := st.WriteStageRunAndJournal(context.Background(), store.StageRunWrite{Run: ir.StageRun{
		EventID: eventID, EntryID: entryID, StageID: stageID, Attempt: 1,
		ElapsedSeconds: &elapsedCopy, Status: ir.RunOK, RunState: ir.RunStateValid,
	}})
	require.NoError(t, err)
}

func TestGenerateHighlightsNewLeader(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	eventID, stageID, entries := buildHighlightFixture(t, st)

	writeOKRun(t, st, eventID, entries[1], stageID, 40.0) // an existing, slower result
	writeOKRun(t, st, eventID, entries[0], stageID, 30.0) // Alice takes the lead

	highlights, err := GenerateHighlights(ctx, st, eventID, entries[0], stageID)
	require.NoError(t, err)
	require.NotEmpty(t, highlights)
	assert.Equal(t, "new_leader", highlights[0].Category)
	assert.Equal(t, PriorityHigh, highlights[0].Priority)
}

func TestGenerateHighlightsCloseFinish(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	eventID, stageID, entries := buildHighlightFixture(t, st)

	writeOKRun(t, st, eventID, entries[0], stageID, 30.0) // leader
	writeOKRun(t, st, eventID, entries[1], stageID, 31.5) // 1.5s back, within the 2s window

	highlights, err := GenerateHighlights(ctx, st, eventID, entries[1], stageID)
	require.NoError(t, err)
	require.NotEmpty(t, highlights)
	assert.Equal(t, "close_finish", highlights[0].Category)
}

func TestGenerateHighlightsNoCloseFinishOutsideWindow(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	eventID, stageID, entries := buildHighlightFixture(t, st)

	writeOKRun(t, st, eventID, entries[0], stageID, 30.0)
	writeOKRun(t, st, eventID, entries[1], stageID, 35.0) // 5s back, outside the window

	highlights, err := GenerateHighlights(ctx, st, eventID, entries[1], stageID)
	require.NoError(t, err)
	for _, h := range highlights {
		assert.NotEqual(t, "close_finish", h.Category)
	}
}

func TestGenerateHighlightsPodium(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	eventID, stageID, entries := buildHighlightFixture(t, st)

	for i, e := range entries {
		writeOKRun(t, st, eventID, e, stageID, float64(30+i))
	}

	position := 1
	total := 30.0
	require.NoError(t, st.WriteOverallResult(ctx, ir.OverallResult{
		EventID: eventID, EntryID: entries[0], TotalSeconds: &total, Position: &position, Status: ir.RunOK,
	}))

	highlights, err := GenerateHighlights(ctx, st, eventID, entries[0], stageID)
	require.NoError(t, err)
	var sawPodium bool
	for _, h := range highlights {
		if h.Category == "podium" {
			sawPodium = true
		}
	}
	assert.True(t, sawPodium)
}
