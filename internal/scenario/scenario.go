// Package scenario encodes spec §8's literal boundary scenarios as
// executable fixtures, driven through the same internal/engine path a
// live deployment uses. Adapted from internal/harness's generic
// Scenario/Assertion shape (spec compile + action-URI dispatch),
// narrowed to this domain's concrete operations (ingest_punch,
// group_dual_slalom_starts) in place of the teacher's CUE-driven
// generic action invocation.
package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/gravitytiming/core/internal/engine"
	"github.com/gravitytiming/core/internal/harness"
	"github.com/gravitytiming/core/internal/ir"
	"github.com/gravitytiming/core/internal/store"
)

// Scenario is one self-contained boundary case: it builds its own
// fixture data against a fresh store, drives it through an Engine,
// and reports a harness.Result recording every assertion it made.
type Scenario struct {
	Name        string
	Description string
	Run         func(ctx context.Context, st *store.Store, eng *engine.Engine) (*harness.Result, error)
}

// Boundary lists spec §8's six literal boundary scenarios in order.
var Boundary = []Scenario{
	{Name: "enduro-8-rider", Description: "8-rider enduro, one stage: expected per-bib elapsed seconds", Run: runEnduroEightRider},
	{Name: "downhill-max-runs", Description: "multi-run downhill, max_runs=3: fourth start must not create a fourth attempt", Run: runDownhillMaxRuns},
	{Name: "festival-runs-to-count", Description: "runs_to_count=2, max_runs=unbounded: overall sums the best two of five attempts", Run: runFestivalRunsToCount},
	{Name: "dualslalom-grouping", Description: "dual slalom grouping, window=5s: earliest start wins for the group", Run: runDualSlalomGrouping},
	{Name: "source-override", Description: "usb supersedes roc; manual must not override usb", Run: runSourceOverride},
	{Name: "cross-chip", Description: "start on primary chip, finish on secondary chip, cross_chip_fill hint", Run: runCrossChip},
}

// ByName returns the boundary scenario with the given name.
func ByName(name string) (Scenario, bool) {
	for _, s := range Boundary {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

// fixture holds the common timing infrastructure built by every
// scenario: one event, one stage bounded by a start/finish control
// pair, one course, one class.
type fixture struct {
	eventID       int64
	stageID       int64
	startControl  int
	finishControl int
	classID       int64
}

func newFixture(ctx context.Context, st *store.Store, format ir.Format, runsToCount int, maxRuns *int) (fixture, error) {
	eventID, err := st.CreateEvent(ctx, ir.Event{
		Name: "scenario", Date: "2026-06-01", Format: format,
		StageOrder: ir.StageOrderFixed, TimePrecision: ir.PrecisionSeconds,
	})
	if err != nil {
		return fixture{}, fmt.Errorf("create event: %w", err)
	}

	startCtl, err := st.CreateControl(ctx, ir.Control{EventID: eventID, Code: 1, Name: "Start", Type: ir.ControlStart})
	if err != nil {
		return fixture{}, fmt.Errorf("create start control: %w", err)
	}
	finishCtl, err := st.CreateControl(ctx, ir.Control{EventID: eventID, Code: 2, Name: "Finish", Type: ir.ControlFinish})
	if err != nil {
		return fixture{}, fmt.Errorf("create finish control: %w", err)
	}

	stageID, err := st.CreateStage(ctx, ir.Stage{
		EventID: eventID, StageNumber: 1, Name: "SS1",
		StartControlID: startCtl, FinishControlID: finishCtl,
		IsTimed: true, RunsToCount: runsToCount, MaxRuns: maxRuns,
	})
	if err != nil {
		return fixture{}, fmt.Errorf("create stage: %w", err)
	}

	courseID, err := st.CreateCourse(ctx, ir.Course{EventID: eventID, Name: "Course A", Laps: 1})
	if err != nil {
		return fixture{}, fmt.Errorf("create course: %w", err)
	}
	if err := st.LinkCourseStage(ctx, courseID, stageID, 1); err != nil {
		return fixture{}, fmt.Errorf("link course stage: %w", err)
	}

	classID, err := st.CreateClass(ctx, ir.Class{EventID: eventID, CourseID: courseID, Name: "Elite"})
	if err != nil {
		return fixture{}, fmt.Errorf("create class: %w", err)
	}

	return fixture{eventID: eventID, stageID: stageID, startControl: 1, finishControl: 2, classID: classID}, nil
}

func (f fixture) addEntry(ctx context.Context, st *store.Store, bib int, chipID int64) (int64, error) {
	entryID, err := st.UpsertEntry(ctx, ir.Entry{
		EventID: f.eventID, Bib: bib, FirstName: fmt.Sprintf("Rider%d", bib), ClassID: f.classID,
		Status: ir.EntryRegistered,
	})
	if err != nil {
		return 0, fmt.Errorf("upsert entry %d: %w", bib, err)
	}
	if err := st.UpsertChipMapping(ctx, ir.ChipMapping{EventID: f.eventID, Bib: bib, ChipID: chipID, IsPrimary: true}); err != nil {
		return 0, fmt.Errorf("upsert chip mapping %d: %w", bib, err)
	}
	return entryID, nil
}

func mustTime(s string) time.Time {
	t, err := ir.ParseTimestamp(s)
	if err != nil {
		panic(err)
	}
	return t
}

func durationSeconds(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
