package scenario

import (
	"context"
	"fmt"

	"github.com/gravitytiming/core/internal/engine"
	"github.com/gravitytiming/core/internal/harness"
	"github.com/gravitytiming/core/internal/ir"
	"github.com/gravitytiming/core/internal/store"
)

func runDualSlalomGrouping(ctx context.Context, st *store.Store, eng *engine.Engine) (*harness.Result, error) {
	result := harness.NewResult()

	f, err := newFixture(ctx, st, ir.FormatDualSlalom, 1, nil)
	if err != nil {
		return nil, err
	}

	rider1ID, err := f.addEntry(ctx, st, 1, 1001)
	if err != nil {
		return nil, err
	}
	rider2ID, err := f.addEntry(ctx, st, 2, 1002)
	if err != nil {
		return nil, err
	}

	start1 := mustTime("2026-06-01 12:00:00")
	start2 := mustTime("2026-06-01 12:00:03")
	finish1 := mustTime("2026-06-01 12:00:30")
	finish2 := mustTime("2026-06-01 12:00:31")

	if _, err := eng.IngestPunch(ctx, f.eventID, 1001, f.startControl, start1, ir.SourceManual, nil); err != nil {
		return nil, fmt.Errorf("rider 1 start: %w", err)
	}
	if _, err := eng.IngestPunch(ctx, f.eventID, 1002, f.startControl, start2, ir.SourceManual, nil); err != nil {
		return nil, fmt.Errorf("rider 2 start: %w", err)
	}
	res1, err := eng.IngestPunch(ctx, f.eventID, 1001, f.finishControl, finish1, ir.SourceManual, nil)
	if err != nil {
		return nil, fmt.Errorf("rider 1 finish: %w", err)
	}
	res2, err := eng.IngestPunch(ctx, f.eventID, 1002, f.finishControl, finish2, ir.SourceManual, nil)
	if err != nil {
		return nil, fmt.Errorf("rider 2 finish: %w", err)
	}

	if got := *res1.StageRun.ElapsedSeconds; got != 30 {
		result.AddError(fmt.Sprintf("before grouping, rider 1: expected 30s, got %.2fs", got))
	}
	if got := *res2.StageRun.ElapsedSeconds; got != 28 {
		result.AddError(fmt.Sprintf("before grouping, rider 2: expected 28s, got %.2fs", got))
	}

	groups, err := eng.GroupDualSlalomStarts(ctx, f.eventID, 5.0)
	if err != nil {
		return nil, fmt.Errorf("group starts: %w", err)
	}
	if groups != 1 {
		result.AddError(fmt.Sprintf("expected exactly 1 group formed, got %d", groups))
	}

	run1, found, err := st.ReadLatestStageRun(ctx, f.eventID, rider1ID, f.stageID)
	if err != nil || !found {
		return nil, fmt.Errorf("read rider 1 stage run: %w", err)
	}
	run2, found, err := st.ReadLatestStageRun(ctx, f.eventID, rider2ID, f.stageID)
	if err != nil || !found {
		return nil, fmt.Errorf("read rider 2 stage run: %w", err)
	}

	if run1.ElapsedSeconds == nil || *run1.ElapsedSeconds != 30 {
		result.AddError(fmt.Sprintf("after grouping, rider 1: expected 30s, got %v", run1.ElapsedSeconds))
	}
	if run2.ElapsedSeconds == nil || *run2.ElapsedSeconds != 31 {
		result.AddError(fmt.Sprintf("after grouping, rider 2: expected 31s, got %v", run2.ElapsedSeconds))
	}
	if run1.StartTime == nil || run2.StartTime == nil || !run1.StartTime.Equal(*run2.StartTime) {
		result.AddError("expected both rows to carry the earliest start_time after grouping")
	} else if !run1.StartTime.Equal(start1) {
		result.AddError(fmt.Sprintf("expected grouped start_time %s, got %s", start1, run1.StartTime))
	}

	return result, nil
}
