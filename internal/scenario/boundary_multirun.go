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

func runDownhillMaxRuns(ctx context.Context, st *store.Store, eng *engine.Engine) (*harness.Result, error) {
	result := harness.NewResult()

	maxRuns := 3
	f, err := newFixture(ctx, st, ir.FormatDownhill, 1, &maxRuns)
	if err != nil {
		return nil, err
	}

	const bib, chipID = 1, int64(1001)
	entryID, err := f.addEntry(ctx, st, bib, chipID)
	if err != nil {
		return nil, err
	}

	attempts := []float64{45.0, 42.0, 50.0}
	base := mustTime("2026-06-01 10:00:00")
	for i, elapsed := range attempts {
		start := base.Add(time.Hour * time.Duration(i))
		if _, err := eng.IngestPunch(ctx, f.eventID, chipID, f.startControl, start, ir.SourceManual, nil); err != nil {
			return nil, fmt.Errorf("attempt %d start: %w", i+1, err)
		}
		if _, err := eng.IngestPunch(ctx, f.eventID, chipID, f.finishControl, start.Add(durationSeconds(elapsed)), ir.SourceManual, nil); err != nil {
			return nil, fmt.Errorf("attempt %d finish: %w", i+1, err)
		}
	}

	fourthStart := base.Add(4 * time.Hour)
	if _, err := eng.IngestPunch(ctx, f.eventID, chipID, f.startControl, fourthStart, ir.SourceManual, nil); err != nil {
		return nil, fmt.Errorf("fourth start: %w", err)
	}

	runs, err := st.ReadValidStageRunsForStage(ctx, f.eventID, f.stageID)
	if err != nil {
		return nil, fmt.Errorf("read valid stage runs: %w", err)
	}
	if len(runs) != 3 {
		result.AddError(fmt.Sprintf("expected exactly 3 attempts after a fourth start-only punch, got %d", len(runs)))
	}

	overall, found, err := st.ReadOverallResult(ctx, f.eventID, entryID)
	if err != nil {
		return nil, fmt.Errorf("read overall result: %w", err)
	}
	if !found || overall.TotalSeconds == nil {
		result.AddError("expected an overall result with a total")
	} else if *overall.TotalSeconds != 42.0 {
		result.AddError(fmt.Sprintf("expected overall 42.0s (best single run), got %.2fs", *overall.TotalSeconds))
	}

	return result, nil
}

func runFestivalRunsToCount(ctx context.Context, st *store.Store, eng *engine.Engine) (*harness.Result, error) {
	result := harness.NewResult()

	f, err := newFixture(ctx, st, ir.FormatXC, 2, nil)
	if err != nil {
		return nil, err
	}

	const bib, chipID = 1, int64(1001)
	entryID, err := f.addEntry(ctx, st, bib, chipID)
	if err != nil {
		return nil, err
	}

	attempts := []float64{60, 55, 50, 45, 52}
	base := mustTime("2026-06-01 10:00:00")
	for i, elapsed := range attempts {
		start := base.Add(time.Hour * time.Duration(i))
		if _, err := eng.IngestPunch(ctx, f.eventID, chipID, f.startControl, start, ir.SourceManual, nil); err != nil {
			return nil, fmt.Errorf("attempt %d start: %w", i+1, err)
		}
		if _, err := eng.IngestPunch(ctx, f.eventID, chipID, f.finishControl, start.Add(durationSeconds(elapsed)), ir.SourceManual, nil); err != nil {
			return nil, fmt.Errorf("attempt %d finish: %w", i+1, err)
		}
	}

	runs, err := st.ReadValidStageRunsForStage(ctx, f.eventID, f.stageID)
	if err != nil {
		return nil, fmt.Errorf("read valid stage runs: %w", err)
	}
	if len(runs) != 5 {
		result.AddError(fmt.Sprintf("expected all 5 attempts stored, got %d", len(runs)))
	}

	overall, found, err := st.ReadOverallResult(ctx, f.eventID, entryID)
	if err != nil {
		return nil, fmt.Errorf("read overall result: %w", err)
	}
	if !found || overall.TotalSeconds == nil {
		result.AddError("expected an overall result with a total")
	} else if *overall.TotalSeconds != 95.0 {
		result.AddError(fmt.Sprintf("expected overall 95.0s (best two of five), got %.2fs", *overall.TotalSeconds))
	}

	return result, nil
}
