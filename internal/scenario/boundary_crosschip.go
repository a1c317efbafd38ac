package scenario

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gravitytiming/core/internal/engine"
	"github.com/gravitytiming/core/internal/harness"
	"github.com/gravitytiming/core/internal/ir"
	"github.com/gravitytiming/core/internal/store"
)

func runCrossChip(ctx context.Context, st *store.Store, eng *engine.Engine) (*harness.Result, error) {
	result := harness.NewResult()

	f, err := newFixture(ctx, st, ir.FormatEnduro, 1, nil)
	if err != nil {
		return nil, err
	}

	const bib = 1
	const chipA, chipB = int64(1001), int64(1002)
	entryID, err := f.addEntry(ctx, st, bib, chipA)
	if err != nil {
		return nil, err
	}
	if err := st.UpsertChipMapping(ctx, ir.ChipMapping{EventID: f.eventID, Bib: bib, ChipID: chipB, IsPrimary: false}); err != nil {
		return nil, fmt.Errorf("upsert secondary chip mapping: %w", err)
	}

	start := mustTime("2026-06-01 10:00:00")
	if _, err := eng.IngestPunch(ctx, f.eventID, chipA, f.startControl, start, ir.SourceManual, nil); err != nil {
		return nil, fmt.Errorf("chip A start: %w", err)
	}

	run, found, err := st.ReadLatestStageRun(ctx, f.eventID, entryID, f.stageID)
	if err != nil || !found {
		return nil, fmt.Errorf("read pending stage run: %w", err)
	}
	if run.Status != ir.RunPending {
		result.AddError(fmt.Sprintf("expected a pending run after the start-only punch, got status %q", run.Status))
	}

	finish := mustTime("2026-06-01 10:00:45")
	finishRes, err := eng.IngestPunch(ctx, f.eventID, chipB, f.finishControl, finish, ir.SourceManual, nil)
	if err != nil {
		return nil, fmt.Errorf("chip B finish: %w", err)
	}
	if finishRes.StageRun == nil || finishRes.StageRun.Status != ir.RunOK || *finishRes.StageRun.ElapsedSeconds != 45.0 {
		result.AddError(fmt.Sprintf("expected a valid 45s run after the cross-chip finish, got %+v", finishRes.StageRun))
	}

	entries, err := st.ReadAllJournal(ctx, f.eventID)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	foundHint := false
	for _, j := range entries {
		if j.Kind != ir.JournalRunCreated {
			continue
		}
		var payload ir.RunCreatedPayload
		if err := json.Unmarshal([]byte(j.Payload), &payload); err != nil {
			continue
		}
		if payload.EntryID == entryID && payload.StageID == f.stageID && payload.SourceHint == "cross_chip_fill" {
			foundHint = true
			break
		}
	}
	if !foundHint {
		result.AddError("expected a run_created journal entry with source_hint=cross_chip_fill")
	}

	return result, nil
}
