package scenario

import (
	"context"
	"fmt"

	"github.com/gravitytiming/core/internal/engine"
	"github.com/gravitytiming/core/internal/harness"
	"github.com/gravitytiming/core/internal/ir"
	"github.com/gravitytiming/core/internal/store"
)

func runSourceOverride(ctx context.Context, st *store.Store, eng *engine.Engine) (*harness.Result, error) {
	result := harness.NewResult()

	f, err := newFixture(ctx, st, ir.FormatEnduro, 1, nil)
	if err != nil {
		return nil, err
	}

	entryID, err := f.addEntry(ctx, st, 1, 1001)
	if err != nil {
		return nil, err
	}

	start := mustTime("2026-06-01 10:00:00")
	if _, err := eng.IngestPunch(ctx, f.eventID, 1001, f.startControl, start, ir.SourceROC, nil); err != nil {
		return nil, fmt.Errorf("roc start: %w", err)
	}
	rocFinish, err := eng.IngestPunch(ctx, f.eventID, 1001, f.finishControl, mustTime("2026-06-01 10:00:30"), ir.SourceROC, nil)
	if err != nil {
		return nil, fmt.Errorf("roc finish: %w", err)
	}
	if rocFinish.StageRun == nil || *rocFinish.StageRun.ElapsedSeconds != 30 {
		result.AddError(fmt.Sprintf("expected roc run to be valid at 30s, got %+v", rocFinish.StageRun))
	}

	usbFinish, err := eng.IngestPunch(ctx, f.eventID, 1001, f.finishControl, mustTime("2026-06-01 10:00:28"), ir.SourceUSB, nil)
	if err != nil {
		return nil, fmt.Errorf("usb finish: %w", err)
	}
	if usbFinish.StageRun == nil || *usbFinish.StageRun.ElapsedSeconds != 28 {
		result.AddError(fmt.Sprintf("expected usb finish to supersede roc at 28s, got %+v", usbFinish.StageRun))
	}

	run, found, err := st.ReadLatestStageRun(ctx, f.eventID, entryID, f.stageID)
	if err != nil || !found {
		return nil, fmt.Errorf("read latest stage run: %w", err)
	}
	if run.RunState != ir.RunStateValid || run.ElapsedSeconds == nil || *run.ElapsedSeconds != 28 {
		result.AddError(fmt.Sprintf("expected valid run at 28s after usb supersession, got %+v", run))
	}

	manualFinish, err := eng.IngestPunch(ctx, f.eventID, 1001, f.finishControl, mustTime("2026-06-01 10:00:25"), ir.SourceManual, nil)
	if err != nil {
		return nil, fmt.Errorf("manual finish: %w", err)
	}
	_ = manualFinish

	run, found, err = st.ReadLatestStageRun(ctx, f.eventID, entryID, f.stageID)
	if err != nil || !found {
		return nil, fmt.Errorf("read latest stage run after manual attempt: %w", err)
	}
	if run.ElapsedSeconds == nil || *run.ElapsedSeconds != 28 {
		result.AddError(fmt.Sprintf("manual finish (lower priority) must not override usb; expected valid run to stay 28s, got %+v", run))
	}

	return result, nil
}
