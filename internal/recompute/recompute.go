// Package recompute implements the bulk-recompute fixed point: delete
// every StageRun and OverallResult for an event, then replay every
// non-duplicate punch through the Assembler, the dual-slalom grouper,
// and the Aggregator in that fixed order. Grounded on the original
// implementation's recalculate_all.
package recompute

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/gravitytiming/core/internal/aggregator"
	"github.com/gravitytiming/core/internal/assembler"
	"github.com/gravitytiming/core/internal/dualslalom"
	"github.com/gravitytiming/core/internal/ir"
	"github.com/gravitytiming/core/internal/store"
)

// diffTolerance mirrors the original's 0.01s float-compare tolerance.
const diffTolerance = 0.01

// stageKey identifies one (entry, stage, attempt) triple for diffing.
type stageKey struct {
	entryID, stageID int64
	attempt          int
}

type stageSnapshot struct {
	elapsed *float64
	status  ir.RunStatus
}

type overallSnapshot struct {
	total    *float64
	position *int
	status   ir.RunStatus
}

// RecomputeAll deletes and replays all results for an event, returning
// a list of diff messages describing anything that came back
// different from before (an empty slice means the recompute was a
// no-op, i.e. the stored results were already consistent).
func RecomputeAll(ctx context.Context, st *store.Store, logger *slog.Logger, eventID int64) ([]string, error) {
	oldStage, err := snapshotStage(ctx, st, eventID)
	if err != nil {
		return nil, fmt.Errorf("recompute: snapshot stage runs: %w", err)
	}
	oldOverall, err := snapshotOverall(ctx, st, eventID)
	if err != nil {
		return nil, fmt.Errorf("recompute: snapshot overall results: %w", err)
	}

	if err := st.DeleteEventResults(ctx, eventID); err != nil {
		return nil, fmt.Errorf("recompute: delete event results: %w", err)
	}

	punches, err := st.ReadAllPunches(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("recompute: read punches: %w", err)
	}

	for _, p := range punches {
		if err := replayPunch(ctx, st, logger, eventID, p); err != nil {
			return nil, fmt.Errorf("recompute: replay punch %d: %w", p.ID, err)
		}
	}

	event, err := st.ReadEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("recompute: read event: %w", err)
	}
	if event.Format == ir.FormatDualSlalom && event.DualSlalomWindowSec != nil {
		if _, err := dualslalom.GroupStarts(ctx, st, eventID, *event.DualSlalomWindowSec); err != nil {
			return nil, fmt.Errorf("recompute: group dual slalom starts: %w", err)
		}
	}

	if err := aggregator.Recalculate(ctx, st, eventID); err != nil {
		return nil, fmt.Errorf("recompute: aggregate: %w", err)
	}

	newStage, err := snapshotStage(ctx, st, eventID)
	if err != nil {
		return nil, fmt.Errorf("recompute: resnapshot stage runs: %w", err)
	}
	newOverall, err := snapshotOverall(ctx, st, eventID)
	if err != nil {
		return nil, fmt.Errorf("recompute: resnapshot overall results: %w", err)
	}

	diffs := diffStage(oldStage, newStage)
	diffs = append(diffs, diffOverall(oldOverall, newOverall)...)

	for _, d := range diffs {
		logger.Warn("recompute diff", "event_id", eventID, "diff", d)
	}
	return diffs, nil
}

// replayPunch resolves a stored punch's chip and control, then hands
// it to the Assembler exactly as Ingest would, minus duplicate
// detection and the punch insert itself (the punch row already exists).
func replayPunch(ctx context.Context, st *store.Store, logger *slog.Logger, eventID int64, p ir.Punch) error {
	entry, found, err := st.ReadEntryByChip(ctx, eventID, p.ChipID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	stage, side, found, err := st.ReadStageForControl(ctx, eventID, p.ControlCode)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	_, err = assembler.Process(ctx, st, logger, assembler.Punch{
		ID: p.ID, Time: p.PunchTime, Source: p.Source, Side: side,
	}, entry, stage)
	return err
}

func snapshotStage(ctx context.Context, st *store.Store, eventID int64) (map[stageKey]stageSnapshot, error) {
	runs, err := st.ReadValidStageRunsForEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	snap := make(map[stageKey]stageSnapshot, len(runs))
	for _, r := range runs {
		snap[stageKey{r.EntryID, r.StageID, r.Attempt}] = stageSnapshot{elapsed: r.ElapsedSeconds, status: r.Status}
	}
	return snap, nil
}

func snapshotOverall(ctx context.Context, st *store.Store, eventID int64) (map[int64]overallSnapshot, error) {
	results, err := st.ReadAllOverallResults(ctx, eventID)
	if err != nil {
		return nil, err
	}
	snap := make(map[int64]overallSnapshot, len(results))
	for _, r := range results {
		snap[r.EntryID] = overallSnapshot{total: r.TotalSeconds, position: r.Position, status: r.Status}
	}
	return snap, nil
}

func diffStage(oldMap, newMap map[stageKey]stageSnapshot) []string {
	seen := make(map[stageKey]bool, len(oldMap)+len(newMap))
	for k := range oldMap {
		seen[k] = true
	}
	for k := range newMap {
		seen[k] = true
	}

	var diffs []string
	for key := range seen {
		oldVal, hadOld := oldMap[key]
		newVal, hasNew := newMap[key]
		switch {
		case !hadOld:
			diffs = append(diffs, fmt.Sprintf("stage_result NEW: entry=%d stage=%d attempt=%d", key.entryID, key.stageID, key.attempt))
		case !hasNew:
			diffs = append(diffs, fmt.Sprintf("stage_result MISSING: entry=%d stage=%d attempt=%d", key.entryID, key.stageID, key.attempt))
		default:
			if oldVal.elapsed != nil && newVal.elapsed != nil && math.Abs(*oldVal.elapsed-*newVal.elapsed) > diffTolerance {
				diffs = append(diffs, fmt.Sprintf("stage_result DIFF: entry=%d stage=%d attempt=%d elapsed %v -> %v",
					key.entryID, key.stageID, key.attempt, *oldVal.elapsed, *newVal.elapsed))
			}
			if oldVal.status != newVal.status {
				diffs = append(diffs, fmt.Sprintf("stage_result STATUS: entry=%d stage=%d attempt=%d %s -> %s",
					key.entryID, key.stageID, key.attempt, oldVal.status, newVal.status))
			}
		}
	}
	return diffs
}

func diffOverall(oldMap, newMap map[int64]overallSnapshot) []string {
	seen := make(map[int64]bool, len(oldMap)+len(newMap))
	for k := range oldMap {
		seen[k] = true
	}
	for k := range newMap {
		seen[k] = true
	}

	var diffs []string
	for entryID := range seen {
		oldVal, hadOld := oldMap[entryID]
		newVal, hasNew := newMap[entryID]
		switch {
		case !hadOld:
			diffs = append(diffs, fmt.Sprintf("overall_result NEW: entry=%d", entryID))
		case !hasNew:
			diffs = append(diffs, fmt.Sprintf("overall_result MISSING: entry=%d", entryID))
		default:
			if oldVal.total != nil && newVal.total != nil && math.Abs(*oldVal.total-*newVal.total) > diffTolerance {
				diffs = append(diffs, fmt.Sprintf("overall DIFF: entry=%d total %v -> %v", entryID, *oldVal.total, *newVal.total))
			}
			if oldVal.status != newVal.status {
				diffs = append(diffs, fmt.Sprintf("overall STATUS: entry=%d %s -> %s", entryID, oldVal.status, newVal.status))
			}
			if !intPtrEqual(oldVal.position, newVal.position) {
				diffs = append(diffs, fmt.Sprintf("overall POS: entry=%d pos %v -> %v", entryID, formatIntPtr(oldVal.position), formatIntPtr(newVal.position)))
			}
		}
	}
	return diffs
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func formatIntPtr(p *int) string {
	if p == nil {
		return "none"
	}
	return fmt.Sprintf("%d", *p)
}
