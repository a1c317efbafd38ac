package assembler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gravitytiming/core/internal/ir"
	"github.com/gravitytiming/core/internal/store"
)

// tryCrossChipFill mirrors _try_cross_chip_fill: when a run is pending
// with exactly one side missing and the entry carries more than one
// chip, the missing side's control is searched across the entry's
// OTHER chips (every mapped chip except the one behind the present
// side). selectCrossChipCandidate picks the fill: for a missing finish
// the earliest punch after the known start, for a missing start the
// latest punch before the known finish. If finalize does not turn the
// filled run OK, nothing is written; otherwise the run is written with
// SourceHint "cross_chip_fill" for later audit.
func tryCrossChipFill(ctx context.Context, st *store.Store, logger *slog.Logger, entry ir.Entry, stage ir.Stage, run ir.StageRun) (*ir.StageRun, error) {
	missingSide := ""
	switch {
	case run.StartTime == nil && run.FinishTime != nil:
		missingSide = "start"
	case run.StartTime != nil && run.FinishTime == nil:
		missingSide = "finish"
	default:
		return nil, nil
	}

	mappings, err := st.ReadChipMappingsForBib(ctx, entry.EventID, entry.Bib)
	if err != nil {
		return nil, fmt.Errorf("cross-chip fill: read chip mappings: %w", err)
	}
	if len(mappings) < 2 {
		return nil, nil
	}

	controlID := stage.StartControlID
	if missingSide == "finish" {
		controlID = stage.FinishControlID
	}
	controlCode, err := st.ReadControlCode(ctx, controlID)
	if err != nil {
		return nil, fmt.Errorf("cross-chip fill: read control code: %w", err)
	}

	usedChip, err := presentSideChipID(ctx, st, run, missingSide)
	if err != nil {
		return nil, err
	}
	var otherChips []int64
	for _, m := range mappings {
		if m.ChipID != usedChip {
			otherChips = append(otherChips, m.ChipID)
		}
	}
	if len(otherChips) == 0 {
		return nil, nil
	}

	candidates, err := st.ReadPunchesForChips(ctx, entry.EventID, controlCode, otherChips)
	if err != nil {
		return nil, fmt.Errorf("cross-chip fill: read candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	fill, ok := selectCrossChipCandidate(candidates, run, missingSide)
	if !ok {
		return nil, nil
	}

	p := Punch{ID: fill.ID, Time: fill.PunchTime, Source: fill.Source, Side: missingSide}
	applyPunchToSide(&run, p)
	finalize(&run)
	if run.Status != ir.RunOK {
		// finalize rejected the candidate (e.g. negative elapsed); leave the
		// run untouched rather than persisting a half-filled pending state.
		return nil, nil
	}
	if err := writeRunWithHint(ctx, st, &run, "cross_chip_fill"); err != nil {
		return nil, err
	}
	logger.Info("cross-chip fill", "event_id", entry.EventID, "entry_id", entry.ID, "stage_id", stage.ID,
		"attempt", run.Attempt, "side", missingSide, "filling_chip", fill.ChipID)
	return &run, nil
}

// selectCrossChipCandidate mirrors _try_cross_chip_fill's directional
// search: a missing finish must be filled by the earliest candidate
// punch that comes AFTER the known start time; a missing start must be
// filled by the closest preceding candidate punch, i.e. the latest one
// that comes BEFORE the known finish time. candidates is ordered
// punch_time ASC, id ASC (per ReadPunchesForChips).
func selectCrossChipCandidate(candidates []ir.Punch, run ir.StageRun, missingSide string) (ir.Punch, bool) {
	if missingSide == "finish" {
		if run.StartTime == nil {
			return ir.Punch{}, false
		}
		for _, c := range candidates {
			if c.PunchTime.After(*run.StartTime) {
				return c, true
			}
		}
		return ir.Punch{}, false
	}

	if run.FinishTime == nil {
		return ir.Punch{}, false
	}
	found := false
	var best ir.Punch
	for _, c := range candidates {
		if c.PunchTime.Before(*run.FinishTime) {
			best = c
			found = true
		}
	}
	return best, found
}

// presentSideChipID resolves the chip id behind the run's present
// (non-missing) side, so that chip is excluded from the cross-chip
// candidate search.
func presentSideChipID(ctx context.Context, st *store.Store, run ir.StageRun, missingSide string) (int64, error) {
	var punchID *int64
	if missingSide == "start" {
		punchID = run.FinishPunchID
	} else {
		punchID = run.StartPunchID
	}
	if punchID == nil {
		return 0, nil
	}
	p, ok, err := st.ReadPunch(ctx, *punchID)
	if err != nil {
		return 0, fmt.Errorf("resolve present-side chip: %w", err)
	}
	if !ok {
		return 0, nil
	}
	return p.ChipID, nil
}
