// Package ingest implements the punch-ingest boundary of the core:
// admission control, duplicate detection, and chip/control resolution,
// before handing accepted punches to the Run Assembler.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gravitytiming/core/internal/assembler"
	"github.com/gravitytiming/core/internal/errs"
	"github.com/gravitytiming/core/internal/ir"
	"github.com/gravitytiming/core/internal/store"
)

// dedupWindow mirrors DEDUP_WINDOW_SECONDS from the original
// implementation: punches within this window of an existing
// non-duplicate punch on the same control/bib collapse to one.
const dedupWindow = 2 * time.Second

// Result is the outcome of a single Ingest call.
type Result struct {
	PunchID     int64
	IsDuplicate bool
	StageRun    *ir.StageRun // non-nil when a StageRun was finalized or updated
}

// Ingest accepts a raw punch, applying admission control and the
// duplicate policy of spec §4.1, then (if accepted) hands off to the
// Run Assembler. The log is append-only even for duplicates: they are
// always inserted, merely flagged.
func Ingest(ctx context.Context, st *store.Store, logger *slog.Logger, eventID int64, chipID int64, controlCode int, punchTime time.Time, source ir.PunchSource, upstreamID *int64) (Result, error) {
	paused, ok, err := st.GetSetting(ctx, "ingest_paused")
	if err != nil {
		return Result{}, errs.NewFatalError("read ingest_paused setting", err)
	}
	if ok && paused == "true" {
		return Result{}, errs.NewAdmissionError(eventID, "ingest_paused")
	}

	isDup, err := checkDuplicate(ctx, st, eventID, chipID, controlCode, punchTime, source)
	if err != nil {
		return Result{}, fmt.Errorf("check duplicate: %w", err)
	}

	punchID, err := st.WritePunch(ctx, ir.Punch{
		EventID:     eventID,
		ChipID:      chipID,
		ControlCode: controlCode,
		PunchTime:   punchTime,
		Source:      source,
		UpstreamID:  upstreamID,
		IsDuplicate: isDup,
	})
	if err != nil {
		return Result{}, errs.NewIntegrityError(eventID, "write punch", err)
	}

	if isDup {
		logger.Info("punch marked duplicate", "event_id", eventID, "chip_id", chipID, "control_code", controlCode)
		return Result{PunchID: punchID, IsDuplicate: true}, nil
	}

	entry, found, err := st.ReadEntryByChip(ctx, eventID, chipID)
	if err != nil {
		return Result{}, fmt.Errorf("resolve chip: %w", err)
	}
	if !found {
		logger.Info("punch retained, chip not mapped", "event_id", eventID, "chip_id", chipID)
		return Result{PunchID: punchID}, nil
	}

	stage, side, found, err := st.ReadStageForControl(ctx, eventID, controlCode)
	if err != nil {
		return Result{}, fmt.Errorf("resolve control: %w", err)
	}
	if !found {
		logger.Info("punch retained, control not in any stage", "event_id", eventID, "control_code", controlCode)
		return Result{PunchID: punchID}, nil
	}

	run, err := assembler.Process(ctx, st, logger, assembler.Punch{
		ID:     punchID,
		Time:   punchTime,
		Source: source,
		Side:   side,
	}, entry, stage)
	if err != nil {
		return Result{}, fmt.Errorf("assemble stage run: %w", err)
	}

	return Result{PunchID: punchID, StageRun: run}, nil
}

// checkDuplicate mirrors _check_duplicate: a new punch is a duplicate
// iff an existing non-duplicate punch shares the control code and
// bib-equivalent chip, lies within the dedup window, AND is not
// strictly stronger in source priority. A higher-priority punch is
// never classified as a duplicate — it flows through to the
// source-priority override path in the Assembler.
func checkDuplicate(ctx context.Context, st *store.Store, eventID, chipID int64, controlCode int, punchTime time.Time, source ir.PunchSource) (bool, error) {
	// Resolve to the bib so chips belonging to the same rider collapse together.
	chipIDsToCheck := []int64{chipID}
	if entry, found, err := st.ReadEntryByChip(ctx, eventID, chipID); err == nil && found {
		mappings, err := st.ReadChipMappingsForBib(ctx, eventID, entry.Bib)
		if err == nil {
			chipIDsToCheck = chipIDsToCheck[:0]
			for _, m := range mappings {
				chipIDsToCheck = append(chipIDsToCheck, m.ChipID)
			}
		}
	}

	var existing []ir.Punch
	for _, cid := range chipIDsToCheck {
		p, err := st.ReadRecentPunchesForControl(ctx, eventID, controlCode, cid)
		if err != nil {
			return false, err
		}
		existing = append(existing, p...)
	}

	for _, e := range existing {
		diff := punchTime.Sub(e.PunchTime)
		if diff < 0 {
			diff = -diff
		}
		if diff > dedupWindow {
			continue
		}
		if source.Priority() >= e.Source.Priority() {
			return true, nil
		}
	}
	return false, nil
}
