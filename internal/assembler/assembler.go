// Package assembler owns the StageRun state machine: source-priority
// override, the start/finish state table, finalize, cross-chip
// completion, and attempt numbering. This is a line-by-line port of
// the original implementation's _process_punch/_update_stage_result/
// _check_source_override/_try_cross_chip_fill.
package assembler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gravitytiming/core/internal/ir"
	"github.com/gravitytiming/core/internal/store"
)

// Punch is the minimal view of a punch the Assembler needs; it is
// supplied by Ingest or by the bulk-recompute driver after it has
// already resolved the side (start/finish) from the Stage's controls.
type Punch struct {
	ID     int64
	Time   time.Time
	Source ir.PunchSource
	Side   string // "start" or "finish"
}

// Process applies one punch to the StageRun state machine for
// (entry, stage), per spec §4.2, returning the affected StageRun when
// one was created, updated, or finalized (nil when the punch was
// discarded as stale or refused by max_runs).
func Process(ctx context.Context, st *store.Store, logger *slog.Logger, p Punch, entry ir.Entry, stage ir.Stage) (*ir.StageRun, error) {
	latest, hasLatest, err := st.ReadLatestStageRun(ctx, entry.EventID, entry.ID, stage.ID)
	if err != nil {
		return nil, fmt.Errorf("read latest stage run: %w", err)
	}

	if hasLatest && latest.RunState == ir.RunStateValid {
		if overridden, err := tryOverride(ctx, st, logger, p, entry, stage, latest); err != nil {
			return nil, err
		} else if overridden != nil {
			return overridden, nil
		}
	}

	run, err := applyStateMachine(ctx, st, logger, p, entry, stage, latest, hasLatest)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, nil
	}

	if run.Status == ir.RunOK {
		return run, nil
	}

	// Still pending with exactly one side missing: attempt cross-chip completion.
	filled, err := tryCrossChipFill(ctx, st, logger, entry, stage, *run)
	if err != nil {
		return nil, err
	}
	if filled != nil {
		return filled, nil
	}
	return run, nil
}

// tryOverride implements the source-priority override: when a valid
// run's corresponding punch (matching p's side) has strictly lower
// priority than p, the valid run is superseded and a fresh attempt is
// created carrying p plus the other side of the superseded run.
func tryOverride(ctx context.Context, st *store.Store, logger *slog.Logger, p Punch, entry ir.Entry, stage ir.Stage, latest ir.StageRun) (*ir.StageRun, error) {
	existingSource, ok := correspondingSource(ctx, st, latest, p.Side)
	if !ok {
		return nil, nil
	}
	if !p.Source.Stronger(existingSource) {
		return nil, nil
	}

	if err := st.SupersedeStageRun(ctx, latest.ID, entry.EventID, mustJSON(ir.RunSupersededPayload{
		EntryID: entry.ID,
		StageID: stage.ID,
		Attempt: latest.Attempt,
		Reason:  string(p.Source) + "_override",
	})); err != nil {
		return nil, fmt.Errorf("supersede stage run: %w", err)
	}

	attempt, err := nextAttempt(ctx, st, entry, stage)
	if err != nil {
		return nil, err
	}

	fresh := ir.StageRun{
		EventID: entry.EventID, EntryID: entry.ID, StageID: stage.ID, Attempt: attempt,
		PenaltySeconds: latest.PenaltySeconds, Status: ir.RunPending, RunState: ir.RunStatePending,
	}
	applyPunchToSide(&fresh, p)
	carryOverOtherSide(&fresh, latest, p.Side)
	finalize(&fresh)

	if err := writeRun(ctx, st, &fresh); err != nil {
		return nil, err
	}
	logger.Info("source override", "event_id", entry.EventID, "entry_id", entry.ID, "stage_id", stage.ID,
		"attempt", attempt, "source", p.Source)
	return &fresh, nil
}

// correspondingSource returns the source of the existing run's punch
// on the same side p represents, so its priority can be compared.
func correspondingSource(ctx context.Context, st *store.Store, run ir.StageRun, side string) (ir.PunchSource, bool) {
	var punchID *int64
	if side == "start" {
		punchID = run.StartPunchID
	} else {
		punchID = run.FinishPunchID
	}
	if punchID == nil {
		return "", false
	}
	src, ok, err := st.ReadPunchSource(ctx, *punchID)
	if err != nil || !ok {
		return "", false
	}
	return src, true
}

// applyStateMachine implements the state table of spec §4.2 when no
// override applies.
func applyStateMachine(ctx context.Context, st *store.Store, logger *slog.Logger, p Punch, entry ir.Entry, stage ir.Stage, latest ir.StageRun, hasLatest bool) (*ir.StageRun, error) {
	if !hasLatest {
		attempt, err := nextAttempt(ctx, st, entry, stage)
		if err != nil {
			return nil, err
		}
		run := ir.StageRun{
			EventID: entry.EventID, EntryID: entry.ID, StageID: stage.ID, Attempt: attempt,
			Status: ir.RunPending, RunState: ir.RunStatePending,
		}
		applyPunchToSide(&run, p)
		if err := writeRun(ctx, st, &run); err != nil {
			return nil, err
		}
		return &run, nil
	}

	switch latest.Status {
	case ir.RunOK:
		if p.Side != "start" {
			return nil, nil // finish after ok: rider must begin a new attempt
		}
		if stage.MaxRuns != nil {
			maxAttempt, err := st.ReadMaxAttempt(ctx, entry.EventID, entry.ID, stage.ID)
			if err != nil {
				return nil, err
			}
			if maxAttempt >= *stage.MaxRuns {
				logger.Warn("max_runs reached, discarding start", "event_id", entry.EventID,
					"entry_id", entry.ID, "stage_id", stage.ID)
				return nil, nil
			}
		}
		attempt, err := nextAttempt(ctx, st, entry, stage)
		if err != nil {
			return nil, err
		}
		run := ir.StageRun{
			EventID: entry.EventID, EntryID: entry.ID, StageID: stage.ID, Attempt: attempt,
			Status: ir.RunPending, RunState: ir.RunStatePending,
		}
		applyPunchToSide(&run, p)
		if err := writeRun(ctx, st, &run); err != nil {
			return nil, err
		}
		return &run, nil

	case ir.RunPending:
		run := latest
		switch {
		case run.StartTime != nil && run.FinishTime == nil && p.Side == "start":
			// keep the LATER of the two starts; stays pending
			if p.Time.After(*run.StartTime) {
				applyPunchToSide(&run, p)
				if err := writeRun(ctx, st, &run); err != nil {
					return nil, err
				}
			}
			return &run, nil

		case run.StartTime == nil && run.FinishTime != nil && p.Side == "start":
			applyPunchToSide(&run, p)
			finalize(&run)
			if err := writeRun(ctx, st, &run); err != nil {
				return nil, err
			}
			return &run, nil

		case run.StartTime != nil && run.FinishTime == nil && p.Side == "finish":
			if p.Time.Before(*run.StartTime) {
				logger.Warn("stale finish discarded", "event_id", entry.EventID,
					"entry_id", entry.ID, "stage_id", stage.ID)
				return nil, nil
			}
			applyPunchToSide(&run, p)
			finalize(&run)
			if err := writeRun(ctx, st, &run); err != nil {
				return nil, err
			}
			return &run, nil

		case run.StartTime == nil && run.FinishTime != nil && p.Side == "finish":
			// keep the LATER finish; still pending
			if p.Time.After(*run.FinishTime) {
				applyPunchToSide(&run, p)
				if err := writeRun(ctx, st, &run); err != nil {
					return nil, err
				}
			}
			return &run, nil

		default:
			return &run, nil
		}

	default: // dns/dnf/dsq terminal runs are immutable to new punches
		return nil, nil
	}
}

// applyPunchToSide records p's punch id/time on the matching side of run.
func applyPunchToSide(run *ir.StageRun, p Punch) {
	t := p.Time
	if p.Side == "start" {
		run.StartPunchID = &p.ID
		run.StartTime = &t
	} else {
		run.FinishPunchID = &p.ID
		run.FinishTime = &t
	}
}

// carryOverOtherSide copies the side of `from` that `side` does NOT
// represent onto `run`, used when an override carries forward the
// superseded run's other punch.
func carryOverOtherSide(run *ir.StageRun, from ir.StageRun, side string) {
	if side == "start" {
		run.FinishPunchID = from.FinishPunchID
		run.FinishTime = from.FinishTime
	} else {
		run.StartPunchID = from.StartPunchID
		run.StartTime = from.StartTime
	}
}

// finalize sets status=ok/run_state=valid and computes elapsed when
// both sides are present and finish >= start.
func finalize(run *ir.StageRun) {
	if run.StartTime == nil || run.FinishTime == nil {
		return
	}
	elapsed := run.FinishTime.Sub(*run.StartTime).Seconds()
	if elapsed < 0 {
		return
	}
	run.ElapsedSeconds = &elapsed
	run.Status = ir.RunOK
	run.RunState = ir.RunStateValid
}

// nextAttempt mirrors _get_next_attempt: max(attempt) over ALL runs
// for (entry, stage), including superseded, plus one. Attempt numbers
// never repeat, even across overrides.
func nextAttempt(ctx context.Context, st *store.Store, entry ir.Entry, stage ir.Stage) (int, error) {
	max, err := st.ReadMaxAttempt(ctx, entry.EventID, entry.ID, stage.ID)
	if err != nil {
		return 0, fmt.Errorf("next attempt: %w", err)
	}
	return max + 1, nil
}

func writeRun(ctx context.Context, st *store.Store, run *ir.StageRun) error {
	return writeRunWithHint(ctx, st, run, "")
}

func writeRunWithHint(ctx context.Context, st *store.Store, run *ir.StageRun, sourceHint string) error {
	kind := ir.JournalKind("")
	payload := ""
	if run.Status == ir.RunOK {
		kind = ir.JournalRunCreated
		payload = mustJSON(ir.RunCreatedPayload{
			EntryID: run.EntryID, StageID: run.StageID, Attempt: run.Attempt,
			Elapsed: *run.ElapsedSeconds, SourceHint: sourceHint,
		})
	}
	id, err := st.WriteStageRunAndJournal(ctx, store.StageRunWrite{Run: *run, JournalKind: kind, JournalPayload: payload})
	if err != nil {
		return fmt.Errorf("write stage run: %w", err)
	}
	run.ID = id
	return nil
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// payload shapes are fixed structs; marshal failure is a programmer error
		panic(fmt.Sprintf("marshal journal payload: %v", err))
	}
	return string(b)
}
