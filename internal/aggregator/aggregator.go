// Package aggregator computes per-entry overall results and per-class
// rankings, per spec §4.3. Grounded on the original implementation's
// calculate_overall_results/_calc_entry_total/_calc_enduro/
// _get_stage_counting_time/_calc_downhill/_calculate_rankings.
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/gravitytiming/core/internal/ir"
	"github.com/gravitytiming/core/internal/store"
)

// Recalculate recomputes OverallResult for every entry in the event,
// then assigns per-class rankings. It is idempotent and safe to call
// after every punch, or in bulk during recompute.
func Recalculate(ctx context.Context, st *store.Store, eventID int64) error {
	event, err := st.ReadEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("aggregator: read event: %w", err)
	}

	entries, err := st.ReadAllEntries(ctx, eventID)
	if err != nil {
		return fmt.Errorf("aggregator: read entries: %w", err)
	}

	for _, entry := range entries {
		timedStages, err := entryTimedStages(ctx, st, eventID, entry)
		if err != nil {
			return fmt.Errorf("aggregator: timed stages for entry %d: %w", entry.ID, err)
		}

		total, status, err := calcEntryTotal(ctx, st, event, entry, timedStages)
		if err != nil {
			return fmt.Errorf("aggregator: entry total for entry %d: %w", entry.ID, err)
		}

		if err := st.WriteOverallResult(ctx, ir.OverallResult{
			EventID: eventID, EntryID: entry.ID, TotalSeconds: total, Status: status,
		}); err != nil {
			return fmt.Errorf("aggregator: write overall result: %w", err)
		}
	}

	return assignRankings(ctx, st, eventID, event.TieBreakMode, entries)
}

// entryTimedStages resolves the stages relevant to an entry via its
// class → course → course_stages linkage, falling back to every timed
// stage in the event when the class's course has no timed stages linked.
func entryTimedStages(ctx context.Context, st *store.Store, eventID int64, entry ir.Entry) ([]ir.Stage, error) {
	class, err := st.ReadClass(ctx, entry.ClassID)
	if err == nil {
		stages, err := st.ReadCourseStages(ctx, class.CourseID)
		if err != nil {
			return nil, err
		}
		timed := stages[:0]
		for _, s := range stages {
			if s.IsTimed {
				timed = append(timed, s)
			}
		}
		if len(timed) > 0 {
			return timed, nil
		}
	}

	stages, err := st.ReadStages(ctx, eventID)
	if err != nil {
		return nil, err
	}
	timed := stages[:0]
	for _, s := range stages {
		if s.IsTimed {
			timed = append(timed, s)
		}
	}
	return timed, nil
}

// calcEntryTotal dispatches by event format, per _calc_entry_total.
// An entry-level terminal status (dns/dnf/dsq, spec §3) overrides
// whatever the stage runs would otherwise compute — set once a
// competitor withdraws or is disqualified, it takes precedence
// regardless of any later punches recorded for them (spec §9).
func calcEntryTotal(ctx context.Context, st *store.Store, event ir.Event, entry ir.Entry, timedStages []ir.Stage) (*float64, ir.RunStatus, error) {
	switch entry.Status {
	case ir.EntryDNS:
		return nil, ir.RunDNS, nil
	case ir.EntryDNF:
		return nil, ir.RunDNF, nil
	case ir.EntryDSQ:
		return nil, ir.RunDSQ, nil
	}

	switch event.Format {
	case ir.FormatDownhill, ir.FormatDualSlalom:
		return calcBestSingle(ctx, st, event.ID, entry.ID, timedStages)
	case ir.FormatEnduro, ir.FormatXC:
		return calcMultiRunSum(ctx, st, event.ID, entry.ID, timedStages)
	default:
		// custom/festival formats fall back to the multi-run-aware sum.
		slog.Warn("aggregator: unrecognized event format, using multi-run sum",
			"event_id", event.ID, "format", string(event.Format))
		return calcMultiRunSum(ctx, st, event.ID, entry.ID, timedStages)
	}
}

// calcMultiRunSum sums each stage's counting time (best single attempt
// when runs_to_count==1, else sum of the best N), mirroring _calc_enduro.
func calcMultiRunSum(ctx context.Context, st *store.Store, eventID, entryID int64, timedStages []ir.Stage) (*float64, ir.RunStatus, error) {
	total := 0.0
	allOK := true
	anyResult := false

	for _, stage := range timedStages {
		runsToCount := stage.RunsToCount
		if runsToCount < 1 {
			runsToCount = 1
		}

		stageTime, err := stageCountingTime(ctx, st, eventID, entryID, stage.ID, runsToCount)
		if err != nil {
			return nil, "", err
		}

		if stageTime == nil {
			first, found, err := st.ReadFirstStageRunForStage(ctx, eventID, entryID, stage.ID)
			if err != nil {
				return nil, "", err
			}
			if found {
				switch first.Status {
				case ir.RunDNS:
					return nil, ir.RunDNS, nil
				case ir.RunDNF:
					return nil, ir.RunDNF, nil
				case ir.RunDSQ:
					return nil, ir.RunDSQ, nil
				}
			}
			allOK = false
			continue
		}

		total += *stageTime
		anyResult = true
	}

	if !anyResult {
		return nil, ir.RunPending, nil
	}
	if allOK {
		return &total, ir.RunOK, nil
	}
	return &total, ir.RunPending, nil
}

// StageCountingTime exposes stageCountingTime for callers outside the
// package (CSV export's per-stage column), so the counting-time rule
// lives in exactly one place.
func StageCountingTime(ctx context.Context, st *store.Store, eventID, entryID, stageID int64, runsToCount int) (*float64, error) {
	return stageCountingTime(ctx, st, eventID, entryID, stageID, runsToCount)
}

// stageCountingTime returns the best runsToCount attempts' elapsed+penalty
// summed, or nil if there aren't yet enough OK attempts, per
// _get_stage_counting_time.
func stageCountingTime(ctx context.Context, st *store.Store, eventID, entryID, stageID int64, runsToCount int) (*float64, error) {
	runs, err := st.ReadValidStageRuns(ctx, eventID, entryID, stageID)
	if err != nil {
		return nil, err
	}
	ok := runs[:0]
	for _, r := range runs {
		if r.Status == ir.RunOK && r.ElapsedSeconds != nil {
			ok = append(ok, r)
		}
	}
	if len(ok) == 0 {
		return nil, nil
	}
	sort.Slice(ok, func(i, j int) bool { return ok[i].CountingSeconds() < ok[j].CountingSeconds() })

	if runsToCount <= 1 {
		t := ok[0].CountingSeconds()
		return &t, nil
	}
	if len(ok) < runsToCount {
		return nil, nil
	}
	total := 0.0
	for _, r := range ok[:runsToCount] {
		total += r.CountingSeconds()
	}
	return &total, nil
}

// calcBestSingle takes the single best attempt on the event's one
// timed stage, for downhill/dual_slalom formats.
func calcBestSingle(ctx context.Context, st *store.Store, eventID, entryID int64, timedStages []ir.Stage) (*float64, ir.RunStatus, error) {
	if len(timedStages) == 0 {
		return nil, ir.RunPending, nil
	}
	stage := timedStages[0]

	runs, err := st.ReadValidStageRuns(ctx, eventID, entryID, stage.ID)
	if err != nil {
		return nil, "", err
	}
	var best *float64
	for _, r := range runs {
		if r.Status != ir.RunOK || r.ElapsedSeconds == nil {
			continue
		}
		c := r.CountingSeconds()
		if best == nil || c < *best {
			best = &c
		}
	}
	if best == nil {
		return nil, ir.RunPending, nil
	}
	return best, ir.RunOK, nil
}

// assignRankings gives each class's OK entries a position by ascending
// total_seconds, and time_behind relative to the class leader (0 for
// the leader itself); non-OK entries get a nil position. Positions are
// sequential unless tieMode is ir.TieBreakTied, in which case an entry
// whose total equals the previous entry's shares its position (1, 1, 3).
func assignRankings(ctx context.Context, st *store.Store, eventID int64, tieMode ir.TieBreakMode, entries []ir.Entry) error {
	byClass := map[int64][]ir.Entry{}
	for _, e := range entries {
		byClass[e.ClassID] = append(byClass[e.ClassID], e)
	}

	for _, classEntries := range byClass {
		type scored struct {
			entry  ir.Entry
			result ir.OverallResult
		}
		var scoredEntries []scored
		for _, e := range classEntries {
			r, found, err := st.ReadOverallResult(ctx, eventID, e.ID)
			if err != nil {
				return fmt.Errorf("aggregator: read overall result for ranking: %w", err)
			}
			if !found {
				continue
			}
			scoredEntries = append(scoredEntries, scored{entry: e, result: r})
		}

		sort.SliceStable(scoredEntries, func(i, j int) bool {
			oi, oj := scoredEntries[i].result, scoredEntries[j].result
			ri, rj := statusRank(oi.Status), statusRank(oj.Status)
			if ri != rj {
				return ri < rj
			}
			if oi.TotalSeconds == nil || oj.TotalSeconds == nil {
				return false
			}
			return *oi.TotalSeconds < *oj.TotalSeconds
		})

		pos, prevPos := 0, 0
		var leaderTime, prevTotal *float64
		for _, se := range scoredEntries {
			r := se.result
			if r.Status == ir.RunOK && r.TotalSeconds != nil {
				pos++
				if leaderTime == nil {
					leaderTime = r.TotalSeconds
				}
				behind := *r.TotalSeconds - *leaderTime
				p := pos
				if tieMode == ir.TieBreakTied && prevTotal != nil && *r.TotalSeconds == *prevTotal {
					p = prevPos
				}
				prevTotal, prevPos = r.TotalSeconds, p
				r.Position = &p
				r.TimeBehind = &behind
			} else {
				r.Position = nil
				r.TimeBehind = nil
			}
			if err := st.WriteOverallResult(ctx, r); err != nil {
				return fmt.Errorf("aggregator: write ranked result: %w", err)
			}
		}
	}
	return nil
}

// statusRank orders ok before pending before everything else (dns/dnf/dsq).
func statusRank(s ir.RunStatus) int {
	switch s {
	case ir.RunOK:
		return 0
	case ir.RunPending:
		return 1
	default:
		return 2
	}
}
