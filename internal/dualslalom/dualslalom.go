// Package dualslalom groups mass-start punches within a time window so
// that riders who left together share one start_time, per spec §4.4.
// Grounded on the original implementation's group_dual_slalom_starts.
package dualslalom

import (
	"context"
	"fmt"

	"github.com/gravitytiming/core/internal/ir"
	"github.com/gravitytiming/core/internal/store"
)

// defaultWindowSeconds mirrors the original's window_seconds default.
const defaultWindowSeconds = 5.0

// GroupStarts groups non-duplicate start punches within windowSeconds
// of one another, rewriting every affected StageRun's start_time (and
// recalculating elapsed_seconds for runs that already have an ok
// finish) to the earliest punch in each group. Groups of size 1 are
// left untouched. Returns the number of groups of 2+ riders formed.
func GroupStarts(ctx context.Context, st *store.Store, eventID int64, windowSeconds float64) (int, error) {
	if windowSeconds <= 0 {
		windowSeconds = defaultWindowSeconds
	}

	startControls, err := st.ReadControlsByType(ctx, eventID, ir.ControlStart)
	if err != nil {
		return 0, fmt.Errorf("dualslalom: read start controls: %w", err)
	}
	if len(startControls) == 0 {
		return 0, nil
	}
	startCodes := make(map[int]bool, len(startControls))
	for _, c := range startControls {
		startCodes[c.Code] = true
	}

	all, err := st.ReadAllPunches(ctx, eventID)
	if err != nil {
		return 0, fmt.Errorf("dualslalom: read punches: %w", err)
	}
	var punches []ir.Punch
	for _, p := range all {
		if startCodes[p.ControlCode] {
			punches = append(punches, p)
		}
	}
	if len(punches) == 0 {
		return 0, nil
	}
	// all (and therefore punches) are already ordered punch_time ASC, id ASC.

	groups := groupByWindow(punches, windowSeconds)

	groupCount := 0
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		groupCount++
		earliest := group[0].PunchTime

		for _, p := range group {
			runs, err := st.ReadStageRunsByStartPunch(ctx, p.ID)
			if err != nil {
				return 0, fmt.Errorf("dualslalom: read affected runs: %w", err)
			}
			for _, run := range runs {
				var newElapsed *float64
				if run.FinishTime != nil && run.Status == ir.RunOK {
					e := run.FinishTime.Sub(earliest).Seconds()
					newElapsed = &e
				}
				if err := st.UpdateStageRunGroupedStart(ctx, run.ID, ir.FormatTimestamp(earliest), newElapsed); err != nil {
					return 0, fmt.Errorf("dualslalom: update grouped start: %w", err)
				}
			}
		}
	}

	return groupCount, nil
}

// groupByWindow partitions chronologically-ordered punches into groups
// where each punch lies within windowSeconds of the group's anchor
// (the group's first/earliest punch), per the original's greedy pass.
func groupByWindow(punches []ir.Punch, windowSeconds float64) [][]ir.Punch {
	var groups [][]ir.Punch
	var current []ir.Punch
	var groupStart ir.Punch
	haveGroup := false

	for _, p := range punches {
		if !haveGroup || p.PunchTime.Sub(groupStart.PunchTime).Seconds() > windowSeconds {
			if len(current) > 0 {
				groups = append(groups, current)
			}
			current = []ir.Punch{p}
			groupStart = p
			haveGroup = true
		} else {
			current = append(current, p)
		}
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}
