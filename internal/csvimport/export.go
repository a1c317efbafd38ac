package csvimport

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/gravitytiming/core/internal/aggregator"
	"github.com/gravitytiming/core/internal/ir"
	"github.com/gravitytiming/core/internal/store"
)

func newSemicolonWriter(w io.Writer) *csv.Writer {
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	return cw
}

// ExportStageResults writes one stage's results as
// Pos;BIB;Namn;Klubb;Klass;Åk;Tid;Diff;Status, mirroring
// export_stage_results_csv. attemptFilter of 0 exports every attempt
// (ordered attempt-then-ok-first-then-elapsed); a positive value
// exports only that attempt (ordered ok-first-then-elapsed). Only
// status=ok rows get a sequential position and leader-relative diff.
func ExportStageResults(ctx context.Context, st *store.Store, eventID, stageID int64, w io.Writer, precision ir.TimePrecision, attemptFilter int) (int, error) {
	runs, err := st.ReadValidStageRunsForStage(ctx, eventID, stageID)
	if err != nil {
		return 0, fmt.Errorf("export stage results: %w", err)
	}
	if attemptFilter > 0 {
		filtered := runs[:0]
		for _, r := range runs {
			if r.Attempt == attemptFilter {
				filtered = append(filtered, r)
			}
		}
		runs = filtered
	}

	sort.SliceStable(runs, func(i, j int) bool {
		if attemptFilter == 0 && runs[i].Attempt != runs[j].Attempt {
			return runs[i].Attempt < runs[j].Attempt
		}
		oi, oj := runs[i].Status == ir.RunOK, runs[j].Status == ir.RunOK
		if oi != oj {
			return oi
		}
		if oi && runs[i].ElapsedSeconds != nil && runs[j].ElapsedSeconds != nil {
			return *runs[i].ElapsedSeconds < *runs[j].ElapsedSeconds
		}
		return false
	})

	cw := newSemicolonWriter(w)
	defer cw.Flush()
	if err := cw.Write([]string{"Pos", "BIB", "Namn", "Klubb", "Klass", "Åk", "Tid", "Diff", "Status"}); err != nil {
		return 0, fmt.Errorf("export stage results: header: %w", err)
	}

	count := 0
	pos := 0
	var leaderTime *float64
	for _, r := range runs {
		entry, club, className, err := entryDisplay(ctx, st, r.EntryID)
		if err != nil {
			return count, fmt.Errorf("export stage results: %w", err)
		}

		row := make([]string, 9)
		row[1] = strconv.Itoa(entry.Bib)
		row[2] = entry.FirstName + " " + entry.LastName
		row[3] = club
		row[4] = className
		row[5] = strconv.Itoa(r.Attempt)
		row[8] = string(r.Status)

		if r.Status == ir.RunOK && r.ElapsedSeconds != nil {
			pos++
			if leaderTime == nil {
				leaderTime = r.ElapsedSeconds
			}
			diff := *r.ElapsedSeconds - *leaderTime
			row[0] = strconv.Itoa(pos)
			row[6] = ir.FormatElapsed(*r.ElapsedSeconds, precision)
			row[7] = ir.FormatTimeBehind(&diff, precision)
		}

		if err := cw.Write(row); err != nil {
			return count, fmt.Errorf("export stage results: write row: %w", err)
		}
		count++
	}
	if err := cw.Error(); err != nil {
		return count, fmt.Errorf("export stage results: flush: %w", err)
	}
	return count, nil
}

// ExportOverallResults writes the overall-results CSV with one column
// per timed stage appended after the fixed columns, mirroring
// export_overall_results_csv. Position and leader time reset whenever
// the class name changes.
func ExportOverallResults(ctx context.Context, st *store.Store, eventID int64, w io.Writer, precision ir.TimePrecision) (int, error) {
	results, err := st.ReadAllOverallResults(ctx, eventID)
	if err != nil {
		return 0, fmt.Errorf("export overall results: %w", err)
	}

	type row struct {
		result    ir.OverallResult
		entry     ir.Entry
		club      string
		className string
	}
	rows := make([]row, 0, len(results))
	for _, r := range results {
		entry, club, className, err := entryDisplay(ctx, st, r.EntryID)
		if err != nil {
			return 0, fmt.Errorf("export overall results: %w", err)
		}
		rows = append(rows, row{result: r, entry: entry, club: club, className: className})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].className != rows[j].className {
			return rows[i].className < rows[j].className
		}
		oi, oj := rows[i].result.Status == ir.RunOK, rows[j].result.Status == ir.RunOK
		if oi != oj {
			return oi
		}
		if oi && rows[i].result.TotalSeconds != nil && rows[j].result.TotalSeconds != nil {
			return *rows[i].result.TotalSeconds < *rows[j].result.TotalSeconds
		}
		return false
	})

	allStages, err := st.ReadStages(ctx, eventID)
	if err != nil {
		return 0, fmt.Errorf("export overall results: %w", err)
	}
	stages := allStages[:0]
	for _, s := range allStages {
		if s.IsTimed {
			stages = append(stages, s)
		}
	}

	header := []string{"Pos", "BIB", "Namn", "Klubb", "Klass", "Total", "Diff", "Status"}
	for _, s := range stages {
		runsToCount := s.RunsToCount
		if runsToCount < 1 {
			runsToCount = 1
		}
		if runsToCount > 1 {
			header = append(header, fmt.Sprintf("Stage %d (bästa %d)", s.StageNumber, runsToCount))
		} else {
			header = append(header, fmt.Sprintf("Stage %d", s.StageNumber))
		}
	}

	cw := newSemicolonWriter(w)
	defer cw.Flush()
	if err := cw.Write(header); err != nil {
		return 0, fmt.Errorf("export overall results: header: %w", err)
	}

	count := 0
	currentClass := ""
	pos := 0
	var leaderTime *float64
	for _, r := range rows {
		if r.className != currentClass {
			currentClass = r.className
			pos = 0
			leaderTime = nil
		}

		out := make([]string, 0, len(header))
		if r.result.Status == ir.RunOK && r.result.TotalSeconds != nil {
			pos++
			if leaderTime == nil {
				leaderTime = r.result.TotalSeconds
			}
			diff := *r.result.TotalSeconds - *leaderTime
			out = append(out, strconv.Itoa(pos), strconv.Itoa(r.entry.Bib),
				r.entry.FirstName+" "+r.entry.LastName, r.club, r.className,
				ir.FormatElapsed(*r.result.TotalSeconds, precision), ir.FormatTimeBehind(&diff, precision),
				string(r.result.Status))
		} else {
			out = append(out, "", strconv.Itoa(r.entry.Bib),
				r.entry.FirstName+" "+r.entry.LastName, r.club, r.className,
				"", "", string(r.result.Status))
		}

		for _, s := range stages {
			runsToCount := s.RunsToCount
			if runsToCount < 1 {
				runsToCount = 1
			}
			stageTime, err := aggregator.StageCountingTime(ctx, st, eventID, r.entry.ID, s.ID, runsToCount)
			if err != nil {
				return count, fmt.Errorf("export overall results: stage counting time: %w", err)
			}
			if stageTime != nil {
				out = append(out, ir.FormatElapsed(*stageTime, precision))
				continue
			}
			first, found, err := st.ReadFirstStageRunForStage(ctx, eventID, r.entry.ID, s.ID)
			if err != nil {
				return count, fmt.Errorf("export overall results: first stage run: %w", err)
			}
			if found {
				out = append(out, string(first.Status))
			} else {
				out = append(out, "")
			}
		}

		if err := cw.Write(out); err != nil {
			return count, fmt.Errorf("export overall results: write row: %w", err)
		}
		count++
	}
	if err := cw.Error(); err != nil {
		return count, fmt.Errorf("export overall results: flush: %w", err)
	}
	return count, nil
}

// entryDisplay resolves an entry's bib/name/club plus its class name.
func entryDisplay(ctx context.Context, st *store.Store, entryID int64) (ir.Entry, string, string, error) {
	entry, found, err := st.ReadEntry(ctx, entryID)
	if err != nil {
		return ir.Entry{}, "", "", fmt.Errorf("read entry %d: %w", entryID, err)
	}
	if !found {
		return ir.Entry{}, "", "", fmt.Errorf("entry %d not found", entryID)
	}
	class, err := st.ReadClass(ctx, entry.ClassID)
	if err != nil {
		return ir.Entry{}, "", "", fmt.Errorf("read class %d: %w", entry.ClassID, err)
	}
	return entry, entry.Club, class.Name, nil
}
