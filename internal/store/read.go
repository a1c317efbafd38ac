package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gravitytiming/core/internal/ir"
)

// ReadEvent retrieves a single Event by id. Returns sql.ErrNoRows if absent.
func (s *Store) ReadEvent(ctx context.Context, id int64) (ir.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, date, location, format, stage_order, time_precision,
		       status, dual_slalom_window, upstream_competition_id, tie_break_mode,
		       created_at, updated_at
		FROM events WHERE id=?
	`, id)
	return scanEvent(row)
}

func scanEvent(row *sql.Row) (ir.Event, error) {
	var e ir.Event
	var format, stageOrder, precision, status, tieBreak string
	var location, upstreamID sql.NullString
	var window sql.NullFloat64
	if err := row.Scan(&e.ID, &e.Name, &e.Date, &location, &format, &stageOrder,
		&precision, &status, &window, &upstreamID, &tieBreak, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return ir.Event{}, err
	}
	e.Location = location.String
	e.Format = ir.Format(format)
	e.StageOrder = ir.StageOrder(stageOrder)
	e.TimePrecision = ir.TimePrecision(precision)
	e.Status = ir.EventStatus(status)
	e.TieBreakMode = ir.TieBreakMode(tieBreak)
	e.UpstreamCompID = upstreamID.String
	if window.Valid {
		e.DualSlalomWindowSec = &window.Float64
	}
	return e, nil
}

// ReadStages returns all Stages for an event ordered by stage_number.
func (s *Store) ReadStages(ctx context.Context, eventID int64) ([]ir.Stage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, stage_number, name, start_control_id, finish_control_id,
		       is_timed, runs_to_count, max_runs
		FROM stages WHERE event_id=? ORDER BY stage_number ASC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("read stages: %w", err)
	}
	defer rows.Close()

	stages := []ir.Stage{}
	for rows.Next() {
		var st ir.Stage
		var maxRuns sql.NullInt64
		if err := rows.Scan(&st.ID, &st.EventID, &st.StageNumber, &st.Name,
			&st.StartControlID, &st.FinishControlID, &st.IsTimed, &st.RunsToCount, &maxRuns); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		if maxRuns.Valid {
			v := int(maxRuns.Int64)
			st.MaxRuns = &v
		}
		stages = append(stages, st)
	}
	return stages, rows.Err()
}

// ReadStageForControl finds the Stage for which the given control code
// is the start or finish control, returning the side ("start"/"finish").
func (s *Store) ReadStageForControl(ctx context.Context, eventID int64, controlCode int) (st ir.Stage, side string, found bool, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.event_id, s.stage_number, s.name, s.start_control_id, s.finish_control_id,
		       s.is_timed, s.runs_to_count, s.max_runs,
		       CASE WHEN c.id = s.start_control_id THEN 'start' ELSE 'finish' END
		FROM stages s
		JOIN controls c ON c.event_id = s.event_id AND c.code = ?
		WHERE s.event_id = ? AND (c.id = s.start_control_id OR c.id = s.finish_control_id)
	`, controlCode, eventID)

	var maxRuns sql.NullInt64
	err = row.Scan(&st.ID, &st.EventID, &st.StageNumber, &st.Name, &st.StartControlID,
		&st.FinishControlID, &st.IsTimed, &st.RunsToCount, &maxRuns, &side)
	if err == sql.ErrNoRows {
		return ir.Stage{}, "", false, nil
	}
	if err != nil {
		return ir.Stage{}, "", false, fmt.Errorf("read stage for control: %w", err)
	}
	if maxRuns.Valid {
		v := int(maxRuns.Int64)
		st.MaxRuns = &v
	}
	return st, side, true, nil
}

// ReadEntryByChip resolves a chip id to its bib-equivalent Entry.
func (s *Store) ReadEntryByChip(ctx context.Context, eventID, chipID int64) (ir.Entry, bool, error) {
	var bib int
	err := s.db.QueryRowContext(ctx, `SELECT bib FROM chip_mappings WHERE event_id=? AND chip_id=?`, eventID, chipID).Scan(&bib)
	if err == sql.ErrNoRows {
		return ir.Entry{}, false, nil
	}
	if err != nil {
		return ir.Entry{}, false, fmt.Errorf("read entry by chip: lookup bib: %w", err)
	}
	return s.ReadEntryByBib(ctx, eventID, bib)
}

// ReadEntryByBib reads the Entry for (event, bib).
func (s *Store) ReadEntryByBib(ctx context.Context, eventID int64, bib int) (ir.Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, event_id, bib, first_name, last_name, club, class_id, status
		FROM entries WHERE event_id=? AND bib=?
	`, eventID, bib)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return ir.Entry{}, false, nil
	}
	if err != nil {
		return ir.Entry{}, false, fmt.Errorf("read entry by bib: %w", err)
	}
	return e, true, nil
}

func scanEntry(row *sql.Row) (ir.Entry, error) {
	var e ir.Entry
	var club sql.NullString
	var status string
	if err := row.Scan(&e.ID, &e.EventID, &e.Bib, &e.FirstName, &e.LastName, &club, &e.ClassID, &status); err != nil {
		return ir.Entry{}, err
	}
	e.Club = club.String
	e.Status = ir.EntryStatus(status)
	return e, nil
}

// ReadChipMappingsForBib returns every chip mapped to a bib (primary
// and secondary), needed by cross-chip completion.
func (s *Store) ReadChipMappingsForBib(ctx context.Context, eventID int64, bib int) ([]ir.ChipMapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, bib, chip_id, is_primary
		FROM chip_mappings WHERE event_id=? AND bib=?
		ORDER BY is_primary DESC, chip_id ASC
	`, eventID, bib)
	if err != nil {
		return nil, fmt.Errorf("read chip mappings: %w", err)
	}
	defer rows.Close()

	mappings := []ir.ChipMapping{}
	for rows.Next() {
		var m ir.ChipMapping
		if err := rows.Scan(&m.ID, &m.EventID, &m.Bib, &m.ChipID, &m.IsPrimary); err != nil {
			return nil, fmt.Errorf("scan chip mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// ReadRecentPunchesForControl returns every non-duplicate punch by one
// chip on a control code, used by Ingest's duplicate check (which
// applies the dedup window itself).
func (s *Store) ReadRecentPunchesForControl(ctx context.Context, eventID int64, controlCode int, chipID int64) ([]ir.Punch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, chip_id, control_code, punch_time, source, upstream_id, is_duplicate, received_at
		FROM punches
		WHERE event_id=? AND control_code=? AND chip_id=? AND is_duplicate=0
		ORDER BY punch_time ASC, id ASC
	`, eventID, controlCode, chipID)
	if err != nil {
		return nil, fmt.Errorf("read recent punches: %w", err)
	}
	defer rows.Close()
	return scanPunches(rows)
}

// ReadPunchesForChips returns all non-duplicate punches for any of the
// given chip ids on a control code, used by cross-chip completion.
func (s *Store) ReadPunchesForChips(ctx context.Context, eventID int64, controlCode int, chipIDs []int64) ([]ir.Punch, error) {
	if len(chipIDs) == 0 {
		return []ir.Punch{}, nil
	}
	placeholders, args := buildInClause(chipIDs)
	args = append([]any{eventID, controlCode}, args...)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, chip_id, control_code, punch_time, source, upstream_id, is_duplicate, received_at
		FROM punches
		WHERE event_id=? AND control_code=? AND chip_id IN (`+placeholders+`) AND is_duplicate=0
		ORDER BY punch_time ASC, id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("read punches for chips: %w", err)
	}
	defer rows.Close()
	return scanPunches(rows)
}

// ReadAllPunches returns every non-duplicate punch for an event in
// canonical replay order (punch_time ASC, id ASC).
func (s *Store) ReadAllPunches(ctx context.Context, eventID int64) ([]ir.Punch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, chip_id, control_code, punch_time, source, upstream_id, is_duplicate, received_at
		FROM punches
		WHERE event_id=? AND is_duplicate=0
		ORDER BY punch_time ASC, id ASC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("read all punches: %w", err)
	}
	defer rows.Close()
	return scanPunches(rows)
}

// ExistsPunchByUpstreamID reports whether a punch with the given
// source and upstream id already exists for an event, used by ROC
// punch-file import to dedup across repeated imports of overlapping files.
func (s *Store) ExistsPunchByUpstreamID(ctx context.Context, eventID int64, source ir.PunchSource, upstreamID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM punches WHERE event_id=? AND source=? AND upstream_id=? LIMIT 1
	`, eventID, string(source), upstreamID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists punch by upstream id: %w", err)
	}
	return true, nil
}

// ReadPunchSource returns the source of a single punch by id, used by
// the Assembler's source-priority override check.
func (s *Store) ReadPunchSource(ctx context.Context, punchID int64) (ir.PunchSource, bool, error) {
	var source string
	err := s.db.QueryRowContext(ctx, `SELECT source FROM punches WHERE id=?`, punchID).Scan(&source)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read punch source: %w", err)
	}
	return ir.PunchSource(source), true, nil
}

// ReadPunch returns a single punch by id, used by the Assembler's
// cross-chip completion to learn which chip an existing side came from.
func (s *Store) ReadPunch(ctx context.Context, punchID int64) (ir.Punch, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, event_id, chip_id, control_code, punch_time, source, upstream_id, is_duplicate, received_at
		FROM punches WHERE id=?
	`, punchID)
	var p ir.Punch
	var punchTimeStr, source string
	var upstreamID sql.NullInt64
	err := row.Scan(&p.ID, &p.EventID, &p.ChipID, &p.ControlCode, &punchTimeStr,
		&source, &upstreamID, &p.IsDuplicate, &p.ReceivedAt)
	if err == sql.ErrNoRows {
		return ir.Punch{}, false, nil
	}
	if err != nil {
		return ir.Punch{}, false, fmt.Errorf("read punch: %w", err)
	}
	t, err := ir.ParseTimestamp(punchTimeStr)
	if err != nil {
		return ir.Punch{}, false, err
	}
	p.PunchTime = t
	p.Source = ir.PunchSource(source)
	if upstreamID.Valid {
		p.UpstreamID = &upstreamID.Int64
	}
	return p, true, nil
}

func scanPunches(rows *sql.Rows) ([]ir.Punch, error) {
	punches := []ir.Punch{}
	for rows.Next() {
		p, err := scanPunchRow(rows)
		if err != nil {
			return nil, err
		}
		punches = append(punches, p)
	}
	return punches, rows.Err()
}

func scanPunchRow(rows *sql.Rows) (ir.Punch, error) {
	var p ir.Punch
	var punchTimeStr, source string
	var upstreamID sql.NullInt64
	if err := rows.Scan(&p.ID, &p.EventID, &p.ChipID, &p.ControlCode, &punchTimeStr,
		&source, &upstreamID, &p.IsDuplicate, &p.ReceivedAt); err != nil {
		return ir.Punch{}, fmt.Errorf("scan punch: %w", err)
	}
	t, err := ir.ParseTimestamp(punchTimeStr)
	if err != nil {
		return ir.Punch{}, err
	}
	p.PunchTime = t
	p.Source = ir.PunchSource(source)
	if upstreamID.Valid {
		p.UpstreamID = &upstreamID.Int64
	}
	return p, nil
}

// ReadLatestStageRun returns the most recent non-superseded StageRun
// for (event, entry, stage), i.e. the Assembler's "latest" reference.
func (s *Store) ReadLatestStageRun(ctx context.Context, eventID, entryID, stageID int64) (ir.StageRun, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, event_id, entry_id, stage_id, attempt, start_punch_id, finish_punch_id,
		       start_time, finish_time, elapsed_seconds, status, run_state, penalty_seconds
		FROM stage_runs
		WHERE event_id=? AND entry_id=? AND stage_id=? AND run_state != 'superseded'
		ORDER BY attempt DESC LIMIT 1
	`, eventID, entryID, stageID)
	r, err := scanStageRunRow(row)
	if err == sql.ErrNoRows {
		return ir.StageRun{}, false, nil
	}
	if err != nil {
		return ir.StageRun{}, false, fmt.Errorf("read latest stage run: %w", err)
	}
	return r, true, nil
}

// ReadMaxAttempt returns the highest attempt number recorded for
// (event, entry, stage) across ALL runs, including superseded ones.
func (s *Store) ReadMaxAttempt(ctx context.Context, eventID, entryID, stageID int64) (int, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(attempt) FROM stage_runs WHERE event_id=? AND entry_id=? AND stage_id=?
	`, eventID, entryID, stageID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("read max attempt: %w", err)
	}
	return int(max.Int64), nil
}

// ReadValidStageRuns returns every run_state=valid StageRun for
// (event, entry, stage), used for per-stage counting-time selection.
func (s *Store) ReadValidStageRuns(ctx context.Context, eventID, entryID, stageID int64) ([]ir.StageRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, entry_id, stage_id, attempt, start_punch_id, finish_punch_id,
		       start_time, finish_time, elapsed_seconds, status, run_state, penalty_seconds
		FROM stage_runs
		WHERE event_id=? AND entry_id=? AND stage_id=? AND run_state='valid'
		ORDER BY attempt ASC
	`, eventID, entryID, stageID)
	if err != nil {
		return nil, fmt.Errorf("read valid stage runs: %w", err)
	}
	defer rows.Close()
	return scanStageRuns(rows)
}

// ReadValidStageRunsForStage returns every run_state=valid StageRun for
// a stage across all entries, used by stage-results CSV export.
func (s *Store) ReadValidStageRunsForStage(ctx context.Context, eventID, stageID int64) ([]ir.StageRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, entry_id, stage_id, attempt, start_punch_id, finish_punch_id,
		       start_time, finish_time, elapsed_seconds, status, run_state, penalty_seconds
		FROM stage_runs
		WHERE event_id=? AND stage_id=? AND run_state='valid'
		ORDER BY attempt ASC, entry_id ASC
	`, eventID, stageID)
	if err != nil {
		return nil, fmt.Errorf("read valid stage runs for stage: %w", err)
	}
	defer rows.Close()
	return scanStageRuns(rows)
}

// ReadValidStageRunsForEvent returns every run_state=valid StageRun in
// the event, used by bulk recompute to snapshot results before/after replay.
func (s *Store) ReadValidStageRunsForEvent(ctx context.Context, eventID int64) ([]ir.StageRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, entry_id, stage_id, attempt, start_punch_id, finish_punch_id,
		       start_time, finish_time, elapsed_seconds, status, run_state, penalty_seconds
		FROM stage_runs
		WHERE event_id=? AND run_state='valid'
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("read valid stage runs for event: %w", err)
	}
	defer rows.Close()
	return scanStageRuns(rows)
}

// ReadAllOverallResults returns every OverallResult row for an event,
// used by bulk recompute to snapshot results before/after replay.
func (s *Store) ReadAllOverallResults(ctx context.Context, eventID int64) ([]ir.OverallResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, entry_id, total_seconds, position, time_behind, status, updated_at
		FROM overall_results WHERE event_id=?
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("read all overall results: %w", err)
	}
	defer rows.Close()

	results := []ir.OverallResult{}
	for rows.Next() {
		var r ir.OverallResult
		var total, behind sql.NullFloat64
		var position sql.NullInt64
		var status string
		if err := rows.Scan(&r.ID, &r.EventID, &r.EntryID, &total, &position, &behind, &status, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan overall result: %w", err)
		}
		r.Status = ir.RunStatus(status)
		if total.Valid {
			r.TotalSeconds = &total.Float64
		}
		if position.Valid {
			v := int(position.Int64)
			r.Position = &v
		}
		if behind.Valid {
			r.TimeBehind = &behind.Float64
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ReadFirstStageRunForStage returns the lowest-attempt non-superseded
// StageRun for (event, entry, stage), used to check entry-level
// terminal status from "attempt 1" per spec §9.
func (s *Store) ReadFirstStageRunForStage(ctx context.Context, eventID, entryID, stageID int64) (ir.StageRun, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, event_id, entry_id, stage_id, attempt, start_punch_id, finish_punch_id,
		       start_time, finish_time, elapsed_seconds, status, run_state, penalty_seconds
		FROM stage_runs
		WHERE event_id=? AND entry_id=? AND stage_id=? AND run_state != 'superseded'
		ORDER BY attempt ASC LIMIT 1
	`, eventID, entryID, stageID)
	r, err := scanStageRunRow(row)
	if err == sql.ErrNoRows {
		return ir.StageRun{}, false, nil
	}
	if err != nil {
		return ir.StageRun{}, false, fmt.Errorf("read first stage run: %w", err)
	}
	return r, true, nil
}

// ReadStageRunsByStartPunch returns every StageRun whose start_punch_id
// matches, used by dual-slalom mass-start grouping to find every run
// that needs its start_time pulled back to the group's earliest punch.
func (s *Store) ReadStageRunsByStartPunch(ctx context.Context, punchID int64) ([]ir.StageRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, entry_id, stage_id, attempt, start_punch_id, finish_punch_id,
		       start_time, finish_time, elapsed_seconds, status, run_state, penalty_seconds
		FROM stage_runs WHERE start_punch_id=?
	`, punchID)
	if err != nil {
		return nil, fmt.Errorf("read stage runs by start punch: %w", err)
	}
	defer rows.Close()
	return scanStageRuns(rows)
}

// ReadStageLeader returns the entry id and elapsed time of the fastest
// valid+ok StageRun on a stage, across all entries, used by the
// observer's highlight generation.
func (s *Store) ReadStageLeader(ctx context.Context, eventID, stageID int64) (entryID int64, elapsed float64, found bool, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT entry_id, elapsed_seconds FROM stage_runs
		WHERE event_id=? AND stage_id=? AND status='ok' AND run_state='valid'
		ORDER BY elapsed_seconds ASC LIMIT 1
	`, eventID, stageID).Scan(&entryID, &elapsed)
	if err == sql.ErrNoRows {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("read stage leader: %w", err)
	}
	return entryID, elapsed, true, nil
}

// CountOtherOKResultsForStage counts OK+valid StageRuns on a stage
// belonging to entries other than excludeEntryID, used to decide
// whether a new leader actually beat anyone.
func (s *Store) CountOtherOKResultsForStage(ctx context.Context, eventID, stageID, excludeEntryID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM stage_runs
		WHERE event_id=? AND stage_id=? AND status='ok' AND run_state='valid' AND entry_id != ?
	`, eventID, stageID, excludeEntryID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count other ok results: %w", err)
	}
	return count, nil
}

// ReadBestStageRunForEntry returns an entry's fastest OK+valid attempt
// on a stage (the "entry's own result" used for highlight comparisons).
func (s *Store) ReadBestStageRunForEntry(ctx context.Context, eventID, entryID, stageID int64) (ir.StageRun, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, event_id, entry_id, stage_id, attempt, start_punch_id, finish_punch_id,
		       start_time, finish_time, elapsed_seconds, status, run_state, penalty_seconds
		FROM stage_runs
		WHERE event_id=? AND entry_id=? AND stage_id=? AND status='ok' AND run_state='valid'
		ORDER BY elapsed_seconds ASC LIMIT 1
	`, eventID, entryID, stageID)
	r, err := scanStageRunRow(row)
	if err == sql.ErrNoRows {
		return ir.StageRun{}, false, nil
	}
	if err != nil {
		return ir.StageRun{}, false, fmt.Errorf("read best stage run for entry: %w", err)
	}
	return r, true, nil
}

// ReadStage retrieves a Stage by id.
func (s *Store) ReadStage(ctx context.Context, id int64) (ir.Stage, bool, error) {
	var st ir.Stage
	var maxRuns sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, event_id, stage_number, name, start_control_id, finish_control_id,
		       is_timed, runs_to_count, max_runs FROM stages WHERE id=?
	`, id).Scan(&st.ID, &st.EventID, &st.StageNumber, &st.Name, &st.StartControlID,
		&st.FinishControlID, &st.IsTimed, &st.RunsToCount, &maxRuns)
	if err == sql.ErrNoRows {
		return ir.Stage{}, false, nil
	}
	if err != nil {
		return ir.Stage{}, false, fmt.Errorf("read stage: %w", err)
	}
	if maxRuns.Valid {
		v := int(maxRuns.Int64)
		st.MaxRuns = &v
	}
	return st, true, nil
}

// ReadEntry retrieves an Entry by id.
func (s *Store) ReadEntry(ctx context.Context, id int64) (ir.Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, event_id, bib, first_name, last_name, club, class_id, status FROM entries WHERE id=?
	`, id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return ir.Entry{}, false, nil
	}
	if err != nil {
		return ir.Entry{}, false, fmt.Errorf("read entry: %w", err)
	}
	return e, true, nil
}

// ReadEntriesForClass returns all entries in a class, used for
// re-ranking scope (spec §4.3).
func (s *Store) ReadEntriesForClass(ctx context.Context, classID int64) ([]ir.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, bib, first_name, last_name, club, class_id, status
		FROM entries WHERE class_id=? ORDER BY bib ASC
	`, classID)
	if err != nil {
		return nil, fmt.Errorf("read entries for class: %w", err)
	}
	defer rows.Close()

	entries := []ir.Entry{}
	for rows.Next() {
		var e ir.Entry
		var club sql.NullString
		var status string
		if err := rows.Scan(&e.ID, &e.EventID, &e.Bib, &e.FirstName, &e.LastName, &club, &e.ClassID, &status); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Club = club.String
		e.Status = ir.EntryStatus(status)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ReadAllEntries returns every entry for an event.
func (s *Store) ReadAllEntries(ctx context.Context, eventID int64) ([]ir.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, bib, first_name, last_name, club, class_id, status
		FROM entries WHERE event_id=? ORDER BY bib ASC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("read all entries: %w", err)
	}
	defer rows.Close()

	entries := []ir.Entry{}
	for rows.Next() {
		var e ir.Entry
		var club sql.NullString
		var status string
		if err := rows.Scan(&e.ID, &e.EventID, &e.Bib, &e.FirstName, &e.LastName, &club, &e.ClassID, &status); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Club = club.String
		e.Status = ir.EntryStatus(status)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ReadCourseStages returns the Stages bound to a Course in junction order.
func (s *Store) ReadCourseStages(ctx context.Context, courseID int64) ([]ir.Stage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.event_id, s.stage_number, s.name, s.start_control_id, s.finish_control_id,
		       s.is_timed, s.runs_to_count, s.max_runs
		FROM course_stages cs
		JOIN stages s ON s.id = cs.stage_id
		WHERE cs.course_id=?
		ORDER BY cs.stage_order ASC
	`, courseID)
	if err != nil {
		return nil, fmt.Errorf("read course stages: %w", err)
	}
	defer rows.Close()

	stages := []ir.Stage{}
	for rows.Next() {
		var st ir.Stage
		var maxRuns sql.NullInt64
		if err := rows.Scan(&st.ID, &st.EventID, &st.StageNumber, &st.Name,
			&st.StartControlID, &st.FinishControlID, &st.IsTimed, &st.RunsToCount, &maxRuns); err != nil {
			return nil, fmt.Errorf("scan course stage: %w", err)
		}
		if maxRuns.Valid {
			v := int(maxRuns.Int64)
			st.MaxRuns = &v
		}
		stages = append(stages, st)
	}
	return stages, rows.Err()
}

// ReadClass retrieves a Class by id.
func (s *Store) ReadClass(ctx context.Context, id int64) (ir.Class, error) {
	var c ir.Class
	var massStart sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, event_id, course_id, name, mass_start_time FROM classes WHERE id=?
	`, id).Scan(&c.ID, &c.EventID, &c.CourseID, &c.Name, &massStart)
	if err != nil {
		return ir.Class{}, fmt.Errorf("read class: %w", err)
	}
	if massStart.Valid {
		c.MassStartTime = &massStart.String
	}
	return c, nil
}

// ReadOverallResult retrieves the OverallResult row for (event, entry).
func (s *Store) ReadOverallResult(ctx context.Context, eventID, entryID int64) (ir.OverallResult, bool, error) {
	var r ir.OverallResult
	var total, behind sql.NullFloat64
	var position sql.NullInt64
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, event_id, entry_id, total_seconds, position, time_behind, status, updated_at
		FROM overall_results WHERE event_id=? AND entry_id=?
	`, eventID, entryID).Scan(&r.ID, &r.EventID, &r.EntryID, &total, &position, &behind, &status, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return ir.OverallResult{}, false, nil
	}
	if err != nil {
		return ir.OverallResult{}, false, fmt.Errorf("read overall result: %w", err)
	}
	r.Status = ir.RunStatus(status)
	if total.Valid {
		r.TotalSeconds = &total.Float64
	}
	if position.Valid {
		v := int(position.Int64)
		r.Position = &v
	}
	if behind.Valid {
		r.TimeBehind = &behind.Float64
	}
	return r, true, nil
}

func scanStageRuns(rows *sql.Rows) ([]ir.StageRun, error) {
	runs := []ir.StageRun{}
	for rows.Next() {
		r, err := scanStageRunRows(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func scanStageRunRows(rows *sql.Rows) (ir.StageRun, error) {
	var r ir.StageRun
	var startPunch, finishPunch sql.NullInt64
	var startTime, finishTime sql.NullString
	var elapsed sql.NullFloat64
	var status, runState string
	if err := rows.Scan(&r.ID, &r.EventID, &r.EntryID, &r.StageID, &r.Attempt,
		&startPunch, &finishPunch, &startTime, &finishTime, &elapsed, &status, &runState, &r.PenaltySeconds); err != nil {
		return ir.StageRun{}, fmt.Errorf("scan stage run: %w", err)
	}
	return finishStageRunScan(r, startPunch, finishPunch, startTime, finishTime, elapsed, status, runState)
}

func scanStageRunRow(row *sql.Row) (ir.StageRun, error) {
	var r ir.StageRun
	var startPunch, finishPunch sql.NullInt64
	var startTime, finishTime sql.NullString
	var elapsed sql.NullFloat64
	var status, runState string
	if err := row.Scan(&r.ID, &r.EventID, &r.EntryID, &r.StageID, &r.Attempt,
		&startPunch, &finishPunch, &startTime, &finishTime, &elapsed, &status, &runState, &r.PenaltySeconds); err != nil {
		return ir.StageRun{}, err
	}
	return finishStageRunScan(r, startPunch, finishPunch, startTime, finishTime, elapsed, status, runState)
}

func finishStageRunScan(r ir.StageRun, startPunch, finishPunch sql.NullInt64, startTime, finishTime sql.NullString, elapsed sql.NullFloat64, status, runState string) (ir.StageRun, error) {
	if startPunch.Valid {
		r.StartPunchID = &startPunch.Int64
	}
	if finishPunch.Valid {
		r.FinishPunchID = &finishPunch.Int64
	}
	if startTime.Valid {
		t, err := ir.ParseTimestamp(startTime.String)
		if err != nil {
			return ir.StageRun{}, err
		}
		r.StartTime = &t
	}
	if finishTime.Valid {
		t, err := ir.ParseTimestamp(finishTime.String)
		if err != nil {
			return ir.StageRun{}, err
		}
		r.FinishTime = &t
	}
	if elapsed.Valid {
		r.ElapsedSeconds = &elapsed.Float64
	}
	r.Status = ir.RunStatus(status)
	r.RunState = ir.RunState(runState)
	return r, nil
}

// ReadUnsyncedJournal returns unsynced journal entries for an event in id order.
func (s *Store) ReadUnsyncedJournal(ctx context.Context, eventID int64) ([]ir.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, kind, payload, synced, created_at, synced_at
		FROM journal_entries WHERE event_id=? AND synced=0
		ORDER BY id ASC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("read unsynced journal: %w", err)
	}
	defer rows.Close()
	return scanJournal(rows)
}

// ReadAllJournal returns every journal entry for an event in id order
// (used for trace/replay tooling).
func (s *Store) ReadAllJournal(ctx context.Context, eventID int64) ([]ir.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, kind, payload, synced, created_at, synced_at
		FROM journal_entries WHERE event_id=?
		ORDER BY id ASC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("read all journal: %w", err)
	}
	defer rows.Close()
	return scanJournal(rows)
}

func scanJournal(rows *sql.Rows) ([]ir.JournalEntry, error) {
	entries := []ir.JournalEntry{}
	for rows.Next() {
		var j ir.JournalEntry
		var kind string
		var syncedAt sql.NullTime
		if err := rows.Scan(&j.ID, &j.EventID, &kind, &j.Payload, &j.Synced, &j.CreatedAt, &syncedAt); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		j.Kind = ir.JournalKind(kind)
		if syncedAt.Valid {
			j.SyncedAt = &syncedAt.Time
		}
		entries = append(entries, j)
	}
	return entries, rows.Err()
}

// buildInClause builds a "?,?,?" placeholder string and matching args
// slice for an IN (...) clause, mirroring the teacher's hand-rolled
// placeholder builder for batch lookups.
func buildInClause(ids []int64) (string, []any) {
	placeholders := make([]byte, 0, len(ids)*2-1)
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}
	return string(placeholders), args
}
