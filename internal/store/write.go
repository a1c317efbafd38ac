package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gravitytiming/core/internal/ir"
)

// CreateEvent inserts a new Event in the setup status.
func (s *Store) CreateEvent(ctx context.Context, e ir.Event) (int64, error) {
	if e.TieBreakMode == "" {
		e.TieBreakMode = ir.TieBreakSequential
	}
	if e.Status == "" {
		e.Status = ir.EventSetup
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO events (name, date, location, format, stage_order,
			time_precision, status, dual_slalom_window, upstream_competition_id, tie_break_mode)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.Name, e.Date, e.Location, string(e.Format), string(e.StageOrder),
		string(e.TimePrecision), string(e.Status), e.DualSlalomWindowSec, e.UpstreamCompID, string(e.TieBreakMode))
	if err != nil {
		return 0, fmt.Errorf("create event: %w", err)
	}
	return res.LastInsertId()
}

// UpsertEntry inserts an Entry or updates it by (event_id, bib),
// matching the original importer's upsert-by-bib semantics.
func (s *Store) UpsertEntry(ctx context.Context, e ir.Entry) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("upsert entry: begin tx: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM entries WHERE event_id=? AND bib=?`, e.EventID, e.Bib).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		res, err := tx.ExecContext(ctx, `
			INSERT INTO entries (event_id, bib, first_name, last_name, club, class_id, status)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, e.EventID, e.Bib, e.FirstName, e.LastName, e.Club, e.ClassID, string(e.Status))
		if err != nil {
			return 0, fmt.Errorf("upsert entry: insert: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("upsert entry: last insert id: %w", err)
		}
	case err != nil:
		return 0, fmt.Errorf("upsert entry: lookup: %w", err)
	default:
		_, err = tx.ExecContext(ctx, `
			UPDATE entries SET first_name=?, last_name=?, club=?, class_id=?, status=?
			WHERE id=?
		`, e.FirstName, e.LastName, e.Club, e.ClassID, string(e.Status), id)
		if err != nil {
			return 0, fmt.Errorf("upsert entry: update: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("upsert entry: commit: %w", err)
	}
	return id, nil
}

// UpdateEntryStatus sets an entry's terminal status (spec §3's
// registered/dns/dnf/dsq), the write path an official uses to mark a
// competitor withdrawn or disqualified without touching their other
// fields.
func (s *Store) UpdateEntryStatus(ctx context.Context, entryID int64, status ir.EntryStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE entries SET status=? WHERE id=?`, string(status), entryID)
	if err != nil {
		return fmt.Errorf("update entry status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update entry status: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update entry status: entry %d not found", entryID)
	}
	return nil
}

// UpsertChipMapping inserts or updates a ChipMapping keyed by
// (event_id, chip_id), matching the original's chip-mapping upsert.
func (s *Store) UpsertChipMapping(ctx context.Context, m ir.ChipMapping) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chip_mappings (event_id, bib, chip_id, is_primary)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(event_id, chip_id) DO UPDATE SET bib=excluded.bib, is_primary=excluded.is_primary
	`, m.EventID, m.Bib, m.ChipID, m.IsPrimary)
	if err != nil {
		return fmt.Errorf("upsert chip mapping: %w", err)
	}
	return nil
}

// WritePunch inserts an immutable raw punch. Punches are append-only;
// is_duplicate is decided by the caller (Ingest) before this call.
func (s *Store) WritePunch(ctx context.Context, p ir.Punch) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO punches (event_id, chip_id, control_code, punch_time, source, upstream_id, is_duplicate)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.EventID, p.ChipID, p.ControlCode, p.PunchTime.UTC().Format(ir.TimestampLayout),
		string(p.Source), p.UpstreamID, p.IsDuplicate)
	if err != nil {
		return 0, fmt.Errorf("write punch: %w", err)
	}
	return res.LastInsertId()
}

// AppendJournal inserts a journal entry. The row's own autoincrement
// id is the monotonic-per-event ordering key required by spec §5,
// since every write passes through the single-writer critical section.
func (s *Store) AppendJournal(ctx context.Context, eventID int64, kind ir.JournalKind, payloadJSON string) (int64, error) {
	return s.appendJournalTx(ctx, s.db, eventID, kind, payloadJSON)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) appendJournalTx(ctx context.Context, x execer, eventID int64, kind ir.JournalKind, payloadJSON string) (int64, error) {
	res, err := x.ExecContext(ctx, `
		INSERT INTO journal_entries (event_id, kind, payload)
		VALUES (?, ?, ?)
	`, eventID, string(kind), payloadJSON)
	if err != nil {
		return 0, fmt.Errorf("append journal: %w", err)
	}
	return res.LastInsertId()
}

// MarkJournalSynced marks a journal entry acknowledged by a downstream reader.
func (s *Store) MarkJournalSynced(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE journal_entries SET synced=1, synced_at=datetime('now') WHERE id=?
	`, id)
	if err != nil {
		return fmt.Errorf("mark journal synced: %w", err)
	}
	return nil
}

// StageRunWrite bundles a StageRun write with its journal entry for
// crash-atomic commit, mirroring the teacher's WriteSyncFiringAtomic
// multi-table pattern.
type StageRunWrite struct {
	Run           ir.StageRun
	JournalKind   ir.JournalKind
	JournalPayload string
}

// WriteStageRunAndJournal atomically upserts a StageRun (by its unique
// (event, entry, stage, attempt) key) and appends a journal entry, in
// a single transaction. Returns the StageRun's row id.
func (s *Store) WriteStageRunAndJournal(ctx context.Context, w StageRunWrite) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("write stage run: begin tx: %w", err)
	}
	defer tx.Rollback()

	r := w.Run
	res, err := tx.ExecContext(ctx, `
		INSERT INTO stage_runs (event_id, entry_id, stage_id, attempt,
			start_punch_id, finish_punch_id, start_time, finish_time,
			elapsed_seconds, status, run_state, penalty_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id, entry_id, stage_id, attempt) DO UPDATE SET
			start_punch_id=excluded.start_punch_id,
			finish_punch_id=excluded.finish_punch_id,
			start_time=excluded.start_time,
			finish_time=excluded.finish_time,
			elapsed_seconds=excluded.elapsed_seconds,
			status=excluded.status,
			run_state=excluded.run_state,
			penalty_seconds=excluded.penalty_seconds
	`, r.EventID, r.EntryID, r.StageID, r.Attempt,
		r.StartPunchID, r.FinishPunchID, formatNullableTime(r.StartTime), formatNullableTime(r.FinishTime),
		r.ElapsedSeconds, string(r.Status), string(r.RunState), r.PenaltySeconds)
	if err != nil {
		return 0, fmt.Errorf("write stage run: upsert: %w", err)
	}

	var id int64
	if n, _ := res.RowsAffected(); n > 0 {
		id, err = res.LastInsertId()
		if err != nil || id == 0 {
			// LastInsertId is only meaningful on INSERT; on UPDATE fetch explicitly.
			err = tx.QueryRowContext(ctx, `
				SELECT id FROM stage_runs WHERE event_id=? AND entry_id=? AND stage_id=? AND attempt=?
			`, r.EventID, r.EntryID, r.StageID, r.Attempt).Scan(&id)
			if err != nil {
				return 0, fmt.Errorf("write stage run: select id: %w", err)
			}
		}
	}

	if w.JournalKind != "" {
		if _, err := s.appendJournalTx(ctx, tx, r.EventID, w.JournalKind, w.JournalPayload); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("write stage run: commit: %w", err)
	}
	return id, nil
}

// SupersedeStageRun atomically marks a StageRun superseded and appends
// the corresponding journal entry.
func (s *Store) SupersedeStageRun(ctx context.Context, stageRunID int64, eventID int64, payloadJSON string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("supersede stage run: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE stage_runs SET run_state='superseded' WHERE id=?`, stageRunID); err != nil {
		return fmt.Errorf("supersede stage run: update: %w", err)
	}
	if _, err := s.appendJournalTx(ctx, tx, eventID, ir.JournalRunSuperseded, payloadJSON); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("supersede stage run: commit: %w", err)
	}
	return nil
}

// UpdateStageRunGroupedStart rewrites a StageRun's start_time (and,
// when it already carries an ok finish, its recalculated elapsed_seconds)
// after dual-slalom mass-start grouping pulls its start back to the
// group's earliest punch. It does not touch run_state/status/attempt.
func (s *Store) UpdateStageRunGroupedStart(ctx context.Context, stageRunID int64, startTime string, elapsedSeconds *float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE stage_runs SET start_time=?, elapsed_seconds=COALESCE(?, elapsed_seconds) WHERE id=?
	`, startTime, elapsedSeconds, stageRunID)
	if err != nil {
		return fmt.Errorf("update grouped start: %w", err)
	}
	return nil
}

// WriteOverallResult upserts the single OverallResult row for (event, entry).
func (s *Store) WriteOverallResult(ctx context.Context, r ir.OverallResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO overall_results (event_id, entry_id, total_seconds, position, time_behind, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(event_id, entry_id) DO UPDATE SET
			total_seconds=excluded.total_seconds,
			position=excluded.position,
			time_behind=excluded.time_behind,
			status=excluded.status,
			updated_at=datetime('now')
	`, r.EventID, r.EntryID, r.TotalSeconds, r.Position, r.TimeBehind, string(r.Status))
	if err != nil {
		return fmt.Errorf("write overall result: %w", err)
	}
	return nil
}

// DeleteEventResults deletes all StageRuns and OverallResults for an
// event, the first step of bulk recompute (spec §4.5).
func (s *Store) DeleteEventResults(ctx context.Context, eventID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete event results: begin tx: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM stage_runs WHERE event_id=?`, eventID); err != nil {
		return fmt.Errorf("delete event results: stage_runs: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM overall_results WHERE event_id=?`, eventID); err != nil {
		return fmt.Errorf("delete event results: overall_results: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete event results: commit: %w", err)
	}
	return nil
}

// GetSetting reads a settings value, returning ok=false if absent.
func (s *Store) GetSetting(ctx context.Context, key string) (value string, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key=?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, true, nil
}

// SetSetting upserts a settings key-value pair.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// WriteAudit records a structural mutation outside the punch pipeline
// (template apply, CSV import, settings change), independent of the
// race-timing journal.
func (s *Store) WriteAudit(ctx context.Context, eventID *int64, action, entityType string, entityID *int64, details, source string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (event_id, action, entity_type, entity_id, details, source)
		VALUES (?, ?, ?, ?, ?, ?)
	`, eventID, action, entityType, entityID, details, source)
	if err != nil {
		return fmt.Errorf("write audit: %w", err)
	}
	return nil
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(ir.TimestampLayout)
}
