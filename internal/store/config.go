package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gravitytiming/core/internal/ir"
)

// CreateControl inserts a Control.
func (s *Store) CreateControl(ctx context.Context, c ir.Control) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO controls (event_id, code, name, type) VALUES (?, ?, ?, ?)
	`, c.EventID, c.Code, c.Name, string(c.Type))
	if err != nil {
		return 0, fmt.Errorf("create control: %w", err)
	}
	return res.LastInsertId()
}

// ReadControlByCode resolves a control by (event, code).
func (s *Store) ReadControlByCode(ctx context.Context, eventID int64, code int) (ir.Control, bool, error) {
	var c ir.Control
	var typ string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, event_id, code, name, type FROM controls WHERE event_id=? AND code=?
	`, eventID, code).Scan(&c.ID, &c.EventID, &c.Code, &c.Name, &typ)
	if err == sql.ErrNoRows {
		return ir.Control{}, false, nil
	}
	if err != nil {
		return ir.Control{}, false, fmt.Errorf("read control: %w", err)
	}
	c.Type = ir.ControlType(typ)
	return c, true, nil
}

// ReadControlCode resolves a control's row id to its punch-facing code.
func (s *Store) ReadControlCode(ctx context.Context, controlID int64) (int, error) {
	var code int
	err := s.db.QueryRowContext(ctx, `SELECT code FROM controls WHERE id=?`, controlID).Scan(&code)
	if err != nil {
		return 0, fmt.Errorf("read control code: %w", err)
	}
	return code, nil
}

// ReadControlsByType returns every control of a given type for an event
// (used by the dual-slalom grouper to find all "start" controls).
func (s *Store) ReadControlsByType(ctx context.Context, eventID int64, typ ir.ControlType) ([]ir.Control, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, code, name, type FROM controls WHERE event_id=? AND type=?
	`, eventID, string(typ))
	if err != nil {
		return nil, fmt.Errorf("read controls by type: %w", err)
	}
	defer rows.Close()
	controls := []ir.Control{}
	for rows.Next() {
		var c ir.Control
		var t string
		if err := rows.Scan(&c.ID, &c.EventID, &c.Code, &c.Name, &t); err != nil {
			return nil, fmt.Errorf("scan control: %w", err)
		}
		c.Type = ir.ControlType(t)
		controls = append(controls, c)
	}
	return controls, rows.Err()
}

// CreateStage inserts a Stage.
func (s *Store) CreateStage(ctx context.Context, st ir.Stage) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO stages (event_id, stage_number, name, start_control_id, finish_control_id,
			is_timed, runs_to_count, max_runs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, st.EventID, st.StageNumber, st.Name, st.StartControlID, st.FinishControlID,
		st.IsTimed, st.RunsToCount, st.MaxRuns)
	if err != nil {
		return 0, fmt.Errorf("create stage: %w", err)
	}
	return res.LastInsertId()
}

// CreateCourse inserts a Course.
func (s *Store) CreateCourse(ctx context.Context, c ir.Course) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO courses (event_id, name, laps, stages_any_order, allow_repeat)
		VALUES (?, ?, ?, ?, ?)
	`, c.EventID, c.Name, c.Laps, c.StagesAnyOrder, c.AllowRepeat)
	if err != nil {
		return 0, fmt.Errorf("create course: %w", err)
	}
	return res.LastInsertId()
}

// ReadCourseByName finds a Course by (event, name).
func (s *Store) ReadCourseByName(ctx context.Context, eventID int64, name string) (ir.Course, bool, error) {
	var c ir.Course
	err := s.db.QueryRowContext(ctx, `
		SELECT id, event_id, name, laps, stages_any_order, allow_repeat
		FROM courses WHERE event_id=? AND name=?
	`, eventID, name).Scan(&c.ID, &c.EventID, &c.Name, &c.Laps, &c.StagesAnyOrder, &c.AllowRepeat)
	if err == sql.ErrNoRows {
		return ir.Course{}, false, nil
	}
	if err != nil {
		return ir.Course{}, false, fmt.Errorf("read course by name: %w", err)
	}
	return c, true, nil
}

// LinkCourseStage appends a Stage to a Course's ordered junction.
func (s *Store) LinkCourseStage(ctx context.Context, courseID, stageID int64, order int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO course_stages (course_id, stage_id, stage_order) VALUES (?, ?, ?)
	`, courseID, stageID, order)
	if err != nil {
		return fmt.Errorf("link course stage: %w", err)
	}
	return nil
}

// CreateClass inserts a Class.
func (s *Store) CreateClass(ctx context.Context, c ir.Class) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO classes (event_id, course_id, name, mass_start_time) VALUES (?, ?, ?, ?)
	`, c.EventID, c.CourseID, c.Name, c.MassStartTime)
	if err != nil {
		return 0, fmt.Errorf("create class: %w", err)
	}
	return res.LastInsertId()
}

// ReadClassByName finds a Class by (event, name).
func (s *Store) ReadClassByName(ctx context.Context, eventID int64, name string) (ir.Class, bool, error) {
	var c ir.Class
	var massStart sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, event_id, course_id, name, mass_start_time FROM classes WHERE event_id=? AND name=?
	`, eventID, name).Scan(&c.ID, &c.EventID, &c.CourseID, &c.Name, &massStart)
	if err == sql.ErrNoRows {
		return ir.Class{}, false, nil
	}
	if err != nil {
		return ir.Class{}, false, fmt.Errorf("read class by name: %w", err)
	}
	if massStart.Valid {
		c.MassStartTime = &massStart.String
	}
	return c, true, nil
}

// UpdateEventStructure rewrites an event's format/stage_order/
// time_precision/dual_slalom_window fields, the event-level portion
// of a template apply (spec §6: applying a template sets these
// alongside the structural entities it materializes).
func (s *Store) UpdateEventStructure(ctx context.Context, eventID int64, format ir.Format, stageOrder ir.StageOrder, precision ir.TimePrecision, dualSlalomWindow *float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE events SET format=?, stage_order=?, time_precision=?, dual_slalom_window=?
		WHERE id=?
	`, string(format), string(stageOrder), string(precision), dualSlalomWindow, eventID)
	if err != nil {
		return fmt.Errorf("update event structure: %w", err)
	}
	return nil
}

// ClearStructuralEntities deletes controls/stages/courses/classes (and
// their junction rows) for an event, the first step of template apply
// (spec §6: "clears the event's structural entities ... not entries,
// punches, or runs").
func (s *Store) ClearStructuralEntities(ctx context.Context, eventID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clear structural entities: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmts := []string{
		`DELETE FROM course_stages WHERE course_id IN (SELECT id FROM courses WHERE event_id=?)`,
		`DELETE FROM classes WHERE event_id=?`,
		`DELETE FROM courses WHERE event_id=?`,
		`DELETE FROM stages WHERE event_id=?`,
		`DELETE FROM controls WHERE event_id=?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, eventID); err != nil {
			return fmt.Errorf("clear structural entities: %w", err)
		}
	}
	return tx.Commit()
}

// ReadAllClasses returns every class for an event.
func (s *Store) ReadAllClasses(ctx context.Context, eventID int64) ([]ir.Class, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, course_id, name, mass_start_time FROM classes WHERE event_id=? ORDER BY name ASC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("read all classes: %w", err)
	}
	defer rows.Close()
	classes := []ir.Class{}
	for rows.Next() {
		var c ir.Class
		var massStart sql.NullString
		if err := rows.Scan(&c.ID, &c.EventID, &c.CourseID, &c.Name, &massStart); err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		if massStart.Valid {
			c.MassStartTime = &massStart.String
		}
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

// ReadAllControls returns every control for an event.
func (s *Store) ReadAllControls(ctx context.Context, eventID int64) ([]ir.Control, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, code, name, type FROM controls WHERE event_id=? ORDER BY code ASC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("read all controls: %w", err)
	}
	defer rows.Close()
	controls := []ir.Control{}
	for rows.Next() {
		var c ir.Control
		var t string
		if err := rows.Scan(&c.ID, &c.EventID, &c.Code, &c.Name, &t); err != nil {
			return nil, fmt.Errorf("scan control: %w", err)
		}
		c.Type = ir.ControlType(t)
		controls = append(controls, c)
	}
	return controls, rows.Err()
}
