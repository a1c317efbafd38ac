package template

import (
	"context"
	"fmt"

	"github.com/gravitytiming/core/internal/ir"
	"github.com/gravitytiming/core/internal/store"
)

// Apply materializes a Template's structural entities onto an event:
// clear (controls/stages/courses/classes, never entries/punches/runs),
// then import controls, stages, courses, and classes in that
// dependency order, collecting a warning for every dangling
// reference (a stage's control code, a course's stage number, or a
// class's course name that doesn't resolve) instead of failing the
// whole apply. Mirrors the original's clear-then-import template flow.
func Apply(ctx context.Context, st *store.Store, eventID int64, tmpl Template) ([]string, error) {
	if err := st.UpdateEventStructure(ctx, eventID,
		ir.Format(tmpl.Format), ir.StageOrder(tmpl.StageOrder), ir.TimePrecision(tmpl.TimePrecision),
		tmpl.DualSlalomWindowSec); err != nil {
		return nil, fmt.Errorf("apply template: update event: %w", err)
	}

	if err := st.ClearStructuralEntities(ctx, eventID); err != nil {
		return nil, fmt.Errorf("apply template: clear structural entities: %w", err)
	}

	var warnings []string

	controlIDByCode := map[int]int64{}
	for _, c := range tmpl.Controls {
		id, err := st.CreateControl(ctx, ir.Control{EventID: eventID, Code: c.Code, Name: c.Name, Type: ir.ControlType(c.Type)})
		if err != nil {
			return warnings, fmt.Errorf("apply template: create control %d: %w", c.Code, err)
		}
		controlIDByCode[c.Code] = id
	}

	stageIDByNumber := map[int]int64{}
	for _, s := range tmpl.Stages {
		startID, ok := controlIDByCode[s.StartControlCode]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("stage %d: start control code %d not defined", s.StageNumber, s.StartControlCode))
			continue
		}
		finishID, ok := controlIDByCode[s.FinishControlCode]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("stage %d: finish control code %d not defined", s.StageNumber, s.FinishControlCode))
			continue
		}
		runsToCount := s.RunsToCount
		if runsToCount < 1 {
			runsToCount = 1
		}
		id, err := st.CreateStage(ctx, ir.Stage{
			EventID: eventID, StageNumber: s.StageNumber, Name: s.Name,
			StartControlID: startID, FinishControlID: finishID,
			IsTimed: s.IsTimed, RunsToCount: runsToCount, MaxRuns: s.MaxRuns,
		})
		if err != nil {
			return warnings, fmt.Errorf("apply template: create stage %d: %w", s.StageNumber, err)
		}
		stageIDByNumber[s.StageNumber] = id
	}

	courseIDByName := map[string]int64{}
	for _, c := range tmpl.Courses {
		id, err := st.CreateCourse(ctx, ir.Course{
			EventID: eventID, Name: c.Name, Laps: c.Laps,
			StagesAnyOrder: c.StagesAnyOrder, AllowRepeat: c.AllowRepeat,
		})
		if err != nil {
			return warnings, fmt.Errorf("apply template: create course %q: %w", c.Name, err)
		}
		courseIDByName[c.Name] = id

		for order, num := range c.StageNumbers {
			stageID, ok := stageIDByNumber[num]
			if !ok {
				warnings = append(warnings, fmt.Sprintf("course %q: stage number %d not defined", c.Name, num))
				continue
			}
			if err := st.LinkCourseStage(ctx, id, stageID, order+1); err != nil {
				return warnings, fmt.Errorf("apply template: link course %q stage %d: %w", c.Name, num, err)
			}
		}
	}

	for _, c := range tmpl.Classes {
		courseID, ok := courseIDByName[c.CourseName]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("class %q: course %q not defined", c.Name, c.CourseName))
			continue
		}
		if _, err := st.CreateClass(ctx, ir.Class{
			EventID: eventID, CourseID: courseID, Name: c.Name, MassStartTime: c.MassStartTime,
		}); err != nil {
			return warnings, fmt.Errorf("apply template: create class %q: %w", c.Name, err)
		}
	}

	if err := st.WriteAudit(ctx, &eventID, "template_apply", "event", &eventID,
		fmt.Sprintf("applied template, %d warnings", len(warnings)), "template"); err != nil {
		return warnings, fmt.Errorf("apply template: write audit: %w", err)
	}

	return warnings, nil
}
