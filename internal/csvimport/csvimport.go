// Package csvimport implements the semicolon-delimited startlist,
// chip-mapping, and ROC punch-file formats from spec §6, grounded on
// timing_engine.py's import_startlist_csv/import_chipmapping_csv/
// import_roc_punches.
package csvimport

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/gravitytiming/core/internal/ingest"
	"github.com/gravitytiming/core/internal/ir"
	"github.com/gravitytiming/core/internal/store"
)

// defaultCourseName mirrors the original importer's fallback course
// name when an event has no course yet.
const defaultCourseName = "Huvudbana"

// bomAwareReader strips a leading UTF-8 BOM, mirroring the original's
// open(..., encoding="utf-8-sig").
func bomAwareReader(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}

// newSemicolonReader builds a csv.Reader over a BOM-stripped stream,
// matching the original's csv.reader(f, delimiter=";").
func newSemicolonReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(bomAwareReader(r))
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr
}

// ImportStartlist loads BIB;FirstName;LastName;Club;Class rows,
// auto-creating a default "Huvudbana" course (linking every existing
// stage to it) if the event has no course of that name, and upserting
// entries by bib. Returns the
// count of rows successfully imported plus any per-row warnings.
func ImportStartlist(ctx context.Context, st *store.Store, logger *slog.Logger, eventID int64, r io.Reader) (int, []string, error) {
	if err := ensureDefaultCourse(ctx, st, eventID); err != nil {
		return 0, nil, fmt.Errorf("import startlist: %w", err)
	}

	cr := newSemicolonReader(r)
	classCache := map[string]int64{}
	count := 0
	var warnings []string

	rowNum := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, warnings, fmt.Errorf("import startlist: read row %d: %w", rowNum, err)
		}
		rowNum++
		if len(row) == 0 {
			continue
		}
		if rowNum == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "BIB") {
			continue
		}
		if len(row) < 5 {
			warnings = append(warnings, fmt.Sprintf("row %d: expected 5 columns, got %d", rowNum, len(row)))
			continue
		}

		bib, err := strconv.Atoi(strings.TrimSpace(row[0]))
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("row %d: invalid bib %q", rowNum, row[0]))
			continue
		}

		className := ir.NormalizeName(row[4])
		classID, err := resolveClass(ctx, st, eventID, className, classCache)
		if err != nil {
			return count, warnings, fmt.Errorf("import startlist: resolve class: %w", err)
		}

		_, err = st.UpsertEntry(ctx, ir.Entry{
			EventID:   eventID,
			Bib:       bib,
			FirstName: ir.NormalizeName(row[1]),
			LastName:  ir.NormalizeName(row[2]),
			Club:      ir.NormalizeName(row[3]),
			ClassID:   classID,
			Status:    ir.EntryRegistered,
		})
		if err != nil {
			return count, warnings, fmt.Errorf("import startlist: upsert entry bib %d: %w", bib, err)
		}
		count++
	}

	if err := st.WriteAudit(ctx, &eventID, "csv_import_startlist", "entry", nil,
		fmt.Sprintf("imported %d entries, %d warnings", count, len(warnings)), "csvimport"); err != nil {
		logger.Warn("write audit failed", "error", err)
	}
	logger.Info("startlist imported", "event_id", eventID, "count", count, "warnings", len(warnings))
	return count, warnings, nil
}

// resolveClass finds or creates a Class by name, caching within one
// import run so repeated class names only hit the store once.
func resolveClass(ctx context.Context, st *store.Store, eventID int64, name string, cache map[string]int64) (int64, error) {
	if id, ok := cache[name]; ok {
		return id, nil
	}
	class, found, err := st.ReadClassByName(ctx, eventID, name)
	if err != nil {
		return 0, err
	}
	if found {
		cache[name] = class.ID
		return class.ID, nil
	}

	course, found, err := st.ReadCourseByName(ctx, eventID, defaultCourseName)
	if err != nil {
		return 0, err
	}
	var courseID int64
	if found {
		courseID = course.ID
	}
	id, err := st.CreateClass(ctx, ir.Class{EventID: eventID, CourseID: courseID, Name: name})
	if err != nil {
		return 0, err
	}
	cache[name] = id
	return id, nil
}

// ensureDefaultCourse creates and links the default course if the
// event doesn't already have one, mirroring the original importer's
// "create a default course if none exists" fallback.
func ensureDefaultCourse(ctx context.Context, st *store.Store, eventID int64) error {
	if _, found, err := st.ReadCourseByName(ctx, eventID, defaultCourseName); err != nil {
		return err
	} else if found {
		return nil
	}

	courseID, err := st.CreateCourse(ctx, ir.Course{EventID: eventID, Name: defaultCourseName, Laps: 1})
	if err != nil {
		return err
	}

	stages, err := st.ReadStages(ctx, eventID)
	if err != nil {
		return err
	}
	for i, stage := range stages {
		order := i + 1
		if err := st.LinkCourseStage(ctx, courseID, stage.ID, order); err != nil {
			return err
		}
	}
	return nil
}

// ImportChipMapping loads BIB;SIAC1;SIAC2 rows. SIAC1 is the primary
// chip, SIAC2 (when present) the secondary, matching the original's
// two-chip-per-rider convention.
func ImportChipMapping(ctx context.Context, st *store.Store, logger *slog.Logger, eventID int64, r io.Reader) (int, []string, error) {
	cr := newSemicolonReader(r)
	count := 0
	var warnings []string

	rowNum := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, warnings, fmt.Errorf("import chip mapping: read row %d: %w", rowNum, err)
		}
		rowNum++
		if len(row) == 0 {
			continue
		}
		if rowNum == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "BIB") {
			continue
		}
		if len(row) < 2 {
			warnings = append(warnings, fmt.Sprintf("row %d: expected at least 2 columns, got %d", rowNum, len(row)))
			continue
		}

		bib, err := strconv.Atoi(strings.TrimSpace(row[0]))
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("row %d: invalid bib %q", rowNum, row[0]))
			continue
		}

		if chip1 := strings.TrimSpace(row[1]); chip1 != "" {
			id, err := strconv.ParseInt(chip1, 10, 64)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("row %d: invalid SIAC1 %q", rowNum, row[1]))
			} else {
				if err := st.UpsertChipMapping(ctx, ir.ChipMapping{EventID: eventID, Bib: bib, ChipID: id, IsPrimary: true}); err != nil {
					return count, warnings, fmt.Errorf("import chip mapping: upsert SIAC1: %w", err)
				}
				count++
			}
		}

		if len(row) >= 3 {
			if chip2 := strings.TrimSpace(row[2]); chip2 != "" {
				id, err := strconv.ParseInt(chip2, 10, 64)
				if err != nil {
					warnings = append(warnings, fmt.Sprintf("row %d: invalid SIAC2 %q", rowNum, row[2]))
				} else {
					if err := st.UpsertChipMapping(ctx, ir.ChipMapping{EventID: eventID, Bib: bib, ChipID: id, IsPrimary: false}); err != nil {
						return count, warnings, fmt.Errorf("import chip mapping: upsert SIAC2: %w", err)
					}
					count++
				}
			}
		}
	}

	if err := st.WriteAudit(ctx, &eventID, "csv_import_chipmapping", "chip_mapping", nil,
		fmt.Sprintf("imported %d mappings, %d warnings", count, len(warnings)), "csvimport"); err != nil {
		logger.Warn("write audit failed", "error", err)
	}
	logger.Info("chip mapping imported", "event_id", eventID, "count", count, "warnings", len(warnings))
	return count, warnings, nil
}

// ImportPunches replays a ROC-shaped punch file (one
// PunchID;ControlCode;SIAC;Timestamp record per line, "#"-prefixed
// comment lines skipped) through the live Ingest path with
// source=roc, deduping against punches already imported under the
// same upstream id so re-running an overlapping file is a no-op for
// rows already seen.
func ImportPunches(ctx context.Context, st *store.Store, logger *slog.Logger, eventID int64, r io.Reader) (total, imported int, warnings []string, err error) {
	scanner := bufio.NewScanner(bomAwareReader(r))
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		total++

		fields := strings.Split(line, ";")
		if len(fields) < 4 {
			warnings = append(warnings, fmt.Sprintf("line %d: expected 4 fields, got %d", lineNum, len(fields)))
			continue
		}

		rocID, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("line %d: invalid punch id %q", lineNum, fields[0]))
			continue
		}
		controlCode, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("line %d: invalid control code %q", lineNum, fields[1]))
			continue
		}
		chipID, err := strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 64)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("line %d: invalid SIAC %q", lineNum, fields[2]))
			continue
		}
		punchTime, err := ir.ParseTimestamp(strings.TrimSpace(fields[3]))
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("line %d: invalid timestamp %q", lineNum, fields[3]))
			continue
		}

		exists, err := st.ExistsPunchByUpstreamID(ctx, eventID, ir.SourceROC, rocID)
		if err != nil {
			return total, imported, warnings, fmt.Errorf("import punches: dedup check line %d: %w", lineNum, err)
		}
		if exists {
			continue
		}

		if _, err := ingest.Ingest(ctx, st, logger, eventID, chipID, controlCode, punchTime, ir.SourceROC, &rocID); err != nil {
			return total, imported, warnings, fmt.Errorf("import punches: ingest line %d: %w", lineNum, err)
		}
		imported++
	}
	if err := scanner.Err(); err != nil {
		return total, imported, warnings, fmt.Errorf("import punches: scan: %w", err)
	}

	if err := st.WriteAudit(ctx, &eventID, "csv_import_punches", "punch", nil,
		fmt.Sprintf("imported %d of %d lines, %d warnings", imported, total, len(warnings)), "csvimport"); err != nil {
		logger.Warn("write audit failed", "error", err)
	}
	logger.Info("roc punches imported", "event_id", eventID, "total", total, "imported", imported, "warnings", len(warnings))
	return total, imported, warnings, nil
}
