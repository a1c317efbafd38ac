package cli

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitytiming/core/internal/ir"
	"github.com/gravitytiming/core/internal/store"
)

const testTemplateYAML = `
format: enduro
stage_order: fixed
time_precision: seconds
controls:
  - code: 11
    name: Start
    type: start
  - code: 12
    name: Finish
    type: finish
stages:
  - stage_number: 1
    name: SS1
    start_control_code: 11
    finish_control_code: 12
    is_timed: true
    runs_to_count: 1
courses:
  - name: C
    laps: 1
    stage_numbers: [1]
classes:
  - name: Open
    course_name: C
`

func TestTemplateLoadCommandAppliesCustomTemplate(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	eventID, err := st.CreateEvent(context.Background(), ir.Event{Name: "E", Date: "2026-06-01", Format: ir.FormatDownhill})
	require.NoError(t, err)
	st.Close()

	tmplPath := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(tmplPath, []byte(testTemplateYAML), 0o644))

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"template", "load", "--db", dbPath, "--event", strconv.FormatInt(eventID, 10), "--file", tmplPath})
	require.NoError(t, cmd.Execute())

	st2, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st2.Close()

	event, err := st2.ReadEvent(context.Background(), eventID)
	require.NoError(t, err)
	assert.Equal(t, ir.FormatEnduro, event.Format)

	stages, err := st2.ReadStages(context.Background(), eventID)
	require.NoError(t, err)
	require.Len(t, stages, 1)
	assert.Equal(t, "SS1", stages[0].Name)
}

func TestTemplateLoadCommandRejectsMissingFile(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	eventID, err := st.CreateEvent(context.Background(), ir.Event{Name: "E", Date: "2026-06-01", Format: ir.FormatDownhill})
	require.NoError(t, err)
	st.Close()

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"template", "load", "--db", dbPath, "--event", strconv.FormatInt(eventID, 10), "--file", filepath.Join(dir, "missing.yaml")})
	err = cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open template file")
}
