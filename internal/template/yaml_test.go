package template

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadYAMLParsesCustomTemplate(t *testing.T) {
	doc := `
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
	tmpl, err := LoadYAML(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "enduro", tmpl.Format)
	require.Len(t, tmpl.Controls, 2)
	assert.Equal(t, 11, tmpl.Controls[0].Code)
	require.Len(t, tmpl.Stages, 1)
	assert.Equal(t, "SS1", tmpl.Stages[0].Name)
	assert.Equal(t, "Open", tmpl.Classes[0].Name)
}

func TestLoadYAMLRejectsMissingFormat(t *testing.T) {
	_, err := LoadYAML(strings.NewReader("stage_order: fixed\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "format")
}

func TestLoadYAMLRejectsUnknownField(t *testing.T) {
	_, err := LoadYAML(strings.NewReader("format: enduro\nbogus_field: 1\n"))
	assert.Error(t, err, "unknown fields must be rejected rather than silently ignored")
}
