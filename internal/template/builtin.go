// Package template implements spec §6's built-in event-structure
// templates and their apply-to-event operation, grounded on
// core/templates.py's BUILTIN_TEMPLATES/get_template/get_template_names.
package template

import (
	"sort"
	"strconv"
)

// ControlSpec is a template's control definition, keyed by code (not
// a database id) so templates are portable across events.
type ControlSpec struct {
	Code int    `json:"code" yaml:"code"`
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// StageSpec is a template's stage definition, referencing controls by
// code rather than id.
type StageSpec struct {
	StageNumber        int    `json:"stage_number" yaml:"stage_number"`
	Name               string `json:"name" yaml:"name"`
	StartControlCode   int    `json:"start_control_code" yaml:"start_control_code"`
	FinishControlCode  int    `json:"finish_control_code" yaml:"finish_control_code"`
	IsTimed            bool   `json:"is_timed" yaml:"is_timed"`
	RunsToCount        int    `json:"runs_to_count" yaml:"runs_to_count"`
	MaxRuns            *int   `json:"max_runs,omitempty" yaml:"max_runs,omitempty"`
}

// CourseSpec is a template's course definition, referencing stages by
// stage_number.
type CourseSpec struct {
	Name           string `json:"name" yaml:"name"`
	Laps           int    `json:"laps" yaml:"laps"`
	StagesAnyOrder bool   `json:"stages_any_order" yaml:"stages_any_order"`
	AllowRepeat    bool   `json:"allow_repeat" yaml:"allow_repeat"`
	StageNumbers   []int  `json:"stage_numbers" yaml:"stage_numbers"`
}

// ClassSpec is a template's class definition, referencing a course by name.
type ClassSpec struct {
	Name          string  `json:"name" yaml:"name"`
	CourseName    string  `json:"course_name" yaml:"course_name"`
	MassStartTime *string `json:"mass_start_time,omitempty" yaml:"mass_start_time,omitempty"`
}

// Template is the full structure-document shape from spec §6. Builtin
// templates are constructed as literals; operators can also author
// their own as a YAML document matching this shape (see LoadYAML).
type Template struct {
	Format              string        `json:"format" yaml:"format"`
	StageOrder          string        `json:"stage_order" yaml:"stage_order"`
	TimePrecision       string        `json:"time_precision" yaml:"time_precision"`
	DualSlalomWindowSec *float64      `json:"dual_slalom_window,omitempty" yaml:"dual_slalom_window,omitempty"`
	Controls            []ControlSpec `json:"controls" yaml:"controls"`
	Stages              []StageSpec   `json:"stages" yaml:"stages"`
	Courses             []CourseSpec  `json:"courses" yaml:"courses"`
	Classes             []ClassSpec   `json:"classes" yaml:"classes"`
}

// Standard class-name presets, grounded on templates.py's
// STANDARD_CLASSES_5/3/2.
var (
	standardClasses5 = []string{"Herr Elite", "Dam Elite", "Herr Hobby", "Dam Hobby", "Ungdom"}
)

func intPtr(n int) *int { return &n }

// enduroControls generates n stages of start/finish controls: SSi has
// start=i*10+1, finish=i*10+2.
func enduroControls(n int) []ControlSpec {
	controls := make([]ControlSpec, 0, n*2)
	for i := 1; i <= n; i++ {
		controls = append(controls,
			ControlSpec{Code: i*10 + 1, Name: sstr("Start SS", i), Type: "start"},
			ControlSpec{Code: i*10 + 2, Name: sstr("Mål SS", i), Type: "finish"},
		)
	}
	return controls
}

// enduroStages generates n stage definitions with standard enduro
// control codes.
func enduroStages(n, runsToCount int, maxRuns *int) []StageSpec {
	stages := make([]StageSpec, 0, n)
	for i := 1; i <= n; i++ {
		stages = append(stages, StageSpec{
			StageNumber:       i,
			Name:              sstr("SS", i),
			StartControlCode:  i*10 + 1,
			FinishControlCode: i*10 + 2,
			IsTimed:           true,
			RunsToCount:       runsToCount,
			MaxRuns:           maxRuns,
		})
	}
	return stages
}

func sstr(prefix string, n int) string {
	return prefix + strconv.Itoa(n)
}

func classesForCourse(names []string, course string) []ClassSpec {
	classes := make([]ClassSpec, 0, len(names))
	for _, n := range names {
		classes = append(classes, ClassSpec{Name: n, CourseName: course})
	}
	return classes
}

func stageRange(n int) []int {
	nums := make([]int, n)
	for i := range nums {
		nums[i] = i + 1
	}
	return nums
}

// builtinTemplates is populated by an init() so each literal is built
// fresh at package load, matching templates.py's module-level dict.
var builtinTemplates map[string]Template

// templateOrder is the preferred display order, mirroring
// TEMPLATE_ORDER; any template not listed sorts after it alphabetically.
var templateOrder = []string{
	"Enduro - Tävling",
	"Enduro - SportMotion",
	"Enduro - Festival",
	"Downhill - Kval/Final",
	"Downhill - 2 åk",
	"Dual Slalom",
	"XCO",
	"XCM",
}

func init() {
	builtinTemplates = map[string]Template{
		"Downhill - Kval/Final": {
			Format: "downhill", StageOrder: "fixed", TimePrecision: "hundredths",
			Controls: []ControlSpec{
				{Code: 12, Name: "Start", Type: "start"},
				{Code: 22, Name: "Mellantid 1", Type: "split"},
				{Code: 32, Name: "Mellantid 2", Type: "split"},
				{Code: 52, Name: "Mål", Type: "finish"},
			},
			Stages: []StageSpec{
				{StageNumber: 1, Name: "Kval", StartControlCode: 12, FinishControlCode: 52, IsTimed: true, RunsToCount: 1, MaxRuns: intPtr(1)},
				{StageNumber: 2, Name: "Final", StartControlCode: 12, FinishControlCode: 52, IsTimed: true, RunsToCount: 1, MaxRuns: intPtr(1)},
			},
			Courses: []CourseSpec{{Name: "Downhill KF", Laps: 1, StageNumbers: []int{1, 2}}},
			Classes: classesForCourse(standardClasses5, "Downhill KF"),
		},
		"Downhill - 2 åk": {
			Format: "downhill", StageOrder: "fixed", TimePrecision: "hundredths",
			Controls: []ControlSpec{
				{Code: 12, Name: "Start", Type: "start"},
				{Code: 22, Name: "Mellantid 1", Type: "split"},
				{Code: 32, Name: "Mellantid 2", Type: "split"},
				{Code: 52, Name: "Mål", Type: "finish"},
			},
			Stages: []StageSpec{
				{StageNumber: 1, Name: "Downhill", StartControlCode: 12, FinishControlCode: 52, IsTimed: true, RunsToCount: 1, MaxRuns: intPtr(2)},
			},
			Courses: []CourseSpec{{Name: "Downhill", Laps: 1, AllowRepeat: true, StageNumbers: []int{1}}},
			Classes: classesForCourse(standardClasses5, "Downhill"),
		},
		"Enduro - SportMotion": {
			Format: "enduro", StageOrder: "fixed", TimePrecision: "seconds",
			Controls: enduroControls(3),
			Stages:   enduroStages(3, 2, intPtr(2)),
			Courses:  []CourseSpec{{Name: "SportMotion", Laps: 2, AllowRepeat: true, StageNumbers: stageRange(3)}},
			Classes:  classesForCourse(standardClasses5, "SportMotion"),
		},
		"Enduro - Tävling": {
			Format: "enduro", StageOrder: "fixed", TimePrecision: "seconds",
			Controls: enduroControls(5),
			Stages:   enduroStages(5, 1, nil),
			Courses:  []CourseSpec{{Name: "Huvudbana", Laps: 1, StageNumbers: stageRange(5)}},
			Classes:  classesForCourse(standardClasses5, "Huvudbana"),
		},
		"Enduro - Festival": {
			Format: "enduro", StageOrder: "free", TimePrecision: "seconds",
			Controls: enduroControls(3),
			Stages:   enduroStages(3, 1, nil),
			Courses:  []CourseSpec{{Name: "Festival", Laps: 1, StagesAnyOrder: true, AllowRepeat: true, StageNumbers: stageRange(3)}},
			Classes:  []ClassSpec{{Name: "Open", CourseName: "Festival"}},
		},
		"Dual Slalom": {
			Format: "dual_slalom", StageOrder: "fixed", TimePrecision: "hundredths",
			DualSlalomWindowSec: float64Ptr(5.0),
			Controls: []ControlSpec{
				{Code: 12, Name: "Start", Type: "start"},
				{Code: 52, Name: "Mål", Type: "finish"},
			},
			Stages: []StageSpec{
				{StageNumber: 1, Name: "Slalom", StartControlCode: 12, FinishControlCode: 52, IsTimed: true, RunsToCount: 1},
			},
			Courses: []CourseSpec{{Name: "Dual Slalom", Laps: 1, AllowRepeat: true, StageNumbers: []int{1}}},
			Classes: []ClassSpec{{Name: "Herr", CourseName: "Dual Slalom"}, {Name: "Dam", CourseName: "Dual Slalom"}},
		},
		"XCM": {
			Format: "xc", StageOrder: "fixed", TimePrecision: "seconds",
			Controls: []ControlSpec{
				{Code: 12, Name: "Start", Type: "start"},
				{Code: 22, Name: "Mellantid 1", Type: "split"},
				{Code: 32, Name: "Mellantid 2", Type: "split"},
				{Code: 52, Name: "Mål", Type: "finish"},
			},
			Stages: []StageSpec{
				{StageNumber: 1, Name: "XCM", StartControlCode: 12, FinishControlCode: 52, IsTimed: true, RunsToCount: 1, MaxRuns: intPtr(1)},
			},
			Courses: []CourseSpec{{Name: "XCM", Laps: 1, StageNumbers: []int{1}}},
			Classes: classesForCourse(standardClasses5, "XCM"),
		},
		"XCO": {
			Format: "xc", StageOrder: "fixed", TimePrecision: "seconds",
			Controls: []ControlSpec{
				{Code: 12, Name: "Start", Type: "start"},
				{Code: 22, Name: "Mellantid", Type: "split"},
				{Code: 52, Name: "Mål/Varv", Type: "finish"},
			},
			Stages: []StageSpec{
				{StageNumber: 1, Name: "Varv", StartControlCode: 12, FinishControlCode: 52, IsTimed: true, RunsToCount: 1},
			},
			Courses: []CourseSpec{{Name: "XCO", Laps: 4, StageNumbers: []int{1}}},
			Classes: []ClassSpec{
				{Name: "Herr Elite", CourseName: "XCO"}, {Name: "Dam Elite", CourseName: "XCO"},
				{Name: "Herr Hobby", CourseName: "XCO"}, {Name: "Dam Hobby", CourseName: "XCO"},
			},
		},
	}
}

func float64Ptr(f float64) *float64 { return &f }

// Builtin returns a deep copy of the named template, so callers can
// mutate freely without corrupting the package-level original,
// mirroring get_template's copy.deepcopy.
func Builtin(name string) (Template, bool) {
	tpl, ok := builtinTemplates[name]
	if !ok {
		return Template{}, false
	}
	return deepCopy(tpl), true
}

// Names returns template names in preferred display order, mirroring
// get_template_names.
func Names() []string {
	seen := map[string]bool{}
	ordered := make([]string, 0, len(builtinTemplates))
	for _, n := range templateOrder {
		if _, ok := builtinTemplates[n]; ok {
			ordered = append(ordered, n)
			seen[n] = true
		}
	}
	rest := make([]string, 0)
	for n := range builtinTemplates {
		if !seen[n] {
			rest = append(rest, n)
		}
	}
	sort.Strings(rest)
	return append(ordered, rest...)
}

func deepCopy(t Template) Template {
	out := t
	out.Controls = append([]ControlSpec(nil), t.Controls...)
	out.Stages = make([]StageSpec, len(t.Stages))
	for i, s := range t.Stages {
		out.Stages[i] = s
		if s.MaxRuns != nil {
			out.Stages[i].MaxRuns = intPtr(*s.MaxRuns)
		}
	}
	out.Courses = make([]CourseSpec, len(t.Courses))
	for i, c := range t.Courses {
		out.Courses[i] = c
		out.Courses[i].StageNumbers = append([]int(nil), c.StageNumbers...)
	}
	out.Classes = append([]ClassSpec(nil), t.Classes...)
	if t.DualSlalomWindowSec != nil {
		out.DualSlalomWindowSec = float64Ptr(*t.DualSlalomWindowSec)
	}
	return out
}
