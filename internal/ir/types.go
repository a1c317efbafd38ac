// Package ir defines the domain entities of the race-timing core:
// events, timing infrastructure (controls, stages, courses, classes),
// competitors, raw punches, and the derived StageRun/OverallResult/
// JournalEntry rows. Every entity mirrors a Repository table one to
// one; nothing here performs I/O.
package ir

import "time"

// Format selects the overall-aggregation policy for an Event.
type Format string

const (
	FormatEnduro      Format = "enduro"
	FormatDownhill    Format = "downhill"
	FormatXC          Format = "xc"
	FormatDualSlalom  Format = "dual_slalom"
)

// StageOrder controls whether a Course's stages must be run in the
// order the junction table lists them.
type StageOrder string

const (
	StageOrderFixed StageOrder = "fixed"
	StageOrderFree  StageOrder = "free"
)

// TimePrecision selects how elapsed/behind times are formatted.
type TimePrecision string

const (
	PrecisionSeconds    TimePrecision = "seconds"
	PrecisionTenths     TimePrecision = "tenths"
	PrecisionHundredths TimePrecision = "hundredths"
)

// EventStatus is the lifecycle state of an Event.
type EventStatus string

const (
	EventSetup    EventStatus = "setup"
	EventActive   EventStatus = "active"
	EventFinished EventStatus = "finished"
)

// TieBreakMode resolves the Open Question in spec §9 about identical
// total_seconds: sequential numbering (default) or tied positions.
type TieBreakMode string

const (
	TieBreakSequential TieBreakMode = "sequential"
	TieBreakTied       TieBreakMode = "tied"
)

// Event is a single race day.
type Event struct {
	ID                  int64         `json:"id"`
	Name                string        `json:"name"`
	Date                string        `json:"date"`
	Location            string        `json:"location,omitempty"`
	Format              Format        `json:"format"`
	StageOrder          StageOrder    `json:"stage_order"`
	TimePrecision       TimePrecision `json:"time_precision"`
	Status              EventStatus   `json:"status"`
	DualSlalomWindowSec *float64      `json:"dual_slalom_window_seconds,omitempty"`
	UpstreamCompID      string        `json:"upstream_competition_id,omitempty"`
	TieBreakMode        TieBreakMode  `json:"tie_break_mode"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// ControlType names the role a Control plays within a Stage.
type ControlType string

const (
	ControlStart ControlType = "start"
	ControlSplit ControlType = "split"
	ControlFinish ControlType = "finish"
)

// Control is a physical timing beacon.
type Control struct {
	ID      int64       `json:"id"`
	EventID int64       `json:"event_id"`
	Code    int         `json:"code"`
	Name    string      `json:"name"`
	Type    ControlType `json:"type"`
}

// Stage is a timed segment bounded by a start and finish Control.
type Stage struct {
	ID              int64 `json:"id"`
	EventID         int64 `json:"event_id"`
	StageNumber     int   `json:"stage_number"`
	Name            string `json:"name"`
	StartControlID  int64 `json:"start_control_id"`
	FinishControlID int64 `json:"finish_control_id"`
	IsTimed         bool  `json:"is_timed"`
	RunsToCount     int   `json:"runs_to_count"`
	MaxRuns         *int  `json:"max_runs,omitempty"`
}

// Course is an ordered collection of Stages.
type Course struct {
	ID             int64  `json:"id"`
	EventID        int64  `json:"event_id"`
	Name           string `json:"name"`
	Laps           int    `json:"laps"`
	StagesAnyOrder bool   `json:"stages_any_order"`
	AllowRepeat    bool   `json:"allow_repeat"`
}

// CourseStage is the ordered junction between a Course and a Stage.
type CourseStage struct {
	ID         int64 `json:"id"`
	CourseID   int64 `json:"course_id"`
	StageID    int64 `json:"stage_id"`
	StageOrder int   `json:"stage_order"`
}

// Class is a competitor category bound to exactly one Course.
type Class struct {
	ID            int64   `json:"id"`
	EventID       int64   `json:"event_id"`
	CourseID      int64   `json:"course_id"`
	Name          string  `json:"name"`
	MassStartTime *string `json:"mass_start_time,omitempty"`
}

// EntryStatus is the terminal/registered state of a competitor.
type EntryStatus string

const (
	EntryRegistered EntryStatus = "registered"
	EntryDNS        EntryStatus = "dns"
	EntryDNF        EntryStatus = "dnf"
	EntryDSQ        EntryStatus = "dsq"
)

// Entry is one competitor in one Event.
type Entry struct {
	ID        int64       `json:"id"`
	EventID   int64       `json:"event_id"`
	Bib       int         `json:"bib"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	Club      string      `json:"club,omitempty"`
	ClassID   int64       `json:"class_id"`
	Status    EntryStatus `json:"status"`
}

// ChipMapping binds a chip id to an Entry's bib.
type ChipMapping struct {
	ID        int64 `json:"id"`
	EventID   int64 `json:"event_id"`
	Bib       int   `json:"bib"`
	ChipID    int64 `json:"chip_id"`
	IsPrimary bool  `json:"is_primary"`
}

// PunchSource ranks the trustworthiness of a punch's origin. Lower
// Priority() is stronger.
type PunchSource string

const (
	SourceUSB    PunchSource = "usb"
	SourceSIRAP  PunchSource = "sirap"
	SourceROC    PunchSource = "roc"
	SourceManual PunchSource = "manual"
)

// sourcePriority mirrors SOURCE_PRIORITY from the original implementation.
var sourcePriority = map[PunchSource]int{
	SourceUSB:    1,
	SourceSIRAP:  2,
	SourceROC:    3,
	SourceManual: 4,
}

// Priority returns the source's priority rank; lower is stronger.
// Unknown sources rank weakest.
func (s PunchSource) Priority() int {
	if p, ok := sourcePriority[s]; ok {
		return p
	}
	return len(sourcePriority) + 1
}

// Stronger reports whether s has strictly higher priority than other
// (lower numeric rank).
func (s PunchSource) Stronger(other PunchSource) bool {
	return s.Priority() < other.Priority()
}

// Punch is an immutable raw chip reading. Punches are never mutated
// after insertion; IsDuplicate is assigned at insertion time.
type Punch struct {
	ID          int64       `json:"id"`
	EventID     int64       `json:"event_id"`
	ChipID      int64       `json:"chip_id"`
	ControlCode int         `json:"control_code"`
	PunchTime   time.Time   `json:"punch_time"`
	Source      PunchSource `json:"source"`
	UpstreamID  *int64      `json:"upstream_id,omitempty"`
	IsDuplicate bool        `json:"is_duplicate"`
	ReceivedAt  time.Time   `json:"received_at"`
}

// RunStatus is the outcome classification of a StageRun.
type RunStatus string

const (
	RunPending RunStatus = "pending"
	RunOK      RunStatus = "ok"
	RunDNS     RunStatus = "dns"
	RunDNF     RunStatus = "dnf"
	RunDSQ     RunStatus = "dsq"
)

// RunState tracks a StageRun's place in the supersession lifecycle.
type RunState string

const (
	RunStatePending    RunState = "pending"
	RunStateValid      RunState = "valid"
	RunStateSuperseded RunState = "superseded"
)

// StageRun is one computed attempt on a Stage by an Entry.
type StageRun struct {
	ID             int64      `json:"id"`
	EventID        int64      `json:"event_id"`
	EntryID        int64      `json:"entry_id"`
	StageID        int64      `json:"stage_id"`
	Attempt        int        `json:"attempt"`
	StartPunchID   *int64     `json:"start_punch_id,omitempty"`
	FinishPunchID  *int64     `json:"finish_punch_id,omitempty"`
	StartTime      *time.Time `json:"start_time,omitempty"`
	FinishTime     *time.Time `json:"finish_time,omitempty"`
	ElapsedSeconds *float64   `json:"elapsed_seconds,omitempty"`
	PenaltySeconds float64    `json:"penalty_seconds"`
	Status         RunStatus  `json:"status"`
	RunState       RunState   `json:"run_state"`
}

// CountingSeconds returns the time this run contributes toward a
// total: elapsed plus penalty. Callers must check Status==RunOK and
// ElapsedSeconds != nil first.
func (r *StageRun) CountingSeconds() float64 {
	if r.ElapsedSeconds == nil {
		return 0
	}
	return *r.ElapsedSeconds + r.PenaltySeconds
}

// OverallResult is the single aggregated row per (Event, Entry).
// Always rebuilt from StageRuns; never a primary source of truth.
type OverallResult struct {
	ID            int64       `json:"id"`
	EventID       int64       `json:"event_id"`
	EntryID       int64       `json:"entry_id"`
	TotalSeconds  *float64    `json:"total_seconds,omitempty"`
	Position      *int        `json:"position,omitempty"`
	TimeBehind    *float64    `json:"time_behind,omitempty"`
	Status        RunStatus   `json:"status"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// JournalKind enumerates the semantic events carried by the sync journal.
type JournalKind string

const (
	JournalRunCreated    JournalKind = "run_created"
	JournalRunSuperseded JournalKind = "run_superseded"
	JournalChipChanged   JournalKind = "chip_changed"
	JournalStatusChanged JournalKind = "status_changed"
	JournalPenaltyAdded  JournalKind = "penalty_added"
	JournalManualPunch   JournalKind = "manual_punch"
)

// JournalEntry is an append-only semantic event describing a state
// change. Journal ids are strictly monotonic per event.
type JournalEntry struct {
	ID        int64       `json:"id"`
	EventID   int64       `json:"event_id"`
	Kind      JournalKind `json:"kind"`
	Payload   string      `json:"payload"` // JSON-encoded; shape documented per Kind
	Synced    bool        `json:"synced"`
	CreatedAt time.Time   `json:"created_at"`
	SyncedAt  *time.Time  `json:"synced_at,omitempty"`
}

// RunCreatedPayload is the JSON shape of a JournalRunCreated entry.
type RunCreatedPayload struct {
	EntryID     int64    `json:"entry_id"`
	StageID     int64    `json:"stage_id"`
	Attempt     int      `json:"attempt"`
	Elapsed     float64  `json:"elapsed"`
	SourceHint  string   `json:"source_hint,omitempty"`
}

// RunSupersededPayload is the JSON shape of a JournalRunSuperseded entry.
type RunSupersededPayload struct {
	EntryID int64  `json:"entry_id"`
	StageID int64  `json:"stage_id"`
	Attempt int    `json:"attempt"`
	Reason  string `json:"reason"` // e.g. "usb_override"
}
