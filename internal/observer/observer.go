// Package observer decouples the pipeline from outbound event
// dissemination: punch/standings/highlight/stage_status events fan out
// to Sinks, and auto-generated speaker highlights are derived from
// stage results exactly as the original broadcast layer did. Grounded
// on api/websocket.py's ConnectionManager.broadcast_* and generate_highlights.
package observer

import (
	"context"
	"fmt"

	"github.com/gravitytiming/core/internal/ir"
	"github.com/gravitytiming/core/internal/store"
)

// EventKind names the four outbound event shapes.
type EventKind string

const (
	EventPunch       EventKind = "punch"
	EventStandings   EventKind = "standings"
	EventHighlight   EventKind = "highlight"
	EventStageStatus EventKind = "stage_status"
)

// Priority labels a highlight's urgency, mirroring the original's
// "high"/"normal" priority field.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
)

// PunchEvent reports a processed punch plus its resulting StageRun.
type PunchEvent struct {
	EventID int64        `json:"event_id"`
	Bib     int          `json:"bib"`
	StageID int64        `json:"stage_id"`
	Run     *ir.StageRun `json:"stage_run,omitempty"`
}

// StandingsEvent reports a refreshed per-class ranking.
type StandingsEvent struct {
	EventID   int64             `json:"event_id"`
	ClassName string            `json:"class"`
	Standings []ir.OverallResult `json:"standings"`
}

// HighlightEvent is an auto-generated speaker call-out.
type HighlightEvent struct {
	EventID     int64    `json:"event_id"`
	Category    string   `json:"category"`
	Text        string   `json:"text"`
	Bib         int      `json:"bib"`
	StageNumber int      `json:"stage_number,omitempty"`
	Priority    Priority `json:"priority"`
}

// StageStatusEvent reports a stage's live state (riders on course, etc).
type StageStatusEvent struct {
	EventID         int64  `json:"event_id"`
	StageID         int64  `json:"stage_id"`
	StageName       string `json:"stage_name"`
	Status          string `json:"status"`
	RidersOnCourse  int    `json:"riders_on_course"`
	RidersFinished  int    `json:"riders_finished"`
}

// Sink receives outbound events. The in-process fan-out sink never
// blocks (a full subscriber channel drops the message); the
// Redis-backed sink publishes synchronously, retrying with backoff
// before it returns.
type Sink interface {
	Publish(ctx context.Context, kind EventKind, payload any) error
}

// GenerateHighlights derives the speaker highlights triggered by one
// entry finishing a stage: new_leader, close_finish (within 2s of the
// stage leader), and podium (top-3 overall), in that order. Mirrors
// generate_highlights line for line.
func GenerateHighlights(ctx context.Context, st *store.Store, eventID, entryID, stageID int64) ([]HighlightEvent, error) {
	var highlights []HighlightEvent

	entry, found, err := st.ReadEntry(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("generate highlights: read entry: %w", err)
	}
	if !found {
		return highlights, nil
	}

	stage, found, err := st.ReadStage(ctx, stageID)
	if err != nil {
		return nil, fmt.Errorf("generate highlights: read stage: %w", err)
	}
	if !found {
		return highlights, nil
	}

	name := riderInitialName(entry)

	result, found, err := st.ReadBestStageRunForEntry(ctx, eventID, entryID, stageID)
	if err != nil {
		return nil, fmt.Errorf("generate highlights: read entry result: %w", err)
	}
	if !found || result.ElapsedSeconds == nil {
		return highlights, nil
	}
	elapsed := *result.ElapsedSeconds

	leaderEntryID, leaderTime, found, err := st.ReadStageLeader(ctx, eventID, stageID)
	if err != nil {
		return nil, fmt.Errorf("generate highlights: read stage leader: %w", err)
	}
	if found {
		if leaderEntryID == entryID {
			othersCount, err := st.CountOtherOKResultsForStage(ctx, eventID, stageID, entryID)
			if err != nil {
				return nil, fmt.Errorf("generate highlights: count others: %w", err)
			}
			if othersCount > 0 {
				highlights = append(highlights, HighlightEvent{
					EventID:     eventID,
					Category:    "new_leader",
					Text:        fmt.Sprintf("\U0001F3C6 #%d %s tar ledningen på Stage %d!", entry.Bib, name, stage.StageNumber),
					Bib:         entry.Bib,
					StageNumber: stage.StageNumber,
					Priority:    PriorityHigh,
				})
			}
		} else {
			diff := elapsed - leaderTime
			if diff > 0 && diff <= 2.0 {
				highlights = append(highlights, HighlightEvent{
					EventID:     eventID,
					Category:    "close_finish",
					Text:        fmt.Sprintf("⚡ #%d %s %.1fs från ledaren på Stage %d!", entry.Bib, name, diff, stage.StageNumber),
					Bib:         entry.Bib,
					StageNumber: stage.StageNumber,
					Priority:    PriorityHigh,
				})
			}
		}
	}

	overall, found, err := st.ReadOverallResult(ctx, eventID, entryID)
	if err != nil {
		return nil, fmt.Errorf("generate highlights: read overall result: %w", err)
	}
	if found && overall.Position != nil && *overall.Position <= 3 {
		highlights = append(highlights, HighlightEvent{
			EventID:     eventID,
			Category:    "podium",
			Text:        fmt.Sprintf("\U0001F3C5 #%d %s ligger %d:a totalt!", entry.Bib, name, *overall.Position),
			Bib:         entry.Bib,
			StageNumber: stage.StageNumber,
			Priority:    PriorityNormal,
		})
	}

	return highlights, nil
}

// riderInitialName renders "F.Lastname", mirroring the original's
// f"{first_name[0]}.{last_name}".
func riderInitialName(e ir.Entry) string {
	if e.FirstName == "" {
		return e.LastName
	}
	return fmt.Sprintf("%c.%s", []rune(e.FirstName)[0], e.LastName)
}
