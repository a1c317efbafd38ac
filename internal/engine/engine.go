package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"io"

	"github.com/gravitytiming/core/internal/aggregator"
	"github.com/gravitytiming/core/internal/csvimport"
	"github.com/gravitytiming/core/internal/dualslalom"
	"github.com/gravitytiming/core/internal/errs"
	"github.com/gravitytiming/core/internal/ingest"
	"github.com/gravitytiming/core/internal/ir"
	"github.com/gravitytiming/core/internal/observer"
	"github.com/gravitytiming/core/internal/recompute"
	"github.com/gravitytiming/core/internal/store"
	"github.com/gravitytiming/core/internal/template"
)

// Engine drives the live pipeline: it wraps every repository-mutating
// operation (punch ingest, bulk recompute, dual-slalom grouping,
// template apply) in a per-event critical section, then fans the
// result out through a Sink.
//
// Unlike a single global write-serializing loop, the critical section
// here is scoped per event: mutations to DISTINCT events proceed
// fully concurrently, while mutations to the SAME event serialize in
// the order they arrive.
type Engine struct {
	store  *store.Store
	logger *slog.Logger
	sink   observer.Sink
	clock  *Clock

	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex
}

// New creates an Engine over the given store, publishing outbound
// events to sink.
func New(st *store.Store, logger *slog.Logger, sink observer.Sink) *Engine {
	return &Engine{
		store:  st,
		logger: logger,
		sink:   sink,
		clock:  NewClock(),
		locks:  make(map[int64]*sync.Mutex),
	}
}

// lockFor returns the mutex guarding eventID's repository state,
// creating it on first use.
func (e *Engine) lockFor(eventID int64) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	l, ok := e.locks[eventID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[eventID] = l
	}
	return l
}

// withEventLock runs fn while holding eventID's critical section.
func (e *Engine) withEventLock(eventID int64, fn func() error) error {
	l := e.lockFor(eventID)
	l.Lock()
	defer l.Unlock()
	return fn()
}

// IngestPunch admits and assembles one punch under eventID's critical
// section, then — if the punch resolved to a StageRun — recalculates
// overall results and publishes the punch, any generated highlights,
// and a refreshed standings event for the affected entry's class.
// Mirrors spec §4.1/§4.2's ingest-then-assemble-then-publish sequence.
func (e *Engine) IngestPunch(ctx context.Context, eventID, chipID int64, controlCode int, punchTime time.Time, source ir.PunchSource, upstreamID *int64) (ingest.Result, error) {
	var result ingest.Result
	err := e.withEventLock(eventID, func() error {
		var err error
		result, err = ingest.Ingest(ctx, e.store, e.logger, eventID, chipID, controlCode, punchTime, source, upstreamID)
		if err != nil {
			return err
		}
		if result.IsDuplicate || result.StageRun == nil {
			return nil
		}
		if err := aggregator.Recalculate(ctx, e.store, eventID); err != nil {
			return fmt.Errorf("engine: recalculate after ingest: %w", err)
		}
		return e.publishPunchOutcome(ctx, eventID, *result.StageRun)
	})
	return result, err
}

// publishPunchOutcome fans out the events triggered by one finalized
// StageRun: the punch event itself, any auto-generated highlights
// when the run is ok, and a refreshed standings event for the
// entry's class.
func (e *Engine) publishPunchOutcome(ctx context.Context, eventID int64, run ir.StageRun) error {
	entry, found, err := e.store.ReadEntry(ctx, run.EntryID)
	if err != nil {
		return fmt.Errorf("engine: read entry %d: %w", run.EntryID, err)
	}
	if !found {
		return nil
	}

	if err := e.sink.Publish(ctx, observer.EventPunch, observer.PunchEvent{
		EventID: eventID, Bib: entry.Bib, StageID: run.StageID, Run: &run,
	}); err != nil {
		e.logger.Warn("publish punch event failed", "event_id", eventID, "err", err)
	}

	if run.Status == ir.RunOK {
		highlights, err := observer.GenerateHighlights(ctx, e.store, eventID, run.EntryID, run.StageID)
		if err != nil {
			return fmt.Errorf("engine: generate highlights: %w", err)
		}
		for _, h := range highlights {
			if err := e.sink.Publish(ctx, observer.EventHighlight, h); err != nil {
				e.logger.Warn("publish highlight failed", "event_id", eventID, "err", err)
			}
		}
	}

	return e.publishStandingsForClass(ctx, eventID, entry.ClassID)
}

// publishStandingsForClass re-reads a class's entries and current
// overall results and publishes a StandingsEvent.
func (e *Engine) publishStandingsForClass(ctx context.Context, eventID, classID int64) error {
	class, err := e.store.ReadClass(ctx, classID)
	if err != nil {
		return fmt.Errorf("engine: read class %d: %w", classID, err)
	}

	entries, err := e.store.ReadEntriesForClass(ctx, classID)
	if err != nil {
		return fmt.Errorf("engine: read entries for class %d: %w", classID, err)
	}

	standings := make([]ir.OverallResult, 0, len(entries))
	for _, entry := range entries {
		r, found, err := e.store.ReadOverallResult(ctx, eventID, entry.ID)
		if err != nil {
			return fmt.Errorf("engine: read overall result for entry %d: %w", entry.ID, err)
		}
		if found {
			standings = append(standings, r)
		}
	}

	if err := e.sink.Publish(ctx, observer.EventStandings, observer.StandingsEvent{
		EventID: eventID, ClassName: class.Name, Standings: standings,
	}); err != nil {
		e.logger.Warn("publish standings event failed", "event_id", eventID, "class", class.Name, "err", err)
	}
	return nil
}

// Recompute runs the bulk-recompute fixed point (spec §4.5) under
// eventID's critical section, then publishes a refreshed standings
// event for every class in the event.
func (e *Engine) Recompute(ctx context.Context, eventID int64) ([]string, error) {
	var diffs []string
	err := e.withEventLock(eventID, func() error {
		var err error
		diffs, err = recompute.RecomputeAll(ctx, e.store, e.logger, eventID)
		if err != nil {
			return err
		}
		return e.publishAllStandings(ctx, eventID)
	})
	return diffs, err
}

// GroupDualSlalomStarts runs the dual-slalom start grouper (spec
// §4.4) under eventID's critical section. Grouping can change
// elapsed times for already-finished runs, so overall results are
// recalculated and republished afterward.
func (e *Engine) GroupDualSlalomStarts(ctx context.Context, eventID int64, windowSeconds float64) (int, error) {
	var groups int
	err := e.withEventLock(eventID, func() error {
		var err error
		groups, err = dualslalom.GroupStarts(ctx, e.store, eventID, windowSeconds)
		if err != nil {
			return err
		}
		if err := aggregator.Recalculate(ctx, e.store, eventID); err != nil {
			return fmt.Errorf("engine: recalculate after grouping: %w", err)
		}
		return e.publishAllStandings(ctx, eventID)
	})
	return groups, err
}

// ApplyTemplate clears and re-materializes an event's structural
// entities from tmpl (spec §6) under eventID's critical section.
func (e *Engine) ApplyTemplate(ctx context.Context, eventID int64, tmpl template.Template) ([]string, error) {
	var warnings []string
	err := e.withEventLock(eventID, func() error {
		var err error
		warnings, err = template.Apply(ctx, e.store, eventID, tmpl)
		return err
	})
	return warnings, err
}

// publishAllStandings republishes every class's standings, used after
// operations (recompute, dual-slalom grouping) that can move many
// entries' rankings at once rather than a single one.
func (e *Engine) publishAllStandings(ctx context.Context, eventID int64) error {
	classes, err := e.store.ReadAllClasses(ctx, eventID)
	if err != nil {
		return fmt.Errorf("engine: read classes: %w", err)
	}
	for _, c := range classes {
		if err := e.publishStandingsForClass(ctx, eventID, c.ID); err != nil {
			return err
		}
	}
	return nil
}

// ImportStartlist upserts eventID's entries by bib from a startlist CSV
// (spec §6) under the event's critical section.
func (e *Engine) ImportStartlist(ctx context.Context, eventID int64, r io.Reader) (int, []string, error) {
	var imported int
	var warnings []string
	err := e.withEventLock(eventID, func() error {
		var err error
		imported, warnings, err = csvimport.ImportStartlist(ctx, e.store, e.logger, eventID, r)
		return err
	})
	return imported, warnings, err
}

// ImportChipMapping loads chip-to-bib assignments for eventID from a
// CSV (spec §6) under the event's critical section.
func (e *Engine) ImportChipMapping(ctx context.Context, eventID int64, r io.Reader) (int, []string, error) {
	var imported int
	var warnings []string
	err := e.withEventLock(eventID, func() error {
		var err error
		imported, warnings, err = csvimport.ImportChipMapping(ctx, e.store, e.logger, eventID, r)
		return err
	})
	return imported, warnings, err
}

// ImportPunches replays a ROC-shaped punch export through the live
// ingest path (spec §6) under the event's critical section, then
// recalculates and republishes standings once for the whole batch
// rather than per punch.
func (e *Engine) ImportPunches(ctx context.Context, eventID int64, r io.Reader) (int, int, []string, error) {
	var total, imported int
	var warnings []string
	err := e.withEventLock(eventID, func() error {
		var err error
		total, imported, warnings, err = csvimport.ImportPunches(ctx, e.store, e.logger, eventID, r)
		if err != nil {
			return err
		}
		if imported == 0 {
			return nil
		}
		if err := aggregator.Recalculate(ctx, e.store, eventID); err != nil {
			return fmt.Errorf("engine: recalculate after punch import: %w", err)
		}
		return e.publishAllStandings(ctx, eventID)
	})
	return total, imported, warnings, err
}

// SetEntryStatus records an entry's terminal status (registered/dns/
// dnf/dsq) and recalculates overall results and standings for the
// entry's event, since an entry-level status overrides whatever its
// stage runs would otherwise compute (spec §9).
func (e *Engine) SetEntryStatus(ctx context.Context, eventID, entryID int64, status ir.EntryStatus) error {
	return e.withEventLock(eventID, func() error {
		if err := e.store.UpdateEntryStatus(ctx, entryID, status); err != nil {
			return err
		}
		if err := aggregator.Recalculate(ctx, e.store, eventID); err != nil {
			return fmt.Errorf("engine: recalculate after entry status change: %w", err)
		}
		return e.publishAllStandings(ctx, eventID)
	})
}

// SetIngestPaused toggles the ingest_paused race-day setting (spec
// §5's "Race-day toggles"), the only one of the three settings that
// affects the core pipeline.
func (e *Engine) SetIngestPaused(ctx context.Context, paused bool) error {
	value := "false"
	if paused {
		value = "true"
	}
	if err := e.store.SetSetting(ctx, "ingest_paused", value); err != nil {
		return errs.NewFatalError("set ingest_paused", err)
	}
	return nil
}
