package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitytiming/core/internal/ir"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpenAppliesPragmas(t *testing.T) {
	st := openTestStore(t)

	var journalMode string
	require.NoError(t, st.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var foreignKeys int
	require.NoError(t, st.db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)
}

func TestCreateAndReadEvent(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	eventID, err := st.CreateEvent(ctx, ir.Event{
		Name: "Test Event", Date: "2026-06-01", Format: ir.FormatEnduro,
		StageOrder: ir.StageOrderFixed, TimePrecision: ir.PrecisionSeconds,
	})
	require.NoError(t, err)

	event, err := st.ReadEvent(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, "Test Event", event.Name)
	assert.Equal(t, ir.EventSetup, event.Status, "CreateEvent defaults status to setup")
	assert.Equal(t, ir.TieBreakSequential, event.TieBreakMode, "CreateEvent defaults tie_break_mode")
}

func TestUpsertEntryByBib(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	eventID, err := st.CreateEvent(ctx, ir.Event{Name: "E", Date: "2026-06-01", Format: ir.FormatEnduro})
	require.NoError(t, err)
	courseID, err := st.CreateCourse(ctx, ir.Course{EventID: eventID, Name: "C", Laps: 1})
	require.NoError(t, err)
	classID, err := st.CreateClass(ctx, ir.Class{EventID: eventID, CourseID: courseID, Name: "Elite"})
	require.NoError(t, err)

	id1, err := st.UpsertEntry(ctx, ir.Entry{EventID: eventID, Bib: 7, FirstName: "A", ClassID: classID, Status: ir.EntryRegistered})
	require.NoError(t, err)

	id2, err := st.UpsertEntry(ctx, ir.Entry{EventID: eventID, Bib: 7, FirstName: "A-renamed", ClassID: classID, Status: ir.EntryRegistered})
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "upsert by bib must update the same row, not insert a new one")

	entry, found, err := st.ReadEntryByBib(ctx, eventID, 7)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "A-renamed", entry.FirstName)
}

func TestUpdateEntryStatus(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	eventID, err := st.CreateEvent(ctx, ir.Event{Name: "E", Date: "2026-06-01", Format: ir.FormatEnduro})
	require.NoError(t, err)
	courseID, err := st.CreateCourse(ctx, ir.Course{EventID: eventID, Name: "C", Laps: 1})
	require.NoError(t, err)
	classID, err := st.CreateClass(ctx, ir.Class{EventID: eventID, CourseID: courseID, Name: "Elite"})
	require.NoError(t, err)
	entryID, err := st.UpsertEntry(ctx, ir.Entry{EventID: eventID, Bib: 1, FirstName: "A", ClassID: classID, Status: ir.EntryRegistered})
	require.NoError(t, err)

	require.NoError(t, st.UpdateEntryStatus(ctx, entryID, ir.EntryDNF))

	entry, found, err := st.ReadEntry(ctx, entryID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ir.EntryDNF, entry.Status)

	err = st.UpdateEntryStatus(ctx, entryID+999, ir.EntryDNS)
	assert.Error(t, err, "updating a nonexistent entry must fail rather than silently no-op")
}

func TestSettingsRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	_, ok, err := st.GetSetting(ctx, "ingest_paused")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.SetSetting(ctx, "ingest_paused", "true"))
	value, ok, err := st.GetSetting(ctx, "ingest_paused")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "true", value)
}

func TestBackupCreatesNamedSnapshot(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	_, err := st.CreateEvent(ctx, ir.Event{Name: "E", Date: "2026-06-01", Format: ir.FormatEnduro})
	require.NoError(t, err)

	destDir := t.TempDir()
	now := time.Date(2026, 6, 1, 14, 30, 0, 0, time.UTC)
	path, err := st.Backup(ctx, destDir, "auto", now)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(destDir, "gravitytiming_20260601_143000_auto.db"), path)
	_, err = os.Stat(path)
	require.NoError(t, err)

	snapshot, err := Open(path)
	require.NoError(t, err)
	defer snapshot.Close()
	event, err := snapshot.ReadEvent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "E", event.Name)
}

func TestReadAllClasses(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	eventID, err := st.CreateEvent(ctx, ir.Event{Name: "E", Date: "2026-06-01", Format: ir.FormatEnduro})
	require.NoError(t, err)
	courseID, err := st.CreateCourse(ctx, ir.Course{EventID: eventID, Name: "C", Laps: 1})
	require.NoError(t, err)

	_, err = st.CreateClass(ctx, ir.Class{EventID: eventID, CourseID: courseID, Name: "Expert"})
	require.NoError(t, err)
	_, err = st.CreateClass(ctx, ir.Class{EventID: eventID, CourseID: courseID, Name: "Amateur"})
	require.NoError(t, err)

	classes, err := st.ReadAllClasses(ctx, eventID)
	require.NoError(t, err)
	require.Len(t, classes, 2)
	assert.Equal(t, "Amateur", classes[0].Name, "ordered by name ascending")
}
