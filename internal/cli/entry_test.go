package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitytiming/core/internal/ir"
	"github.com/gravitytiming/core/internal/store"
)

func seedEntryFixture(t *testing.T) (dbPath string, eventID int64) {
	t.Helper()
	dbPath = filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	eventID, err = st.CreateEvent(ctx, ir.Event{Name: "E", Date: "2026-06-01", Format: ir.FormatEnduro})
	require.NoError(t, err)
	courseID, err := st.CreateCourse(ctx, ir.Course{EventID: eventID, Name: "C", Laps: 1})
	require.NoError(t, err)
	classID, err := st.CreateClass(ctx, ir.Class{EventID: eventID, CourseID: courseID, Name: "Elite"})
	require.NoError(t, err)
	_, err = st.UpsertEntry(ctx, ir.Entry{EventID: eventID, Bib: 9, FirstName: "A", ClassID: classID, Status: ir.EntryRegistered})
	require.NoError(t, err)
	return dbPath, eventID
}

func TestEntrySetStatusCommand(t *testing.T) {
	dbPath, eventID := seedEntryFixture(t)

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"entry", "--db", dbPath, "--event", strconv.FormatInt(eventID, 10), "--bib", "9", "set-status", "--status", "dnf"})
	require.NoError(t, cmd.Execute())

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	entry, found, err := st.ReadEntryByBib(context.Background(), eventID, 9)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ir.EntryDNF, entry.Status)
}

func TestEntrySetStatusRejectsUnknownStatus(t *testing.T) {
	dbPath, eventID := seedEntryFixture(t)

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"entry", "--db", dbPath, "--event", strconv.FormatInt(eventID, 10), "--bib", "9", "set-status", "--status", "injured"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --status")
}

func TestEntrySetStatusRejectsUnknownBib(t *testing.T) {
	dbPath, eventID := seedEntryFixture(t)

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"entry", "--db", dbPath, "--event", strconv.FormatInt(eventID, 10), "--bib", "404", "set-status", "--status", "dsq"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no entry with bib")
}
