package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inboxcleaner/internal/model"
	"inboxcleaner/internal/report"
	"inboxcleaner/internal/store"
)

const sampleMbox = "From sender@example.com Tue Jan  2 03:04:05 2024\n" +
	"From: Shop <deals@shop.example>\n" +
	"Subject: Sale\n" +
	"List-Unsubscribe: <https://shop.example/unsubscribe>\n" +
	"\n" +
	"Big sale.\n" +
	"\n"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("INBOXCLEANER_LOG_LEVEL", "error")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestScanMboxRecordsRun(t *testing.T) {
	dir := t.TempDir()
	mboxPath := filepath.Join(dir, "inbox.mbox")
	require.NoError(t, os.WriteFile(mboxPath, []byte(sampleMbox), 0o600))
	dbPath := filepath.Join(dir, "runs.db")

	_, err := execute(t, "--mbox", mboxPath, "--out-dir", dir, "--db", dbPath)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, report.HTMLFileName))
	require.NoError(t, err)

	db, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer db.Close()
	run, err := db.GetRun(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, mboxPath, run.Source)
	assert.Equal(t, 1, run.Stats.Scanned)
	assert.Equal(t, 1, run.Stats.LinksFound)

	out, err := execute(t, "history", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, run.ID)
	assert.Contains(t, out, "dry-run")
}

func TestHistoryEmpty(t *testing.T) {
	out, err := execute(t, "history", "--db", filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded yet.")
}

func TestInvalidFlagsFail(t *testing.T) {
	_, err := execute(t, "--workers", "0", "--mbox", "x.mbox")
	assert.ErrorContains(t, err, "--workers")
}

func TestHistoryTable(t *testing.T) {
	runs := []store.Run{{
		ID:        "run-1",
		StartedAt: time.Now().Add(-time.Hour),
		Source:    "gmail",
		Live:      true,
		Stats:     model.ScanStats{Scanned: 1200, LinksFound: 3},
	}}
	s := historyTable(runs).String()
	assert.Contains(t, s, "run-1")
	assert.Contains(t, s, "live")
	assert.Contains(t, s, "1,200")
	assert.Contains(t, s, "1 hour ago")
}
