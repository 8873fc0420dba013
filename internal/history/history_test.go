package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOpenEmptyPathReturnsNoop(t *testing.T) {
	l, err := Open("")
	require.NoError(t, err)
	require.NoError(t, l.RecordConnectAttempt("alpha", ActionConnect, OutcomeSuccess, "", time.Now(), time.Now()))
	entries, err := l.RecentHistory("alpha", 10)
	require.NoError(t, err)
	require.Empty(t, entries)
	require.NoError(t, l.Close())
}

func TestSQLiteLedgerRecordsAndQueries(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	l, err := Open(dbPath)
	require.NoError(t, err)
	defer l.Close()

	started := time.Now().Add(-time.Minute)
	finished := time.Now()
	require.NoError(t, l.RecordConnectAttempt("alpha", ActionConnect, OutcomeSuccess, "ok", started, finished))
	require.NoError(t, l.RecordConnectAttempt("alpha", ActionDisconnect, OutcomeSuccess, "", started, finished))
	require.NoError(t, l.RecordConnectAttempt("beta", ActionConnect, OutcomeFatal, "permission denied", started, finished))

	entries, err := l.RecentHistory("alpha", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, ActionDisconnect, entries[0].Action)

	betaEntries, err := l.RecentHistory("beta", 10)
	require.NoError(t, err)
	require.Len(t, betaEntries, 1)
	require.Equal(t, OutcomeFatal, betaEntries[0].Outcome)
}

func TestRecentHistoryRespectsLimit(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	l, err := Open(dbPath)
	require.NoError(t, err)
	defer l.Close()

	now := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.RecordConnectAttempt("alpha", ActionConnect, OutcomeSuccess, "", now, now))
	}
	entries, err := l.RecentHistory("alpha", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
