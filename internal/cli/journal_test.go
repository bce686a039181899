package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chainshadow/internal/journal"
)

// journaledRun simulates the warmup scenario into a fresh journal.
func journaledRun(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "shadow.db")
	_, _, err := execute(t, "simulate", "../scenario/testdata/scenarios", "--filter", "promote_*", "--journal", db)
	require.NoError(t, err)
	return db
}

func TestJournalDecisions_JSON(t *testing.T) {
	db := journaledRun(t)

	out, _, err := execute(t, "--format", "json", "journal", "decisions", "--db", db)
	require.NoError(t, err)

	var resp struct {
		Status string                  `json:"status"`
		Data   []journal.DecisionEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 5)
	assert.Equal(t, "below_parity_target", resp.Data[0].Decision.Reason, "newest first")
	assert.Equal(t, "insufficient_samples", resp.Data[4].Decision.Reason)
	assert.Equal(t, "NIFTY", resp.Data[0].Key.Index)
	assert.NotEqual(t, resp.Data[0].CycleID, resp.Data[1].CycleID)
}

func TestJournalDecisions_TextAndLimit(t *testing.T) {
	db := journaledRun(t)

	out, _, err := execute(t, "journal", "decisions", "--db", db, "--limit", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "REASON")
	assert.Contains(t, out, "below_parity_target")
	assert.Contains(t, out, "protected_block")
	assert.NotContains(t, out, "insufficient_samples")
}

func TestJournalDecisions_FilterNoMatch(t *testing.T) {
	db := journaledRun(t)

	out, _, err := execute(t, "journal", "decisions", "--db", db, "--index", "BANKNIFTY")
	require.NoError(t, err)
	assert.Contains(t, out, "No decisions found.")
}

func TestJournalExports(t *testing.T) {
	db := journaledRun(t)

	out, _, err := execute(t, "journal", "exports", "--db", db, "--index", "NIFTY", "--rule", "weekly")
	require.NoError(t, err)
	assert.Contains(t, out, "records=1 seen=1")
	assert.Contains(t, out, "upstream timeout")

	out, _, err = execute(t, "journal", "exports", "--db", db, "--index", "NIFTY", "--rule", "monthly")
	require.NoError(t, err)
	assert.Contains(t, out, "No error exports for NIFTY/monthly.")
}

func TestJournalExports_RequiresKey(t *testing.T) {
	_, _, err := execute(t, "journal", "exports", "--db", "unused.db", "--index", "NIFTY")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "requires --index and --rule")
}

func TestJournal_Missing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.db")
	_, _, err := execute(t, "journal", "decisions", "--db", missing)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "journal not found")
	assert.NoFileExists(t, missing)

	t.Setenv("CHAINSHADOW_JOURNAL_PATH", "")
	_, _, err = execute(t, "journal", "decisions")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no journal")
}
