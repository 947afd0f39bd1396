package drift

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, agents []Agent) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roster.json")
	data, err := json.Marshal(agents)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestCompare_CleanWhenRostersMatch(t *testing.T) {
	declared := []Agent{{ID: "a1", Name: "Alpha"}}
	path := writeFixture(t, declared)

	report, err := Compare(context.Background(), declared, FixtureSource{Path: path})
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.Equal(t, 0, ExitCode(report))
}

func TestCompare_DetectsMissingExtraAndMismatch(t *testing.T) {
	declared := []Agent{
		{ID: "a1", Name: "Alpha"},
		{ID: "a2", Name: "Bravo"},
	}
	live := []Agent{
		{ID: "a1", Name: "Alpha Renamed"},
		{ID: "a3", Name: "Charlie"},
	}
	path := writeFixture(t, live)

	report, err := Compare(context.Background(), declared, FixtureSource{Path: path})
	require.NoError(t, err)
	assert.False(t, report.Clean())
	require.Len(t, report.Missing, 1)
	assert.Equal(t, "a2", report.Missing[0].ID)
	require.Len(t, report.Extra, 1)
	assert.Equal(t, "a3", report.Extra[0].ID)
	require.Len(t, report.Mismatch, 1)
	assert.Equal(t, "a1", report.Mismatch[0].ID)
	assert.Equal(t, 1, ExitCode(report))
}

func TestCompare_MissingFixtureIsHardError(t *testing.T) {
	_, err := Compare(context.Background(), nil, FixtureSource{Path: "/nonexistent/roster.json"})
	assert.Error(t, err)
}

func TestLiveSource_UnreachableCommandIsClearError(t *testing.T) {
	src := LiveSource{Command: "definitely-not-a-real-binary-xyz"}
	_, err := src.Roster(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not reachable")
}

func TestSummary_ReportsEachBucket(t *testing.T) {
	report := Report{
		Missing:  []Agent{{ID: "a2", Name: "Bravo"}},
		Extra:    []Agent{{ID: "a3", Name: "Charlie"}},
		Mismatch: []Mismatch{{ID: "a1", DeclaredName: "Alpha", LiveName: "Alpha Renamed"}},
	}
	text := Summary(report)
	assert.Contains(t, text, "missing: a2")
	assert.Contains(t, text, "extra: a3")
	assert.Contains(t, text, "mismatch: a1")
}
