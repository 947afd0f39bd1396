package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_TagsRecordsWithComponent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	logger := New("scheduler", slog.LevelInfo, f)
	logger.Info("tick %d", 3)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "component=scheduler")
	assert.Contains(t, string(data), "tick 3")
}

func TestNew_BelowLevelIsFiltered(t *testing.T) {
	var buf bytes.Buffer
	// log/slog.TextHandler writes directly to an io.Writer; New requires an
	// *os.File, so route through a pipe-backed file for this assertion.
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	logger := New("store", slog.LevelWarn, w)
	logger.Debug("should not appear")
	logger.Warn("should appear")
	w.Close()

	_, _ = buf.ReadFrom(r)
	out := buf.String()
	assert.NotContains(t, out, "should not appear")
	assert.Contains(t, out, "should appear")
}

func TestNop_NeverPanics(t *testing.T) {
	l := Nop()
	l.Debug("x")
	l.Info("x")
	l.Warn("x")
	l.Error("x")
}

func TestOrNop_NilFallsBackToNop(t *testing.T) {
	l := OrNop(nil)
	require.NotNil(t, l)
	l.Info("safe")
}

func TestOrNop_PassesThroughNonNil(t *testing.T) {
	l := Nop()
	assert.Equal(t, l, OrNop(l))
}
