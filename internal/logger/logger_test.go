package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "verbose", Format: "json"})
	assert.Error(t, err)
}

func TestNewWritesFileTee(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")
	log, err := New(Config{Level: "info", Format: "console", File: &FileConfig{Enabled: true, Path: path}})
	require.NoError(t, err)

	log.WithComponent("audit").Info("Audit store opened", zap.String("store", "file"))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"audit"`)
	assert.Contains(t, string(data), "Audit store opened")
}

func TestConsoleSinkSyncOnPipe(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	// a pipe is what stderr usually is under CI
	assert.NoError(t, consoleSink{w}.Sync())
}

func TestLogDetectionSummaryCarriesCountsOnly(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := (&Logger{Logger: zap.New(core)}).WithProject("study-42")

	log.LogDetectionSummary("redact", 120, map[string]int{"ssn": 2, "email": 1}, nil)

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "study-42", fields["project_id"])
	assert.Equal(t, int64(3), fields["detections"])
	assert.Equal(t, []interface{}{"email", "ssn"}, fields["kinds"])
	assert.NotContains(t, fields, "warnings")
}
