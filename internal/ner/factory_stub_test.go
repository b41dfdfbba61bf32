//go:build !onnx
// +build !onnx

package ner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/raaihank/phi-sentinel/internal/config"
	"github.com/raaihank/phi-sentinel/internal/logger"
	"github.com/raaihank/phi-sentinel/internal/privacy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithoutBackendFallsBackToPatterns(t *testing.T) {
	dir := t.TempDir()
	vocab := filepath.Join(dir, "vocab.txt")
	labels := filepath.Join(dir, "labels.txt")
	require.NoError(t, os.WriteFile(vocab, []byte("[PAD]\n[UNK]\n"), 0o600))
	require.NoError(t, os.WriteFile(labels, []byte("O\nB-PER\n"), 0o600))

	rec, err := New(config.EntityConfig{
		Enabled:    true,
		ModelPath:  filepath.Join(dir, "model.onnx"),
		VocabPath:  vocab,
		LabelsPath: labels,
		MaxLength:  16,
	}, logger.NewNop())

	require.NoError(t, err)
	assert.Equal(t, privacy.NoEntities, rec)
}
