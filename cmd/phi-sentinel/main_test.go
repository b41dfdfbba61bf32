package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/raaihank/phi-sentinel/internal/audit"
	"github.com/raaihank/phi-sentinel/internal/scan"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags returns every flag to its default; cobra keeps parsed values
// between executions of the same command tree
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// writeConfig points the audit trail at a temporary directory
func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	auditDir := filepath.Join(dir, "audit")
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`
audit:
  base_dir: %q
logging:
  level: error
  format: console
`, auditDir)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path, auditDir
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "PHI-Sentinel "+Version)
}

func TestRedactFromStdin(t *testing.T) {
	cfg, _ := writeConfig(t)

	out, err := run(t, "SSN 123-45-6789, again 123-45-6789", "redact", "--config", cfg, "--text-only")
	require.NoError(t, err)
	assert.Equal(t, "SSN [PHI:SSN:1], again [PHI:SSN:2]", out)
}

func TestDetectReducedOmitsMatchedText(t *testing.T) {
	cfg, _ := writeConfig(t)

	out, err := run(t, "", "detect", "--config", cfg, "--text", "mail jane.roe@example.org", "--reduced")
	require.NoError(t, err)
	assert.NotContains(t, out, "jane.roe")

	var result struct {
		Detections []struct {
			Kind string `json:"kind"`
		} `json:"detections"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.Detections, 1)
	assert.Equal(t, "email", result.Detections[0].Kind)
}

func TestAllowlistKeepsQuantifierCommas(t *testing.T) {
	cfg, _ := writeConfig(t)

	out, err := run(t, "", "detect", "--config", cfg, "--text", "call 555-123-4567",
		"--allowlist", `^555-\d{3,4}-\d{4}$`)
	require.NoError(t, err)

	var result struct {
		Detections []json.RawMessage `json:"detections"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Empty(t, result.Detections)

	out, err = run(t, "SSN 123-45-6789, call 555-123-4567", "redact", "--config", cfg, "--text-only",
		"--allowlist", `^\d{3,3}-\d{2}-\d{4}$`, "--allowlist", `^555-\d{3,4}-\d{4}$`)
	require.NoError(t, err)
	assert.Equal(t, "SSN 123-45-6789, call 555-123-4567", out)
}

func TestDetectRejectsUnknownSensitivity(t *testing.T) {
	cfg, _ := writeConfig(t)

	_, err := run(t, "", "detect", "--config", cfg, "--text", "x", "--sensitivity", "extreme")
	assert.Error(t, err)
}

func TestScanFileAndAuditTail(t *testing.T) {
	cfg, _ := writeConfig(t)
	input := filepath.Join(t.TempDir(), "items.jsonl")
	require.NoError(t, os.WriteFile(input, []byte(
		`{"item_id":"a","content":"SSN 123-45-6789"}`+"\n"+
			`{"item_id":"b","content":"nothing here"}`+"\n"), 0o600))

	out, err := run(t, "", "scan", input, "--config", cfg, "--project", "cli-test")
	require.NoError(t, err)
	assert.NotContains(t, out, "123-45-6789")

	var scanned struct {
		Result scan.BatchResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &scanned))
	assert.Equal(t, 2, scanned.Result.Total)
	assert.Equal(t, 1, scanned.Result.Flagged)

	out, err = run(t, "", "audit", "tail", "--config", cfg, "--project", "cli-test")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	var ev audit.Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ev))
	assert.Equal(t, audit.ActionScanItems, ev.Action)
	assert.Equal(t, input, ev.ResourceID)
}

func TestStreamFromStdin(t *testing.T) {
	cfg, _ := writeConfig(t)
	text := strings.Repeat("filler ", 400) + "call 555-123-4567"

	out, err := run(t, text, "stream", "--config", cfg, "--chunk-size", "1024", "--overlap", "64")
	require.NoError(t, err)

	var result scan.StreamResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, int64(len(text)), result.TotalBytes)
	assert.Equal(t, 1, result.FlaggedChunks)
}

func TestAuditLogRequiresKeyValueMetadata(t *testing.T) {
	cfg, _ := writeConfig(t)

	_, err := run(t, "", "audit", "log", "--config", cfg, "--action", "export", "--meta", "rows")
	assert.Error(t, err)

	out, err := run(t, "", "audit", "log", "--config", cfg, "--project", "manual", "--action", "export", "--meta", "rows=12")
	require.NoError(t, err)
	var ev audit.Event
	require.NoError(t, json.Unmarshal([]byte(out), &ev))
	assert.Equal(t, "12", ev.Metadata["rows"])
	assert.Equal(t, "manual", ev.ProjectID)
}

func TestValidateRejectsSmallK(t *testing.T) {
	cfg, _ := writeConfig(t)

	_, err := run(t, "", "validate", "--config", cfg, "--text", "x", "--k", "1")
	assert.Error(t, err)
}

func TestKindsListsBuiltins(t *testing.T) {
	cfg, _ := writeConfig(t)

	out, err := run(t, "", "kinds", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "ssn")
	assert.Contains(t, out, "email")
}
