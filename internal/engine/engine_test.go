package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/raaihank/phi-sentinel/internal/audit"
	"github.com/raaihank/phi-sentinel/internal/config"
	"github.com/raaihank/phi-sentinel/internal/deid"
	"github.com/raaihank/phi-sentinel/internal/metrics"
	"github.com/raaihank/phi-sentinel/internal/privacy"
	"github.com/raaihank/phi-sentinel/internal/redact"
	"github.com/raaihank/phi-sentinel/internal/scan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var actor = Actor{ProjectID: "study-42", UserID: "analyst", ResourceID: "doc-1"}

type recordingObserver struct {
	mu      sync.Mutex
	batch   int
	chunks  int
	audited []audit.Event
}

func (o *recordingObserver) BatchProgress(string, int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.batch++
}

func (o *recordingObserver) StreamProgress(string, scan.ChunkProgress) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.chunks++
}

func (o *recordingObserver) AuditRecorded(e audit.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.audited = append(o.audited, e)
}

// counterValue reads one counter from the collector's registry
func counterValue(t *testing.T, c *metrics.Collector, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := c.Registry().Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "phi_sentinel_engine_"+name {
			continue
		}
	metric:
		for _, m := range family.GetMetric() {
			for _, pair := range m.GetLabel() {
				if labels[pair.GetName()] != pair.GetValue() {
					continue metric
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func newEngine(t *testing.T, opts ...Option) (*Engine, *metrics.Collector) {
	t.Helper()
	store, err := audit.NewFileStore(t.TempDir())
	require.NoError(t, err)
	fp, err := redact.NewFingerprinter("test-salt")
	require.NoError(t, err)
	collector := metrics.NewCollector(config.MetricsConfig{}, prometheus.NewRegistry())

	all := append([]Option{WithAudit(audit.NewLogger(store, nil)), WithMetrics(collector)}, opts...)
	return New(privacy.NewDetector(privacy.NewRegistry(), nil, nil), fp, nil, all...), collector
}

func TestEveryOperationEmitsOneAuditEvent(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	text := "Patient SSN 123-45-6789, call 555-123-4567"

	_, err := e.Detect(ctx, actor, text, privacy.SensitivityHigh, nil)
	require.NoError(t, err)
	_, err = e.ScanItems(ctx, actor, []scan.Item{{ID: "a", Content: text}, {ID: "b", Content: "clean"}}, scan.BatchConfig{}, nil)
	require.NoError(t, err)
	_, err = e.ScanText(ctx, actor, text, scan.StreamConfig{ChunkSize: 16, Overlap: 12}, nil)
	require.NoError(t, err)
	_, err = e.Redact(ctx, actor, text, redact.Config{})
	require.NoError(t, err)
	_, err = e.Validate(ctx, actor, text, deid.KAnonymityConfig{K: 5}, "")
	require.NoError(t, err)

	events, err := e.GetEvents(ctx, actor.ProjectID, 0)
	require.NoError(t, err)
	require.Len(t, events, 5)

	want := []audit.Action{audit.ActionDetect, audit.ActionScanItems, audit.ActionScanText, audit.ActionRedact, audit.ActionValidate}
	for i, ev := range events {
		assert.Equal(t, want[i], ev.Action)
		assert.Equal(t, actor.UserID, ev.UserID)
		assert.Equal(t, actor.ResourceID, ev.ResourceID)
		assert.Equal(t, "ok", ev.Metadata["outcome"])
	}
}

func TestAuditMetadataNeverHoldsMatchedText(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	_, err := e.Redact(ctx, actor, "SSN 123-45-6789 and jane.roe@example.org", redact.Config{})
	require.NoError(t, err)

	events, err := e.GetEvents(ctx, actor.ProjectID, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.Equal(t, []any{"email", "ssn"}, events[0].Metadata["kinds"])
	for _, v := range events[0].Metadata {
		s, isString := v.(string)
		if isString {
			assert.NotContains(t, s, "123-45-6789")
			assert.NotContains(t, s, "jane.roe")
		}
	}
}

func TestConfigurationErrorsAreAuditedAndReturned(t *testing.T) {
	e, collector := newEngine(t)
	ctx := context.Background()

	_, err := e.Validate(ctx, actor, "text", deid.KAnonymityConfig{K: 1}, privacy.SensitivityLow)
	require.Error(t, err)
	assert.True(t, privacy.IsConfigurationError(err))

	_, err = e.ScanText(ctx, actor, "text", scan.StreamConfig{ChunkSize: 10, Overlap: 10}, nil)
	require.Error(t, err)

	events, err := e.GetEvents(ctx, actor.ProjectID, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "error", events[0].Metadata["outcome"])
	assert.Equal(t, "configuration", events[0].Metadata["error_type"])

	assert.Equal(t, 1.0, counterValue(t, collector, "operations_total", map[string]string{"operation": "validate", "outcome": metrics.OutcomeError}))
}

type brokenStore struct{}

func (brokenStore) Append(context.Context, audit.Event) error {
	return errors.New("read-only filesystem")
}
func (brokenStore) Tail(context.Context, string, int) ([]audit.Event, error) {
	return nil, errors.New("read-only filesystem")
}
func (brokenStore) Name() string { return "broken" }
func (brokenStore) Close() error { return nil }

func TestAuditFailureDoesNotFailOperations(t *testing.T) {
	collector := metrics.NewCollector(config.MetricsConfig{}, prometheus.NewRegistry())
	auditLogger := audit.NewLogger(brokenStore{}, nil, audit.WithFailureHook(collector.RecordAuditFailure))
	fp, err := redact.NewFingerprinter("salt")
	require.NoError(t, err)
	e := New(privacy.NewDetector(nil, nil, nil), fp, nil, WithAudit(auditLogger), WithMetrics(collector))
	ctx := context.Background()

	result, err := e.Redact(ctx, actor, "SSN 123-45-6789", redact.Config{})
	require.NoError(t, err)
	assert.Equal(t, "SSN [PHI:SSN:1]", result.RedactedText)

	_, err = e.Detect(ctx, actor, "SSN 123-45-6789", "", nil)
	require.NoError(t, err)

	assert.Equal(t, 2.0, counterValue(t, collector, "audit_write_failures_total", map[string]string{"store": "broken"}))

	// the explicit audit operation does surface the failure
	_, err = e.LogEvent(ctx, audit.Event{ProjectID: "p"})
	var we *audit.WriteError
	assert.True(t, errors.As(err, &we))
}

func TestObserverReceivesProgressAndAudit(t *testing.T) {
	obs := &recordingObserver{}
	e, _ := newEngine(t, WithObserver(obs))
	ctx := context.Background()

	_, err := e.ScanItems(ctx, actor, []scan.Item{{ID: "1", Content: "a"}, {ID: "2", Content: "b"}, {ID: "3", Content: "c"}}, scan.BatchConfig{}, nil)
	require.NoError(t, err)
	_, err = e.ScanText(ctx, actor, strings.Repeat("x", 100), scan.StreamConfig{ChunkSize: 40, Overlap: 0}, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, obs.batch)
	assert.Equal(t, 3, obs.chunks)
	assert.Len(t, obs.audited, 2)
}

func TestLogEventAndGetEvents(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	for _, id := range []string{"r1", "r2", "r3"} {
		_, err := e.LogEvent(ctx, audit.Event{ProjectID: "manual", Action: "export", ResourceID: id})
		require.NoError(t, err)
	}

	events, err := e.GetEvents(ctx, "manual", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "r2", events[0].ResourceID)
	assert.Equal(t, "r3", events[1].ResourceID)
}

func TestAuditOperationsWithoutAuditTrail(t *testing.T) {
	fp, err := redact.NewFingerprinter("")
	require.NoError(t, err)
	e := New(privacy.NewDetector(nil, nil, nil), fp, nil)

	_, err = e.LogEvent(context.Background(), audit.Event{})
	assert.ErrorIs(t, err, ErrAuditDisabled)
	_, err = e.GetEvents(context.Background(), "p", 1)
	assert.ErrorIs(t, err, ErrAuditDisabled)

	// operations still work without a trail
	result, err := e.Detect(context.Background(), actor, "SSN 123-45-6789", "", nil)
	require.NoError(t, err)
	assert.Len(t, result.Detections, 1)
}

func TestDefaultsApplyToEmptyRequestFields(t *testing.T) {
	e, _ := newEngine(t, WithDefaults(Defaults{
		Sensitivity: privacy.SensitivityLow,
		Allowlist:   []string{`^555-123-4567$`},
		TokenPrefix: "PII",
		ChunkSize:   64,
		Overlap:     16,
	}))
	ctx := context.Background()

	detected, err := e.Detect(ctx, actor, "call 555-123-4567", "", nil)
	require.NoError(t, err)
	assert.Empty(t, detected.Detections)
	assert.Equal(t, privacy.SensitivityLow, detected.Sensitivity)

	redacted, err := e.Redact(ctx, actor, "SSN 123-45-6789", redact.Config{})
	require.NoError(t, err)
	assert.Equal(t, "SSN [PII:SSN:1]", redacted.RedactedText)

	streamed, err := e.ScanText(ctx, actor, strings.Repeat("y", 100), scan.StreamConfig{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, streamed.Chunks)
}

func TestBuildFromDefaults(t *testing.T) {
	cfg := config.GetDefaults()
	cfg.Audit.BaseDir = t.TempDir()

	rt, err := Build(cfg, nil)
	require.NoError(t, err)
	defer rt.Close()

	result, err := rt.Engine.Redact(context.Background(), actor, "Call 555-123-4567. Call 555-123-4567 again.", redact.Config{Sensitivity: privacy.SensitivityLow})
	require.NoError(t, err)
	assert.Equal(t, "Call [PHI:PHONE:1]. Call [PHI:PHONE:2] again.", result.RedactedText)

	events, err := rt.Engine.GetEvents(context.Background(), actor.ProjectID, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestBuildSkipsCacheWithoutSalt(t *testing.T) {
	cfg := config.GetDefaults()
	cfg.Audit.Enabled = false
	cfg.Cache.Enabled = true
	cfg.Cache.RedisURL = "redis://127.0.0.1:1/0"
	cfg.Redaction.Salt = ""

	rt, err := Build(cfg, nil)
	require.NoError(t, err)
	defer rt.Close()

	assert.Nil(t, rt.cache)
	result, err := rt.Engine.ScanItems(context.Background(), actor, []scan.Item{{ID: "a", Content: "SSN 123-45-6789"}}, scan.BatchConfig{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Flagged)
}

func TestBuildFailsOnUnusableAuditDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	cfg := config.GetDefaults()
	cfg.Audit.Enabled = true
	cfg.Audit.BaseDir = filepath.Join(blocker, "audit")

	_, err := Build(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit directory")
}

func TestBuildRejectsBadPatternPack(t *testing.T) {
	cfg := config.GetDefaults()
	cfg.Audit.Enabled = false
	cfg.Detection.PatternFiles = []string{"does-not-exist.yaml"}

	_, err := Build(cfg, nil)
	require.Error(t, err)
}
