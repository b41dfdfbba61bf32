package engine

import (
	"context"
	"errors"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/raaihank/phi-sentinel/internal/audit"
	"github.com/raaihank/phi-sentinel/internal/deid"
	"github.com/raaihank/phi-sentinel/internal/metrics"
	"github.com/raaihank/phi-sentinel/internal/privacy"
	"github.com/raaihank/phi-sentinel/internal/redact"
	"github.com/raaihank/phi-sentinel/internal/scan"
	"go.uber.org/zap"
)

// ErrAuditDisabled is returned by the audit operations when no audit
// trail is configured
var ErrAuditDisabled = errors.New("audit trail is disabled")

// Detect returns the non-overlapping detections in text
func (e *Engine) Detect(ctx context.Context, actor Actor, text string, sensitivity privacy.Sensitivity, allowlist []string) (*privacy.Result, error) {
	start := time.Now()
	sensitivity, allowlist = e.detectionDefaults(sensitivity, allowlist)

	result, err := func() (*privacy.Result, error) {
		compiled, err := privacy.CompileAllowlist(allowlist)
		if err != nil {
			return nil, err
		}
		return e.detector.Detect(ctx, text, privacy.Options{Sensitivity: sensitivity, Allowlist: compiled})
	}()

	metadata := map[string]any{"sensitivity": string(sensitivity), "text_bytes": len(text)}
	degraded := false
	if result != nil {
		metadata["detections"] = len(result.Detections)
		metadata["kinds"] = kindNames(result.Kinds())
		degraded = result.Degraded
		e.recordDetections(result.Detections)
	}
	e.finish(ctx, audit.ActionDetect, actor, start, err, degraded, metadata)
	return result, err
}

// ScanItems scans independent items with bounded concurrency. progress may
// be nil.
func (e *Engine) ScanItems(ctx context.Context, actor Actor, items []scan.Item, cfg scan.BatchConfig, progress scan.ProgressFunc) (*scan.BatchResult, error) {
	start := time.Now()
	cfg = e.batchDefaults(cfg)
	runID := uuid.NewString()

	result, err := e.batch.ScanItems(ctx, items, cfg, func(processed, total int) {
		if e.observer != nil {
			e.observer.BatchProgress(runID, processed, total)
		}
		if progress != nil {
			progress(processed, total)
		}
	})

	metadata := map[string]any{"run_id": runID, "sensitivity": string(cfg.Sensitivity), "items": len(items)}
	degraded := false
	if result != nil {
		metadata["flagged"] = result.Flagged
		metadata["failed"] = result.Failed
		metadata["cancelled"] = result.Cancelled
		degraded = result.Degraded > 0
		e.metrics.RecordBatch(result.Flagged, result.Total-result.Flagged-result.Failed, result.Failed)
		for _, r := range result.Results {
			e.recordDetections(r.Detections)
		}
	}
	e.finish(ctx, audit.ActionScanItems, actor, start, err, degraded, metadata)
	return result, err
}

// ScanText scans one large text as overlapping chunks
func (e *Engine) ScanText(ctx context.Context, actor Actor, text string, cfg scan.StreamConfig, progress scan.ChunkProgressFunc) (*scan.StreamResult, error) {
	return e.scanStream(ctx, actor, cfg, progress, func(cfg scan.StreamConfig, p scan.ChunkProgressFunc) (*scan.StreamResult, error) {
		return e.stream.ScanText(ctx, text, cfg, p)
	})
}

// ScanReader scans a reader as overlapping chunks without holding it in memory
func (e *Engine) ScanReader(ctx context.Context, actor Actor, r io.Reader, cfg scan.StreamConfig, progress scan.ChunkProgressFunc) (*scan.StreamResult, error) {
	return e.scanStream(ctx, actor, cfg, progress, func(cfg scan.StreamConfig, p scan.ChunkProgressFunc) (*scan.StreamResult, error) {
		return e.stream.ScanReader(ctx, r, cfg, p)
	})
}

func (e *Engine) scanStream(ctx context.Context, actor Actor, cfg scan.StreamConfig, progress scan.ChunkProgressFunc,
	run func(scan.StreamConfig, scan.ChunkProgressFunc) (*scan.StreamResult, error)) (*scan.StreamResult, error) {
	start := time.Now()
	cfg = e.streamDefaults(cfg)
	runID := uuid.NewString()

	result, err := run(cfg, func(p scan.ChunkProgress) {
		if e.observer != nil {
			e.observer.StreamProgress(runID, p)
		}
		if progress != nil {
			progress(p)
		}
	})

	metadata := map[string]any{
		"run_id":      runID,
		"sensitivity": string(cfg.Sensitivity),
		"chunk_size":  cfg.ChunkSize,
		"overlap":     cfg.Overlap,
	}
	degraded := false
	if result != nil {
		metadata["total_bytes"] = result.TotalBytes
		metadata["chunks"] = result.Chunks
		metadata["flagged_chunks"] = result.FlaggedChunks
		metadata["kinds"] = kindNames(result.Kinds)
		metadata["cancelled"] = result.Cancelled
		degraded = result.Degraded
		e.metrics.RecordStream(result.Chunks, result.FlaggedChunks)
	}
	e.finish(ctx, audit.ActionScanText, actor, start, err, degraded, metadata)
	return result, err
}

// Redact replaces detected identifiers with ordinal tokens
func (e *Engine) Redact(ctx context.Context, actor Actor, text string, cfg redact.Config) (*redact.Result, error) {
	start := time.Now()
	cfg.Sensitivity, cfg.Allowlist = e.detectionDefaults(cfg.Sensitivity, cfg.Allowlist)
	if cfg.TokenPrefix == "" {
		cfg.TokenPrefix = e.defaults.TokenPrefix
	}

	result, err := e.redactor.Redact(ctx, text, cfg)

	metadata := map[string]any{"sensitivity": string(cfg.Sensitivity), "text_bytes": len(text)}
	degraded := false
	if result != nil {
		kinds := make([]privacy.Kind, 0, len(result.Spans))
		seen := make(map[privacy.Kind]bool)
		for _, span := range result.Spans {
			if !seen[span.Kind] {
				seen[span.Kind] = true
				kinds = append(kinds, span.Kind)
			}
		}
		metadata["spans"] = len(result.Spans)
		metadata["kinds"] = kindNames(kinds)
		degraded = len(result.Warnings) > 0
	}
	e.finish(ctx, audit.ActionRedact, actor, start, err, degraded, metadata)
	return result, err
}

// Validate reports which direct identifiers remain in text
func (e *Engine) Validate(ctx context.Context, actor Actor, text string, cfg deid.KAnonymityConfig, sensitivity privacy.Sensitivity) (*deid.Report, error) {
	start := time.Now()
	if sensitivity == "" {
		sensitivity = e.defaults.Sensitivity
	}

	report, err := e.deid.Validate(ctx, text, cfg, sensitivity)

	metadata := map[string]any{"sensitivity": string(sensitivity), "k": cfg.K, "quasi_identifiers": len(cfg.QuasiIdentifiers)}
	degraded := false
	if report != nil {
		metadata["direct_identifiers_found"] = report.DirectIdentifiersFound
		metadata["kinds"] = kindNames(report.DirectIdentifierKinds)
		degraded = len(report.Warnings) > 0
	}
	e.finish(ctx, audit.ActionValidate, actor, start, err, degraded, metadata)
	return report, err
}

// LogEvent appends an event to the audit trail. Unlike the implicit events
// of the other operations, failures here are returned.
func (e *Engine) LogEvent(ctx context.Context, event audit.Event) (audit.Event, error) {
	if e.audit == nil {
		return event, ErrAuditDisabled
	}
	stored, err := e.audit.LogEvent(ctx, event)
	if err == nil && e.observer != nil {
		e.observer.AuditRecorded(stored)
	}
	return stored, err
}

// GetEvents returns the most recent limit events of a project in insertion order
func (e *Engine) GetEvents(ctx context.Context, projectID string, limit int) ([]audit.Event, error) {
	if e.audit == nil {
		return nil, ErrAuditDisabled
	}
	return e.audit.Events(ctx, projectID, limit)
}

// finish records metrics and the operation's audit event. Audit failures
// are logged and counted only.
func (e *Engine) finish(ctx context.Context, action audit.Action, actor Actor, start time.Time, opErr error, degraded bool, metadata map[string]any) {
	duration := time.Since(start)
	outcome := metrics.OutcomeOK
	switch {
	case opErr != nil:
		outcome = metrics.OutcomeError
		metadata["error_type"] = errorType(opErr)
	case degraded:
		outcome = metrics.OutcomeDegraded
		e.metrics.RecordDegraded()
	}
	metadata["outcome"] = outcome
	metadata["duration_ms"] = duration.Milliseconds()
	e.metrics.RecordOperation(string(action), outcome, duration)

	if opErr != nil {
		e.logger.Warn("Operation failed",
			zap.String("action", string(action)),
			zap.String("error_type", errorType(opErr)),
			zap.Error(opErr))
	}

	if e.audit == nil {
		return
	}
	// the audit record outlives a cancelled request
	stored, err := e.audit.LogEvent(context.WithoutCancel(ctx), audit.Event{
		ProjectID:   actor.ProjectID,
		UserID:      actor.UserID,
		Action:      action,
		ResourceID:  actor.ResourceID,
		Timestamp:   e.now(),
		Metadata:    metadata,
		UserContext: actor.UserContext,
	})
	if err != nil {
		e.logger.Warn("Audit event not fully recorded",
			zap.String("action", string(action)),
			zap.String("project_id", actor.ProjectID),
			zap.Error(err))
		return
	}
	if e.observer != nil {
		e.observer.AuditRecorded(stored)
	}
}

func (e *Engine) recordDetections(detections []privacy.Detection) {
	if e.metrics == nil || len(detections) == 0 {
		return
	}
	bySource := make(map[privacy.Source]map[string]int)
	for _, d := range detections {
		if bySource[d.Source] == nil {
			bySource[d.Source] = make(map[string]int)
		}
		bySource[d.Source][string(d.Kind)]++
	}
	for source, counts := range bySource {
		e.metrics.RecordDetections(string(source), counts)
	}
}

func (e *Engine) detectionDefaults(sensitivity privacy.Sensitivity, allowlist []string) (privacy.Sensitivity, []string) {
	if sensitivity == "" {
		sensitivity = e.defaults.Sensitivity
	}
	if sensitivity == "" {
		sensitivity = privacy.DefaultSensitivity
	}
	if allowlist == nil {
		allowlist = e.defaults.Allowlist
	}
	return sensitivity, allowlist
}

func (e *Engine) batchDefaults(cfg scan.BatchConfig) scan.BatchConfig {
	d := e.defaults.Batch
	cfg.Sensitivity, cfg.Allowlist = e.detectionDefaults(cfg.Sensitivity, cfg.Allowlist)
	if cfg.Concurrency == 0 {
		cfg.Concurrency = d.Concurrency
	}
	if cfg.ItemTimeout == 0 {
		cfg.ItemTimeout = d.ItemTimeout
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.RatePerSecond == 0 {
		cfg.RatePerSecond = d.RatePerSecond
	}
	if cfg.TokenPrefix == "" {
		cfg.TokenPrefix = e.defaults.TokenPrefix
	}
	cfg.IncludeRedactedPreview = cfg.IncludeRedactedPreview || d.IncludeRedactedPreview
	return cfg
}

func (e *Engine) streamDefaults(cfg scan.StreamConfig) scan.StreamConfig {
	cfg.Sensitivity, cfg.Allowlist = e.detectionDefaults(cfg.Sensitivity, cfg.Allowlist)
	if cfg.ChunkSize == 0 && e.defaults.ChunkSize > 0 {
		cfg.ChunkSize = e.defaults.ChunkSize
		if cfg.Overlap == 0 {
			cfg.Overlap = e.defaults.Overlap
		}
	}
	if cfg.MinChunkSize == 0 {
		cfg.MinChunkSize = e.defaults.MinChunkSize
	}
	return cfg
}

func kindNames(kinds []privacy.Kind) []string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	sort.Strings(names)
	return names
}

func errorType(err error) string {
	switch {
	case privacy.IsConfigurationError(err):
		return "configuration"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "internal"
	}
}
