package engine

import (
	"time"

	"github.com/raaihank/phi-sentinel/internal/audit"
	"github.com/raaihank/phi-sentinel/internal/deid"
	"github.com/raaihank/phi-sentinel/internal/logger"
	"github.com/raaihank/phi-sentinel/internal/metrics"
	"github.com/raaihank/phi-sentinel/internal/privacy"
	"github.com/raaihank/phi-sentinel/internal/redact"
	"github.com/raaihank/phi-sentinel/internal/scan"
)

// Actor identifies who invoked an operation and on what. It becomes the
// identity part of the operation's audit event.
type Actor struct {
	ProjectID   string
	UserID      string
	ResourceID  string
	UserContext map[string]string
}

// Observer receives progress and audit notifications. Implementations must
// not block.
type Observer interface {
	BatchProgress(runID string, processed, total int)
	StreamProgress(runID string, chunk scan.ChunkProgress)
	AuditRecorded(event audit.Event)
}

// Defaults fill request fields left at their zero value
type Defaults struct {
	Sensitivity  privacy.Sensitivity
	Allowlist    []string
	TokenPrefix  string
	Batch        scan.BatchConfig
	ChunkSize    int
	Overlap      int
	MinChunkSize int
}

// Engine exposes detect, scan, redact, validate and audit operations over
// one shared detector. Every scan, redact, validate and detect call emits
// exactly one audit event; audit failures are logged and counted but never
// fail the operation.
type Engine struct {
	detector *privacy.Detector
	batch    *scan.BatchScanner
	stream   *scan.StreamScanner
	redactor *redact.Redactor
	deid     *deid.Deidentifier
	audit    *audit.Logger
	metrics  *metrics.Collector
	observer Observer
	defaults Defaults
	logger   *logger.Logger
	now      func() time.Time

	cache     scan.ResultCache
	cacheSalt []byte
}

// Option configures an Engine
type Option func(*Engine)

// WithAudit enables the audit trail
func WithAudit(l *audit.Logger) Option {
	return func(e *Engine) { e.audit = l }
}

// WithMetrics records operation metrics
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

// WithObserver forwards progress and audit notifications
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithDefaults sets request defaults
func WithDefaults(d Defaults) Option {
	return func(e *Engine) { e.defaults = d }
}

// WithResultCache lets batch scans reuse results across calls
func WithResultCache(cache scan.ResultCache, salt []byte) Option {
	return func(e *Engine) {
		e.cache = cache
		e.cacheSalt = salt
	}
}

// New creates an Engine around a detector and fingerprinter
func New(detector *privacy.Detector, fingerprinter *redact.Fingerprinter, log *logger.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	e := &Engine{
		detector: detector,
		stream:   scan.NewStreamScanner(detector, log),
		redactor: redact.New(detector, fingerprinter, log),
		deid:     deid.New(detector),
		defaults: Defaults{Sensitivity: privacy.DefaultSensitivity, TokenPrefix: redact.DefaultTokenPrefix},
		logger:   log.WithComponent("engine"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	var batchOpts []scan.BatchOption
	if e.cache != nil {
		batchOpts = append(batchOpts, scan.WithCache(e.cache, e.cacheSalt))
	}
	e.batch = scan.NewBatchScanner(detector, log, batchOpts...)
	return e
}

// SetObserver attaches an observer after construction. It must be called
// before any operation runs.
func (e *Engine) SetObserver(o Observer) {
	e.observer = o
}

// Detector returns the shared detector
func (e *Engine) Detector() *privacy.Detector {
	return e.detector
}

// Close releases the audit stores
func (e *Engine) Close() error {
	if e.audit != nil {
		return e.audit.Close()
	}
	return nil
}
