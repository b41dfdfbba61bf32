package engine

import (
	"errors"
	"fmt"

	"github.com/raaihank/phi-sentinel/internal/audit"
	"github.com/raaihank/phi-sentinel/internal/cache"
	"github.com/raaihank/phi-sentinel/internal/config"
	"github.com/raaihank/phi-sentinel/internal/logger"
	"github.com/raaihank/phi-sentinel/internal/metrics"
	"github.com/raaihank/phi-sentinel/internal/ner"
	"github.com/raaihank/phi-sentinel/internal/privacy"
	"github.com/raaihank/phi-sentinel/internal/redact"
	"github.com/raaihank/phi-sentinel/internal/scan"
	"go.uber.org/zap"
)

// Runtime is an Engine together with the resources built for it
type Runtime struct {
	Engine  *Engine
	Metrics *metrics.Collector

	cache    *cache.ResultCache
	entities privacy.EntityRecognizer
}

// Build wires a complete engine from configuration. Optional backends
// (result cache) that cannot be reached are logged and skipped; required
// ones (pattern packs, audit directory, database mirror, entity model)
// fail the build.
func Build(cfg *config.Config, log *logger.Logger, opts ...Option) (*Runtime, error) {
	if log == nil {
		log = logger.NewNop()
	}

	rules, err := privacy.LoadPatternPacks(cfg.Detection.PatternFiles...)
	if err != nil {
		return nil, err
	}
	registry := privacy.NewRegistry(rules...)

	entities, err := ner.New(cfg.Entity, log)
	if err != nil {
		return nil, err
	}
	rt, err := build(cfg, log, registry, entities, opts)
	if err != nil {
		if cerr := privacy.CloseRecognizer(entities); cerr != nil {
			log.Warn("Failed to release entity recognizer", zap.Error(cerr))
		}
		return nil, err
	}
	return rt, nil
}

func build(cfg *config.Config, log *logger.Logger, registry *privacy.Registry, entities privacy.EntityRecognizer, opts []Option) (*Runtime, error) {
	detector := privacy.NewDetector(registry, entities, log, privacy.WithEntityTimeout(cfg.Entity.Timeout))

	fingerprinter, err := redact.NewFingerprinter(cfg.Redaction.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to create fingerprinter: %w", err)
	}

	rt := &Runtime{Metrics: metrics.NewCollector(cfg.Metrics, nil), entities: entities}

	engineOpts := []Option{
		WithMetrics(rt.Metrics),
		WithDefaults(Defaults{
			Sensitivity: privacy.Sensitivity(cfg.Detection.Sensitivity),
			Allowlist:   cfg.Detection.Allowlist,
			TokenPrefix: cfg.Redaction.TokenPrefix,
			Batch: scan.BatchConfig{
				Concurrency:            cfg.Batch.Concurrency,
				ItemTimeout:            cfg.Batch.ItemTimeout,
				Timeout:                cfg.Batch.Timeout,
				RatePerSecond:          cfg.Batch.RatePerSecond,
				IncludeRedactedPreview: cfg.Batch.IncludeRedactedPreview,
			},
			ChunkSize:    cfg.Stream.ChunkSize,
			Overlap:      cfg.Stream.Overlap,
			MinChunkSize: cfg.Stream.MinChunkSize,
		}),
	}

	if cfg.Audit.Enabled {
		auditLogger, err := buildAudit(cfg.Audit, log, rt.Metrics)
		if err != nil {
			return nil, err
		}
		engineOpts = append(engineOpts, WithAudit(auditLogger))
	}

	switch {
	case cfg.Cache.Enabled && cfg.Redaction.Salt == "":
		// keys must be reproducible by every process sharing the Redis
		log.Warn("Result cache requires redaction.salt, batch scans run uncached")
	case cfg.Cache.Enabled:
		resultCache, err := cache.NewResultCache(cache.Config{
			RedisURL:       cfg.Cache.RedisURL,
			KeyPrefix:      cfg.Cache.KeyPrefix,
			DefaultTTL:     cfg.Cache.DefaultTTL,
			MaxConnections: cfg.Cache.MaxConnections,
			MinIdleConns:   cfg.Cache.MinIdleConns,
		}, log.WithComponent("cache").Logger)
		if err != nil {
			log.Warn("Result cache unavailable, batch scans run uncached", zap.Error(err))
		} else {
			rt.cache = resultCache
			engineOpts = append(engineOpts, WithResultCache(resultCache, []byte(cfg.Redaction.Salt)))
		}
	}

	rt.Engine = New(detector, fingerprinter, log, append(engineOpts, opts...)...)
	return rt, nil
}

func buildAudit(cfg config.AuditConfig, log *logger.Logger, collector *metrics.Collector) (*audit.Logger, error) {
	fileStore, err := audit.NewFileStore(cfg.BaseDir)
	if err != nil {
		return nil, err
	}

	auditOpts := []audit.Option{audit.WithFailureHook(collector.RecordAuditFailure)}
	if cfg.Postgres.Enabled {
		pg, err := audit.NewPostgresStore(audit.PostgresConfig{
			DatabaseURL:     cfg.Postgres.DatabaseURL,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		}, log.WithComponent("audit_postgres").Logger)
		if err != nil {
			fileStore.Close()
			return nil, err
		}
		auditOpts = append(auditOpts, audit.WithMirror(pg))
	}

	return audit.NewLogger(fileStore, log, auditOpts...), nil
}

// Close releases the engine's stores, cache connection and entity model
func (r *Runtime) Close() error {
	var errs []error
	if r.Engine != nil {
		errs = append(errs, r.Engine.Close())
	}
	if r.cache != nil {
		errs = append(errs, r.cache.Close())
	}
	if r.entities != nil {
		errs = append(errs, privacy.CloseRecognizer(r.entities))
	}
	return errors.Join(errs...)
}
