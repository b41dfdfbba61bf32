package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/raaihank/phi-sentinel/internal/logger"
	"github.com/raaihank/phi-sentinel/internal/privacy"
	"github.com/raaihank/phi-sentinel/internal/redact"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// errNotScanned marks items skipped because the batch was cancelled
var errNotScanned = errors.New("not scanned: batch cancelled or timed out")

// BatchScanner runs the detector over many independent items with a bounded
// worker group
type BatchScanner struct {
	detector   Detector
	detectorID string
	cache      ResultCache
	cacheSalt  []byte
	logger     *logger.Logger
}

// BatchOption customises a BatchScanner
type BatchOption func(*BatchScanner)

// WithCache reuses results for identical content. salt keys the content
// digest handed to the cache.
func WithCache(cache ResultCache, salt []byte) BatchOption {
	return func(s *BatchScanner) {
		s.cache = cache
		s.cacheSalt = salt
	}
}

// NewBatchScanner creates a batch scanner
func NewBatchScanner(detector Detector, log *logger.Logger, opts ...BatchOption) *BatchScanner {
	if log == nil {
		log = logger.NewNop()
	}
	s := &BatchScanner{
		detector: detector,
		logger:   log.WithComponent("batch_scanner"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if fp, ok := detector.(fingerprinter); ok {
		s.detectorID = fp.Fingerprint()
	}
	return s
}

// ScanItems scans every item and returns results in input order. Only
// configuration errors are returned; item failures, timeouts and
// cancellation are reported on the result.
func (s *BatchScanner) ScanItems(ctx context.Context, items []Item, cfg BatchConfig, progress ProgressFunc) (*BatchResult, error) {
	workers, err := resolveConcurrency(cfg.Concurrency)
	if err != nil {
		return nil, err
	}
	if cfg.RatePerSecond < 0 {
		return nil, privacy.NewConfigurationError("rate_per_second", "must not be negative, got %g", cfg.RatePerSecond)
	}
	sensitivity, err := privacy.ParseSensitivity(string(cfg.Sensitivity))
	if err != nil {
		return nil, err
	}
	allowlist, err := privacy.CompileAllowlist(cfg.Allowlist)
	if err != nil {
		return nil, err
	}
	if cfg.TokenPrefix == "" {
		cfg.TokenPrefix = redact.DefaultTokenPrefix
	}
	opts := privacy.Options{Sensitivity: sensitivity, Allowlist: allowlist}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}

	total := len(items)
	results := make([]ItemResult, total)
	scanned := make([]bool, total)

	var (
		progressMu sync.Mutex
		processed  int
	)
	report := func() {
		progressMu.Lock()
		defer progressMu.Unlock()
		processed++
		if progress != nil {
			progress(processed, total)
		}
	}

	start := time.Now()
	s.logger.Info("Batch scan started",
		zap.Int("items", total),
		zap.Int("concurrency", workers),
		zap.String("sensitivity", string(sensitivity)),
	)

	var g errgroup.Group
	g.SetLimit(workers)

	for i := range items {
		if ctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return nil
				}
			}
			res, ok := s.scanItem(ctx, items[i], opts, cfg, sensitivity)
			if !ok {
				return nil
			}
			results[i] = res
			scanned[i] = true
			report()
			return nil
		})
	}
	_ = g.Wait()

	batch := &BatchResult{Total: total, Results: results}
	for i := range results {
		if !scanned[i] {
			batch.Cancelled = true
			results[i] = ItemResult{
				ItemID:     items[i].ID,
				Kinds:      []privacy.Kind{},
				Detections: []privacy.Detection{},
				Warnings:   []string{errNotScanned.Error()},
			}
			continue
		}
		r := results[i]
		if r.Detected {
			batch.Flagged++
		}
		if r.Failed {
			batch.Failed++
		} else if len(r.Warnings) > 0 {
			batch.Degraded++
		}
		for _, w := range r.Warnings {
			if r.Failed {
				batch.Warnings = append(batch.Warnings, w)
				continue
			}
			batch.Warnings = append(batch.Warnings, fmt.Sprintf("item %s: %s", r.ItemID, w))
		}
	}
	if batch.Cancelled {
		batch.Warnings = append(batch.Warnings, fmt.Sprintf("batch stopped early: %d of %d items scanned", processed, total))
	}

	s.logger.Info("Batch scan completed",
		zap.Int("items", total),
		zap.Int("scanned", processed),
		zap.Int("flagged", batch.Flagged),
		zap.Int("failed", batch.Failed),
		zap.Bool("cancelled", batch.Cancelled),
		zap.Duration("duration", time.Since(start)),
	)

	return batch, nil
}

type detectOutcome struct {
	result *privacy.Result
	err    error
}

// scanItem scans one item in isolation. It reports ok=false only when the
// batch context ended before the item could finish.
func (s *BatchScanner) scanItem(ctx context.Context, item Item, opts privacy.Options, cfg BatchConfig, sensitivity privacy.Sensitivity) (ItemResult, bool) {
	var key string
	if s.cache != nil {
		key = cacheKey(s.cacheSalt, s.detectorID, item.Content, cfg, string(sensitivity))
		if cached, ok := s.cache.Get(ctx, key); ok {
			res := *cached
			res.ItemID = item.ID
			res.Cached = true
			res.RedactedPreview = ""
			if cfg.IncludeRedactedPreview {
				res.RedactedPreview, _ = redact.Render(item.Content, res.Detections, cfg.TokenPrefix)
			}
			return res, true
		}
	}

	itemCtx := ctx
	if cfg.ItemTimeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(ctx, cfg.ItemTimeout)
		defer cancel()
	}

	// Detection runs in its own goroutine so a hung or panicking detector
	// costs this item only
	done := make(chan detectOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- detectOutcome{err: fmt.Errorf("detector panicked: %T", r)}
			}
		}()
		result, err := s.detector.Detect(itemCtx, item.Content, opts)
		done <- detectOutcome{result: result, err: err}
	}()

	var outcome detectOutcome
	select {
	case outcome = <-done:
	case <-itemCtx.Done():
		outcome = detectOutcome{err: itemCtx.Err()}
	}

	if outcome.err != nil {
		if ctx.Err() != nil {
			return ItemResult{}, false
		}
		return s.failed(item, outcome.err), true
	}

	res := ItemResult{
		ItemID:     item.ID,
		Detected:   len(outcome.result.Detections) > 0,
		Kinds:      outcome.result.Kinds(),
		Detections: make([]privacy.Detection, 0, len(outcome.result.Detections)),
		Warnings:   outcome.result.Warnings,
	}
	for _, d := range outcome.result.Detections {
		res.Detections = append(res.Detections, d.Reduced())
	}
	if cfg.IncludeRedactedPreview {
		res.RedactedPreview, _ = redact.Render(item.Content, outcome.result.Detections, cfg.TokenPrefix)
	}

	if s.cache != nil && !outcome.result.Degraded {
		// the preview is item text with only the detected spans replaced
		stored := res
		stored.ItemID = ""
		stored.RedactedPreview = ""
		s.cache.Set(ctx, key, &stored)
	}
	return res, true
}

func (s *BatchScanner) failed(item Item, cause error) ItemResult {
	failure := &ItemFailure{ItemID: item.ID, Cause: cause}
	s.logger.Warn("Batch item failed",
		zap.String("item_id", item.ID),
		zap.String("error_type", fmt.Sprintf("%T", cause)),
		zap.Bool("timeout", errors.Is(cause, context.DeadlineExceeded)),
	)
	return ItemResult{
		ItemID:     item.ID,
		Detected:   false,
		Kinds:      []privacy.Kind{},
		Detections: []privacy.Detection{},
		Failed:     true,
		Warnings:   []string{failure.Error()},
	}
}

// resolveConcurrency applies the default and the hard cap. Negative values
// are configuration errors.
func resolveConcurrency(n int) (int, error) {
	switch {
	case n < 0:
		return 0, privacy.NewConfigurationError("concurrency", "must be between 1 and %d, got %d", MaxConcurrency, n)
	case n == 0:
		return DefaultConcurrency, nil
	case n > MaxConcurrency:
		return MaxConcurrency, nil
	}
	return n, nil
}
