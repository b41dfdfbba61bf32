package privacy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/raaihank/phi-sentinel/internal/logger"
	"go.uber.org/zap"
)

// thresholdEpsilon absorbs float rounding in summed scores
const thresholdEpsilon = 1e-9

// Options are the per-call detection settings
type Options struct {
	Sensitivity Sensitivity
	Allowlist   *Allowlist
}

// Detector is the hybrid pattern and entity detection core. A Detector is
// safe for concurrent use as long as its EntityRecognizer is.
type Detector struct {
	registry      *Registry
	scorer        Scorer
	entities      EntityRecognizer
	entityTimeout time.Duration
	fingerprint   string
	logger        *logger.Logger
}

// DetectorOption customises a Detector at construction
type DetectorOption func(*Detector)

// WithScorer replaces the default heuristic scorer
func WithScorer(s Scorer) DetectorOption {
	return func(d *Detector) {
		if s != nil {
			d.scorer = s
		}
	}
}

// WithEntityTimeout bounds each recognizer call. Zero leaves only the
// caller's context as the bound.
func WithEntityTimeout(timeout time.Duration) DetectorOption {
	return func(d *Detector) {
		d.entityTimeout = timeout
	}
}

// NewDetector creates a detector over a shared registry. A nil recognizer is
// treated as NoEntities.
func NewDetector(registry *Registry, entities EntityRecognizer, log *logger.Logger, opts ...DetectorOption) *Detector {
	if registry == nil {
		registry = NewRegistry()
	}
	if entities == nil {
		entities = NoEntities
	}
	if log == nil {
		log = logger.NewNop()
	}

	d := &Detector{
		registry: registry,
		scorer:   Score,
		entities: entities,
		logger:   log.WithComponent("detector"),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.fingerprint = detectorFingerprint(registry, entities)

	d.logger.Info("Detector initialized",
		zap.Int("kinds", len(registry.rules)),
		zap.String("entity_recognizer", entities.Name()),
	)

	return d
}

// Registry returns the shared pattern registry
func (d *Detector) Registry() *Registry {
	return d.registry
}

// Fingerprint identifies the pattern set and recognizer. Two detectors
// with the same fingerprint detect alike for the same scorer.
func (d *Detector) Fingerprint() string {
	return d.fingerprint
}

func detectorFingerprint(registry *Registry, entities EntityRecognizer) string {
	h := sha256.New()
	for _, rule := range registry.rules {
		h.Write([]byte(rule.Kind))
		for _, re := range rule.Matchers {
			h.Write([]byte{0})
			h.Write([]byte(re.String()))
		}
		h.Write([]byte{1})
	}
	h.Write([]byte(entities.Name()))
	return hex.EncodeToString(h.Sum(nil)[:8])
}

// EntityRecognizerName names the configured recognizer
func (d *Detector) EntityRecognizerName() string {
	return d.entities.Name()
}

// Detect finds identifiers in text. It only fails on an invalid sensitivity
// or a context that is already done; recognizer failures degrade the result
// to pattern-only with a warning.
func (d *Detector) Detect(ctx context.Context, text string, opts Options) (*Result, error) {
	sensitivity, err := ParseSensitivity(string(opts.Sensitivity))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{
		Detections:  []Detection{},
		Sensitivity: sensitivity,
	}
	if text == "" {
		return result, nil
	}

	candidates := d.patternCandidates(text)

	spans, err := d.recognize(ctx, text)
	if err != nil {
		result.Degraded = true
		result.Warnings = append(result.Warnings, degradedWarning(err))
		d.logger.Warn("Entity recognizer failed, continuing with patterns only",
			zap.String("recognizer", d.entities.Name()),
			zap.String("error_type", fmt.Sprintf("%T", err)),
			zap.Int("text_bytes", len(text)),
		)
	} else {
		candidates = append(candidates, d.entityCandidates(text, spans)...)
	}

	threshold := sensitivity.Threshold()
	accepted := candidates[:0]
	for _, c := range candidates {
		if opts.Allowlist.Allows(c.Text) {
			continue
		}
		if c.Confidence+thresholdEpsilon < threshold {
			continue
		}
		accepted = append(accepted, c)
	}

	result.Detections = d.resolveOverlaps(accepted)
	d.logger.LogDetectionSummary("detect", len(text), result.KindCounts(), result.Warnings)

	return result, nil
}

func (d *Detector) patternCandidates(text string) []Detection {
	var out []Detection
	for _, rule := range d.registry.rules {
		for _, re := range rule.Matchers {
			for _, loc := range re.FindAllStringIndex(text, -1) {
				if loc[1] <= loc[0] {
					continue
				}
				out = append(out, d.candidate(rule.Kind, SourcePattern, text, loc[0], loc[1]))
			}
		}
	}
	return out
}

func (d *Detector) entityCandidates(text string, spans []EntitySpan) []Detection {
	var out []Detection
	for _, span := range spans {
		kind, ok := KindForLabel(span.Label)
		if !ok {
			continue
		}
		if span.Start < 0 || span.End > len(text) || span.End <= span.Start {
			continue
		}
		out = append(out, d.candidate(kind, SourceEntity, text, span.Start, span.End))
	}
	return out
}

func (d *Detector) candidate(kind Kind, source Source, text string, start, end int) Detection {
	matched := text[start:end]
	return Detection{
		Kind:       kind,
		Start:      start,
		End:        end,
		Text:       matched,
		Source:     source,
		Confidence: clamp(d.scorer(FeaturesOf(kind, source, matched))),
	}
}

// recognize runs the entity recognizer bounded by the context and the
// configured timeout. A recognizer that never returns leaks its goroutine
// but no longer holds up detection.
func (d *Detector) recognize(ctx context.Context, text string) ([]EntitySpan, error) {
	if d.entities == NoEntities {
		return nil, nil
	}

	if d.entityTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.entityTimeout)
		defer cancel()
	}

	type outcome struct {
		spans []EntitySpan
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("entity recognizer panicked: %T", r)}
			}
		}()
		spans, err := d.entities.Recognize(ctx, text)
		done <- outcome{spans: spans, err: err}
	}()

	select {
	case o := <-done:
		return o.spans, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// resolveOverlaps keeps the earliest, longest, most confident candidate of
// every overlapping group. Remaining ties go to the kind registered first,
// then to pattern matches over entity matches.
func (d *Detector) resolveOverlaps(candidates []Detection) []Detection {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.Len() != b.Len() {
			return a.Len() > b.Len()
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if ra, rb := d.registry.rank(a.Kind), d.registry.rank(b.Kind); ra != rb {
			return ra < rb
		}
		return a.Source == SourcePattern && b.Source != SourcePattern
	})

	kept := make([]Detection, 0, len(candidates))
	lastEnd := 0
	for _, c := range candidates {
		if c.Start < lastEnd {
			continue
		}
		kept = append(kept, c)
		lastEnd = c.End
	}
	return kept
}

func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > maxConfidence {
		return maxConfidence
	}
	return score
}
