package redact

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/raaihank/phi-sentinel/internal/logger"
	"github.com/raaihank/phi-sentinel/internal/privacy"
	"go.uber.org/zap"
)

// DefaultTokenPrefix starts every replacement token
const DefaultTokenPrefix = "PHI"

// Detector is the detection dependency of the redactor
type Detector interface {
	Detect(ctx context.Context, text string, opts privacy.Options) (*privacy.Result, error)
}

// Config controls one Redact call
type Config struct {
	Sensitivity privacy.Sensitivity
	TokenPrefix string
	Allowlist   []string
}

// Span is one replaced region of the input
type Span struct {
	Start int          `json:"start"`
	End   int          `json:"end"`
	Kind  privacy.Kind `json:"kind"`
	Token string       `json:"token"`
}

// Result is the redacted text plus token provenance. Mapping holds
// fingerprints only, never the original values.
type Result struct {
	RedactedText string              `json:"redacted_text"`
	Spans        []Span              `json:"spans"`
	Mapping      map[string][]string `json:"mapping"`
	Sensitivity  privacy.Sensitivity `json:"sensitivity"`
	Warnings     []string            `json:"warnings,omitempty"`
}

// Redactor replaces detected spans with per-kind ordinal tokens
type Redactor struct {
	detector      Detector
	fingerprinter *Fingerprinter
	logger        *logger.Logger
}

// New creates a Redactor
func New(detector Detector, fingerprinter *Fingerprinter, log *logger.Logger) *Redactor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Redactor{
		detector:      detector,
		fingerprinter: fingerprinter,
		logger:        log.WithComponent("redactor"),
	}
}

// Redact detects identifiers in text and replaces each with a token of the
// form [PREFIX:KIND:n]
func (r *Redactor) Redact(ctx context.Context, text string, cfg Config) (*Result, error) {
	prefix := cfg.TokenPrefix
	if prefix == "" {
		prefix = DefaultTokenPrefix
	}
	allowlist, err := privacy.CompileAllowlist(cfg.Allowlist)
	if err != nil {
		return nil, err
	}

	detected, err := r.detector.Detect(ctx, text, privacy.Options{Sensitivity: cfg.Sensitivity, Allowlist: allowlist})
	if err != nil {
		return nil, fmt.Errorf("redaction detect: %w", err)
	}

	redacted, spans := Render(text, detected.Detections, prefix)

	mapping := make(map[string][]string, len(spans))
	for _, span := range spans {
		mapping[span.Token] = append(mapping[span.Token], r.fingerprinter.Fingerprint(text[span.Start:span.End]))
	}

	r.logger.Debug("Text redacted",
		zap.Int("text_bytes", len(text)),
		zap.Int("spans", len(spans)),
	)

	return &Result{
		RedactedText: redacted,
		Spans:        spans,
		Mapping:      mapping,
		Sensitivity:  detected.Sensitivity,
		Warnings:     detected.Warnings,
	}, nil
}

// Token formats a replacement token
func Token(prefix string, kind privacy.Kind, ordinal int) string {
	return fmt.Sprintf("[%s:%s:%d]", prefix, strings.ToUpper(string(kind)), ordinal)
}

// Render rewrites text with a token per detection. Detections are walked in
// start order; any starting before the cursor are skipped. Ordinals count
// per kind from 1 in order of first occurrence.
func Render(text string, detections []privacy.Detection, prefix string) (string, []Span) {
	if len(detections) == 0 {
		return text, []Span{}
	}

	ordered := make([]privacy.Detection, len(detections))
	copy(ordered, detections)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Start < ordered[j].Start
	})

	var b strings.Builder
	b.Grow(len(text))
	spans := make([]Span, 0, len(ordered))
	counters := make(map[privacy.Kind]int)
	cursor := 0

	for _, d := range ordered {
		if d.Start < cursor || d.End > len(text) || d.End <= d.Start {
			continue
		}
		b.WriteString(text[cursor:d.Start])

		counters[d.Kind]++
		token := Token(prefix, d.Kind, counters[d.Kind])
		b.WriteString(token)

		spans = append(spans, Span{Start: d.Start, End: d.End, Kind: d.Kind, Token: token})
		cursor = d.End
	}
	b.WriteString(text[cursor:])

	return b.String(), spans
}
