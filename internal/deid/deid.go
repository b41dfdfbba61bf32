package deid

import (
	"context"
	"fmt"
	"sort"

	"github.com/raaihank/phi-sentinel/internal/privacy"
)

// MinK is the smallest meaningful k-anonymity target
const MinK = 2

// quasiIdentifierNote is attached whenever quasi-identifiers are named
const quasiIdentifierNote = "k-anonymity cannot be computed reliably on free text; " +
	"tabular data with explicit quasi-identifier columns is required for a strict guarantee"

// Detector is the detection dependency of the deidentifier
type Detector interface {
	Detect(ctx context.Context, text string, opts privacy.Options) (*privacy.Result, error)
}

// KAnonymityConfig describes the caller's k-anonymity target. Quasi
// identifiers are informational only for free text.
type KAnonymityConfig struct {
	K                int      `json:"k"`
	QuasiIdentifiers []string `json:"quasi_identifiers"`
}

// Report is the compliance view of one validation
type Report struct {
	DirectIdentifiersFound bool                `json:"direct_identifiers_found"`
	DirectIdentifierKinds  []privacy.Kind      `json:"direct_identifier_kinds"`
	KAnonymityTarget       int                 `json:"k_anonymity_target"`
	QuasiIdentifiers       []string            `json:"quasi_identifiers"`
	Sensitivity            privacy.Sensitivity `json:"sensitivity"`
	Notes                  []string            `json:"notes"`
	Warnings               []string            `json:"warnings,omitempty"`
}

// Deidentifier checks whether text still holds direct identifiers. It never
// generalises or suppresses anything itself.
type Deidentifier struct {
	detector Detector
}

// New creates a Deidentifier
func New(detector Detector) *Deidentifier {
	return &Deidentifier{detector: detector}
}

// Validate runs detection at the given sensitivity and reports which direct
// identifier kinds remain
func (d *Deidentifier) Validate(ctx context.Context, text string, cfg KAnonymityConfig, sensitivity privacy.Sensitivity) (*Report, error) {
	if cfg.K < MinK {
		return nil, privacy.NewConfigurationError("k", "must be at least %d, got %d", MinK, cfg.K)
	}

	result, err := d.detector.Detect(ctx, text, privacy.Options{Sensitivity: sensitivity})
	if err != nil {
		return nil, fmt.Errorf("validate detect: %w", err)
	}

	kinds := result.Kinds()
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	quasi := append([]string{}, cfg.QuasiIdentifiers...)
	report := &Report{
		DirectIdentifiersFound: len(result.Detections) > 0,
		DirectIdentifierKinds:  kinds,
		KAnonymityTarget:       cfg.K,
		QuasiIdentifiers:       quasi,
		Sensitivity:            result.Sensitivity,
		Notes:                  []string{},
		Warnings:               result.Warnings,
	}
	if len(quasi) > 0 {
		report.Notes = append(report.Notes, quasiIdentifierNote)
	}

	return report, nil
}
