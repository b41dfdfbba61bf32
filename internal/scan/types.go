package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/raaihank/phi-sentinel/internal/privacy"
)

// MaxConcurrency is the hard cap on batch workers
const MaxConcurrency = 64

// DefaultConcurrency applies when a batch config leaves concurrency at zero
const DefaultConcurrency = 8

// Detector is the detection dependency of both scanners
type Detector interface {
	Detect(ctx context.Context, text string, opts privacy.Options) (*privacy.Result, error)
}

// Item is one independent unit of batch input
type Item struct {
	ID      string `json:"item_id" parquet:"item_id"`
	Content string `json:"content" parquet:"content"`
}

// BatchConfig controls one ScanItems call
type BatchConfig struct {
	Sensitivity            privacy.Sensitivity
	Allowlist              []string
	Concurrency            int
	IncludeRedactedPreview bool
	TokenPrefix            string        // preview tokens; defaults to PHI
	ItemTimeout            time.Duration // 0 disables the per-item bound
	Timeout                time.Duration // 0 disables the overall bound
	RatePerSecond          float64       // 0 disables throttling
}

// ItemResult is the reduced scan outcome for one item. Detections never
// carry matched text.
type ItemResult struct {
	ItemID          string              `json:"item_id"`
	Detected        bool                `json:"detected"`
	Kinds           []privacy.Kind      `json:"kinds"`
	Detections      []privacy.Detection `json:"detections"`
	RedactedPreview string              `json:"redacted_preview,omitempty"`
	Cached          bool                `json:"cached,omitempty"`
	Failed          bool                `json:"failed,omitempty"`
	Warnings        []string            `json:"warnings,omitempty"`
}

// BatchResult aggregates a batch. Results follow input order.
type BatchResult struct {
	Total     int          `json:"total"`
	Flagged   int          `json:"flagged"`
	Failed    int          `json:"failed"`
	Degraded  int          `json:"degraded"`
	Cancelled bool         `json:"cancelled,omitempty"`
	Results   []ItemResult `json:"results"`
	Warnings  []string     `json:"warnings,omitempty"`
}

// ProgressFunc is called after each completed item. Calls are serialized and
// processed increases by one each call.
type ProgressFunc func(processed, total int)

// StreamConfig controls one stream scan
type StreamConfig struct {
	Sensitivity  privacy.Sensitivity
	Allowlist    []string
	ChunkSize    int
	Overlap      int
	MinChunkSize int // 0 only requires a positive chunk size
}

// StreamResult aggregates a stream scan. Per-chunk spans are not kept.
type StreamResult struct {
	TotalBytes    int64          `json:"total_bytes"`
	Chunks        int            `json:"chunks"`
	FlaggedChunks int            `json:"flagged_chunks"`
	Kinds         []privacy.Kind `json:"kinds"`
	Degraded      bool           `json:"degraded,omitempty"`
	Cancelled     bool           `json:"cancelled,omitempty"`
	Warnings      []string       `json:"warnings,omitempty"`
}

// ChunkProgress describes one processed window
type ChunkProgress struct {
	Index   int   `json:"index"`
	Offset  int64 `json:"offset"`
	Bytes   int   `json:"bytes"`
	Flagged bool  `json:"flagged"`
}

// ChunkProgressFunc is called after each processed window
type ChunkProgressFunc func(ChunkProgress)

// ItemFailure isolates one item's failure from the rest of the batch
type ItemFailure struct {
	ItemID string
	Cause  error
}

func (e *ItemFailure) Error() string {
	return fmt.Sprintf("item %s failed: %v", e.ItemID, e.Cause)
}

func (e *ItemFailure) Unwrap() error {
	return e.Cause
}
