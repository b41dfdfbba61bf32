package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/raaihank/phi-sentinel/internal/logger"
	"github.com/raaihank/phi-sentinel/internal/privacy"
	"go.uber.org/zap"
)

// StreamScanner scans one large input as overlapping byte windows, keeping
// only aggregate counts so memory stays bounded by the chunk size
type StreamScanner struct {
	detector Detector
	logger   *logger.Logger
}

// NewStreamScanner creates a stream scanner
func NewStreamScanner(detector Detector, log *logger.Logger) *StreamScanner {
	if log == nil {
		log = logger.NewNop()
	}
	return &StreamScanner{
		detector: detector,
		logger:   log.WithComponent("stream_scanner"),
	}
}

// ValidateStreamConfig checks chunking parameters before any work begins
func ValidateStreamConfig(cfg StreamConfig) error {
	if cfg.ChunkSize <= 0 {
		return privacy.NewConfigurationError("chunk_size", "must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.MinChunkSize > 0 && cfg.ChunkSize < cfg.MinChunkSize {
		return privacy.NewConfigurationError("chunk_size", "must be at least %d, got %d", cfg.MinChunkSize, cfg.ChunkSize)
	}
	if cfg.Overlap < 0 {
		return privacy.NewConfigurationError("overlap", "must not be negative, got %d", cfg.Overlap)
	}
	if cfg.Overlap >= cfg.ChunkSize {
		return privacy.NewConfigurationError("overlap", "must be smaller than chunk_size %d, got %d", cfg.ChunkSize, cfg.Overlap)
	}
	return nil
}

// ScanText scans an in-memory text
func (s *StreamScanner) ScanText(ctx context.Context, text string, cfg StreamConfig, progress ChunkProgressFunc) (*StreamResult, error) {
	return s.ScanReader(ctx, strings.NewReader(text), cfg, progress)
}

// ScanReader scans r in windows of cfg.ChunkSize bytes, each starting
// ChunkSize-Overlap bytes after the previous one. Windows are processed in
// order; cancellation stops between windows and returns the partial result.
// A window that ends exactly at the end of input is the last one: no extra
// window is scanned over bytes that only the overlap would repeat.
func (s *StreamScanner) ScanReader(ctx context.Context, r io.Reader, cfg StreamConfig, progress ChunkProgressFunc) (*StreamResult, error) {
	if err := ValidateStreamConfig(cfg); err != nil {
		return nil, err
	}
	sensitivity, err := privacy.ParseSensitivity(string(cfg.Sensitivity))
	if err != nil {
		return nil, err
	}
	allowlist, err := privacy.CompileAllowlist(cfg.Allowlist)
	if err != nil {
		return nil, err
	}
	opts := privacy.Options{Sensitivity: sensitivity, Allowlist: allowlist}

	step := cfg.ChunkSize - cfg.Overlap
	buf := make([]byte, cfg.ChunkSize)
	result := &StreamResult{Kinds: []privacy.Kind{}}
	kinds := make(map[privacy.Kind]bool)
	warned := make(map[string]bool)

	var (
		filled int   // valid bytes in buf
		offset int64 // stream offset of buf[0]
	)

	for {
		if err := ctx.Err(); err != nil {
			result.Cancelled = true
			break
		}

		// Keep the overlap from the previous window and top the buffer up
		fresh, readErr := io.ReadFull(r, buf[filled:])
		filled += fresh
		result.TotalBytes += int64(fresh)
		if readErr != nil && !errors.Is(readErr, io.EOF) && !errors.Is(readErr, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("stream read at offset %d: %w", offset+int64(filled), readErr)
		}
		// Nothing new arrived: the previous window already reached the end
		if fresh == 0 && result.Chunks > 0 {
			break
		}
		if filled == 0 {
			break
		}

		detected, err := s.detector.Detect(ctx, decodeWindow(buf[:filled]), opts)
		if err != nil {
			if ctx.Err() != nil {
				result.Cancelled = true
				break
			}
			return nil, fmt.Errorf("stream chunk %d: %w", result.Chunks, err)
		}

		flagged := len(detected.Detections) > 0
		if flagged {
			result.FlaggedChunks++
		}
		for _, d := range detected.Detections {
			kinds[d.Kind] = true
		}
		if detected.Degraded {
			result.Degraded = true
		}
		for _, w := range detected.Warnings {
			if !warned[w] {
				warned[w] = true
				result.Warnings = append(result.Warnings, w)
			}
		}
		if progress != nil {
			progress(ChunkProgress{Index: result.Chunks, Offset: offset, Bytes: filled, Flagged: flagged})
		}
		result.Chunks++

		if readErr != nil || filled < cfg.ChunkSize {
			break
		}

		copy(buf, buf[step:filled])
		filled -= step
		offset += int64(step)
	}

	for k := range kinds {
		result.Kinds = append(result.Kinds, k)
	}
	sort.Slice(result.Kinds, func(i, j int) bool { return result.Kinds[i] < result.Kinds[j] })

	s.logger.Info("Stream scan completed",
		zap.Int64("total_bytes", result.TotalBytes),
		zap.Int("chunks", result.Chunks),
		zap.Int("flagged_chunks", result.FlaggedChunks),
		zap.Int("kinds", len(result.Kinds)),
		zap.Bool("cancelled", result.Cancelled),
	)

	return result, nil
}

// decodeWindow turns a byte window into text, dropping a rune cut at the
// start, a rune cut at the end, and replacing any other invalid bytes
func decodeWindow(b []byte) string {
	// continuation bytes at the start belong to a rune from the previous window
	lead := 0
	for lead < len(b) && lead < utf8.UTFMax-1 && !utf8.RuneStart(b[lead]) {
		lead++
	}
	b = b[lead:]

	// an incomplete trailing sequence is the head of a rune in the next window
	for tail := 1; tail < utf8.UTFMax && tail <= len(b); tail++ {
		i := len(b) - tail
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if !utf8.FullRune(b[i:]) {
			b = b[:i]
		}
		break
	}

	return strings.ToValidUTF8(string(b), "\uFFFD")
}
