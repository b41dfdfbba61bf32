package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/raaihank/phi-sentinel/internal/ingest"
	"github.com/raaihank/phi-sentinel/internal/privacy"
	"github.com/raaihank/phi-sentinel/internal/scan"
	"github.com/spf13/cobra"
)

var scanFlags struct {
	concurrency int
	itemTimeout time.Duration
	timeout     time.Duration
	rate        float64
	preview     bool
	allowlist   []string
	progress    bool
}

var scanCmd = &cobra.Command{
	Use:   "scan <file>",
	Short: "Scan a file of independent items",
	Long: `Scan every item of a CSV, JSON-lines or Parquet file concurrently.

CSV files need a header with a content (or text) column and may carry an
item_id (or id) column. JSON-lines records and Parquet rows use the
item_id and content fields. Results never include matched text.

Examples:
  phi-sentinel scan notes.csv
  phi-sentinel scan export.parquet --concurrency 32 --preview
  phi-sentinel scan messages.jsonl --rate 200 --item-timeout 2s`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

var streamFlags struct {
	chunkSize int
	overlap   int
	allowlist []string
	progress  bool
}

var streamCmd = &cobra.Command{
	Use:   "stream [file]",
	Short: "Scan a large input in overlapping windows",
	Long: `Scan a file or stdin in fixed-size windows with overlap, so spans that
cross a window boundary are still found. Only kinds and counts are
reported; no spans are kept.

Examples:
  phi-sentinel stream server.log
  zcat dump.gz | phi-sentinel stream --chunk-size 131072 --overlap 512`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStream,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(streamCmd)

	scanCmd.Flags().IntVar(&scanFlags.concurrency, "concurrency", 0, "items scanned in parallel (uses config if not specified)")
	scanCmd.Flags().DurationVar(&scanFlags.itemTimeout, "item-timeout", 0, "bound on each item (uses config if not specified)")
	scanCmd.Flags().DurationVar(&scanFlags.timeout, "timeout", 0, "bound on the whole batch (uses config if not specified)")
	scanCmd.Flags().Float64Var(&scanFlags.rate, "rate", 0, "items started per second, 0 for unthrottled (uses config if not specified)")
	scanCmd.Flags().BoolVar(&scanFlags.preview, "preview", false, "include a redacted preview of each item")
	scanCmd.Flags().StringArrayVar(&scanFlags.allowlist, "allowlist", nil, "regular expression for values never reported, repeatable")
	scanCmd.Flags().BoolVar(&scanFlags.progress, "progress", false, "print progress to stderr")

	streamCmd.Flags().IntVar(&streamFlags.chunkSize, "chunk-size", 0, "window size in bytes (uses config if not specified)")
	streamCmd.Flags().IntVar(&streamFlags.overlap, "overlap", 0, "bytes shared by consecutive windows")
	streamCmd.Flags().StringArrayVar(&streamFlags.allowlist, "allowlist", nil, "regular expression for values never reported, repeatable")
	streamCmd.Flags().BoolVar(&streamFlags.progress, "progress", false, "print each window to stderr")
}

func runScan(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	input, err := ingest.NewReader(a.log).ReadFile(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	var progress scan.ProgressFunc
	if scanFlags.progress {
		progress = func(processed, total int) {
			fmt.Fprintf(cmd.ErrOrStderr(), "\rscanned %d/%d", processed, total)
			if processed == total {
				fmt.Fprintln(cmd.ErrOrStderr())
			}
		}
	}

	result, err := a.runtime.Engine.ScanItems(cmd.Context(), a.actor(args[0]), input.Items, scan.BatchConfig{
		Sensitivity:            privacy.Sensitivity(sensitivity),
		Allowlist:              scanFlags.allowlist,
		Concurrency:            scanFlags.concurrency,
		IncludeRedactedPreview: scanFlags.preview,
		ItemTimeout:            scanFlags.itemTimeout,
		Timeout:                scanFlags.timeout,
		RatePerSecond:          scanFlags.rate,
	}, progress)
	if err != nil {
		return err
	}

	return writeJSON(cmd, struct {
		Input  *ingest.Result    `json:"input"`
		Result *scan.BatchResult `json:"result"`
	}{input, result})
}

func runStream(cmd *cobra.Command, args []string) error {
	var (
		in     io.Reader = cmd.InOrStdin()
		source           = "stdin"
	)
	if len(args) > 0 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		in, source = f, args[0]
	}

	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	var progress scan.ChunkProgressFunc
	if streamFlags.progress {
		progress = func(c scan.ChunkProgress) {
			fmt.Fprintf(cmd.ErrOrStderr(), "window %d offset=%d bytes=%d flagged=%t\n", c.Index, c.Offset, c.Bytes, c.Flagged)
		}
	}

	result, err := a.runtime.Engine.ScanReader(cmd.Context(), a.actor(source), in, scan.StreamConfig{
		Sensitivity: privacy.Sensitivity(sensitivity),
		Allowlist:   streamFlags.allowlist,
		ChunkSize:   streamFlags.chunkSize,
		Overlap:     streamFlags.overlap,
	}, progress)
	if err != nil {
		return err
	}
	return writeJSON(cmd, result)
}
