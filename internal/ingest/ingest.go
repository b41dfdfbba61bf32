package ingest

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/raaihank/phi-sentinel/internal/logger"
	"github.com/raaihank/phi-sentinel/internal/scan"
	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
)

// Format represents supported item file formats
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
	FormatJSONL   Format = "jsonl"
)

// DetectFormat picks a format from the file extension
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".parquet":
		return FormatParquet, nil
	case ".jsonl", ".ndjson", ".json":
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("unsupported file format: %q", filepath.Ext(path))
	}
}

// Result holds the items read from one file
type Result struct {
	Format   Format        `json:"format"`
	Items    []scan.Item   `json:"-"`
	Rows     int           `json:"rows"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// Reader loads batch items from CSV, JSON-lines and Parquet files.
// CSV files need a header naming a content column (content or text) and
// optionally an id column (item_id or id). Rows without an id get one from
// their position. Rows with empty content are skipped.
type Reader struct {
	logger *logger.Logger
}

// NewReader creates an item reader
func NewReader(log *logger.Logger) *Reader {
	if log == nil {
		log = logger.NewNop()
	}
	return &Reader{logger: log.WithComponent("ingest")}
}

// ReadFile reads every item of a file
func (r *Reader) ReadFile(ctx context.Context, path string) (*Result, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s file: %w", format, err)
	}
	defer file.Close()

	start := time.Now()
	result := &Result{Format: format, Items: []scan.Item{}}

	switch format {
	case FormatCSV:
		err = r.readCSV(ctx, file, result)
	case FormatJSONL:
		err = r.readJSONL(ctx, file, result)
	case FormatParquet:
		err = r.readParquet(ctx, file, result)
	}
	if err != nil {
		return nil, fmt.Errorf("%s ingest failed: %w", format, err)
	}
	result.Duration = time.Since(start)

	r.logger.Info("Items loaded",
		zap.String("format", string(format)),
		zap.Int("rows", result.Rows),
		zap.Int("items", len(result.Items)),
		zap.Int("skipped", result.Skipped),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// add validates one row and appends it
func (r *Reader) add(result *Result, id, content string) {
	result.Rows++
	if strings.TrimSpace(content) == "" {
		result.Skipped++
		return
	}
	id = strings.TrimSpace(id)
	if id == "" {
		id = fmt.Sprintf("row-%d", result.Rows)
	}
	result.Items = append(result.Items, scan.Item{ID: id, Content: content})
}

func (r *Reader) readCSV(ctx context.Context, in io.Reader, result *Result) error {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}
	idCol, contentCol := columnIndex(header, "item_id", "id"), columnIndex(header, "content", "text")
	if contentCol < 0 {
		return fmt.Errorf("CSV header has no content or text column: %v", header)
	}

	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			r.logger.Warn("Failed to read CSV record", zap.Int("line", line), zap.Error(err))
			result.Rows++
			result.Skipped++
			continue
		}
		if contentCol >= len(record) {
			r.logger.Warn("Short CSV record", zap.Int("line", line), zap.Int("length", len(record)))
			result.Rows++
			result.Skipped++
			continue
		}
		id := ""
		if idCol >= 0 && idCol < len(record) {
			id = record[idCol]
		}
		r.add(result, id, record[contentCol])
	}
}

// jsonRecord accepts both the item and the plain text field names
type jsonRecord struct {
	ItemID  string `json:"item_id"`
	ID      string `json:"id"`
	Content string `json:"content"`
	Text    string `json:"text"`
}

func (r *Reader) readJSONL(ctx context.Context, in io.Reader, result *Result) error {
	decoder := json.NewDecoder(in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var record jsonRecord
		err := decoder.Decode(&record)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			// a syntax error leaves the decoder unusable
			return fmt.Errorf("failed to decode JSON record %d: %w", result.Rows+1, err)
		}
		r.add(result, firstNonEmpty(record.ItemID, record.ID), firstNonEmpty(record.Content, record.Text))
	}
}

func (r *Reader) readParquet(ctx context.Context, file *os.File, result *Result) error {
	reader := parquet.NewReader(file)
	defer reader.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var item scan.Item
		err := reader.Read(&item)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read Parquet row %d: %w", result.Rows+1, err)
		}
		r.add(result, item.ID, item.Content)
	}
}

func columnIndex(header []string, names ...string) int {
	for _, name := range names {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
	}
	return -1
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
