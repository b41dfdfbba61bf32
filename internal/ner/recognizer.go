package ner

import (
	"context"
	"fmt"
	"strings"

	"github.com/raaihank/phi-sentinel/internal/privacy"
)

// Recognizer adapts a token-classification backend to the detector's
// entity capability. It is as concurrency-safe as its backend.
type Recognizer struct {
	tokenizer *Tokenizer
	labels    []string
	backend   TaggerBackend
	name      string
}

// NewRecognizer wires a tokenizer, label list and backend together
func NewRecognizer(tokenizer *Tokenizer, labels []string, backend TaggerBackend, name string) *Recognizer {
	if name == "" {
		name = "ner"
	}
	return &Recognizer{
		tokenizer: tokenizer,
		labels:    labels,
		backend:   backend,
		name:      name,
	}
}

// Name identifies the recognizer in logs
func (r *Recognizer) Name() string {
	return r.name
}

// Close releases the backend
func (r *Recognizer) Close() error {
	return r.backend.Close()
}

// Recognize tags text and merges BIO-labeled tokens into entity spans
func (r *Recognizer) Recognize(ctx context.Context, text string) ([]privacy.EntitySpan, error) {
	if !r.backend.IsReady() {
		return nil, fmt.Errorf("tagger backend not ready")
	}

	windows := r.tokenizer.Tokenize(text)
	if len(windows) == 0 {
		return nil, nil
	}

	tags, err := r.backend.TagBatch(ctx, windows)
	if err != nil {
		return nil, err
	}
	if len(tags) != len(windows) {
		return nil, fmt.Errorf("backend returned %d tag rows for %d windows", len(tags), len(windows))
	}

	var spans []privacy.EntitySpan
	for w, window := range windows {
		spans = append(spans, r.decode(window, tags[w])...)
	}
	return spans, nil
}

// decode merges B-X/I-X runs into spans. A stray I-X starts a new span, and
// bare labels without a BIO prefix behave like I-X.
func (r *Recognizer) decode(window *TokenizedInput, tags []Tag) []privacy.EntitySpan {
	var (
		spans   []privacy.EntitySpan
		current *privacy.EntitySpan
		scores  float32
		count   int
	)
	flush := func() {
		if current != nil {
			current.Score = float64(scores / float32(count))
			spans = append(spans, *current)
			current = nil
		}
	}

	for pos := 0; pos < window.Length && pos < len(tags); pos++ {
		offset := window.Offsets[pos]
		if offset[0] < 0 {
			continue
		}
		prefix, entity := splitLabel(r.label(tags[pos].Label))
		if entity == "" {
			flush()
			continue
		}
		if prefix == "B" || current == nil || current.Label != entity {
			flush()
			current = &privacy.EntitySpan{Label: entity, Start: offset[0], End: offset[1]}
			scores, count = 0, 0
		}
		current.End = offset[1]
		scores += tags[pos].Score
		count++
	}
	flush()

	return spans
}

func (r *Recognizer) label(index int) string {
	if index < 0 || index >= len(r.labels) {
		return "O"
	}
	return r.labels[index]
}

// splitLabel separates "B-PER" into ("B", "PER"); "O" yields an empty entity
func splitLabel(label string) (string, string) {
	if label == "" || label == "O" {
		return "", ""
	}
	if len(label) > 2 && label[1] == '-' {
		return strings.ToUpper(label[:1]), label[2:]
	}
	return "", label
}
