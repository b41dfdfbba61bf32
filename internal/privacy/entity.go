package privacy

import (
	"context"
	"io"
	"strings"
	"sync"
)

// EntitySpan is a labeled span produced by a statistical recognizer.
// Start and End are byte offsets into the recognized text.
type EntitySpan struct {
	Label string
	Start int
	End   int
	Score float64
}

// EntityRecognizer is the optional statistical named-entity capability.
// Implementations are chosen once at construction time.
type EntityRecognizer interface {
	Recognize(ctx context.Context, text string) ([]EntitySpan, error)
	Name() string
}

// NoEntities is the always-absent recognizer. Detection with it is
// pattern-only and never degraded.
var NoEntities EntityRecognizer = noEntities{}

type noEntities struct{}

func (noEntities) Recognize(context.Context, string) ([]EntitySpan, error) { return nil, nil }
func (noEntities) Name() string                                            { return "none" }

// Serialized wraps a recognizer that is not safe for concurrent use so that
// at most one Recognize call runs at a time
func Serialized(r EntityRecognizer) EntityRecognizer {
	if r == nil || r == NoEntities {
		return NoEntities
	}
	return &serialized{inner: r}
}

type serialized struct {
	mu    sync.Mutex
	inner EntityRecognizer
}

func (s *serialized) Recognize(ctx context.Context, text string) ([]EntitySpan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.inner.Recognize(ctx, text)
}

func (s *serialized) Name() string {
	return s.inner.Name()
}

func (s *serialized) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return CloseRecognizer(s.inner)
}

// CloseRecognizer releases a recognizer's native resources when it holds any
func CloseRecognizer(r EntityRecognizer) error {
	if c, ok := r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// KindForLabel maps a recognizer label onto an identifier kind. Labels are
// matched case-insensitively, with or without a BIO prefix.
func KindForLabel(label string) (Kind, bool) {
	l := strings.ToLower(strings.TrimSpace(label))
	if len(l) > 2 && (l[:2] == "b-" || l[:2] == "i-") {
		l = l[2:]
	}
	switch l {
	case "person", "per":
		return KindNames, true
	case "location", "loc", "region", "gpe":
		return KindGeographic, true
	case "organization", "organisation", "org":
		return KindOtherUnique, true
	}
	return "", false
}
