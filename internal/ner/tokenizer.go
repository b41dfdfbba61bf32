package ner

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Special token fallbacks (BERT-style) used when the vocabulary omits them
var defaultSpecialTokens = map[string]int64{
	"[PAD]": 0,
	"[UNK]": 100,
	"[CLS]": 101,
	"[SEP]": 102,
}

// Tokenizer splits text into word-level tokens and maps them to vocabulary
// ids, remembering the byte offsets of every token
type Tokenizer struct {
	vocab     map[string]int64
	pad       int64
	unk       int64
	cls       int64
	sep       int64
	maxLength int
}

// TokenizedInput is one fixed-length model input window
type TokenizedInput struct {
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
	// Offsets holds the byte span of each position; special and padding
	// positions hold {-1, -1}
	Offsets [][2]int
	Length  int // positions before padding
}

// NewTokenizer builds a tokenizer from an in-memory vocabulary
func NewTokenizer(vocab map[string]int64, maxLength int) (*Tokenizer, error) {
	if maxLength < 3 {
		return nil, fmt.Errorf("max length %d too small (minimum 3)", maxLength)
	}

	special := func(name string) int64 {
		if id, ok := vocab[name]; ok {
			return id
		}
		return defaultSpecialTokens[name]
	}

	return &Tokenizer{
		vocab:     vocab,
		pad:       special("[PAD]"),
		unk:       special("[UNK]"),
		cls:       special("[CLS]"),
		sep:       special("[SEP]"),
		maxLength: maxLength,
	}, nil
}

// LoadVocab reads a vocabulary file with one token per line; the line
// number is the token id
func LoadVocab(path string) (map[string]int64, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocab: %w", err)
	}
	vocab := make(map[string]int64, len(lines))
	for i, token := range lines {
		if token == "" {
			continue
		}
		vocab[token] = int64(i)
	}
	if len(vocab) == 0 {
		return nil, fmt.Errorf("vocab %s is empty", path)
	}
	return vocab, nil
}

// LoadLabels reads the model's label list, one label per line in output
// index order
func LoadLabels(path string) ([]string, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("labels %s is empty", path)
	}
	return lines, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	// drop trailing blank lines only; interior blanks keep their index
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines, nil
}

// words returns the byte spans of word tokens: runs of letters and digits,
// and single punctuation or symbol runes. Whitespace is skipped.
func words(text string) [][2]int {
	var spans [][2]int
	start := -1
	for i, r := range text {
		if r == utf8.RuneError {
			if start >= 0 {
				spans = append(spans, [2]int{start, i})
				start = -1
			}
			continue
		}
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if start < 0 {
				start = i
			}
		default:
			if start >= 0 {
				spans = append(spans, [2]int{start, i})
				start = -1
			}
			if !unicode.IsSpace(r) {
				spans = append(spans, [2]int{i, i + utf8.RuneLen(r)})
			}
		}
	}
	if start >= 0 {
		spans = append(spans, [2]int{start, len(text)})
	}
	return spans
}

// Tokenize splits text into as many windows as needed so every word lands in
// exactly one window
func (t *Tokenizer) Tokenize(text string) []*TokenizedInput {
	spans := words(text)
	if len(spans) == 0 {
		return nil
	}

	perWindow := t.maxLength - 2
	var windows []*TokenizedInput
	for begin := 0; begin < len(spans); begin += perWindow {
		end := begin + perWindow
		if end > len(spans) {
			end = len(spans)
		}
		windows = append(windows, t.window(text, spans[begin:end]))
	}
	return windows
}

func (t *Tokenizer) window(text string, spans [][2]int) *TokenizedInput {
	in := &TokenizedInput{
		InputIDs:      make([]int64, 0, t.maxLength),
		AttentionMask: make([]int64, 0, t.maxLength),
		TokenTypeIDs:  make([]int64, t.maxLength),
		Offsets:       make([][2]int, 0, t.maxLength),
	}
	push := func(id int64, mask int64, offset [2]int) {
		in.InputIDs = append(in.InputIDs, id)
		in.AttentionMask = append(in.AttentionMask, mask)
		in.Offsets = append(in.Offsets, offset)
	}
	none := [2]int{-1, -1}

	push(t.cls, 1, none)
	for _, span := range spans {
		push(t.lookup(text[span[0]:span[1]]), 1, span)
	}
	push(t.sep, 1, none)
	in.Length = len(in.InputIDs)

	for len(in.InputIDs) < t.maxLength {
		push(t.pad, 0, none)
	}
	return in
}

func (t *Tokenizer) lookup(word string) int64 {
	if id, ok := t.vocab[word]; ok {
		return id
	}
	if id, ok := t.vocab[strings.ToLower(word)]; ok {
		return id
	}
	return t.unk
}
