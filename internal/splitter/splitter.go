// Package splitter turns raw file content into retrieval-sized fragments
// using language-aware recursive splitting.
package splitter

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrDecode indicates file content that cannot be decoded as text (binary
// data, invalid UTF-8, or a malformed notebook). Callers skip such files
// and continue.
var ErrDecode = errors.New("content could not be decoded as text")

// Config defines chunking parameters for one file class.
type Config struct {
	// ChunkSize is the maximum fragment size in characters.
	ChunkSize int
	// ChunkOverlap is the number of trailing characters from a fragment
	// copied into the start of the next one. Must satisfy
	// 0 <= ChunkOverlap < ChunkSize.
	ChunkOverlap int
}

// Validate checks the size/overlap contract.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap must satisfy 0 <= overlap < size, got overlap=%d size=%d", c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// Fragment is one retrieval-sized piece of a file. Content carries the
// source path prefix so results are self-describing.
type Fragment struct {
	Path     string
	Position int
	Language Language
	Content  string
}

// Chunker splits files into fragments. Recognized source languages use
// the recursive separator strategy with the Code config; everything else
// falls back to the token splitter with the Text config.
type Chunker struct {
	code Config
	text Config
}

// New creates a chunker, validating both configs.
func New(code, text Config) (*Chunker, error) {
	if err := code.Validate(); err != nil {
		return nil, fmt.Errorf("code config: %w", err)
	}
	if err := text.Validate(); err != nil {
		return nil, fmt.Errorf("text config: %w", err)
	}
	return &Chunker{code: code, text: text}, nil
}

// Split chunks one file into path-prefixed fragments. Returns ErrDecode
// for content that is not text; an empty file yields zero fragments.
func (c *Chunker) Split(path string, data []byte) ([]Fragment, error) {
	text, err := DecodeText(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	lang, known := Detect(path)
	if lang == LangNotebook {
		text, err = ExtractNotebook(text)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		lang = LangPython
	}

	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	prefix := "filename: " + path + "\n"

	var chunks []string
	if known {
		chunks = recursiveSplit(text, separators(lang), budgetFor(c.code, len(prefix)))
	} else {
		chunks = tokenSplit(text, budgetFor(c.text, len(prefix)))
	}

	fragments := make([]Fragment, 0, len(chunks))
	for i, chunk := range chunks {
		fragments = append(fragments, Fragment{
			Path:     path,
			Position: i,
			Language: lang,
			Content:  prefix + chunk,
		})
	}
	return fragments, nil
}

// budgetFor reserves the path prefix against the fragment budget so the
// full fragment, prefix included, stays within ChunkSize.
func budgetFor(cfg Config, prefixLen int) Config {
	size := cfg.ChunkSize - prefixLen
	if size <= cfg.ChunkOverlap {
		// Pathological path length; keep the raw budget rather than
		// produce degenerate single-character chunks.
		return cfg
	}
	cfg.ChunkSize = size
	return cfg
}

// DecodeText converts raw bytes to a string, rejecting binary content.
func DecodeText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: invalid UTF-8", ErrDecode)
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return "", fmt.Errorf("%w: NUL byte in content", ErrDecode)
	}
	return string(data), nil
}

// recursiveSplit splits text with the ordered separator preferences: the
// coarsest separator first, recursing with finer ones for any piece that
// still exceeds the budget. Concatenating the returned chunks (before
// overlap is applied) reproduces the input exactly.
func recursiveSplit(text string, seps []string, cfg Config) []string {
	base := splitRecursive(text, seps, cfg.ChunkSize-cfg.ChunkOverlap)
	return applyOverlap(base, cfg.ChunkOverlap)
}

func splitRecursive(text string, seps []string, limit int) []string {
	if len(text) <= limit {
		if text == "" {
			return nil
		}
		return []string{text}
	}

	// All separators exhausted: cut at character boundaries.
	if len(seps) == 0 || seps[0] == "" {
		return hardSplit(text, limit)
	}

	pieces := splitBefore(text, seps[0])

	var chunks []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, piece := range pieces {
		if len(piece) > limit {
			// Piece too large even alone: recurse with finer separators.
			flush()
			chunks = append(chunks, splitRecursive(piece, seps[1:], limit)...)
			continue
		}
		if current.Len()+len(piece) > limit {
			flush()
		}
		current.WriteString(piece)
	}
	flush()

	return chunks
}

// splitBefore splits text at every occurrence of sep, keeping the
// separator attached to the start of the following piece so nothing is
// lost and declaration headers stay with their bodies.
func splitBefore(text, sep string) []string {
	var pieces []string
	start := 0
	// Search from start+1 so a leading separator does not produce an
	// empty first piece.
	for start < len(text) {
		idx := strings.Index(text[start+1:], sep)
		if idx < 0 {
			pieces = append(pieces, text[start:])
			break
		}
		cut := start + 1 + idx
		pieces = append(pieces, text[start:cut])
		start = cut
	}
	return pieces
}

// hardSplit cuts text into limit-sized chunks at rune boundaries.
func hardSplit(text string, limit int) []string {
	var chunks []string
	for len(text) > limit {
		cut := boundaryBefore(text, limit)
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// boundaryBefore returns the largest index <= n that does not cut a rune.
func boundaryBefore(s string, n int) int {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	if n == 0 {
		// Single rune longer than the limit; take it whole.
		_, size := utf8.DecodeRuneInString(s)
		return size
	}
	return n
}

// applyOverlap copies the last overlap characters of each chunk into the
// start of the next one.
func applyOverlap(chunks []string, overlap int) []string {
	if overlap <= 0 || len(chunks) <= 1 {
		return chunks
	}

	result := make([]string, len(chunks))
	result[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		tail := prev
		if len(prev) > overlap {
			start := len(prev) - overlap
			// Do not cut a rune in half.
			for start < len(prev) && !utf8.RuneStart(prev[start]) {
				start++
			}
			tail = prev[start:]
		}
		result[i] = tail + chunks[i]
	}
	return result
}

// tokenSplit is the generic fallback for unrecognized file types: it
// accumulates whitespace-delimited tokens until the character budget is
// reached. The size/overlap contract matches the recursive splitter.
func tokenSplit(text string, cfg Config) []string {
	limit := cfg.ChunkSize - cfg.ChunkOverlap

	var chunks []string
	var current strings.Builder

	for _, token := range tokenize(text) {
		if len(token) > limit {
			if current.Len() > 0 {
				chunks = append(chunks, current.String())
				current.Reset()
			}
			chunks = append(chunks, hardSplit(token, limit)...)
			continue
		}
		if current.Len()+len(token) > limit {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		current.WriteString(token)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	return applyOverlap(chunks, cfg.ChunkOverlap)
}

// tokenize splits text into tokens, each a run of non-space characters
// with its trailing whitespace attached. Concatenation is lossless.
func tokenize(text string) []string {
	var tokens []string
	start := 0
	inSpace := false
	for i, r := range text {
		isSpace := unicode.IsSpace(r)
		if inSpace && !isSpace {
			tokens = append(tokens, text[start:i])
			start = i
		}
		inSpace = isSpace
	}
	if start < len(text) {
		tokens = append(tokens, text[start:])
	}
	return tokens
}
