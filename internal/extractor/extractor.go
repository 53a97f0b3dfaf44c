// Package extractor turns an e-reader highlight export into a BookRecord.
//
// The export is a fixed-position CSV: a handful of metadata lines, of which
// a few carry the title, authors and preview, followed by one CSV row per
// highlight. Where each value lives is described by a Layout.
package extractor

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Lllllllleong/highlightextractor/internal/models"
)

var (
	// ErrMalformedExport is returned when the file does not have the shape of an export.
	ErrMalformedExport = errors.New("malformed export")
	// ErrReadExport wraps a failure of the underlying reader.
	ErrReadExport = errors.New("failed to read export")
)

// maxLineSize bounds a single export line. Long highlights are a few KB at most.
const maxLineSize = 1 << 20

// Extractor maps export lines to BookRecord fields according to a Layout.
// It holds no per-file state and is safe for concurrent use.
type Extractor struct {
	layout Layout
}

// New returns an Extractor for the given layout.
func New(layout Layout) *Extractor {
	return &Extractor{layout: layout}
}

// Extract reads r line by line and builds a BookRecord. A read error from r
// aborts extraction immediately.
func (e *Extractor) Extract(r io.Reader) (*models.BookRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	acc := e.newAccumulator()
	for scanner.Scan() {
		if err := acc.consume(scanner.Text()); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, fmt.Errorf("%w: line %d is longer than %d bytes", ErrMalformedExport, acc.lineNo+1, maxLineSize)
		}
		return nil, fmt.Errorf("%w after line %d: %w", ErrReadExport, acc.lineNo, err)
	}
	return acc.finish()
}

// ExtractLines is Extract over lines that are already in memory.
func (e *Extractor) ExtractLines(lines []string) (*models.BookRecord, error) {
	acc := e.newAccumulator()
	for _, line := range lines {
		if err := acc.consume(line); err != nil {
			return nil, err
		}
	}
	return acc.finish()
}

type accumulator struct {
	layout Layout
	lineNo int
	book   models.BookRecord
}

func (e *Extractor) newAccumulator() *accumulator {
	return &accumulator{
		layout: e.layout,
		book:   models.BookRecord{Quotes: []string{}},
	}
}

func (a *accumulator) consume(line string) error {
	a.lineNo++
	if a.lineNo >= a.layout.DataStartLine {
		return a.consumeQuote(line)
	}

	field, ok := a.layout.Fields[a.lineNo]
	if !ok {
		return nil
	}
	value := Sanitize(line)
	switch field {
	case FieldTitle:
		a.book.Title = value
	case FieldAuthors:
		a.book.Authors = splitAuthors(value, a.layout.AuthorSeparator)
	case FieldPreview:
		a.book.Preview = value
	}
	return nil
}

func (a *accumulator) consumeQuote(line string) error {
	if strings.TrimSpace(line) == "" {
		return fmt.Errorf("%w: line %d is empty", ErrMalformedExport, a.lineNo)
	}

	reader := csv.NewReader(strings.NewReader(line))
	reader.FieldsPerRecord = -1
	record, err := reader.Read()
	if err != nil {
		return fmt.Errorf("%w: line %d is not a valid CSV row: %v", ErrMalformedExport, a.lineNo, err)
	}
	if len(record) <= a.layout.QuoteColumn {
		return fmt.Errorf("%w: line %d has %d columns, want at least %d",
			ErrMalformedExport, a.lineNo, len(record), a.layout.QuoteColumn+1)
	}

	a.book.Quotes = append(a.book.Quotes, record[a.layout.QuoteColumn])
	return nil
}

// finish runs the structural checks that catch a file from a different
// exporter version before its fields are trusted.
func (a *accumulator) finish() (*models.BookRecord, error) {
	if a.lineNo < a.layout.MinHeaderLines {
		return nil, fmt.Errorf("%w: %d lines, want at least %d", ErrMalformedExport, a.lineNo, a.layout.MinHeaderLines)
	}
	if a.book.Title == "" {
		return nil, fmt.Errorf("%w: empty %s", ErrMalformedExport, FieldTitle)
	}
	if len(a.book.Authors) == 0 {
		return nil, fmt.Errorf("%w: empty %s", ErrMalformedExport, FieldAuthors)
	}
	book := a.book
	return &book, nil
}

func splitAuthors(value, sep string) []string {
	var authors []string
	for _, name := range strings.Split(value, sep) {
		if name = strings.TrimSpace(name); name != "" {
			authors = append(authors, name)
		}
	}
	return authors
}
