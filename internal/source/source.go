// Package source reads delimited tabular input: it opens files in a
// configurable character encoding, exposes the header, and streams rows to
// the conversion pipeline with soft-drop error handling.
package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// Row is one data row. Line is the 1-based physical line for diagnostics;
// Cells are aligned to the header and already edge-trimmed.
type Row struct {
	Line  int
	Cells []string
}

// Open opens path decoding from the named IANA character encoding into
// UTF-8. UTF-8 input is passed through undecoded.
func Open(path, encoding string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	name := strings.ToLower(strings.TrimSpace(encoding))
	if name == "" || name == "utf-8" || name == "utf8" {
		return f, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		f.Close()
		return nil, fmt.Errorf("unknown encoding %q", encoding)
	}

	type rc struct {
		io.Reader
		io.Closer
	}
	return &rc{
		Reader: transform.NewReader(f, enc.NewDecoder()),
		Closer: f,
	}, nil
}

// Reader parses delimited rows. The first rune of the configured delimiter
// is used as the field separator.
type Reader struct {
	cr     *csv.Reader
	line   int
	header []string
}

// NewReader wraps r. The record length is not enforced; short rows surface
// as empty trailing cells and long rows are truncated to the header.
func NewReader(r io.Reader, delimiter string) *Reader {
	cr := csv.NewReader(r)
	if delimiter != "" {
		cr.Comma = []rune(delimiter)[0]
	}
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1
	return &Reader{cr: cr}
}

// Header reads and returns the header row. The first cell is stripped of a
// UTF-8 BOM, all names are edge-trimmed, and duplicates are an error: column
// rules address cells by name, so names must be unambiguous.
func (r *Reader) Header() ([]string, error) {
	rec, err := r.cr.Read()
	r.line++
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	header := make([]string, len(rec))
	seen := make(map[string]int, len(rec))
	for i, h := range rec {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		h = strings.TrimSpace(h)
		if prev, dup := seen[h]; dup {
			return nil, fmt.Errorf("duplicate header column %q (positions %d and %d)", h, prev+1, i+1)
		}
		seen[h] = i
		header[i] = h
	}
	r.header = header
	return header, nil
}

// Stream reads data rows until EOF or cancellation and sends them to out.
// Malformed lines are reported through onErr and dropped. I/O and charset
// decode errors are not per-line and abort the stream. Header must have
// been called first.
func (r *Reader) Stream(ctx context.Context, out chan<- Row, onErr func(line int, err error)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := r.cr.Read()
		r.line++
		if err == io.EOF {
			return nil
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				// Not a per-line defect: the underlying reader is
				// broken and will keep failing.
				return fmt.Errorf("read row: %w", err)
			}
			if onErr != nil {
				onErr(r.line, fmt.Errorf("read row: %w", err))
			}
			continue
		}

		// Copy out of the reused record, aligned to the header.
		cells := make([]string, len(r.header))
		for i := range cells {
			if i < len(rec) {
				cells[i] = strings.TrimSpace(rec[i])
			}
		}

		select {
		case out <- Row{Line: r.line, Cells: cells}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// CountRows counts the data rows of the input (header excluded). Used for
// progress reporting before a run; a count failure is not fatal to the run.
func CountRows(path, encoding, delimiter string) (int, error) {
	src, err := Open(path, encoding)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	cr := csv.NewReader(src)
	if delimiter != "" {
		cr.Comma = []rune(delimiter)[0]
	}
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	n := 0
	for {
		_, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return 0, fmt.Errorf("count rows: %w", err)
			}
			continue
		}
		n++
	}
	if n > 0 {
		n-- // header
	}
	return n, nil
}
