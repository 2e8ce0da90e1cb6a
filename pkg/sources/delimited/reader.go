package delimited

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/leapstack-labs/leapview/pkg/source"
)

// candidateDelimiters are tried in order; ties go to the earlier one.
var candidateDelimiters = []rune{',', ';', '\t', '|'}

// fileReader is a csv.Reader over a file with any byte order mark removed.
type fileReader struct {
	*csv.Reader
	f *os.File
}

func openReader(path string, delim rune) (*fileReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(transform.NewReader(bufio.NewReader(f), unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	r.Comma = delim
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	r.ReuseRecord = true
	return &fileReader{Reader: r, f: f}, nil
}

func (r *fileReader) Close() error {
	return r.f.Close()
}

// next returns the next record. A record that fails to parse is returned
// as an empty row so that row numbering stays stable across passes.
func (r *fileReader) next() ([]string, error) {
	rec, err := r.Read()
	var pe *csv.ParseError
	if errors.As(err, &pe) && !errors.Is(err, io.EOF) {
		return nil, nil
	}
	return rec, err
}

// skip discards n records, checking ctx periodically.
func (r *fileReader) skip(ctx context.Context, n int) error {
	for i := range n {
		if i%source.CancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if _, err := r.next(); err != nil {
			return err
		}
	}
	return nil
}

// readHeader skips headerLine records and returns the header, trimmed.
func (r *fileReader) readHeader(ctx context.Context, headerLine int) ([]string, error) {
	if err := r.skip(ctx, headerLine); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("file ends before header line %d", headerLine)
		}
		return nil, err
	}
	rec, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("missing header")
		}
		return nil, err
	}
	header := make([]string, len(rec))
	blank := true
	for i, h := range rec {
		header[i] = strings.TrimSpace(h)
		if header[i] != "" {
			blank = false
		}
	}
	if blank {
		return nil, fmt.Errorf("header is empty")
	}
	return header, nil
}

// SniffDelimiter picks the most frequent candidate delimiter on the header
// line. It falls back to a comma.
func SniffDelimiter(path string, headerLine int) (rune, error) {
	f, err := os.Open(path)
	if err != nil {
		return ',', err
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(transform.NewReader(f, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for line := 0; sc.Scan(); line++ {
		if line < headerLine {
			continue
		}
		return sniffLine(sc.Text()), nil
	}
	return ',', sc.Err()
}

func sniffLine(line string) rune {
	best, bestCount := ',', 0
	for _, d := range candidateDelimiters {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func delimiterOf(cfg *source.FileConfig) (rune, error) {
	if cfg.Delimiter != "" {
		r := []rune(cfg.Delimiter)
		return r[0], nil
	}
	return SniffDelimiter(cfg.Path, cfg.HeaderLine)
}

// Preview is the first few records of a file, used to pick columns before
// the file is analyzed.
type Preview struct {
	Delimiter rune
	Header    []string
	Rows      [][]string
}

// ReadPreview returns the header and up to lines records of cfg's file.
func ReadPreview(ctx context.Context, cfg *source.FileConfig, lines int) (*Preview, error) {
	delim, err := delimiterOf(cfg)
	if err != nil {
		return nil, source.NewError(source.KindIO, cfg.FileName(), "sniffing delimiter", err)
	}
	r, err := openReader(cfg.Path, delim)
	if err != nil {
		return nil, source.NewError(source.KindIO, cfg.FileName(), "opening file", err)
	}
	defer func() { _ = r.Close() }()

	header, err := r.readHeader(ctx, cfg.HeaderLine)
	if err != nil {
		return nil, source.NewError(source.KindSchemaDetection, cfg.FileName(), "reading header", err)
	}
	p := &Preview{Delimiter: delim, Header: header}
	for len(p.Rows) < lines {
		rec, err := r.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, source.NewError(source.KindIO, cfg.FileName(), "reading preview", err)
		}
		p.Rows = append(p.Rows, slices.Clone(rec))
	}
	return p, nil
}
