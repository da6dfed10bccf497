package ingestion

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/poiesic/colloquy/core"
)

// loadCSV parses a delimited file with a header row into a Dataset.
// Comma and semicolon delimiters are detected from the header line.
func (l *Loader) loadCSV(ctx context.Context, filename string, r io.Reader) (*core.Dataset, error) {
	data, err := l.readLimited(filename, r)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, &core.ParseError{Filename: filename, Err: err}
	}
	if len(records) == 0 {
		return nil, &core.ParseError{Filename: filename, Err: ErrNoHeader}
	}

	return &core.Dataset{
		Name:    filename,
		Columns: normalizeHeader(records[0]),
		Rows:    records[1:],
	}, nil
}

func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte{';'}) > bytes.Count(line, []byte{','}) {
		return ';'
	}
	return ','
}

// normalizeHeader trims names, fills blanks and makes duplicates unique.
// A repeated name gets the first free numeric suffix that is neither used
// nor a name appearing elsewhere in the header.
func normalizeHeader(header []string) []string {
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = strings.TrimSpace(h)
		if cols[i] == "" {
			cols[i] = fmt.Sprintf("column_%d", i+1)
		}
	}
	reserved := make(map[string]bool, len(cols))
	for _, name := range cols {
		reserved[name] = true
	}

	used := make(map[string]bool, len(cols))
	for i, name := range cols {
		if used[name] {
			base := name
			for n := 2; used[name] || reserved[name]; n++ {
				name = fmt.Sprintf("%s_%d", base, n)
			}
		}
		used[name] = true
		cols[i] = name
	}
	return cols
}
