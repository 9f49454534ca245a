// Package hidroweb reads station series exported by the ANA Hidroweb portal.
//
// Exports are Latin-1 CSV files with a free-text preamble (station name,
// coordinates, export date) of PreambleLines lines before the header. The
// delimiter is usually ';' but files re-saved by spreadsheet tools use ',' or
// tabs, so it is sniffed.
package hidroweb

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/couchcryptid/rainfall-idf-service/internal/idf"
)

// PreambleLines is the length of the Hidroweb export preamble.
const PreambleLines = 13

var delimiters = []rune{';', ',', '\t'}

// ErrNoDelimiter is returned when no delimiter yields a usable table.
var ErrNoDelimiter = errors.New("could not identify the CSV delimiter")

// File is a decoded export.
type File struct {
	idf.Table
	Delimiter rune
	// Skipped is the number of preamble lines dropped before the header.
	Skipped int
}

// ReadFile opens and decodes the export at path.
func ReadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open hidroweb export: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes an export. The preamble is skipped when present; files that
// start directly with the header are accepted too. Blank header cells are
// named Coluna_<index> and missing trailing cells read as empty strings.
func Read(r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read hidroweb export: %w", err)
	}
	text, err := decode(data)
	if err != nil {
		return nil, err
	}

	var fallback *File
	for _, skip := range []int{PreambleLines, 0} {
		body, ok := skipLines(text, skip)
		if !ok {
			continue
		}
		f, recognized := sniff(body)
		if f == nil {
			continue
		}
		f.Skipped = skip
		if recognized {
			return f, nil
		}
		if fallback == nil {
			fallback = f
		}
	}
	if fallback == nil {
		return nil, ErrNoDelimiter
	}
	return fallback, nil
}

// decode returns the content as UTF-8. Content that is already valid UTF-8
// is kept; anything else is taken as Latin-1.
func decode(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data), nil
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode latin-1: %w", err)
	}
	return string(out), nil
}

func skipLines(text string, n int) (string, bool) {
	for i := 0; i < n; i++ {
		idx := strings.IndexByte(text, '\n')
		if idx < 0 {
			return "", false
		}
		text = text[idx+1:]
	}
	return text, strings.TrimSpace(text) != ""
}

// sniff parses body with each delimiter. A delimiter whose header has the
// date and maxima columns wins outright and is reported as recognized;
// otherwise the widest table is returned. Single-column results are rejected.
func sniff(body string) (f *File, recognized bool) {
	for _, d := range delimiters {
		t, err := parse(body, d)
		if err != nil || len(t.Columns) < 2 {
			continue
		}
		if _, _, _, err := idf.ValidateColumns(t.Columns); err == nil {
			return &File{Table: t, Delimiter: d}, true
		}
		if f == nil || len(t.Columns) > len(f.Columns) {
			f = &File{Table: t, Delimiter: d}
		}
	}
	return f, false
}

func parse(body string, delim rune) (idf.Table, error) {
	r := csv.NewReader(strings.NewReader(body))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = delim != '\t'

	records, err := r.ReadAll()
	if err != nil {
		return idf.Table{}, err
	}
	if len(records) == 0 {
		return idf.Table{}, io.ErrUnexpectedEOF
	}

	header := records[0]
	columns := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = "Coluna_" + strconv.Itoa(i)
		}
		columns[i] = h
	}

	rows := make([][]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		row := make([]string, len(columns))
		copy(row, rec)
		rows = append(rows, row)
	}
	return idf.Table{Columns: columns, Rows: rows}, nil
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
