// Package coefficients loads the municipal disaggregation coefficient
// workbook. Each data row carries a state code (UF), a municipality name
// (NOME MUNIC) and one coefficient per duration column, P24/dia first.
package coefficients

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/couchcryptid/rainfall-idf-service/internal/idf"
)

// Header labels of the identifying columns.
const (
	ColumnState        = "UF"
	ColumnMunicipality = "NOME MUNIC"
)

// headerSearchRows is how far down a sheet the header row is looked for.
const headerSearchRows = 10

var (
	ErrSheetNotFound  = errors.New("sheet not found")
	ErrHeaderNotFound = errors.New("coefficient header row not found")
	ErrMissingColumns = errors.New("missing coefficient columns")
)

// Workbook is the parsed content of one coefficient sheet.
type Workbook struct {
	Sheet string
	// HeaderRow is the 1-based row number of the header.
	HeaderRow int
	Rows      []idf.CoefficientRow
	// Skipped counts data rows without a state or municipality.
	Skipped int
}

// Table indexes the rows for lookups.
func (w *Workbook) Table() *idf.MapTable {
	return idf.NewMapTable(w.Rows)
}

// Open reads the coefficient sheet of the workbook at path. An empty sheet
// name selects the first sheet that has a coefficient header. columns are the
// duration column labels, in idf.Options.CoefficientColumns order.
func Open(path, sheet string, columns []string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open coefficient workbook: %w", err)
	}
	defer f.Close()
	return read(f, sheet, columns)
}

// Read is Open for a workbook held in memory or streamed from elsewhere.
func Read(r io.Reader, sheet string, columns []string) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open coefficient workbook: %w", err)
	}
	defer f.Close()
	return read(f, sheet, columns)
}

func read(f *excelize.File, sheet string, columns []string) (*Workbook, error) {
	if sheet != "" {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, sheet)
		}
		return parseSheet(sheet, rows, columns)
	}

	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			continue
		}
		w, err := parseSheet(name, rows, columns)
		if errors.Is(err, ErrHeaderNotFound) {
			continue
		}
		return w, err
	}
	return nil, ErrHeaderNotFound
}

func parseSheet(sheet string, rows [][]string, columns []string) (*Workbook, error) {
	headerIdx := findHeader(rows)
	if headerIdx < 0 {
		return nil, fmt.Errorf("%w in sheet %q", ErrHeaderNotFound, sheet)
	}

	index := make(map[string]int)
	for i, h := range rows[headerIdx] {
		key := normalizeHeader(h)
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	stateCol := index[normalizeHeader(ColumnState)]
	nameCol := index[normalizeHeader(ColumnMunicipality)]
	valueCols := make([]int, len(columns))
	var missing []string
	for i, c := range columns {
		pos, ok := index[normalizeHeader(c)]
		if !ok {
			missing = append(missing, c)
			continue
		}
		valueCols[i] = pos
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w in sheet %q: %s", ErrMissingColumns, sheet, strings.Join(missing, ", "))
	}

	w := &Workbook{Sheet: sheet, HeaderRow: headerIdx + 1}
	for _, row := range rows[headerIdx+1:] {
		state := strings.ToUpper(strings.TrimSpace(cell(row, stateCol)))
		name := strings.TrimSpace(cell(row, nameCol))
		if state == "" || name == "" {
			if !blank(row) {
				w.Skipped++
			}
			continue
		}
		values := make([]string, len(valueCols))
		for i, pos := range valueCols {
			values[i] = strings.TrimSpace(cell(row, pos))
		}
		w.Rows = append(w.Rows, idf.CoefficientRow{State: state, Municipality: name, Values: values})
	}
	return w, nil
}

func findHeader(rows [][]string) int {
	state, name := normalizeHeader(ColumnState), normalizeHeader(ColumnMunicipality)
	for i := 0; i < len(rows) && i < headerSearchRows; i++ {
		var hasState, hasName bool
		for _, h := range rows[i] {
			switch normalizeHeader(h) {
			case state:
				hasState = true
			case name:
				hasName = true
			}
		}
		if hasState && hasName {
			return i
		}
	}
	return -1
}

func normalizeHeader(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
