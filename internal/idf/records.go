package idf

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Canonical column names after trimming and lower-casing the header.
const (
	ColumnStation = "estacaocodigo"
	ColumnDate    = "data"
	ColumnMaxima  = "maxima"
)

var dateLayouts = []string{"2/1/2006", "2006-01-02"}

// Table is a header plus string rows, as produced by any tabular reader.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Observation is one parsed row: the date and the maximum daily depth in mm.
type Observation struct {
	Date  time.Time
	Depth float64
}

// Records is the cleaned precipitation record.
type Records struct {
	StationID    string
	Observations []Observation
	// Dropped counts rows whose date or depth did not parse.
	Dropped int
}

// NormalizeColumn trims and lower-cases a header cell.
func NormalizeColumn(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidateColumns returns the column positions of the station, date and
// maxima columns. The station column is optional and reported as -1 when absent.
func ValidateColumns(columns []string) (station, date, maxima int, err error) {
	station, date, maxima = -1, -1, -1
	for i, c := range columns {
		switch NormalizeColumn(c) {
		case ColumnStation:
			if station < 0 {
				station = i
			}
		case ColumnDate:
			if date < 0 {
				date = i
			}
		case ColumnMaxima:
			if maxima < 0 {
				maxima = i
			}
		}
	}

	var missing []string
	if date < 0 {
		missing = append(missing, ColumnDate)
	}
	if maxima < 0 {
		missing = append(missing, ColumnMaxima)
	}
	if len(missing) > 0 {
		e := newError(StageColumns, KindStructural, ErrMissingColumns, "%s", strings.Join(missing, ", "))
		e.Missing = missing
		return -1, -1, -1, e
	}
	return station, date, maxima, nil
}

// ParseRecords validates the header and converts every row it can. Rows with
// an unparseable date or depth are dropped, never defaulted.
func ParseRecords(t Table) (Records, error) {
	stationCol, dateCol, maximaCol, err := ValidateColumns(t.Columns)
	if err != nil {
		return Records{}, err
	}

	recs := Records{Observations: make([]Observation, 0, len(t.Rows))}
	for _, row := range t.Rows {
		date, okDate := ParseDate(cell(row, dateCol))
		depth, okDepth := ParseDecimal(cell(row, maximaCol))
		if !okDate || !okDepth || depth < 0 {
			recs.Dropped++
			continue
		}
		if recs.StationID == "" && stationCol >= 0 {
			recs.StationID = strings.TrimSpace(cell(row, stationCol))
		}
		recs.Observations = append(recs.Observations, Observation{Date: date, Depth: depth})
	}
	return recs, nil
}

// ParseDate accepts day/month/year as exported by Hidroweb, and ISO dates.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseDecimal parses a number written with either a decimal comma or point.
func ParseDecimal(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
