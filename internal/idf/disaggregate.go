package idf

import (
	"sort"
	"strconv"
	"strings"
)

// CoefficientRow is one municipality of the disaggregation reference table.
// Values are kept as they appear in the source so conversion problems are
// reported with the offending text.
type CoefficientRow struct {
	State        string
	Municipality string
	// Values line up with Options.Durations (P24/dia first, 10min last).
	Values []string
}

// CoefficientLookup resolves a municipality to its coefficient row. An empty
// state matches the first municipality with that name.
type CoefficientLookup interface {
	Lookup(state, municipality string) (CoefficientRow, bool)
}

// MapTable is an in-memory, read-only CoefficientLookup.
type MapTable struct {
	rows   []CoefficientRow
	byName map[string][]int
}

// NewMapTable indexes rows by municipality name. State codes are compared
// case-insensitively; municipality names must match exactly after trimming.
func NewMapTable(rows []CoefficientRow) *MapTable {
	t := &MapTable{
		rows:   make([]CoefficientRow, 0, len(rows)),
		byName: make(map[string][]int, len(rows)),
	}
	for _, r := range rows {
		r.State = strings.ToUpper(strings.TrimSpace(r.State))
		r.Municipality = strings.TrimSpace(r.Municipality)
		if r.Municipality == "" {
			continue
		}
		t.byName[r.Municipality] = append(t.byName[r.Municipality], len(t.rows))
		t.rows = append(t.rows, r)
	}
	return t
}

func (t *MapTable) Lookup(state, municipality string) (CoefficientRow, bool) {
	state = strings.ToUpper(strings.TrimSpace(state))
	for _, i := range t.byName[municipality] {
		if state == "" || t.rows[i].State == state {
			return t.rows[i], true
		}
	}
	return CoefficientRow{}, false
}

// Len returns the number of municipalities in the table.
func (t *MapTable) Len() int { return len(t.rows) }

// States lists the distinct state codes, sorted.
func (t *MapTable) States() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range t.rows {
		if _, ok := seen[r.State]; ok || r.State == "" {
			continue
		}
		seen[r.State] = struct{}{}
		out = append(out, r.State)
	}
	sort.Strings(out)
	return out
}

// Municipalities lists the municipality names of a state, sorted. An empty
// state lists every municipality.
func (t *MapTable) Municipalities(state string) []string {
	state = strings.ToUpper(strings.TrimSpace(state))
	seen := make(map[string]struct{})
	var out []string
	for _, r := range t.rows {
		if state != "" && r.State != state {
			continue
		}
		if _, ok := seen[r.Municipality]; ok {
			continue
		}
		seen[r.Municipality] = struct{}{}
		out = append(out, r.Municipality)
	}
	sort.Strings(out)
	return out
}

// ResolveCoefficients looks up a municipality and converts its coefficients.
func ResolveCoefficients(lookup CoefficientLookup, state, municipality string, opts Options) ([]float64, error) {
	if lookup == nil {
		return nil, newError(StageCoefficients, KindInternal, ErrInternal, "no coefficient table configured")
	}
	row, ok := lookup.Lookup(state, municipality)
	if !ok {
		e := newError(StageCoefficients, KindReferenceData, ErrMunicipalityNotFound, "%q", municipality)
		e.Key = municipality
		return nil, e
	}
	if len(row.Values) != len(opts.Durations) {
		e := newError(StageCoefficients, KindReferenceData, ErrCoefficientConversion,
			"municipality %q has %d coefficients, expected %d", municipality, len(row.Values), len(opts.Durations))
		e.Key = municipality
		return nil, e
	}

	out := make([]float64, len(row.Values))
	for i, raw := range row.Values {
		v, ok := ParseDecimal(raw)
		if !ok {
			e := newError(StageCoefficients, KindReferenceData, ErrCoefficientConversion,
				"municipality %q column %s: %q", municipality, columnLabel(opts, i), raw)
			e.Key = municipality
			return nil, e
		}
		out[i] = v
	}
	return out, nil
}

func columnLabel(opts Options, i int) string {
	if i < len(opts.CoefficientColumns) {
		return opts.CoefficientColumns[i]
	}
	return "#" + strconv.Itoa(i+1)
}

// IntensityMatrix holds rainfall intensity in mm/h, one row per return period
// and one column per duration.
type IntensityMatrix struct {
	ReturnPeriods []float64   `json:"return_periods"`
	Durations     []float64   `json:"durations_min"`
	Values        [][]float64 `json:"values_mm_h"`
}

// Disaggregate scales each daily design depth by the duration coefficients
// and converts the resulting depths to intensities.
func Disaggregate(daily, coeffs []float64, opts Options) IntensityMatrix {
	m := IntensityMatrix{
		ReturnPeriods: append([]float64(nil), opts.ReturnPeriods...),
		Durations:     append([]float64(nil), opts.Durations...),
		Values:        make([][]float64, len(daily)),
	}
	for i, p := range daily {
		row := make([]float64, len(opts.Durations))
		for j, dur := range opts.Durations {
			row[j] = p * coeffs[j] / (dur / 60)
		}
		m.Values[i] = row
	}
	return m
}
