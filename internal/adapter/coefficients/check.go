package coefficients

import (
	"fmt"

	"github.com/couchcryptid/rainfall-idf-service/internal/idf"
)

// Issue is one problem found in a coefficient row.
type Issue struct {
	Row          int    `json:"row"`
	State        string `json:"state"`
	Municipality string `json:"municipality"`
	Problem      string `json:"problem"`
}

func (i Issue) String() string {
	return fmt.Sprintf("row %d %s/%s: %s", i.Row, i.State, i.Municipality, i.Problem)
}

// Check resolves every row the way an analysis would and flags rows that
// would fail or that break the expected shape: P24/dia equal to 1,
// coefficients in (0, 1] and non-increasing as the duration shrinks.
// Duplicate state and municipality pairs are reported too, since lookups only
// ever see the first.
func Check(w *Workbook, opts idf.Options) []Issue {
	var issues []Issue
	seen := make(map[string]int, len(w.Rows))
	table := w.Table()

	for i, r := range w.Rows {
		rowNum := w.HeaderRow + 1 + i
		add := func(format string, args ...any) {
			issues = append(issues, Issue{
				Row:          rowNum,
				State:        r.State,
				Municipality: r.Municipality,
				Problem:      fmt.Sprintf(format, args...),
			})
		}

		key := r.State + "/" + r.Municipality
		if first, dup := seen[key]; dup {
			add("duplicate of row %d", first)
			continue
		}
		seen[key] = rowNum

		coeffs, err := idf.ResolveCoefficients(table, r.State, r.Municipality, opts)
		if err != nil {
			add("%v", err)
			continue
		}
		if coeffs[0] != 1 {
			add("%s is %g, expected 1", label(opts, 0), coeffs[0])
		}
		for j, c := range coeffs {
			if c <= 0 || c > 1 {
				add("%s is %g, outside (0, 1]", label(opts, j), c)
			}
			if j > 0 && c > coeffs[j-1] {
				add("%s (%g) exceeds %s (%g)", label(opts, j), c, label(opts, j-1), coeffs[j-1])
			}
		}
	}
	return issues
}

func label(opts idf.Options, i int) string {
	if i < len(opts.CoefficientColumns) {
		return opts.CoefficientColumns[i]
	}
	return fmt.Sprintf("column %d", i+1)
}
