// Command coefcheck validates a municipal disaggregation coefficient workbook
// before it is deployed: the sheet must have the expected header, every row
// must resolve the way an analysis resolves it, and the coefficients must be
// shaped like a disaggregation series. An optional list of expected
// municipalities checks coverage.
//
// Usage:
//
//	go run ./cmd/coefcheck \
//	  -coefficients data/Coeficientes.xlsx \
//	  -expect data/municipios_atendidos.txt
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/couchcryptid/rainfall-idf-service/internal/adapter/coefficients"
	"github.com/couchcryptid/rainfall-idf-service/internal/idf"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	path := flag.String("coefficients", "data/Coeficientes.xlsx", "coefficient workbook")
	sheet := flag.String("sheet", "", "coefficient sheet (default: first sheet with a coefficient header)")
	expect := flag.String("expect", "", "optional file of UF;municipality lines that must be present")
	flag.Parse()

	os.Exit(run(*path, *sheet, *expect))
}

func run(path, sheet, expectPath string) int {
	fmt.Println("=== Coefficient Workbook Validation ===")
	fmt.Println()

	opts := idf.DefaultOptions()
	wb, err := coefficients.Open(path, sheet, opts.CoefficientColumns)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}
	fmt.Printf("Sheet %q, header on row %d, %d municipalities, %d rows skipped\n",
		wb.Sheet, wb.HeaderRow, len(wb.Rows), wb.Skipped)

	phases := []*phase{
		validateStructure(wb),
		validateValues(wb, opts),
	}
	if expectPath != "" {
		expected, err := loadExpected(expectPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load expected municipalities: %v\n", err)
			return 1
		}
		phases = append(phases, validateCoverage(wb, expected))
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// validateStructure checks the workbook has data at all and that every state
// code looks like a UF.
func validateStructure(wb *coefficients.Workbook) *phase {
	p := &phase{name: "Phase 1: Workbook structure"}
	if len(wb.Rows) == 0 {
		p.errorf("sheet %q has no municipality rows", wb.Sheet)
	}
	for i, r := range wb.Rows {
		if len(strings.TrimSpace(r.State)) != 2 {
			p.errorf("row %d: state %q is not a two-letter UF", wb.HeaderRow+1+i, r.State)
		}
	}
	return p
}

func validateValues(wb *coefficients.Workbook, opts idf.Options) *phase {
	p := &phase{name: "Phase 2: Coefficient values"}
	for _, issue := range coefficients.Check(wb, opts) {
		p.errorf("%s", issue)
	}
	return p
}

func validateCoverage(wb *coefficients.Workbook, expected [][2]string) *phase {
	p := &phase{name: "Phase 3: Municipality coverage"}
	table := wb.Table()
	for _, e := range expected {
		if _, ok := table.Lookup(e[0], e[1]); !ok {
			p.errorf("%s/%s not in workbook", e[0], e[1])
		}
	}
	return p
}

// loadExpected reads "UF;municipality" lines. Blank lines and lines starting
// with # are ignored.
func loadExpected(path string) ([][2]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out [][2]string
	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		state, muni, ok := strings.Cut(line, ";")
		if !ok {
			return nil, fmt.Errorf("line %d: expected UF;municipality", n)
		}
		out = append(out, [2]string{strings.TrimSpace(state), strings.TrimSpace(muni)})
	}
	return out, sc.Err()
}
