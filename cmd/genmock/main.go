// Command genmock writes synthetic fixtures for local runs and the
// integration suite: a Hidroweb-style daily rainfall export whose annual
// maxima follow a known GEV distribution, a coefficient workbook, and the
// analysis request a producer would publish for that export.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -csv-out data/mock/chuvas_C_99999999.csv \
//	  -coef-out data/mock/Coeficientes.xlsx \
//	  -request-out data/mock/request.json \
//	  -years 30 -shape 0.1 -loc 85 -scale 20
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/xuri/excelize/v2"

	"github.com/couchcryptid/rainfall-idf-service/internal/adapter/coefficients"
	"github.com/couchcryptid/rainfall-idf-service/internal/adapter/hidroweb"
	"github.com/couchcryptid/rainfall-idf-service/internal/domain"
	"github.com/couchcryptid/rainfall-idf-service/internal/idf"
)

const stationID = "99999999"

// mockMunicipalities get the reference ratios below, scaled slightly apart so
// each one yields a different curve.
var mockMunicipalities = []struct {
	state, name string
	factor      float64
}{
	{"MG", "Belo Horizonte", 1},
	{"SP", "Campinas", 0.97},
	{"SP", "Santos", 1.03},
	{"RJ", "Petropolis", 0.95},
}

// referenceRatios are the 24h-to-duration ratios for 1440, 720, 360, 240,
// 120, 60, 45, 30, 20, 15 and 10 minutes.
var referenceRatios = []float64{1, 0.85, 0.82, 0.78, 0.72, 0.60, 0.52, 0.42, 0.31, 0.25, 0.17}

type gev struct{ shape, loc, scale float64 }

func (g gev) sample(r *rand.Rand) float64 {
	u := r.Float64()
	for u == 0 {
		u = r.Float64()
	}
	y := -math.Log(u)
	if math.Abs(g.shape) < 1e-6 {
		return g.loc - g.scale*math.Log(y)
	}
	return g.loc + g.scale/g.shape*(math.Pow(y, -g.shape)-1)
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	csvOut := flag.String("csv-out", "", "output path for the station CSV export")
	coefOut := flag.String("coef-out", "", "optional output path for a coefficient workbook")
	requestOut := flag.String("request-out", "", "optional output path for an analysis request JSON")
	years := flag.Int("years", 30, "number of years to generate")
	firstYear := flag.Int("first-year", 1980, "first year of the record")
	shape := flag.Float64("shape", 0.1, "GEV shape of the annual maxima")
	loc := flag.Float64("loc", 85, "GEV location (mm)")
	scale := flag.Float64("scale", 20, "GEV scale (mm)")
	seed := flag.Uint64("seed", 42, "random seed")
	flag.Parse()

	if *csvOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -csv-out")
	}
	if *years < 1 || *scale <= 0 {
		return fmt.Errorf("-years must be positive and -scale greater than zero")
	}

	r := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	dist := gev{shape: *shape, loc: *loc, scale: *scale}

	columns, rows, maxima := generateSeries(r, dist, *firstYear, *years)
	if err := writeCSV(*csvOut, columns, rows); err != nil {
		return err
	}
	log.Printf("%s: %d monthly rows, %d years", *csvOut, len(rows), *years)
	printStats(maxima)

	if *coefOut != "" {
		if err := writeCoefficients(*coefOut); err != nil {
			return err
		}
		log.Printf("%s: %d municipalities", *coefOut, len(mockMunicipalities))
	}

	if *requestOut != "" {
		req := domain.AnalysisRequest{
			RequestID:    "mock-" + stationID,
			SourceLabel:  filepath.Base(*csvOut),
			SeriesType:   domain.SeriesDaily,
			State:        mockMunicipalities[0].state,
			Municipality: mockMunicipalities[0].name,
			Columns:      columns,
			Rows:         rows,
		}
		if err := writeJSON(*requestOut, req); err != nil {
			return err
		}
		log.Printf("%s: request %s", *requestOut, req.RequestID)
	}
	return nil
}

// generateSeries produces one row per month in the Hidroweb layout: the
// month's first day in Data and the month's largest daily total in Maxima.
// Each year's annual maximum is drawn from dist and placed in a random month;
// the other months get smaller values.
func generateSeries(r *rand.Rand, dist gev, firstYear, years int) ([]string, [][]string, []float64) {
	columns := []string{"EstacaoCodigo", "NivelConsistencia", "Data", "TipoMedicaoChuvas", "Maxima", "Total", "DiaMaxima", "NumDiasDeChuva"}
	rows := make([][]string, 0, years*12)
	maxima := make([]float64, 0, years)

	for y := firstYear; y < firstYear+years; y++ {
		annual := math.Max(dist.sample(r), 1)
		maxima = append(maxima, annual)
		peak := r.IntN(12) + 1

		for m := 1; m <= 12; m++ {
			monthly := annual
			if m != peak {
				monthly = annual * (0.1 + 0.8*r.Float64())
			}
			wetDays := 3 + r.IntN(15)
			total := monthly * (1.5 + r.Float64()*float64(wetDays)/4)
			date := time.Date(y, time.Month(m), 1, 0, 0, 0, 0, time.UTC)
			rows = append(rows, []string{
				stationID,
				"2",
				date.Format("02/01/2006"),
				"1",
				decimal(monthly),
				decimal(total),
				strconv.Itoa(1 + r.IntN(28)),
				strconv.Itoa(wetDays),
			})
		}
	}
	return columns, rows, maxima
}

// decimal formats with a comma decimal separator like the ANA exports.
func decimal(v float64) string {
	return strings.Replace(strconv.FormatFloat(v, 'f', 1, 64), ".", ",", 1)
}

func writeCSV(path string, columns []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var b strings.Builder
	preamble := []string{
		"//  ANA - Agencia Nacional de Aguas",
		"//  Sistema de Informacoes Hidrologicas - HidroWeb",
		"//  Dados gerados sinteticamente para testes",
		"//",
		"//  Codigo da estacao: " + stationID,
		"//  Nome: ESTACAO SINTETICA",
		"//  Tipo: Pluviometrica",
		"//",
		"//  NivelConsistencia: 1 = Bruto, 2 = Consistido",
		"//  TipoMedicaoChuvas: 1 = Pluviometro",
		"//  Unidade: mm",
		"//",
		"//",
	}
	for i := 0; i < hidroweb.PreambleLines; i++ {
		b.WriteString(preamble[i%len(preamble)])
		b.WriteString("\r\n")
	}
	b.WriteString(strings.Join(columns, ";"))
	b.WriteString("\r\n")
	for _, row := range rows {
		b.WriteString(strings.Join(row, ";"))
		b.WriteString("\r\n")
	}
	return os.WriteFile(path, []byte(b.String()), 0o600)
}

func writeCoefficients(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	header := []any{coefficients.ColumnState, coefficients.ColumnMunicipality}
	for _, c := range idf.DefaultOptions().CoefficientColumns {
		header = append(header, c)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, m := range mockMunicipalities {
		row := []any{m.state, m.name}
		for j, ratio := range referenceRatios {
			if j == 0 {
				row = append(row, 1.0)
				continue
			}
			row = append(row, math.Min(ratio*m.factor, 1))
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

func printStats(maxima []float64) {
	mean, _ := stats.Mean(maxima)
	sd, _ := stats.StandardDeviationSample(maxima)
	lo, _ := stats.Min(maxima)
	hi, _ := stats.Max(maxima)
	p90, _ := stats.Percentile(maxima, 90)

	fmt.Println()
	fmt.Println("=== Annual Maxima ===")
	fmt.Printf("  years:  %d\n", len(maxima))
	fmt.Printf("  mean:   %.1f mm\n", mean)
	fmt.Printf("  stddev: %.1f mm\n", sd)
	fmt.Printf("  range:  %.1f .. %.1f mm\n", lo, hi)
	fmt.Printf("  p90:    %.1f mm\n", p90)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}
