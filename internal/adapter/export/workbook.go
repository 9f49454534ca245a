// Package export writes analysis reports as spreadsheets for the engineers
// who consume IDF results outside the service.
package export

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/couchcryptid/rainfall-idf-service/internal/domain"
)

// Sheet names.
const (
	SheetParameters = "Parametros"
	SheetIntensity  = "Intensidade"
	SheetMaxima     = "MaximasAnuais"
)

// ContentType is the MIME type of the written workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ErrNoCurve is returned for reports of failed analyses.
var ErrNoCurve = errors.New("report has no fitted curve")

const numberFormat = "0.0000"

// Write renders a succeeded report as a workbook with the fitted parameters,
// the intensity matrix (mm/h, one row per return period) and the annual
// maxima.
func Write(w io.Writer, report domain.AnalysisReport) error {
	f, err := build(report)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// SaveFile is Write to a file path.
func SaveFile(path string, report domain.AnalysisReport) error {
	f, err := build(report)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func build(report domain.AnalysisReport) (*excelize.File, error) {
	if !report.Succeeded() || report.Curve == nil {
		return nil, ErrNoCurve
	}

	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), SheetParameters); err != nil {
		f.Close()
		return nil, err
	}
	for _, name := range []string{SheetIntensity, SheetMaxima} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, err
		}
	}

	steps := []func(*excelize.File, domain.AnalysisReport) error{
		writeParameters,
		writeIntensity,
		writeMaxima,
	}
	for _, step := range steps {
		if err := step(f, report); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

func writeParameters(f *excelize.File, r domain.AnalysisReport) error {
	rows := [][]any{
		{"Parametro", "Valor"},
		{"Arquivo", r.SourceLabel},
		{"Estacao", r.StationID},
		{"UF", r.State},
		{"Municipio", r.Municipality},
		{"IDF a", r.Curve.A},
		{"IDF b", r.Curve.B},
		{"IDF c", r.Curve.C},
		{"IDF d", r.Curve.D},
		{"R2", optional(r.Curve.R2)},
		{"Num anos", r.Curve.NumYears},
	}
	if r.GEV != nil {
		rows = append(rows,
			[]any{"GEV shape", r.GEV.Shape},
			[]any{"GEV loc", r.GEV.Location},
			[]any{"GEV scale", r.GEV.Scale},
		)
	}
	if r.Fit != nil {
		rows = append(rows,
			[]any{"KS estatistica", r.Fit.KSStatistic},
			[]any{"KS p-valor", r.Fit.KSPValue},
			[]any{"AD estatistica", optional(r.Fit.ADStatistic)},
		)
	}
	if err := writeRows(f, SheetParameters, rows); err != nil {
		return err
	}
	return f.SetColWidth(SheetParameters, "A", "B", 18)
}

func writeIntensity(f *excelize.File, r domain.AnalysisReport) error {
	header := make([]any, 0, len(r.Durations)+1)
	header = append(header, "TR")
	for _, d := range r.Durations {
		header = append(header, strconv.FormatFloat(d, 'f', -1, 64)+"min")
	}
	rows := [][]any{header}
	for i, tr := range r.ReturnPeriods {
		row := make([]any, 0, len(r.Durations)+1)
		row = append(row, "TR_"+strconv.FormatFloat(tr, 'f', -1, 64))
		if i < len(r.Intensity) {
			for _, v := range r.Intensity[i] {
				row = append(row, v)
			}
		}
		rows = append(rows, row)
	}
	if err := writeRows(f, SheetIntensity, rows); err != nil {
		return err
	}
	if len(rows) < 2 || len(header) < 2 {
		return nil
	}

	style, err := f.NewStyle(&excelize.Style{CustomNumFmt: ptr(numberFormat)})
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), len(rows))
	if err != nil {
		return err
	}
	return f.SetCellStyle(SheetIntensity, "B2", last, style)
}

func writeMaxima(f *excelize.File, r domain.AnalysisReport) error {
	rows := [][]any{{"Ano", "Maxima (mm)"}}
	for _, m := range r.AnnualMaxima {
		rows = append(rows, []any{m.Year, m.Depth})
	}
	return writeRows(f, SheetMaxima, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("sheet %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

// optional writes undefined statistics as blank cells.
func optional(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func ptr[T any](v T) *T { return &v }
