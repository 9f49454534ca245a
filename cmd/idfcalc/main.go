// Command idfcalc runs one IDF analysis from the command line: a Hidroweb
// daily-rainfall export (or an ERA5 hourly precipitation NetCDF file) and a
// municipality's disaggregation coefficients in, the fitted curve and the
// intensity matrix out.
//
// Usage:
//
//	go run ./cmd/idfcalc \
//	  -input data/chuvas_C_01943009.csv \
//	  -coefficients data/Coeficientes.xlsx \
//	  -state MG -municipality "Belo Horizonte" \
//	  -xlsx idf_belo_horizonte.xlsx
//
//	go run ./cmd/idfcalc -input era5_tp.nc -lat -19.92 -lon -43.94 \
//	  -coefficients data/Coeficientes.xlsx -municipality "Belo Horizonte"
//
// For NetCDF input without -lat/-lon the municipality is located with the
// Mapbox Geocoding API (MAPBOX_TOKEN).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/rainfall-idf-service/internal/adapter/coefficients"
	"github.com/couchcryptid/rainfall-idf-service/internal/adapter/era5"
	"github.com/couchcryptid/rainfall-idf-service/internal/adapter/export"
	"github.com/couchcryptid/rainfall-idf-service/internal/adapter/hidroweb"
	"github.com/couchcryptid/rainfall-idf-service/internal/adapter/mapbox"
	"github.com/couchcryptid/rainfall-idf-service/internal/domain"
	"github.com/couchcryptid/rainfall-idf-service/internal/idf"
)

func main() {
	if err := run(os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(out io.Writer) error {
	input := flag.String("input", "", "station CSV export or ERA5 NetCDF file (.nc)")
	lat := flag.Float64("lat", math.NaN(), "latitude of the ERA5 grid cell")
	lon := flag.Float64("lon", math.NaN(), "longitude of the ERA5 grid cell")
	coefPath := flag.String("coefficients", "data/Coeficientes.xlsx", "coefficient workbook")
	sheet := flag.String("sheet", "", "coefficient sheet (default: first sheet with a coefficient header)")
	state := flag.String("state", "", "state code (UF); empty matches the first municipality with that name")
	municipality := flag.String("municipality", "", "municipality name")
	xlsxOut := flag.String("xlsx", "", "write the report as a workbook to this path")
	asJSON := flag.Bool("json", false, "print the full report as JSON")
	mapboxToken := flag.String("mapbox-token", sharedcfg.EnvOrDefault("MAPBOX_TOKEN", ""), "Mapbox token for locating the municipality of NetCDF input")
	flag.Parse()

	if *input == "" || *municipality == "" {
		flag.Usage()
		return errors.New("missing required flags: -input, -municipality")
	}

	opts := idf.DefaultOptions()
	wb, err := coefficients.Open(*coefPath, *sheet, opts.CoefficientColumns)
	if err != nil {
		return err
	}

	if isNetCDF(*input) && (math.IsNaN(*lat) || math.IsNaN(*lon)) {
		if *mapboxToken == "" {
			return errors.New("NetCDF input needs -lat and -lon, or a Mapbox token to locate the municipality")
		}
		*lat, *lon, err = locate(*mapboxToken, *municipality, *state)
		if err != nil {
			return err
		}
	}

	table, err := loadTable(*input, *lat, *lon)
	if err != nil {
		return err
	}

	req := domain.NormalizeRequest(domain.AnalysisRequest{
		SourceLabel:  filepath.Base(*input),
		State:        *state,
		Municipality: *municipality,
		Columns:      table.Columns,
		Rows:         table.Rows,
	})
	var report domain.AnalysisReport
	if err := domain.ValidateRequest(req); err != nil {
		report = domain.BuildReport(req, nil, err)
	} else {
		res, err := idf.Run(idf.Input{
			Table:        req.Table(),
			State:        req.State,
			Municipality: req.Municipality,
			SourceLabel:  req.SourceLabel,
		}, wb.Table(), opts)
		report = domain.BuildReport(req, res, err)
	}

	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(out, report)
	}

	if !report.Succeeded() {
		return fmt.Errorf("analysis failed: %s", report.Failure.Message)
	}
	if *xlsxOut != "" {
		if err := export.SaveFile(*xlsxOut, report); err != nil {
			return err
		}
		log.Printf("wrote %s", *xlsxOut)
	}
	return nil
}

func isNetCDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".nc")
}

func locate(token, municipality, state string) (float64, float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client := mapbox.NewClient(token, 10*time.Second, slog.Default())
	place, err := client.Locate(ctx, municipality, state)
	if err != nil {
		return 0, 0, fmt.Errorf("locate %s: %w", municipality, err)
	}
	log.Printf("located %s at %.4f,%.4f", place.FullName, place.Lat, place.Lon)
	return place.Lat, place.Lon, nil
}

func loadTable(path string, lat, lon float64) (idf.Table, error) {
	if isNetCDF(path) {
		series, err := era5.ReadDaily(path, lat, lon)
		if err != nil {
			return idf.Table{}, err
		}
		log.Printf("ERA5 cell %.2f,%.2f: %d days", series.Cell.Latitude, series.Cell.Longitude, len(series.Days))
		return series.Table(), nil
	}

	f, err := hidroweb.ReadFile(path)
	if err != nil {
		return idf.Table{}, err
	}
	log.Printf("%s: %d rows, delimiter %q", filepath.Base(path), len(f.Rows), f.Delimiter)
	return f.Table, nil
}

func printReport(out io.Writer, r domain.AnalysisReport) {
	if !r.Succeeded() {
		fmt.Fprintf(out, "FAILED [%s/%s]: %s\n", r.Failure.Stage, r.Failure.Kind, r.Failure.Message)
		return
	}

	fmt.Fprintf(out, "Station %s, %s/%s, %d years (%d rows dropped)\n\n",
		r.StationID, r.State, r.Municipality, r.Curve.NumYears, r.RowsDropped)
	fmt.Fprintf(out, "GEV   shape=%.4f loc=%.4f scale=%.4f\n", r.GEV.Shape, r.GEV.Location, r.GEV.Scale)
	fmt.Fprintf(out, "KS    D=%.4f p=%.4f\n", r.Fit.KSStatistic, r.Fit.KSPValue)
	fmt.Fprintf(out, "AD    A2=%s (Gumbel)\n", formatOptional(r.Fit.ADStatistic))
	fmt.Fprintf(out, "IDF   I = %.4f * T^%.4f / (t + %.4f)^%.4f   R2=%s\n\n",
		r.Curve.A, r.Curve.B, r.Curve.C, r.Curve.D, formatOptional(r.Curve.R2))

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprint(tw, "T (years)\t")
	for _, d := range r.Durations {
		fmt.Fprintf(tw, "%smin\t", strconv.FormatFloat(d, 'f', -1, 64))
	}
	fmt.Fprintln(tw)
	for i, tr := range r.ReturnPeriods {
		fmt.Fprintf(tw, "%s\t", strconv.FormatFloat(tr, 'f', -1, 64))
		for _, v := range r.Intensity[i] {
			fmt.Fprintf(tw, "%.2f\t", v)
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()

	for _, w := range r.Warnings {
		fmt.Fprintf(out, "\nwarning %s: %s\n", w.Code, w.Message)
	}
}

func formatOptional(v *float64) string {
	if v == nil {
		return "undefined"
	}
	return strconv.FormatFloat(*v, 'f', 4, 64)
}
