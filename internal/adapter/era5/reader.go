// Package era5 turns ERA5 reanalysis NetCDF files into a daily precipitation
// record for one location, for sites without a rain gauge.
//
// ERA5 hourly total precipitation ("tp") is in metres accumulated over the
// hour ending at the timestamp. Hours are assigned to the UTC day in which
// the accumulation period starts and summed into millimetres.
package era5

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"

	"github.com/couchcryptid/rainfall-idf-service/internal/idf"
)

const precipitationVar = "tp"

// maxChunkCells caps the grid values decoded by one GetSlice call.
const maxChunkCells = 1 << 22

var (
	ErrUnsupportedLayout = errors.New("unsupported ERA5 variable layout")
	ErrOutsideGrid       = errors.New("location outside the file's grid")
)

// Cell is the grid cell a series was read from.
type Cell struct {
	Latitude  float64
	Longitude float64
	LatIndex  int
	LonIndex  int
}

// Day is one UTC day. A day with any missing hour is incomplete and carries no depth.
type Day struct {
	Date     time.Time
	DepthMM  float64
	Hours    int
	Complete bool
}

// Series is the daily record of one cell.
type Series struct {
	Cell Cell
	Days []Day
}

// StationID labels the series like a gauge code.
func (s *Series) StationID() string {
	return fmt.Sprintf("ERA5 %.2f,%.2f", s.Cell.Latitude, s.Cell.Longitude)
}

// Table renders the series in the station record layout. Incomplete days
// have an empty depth and are dropped by idf.ParseRecords.
func (s *Series) Table() idf.Table {
	t := idf.Table{Columns: []string{"EstacaoCodigo", "Data", "Maxima"}}
	id := s.StationID()
	for _, d := range s.Days {
		depth := ""
		if d.Complete {
			depth = strconv.FormatFloat(d.DepthMM, 'f', 2, 64)
		}
		t.Rows = append(t.Rows, []string{id, d.Date.Format("02/01/2006"), depth})
	}
	return t
}

// ReadDaily reads the hourly precipitation of the grid cell nearest to
// (lat, lon) and sums it per day. Longitudes may be given in either the
// -180..180 or the 0..360 convention.
func ReadDaily(path string, lat, lon float64) (*Series, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open era5 file: %w", err)
	}
	defer nc.Close()

	lats, err := coordinate(nc, "latitude")
	if err != nil {
		return nil, err
	}
	lons, err := coordinate(nc, "longitude")
	if err != nil {
		return nil, err
	}
	times, err := timeAxis(nc)
	if err != nil {
		return nil, err
	}

	cell, err := nearestCell(lats, lons, lat, lon)
	if err != nil {
		return nil, err
	}

	tp, err := nc.GetVarGetter(precipitationVar)
	if err != nil {
		return nil, fmt.Errorf("era5 variable %q: %w", precipitationVar, err)
	}
	pk := packingOf(tp.Attributes())

	step := chunkSteps(len(lats) * len(lons))
	hourly := make([]float64, len(times))
	for begin := 0; begin < len(times); begin += step {
		end := min(begin+step, len(times))
		v, err := tp.GetSlice(int64(begin), int64(end))
		if err != nil {
			return nil, fmt.Errorf("read %s at steps %d-%d: %w", precipitationVar, begin, end, err)
		}
		vals, err := pk.cellSeries(v, cell.LatIndex, cell.LonIndex)
		if err != nil {
			return nil, err
		}
		if len(vals) != end-begin {
			return nil, fmt.Errorf("%w: %s returned %d steps for %d-%d", ErrUnsupportedLayout, precipitationVar, len(vals), begin, end)
		}
		copy(hourly[begin:end], vals)
	}

	return &Series{Cell: cell, Days: dailyTotals(times, hourly)}, nil
}

// chunkSteps is how many time steps of a grid with the given number of cells
// fit in one read.
func chunkSteps(cells int) int {
	if cells <= 0 {
		return 1
	}
	return max(1, maxChunkCells/cells)
}

func coordinate(nc api.Group, name string) ([]float64, error) {
	vg, err := nc.GetVarGetter(name)
	if err != nil {
		return nil, fmt.Errorf("era5 coordinate %q: %w", name, err)
	}
	v, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("era5 coordinate %q: %w", name, err)
	}
	return toFloat64s(v)
}

// timeAxis reads "time" (hours since 1900 in the classic CDS format) or
// "valid_time" (seconds since 1970 in the newer one) using its units attribute.
func timeAxis(nc api.Group) ([]time.Time, error) {
	var vg api.VarGetter
	var err error
	for _, name := range []string{"time", "valid_time"} {
		vg, err = nc.GetVarGetter(name)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("era5 time axis: %w", err)
	}

	raw, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("era5 time axis: %w", err)
	}
	offsets, err := toFloat64s(raw)
	if err != nil {
		return nil, err
	}

	units := "hours since 1900-01-01 00:00:00"
	if u, ok := vg.Attributes().Get("units"); ok {
		if s, ok := u.(string); ok {
			units = s
		}
	}
	step, epoch, err := parseTimeUnits(units)
	if err != nil {
		return nil, err
	}

	out := make([]time.Time, len(offsets))
	for i, o := range offsets {
		out[i] = epoch.Add(time.Duration(o * float64(step)))
	}
	return out, nil
}

// parseTimeUnits parses CF units such as "hours since 1900-01-01 00:00:00.0".
func parseTimeUnits(units string) (time.Duration, time.Time, error) {
	unit, since, ok := strings.Cut(strings.TrimSpace(units), " since ")
	if !ok {
		return 0, time.Time{}, fmt.Errorf("%w: time units %q", ErrUnsupportedLayout, units)
	}

	var step time.Duration
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "seconds", "second", "s":
		step = time.Second
	case "minutes", "minute":
		step = time.Minute
	case "hours", "hour", "h":
		step = time.Hour
	case "days", "day":
		step = 24 * time.Hour
	default:
		return 0, time.Time{}, fmt.Errorf("%w: time unit %q", ErrUnsupportedLayout, unit)
	}

	since = strings.TrimSuffix(strings.TrimSpace(since), "Z")
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02 15:04", "2006-01-02"} {
		if len(since) >= len(layout) {
			if t, err := time.Parse(layout, since[:len(layout)]); err == nil {
				return step, t, nil
			}
		}
	}
	return 0, time.Time{}, fmt.Errorf("%w: time origin %q", ErrUnsupportedLayout, since)
}

// nearestCell picks the grid point closest to the requested location. The
// target must lie within half a grid step of the grid's extent.
func nearestCell(lats, lons []float64, lat, lon float64) (Cell, error) {
	if len(lats) == 0 || len(lons) == 0 {
		return Cell{}, fmt.Errorf("%w: empty grid", ErrOutsideGrid)
	}
	if lons[0] >= 0 && lon < 0 {
		lon += 360
	}

	li, okLat := nearestIndex(lats, lat)
	lj, okLon := nearestIndex(lons, lon)
	if !okLat || !okLon {
		return Cell{}, fmt.Errorf("%w: (%g, %g)", ErrOutsideGrid, lat, lon)
	}
	return Cell{Latitude: lats[li], Longitude: lons[lj], LatIndex: li, LonIndex: lj}, nil
}

func nearestIndex(axis []float64, v float64) (int, bool) {
	best, bestDist := 0, math.Inf(1)
	for i, a := range axis {
		if d := math.Abs(a - v); d < bestDist {
			best, bestDist = i, d
		}
	}
	tol := 0.5
	if len(axis) > 1 {
		tol = math.Abs(axis[1]-axis[0]) / 2
	}
	return best, bestDist <= tol+1e-9
}

// dailyTotals sums hourly depths in metres into millimetre days. NaN marks a
// missing hour.
func dailyTotals(times []time.Time, hourly []float64) []Day {
	var days []Day
	index := make(map[time.Time]int)
	for i, ts := range times {
		start := ts.UTC().Add(-time.Hour)
		date := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
		k, ok := index[date]
		if !ok {
			k = len(days)
			index[date] = k
			days = append(days, Day{Date: date, Complete: true})
		}
		d := &days[k]
		d.Hours++
		if math.IsNaN(hourly[i]) {
			d.Complete = false
			continue
		}
		d.DepthMM += math.Max(hourly[i], 0) * 1000
	}
	for i := range days {
		if days[i].Hours != 24 {
			days[i].Complete = false
		}
		if !days[i].Complete {
			days[i].DepthMM = 0
		}
	}
	return days
}
