package era5

import (
	"fmt"
	"math"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// packing holds the CF packing attributes of a variable. ERA5 files from the
// CDS store tp as int16 with a scale factor and offset.
type packing struct {
	scale   float64
	offset  float64
	fill    float64
	hasFill bool
	missing float64
	hasMiss bool
}

func packingOf(attrs api.AttributeMap) packing {
	p := packing{scale: 1}
	if attrs == nil {
		return p
	}
	if v, ok := numericAttr(attrs, "scale_factor"); ok {
		p.scale = v
	}
	if v, ok := numericAttr(attrs, "add_offset"); ok {
		p.offset = v
	}
	p.fill, p.hasFill = numericAttr(attrs, "_FillValue")
	p.missing, p.hasMiss = numericAttr(attrs, "missing_value")
	return p
}

func numericAttr(attrs api.AttributeMap, key string) (float64, bool) {
	v, ok := attrs.Get(key)
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case []float64:
		if len(x) > 0 {
			return x[0], true
		}
	case []float32:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	case []int16:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	}
	return 0, false
}

// unpack converts a stored value to its physical value, or NaN for fill and
// missing values.
func (p packing) unpack(raw float64) float64 {
	if (p.hasFill && raw == p.fill) || (p.hasMiss && raw == p.missing) {
		return math.NaN()
	}
	return raw*p.scale + p.offset
}

// cellSeries extracts grid point (i, j) from every time step of a slice of a
// (time, latitude, longitude) variable.
func (p packing) cellSeries(slice any, i, j int) ([]float64, error) {
	var raw []float64
	var ok bool
	switch v := slice.(type) {
	case [][][]int16:
		raw, ok = column(v, i, j)
	case [][][]float32:
		raw, ok = column(v, i, j)
	case [][][]float64:
		raw, ok = column(v, i, j)
	default:
		return nil, fmt.Errorf("%w: %s is %T", ErrUnsupportedLayout, precipitationVar, slice)
	}
	if !ok {
		return nil, fmt.Errorf("%w: cell (%d, %d) out of range", ErrUnsupportedLayout, i, j)
	}
	for k, r := range raw {
		raw[k] = p.unpack(r)
	}
	return raw, nil
}

func column[T int16 | float32 | float64](steps [][][]T, i, j int) ([]float64, bool) {
	if len(steps) == 0 {
		return nil, false
	}
	out := make([]float64, len(steps))
	for k, grid := range steps {
		if !inBounds(len(grid), rowLen(grid), i, j) {
			return nil, false
		}
		out[k] = float64(grid[i][j])
	}
	return out, true
}

func inBounds(rows, cols, i, j int) bool {
	return i >= 0 && i < rows && j >= 0 && j < cols
}

func rowLen[T int16 | float32 | float64](grid [][]T) int {
	if len(grid) == 0 {
		return 0
	}
	return len(grid[0])
}

func toFloat64s(v any) ([]float64, error) {
	switch x := v.(type) {
	case []float64:
		return x, nil
	case []float32:
		out := make([]float64, len(x))
		for i, f := range x {
			out[i] = float64(f)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(x))
		for i, n := range x {
			out[i] = float64(n)
		}
		return out, nil
	case []int64:
		out := make([]float64, len(x))
		for i, n := range x {
			out[i] = float64(n)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: coordinate of type %T", ErrUnsupportedLayout, v)
	}
}
