package idf

import "sort"

// AnnualMaximum is the largest daily depth observed in one calendar year.
type AnnualMaximum struct {
	Year  int     `json:"year"`
	Depth float64 `json:"depth_mm"`
}

// AnnualMaxima reduces a daily record to one maximum per calendar year,
// ordered by year.
func AnnualMaxima(obs []Observation) []AnnualMaximum {
	byYear := make(map[int]float64)
	for _, o := range obs {
		y := o.Date.Year()
		if cur, ok := byYear[y]; !ok || o.Depth > cur {
			byYear[y] = o.Depth
		}
	}

	out := make([]AnnualMaximum, 0, len(byYear))
	for y, d := range byYear {
		out = append(out, AnnualMaximum{Year: y, Depth: d})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

func depths(am []AnnualMaximum) []float64 {
	out := make([]float64, len(am))
	for i, a := range am {
		out[i] = a.Depth
	}
	return out
}
