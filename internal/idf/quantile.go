package idf

// ReturnPeriodDepths inverts the fitted distribution at non-exceedance
// probability 1-1/T for each return period T, in the order given.
func ReturnPeriodDepths(p GEVParams, periods []float64, tol float64) []float64 {
	out := make([]float64, len(periods))
	for i, T := range periods {
		out[i] = p.Quantile(1-1/T, tol)
	}
	return out
}
