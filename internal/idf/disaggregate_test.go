package idf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scenarioCoefficients = []string{"1,0", "0,74", "0,64", "0,57", "0,45", "0,32", "0,27", "0,21", "0,16", "0,13", "0,10"}

func scenarioTable() *MapTable {
	return NewMapTable([]CoefficientRow{
		{State: "mg", Municipality: " X ", Values: scenarioCoefficients},
		{State: "SP", Municipality: "X", Values: []string{"1", "0.8", "0.7", "0.6", "0.5", "0.4", "0.35", "0.3", "0.25", "0.2", "0.15"}},
		{State: "SP", Municipality: "Campinas", Values: []string{"1", "0,74", "oops", "0,57", "0,45", "0,32", "0,27", "0,21", "0,16", "0,13", "0,10"}},
		{State: "RJ", Municipality: "Curta", Values: []string{"1", "0,5"}},
		{State: "RJ", Municipality: "  "},
	})
}

func TestMapTable(t *testing.T) {
	tbl := scenarioTable()
	assert.Equal(t, 4, tbl.Len())
	assert.Equal(t, []string{"MG", "RJ", "SP"}, tbl.States())
	assert.Equal(t, []string{"Campinas", "X"}, tbl.Municipalities("sp"))
	assert.Equal(t, []string{"Campinas", "Curta", "X"}, tbl.Municipalities(""))

	row, ok := tbl.Lookup("SP", "X")
	require.True(t, ok)
	assert.Equal(t, "SP", row.State)

	row, ok = tbl.Lookup("", "X")
	require.True(t, ok)
	assert.Equal(t, "MG", row.State)

	_, ok = tbl.Lookup("BA", "X")
	assert.False(t, ok)
	_, ok = tbl.Lookup("", "x")
	assert.False(t, ok)
}

func TestResolveCoefficients(t *testing.T) {
	opts := DefaultOptions()
	tbl := scenarioTable()

	t.Run("converts decimal commas", func(t *testing.T) {
		got, err := ResolveCoefficients(tbl, "MG", "X", opts)
		require.NoError(t, err)
		assert.Equal(t, []float64{1.0, 0.74, 0.64, 0.57, 0.45, 0.32, 0.27, 0.21, 0.16, 0.13, 0.10}, got)
	})

	t.Run("municipality not found", func(t *testing.T) {
		_, err := ResolveCoefficients(tbl, "", "Nonexistent", opts)
		require.ErrorIs(t, err, ErrMunicipalityNotFound)
		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, KindReferenceData, e.Kind)
		assert.Equal(t, "Nonexistent", e.Key)
		assert.Contains(t, err.Error(), "Nonexistent")
	})

	t.Run("unparseable value", func(t *testing.T) {
		_, err := ResolveCoefficients(tbl, "SP", "Campinas", opts)
		require.ErrorIs(t, err, ErrCoefficientConversion)
		assert.Contains(t, err.Error(), "360min")
		assert.Contains(t, err.Error(), "oops")
	})

	t.Run("wrong column count", func(t *testing.T) {
		_, err := ResolveCoefficients(tbl, "RJ", "Curta", opts)
		assert.ErrorIs(t, err, ErrCoefficientConversion)
	})

	t.Run("no table", func(t *testing.T) {
		_, err := ResolveCoefficients(nil, "MG", "X", opts)
		assert.ErrorIs(t, err, ErrInternal)
	})
}

func TestDisaggregate(t *testing.T) {
	opts := DefaultOptions()
	coeffs, err := ResolveCoefficients(scenarioTable(), "MG", "X", opts)
	require.NoError(t, err)

	daily := []float64{90, 110, 125, 140, 155, 170}
	m := Disaggregate(daily, coeffs, opts)

	require.Len(t, m.Values, len(daily))
	assert.Equal(t, opts.ReturnPeriods, m.ReturnPeriods)
	assert.Equal(t, opts.Durations, m.Durations)

	// 1440 min with coefficient 1.0 is the daily depth spread over 24 h.
	assert.InDelta(t, 90.0/24, m.Values[0][0], 1e-12)
	// 60 min: depth·0.32 over one hour.
	assert.InDelta(t, 170*0.32, m.Values[5][5], 1e-12)

	for r, row := range m.Values {
		require.Len(t, row, len(opts.Durations))
		for c := 1; c < len(row); c++ {
			// Durations shrink left to right, so intensity must not drop.
			assert.GreaterOrEqual(t, row[c], row[c-1], "T=%v t=%v", m.ReturnPeriods[r], m.Durations[c])
		}
	}
}
