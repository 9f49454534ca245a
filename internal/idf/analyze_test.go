package idf

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hidrowebTable builds a daily record with one year per annual maximum, a few
// smaller days per year, and one unparseable row.
func hidrowebTable(maxima []float64) Table {
	tbl := Table{Columns: []string{"EstacaoCodigo", "Data", "Maxima"}}
	for i, m := range maxima {
		year := 2000 + i
		tbl.Rows = append(tbl.Rows,
			[]string{"02043013", fmt.Sprintf("03/02/%d", year), "12,5"},
			[]string{"02043013", fmt.Sprintf("17/11/%d", year), strings.Replace(strconv.FormatFloat(m, 'f', 1, 64), ".", ",", 1)},
			[]string{"02043013", fmt.Sprintf("20/11/%d", year), strconv.FormatFloat(m/2, 'f', 1, 64)},
		)
	}
	tbl.Rows = append(tbl.Rows, []string{"02043013", "--", "5"})
	return tbl
}

func TestRun_Scenario(t *testing.T) {
	opts := DefaultOptions()
	res, err := Run(Input{
		Table:        hidrowebTable(scenarioMaxima),
		State:        "MG",
		Municipality: "X",
		SourceLabel:  "chuvas_02043013.csv",
	}, scenarioTable(), opts)
	require.NoError(t, err)

	assert.Equal(t, "chuvas_02043013.csv", res.SourceLabel)
	assert.Equal(t, "02043013", res.StationID)
	assert.Equal(t, 1, res.RowsDropped)
	require.Len(t, res.AnnualMaxima, 10)
	assert.Equal(t, 2000, res.AnnualMaxima[0].Year)
	assert.Equal(t, 80.0, res.AnnualMaxima[0].Depth)
	assert.Equal(t, 10, res.IDF.NumYears)
	assert.Empty(t, res.Warnings)

	assert.Greater(t, res.GEV.Scale, 0.0)

	require.Len(t, res.DailyDepths, len(opts.ReturnPeriods))
	for i := 1; i < len(res.DailyDepths); i++ {
		assert.Greater(t, res.DailyDepths[i], res.DailyDepths[i-1])
	}

	m := res.Intensity
	require.Len(t, m.Values, 6)
	tr2, tr100 := m.Values[0], m.Values[5]
	for j := range m.Durations {
		assert.Greater(t, tr100[j], tr2[j], "duration %v", m.Durations[j])
	}

	assertWithinBounds(t, res.IDF, opts)
	assert.GreaterOrEqual(t, res.IDF.R2, 0.9)
	assert.LessOrEqual(t, res.IDF.R2, 1.0)
	assert.InDelta(t, res.IDF.R2, RSquared(res.Intensity, res.IDF), 1e-12)
}

func TestRun_ShortRecordWarning(t *testing.T) {
	res, err := Run(Input{
		Table:        hidrowebTable([]float64{70, 95, 82, 110, 77}),
		Municipality: "X",
	}, scenarioTable(), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 5, res.IDF.NumYears)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, WarnShortRecord, res.Warnings[0].Code)
}

func TestRun_Failures(t *testing.T) {
	tests := []struct {
		name      string
		in        Input
		lookup    CoefficientLookup
		opts      func(*Options)
		sentinel  error
		stage     Stage
		kind      Kind
		mentioned string
	}{
		{
			name: "missing maxima column",
			in: Input{Table: Table{
				Columns: []string{"EstacaoCodigo", "Data", "Precipitacao"},
				Rows:    [][]string{{"1", "01/01/2000", "10"}},
			}, Municipality: "X"},
			lookup:    scenarioTable(),
			sentinel:  ErrMissingColumns,
			stage:     StageColumns,
			kind:      KindStructural,
			mentioned: "maxima",
		},
		{
			name: "no valid rows",
			in: Input{Table: Table{
				Columns: []string{"Data", "Maxima"},
				Rows:    [][]string{{"x", "y"}},
			}, Municipality: "X"},
			lookup:   scenarioTable(),
			sentinel: ErrInsufficientData,
			stage:    StageDates,
			kind:     KindInsufficient,
		},
		{
			name:      "two years",
			in:        Input{Table: hidrowebTable([]float64{70, 90}), Municipality: "X"},
			lookup:    scenarioTable(),
			sentinel:  ErrInsufficientData,
			stage:     StageAnnualMaxima,
			kind:      KindInsufficient,
			mentioned: "2 years",
		},
		{
			name:      "unknown municipality",
			in:        Input{Table: hidrowebTable(scenarioMaxima), Municipality: "Nonexistent"},
			lookup:    scenarioTable(),
			sentinel:  ErrMunicipalityNotFound,
			stage:     StageCoefficients,
			kind:      KindReferenceData,
			mentioned: "Nonexistent",
		},
		{
			name:     "bad coefficient",
			in:       Input{Table: hidrowebTable(scenarioMaxima), State: "SP", Municipality: "Campinas"},
			lookup:   scenarioTable(),
			sentinel: ErrCoefficientConversion,
			stage:    StageCoefficients,
			kind:     KindReferenceData,
		},
		{
			name:     "curve fit cap",
			in:       Input{Table: hidrowebTable(scenarioMaxima), Municipality: "X"},
			lookup:   scenarioTable(),
			opts:     func(o *Options) { o.CurveMaxEvaluations = 2 },
			sentinel: ErrCurveFitNotConverged,
			stage:    StageCurveFit,
			kind:     KindNonConvergence,
		},
		{
			name:     "invalid options",
			in:       Input{Table: hidrowebTable(scenarioMaxima), Municipality: "X"},
			lookup:   scenarioTable(),
			opts:     func(o *Options) { o.ReturnPeriods = []float64{1} },
			sentinel: ErrInternal,
			stage:    StageColumns,
			kind:     KindInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			if tt.opts != nil {
				tt.opts(&opts)
			}
			res, err := Run(tt.in, tt.lookup, opts)
			assert.Nil(t, res)
			require.ErrorIs(t, err, tt.sentinel)

			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.stage, e.Stage)
			assert.Equal(t, tt.kind, e.Kind)
			if tt.mentioned != "" {
				assert.Contains(t, err.Error(), tt.mentioned)
			}
		})
	}
}

type panickyLookup struct{}

func (panickyLookup) Lookup(string, string) (CoefficientRow, bool) { panic("table corrupted") }

func TestRun_RecoversPanics(t *testing.T) {
	res, err := Run(Input{Table: hidrowebTable(scenarioMaxima), Municipality: "X"}, panickyLookup{}, DefaultOptions())
	assert.Nil(t, res)
	require.ErrorIs(t, err, ErrInternal)

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, StageCoefficients, e.Stage)
	assert.Contains(t, err.Error(), "table corrupted")
}

func TestRun_IsRepeatable(t *testing.T) {
	in := Input{Table: hidrowebTable(scenarioMaxima), Municipality: "X"}
	a, err := Run(in, scenarioTable(), DefaultOptions())
	require.NoError(t, err)
	b, err := Run(in, scenarioTable(), DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, a.GEV, b.GEV)
	assert.Equal(t, a.IDF, b.IDF)
	assert.False(t, math.IsNaN(a.IDF.R2))
}
