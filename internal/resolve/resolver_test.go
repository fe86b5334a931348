package resolve

import (
	"context"
	"errors"
	"testing"

	"covres/internal/covariate"
	"covres/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func init() { logger.Discard() }

func depthRec(lat, lon float64, year int, static bool, depth float64) covariate.Record {
	return covariate.Record{Lat: lat, Lon: lon, Year: year, Static: static, Values: covariate.Values{"depth": covariate.Number(depth)}}
}

func samples(years ...int) []covariate.SampleLocation {
	out := make([]covariate.SampleLocation, len(years))
	for i, y := range years {
		out[i] = covariate.SampleLocation{Index: i, Lat: float64(i), Lon: float64(i), Year: y}
	}
	return out
}

func cells(n int) []covariate.GridCell {
	out := make([]covariate.GridCell, n)
	for i := range out {
		out[i] = covariate.GridCell{Index: i, Lat: float64(i) * 2, Lon: float64(i) * 2}
	}
	return out
}

func TestResolve_StaticScenario(t *testing.T) {
	in := Input{
		Records: []covariate.Record{depthRec(10, 20, 0, true, 100)},
		Samples: []covariate.SampleLocation{
			{Index: 0, Lat: 10, Lon: 20, Year: 2001},
			{Index: 1, Lat: 11, Lon: 21, Year: 2002},
		},
		Grid:    []covariate.GridCell{{Index: 0, Lat: 10, Lon: 20}},
		Formula: "~ depth",
	}
	res, err := (&Resolver{}).Resolve(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, []int{2001, 2002}, res.Years)
	assert.Equal(t, []string{"depth"}, res.Predictors)
	assert.Equal(t, [3]int{2, 2, 1}, res.Observations.Dims)
	assert.Equal(t, [3]int{1, 2, 1}, res.Grid.Dims)
	for _, v := range res.Observations.Data {
		assert.Equal(t, 100.0, v)
	}
	for _, v := range res.Grid.Data {
		assert.Equal(t, 100.0, v)
	}
	assert.NotEmpty(t, res.RunID)
	assert.Empty(t, res.Warnings)
}

func TestResolve_ObservationsReplicatedGridRematched(t *testing.T) {
	in := Input{
		Records: []covariate.Record{
			depthRec(0, 0, 2001, false, 1),
			depthRec(0, 0, 2002, false, 2),
			depthRec(0, 0, 2003, false, 3),
		},
		Samples: samples(2001, 2003, 2002),
		Grid:    cells(3),
		Formula: "depth",
	}
	res, err := (&Resolver{Workers: 3}).Resolve(context.Background(), in)
	require.NoError(t, err)

	// 观测：每个观测在自身年份匹配一次，然后复制到所有年份切片
	want := []float64{1, 3, 2}
	for i, w := range want {
		for y := range res.Years {
			assert.Equal(t, w, res.Observations.At(i, y, 0), "obs %d year %d", i, y)
		}
	}
	// 网格：每年重新匹配，切片随年份变化
	for y := range res.Years {
		for g := 0; g < 3; g++ {
			assert.Equal(t, float64(y+1), res.Grid.At(g, y, 0))
		}
	}
	assert.False(t, mat.Equal(res.Grid.YearSlice(0), res.Grid.YearSlice(1)))
}

func TestResolve_AllStaticGridIdenticalAcrossYears(t *testing.T) {
	in := Input{
		Records: []covariate.Record{depthRec(0, 0, 0, true, 5), depthRec(4, 4, 0, true, 9)},
		Samples: samples(2001, 2004),
		Grid:    cells(3),
		Formula: "~ depth",
	}
	res, err := (&Resolver{}).Resolve(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, res.Years, 4)
	for y := 1; y < 4; y++ {
		assert.True(t, mat.Equal(res.Grid.YearSlice(0), res.Grid.YearSlice(y)))
	}
}

func TestResolve_ZeroDistanceMatch(t *testing.T) {
	in := Input{
		Records: []covariate.Record{
			depthRec(1, 1, 2001, false, 42.5),
			depthRec(1.2, 1.2, 2001, false, 7),
		},
		Samples: samples(2001, 2001),
		Grid:    cells(1),
		Formula: "~ depth",
	}
	res, err := (&Resolver{}).Resolve(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 42.5, res.Observations.At(1, 0, 0))
}

func TestResolve_MissingYearCoverage(t *testing.T) {
	in := Input{
		Records: []covariate.Record{
			depthRec(0, 0, 2001, false, 1),
			depthRec(0, 0, 2003, false, 3),
			depthRec(0, 0, 2005, false, 5),
		},
		Samples: samples(2001, 2005),
		Grid:    cells(2),
		Formula: "~ depth",
	}
	_, err := (&Resolver{Workers: 4}).Resolve(context.Background(), in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, covariate.ErrMissingYear))
	var ce *covariate.Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 2002, ce.Year)
}

func TestResolve_UnresolvedObservationOutsideExplicitYears(t *testing.T) {
	in := Input{
		Records: []covariate.Record{depthRec(0, 0, 0, true, 1)},
		Samples: samples(2001, 2009),
		Grid:    cells(1),
		Formula: "~ depth",
		Years:   &covariate.YearSet{Min: 2001, Max: 2003},
	}
	_, err := (&Resolver{}).Resolve(context.Background(), in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, covariate.ErrUnresolved))
	var ce *covariate.Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 1, ce.Index)
}

func TestResolve_ExplicitYearsExtendGrid(t *testing.T) {
	in := Input{
		Records: []covariate.Record{depthRec(0, 0, 0, true, 1)},
		Samples: samples(2002),
		Grid:    cells(2),
		Formula: "~ depth",
		Years:   &covariate.YearSet{Min: 2000, Max: 2004},
	}
	res, err := (&Resolver{}).Resolve(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, [3]int{1, 5, 1}, res.Observations.Dims)
	assert.Equal(t, [3]int{2, 5, 1}, res.Grid.Dims)
}

func TestResolve_InputShapeErrors(t *testing.T) {
	base := Input{
		Records: []covariate.Record{depthRec(0, 0, 0, true, 1)},
		Samples: samples(2001),
		Grid:    cells(1),
		Formula: "~ depth",
	}
	noRecords := base
	noRecords.Records = nil
	noGrid := base
	noGrid.Grid = nil
	badIndex := base
	badIndex.Samples = []covariate.SampleLocation{{Index: 3, Year: 2001}}

	for name, in := range map[string]Input{"no records": noRecords, "no grid": noGrid, "bad index": badIndex} {
		t.Run(name, func(t *testing.T) {
			_, err := (&Resolver{}).Resolve(context.Background(), in)
			assert.True(t, errors.Is(err, covariate.ErrInputShape), "got %v", err)
		})
	}
}

func TestResolve_FormulaErrorsPropagate(t *testing.T) {
	in := Input{
		Records: []covariate.Record{depthRec(0, 0, 0, true, 1)},
		Samples: samples(2001),
		Grid:    cells(1),
		Formula: "~ salinity",
	}
	_, err := (&Resolver{}).Resolve(context.Background(), in)
	assert.True(t, errors.Is(err, covariate.ErrFormula))
}

func TestResolve_CategoricalLevelsSharedAcrossPartitions(t *testing.T) {
	rec := func(lat float64, h string) covariate.Record {
		return covariate.Record{Lat: lat, Lon: lat, Static: true, Values: covariate.Values{"habitat": covariate.Level(h)}}
	}
	// 观测只见到 rock，网格还会见到 sand；列集合必须一致
	in := Input{
		Records: []covariate.Record{rec(0, "rock"), rec(10, "sand")},
		Samples: []covariate.SampleLocation{{Index: 0, Lat: 0, Lon: 0, Year: 2001}},
		Grid:    []covariate.GridCell{{Index: 0, Lat: 0, Lon: 0}, {Index: 1, Lat: 10, Lon: 10}},
		Formula: "~ habitat",
	}
	res, err := (&Resolver{}).Resolve(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"habitatrock", "habitatsand"}, res.Predictors)
	assert.Equal(t, 1.0, res.Observations.At(0, 0, 0))
	assert.Equal(t, 0.0, res.Observations.At(0, 0, 1))
	assert.Equal(t, 1.0, res.Grid.At(1, 0, 1))
}

func TestResolve_VarianceWarningIsAdvisory(t *testing.T) {
	in := Input{
		Records: []covariate.Record{depthRec(0, 0, 0, true, 0), depthRec(10, 10, 0, true, 500)},
		Samples: []covariate.SampleLocation{{Index: 0, Lat: 0, Lon: 0, Year: 2001}, {Index: 1, Lat: 10, Lon: 10, Year: 2001}},
		Grid:    cells(1),
		Formula: "~ depth",
	}
	res, err := (&Resolver{}).Resolve(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "observation", res.Warnings[0].Tensor)
	assert.Equal(t, "depth", res.Warnings[0].Predictor)
}

type fixedExpander struct {
	rows int
}

func (f fixedExpander) Expand(rows []covariate.MatchedRow, _ string) (*mat.Dense, []string, error) {
	return mat.NewDense(f.rows, 1, nil), []string{"x"}, nil
}

func TestResolve_ExpanderShapeChecked(t *testing.T) {
	in := Input{
		Records: []covariate.Record{depthRec(0, 0, 0, true, 1)},
		Samples: samples(2001),
		Grid:    cells(2),
		Formula: "~ depth",
	}
	_, err := (&Resolver{Expander: fixedExpander{rows: 2}}).Resolve(context.Background(), in)
	assert.True(t, errors.Is(err, covariate.ErrFormula))

	res, err := (&Resolver{Expander: fixedExpander{rows: 3}}).Resolve(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, res.Predictors)
}
