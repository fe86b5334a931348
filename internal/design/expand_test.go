package design

import (
	"errors"
	"math"
	"testing"

	"covres/internal/covariate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func row(year int, vals covariate.Values) covariate.MatchedRow {
	return covariate.MatchedRow{Year: year, Lat: 1, Lon: 2, Values: vals}
}

func num(x float64) covariate.Value { return covariate.Number(x) }

func lvl(s string) covariate.Value { return covariate.Level(s) }

func sampleRows() []covariate.MatchedRow {
	return []covariate.MatchedRow{
		row(2001, covariate.Values{"depth": num(10), "temp": num(2), "habitat": lvl("sand")}),
		row(2002, covariate.Values{"depth": num(20), "temp": num(3), "habitat": lvl("rock")}),
		row(2003, covariate.Values{"depth": num(40), "temp": num(5), "habitat": lvl("mud")}),
	}
}

func TestExpand_AdditiveNoIntercept(t *testing.T) {
	x, names, err := ModelMatrix{}.Expand(sampleRows(), NoIntercept("~ depth + temp"))
	require.NoError(t, err)
	assert.Equal(t, []string{"depth", "temp"}, names)
	assert.Equal(t, []float64{10, 2, 20, 3, 40, 5}, x.RawMatrix().Data)
}

func TestExpand_InterceptControl(t *testing.T) {
	_, names, err := ModelMatrix{}.Expand(sampleRows(), "~ depth")
	require.NoError(t, err)
	assert.Equal(t, []string{"(Intercept)", "depth"}, names)

	_, names, err = ModelMatrix{}.Expand(sampleRows(), "~ 0 + depth")
	require.NoError(t, err)
	assert.Equal(t, []string{"depth"}, names)

	// 调用方显式 +1 也会被强制去掉
	_, names, err = ModelMatrix{}.Expand(sampleRows(), NoIntercept("~ depth + 1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"depth"}, names)
}

func TestExpand_CrossingAndTransforms(t *testing.T) {
	x, names, err := ModelMatrix{}.Expand(sampleRows(), NoIntercept("depth*temp + log(depth) + I(temp^2)"))
	require.NoError(t, err)
	assert.Equal(t, []string{"depth", "temp", "log(depth)", "I(temp^2)", "depth:temp"}, names)
	assert.InDelta(t, math.Log(20), x.At(1, 2), 1e-12)
	assert.Equal(t, 25.0, x.At(2, 3))
	assert.Equal(t, 200.0, x.At(2, 4))
}

func TestExpand_CategoricalFullCodingWithoutIntercept(t *testing.T) {
	x, names, err := ModelMatrix{}.Expand(sampleRows(), NoIntercept("habitat + depth"))
	require.NoError(t, err)
	assert.Equal(t, []string{"habitatmud", "habitatrock", "habitatsand", "depth"}, names)
	want := mat.NewDense(3, 4, []float64{
		0, 0, 1, 10,
		0, 1, 0, 20,
		1, 0, 0, 40,
	})
	assert.True(t, mat.Equal(want, x))
}

func TestExpand_SecondFactorUsesContrasts(t *testing.T) {
	rows := sampleRows()
	rows[0].Values["zone"] = lvl("a")
	rows[1].Values["zone"] = lvl("b")
	rows[2].Values["zone"] = lvl("a")
	_, names, err := ModelMatrix{}.Expand(rows, NoIntercept("habitat + zone"))
	require.NoError(t, err)
	assert.Equal(t, []string{"habitatmud", "habitatrock", "habitatsand", "zoneb"}, names)
}

func TestExpand_FactorOfNumericSortsNumerically(t *testing.T) {
	rows := []covariate.MatchedRow{
		row(2001, covariate.Values{"code": num(10)}),
		row(2002, covariate.Values{"code": num(9)}),
		row(2003, covariate.Values{"code": num(10)}),
	}
	_, names, err := ModelMatrix{}.Expand(rows, NoIntercept("factor(code)"))
	require.NoError(t, err)
	assert.Equal(t, []string{"factor(code)9", "factor(code)10"}, names)
}

func TestExpand_RowFieldsAreVariables(t *testing.T) {
	x, names, err := ModelMatrix{}.Expand(sampleRows(), NoIntercept("Lat + factor(Year)"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Lat", "factor(Year)2001", "factor(Year)2002", "factor(Year)2003"}, names)
	assert.Equal(t, 1.0, x.At(1, 2))
}

func TestExpand_Errors(t *testing.T) {
	cases := []struct {
		name    string
		formula string
		kind    *covariate.Error
	}{
		{"undefined covariate", "~ salinity", covariate.ErrFormula},
		{"syntax", "~ depth +", covariate.ErrFormula},
		{"response", "y ~ depth", covariate.ErrFormula},
		{"unknown function", "~ poly(depth, 2)", covariate.ErrFormula},
		{"empty expansion", "~ 0", covariate.ErrFormula},
		{"categorical arithmetic", "~ I(habitat * 2)", covariate.ErrFormula},
		{"non-finite", "~ log(depth - 10) - 1", covariate.ErrNAInExpansion},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ModelMatrix{}.Expand(sampleRows(), tc.formula)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.kind), "got %v", err)
		})
	}
}

func TestExpand_MissingValueIsUnsupported(t *testing.T) {
	rows := sampleRows()
	delete(rows[1].Values, "temp")
	_, _, err := ModelMatrix{}.Expand(rows, NoIntercept("depth + temp"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, covariate.ErrNAInExpansion))
	var ce *covariate.Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 1, ce.Index)
}

func TestExpand_PowerOfSum(t *testing.T) {
	_, names, err := ModelMatrix{}.Expand(sampleRows(), NoIntercept("(depth + temp + Lon)^2 - temp:Lon"))
	require.NoError(t, err)
	assert.Equal(t, []string{"depth", "temp", "Lon", "depth:temp", "depth:Lon"}, names)
}

func TestNoIntercept(t *testing.T) {
	assert.Equal(t, "~ a + b - 1", NoIntercept(" ~ a + b "))
	assert.Equal(t, "~ -1", NoIntercept("~"))
}

func TestExpand_UnaryMinusBindsLooserThanPower(t *testing.T) {
	rows := []covariate.MatchedRow{row(2001, covariate.Values{"x": num(3)})}
	x, names, err := ModelMatrix{}.Expand(rows, NoIntercept("~ I(-x^2)"))
	require.NoError(t, err)
	assert.Equal(t, []string{"I(-x^2)"}, names)
	assert.Equal(t, -9.0, x.At(0, 0))

	x, names, err = ModelMatrix{}.Expand(rows, NoIntercept("~ I((-x)^2) + I(2^-1) + I(-x^-1)"))
	require.NoError(t, err)
	assert.Equal(t, []string{"I((-x)^2)", "I(2^-1)", "I(-x^-1)"}, names)
	assert.Equal(t, 9.0, x.At(0, 0))
	assert.Equal(t, 0.5, x.At(0, 1))
	assert.InDelta(t, -1.0/3, x.At(0, 2), 1e-12)
}

func TestExpand_ParenthesisedInterceptAndRemoval(t *testing.T) {
	_, names, err := ModelMatrix{}.Expand(sampleRows(), NoIntercept("~ (depth + 1)"))
	require.NoError(t, err)
	assert.Equal(t, []string{"depth"}, names)

	_, names, err = ModelMatrix{}.Expand(sampleRows(), NoIntercept("~ depth*temp + (-depth:temp)"))
	require.NoError(t, err)
	assert.Equal(t, []string{"depth", "temp"}, names)

	_, _, err = ModelMatrix{}.Expand(sampleRows(), NoIntercept("~ depth:(temp + 1)"))
	assert.True(t, errors.Is(err, covariate.ErrFormula), "got %v", err)
}
