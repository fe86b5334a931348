package covariate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func yearRec(year int, v float64) Record {
	return Record{Lat: v, Lon: v, Year: year, Values: Values{"x": Number(v)}}
}

func staticRec(v float64) Record {
	return Record{Lat: v, Lon: v, Static: true, Values: Values{"x": Number(v)}}
}

func TestForYear_IncludesStaticInOriginalOrder(t *testing.T) {
	recs := []Record{yearRec(2001, 1), staticRec(2), yearRec(2002, 3), yearRec(2001, 4), staticRec(5)}
	p := NewPartitioner(recs)

	got, err := p.ForYear(2001)
	require.NoError(t, err)
	var xs []float64
	for _, r := range got {
		xs = append(xs, r.Values["x"].Num)
	}
	assert.Equal(t, []float64{1, 2, 4, 5}, xs)

	got, err = p.ForYear(2003)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestForYear_MissingYearCoverage(t *testing.T) {
	recs := []Record{yearRec(2001, 1), yearRec(2003, 2), yearRec(2005, 3)}
	p := NewPartitioner(recs)

	_, err := p.ForYear(2002)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingYear))

	var ce *Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 2002, ce.Year)
	assert.Contains(t, err.Error(), "2002")
}

func TestCovers_ReportsFirstMissingYear(t *testing.T) {
	recs := []Record{yearRec(2001, 1), yearRec(2003, 2), yearRec(2005, 3)}
	err := NewPartitioner(recs).Covers(YearSet{Min: 2001, Max: 2005})
	require.Error(t, err)
	var ce *Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, KindMissingYear, ce.Kind)
	assert.Equal(t, 2002, ce.Year)

	recs = append(recs, staticRec(9))
	assert.NoError(t, NewPartitioner(recs).Covers(YearSet{Min: 2001, Max: 2005}))
}

func TestYearSetOf(t *testing.T) {
	ys, err := YearSetOf([]SampleLocation{{Year: 2004}, {Year: 2001}, {Year: 2003}})
	require.NoError(t, err)
	assert.Equal(t, YearSet{Min: 2001, Max: 2004}, ys)
	assert.Equal(t, 4, ys.Len())
	assert.Equal(t, []int{2001, 2002, 2003, 2004}, ys.Years())
	assert.Equal(t, 2, ys.Pos(2003))
	assert.False(t, ys.Contains(2005))

	_, err = YearSetOf(nil)
	assert.True(t, errors.Is(err, ErrInputShape))
}

func TestError_IsMatchesKindOnly(t *testing.T) {
	err := Errorf(KindGridBlockMismatch, "block short").WithYear(2003)
	assert.True(t, errors.Is(err, ErrGridBlockMismatch))
	assert.False(t, errors.Is(err, ErrIncompleteAssembly))
	assert.Equal(t, KindGridBlockMismatch, KindOf(err))
	assert.Equal(t, "GridBlockSizeMismatch year=2003: block short", err.Error())
}

func TestNames_FirstAppearance(t *testing.T) {
	recs := []Record{
		{Values: Values{"temp": Number(1), "depth": Number(2)}},
		{Values: Values{"habitat": Level("rock"), "depth": Number(3)}},
	}
	assert.Equal(t, []string{"depth", "temp", "habitat"}, Names(recs))
}
