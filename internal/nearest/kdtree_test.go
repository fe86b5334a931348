package nearest

import (
	"errors"
	"math/rand"
	"testing"

	"covres/internal/covariate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(lat, lon, depth float64) covariate.Record {
	return covariate.Record{Lat: lat, Lon: lon, Values: covariate.Values{"depth": covariate.Number(depth)}}
}

func TestBuild_EmptyReferenceSet(t *testing.T) {
	_, err := Build(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, covariate.ErrEmptyReference))
}

func TestNearest_ZeroDistanceReturnsExactRecord(t *testing.T) {
	ix, err := Build([]covariate.Record{rec(0, 0, 1), rec(10, 20, 100), rec(11, 21, 7)})
	require.NoError(t, err)

	pos, d := ix.Nearest(10, 20)
	assert.Equal(t, 1, pos)
	assert.Equal(t, 0.0, d)
	assert.Equal(t, 100.0, ix.Values(pos)["depth"].Num)
}

func TestNearest_TieGoesToLowestPosition(t *testing.T) {
	// 四个点与查询点 (0,0) 等距
	refs := []covariate.Record{rec(5, 5, 9), rec(1, 0, 1), rec(-1, 0, 2), rec(0, 1, 3), rec(0, -1, 4)}
	ix, err := Build(refs)
	require.NoError(t, err)

	pos, d := ix.Nearest(0, 0)
	assert.Equal(t, 1, pos)
	assert.InDelta(t, 1.0, d, 1e-12)
}

func TestNearest_DuplicateCoordinates(t *testing.T) {
	refs := []covariate.Record{rec(3, 3, 1), rec(2, 2, 10), rec(2, 2, 20), rec(2, 2, 30)}
	ix, err := Build(refs)
	require.NoError(t, err)

	pos, _ := ix.Nearest(2, 2)
	assert.Equal(t, 1, pos)
}

func TestNearest_PlanarNotGreatCircle(t *testing.T) {
	// 高纬度下经度差在球面上更近，但平面距离按原始度数计算
	refs := []covariate.Record{rec(80, 10, 1), rec(78, 0, 2)}
	ix, err := Build(refs)
	require.NoError(t, err)

	pos, _ := ix.Nearest(80, 0)
	assert.Equal(t, 1, pos)
}

func TestMatchAll_AgreesWithBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	refs := make([]covariate.Record, 300)
	for i := range refs {
		refs[i] = rec(rng.Float64()*40-20, rng.Float64()*60-30, float64(i))
	}
	ix, err := Build(refs)
	require.NoError(t, err)

	qs := make([]Query, 200)
	for i := range qs {
		qs[i] = Query{Lat: rng.Float64()*40 - 20, Lon: rng.Float64()*60 - 30}
	}
	got := ix.MatchAll(qs)
	for i, q := range qs {
		best, bestD := -1, 0.0
		for j, r := range refs {
			dx, dy := r.Lon-q.Lon, r.Lat-q.Lat
			d := dx*dx + dy*dy
			if best < 0 || d < bestD {
				best, bestD = j, d
			}
		}
		assert.Equal(t, best, got[i], "query %d", i)
	}
}
