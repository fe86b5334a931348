// 包 nearest：按年份构建的二维最近邻索引（经纬度平面）
package nearest

import (
	"math"

	"covres/internal/covariate"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// 文档注释：KD-Tree 最近邻（二维经纬，平面欧氏距离）
// 背景：每个年份的参考集只建树一次，随后批量查询全部观测点与网格单元。
// 约束：经纬度直接当作平面坐标，不做大圆修正；高纬度或大范围时属于已知近似，改动会改变匹配结果与下游拟合。
// 并列：距离相同的候选取参考集中位置最小者，结果与建树顺序无关。
type Index struct {
	tree *kdtree.Tree
	refs []covariate.Record
}

// Query：仅含坐标的查询点
type Query struct {
	Lat float64
	Lon float64
}

// Build 为参考集建树；参考集为空时返回 EmptyReferenceSet
func Build(refs []covariate.Record) (*Index, error) {
	if len(refs) == 0 {
		return nil, covariate.Errorf(covariate.KindEmptyReference, "no reference points")
	}
	pts := make(points, len(refs))
	for i, r := range refs {
		pts[i] = point{lat: r.Lat, lon: r.Lon, pos: i}
	}
	return &Index{tree: kdtree.New(pts, false), refs: refs}, nil
}

func (ix *Index) Len() int { return len(ix.refs) }

// Nearest 返回最近参考点在参考集中的位置及欧氏距离
func (ix *Index) Nearest(lat, lon float64) (int, float64) {
	q := point{lat: lat, lon: lon, pos: -1}
	c, d := ix.tree.Nearest(q)
	best := c.(point).pos
	// 第二遍只收集与最优距离相等的候选，用于确定性决胜
	keep := kdtree.NewDistKeeper(d)
	ix.tree.NearestSet(keep, q)
	for _, cd := range keep.Heap {
		if cd.Comparable == nil {
			continue
		}
		if p := cd.Comparable.(point); p.pos < best {
			best = p.pos
		}
	}
	return best, math.Sqrt(d)
}

// Values 返回参考点的协变量取值
func (ix *Index) Values(pos int) covariate.Values { return ix.refs[pos].Values }

// MatchAll 批量查询，返回每个查询点对应的参考位置
func (ix *Index) MatchAll(qs []Query) []int {
	out := make([]int, len(qs))
	for i, q := range qs {
		out[i], _ = ix.Nearest(q.Lat, q.Lon)
	}
	return out
}

// point 实现 kdtree.Comparable；维度 0 为经度，1 为纬度
type point struct {
	lat float64
	lon float64
	pos int
}

func (p point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(point)
	switch d {
	case 0:
		return p.lon - q.lon
	case 1:
		return p.lat - q.lat
	default:
		panic("nearest: illegal dimension")
	}
}

func (p point) Dims() int { return 2 }

// Distance 返回平方欧氏距离
func (p point) Distance(c kdtree.Comparable) float64 {
	q := c.(point)
	dx := p.lon - q.lon
	dy := p.lat - q.lat
	return dx*dx + dy*dy
}

type points []point

func (p points) Index(i int) kdtree.Comparable         { return p[i] }
func (p points) Len() int                              { return len(p) }
func (p points) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot 取中位数的中位数，建树过程不依赖随机数
func (p points) Pivot(d kdtree.Dim) int {
	pl := plane{points: p, Dim: d}
	return kdtree.Partition(pl, kdtree.MedianOfMedians(pl))
}

type plane struct {
	points
	kdtree.Dim
}

func (p plane) Less(i, j int) bool {
	if p.Dim == 0 {
		return p.points[i].lon < p.points[j].lon
	}
	return p.points[i].lat < p.points[j].lat
}

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	return plane{points: p.points[start:end], Dim: p.Dim}
}

func (p plane) Swap(i, j int) { p.points[i], p.points[j] = p.points[j], p.points[i] }
