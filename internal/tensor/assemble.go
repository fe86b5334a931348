package tensor

import (
	"math"

	"covres/internal/covariate"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// 文档注释：观测张量组装（按年份复制，不重新匹配）
// 背景：观测协变量在观测自身年份匹配一次，视为观测时刻固定；下游按观测实际年份在外部索引。
// 约束：design 行数等于观测数；tensor[i, t, p] = design[i, p] 对所有 t 成立。
func AssembleObservations(design mat.Matrix, years int) *Tensor {
	n, p := design.Dims()
	t := New(n, years, p)
	for i := 0; i < n; i++ {
		for k := 0; k < p; k++ {
			v := design.At(i, k)
			for y := 0; y < years; y++ {
				t.Set(i, y, k, v)
			}
		}
	}
	return t
}

// 文档注释：网格张量组装（逐年分块）
// 背景：网格表按“年份主序、网格次序”生成，每年一块 cells 行。
// 约束：任一年份块行数不足或总行数多余时返回 GridBlockSizeMismatch。
func AssembleGrid(design mat.Matrix, cells int, years []int) (*Tensor, error) {
	rows, p := design.Dims()
	t := New(cells, len(years), p)
	for yi, year := range years {
		start := yi * cells
		if got := min(cells, max(rows-start, 0)); got != cells {
			return nil, covariate.Errorf(covariate.KindGridBlockMismatch, "year block has %d rows, want %d", got, cells).WithYear(year)
		}
		for g := 0; g < cells; g++ {
			for k := 0; k < p; k++ {
				t.Set(g, yi, k, design.At(start+g, k))
			}
		}
	}
	if consumed := cells * len(years); consumed != rows {
		return nil, covariate.Errorf(covariate.KindGridBlockMismatch, "grid design has %d rows, blocks consumed %d", rows, consumed)
	}
	return t, nil
}

// CheckFinite 任一非有限值即视为组装不完整；name 用于错误定位
func CheckFinite(name string, t *Tensor) error {
	for i, v := range t.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			loc := i / (t.Dims[1] * t.Dims[2])
			return covariate.Errorf(covariate.KindIncompleteAssembly, "%s tensor has non-finite value %v", name, v).WithIndex(loc)
		}
	}
	return nil
}

// VarianceWarning：某张量在某年某预测变量上的标准差超过阈值
type VarianceWarning struct {
	Tensor    string  `json:"tensor"`
	Year      int     `json:"year"`
	Predictor string  `json:"predictor"`
	SD        float64 `json:"sd"`
}

// DefaultSDThreshold 超过该标准差时建议调用方对协变量做标准化
const DefaultSDThreshold = 10.0

// VarianceWarnings 计算每年每个预测变量跨位置的样本标准差；仅为诊断，不阻断流程
// 约束：位置数少于 2 时标准差无定义，跳过
func VarianceWarnings(name string, t *Tensor, years []int, predictors []string, threshold float64) []VarianceWarning {
	if t.Dims[0] < 2 {
		return nil
	}
	var out []VarianceWarning
	col := make([]float64, t.Dims[0])
	for y := 0; y < t.Dims[1]; y++ {
		for p := 0; p < t.Dims[2]; p++ {
			for i := range col {
				col[i] = t.At(i, y, p)
			}
			if sd := stat.StdDev(col, nil); sd > threshold {
				out = append(out, VarianceWarning{Tensor: name, Year: years[y], Predictor: predictors[p], SD: sd})
			}
		}
	}
	return out
}
