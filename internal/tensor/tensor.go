// 包 tensor：设计矩阵到三维张量 [位置, 年份, 预测变量] 的重组与事后校验
package tensor

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Tensor：行主序三维数组，维度为 [位置, 年份, 预测变量]
type Tensor struct {
	Dims [3]int
	Data []float64
}

// New 分配张量并以 NaN 填充；未写入的单元在校验阶段会被发现
func New(locs, years, preds int) *Tensor {
	t := &Tensor{Dims: [3]int{locs, years, preds}, Data: make([]float64, locs*years*preds)}
	for i := range t.Data {
		t.Data[i] = math.NaN()
	}
	return t
}

func (t *Tensor) offset(i, y, p int) int {
	return (i*t.Dims[1]+y)*t.Dims[2] + p
}

func (t *Tensor) At(i, y, p int) float64 { return t.Data[t.offset(i, y, p)] }

func (t *Tensor) Set(i, y, p int, v float64) { t.Data[t.offset(i, y, p)] = v }

// YearSlice 复制第 y 个年份切片为 [位置 × 预测变量] 矩阵
func (t *Tensor) YearSlice(y int) *mat.Dense {
	out := mat.NewDense(t.Dims[0], t.Dims[2], nil)
	for i := 0; i < t.Dims[0]; i++ {
		for p := 0; p < t.Dims[2]; p++ {
			out.Set(i, p, t.At(i, y, p))
		}
	}
	return out
}
