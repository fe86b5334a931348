// 包 covariate：协变量解析的数据模型、年份集合、按年分区与错误分类
package covariate

import (
	"math"
	"strconv"
)

// Value：单个协变量取值；IsLevel 为真时表示分类水平（字符串），否则为数值
// 约束：缺失值以“键不存在”或 NaN 数值表达，不单独设标志位
type Value struct {
	Num     float64
	Str     string
	IsLevel bool
}

// Number 构造数值型取值
func Number(x float64) Value { return Value{Num: x} }

// Level 构造分类水平取值
func Level(s string) Value { return Value{Str: s, IsLevel: true} }

// Missing 判断取值是否缺失（NaN 数值）
func (v Value) Missing() bool { return !v.IsLevel && math.IsNaN(v.Num) }

// Label 返回取值的水平标签；数值按最短表示格式化，用于把数值列当作因子展开
func (v Value) Label() string {
	if v.IsLevel {
		return v.Str
	}
	return strconv.FormatFloat(v.Num, 'g', -1, 64)
}

// Values：协变量名 → 取值
type Values map[string]Value

// 文档注释：原始协变量记录（只读输入）
// 背景：协变量观测稀疏且不规则，按年份归档；Static 记录与年份无关，可参与任意年份的匹配。
// 约束：Static 为真时忽略 Year 字段。
type Record struct {
	Lat    float64
	Lon    float64
	Year   int
	Static bool
	Values Values
}

// SampleLocation：观测点；Index 与外部观测顺序一致（从 0 开始），Year 决定取哪一年的分区
type SampleLocation struct {
	Index int
	Lat   float64
	Lon   float64
	Year  int
}

// GridCell：外推网格单元；几何与年份无关，只有匹配到的协变量值随年份变化
type GridCell struct {
	Index int
	Lat   float64
	Lon   float64
}

// MatchedRow：一次（查询点, 年份）最近邻匹配的结果行
type MatchedRow struct {
	Year   int
	Lat    float64
	Lon    float64
	Values Values
}

// Names 返回记录集中出现过的全部协变量名（按首次出现顺序）
func Names(records []Record) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range records {
		for _, k := range sortedKeys(r.Values) {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}
