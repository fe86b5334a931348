package covariate

import (
	"maps"
	"slices"
)

// 文档注释：按年份分区协变量记录
// 背景：每个年份的参考集 = 当年记录 ∪ 静态记录；预先分桶避免逐年全表扫描。
// 约束：返回子集保持原始记录顺序，最近邻的并列决胜依赖该顺序；输入只读，不做任何修改。
type Partitioner struct {
	byYear map[int][]int
	static []int
	recs   []Record
}

// NewPartitioner 对记录建立年份 → 下标的分桶
func NewPartitioner(records []Record) *Partitioner {
	p := &Partitioner{byYear: make(map[int][]int), recs: records}
	for i, r := range records {
		if r.Static {
			p.static = append(p.static, i)
			continue
		}
		p.byYear[r.Year] = append(p.byYear[r.Year], i)
	}
	return p
}

// ForYear 返回 Year == year 或 Static 的记录；为空时返回 MissingYearCoverage
func (p *Partitioner) ForYear(year int) ([]Record, error) {
	idx := mergeSorted(p.byYear[year], p.static)
	if len(idx) == 0 {
		return nil, Errorf(KindMissingYear, "no covariate records for year %d and no static fallback", year).WithYear(year)
	}
	out := make([]Record, len(idx))
	for i, j := range idx {
		out[i] = p.recs[j]
	}
	return out, nil
}

// Covers 检查区间内每一年都可解析，返回第一个缺失年份的错误
func (p *Partitioner) Covers(ys YearSet) error {
	if len(p.static) > 0 {
		return nil
	}
	for _, y := range ys.Years() {
		if len(p.byYear[y]) == 0 {
			return Errorf(KindMissingYear, "no covariate records for year %d and no static fallback", y).WithYear(y)
		}
	}
	return nil
}

// Partition 为一次性调用提供的便捷形式
func Partition(records []Record, year int) ([]Record, error) {
	return NewPartitioner(records).ForYear(year)
}

func mergeSorted(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] < b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

func sortedKeys(v Values) []string {
	return slices.Sorted(maps.Keys(v))
}
