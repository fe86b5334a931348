package covariate

// YearSet：观测年份的最小值到最大值之间的连续整数区间
type YearSet struct {
	Min int
	Max int
}

// YearSetOf 由观测点推导年份区间；无观测时返回 InputShapeError
func YearSetOf(samples []SampleLocation) (YearSet, error) {
	if len(samples) == 0 {
		return YearSet{}, Errorf(KindInputShape, "no sample locations")
	}
	ys := YearSet{Min: samples[0].Year, Max: samples[0].Year}
	for _, s := range samples[1:] {
		if s.Year < ys.Min {
			ys.Min = s.Year
		}
		if s.Year > ys.Max {
			ys.Max = s.Year
		}
	}
	return ys, nil
}

func (ys YearSet) Len() int { return ys.Max - ys.Min + 1 }

func (ys YearSet) Contains(year int) bool { return year >= ys.Min && year <= ys.Max }

// Pos 返回年份在区间内的 0 起位置；调用方需保证 Contains 为真
func (ys YearSet) Pos(year int) int { return year - ys.Min }

// Years 升序列出区间内全部年份
func (ys YearSet) Years() []int {
	out := make([]int, 0, ys.Len())
	for y := ys.Min; y <= ys.Max; y++ {
		out = append(out, y)
	}
	return out
}
