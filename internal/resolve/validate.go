package resolve

import (
	"math"

	"covres/internal/covariate"
)

// ValidateInput 检查形状与覆盖前置条件；年份覆盖由分区器在建表前单独校验
func ValidateInput(in Input) error {
	if len(in.Records) == 0 {
		return covariate.Errorf(covariate.KindInputShape, "no covariate records")
	}
	if len(in.Samples) == 0 {
		return covariate.Errorf(covariate.KindInputShape, "no sample locations")
	}
	if len(in.Grid) == 0 {
		return covariate.Errorf(covariate.KindInputShape, "no grid cells")
	}
	for i, r := range in.Records {
		if !finite(r.Lat) || !finite(r.Lon) {
			return covariate.Errorf(covariate.KindInputShape, "covariate record has non-finite coordinates").WithIndex(i)
		}
	}
	for i, s := range in.Samples {
		if s.Index != i {
			return covariate.Errorf(covariate.KindInputShape, "sample location index %d at position %d", s.Index, i).WithIndex(i)
		}
		if !finite(s.Lat) || !finite(s.Lon) {
			return covariate.Errorf(covariate.KindInputShape, "sample location has non-finite coordinates").WithIndex(i)
		}
	}
	for i, g := range in.Grid {
		if g.Index != i {
			return covariate.Errorf(covariate.KindInputShape, "grid cell index %d at position %d", g.Index, i).WithIndex(i)
		}
		if !finite(g.Lat) || !finite(g.Lon) {
			return covariate.Errorf(covariate.KindInputShape, "grid cell has non-finite coordinates").WithIndex(i)
		}
	}
	if in.Years != nil && in.Years.Min > in.Years.Max {
		return covariate.Errorf(covariate.KindInputShape, "year range %d..%d is empty", in.Years.Min, in.Years.Max)
	}
	return nil
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }
