package resolve

import (
	"context"

	"covres/internal/covariate"
	"covres/internal/logger"
	"covres/internal/metrics"
	"covres/internal/nearest"

	"golang.org/x/sync/errgroup"
)

// Table：扁平长表；Grid 按年份主序、网格次序排列，共 Cells × len(Years) 行
type Table struct {
	Years []int
	Obs   []covariate.MatchedRow
	Grid  []covariate.MatchedRow
	Cells int
}

// 文档注释：逐年构建协变量匹配表
// 背景：每年独立建树并匹配，结果写入预分配的、按年份互不重叠的槽位，因此可并行且无需加锁。
// 约束：观测只在自身年份匹配一次；网格在每个年份全部重新匹配。workers <= 1 时顺序执行。
func BuildTable(ctx context.Context, in Input, ys covariate.YearSet, workers int) (*Table, error) {
	part := covariate.NewPartitioner(in.Records)
	if err := part.Covers(ys); err != nil {
		return nil, err
	}
	years := ys.Years()
	cells := len(in.Grid)
	tb := &Table{
		Years: years,
		Obs:   make([]covariate.MatchedRow, len(in.Samples)),
		Grid:  make([]covariate.MatchedRow, cells*len(years)),
		Cells: cells,
	}
	matched := make([]bool, len(in.Samples))
	byYear := make(map[int][]int)
	for i, s := range in.Samples {
		byYear[s.Year] = append(byYear[s.Year], i)
	}
	gridQ := make([]nearest.Query, cells)
	for i, c := range in.Grid {
		gridQ[i] = nearest.Query{Lat: c.Lat, Lon: c.Lon}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for yi, year := range years {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			refs, err := part.ForYear(year)
			if err != nil {
				return err
			}
			ix, err := nearest.Build(refs)
			if err != nil {
				if ce, ok := err.(*covariate.Error); ok {
					ce.WithYear(year)
				}
				return err
			}
			for _, i := range byYear[year] {
				s := in.Samples[i]
				pos, _ := ix.Nearest(s.Lat, s.Lon)
				tb.Obs[i] = covariate.MatchedRow{Year: year, Lat: s.Lat, Lon: s.Lon, Values: ix.Values(pos)}
				matched[i] = true
			}
			block := tb.Grid[yi*cells : (yi+1)*cells]
			for gi, pos := range ix.MatchAll(gridQ) {
				c := in.Grid[gi]
				block[gi] = covariate.MatchedRow{Year: year, Lat: c.Lat, Lon: c.Lon, Values: ix.Values(pos)}
			}
			metrics.RowsMatched.WithLabelValues("observation").Add(float64(len(byYear[year])))
			metrics.RowsMatched.WithLabelValues("grid").Add(float64(cells))
			logger.L().Debug("year_matched", "year", year, "refs", ix.Len(), "obs", len(byYear[year]), "grid", cells)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, ok := range matched {
		if !ok {
			s := in.Samples[i]
			return nil, covariate.Errorf(covariate.KindUnresolved,
				"sample year %d outside resolved years %d..%d", s.Year, ys.Min, ys.Max).WithIndex(i).WithYear(s.Year)
		}
	}
	return tb, nil
}

// Stacked 按“观测在前、网格在后”拼接，保证分类水平与列集合跨两部分一致
func (tb *Table) Stacked() []covariate.MatchedRow {
	out := make([]covariate.MatchedRow, 0, len(tb.Obs)+len(tb.Grid))
	out = append(out, tb.Obs...)
	return append(out, tb.Grid...)
}
