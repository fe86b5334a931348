// 包 resolve：协变量解析流水线（分区 → 最近邻匹配 → 设计矩阵展开 → 张量组装）
package resolve

import (
	"context"
	"log/slog"
	"math"
	"time"

	"covres/internal/covariate"
	"covres/internal/design"
	"covres/internal/logger"
	"covres/internal/metrics"
	"covres/internal/tensor"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
)

// Input：一次解析调用的只读输入
// Years 为空时由观测年份推导；非空时固定解析区间，区间外的观测将无法解析
type Input struct {
	Records []covariate.Record
	Samples []covariate.SampleLocation
	Grid    []covariate.GridCell
	Formula string
	Years   *covariate.YearSet
}

// Result：返回给调用方的张量与预测变量名；中间表在返回前丢弃
type Result struct {
	RunID        string
	Years        []int
	Predictors   []string
	Observations *tensor.Tensor
	Grid         *tensor.Tensor
	Warnings     []tensor.VarianceWarning
}

// 文档注释：解析编排器
// 背景：统一调度分区、匹配、展开与组装；展开通过 Expander 接口委托，便于替换公式实现。
// 约束：零值可用，Expander 为空时使用 design.ModelMatrix，SDThreshold 为 0 时取 10。
type Resolver struct {
	Expander    design.Expander
	Workers     int
	SDThreshold float64
	Logger      *slog.Logger
}

// Resolve 执行一次完整解析；任何分类错误都会直接返回，不做重试
func (r *Resolver) Resolve(ctx context.Context, in Input) (*Result, error) {
	start := time.Now()
	res, err := r.resolve(ctx, in)
	metrics.ResolveDurationMs.Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		kind := string(covariate.KindOf(err))
		if kind == "" {
			kind = "other"
		}
		metrics.ResolutionsFailed.WithLabelValues(kind).Inc()
		return nil, err
	}
	metrics.ResolutionsTotal.Inc()
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, in Input) (*Result, error) {
	runID := uuid.NewString()
	l := r.logger().With("run", runID)
	if err := ValidateInput(in); err != nil {
		return nil, err
	}
	ys, err := covariate.YearSetOf(in.Samples)
	if err != nil {
		return nil, err
	}
	if in.Years != nil {
		ys = *in.Years
	}
	l.Info("resolve_begin", "records", len(in.Records), "samples", len(in.Samples), "grid", len(in.Grid), "year_min", ys.Min, "year_max", ys.Max)

	tb, err := BuildTable(ctx, in, ys, r.Workers)
	if err != nil {
		return nil, err
	}
	stacked := tb.Stacked()
	formula := design.NoIntercept(in.Formula)
	x, names, err := r.expander().Expand(stacked, formula)
	if err != nil {
		if covariate.KindOf(err) == "" {
			return nil, covariate.Errorf(covariate.KindFormula, "expand %q", formula).Wrap(err)
		}
		return nil, err
	}
	if err := checkDesign(x, names, len(stacked)); err != nil {
		return nil, err
	}
	l.Debug("design_expanded", "rows", len(stacked), "predictors", len(names))

	nObs, p := len(tb.Obs), len(names)
	obsX := x.Slice(0, nObs, 0, p)
	gridX := x.Slice(nObs, len(stacked), 0, p)
	obs := tensor.AssembleObservations(obsX, len(tb.Years))
	grid, err := tensor.AssembleGrid(gridX, tb.Cells, tb.Years)
	if err != nil {
		return nil, err
	}
	if err := tensor.CheckFinite("observation", obs); err != nil {
		return nil, err
	}
	if err := tensor.CheckFinite("grid", grid); err != nil {
		return nil, err
	}

	thr := r.SDThreshold
	if thr <= 0 {
		thr = tensor.DefaultSDThreshold
	}
	warns := tensor.VarianceWarnings("observation", obs, tb.Years, names, thr)
	warns = append(warns, tensor.VarianceWarnings("grid", grid, tb.Years, names, thr)...)
	for _, w := range warns {
		l.Warn("variance_warning", "tensor", w.Tensor, "year", w.Year, "predictor", w.Predictor, "sd", w.SD,
			"hint", "consider standardizing covariates")
		metrics.VarianceWarnings.WithLabelValues(w.Tensor).Inc()
	}
	l.Info("resolve_done", "predictors", p, "years", len(tb.Years), "warnings", len(warns))
	return &Result{
		RunID:        runID,
		Years:        tb.Years,
		Predictors:   names,
		Observations: obs,
		Grid:         grid,
		Warnings:     warns,
	}, nil
}

// checkDesign 校验外部展开结果的形状与数值
func checkDesign(x *mat.Dense, names []string, rows int) error {
	if x == nil {
		return covariate.Errorf(covariate.KindFormula, "expander returned no matrix")
	}
	r, c := x.Dims()
	if r != rows {
		return covariate.Errorf(covariate.KindFormula, "expander returned %d rows, want %d", r, rows)
	}
	if c != len(names) {
		return covariate.Errorf(covariate.KindFormula, "expander returned %d columns for %d names", c, len(names))
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := x.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return covariate.Errorf(covariate.KindNAInExpansion, "non-finite value in column %q", names[j]).WithIndex(i)
			}
		}
	}
	return nil
}

func (r *Resolver) expander() design.Expander {
	if r.Expander == nil {
		return design.ModelMatrix{}
	}
	return r.Expander
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger == nil {
		return logger.L()
	}
	return r.Logger
}
