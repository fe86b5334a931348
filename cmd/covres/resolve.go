package main

import (
	"context"
	"errors"
	"fmt"

	"covres/internal/covariate"
	"covres/internal/export"
	"covres/internal/logger"
	"covres/internal/metrics"
	"covres/internal/resolve"
	"covres/internal/source"

	"github.com/spf13/cobra"
)

// 命令行覆盖值；零值表示沿用配置
var resolveOpts struct {
	output  string
	workers int
}

var resolveFormula string

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Match covariates to observations and the prediction grid, then write the tensors",
	Args:  cobra.NoArgs,
	RunE:  runResolve,
}

func init() {
	resolveCmd.Flags().StringVarP(&resolveFormula, "formula", "f", "", "model formula (overrides config)")
	resolveCmd.Flags().StringVarP(&resolveOpts.output, "output", "o", "", "output path, - for stdout (overrides config)")
	resolveCmd.Flags().IntVarP(&resolveOpts.workers, "workers", "w", 0, "parallel year partitions (overrides config)")
}

func runResolve(cmd *cobra.Command, args []string) error {
	if resolveFormula != "" {
		cfg.Formula = resolveFormula
	}
	if resolveOpts.output != "" {
		cfg.Output = resolveOpts.output
	}
	if resolveOpts.workers > 0 {
		cfg.Workers = resolveOpts.workers
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx := cmdContext(cmd)

	in, cleanup, err := loadInput(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	r := &resolve.Resolver{Workers: cfg.Workers, SDThreshold: cfg.SDThreshold}
	res, err := r.Resolve(ctx, in)
	if cfg.MetricsTextfile != "" {
		if merr := metrics.WriteTextfile(cfg.MetricsTextfile); merr != nil {
			logger.L().Warn("metrics_textfile_error", "path", cfg.MetricsTextfile, "err", merr)
		}
	}
	if err != nil {
		var ce *covariate.Error
		if errors.As(err, &ce) {
			logger.L().Error("resolve_failed", "kind", string(ce.Kind), "err", err)
		}
		return err
	}
	if err := export.WriteFile(cfg.Output, res); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	logger.L().Info("export_ok", "output", cfg.Output, "run", res.RunID)
	return nil
}

// loadInput 按配置打开所需后端并装载全部输入
func loadInput(ctx context.Context) (resolve.Input, func(), error) {
	var (
		l       source.Loader
		closers []func()
	)
	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}
	if cfg.UsesSQL() {
		st, err := openStore(ctx)
		if err != nil {
			return resolve.Input{}, cleanup, err
		}
		l.Store = st
		closers = append(closers, func() { st.Close() })
	}
	if cfg.UsesRedis() {
		feed, closeFeed, err := openFeed(ctx)
		if err != nil {
			return resolve.Input{}, cleanup, err
		}
		l.Feed = feed
		closers = append(closers, closeFeed)
	}

	in := resolve.Input{Formula: cfg.Formula}
	var err error
	if in.Records, err = l.Records(ctx, cfg.Records); err != nil {
		return in, cleanup, err
	}
	if in.Samples, err = l.Samples(ctx, cfg.Samples); err != nil {
		return in, cleanup, err
	}
	if in.Grid, err = l.Grid(ctx, cfg.Grid); err != nil {
		return in, cleanup, err
	}
	if cfg.Years != nil {
		in.Years = &covariate.YearSet{Min: cfg.Years.Min, Max: cfg.Years.Max}
	}
	return in, cleanup, nil
}
