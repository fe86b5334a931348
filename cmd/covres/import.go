package main

import (
	"context"
	"fmt"

	"covres/internal/config"
	"covres/internal/ingest"
	"covres/internal/logger"
	"covres/internal/source"

	"github.com/spf13/cobra"
)

var importOpts struct {
	records []string
	netcdf  []string
	vars    []string
	samples string
	grid    string
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load CSV or NetCDF inputs into the covariate database",
	Args:  cobra.NoArgs,
	RunE:  runImport,
}

var publishOpts struct {
	samples string
	grid    string
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Push sample locations or grid cells from CSV to the Redis feed",
	Args:  cobra.NoArgs,
	RunE:  runPublish,
}

func init() {
	f := importCmd.Flags()
	f.StringSliceVar(&importOpts.records, "records", nil, "covariate record CSV files")
	f.StringSliceVar(&importOpts.netcdf, "netcdf", nil, "gridded covariate NetCDF files")
	f.StringSliceVar(&importOpts.vars, "vars", nil, "NetCDF variables to read")
	f.StringVar(&importOpts.samples, "samples", "", "sample location CSV (replaces stored samples)")
	f.StringVar(&importOpts.grid, "grid", "", "prediction grid CSV (replaces stored grid)")

	publishCmd.Flags().StringVar(&publishOpts.samples, "samples", "", "sample location CSV")
	publishCmd.Flags().StringVar(&publishOpts.grid, "grid", "", "prediction grid CSV")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmdContext(cmd)
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	l := source.Loader{}

	var srcs []config.Source
	for _, p := range importOpts.records {
		srcs = append(srcs, config.Source{Kind: config.KindCSV, Path: p})
	}
	for _, p := range importOpts.netcdf {
		srcs = append(srcs, config.Source{Kind: config.KindNetCDF, Path: p, NetCDF: ingest.NetCDFOptions{Vars: importOpts.vars}})
	}
	if len(srcs) > 0 {
		recs, err := l.Records(ctx, srcs)
		if err != nil {
			return err
		}
		n, err := ingest.ImportRecords(ctx, st.DB(), st.Dialect(), recs)
		if err != nil {
			return fmt.Errorf("import records: %w", err)
		}
		logger.L().Info("import_records_ok", "count", n)
	}
	if importOpts.samples != "" {
		ss, err := l.Samples(ctx, config.Source{Kind: config.KindCSV, Path: importOpts.samples})
		if err != nil {
			return err
		}
		if _, err := ingest.ImportSamples(ctx, st.DB(), st.Dialect(), ss); err != nil {
			return fmt.Errorf("import samples: %w", err)
		}
	}
	if importOpts.grid != "" {
		gs, err := l.Grid(ctx, config.Source{Kind: config.KindCSV, Path: importOpts.grid})
		if err != nil {
			return err
		}
		if _, err := ingest.ImportGrid(ctx, st.DB(), st.Dialect(), gs); err != nil {
			return fmt.Errorf("import grid: %w", err)
		}
	}
	return nil
}

func runPublish(cmd *cobra.Command, args []string) error {
	if publishOpts.samples == "" && publishOpts.grid == "" {
		return fmt.Errorf("nothing to publish (use --samples or --grid)")
	}
	ctx := cmdContext(cmd)
	feed, closeFeed, err := openFeed(ctx)
	if err != nil {
		return err
	}
	defer closeFeed()
	l := source.Loader{}
	if publishOpts.samples != "" {
		ss, err := l.Samples(ctx, config.Source{Kind: config.KindCSV, Path: publishOpts.samples})
		if err != nil {
			return err
		}
		if err := feed.PublishSamples(ctx, ss); err != nil {
			return err
		}
		logger.L().Info("publish_samples_ok", "count", len(ss))
	}
	if publishOpts.grid != "" {
		gs, err := l.Grid(ctx, config.Source{Kind: config.KindCSV, Path: publishOpts.grid})
		if err != nil {
			return err
		}
		if err := feed.PublishGrid(ctx, gs); err != nil {
			return err
		}
		logger.L().Info("publish_grid_ok", "count", len(gs))
	}
	return nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
