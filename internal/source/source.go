// 包 source：按配置从 CSV、NetCDF、数据库或 Redis 装载解析输入
package source

import (
	"context"
	"fmt"
	"io"
	"os"

	"covres/internal/config"
	"covres/internal/covariate"
	"covres/internal/ingest"
	"covres/internal/logger"
	"covres/internal/metrics"
	"covres/internal/store"
)

// Loader：持有可选的数据库与 Redis 后端；未配置对应后端时相应来源报错
type Loader struct {
	Store *store.Store
	Feed  *store.RedisFeed
}

// 文档注释：依次装载全部协变量来源并拼接
// 约束：拼接顺序即配置顺序，最近邻平距时记录位置靠前者优先。
func (l *Loader) Records(ctx context.Context, srcs []config.Source) ([]covariate.Record, error) {
	var out []covariate.Record
	for i, s := range srcs {
		var (
			recs []covariate.Record
			err  error
		)
		switch s.Kind {
		case config.KindCSV:
			recs, err = readFile(s.Path, ingest.ReadRecordsCSV)
		case config.KindNetCDF:
			recs, err = ingest.ReadNetCDF(s.Path, s.NetCDF)
		case config.KindSQL:
			if l.Store == nil {
				return nil, fmt.Errorf("records[%d]: no database configured", i)
			}
			recs, err = l.Store.LoadRecords(ctx)
		default:
			err = fmt.Errorf("unsupported record source %q", s.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("records[%d]: %w", i, err)
		}
		logger.L().Info("records_loaded", "source", s.Kind, "path", s.Path, "records", len(recs))
		if s.Kind != config.KindSQL {
			metrics.RecordsLoaded.WithLabelValues(s.Kind).Add(float64(len(recs)))
		}
		out = append(out, recs...)
	}
	return out, nil
}

func (l *Loader) Samples(ctx context.Context, s config.Source) ([]covariate.SampleLocation, error) {
	switch s.Kind {
	case config.KindCSV:
		ss, err := readFile(s.Path, ingest.ReadSamplesCSV)
		if err == nil {
			metrics.RecordsLoaded.WithLabelValues(s.Kind).Add(float64(len(ss)))
		}
		return ss, err
	case config.KindSQL:
		if l.Store == nil {
			return nil, fmt.Errorf("samples: no database configured")
		}
		return l.Store.LoadSamples(ctx)
	case config.KindRedis:
		if l.Feed == nil {
			return nil, fmt.Errorf("samples: no redis configured")
		}
		return l.Feed.LoadSamples(ctx)
	}
	return nil, fmt.Errorf("unsupported sample source %q", s.Kind)
}

func (l *Loader) Grid(ctx context.Context, s config.Source) ([]covariate.GridCell, error) {
	switch s.Kind {
	case config.KindCSV:
		gs, err := readFile(s.Path, ingest.ReadGridCSV)
		if err == nil {
			metrics.RecordsLoaded.WithLabelValues(s.Kind).Add(float64(len(gs)))
		}
		return gs, err
	case config.KindSQL:
		if l.Store == nil {
			return nil, fmt.Errorf("grid: no database configured")
		}
		return l.Store.LoadGrid(ctx)
	case config.KindRedis:
		if l.Feed == nil {
			return nil, fmt.Errorf("grid: no redis configured")
		}
		return l.Feed.LoadGrid(ctx)
	}
	return nil, fmt.Errorf("unsupported grid source %q", s.Kind)
}

func readFile[T any](path string, read func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, err
	}
	defer f.Close()
	v, err := read(f)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}
