package store

import (
	"context"
	"encoding/json"
	"fmt"

	"covres/internal/covariate"
	"covres/internal/logger"
	"covres/internal/metrics"

	"github.com/redis/go-redis/v9"
)

// 默认列表键
const (
	DefaultGridKey    = "covres:grid"
	DefaultSamplesKey = "covres:samples"
)

// point：Redis 列表中的一条 JSON 元素；网格元素不带 year
type point struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Year *int    `json:"year,omitempty"`
}

// 文档注释：从 Redis 列表读取网格与观测点
// 背景：网格由上游网格化模块按序 RPUSH 为 JSON 元素；列表顺序即位置序号。
type RedisFeed struct {
	rc         *redis.Client
	gridKey    string
	samplesKey string
}

func NewRedisFeed(rc *redis.Client, gridKey, samplesKey string) *RedisFeed {
	if gridKey == "" {
		gridKey = DefaultGridKey
	}
	if samplesKey == "" {
		samplesKey = DefaultSamplesKey
	}
	return &RedisFeed{rc: rc, gridKey: gridKey, samplesKey: samplesKey}
}

func (f *RedisFeed) LoadGrid(ctx context.Context) ([]covariate.GridCell, error) {
	items, err := f.rc.LRange(ctx, f.gridKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out, err := decodeGrid(items)
	if err != nil {
		return nil, fmt.Errorf("redis %s: %w", f.gridKey, err)
	}
	logger.L().Debug("redis_grid_loaded", "key", f.gridKey, "cells", len(out))
	metrics.RecordsLoaded.WithLabelValues("redis").Add(float64(len(out)))
	return out, nil
}

func (f *RedisFeed) LoadSamples(ctx context.Context) ([]covariate.SampleLocation, error) {
	items, err := f.rc.LRange(ctx, f.samplesKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out, err := decodeSamples(items)
	if err != nil {
		return nil, fmt.Errorf("redis %s: %w", f.samplesKey, err)
	}
	logger.L().Debug("redis_samples_loaded", "key", f.samplesKey, "samples", len(out))
	metrics.RecordsLoaded.WithLabelValues("redis").Add(float64(len(out)))
	return out, nil
}

// PublishGrid 以单个事务替换网格列表
func (f *RedisFeed) PublishGrid(ctx context.Context, grid []covariate.GridCell) error {
	items, err := encodeGrid(grid)
	if err != nil {
		return fmt.Errorf("redis %s: %w", f.gridKey, err)
	}
	return f.replace(ctx, f.gridKey, items)
}

// PublishSamples 以单个事务替换观测点列表
func (f *RedisFeed) PublishSamples(ctx context.Context, samples []covariate.SampleLocation) error {
	items, err := encodeSamples(samples)
	if err != nil {
		return fmt.Errorf("redis %s: %w", f.samplesKey, err)
	}
	return f.replace(ctx, f.samplesKey, items)
}

func (f *RedisFeed) replace(ctx context.Context, key string, items []any) error {
	_, err := f.rc.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		if len(items) > 0 {
			p.RPush(ctx, key, items...)
		}
		return nil
	})
	return err
}

// encodeGrid 编码失败（如坐标为 NaN）时直接报错，不写入空元素
func encodeGrid(grid []covariate.GridCell) ([]any, error) {
	items := make([]any, len(grid))
	for i, c := range grid {
		b, err := json.Marshal(point{Lat: c.Lat, Lon: c.Lon})
		if err != nil {
			return nil, covariate.Errorf(covariate.KindInputShape, "bad grid cell").WithIndex(i).Wrap(err)
		}
		items[i] = string(b)
	}
	return items, nil
}

func encodeSamples(samples []covariate.SampleLocation) ([]any, error) {
	items := make([]any, len(samples))
	for i, s := range samples {
		y := s.Year
		b, err := json.Marshal(point{Lat: s.Lat, Lon: s.Lon, Year: &y})
		if err != nil {
			return nil, covariate.Errorf(covariate.KindInputShape, "bad sample location").WithIndex(i).Wrap(err)
		}
		items[i] = string(b)
	}
	return items, nil
}

func decodeGrid(items []string) ([]covariate.GridCell, error) {
	out := make([]covariate.GridCell, 0, len(items))
	for i, s := range items {
		var p point
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			return nil, covariate.Errorf(covariate.KindInputShape, "bad grid entry").WithIndex(i).Wrap(err)
		}
		out = append(out, covariate.GridCell{Index: i, Lat: p.Lat, Lon: p.Lon})
	}
	return out, nil
}

func decodeSamples(items []string) ([]covariate.SampleLocation, error) {
	out := make([]covariate.SampleLocation, 0, len(items))
	for i, s := range items {
		var p point
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			return nil, covariate.Errorf(covariate.KindInputShape, "bad sample entry").WithIndex(i).Wrap(err)
		}
		if p.Year == nil {
			return nil, covariate.Errorf(covariate.KindInputShape, "sample entry without year").WithIndex(i)
		}
		out = append(out, covariate.SampleLocation{Index: i, Lat: p.Lat, Lon: p.Lon, Year: *p.Year})
	}
	return out, nil
}
