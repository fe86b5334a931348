package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ResolutionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "covres_resolutions_total",
		Help: "Total number of successful covariate resolutions",
	})
	ResolutionsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "covres_resolutions_failed_total",
		Help: "Failed covariate resolutions by error kind",
	}, []string{"kind"})
	ResolveDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "covres_resolve_duration_ms",
		Help:    "Resolution duration in milliseconds",
		Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 30000},
	})
	RowsMatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "covres_rows_matched_total",
		Help: "Nearest-neighbour matched rows by partition",
	}, []string{"partition"})
	VarianceWarnings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "covres_variance_warnings_total",
		Help: "High standard deviation diagnostics by tensor",
	}, []string{"tensor"})
	RecordsLoaded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "covres_records_loaded_total",
		Help: "Input rows loaded by source",
	}, []string{"source"})
)

func init() {
	prometheus.MustRegister(ResolutionsTotal)
	prometheus.MustRegister(ResolutionsFailed)
	prometheus.MustRegister(ResolveDurationMs)
	prometheus.MustRegister(RowsMatched)
	prometheus.MustRegister(VarianceWarnings)
	prometheus.MustRegister(RecordsLoaded)
}

// 文档注释：把已注册指标写入文本文件
// 背景：解析以批处理方式运行，不常驻监听 /metrics；由 node_exporter 的 textfile 收集器读取。
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
