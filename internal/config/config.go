// 包 config：解析任务配置（YAML 文件 + 环境变量覆盖）
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"covres/internal/ingest"

	"gopkg.in/yaml.v3"
)

// 数据源类型
const (
	KindCSV    = "csv"
	KindNetCDF = "netcdf"
	KindSQL    = "sql"
	KindRedis  = "redis"
)

// Source：一个输入来源；Path 对 csv/netcdf 必填
type Source struct {
	Kind   string               `yaml:"kind"`
	Path   string               `yaml:"path,omitempty"`
	NetCDF ingest.NetCDFOptions `yaml:"netcdf,omitempty"`
}

// YearRange：显式年份范围；为空时由观测年份推出
type YearRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

type Database struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn,omitempty"`
}

type Redis struct {
	GridKey    string `yaml:"grid_key,omitempty"`
	SamplesKey string `yaml:"samples_key,omitempty"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config：一次解析任务的全部设置
type Config struct {
	Formula         string     `yaml:"formula"`
	Records         []Source   `yaml:"records"`
	Samples         Source     `yaml:"samples"`
	Grid            Source     `yaml:"grid"`
	Years           *YearRange `yaml:"years,omitempty"`
	Workers         int        `yaml:"workers"`
	SDThreshold     float64    `yaml:"sd_threshold"`
	Output          string     `yaml:"output"`
	MetricsTextfile string     `yaml:"metrics_textfile,omitempty"`
	Database        Database   `yaml:"database"`
	Redis           Redis      `yaml:"redis"`
	Log             Log        `yaml:"log"`
}

func DefaultConfig() *Config {
	return &Config{
		Workers:     1,
		SDThreshold: 10,
		Output:      "-",
		Database:    Database{Driver: "postgres"},
		Log:         Log{Level: "info", Format: "text"},
	}
}

// Load：读取 YAML 配置并应用环境变量覆盖；文件不存在时使用默认值
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save 将配置写回 YAML
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("COVRES_FORMULA"); v != "" {
		c.Formula = v
	}
	if v := os.Getenv("COVRES_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Workers = n
		}
	}
	if v := os.Getenv("COVRES_SD_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.SDThreshold = f
		}
	}
	if v := os.Getenv("COVRES_OUTPUT"); v != "" {
		c.Output = v
	}
	if v := os.Getenv("COVRES_METRICS_TEXTFILE"); v != "" {
		c.MetricsTextfile = v
	}
	if v := os.Getenv("COVRES_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("COVRES_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

var (
	recordKinds = []string{KindCSV, KindNetCDF, KindSQL}
	pointKinds  = []string{KindCSV, KindSQL, KindRedis}
)

// Validate 检查解析任务所需字段
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Formula) == "" {
		return fmt.Errorf("formula not configured (set formula or COVRES_FORMULA)")
	}
	if len(c.Records) == 0 {
		return fmt.Errorf("no covariate record sources configured")
	}
	for i, s := range c.Records {
		if err := s.check(recordKinds); err != nil {
			return fmt.Errorf("records[%d]: %w", i, err)
		}
	}
	if err := c.Samples.check(pointKinds); err != nil {
		return fmt.Errorf("samples: %w", err)
	}
	if err := c.Grid.check(pointKinds); err != nil {
		return fmt.Errorf("grid: %w", err)
	}
	if c.Years != nil && c.Years.Min > c.Years.Max {
		return fmt.Errorf("invalid year range %d..%d", c.Years.Min, c.Years.Max)
	}
	if c.Workers < 0 {
		return fmt.Errorf("invalid workers: %d", c.Workers)
	}
	return nil
}

func (s Source) check(allowed []string) error {
	if !slices.Contains(allowed, s.Kind) {
		return fmt.Errorf("invalid source kind %q (valid: %v)", s.Kind, allowed)
	}
	if (s.Kind == KindCSV || s.Kind == KindNetCDF) && s.Path == "" {
		return fmt.Errorf("%s source needs a path", s.Kind)
	}
	if s.Kind == KindNetCDF && len(s.NetCDF.Vars) == 0 {
		return fmt.Errorf("netcdf source needs vars")
	}
	return nil
}

// UsesSQL 判断是否有来源需要数据库连接
func (c *Config) UsesSQL() bool { return c.uses(KindSQL) }

// UsesRedis 判断是否有来源需要 Redis
func (c *Config) UsesRedis() bool { return c.uses(KindRedis) }

func (c *Config) uses(kind string) bool {
	if c.Samples.Kind == kind || c.Grid.Kind == kind {
		return true
	}
	return slices.ContainsFunc(c.Records, func(s Source) bool { return s.Kind == kind })
}
