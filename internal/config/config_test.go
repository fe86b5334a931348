package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
formula: "~ depth + sst"
records:
  - kind: csv
    path: static.csv
  - kind: netcdf
    path: era5.nc
    netcdf:
      vars: [sst]
      time_var: valid_time
samples:
  kind: csv
  path: samples.csv
grid:
  kind: redis
years:
  min: 2001
  max: 2005
workers: 4
database:
  driver: sqlite
  dsn: covariates.db
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "covres.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_File(t *testing.T) {
	t.Setenv("COVRES_FORMULA", "")
	t.Setenv("COVRES_WORKERS", "")
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "~ depth + sst", cfg.Formula)
	require.Len(t, cfg.Records, 2)
	assert.Equal(t, KindNetCDF, cfg.Records[1].Kind)
	assert.Equal(t, []string{"sst"}, cfg.Records[1].NetCDF.Vars)
	assert.Equal(t, "valid_time", cfg.Records[1].NetCDF.TimeVar)
	assert.Equal(t, &YearRange{Min: 2001, Max: 2005}, cfg.Years)
	assert.Equal(t, 4, cfg.Workers)
	// 未出现的字段保留默认值
	assert.Equal(t, 10.0, cfg.SDThreshold)
	assert.Equal(t, "-", cfg.Output)
	assert.True(t, cfg.UsesRedis())
	assert.False(t, cfg.UsesSQL())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Workers, cfg.Workers)
	assert.Equal(t, "postgres", cfg.Database.Driver)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("COVRES_FORMULA", "~ depth")
	t.Setenv("COVRES_WORKERS", "8")
	t.Setenv("COVRES_SD_THRESHOLD", "2.5")
	t.Setenv("COVRES_DB_DRIVER", "postgres")
	t.Setenv("LOG_LEVEL", "debug")
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, "~ depth", cfg.Formula)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 2.5, cfg.SDThreshold)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "formula: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := DefaultConfig()
		c.Formula = "~ depth"
		c.Records = []Source{{Kind: KindSQL}}
		c.Samples = Source{Kind: KindSQL}
		c.Grid = Source{Kind: KindCSV, Path: "grid.csv"}
		return c
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(c *Config){
		"no formula":     func(c *Config) { c.Formula = " " },
		"no records":     func(c *Config) { c.Records = nil },
		"redis records":  func(c *Config) { c.Records = []Source{{Kind: KindRedis}} },
		"csv no path":    func(c *Config) { c.Grid.Path = "" },
		"netcdf no vars": func(c *Config) { c.Records = []Source{{Kind: KindNetCDF, Path: "x.nc"}} },
		"bad years":      func(c *Config) { c.Years = &YearRange{Min: 2005, Max: 2001} },
		"bad workers":    func(c *Config) { c.Workers = -1 },
		"netcdf samples": func(c *Config) { c.Samples = Source{Kind: KindNetCDF, Path: "x.nc"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestSaveLoad(t *testing.T) {
	t.Setenv("COVRES_FORMULA", "")
	path := filepath.Join(t.TempDir(), "nested", "covres.yaml")
	cfg := DefaultConfig()
	cfg.Formula = "~ log(depth)"
	cfg.Records = []Source{{Kind: KindCSV, Path: "r.csv"}}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Formula, loaded.Formula)
	assert.Equal(t, cfg.Records, loaded.Records)
}
