package ingest

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"time"

	"covres/internal/covariate"
	"covres/internal/logger"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// NetCDFOptions：网格化协变量文件的变量映射
type NetCDFOptions struct {
	Vars    []string `yaml:"vars"`
	TimeVar string   `yaml:"time_var"`
	LatVar  string   `yaml:"lat_var"`
	LonVar  string   `yaml:"lon_var"`
	// Static 为真时忽略时间轴，变量按 [lat][lon] 读取并标记为静态记录
	Static bool `yaml:"static"`
}

func (o NetCDFOptions) withDefaults() NetCDFOptions {
	if o.TimeVar == "" {
		o.TimeVar = "time"
	}
	if o.LatVar == "" {
		o.LatVar = "latitude"
	}
	if o.LonVar == "" {
		o.LonVar = "longitude"
	}
	return o
}

// 文档注释：从 NetCDF（如 ERA5 再分析）读取协变量并按年求均值
// 背景：逐时/逐月格点数据远多于需要；按 (年份, 纬度, 经度) 聚合为一条记录后再参与最近邻匹配。
// 约束：变量维度为 [time][lat][lon]；应用 scale_factor/add_offset，跳过 _FillValue 与 missing_value。
func ReadNetCDF(path string, opts NetCDFOptions) ([]covariate.Record, error) {
	opts = opts.withDefaults()
	if len(opts.Vars) == 0 {
		return nil, covariate.Errorf(covariate.KindInputShape, "no NetCDF variables configured for %s", path)
	}
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer nc.Close()

	la, err := varFloats(nc, opts.LatVar)
	if err != nil {
		return nil, err
	}
	lo, err := varFloats(nc, opts.LonVar)
	if err != nil {
		return nil, err
	}
	if opts.Static {
		return readStatic(nc, opts, la, lo)
	}

	tv, err := nc.GetVarGetter(opts.TimeVar)
	if err != nil {
		return nil, fmt.Errorf("time variable %q: %w", opts.TimeVar, err)
	}
	raw, err := tv.Values()
	if err != nil {
		return nil, err
	}
	ts, err := toFloats(raw)
	if err != nil {
		return nil, fmt.Errorf("time variable %q: %w", opts.TimeVar, err)
	}
	units, _ := attrString(tv.Attributes(), "units")
	years, err := decodeYears(ts, units)
	if err != nil {
		return nil, err
	}

	cells := len(la) * len(lo)
	acc := make(map[int][]*annual)
	for vi, name := range opts.Vars {
		vg, err := nc.GetVarGetter(name)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		pk := packingOf(vg.Attributes())
		for ti, year := range years {
			sl, err := vg.GetSlice(int64(ti), int64(ti+1))
			if err != nil {
				return nil, fmt.Errorf("variable %q slice %d: %w", name, ti, err)
			}
			grid, err := firstPlane(sl)
			if err != nil {
				return nil, fmt.Errorf("variable %q: %w", name, err)
			}
			if acc[year] == nil {
				acc[year] = make([]*annual, len(opts.Vars))
			}
			if acc[year][vi] == nil {
				acc[year][vi] = &annual{sum: make([]float64, cells), n: make([]int, cells)}
			}
			acc[year][vi].add(grid, pk, len(lo))
		}
	}

	var out []covariate.Record
	for _, year := range slices.Sorted(maps.Keys(acc)) {
		for i, lat := range la {
			for j, lon := range lo {
				vals := make(covariate.Values)
				for vi, name := range opts.Vars {
					a := acc[year][vi]
					if a == nil || a.n[i*len(lo)+j] == 0 {
						continue
					}
					vals[name] = covariate.Number(a.sum[i*len(lo)+j] / float64(a.n[i*len(lo)+j]))
				}
				if len(vals) == 0 {
					continue
				}
				out = append(out, covariate.Record{Lat: lat, Lon: lon, Year: year, Values: vals})
			}
		}
	}
	logger.L().Info("netcdf_loaded", "path", path, "times", len(ts), "lat", len(la), "lon", len(lo), "records", len(out))
	return out, nil
}

func readStatic(nc api.Group, opts NetCDFOptions, la, lo []float64) ([]covariate.Record, error) {
	planes := make([][][]float64, len(opts.Vars))
	packs := make([]packing, len(opts.Vars))
	for vi, name := range opts.Vars {
		vg, err := nc.GetVarGetter(name)
		if err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		v, err := vg.Values()
		if err != nil {
			return nil, err
		}
		if planes[vi], err = toFloat2D(v); err != nil {
			return nil, fmt.Errorf("variable %q: %w", name, err)
		}
		packs[vi] = packingOf(vg.Attributes())
	}
	var out []covariate.Record
	for i, lat := range la {
		for j, lon := range lo {
			vals := make(covariate.Values)
			for vi, name := range opts.Vars {
				if x, ok := packs[vi].unpack(planes[vi][i][j]); ok {
					vals[name] = covariate.Number(x)
				}
			}
			if len(vals) > 0 {
				out = append(out, covariate.Record{Lat: lat, Lon: lon, Static: true, Values: vals})
			}
		}
	}
	return out, nil
}

type annual struct {
	sum []float64
	n   []int
}

func (a *annual) add(grid [][]float64, pk packing, nlon int) {
	for i, row := range grid {
		for j, raw := range row {
			if x, ok := pk.unpack(raw); ok {
				a.sum[i*nlon+j] += x
				a.n[i*nlon+j]++
			}
		}
	}
}

// packing：CF 约定的压缩存储参数
type packing struct {
	scale, offset float64
	fill          []float64
}

func packingOf(attrs api.AttributeMap) packing {
	pk := packing{scale: 1}
	if attrs == nil {
		return pk
	}
	if v, ok := attrFloat(attrs, "scale_factor"); ok {
		pk.scale = v
	}
	if v, ok := attrFloat(attrs, "add_offset"); ok {
		pk.offset = v
	}
	for _, k := range []string{"_FillValue", "missing_value"} {
		if v, ok := attrFloat(attrs, k); ok {
			pk.fill = append(pk.fill, v)
		}
	}
	return pk
}

func (pk packing) unpack(raw float64) (float64, bool) {
	if math.IsNaN(raw) || slices.Contains(pk.fill, raw) {
		return 0, false
	}
	return raw*pk.scale + pk.offset, true
}

func attrFloat(attrs api.AttributeMap, key string) (float64, bool) {
	v, ok := attrs.Get(key)
	if !ok {
		return 0, false
	}
	fs, err := toFloats(v)
	if err == nil && len(fs) > 0 {
		return fs[0], true
	}
	return 0, false
}

func attrString(attrs api.AttributeMap, key string) (string, bool) {
	if attrs == nil {
		return "", false
	}
	v, ok := attrs.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// 文档注释：按 CF “<单位> since <起点>” 解码时间轴到年份
// 背景：ERA5 旧格式为 hours since 1900-01-01，新格式为 seconds since 1970-01-01。
func decodeYears(ts []float64, units string) ([]int, error) {
	unit, ref, ok := strings.Cut(strings.TrimSpace(units), " since ")
	if !ok {
		return nil, covariate.Errorf(covariate.KindInputShape, "unsupported time units %q", units)
	}
	var step time.Duration
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "seconds", "second", "s":
		step = time.Second
	case "minutes", "minute":
		step = time.Minute
	case "hours", "hour", "h":
		step = time.Hour
	case "days", "day", "d":
		step = 24 * time.Hour
	default:
		return nil, covariate.Errorf(covariate.KindInputShape, "unsupported time unit %q", unit)
	}
	origin, err := parseOrigin(ref)
	if err != nil {
		return nil, covariate.Errorf(covariate.KindInputShape, "bad time origin %q", ref).Wrap(err)
	}
	out := make([]int, len(ts))
	for i, t := range ts {
		// 按秒换算，避免 Duration 在数百年跨度上溢出
		secs := int64(math.Round(t * step.Seconds()))
		out[i] = time.Unix(origin.Unix()+secs, 0).UTC().Year()
	}
	return out, nil
}

func parseOrigin(s string) (time.Time, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "UTC"))
	s = strings.TrimSuffix(s, "Z")
	var err error
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02 15:04:05.0", "2006-01-02 15:04", "2006-01-02", "2006-1-2"} {
		var t time.Time
		if t, err = time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

func varFloats(nc api.Group, name string) ([]float64, error) {
	vg, err := nc.GetVarGetter(name)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}
	v, err := vg.Values()
	if err != nil {
		return nil, err
	}
	return toFloats(v)
}

func toFloats(v any) ([]float64, error) {
	switch x := v.(type) {
	case []float64:
		return x, nil
	case []float32:
		return convert(x), nil
	case []int64:
		return convert(x), nil
	case []int32:
		return convert(x), nil
	case []int16:
		return convert(x), nil
	case []int8:
		return convert(x), nil
	case float64:
		return []float64{x}, nil
	case float32:
		return []float64{float64(x)}, nil
	case int64:
		return []float64{float64(x)}, nil
	case int32:
		return []float64{float64(x)}, nil
	case int16:
		return []float64{float64(x)}, nil
	case int8:
		return []float64{float64(x)}, nil
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

func toFloat2D(v any) ([][]float64, error) {
	switch x := v.(type) {
	case [][]float64:
		return x, nil
	case [][]float32:
		return convert2D(x), nil
	case [][]int32:
		return convert2D(x), nil
	case [][]int16:
		return convert2D(x), nil
	case [][]int8:
		return convert2D(x), nil
	}
	return nil, fmt.Errorf("unsupported 2-D value type %T", v)
}

// firstPlane 取 GetSlice(t, t+1) 结果中的唯一时间平面
func firstPlane(v any) ([][]float64, error) {
	switch x := v.(type) {
	case [][][]float64:
		return x[0], nil
	case [][][]float32:
		return convert2D(x[0]), nil
	case [][][]int32:
		return convert2D(x[0]), nil
	case [][][]int16:
		return convert2D(x[0]), nil
	case [][][]int8:
		return convert2D(x[0]), nil
	}
	return nil, fmt.Errorf("unsupported 3-D value type %T", v)
}

type number interface {
	~float32 | ~float64 | ~int8 | ~int16 | ~int32 | ~int64
}

func convert[T number](xs []T) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = float64(x)
	}
	return out
}

func convert2D[T number](xs [][]T) [][]float64 {
	out := make([][]float64, len(xs))
	for i, row := range xs {
		out[i] = convert(row)
	}
	return out
}
