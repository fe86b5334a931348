// 包 ingest：协变量、观测点与网格的外部数据读取，以及批量写入数据库
package ingest

import (
	"encoding/csv"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"

	"covres/internal/covariate"
)

// 表头列定位；列名大小写不敏感
type header struct {
	names []string
	pos   map[string]int
}

func readHeader(cr *csv.Reader, required ...string) (*header, error) {
	rec, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, covariate.Errorf(covariate.KindInputShape, "empty table")
		}
		return nil, err
	}
	h := &header{pos: make(map[string]int)}
	for i, n := range rec {
		n = strings.TrimSpace(n)
		h.names = append(h.names, n)
		h.pos[strings.ToLower(n)] = i
	}
	for _, r := range required {
		if _, ok := h.pos[strings.ToLower(r)]; !ok {
			return nil, covariate.Errorf(covariate.KindInputShape, "missing required column %q", r)
		}
	}
	return h, nil
}

func (h *header) col(name string) int { return h.pos[strings.ToLower(name)] }

// isNA 判断单元格是否为缺失标记
func isNA(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NA", "NAN", "NULL":
		return true
	}
	return false
}

func parseCoord(s string, line int, name string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, covariate.Errorf(covariate.KindInputShape, "bad %s %q", name, s).WithIndex(line)
	}
	return v, nil
}

// 文档注释：读取长表格式的协变量记录
// 背景：必需列 Lat/Lon/Year，其余列均视为协变量；Year 为空、NA 或 static 表示静态记录。
// 约束：可解析为数字的单元格按数值读取，否则作为分类水平；空值/NA 视为缺失，不写入 Values。
func ReadRecordsCSV(r io.Reader) ([]covariate.Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	h, err := readHeader(cr, "Lat", "Lon", "Year")
	if err != nil {
		return nil, err
	}
	lat, lon, year := h.col("Lat"), h.col("Lon"), h.col("Year")
	var out []covariate.Record
	for line := 0; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		var rec covariate.Record
		if rec.Lat, err = parseCoord(row[lat], line, "Lat"); err != nil {
			return nil, err
		}
		if rec.Lon, err = parseCoord(row[lon], line, "Lon"); err != nil {
			return nil, err
		}
		ys := strings.TrimSpace(row[year])
		if isNA(ys) || strings.EqualFold(ys, "static") {
			rec.Static = true
		} else if rec.Year, err = parseYear(ys); err != nil {
			return nil, covariate.Errorf(covariate.KindInputShape, "bad Year %q", ys).WithIndex(line)
		}
		rec.Values = make(covariate.Values, len(row)-3)
		for i, cell := range row {
			if i == lat || i == lon || i == year || isNA(cell) {
				continue
			}
			rec.Values[h.names[i]] = parseValue(cell)
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseValue(cell string) covariate.Value {
	s := strings.TrimSpace(cell)
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return covariate.Number(v)
	}
	return covariate.Level(s)
}

// parseYear 接受 2001 或 2001.0 这类整数值
func parseYear(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, errors.New("not an integer year")
	}
	return int(f), nil
}

// ReadSamplesCSV 读取观测点（Lat, Lon, Year）；行序即观测序号
func ReadSamplesCSV(r io.Reader) ([]covariate.SampleLocation, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	h, err := readHeader(cr, "Lat", "Lon", "Year")
	if err != nil {
		return nil, err
	}
	lat, lon, year := h.col("Lat"), h.col("Lon"), h.col("Year")
	var out []covariate.SampleLocation
	for line := 0; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		s := covariate.SampleLocation{Index: line}
		if s.Lat, err = parseCoord(row[lat], line, "Lat"); err != nil {
			return nil, err
		}
		if s.Lon, err = parseCoord(row[lon], line, "Lon"); err != nil {
			return nil, err
		}
		if s.Year, err = parseYear(strings.TrimSpace(row[year])); err != nil {
			return nil, covariate.Errorf(covariate.KindInputShape, "bad Year %q", row[year]).WithIndex(line)
		}
		out = append(out, s)
	}
	return out, nil
}

// ReadGridCSV 读取外推网格（Lat, Lon）
func ReadGridCSV(r io.Reader) ([]covariate.GridCell, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	h, err := readHeader(cr, "Lat", "Lon")
	if err != nil {
		return nil, err
	}
	lat, lon := h.col("Lat"), h.col("Lon")
	var out []covariate.GridCell
	for line := 0; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		c := covariate.GridCell{Index: line}
		if c.Lat, err = parseCoord(row[lat], line, "Lat"); err != nil {
			return nil, err
		}
		if c.Lon, err = parseCoord(row[lon], line, "Lon"); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
