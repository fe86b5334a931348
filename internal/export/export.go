// 包 export：把解析结果写成 JSON 文档，供下游模型拟合读取
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"covres/internal/resolve"
	"covres/internal/tensor"
)

// Array：行主序张量；dims 为 [位置, 年份, 预测变量]
type Array struct {
	Dims [3]int    `json:"dims"`
	Data []float64 `json:"data"`
}

// Document：导出文档
type Document struct {
	RunID        string                   `json:"run_id"`
	Years        []int                    `json:"years"`
	Predictors   []string                 `json:"predictors"`
	Observations Array                    `json:"observations"`
	Grid         Array                    `json:"grid"`
	Warnings     []tensor.VarianceWarning `json:"warnings"`
}

func FromResult(res *resolve.Result) Document {
	d := Document{
		RunID:        res.RunID,
		Years:        res.Years,
		Predictors:   res.Predictors,
		Observations: Array{Dims: res.Observations.Dims, Data: res.Observations.Data},
		Grid:         Array{Dims: res.Grid.Dims, Data: res.Grid.Data},
		Warnings:     res.Warnings,
	}
	if d.Warnings == nil {
		d.Warnings = []tensor.VarianceWarning{}
	}
	return d
}

func Write(w io.Writer, res *resolve.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(FromResult(res))
}

// WriteFile 写入 path；"-" 或空串表示标准输出
func WriteFile(path string, res *resolve.Result) error {
	if path == "" || path == "-" {
		return Write(os.Stdout, res)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, res); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
