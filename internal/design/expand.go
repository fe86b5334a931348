// 包 design：把匹配后的扁平表按模型公式展开为纯数值设计矩阵
package design

import (
	"math"
	"slices"
	"strconv"
	"strings"

	"covres/internal/covariate"

	"gonum.org/v1/gonum/mat"
)

// 文档注释：设计矩阵展开接口
// 背景：公式解析与模型矩阵构造属于外部能力；核心流程只依赖此窄接口。
// 约束：返回矩阵行数与行顺序同输入一致，列顺序确定且与 names 对应。
type Expander interface {
	Expand(rows []covariate.MatchedRow, formula string) (*mat.Dense, []string, error)
}

// NoIntercept 强制公式不含隐式截距（等价于 R 的 update(f, ~ . - 1)）
func NoIntercept(formula string) string {
	f := strings.TrimSpace(formula)
	if f == "" || strings.HasSuffix(f, "~") {
		return f + " -1"
	}
	return f + " - 1"
}

// ModelMatrix：默认的 R 风格公式展开实现
type ModelMatrix struct{}

// column：设计矩阵的一列，按行求值
type column struct {
	name string
	at   func(row int) float64
}

// Expand 解析公式并生成设计矩阵；分类水平在全部输入行上统一计算
func (ModelMatrix) Expand(rows []covariate.MatchedRow, formula string) (*mat.Dense, []string, error) {
	if len(rows) == 0 {
		return nil, nil, covariate.Errorf(covariate.KindInputShape, "no rows to expand")
	}
	root, err := parseFormula(formula)
	if err != nil {
		return nil, nil, covariate.Errorf(covariate.KindFormula, "parse %q", formula).Wrap(err)
	}
	m, err := buildModel(root)
	if err != nil {
		return nil, nil, covariate.Errorf(covariate.KindFormula, "terms of %q", formula).Wrap(err)
	}
	fr := &frame{rows: rows, numeric: make(map[string][]float64), cats: make(map[string]*categorical)}

	var cols []column
	if m.intercept {
		cols = append(cols, column{name: "(Intercept)", at: func(int) float64 { return 1 }})
	}
	spanned := map[string]bool{"": m.intercept}
	for _, t := range m.terms {
		tc, full, err := fr.termColumns(t, spanned)
		if err != nil {
			return nil, nil, err
		}
		cols = append(cols, tc...)
		spanned[t.key()] = true
		if full && len(t.comps) == 1 {
			spanned[""] = true
		}
	}
	if len(cols) == 0 {
		return nil, nil, covariate.Errorf(covariate.KindFormula, "formula %q expands to no predictors", formula)
	}

	x := mat.NewDense(len(rows), len(cols), nil)
	names := make([]string, len(cols))
	for j, c := range cols {
		names[j] = c.name
		for i := range rows {
			v := c.at(i)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, nil, covariate.Errorf(covariate.KindNAInExpansion, "non-finite value %v in column %q", v, c.name).WithIndex(i)
			}
			x.Set(i, j, v)
		}
	}
	return x, names, nil
}

// frame：对输入行的列式缓存，按 component 标签记忆求值结果
type frame struct {
	rows    []covariate.MatchedRow
	numeric map[string][]float64
	cats    map[string]*categorical
}

type categorical struct {
	levels []string
	code   []int
}

// termColumns 生成一个项的全部列；首个 component 变化最快
// full 报告分类 component 是否采用了完全指示编码
func (fr *frame) termColumns(t term, spanned map[string]bool) ([]column, bool, error) {
	cols := []column{{at: func(int) float64 { return 1 }}}
	anyFull := false
	for i, c := range t.comps {
		cat, err := fr.categorical(c)
		if err != nil {
			return nil, false, err
		}
		var parts []column
		if cat == nil {
			vals, err := fr.numericValues(c)
			if err != nil {
				return nil, false, err
			}
			parts = []column{{name: c.label, at: func(r int) float64 { return vals[r] }}}
		} else {
			from := 1
			if !spanned[t.without(i)] {
				from = 0
				anyFull = true
			}
			for k := from; k < len(cat.levels); k++ {
				parts = append(parts, column{name: c.label + cat.levels[k], at: func(r int) float64 {
					if cat.code[r] == k {
						return 1
					}
					return 0
				}})
			}
		}
		next := make([]column, 0, len(cols)*len(parts))
		for _, p := range parts {
			for _, prev := range cols {
				name := p.name
				if prev.name != "" {
					name = prev.name + ":" + p.name
				}
				next = append(next, column{name: name, at: func(r int) float64 { return prev.at(r) * p.at(r) }})
			}
		}
		cols = next
	}
	return cols, anyFull, nil
}

// lookup 读取行内变量；Lat/Lon/Year 指向行字段
func lookup(row covariate.MatchedRow, name string) (covariate.Value, bool) {
	if v, ok := row.Values[name]; ok {
		return v, true
	}
	switch name {
	case "Lat":
		return covariate.Number(row.Lat), true
	case "Lon":
		return covariate.Number(row.Lon), true
	case "Year":
		return covariate.Number(float64(row.Year)), true
	}
	return covariate.Value{}, false
}

func (fr *frame) defined(name string) bool {
	for _, r := range fr.rows {
		if _, ok := lookup(r, name); ok {
			return true
		}
	}
	return false
}

// categorical 判断 component 是否按分类展开；数值型返回 nil
func (fr *frame) categorical(c component) (*categorical, error) {
	if c.varRef == "" {
		return nil, nil
	}
	if cat, ok := fr.cats[c.label]; ok {
		return cat, nil
	}
	if !fr.defined(c.varRef) {
		return nil, covariate.Errorf(covariate.KindFormula, "undefined covariate %q", c.varRef)
	}
	isLevel := c.factor
	for _, r := range fr.rows {
		if v, ok := lookup(r, c.varRef); ok && v.IsLevel {
			isLevel = true
			break
		}
	}
	if !isLevel {
		return nil, nil
	}
	labels := make([]string, len(fr.rows))
	allNumeric := true
	for i, r := range fr.rows {
		v, ok := lookup(r, c.varRef)
		if !ok || v.Missing() {
			return nil, covariate.Errorf(covariate.KindNAInExpansion, "missing value for %q", c.varRef).WithIndex(i)
		}
		if v.IsLevel {
			allNumeric = false
		}
		labels[i] = v.Label()
	}
	levels := slices.Clone(labels)
	if allNumeric {
		slices.SortFunc(levels, func(a, b string) int {
			x, _ := strconv.ParseFloat(a, 64)
			y, _ := strconv.ParseFloat(b, 64)
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		})
	} else {
		slices.Sort(levels)
	}
	levels = slices.Compact(levels)
	index := make(map[string]int, len(levels))
	for i, l := range levels {
		index[l] = i
	}
	cat := &categorical{levels: levels, code: make([]int, len(fr.rows))}
	for i, l := range labels {
		cat.code[i] = index[l]
	}
	fr.cats[c.label] = cat
	return cat, nil
}

func (fr *frame) numericValues(c component) ([]float64, error) {
	if vals, ok := fr.numeric[c.label]; ok {
		return vals, nil
	}
	if err := fr.checkNames(c.expr); err != nil {
		return nil, err
	}
	vals := make([]float64, len(fr.rows))
	for i, r := range fr.rows {
		v, err := eval(c.expr, r)
		if err != nil {
			return nil, err.WithIndex(i)
		}
		vals[i] = v
	}
	fr.numeric[c.label] = vals
	return vals, nil
}

// checkNames 在求值前确认表达式引用的变量均已定义
func (fr *frame) checkNames(n node) error {
	switch x := n.(type) {
	case *nameNode:
		if !fr.defined(x.name) {
			return covariate.Errorf(covariate.KindFormula, "undefined covariate %q", x.name)
		}
	case *callNode:
		for _, a := range x.args {
			if err := fr.checkNames(a); err != nil {
				return err
			}
		}
	case *binNode:
		if err := fr.checkNames(x.l); err != nil {
			return err
		}
		return fr.checkNames(x.r)
	case *negNode:
		return fr.checkNames(x.x)
	}
	return nil
}

// eval 对单行求算术表达式；缺失值与非数值变量返回分类错误
func eval(n node, row covariate.MatchedRow) (float64, *covariate.Error) {
	switch x := n.(type) {
	case *numNode:
		return x.val, nil
	case *nameNode:
		v, ok := lookup(row, x.name)
		if !ok || v.Missing() {
			return 0, covariate.Errorf(covariate.KindNAInExpansion, "missing value for %q", x.name)
		}
		if v.IsLevel {
			return 0, covariate.Errorf(covariate.KindFormula, "categorical covariate %q used in arithmetic", x.name)
		}
		return v.Num, nil
	case *negNode:
		v, err := eval(x.x, row)
		return -v, err
	case *binNode:
		l, err := eval(x.l, row)
		if err != nil {
			return 0, err
		}
		r, err := eval(x.r, row)
		if err != nil {
			return 0, err
		}
		switch x.op {
		case '+':
			return l + r, nil
		case '-':
			return l - r, nil
		case '*':
			return l * r, nil
		case '/':
			return l / r, nil
		case '^':
			return math.Pow(l, r), nil
		}
		return 0, covariate.Errorf(covariate.KindFormula, "operator %c not allowed in arithmetic", x.op)
	case *callNode:
		if len(x.args) != 1 || !transforms[x.fn] {
			return 0, covariate.Errorf(covariate.KindFormula, "unsupported call %s in arithmetic", x.render())
		}
		v, err := eval(x.args[0], row)
		if err != nil {
			return 0, err
		}
		switch x.fn {
		case "log":
			return math.Log(v), nil
		case "log10":
			return math.Log10(v), nil
		case "log2":
			return math.Log2(v), nil
		case "sqrt":
			return math.Sqrt(v), nil
		case "exp":
			return math.Exp(v), nil
		default:
			return math.Abs(v), nil
		}
	}
	return 0, covariate.Errorf(covariate.KindFormula, "unsupported expression %s", n.render())
}
