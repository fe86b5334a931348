package design

import (
	"fmt"
	"slices"
	"strings"
)

// component：项中的单个因子（变量、变换或算术表达式）
type component struct {
	label  string
	expr   node   // 数值求值用的表达式
	varRef string // 裸变量或 factor(x) 时为变量名，可按分类展开
	factor bool   // factor(x) 强制分类
}

// term：若干 component 的交互；单个 component 即主效应
type term struct {
	comps []component
}

func (t term) key() string {
	ks := make([]string, len(t.comps))
	for i, c := range t.comps {
		ks[i] = c.label
	}
	slices.Sort(ks)
	return strings.Join(ks, ":")
}

func (t term) label() string {
	ls := make([]string, len(t.comps))
	for i, c := range t.comps {
		ls[i] = c.label
	}
	return strings.Join(ls, ":")
}

// without 返回去掉第 i 个 component 后的边际项键
func (t term) without(i int) string {
	rest := term{comps: append(slices.Clone(t.comps[:i]), t.comps[i+1:]...)}
	return rest.key()
}

// cross 求两个项集合的交互，去重相同 component
func cross(a, b []term) []term {
	var out []term
	for _, x := range a {
		for _, y := range b {
			comps := slices.Clone(x.comps)
			for _, c := range y.comps {
				if !slices.ContainsFunc(comps, func(d component) bool { return d.label == c.label }) {
					comps = append(comps, c)
				}
			}
			out = appendUnique(out, term{comps: comps})
		}
	}
	return out
}

func appendUnique(ts []term, more ...term) []term {
	for _, t := range more {
		k := t.key()
		if !slices.ContainsFunc(ts, func(u term) bool { return u.key() == k }) {
			ts = append(ts, t)
		}
	}
	return ts
}

func removeTerms(ts []term, drop []term) []term {
	keys := make(map[string]bool, len(drop))
	for _, d := range drop {
		keys[d.key()] = true
	}
	return slices.DeleteFunc(ts, func(t term) bool { return keys[t.key()] })
}

// 文档注释：公式求值为有序项集与截距状态
// 背景：与 R 一致，截距由顶层的 0/1/-1 从左到右决定；项按交互阶数排序，同阶按首次出现顺序。
// 约束：括号不产生节点，(x + 1)、(x - 1) 在顶层加减链中照常生效；-a:b 视为移除 a:b。
// 截距与移除不能出现在交互运算的操作数内（如 a:(b + 1)），此时报错而不是静默忽略。
type model struct {
	terms     []term
	intercept bool
}

func buildModel(root node) (*model, error) {
	m := &model{intercept: true}
	if err := m.sum(root, true); err != nil {
		return nil, err
	}
	slices.SortStableFunc(m.terms, func(a, b term) int { return len(a.comps) - len(b.comps) })
	return m, nil
}

// sum 处理顶层的加减链；add 为假时表示从模型中移除
func (m *model) sum(n node, add bool) error {
	switch x := n.(type) {
	case *binNode:
		switch x.op {
		case '+':
			if err := m.sum(x.l, add); err != nil {
				return err
			}
			return m.sum(x.r, add)
		case '-':
			if err := m.sum(x.l, add); err != nil {
				return err
			}
			return m.sum(x.r, !add)
		case ':':
			if inner, ok := dropLeadingNeg(x); ok {
				return m.sum(inner, !add)
			}
		}
	case *negNode:
		return m.sum(x.x, !add)
	case *numNode:
		switch x.val {
		case 0:
			m.intercept = !add
		case 1:
			m.intercept = add
		default:
			return fmt.Errorf("numeric term %s is not allowed, use I(...) for arithmetic", x.render())
		}
		return nil
	}
	ts, err := termsOf(n)
	if err != nil {
		return err
	}
	if add {
		m.terms = appendUnique(m.terms, ts...)
	} else {
		m.terms = removeTerms(m.terms, ts)
	}
	return nil
}

// dropLeadingNeg 把 (-a):b:c 改写为 a:b:c；一元负号优先级高于 :
func dropLeadingNeg(b *binNode) (node, bool) {
	switch l := b.l.(type) {
	case *negNode:
		return &binNode{op: b.op, l: l.x, r: b.r}, true
	case *binNode:
		if l.op == ':' {
			if inner, ok := dropLeadingNeg(l); ok {
				return &binNode{op: b.op, l: inner, r: b.r}, true
			}
		}
	}
	return nil, false
}

// termsOf 将括号内或交互运算的子表达式展开为项集合
func termsOf(n node) ([]term, error) {
	switch x := n.(type) {
	case *nameNode:
		return []term{{comps: []component{{label: x.name, expr: x, varRef: x.name}}}}, nil
	case *callNode:
		c, err := callComponent(x)
		if err != nil {
			return nil, err
		}
		return []term{{comps: []component{c}}}, nil
	case *numNode:
		return nil, fmt.Errorf("intercept term %s only allowed at top level", x.render())
	case *negNode:
		return nil, fmt.Errorf("unexpected '-' inside %s", x.render())
	case *binNode:
		l, err := termsOf(x.l)
		if err != nil {
			return nil, err
		}
		switch x.op {
		case '^':
			num, ok := x.r.(*numNode)
			if !ok || num.val < 1 || num.val != float64(int(num.val)) {
				return nil, fmt.Errorf("interaction order in %s must be a positive integer", x.render())
			}
			out := slices.Clone(l)
			acc := l
			for k := 1; k < int(num.val); k++ {
				acc = cross(acc, l)
				out = appendUnique(out, acc...)
			}
			return out, nil
		}
		r, err := termsOf(x.r)
		if err != nil {
			return nil, err
		}
		switch x.op {
		case '+':
			return appendUnique(l, r...), nil
		case '-':
			return removeTerms(l, r), nil
		case ':':
			return cross(l, r), nil
		case '*':
			return appendUnique(appendUnique(l, r...), cross(l, r)...), nil
		case '/':
			// a/b 等价于 a + a:b
			return appendUnique(l, cross(l, r)...), nil
		}
	}
	return nil, fmt.Errorf("unsupported expression %s", n.render())
}

var transforms = map[string]bool{"log": true, "log10": true, "log2": true, "sqrt": true, "exp": true, "abs": true}

func callComponent(c *callNode) (component, error) {
	switch {
	case c.fn == "factor" || c.fn == "as.factor":
		if len(c.args) != 1 {
			return component{}, fmt.Errorf("%s takes one argument", c.fn)
		}
		v, ok := c.args[0].(*nameNode)
		if !ok {
			return component{}, fmt.Errorf("%s argument must be a covariate name", c.fn)
		}
		return component{label: c.render(), varRef: v.name, factor: true}, nil
	case c.fn == "I":
		if len(c.args) != 1 {
			return component{}, fmt.Errorf("I takes one argument")
		}
		return component{label: c.render(), expr: c.args[0]}, nil
	case transforms[c.fn]:
		if len(c.args) != 1 {
			return component{}, fmt.Errorf("%s takes one argument", c.fn)
		}
		return component{label: c.render(), expr: c}, nil
	}
	return component{}, fmt.Errorf("unknown function %s", c.fn)
}
