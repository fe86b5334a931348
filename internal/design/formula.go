package design

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// 文档注释：模型公式的词法与语法分析
// 背景：公式语法取 R 公式的常用子集；算术 I(...) 与项运算共用同一套优先级。
// 约束：优先级由低到高为 + -、* /、:、一元负号、^；^ 右结合，指数可带负号。
type node interface{ render() string }

type nameNode struct{ name string }

type numNode struct{ val float64 }

type callNode struct {
	fn   string
	args []node
}

type binNode struct {
	op   byte
	l, r node
}

type negNode struct{ x node }

func (n *nameNode) render() string { return n.name }

func (n *numNode) render() string { return strconv.FormatFloat(n.val, 'g', -1, 64) }

func (n *callNode) render() string {
	parts := make([]string, len(n.args))
	for i, a := range n.args {
		parts[i] = a.render()
	}
	return n.fn + "(" + strings.Join(parts, ", ") + ")"
}

func (n *binNode) render() string {
	l, r := n.l.render(), n.r.render()
	if _, neg := n.l.(*negNode); needParens(n.l, n.op) || (neg && n.op == '^') {
		l = "(" + l + ")"
	}
	if needParens(n.r, n.op) || (isBin(n.r, n.op) && n.op != '^') {
		r = "(" + r + ")"
	}
	return l + string(n.op) + r
}

func (n *negNode) render() string {
	x := n.x.render()
	if b, ok := n.x.(*binNode); ok && b.op != '^' {
		x = "(" + x + ")"
	}
	return "-" + x
}

func isBin(n node, op byte) bool {
	b, ok := n.(*binNode)
	return ok && b.op == op
}

func needParens(child node, op byte) bool {
	b, ok := child.(*binNode)
	return ok && precedence(b.op) < precedence(op)
}

func precedence(op byte) int {
	switch op {
	case '+', '-':
		return 1
	case '*', '/':
		return 2
	case ':':
		return 3
	case '^':
		return 4
	}
	return 0
}

type token struct {
	kind byte // 'n' 数字, 'i' 标识符, 其他为运算符本身
	text string
	pos  int
}

func lex(src string) ([]token, error) {
	var out []token
	rs := []rune(src)
	for i := 0; i < len(rs); {
		c := rs[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case unicode.IsDigit(c) || (c == '.' && i+1 < len(rs) && unicode.IsDigit(rs[i+1])):
			j := i
			for j < len(rs) && (unicode.IsDigit(rs[j]) || rs[j] == '.' || rs[j] == 'e' || rs[j] == 'E' ||
				((rs[j] == '+' || rs[j] == '-') && j > i && (rs[j-1] == 'e' || rs[j-1] == 'E'))) {
				j++
			}
			out = append(out, token{kind: 'n', text: string(rs[i:j]), pos: i})
			i = j
		case unicode.IsLetter(c) || c == '_' || c == '.':
			j := i
			for j < len(rs) && (unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j]) || rs[j] == '_' || rs[j] == '.') {
				j++
			}
			out = append(out, token{kind: 'i', text: string(rs[i:j]), pos: i})
			i = j
		case c == '`':
			j := i + 1
			for j < len(rs) && rs[j] != '`' {
				j++
			}
			if j >= len(rs) {
				return nil, fmt.Errorf("unterminated backquote at %d", i)
			}
			out = append(out, token{kind: 'i', text: string(rs[i+1 : j]), pos: i})
			i = j + 1
		case strings.ContainsRune("~+-*/:^(),", c):
			out = append(out, token{kind: byte(c), text: string(c), pos: i})
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q at %d", c, i)
		}
	}
	return out, nil
}

type parser struct {
	toks []token
	pos  int
}

// parseFormula 解析“[~] 右侧”；左侧出现响应变量时报错
func parseFormula(src string) (node, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	for i, t := range toks {
		if t.kind == '~' {
			if i > 0 {
				return nil, fmt.Errorf("response %q not supported, covariate formulas are right-hand side only", toks[0].text)
			}
			toks = toks[1:]
			break
		}
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("empty formula")
	}
	p := &parser{toks: toks}
	n, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.toks) {
		t := p.toks[p.pos]
		return nil, fmt.Errorf("unexpected %q at %d", t.text, t.pos)
	}
	return n, nil
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) accept(kinds string) (byte, bool) {
	t, ok := p.peek()
	if ok && strings.IndexByte(kinds, t.kind) >= 0 {
		p.pos++
		return t.kind, true
	}
	return 0, false
}

func (p *parser) expr() (node, error) { return p.binary(1) }

// binary 按优先级逐层解析左结合运算
func (p *parser) binary(level int) (node, error) {
	if level > 3 {
		return p.unary()
	}
	ops := [...]string{"", "+-", "*/", ":"}[level]
	l, err := p.binary(level + 1)
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.accept(ops)
		if !ok {
			return l, nil
		}
		r, err := p.binary(level + 1)
		if err != nil {
			return nil, err
		}
		l = &binNode{op: op, l: l, r: r}
	}
}

func (p *parser) power() (node, error) {
	base, err := p.primary()
	if err != nil {
		return nil, err
	}
	if _, ok := p.accept("^"); ok {
		// 指数允许一元负号，如 2^-1；右结合
		exp, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &binNode{op: '^', l: base, r: exp}, nil
	}
	return base, nil
}

// unary：-x^2 解析为 -(x^2)
func (p *parser) unary() (node, error) {
	if _, ok := p.accept("-"); ok {
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &negNode{x: x}, nil
	}
	return p.power()
}

func (p *parser) primary() (node, error) {
	t, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("unexpected end of formula")
	}
	p.pos++
	switch t.kind {
	case 'n':
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q at %d", t.text, t.pos)
		}
		return &numNode{val: v}, nil
	case 'i':
		if _, ok := p.accept("("); !ok {
			return &nameNode{name: t.text}, nil
		}
		call := &callNode{fn: t.text}
		if _, ok := p.accept(")"); ok {
			return call, nil
		}
		for {
			a, err := p.expr()
			if err != nil {
				return nil, err
			}
			call.args = append(call.args, a)
			if _, ok := p.accept(","); ok {
				continue
			}
			if _, ok := p.accept(")"); !ok {
				return nil, fmt.Errorf("missing ) after arguments of %s", t.text)
			}
			return call, nil
		}
	case '(':
		n, err := p.expr()
		if err != nil {
			return nil, err
		}
		if _, ok := p.accept(")"); !ok {
			return nil, fmt.Errorf("missing ) for ( at %d", t.pos)
		}
		return n, nil
	}
	return nil, fmt.Errorf("unexpected %q at %d", t.text, t.pos)
}
