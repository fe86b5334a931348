package covariate

import (
	"errors"
	"fmt"
	"strings"
)

// Kind：致命错误分类；本层不做重试，所有错误都指向调用方需修正的前置条件
type Kind string

const (
	KindInputShape         Kind = "InputShapeError"
	KindMissingYear        Kind = "MissingYearCoverage"
	KindEmptyReference     Kind = "EmptyReferenceSet"
	KindUnresolved         Kind = "UnresolvedObservation"
	KindFormula            Kind = "FormulaExpansionError"
	KindNAInExpansion      Kind = "UnsupportedNAInExpansion"
	KindGridBlockMismatch  Kind = "GridBlockSizeMismatch"
	KindIncompleteAssembly Kind = "IncompleteAssembly"
)

// 哨兵错误：配合 errors.Is 按分类判断
var (
	ErrInputShape         = &Error{Kind: KindInputShape}
	ErrMissingYear        = &Error{Kind: KindMissingYear}
	ErrEmptyReference     = &Error{Kind: KindEmptyReference}
	ErrUnresolved         = &Error{Kind: KindUnresolved}
	ErrFormula            = &Error{Kind: KindFormula}
	ErrNAInExpansion      = &Error{Kind: KindNAInExpansion}
	ErrGridBlockMismatch  = &Error{Kind: KindGridBlockMismatch}
	ErrIncompleteAssembly = &Error{Kind: KindIncompleteAssembly}
)

// 文档注释：带上下文的分类错误
// 背景：年份、行号等定位信息随错误返回，便于调用方修正输入数据。
// 约束：HasYear/HasIndex 区分“第 0 行/0 年”与“未设置”，未设置时不输出。
type Error struct {
	Kind     Kind
	Year     int
	HasYear  bool
	Index    int
	HasIndex bool
	Msg      string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.HasYear {
		fmt.Fprintf(&b, " year=%d", e.Year)
	}
	if e.HasIndex {
		fmt.Fprintf(&b, " index=%d", e.Index)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is 只比较分类，使哨兵错误可匹配任意携带上下文的同类错误
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Errorf 构造指定分类的错误
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WithYear 附加年份
func (e *Error) WithYear(year int) *Error {
	e.Year, e.HasYear = year, true
	return e
}

// WithIndex 附加行号
func (e *Error) WithIndex(i int) *Error {
	e.Index, e.HasIndex = i, true
	return e
}

// Wrap 附加底层错误
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// KindOf 返回错误链中第一个分类错误的类别；非分类错误返回空串
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
