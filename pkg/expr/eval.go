// Package expr 实现条件与模板中使用的表达式子集
//
// 支持的语法：字面量（数字、字符串、true/false/none、列表、字典）、变量与属性/下标访问、
// 比较运算、and/or/not、in/not in、is [not] <test>、+ - * / // % ~、过滤器以及
// "a if cond else b" 条件表达式。引用未定义的变量（除了 is defined 和 default 过滤器）
// 返回 *UndefinedError。
package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

// Env 变量查找接口
type Env interface {
	Lookup(name string) (interface{}, bool)
}

// MapEnv 基于 map 的变量环境
type MapEnv map[string]interface{}

// Lookup 查找变量
func (m MapEnv) Lookup(name string) (interface{}, bool) {
	v, ok := m[name]
	return v, ok
}

// Expr 编译后的表达式
type Expr struct {
	src  string
	root node
}

var cache sync.Map // map[string]*Expr

// Compile 编译表达式，相同源码复用编译结果
func Compile(src string) (*Expr, error) {
	src = strings.TrimSpace(src)
	if cached, ok := cache.Load(src); ok {
		return cached.(*Expr), nil
	}
	if src == "" {
		return nil, &SyntaxError{Expr: src, Msg: "empty expression"}
	}
	root, err := parse(src)
	if err != nil {
		return nil, err
	}
	e := &Expr{src: src, root: root}
	cache.Store(src, e)
	return e, nil
}

// String 返回表达式源码
func (e *Expr) String() string { return e.src }

// Eval 求值
func (e *Expr) Eval(env Env) (Value, error) {
	if env == nil {
		env = MapEnv{}
	}
	return e.root.eval(env)
}

// EvalBool 求值并做真值判断
func (e *Expr) EvalBool(env Env) (bool, error) {
	v, err := e.Eval(env)
	if err != nil {
		return false, err
	}
	return v.Truthy()
}

// Eval 编译并求值
func Eval(src string, env Env) (Value, error) {
	e, err := Compile(src)
	if err != nil {
		return Value{}, err
	}
	return e.Eval(env)
}

// EvalBool 编译并做真值判断，常用于 when 条件
func EvalBool(src string, env Env) (bool, error) {
	e, err := Compile(src)
	if err != nil {
		return false, err
	}
	return e.EvalBool(env)
}

func (n *literalNode) eval(Env) (Value, error) { return n.v, nil }

func (n *identNode) eval(env Env) (Value, error) {
	v, ok := env.Lookup(n.name)
	if !ok {
		return Undefined(n.name), nil
	}
	return FromGo(v), nil
}

func (n *attrNode) eval(env Env) (Value, error) {
	x, err := n.x.eval(env)
	if err != nil {
		return Value{}, err
	}
	return member(x, n.name, pathOf(n.x)+"."+n.name), nil
}

func (n *indexNode) eval(env Env) (Value, error) {
	x, err := n.x.eval(env)
	if err != nil {
		return Value{}, err
	}
	idx, err := n.idx.eval(env)
	if err != nil {
		return Value{}, err
	}
	if idx.IsUndefined() {
		return Value{}, &UndefinedError{Name: idx.name}
	}
	return member(x, idx.String(), pathOf(n.x)+"["+idx.String()+"]"), nil
}

// member 取 map 的键或列表/字符串的下标，缺失时返回未定义值
func member(x Value, key, path string) Value {
	switch x.kind {
	case KindUndefined:
		return x
	case KindMap:
		if v, ok := x.m[key]; ok {
			return FromGo(v)
		}
	case KindList:
		if i, err := strconv.Atoi(key); err == nil {
			if i < 0 {
				i += len(x.list)
			}
			if i >= 0 && i < len(x.list) {
				return FromGo(x.list[i])
			}
		}
	case KindString:
		runes := []rune(x.s)
		if i, err := strconv.Atoi(key); err == nil {
			if i < 0 {
				i += len(runes)
			}
			if i >= 0 && i < len(runes) {
				return String(string(runes[i]))
			}
		}
	}
	return Undefined(path)
}

func pathOf(n node) string {
	switch x := n.(type) {
	case *identNode:
		return x.name
	case *attrNode:
		return pathOf(x.x) + "." + x.name
	case *indexNode:
		return pathOf(x.x) + "[...]"
	default:
		return "<expr>"
	}
}

func (n *unaryNode) eval(env Env) (Value, error) {
	x, err := n.x.eval(env)
	if err != nil {
		return Value{}, err
	}
	switch n.op {
	case "not":
		b, err := x.Truthy()
		if err != nil {
			return Value{}, err
		}
		return Bool(!b), nil
	default:
		if x.IsUndefined() {
			return Value{}, &UndefinedError{Name: x.name}
		}
		f, ok := x.toNumber()
		if !ok {
			return Value{}, fmt.Errorf("bad operand type for unary %s: %s", n.op, x.kind)
		}
		if n.op == "-" {
			f = -f
		}
		return Number(f), nil
	}
}

func (n *binaryNode) eval(env Env) (Value, error) {
	l, err := n.l.eval(env)
	if err != nil {
		return Value{}, err
	}

	// and/or 短路并返回操作数本身
	switch n.op {
	case "and", "or":
		b, err := l.Truthy()
		if err != nil {
			return Value{}, err
		}
		if (n.op == "and") != b {
			return l, nil
		}
		return n.r.eval(env)
	}

	r, err := n.r.eval(env)
	if err != nil {
		return Value{}, err
	}
	if l.IsUndefined() {
		return Value{}, &UndefinedError{Name: l.name}
	}
	if r.IsUndefined() {
		return Value{}, &UndefinedError{Name: r.name}
	}

	switch n.op {
	case "==":
		return Bool(Equal(l, r)), nil
	case "!=":
		return Bool(!Equal(l, r)), nil
	case "<", ">", "<=", ">=":
		c, err := Compare(l, r)
		if err != nil {
			return Value{}, err
		}
		switch n.op {
		case "<":
			return Bool(c < 0), nil
		case ">":
			return Bool(c > 0), nil
		case "<=":
			return Bool(c <= 0), nil
		default:
			return Bool(c >= 0), nil
		}
	case "in", "not in":
		ok, err := Contains(r, l)
		if err != nil {
			return Value{}, err
		}
		return Bool(ok == (n.op == "in")), nil
	case "~":
		return String(l.String() + r.String()), nil
	case "+":
		switch {
		case l.kind == KindString && r.kind == KindString:
			return String(l.s + r.s), nil
		case l.kind == KindList && r.kind == KindList:
			out := make([]interface{}, 0, len(l.list)+len(r.list))
			return List(append(append(out, l.list...), r.list...)), nil
		}
	}
	return arith(n.op, l, r)
}

func arith(op string, l, r Value) (Value, error) {
	a, aok := l.toNumber()
	b, bok := r.toNumber()
	if !aok || !bok {
		return Value{}, fmt.Errorf("unsupported operand types for %s: %s and %s", op, l.kind, r.kind)
	}
	switch op {
	case "+":
		return Number(a + b), nil
	case "-":
		return Number(a - b), nil
	case "*":
		return Number(a * b), nil
	case "/", "//", "%":
		if b == 0 {
			return Value{}, fmt.Errorf("division by zero")
		}
		switch op {
		case "/":
			return Number(a / b), nil
		case "//":
			return Number(math.Floor(a / b)), nil
		default:
			return Number(a - b*math.Floor(a/b)), nil
		}
	}
	return Value{}, fmt.Errorf("unknown operator %s", op)
}

func (n *condNode) eval(env Env) (Value, error) {
	c, err := n.cond.eval(env)
	if err != nil {
		return Value{}, err
	}
	b, err := c.Truthy()
	if err != nil {
		return Value{}, err
	}
	if b {
		return n.then.eval(env)
	}
	if n.els == nil {
		return Null(), nil
	}
	return n.els.eval(env)
}

func (n *listNode) eval(env Env) (Value, error) {
	items := make([]interface{}, len(n.elems))
	for i, el := range n.elems {
		v, err := el.eval(env)
		if err != nil {
			return Value{}, err
		}
		if v.IsUndefined() {
			return Value{}, &UndefinedError{Name: v.name}
		}
		items[i] = v.Interface()
	}
	return List(items), nil
}

func (n *dictNode) eval(env Env) (Value, error) {
	m := make(map[string]interface{}, len(n.keys))
	for i := range n.keys {
		k, err := n.keys[i].eval(env)
		if err != nil {
			return Value{}, err
		}
		v, err := n.vals[i].eval(env)
		if err != nil {
			return Value{}, err
		}
		if k.IsUndefined() {
			return Value{}, &UndefinedError{Name: k.name}
		}
		if v.IsUndefined() {
			return Value{}, &UndefinedError{Name: v.name}
		}
		m[k.String()] = v.Interface()
	}
	return Map(m), nil
}

func (n *filterNode) eval(env Env) (Value, error) {
	f, ok := lookupFilter(n.name)
	if !ok {
		return Value{}, &UnknownFilterError{Name: n.name}
	}
	x, err := n.x.eval(env)
	if err != nil {
		return Value{}, err
	}
	if x.IsUndefined() && !f.acceptsUndefined {
		return Value{}, &UndefinedError{Name: x.name}
	}
	args := make([]Value, len(n.args))
	for i, a := range n.args {
		if args[i], err = a.eval(env); err != nil {
			return Value{}, err
		}
		if args[i].IsUndefined() {
			return Value{}, &UndefinedError{Name: args[i].name}
		}
	}
	out, err := f.fn(x, args)
	if err != nil {
		return Value{}, fmt.Errorf("filter %s: %w", n.name, err)
	}
	return out, nil
}

func (n *testNode) eval(env Env) (Value, error) {
	x, err := n.x.eval(env)
	if err != nil {
		return Value{}, err
	}
	args := make([]Value, len(n.args))
	for i, a := range n.args {
		if args[i], err = a.eval(env); err != nil {
			return Value{}, err
		}
	}
	ok, err := runTest(n.name, x, args)
	if err != nil {
		return Value{}, err
	}
	return Bool(ok != n.negate), nil
}

// UnknownFilterError 表达式使用了未注册的过滤器
type UnknownFilterError struct {
	Name string
}

func (e *UnknownFilterError) Error() string {
	return fmt.Sprintf("no filter named '%s'", e.Name)
}
