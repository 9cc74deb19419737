// Package template 渲染任务参数中的 {{ }} 表达式与 {% %} 控制块
//
// 只包含一个表达式的字符串（"{{ port }}"）返回表达式的原生值；
// 混合文本逐段求值后拼接为字符串；含 {% %} 的字符串交给 pongo2 渲染。
package template

import (
	"errors"
	"fmt"
	"strings"

	"github.com/flosch/pongo2/v6"

	perrors "github.com/jimyag/playcore/pkg/errors"
	"github.com/jimyag/playcore/pkg/expr"
)

// Vars 渲染使用的变量环境，vars.Snapshot 实现了该接口
type Vars interface {
	expr.Env
	Vars() map[string]interface{}
}

// IsTemplate 判断字符串是否包含模板语法
func IsTemplate(s string) bool {
	return strings.Contains(s, "{{") || strings.Contains(s, "{%")
}

// Render 递归渲染字符串、列表与 map，返回新值，输入不被修改
func Render(v interface{}, env Vars) (interface{}, error) {
	switch x := v.(type) {
	case string:
		return RenderString(x, env)
	case map[string]interface{}:
		return RenderMap(x, env)
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, item := range x {
			r, err := Render(item, env)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case []string:
		out := make([]interface{}, len(x))
		for i, item := range x {
			r, err := RenderString(item, env)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

// RenderMap 渲染 map 中的全部值
func RenderMap(m map[string]interface{}, env Vars) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		r, err := Render(v, env)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = r
	}
	return out, nil
}

// RenderString 渲染单个字符串，整串是单个表达式时返回原生值
func RenderString(s string, env Vars) (interface{}, error) {
	if !IsTemplate(s) {
		return s, nil
	}
	if strings.Contains(s, "{%") {
		return renderPongo(s, env)
	}

	segs, err := split(s)
	if err != nil {
		return nil, err
	}

	if len(segs) == 1 && segs[0].expr {
		v, err := evalSegment(segs[0].text, env)
		if err != nil {
			return nil, err
		}
		return v, nil
	}

	var b strings.Builder
	for _, seg := range segs {
		if !seg.expr {
			b.WriteString(seg.text)
			continue
		}
		v, err := evalSegment(seg.text, env)
		if err != nil {
			return nil, err
		}
		b.WriteString(expr.FromGo(v).String())
	}
	return b.String(), nil
}

// RenderText 渲染并总是返回字符串
func RenderText(s string, env Vars) (string, error) {
	v, err := RenderString(s, env)
	if err != nil {
		return "", err
	}
	return expr.FromGo(v).String(), nil
}

// Condition 求值 when/changed_when/failed_when 条件
// 条件本身是裸表达式，兼容写成 "{{ x }}" 的形式。
func Condition(cond string, env Vars) (bool, error) {
	cond = strings.TrimSpace(cond)
	if strings.HasPrefix(cond, "{{") && strings.HasSuffix(cond, "}}") {
		cond = strings.TrimSpace(cond[2 : len(cond)-2])
	}
	ok, err := expr.EvalBool(cond, env)
	if err != nil {
		return false, wrapError(cond, err)
	}
	return ok, nil
}

func evalSegment(src string, env Vars) (interface{}, error) {
	v, err := expr.Eval(src, env)
	if err == nil {
		if v.IsUndefined() {
			return nil, perrors.NewUndefinedVariableError("", v.Name())
		}
		return v.Interface(), nil
	}

	// expr 不认识的过滤器或语法交给 pongo2
	var fe *expr.UnknownFilterError
	var se *expr.SyntaxError
	if errors.As(err, &fe) && pongo2.FilterExists(fe.Name) || errors.As(err, &se) {
		out, perr := renderPongo("{{ "+src+" }}", env)
		if perr == nil {
			return out, nil
		}
	}
	return nil, wrapError(src, err)
}

func wrapError(src string, err error) error {
	var uerr *expr.UndefinedError
	if errors.As(err, &uerr) {
		return perrors.NewUndefinedVariableError("", uerr.Name)
	}
	return fmt.Errorf("template error in %q: %w", src, err)
}

func renderPongo(s string, env Vars) (string, error) {
	tpl, err := pongo2.FromString(s)
	if err != nil {
		return "", fmt.Errorf("template error in %q: %w", s, err)
	}
	var ctx pongo2.Context
	if env != nil {
		ctx = pongo2.Context(env.Vars())
	}
	out, err := tpl.Execute(ctx)
	if err != nil {
		return "", fmt.Errorf("template error in %q: %w", s, err)
	}
	return out, nil
}

type segment struct {
	text string
	expr bool
}

// split 把字符串切分为文本段与 {{ }} 表达式段，表达式内的引号会被跳过
func split(s string) ([]segment, error) {
	var segs []segment
	trimmed := strings.TrimSpace(s)
	single := strings.HasPrefix(trimmed, "{{")

	rest := s
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			if rest != "" {
				segs = append(segs, segment{text: rest})
			}
			break
		}
		if start > 0 {
			segs = append(segs, segment{text: rest[:start]})
		}
		end := closing(rest[start+2:])
		if end < 0 {
			return nil, fmt.Errorf("template error in %q: unclosed '{{'", s)
		}
		segs = append(segs, segment{text: rest[start+2 : start+2+end], expr: true})
		rest = rest[start+2+end+2:]
	}

	// "  {{ x }}  " 视为单个表达式
	if single {
		var exprs []segment
		for _, seg := range segs {
			if seg.expr {
				exprs = append(exprs, seg)
			} else if strings.TrimSpace(seg.text) != "" {
				return segs, nil
			}
		}
		if len(exprs) == 1 {
			return exprs, nil
		}
	}
	return segs, nil
}

// closing 返回 "}}" 在 s 中的位置，跳过字符串字面量
func closing(s string) int {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '}' && i+1 < len(s) && s[i+1] == '}':
			return i
		}
	}
	return -1
}
