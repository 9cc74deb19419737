package template

import (
	"fmt"
	"sync"

	"github.com/Masterminds/sprig/v3"
	"github.com/flosch/pongo2/v6"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/jimyag/playcore/pkg/expr"
)

var registerOnce sync.Once

func init() {
	registerFilters()
}

// registerFilters 把 sprig 提供的函数按 Ansible 的过滤器名注册到 expr 与 pongo2
func registerFilters() {
	registerOnce.Do(func() {
		for name, fn := range sprigFilters() {
			expr.RegisterFilter(name, fn)
			if !pongo2.FilterExists(name) {
				_ = pongo2.RegisterFilter(name, pongoAdapter(fn))
			}
		}
	})
}

func sprigFilters() map[string]expr.FilterFunc {
	funcs := sprig.TxtFuncMap()
	filters := make(map[string]expr.FilterFunc)

	strFn := func(sprigName, name string) {
		if fn, ok := funcs[sprigName].(func(string) string); ok {
			filters[name] = func(in expr.Value, _ []expr.Value) (expr.Value, error) {
				return expr.String(fn(in.String())), nil
			}
		}
	}
	strFn("b64enc", "b64encode")
	strFn("b64dec", "b64decode")
	strFn("base", "basename")
	strFn("dir", "dirname")
	strFn("sha1sum", "checksum")

	if toJSON, ok := funcs["toJson"].(func(interface{}) string); ok {
		filters["to_json"] = func(in expr.Value, _ []expr.Value) (expr.Value, error) {
			return expr.String(toJSON(in.Interface())), nil
		}
	}
	if toPretty, ok := funcs["toPrettyJson"].(func(interface{}) string); ok {
		filters["to_nice_json"] = func(in expr.Value, _ []expr.Value) (expr.Value, error) {
			return expr.String(toPretty(in.Interface())), nil
		}
	}

	filters["to_yaml"] = func(in expr.Value, _ []expr.Value) (expr.Value, error) {
		out, err := yaml.Marshal(in.Interface())
		if err != nil {
			return expr.Value{}, err
		}
		return expr.String(string(out)), nil
	}

	sha1, ok1 := funcs["sha1sum"].(func(string) string)
	sha256, ok256 := funcs["sha256sum"].(func(string) string)
	if ok1 && ok256 {
		filters["hash"] = func(in expr.Value, args []expr.Value) (expr.Value, error) {
			algo := "sha1"
			if len(args) > 0 {
				algo = args[0].String()
			}
			switch algo {
			case "sha1":
				return expr.String(sha1(in.String())), nil
			case "sha256":
				return expr.String(sha256(in.String())), nil
			default:
				return expr.Value{}, fmt.Errorf("unsupported hash type %q", algo)
			}
		}
	}

	if replace, ok := funcs["regexReplaceAll"].(func(string, string, string) string); ok {
		filters["regex_replace"] = func(in expr.Value, args []expr.Value) (expr.Value, error) {
			if len(args) == 0 {
				return expr.Value{}, fmt.Errorf("regex_replace expects a pattern")
			}
			repl := ""
			if len(args) > 1 {
				repl = args[1].String()
			}
			return expr.String(replace(args[0].String(), in.String(), repl)), nil
		}
	}

	if indent, ok := funcs["indent"].(func(int, string) string); ok {
		filters["indent"] = func(in expr.Value, args []expr.Value) (expr.Value, error) {
			n := 4
			if len(args) > 0 {
				v, err := cast.ToIntE(args[0].Interface())
				if err != nil {
					return expr.Value{}, fmt.Errorf("indent width: %w", err)
				}
				n = v
			}
			return expr.String(indent(n, in.String())), nil
		}
	}

	return filters
}

// pongoAdapter 让同一个过滤器实现也能在 {% %} 模板中使用
func pongoAdapter(fn expr.FilterFunc) pongo2.FilterFunction {
	return func(in *pongo2.Value, param *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
		var args []expr.Value
		if param != nil && !param.IsNil() {
			args = append(args, expr.FromGo(param.Interface()))
		}
		out, err := fn(expr.FromGo(in.Interface()), args)
		if err != nil {
			return nil, &pongo2.Error{Sender: "filter", OrigError: err}
		}
		return pongo2.AsValue(out.Interface()), nil
	}
}
