package expr

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cast"
)

// FilterFunc 过滤器实现，in 为管道左侧的值
type FilterFunc func(in Value, args []Value) (Value, error)

type filter struct {
	fn               FilterFunc
	acceptsUndefined bool
}

var (
	filtersMu sync.RWMutex
	filters   = map[string]filter{}
)

// RegisterFilter 注册过滤器，同名覆盖
func RegisterFilter(name string, fn FilterFunc) {
	filtersMu.Lock()
	defer filtersMu.Unlock()
	filters[name] = filter{fn: fn}
}

// HasFilter 是否注册了某个过滤器
func HasFilter(name string) bool {
	_, ok := lookupFilter(name)
	return ok
}

func lookupFilter(name string) (filter, bool) {
	filtersMu.RLock()
	defer filtersMu.RUnlock()
	f, ok := filters[name]
	return f, ok
}

func init() {
	filters["default"] = filter{fn: filterDefault, acceptsUndefined: true}
	filters["d"] = filters["default"]
	filters["mandatory"] = filter{fn: filterMandatory, acceptsUndefined: true}

	builtin := map[string]FilterFunc{
		"length":     filterLength,
		"count":      filterLength,
		"lower":      stringFilter(strings.ToLower),
		"upper":      stringFilter(strings.ToUpper),
		"trim":       stringFilter(strings.TrimSpace),
		"capitalize": stringFilter(capitalize),
		"replace":    filterReplace,
		"split":      filterSplit,
		"bool":       filterBool,
		"int":        filterInt,
		"float":      filterFloat,
		"string":     func(in Value, _ []Value) (Value, error) { return String(in.String()), nil },
		"list":       filterList,
		"first":      filterFirst,
		"last":       filterLast,
		"join":       filterJoin,
		"unique":     filterUnique,
		"sort":       filterSort,
		"min":        extremum(-1),
		"max":        extremum(1),
		"abs":        filterAbs,
	}
	for name, fn := range builtin {
		filters[name] = filter{fn: fn}
	}
}

func filterDefault(in Value, args []Value) (Value, error) {
	def := String("")
	if len(args) > 0 {
		def = args[0]
	}
	if in.IsUndefined() {
		return def, nil
	}
	// default(x, true) 对假值也生效
	if len(args) > 1 {
		if b, _ := args[1].Truthy(); b {
			if t, err := in.Truthy(); err == nil && !t {
				return def, nil
			}
		}
	}
	return in, nil
}

func filterMandatory(in Value, args []Value) (Value, error) {
	if in.IsUndefined() {
		if len(args) > 0 {
			return Value{}, fmt.Errorf("%s", args[0].String())
		}
		return Value{}, &UndefinedError{Name: in.name}
	}
	return in, nil
}

func filterLength(in Value, _ []Value) (Value, error) {
	n, err := in.Len()
	if err != nil {
		return Value{}, err
	}
	return Number(float64(n)), nil
}

func stringFilter(fn func(string) string) FilterFunc {
	return func(in Value, _ []Value) (Value, error) {
		return String(fn(in.String())), nil
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(strings.ToLower(s))
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

func filterReplace(in Value, args []Value) (Value, error) {
	if len(args) < 2 {
		return Value{}, fmt.Errorf("replace expects 2 arguments")
	}
	return String(strings.ReplaceAll(in.String(), args[0].String(), args[1].String())), nil
}

func filterSplit(in Value, args []Value) (Value, error) {
	var parts []string
	if len(args) == 0 {
		parts = strings.Fields(in.String())
	} else {
		parts = strings.Split(in.String(), args[0].String())
	}
	items := make([]interface{}, len(parts))
	for i, p := range parts {
		items[i] = p
	}
	return List(items), nil
}

func filterBool(in Value, _ []Value) (Value, error) {
	if in.kind == KindString {
		switch strings.ToLower(strings.TrimSpace(in.s)) {
		case "yes", "y", "on":
			return Bool(true), nil
		case "no", "n", "off", "":
			return Bool(false), nil
		}
		b, err := cast.ToBoolE(strings.TrimSpace(in.s))
		if err != nil {
			return Bool(false), nil
		}
		return Bool(b), nil
	}
	b, err := in.Truthy()
	return Bool(b), err
}

func filterInt(in Value, args []Value) (Value, error) {
	f, ok := in.toNumber()
	if !ok {
		if len(args) > 0 {
			return args[0], nil
		}
		return Number(0), nil
	}
	return Number(math.Trunc(f)), nil
}

func filterFloat(in Value, args []Value) (Value, error) {
	f, ok := in.toNumber()
	if !ok {
		if len(args) > 0 {
			return args[0], nil
		}
		return Number(0), nil
	}
	return Number(f), nil
}

func filterList(in Value, _ []Value) (Value, error) {
	switch in.kind {
	case KindList:
		return in, nil
	case KindMap:
		keys := in.Keys()
		items := make([]interface{}, len(keys))
		for i, k := range keys {
			items[i] = k
		}
		return List(items), nil
	case KindString:
		runes := []rune(in.s)
		items := make([]interface{}, len(runes))
		for i, r := range runes {
			items[i] = string(r)
		}
		return List(items), nil
	default:
		return Value{}, fmt.Errorf("%s is not iterable", in.kind)
	}
}

func filterFirst(in Value, _ []Value) (Value, error) {
	l, err := filterList(in, nil)
	if err != nil {
		return Value{}, err
	}
	if len(l.list) == 0 {
		return Undefined("first"), nil
	}
	return FromGo(l.list[0]), nil
}

func filterLast(in Value, _ []Value) (Value, error) {
	l, err := filterList(in, nil)
	if err != nil {
		return Value{}, err
	}
	if len(l.list) == 0 {
		return Undefined("last"), nil
	}
	return FromGo(l.list[len(l.list)-1]), nil
}

func filterJoin(in Value, args []Value) (Value, error) {
	if in.kind != KindList {
		return String(in.String()), nil
	}
	sep := ""
	if len(args) > 0 {
		sep = args[0].String()
	}
	parts := make([]string, len(in.list))
	for i, item := range in.list {
		parts[i] = FromGo(item).String()
	}
	return String(strings.Join(parts, sep)), nil
}

func filterUnique(in Value, _ []Value) (Value, error) {
	l, err := filterList(in, nil)
	if err != nil {
		return Value{}, err
	}
	var out []interface{}
outer:
	for _, item := range l.list {
		for _, seen := range out {
			if Equal(FromGo(item), FromGo(seen)) {
				continue outer
			}
		}
		out = append(out, item)
	}
	return List(out), nil
}

func filterSort(in Value, args []Value) (Value, error) {
	l, err := filterList(in, nil)
	if err != nil {
		return Value{}, err
	}
	reverse := len(args) > 0 && Equal(args[0], Bool(true))
	items := append([]interface{}(nil), l.list...)
	var sortErr error
	sort.SliceStable(items, func(i, j int) bool {
		c, err := Compare(FromGo(items[i]), FromGo(items[j]))
		if err != nil && sortErr == nil {
			sortErr = err
		}
		if reverse {
			return c > 0
		}
		return c < 0
	})
	if sortErr != nil {
		return Value{}, sortErr
	}
	return List(items), nil
}

func extremum(sign int) FilterFunc {
	return func(in Value, _ []Value) (Value, error) {
		l, err := filterList(in, nil)
		if err != nil {
			return Value{}, err
		}
		if len(l.list) == 0 {
			return Undefined("empty sequence"), nil
		}
		best := FromGo(l.list[0])
		for _, item := range l.list[1:] {
			v := FromGo(item)
			c, err := Compare(v, best)
			if err != nil {
				return Value{}, err
			}
			if c == sign {
				best = v
			}
		}
		return best, nil
	}
}

func filterAbs(in Value, _ []Value) (Value, error) {
	f, ok := in.toNumber()
	if !ok {
		return Value{}, fmt.Errorf("bad operand type for abs: %s", in.kind)
	}
	return Number(math.Abs(f)), nil
}

// runTest 实现 "x is name(args)"
func runTest(name string, x Value, args []Value) (bool, error) {
	switch name {
	case "defined":
		return !x.IsUndefined(), nil
	case "undefined":
		return x.IsUndefined(), nil
	}
	if x.IsUndefined() {
		return false, &UndefinedError{Name: x.name}
	}

	switch name {
	case "none":
		return x.kind == KindNull, nil
	case "string":
		return x.kind == KindString, nil
	case "number":
		return x.kind == KindNumber, nil
	case "boolean":
		return x.kind == KindBool, nil
	case "mapping":
		return x.kind == KindMap, nil
	case "sequence", "iterable":
		return x.kind == KindList || x.kind == KindString || x.kind == KindMap, nil
	case "true":
		return x.kind == KindBool && x.b, nil
	case "false":
		return x.kind == KindBool && !x.b, nil
	case "even", "odd":
		f, ok := x.toNumber()
		if !ok {
			return false, fmt.Errorf("%s test expects a number", name)
		}
		even := math.Mod(f, 2) == 0
		return even == (name == "even"), nil
	case "divisibleby":
		if len(args) == 0 {
			return false, fmt.Errorf("divisibleby expects an argument")
		}
		a, aok := x.toNumber()
		b, bok := args[0].toNumber()
		if !aok || !bok || b == 0 {
			return false, fmt.Errorf("divisibleby expects non-zero numbers")
		}
		return math.Mod(a, b) == 0, nil
	case "match", "search", "regex":
		if len(args) == 0 {
			return false, fmt.Errorf("%s expects a pattern", name)
		}
		pattern := args[0].String()
		if name == "match" && !strings.HasPrefix(pattern, "^") {
			pattern = "^(?:" + pattern + ")"
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, err
		}
		return re.MatchString(x.String()), nil

	// 注册结果测试
	case "failed", "failure":
		return resultFlag(name, x, "failed")
	case "succeeded", "success", "successful":
		failed, err := resultFlag(name, x, "failed")
		return !failed, err
	case "changed", "change":
		return resultFlag(name, x, "changed")
	case "skipped", "skip":
		return resultFlag(name, x, "skipped")
	}
	return false, fmt.Errorf("no test named '%s'", name)
}

func resultFlag(test string, x Value, key string) (bool, error) {
	if x.kind != KindMap {
		return false, fmt.Errorf("the '%s' test expects a task result, got %s", test, x.kind)
	}
	v, ok := x.m[key]
	if !ok {
		return false, nil
	}
	return FromGo(v).Truthy()
}
