package expr

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// Kind 值类型
type Kind int

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value 表达式求值使用的带标签联合类型
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	list []interface{}
	m    map[string]interface{}

	// raw 保留来源的 Go 值，Interface() 时原样返回以避免类型丢失
	raw interface{}
	// name 对未定义值记录变量路径，用于错误信息
	name string
}

// Undefined 创建未定义值
func Undefined(name string) Value { return Value{kind: KindUndefined, name: name} }

// Null 空值
func Null() Value { return Value{kind: KindNull} }

// Bool 布尔值
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number 数值
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// String 字符串值
func String(s string) Value { return Value{kind: KindString, s: s} }

// List 列表值
func List(items []interface{}) Value { return Value{kind: KindList, list: items} }

// Map 映射值
func Map(m map[string]interface{}) Value { return Value{kind: KindMap, m: m} }

// FromGo 将任意 Go 值转换为 Value
func FromGo(v interface{}) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case Value:
		return x
	case bool:
		return Value{kind: KindBool, b: x, raw: v}
	case string:
		return Value{kind: KindString, s: x, raw: v}
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return Value{kind: KindNumber, n: cast.ToFloat64(x), raw: v}
	case []interface{}:
		return Value{kind: KindList, list: x, raw: v}
	case map[string]interface{}:
		return Value{kind: KindMap, m: x, raw: v}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]interface{}, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return Value{kind: KindList, list: items, raw: v}
	case reflect.Map:
		m := make(map[string]interface{}, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[fmt.Sprint(iter.Key().Interface())] = iter.Value().Interface()
		}
		return Value{kind: KindMap, m: m, raw: v}
	case reflect.Ptr:
		if rv.IsNil() {
			return Null()
		}
		return FromGo(rv.Elem().Interface())
	}

	return Value{kind: KindString, s: fmt.Sprint(v), raw: v}
}

// Kind 返回值类型
func (v Value) Kind() Kind { return v.kind }

// IsUndefined 是否未定义
func (v Value) IsUndefined() bool { return v.kind == KindUndefined }

// Name 返回未定义值对应的变量路径
func (v Value) Name() string { return v.name }

// Interface 返回 Go 值
func (v Value) Interface() interface{} {
	if v.raw != nil {
		return v.raw
	}
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		if v.n == math.Trunc(v.n) && math.Abs(v.n) < 1<<53 {
			return int(v.n)
		}
		return v.n
	case KindString:
		return v.s
	case KindList:
		return v.list
	case KindMap:
		return v.m
	default:
		return nil
	}
}

// String 返回值的字符串形式（用于拼接与模板输出）
func (v Value) String() string {
	switch v.kind {
	case KindUndefined, KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		if v.n == math.Trunc(v.n) && math.Abs(v.n) < 1e15 {
			return strconv.FormatInt(int64(v.n), 10)
		}
		return strconv.FormatFloat(v.n, 'g', -1, 64)
	case KindString:
		return v.s
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = FromGo(item).String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMap:
		keys := v.Keys()
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + FromGo(v.m[k]).String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return ""
	}
}

// Keys 返回 map 的有序键
func (v Value) Keys() []string {
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len 返回字符串、列表或 map 的长度
func (v Value) Len() (int, error) {
	switch v.kind {
	case KindString:
		return len([]rune(v.s)), nil
	case KindList:
		return len(v.list), nil
	case KindMap:
		return len(v.m), nil
	default:
		return 0, fmt.Errorf("object of type %s has no length", v.kind)
	}
}

// Truthy 真值判断
//
// null 为假；数字非零为真；字符串为空或可解析为 false（"false"、"0"、"F"...）时为假；
// 列表和 map 非空为真。未定义值返回 UndefinedError。
func (v Value) Truthy() (bool, error) {
	switch v.kind {
	case KindUndefined:
		return false, &UndefinedError{Name: v.name}
	case KindNull:
		return false, nil
	case KindBool:
		return v.b, nil
	case KindNumber:
		return v.n != 0, nil
	case KindString:
		if v.s == "" {
			return false, nil
		}
		if b, err := strconv.ParseBool(v.s); err == nil {
			return b, nil
		}
		return true, nil
	case KindList:
		return len(v.list) > 0, nil
	case KindMap:
		return len(v.m) > 0, nil
	default:
		return false, nil
	}
}

// toNumber 数值强制转换：数字、数字字符串、布尔
func (v Value) toNumber() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.n, true
	case KindBool:
		return cast.ToFloat64(v.b), true
	case KindString:
		n, err := cast.ToFloat64E(strings.TrimSpace(v.s))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Equal 比较两个值是否相等
//
// 强制转换规则：数字与数字字符串按数值比较；布尔与字符串按 ParseBool 比较；
// 布尔与数字按 1/0 比较；列表和 map 逐元素比较；其余不同类型一律不相等。
func Equal(a, b Value) bool {
	if a.kind == KindUndefined || b.kind == KindUndefined {
		return false
	}
	if a.kind == KindNull || b.kind == KindNull {
		return a.kind == b.kind
	}

	switch {
	case a.kind == b.kind:
		switch a.kind {
		case KindBool:
			return a.b == b.b
		case KindNumber:
			return a.n == b.n
		case KindString:
			return a.s == b.s
		case KindList:
			if len(a.list) != len(b.list) {
				return false
			}
			for i := range a.list {
				if !Equal(FromGo(a.list[i]), FromGo(b.list[i])) {
					return false
				}
			}
			return true
		case KindMap:
			if len(a.m) != len(b.m) {
				return false
			}
			for k, av := range a.m {
				bv, ok := b.m[k]
				if !ok || !Equal(FromGo(av), FromGo(bv)) {
					return false
				}
			}
			return true
		}
	case a.kind == KindNumber || b.kind == KindNumber:
		an, aok := a.toNumber()
		bn, bok := b.toNumber()
		return aok && bok && an == bn
	case a.kind == KindBool && b.kind == KindString:
		bb, err := cast.ToBoolE(b.s)
		return err == nil && a.b == bb
	case a.kind == KindString && b.kind == KindBool:
		return Equal(b, a)
	}
	return false
}

// Compare 比较大小，返回 -1/0/1
func Compare(a, b Value) (int, error) {
	if a.kind == KindUndefined {
		return 0, &UndefinedError{Name: a.name}
	}
	if b.kind == KindUndefined {
		return 0, &UndefinedError{Name: b.name}
	}

	if a.kind == KindString && b.kind == KindString {
		return strings.Compare(a.s, b.s), nil
	}

	an, aok := a.toNumber()
	bn, bok := b.toNumber()
	if !aok || !bok {
		return 0, fmt.Errorf("cannot compare %s with %s", a.kind, b.kind)
	}
	switch {
	case an < bn:
		return -1, nil
	case an > bn:
		return 1, nil
	default:
		return 0, nil
	}
}

// Contains 实现 in 运算：列表元素、map 键、子字符串
func Contains(container, item Value) (bool, error) {
	switch container.kind {
	case KindUndefined:
		return false, &UndefinedError{Name: container.name}
	case KindList:
		for _, el := range container.list {
			if Equal(FromGo(el), item) {
				return true, nil
			}
		}
		return false, nil
	case KindMap:
		_, ok := container.m[item.String()]
		return ok, nil
	case KindString:
		return strings.Contains(container.s, item.String()), nil
	default:
		return false, fmt.Errorf("argument of type %s is not iterable", container.kind)
	}
}

// UndefinedError 引用了未定义的变量
type UndefinedError struct {
	Name string
}

func (e *UndefinedError) Error() string {
	return fmt.Sprintf("'%s' is undefined", e.Name)
}
