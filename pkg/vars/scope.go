// Package vars 实现固定优先级的分层变量解析。
//
// 优先级从高到低：
//
//	extra > task > block > role > facts > registered > play > host > group > defaults
//
// 每一层是普通 map，低优先级层的键被高优先级层逐键覆盖；
// hash_behaviour=merge 时对 map 类型的值做递归合并。
package vars

import "fmt"

// Layer 变量层
type Layer int

const (
	LayerExtra Layer = iota
	LayerTask
	LayerBlock
	LayerRole
	LayerFacts
	LayerRegistered
	LayerPlay
	LayerHost
	LayerGroup
	LayerDefaults

	numLayers
)

var layerNames = [numLayers]string{
	"extra", "task", "block", "role", "facts",
	"registered", "play", "host", "group", "defaults",
}

func (l Layer) String() string {
	if l < 0 || l >= numLayers {
		return fmt.Sprintf("layer(%d)", int(l))
	}
	return layerNames[l]
}

// Scope 是一次任务调用的变量栈
//
// 同一层可以由多个 map 组成（例如多个组变量、嵌套 block），
// 按添加顺序优先级递增。
type Scope struct {
	layers [numLayers][]map[string]interface{}
	magic  map[string]interface{}
}

// NewScope 创建空的变量栈
func NewScope() *Scope {
	return &Scope{}
}

// Add 向指定层追加一个或多个 map，后追加的优先级更高
func (s *Scope) Add(layer Layer, maps ...map[string]interface{}) *Scope {
	for _, m := range maps {
		if len(m) == 0 {
			continue
		}
		s.layers[layer] = append(s.layers[layer], m)
	}
	return s
}

// SetMagic 设置魔法变量（inventory_hostname、groups 等）
// 魔法变量覆盖合并结果，但不覆盖 extra 层中同名的键。
func (s *Scope) SetMagic(magic map[string]interface{}) *Scope {
	s.magic = magic
	return s
}
