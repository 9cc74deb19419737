package vars

import (
	"fmt"

	"dario.cat/mergo"
	"github.com/mitchellh/copystructure"
)

// HashBehaviour 控制 map 类型变量在层间如何合并
type HashBehaviour string

const (
	// HashReplace 高优先级层的值整体替换低优先级层（默认）
	HashReplace HashBehaviour = "replace"
	// HashMerge 对 map 类型的值递归合并
	HashMerge HashBehaviour = "merge"
)

// ParseHashBehaviour 解析配置中的 hash_behaviour
func ParseHashBehaviour(s string) (HashBehaviour, error) {
	switch HashBehaviour(s) {
	case "", HashReplace:
		return HashReplace, nil
	case HashMerge:
		return HashMerge, nil
	default:
		return "", fmt.Errorf("invalid hash_behaviour %q (want replace or merge)", s)
	}
}

// Merger 把变量栈压平为一个快照
type Merger struct {
	behaviour HashBehaviour
}

// NewMerger 创建合并器
func NewMerger(behaviour HashBehaviour) *Merger {
	if behaviour == "" {
		behaviour = HashReplace
	}
	return &Merger{behaviour: behaviour}
}

// Resolve 从最低优先级层开始逐层覆盖，生成不可变快照
// 每个层在合并前都会深拷贝，快照与输入层之间不共享任何可变结构。
func (m *Merger) Resolve(scope *Scope) (Snapshot, error) {
	result := make(map[string]interface{})

	for layer := numLayers - 1; layer >= 0; layer-- {
		for _, src := range scope.layers[layer] {
			if err := m.mergeInto(result, src); err != nil {
				return Snapshot{}, fmt.Errorf("merge %s vars: %w", layer, err)
			}
		}
	}

	if len(scope.magic) > 0 {
		extra := make(map[string]bool)
		for _, src := range scope.layers[LayerExtra] {
			for k := range src {
				extra[k] = true
			}
		}
		for k, v := range scope.magic {
			if !extra[k] {
				result[k] = v
			}
		}
	}

	return Snapshot{vars: result}, nil
}

func (m *Merger) mergeInto(dst, src map[string]interface{}) error {
	cp, err := deepCopy(src)
	if err != nil {
		return err
	}

	if m.behaviour == HashMerge {
		return mergo.Merge(&dst, cp, mergo.WithOverride)
	}

	for k, v := range cp {
		dst[k] = v
	}
	return nil
}

func deepCopy(m map[string]interface{}) (map[string]interface{}, error) {
	if m == nil {
		return make(map[string]interface{}), nil
	}
	cp, err := copystructure.Copy(m)
	if err != nil {
		return nil, fmt.Errorf("copy vars: %w", err)
	}
	return cp.(map[string]interface{}), nil
}
