package vars

// Snapshot 是某主机某任务的只读变量视图
type Snapshot struct {
	vars map[string]interface{}
}

// NewSnapshot 用给定 map 构造快照（调用方之后不得再修改该 map）
func NewSnapshot(vars map[string]interface{}) Snapshot {
	if vars == nil {
		vars = make(map[string]interface{})
	}
	return Snapshot{vars: vars}
}

// Lookup 查找变量
func (s Snapshot) Lookup(key string) (interface{}, bool) {
	v, ok := s.vars[key]
	return v, ok
}

// Vars 返回底层 map，只读
func (s Snapshot) Vars() map[string]interface{} {
	if s.vars == nil {
		return map[string]interface{}{}
	}
	return s.vars
}

// With 返回绑定了额外变量的新快照（用于 loop item），原快照不变
func (s Snapshot) With(key string, value interface{}) Snapshot {
	next := make(map[string]interface{}, len(s.vars)+1)
	for k, v := range s.vars {
		next[k] = v
	}
	next[key] = value
	return Snapshot{vars: next}
}
