// Package facts 保存每台主机在一次运行中收集到的 facts 与 register 结果
package facts

import (
	"sync"
	"sync/atomic"

	"github.com/mitchellh/copystructure"
)

// Store 按主机分区的 fact/register 存储
//
// 每台主机一个分区，各自持有读写锁：写入只锁定本主机，
// 读取其他主机的数据不会与之竞争。
type Store struct {
	hosts sync.Map // host -> *hostState
	base  map[string]map[string]interface{}

	// gen 每次写入递增，hostvars 在两次写入之间复用
	gen      atomic.Uint64
	hvMu     sync.Mutex
	hvGen    uint64
	hostvars map[string]interface{}
}

type hostState struct {
	mu         sync.RWMutex
	facts      map[string]interface{}
	registered map[string]interface{}
	view       map[string]interface{} // hostvars 中该主机的只读视图，写入时失效
}

// NewStore 创建存储
//
// base 是每台主机在 hostvars 中的基础变量（通常是 inventory 变量），
// 整个运行期间不得修改。
func NewStore(base map[string]map[string]interface{}) *Store {
	if base == nil {
		base = make(map[string]map[string]interface{})
	}
	return &Store{base: base}
}

func (s *Store) host(name string) *hostState {
	if st, ok := s.hosts.Load(name); ok {
		return st.(*hostState)
	}
	st, _ := s.hosts.LoadOrStore(name, &hostState{
		facts:      make(map[string]interface{}),
		registered: make(map[string]interface{}),
	})
	return st.(*hostState)
}

// SetFacts 批量写入 facts
func (s *Store) SetFacts(host string, facts map[string]interface{}) {
	if len(facts) == 0 {
		return
	}
	st := s.host(host)
	st.mu.Lock()
	defer st.mu.Unlock()
	for k, v := range facts {
		st.facts[k] = v
	}
	s.invalidate(st)
}

// Register 保存任务结果，同名 register 后写覆盖
func (s *Store) Register(host, name string, value interface{}) {
	st := s.host(host)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.registered[name] = value
	s.invalidate(st)
}

// invalidate 在持有 st.mu 写锁时调用
func (s *Store) invalidate(st *hostState) {
	st.view = nil
	s.gen.Add(1)
}

// Facts 返回主机 facts 的深拷贝
func (s *Store) Facts(host string) map[string]interface{} {
	st, ok := s.hosts.Load(host)
	if !ok {
		return map[string]interface{}{}
	}
	hs := st.(*hostState)
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	return copyMap(hs.facts)
}

// Registered 返回主机 register 结果的深拷贝
func (s *Store) Registered(host string) map[string]interface{} {
	st, ok := s.hosts.Load(host)
	if !ok {
		return map[string]interface{}{}
	}
	hs := st.(*hostState)
	hs.mu.RLock()
	defer hs.mu.RUnlock()
	return copyMap(hs.registered)
}

// HostVars 返回 hostvars 魔法变量：每台主机的基础变量叠加 register 结果与 facts
//
// 同名时 facts 优先。结果在下一次写入前被缓存复用，调用方只读。
func (s *Store) HostVars() map[string]interface{} {
	gen := s.gen.Load()

	s.hvMu.Lock()
	defer s.hvMu.Unlock()
	if s.hostvars != nil && s.hvGen == gen {
		return s.hostvars
	}

	out := make(map[string]interface{}, len(s.base))
	for name, base := range s.base {
		out[name] = s.view(name, base)
	}
	s.hostvars, s.hvGen = out, gen
	return out
}

// view 返回主机的合并视图，只在该主机有新写入后重建
func (s *Store) view(name string, base map[string]interface{}) map[string]interface{} {
	v, ok := s.hosts.Load(name)
	if !ok {
		return base
	}
	st := v.(*hostState)

	st.mu.RLock()
	view := st.view
	st.mu.RUnlock()
	if view != nil {
		return view
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.view == nil {
		merged := make(map[string]interface{}, len(base)+len(st.registered)+len(st.facts))
		for k, v := range base {
			merged[k] = v
		}
		for k, v := range copyMap(st.registered) {
			merged[k] = v
		}
		for k, v := range copyMap(st.facts) {
			merged[k] = v
		}
		st.view = merged
	}
	return st.view
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	cp, err := copystructure.Copy(m)
	if err != nil {
		out := make(map[string]interface{}, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	return cp.(map[string]interface{})
}
