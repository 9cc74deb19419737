package executor

import (
	"sync"

	"github.com/jimyag/playcore/pkg/facts"
	"github.com/jimyag/playcore/pkg/handler"
	"github.com/jimyag/playcore/pkg/inventory"
	"github.com/jimyag/playcore/pkg/report"
)

// RunState 一次运行的全部共享状态，Run 开始时创建，返回时丢弃
//
// facts、register 结果和 handler 队列都按主机分区，
// 主机只写自己的分区，可以读取其他主机的数据。
type RunState struct {
	Facts    *facts.Store
	Handlers *handler.Queue
	Report   *report.Report

	conns       *connPool
	unreachable sync.Map // host -> error，整个运行内有效
}

func newRunState(inv *inventory.Inventory, conns *connPool) *RunState {
	return &RunState{
		Facts:    facts.NewStore(inventoryVars(inv)),
		Handlers: handler.NewQueue(),
		Report:   report.New(),
		conns:    conns,
	}
}

// inventoryVars hostvars 中每台主机的基础变量
func inventoryVars(inv *inventory.Inventory) map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{}, len(inv.Hosts))
	for _, name := range inv.HostNames() {
		vars := make(map[string]interface{}, len(inv.Hosts[name].Vars)+1)
		for k, v := range inv.Hosts[name].Vars {
			vars[k] = v
		}
		vars["inventory_hostname"] = name
		out[name] = vars
	}
	return out
}

func (s *RunState) markUnreachable(host string, err error) {
	s.unreachable.Store(host, err)
}

// IsUnreachable 主机是否已不可达
func (s *RunState) IsUnreachable(host string) bool {
	_, ok := s.unreachable.Load(host)
	return ok
}

// playState 单个 play 内的失败集合
type playState struct {
	failed sync.Map // host -> struct{}
}

func (p *playState) markFailed(host string) {
	p.failed.Store(host, struct{}{})
}

func (p *playState) clearFailed(host string) {
	p.failed.Delete(host)
}

func (p *playState) isFailed(host string) bool {
	_, ok := p.failed.Load(host)
	return ok
}
