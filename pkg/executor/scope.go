package executor

import (
	"strings"

	"github.com/jimyag/playcore/pkg/inventory"
	"github.com/jimyag/playcore/pkg/playbook"
	"github.com/jimyag/playcore/pkg/vars"
)

// playContext play 内所有主机共享、只读的数据
//
// groups、playHosts 直接放入每台主机的快照，与 hostvars 一样不做拷贝，
// 模块只能读取 Call.Vars。
type playContext struct {
	inv       *inventory.Inventory
	play      *playbook.Play
	playHosts []interface{}
	groups    map[string]interface{}
}

func newPlayContext(inv *inventory.Inventory, play *playbook.Play, hosts []string) *playContext {
	playHosts := make([]interface{}, len(hosts))
	for i, h := range hosts {
		playHosts[i] = h
	}

	groups := make(map[string]interface{})
	for name, members := range inv.GroupMembers() {
		list := make([]interface{}, len(members))
		for i, m := range members {
			list[i] = m
		}
		groups[name] = list
	}

	return &playContext{inv: inv, play: play, playHosts: playHosts, groups: groups}
}

// frame 是 block 嵌套带来的上下文，外层在前
type frame struct {
	vars       []map[string]interface{}
	tags       []string
	become     *bool
	becomeUser string
	// 处于 rescue/always 段内，不受主机失败状态影响
	recovering bool
}

func (f *frame) child(block *playbook.Task) *frame {
	next := &frame{
		vars:       append(append([]map[string]interface{}(nil), f.vars...), block.Vars),
		tags:       append(append([]string(nil), f.tags...), block.Tags...),
		become:     f.become,
		becomeUser: f.becomeUser,
		recovering: f.recovering,
	}
	if block.Become != nil {
		next.become = block.Become
	}
	if block.BecomeUser != "" {
		next.becomeUser = block.BecomeUser
	}
	return next
}

func (f *frame) recover() *frame {
	next := *f
	next.recovering = true
	return &next
}

// snapshot 按固定优先级构建任务的变量快照
func (hr *hostRun) snapshot(t *playbook.Task, f *frame) (vars.Snapshot, error) {
	host := hr.host
	scope := vars.NewScope()

	scope.Add(vars.LayerExtra, hr.e.opts.ExtraVars)
	if t.IsBlock() {
		// block 自身的 vars 已经在 frame 中
		scope.Add(vars.LayerBlock, f.vars...)
	} else {
		scope.Add(vars.LayerTask, t.Vars)
		scope.Add(vars.LayerBlock, f.vars...)
	}
	if t.Role != nil {
		scope.Add(vars.LayerRole, t.Role.Vars)
		scope.Add(vars.LayerDefaults, t.Role.Defaults)
	}
	scope.Add(vars.LayerFacts, hr.state.Facts.Facts(host.Name))
	scope.Add(vars.LayerRegistered, hr.state.Facts.Registered(host.Name))
	scope.Add(vars.LayerPlay, hr.pc.play.Vars)
	scope.Add(vars.LayerHost, host.Vars)
	scope.Add(vars.LayerGroup, hr.pc.inv.GroupVarLayers(host.Name)...)

	scope.SetMagic(hr.magic())
	return hr.e.merger.Resolve(scope)
}

// magic 返回魔法变量，其中的共享值只读
func (hr *hostRun) magic() map[string]interface{} {
	name := hr.host.Name
	groupNames := hr.pc.inv.GroupNamesOf(name)
	names := make([]interface{}, len(groupNames))
	for i, g := range groupNames {
		names[i] = g
	}

	short := name
	if i := strings.IndexByte(name, '.'); i > 0 {
		short = name[:i]
	}

	return map[string]interface{}{
		"inventory_hostname":       name,
		"inventory_hostname_short": short,
		"group_names":              names,
		"groups":                   hr.pc.groups,
		"play_hosts":               hr.pc.playHosts,
		"ansible_play_hosts":       hr.pc.playHosts,
		"ansible_check_mode":       hr.e.opts.CheckMode,
		"ansible_facts":            hr.state.Facts.Facts(name),
		"hostvars":                 hr.state.Facts.HostVars(),
	}
}
