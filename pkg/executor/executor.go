// Package executor 按主机遍历 play 中的任务并派发给模块
//
// 每台主机的任务在自己的时间线上严格串行，不同主机之间最多 forks 个并发。
// 主机的失败只影响它自己在当前 play 中的后续任务；不可达的主机在整个运行内被排除。
package executor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jimyag/playcore/pkg/connection"
	perrors "github.com/jimyag/playcore/pkg/errors"
	"github.com/jimyag/playcore/pkg/inventory"
	"github.com/jimyag/playcore/pkg/logger"
	"github.com/jimyag/playcore/pkg/module"
	"github.com/jimyag/playcore/pkg/playbook"
	"github.com/jimyag/playcore/pkg/report"
	"github.com/jimyag/playcore/pkg/vars"
)

// Executor Playbook 执行器
type Executor struct {
	inv       *inventory.Inventory
	modules   *module.Registry
	connector connection.Connector
	callback  Callback
	opts      Options
	merger    *vars.Merger
	log       zerolog.Logger
}

// New 创建执行器，选项不合法时返回错误
func New(inv *inventory.Inventory, modules *module.Registry, opts Options) (*Executor, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if modules == nil {
		modules = module.Builtins()
	}
	return &Executor{
		inv:       inv,
		modules:   modules,
		connector: connection.NewManager(),
		callback:  nopCallback{},
		opts:      opts,
		merger:    vars.NewMerger(opts.HashBehaviour),
		log:       logger.Logger.With().Str("component", "executor").Logger(),
	}, nil
}

// WithConnector 替换连接器
func (e *Executor) WithConnector(c connection.Connector) *Executor {
	e.connector = c
	return e
}

// WithCallback 设置事件回调
func (e *Executor) WithCallback(cb Callback) *Executor {
	if cb == nil {
		cb = nopCallback{}
	}
	e.callback = cb
	return e
}

// Run 执行整个 Playbook
//
// 只有主机模式解析失败（在任何主机开始工作之前）会让 Run 直接返回错误；
// 主机级的失败都记录在报告中。ctx 取消时返回已完成的报告和 CancelledError。
func (e *Executor) Run(ctx context.Context, pb playbook.Playbook) (*report.Report, error) {
	// 预先解析全部 play 的主机模式
	targets := make([][]*inventory.Host, len(pb))
	for i := range pb {
		hosts, err := e.inv.ResolveWithLimit(pb[i].Hosts, e.opts.Limit)
		if err != nil {
			return nil, err
		}
		targets[i] = hosts
	}

	conns := newConnPool(e.connector, e.opts.Timeout)
	defer conns.closeAll()
	state := newRunState(e.inv, conns)
	e.log.Debug().
		Str("run_id", state.Report.RunID).
		Int("plays", len(pb)).
		Int("forks", e.opts.Forks).
		Str("hash_behaviour", string(e.opts.HashBehaviour)).
		Msg("run start")

	for i := range pb {
		if ctx.Err() != nil {
			break
		}
		e.runPlay(ctx, state, &pb[i], targets[i])
	}

	state.Report.Finish()
	e.callback.RunEnd(state.Report)

	if err := ctx.Err(); err != nil {
		return state.Report, perrors.NewCancelledError("", "", err)
	}
	return state.Report, nil
}

// RunAdhoc 在匹配的主机上执行单个模块
func (e *Executor) RunAdhoc(ctx context.Context, pattern, moduleName string, args map[string]interface{}) (*report.Report, error) {
	if _, err := e.modules.Lookup(moduleName); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	play := playbook.Play{
		Name:  fmt.Sprintf("Ad-hoc: %s", moduleName),
		Hosts: pattern,
		Vars:  map[string]interface{}{},
		Tasks: []playbook.Task{{Module: moduleName, Args: args}},
	}
	return e.Run(ctx, playbook.Playbook{play})
}

// runPlay 执行单个 Play：先在全部主机上跑完主任务，再统一刷新 handler
func (e *Executor) runPlay(ctx context.Context, state *RunState, play *playbook.Play, hosts []*inventory.Host) {
	var names []string
	byName := make(map[string]*inventory.Host, len(hosts))
	for _, h := range hosts {
		if state.IsUnreachable(h.Name) {
			continue
		}
		names = append(names, h.Name)
		byName[h.Name] = h
		state.Report.AddHost(h.Name)
	}

	e.callback.PlayStart(play, names)
	defer e.callback.PlayEnd(play)
	if len(names) == 0 {
		e.log.Warn().Str("play", play.Name).Msg("no hosts matched")
		return
	}

	ps := &playState{}
	pc := newPlayContext(e.inv, play, names)

	forEachHost(ctx, names, e.opts.Forks, func(ctx context.Context, host string) {
		hr := e.newHostRun(state, ps, pc, play, byName[host])
		hr.runMain(ctx)
	})

	// handler 刷新在所有主机的主任务完成之后
	forEachHost(ctx, names, e.opts.Forks, func(ctx context.Context, host string) {
		hr := e.newHostRun(state, ps, pc, play, byName[host])
		hr.flushHandlers(ctx)
	})

	for _, host := range names {
		state.Handlers.Clear(host)
	}
}
