package executor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/jimyag/playcore/pkg/connection"
	perrors "github.com/jimyag/playcore/pkg/errors"
	"github.com/jimyag/playcore/pkg/handler"
	"github.com/jimyag/playcore/pkg/inventory"
	"github.com/jimyag/playcore/pkg/module"
	"github.com/jimyag/playcore/pkg/playbook"
	"github.com/jimyag/playcore/pkg/report"
	"github.com/jimyag/playcore/pkg/template"
	"github.com/jimyag/playcore/pkg/vars"
)

// hostRun 一台主机在一个 play 中的执行时间线
type hostRun struct {
	e     *Executor
	state *RunState
	ps    *playState
	pc    *playContext
	play  *playbook.Play
	host  *inventory.Host
	log   zerolog.Logger

	inHandler bool
}

func (e *Executor) newHostRun(state *RunState, ps *playState, pc *playContext, play *playbook.Play, host *inventory.Host) *hostRun {
	return &hostRun{
		e:     e,
		state: state,
		ps:    ps,
		pc:    pc,
		play:  play,
		host:  host,
		log:   e.log.With().Str("play", play.Name).Str("host", host.Name).Logger(),
	}
}

// outcome 一次任务调用的结果
type outcome struct {
	status report.Status
	msg    string
	data   map[string]interface{}
	err    error
}

func (o *outcome) failed() bool {
	return o.status == report.StatusFailed
}

// stopped 主机是否不能再派发任务
func (hr *hostRun) stopped(ctx context.Context) bool {
	return ctx.Err() != nil || hr.state.IsUnreachable(hr.host.Name)
}

func (hr *hostRun) failed() bool {
	return hr.ps.isFailed(hr.host.Name)
}

// runMain 执行 fact 收集和全部主任务
func (hr *hostRun) runMain(ctx context.Context) {
	root := &frame{}
	if hr.play.GatherFacts {
		gather := playbook.Task{
			Name:   "Gathering Facts",
			Module: "setup",
			Args:   map[string]interface{}{},
			Tags:   playbook.StringList{"always"},
		}
		hr.runTask(ctx, &gather, root)
	}
	hr.runList(ctx, hr.play.Tasks, root)
}

func (hr *hostRun) runList(ctx context.Context, tasks []playbook.Task, f *frame) {
	for i := range tasks {
		if hr.stopped(ctx) {
			return
		}
		hr.runTask(ctx, &tasks[i], f)
	}
}

// runTask 执行单个任务：失败检查、标签、条件、循环、派发、注册、通知
func (hr *hostRun) runTask(ctx context.Context, t *playbook.Task, f *frame) {
	tags := append(append([]string(nil), f.tags...), t.Tags...)
	always := hasAny(tags, "always")

	// 1. 主机已在本 play 失败
	if hr.failed() && !always && !f.recovering {
		hr.record(t, &outcome{status: report.StatusSkipped, msg: "host failed earlier in this play"}, false)
		return
	}

	if t.IsBlock() {
		hr.runBlock(ctx, t, f)
		return
	}

	// 2. 标签过滤；被通知的 handler 不受标签限制
	if !hr.inHandler && !hr.e.opts.tagsAllow(tags) {
		hr.record(t, &outcome{status: report.StatusSkipped, msg: "excluded by tags"}, false)
		return
	}

	if action, ok := t.IsMeta(); ok {
		if action == "flush_handlers" {
			hr.flushHandlers(ctx)
		}
		return
	}

	snap, err := hr.snapshot(t, f)
	if err != nil {
		hr.finish(t, &outcome{status: report.StatusFailed, msg: err.Error(), err: err})
		return
	}

	var out *outcome
	if t.Loop != nil {
		out = hr.runLoop(ctx, t, f, snap)
	} else {
		out = hr.runOnce(ctx, t, f, snap)
	}
	hr.finish(t, out)
}

// runOnce 对非循环任务或单个循环项求值条件并派发
func (hr *hostRun) runOnce(ctx context.Context, t *playbook.Task, f *frame, snap vars.Snapshot) *outcome {
	// 3. when 条件，AND 关系
	ok, err := hr.conditions(t.When, snap)
	if err != nil {
		return &outcome{status: report.StatusFailed, msg: err.Error(), err: err}
	}
	if !ok {
		return &outcome{
			status: report.StatusSkipped,
			msg:    "Conditional result was False",
			data: map[string]interface{}{
				"changed":     false,
				"skipped":     true,
				"skip_reason": "Conditional result was False",
			},
		}
	}
	return hr.dispatch(ctx, t, f, snap)
}

// runLoop 按顺序对每个循环项执行，结果聚合到 results
func (hr *hostRun) runLoop(ctx context.Context, t *playbook.Task, f *frame, snap vars.Snapshot) *outcome {
	items, err := loopItems(t.Loop, snap)
	if err != nil {
		err = perrors.WithHost(err, hr.host.Name)
		return &outcome{status: report.StatusFailed, msg: err.Error(), err: err}
	}

	loopVar := t.LoopControl.LoopVar
	if loopVar == "" {
		loopVar = "item"
	}

	results := make([]interface{}, 0, len(items))
	var changed, failed bool
	skipped := len(items) > 0
	var firstErr error

	for _, item := range items {
		if ctx.Err() != nil {
			out := &outcome{status: report.StatusFailed, err: perrors.NewCancelledError(hr.host.Name, t.DisplayName(), ctx.Err())}
			out.msg = out.err.Error()
			results = append(results, itemResult(out, loopVar, item))
			failed = true
			firstErr = out.err
			break
		}

		out := hr.runOnce(ctx, t, f, snap.With(loopVar, item).With("ansible_loop_var", loopVar))
		if out.status == report.StatusUnreachable {
			return out
		}
		results = append(results, itemResult(out, loopVar, item))

		switch out.status {
		case report.StatusChanged:
			changed = true
			skipped = false
		case report.StatusFailed:
			failed = true
			skipped = false
			if firstErr == nil {
				firstErr = out.err
			}
		case report.StatusOK:
			skipped = false
		}
	}

	out := &outcome{
		data: map[string]interface{}{
			"results": results,
			"changed": changed,
			"failed":  failed,
			"skipped": skipped,
		},
	}
	switch {
	case failed:
		out.status = report.StatusFailed
		out.msg = "One or more items failed"
		out.err = firstErr
	case skipped:
		out.status = report.StatusSkipped
		out.msg = "All items skipped"
	case changed:
		out.status = report.StatusChanged
		out.msg = "All items completed"
	default:
		out.status = report.StatusOK
		out.msg = "All items completed"
	}
	if len(items) == 0 {
		out.status = report.StatusSkipped
		out.msg = "No items in the list"
		out.data["skipped"] = true
	}
	out.data["msg"] = out.msg
	return out
}

func itemResult(out *outcome, loopVar string, item interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(out.data)+4)
	for k, v := range out.data {
		m[k] = v
	}
	if _, ok := m["changed"]; !ok {
		m["changed"] = out.status == report.StatusChanged
	}
	if _, ok := m["failed"]; !ok {
		m["failed"] = out.failed()
	}
	if out.msg != "" {
		if _, ok := m["msg"]; !ok {
			m["msg"] = out.msg
		}
	}
	m[loopVar] = item
	m["ansible_loop_var"] = loopVar
	return m
}

// loopItems 把 loop 源渲染为有序列表，mapping 转为按键排序的 {key, value}
func loopItems(src interface{}, env template.Vars) ([]interface{}, error) {
	rendered, err := template.Render(src, env)
	if err != nil {
		return nil, err
	}

	switch v := rendered.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		return v, nil
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]interface{}, len(keys))
		for i, k := range keys {
			items[i] = map[string]interface{}{"key": k, "value": v[k]}
		}
		return items, nil
	default:
		return nil, perrors.NewInvalidArgsError("loop", fmt.Sprintf("loop requires a list or a mapping, got %T", rendered))
	}
}

func (hr *hostRun) conditions(conds []string, env vars.Snapshot) (bool, error) {
	for _, cond := range conds {
		ok, err := template.Condition(cond, env)
		if err != nil {
			return false, perrors.WithHost(err, hr.host.Name)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// dispatch 渲染参数、建立连接并调用模块
func (hr *hostRun) dispatch(ctx context.Context, t *playbook.Task, f *frame, snap vars.Snapshot) *outcome {
	name := t.DisplayName()

	mod, err := hr.e.modules.Lookup(t.Module)
	if err != nil {
		return &outcome{status: report.StatusFailed, msg: err.Error(), err: perrors.WithHost(err, hr.host.Name)}
	}

	args, err := template.RenderMap(t.Args, snap)
	if err != nil {
		err = perrors.WithHost(err, hr.host.Name)
		return &outcome{status: report.StatusFailed, msg: err.Error(), err: err}
	}

	call := &module.Call{
		Host:       hr.host.Name,
		Task:       name,
		Args:       args,
		Vars:       snap,
		CheckMode:  hr.e.opts.CheckMode,
		Become:     hr.play.Become || hr.e.opts.Become,
		BecomeUser: hr.play.BecomeUser,
	}
	call.BecomeMethod = hr.play.BecomeMethod
	if call.BecomeUser == "" {
		call.BecomeUser = hr.e.opts.BecomeUser
	}
	if f.become != nil {
		call.Become = *f.become
	}
	if f.becomeUser != "" {
		call.BecomeUser = f.becomeUser
	}
	if t.Become != nil {
		call.Become = *t.Become
	}
	if t.BecomeUser != "" {
		call.BecomeUser = t.BecomeUser
	}
	if t.CheckMode != nil {
		call.CheckMode = *t.CheckMode
	}

	if module.NeedsConnection(mod) {
		conn, err := hr.connect(ctx, snap)
		if err != nil {
			uerr := perrors.NewUnreachableError(hr.host.Name, err)
			if ctx.Err() != nil {
				return &outcome{status: report.StatusFailed, msg: "run cancelled", err: perrors.NewCancelledError(hr.host.Name, name, ctx.Err())}
			}
			hr.state.markUnreachable(hr.host.Name, uerr)
			return &outcome{status: report.StatusUnreachable, msg: uerr.Error(), err: uerr}
		}
		call.Conn = conn
	}

	hr.log.Debug().Str("task", name).Str("module", t.Module).Msg("dispatch")
	res, err := invoke(ctx, mod, call, hr.e.opts.Timeout)
	if err != nil {
		err = perrors.WithHost(err, hr.host.Name)
		return &outcome{status: report.StatusFailed, msg: err.Error(), err: err}
	}
	if res == nil {
		res = &module.Result{}
	}

	return hr.judge(t, snap, res)
}

func (hr *hostRun) connect(ctx context.Context, snap vars.Snapshot) (connection.Conn, error) {
	params := connection.ParamsFromVars(hr.host.Name, snap.Vars())
	if hr.e.opts.Timeout > 0 && hr.e.opts.Timeout < params.Timeout {
		params.Timeout = hr.e.opts.Timeout
	}
	return hr.state.conns.get(ctx, params)
}

// judge 应用 changed_when/failed_when，把模块结果转为状态
func (hr *hostRun) judge(t *playbook.Task, snap vars.Snapshot, res *module.Result) *outcome {
	data := res.Map()

	if len(t.ChangedWhen) > 0 || len(t.FailedWhen) > 0 {
		env := snap
		if t.Register != "" {
			env = snap.With(t.Register, data)
		}
		if len(t.ChangedWhen) > 0 {
			changed, err := hr.conditions(t.ChangedWhen, env)
			if err != nil {
				return &outcome{status: report.StatusFailed, msg: err.Error(), err: err, data: data}
			}
			res.Changed = changed
		}
		if len(t.FailedWhen) > 0 {
			failed, err := hr.conditions(t.FailedWhen, env)
			if err != nil {
				return &outcome{status: report.StatusFailed, msg: err.Error(), err: err, data: data}
			}
			res.Failed = failed
			if failed && res.Msg == "" {
				res.Msg = "failed_when condition was true"
			}
		}
		data = res.Map()
	}

	out := &outcome{msg: res.Msg, data: data}
	switch {
	case res.Failed:
		out.status = report.StatusFailed
		out.err = perrors.NewModuleFailedError(hr.host.Name, t.DisplayName(), t.Module, res.Msg)
	case res.Skipped:
		out.status = report.StatusSkipped
	case res.Changed:
		out.status = report.StatusChanged
	default:
		out.status = report.StatusOK
	}
	return out
}

// finish 记录结果并处理 facts、register、失败集合与 notify
func (hr *hostRun) finish(t *playbook.Task, out *outcome) {
	host := hr.host.Name

	if facts, ok := out.data["ansible_facts"].(map[string]interface{}); ok && !out.failed() {
		hr.state.Facts.SetFacts(host, facts)
	}

	if t.Register != "" && out.status != report.StatusUnreachable {
		data := out.data
		if data == nil {
			data = map[string]interface{}{
				"changed": false,
				"failed":  out.failed(),
			}
			if out.msg != "" {
				data["msg"] = out.msg
			}
		}
		hr.state.Facts.Register(host, t.Register, data)
	}

	ignored := out.failed() && t.IgnoreErrors
	if out.failed() && !ignored {
		hr.ps.markFailed(host)
	}

	hr.record(t, out, ignored)

	if len(t.Notify) > 0 && (out.status == report.StatusOK || out.status == report.StatusChanged) {
		hr.state.Handlers.Notify(host, t.Notify...)
	}
}

func (hr *hostRun) record(t *playbook.Task, out *outcome, ignored bool) {
	res := report.TaskResult{
		Play:    hr.play.Name,
		Task:    t.DisplayName(),
		Host:    hr.host.Name,
		Status:  out.status,
		Ignored: ignored,
		Handler: hr.inHandler,
		Msg:     out.msg,
		Data:    out.data,
		Err:     out.err,
		End:     time.Now(),
	}
	hr.state.Report.Add(res)
	hr.e.callback.TaskResult(&res)

	hr.log.Debug().
		Str("task", res.Task).
		Str("status", string(res.Status)).
		Bool("ignored", res.Ignored).
		Msg("task finished")
}

// runBlock 执行 block，失败时执行 rescue，always 总是执行
func (hr *hostRun) runBlock(ctx context.Context, t *playbook.Task, f *frame) {
	inner := f.child(t)

	if len(t.When) > 0 {
		snap, err := hr.snapshot(t, inner)
		if err == nil {
			var ok bool
			ok, err = hr.conditions(t.When, snap)
			if err == nil && !ok {
				hr.record(t, &outcome{status: report.StatusSkipped, msg: "Conditional result was False"}, false)
				return
			}
		}
		if err != nil {
			hr.finish(t, &outcome{status: report.StatusFailed, msg: err.Error(), err: err})
			return
		}
	}

	failedBefore := hr.failed()
	hr.runList(ctx, t.Block, inner)

	if hr.failed() && !failedBefore && len(t.Rescue) > 0 && !hr.stopped(ctx) {
		hr.ps.clearFailed(hr.host.Name)
		hr.state.Report.Rescued(hr.host.Name)
		hr.runList(ctx, t.Rescue, inner.recover())
	}

	if len(t.Always) > 0 && ctx.Err() == nil {
		hr.runList(ctx, t.Always, inner.recover())
	}
}

// flushHandlers 执行本主机被通知的 handler，每个 handler 每次刷新最多执行一次
//
// handler 自身的 notify 会在同一次刷新中继续处理。
func (hr *hostRun) flushHandlers(ctx context.Context) {
	host := hr.host.Name
	prev := hr.inHandler
	hr.inHandler = true
	defer func() { hr.inHandler = prev }()

	handlers := make([]*playbook.Handler, len(hr.play.Handlers))
	for i := range hr.play.Handlers {
		handlers[i] = &hr.play.Handlers[i]
	}

	ran := make(map[*playbook.Handler]bool)
	for !hr.stopped(ctx) {
		notified := hr.state.Handlers.Take(host)
		if len(notified) == 0 {
			return
		}
		if hr.failed() {
			// 失败的主机不执行 handler
			return
		}

		progressed := false
		for _, h := range handler.Select(handlers, notified) {
			if ran[h] || hr.stopped(ctx) {
				continue
			}
			ran[h] = true
			progressed = true
			hr.runTask(ctx, &h.Task, &frame{})
		}
		if !progressed {
			return
		}
	}
}
