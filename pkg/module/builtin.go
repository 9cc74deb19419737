package module

import (
	"context"
	"fmt"

	"github.com/spf13/cast"

	"github.com/jimyag/playcore/pkg/expr"
	"github.com/jimyag/playcore/pkg/facts"
	"github.com/jimyag/playcore/pkg/template"
)

// PingModule 测试连接可用
type PingModule struct{}

// Execute 在远端执行 echo，返回 ping=pong
func (PingModule) Execute(ctx context.Context, call *Call) (*Result, error) {
	data := stringArg(call.Args, "data")
	if data == "" {
		data = "pong"
	}
	if data == "crash" {
		return &Result{Failed: true, Msg: "boom"}, nil
	}

	res, err := call.Exec(ctx, "echo pong")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return &Result{Failed: true, Msg: fmt.Sprintf("ping failed with exit code %d", res.ExitCode)}, nil
	}
	return &Result{Data: map[string]interface{}{"ping": data}}, nil
}

// SetupModule 收集系统 facts
type SetupModule struct{}

// Execute 收集 facts
func (SetupModule) Execute(ctx context.Context, call *Call) (*Result, error) {
	if call.Conn == nil {
		return nil, fmt.Errorf("no connection to %s", call.Host)
	}
	gathered, err := facts.Gather(ctx, call.Conn)
	if err != nil {
		return nil, err
	}
	return &Result{AnsibleFacts: gathered}, nil
}

// DebugModule 输出调试信息，不需要连接
type DebugModule struct{}

// RunsOnController debug 在控制端执行
func (DebugModule) RunsOnController() bool { return true }

// Execute 执行 debug
func (DebugModule) Execute(_ context.Context, call *Call) (*Result, error) {
	if name := stringArg(call.Args, "var"); name != "" {
		v, err := expr.Eval(name, call.Vars)
		var value interface{} = "VARIABLE IS NOT DEFINED!"
		if err == nil && !v.IsUndefined() {
			value = v.Interface()
		}
		return &Result{
			Msg:  fmt.Sprintf("%s: %s", name, expr.FromGo(value).String()),
			Data: map[string]interface{}{name: value},
		}, nil
	}

	msg, ok := call.Args["msg"]
	if !ok {
		msg = "Hello world!"
	}
	return &Result{Msg: expr.FromGo(msg).String()}, nil
}

// SetFactModule 为当前主机设置 facts
type SetFactModule struct{}

// RunsOnController set_fact 在控制端执行
func (SetFactModule) RunsOnController() bool { return true }

// Execute 参数（除 cacheable）全部作为 facts 返回，由执行器写入存储
func (SetFactModule) Execute(_ context.Context, call *Call) (*Result, error) {
	out := make(map[string]interface{}, len(call.Args))
	for k, v := range call.Args {
		if k == "cacheable" {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return &Result{Failed: true, Msg: "set_fact requires at least one key=value"}, nil
	}
	return &Result{AnsibleFacts: out}, nil
}

// FailModule 显式使任务失败，通常与 when 配合使用
type FailModule struct{}

// RunsOnController fail 在控制端执行
func (FailModule) RunsOnController() bool { return true }

// Execute 执行 fail
func (FailModule) Execute(_ context.Context, call *Call) (*Result, error) {
	msg := "Failed as requested from task"
	if v, ok := call.Args["msg"]; ok {
		msg = expr.FromGo(v).String()
	}
	return &Result{Failed: true, Msg: msg}, nil
}

// AssertModule 断言一组条件全部成立
type AssertModule struct{}

// RunsOnController assert 在控制端执行
func (AssertModule) RunsOnController() bool { return true }

// Execute 按顺序求值 that，第一个为假的条件使任务失败
func (AssertModule) Execute(_ context.Context, call *Call) (*Result, error) {
	var conds []string
	switch that := call.Args["that"].(type) {
	case nil:
		return nil, fmt.Errorf("assert requires 'that'")
	case string:
		conds = []string{that}
	default:
		list, err := cast.ToStringSliceE(that)
		if err != nil {
			return nil, fmt.Errorf("assert 'that' must be a string or list: %w", err)
		}
		conds = list
	}

	for _, cond := range conds {
		ok, err := template.Condition(cond, call.Vars)
		if err != nil {
			return nil, err
		}
		if !ok {
			msg := stringArg(call.Args, "fail_msg")
			if msg == "" {
				msg = stringArg(call.Args, "msg")
			}
			if msg == "" {
				msg = "Assertion failed"
			}
			return &Result{
				Failed: true,
				Msg:    msg,
				Data:   map[string]interface{}{"assertion": cond, "evaluated_to": false},
			}, nil
		}
	}

	msg := stringArg(call.Args, "success_msg")
	if msg == "" {
		msg = "All assertions passed"
	}
	return &Result{Msg: msg}, nil
}
