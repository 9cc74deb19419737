// Package module 定义模块插件接口以及引擎内置的模块
//
// 执行器只通过 Module 接口调用模块，不关心模块内部实现；
// 模块参数在调用前已完成模板渲染。
package module

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jimyag/playcore/pkg/connection"
	perrors "github.com/jimyag/playcore/pkg/errors"
	"github.com/jimyag/playcore/pkg/vars"
)

// Call 一次模块调用的全部输入
type Call struct {
	Host         string
	Task         string
	Args         map[string]interface{}
	Vars         vars.Snapshot // 只读，其中的魔法变量在主机之间共享
	CheckMode    bool
	Become       bool
	BecomeUser   string
	BecomeMethod string

	// Conn 对控制端模块为 nil
	Conn connection.Conn
}

// Exec 按调用的 become 设置执行命令
func (c *Call) Exec(ctx context.Context, cmd string) (*connection.ExecResult, error) {
	if c.Conn == nil {
		return nil, fmt.Errorf("no connection to %s", c.Host)
	}
	return c.Conn.Exec(ctx, cmd, connection.ExecOptions{
		Become:       c.Become,
		BecomeUser:   c.BecomeUser,
		BecomeMethod: c.BecomeMethod,
	})
}

// Module 模块插件接口
//
// 返回 error 表示模块无法完成调用（参数错误、连接中断、ctx 取消）；
// 模块自身判定的失败通过 Result.Failed 报告。
type Module interface {
	Execute(ctx context.Context, call *Call) (*Result, error)
}

// ControllerModule 在控制端执行、不需要连接的模块
type ControllerModule interface {
	Module
	RunsOnController() bool
}

// NeedsConnection 模块是否需要先建立到主机的连接
func NeedsConnection(m Module) bool {
	cm, ok := m.(ControllerModule)
	return !ok || !cm.RunsOnController()
}

// Registry 模块注册表
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]Module)}
}

// Builtins 创建包含全部内置模块的注册表
func Builtins() *Registry {
	r := NewRegistry()
	r.Register("ping", PingModule{})
	r.Register("command", CommandModule{})
	r.Register("shell", CommandModule{Shell: true})
	r.Register("raw", CommandModule{Raw: true})
	r.Register("copy", CopyModule{})
	r.Register("template", TemplateModule{})
	r.Register("file", FileModule{})
	r.Register("lineinfile", LineinfileModule{})
	r.Register("debug", DebugModule{})
	r.Register("set_fact", SetFactModule{})
	r.Register("fail", FailModule{})
	r.Register("assert", AssertModule{})
	r.Register("setup", SetupModule{})
	return r
}

// Register 注册模块，同名覆盖
func (r *Registry) Register(name string, m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[name] = m
}

// Lookup 查找模块，支持 ansible.builtin.xxx 形式的全限定名
func (r *Registry) Lookup(name string) (Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if m, ok := r.modules[name]; ok {
		return m, nil
	}
	for _, prefix := range []string{"ansible.builtin.", "ansible.legacy."} {
		if short, ok := strings.CutPrefix(name, prefix); ok {
			if m, ok := r.modules[short]; ok {
				return m, nil
			}
		}
	}
	return nil, perrors.NewModuleNotFoundError(name)
}

// Has 是否注册了该模块
func (r *Registry) Has(name string) bool {
	_, err := r.Lookup(name)
	return err == nil
}

// Names 返回已注册的模块名（排序）
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.modules))
	for n := range r.modules {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
