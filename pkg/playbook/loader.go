package playbook

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cast"

	perrors "github.com/jimyag/playcore/pkg/errors"
)

// ModuleSet 用于在加载时检查模块名是否存在
type ModuleSet interface {
	Has(name string) bool
}

// engineModules 由执行器直接处理，不经过模块注册表
var engineModules = map[string]bool{
	"meta": true,
}

// Loader 从文件加载 playbook 并展开 roles 与静态包含
type Loader struct {
	modules  ModuleSet
	roleDirs []string
}

// NewLoader 创建加载器；modules 为 nil 时不检查模块名
func NewLoader(modules ModuleSet, roleDirs ...string) *Loader {
	return &Loader{modules: modules, roleDirs: roleDirs}
}

// LoadFile 读取、展开并校验 playbook 文件
func (l *Loader) LoadFile(path string) (Playbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read playbook: %w", err)
	}

	pb, err := ParsePlaybook(data)
	if err != nil {
		return nil, perrors.NewParseError(path, err)
	}

	if err := l.Expand(pb, filepath.Dir(path)); err != nil {
		return nil, perrors.NewParseError(path, err)
	}
	if err := l.Validate(pb); err != nil {
		return nil, perrors.NewParseError(path, err)
	}
	return pb, nil
}

// Expand 原地展开每个 play 的 roles 与 import_tasks，dir 是 playbook 所在目录
//
// role 的任务排在 play 自身任务之前，role 的 handler 追加在 play handler 之后。
func (l *Loader) Expand(pb Playbook, dir string) error {
	roles := NewRoleLoader(dir, l.roleDirs...)
	includer := NewTaskIncluder(roles)

	for i := range pb {
		play := &pb[i]

		var tasks []Task
		var handlers []Handler
		for _, spec := range play.Roles {
			role, err := roles.LoadRole(spec, "")
			if err != nil {
				return fmt.Errorf("play %q: %w", play.Name, err)
			}
			expanded, err := includer.ExpandTasks(role.Tasks, filepath.Join(role.Path, "tasks"))
			if err != nil {
				return fmt.Errorf("play %q: role %s: %w", play.Name, role.Name, err)
			}
			tasks = append(tasks, expanded.Tasks...)
			handlers = append(handlers, role.Handlers...)
			handlers = append(handlers, expanded.Handlers...)
		}

		expanded, err := includer.ExpandTasks(play.Tasks, dir)
		if err != nil {
			return fmt.Errorf("play %q: %w", play.Name, err)
		}
		tasks = append(tasks, expanded.Tasks...)
		handlers = append(handlers, expanded.Handlers...)

		// handler 不支持包含，原样保留
		play.Tasks = tasks
		play.Handlers = append(play.Handlers, handlers...)
		play.Roles = nil

		// play 级 tags 下发到任务
		for j := range play.Tasks {
			inherit(&play.Tasks[j], nil, nil, play.Tags)
		}
	}
	return nil
}

// Validate 检查 playbook 中的全部问题并一次性返回
func (l *Loader) Validate(pb Playbook) error {
	var result *multierror.Error

	for i := range pb {
		play := &pb[i]
		where := fmt.Sprintf("play %d", i+1)
		if play.Name != "" {
			where = fmt.Sprintf("play %q", play.Name)
		}

		if play.Hosts == "" {
			result = multierror.Append(result, fmt.Errorf("%s: hosts is required", where))
		}

		topics := make(map[string]bool)
		for _, h := range play.Handlers {
			if h.Name == "" && len(h.Listen) == 0 {
				result = multierror.Append(result,
					fmt.Errorf("%s: handler at line %d needs a name or listen", where, h.Line))
			}
			topics[h.Name] = true
			for _, topic := range h.Listen {
				topics[topic] = true
			}
			l.validateTask(&h.Task, where, nil, &result)
		}

		for j := range play.Tasks {
			l.validateTask(&play.Tasks[j], where, topics, &result)
		}
	}

	return result.ErrorOrNil()
}

func (l *Loader) validateTask(t *Task, where string, topics map[string]bool, result **multierror.Error) {
	if t.IsBlock() {
		for _, children := range [][]Task{t.Block, t.Rescue, t.Always} {
			for i := range children {
				l.validateTask(&children[i], where, topics, result)
			}
		}
		return
	}

	name := normalizeModuleName(t.Module)
	switch {
	case name == "meta":
		action := cast.ToString(t.Args["_raw_params"])
		if action != "flush_handlers" && action != "noop" {
			*result = multierror.Append(*result,
				fmt.Errorf("%s: line %d: unsupported meta action %q", where, t.Line, action))
		}
	case engineModules[name]:
	case l.modules != nil && !l.modules.Has(name):
		*result = multierror.Append(*result,
			fmt.Errorf("%s: line %d: %w", where, t.Line, perrors.NewModuleNotFoundError(t.Module)))
	}

	if t.LoopControl.LoopVar != "" && t.Loop == nil {
		*result = multierror.Append(*result,
			fmt.Errorf("%s: line %d: loop_control without loop", where, t.Line))
	}

	if topics != nil {
		for _, n := range t.Notify {
			if !topics[n] {
				*result = multierror.Append(*result,
					fmt.Errorf("%s: line %d: notify references unknown handler %q", where, t.Line, n))
			}
		}
	}
}

// IsMeta 任务是否为 meta 指令，返回指令名
func (t *Task) IsMeta() (string, bool) {
	if normalizeModuleName(t.Module) != "meta" {
		return "", false
	}
	return cast.ToString(t.Args["_raw_params"]), true
}
