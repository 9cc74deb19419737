package playbook

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cast"
)

// maxIncludeDepth 防止 import_tasks 互相包含导致无限递归
const maxIncludeDepth = 32

// TaskIncluder 静态展开 import_tasks / include_tasks / import_role / include_role
type TaskIncluder struct {
	roles *RoleLoader
}

// NewTaskIncluder 创建任务包含处理器
func NewTaskIncluder(roles *RoleLoader) *TaskIncluder {
	return &TaskIncluder{roles: roles}
}

// Expanded 展开结果，Handlers 是被包含的 role 带来的 handler
type Expanded struct {
	Tasks    []Task
	Handlers []Handler
}

// ExpandTasks 递归展开任务列表，dir 是相对路径的基准目录
func (ti *TaskIncluder) ExpandTasks(tasks []Task, dir string) (*Expanded, error) {
	out := &Expanded{}
	if err := ti.expand(tasks, dir, 0, out, &out.Tasks); err != nil {
		return nil, err
	}
	return out, nil
}

func (ti *TaskIncluder) expand(tasks []Task, dir string, depth int, out *Expanded, dst *[]Task) error {
	if depth > maxIncludeDepth {
		return fmt.Errorf("task includes nested deeper than %d levels", maxIncludeDepth)
	}

	for _, task := range tasks {
		switch normalizeModuleName(task.Module) {
		case "import_tasks", "include_tasks":
			included, err := ti.includeTasks(&task, dir)
			if err != nil {
				return err
			}
			if err := ti.expand(included, filepath.Dir(ti.resolvedPath(&task, dir)), depth+1, out, dst); err != nil {
				return err
			}
		case "import_role", "include_role":
			role, err := ti.includeRole(&task)
			if err != nil {
				return err
			}
			if err := ti.expand(role.Tasks, filepath.Join(role.Path, "tasks"), depth+1, out, dst); err != nil {
				return err
			}
			out.Handlers = append(out.Handlers, role.Handlers...)
		default:
			if task.IsBlock() {
				var err error
				if task.Block, err = ti.expandChildren(task.Block, dir, depth, out); err != nil {
					return err
				}
				if task.Rescue, err = ti.expandChildren(task.Rescue, dir, depth, out); err != nil {
					return err
				}
				if task.Always, err = ti.expandChildren(task.Always, dir, depth, out); err != nil {
					return err
				}
			}
			*dst = append(*dst, task)
		}
	}
	return nil
}

func (ti *TaskIncluder) expandChildren(tasks []Task, dir string, depth int, out *Expanded) ([]Task, error) {
	if len(tasks) == 0 {
		return nil, nil
	}
	var children []Task
	if err := ti.expand(tasks, dir, depth+1, out, &children); err != nil {
		return nil, err
	}
	return children, nil
}

func (ti *TaskIncluder) resolvedPath(task *Task, dir string) string {
	file := cast.ToString(task.Args["file"])
	if file == "" {
		file = cast.ToString(task.Args["_raw_params"])
	}
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(dir, file)
}

// includeTasks 读取被包含的任务文件
//
// 包含任务上的 vars 进入 role/include 层，when 和 tags 下发给每个被包含的任务。
func (ti *TaskIncluder) includeTasks(task *Task, dir string) ([]Task, error) {
	if cast.ToString(task.Args["file"]) == "" && cast.ToString(task.Args["_raw_params"]) == "" {
		return nil, fmt.Errorf("line %d: %s requires a file", task.Line, task.Module)
	}

	path := ti.resolvedPath(task, dir)
	if filepath.Ext(path) == "" {
		found, err := findYAML(filepath.Dir(path), filepath.Base(path))
		if err != nil {
			return nil, fmt.Errorf("failed to read tasks file: %w", err)
		}
		path = found
	}

	var tasks []Task
	if err := readYAML(path, &tasks); err != nil {
		return nil, fmt.Errorf("failed to read tasks file: %w", err)
	}

	ctx := includeContext(task)
	for i := range tasks {
		inherit(&tasks[i], ctx, task.When, task.Tags)
	}
	return tasks, nil
}

// includeContext 合并外层 role 上下文和包含任务自身的 vars
func includeContext(task *Task) *RoleContext {
	if len(task.Vars) == 0 {
		return task.Role
	}
	ctx := &RoleContext{Vars: make(map[string]interface{})}
	if task.Role != nil {
		ctx.Name = task.Role.Name
		ctx.Defaults = task.Role.Defaults
		for k, v := range task.Role.Vars {
			ctx.Vars[k] = v
		}
	}
	for k, v := range task.Vars {
		ctx.Vars[k] = v
	}
	return ctx
}

// includeRole 展开 include_role / import_role
func (ti *TaskIncluder) includeRole(task *Task) (*Role, error) {
	name := cast.ToString(task.Args["name"])
	if name == "" {
		return nil, fmt.Errorf("line %d: %s requires 'name' parameter", task.Line, task.Module)
	}

	spec := RoleSpec{
		Name: name,
		Vars: make(map[string]interface{}),
		When: task.When,
		Tags: task.Tags,
	}
	for k, v := range cast.ToStringMap(task.Args["vars"]) {
		spec.Vars[k] = v
	}
	for k, v := range task.Vars {
		spec.Vars[k] = v
	}

	role, err := ti.roles.LoadRole(spec, cast.ToString(task.Args["tasks_from"]))
	if err != nil {
		return nil, fmt.Errorf("failed to load role '%s': %w", name, err)
	}
	return role, nil
}

// normalizeModuleName 移除 ansible.builtin. / ansible.legacy. 前缀
func normalizeModuleName(name string) string {
	for _, prefix := range []string{"ansible.builtin.", "ansible.legacy."} {
		if rest, ok := strings.CutPrefix(name, prefix); ok {
			return rest
		}
	}
	return name
}
