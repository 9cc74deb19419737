package playbook

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// RoleLoader 负责加载和解析 Roles
type RoleLoader struct {
	rolePaths []string // Role 搜索路径
}

// NewRoleLoader 创建 Role 加载器，extraPaths 优先于默认路径
func NewRoleLoader(playbookDir string, extraPaths ...string) *RoleLoader {
	paths := append([]string(nil), extraPaths...)
	paths = append(paths,
		filepath.Join(playbookDir, "roles"), // playbook 目录下的 roles/
		"./roles",                           // 当前目录的 roles/
	)
	return &RoleLoader{rolePaths: paths}
}

// LoadRole 加载指定的 Role
//
// tasksFrom 为空时加载 tasks/main，否则加载 tasks/<tasksFrom>。
// 任务与 handler 都带上 role 上下文，role 的 when/tags 合并到每个任务。
func (rl *RoleLoader) LoadRole(spec RoleSpec, tasksFrom string) (*Role, error) {
	rolePath, err := rl.findRolePath(spec.Name)
	if err != nil {
		return nil, err
	}

	role := &Role{
		Name:     spec.Name,
		Path:     rolePath,
		Vars:     make(map[string]interface{}),
		Defaults: make(map[string]interface{}),
	}

	// defaults 和 vars 是可选的
	if err := loadVarsFile(filepath.Join(rolePath, "defaults"), "main", role.Defaults); err != nil {
		return nil, fmt.Errorf("failed to load role defaults: %w", err)
	}
	if err := loadVarsFile(filepath.Join(rolePath, "vars"), "main", role.Vars); err != nil {
		return nil, fmt.Errorf("failed to load role vars: %w", err)
	}

	// role 参数优先于 vars/main
	for k, v := range spec.Vars {
		role.Vars[k] = v
	}

	ctx := &RoleContext{Name: role.Name, Vars: role.Vars, Defaults: role.Defaults}

	if tasksFrom == "" {
		tasksFrom = "main"
	}
	tasksFile, err := findYAML(filepath.Join(rolePath, "tasks"), tasksFrom)
	if err != nil {
		return nil, fmt.Errorf("role %s: %w", spec.Name, err)
	}
	if err := readYAML(tasksFile, &role.Tasks); err != nil {
		return nil, fmt.Errorf("failed to load role tasks: %w", err)
	}
	for i := range role.Tasks {
		inherit(&role.Tasks[i], ctx, spec.When, spec.Tags)
	}

	handlersFile, err := findYAML(filepath.Join(rolePath, "handlers"), "main")
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := readYAML(handlersFile, &role.Handlers); err != nil {
			return nil, fmt.Errorf("failed to load role handlers: %w", err)
		}
		for i := range role.Handlers {
			inherit(&role.Handlers[i].Task, ctx, nil, nil)
		}
	}

	return role, nil
}

// findRolePath 查找 role 目录
func (rl *RoleLoader) findRolePath(roleName string) (string, error) {
	for _, basePath := range rl.rolePaths {
		rolePath := filepath.Join(basePath, roleName)
		if info, err := os.Stat(rolePath); err == nil && info.IsDir() {
			return rolePath, nil
		}
	}
	return "", fmt.Errorf("role not found: %s (searched: %v)", roleName, rl.rolePaths)
}

// inherit 把 role/import 上下文、条件和标签下发到任务及其子任务
func inherit(t *Task, ctx *RoleContext, when, tags StringList) {
	if ctx != nil && t.Role == nil {
		t.Role = ctx
	}
	if len(when) > 0 {
		t.When = append(append(StringList(nil), when...), t.When...)
	}
	for _, tag := range tags {
		if !t.Tags.Contains(tag) {
			t.Tags = append(t.Tags, tag)
		}
	}
	for _, children := range [][]Task{t.Block, t.Rescue, t.Always} {
		for i := range children {
			// block 的 when 已经作用在 block 上，子任务只继承上下文
			inherit(&children[i], ctx, nil, nil)
		}
	}
}

// findYAML 查找 dir/name，没有扩展名时依次尝试 .yaml 和 .yml
func findYAML(dir, name string) (string, error) {
	candidates := []string{filepath.Join(dir, name)}
	if filepath.Ext(name) == "" {
		candidates = []string{
			filepath.Join(dir, name+".yaml"),
			filepath.Join(dir, name+".yml"),
		}
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%s: %w", candidates[0], fs.ErrNotExist)
}

// loadVarsFile 把 dir/name 中的变量合并进 dst，文件不存在时忽略
func loadVarsFile(dir, name string, dst map[string]interface{}) error {
	path, err := findYAML(dir, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	var vars map[string]interface{}
	if err := readYAML(path, &vars); err != nil {
		return err
	}
	for k, v := range vars {
		dst[k] = v
	}
	return nil
}

func readYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// ParseRoleSpec 解析 role 规格（支持字符串或字典）
func ParseRoleSpec(roleData interface{}) (RoleSpec, error) {
	spec := RoleSpec{
		Vars: make(map[string]interface{}),
	}

	switch v := roleData.(type) {
	case string:
		// 简单格式: roles: [common, nginx]
		spec.Name = v
	case map[string]interface{}:
		// 字典格式: roles: [{role: common, port: 80}]
		if name, ok := v["role"].(string); ok {
			spec.Name = name
		} else if name, ok := v["name"].(string); ok {
			spec.Name = name
		} else {
			return spec, fmt.Errorf("role spec must have 'role' or 'name' field")
		}

		for k, val := range v {
			switch k {
			case "role", "name":
			case "when":
				spec.When = toStringList(val)
			case "tags":
				spec.Tags = toStringList(val)
			case "vars":
				for vk, vv := range cast.ToStringMap(val) {
					spec.Vars[vk] = vv
				}
			default:
				// 其他字段作为 role 参数
				spec.Vars[k] = val
			}
		}
	default:
		return spec, fmt.Errorf("unsupported role format: %T", roleData)
	}

	if spec.Name == "" {
		return spec, fmt.Errorf("role name cannot be empty")
	}

	return spec, nil
}

func toStringList(v interface{}) StringList {
	if items, ok := v.([]interface{}); ok {
		return StringList(cast.ToStringSlice(items))
	}
	return StringList{cast.ToString(v)}
}
