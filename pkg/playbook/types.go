// Package playbook 定义 Play/Task/Handler/Role 数据模型，以及从 YAML 加载它们的逻辑
package playbook

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Playbook 代表一个 Playbook 文件中的全部 play
type Playbook []Play

// Play 代表 Playbook 中的一个 play
type Play struct {
	Name         string                 `yaml:"name"`
	Hosts        string                 `yaml:"hosts"`
	GatherFacts  bool                   `yaml:"gather_facts"`
	Become       bool                   `yaml:"become"`
	BecomeUser   string                 `yaml:"become_user"`
	BecomeMethod string                 `yaml:"become_method"`
	Vars         map[string]interface{} `yaml:"vars"`
	Tags         StringList             `yaml:"tags"`
	Roles        []RoleSpec             `yaml:"roles"`
	Tasks        []Task                 `yaml:"tasks"`
	Handlers     []Handler              `yaml:"handlers"`
}

// LoopControl 对应 loop_control
type LoopControl struct {
	LoopVar string `yaml:"loop_var"`
}

// RoleContext 记录任务来自哪个 role 以及该 role 的变量
type RoleContext struct {
	Name     string
	Vars     map[string]interface{} // role vars 与 role 参数，进入 role 层
	Defaults map[string]interface{} // role defaults，进入 defaults 层
}

// Task 代表一个任务
//
// Module 为空且 Block 非空时表示 block 任务；Args 对执行器不透明。
type Task struct {
	Name         string
	Module       string
	Args         map[string]interface{}
	When         StringList
	Loop         interface{}
	LoopControl  LoopControl
	Tags         StringList
	Notify       StringList
	Listen       StringList
	Register     string
	IgnoreErrors bool
	Vars         map[string]interface{}
	ChangedWhen  StringList
	FailedWhen   StringList
	Become       *bool
	BecomeUser   string
	CheckMode    *bool

	Block  []Task
	Rescue []Task
	Always []Task

	Role *RoleContext
	Line int
}

// Handler 只能通过 notify 触发的任务
type Handler struct {
	Task
}

// HandlerName 返回 handler 名
func (h Handler) HandlerName() string { return h.Name }

// ListenTopics 返回 handler 监听的主题
func (h Handler) ListenTopics() []string { return h.Listen }

// IsBlock 是否为 block 任务
func (t *Task) IsBlock() bool {
	return t.Module == "" && (len(t.Block) > 0 || len(t.Rescue) > 0 || len(t.Always) > 0)
}

// DisplayName 返回用于输出的任务名，没有 name 时使用模块名
func (t *Task) DisplayName() string {
	name := t.Name
	if name == "" {
		name = t.Module
		if t.IsBlock() {
			name = "block"
		}
	}
	if t.Role != nil && t.Role.Name != "" {
		return t.Role.Name + " : " + name
	}
	return name
}

// taskKeywords 是任务上的关键字，其余键都被当作模块名
var taskKeywords = map[string]bool{
	"name":          true,
	"when":          true,
	"loop":          true,
	"with_items":    true,
	"loop_control":  true,
	"tags":          true,
	"notify":        true,
	"listen":        true,
	"register":      true,
	"ignore_errors": true,
	"vars":          true,
	"args":          true,
	"block":         true,
	"rescue":        true,
	"always":        true,
	"changed_when":  true,
	"failed_when":   true,
	"become":        true,
	"become_user":   true,
	"check_mode":    true,
	"no_log":        true,
}

// freeFormModules 的短格式参数整体作为 _raw_params，不按 k=v 拆分
var freeFormModules = map[string]bool{
	"command":       true,
	"shell":         true,
	"raw":           true,
	"meta":          true,
	"import_tasks":  true,
	"include_tasks": true,
}

// UnmarshalYAML 自定义 Task 的 YAML 解析
func (t *Task) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: task must be a mapping", value.Line)
	}

	// 使用辅助结构解析已知字段
	type TaskFields struct {
		Name         string                 `yaml:"name"`
		When         StringList             `yaml:"when"`
		Loop         interface{}            `yaml:"loop"`
		WithItems    interface{}            `yaml:"with_items"`
		LoopControl  LoopControl            `yaml:"loop_control"`
		Tags         StringList             `yaml:"tags"`
		Notify       StringList             `yaml:"notify"`
		Listen       StringList             `yaml:"listen"`
		Register     string                 `yaml:"register"`
		IgnoreErrors bool                   `yaml:"ignore_errors"`
		Vars         map[string]interface{} `yaml:"vars"`
		Args         map[string]interface{} `yaml:"args"`
		ChangedWhen  StringList             `yaml:"changed_when"`
		FailedWhen   StringList             `yaml:"failed_when"`
		Become       *bool                  `yaml:"become"`
		BecomeUser   string                 `yaml:"become_user"`
		CheckMode    *bool                  `yaml:"check_mode"`
		Block        []Task                 `yaml:"block"`
		Rescue       []Task                 `yaml:"rescue"`
		Always       []Task                 `yaml:"always"`
	}

	var fields TaskFields
	if err := value.Decode(&fields); err != nil {
		return err
	}

	*t = Task{
		Name:         fields.Name,
		When:         fields.When,
		Loop:         fields.Loop,
		LoopControl:  fields.LoopControl,
		Tags:         fields.Tags,
		Notify:       fields.Notify,
		Listen:       fields.Listen,
		Register:     fields.Register,
		IgnoreErrors: fields.IgnoreErrors,
		Vars:         fields.Vars,
		ChangedWhen:  fields.ChangedWhen,
		FailedWhen:   fields.FailedWhen,
		Become:       fields.Become,
		BecomeUser:   fields.BecomeUser,
		CheckMode:    fields.CheckMode,
		Block:        fields.Block,
		Rescue:       fields.Rescue,
		Always:       fields.Always,
		Line:         value.Line,
	}
	if t.Loop == nil {
		t.Loop = fields.WithItems
	}

	// 其余键都是模块名
	var modules []string
	for i := 0; i+1 < len(value.Content); i += 2 {
		key := value.Content[i].Value
		if taskKeywords[key] {
			continue
		}
		modules = append(modules, key)

		args, err := decodeModuleArgs(key, value.Content[i+1])
		if err != nil {
			return fmt.Errorf("line %d: %w", value.Line, err)
		}
		t.Module = key
		t.Args = args
	}

	switch {
	case len(modules) > 1:
		sort.Strings(modules)
		return fmt.Errorf("line %d: conflicting action statements: %s", value.Line, strings.Join(modules, ", "))
	case len(modules) == 1 && len(t.Block) > 0:
		return fmt.Errorf("line %d: task %q mixes block with module %s", value.Line, t.Name, t.Module)
	case len(modules) == 0 && !t.IsBlock():
		return fmt.Errorf("line %d: no module found in task: %s", value.Line, t.Name)
	}

	// args: 中的参数补充到模块参数，模块行内参数优先
	if t.Args == nil && len(fields.Args) > 0 {
		return fmt.Errorf("line %d: args given without a module", value.Line)
	}
	for k, v := range fields.Args {
		if _, ok := t.Args[k]; !ok {
			t.Args[k] = v
		}
	}
	return nil
}

// decodeModuleArgs 解析模块参数
//
// 短格式 "command: uptime" 作为 _raw_params；非自由格式模块的短格式按 k=v 拆分；
// 长格式直接解码为 map。
func decodeModuleArgs(module string, node *yaml.Node) (map[string]interface{}, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" || node.Value == "" {
			return map[string]interface{}{}, nil
		}
		if freeFormModules[module] {
			return map[string]interface{}{"_raw_params": node.Value}, nil
		}
		return ParseArgs(node.Value), nil
	case yaml.MappingNode:
		args := make(map[string]interface{})
		if err := node.Decode(&args); err != nil {
			return nil, fmt.Errorf("failed to parse module args: %w", err)
		}
		return args, nil
	default:
		return nil, fmt.Errorf("unsupported module args format for module %s", module)
	}
}

// StringList 接受单个标量或标量列表
type StringList []string

// UnmarshalYAML 支持 "a" 与 ["a", "b"] 两种写法
func (l *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*l = nil
			return nil
		}
		*l = StringList{value.Value}
		return nil
	case yaml.SequenceNode:
		out := make(StringList, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: expected a scalar list item", item.Line)
			}
			out = append(out, item.Value)
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", value.Line)
	}
}

// Contains 列表中是否包含 s
func (l StringList) Contains(s string) bool {
	for _, item := range l {
		if item == s {
			return true
		}
	}
	return false
}

// RoleSpec play 中 roles: 的一项
type RoleSpec struct {
	Name string
	Vars map[string]interface{}
	When StringList
	Tags StringList
}

// UnmarshalYAML 支持字符串或字典两种写法
func (s *RoleSpec) UnmarshalYAML(value *yaml.Node) error {
	var raw interface{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	spec, err := ParseRoleSpec(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*s = spec
	return nil
}

// Role 加载后的 role
type Role struct {
	Name     string
	Path     string
	Vars     map[string]interface{}
	Defaults map[string]interface{}
	Tasks    []Task
	Handlers []Handler
}

// ParsePlaybook 解析 Playbook YAML，不展开 roles 与 import_tasks
func ParsePlaybook(data []byte) (Playbook, error) {
	var playbook Playbook
	if err := yaml.Unmarshal(data, &playbook); err != nil {
		return nil, fmt.Errorf("failed to parse playbook: %w", err)
	}

	for i := range playbook {
		if playbook[i].Vars == nil {
			playbook[i].Vars = make(map[string]interface{})
		}
	}

	return playbook, nil
}
