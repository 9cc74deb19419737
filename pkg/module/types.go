package module

import "strings"

// Result 模块执行结果
type Result struct {
	Changed      bool                   `json:"changed"`
	Failed       bool                   `json:"failed,omitempty"`
	Skipped      bool                   `json:"skipped,omitempty"`
	Msg          string                 `json:"msg,omitempty"`
	Cmd          string                 `json:"cmd,omitempty"` // command/shell/raw 执行的命令
	RC           int                    `json:"rc,omitempty"`
	Stdout       string                 `json:"stdout,omitempty"`
	Stderr       string                 `json:"stderr,omitempty"`
	AnsibleFacts map[string]interface{} `json:"ansible_facts,omitempty"` // setup/set_fact 产生的 facts
	Data         map[string]interface{} `json:"-"`                       // 其他动态字段
}

// Map 转为 register 使用的 map
func (r *Result) Map() map[string]interface{} {
	m := map[string]interface{}{
		"changed": r.Changed,
		"failed":  r.Failed,
	}
	if r.Skipped {
		m["skipped"] = true
	}
	if r.Msg != "" {
		m["msg"] = r.Msg
	}
	if r.Cmd != "" {
		m["cmd"] = r.Cmd
		m["rc"] = r.RC
		m["stdout"] = r.Stdout
		m["stderr"] = r.Stderr
		m["stdout_lines"] = lines(r.Stdout)
		m["stderr_lines"] = lines(r.Stderr)
	}
	if len(r.AnsibleFacts) > 0 {
		m["ansible_facts"] = r.AnsibleFacts
	}
	for k, v := range r.Data {
		if _, exists := m[k]; !exists {
			m[k] = v
		}
	}
	return m
}

func lines(s string) []interface{} {
	out := []interface{}{}
	if s == "" {
		return out
	}
	for _, l := range strings.Split(s, "\n") {
		out = append(out, l)
	}
	return out
}
