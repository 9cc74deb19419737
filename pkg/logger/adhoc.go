package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/jimyag/playcore/pkg/playbook"
	"github.com/jimyag/playcore/pkg/report"
)

// Adhoc 单模块执行的输出：每台主机一行 "host | STATUS => {...}"
type Adhoc struct {
	mu    sync.Mutex
	out   io.Writer
	color bool
}

// NewAdhoc 创建 ad-hoc 输出
func NewAdhoc(out io.Writer, color bool) *Adhoc {
	return &Adhoc{out: out, color: color}
}

func (a *Adhoc) PlayStart(*playbook.Play, []string) {}
func (a *Adhoc) PlayEnd(*playbook.Play)             {}
func (a *Adhoc) RunEnd(*report.Report)              {}

// TaskResult 输出一台主机的结果
func (a *Adhoc) TaskResult(res *report.TaskResult) {
	status, color := "SUCCESS", ColorGreen
	switch res.Status {
	case report.StatusUnreachable:
		status, color = "UNREACHABLE!", ColorRed
	case report.StatusFailed:
		status, color = "FAILED!", ColorRed
	case report.StatusChanged:
		status, color = "CHANGED", ColorYellow
	case report.StatusSkipped:
		status, color = "SKIPPED", ColorCyan
	}

	data := res.Data
	if data == nil {
		data = map[string]interface{}{}
		if res.Msg != "" {
			data["msg"] = res.Msg
		}
	}
	body, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		body = []byte(fmt.Sprintf(`{"msg": "failed to marshal result: %v"}`, err))
	}

	line := fmt.Sprintf("%s | %s => %s", res.Host, status, body)
	if a.color {
		line = color + line + ColorReset
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	fmt.Fprintln(a.out, line)
}
