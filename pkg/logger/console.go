package logger

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cast"

	"github.com/jimyag/playcore/pkg/playbook"
	"github.com/jimyag/playcore/pkg/report"
)

// 颜色代码
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
)

const headerWidth = 60

// Console 以 PLAY/TASK/RECAP 的格式把执行事件输出到终端
//
// 多台主机的结果并发到达，同一任务名只打印一次头部。
type Console struct {
	mu       sync.Mutex
	out      io.Writer
	color    bool
	verbose  bool
	lastTask string
}

// NewConsole 创建控制台输出
func NewConsole(out io.Writer, color, verbose bool) *Console {
	return &Console{out: out, color: color, verbose: verbose}
}

func (c *Console) paint(color, s string) string {
	if !c.color {
		return s
	}
	return color + s + ColorReset
}

func header(prefix string) string {
	n := headerWidth - len(prefix) - 1
	if n < 3 {
		n = 3
	}
	return prefix + " " + strings.Repeat("*", n)
}

// PlayStart 打印 Play 头部
func (c *Console) PlayStart(play *playbook.Play, hosts []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastTask = ""
	fmt.Fprintf(c.out, "\n%s\n", header(fmt.Sprintf("PLAY [%s]", play.Name)))
	if len(hosts) == 0 {
		fmt.Fprintln(c.out, c.paint(ColorCyan, "skipping: no hosts matched"))
	}
}

// TaskResult 打印任务结果，任务名变化时先打印头部
func (c *Console) TaskResult(res *report.TaskResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kind := "TASK"
	if res.Handler {
		kind = "RUNNING HANDLER"
	}
	title := kind + " [" + res.Task + "]"
	if title != c.lastTask {
		c.lastTask = title
		fmt.Fprintf(c.out, "\n%s\n", header(title))
	}

	if items, ok := res.Data["results"].([]interface{}); ok {
		for _, item := range items {
			if m, ok := item.(map[string]interface{}); ok {
				c.itemLine(res.Host, m)
			}
		}
	}
	c.resultLine(res)
}

func (c *Console) resultLine(res *report.TaskResult) {
	var line string
	switch res.Status {
	case report.StatusOK:
		line = c.paint(ColorGreen, fmt.Sprintf("ok: [%s]", res.Host))
	case report.StatusChanged:
		line = c.paint(ColorYellow, fmt.Sprintf("changed: [%s]", res.Host))
	case report.StatusSkipped:
		line = c.paint(ColorCyan, fmt.Sprintf("skipping: [%s]", res.Host))
	case report.StatusUnreachable:
		line = c.paint(ColorRed, fmt.Sprintf("fatal: [%s]: UNREACHABLE! => %s", res.Host, res.Msg))
	case report.StatusFailed:
		line = c.paint(ColorRed, fmt.Sprintf("fatal: [%s]: FAILED! => %s", res.Host, res.Msg))
	}
	if c.verbose && res.Msg != "" && (res.Status == report.StatusOK || res.Status == report.StatusChanged) {
		line += fmt.Sprintf(" => %s", res.Msg)
	}
	fmt.Fprintln(c.out, line)
	if res.Ignored {
		fmt.Fprintln(c.out, c.paint(ColorCyan, "...ignoring"))
	}
}

func (c *Console) itemLine(host string, item map[string]interface{}) {
	loopVar := cast.ToString(item["ansible_loop_var"])
	if loopVar == "" {
		loopVar = "item"
	}
	label := cast.ToString(item[loopVar])
	if label == "" {
		label = fmt.Sprint(item[loopVar])
	}

	switch {
	case cast.ToBool(item["failed"]):
		fmt.Fprintln(c.out, c.paint(ColorRed, fmt.Sprintf("failed: [%s] (item=%s) => %s", host, label, cast.ToString(item["msg"]))))
	case cast.ToBool(item["skipped"]):
		fmt.Fprintln(c.out, c.paint(ColorCyan, fmt.Sprintf("skipping: [%s] (item=%s)", host, label)))
	case cast.ToBool(item["changed"]):
		fmt.Fprintln(c.out, c.paint(ColorYellow, fmt.Sprintf("changed: [%s] (item=%s)", host, label)))
	default:
		fmt.Fprintln(c.out, c.paint(ColorGreen, fmt.Sprintf("ok: [%s] (item=%s)", host, label)))
	}
}

// PlayEnd Play 结束时不输出内容
func (c *Console) PlayEnd(*playbook.Play) {}

// RunEnd 打印 PLAY RECAP
func (c *Console) RunEnd(rep *report.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\n%s\n", header("PLAY RECAP"))
	stats := rep.Stats()
	for _, host := range rep.Hosts() {
		s := stats[host]
		color := ColorGreen
		switch {
		case !s.IsSuccess():
			color = ColorRed
		case s.Changed > 0:
			color = ColorYellow
		}
		fmt.Fprintf(c.out, "%s : %s\n", c.paint(color, fmt.Sprintf("%-26s", host)), s.String())
	}
	fmt.Fprintln(c.out)
}
