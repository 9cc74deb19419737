package executor

import (
	"github.com/jimyag/playcore/pkg/playbook"
	"github.com/jimyag/playcore/pkg/report"
)

// Callback 接收运行过程中的事件，可能被多个主机的 goroutine 并发调用
type Callback interface {
	PlayStart(play *playbook.Play, hosts []string)
	TaskResult(res *report.TaskResult)
	PlayEnd(play *playbook.Play)
	RunEnd(rep *report.Report)
}

type nopCallback struct{}

func (nopCallback) PlayStart(*playbook.Play, []string) {}
func (nopCallback) TaskResult(*report.TaskResult)      {}
func (nopCallback) PlayEnd(*playbook.Play)             {}
func (nopCallback) RunEnd(*report.Report)              {}
