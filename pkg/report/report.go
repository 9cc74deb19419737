// Package report 汇总一次运行中每个 (主机, 任务) 的结果
package report

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	perrors "github.com/jimyag/playcore/pkg/errors"
)

// Status 任务在某台主机上的结果状态
type Status string

const (
	StatusOK          Status = "ok"
	StatusChanged     Status = "changed"
	StatusFailed      Status = "failed"
	StatusSkipped     Status = "skipped"
	StatusUnreachable Status = "unreachable"
)

// TaskResult 任务执行结果
type TaskResult struct {
	Play    string
	Task    string
	Host    string
	Status  Status
	Ignored bool // 失败但设置了 ignore_errors
	Handler bool
	Msg     string
	Data    map[string]interface{}
	Err     error
	End     time.Time
}

// ErrKind 返回错误类型，没有 ExecutionError 时返回 false
func (r *TaskResult) ErrKind() (perrors.ErrorType, bool) {
	if r.Err == nil {
		return 0, false
	}
	return perrors.TypeOf(r.Err)
}

// HostStats 主机统计信息
type HostStats struct {
	Ok          int
	Changed     int
	Failed      int
	Skipped     int
	Unreachable int
	Ignored     int
	Rescued     int
}

// String 返回格式化的统计信息
func (s *HostStats) String() string {
	return fmt.Sprintf("ok=%d changed=%d unreachable=%d failed=%d skipped=%d rescued=%d ignored=%d",
		s.Ok, s.Changed, s.Unreachable, s.Failed, s.Skipped, s.Rescued, s.Ignored)
}

// IsSuccess 检查主机是否成功
func (s *HostStats) IsSuccess() bool {
	return s.Failed == 0 && s.Unreachable == 0
}

// RunStatus 整体运行状态
type RunStatus string

const (
	RunSuccess        RunStatus = "success"
	RunPartialFailure RunStatus = "partial-failure"
	RunTotalFailure   RunStatus = "total-failure"
)

// 退出码与常见自动化工具保持一致
const (
	ExitOK          = 0
	ExitFailed      = 2
	ExitUnreachable = 4
)

// Report 一次运行的报告，可并发写入
type Report struct {
	RunID string

	mu        sync.Mutex
	results   []TaskResult
	stats     map[string]*HostStats
	hostOrder []string
	started   time.Time
	finished  time.Time
}

// New 创建报告
func New() *Report {
	return &Report{
		RunID:   uuid.NewString(),
		stats:   make(map[string]*HostStats),
		started: time.Now(),
	}
}

// AddHost 登记目标主机，保证没有任务结果的主机也出现在汇总中
func (r *Report) AddHost(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hostStats(host)
}

func (r *Report) hostStats(host string) *HostStats {
	s, ok := r.stats[host]
	if !ok {
		s = &HostStats{}
		r.stats[host] = s
		r.hostOrder = append(r.hostOrder, host)
	}
	return s
}

// Add 记录一条结果并更新主机统计
func (r *Report) Add(res TaskResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.results = append(r.results, res)
	s := r.hostStats(res.Host)
	switch res.Status {
	case StatusOK:
		s.Ok++
	case StatusChanged:
		s.Ok++
		s.Changed++
	case StatusSkipped:
		s.Skipped++
	case StatusUnreachable:
		s.Unreachable++
	case StatusFailed:
		if res.Ignored {
			s.Ignored++
		} else {
			s.Failed++
		}
	}
}

// Rescued 记录主机的一个 block 失败被 rescue 处理
func (r *Report) Rescued(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.hostStats(host)
	s.Rescued++
	// 被 rescue 的失败不计入 failed
	if s.Failed > 0 {
		s.Failed--
	}
}

// Finish 标记运行结束
func (r *Report) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = time.Now()
}

// Duration 运行耗时
func (r *Report) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	end := r.finished
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(r.started)
}

// Results 按记录顺序返回全部结果
func (r *Report) Results() []TaskResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TaskResult(nil), r.results...)
}

// HostResults 返回某台主机的结果（按执行顺序）
func (r *Report) HostResults(host string) []TaskResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []TaskResult
	for _, res := range r.results {
		if res.Host == host {
			out = append(out, res)
		}
	}
	return out
}

// Stats 返回主机统计的副本
func (r *Report) Stats() map[string]HostStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]HostStats, len(r.stats))
	for h, s := range r.stats {
		out[h] = *s
	}
	return out
}

// Hosts 按名称排序返回出现过的主机
func (r *Report) Hosts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	hosts := append([]string(nil), r.hostOrder...)
	sort.Strings(hosts)
	return hosts
}

// Status 计算整体状态：没有失败为 success，全部主机失败为 total-failure
func (r *Report) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	bad := 0
	for _, s := range r.stats {
		if !s.IsSuccess() {
			bad++
		}
	}
	switch {
	case bad == 0:
		return RunSuccess
	case bad == len(r.stats):
		return RunTotalFailure
	default:
		return RunPartialFailure
	}
}

// ExitCode 有不可达主机返回 4，有失败返回 2，否则 0
func (r *Report) ExitCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	code := ExitOK
	for _, s := range r.stats {
		if s.Unreachable > 0 {
			return ExitUnreachable
		}
		if s.Failed > 0 {
			code = ExitFailed
		}
	}
	return code
}
