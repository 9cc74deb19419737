package executor

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jimyag/playcore/pkg/connection"
	perrors "github.com/jimyag/playcore/pkg/errors"
	"github.com/jimyag/playcore/pkg/logger"
	"github.com/jimyag/playcore/pkg/module"
)

// forEachHost 以最多 forks 个并发处理主机，每台主机的工作在自己的 goroutine 内串行
//
// 单台主机的失败不会取消其他主机，所以这里不使用 errgroup.WithContext。
// ctx 取消后尚未开始的主机不再派发。
func forEachHost(ctx context.Context, hosts []string, forks int, fn func(ctx context.Context, host string)) {
	var g errgroup.Group
	g.SetLimit(forks)
	for _, host := range hosts {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			fn(ctx, host)
			return nil
		})
	}
	_ = g.Wait()
}

// connPool 按主机缓存连接，首次需要时才建立，运行结束统一关闭
type connPool struct {
	connector connection.Connector
	timeout   time.Duration

	mu    sync.Mutex
	conns map[string]*connEntry
}

type connEntry struct {
	once sync.Once
	conn connection.Conn
	err  error
}

func newConnPool(connector connection.Connector, timeout time.Duration) *connPool {
	return &connPool{
		connector: connector,
		timeout:   timeout,
		conns:     make(map[string]*connEntry),
	}
}

// get 返回主机的连接；建立失败的结果同样被缓存，主机在本次运行内保持不可达
func (p *connPool) get(ctx context.Context, params connection.Params) (connection.Conn, error) {
	p.mu.Lock()
	entry, ok := p.conns[params.Name]
	if !ok {
		entry = &connEntry{}
		p.conns[params.Name] = entry
	}
	p.mu.Unlock()

	entry.once.Do(func() {
		connCtx := ctx
		if p.timeout > 0 {
			var cancel context.CancelFunc
			connCtx, cancel = context.WithTimeout(ctx, p.timeout)
			defer cancel()
		}
		entry.conn, entry.err = p.connector.Connect(connCtx, params)
	})
	return entry.conn, entry.err
}

func (p *connPool) closeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, entry := range p.conns {
		if entry.conn != nil {
			if err := entry.conn.Close(); err != nil {
				logger.Warnf("close connection to %s: %v", name, err)
			}
		}
		delete(p.conns, name)
	}
}

// invoke 在超时控制下调用模块
//
// 模块不响应 ctx 时也会在超时后立即返回，调用 goroutine 自行结束。
// 超时返回 TimeoutError，运行被取消返回 CancelledError。
func invoke(ctx context.Context, mod module.Module, call *module.Call, timeout time.Duration) (*module.Result, error) {
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	type outcome struct {
		res *module.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := mod.Execute(callCtx, call)
		done <- outcome{res, err}
	}()

	select {
	case out := <-done:
		if out.err != nil && callCtx.Err() != nil {
			return nil, interrupted(ctx, call, timeout)
		}
		return out.res, out.err
	case <-callCtx.Done():
		return nil, interrupted(ctx, call, timeout)
	}
}

func interrupted(ctx context.Context, call *module.Call, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return perrors.NewCancelledError(call.Host, call.Task, err)
	}
	return perrors.NewTimeoutError(call.Host, call.Task, timeout)
}
