// Package handler 收集一个 play 中的 notify 事件，在刷新点按主机去重后交给执行器
package handler

import "sync"

// Queue 每台主机一个按插入顺序去重的 handler 名集合
type Queue struct {
	mu    sync.Mutex
	hosts map[string]*pending
}

type pending struct {
	order []string
	seen  map[string]struct{}
}

// NewQueue 创建空队列
func NewQueue() *Queue {
	return &Queue{hosts: make(map[string]*pending)}
}

// Notify 为主机登记一个或多个 handler，重复通知被忽略
func (q *Queue) Notify(host string, names ...string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	p, ok := q.hosts[host]
	if !ok {
		p = &pending{seen: make(map[string]struct{})}
		q.hosts[host] = p
	}
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, dup := p.seen[name]; dup {
			continue
		}
		p.seen[name] = struct{}{}
		p.order = append(p.order, name)
	}
}

// Take 取出并清空主机的通知
func (q *Queue) Take(host string) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, ok := q.hosts[host]
	if !ok {
		return nil
	}
	delete(q.hosts, host)
	return p.order
}

// Clear 清空主机的通知
func (q *Queue) Clear(host string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.hosts, host)
}

// Handler 是 Select 需要的 handler 视图
type Handler interface {
	HandlerName() string
	ListenTopics() []string
}

// Select 按 handler 定义顺序返回被通知的 handler
//
// 通知名既可以匹配 handler 的 name，也可以匹配其 listen 列表。
// 没有任何通知时返回 nil，handler 不会被推测执行。
func Select[H Handler](handlers []H, notified []string) []H {
	if len(notified) == 0 {
		return nil
	}
	want := make(map[string]struct{}, len(notified))
	for _, n := range notified {
		want[n] = struct{}{}
	}

	var out []H
	for _, h := range handlers {
		if _, ok := want[h.HandlerName()]; ok {
			out = append(out, h)
			continue
		}
		for _, topic := range h.ListenTopics() {
			if _, ok := want[topic]; ok {
				out = append(out, h)
				break
			}
		}
	}
	return out
}
