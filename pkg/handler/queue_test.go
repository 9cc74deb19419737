package handler

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestQueue_DedupPreservesOrder(t *testing.T) {
	q := NewQueue()
	q.Notify("web1", "restart nginx")
	q.Notify("web1", "reload firewall", "restart nginx")
	q.Notify("web1", "restart nginx")

	want := []string{"restart nginx", "reload firewall"}
	if diff := cmp.Diff(want, q.Take("web1")); diff != "" {
		t.Errorf("Take() mismatch (-want +got):\n%s", diff)
	}
	if got := q.Take("db1"); got != nil {
		t.Errorf("notification leaked to db1: %v", got)
	}
}

func TestQueue_TakeClears(t *testing.T) {
	q := NewQueue()
	q.Notify("web1", "a")
	if got := q.Take("web1"); len(got) != 1 {
		t.Fatalf("Take() = %v", got)
	}
	if got := q.Take("web1"); got != nil {
		t.Errorf("second Take() = %v, want nil", got)
	}
	q.Notify("web1", "b")
	q.Clear("web1")
	if got := q.Take("web1"); got != nil {
		t.Errorf("Take() after Clear = %v, want nil", got)
	}
}

func TestQueue_Concurrent(t *testing.T) {
	q := NewQueue()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Notify("web1", "h1", "h2")
		}()
	}
	wg.Wait()
	if diff := cmp.Diff([]string{"h1", "h2"}, q.Take("web1")); diff != "" {
		t.Errorf("Take() mismatch (-want +got):\n%s", diff)
	}
}

type fakeHandler struct {
	name   string
	listen []string
}

func (h fakeHandler) HandlerName() string    { return h.name }
func (h fakeHandler) ListenTopics() []string { return h.listen }

func TestSelect(t *testing.T) {
	handlers := []fakeHandler{
		{name: "restart nginx"},
		{name: "restart app", listen: []string{"restart web stack"}},
		{name: "reload firewall"},
	}

	tests := []struct {
		name     string
		notified []string
		want     []string
	}{
		{"none notified", nil, nil},
		{"definition order wins", []string{"reload firewall", "restart nginx"}, []string{"restart nginx", "reload firewall"}},
		{"listen topic", []string{"restart web stack"}, []string{"restart app"}},
		{"unknown name", []string{"nope"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, h := range Select(handlers, tt.notified) {
				got = append(got, h.name)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Select() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
