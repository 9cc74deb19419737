package inventory

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jimyag/playcore/pkg/errors"
)

func testInventory() *Inventory {
	inv := NewInventory()
	inv.AddHostToGroup("web1", "webservers")
	inv.AddHostToGroup("web2", "webservers")
	inv.AddHostToGroup("db1", "dbservers")
	inv.AddHostToGroup("web2", "staging")
	inv.AddHostToGroup("cache1", "staging")
	inv.AddChild("prod", "webservers")
	inv.AddChild("prod", "dbservers")
	inv.assignUngrouped()
	return inv
}

func names(hosts []*Host) []string {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, h.Name)
	}
	return out
}

func TestResolve(t *testing.T) {
	inv := testInventory()

	tests := []struct {
		pattern string
		want    []string
	}{
		{"all", []string{"web1", "web2", "db1", "cache1"}},
		{"*", []string{"web1", "web2", "db1", "cache1"}},
		{"webservers", []string{"web1", "web2"}},
		{"db1", []string{"db1"}},
		{"prod", []string{"web1", "web2", "db1"}},
		{"dbservers:webservers", []string{"db1", "web1", "web2"}},
		{"webservers,dbservers", []string{"web1", "web2", "db1"}},
		{"webservers:&staging", []string{"web2"}},
		{"webservers:!staging", []string{"web1"}},
		{"!staging:webservers", []string{"web1"}},
		{"webservers:&!dbservers", []string{"web1", "web2"}},
		{"prod:&!dbservers", []string{"web1", "web2"}},
		{"!dbservers", []string{"web1", "web2", "cache1"}},
		{"web*", []string{"web1", "web2"}},
		{"*servers:!web2", []string{"web1", "db1"}},
		{"nomatch*", []string{}},
		{"web1:web1:webservers", []string{"web1", "web2"}},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			hosts, err := inv.Resolve(tt.pattern)
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.pattern, err)
			}
			if diff := cmp.Diff(tt.want, names(hosts)); diff != "" {
				t.Errorf("Resolve(%q) mismatch (-want +got):\n%s", tt.pattern, diff)
			}
		})
	}
}

func TestResolveMixedOperators(t *testing.T) {
	inv := NewInventory()
	inv.AddHostToGroup("web1", "webservers")
	inv.AddHostToGroup("db1", "dbservers")

	hosts, err := inv.Resolve("webservers:&!dbservers")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"web1"}, names(hosts)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveIdempotent(t *testing.T) {
	inv := testInventory()
	patterns := []string{"all", "prod:!web1", "*:&staging", "webservers:dbservers:!db1"}

	for _, p := range patterns {
		first, err := inv.Resolve(p)
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 5; i++ {
			again, err := inv.Resolve(p)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(names(first), names(again)); diff != "" {
				t.Errorf("Resolve(%q) not stable (-first +again):\n%s", p, diff)
			}
		}
	}
}

func TestResolveErrors(t *testing.T) {
	inv := testInventory()

	for _, p := range []string{"missing", "webservers:&missing", "webservers:!nohost", ""} {
		t.Run(p, func(t *testing.T) {
			_, err := inv.Resolve(p)
			if err == nil {
				t.Fatalf("Resolve(%q) expected error", p)
			}
			if !errors.IsType(err, errors.ErrPatternResolution) {
				t.Errorf("Resolve(%q) error type = %v, want pattern resolution", p, err)
			}
		})
	}
}

func TestResolveWithLimit(t *testing.T) {
	inv := testInventory()

	hosts, err := inv.ResolveWithLimit("all", "webservers:!web1")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"web2"}, names(hosts)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestGroupVarLayers(t *testing.T) {
	inv := NewInventory()
	inv.AddHostToGroup("web1", "webservers")
	inv.AddChild("prod", "webservers")
	inv.AddGroup("all", map[string]interface{}{"env": "all"})
	inv.AddGroup("prod", map[string]interface{}{"env": "prod"})
	inv.AddGroup("webservers", map[string]interface{}{"env": "web"})

	if diff := cmp.Diff([]string{"all", "prod", "webservers"}, inv.HostGroups("web1")); diff != "" {
		t.Errorf("HostGroups mismatch (-want +got):\n%s", diff)
	}

	layers := inv.GroupVarLayers("web1")
	if len(layers) != 3 {
		t.Fatalf("GroupVarLayers() len = %d, want 3", len(layers))
	}
	if layers[2]["env"] != "web" {
		t.Errorf("highest group layer env = %v, want web", layers[2]["env"])
	}
	if diff := cmp.Diff([]string{"prod", "webservers"}, inv.GroupNamesOf("web1")); diff != "" {
		t.Errorf("GroupNamesOf mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateCycle(t *testing.T) {
	inv := NewInventory()
	inv.AddChild("a", "b")
	inv.AddChild("b", "c")
	inv.AddChild("c", "a")

	if err := inv.Validate(); err == nil {
		t.Fatal("Validate() expected cycle error")
	}

	// 有环时变量继承仍需终止
	inv.AddHostToGroup("h1", "c")
	_ = inv.GroupVarLayers("h1")

	if err := testInventory().Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}
