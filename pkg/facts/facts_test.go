package facts

import (
	"context"
	"fmt"
	"io/fs"
	"reflect"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jimyag/playcore/pkg/connection"
)

func TestStore_LastWriteWins(t *testing.T) {
	s := NewStore(nil)
	s.Register("web1", "out", map[string]interface{}{"rc": 0})
	s.Register("web1", "out", map[string]interface{}{"rc": 1})

	got := s.Registered("web1")["out"].(map[string]interface{})["rc"]
	if got != 1 {
		t.Errorf("rc = %v, want 1", got)
	}
}

func TestStore_HostIsolation(t *testing.T) {
	s := NewStore(nil)
	s.SetFacts("web1", map[string]interface{}{"role": "frontend"})
	s.Register("web1", "out", "x")

	if got := s.Facts("db1"); len(got) != 0 {
		t.Errorf("db1 facts = %v, want none", got)
	}
	if got := s.Registered("db1"); len(got) != 0 {
		t.Errorf("db1 registered = %v, want none", got)
	}
	if v := s.Facts("web1")["role"]; v != "frontend" {
		t.Errorf("web1 role = %v", v)
	}
}

func TestStore_ReadsAreCopies(t *testing.T) {
	s := NewStore(nil)
	s.SetFacts("web1", map[string]interface{}{"pkgs": []interface{}{"a"}})

	f := s.Facts("web1")
	f["pkgs"].([]interface{})[0] = "mutated"
	f["new"] = true

	again := s.Facts("web1")
	if again["pkgs"].([]interface{})[0] != "a" {
		t.Error("Facts() returned shared slice")
	}
	if _, ok := again["new"]; ok {
		t.Error("Facts() returned shared map")
	}
}

func testBase() map[string]map[string]interface{} {
	return map[string]map[string]interface{}{
		"web1": {"inventory_hostname": "web1", "http_port": 80, "role": "inventory"},
		"db1":  {"inventory_hostname": "db1"},
	}
}

func TestStore_HostVars(t *testing.T) {
	s := NewStore(testBase())
	s.Register("web1", "role", "registered")
	s.Register("web1", "out", "x")
	s.SetFacts("web1", map[string]interface{}{"role": "fact"})

	want := map[string]interface{}{
		"web1": map[string]interface{}{"inventory_hostname": "web1", "http_port": 80, "role": "fact", "out": "x"},
		"db1":  map[string]interface{}{"inventory_hostname": "db1"},
	}
	if diff := cmp.Diff(want, s.HostVars()); diff != "" {
		t.Errorf("HostVars() mismatch (-want +got):\n%s", diff)
	}

	// 不在基础变量中的主机不出现在 hostvars
	s.Register("ghost", "out", 1)
	if _, ok := s.HostVars()["ghost"]; ok {
		t.Error("hostvars contains host without base vars")
	}
}

func TestStore_HostVarsReusedUntilWrite(t *testing.T) {
	s := NewStore(testBase())
	s.SetFacts("web1", map[string]interface{}{"os": "linux"})
	s.SetFacts("db1", map[string]interface{}{"os": "bsd"})

	first := s.HostVars()
	if second := s.HostVars(); reflect.ValueOf(first).Pointer() != reflect.ValueOf(second).Pointer() {
		t.Error("HostVars() rebuilt without any write")
	}

	webBefore := reflect.ValueOf(first["web1"]).Pointer()
	dbBefore := reflect.ValueOf(first["db1"]).Pointer()
	s.Register("web1", "out", "y")

	after := s.HostVars()
	if reflect.ValueOf(after["web1"]).Pointer() == webBefore {
		t.Error("web1 view not rebuilt after its own write")
	}
	if reflect.ValueOf(after["db1"]).Pointer() != dbBefore {
		t.Error("db1 view rebuilt after a write to web1")
	}
	if got := after["web1"].(map[string]interface{})["out"]; got != "y" {
		t.Errorf("web1 out = %v, want y", got)
	}
	if _, ok := first["web1"].(map[string]interface{})["out"]; ok {
		t.Error("earlier hostvars changed by a later write")
	}
}

func TestStore_Concurrent(t *testing.T) {
	base := make(map[string]map[string]interface{})
	for h := 0; h < 8; h++ {
		base[fmt.Sprintf("h%d", h)] = map[string]interface{}{}
	}
	s := NewStore(base)

	var wg sync.WaitGroup
	for h := 0; h < 8; h++ {
		host := fmt.Sprintf("h%d", h)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s.Register(host, "n", i)
				s.SetFacts(host, map[string]interface{}{"last": i})
				_ = s.Facts("h0")
				_ = s.HostVars()
			}
		}()
	}
	wg.Wait()

	hostvars := s.HostVars()
	for h := 0; h < 8; h++ {
		host := fmt.Sprintf("h%d", h)
		if v := s.Registered(host)["n"]; v != 99 {
			t.Errorf("%s n = %v, want 99", host, v)
		}
		if v := hostvars[host].(map[string]interface{})["last"]; v != 99 {
			t.Errorf("hostvars[%s].last = %v, want 99", host, v)
		}
	}
}

const ubuntuOutput = `== system
Linux
== arch
x86_64
== kernel
6.8.0-45-generic
== hostname
web1.example.com
== os-release
NAME="Ubuntu"
VERSION_ID="22.04"
ID=ubuntu
ID_LIKE=debian
== lsb-release
== redhat-release
`

func TestParseGatherOutput(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want map[string]interface{}
	}{
		{
			name: "ubuntu",
			out:  ubuntuOutput,
			want: map[string]interface{}{
				"ansible_system":                     "Linux",
				"ansible_architecture":               "x86_64",
				"ansible_kernel":                     "6.8.0-45-generic",
				"ansible_hostname":                   "web1",
				"ansible_fqdn":                       "web1.example.com",
				"ansible_distribution":               "Ubuntu",
				"ansible_distribution_version":       "22.04",
				"ansible_distribution_major_version": "22",
				"ansible_os_family":                  "Debian",
			},
		},
		{
			name: "centos release file",
			out:  "== system\nLinux\n== os-release\n== redhat-release\nCentOS Linux release 7.9.2009 (Core)\n",
			want: map[string]interface{}{
				"ansible_system":                     "Linux",
				"ansible_distribution":               "CentOS",
				"ansible_distribution_version":       "7.9.2009",
				"ansible_distribution_major_version": "7",
				"ansible_os_family":                  "RedHat",
			},
		},
		{
			name: "darwin skips distribution",
			out:  "== system\nDarwin\n== arch\narm64\n",
			want: map[string]interface{}{
				"ansible_system":       "Darwin",
				"ansible_architecture": "arm64",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ParseGatherOutput(tt.out)); diff != "" {
				t.Errorf("ParseGatherOutput() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

type stubConn struct {
	stdout string
	code   int
}

func (c *stubConn) Exec(context.Context, string, connection.ExecOptions) (*connection.ExecResult, error) {
	return &connection.ExecResult{Stdout: []byte(c.stdout), ExitCode: c.code}, nil
}

func (c *stubConn) Put(context.Context, []byte, string, fs.FileMode) error { return nil }

func (c *stubConn) Close() error { return nil }

func TestGather(t *testing.T) {
	facts, err := Gather(context.Background(), &stubConn{stdout: ubuntuOutput})
	if err != nil {
		t.Fatal(err)
	}
	if facts["ansible_distribution"] != "Ubuntu" {
		t.Errorf("ansible_distribution = %v", facts["ansible_distribution"])
	}

	if _, err := Gather(context.Background(), &stubConn{code: 1}); err == nil {
		t.Error("Gather() should fail on non-zero exit")
	}
}
