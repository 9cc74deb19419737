package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// runCLI 在隔离的 HOME 和工作目录中执行命令
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("NO_COLOR", "1")
	t.Chdir(dir)

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

const testInventory = `[webservers]
web1 ansible_connection=local
web2 ansible_connection=local

[dbservers]
db1 ansible_connection=local

[dbservers:vars]
port=5432
`

func TestPlaybookCommand(t *testing.T) {
	dir := t.TempDir()
	inv := writeFile(t, dir, "hosts.ini", testInventory)
	pb := writeFile(t, dir, "site.yml", `
- name: greet
  hosts: webservers
  gather_facts: false
  tasks:
    - name: remember
      set_fact:
        greeting: "hi {{ inventory_hostname }}"
    - name: say
      debug:
        msg: "{{ greeting }}"
`)

	out, err := runCLI(t, "playbook", "-i", inv, pb)
	if err != nil {
		t.Fatalf("playbook error = %v\n%s", err, out)
	}
	for _, want := range []string{"PLAY [greet]", "TASK [say]", "ok: [web1]", "PLAY RECAP", "ok=2 changed=0"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPlaybookCommand_FailureExitCode(t *testing.T) {
	dir := t.TempDir()
	inv := writeFile(t, dir, "hosts.ini", testInventory)
	pb := writeFile(t, dir, "site.yml", `
- hosts: dbservers
  tasks:
    - fail:
        msg: "port {{ port }}"
`)

	out, err := runCLI(t, "playbook", "-i", inv, pb)
	var exit *exitError
	if !errors.As(err, &exit) || exit.code != 2 {
		t.Fatalf("playbook error = %v, want exit status 2\n%s", err, out)
	}
	if !strings.Contains(out, "FAILED! => port 5432") {
		t.Errorf("output missing failure message:\n%s", out)
	}
}

func TestPlaybookCommand_SyntaxCheck(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.yml", "- hosts: all\n  tasks:\n    - ping:\n")
	bad := writeFile(t, dir, "bad.yml", "- hosts: all\n  tasks:\n    - nosuch_module: {}\n")

	out, err := runCLI(t, "playbook", "--syntax-check", good)
	if err != nil {
		t.Fatalf("syntax-check error = %v", err)
	}
	if !strings.Contains(out, "1 play(s) OK") {
		t.Errorf("output = %q", out)
	}
	if _, err := runCLI(t, "playbook", "--syntax-check", bad); err == nil {
		t.Error("syntax-check of unknown module succeeded")
	}
}

func TestInventoryCommand(t *testing.T) {
	dir := t.TempDir()
	inv := writeFile(t, dir, "hosts.ini", testInventory)

	out, err := runCLI(t, "inventory", "-i", inv, "all:!dbservers")
	if err != nil {
		t.Fatalf("inventory error = %v", err)
	}
	want := "  hosts (2):\n    web1\n    web2\n"
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}

	out, err = runCLI(t, "inventory", "-i", inv, "--vars", "db1")
	if err != nil {
		t.Fatalf("inventory --vars error = %v", err)
	}
	if !strings.Contains(out, "      port: 5432") {
		t.Errorf("output missing port var:\n%s", out)
	}
}

func TestInventoryCommand_NoInventory(t *testing.T) {
	if _, err := runCLI(t, "inventory"); err == nil {
		t.Error("inventory without -i succeeded")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "playcore dev") {
		t.Errorf("output = %q", out)
	}
}

func TestParseExtraVars(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "vars.yml", "region: eu\nreplicas: 3\n")

	got, err := parseExtraVars([]string{
		"env=prod region=us",
		`{"debug": true}`,
		"@" + file,
	})
	if err != nil {
		t.Fatalf("parseExtraVars() error = %v", err)
	}
	want := map[string]interface{}{"env": "prod", "region": "eu", "replicas": 3, "debug": true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("vars mismatch (-want +got):\n%s", diff)
	}

	for _, bad := range []string{"just words", "@" + filepath.Join(dir, "missing.yml"), "{broken"} {
		if _, err := parseExtraVars([]string{bad}); err == nil {
			t.Errorf("parseExtraVars(%q) error = nil", bad)
		}
	}
}

func TestIndent(t *testing.T) {
	if got := indent("a: 1\nb: 2\n", "  "); got != "  a: 1\n  b: 2\n" {
		t.Errorf("indent() = %q", got)
	}
}
