package connection

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParamsFromVars(t *testing.T) {
	tests := []struct {
		name string
		host string
		vars map[string]interface{}
		want Params
	}{
		{
			name: "defaults",
			host: "web1",
			vars: nil,
			want: Params{Name: "web1", Type: "ssh", Address: "web1", Port: 22, User: "root", Timeout: 30 * time.Second},
		},
		{
			name: "ini string port and yaml int port behave the same",
			host: "web2",
			vars: map[string]interface{}{
				"ansible_host": "10.0.0.2",
				"ansible_port": "2222",
				"ansible_user": "deploy",
			},
			want: Params{Name: "web2", Type: "ssh", Address: "10.0.0.2", Port: 2222, User: "deploy", Timeout: 30 * time.Second},
		},
		{
			name: "int port and timeout",
			host: "db1",
			vars: map[string]interface{}{"ansible_port": 2200, "ansible_timeout": 5},
			want: Params{Name: "db1", Type: "ssh", Address: "db1", Port: 2200, User: "root", Timeout: 5 * time.Second},
		},
		{
			name: "localhost is local",
			host: "localhost",
			vars: nil,
			want: Params{Name: "localhost", Type: "local", Address: "localhost", Port: 22, User: "root", Timeout: 30 * time.Second},
		},
		{
			name: "explicit connection wins",
			host: "localhost",
			vars: map[string]interface{}{"ansible_connection": "ssh"},
			want: Params{Name: "localhost", Type: "ssh", Address: "localhost", Port: 22, User: "root", Timeout: 30 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParamsFromVars(tt.host, tt.vars)
			if got != tt.want {
				t.Errorf("ParamsFromVars() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBecomeCommand(t *testing.T) {
	tests := []struct {
		name    string
		opts    ExecOptions
		want    string
		wantErr bool
	}{
		{"no become", ExecOptions{}, "id -u", false},
		{"sudo root", ExecOptions{Become: true}, "sudo -n sh -c 'id -u'", false},
		{"sudo user", ExecOptions{Become: true, BecomeUser: "app"}, "sudo -n -u app sh -c 'id -u'", false},
		{"su", ExecOptions{Become: true, BecomeMethod: "su", BecomeUser: "app"}, "su - app -c 'id -u'", false},
		{"unknown", ExecOptions{Become: true, BecomeMethod: "doas"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := becomeCommand("id -u", tt.opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("becomeCommand() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("becomeCommand() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestShellQuote(t *testing.T) {
	if got := ShellQuote("it's"); got != `'it'\''s'` {
		t.Errorf("ShellQuote() = %s", got)
	}
}

func TestLocalConn(t *testing.T) {
	conn, err := NewManager().Connect(context.Background(), Params{Name: "localhost", Type: "local"})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	res, err := conn.Exec(context.Background(), "echo out; echo err >&2; exit 3", ExecOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if string(res.Stdout) != "out\n" || string(res.Stderr) != "err\n" || res.ExitCode != 3 {
		t.Errorf("Exec() = %q %q %d", res.Stdout, res.Stderr, res.ExitCode)
	}

	path := filepath.Join(t.TempDir(), "f.txt")
	if err := conn.Put(context.Background(), []byte("hello"), path, 0o600); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "hello" {
		t.Errorf("Put() wrote %q, %v", data, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := conn.Exec(ctx, "sleep 5", ExecOptions{}); err == nil {
		t.Error("Exec() should fail when context expires")
	}
}

func TestManagerUnsupportedType(t *testing.T) {
	if _, err := NewManager().Connect(context.Background(), Params{Type: "winrm"}); err == nil {
		t.Error("expected error for unsupported connection type")
	}
}
