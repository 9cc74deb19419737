package connection

import (
	"context"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// ExecOptions 单次命令执行的选项
type ExecOptions struct {
	Become       bool
	BecomeUser   string
	BecomeMethod string
}

// ExecResult 命令执行结果
type ExecResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Conn 是到一台主机的已建立连接
//
// Exec 在 ctx 结束时应尽快返回 ctx.Err()。
type Conn interface {
	Exec(ctx context.Context, cmd string, opts ExecOptions) (*ExecResult, error)
	Put(ctx context.Context, data []byte, remotePath string, mode fs.FileMode) error
	Close() error
}

// Connector 根据连接参数建立连接
type Connector interface {
	Connect(ctx context.Context, p Params) (Conn, error)
}

// Params 从主机变量中解析出的连接参数
type Params struct {
	Name           string
	Type           string // ssh 或 local
	Address        string
	Port           int
	User           string
	Password       string
	KeyFile        string
	KnownHostsFile string
	Timeout        time.Duration
}

// ParamsFromVars 按 ansible_* 变量解析连接参数
func ParamsFromVars(name string, vars map[string]interface{}) Params {
	p := Params{
		Name:    name,
		Type:    "ssh",
		Address: name,
		Port:    22,
		User:    "root",
		Timeout: 30 * time.Second,
	}

	if v := cast.ToString(vars["ansible_connection"]); v != "" {
		p.Type = v
	}
	if v := cast.ToString(vars["ansible_host"]); v != "" {
		p.Address = v
	}
	if v, err := cast.ToIntE(vars["ansible_port"]); err == nil && v > 0 {
		p.Port = v
	}
	if v := cast.ToString(vars["ansible_user"]); v != "" {
		p.User = v
	}
	p.Password = cast.ToString(vars["ansible_password"])
	p.KeyFile = cast.ToString(vars["ansible_ssh_private_key_file"])
	p.KnownHostsFile = cast.ToString(vars["ansible_ssh_known_hosts_file"])
	if v, err := cast.ToIntE(vars["ansible_timeout"]); err == nil && v > 0 {
		p.Timeout = time.Duration(v) * time.Second
	}

	// localhost 没有显式指定连接方式时走本地执行
	if _, set := vars["ansible_connection"]; !set && (name == "localhost" || p.Address == "127.0.0.1") {
		p.Type = "local"
	}
	return p
}

// Manager 按连接类型分发到具体实现
type Manager struct {
	ssh   *SSHConnector
	local *LocalConnector
}

// NewManager 创建一个新的连接管理器
func NewManager() *Manager {
	return &Manager{
		ssh:   NewSSHConnector(),
		local: NewLocalConnector(),
	}
}

// Connect 连接到主机
func (m *Manager) Connect(ctx context.Context, p Params) (Conn, error) {
	switch p.Type {
	case "ssh", "paramiko", "smart":
		return m.ssh.Connect(ctx, p)
	case "local":
		return m.local.Connect(ctx, p)
	default:
		return nil, fmt.Errorf("unsupported connection type: %s", p.Type)
	}
}

// becomeCommand 包装权限提升命令
func becomeCommand(cmd string, opts ExecOptions) (string, error) {
	if !opts.Become {
		return cmd, nil
	}

	user := opts.BecomeUser
	if user == "" {
		user = "root"
	}

	// -n 避免密码提示（假设配置了 NOPASSWD）
	switch opts.BecomeMethod {
	case "", "sudo":
		if user == "root" {
			return fmt.Sprintf("sudo -n sh -c %s", ShellQuote(cmd)), nil
		}
		return fmt.Sprintf("sudo -n -u %s sh -c %s", user, ShellQuote(cmd)), nil
	case "su":
		return fmt.Sprintf("su - %s -c %s", user, ShellQuote(cmd)), nil
	default:
		return "", fmt.Errorf("unsupported become method: %s", opts.BecomeMethod)
	}
}

// ShellQuote 为 shell 参数添加单引号
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "'\\''") + "'"
}
