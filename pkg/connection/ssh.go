package connection

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHConnector 通过 SSH 建立连接
type SSHConnector struct{}

// NewSSHConnector 创建 SSH 连接器
func NewSSHConnector() *SSHConnector {
	return &SSHConnector{}
}

// SSHConn 表示一个 SSH 连接
type SSHConn struct {
	client *ssh.Client
	name   string
}

// Connect 连接到主机，拨号和握手都受 ctx 控制
func (c *SSHConnector) Connect(ctx context.Context, p Params) (Conn, error) {
	config := &ssh.ClientConfig{
		User:            p.User,
		Auth:            []ssh.AuthMethod{},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         p.Timeout,
	}

	if p.KnownHostsFile != "" {
		cb, err := knownhosts.New(p.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts %s: %w", p.KnownHostsFile, err)
		}
		config.HostKeyCallback = cb
	}

	if p.Password != "" {
		config.Auth = append(config.Auth, ssh.Password(p.Password))
	}

	if p.KeyFile != "" {
		auth, err := publicKeyAuth(p.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load private key %s: %w", p.KeyFile, err)
		}
		config.Auth = append(config.Auth, auth)
	}

	// 如果没有指定认证方式，尝试默认密钥
	if len(config.Auth) == 0 {
		homeDir, _ := os.UserHomeDir()
		for _, keyPath := range []string{
			filepath.Join(homeDir, ".ssh", "id_rsa"),
			filepath.Join(homeDir, ".ssh", "id_ed25519"),
		} {
			if auth, err := publicKeyAuth(keyPath); err == nil {
				config.Auth = append(config.Auth, auth)
			}
		}
	}

	addr := net.JoinHostPort(p.Address, strconv.Itoa(p.Port))
	dialer := &net.Dialer{Timeout: p.Timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	// 握手阶段也要响应取消
	stop := context.AfterFunc(ctx, func() { netConn.Close() })
	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, config)
	stop()
	if err != nil {
		netConn.Close()
		return nil, err
	}

	return &SSHConn{
		client: ssh.NewClient(sshConn, chans, reqs),
		name:   p.Name,
	}, nil
}

// publicKeyAuth 创建公钥认证
func publicKeyAuth(keyPath string) (ssh.AuthMethod, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, err
	}

	return ssh.PublicKeys(signer), nil
}

// Exec 执行命令，ctx 结束时向远端进程发送 SIGKILL
func (c *SSHConn) Exec(ctx context.Context, cmd string, opts ExecOptions) (*ExecResult, error) {
	cmd, err := becomeCommand(cmd, opts)
	if err != nil {
		return nil, err
	}

	session, err := c.client.NewSession()
	if err != nil {
		return nil, err
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	if err := session.Start(cmd); err != nil {
		return nil, err
	}

	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return nil, ctx.Err()
	case err := <-done:
		res := &ExecResult{Stdout: stdoutBuf.Bytes(), Stderr: stderrBuf.Bytes()}
		if err != nil {
			if exitErr, ok := err.(*ssh.ExitError); ok {
				res.ExitCode = exitErr.ExitStatus()
				return res, nil
			}
			res.ExitCode = -1
			return res, err
		}
		return res, nil
	}
}

// Put 把内容写到远端文件
func (c *SSHConn) Put(ctx context.Context, data []byte, remotePath string, mode fs.FileMode) error {
	session, err := c.client.NewSession()
	if err != nil {
		return err
	}
	defer session.Close()

	session.Stdin = bytes.NewReader(data)
	cmd := fmt.Sprintf("cat > %s && chmod %o %s", ShellQuote(remotePath), mode.Perm(), ShellQuote(remotePath))

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("write %s on %s: %w", remotePath, c.name, err)
		}
		return nil
	}
}

// Close 关闭连接
func (c *SSHConn) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
