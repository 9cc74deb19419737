package connection

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
)

// LocalConnector 在控制端本机执行命令（ansible_connection=local）
type LocalConnector struct{}

// NewLocalConnector 创建本地连接器
func NewLocalConnector() *LocalConnector {
	return &LocalConnector{}
}

// LocalConn 本地“连接”
type LocalConn struct{}

// Connect 本地连接总是成功
func (c *LocalConnector) Connect(ctx context.Context, _ Params) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &LocalConn{}, nil
}

// Exec 通过 sh -c 执行命令
func (c *LocalConn) Exec(ctx context.Context, cmd string, opts ExecOptions) (*ExecResult, error) {
	cmd, err := becomeCommand(cmd, opts)
	if err != nil {
		return nil, err
	}

	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "sh", "-c", cmd)
	command.Stdout = &stdout
	command.Stderr = &stderr

	err = command.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	res := &ExecResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
		return res, err
	}
	return res, nil
}

// Put 写本地文件
func (c *LocalConn) Put(ctx context.Context, data []byte, path string, mode fs.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.WriteFile(path, data, mode.Perm())
}

// Close 无需释放资源
func (c *LocalConn) Close() error { return nil }
