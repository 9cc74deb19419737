package module

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/jimyag/playcore/pkg/connection"
	perrors "github.com/jimyag/playcore/pkg/errors"
)

// CommandModule 实现 command、shell 与 raw
//
// command 不经过 shell 解析；shell 通过 executable -c 执行，支持管道与重定向；
// raw 原样执行，不支持 chdir/creates/removes。
type CommandModule struct {
	Shell bool
	Raw   bool
}

func (m CommandModule) name() string {
	switch {
	case m.Raw:
		return "raw"
	case m.Shell:
		return "shell"
	default:
		return "command"
	}
}

// Execute 执行命令
func (m CommandModule) Execute(ctx context.Context, call *Call) (*Result, error) {
	cmd, err := m.commandLine(call.Args)
	if err != nil {
		return nil, err
	}

	if !m.Raw {
		if creates := stringArg(call.Args, "creates"); creates != "" {
			exists, err := pathExists(ctx, call, creates)
			if err != nil {
				return nil, err
			}
			if exists {
				return &Result{Msg: fmt.Sprintf("skipped, since %s exists", creates), Cmd: cmd}, nil
			}
		}
		if removes := stringArg(call.Args, "removes"); removes != "" {
			exists, err := pathExists(ctx, call, removes)
			if err != nil {
				return nil, err
			}
			if !exists {
				return &Result{Msg: fmt.Sprintf("skipped, since %s does not exist", removes), Cmd: cmd}, nil
			}
		}
	}

	if call.CheckMode {
		return &Result{Skipped: true, Msg: "command would have run if not in check mode"}, nil
	}

	full := cmd
	if m.Shell {
		executable := stringArg(call.Args, "executable")
		if executable == "" {
			executable = "/bin/sh"
		}
		full = fmt.Sprintf("%s -c %s", executable, connection.ShellQuote(cmd))
	}
	if chdir := stringArg(call.Args, "chdir"); chdir != "" && !m.Raw {
		full = fmt.Sprintf("cd %s && %s", connection.ShellQuote(chdir), full)
	}

	res, err := call.Exec(ctx, full)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Changed: true,
		Cmd:     cmd,
		RC:      res.ExitCode,
		Stdout:  strings.TrimRight(string(res.Stdout), "\r\n"),
		Stderr:  strings.TrimRight(string(res.Stderr), "\r\n"),
	}
	if res.ExitCode != 0 {
		result.Failed = true
		result.Msg = "non-zero return code"
	}
	return result, nil
}

func (m CommandModule) commandLine(args map[string]interface{}) (string, error) {
	if cmd := stringArg(args, "_raw_params"); cmd != "" {
		return cmd, nil
	}
	if cmd := stringArg(args, "cmd"); cmd != "" {
		return cmd, nil
	}
	if argv, ok := args["argv"]; ok && !m.Raw {
		items, err := cast.ToStringSliceE(argv)
		if err != nil || len(items) == 0 {
			return "", perrors.NewInvalidArgsError(m.name(), "argv must be a non-empty list")
		}
		quoted := make([]string, len(items))
		for i, item := range items {
			quoted[i] = connection.ShellQuote(item)
		}
		return strings.Join(quoted, " "), nil
	}
	return "", perrors.NewInvalidArgsError(m.name(), fmt.Sprintf("%s module requires 'cmd' or a free-form command", m.name()))
}

func pathExists(ctx context.Context, call *Call, path string) (bool, error) {
	res, err := call.Exec(ctx, "test -e "+connection.ShellQuote(path))
	if err != nil {
		return false, err
	}
	return res.ExitCode == 0, nil
}

func stringArg(args map[string]interface{}, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	return cast.ToString(v)
}

func boolArg(args map[string]interface{}, key string, def bool) bool {
	v, ok := args[key]
	if !ok || v == nil {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		switch strings.ToLower(cast.ToString(v)) {
		case "yes", "on", "y":
			return true
		case "no", "off", "n":
			return false
		}
		return def
	}
	return b
}
