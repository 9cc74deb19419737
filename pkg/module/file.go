package module

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/jimyag/playcore/pkg/connection"
	perrors "github.com/jimyag/playcore/pkg/errors"
)

// FileModule file 模块：管理文件、目录、符号链接及其属性
type FileModule struct{}

// fileTarget 一次 file 调用的目标路径
type fileTarget struct {
	call *Call
	path string
	q    string // shell 转义后的 path
}

// run 执行命令，非零退出码转为错误
func (f *fileTarget) run(ctx context.Context, format string, a ...interface{}) (string, error) {
	cmd := fmt.Sprintf(format, a...)
	res, err := f.call.Exec(ctx, cmd)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("%s: %s", cmd, strings.TrimSpace(string(res.Stderr)))
	}
	return strings.TrimSpace(string(res.Stdout)), nil
}

func (f *fileTarget) test(ctx context.Context, flag string) (bool, error) {
	res, err := f.call.Exec(ctx, fmt.Sprintf("test %s %s", flag, f.q))
	if err != nil {
		return false, err
	}
	return res.ExitCode == 0, nil
}

// Execute 执行 file 模块
func (FileModule) Execute(ctx context.Context, call *Call) (*Result, error) {
	path := stringArg(call.Args, "path")
	if path == "" {
		path = stringArg(call.Args, "dest")
	}
	if path == "" {
		return nil, perrors.NewInvalidArgsError("file", "missing required argument: path")
	}
	f := &fileTarget{call: call, path: path, q: connection.ShellQuote(path)}

	var (
		res *Result
		err error
	)
	switch state := stringArg(call.Args, "state"); state {
	case "", "file":
		res, err = f.ensureFile(ctx)
	case "directory":
		res, err = f.ensureDirectory(ctx)
	case "absent":
		res, err = f.ensureAbsent(ctx)
	case "touch":
		res, err = f.touch(ctx)
	case "link":
		res, err = f.link(ctx)
	default:
		return nil, perrors.NewInvalidArgsError("file", fmt.Sprintf("invalid state: %s", state))
	}
	if err != nil {
		return nil, err
	}
	if res.Data == nil {
		res.Data = map[string]interface{}{}
	}
	res.Data["path"] = path
	return res, nil
}

func (f *fileTarget) ensureFile(ctx context.Context) (*Result, error) {
	exists, err := f.test(ctx, "-f")
	if err != nil {
		return nil, err
	}
	if !exists {
		return &Result{Failed: true, Msg: fmt.Sprintf("file (%s) is absent, cannot continue", f.path)}, nil
	}
	return f.applyAttributes(ctx, false)
}

func (f *fileTarget) ensureDirectory(ctx context.Context) (*Result, error) {
	exists, err := f.test(ctx, "-d")
	if err != nil {
		return nil, err
	}
	if !exists && !f.call.CheckMode {
		if _, err := f.run(ctx, "mkdir -p %s", f.q); err != nil {
			return &Result{Failed: true, Msg: err.Error()}, nil
		}
	}
	return f.applyAttributes(ctx, !exists)
}

func (f *fileTarget) ensureAbsent(ctx context.Context) (*Result, error) {
	exists, err := f.test(ctx, "-e")
	if err != nil {
		return nil, err
	}
	if !exists {
		// 悬空链接 test -e 为假
		if exists, err = f.test(ctx, "-L"); err != nil {
			return nil, err
		}
	}
	if !exists {
		return &Result{Msg: fmt.Sprintf("path %s is already absent", f.path)}, nil
	}
	if !f.call.CheckMode {
		if _, err := f.run(ctx, "rm -rf %s", f.q); err != nil {
			return &Result{Failed: true, Msg: err.Error()}, nil
		}
	}
	return &Result{Changed: true, Msg: fmt.Sprintf("removed %s", f.path)}, nil
}

// touch 总是更新时间戳，所以总是 changed
func (f *fileTarget) touch(ctx context.Context) (*Result, error) {
	if !f.call.CheckMode {
		if _, err := f.run(ctx, "touch %s", f.q); err != nil {
			return &Result{Failed: true, Msg: err.Error()}, nil
		}
	}
	return f.applyAttributes(ctx, true)
}

func (f *fileTarget) link(ctx context.Context) (*Result, error) {
	src := stringArg(f.call.Args, "src")
	if src == "" {
		return nil, perrors.NewInvalidArgsError("file", "state=link requires src")
	}

	res, err := f.call.Exec(ctx, "readlink "+f.q)
	if err != nil {
		return nil, err
	}
	if res.ExitCode == 0 && strings.TrimSpace(string(res.Stdout)) == src {
		return &Result{Msg: fmt.Sprintf("link %s -> %s already correct", f.path, src)}, nil
	}
	if !f.call.CheckMode {
		if _, err := f.run(ctx, "ln -sfn %s %s", connection.ShellQuote(src), f.q); err != nil {
			return &Result{Failed: true, Msg: err.Error()}, nil
		}
	}
	return &Result{Changed: true, Msg: fmt.Sprintf("created link %s -> %s", f.path, src)}, nil
}

// applyAttributes 只在 mode/owner/group 与现状不同时修改
func (f *fileTarget) applyAttributes(ctx context.Context, changed bool) (*Result, error) {
	mode, err := fileMode(f.call.Args["mode"])
	if err != nil {
		return nil, err
	}
	owner := stringArg(f.call.Args, "owner")
	group := stringArg(f.call.Args, "group")
	recurse := boolArg(f.call.Args, "recurse", false)

	if mode == "" && owner == "" && group == "" {
		return &Result{Changed: changed}, nil
	}

	var curMode, curOwner, curGroup string
	if !(changed && f.call.CheckMode) {
		out, err := f.run(ctx, "stat -c '%%a %%U %%G' %s", f.q)
		if err != nil {
			return &Result{Failed: true, Msg: err.Error()}, nil
		}
		fields := strings.Fields(out)
		if len(fields) == 3 {
			curMode, curOwner, curGroup = fields[0], fields[1], fields[2]
		}
	}

	flag := ""
	if recurse {
		flag = "-R "
	}
	var cmds []string
	if mode != "" && (recurse || !sameMode(mode, curMode)) {
		cmds = append(cmds, fmt.Sprintf("chmod %s%s %s", flag, mode, f.q))
	}
	if owner != "" && (recurse || owner != curOwner) {
		cmds = append(cmds, fmt.Sprintf("chown %s%s %s", flag, connection.ShellQuote(owner), f.q))
	}
	if group != "" && (recurse || group != curGroup) {
		cmds = append(cmds, fmt.Sprintf("chgrp %s%s %s", flag, connection.ShellQuote(group), f.q))
	}

	if len(cmds) == 0 {
		return &Result{Changed: changed}, nil
	}
	if !f.call.CheckMode {
		for _, cmd := range cmds {
			if _, err := f.run(ctx, "%s", cmd); err != nil {
				return &Result{Failed: true, Msg: err.Error()}, nil
			}
		}
	}
	return &Result{Changed: true}, nil
}

// fileMode 规范化 mode 参数为八进制字符串；符号模式（u+x）原样保留
func fileMode(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	switch m := v.(type) {
	case int, int64, uint64, float64:
		return fmt.Sprintf("%04o", cast.ToInt64(m)), nil
	}
	s := strings.TrimSpace(cast.ToString(v))
	if s == "" {
		return "", nil
	}
	if strings.ContainsAny(s, "ugoa+-=") {
		return s, nil
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(s, "0o"), 8, 32)
	if err != nil {
		return "", perrors.NewInvalidArgsError("file", fmt.Sprintf("invalid mode %q", s))
	}
	return fmt.Sprintf("%04o", n), nil
}

func sameMode(want, cur string) bool {
	if cur == "" {
		return false
	}
	w, err1 := strconv.ParseUint(want, 8, 32)
	c, err2 := strconv.ParseUint(cur, 8, 32)
	return err1 == nil && err2 == nil && w == c
}
