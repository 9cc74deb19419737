package module

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jimyag/playcore/pkg/connection"
	perrors "github.com/jimyag/playcore/pkg/errors"
)

// LineinfileModule 确保文件中存在或不存在某一行
//
// 文件内容读回控制端修改，再整体写回。
type LineinfileModule struct{}

// Execute 执行 lineinfile
func (LineinfileModule) Execute(ctx context.Context, call *Call) (*Result, error) {
	path := stringArg(call.Args, "path")
	if path == "" {
		path = stringArg(call.Args, "dest")
	}
	if path == "" {
		return nil, perrors.NewInvalidArgsError("lineinfile", "missing required argument: path")
	}

	state := stringArg(call.Args, "state")
	if state == "" {
		state = "present"
	}
	if state != "present" && state != "absent" {
		return nil, perrors.NewInvalidArgsError("lineinfile", fmt.Sprintf("invalid state: %s", state))
	}

	_, hasLine := call.Args["line"]
	line := stringArg(call.Args, "line")
	if state == "present" && !hasLine {
		return nil, perrors.NewInvalidArgsError("lineinfile", "line is required with state=present")
	}

	var re *regexp.Regexp
	if pattern := stringArg(call.Args, "regexp"); pattern != "" {
		var err error
		if re, err = regexp.Compile(pattern); err != nil {
			return nil, perrors.NewInvalidArgsError("lineinfile", fmt.Sprintf("invalid regexp: %v", err))
		}
	}
	if state == "absent" && re == nil && !hasLine {
		return nil, perrors.NewInvalidArgsError("lineinfile", "state=absent requires regexp or line")
	}

	q := connection.ShellQuote(path)
	res, err := call.Exec(ctx, "cat "+q)
	if err != nil {
		return nil, err
	}
	data := map[string]interface{}{"path": path}
	var lines []string
	if res.ExitCode != 0 {
		if state == "absent" {
			return &Result{Msg: fmt.Sprintf("file %s does not exist, nothing to do", path), Data: data}, nil
		}
		if !boolArg(call.Args, "create", false) {
			return &Result{Failed: true, Msg: fmt.Sprintf("Destination %s does not exist !", path), Data: data}, nil
		}
	} else {
		lines = splitLines(string(res.Stdout))
	}

	var (
		updated []string
		msg     string
	)
	if state == "absent" {
		updated, msg = removeLines(lines, line, hasLine, re)
	} else {
		updated, msg = placeLine(lines, line, re, stringArg(call.Args, "insertafter"), stringArg(call.Args, "insertbefore"))
	}
	if msg == "" {
		return &Result{Data: data}, nil
	}

	result := &Result{Changed: true, Msg: msg, Data: data}
	if call.CheckMode {
		return result, nil
	}
	content := strings.Join(updated, "\n") + "\n"
	if err := call.Conn.Put(ctx, []byte(content), path, 0o644); err != nil {
		result.Failed = true
		result.Msg = fmt.Sprintf("failed to write %s: %v", path, err)
	}
	return result, nil
}

func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// placeLine 返回修改后的行和描述，没有修改时描述为空
func placeLine(lines []string, line string, re *regexp.Regexp, after, before string) ([]string, string) {
	if re != nil {
		// 替换最后一个匹配行
		idx := -1
		for i, l := range lines {
			if re.MatchString(l) {
				idx = i
			}
		}
		if idx >= 0 {
			if lines[idx] == line {
				return lines, ""
			}
			out := append([]string(nil), lines...)
			out[idx] = line
			return out, "line replaced"
		}
	}
	for _, l := range lines {
		if l == line {
			return lines, ""
		}
	}

	pos := len(lines)
	switch {
	case before == "BOF":
		pos = 0
	case before != "":
		if anchor, err := regexp.Compile(before); err == nil {
			for i, l := range lines {
				if anchor.MatchString(l) {
					pos = i
					break
				}
			}
		}
	case after != "" && after != "EOF":
		if anchor, err := regexp.Compile(after); err == nil {
			for i, l := range lines {
				if anchor.MatchString(l) {
					pos = i + 1
				}
			}
		}
	}

	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:pos]...)
	out = append(out, line)
	out = append(out, lines[pos:]...)
	return out, "line added"
}

func removeLines(lines []string, line string, hasLine bool, re *regexp.Regexp) ([]string, string) {
	out := make([]string, 0, len(lines))
	removed := 0
	for _, l := range lines {
		if (re != nil && re.MatchString(l)) || (hasLine && re == nil && l == line) {
			removed++
			continue
		}
		out = append(out, l)
	}
	if removed == 0 {
		return lines, ""
	}
	return out, fmt.Sprintf("%d line(s) removed", removed)
}
