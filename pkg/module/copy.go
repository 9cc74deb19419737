package module

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"github.com/jimyag/playcore/pkg/connection"
	perrors "github.com/jimyag/playcore/pkg/errors"
)

// CopyModule 把 content 或控制端文件 src 写到远端 dest
//
// 写入前比较远端文件的 sha1，内容相同则不修改（changed=false）。
type CopyModule struct{}

// Execute 执行 copy
func (CopyModule) Execute(ctx context.Context, call *Call) (*Result, error) {
	dest := stringArg(call.Args, "dest")
	if dest == "" {
		return nil, perrors.NewInvalidArgsError("copy", "copy module requires 'dest' argument")
	}

	var data []byte
	if content, ok := call.Args["content"]; ok {
		data = []byte(cast.ToString(content))
	} else if src := stringArg(call.Args, "src"); src != "" {
		b, err := os.ReadFile(src)
		if err != nil {
			return &Result{Failed: true, Msg: fmt.Sprintf("could not read src %s: %v", src, err)}, nil
		}
		data = b
	} else {
		return nil, perrors.NewInvalidArgsError("copy", "copy module requires either 'src' or 'content' argument")
	}

	return deliver(ctx, call, "copy", dest, data)
}

// deliver 内容不同才上传，随后应用 owner/group
func deliver(ctx context.Context, call *Call, module, dest string, data []byte) (*Result, error) {
	mode := fs.FileMode(0o644)
	m, err := fileMode(call.Args["mode"])
	if err != nil {
		return nil, perrors.NewInvalidArgsError(module, fmt.Sprintf("invalid mode %v", call.Args["mode"]))
	}
	if m != "" {
		parsed, err := strconv.ParseUint(m, 8, 32)
		if err != nil {
			return nil, perrors.NewInvalidArgsError(module, fmt.Sprintf("%s requires a numeric mode, got %q", module, m))
		}
		mode = fs.FileMode(parsed)
	}

	sum := sha1.Sum(data)
	checksum := hex.EncodeToString(sum[:])
	result := &Result{Data: map[string]interface{}{"dest": dest, "checksum": checksum}}

	res, err := call.Exec(ctx, "sha1sum "+connection.ShellQuote(dest)+" 2>/dev/null")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 || !strings.HasPrefix(strings.TrimSpace(string(res.Stdout)), checksum) {
		result.Changed = true
		if !call.CheckMode {
			if err := call.Conn.Put(ctx, data, dest, mode); err != nil {
				result.Failed = true
				result.Msg = fmt.Sprintf("failed to copy content: %v", err)
				return result, nil
			}
		}
	}

	// 内容未变时仍需修正 mode/owner/group
	f := &fileTarget{call: call, path: dest, q: connection.ShellQuote(dest)}
	attrs, err := f.applyAttributes(ctx, result.Changed)
	if err != nil {
		return nil, err
	}
	result.Changed = attrs.Changed
	result.Failed = attrs.Failed
	result.Msg = attrs.Msg
	return result, nil
}
