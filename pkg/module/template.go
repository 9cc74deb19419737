package module

import (
	"context"
	"fmt"
	"os"

	perrors "github.com/jimyag/playcore/pkg/errors"
	"github.com/jimyag/playcore/pkg/template"
)

// TemplateModule 在控制端用任务变量渲染 src 文件，结果写到远端 dest
type TemplateModule struct{}

// Execute 执行 template
func (TemplateModule) Execute(ctx context.Context, call *Call) (*Result, error) {
	src := stringArg(call.Args, "src")
	dest := stringArg(call.Args, "dest")
	if src == "" || dest == "" {
		return nil, perrors.NewInvalidArgsError("template", "template module requires 'src' and 'dest' arguments")
	}

	raw, err := os.ReadFile(src)
	if err != nil {
		return &Result{Failed: true, Msg: fmt.Sprintf("could not read template %s: %v", src, err)}, nil
	}
	rendered, err := template.RenderText(string(raw), call.Vars)
	if err != nil {
		return nil, perrors.WithHost(err, call.Host)
	}

	return deliver(ctx, call, "template", dest, []byte(rendered))
}
