package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType 定义错误类型
type ErrorType int

const (
	// ErrUnreachable 主机不可达（连接失败）
	ErrUnreachable ErrorType = iota
	// ErrFailed 模块执行失败
	ErrFailed
	// ErrTimeout 执行超时
	ErrTimeout
	// ErrParse 解析错误（Inventory、Playbook 等）
	ErrParse
	// ErrInvalidArgs 参数错误
	ErrInvalidArgs
	// ErrModuleNotFound 模块未找到
	ErrModuleNotFound
	// ErrPatternResolution 主机模式引用了不存在的主机或组
	ErrPatternResolution
	// ErrUndefinedVariable 模板渲染时变量未定义
	ErrUndefinedVariable
	// ErrCancelled 运行被取消
	ErrCancelled
)

// String 返回错误类型名称
func (t ErrorType) String() string {
	switch t {
	case ErrUnreachable:
		return "unreachable"
	case ErrFailed:
		return "failed"
	case ErrTimeout:
		return "timeout"
	case ErrParse:
		return "parse"
	case ErrInvalidArgs:
		return "invalid_args"
	case ErrModuleNotFound:
		return "module_not_found"
	case ErrPatternResolution:
		return "pattern_resolution"
	case ErrUndefinedVariable:
		return "undefined_variable"
	case ErrCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ExecutionError 统一的执行错误类型
type ExecutionError struct {
	Type      ErrorType              // 错误类型
	Host      string                 // 目标主机（如果适用）
	Task      string                 // 任务名称（如果适用）
	Module    string                 // 模块名称（如果适用）
	Message   string                 // 错误消息
	Cause     error                  // 原始错误
	Retriable bool                   // 是否可重试
	Details   map[string]interface{} // 额外的错误详情
}

func (e *ExecutionError) Error() string {
	if e.Host != "" {
		if e.Task != "" {
			return fmt.Sprintf("[%s] %s: %s", e.Host, e.Task, e.Message)
		}
		return fmt.Sprintf("[%s] %s", e.Host, e.Message)
	}
	return e.Message
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// NewUnreachableError 创建不可达错误
func NewUnreachableError(host string, cause error) *ExecutionError {
	return &ExecutionError{
		Type:      ErrUnreachable,
		Host:      host,
		Message:   fmt.Sprintf("Failed to connect to host: %v", cause),
		Cause:     cause,
		Retriable: true,
	}
}

// NewModuleFailedError 创建模块失败错误
func NewModuleFailedError(host, task, module, msg string) *ExecutionError {
	return &ExecutionError{
		Type:      ErrFailed,
		Host:      host,
		Task:      task,
		Module:    module,
		Message:   msg,
		Retriable: false,
	}
}

// NewTimeoutError 创建超时错误
func NewTimeoutError(host, task string, duration time.Duration) *ExecutionError {
	return &ExecutionError{
		Type:      ErrTimeout,
		Host:      host,
		Task:      task,
		Message:   fmt.Sprintf("Task timeout after %v", duration),
		Retriable: true,
	}
}

// NewCancelledError 创建取消错误
func NewCancelledError(host, task string, cause error) *ExecutionError {
	return &ExecutionError{
		Type:    ErrCancelled,
		Host:    host,
		Task:    task,
		Message: "run cancelled",
		Cause:   cause,
	}
}

// NewParseError 创建解析错误
func NewParseError(filePath string, cause error) *ExecutionError {
	return &ExecutionError{
		Type:      ErrParse,
		Message:   fmt.Sprintf("Failed to parse %s: %v", filePath, cause),
		Cause:     cause,
		Retriable: false,
	}
}

// NewPatternError 创建主机模式解析错误
func NewPatternError(pattern, term string) *ExecutionError {
	return &ExecutionError{
		Type:    ErrPatternResolution,
		Message: fmt.Sprintf("pattern %q: no host or group named %q", pattern, term),
		Details: map[string]interface{}{"pattern": pattern, "term": term},
	}
}

// NewUndefinedVariableError 创建变量未定义错误
func NewUndefinedVariableError(host, variable string) *ExecutionError {
	return &ExecutionError{
		Type:    ErrUndefinedVariable,
		Host:    host,
		Message: fmt.Sprintf("'%s' is undefined", variable),
		Details: map[string]interface{}{"variable": variable},
	}
}

// NewModuleNotFoundError 创建模块未找到错误
func NewModuleNotFoundError(module string) *ExecutionError {
	return &ExecutionError{
		Type:    ErrModuleNotFound,
		Module:  module,
		Message: fmt.Sprintf("unsupported module: %s", module),
	}
}

// NewInvalidArgsError 创建参数错误
func NewInvalidArgsError(module, msg string) *ExecutionError {
	return &ExecutionError{
		Type:    ErrInvalidArgs,
		Module:  module,
		Message: msg,
	}
}

// TypeOf 返回错误链中第一个 ExecutionError 的类型
func TypeOf(err error) (ErrorType, bool) {
	var execErr *ExecutionError
	if stderrors.As(err, &execErr) {
		return execErr.Type, true
	}
	return 0, false
}

// IsType 判断错误链中是否包含指定类型的 ExecutionError
func IsType(err error, t ErrorType) bool {
	got, ok := TypeOf(err)
	return ok && got == t
}

// WithHost 返回绑定了主机名的错误副本；非 ExecutionError 原样返回
func WithHost(err error, host string) error {
	var execErr *ExecutionError
	if !stderrors.As(err, &execErr) {
		return err
	}
	cp := *execErr
	cp.Host = host
	return &cp
}
