package errors

import (
	"fmt"
	"testing"
	"time"
)

func TestIsType(t *testing.T) {
	tests := []struct {
		name string
		err  error
		typ  ErrorType
		want bool
	}{
		{
			name: "direct timeout",
			err:  NewTimeoutError("web1", "install", time.Second),
			typ:  ErrTimeout,
			want: true,
		},
		{
			name: "wrapped undefined variable",
			err:  fmt.Errorf("render args: %w", NewUndefinedVariableError("web1", "port")),
			typ:  ErrUndefinedVariable,
			want: true,
		},
		{
			name: "type mismatch",
			err:  NewPatternError("web:&db", "db"),
			typ:  ErrUnreachable,
			want: false,
		},
		{
			name: "plain error",
			err:  fmt.Errorf("boom"),
			typ:  ErrFailed,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsType(tt.err, tt.typ); got != tt.want {
				t.Errorf("IsType() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWithHost(t *testing.T) {
	base := NewUndefinedVariableError("", "http_port")
	err := WithHost(fmt.Errorf("wrap: %w", base), "db1")

	got, ok := err.(*ExecutionError)
	if !ok {
		t.Fatalf("WithHost() returned %T, want *ExecutionError", err)
	}
	if got.Host != "db1" {
		t.Errorf("Host = %q, want db1", got.Host)
	}
	if base.Host != "" {
		t.Errorf("original error mutated: Host = %q", base.Host)
	}
	if got.Error() != "[db1] 'http_port' is undefined" {
		t.Errorf("Error() = %q", got.Error())
	}
}

func TestErrorTypeString(t *testing.T) {
	if ErrCancelled.String() != "cancelled" {
		t.Errorf("ErrCancelled.String() = %q", ErrCancelled.String())
	}
	if ErrorType(99).String() != "unknown" {
		t.Errorf("unknown type String() = %q", ErrorType(99).String())
	}
}
