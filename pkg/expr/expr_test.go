package expr

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testEnv() MapEnv {
	return MapEnv{
		"env":       "prod",
		"port":      8080,
		"port_str":  "8080",
		"enabled":   true,
		"off":       "false",
		"empty":     "",
		"nothing":   nil,
		"pkgs":      []interface{}{"nginx", "git"},
		"ports":     []int{80, 443},
		"groups":    map[string]interface{}{"webservers": []interface{}{"web1", "web2"}},
		"inventory": "web1",
		"result": map[string]interface{}{
			"rc":      0,
			"stdout":  "ok",
			"changed": true,
			"failed":  false,
		},
		"failed_result": map[string]interface{}{"failed": true, "msg": "boom"},
		"skipped_result": map[string]interface{}{
			"skipped": true, "changed": false,
		},
	}
}

func TestEvalBool(t *testing.T) {
	tests := []struct {
		expr string
		want bool
	}{
		{"env == 'prod'", true},
		{"env != 'prod'", false},
		{"env == \"prod\" and port > 1024", true},
		{"port == port_str", true},
		{"port_str == 8080", true},
		{"port_str > 80", true},
		{"port >= 8080 and port <= 8080", true},
		{"not enabled", false},
		{"not (port < 10)", true},
		{"off", false},
		{"empty", false},
		{"nothing", false},
		{"pkgs", true},
		{"'nginx' in pkgs", true},
		{"'apache' not in pkgs", true},
		{"443 in ports", true},
		{"'web1' in groups.webservers", true},
		{"'webservers' in groups", true},
		{"'rod' in env", true},
		{"inventory in groups['webservers']", true},
		{"missing is defined", false},
		{"missing is undefined", true},
		{"env is not undefined", true},
		{"result.missing is defined", false},
		{"missing.deep.path is defined", false},
		{"nothing is none", true},
		{"result is changed", true},
		{"result is succeeded", true},
		{"result is failed", false},
		{"failed_result is failed", true},
		{"failed_result is not succeeded", true},
		{"skipped_result is skipped", true},
		{"skipped_result is changed", false},
		{"result.rc == 0", true},
		{"result.stdout == 'ok'", true},
		{"pkgs | length == 2", true},
		{"missing | default('x') == 'x'", true},
		{"empty | default('x', true) == 'x'", true},
		{"'on' | bool", true},
		{"'no' | bool", false},
		{"port_str | int + 1 == 8081", true},
		{"env | upper == 'PROD'", true},
		{"pkgs | join(',') == 'nginx,git'", true},
		{"pkgs | first == 'nginx'", true},
		{"pkgs.1 == 'git'", true},
		{"pkgs[-1] == 'git'", true},
		{"missing is defined and missing == 1", false},
		{"env == 'dev' or port == 8080", true},
		{"7 % 3 == 1 and 7 // 2 == 3", true},
		{"'a' ~ 1 == 'a1'", true},
		{"[1, 2] + [3] == [1, 2, 3]", true},
		{"{'a': 1}.a == 1", true},
		{"-port < 0", true},
		{"env is match('pr')", true},
		{"env is search('od')", true},
		{"4 is even and 3 is odd", true},
		{"true == True", true},
		{"'yes' if enabled else 'no'", true},
	}

	env := testEnv()
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := EvalBool(tt.expr, env)
			if err != nil {
				t.Fatalf("EvalBool(%q) error: %v", tt.expr, err)
			}
			if got != tt.want {
				t.Errorf("EvalBool(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEval_Values(t *testing.T) {
	env := testEnv()
	tests := []struct {
		expr string
		want interface{}
	}{
		{"port", 8080},
		{"port + 1", 8081},
		{"pkgs", []interface{}{"nginx", "git"}},
		{"result.stdout", "ok"},
		{"env ~ '-' ~ port", "prod-8080"},
		{"missing | default(42)", 42},
		{"pkgs | sort", []interface{}{"git", "nginx"}},
		{"[3, 1, 3] | unique | length", 2},
		{"ports | max", 443},
		{"'a b  c' | split | length", 3},
		{"'Hello' | lower | replace('l', 'L')", "heLLo"},
		{"10 / 4", 2.5},
		{"none", nil},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			v, err := Eval(tt.expr, env)
			if err != nil {
				t.Fatalf("Eval(%q) error: %v", tt.expr, err)
			}
			if diff := cmp.Diff(tt.want, v.Interface()); diff != "" {
				t.Errorf("Eval(%q) mismatch (-want +got):\n%s", tt.expr, diff)
			}
		})
	}
}

func TestEval_Undefined(t *testing.T) {
	env := testEnv()
	tests := []struct {
		expr string
		name string
	}{
		{"missing", "missing"},
		{"missing == 1", "missing"},
		{"1 < missing", "missing"},
		{"missing and true", "missing"},
		{"not missing", "missing"},
		{"result.nope == 'x'", "result.nope"},
		{"missing | length", "missing"},
		{"'x' in missing", "missing"},
		{"missing is failed", "missing"},
		{"missing | mandatory", "missing"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := EvalBool(tt.expr, env)
			var uerr *UndefinedError
			if !errors.As(err, &uerr) {
				t.Fatalf("EvalBool(%q) error = %v, want UndefinedError", tt.expr, err)
			}
			if uerr.Name != tt.name {
				t.Errorf("undefined name = %q, want %q", uerr.Name, tt.name)
			}
		})
	}
}

func TestEval_Errors(t *testing.T) {
	env := testEnv()
	tests := []struct {
		name string
		expr string
		want interface{}
	}{
		{"unterminated string", "env == 'prod", &SyntaxError{}},
		{"dangling operator", "port ==", &SyntaxError{}},
		{"trailing tokens", "port port", &SyntaxError{}},
		{"empty", "   ", &SyntaxError{}},
		{"unknown filter", "env | nosuchfilter", &UnknownFilterError{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Eval(tt.expr, env)
			if err == nil {
				t.Fatalf("Eval(%q) expected error", tt.expr)
			}
			switch tt.want.(type) {
			case *SyntaxError:
				var se *SyntaxError
				if !errors.As(err, &se) {
					t.Errorf("error = %T, want *SyntaxError", err)
				}
			case *UnknownFilterError:
				var fe *UnknownFilterError
				if !errors.As(err, &fe) {
					t.Errorf("error = %T, want *UnknownFilterError", err)
				}
			}
		})
	}

	if _, err := Eval("1 / 0", env); err == nil {
		t.Error("division by zero should fail")
	}
	if _, err := Eval("pkgs < 3", env); err == nil {
		t.Error("comparing list with number should fail")
	}
}

func TestRegisterFilter(t *testing.T) {
	RegisterFilter("twice", func(in Value, _ []Value) (Value, error) {
		return String(in.String() + in.String()), nil
	})
	if !HasFilter("twice") {
		t.Fatal("twice not registered")
	}
	v, err := Eval("'ab' | twice", nil)
	if err != nil {
		t.Fatal(err)
	}
	if v.String() != "abab" {
		t.Errorf("twice = %q", v.String())
	}
}

func TestCompileCache(t *testing.T) {
	a, err := Compile("port == 1")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Compile("  port == 1 ")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("Compile should reuse cached expression")
	}
}
