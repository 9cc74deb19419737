package template

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	perrors "github.com/jimyag/playcore/pkg/errors"
	"github.com/jimyag/playcore/pkg/vars"
)

func testVars() vars.Snapshot {
	return vars.NewSnapshot(map[string]interface{}{
		"http_port": 8080,
		"env":       "prod",
		"pkgs":      []interface{}{"nginx", "git"},
		"user":      map[string]interface{}{"name": "deploy", "uid": 1001},
		"secret":    "hello",
	})
}

func TestRenderString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want interface{}
	}{
		{"plain", "echo hi", "echo hi"},
		{"native int", "{{ http_port }}", 8080},
		{"native with spaces", "  {{ http_port }} ", 8080},
		{"native list", "{{ pkgs }}", []interface{}{"nginx", "git"}},
		{"mixed text", "port={{ http_port }} env={{ env }}", "port=8080 env=prod"},
		{"attribute", "/home/{{ user.name }}", "/home/deploy"},
		{"filter", "{{ env | upper }}", "PROD"},
		{"default", "{{ missing | default('dev') }}", "dev"},
		{"brace in string", "{{ '}}' ~ env }}", "}}prod"},
		{"sprig b64encode", "{{ secret | b64encode }}", "aGVsbG8="},
		{"sprig regex_replace", "{{ env | regex_replace('^p', 'P') }}", "Prod"},
		{"pongo2 block", "{% for p in pkgs %}{{ p }};{% endfor %}", "nginx;git;"},
		{"pongo2 if", "{% if http_port > 1000 %}high{% else %}low{% endif %}", "high"},
	}

	env := testVars()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderString(tt.in, env)
			if err != nil {
				t.Fatalf("RenderString(%q) error: %v", tt.in, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("RenderString(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestRenderString_Undefined(t *testing.T) {
	env := testVars()
	for _, in := range []string{
		"{{ nope }}",
		"port={{ nope }}",
		"{{ user.nope }}",
		"{{ nope | upper }}",
	} {
		t.Run(in, func(t *testing.T) {
			_, err := RenderString(in, env)
			if !perrors.IsType(err, perrors.ErrUndefinedVariable) {
				t.Errorf("RenderString(%q) error = %v, want undefined variable", in, err)
			}
		})
	}

	if _, err := RenderString("{{ env", env); err == nil {
		t.Error("unclosed expression should fail")
	}
}

func TestRender_Nested(t *testing.T) {
	args := map[string]interface{}{
		"cmd":   "echo {{ env }}",
		"port":  "{{ http_port }}",
		"items": []interface{}{"{{ user.uid }}", "static", 3},
		"opts":  map[string]interface{}{"owner": "{{ user.name }}"},
	}

	got, err := RenderMap(args, testVars())
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]interface{}{
		"cmd":   "echo prod",
		"port":  8080,
		"items": []interface{}{1001, "static", 3},
		"opts":  map[string]interface{}{"owner": "deploy"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RenderMap mismatch (-want +got):\n%s", diff)
	}
	if args["cmd"] != "echo {{ env }}" {
		t.Error("RenderMap modified its input")
	}
}

func TestCondition(t *testing.T) {
	env := testVars()
	tests := []struct {
		cond string
		want bool
	}{
		{"env == 'prod'", true},
		{"{{ http_port > 9000 }}", false},
		{"'git' in pkgs", true},
		{"missing is not defined", true},
	}
	for _, tt := range tests {
		got, err := Condition(tt.cond, env)
		if err != nil {
			t.Fatalf("Condition(%q) error: %v", tt.cond, err)
		}
		if got != tt.want {
			t.Errorf("Condition(%q) = %v, want %v", tt.cond, got, tt.want)
		}
	}

	if _, err := Condition("missing == 1", env); !perrors.IsType(err, perrors.ErrUndefinedVariable) {
		t.Errorf("Condition on undefined = %v, want undefined variable error", err)
	}
}

func TestSprigFilters(t *testing.T) {
	env := testVars()
	tests := []struct {
		in   string
		want string
	}{
		{"{{ 'aGVsbG8=' | b64decode }}", "hello"},
		{"{{ secret | hash('sha256') }}", "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"},
		{"{{ secret | checksum }}", "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d"},
		{"{{ user | to_json }}", `{"name":"deploy","uid":1001}`},
		{"{{ pkgs | to_yaml }}", "- nginx\n- git\n"},
		{"{{ '/etc/nginx/nginx.conf' | basename }}", "nginx.conf"},
		{"{{ '/etc/nginx/nginx.conf' | dirname }}", "/etc/nginx"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := RenderText(tt.in, env)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("RenderText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
