package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/jimyag/playcore/pkg/executor"
	"github.com/jimyag/playcore/pkg/vars"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := &Config{
		Forks:         executor.DefaultForks,
		HashBehaviour: "replace",
		RolesPath:     []string{},
		Logging:       LoggingConfig{Level: "warn", Pretty: true},
	}
	if diff := cmp.Diff(want, cfg, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "playcore.yaml")
	content := `
inventory: hosts.ini
forks: 10
timeout: 30s
hash_behaviour: merge
roles_path: [/opt/roles]
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PLAYCORE_FORKS", "3")
	t.Setenv("PLAYCORE_LOGGING_NO_COLOR", "true")

	// 未指定文件时从当前目录找到 playcore.yaml
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := &Config{
		Inventory:     "hosts.ini",
		Forks:         3,
		Timeout:       30 * time.Second,
		HashBehaviour: "merge",
		RolesPath:     []string{"/opt/roles"},
		Logging:       LoggingConfig{Level: "debug", Pretty: true, NoColor: true},
	}
	if diff := cmp.Diff(want, cfg, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}

	opts := cfg.ExecutorOptions()
	if opts.Forks != 3 || opts.HashBehaviour != vars.HashMerge || opts.Timeout != 30*time.Second {
		t.Errorf("ExecutorOptions() = %+v", opts)
	}
	if err := opts.Validate(); err != nil {
		t.Errorf("ExecutorOptions().Validate() error = %v", err)
	}
	if lc := cfg.LoggerConfig(); lc.Level != "debug" || !lc.NoColor {
		t.Errorf("LoggerConfig() = %+v", lc)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
	}{
		{name: "zero forks", content: "forks: 0\n"},
		{name: "bad hash behaviour", content: "hash_behaviour: deep\n"},
		{name: "bad log level", content: "logging:\n  level: loud\n"},
		{name: "bad env", content: "forks: 2\n", env: map[string]string{"PLAYCORE_HASH_BEHAVIOUR": "append"}},
		{name: "malformed yaml", content: "forks: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := filepath.Join(dir, "custom.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("Load() error = nil, want error")
			}
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	dir := isolate(t)
	if _, err := Load(filepath.Join(dir, "nope.yaml")); err == nil {
		t.Error("Load() error = nil, want error for missing file")
	}
}
