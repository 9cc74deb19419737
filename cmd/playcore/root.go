package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jimyag/playcore/pkg/config"
	"github.com/jimyag/playcore/pkg/executor"
	"github.com/jimyag/playcore/pkg/inventory"
	"github.com/jimyag/playcore/pkg/logger"
	"github.com/jimyag/playcore/pkg/playbook"
)

// globalFlags 所有子命令共享的参数
type globalFlags struct {
	configFile string
	inventory  string
	verbose    int
	noColor    bool
	forks      int
	timeout    time.Duration
	limit      string
	extraVars  []string
	check      bool
	become     bool
	becomeUser string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "playcore",
		Short:         "Declarative task orchestration over SSH",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configFile, "config", "", "config file (default: ./playcore.yaml)")
	pf.StringVarP(&g.inventory, "inventory", "i", "", "inventory file (INI or YAML)")
	pf.CountVarP(&g.verbose, "verbose", "v", "verbose output, repeat for debug logging")
	pf.BoolVar(&g.noColor, "no-color", false, "disable colored output")
	pf.IntVarP(&g.forks, "forks", "f", executor.DefaultForks, "number of hosts to run in parallel")
	pf.DurationVarP(&g.timeout, "timeout", "T", 0, "per-call timeout, 0 disables")
	pf.StringVarP(&g.limit, "limit", "l", "", "further limit selected hosts to a pattern")
	pf.StringArrayVarP(&g.extraVars, "extra-vars", "e", nil, "extra variables as key=value, YAML/JSON, or @file")
	pf.BoolVarP(&g.check, "check", "C", false, "don't make any changes")
	pf.BoolVarP(&g.become, "become", "b", false, "run operations with become")
	pf.StringVar(&g.becomeUser, "become-user", "", "run operations as this user")

	root.AddCommand(newPlaybookCmd(g))
	root.AddCommand(newAdhocCmd(g))
	root.AddCommand(newInventoryCmd(g))
	root.AddCommand(newVersionCmd())
	return root
}

// load 读取配置并用显式给出的命令行参数覆盖
func (g *globalFlags) load(cmd *cobra.Command) error {
	cfg, err := config.Load(g.configFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("inventory") {
		cfg.Inventory = g.inventory
	}
	if flags.Changed("forks") {
		cfg.Forks = g.forks
	}
	if flags.Changed("timeout") {
		cfg.Timeout = g.timeout
	}
	if flags.Changed("become") {
		cfg.Become = g.become
	}
	if flags.Changed("become-user") {
		cfg.BecomeUser = g.becomeUser
	}
	if flags.Changed("no-color") {
		cfg.Logging.NoColor = g.noColor
	}
	if flags.Changed("verbose") {
		cfg.Logging.Level = string(logger.VerbosityLevel(g.verbose))
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Init(cfg.LoggerConfig())
	g.cfg = cfg
	return nil
}

func (g *globalFlags) color() bool {
	return !g.cfg.Logging.NoColor && os.Getenv("NO_COLOR") == ""
}

func (g *globalFlags) loadInventory() (*inventory.Inventory, error) {
	if g.cfg.Inventory == "" {
		return nil, fmt.Errorf("no inventory given, use -i or set inventory in the config file")
	}
	mgr := inventory.NewManager()
	if err := mgr.Load(g.cfg.Inventory); err != nil {
		return nil, err
	}
	return mgr.Inventory(), nil
}

func (g *globalFlags) executorOptions() (executor.Options, error) {
	opts := g.cfg.ExecutorOptions()
	opts.Limit = g.limit
	opts.CheckMode = g.check

	extra, err := parseExtraVars(g.extraVars)
	if err != nil {
		return opts, err
	}
	opts.ExtraVars = extra
	return opts, nil
}

// parseExtraVars 合并多个 -e 参数，后出现的覆盖先出现的
func parseExtraVars(values []string) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	for _, raw := range values {
		raw = strings.TrimSpace(raw)
		var vars map[string]interface{}
		switch {
		case raw == "":
			continue
		case strings.HasPrefix(raw, "@"):
			data, err := os.ReadFile(raw[1:])
			if err != nil {
				return nil, fmt.Errorf("extra vars: %w", err)
			}
			if err := yaml.Unmarshal(data, &vars); err != nil {
				return nil, fmt.Errorf("extra vars file %s: %w", raw[1:], err)
			}
		case strings.HasPrefix(raw, "{"):
			if err := yaml.Unmarshal([]byte(raw), &vars); err != nil {
				return nil, fmt.Errorf("extra vars %q: %w", raw, err)
			}
		default:
			vars = playbook.ParseArgs(raw)
			if _, ok := vars["_raw_params"]; ok {
				return nil, fmt.Errorf("extra vars %q: expected key=value pairs", raw)
			}
		}
		for k, v := range vars {
			out[k] = v
		}
	}
	return out, nil
}

// signalContext SIGINT/SIGTERM 时取消运行
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
