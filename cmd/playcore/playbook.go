package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	perrors "github.com/jimyag/playcore/pkg/errors"
	"github.com/jimyag/playcore/pkg/executor"
	"github.com/jimyag/playcore/pkg/logger"
	"github.com/jimyag/playcore/pkg/module"
	"github.com/jimyag/playcore/pkg/playbook"
	"github.com/jimyag/playcore/pkg/report"
)

func newPlaybookCmd(g *globalFlags) *cobra.Command {
	var (
		tags        []string
		skipTags    []string
		syntaxCheck bool
	)

	cmd := &cobra.Command{
		Use:   "playbook <playbook.yml>...",
		Short: "Run one or more playbooks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			modules := module.Builtins()
			loader := playbook.NewLoader(modules, g.cfg.RolesPath...)

			var pb playbook.Playbook
			for _, path := range args {
				plays, err := loader.LoadFile(path)
				if err != nil {
					return err
				}
				pb = append(pb, plays...)
			}
			if syntaxCheck {
				fmt.Fprintf(cmd.OutOrStdout(), "playbook: %d play(s) OK\n", len(pb))
				return nil
			}

			inv, err := g.loadInventory()
			if err != nil {
				return err
			}
			opts, err := g.executorOptions()
			if err != nil {
				return err
			}
			opts.Tags = tags
			opts.SkipTags = skipTags

			e, err := executor.New(inv, modules, opts)
			if err != nil {
				return err
			}
			e.WithCallback(logger.NewConsole(cmd.OutOrStdout(), g.color(), g.verbose > 0))

			ctx, stop := signalContext()
			defer stop()
			rep, err := e.Run(ctx, pb)
			return exitStatus(rep, err)
		},
	}

	cmd.Flags().StringSliceVarP(&tags, "tags", "t", nil, "only run tasks tagged with these values")
	cmd.Flags().StringSliceVar(&skipTags, "skip-tags", nil, "skip tasks tagged with these values")
	cmd.Flags().BoolVar(&syntaxCheck, "syntax-check", false, "load and validate the playbook without running it")
	return cmd
}

// exitStatus 把运行结果转换为退出码
func exitStatus(rep *report.Report, err error) error {
	if err != nil && (rep == nil || !perrors.IsType(err, perrors.ErrCancelled)) {
		return err
	}
	code := rep.ExitCode()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		if code == 0 {
			code = 1
		}
	}
	if code != 0 {
		return &exitError{code: code}
	}
	return nil
}
