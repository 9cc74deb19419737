package main

import (
	"github.com/spf13/cobra"

	"github.com/jimyag/playcore/pkg/executor"
	"github.com/jimyag/playcore/pkg/logger"
	"github.com/jimyag/playcore/pkg/module"
	"github.com/jimyag/playcore/pkg/playbook"
)

func newAdhocCmd(g *globalFlags) *cobra.Command {
	var (
		moduleName string
		moduleArgs string
	)

	cmd := &cobra.Command{
		Use:   "adhoc <pattern>",
		Short: "Run a single module against matching hosts",
		Example: `  playcore adhoc -i hosts.ini all -m ping
  playcore adhoc -i hosts.ini webservers -m shell -a "uptime"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := g.loadInventory()
			if err != nil {
				return err
			}
			opts, err := g.executorOptions()
			if err != nil {
				return err
			}

			e, err := executor.New(inv, module.Builtins(), opts)
			if err != nil {
				return err
			}
			e.WithCallback(logger.NewAdhoc(cmd.OutOrStdout(), g.color()))

			ctx, stop := signalContext()
			defer stop()
			rep, err := e.RunAdhoc(ctx, args[0], moduleName, playbook.ParseArgs(moduleArgs))
			return exitStatus(rep, err)
		},
	}

	cmd.Flags().StringVarP(&moduleName, "module-name", "m", "command", "module to execute")
	cmd.Flags().StringVarP(&moduleArgs, "args", "a", "", "module arguments (key=value or free form)")
	return cmd
}
