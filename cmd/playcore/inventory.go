package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newInventoryCmd(g *globalFlags) *cobra.Command {
	var showVars bool

	cmd := &cobra.Command{
		Use:   "inventory [pattern]",
		Short: "List the hosts a pattern resolves to",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := g.loadInventory()
			if err != nil {
				return err
			}
			pattern := "all"
			if len(args) == 1 {
				pattern = args[0]
			}
			hosts, err := inv.ResolveWithLimit(pattern, g.limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "  hosts (%d):\n", len(hosts))
			for _, h := range hosts {
				fmt.Fprintf(out, "    %s\n", h.Name)
				if !showVars {
					continue
				}
				merged := map[string]interface{}{"group_names": inv.GroupNamesOf(h.Name)}
				for _, layer := range inv.GroupVarLayers(h.Name) {
					for k, v := range layer {
						merged[k] = v
					}
				}
				for k, v := range h.Vars {
					merged[k] = v
				}
				data, err := yaml.Marshal(merged)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s", indent(string(data), "      "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showVars, "vars", false, "also print each host's inventory variables")
	return cmd
}

func indent(s, prefix string) string {
	var out []byte
	start := true
	for i := 0; i < len(s); i++ {
		if start && s[i] != '\n' {
			out = append(out, prefix...)
		}
		out = append(out, s[i])
		start = s[i] == '\n'
	}
	return string(out)
}
