// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <node-id>",
	Short: "Show a node or its whole tree",
	Long: `Show prints a stored node. With --tree it prints the tree the node
belongs to, starting from the root. Output is text by default, or JSON/YAML
with --json or --yaml.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	node, err := a.manager.GetNode(ctx, args[0])
	if err != nil {
		return err
	}

	wholeTree, _ := cmd.Flags().GetBool("tree")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	yamlOutput, _ := cmd.Flags().GetBool("yaml")
	if jsonOutput && yamlOutput {
		return fmt.Errorf("--json and --yaml are mutually exclusive")
	}

	var v any = node
	if wholeTree {
		t, err := a.manager.GetTree(ctx, node.RootID)
		if err != nil {
			return err
		}
		v = t
		if !jsonOutput && !yamlOutput {
			printTree(cmd.OutOrStdout(), t)
			return nil
		}
	}

	out := cmd.OutOrStdout()
	switch {
	case jsonOutput:
		return writeJSON(out, v)
	case yamlOutput:
		return writeYAML(out, v)
	}
	printNode(out, node)
	return nil
}

func init() {
	showCmd.Flags().Bool("tree", false, "show the whole tree the node belongs to")
	showCmd.Flags().Bool("json", false, "output as JSON")
	showCmd.Flags().Bool("yaml", false, "output as YAML")

	rootCmd.AddCommand(showCmd)
}
