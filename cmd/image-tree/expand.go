// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pdiddy/image-tree/pkg/types"
)

var expandCmd = &cobra.Command{
	Use:   "expand <node-id>",
	Short: "Branch an accepted node into keyword children",
	Long: `Expand extracts up to four keywords from an accepted node's prompt and
creates one child per keyword with the prompt "<parent prompt>, <keyword>".
All children are generated concurrently; the command returns once every child
is accepted or failed. A failed child does not fail the command.

A node can be expanded once.`,
	Args: cobra.ExactArgs(1),
	RunE: runExpand,
}

// expandResult is the JSON shape of generate --expand and expand.
type expandResult struct {
	Node     *types.TreeNode   `json:"node"`
	Children []*types.TreeNode `json:"children,omitempty"`
}

func runExpand(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	children, err := expandNode(ctx, a, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		parent, err := a.manager.GetNode(ctx, args[0])
		if err != nil {
			return err
		}
		return writeJSON(out, expandResult{Node: parent, Children: children})
	}
	printChildren(out, children)
	return nil
}

// expandNode expands id and returns its children in keyword order.
func expandNode(ctx context.Context, a *app, id string) ([]*types.TreeNode, error) {
	ids, err := a.manager.Expand(ctx, id)
	if err != nil {
		return nil, err
	}
	// Children are terminal, so reads are safe after cancellation.
	ctx = context.WithoutCancel(ctx)
	children := make([]*types.TreeNode, 0, len(ids))
	for _, cid := range ids {
		c, err := a.manager.GetNode(ctx, cid)
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}
	return children, nil
}

func init() {
	addGenerationFlags(expandCmd)
	expandCmd.Flags().Bool("json", false, "output the result as JSON")

	rootCmd.AddCommand(expandCmd)
}
