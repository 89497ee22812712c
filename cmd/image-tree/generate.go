// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pdiddy/image-tree/pkg/types"
)

var generateCmd = &cobra.Command{
	Use:   "generate [prompt]",
	Short: "Generate a quality-gated image for a new root prompt",
	Long: `Generate creates a root node for the prompt and runs it through the
generation loop: submit the job, wait for the image, score it, and retry until
the score reaches the threshold or the attempt budget runs out. When attempts
run out, the best-scoring image is accepted.

Use --expand to branch the accepted root into keyword children in the same
run. Interrupting the command marks in-flight nodes as failed (cancelled).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := a.manager.CreateRoot(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	node, err := a.manager.Generate(ctx, id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	jsonOutput, _ := cmd.Flags().GetBool("json")
	expand, _ := cmd.Flags().GetBool("expand")

	var children []*types.TreeNode
	if expand && node.Status == types.StatusAccepted {
		children, err = expandNode(ctx, a, id)
		if err != nil {
			return err
		}
		if node, err = a.manager.GetNode(ctx, id); err != nil {
			return err
		}
	}

	if jsonOutput {
		return writeJSON(out, expandResult{Node: node, Children: children})
	}
	printNode(out, node)
	if len(children) > 0 {
		fmt.Fprintln(out)
		printChildren(out, children)
	}
	return nodeError(node)
}

// nodeError reports a failed node as a command error.
func nodeError(n *types.TreeNode) error {
	if n.Status != types.StatusFailed {
		return nil
	}
	if n.Error != nil {
		return fmt.Errorf("node %s failed (%s): %s", n.ID, n.Error.Kind, n.Error.Message)
	}
	return fmt.Errorf("node %s failed", n.ID)
}

func init() {
	addGenerationFlags(generateCmd)
	generateCmd.Flags().Bool("expand", false, "expand the root into keyword branches once accepted")
	generateCmd.Flags().Bool("json", false, "output the result as JSON")

	rootCmd.AddCommand(generateCmd)
}
