// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/image-tree/pkg/types"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// score formats a quality score, or "-" when the node has none.
func score(n *types.TreeNode) string {
	if n.QualityScore == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *n.QualityScore)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// printNode prints one node as aligned key/value lines.
func printNode(w io.Writer, n *types.TreeNode) {
	fmt.Fprintf(w, "%-10s %s\n", "Node", n.ID)
	if !n.IsRoot() {
		fmt.Fprintf(w, "%-10s %s\n", "Parent", n.ParentID)
	}
	fmt.Fprintf(w, "%-10s %s\n", "Prompt", n.Prompt)
	fmt.Fprintf(w, "%-10s %s\n", "Status", n.Status)
	fmt.Fprintf(w, "%-10s %s\n", "Score", score(n))
	fmt.Fprintf(w, "%-10s %d\n", "Attempts", n.Attempts)
	if n.FinalPrompt != "" && n.FinalPrompt != n.Prompt {
		fmt.Fprintf(w, "%-10s %s\n", "Refined", n.FinalPrompt)
	}
	if n.ImageRef != "" {
		fmt.Fprintf(w, "%-10s %s\n", "Image", n.ImageRef)
	}
	if len(n.Keywords) > 0 {
		fmt.Fprintf(w, "%-10s %s\n", "Keywords", strings.Join(n.Keywords, ", "))
	}
	if len(n.ChildrenIDs) > 0 {
		fmt.Fprintf(w, "%-10s %d\n", "Children", len(n.ChildrenIDs))
	}
	if n.Error != nil {
		fmt.Fprintf(w, "%-10s %s: %s\n", "Error", n.Error.Kind, n.Error.Message)
	}
}

// printChildren prints the children of one expansion as a table.
func printChildren(w io.Writer, children []*types.TreeNode) {
	if len(children) == 0 {
		fmt.Fprintln(w, "No branches created.")
		return
	}

	fmt.Fprintf(w, "%-36s  %-20s  %-9s  %-5s  %s\n", "ID", "Keyword", "Status", "Score", "Image")
	fmt.Fprintln(w, strings.Repeat("-", 100))

	accepted := 0
	for _, c := range children {
		keyword := ""
		if len(c.Keywords) > 0 {
			keyword = truncate(c.Keywords[0], 20)
		}
		detail := c.ImageRef
		if c.Status == types.StatusFailed && c.Error != nil {
			detail = c.Error.Kind
		} else if c.Status == types.StatusAccepted {
			accepted++
		}
		fmt.Fprintf(w, "%-36s  %-20s  %-9s  %-5s  %s\n", c.ID, keyword, c.Status, score(c), detail)
	}

	fmt.Fprintf(w, "\n%d of %d branches accepted\n", accepted, len(children))
}

// printTree prints t depth-first from the root, indenting each level.
func printTree(w io.Writer, t *types.Tree) {
	root := t.Root()
	if root == nil {
		fmt.Fprintln(w, "Empty tree.")
		return
	}
	printSubtree(w, t, root, 0)
	fmt.Fprintf(w, "\n%d nodes\n", len(t.Nodes))
}

func printSubtree(w io.Writer, t *types.Tree, n *types.TreeNode, depth int) {
	fmt.Fprintf(w, "%s%s [%s %s] %s\n", strings.Repeat("  ", depth), n.ID, n.Status, score(n), n.Prompt)
	for _, c := range t.Children(n.ID) {
		printSubtree(w, t, c, depth+1)
	}
}
