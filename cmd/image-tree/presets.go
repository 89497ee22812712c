// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/image-tree/internal/jobspec"
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List generation presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		yamlOutput, _ := cmd.Flags().GetBool("yaml")
		if yamlOutput {
			return writeYAML(cmd.OutOrStdout(), jobspec.Presets())
		}
		printPresets(cmd.OutOrStdout(), jobspec.Presets())
		return nil
	},
}

func printPresets(w io.Writer, presets []jobspec.Preset) {
	fmt.Fprintf(w, "%-10s  %-5s  %-8s  %-9s  %s\n", "Name", "Steps", "Guidance", "Size", "Description")
	fmt.Fprintln(w, strings.Repeat("-", 70))
	for _, p := range presets {
		fmt.Fprintf(w, "%-10s  %-5d  %-8.1f  %-9s  %s\n",
			p.Name, p.Steps, p.Guidance, fmt.Sprintf("%dx%d", p.Width, p.Height), p.Description)
	}
}

func init() {
	presetsCmd.Flags().Bool("yaml", false, "output as YAML")
	rootCmd.AddCommand(presetsCmd)
}
