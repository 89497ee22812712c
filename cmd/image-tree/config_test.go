// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/image-tree/internal/secrets"
	"github.com/pdiddy/image-tree/pkg/types"
)

func TestLoadConfig_Defaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg, err := loadConfig(v, nil)
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Generation.Steps)
	assert.Equal(t, 1536, cfg.Generation.Width)
	assert.Equal(t, 7.0, cfg.Quality.Threshold)
	assert.Equal(t, 5, cfg.Quality.MaxIterations)
	assert.Equal(t, types.ProviderOllama, cfg.Advisory.Provider)
	assert.Equal(t, 4, cfg.Tree.Workers)
	assert.Equal(t, 4, cfg.Tree.MaxBranches)
	assert.Equal(t, types.StoreSQLite, cfg.Store.Backend)
	assert.Equal(t, 60*time.Second, cfg.Synthesis.Timeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadConfig_Overrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("quality.threshold", 8.5)
	v.Set("store.backend", "memory")
	v.Set("synthesis.poll_timeout", "90s")

	cfg, err := loadConfig(v, nil)
	require.NoError(t, err)
	assert.Equal(t, 8.5, cfg.Quality.Threshold)
	assert.Equal(t, types.StoreMemory, cfg.Store.Backend)
	assert.Equal(t, 90*time.Second, cfg.Synthesis.PollTimeout)
}

func TestLoadConfig_AppliesSecrets(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("advisory.provider", "openai")

	cfg, err := loadConfig(v, secrets.Secrets{secrets.OpenAIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.Advisory.APIKey)
}

func TestApplyGenerationFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	addGenerationFlags(cmd)
	require.NoError(t, cmd.Flags().Parse([]string{
		"--preset", "draft", "--size", "1024x768", "--threshold", "6", "--refine",
	}))

	cfg := types.AppConfig{
		Generation: types.GenerationConfig{Steps: 9, Width: 1536, Height: 1536, Seed: 7},
		Quality:    types.QualityConfig{Threshold: 7, MaxIterations: 5},
	}
	require.NoError(t, applyGenerationFlags(cmd, &cfg))

	assert.Equal(t, "draft", cfg.Generation.Preset)
	assert.Equal(t, 1024, cfg.Generation.Width)
	assert.Equal(t, 768, cfg.Generation.Height)
	assert.Equal(t, 6.0, cfg.Quality.Threshold)
	assert.True(t, cfg.Quality.RefinePrompt)

	// Unset flags leave config alone.
	assert.Equal(t, 9, cfg.Generation.Steps)
	assert.Equal(t, int64(7), cfg.Generation.Seed)
	assert.Equal(t, 5, cfg.Quality.MaxIterations)
	assert.False(t, cfg.Quality.SkipEvaluation)
}

func TestApplyGenerationFlags_BadSize(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	addGenerationFlags(cmd)
	require.NoError(t, cmd.Flags().Parse([]string{"--size", "huge"}))

	var cfg types.AppConfig
	assert.Error(t, applyGenerationFlags(cmd, &cfg))
}

func TestPrintNode(t *testing.T) {
	s := 8.4
	n := &types.TreeNode{
		ID:           "n1",
		RootID:       "n1",
		Prompt:       "a modern logo",
		FinalPrompt:  "a modern logo, sharp edges",
		Status:       types.StatusAccepted,
		QualityScore: &s,
		ImageRef:     "n1/n1.png",
		Attempts:     2,
	}

	var buf bytes.Buffer
	printNode(&buf, n)
	out := buf.String()
	assert.Contains(t, out, "a modern logo")
	assert.Contains(t, out, "accepted")
	assert.Contains(t, out, "8.4")
	assert.Contains(t, out, "Refined")
	assert.Contains(t, out, "n1/n1.png")
	assert.NotContains(t, out, "Parent")
}

func TestPrintChildren(t *testing.T) {
	s := 7.5
	children := []*types.TreeNode{
		{ID: "c1", Keywords: []string{"geometric"}, Status: types.StatusAccepted, QualityScore: &s, ImageRef: "r/c1.png"},
		{ID: "c2", Keywords: []string{"neon"}, Status: types.StatusFailed,
			Error: &types.NodeError{Kind: "backend_unavailable", Message: "down"}},
	}

	var buf bytes.Buffer
	printChildren(&buf, children)
	out := buf.String()
	assert.Contains(t, out, "geometric")
	assert.Contains(t, out, "backend_unavailable")
	assert.Contains(t, out, "1 of 2 branches accepted")

	buf.Reset()
	printChildren(&buf, nil)
	assert.Equal(t, "No branches created.\n", buf.String())
}

func TestPrintTree(t *testing.T) {
	tr := &types.Tree{
		RootID: "r",
		Nodes: map[string]*types.TreeNode{
			"r": {ID: "r", Prompt: "root", Status: types.StatusAccepted, ChildrenIDs: []string{"a", "b"}},
			"a": {ID: "a", ParentID: "r", Prompt: "root, a", Status: types.StatusAccepted},
			"b": {ID: "b", ParentID: "r", Prompt: "root, b", Status: types.StatusFailed},
		},
	}

	var buf bytes.Buffer
	printTree(&buf, tr)
	assert.Equal(t,
		"r [accepted -] root\n"+
			"  a [accepted -] root, a\n"+
			"  b [failed -] root, b\n"+
			"\n3 nodes\n",
		buf.String())
}

func TestNodeError(t *testing.T) {
	assert.NoError(t, nodeError(&types.TreeNode{Status: types.StatusAccepted}))

	err := nodeError(&types.TreeNode{
		ID:     "x",
		Status: types.StatusFailed,
		Error:  &types.NodeError{Kind: "backend_rejected", Message: "bad graph"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend_rejected")
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeYAML(&buf, map[string]int{"steps": 4}))
	assert.Equal(t, "steps: 4\n", buf.String())
}
