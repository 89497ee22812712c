// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/image-tree/pkg/types"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
		want  Secrets
	}{
		{
			name: "reads key files and trims whitespace",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, OpenAIKey, "  sk-abc123  \n")
				writeFile(t, dir, OpenRouterKey, "or-xyz789")
				return dir
			},
			want: Secrets{
				OpenAIKey:     "sk-abc123",
				OpenRouterKey: "or-xyz789",
			},
		},
		{
			name: "returns empty set for nonexistent directory",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "does-not-exist")
			},
			want: Secrets{},
		},
		{
			name: "skips empty files",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, OpenAIKey, "valid-key")
				writeFile(t, dir, "empty-key", "")
				writeFile(t, dir, "whitespace-only", "   \n\t  ")
				return dir
			},
			want: Secrets{OpenAIKey: "valid-key"},
		},
		{
			name: "skips dotfiles and subdirectories",
			setup: func(t *testing.T) string {
				dir := t.TempDir()
				writeFile(t, dir, ".gitkeep", "")
				writeFile(t, dir, ".hidden-key", "secret")
				writeFile(t, dir, OpenRouterKey, "or-real")
				require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0o755))
				return dir
			},
			want: Secrets{OpenRouterKey: "or-real"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Load(tt.setup(t), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadUnreadableFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("file permissions do not apply to root")
	}
	dir := t.TempDir()
	writeFile(t, dir, "good-key", "value123")

	badPath := filepath.Join(dir, "bad-key")
	require.NoError(t, os.WriteFile(badPath, []byte("secret"), 0o000))
	t.Cleanup(func() { os.Chmod(badPath, 0o644) })

	got, err := Load(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, "value123", got["good-key"])
	assert.NotContains(t, got, "bad-key")
}

func TestLookup(t *testing.T) {
	s := Secrets{OpenAIKey: "sk-1"}
	assert.Equal(t, "sk-1", s.Lookup(OpenAIKey, "x"))
	assert.Equal(t, "x", s.Lookup(OpenRouterKey, "x"))
}

func TestApplyAdvisory(t *testing.T) {
	s := Secrets{OpenAIKey: "sk-1", OpenRouterKey: "or-1"}

	cfg := types.AdvisoryConfig{Provider: types.ProviderOpenRouter}
	s.ApplyAdvisory(&cfg)
	assert.Equal(t, "or-1", cfg.APIKey)

	cfg = types.AdvisoryConfig{Provider: types.ProviderOpenAI}
	s.ApplyAdvisory(&cfg)
	assert.Equal(t, "sk-1", cfg.APIKey)

	cfg = types.AdvisoryConfig{Provider: types.ProviderOpenAI, APIKey: "from-config"}
	s.ApplyAdvisory(&cfg)
	assert.Equal(t, "from-config", cfg.APIKey)

	cfg = types.AdvisoryConfig{Provider: types.ProviderOllama}
	s.ApplyAdvisory(&cfg)
	assert.Empty(t, cfg.APIKey)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
