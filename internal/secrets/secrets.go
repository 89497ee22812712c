// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys from a directory of plain-text files.
// Each file in the directory represents one secret: the filename is the key name and the
// file contents (trimmed) are the value.
//
// Supported key files: openai-api-key, openrouter-api-key.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/image-tree/internal/logging"
	"github.com/pdiddy/image-tree/pkg/types"
)

// DefaultDir is the secrets directory relative to the working directory.
const DefaultDir = ".secrets"

// Key file names.
const (
	OpenAIKey     = "openai-api-key"
	OpenRouterKey = "openrouter-api-key"
)

// Secrets maps key names to values.
type Secrets map[string]string

// Load reads all files in dir and returns their trimmed contents by filename.
// A missing directory or missing files are not errors; Load returns an empty set.
// Unreadable files are logged and skipped.
func Load(dir string, logger *zap.Logger) (Secrets, error) {
	logger = logging.OrNop(logger)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Secrets{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(Secrets)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("could not read secret", zap.String("name", name), zap.Error(err))
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// Lookup returns the secret named key, or fallback when it is absent.
func (s Secrets) Lookup(key, fallback string) string {
	if v, ok := s[key]; ok {
		return v
	}
	return fallback
}

// ApplyAdvisory fills cfg.APIKey from the key file matching cfg.Provider. A
// key already set in config wins.
func (s Secrets) ApplyAdvisory(cfg *types.AdvisoryConfig) {
	if cfg.APIKey != "" {
		return
	}
	switch cfg.Provider {
	case types.ProviderOpenAI, types.ProviderOpenAICompatible:
		cfg.APIKey = s.Lookup(OpenAIKey, "")
	case types.ProviderOpenRouter:
		cfg.APIKey = s.Lookup(OpenRouterKey, "")
	}
}
