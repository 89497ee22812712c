// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists tree nodes and cached keyword extractions.
//
// The tree manager owns the authoritative in-memory graph; a Store is its
// write-through copy, read back when a node is not in memory. Three
// implementations share one contract: SQLite for a single process, Redis
// for sharing trees between processes, and memory for tests and throwaway
// runs.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pdiddy/image-tree/internal/advisory"
	"github.com/pdiddy/image-tree/pkg/types"
)

// DefaultPath is the SQLite database used when none is configured.
const DefaultPath = "data/image-tree.db"

// Store is the persistence contract.
type Store interface {
	// SaveNode inserts or replaces the node.
	SaveNode(ctx context.Context, node *types.TreeNode) error

	// LoadNode returns the node or an error wrapping types.ErrNodeNotFound.
	LoadNode(ctx context.Context, id string) (*types.TreeNode, error)

	// LoadTree returns every node sharing rootID. The root itself must
	// exist.
	LoadTree(ctx context.Context, rootID string) (*types.Tree, error)

	// DeleteNode removes the node. Deleting a missing node is not an error.
	DeleteNode(ctx context.Context, id string) error

	advisory.KeywordCache

	Close() error
}

// Open returns the Store selected by cfg.Backend.
func Open(ctx context.Context, cfg types.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "", types.StoreSQLite:
		path := cfg.Path
		if path == "" {
			path = DefaultPath
		}
		s, err := NewSQLite(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case types.StoreRedis:
		s, err := NewRedis(ctx, cfg.RedisURL, cfg.KeywordTTL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case types.StoreMemory:
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("%w: unknown store backend %q", types.ErrConfiguration, cfg.Backend)
}

// promptKey identifies a prompt in the keyword cache. Prompts differing only
// in case or surrounding space share an entry.
func promptKey(prompt string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(prompt))))
	return hex.EncodeToString(sum[:])
}

func notFound(id string) error {
	return fmt.Errorf("%w: %s", types.ErrNodeNotFound, id)
}
