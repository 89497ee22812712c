// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"slices"
	"sync"

	"github.com/pdiddy/image-tree/pkg/types"
)

// Memory is a Store that lives only as long as the process.
type Memory struct {
	mu       sync.RWMutex
	nodes    map[string]*types.TreeNode
	keywords map[string][]string
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		nodes:    make(map[string]*types.TreeNode),
		keywords: make(map[string][]string),
	}
}

func (m *Memory) SaveNode(ctx context.Context, node *types.TreeNode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[node.ID] = node.Clone()
	return nil
}

func (m *Memory) LoadNode(ctx context.Context, id string) (*types.TreeNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[id]
	if !ok {
		return nil, notFound(id)
	}
	return n.Clone(), nil
}

func (m *Memory) LoadTree(ctx context.Context, rootID string) (*types.Tree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.nodes[rootID]; !ok {
		return nil, notFound(rootID)
	}
	t := &types.Tree{RootID: rootID, Nodes: make(map[string]*types.TreeNode)}
	for id, n := range m.nodes {
		if n.RootID == rootID {
			t.Nodes[id] = n.Clone()
		}
	}
	return t, nil
}

func (m *Memory) DeleteNode(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nodes, id)
	return nil
}

func (m *Memory) CachedKeywords(_ context.Context, prompt string) ([]string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	kw, ok := m.keywords[promptKey(prompt)]
	return slices.Clone(kw), ok, nil
}

func (m *Memory) CacheKeywords(_ context.Context, prompt string, keywords []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keywords[promptKey(prompt)] = slices.Clone(keywords)
	return nil
}

func (m *Memory) Close() error { return nil }
