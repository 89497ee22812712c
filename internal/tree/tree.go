// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package tree owns the node graph. It creates roots, runs generation for a
// node, and expands an accepted node into branch children that are
// generated concurrently.
//
// The Manager is the only mutator of nodes. Every mutation happens under
// its mutex and is written through to the store. Generation runs happen
// outside the mutex, bounded by a manager-wide worker pool.
package tree

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/pdiddy/image-tree/internal/advisory"
	"github.com/pdiddy/image-tree/internal/logging"
	"github.com/pdiddy/image-tree/internal/metrics"
	"github.com/pdiddy/image-tree/internal/orchestrator"
	"github.com/pdiddy/image-tree/internal/store"
	"github.com/pdiddy/image-tree/pkg/types"
)

// Defaults applied when config leaves a field zero.
const (
	DefaultWorkers     = 4
	DefaultMaxBranches = advisory.MaxKeywords
)

// Runner drives one node's generation to a terminal result.
type Runner interface {
	Run(ctx context.Context, req orchestrator.Request) orchestrator.Result
}

// KeywordExtractor proposes branch keywords for a prompt.
type KeywordExtractor interface {
	ExtractKeywords(ctx context.Context, prompt string) ([]string, error)
}

// Manager owns every tree it has created or loaded.
type Manager struct {
	store    store.Store
	runner   Runner
	keywords KeywordExtractor
	logger   *zap.Logger

	workers     *semaphore.Weighted
	maxBranches int

	mu         sync.Mutex
	nodes      map[string]*types.TreeNode
	generating map[string]bool
	expanding  map[string]bool

	now   func() time.Time
	newID func() string
}

// New returns a Manager backed by st.
func New(st store.Store, runner Runner, keywords KeywordExtractor, cfg types.TreeConfig, logger *zap.Logger) *Manager {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	branches := cfg.MaxBranches
	if branches <= 0 || branches > advisory.MaxKeywords {
		branches = DefaultMaxBranches
	}
	return &Manager{
		store:       st,
		runner:      runner,
		keywords:    keywords,
		logger:      logging.OrNop(logger),
		workers:     semaphore.NewWeighted(int64(workers)),
		maxBranches: branches,
		nodes:       make(map[string]*types.TreeNode),
		generating:  make(map[string]bool),
		expanding:   make(map[string]bool),
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// CreateRoot inserts a pending root node for prompt and returns its id.
func (m *Manager) CreateRoot(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("%w: prompt is empty", types.ErrConfiguration)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	id := m.newID()
	n := &types.TreeNode{
		ID:          id,
		RootID:      id,
		Prompt:      prompt,
		Keywords:    []string{},
		Status:      types.StatusPending,
		ChildrenIDs: []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.SaveNode(ctx, n); err != nil {
		return "", fmt.Errorf("saving root: %w", err)
	}
	m.nodes[id] = n
	m.logger.Info("root created", zap.String(logging.FieldNodeID, id))
	return id, nil
}

// Generate runs generation for a pending or failed node and returns the node
// in its terminal state. Cancelling ctx fails the node with a cancelled
// reason.
func (m *Manager) Generate(ctx context.Context, id string) (*types.TreeNode, error) {
	m.mu.Lock()
	n, err := m.loadLocked(ctx, id)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	switch {
	case m.generating[id] || n.Status == types.StatusGenerating:
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", types.ErrGenerationInProgress, id)
	case n.Status == types.StatusAccepted:
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", types.ErrAlreadyAccepted, id)
	}
	m.generating[id] = true
	m.mu.Unlock()

	return m.execute(ctx, id), nil
}

// Expand extracts keywords from an accepted node's prompt, creates one
// pending child per keyword, and generates all children concurrently. It
// returns the child ids once every child is terminal. Child failures are
// recorded on the children and never returned as an error.
func (m *Manager) Expand(ctx context.Context, id string) ([]string, error) {
	m.mu.Lock()
	n, err := m.loadLocked(ctx, id)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	switch {
	case m.expanding[id]:
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", types.ErrAlreadyExpanding, id)
	case n.Status != types.StatusAccepted:
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is %s", types.ErrNodeNotReady, id, n.Status)
	case len(n.ChildrenIDs) > 0:
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", types.ErrAlreadyExpanded, id)
	}
	m.expanding[id] = true
	prompt := n.Prompt
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.expanding, id)
		m.mu.Unlock()
	}()

	logger := m.logger.With(zap.String(logging.FieldNodeID, id))

	keywords, err := m.keywords.ExtractKeywords(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			metrics.ExpansionsTotal.WithLabelValues("cancelled").Inc()
			return nil, fmt.Errorf("%w: %v", types.ErrCancelled, context.Cause(ctx))
		}
		logger.Warn("keyword extraction failed, no children", zap.Error(err))
		keywords = nil
	}
	keywords = advisory.NormalizeKeywords(keywords)
	if len(keywords) > m.maxBranches {
		keywords = keywords[:m.maxBranches]
	}
	if len(keywords) == 0 {
		metrics.ExpansionsTotal.WithLabelValues("empty").Inc()
		return []string{}, nil
	}

	ids, err := m.addChildren(ctx, id, keywords)
	if err != nil {
		metrics.ExpansionsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	logger.Info("expanding", zap.Strings("keywords", keywords), zap.Strings("children", ids))

	// Siblings never cancel each other, so no errgroup context.
	var g errgroup.Group
	for _, cid := range ids {
		g.Go(func() error {
			m.execute(ctx, cid)
			return nil
		})
	}
	_ = g.Wait()

	metrics.ExpansionsTotal.WithLabelValues("ok").Inc()
	return ids, nil
}

// addChildren creates the children of parentID and records keywords on the
// parent. The children are reserved as generating before the lock is
// released, so no concurrent Generate can claim them.
func (m *Manager) addChildren(ctx context.Context, parentID string, keywords []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	parent := m.nodes[parentID]
	if len(parent.ChildrenIDs) > 0 {
		return nil, fmt.Errorf("%w: %s", types.ErrAlreadyExpanded, parentID)
	}

	now := m.now()
	saveCtx := context.WithoutCancel(ctx)
	children := make([]*types.TreeNode, 0, len(keywords))
	for _, kw := range keywords {
		children = append(children, &types.TreeNode{
			ID:          m.newID(),
			RootID:      parent.RootID,
			ParentID:    parent.ID,
			Prompt:      parent.Prompt + ", " + kw,
			Keywords:    []string{kw},
			Status:      types.StatusPending,
			ChildrenIDs: []string{},
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	for i, c := range children {
		if err := m.store.SaveNode(saveCtx, c); err != nil {
			m.discardLocked(saveCtx, children[:i])
			return nil, fmt.Errorf("saving child: %w", err)
		}
	}

	ids := make([]string, len(children))
	for i, c := range children {
		ids[i] = c.ID
		m.nodes[c.ID] = c
		m.generating[c.ID] = true
	}
	parent.Keywords = keywords
	parent.ChildrenIDs = ids
	parent.UpdatedAt = now
	m.persistLocked(saveCtx, parent)
	return ids, nil
}

// discardLocked deletes children saved by an expansion that failed part
// way, so no node names a parent that does not list it.
func (m *Manager) discardLocked(ctx context.Context, children []*types.TreeNode) {
	for _, c := range children {
		if err := m.store.DeleteNode(ctx, c.ID); err != nil {
			m.logger.Error("discarding child failed",
				zap.String(logging.FieldNodeID, c.ID), zap.String(logging.FieldRootID, c.RootID), zap.Error(err))
		}
	}
}

// execute runs a node already reserved in m.generating and records its
// terminal state.
func (m *Manager) execute(ctx context.Context, id string) *types.TreeNode {
	if err := m.workers.Acquire(ctx, 1); err != nil {
		return m.finish(ctx, id, orchestrator.Result{
			Status: types.StatusFailed,
			Err:    fmt.Errorf("%w: %v", types.ErrCancelled, context.Cause(ctx)),
		})
	}
	defer m.workers.Release(1)

	m.mu.Lock()
	n := m.nodes[id]
	n.Status = types.StatusGenerating
	n.Error = nil
	n.UpdatedAt = m.now()
	req := orchestrator.Request{NodeID: n.ID, RootID: n.RootID, Prompt: n.Prompt}
	m.persistLocked(context.WithoutCancel(ctx), n)
	m.mu.Unlock()

	metrics.ActiveRuns.Inc()
	res := m.runner.Run(ctx, req)
	metrics.ActiveRuns.Dec()

	return m.finish(ctx, id, res)
}

// finish applies a terminal result and releases the node's reservation. The
// write ignores cancellation of ctx so a cancelled node still lands as
// failed.
func (m *Manager) finish(ctx context.Context, id string, res orchestrator.Result) *types.TreeNode {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.nodes[id]
	n.Attempts = res.Attempts
	n.UpdatedAt = m.now()
	if res.Status == types.StatusAccepted {
		score := res.Score
		n.Status = types.StatusAccepted
		n.ImageRef = res.ImageRef
		n.QualityScore = &score
		n.FinalPrompt = res.FinalPrompt
		n.Error = nil
	} else {
		err := res.Err
		if err == nil {
			err = errors.New("generation failed without a reason")
		}
		n.Status = types.StatusFailed
		n.Error = types.Reason(err)
	}
	delete(m.generating, id)
	m.persistLocked(context.WithoutCancel(ctx), n)
	return n.Clone()
}

// GetNode returns a copy of the node.
func (m *Manager) GetNode(ctx context.Context, id string) (*types.TreeNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, err := m.loadLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	return n.Clone(), nil
}

// GetTree returns a copy of every node in the tree rooted at rootID.
func (m *Manager) GetTree(ctx context.Context, rootID string) (*types.Tree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, err := m.store.LoadTree(ctx, rootID)
	if err != nil && !errors.Is(err, types.ErrNodeNotFound) {
		return nil, err
	}
	if stored != nil {
		for _, n := range stored.Nodes {
			m.adoptLocked(ctx, n)
		}
	}

	t := &types.Tree{RootID: rootID, Nodes: make(map[string]*types.TreeNode)}
	for id, n := range m.nodes {
		if n.RootID == rootID {
			t.Nodes[id] = n.Clone()
		}
	}
	if _, ok := t.Nodes[rootID]; !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrNodeNotFound, rootID)
	}
	return t, nil
}

// loadLocked returns the authoritative node, reading it from the store the
// first time it is seen.
func (m *Manager) loadLocked(ctx context.Context, id string) (*types.TreeNode, error) {
	if n, ok := m.nodes[id]; ok {
		return n, nil
	}
	n, err := m.store.LoadNode(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.adoptLocked(ctx, n), nil
}

// adoptLocked takes ownership of a node read from the store. A node stored
// as generating that this manager is not running was interrupted by an
// earlier process and is marked failed.
func (m *Manager) adoptLocked(ctx context.Context, n *types.TreeNode) *types.TreeNode {
	if cur, ok := m.nodes[n.ID]; ok {
		return cur
	}
	if n.Status == types.StatusGenerating {
		n.Status = types.StatusFailed
		n.Error = &types.NodeError{Kind: types.Kind(types.ErrCancelled), Message: "generation interrupted"}
		n.UpdatedAt = m.now()
		m.persistLocked(context.WithoutCancel(ctx), n)
	}
	m.nodes[n.ID] = n
	return n
}

// persistLocked writes n through to the store. The in-memory node stays
// authoritative when the write fails.
func (m *Manager) persistLocked(ctx context.Context, n *types.TreeNode) {
	if err := m.store.SaveNode(ctx, n); err != nil {
		m.logger.Error("saving node failed",
			zap.String(logging.FieldNodeID, n.ID), zap.String(logging.FieldRootID, n.RootID), zap.Error(err))
	}
}
