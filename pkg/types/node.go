// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"slices"
	"time"
)

// NodeStatus is the lifecycle state of a TreeNode.
type NodeStatus string

const (
	StatusPending    NodeStatus = "pending"
	StatusGenerating NodeStatus = "generating"
	StatusAccepted   NodeStatus = "accepted"
	StatusFailed     NodeStatus = "failed"
)

// Terminal reports whether no further transition happens without a new request.
func (s NodeStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusFailed
}

// NodeError is the last failure reason recorded on a failed node.
type NodeError struct {
	// Kind is the error taxonomy name (e.g. "backend_rejected", "cancelled").
	Kind string `json:"kind" yaml:"kind"`

	// Message is the human-readable failure detail.
	Message string `json:"message" yaml:"message"`
}

// TreeNode is one creative unit in a tree: a prompt, its accepted artifact,
// and the artifact's quality score.
type TreeNode struct {
	// ID is a UUID assigned on creation.
	ID string `json:"id" yaml:"id"`

	// RootID is the id of the tree's root. Equal to ID for a root.
	RootID string `json:"root_id" yaml:"root_id"`

	// ParentID is the owning node, empty for a root.
	ParentID string `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`

	// Prompt drives generation for this node.
	Prompt string `json:"prompt" yaml:"prompt"`

	// Keywords are the branch keywords. For a child this is its own branch
	// keyword; for an expanded node, the keywords its expansion extracted.
	Keywords []string `json:"keywords" yaml:"keywords"`

	// ImageRef references the accepted artifact. Empty until accepted.
	ImageRef string `json:"image_ref,omitempty" yaml:"image_ref,omitempty"`

	// QualityScore is the accepted artifact's score. Nil until accepted.
	QualityScore *float64 `json:"quality_score,omitempty" yaml:"quality_score,omitempty"`

	// FinalPrompt is the prompt of the accepted attempt after refinement.
	FinalPrompt string `json:"final_prompt,omitempty" yaml:"final_prompt,omitempty"`

	Status NodeStatus `json:"status" yaml:"status"`

	// ChildrenIDs lists nodes created by expanding this node.
	ChildrenIDs []string `json:"children_ids" yaml:"children_ids"`

	// Attempts is the number of attempts the last generation run made.
	Attempts int `json:"attempts" yaml:"attempts"`

	// Error holds the last failure reason when Status is failed.
	Error *NodeError `json:"error,omitempty" yaml:"error,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// IsRoot reports whether the node has no parent.
func (n *TreeNode) IsRoot() bool {
	return n.ParentID == ""
}

// Clone returns a deep copy so callers never share slices or pointers with
// the owner of the node.
func (n *TreeNode) Clone() *TreeNode {
	if n == nil {
		return nil
	}
	c := *n
	c.Keywords = slices.Clone(n.Keywords)
	c.ChildrenIDs = slices.Clone(n.ChildrenIDs)
	if n.QualityScore != nil {
		s := *n.QualityScore
		c.QualityScore = &s
	}
	if n.Error != nil {
		e := *n.Error
		c.Error = &e
	}
	return &c
}

// Tree is a mapping from node id to node plus the root id.
type Tree struct {
	RootID string               `json:"root_id" yaml:"root_id"`
	Nodes  map[string]*TreeNode `json:"nodes" yaml:"nodes"`
}

// Root returns the root node, or nil if it is missing.
func (t *Tree) Root() *TreeNode {
	if t == nil || t.Nodes == nil {
		return nil
	}
	return t.Nodes[t.RootID]
}

// Children returns the children of id in ChildrenIDs order, skipping ids
// that are not present in the tree.
func (t *Tree) Children(id string) []*TreeNode {
	n, ok := t.Nodes[id]
	if !ok {
		return nil
	}
	out := make([]*TreeNode, 0, len(n.ChildrenIDs))
	for _, cid := range n.ChildrenIDs {
		if c, ok := t.Nodes[cid]; ok {
			out = append(out, c)
		}
	}
	return out
}
