// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package artifact writes accepted images to disk. Each tree gets its own
// directory, and each node at most one file:
//
//	<dir>/tree_<root id>/<node id>.<ext>
//
// The returned path is the node's image_ref.
package artifact

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// DefaultDir is used when no directory is configured.
const DefaultDir = "generated_images"

// Store is a directory of accepted artifacts.
type Store struct {
	dir string
}

// New returns a Store rooted at dir.
func New(dir string) *Store {
	if dir == "" {
		dir = DefaultDir
	}
	return &Store{dir: dir}
}

// Dir returns the base directory.
func (s *Store) Dir() string { return s.dir }

// Write stores data for nodeID of tree rootID and returns its path. The file
// is written to a temporary name and renamed into place, so readers never
// see a partial image.
func (s *Store) Write(ctx context.Context, rootID, nodeID string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("artifact for node %s is empty", nodeID)
	}
	if !safeName(rootID) || !safeName(nodeID) {
		return "", fmt.Errorf("invalid artifact ids %q/%q", rootID, nodeID)
	}

	treeDir := filepath.Join(s.dir, "tree_"+rootID)
	if err := os.MkdirAll(treeDir, 0o755); err != nil {
		return "", fmt.Errorf("creating directory %s: %w", treeDir, err)
	}
	destPath := filepath.Join(treeDir, nodeID+extension(data))

	tmpFile, err := os.CreateTemp(treeDir, ".artifact-*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, writeErr := tmpFile.Write(data)
	closeErr := tmpFile.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("writing artifact: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("renaming temp file: %w", err)
	}
	return destPath, nil
}

// Open reads the artifact at ref, which must lie inside the store.
func (s *Store) Open(ref string) ([]byte, string, error) {
	base, err := filepath.Abs(s.dir)
	if err != nil {
		return nil, "", err
	}
	path, err := filepath.Abs(ref)
	if err != nil {
		return nil, "", err
	}
	if !strings.HasPrefix(path, base+string(filepath.Separator)) {
		return nil, "", fmt.Errorf("artifact %s is outside %s", ref, s.dir)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	return data, http.DetectContentType(data), nil
}

func extension(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	return ".png"
}

func safeName(s string) bool {
	return s != "" && !strings.ContainsAny(s, `/\`) && s != "." && s != ".."
}
