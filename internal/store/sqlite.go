// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/image-tree/pkg/types"
)

// SQLite stores nodes in a single SQLite database file.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens or creates the database at path and creates the schema if
// it does not exist.
func NewSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS nodes (
			id TEXT PRIMARY KEY,
			root_id TEXT NOT NULL,
			parent_id TEXT,
			prompt TEXT NOT NULL,
			keywords TEXT,
			image_ref TEXT,
			quality_score REAL,
			final_prompt TEXT,
			status TEXT NOT NULL,
			children_ids TEXT,
			attempts INTEGER NOT NULL DEFAULT 0,
			error_kind TEXT,
			error_message TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_root_id ON nodes(root_id)`,
		`CREATE TABLE IF NOT EXISTS keyword_cache (
			prompt_hash TEXT PRIMARY KEY,
			prompt TEXT NOT NULL,
			keywords TEXT NOT NULL,
			created_at TEXT NOT NULL,
			usage_count INTEGER NOT NULL DEFAULT 0
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

const nodeColumns = `id, root_id, parent_id, prompt, keywords, image_ref, quality_score,
	final_prompt, status, children_ids, attempts, error_kind, error_message,
	created_at, updated_at`

// SaveNode upserts the node.
func (s *SQLite) SaveNode(ctx context.Context, n *types.TreeNode) error {
	keywords, err := json.Marshal(nonNil(n.Keywords))
	if err != nil {
		return fmt.Errorf("encoding keywords: %w", err)
	}
	children, err := json.Marshal(nonNil(n.ChildrenIDs))
	if err != nil {
		return fmt.Errorf("encoding children: %w", err)
	}

	var score sql.NullFloat64
	if n.QualityScore != nil {
		score = sql.NullFloat64{Float64: *n.QualityScore, Valid: true}
	}
	var errKind, errMsg sql.NullString
	if n.Error != nil {
		errKind = sql.NullString{String: n.Error.Kind, Valid: true}
		errMsg = sql.NullString{String: n.Error.Message, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO nodes (`+nodeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			root_id = excluded.root_id,
			parent_id = excluded.parent_id,
			prompt = excluded.prompt,
			keywords = excluded.keywords,
			image_ref = excluded.image_ref,
			quality_score = excluded.quality_score,
			final_prompt = excluded.final_prompt,
			status = excluded.status,
			children_ids = excluded.children_ids,
			attempts = excluded.attempts,
			error_kind = excluded.error_kind,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at`,
		n.ID, n.RootID, n.ParentID, n.Prompt, string(keywords), n.ImageRef, score,
		n.FinalPrompt, string(n.Status), string(children), n.Attempts, errKind, errMsg,
		formatTime(n.CreatedAt), formatTime(n.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving node %s: %w", n.ID, err)
	}
	return nil
}

// LoadNode returns the node with id.
func (s *SQLite) LoadNode(ctx context.Context, id string) (*types.TreeNode, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading node %s: %w", id, err)
	}
	return n, nil
}

// LoadTree returns all nodes of the tree rooted at rootID.
func (s *SQLite) LoadTree(ctx context.Context, rootID string) (*types.Tree, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE root_id = ?`, rootID)
	if err != nil {
		return nil, fmt.Errorf("querying tree %s: %w", rootID, err)
	}
	defer rows.Close()

	t := &types.Tree{RootID: rootID, Nodes: make(map[string]*types.TreeNode)}
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		t.Nodes[n.ID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tree %s: %w", rootID, err)
	}
	if _, ok := t.Nodes[rootID]; !ok {
		return nil, notFound(rootID)
	}
	return t, nil
}

// DeleteNode removes the node with id.
func (s *SQLite) DeleteNode(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting node %s: %w", id, err)
	}
	return nil
}

// CachedKeywords returns the cached extraction for prompt and bumps its
// usage count.
func (s *SQLite) CachedKeywords(ctx context.Context, prompt string) ([]string, bool, error) {
	key := promptKey(prompt)
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT keywords FROM keyword_cache WHERE prompt_hash = ?`, key,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading keyword cache: %w", err)
	}

	var keywords []string
	if err := json.Unmarshal([]byte(raw), &keywords); err != nil {
		return nil, false, fmt.Errorf("decoding cached keywords: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE keyword_cache SET usage_count = usage_count + 1 WHERE prompt_hash = ?`, key,
	); err != nil {
		return nil, false, fmt.Errorf("updating keyword cache: %w", err)
	}
	return keywords, true, nil
}

// CacheKeywords stores keywords for prompt, replacing any earlier entry.
func (s *SQLite) CacheKeywords(ctx context.Context, prompt string, keywords []string) error {
	raw, err := json.Marshal(nonNil(keywords))
	if err != nil {
		return fmt.Errorf("encoding keywords: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO keyword_cache (prompt_hash, prompt, keywords, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(prompt_hash) DO UPDATE SET keywords = excluded.keywords`,
		promptKey(prompt), prompt, string(raw), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("writing keyword cache: %w", err)
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanNode(sc scanner) (*types.TreeNode, error) {
	var (
		n                  types.TreeNode
		parentID, imageRef sql.NullString
		keywords, children sql.NullString
		finalPrompt        sql.NullString
		errKind, errMsg    sql.NullString
		score              sql.NullFloat64
		status             string
		created, updated   string
	)
	if err := sc.Scan(&n.ID, &n.RootID, &parentID, &n.Prompt, &keywords, &imageRef, &score,
		&finalPrompt, &status, &children, &n.Attempts, &errKind, &errMsg, &created, &updated); err != nil {
		return nil, err
	}

	n.ParentID = parentID.String
	n.ImageRef = imageRef.String
	n.FinalPrompt = finalPrompt.String
	n.Status = types.NodeStatus(status)
	if score.Valid {
		v := score.Float64
		n.QualityScore = &v
	}
	if errKind.Valid {
		n.Error = &types.NodeError{Kind: errKind.String, Message: errMsg.String}
	}
	if err := decodeList(keywords, &n.Keywords); err != nil {
		return nil, fmt.Errorf("decoding keywords of %s: %w", n.ID, err)
	}
	if err := decodeList(children, &n.ChildrenIDs); err != nil {
		return nil, fmt.Errorf("decoding children of %s: %w", n.ID, err)
	}

	var err error
	if n.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if n.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &n, nil
}

func decodeList(raw sql.NullString, dst *[]string) error {
	if !raw.Valid || raw.String == "" {
		*dst = []string{}
		return nil
	}
	return json.Unmarshal([]byte(raw.String), dst)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}
