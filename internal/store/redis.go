// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pdiddy/image-tree/pkg/types"
)

// DefaultRedisPrefix namespaces every key this package writes.
const DefaultRedisPrefix = "image-tree"

// Redis stores nodes as JSON values with one id set per tree:
//
//	<prefix>:node:<id>        node JSON
//	<prefix>:tree:<root id>   set of node ids
//	<prefix>:keywords:<hash>  cached keyword JSON
type Redis struct {
	client     *redis.Client
	prefix     string
	keywordTTL time.Duration
}

// NewRedis connects to redisURL and verifies the connection.
func NewRedis(ctx context.Context, redisURL string, keywordTTL time.Duration) (*Redis, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("%w: redis_url is required for the redis store", types.ErrConfiguration)
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing redis_url: %v", types.ErrConfiguration, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return newRedis(client, DefaultRedisPrefix, keywordTTL), nil
}

func newRedis(client *redis.Client, prefix string, keywordTTL time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, keywordTTL: keywordTTL}
}

func (r *Redis) nodeKey(id string) string     { return r.prefix + ":node:" + id }
func (r *Redis) treeKey(rootID string) string { return r.prefix + ":tree:" + rootID }
func (r *Redis) keywordKey(p string) string   { return r.prefix + ":keywords:" + promptKey(p) }

// SaveNode writes the node and its tree membership in one transaction.
func (r *Redis) SaveNode(ctx context.Context, n *types.TreeNode) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encoding node %s: %w", n.ID, err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.nodeKey(n.ID), data, 0)
		pipe.SAdd(ctx, r.treeKey(n.RootID), n.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving node %s: %w", n.ID, err)
	}
	return nil
}

func (r *Redis) LoadNode(ctx context.Context, id string) (*types.TreeNode, error) {
	data, err := r.client.Get(ctx, r.nodeKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading node %s: %w", id, err)
	}
	var n types.TreeNode
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("decoding node %s: %w", id, err)
	}
	return &n, nil
}

func (r *Redis) LoadTree(ctx context.Context, rootID string) (*types.Tree, error) {
	ids, err := r.client.SMembers(ctx, r.treeKey(rootID)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing tree %s: %w", rootID, err)
	}
	if len(ids) == 0 {
		return nil, notFound(rootID)
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.nodeKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("loading tree %s: %w", rootID, err)
	}

	t := &types.Tree{RootID: rootID, Nodes: make(map[string]*types.TreeNode, len(ids))}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var n types.TreeNode
		if err := json.Unmarshal([]byte(s), &n); err != nil {
			return nil, fmt.Errorf("decoding node %s: %w", ids[i], err)
		}
		t.Nodes[n.ID] = &n
	}
	if _, ok := t.Nodes[rootID]; !ok {
		return nil, notFound(rootID)
	}
	return t, nil
}

// DeleteNode removes the node and its tree membership.
func (r *Redis) DeleteNode(ctx context.Context, id string) error {
	n, err := r.LoadNode(ctx, id)
	if errors.Is(err, types.ErrNodeNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.nodeKey(id))
		pipe.SRem(ctx, r.treeKey(n.RootID), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting node %s: %w", id, err)
	}
	return nil
}

func (r *Redis) CachedKeywords(ctx context.Context, prompt string) ([]string, bool, error) {
	data, err := r.client.Get(ctx, r.keywordKey(prompt)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading keyword cache: %w", err)
	}
	var keywords []string
	if err := json.Unmarshal(data, &keywords); err != nil {
		return nil, false, fmt.Errorf("decoding cached keywords: %w", err)
	}
	return keywords, true, nil
}

// CacheKeywords stores keywords for prompt, expiring after the configured
// TTL when one is set.
func (r *Redis) CacheKeywords(ctx context.Context, prompt string, keywords []string) error {
	data, err := json.Marshal(nonNil(keywords))
	if err != nil {
		return fmt.Errorf("encoding keywords: %w", err)
	}
	if err := r.client.Set(ctx, r.keywordKey(prompt), data, r.keywordTTL).Err(); err != nil {
		return fmt.Errorf("writing keyword cache: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
