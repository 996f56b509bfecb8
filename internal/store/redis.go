package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/llmcouncil/internal/cache"
	"github.com/BaSui01/llmcouncil/types"
	"go.uber.org/zap"
)

// RedisBackend 每个会话一个 JSON 值 <prefix>conversation:<id>，
// 另有有序集合 <prefix>conversations 按创建时间索引。
type RedisBackend struct {
	cache  *cache.Manager
	prefix string
	logger *zap.Logger
}

// NewRedisBackend 创建驱动
func NewRedisBackend(m *cache.Manager, prefix string, logger *zap.Logger) (*RedisBackend, error) {
	if m == nil {
		return nil, errors.New("cache manager is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBackend{
		cache:  m,
		prefix: prefix,
		logger: logger.With(zap.String("component", "redis_store")),
	}, nil
}

// Name implements Backend.
func (b *RedisBackend) Name() string { return "redis" }

func (b *RedisBackend) key(id string) string { return b.prefix + "conversation:" + id }

func (b *RedisBackend) index() string { return b.prefix + "conversations" }

// Create implements Backend.
func (b *RedisBackend) Create(ctx context.Context, conv *types.Conversation) error {
	n, err := b.cache.Exists(ctx, b.key(conv.ID))
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrAlreadyExists
	}

	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}
	score := float64(conv.CreatedAt.UnixMicro())
	return b.cache.PutIndexed(ctx, b.key(conv.ID), string(data), b.index(), conv.ID, score)
}

// Get implements Backend.
func (b *RedisBackend) Get(ctx context.Context, id string) (*types.Conversation, error) {
	raw, err := b.cache.Get(ctx, b.key(id))
	if err != nil {
		if cache.IsCacheMiss(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeConversation(id, raw)
}

// Save implements Backend.
func (b *RedisBackend) Save(ctx context.Context, conv *types.Conversation) error {
	return b.Update(ctx, conv.ID, func(cur *types.Conversation) error {
		*cur = *conv
		return nil
	})
}

// Update 使用 WATCH 乐观事务，跨进程也保持原子
func (b *RedisBackend) Update(ctx context.Context, id string, fn func(conv *types.Conversation) error) error {
	err := b.cache.Update(ctx, b.key(id), func(raw string) (string, error) {
		conv, err := decodeConversation(id, raw)
		if err != nil {
			return "", err
		}
		if err := fn(conv); err != nil {
			return "", err
		}
		data, err := json.Marshal(conv)
		if err != nil {
			return "", fmt.Errorf("failed to encode conversation: %w", err)
		}
		return string(data), nil
	})
	if cache.IsCacheMiss(err) {
		return ErrNotFound
	}
	return err
}

// List 按索引取全部会话。索引里残留的成员会被跳过。
func (b *RedisBackend) List(ctx context.Context) ([]types.ConversationSummary, error) {
	ids, err := b.cache.IndexMembers(ctx, b.index())
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []types.ConversationSummary{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = b.key(id)
	}
	vals, found, err := b.cache.MGet(ctx, keys...)
	if err != nil {
		return nil, err
	}

	out := make([]types.ConversationSummary, 0, len(ids))
	for i, id := range ids {
		if !found[i] {
			b.logger.Debug("stale index entry", zap.String("conversation_id", id))
			continue
		}
		conv, err := decodeConversation(id, vals[i])
		if err != nil {
			b.logger.Warn("skipping undecodable conversation", zap.String("conversation_id", id), zap.Error(err))
			continue
		}
		out = append(out, conv.Summary())
	}
	return out, nil
}

// Clear implements Backend.
func (b *RedisBackend) Clear(ctx context.Context) (int, error) {
	return b.cache.DeleteIndexed(ctx, b.index(), b.key)
}

// Ping implements Backend.
func (b *RedisBackend) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return b.cache.Ping(ctx)
}

// Close implements Backend.
func (b *RedisBackend) Close() error { return b.cache.Close() }

func decodeConversation(id, raw string) (*types.Conversation, error) {
	var conv types.Conversation
	if err := json.Unmarshal([]byte(raw), &conv); err != nil {
		return nil, fmt.Errorf("failed to decode conversation %s: %w", id, err)
	}
	if conv.Messages == nil {
		conv.Messages = []types.Message{}
	}
	return &conv, nil
}
