package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/llmcouncil/internal/database"
	"github.com/BaSui01/llmcouncil/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// conversationRecord 对应 conversations 表。消息以 JSON 文本保存。
type conversationRecord struct {
	ID           string    `gorm:"primaryKey;size:64"`
	CreatedAt    time.Time `gorm:"not null;index:idx_conversations_created_at"`
	UpdatedAt    time.Time `gorm:"not null"`
	Title        string    `gorm:"size:255;not null"`
	MessageCount int       `gorm:"not null;default:0"`
	Messages     string    `gorm:"type:text;not null"`
}

func (conversationRecord) TableName() string { return "conversations" }

// DatabaseBackend 基于 gorm 的会话驱动
type DatabaseBackend struct {
	pm     *database.PoolManager
	logger *zap.Logger
	// 事务冲突时的重试次数
	txRetries int
}

// NewDatabaseBackend 创建驱动。autoMigrate 为 true 时用 gorm AutoMigrate 建表，
// 供没有版本化迁移的 sqlite 使用。
func NewDatabaseBackend(ctx context.Context, pm *database.PoolManager, autoMigrate bool, logger *zap.Logger) (*DatabaseBackend, error) {
	if pm == nil {
		return nil, errors.New("database pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &DatabaseBackend{
		pm:        pm,
		logger:    logger.With(zap.String("component", "database_store")),
		txRetries: 3,
	}
	if autoMigrate {
		if err := pm.DB().WithContext(ctx).AutoMigrate(&conversationRecord{}); err != nil {
			return nil, fmt.Errorf("failed to migrate conversations table: %w", err)
		}
		b.logger.Info("conversations table migrated", zap.String("driver", pm.Name()))
	}
	return b, nil
}

// Name implements Backend.
func (b *DatabaseBackend) Name() string { return "database" }

// Create implements Backend.
func (b *DatabaseBackend) Create(ctx context.Context, conv *types.Conversation) error {
	rec, err := toRecord(conv)
	if err != nil {
		return err
	}
	rec.UpdatedAt = conv.CreatedAt

	return b.pm.WithTransaction(ctx, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&conversationRecord{}).Where("id = ?", conv.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check conversation: %w", err)
		}
		if count > 0 {
			return ErrAlreadyExists
		}
		if err := tx.Create(rec).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyExists
			}
			return fmt.Errorf("failed to insert conversation: %w", err)
		}
		return nil
	})
}

// Get implements Backend.
func (b *DatabaseBackend) Get(ctx context.Context, id string) (*types.Conversation, error) {
	var rec conversationRecord
	err := b.pm.DB().WithContext(ctx).Where("id = ?", id).Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return fromRecord(&rec)
}

// Save implements Backend.
func (b *DatabaseBackend) Save(ctx context.Context, conv *types.Conversation) error {
	return b.saveWith(b.pm.DB().WithContext(ctx), conv)
}

// Update 在事务内加行锁读改写
func (b *DatabaseBackend) Update(ctx context.Context, id string, fn func(conv *types.Conversation) error) error {
	return b.pm.WithTransactionRetry(ctx, b.txRetries, func(tx *gorm.DB) error {
		q := tx
		// sqlite 没有行锁
		if b.pm.Name() != "sqlite" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var rec conversationRecord
		if err := q.Where("id = ?", id).Take(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load conversation: %w", err)
		}

		conv, err := fromRecord(&rec)
		if err != nil {
			return err
		}
		if err := fn(conv); err != nil {
			return err
		}
		return b.saveWith(tx, conv)
	})
}

func (b *DatabaseBackend) saveWith(db *gorm.DB, conv *types.Conversation) error {
	msgs, err := json.Marshal(messagesOrEmpty(conv.Messages))
	if err != nil {
		return fmt.Errorf("failed to encode messages: %w", err)
	}

	res := db.Model(&conversationRecord{}).Where("id = ?", conv.ID).Updates(map[string]any{
		"title":         conv.Title,
		"messages":      string(msgs),
		"message_count": len(conv.Messages),
		"updated_at":    time.Now().UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("failed to save conversation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List 只读摘要列，不解析消息
func (b *DatabaseBackend) List(ctx context.Context) ([]types.ConversationSummary, error) {
	var recs []conversationRecord
	err := b.pm.DB().WithContext(ctx).
		Select("id", "created_at", "title", "message_count").
		Order("created_at DESC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	out := make([]types.ConversationSummary, 0, len(recs))
	for _, r := range recs {
		out = append(out, types.ConversationSummary{
			ID:           r.ID,
			CreatedAt:    r.CreatedAt.UTC(),
			Title:        r.Title,
			MessageCount: r.MessageCount,
		})
	}
	return out, nil
}

// Clear implements Backend.
func (b *DatabaseBackend) Clear(ctx context.Context) (int, error) {
	res := b.pm.DB().WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&conversationRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to clear conversations: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// Ping implements Backend.
func (b *DatabaseBackend) Ping(ctx context.Context) error { return b.pm.Ping(ctx) }

// Close implements Backend.
func (b *DatabaseBackend) Close() error { return b.pm.Close() }

func toRecord(conv *types.Conversation) (*conversationRecord, error) {
	msgs, err := json.Marshal(messagesOrEmpty(conv.Messages))
	if err != nil {
		return nil, fmt.Errorf("failed to encode messages: %w", err)
	}
	return &conversationRecord{
		ID:           conv.ID,
		CreatedAt:    conv.CreatedAt,
		Title:        conv.Title,
		MessageCount: len(conv.Messages),
		Messages:     string(msgs),
	}, nil
}

func fromRecord(rec *conversationRecord) (*types.Conversation, error) {
	conv := &types.Conversation{
		ID:        rec.ID,
		CreatedAt: rec.CreatedAt.UTC(),
		Title:     rec.Title,
		Messages:  []types.Message{},
	}
	if rec.Messages != "" {
		if err := json.Unmarshal([]byte(rec.Messages), &conv.Messages); err != nil {
			return nil, fmt.Errorf("failed to decode messages of %s: %w", rec.ID, err)
		}
	}
	if conv.Messages == nil {
		conv.Messages = []types.Message{}
	}
	return conv, nil
}

func messagesOrEmpty(m []types.Message) []types.Message {
	if m == nil {
		return []types.Message{}
	}
	return m
}
