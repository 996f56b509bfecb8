package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BaSui01/llmcouncil/internal/pool"
	"github.com/BaSui01/llmcouncil/types"
	"go.uber.org/zap"
)

// FileBackend 每个会话一个 JSON 文件：<dir>/<id>.json
type FileBackend struct {
	dir    string
	logger *zap.Logger
}

// NewFileBackend 创建目录并返回驱动
func NewFileBackend(dir string, logger *zap.Logger) (*FileBackend, error) {
	if dir == "" {
		return nil, errors.New("data directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileBackend{
		dir:    dir,
		logger: logger.With(zap.String("component", "file_store")),
	}, nil
}

// Name implements Backend.
func (b *FileBackend) Name() string { return "file" }

// Dir 返回数据目录
func (b *FileBackend) Dir() string { return b.dir }

func (b *FileBackend) path(id string) string {
	return filepath.Join(b.dir, id+".json")
}

// Create 先写临时文件，再用硬链接独占地发布
func (b *FileBackend) Create(ctx context.Context, conv *types.Conversation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := b.writeTemp(conv)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	if err := os.Link(tmp, b.path(conv.ID)); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to publish conversation file: %w", err)
	}
	return nil
}

// Get implements Backend.
func (b *FileBackend) Get(ctx context.Context, id string) (*types.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read conversation: %w", err)
	}

	var conv types.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("failed to decode conversation %s: %w", id, err)
	}
	if conv.Messages == nil {
		conv.Messages = []types.Message{}
	}
	return &conv, nil
}

// Save 原子替换：临时文件 + rename
func (b *FileBackend) Save(ctx context.Context, conv *types.Conversation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(b.path(conv.ID)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to stat conversation: %w", err)
	}

	tmp, err := b.writeTemp(conv)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, b.path(conv.ID)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace conversation file: %w", err)
	}
	return nil
}

// List 读取目录下全部会话文件，无法解析的文件跳过并记录日志
func (b *FileBackend) List(ctx context.Context) ([]types.ConversationSummary, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	out := make([]types.ConversationSummary, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id, ok := conversationFileID(e)
		if !ok {
			continue
		}
		conv, err := b.Get(ctx, id)
		if err != nil {
			b.logger.Warn("skipping unreadable conversation file",
				zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		out = append(out, conv.Summary())
	}
	return out, nil
}

// Clear 删除全部会话文件
func (b *FileBackend) Clear(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read data directory: %w", err)
	}

	n := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if _, ok := conversationFileID(e); !ok {
			continue
		}
		if err := os.Remove(filepath.Join(b.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return n, fmt.Errorf("failed to delete %s: %w", e.Name(), err)
		}
		n++
	}
	return n, nil
}

// Ping 检查目录可写
func (b *FileBackend) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.CreateTemp(b.dir, ".ping-*")
	if err != nil {
		return fmt.Errorf("data directory not writable: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// Close implements Backend.
func (b *FileBackend) Close() error { return nil }

// writeTemp 以两空格缩进写出，与历史数据文件格式一致
func (b *FileBackend) writeTemp(conv *types.Conversation) (string, error) {
	buf := pool.ByteBufferPool.Get()
	defer pool.ByteBufferPool.Put(buf)

	enc := json.NewEncoder(buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(conv); err != nil {
		return "", fmt.Errorf("failed to encode conversation: %w", err)
	}

	f, err := os.CreateTemp(b.dir, ".tmp-"+conv.ID+"-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	name := f.Name()
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	return name, nil
}

func conversationFileID(e fs.DirEntry) (string, bool) {
	if e.IsDir() {
		return "", false
	}
	name := e.Name()
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
		return "", false
	}
	id := strings.TrimSuffix(name, ".json")
	return id, ValidID(id)
}
