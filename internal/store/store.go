package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/llmcouncil/types"
	"go.uber.org/zap"
)

var (
	// ErrNotFound 会话不存在
	ErrNotFound = errors.New("conversation not found")
	// ErrAlreadyExists 创建时 ID 冲突
	ErrAlreadyExists = errors.New("conversation already exists")
	// ErrInvalidID ID 不合法（只允许字母、数字、- 和 _）
	ErrInvalidID = errors.New("invalid conversation id")
	// ErrEmptyContent 用户消息为空
	ErrEmptyContent = errors.New("message content is empty")
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidID 判断 id 能否安全用作文件名和键
func ValidID(id string) bool { return idPattern.MatchString(id) }

// Backend 是会话的持久化驱动。
// Get 与 Save 在会话不存在时返回 ErrNotFound，Create 在已存在时返回 ErrAlreadyExists。
type Backend interface {
	Name() string
	Create(ctx context.Context, conv *types.Conversation) error
	Get(ctx context.Context, id string) (*types.Conversation, error)
	Save(ctx context.Context, conv *types.Conversation) error
	List(ctx context.Context) ([]types.ConversationSummary, error)
	Clear(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// Updater 由支持原子读改写的驱动实现（redis WATCH、数据库事务）。
// 未实现时 Store 在进程内锁下执行 Get + Save。
type Updater interface {
	Update(ctx context.Context, id string, fn func(conv *types.Conversation) error) error
}

// OperationObserver 接收每次存储操作的耗时，通常是 metrics.Collector
type OperationObserver interface {
	RecordStoreOperation(backend, operation string, duration time.Duration, err error)
}

// Option 配置 Store
type Option func(*Store)

// WithObserver 设置操作观察者
func WithObserver(o OperationObserver) Option {
	return func(s *Store) { s.observer = o }
}

// WithClock 替换时间源，测试用
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store 在 Backend 之上提供会话领域操作。
// 同一会话上的修改在进程内串行化。
type Store struct {
	backend  Backend
	logger   *zap.Logger
	observer OperationObserver
	now      func() time.Time
	locks    *keyedMutex
}

// New 创建 Store
func New(backend Backend, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		backend: backend,
		logger:  logger.With(zap.String("component", "store"), zap.String("backend", backend.Name())),
		now:     defaultClock,
		locks:   newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// defaultClock 截到微秒，与 postgres/mysql 的时间精度一致
func defaultClock() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }

// BackendName 返回驱动名
func (s *Store) BackendName() string { return s.backend.Name() }

// Create 创建一个空会话，标题为 "New Conversation"
func (s *Store) Create(ctx context.Context, id string) (conv *types.Conversation, err error) {
	defer s.observe("create", time.Now(), &err)

	if !ValidID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	conv = &types.Conversation{
		ID:        id,
		CreatedAt: s.now(),
		Title:     types.DefaultConversationTitle,
		Messages:  []types.Message{},
	}
	if err := s.backend.Create(ctx, conv); err != nil {
		return nil, err
	}
	s.logger.Debug("conversation created", zap.String("conversation_id", id))
	return conv, nil
}

// Get 读取会话，不存在或 ID 非法时返回 ErrNotFound
func (s *Store) Get(ctx context.Context, id string) (conv *types.Conversation, err error) {
	defer s.observe("get", time.Now(), &err)

	if !ValidID(id) {
		return nil, ErrNotFound
	}
	return s.backend.Get(ctx, id)
}

// List 返回会话摘要，按创建时间倒序
func (s *Store) List(ctx context.Context) (out []types.ConversationSummary, err error) {
	defer s.observe("list", time.Now(), &err)

	out, err = s.backend.List(ctx)
	if err != nil {
		return nil, err
	}
	SortSummaries(out)
	return out, nil
}

// AddUserMessage 追加用户消息
func (s *Store) AddUserMessage(ctx context.Context, id, content string) (err error) {
	defer s.observe("add_user_message", time.Now(), &err)

	if content == "" {
		return ErrEmptyContent
	}
	return s.update(ctx, id, func(conv *types.Conversation) error {
		conv.Messages = append(conv.Messages, types.Message{
			Role:    types.RoleUser,
			Content: content,
		})
		return nil
	})
}

// AddAssistantMessage 追加包含三个阶段结果的助手消息
func (s *Store) AddAssistantMessage(
	ctx context.Context,
	id string,
	stage1 []types.StageOneResult,
	stage2 []types.StageTwoResult,
	stage3 types.StageThreeResult,
) (err error) {
	defer s.observe("add_assistant_message", time.Now(), &err)

	return s.update(ctx, id, func(conv *types.Conversation) error {
		conv.Messages = append(conv.Messages, types.Message{
			Role:   types.RoleAssistant,
			Stage1: stage1,
			Stage2: stage2,
			Stage3: &stage3,
		})
		return nil
	})
}

// UpdateTitle 修改会话标题
func (s *Store) UpdateTitle(ctx context.Context, id, title string) (err error) {
	defer s.observe("update_title", time.Now(), &err)

	return s.update(ctx, id, func(conv *types.Conversation) error {
		conv.Title = title
		return nil
	})
}

// Clear 删除全部会话，返回删除数量
func (s *Store) Clear(ctx context.Context) (n int, err error) {
	defer s.observe("clear", time.Now(), &err)

	n, err = s.backend.Clear(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Info("conversations cleared", zap.Int("count", n))
	return n, nil
}

// Ping 检查驱动可用
func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// Close 释放驱动
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) update(ctx context.Context, id string, fn func(conv *types.Conversation) error) error {
	if !ValidID(id) {
		return ErrNotFound
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	if u, ok := s.backend.(Updater); ok {
		return u.Update(ctx, id, fn)
	}

	conv, err := s.backend.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(conv); err != nil {
		return err
	}
	return s.backend.Save(ctx, conv)
}

func (s *Store) observe(op string, start time.Time, errp *error) {
	if s.observer == nil {
		return
	}
	err := *errp
	// 未命中不算驱动故障
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidID) || errors.Is(err, ErrEmptyContent) {
		err = nil
	}
	s.observer.RecordStoreOperation(s.backend.Name(), op, time.Since(start), err)
}

// SortSummaries 按创建时间倒序，时间相同按 ID 保证稳定
func SortSummaries(list []types.ConversationSummary) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}

// =============================================================================
// 🔒 按会话加锁
// =============================================================================

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock 锁住 key，返回解锁函数。最后一个持有者释放时回收条目。
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
