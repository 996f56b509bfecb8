// Package cache provides internal cache management.
// This package is internal and should not be imported by external projects.
package cache

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// =============================================================================
// 💾 Redis 管理器
// =============================================================================

// Observer 接收命中/未命中事件，通常是 metrics.Collector
type Observer interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

// Manager 封装 go-redis 客户端，供会话存储使用
type Manager struct {
	redis    *redis.Client
	config   Config
	logger   *zap.Logger
	observer Observer

	hits   atomic.Uint64
	misses atomic.Uint64

	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
}

// Config 缓存配置
type Config struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`

	// 默认过期时间，0 表示永不过期
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`

	MaxRetries   int `yaml:"max_retries" json:"max_retries"`
	PoolSize     int `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int `yaml:"min_idle_conns" json:"min_idle_conns"`

	// 健康检查间隔，0 关闭
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`

	// 指标中的 cache_type 标签
	Name string `yaml:"name" json:"name"`
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
		Name:                "redis",
	}
}

// 乐观事务的最大重试次数
const maxTxRetries = 8

var (
	// ErrCacheMiss 缓存未命中错误
	ErrCacheMiss = errors.New("cache miss")
	// ErrClosed 管理器已关闭
	ErrClosed = errors.New("cache manager is closed")
	// ErrTxConflict 乐观事务多次冲突
	ErrTxConflict = errors.New("cache transaction conflict")
)

// IsCacheMiss 判断是否为缓存未命中错误
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// NewManager 创建管理器并测试连接
func NewManager(config Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Name == "" {
		config.Name = "redis"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	m := &Manager{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "cache")),
		stop:   make(chan struct{}),
	}

	if config.HealthCheckInterval > 0 {
		go m.healthCheckLoop()
	}

	m.logger.Info("cache manager initialized",
		zap.String("addr", config.Addr),
		zap.Int("pool_size", config.PoolSize),
	)

	return m, nil
}

// SetObserver 设置命中率观察者
func (m *Manager) SetObserver(o Observer) {
	m.mu.Lock()
	m.observer = o
	m.mu.Unlock()
}

// =============================================================================
// 🎯 键值操作
// =============================================================================

// Get 获取值，不存在时返回 ErrCacheMiss
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return "", ErrClosed
	}

	val, err := m.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		m.recordMiss()
		return "", ErrCacheMiss
	}
	if err != nil {
		m.logger.Error("cache get failed", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("cache get failed: %w", err)
	}

	m.recordHit()
	return val, nil
}

// Set 设置值，ttl 为 0 时使用 DefaultTTL
func (m *Manager) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}

	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}

	if err := m.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		m.logger.Error("cache set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache set failed: %w", err)
	}

	return nil
}

// GetJSON 获取 JSON 值
func (m *Manager) GetJSON(ctx context.Context, key string, dest any) error {
	val, err := m.Get(ctx, key)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}

	return nil
}

// SetJSON 设置 JSON 值
func (m *Manager) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	return m.Set(ctx, key, string(data), ttl)
}

// Delete 删除键
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}

	if len(keys) == 0 {
		return nil
	}

	if err := m.redis.Del(ctx, keys...).Err(); err != nil {
		m.logger.Error("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
		return fmt.Errorf("cache delete failed: %w", err)
	}

	return nil
}

// Exists 返回存在的键数量
func (m *Manager) Exists(ctx context.Context, keys ...string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrClosed
	}

	count, err := m.redis.Exists(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("cache exists check failed: %w", err)
	}

	return count, nil
}

// Expire 设置键的过期时间
func (m *Manager) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}

	if err := m.redis.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("cache expire failed: %w", err)
	}

	return nil
}

// =============================================================================
// 📇 有序索引
// =============================================================================

// PutIndexed 原子地写入 key 并把 member 以 score 加入 index
func (m *Manager) PutIndexed(ctx context.Context, key, value, index, member string, score float64) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}

	_, err := m.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key, value, m.config.DefaultTTL)
		p.ZAdd(ctx, index, redis.Z{Score: score, Member: member})
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache indexed put failed: %w", err)
	}
	return nil
}

// IndexMembers 按 score 降序返回 index 中的全部成员
func (m *Manager) IndexMembers(ctx context.Context, index string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	members, err := m.redis.ZRevRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("cache index range failed: %w", err)
	}
	return members, nil
}

// MGet 批量获取，缺失的键对应空字符串与 false
func (m *Manager) MGet(ctx context.Context, keys ...string) ([]string, []bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, nil, ErrClosed
	}
	if len(keys) == 0 {
		return nil, nil, nil
	}

	vals, err := m.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("cache mget failed: %w", err)
	}

	out := make([]string, len(vals))
	found := make([]bool, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			m.recordMiss()
			continue
		}
		m.recordHit()
		out[i] = s
		found[i] = true
	}
	return out, found, nil
}

// DeleteIndexed 删除 index 中全部成员对应的键以及 index 本身。
// keyOf 把成员映射为键。返回删除的成员数。
func (m *Manager) DeleteIndexed(ctx context.Context, index string, keyOf func(member string) string) (int, error) {
	members, err := m.IndexMembers(ctx, index)
	if err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}

	keys := make([]string, 0, len(members)+1)
	for _, member := range members {
		keys = append(keys, keyOf(member))
	}
	keys = append(keys, index)

	if err := m.redis.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("cache indexed delete failed: %w", err)
	}
	return len(members), nil
}

// Update 以 WATCH/MULTI 乐观事务读改写 key。
// fn 收到当前值，返回新值。键不存在时返回 ErrCacheMiss。
func (m *Manager) Update(ctx context.Context, key string, fn func(current string) (string, error)) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}

	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		if err != nil {
			return err
		}
		next, err := fn(cur)
		if err != nil {
			return err
		}
		ttl := m.config.DefaultTTL
		if ttl == 0 {
			ttl = redis.KeepTTL
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, next, ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := m.redis.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			m.logger.Debug("cache update conflict, retrying", zap.String("key", key), zap.Int("attempt", i+1))
			continue
		}
		if err != nil && !errors.Is(err, ErrCacheMiss) {
			return fmt.Errorf("cache update failed: %w", err)
		}
		return err
	}
	return ErrTxConflict
}

// Ping 检查 Redis 连接
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}

	return m.redis.Ping(ctx).Err()
}

// Close 关闭管理器
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	m.closed = true
	close(m.stop)
	m.logger.Info("closing cache manager")

	return m.redis.Close()
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

func (m *Manager) healthCheckLoop() {
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.Ping(ctx); err != nil {
			if errors.Is(err, ErrClosed) {
				cancel()
				return
			}
			m.logger.Error("cache health check failed", zap.Error(err))
		} else {
			m.logger.Debug("cache health check passed")
		}
		cancel()
	}
}

// =============================================================================
// 📊 统计信息
// =============================================================================

// Stats 缓存统计信息。Hits/Misses 是本进程的计数，其余来自 INFO
type Stats struct {
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	Keys        int64  `json:"keys"`
	UsedMemory  int64  `json:"used_memory"`
	MaxMemory   int64  `json:"max_memory"`
	Connections int    `json:"connections"`
}

// GetStats 获取缓存统计信息
func (m *Manager) GetStats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	stats := &Stats{
		Hits:   m.hits.Load(),
		Misses: m.misses.Load(),
	}

	keys, err := m.redis.DBSize(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get redis dbsize: %w", err)
	}
	stats.Keys = keys

	info, err := m.redis.Info(ctx, "memory", "clients").Result()
	if err != nil {
		// 部分托管 Redis 禁用 INFO
		m.logger.Debug("redis info unavailable", zap.Error(err))
		return stats, nil
	}
	applyInfo(stats, parseInfo(info))

	return stats, nil
}

// parseInfo 解析 INFO 输出中的 key:value 行
func parseInfo(info string) map[string]string {
	out := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(info))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}

func applyInfo(s *Stats, kv map[string]string) {
	if v, err := strconv.ParseInt(kv["used_memory"], 10, 64); err == nil {
		s.UsedMemory = v
	}
	if v, err := strconv.ParseInt(kv["maxmemory"], 10, 64); err == nil {
		s.MaxMemory = v
	}
	if v, err := strconv.Atoi(kv["connected_clients"]); err == nil {
		s.Connections = v
	}
}

func (m *Manager) recordHit() {
	m.hits.Add(1)
	if m.observer != nil {
		m.observer.RecordCacheHit(m.config.Name)
	}
}

func (m *Manager) recordMiss() {
	m.misses.Add(1)
	if m.observer != nil {
		m.observer.RecordCacheMiss(m.config.Name)
	}
}
