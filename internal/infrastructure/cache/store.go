package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"fridge-chef/internal/infrastructure/config"
	"fridge-chef/internal/pkg/common"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// FingerprintStore 記錄請求指紋。Seen 在 window 內第二次看到同一指紋時回傳 true。
type FingerprintStore interface {
	Seen(ctx context.Context, key string, window time.Duration) (bool, error)
	Close() error
}

// Fingerprint 將多個片段組成固定長度的指紋
func Fingerprint(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// MemoryStore 單一實例內的指紋儲存
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	done    chan struct{}
	once    sync.Once
}

// NewMemoryStore 創建記憶體指紋儲存，interval > 0 時啟動清理協程
func NewMemoryStore(interval time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]time.Time),
		done:    make(chan struct{}),
	}
	if interval > 0 {
		go s.startCleanup(interval)
	}
	return s
}

// Seen 檢查並記錄指紋
func (s *MemoryStore) Seen(_ context.Context, key string, window time.Duration) (bool, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if expiresAt, ok := s.entries[key]; ok && now.Before(expiresAt) {
		return true, nil
	}
	s.entries[key] = now.Add(window)
	return false, nil
}

// Len 目前記錄的指紋數
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// startCleanup 定期清理過期的指紋
func (s *MemoryStore) startCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.cleanup(time.Now()); n > 0 {
				common.LogDebug("清理過期的請求指紋", zap.Int("count", n))
			}
		case <-s.done:
			return
		}
	}
}

func (s *MemoryStore) cleanup(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for key, expiresAt := range s.entries {
		if !now.Before(expiresAt) {
			delete(s.entries, key)
			count++
		}
	}
	return count
}

// Close 停止清理協程
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// RedisOption RedisStore 選項
type RedisOption func(*RedisStore)

// WithPrefix 設定鍵前綴
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// RedisStore 多個實例共用的指紋儲存
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStoreFromClient 使用現有的 client
func NewRedisStoreFromClient(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRedisStore 依設定連線 Redis 並測試連接
func NewRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 測試連接
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	common.LogInfo("Redis 指紋儲存已連線",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB),
	)
	return NewRedisStoreFromClient(client, WithPrefix(cfg.Prefix)), nil
}

// Seen 以 SET NX 記錄指紋，鍵已存在表示重複
func (s *RedisStore) Seen(ctx context.Context, key string, window time.Duration) (bool, error) {
	if window <= 0 {
		return false, nil
	}
	created, err := s.client.SetNX(ctx, s.prefix+key, time.Now().UnixMilli(), window).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record fingerprint: %w", err)
	}
	return !created, nil
}

// Close 關閉 Redis 連線
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// New 依設定選擇指紋儲存，Redis 連線失敗時退回記憶體儲存
func New(ctx context.Context, cfg *config.Config) FingerprintStore {
	if cfg.Redis.Enabled {
		store, err := NewRedisStore(ctx, cfg.Redis)
		if err == nil {
			return store
		}
		common.LogWarn("Redis 無法使用，改用記憶體指紋儲存", zap.Error(err))
	}
	interval := 10 * cfg.DedupWindow
	if interval < time.Minute {
		interval = time.Minute
	}
	return NewMemoryStore(interval)
}
