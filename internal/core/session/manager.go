package session

import (
	"errors"
	"sync"
	"time"

	"fridge-chef/internal/core/recipe"
	"fridge-chef/internal/infrastructure/config"
	"fridge-chef/internal/pkg/common"

	"go.uber.org/zap"
)

// ErrNotFound 工作階段不存在或已過期
var ErrNotFound = errors.New("session not found")

// Observer 接收工作階段與生成相關的指標
type Observer interface {
	TagObserver
	recipe.Observer
	SetSessions(n int)
}

// Option Manager 選項
type Option func(*Manager)

// WithObserver 設定指標觀察者
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// WithIDGenerator 設定工作階段 ID 產生方式
func WithIDGenerator(f func() string) Option {
	return func(m *Manager) { m.newID = f }
}

// Manager 工作階段管理器
type Manager struct {
	config    *config.Config
	generator recipe.Generator
	observer  Observer
	newID     func() string

	mu    sync.RWMutex
	store map[string]*entry
	stats managerStats
	done  chan struct{}
	once  sync.Once
}

// entry 工作階段條目
type entry struct {
	session     *Session
	expiresAt   time.Time
	lastAccess  time.Time
	accessCount int
}

// managerStats 管理器統計
type managerStats struct {
	created   int64
	expired   int64
	evictions int64
	deleted   int64
}

// Stats 管理器統計
type Stats struct {
	Active      int   `json:"active"`
	MaxSessions int   `json:"max_sessions"`
	Created     int64 `json:"created"`
	Expired     int64 `json:"expired"`
	Evictions   int64 `json:"evictions"`
	Deleted     int64 `json:"deleted"`
}

// NewManager 創建工作階段管理器並啟動清理協程
func NewManager(cfg *config.Config, gen recipe.Generator, opts ...Option) *Manager {
	m := &Manager{
		config:    cfg,
		generator: gen,
		newID:     common.GenerateUUID,
		store:     make(map[string]*entry),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	if cfg.Session.CleanupInterval > 0 {
		go m.startCleanup()
	}

	common.LogInfo("工作階段管理員已初始化",
		zap.Int("最大數量", cfg.Session.MaxSessions),
		zap.Duration("存活時間", cfg.Session.TTL),
		zap.Duration("清理間隔", cfg.Session.CleanupInterval),
	)

	return m
}

// Create 建立新的工作階段，已滿時先清理過期項目再淘汰最久未使用的
func (m *Manager) Create() *Session {
	opts := []recipe.Option{recipe.WithTimeout(m.config.Generation.Timeout)}
	var tagObserver TagObserver
	if m.observer != nil {
		opts = append(opts, recipe.WithObserver(m.observer))
		tagObserver = m.observer
	}
	s := newSession(m.newID(), m.generator, m.config.Session.InboxSize, tagObserver, opts...)

	m.mu.Lock()
	if m.config.Session.MaxSessions > 0 && len(m.store) >= m.config.Session.MaxSessions {
		m.cleanup(time.Now())
		for len(m.store) >= m.config.Session.MaxSessions {
			m.evictLRU()
		}
	}
	now := time.Now()
	m.store[s.ID] = &entry{
		session:    s,
		expiresAt:  now.Add(m.config.Session.TTL),
		lastAccess: now,
	}
	m.stats.created++
	count := len(m.store)
	m.mu.Unlock()

	m.report(count)
	common.LogDebug("工作階段已建立", zap.String("session_id", s.ID))
	return s
}

// Get 取得工作階段並延長存活時間
func (m *Manager) Get(id string) (*Session, error) {
	now := time.Now()

	m.mu.Lock()
	e, ok := m.store[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	if now.After(e.expiresAt) {
		delete(m.store, id)
		m.stats.expired++
		count := len(m.store)
		m.mu.Unlock()
		m.report(count)
		return nil, ErrNotFound
	}
	e.lastAccess = now
	e.accessCount++
	e.expiresAt = now.Add(m.config.Session.TTL)
	m.mu.Unlock()

	return e.session, nil
}

// Delete 結束工作階段
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	_, ok := m.store[id]
	if ok {
		delete(m.store, id)
		m.stats.deleted++
	}
	count := len(m.store)
	m.mu.Unlock()

	if ok {
		m.report(count)
	}
	return ok
}

// Count 目前的工作階段數
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store)
}

// startCleanup 啟動清理過期工作階段的協程
func (m *Manager) startCleanup() {
	ticker := time.NewTicker(m.config.Session.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			m.cleanup(time.Now())
			count := len(m.store)
			m.mu.Unlock()
			m.report(count)
		case <-m.done:
			return
		}
	}
}

// cleanup 清理過期的工作階段，呼叫前需持有寫鎖
func (m *Manager) cleanup(now time.Time) int {
	count := 0
	for id, e := range m.store {
		if now.After(e.expiresAt) {
			delete(m.store, id)
			count++
			m.stats.expired++
		}
	}

	if count > 0 {
		common.LogInfo("Cleaned up expired sessions",
			zap.Int("count", count),
			zap.Int64("total_expired", m.stats.expired),
			zap.Int("remaining_size", len(m.store)),
		)
	}
	return count
}

// evictLRU 淘汰最久未使用的工作階段，呼叫前需持有寫鎖
func (m *Manager) evictLRU() {
	var oldestID string
	var oldestAccess time.Time

	for id, e := range m.store {
		if oldestID == "" || e.lastAccess.Before(oldestAccess) {
			oldestID = id
			oldestAccess = e.lastAccess
		}
	}

	if oldestID != "" {
		delete(m.store, oldestID)
		m.stats.evictions++
		common.LogInfo("工作階段已淘汰(LRU)",
			zap.String("session_id", oldestID),
		)
	}
}

func (m *Manager) report(count int) {
	if m.observer != nil {
		m.observer.SetSessions(count)
	}
}

// GetStats 獲取統計信息
func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Stats{
		Active:      len(m.store),
		MaxSessions: m.config.Session.MaxSessions,
		Created:     m.stats.created,
		Expired:     m.stats.expired,
		Evictions:   m.stats.evictions,
		Deleted:     m.stats.deleted,
	}
}

// Close 停止清理協程並清空所有工作階段
func (m *Manager) Close() error {
	m.once.Do(func() { close(m.done) })

	m.mu.Lock()
	m.store = make(map[string]*entry)
	stats := m.stats
	m.mu.Unlock()

	common.LogInfo("工作階段管理員已關閉",
		zap.Int64("建立次數", stats.created),
		zap.Int64("過期次數", stats.expired),
		zap.Int64("淘汰次數", stats.evictions),
	)
	return nil
}
