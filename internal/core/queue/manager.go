package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"fridge-chef/internal/core/recipe"
	"fridge-chef/internal/infrastructure/config"
	"fridge-chef/internal/pkg/common"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull 隊列已滿
	ErrQueueFull = errors.New("generation queue is full")
	// ErrClosed 隊列已關閉
	ErrClosed = errors.New("generation queue is closed")
)

// Status 隊列狀態
type Status struct {
	QueueLength    int   `json:"queue_length"`
	ProcessedCount int64 `json:"processed_count"`
	RejectedCount  int64 `json:"rejected_count"`
	MaxQueueSize   int   `json:"max_queue_size"`
	Workers        int   `json:"workers"`
}

type task struct {
	ctx context.Context
	job *recipe.Job
}

// Manager 隊列管理器
type Manager struct {
	workers   int
	size      int
	queue     chan task
	wg        sync.WaitGroup
	processed atomic.Int64
	rejected  atomic.Int64
	mu        sync.RWMutex
	closed    bool
}

// NewManager 創建隊列管理器並啟動 worker
func NewManager(cfg *config.Config) *Manager {
	m := &Manager{
		workers: max(cfg.Generation.Workers, 1),
		size:    max(cfg.Generation.QueueSize, 1),
	}
	m.queue = make(chan task, m.size)

	for i := 0; i < m.workers; i++ {
		m.wg.Add(1)
		go m.worker(i)
	}

	common.LogInfo("生成隊列已啟動",
		zap.Int("workers", m.workers),
		zap.Int("max_queue_size", m.size),
	)
	return m
}

// BeginFunc 開始一次生成請求（狀態轉為 Pending）並回傳待執行的工作
type BeginFunc func(ctx context.Context) (*recipe.Job, error)

// Submit 確認隊列仍有空位後才呼叫 begin 並加入隊列。
// 隊列已滿或已關閉時不會呼叫 begin，工作階段狀態保持不變。
func (m *Manager) Submit(ctx context.Context, begin BeginFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if len(m.queue) >= m.size {
		m.rejected.Add(1)
		common.LogWarn("生成隊列已滿",
			zap.Int("queue_length", len(m.queue)),
		)
		return ErrQueueFull
	}

	job, err := begin(ctx)
	if err != nil {
		return err
	}

	// 背景執行不能沿用 HTTP 請求的 context；持有鎖時只有 worker 會取出，寫入不會阻塞
	m.queue <- task{ctx: context.WithoutCancel(ctx), job: job}
	common.LogDebug("Request enqueued",
		zap.Int("queue_length", len(m.queue)),
		zap.Int("max_queue_size", m.size),
	)
	return nil
}

func (m *Manager) worker(id int) {
	defer m.wg.Done()
	for t := range m.queue {
		start := time.Now()
		st := t.job.Run(t.ctx)
		m.processed.Add(1)
		common.LogDebug("生成工作完成",
			zap.Int("worker", id),
			zap.String("status", st.Status.String()),
			zap.Duration("耗時", time.Since(start)),
		)
	}
}

// GetQueueStatus 獲取隊列狀態
func (m *Manager) GetQueueStatus() Status {
	return Status{
		QueueLength:    len(m.queue),
		ProcessedCount: m.processed.Load(),
		RejectedCount:  m.rejected.Load(),
		MaxQueueSize:   m.size,
		Workers:        m.workers,
	}
}

// Accepting 是否仍接收新工作
func (m *Manager) Accepting() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed
}

// Close 停止接收新工作，等待進行中的工作完成或 ctx 到期
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.queue)
	m.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		common.LogInfo("生成隊列已關閉", zap.Int64("processed", m.processed.Load()))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
