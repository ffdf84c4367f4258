package health

import (
	"net/http"
	"runtime"
	"time"

	"fridge-chef/internal/core/queue"
	"fridge-chef/internal/core/session"
	"fridge-chef/internal/infrastructure/config"
	"fridge-chef/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HealthResponse 健康檢查響應
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Generator string                 `json:"generator"`
	Runtime   map[string]interface{} `json:"runtime"`
	Queue     *queue.Status          `json:"queue,omitempty"`
	Sessions  *session.Stats         `json:"sessions,omitempty"`
}

// Handler 健康檢查處理程序
type Handler struct {
	config   *config.Config
	sessions *session.Manager
	queue    *queue.Manager
}

// NewHandler 創建健康檢查處理程序
func NewHandler(cfg *config.Config, sessions *session.Manager, q *queue.Manager) *Handler {
	return &Handler{config: cfg, sessions: sessions, queue: q}
}

// HealthCheck 健康檢查處理器
func (h *Handler) HealthCheck(c *gin.Context) {
	// 獲取運行時信息
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	generator := "disabled"
	if h.config.OpenRouter.Enabled {
		generator = h.config.OpenRouter.Model
	}

	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   h.config.App.Version,
		Generator: generator,
		Runtime: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]interface{}{
				"alloc":       m.Alloc,
				"total_alloc": m.TotalAlloc,
				"sys":         m.Sys,
				"num_gc":      m.NumGC,
			},
		},
	}
	if h.queue != nil {
		st := h.queue.GetQueueStatus()
		response.Queue = &st
	}
	if h.sessions != nil {
		st := h.sessions.GetStats()
		response.Sessions = &st
	}

	common.LogDebug("Health check request",
		zap.String("client_ip", c.ClientIP()),
		zap.String("path", c.Request.URL.Path),
	)

	c.JSON(http.StatusOK, response)
}

// ReadinessCheck 就緒檢查處理器：生成隊列關閉後不再就緒
func (h *Handler) ReadinessCheck(c *gin.Context) {
	if h.queue != nil && !h.queue.Accepting() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "shutting_down",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}

// LivenessCheck 存活檢查處理器
func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}
