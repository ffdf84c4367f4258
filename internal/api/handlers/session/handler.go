package session

import (
	"errors"
	"net/http"
	"strconv"

	"fridge-chef/internal/core/notify"
	"fridge-chef/internal/core/queue"
	"fridge-chef/internal/core/recipe"
	sessionService "fridge-chef/internal/core/session"
	"fridge-chef/internal/core/tag"
	"fridge-chef/internal/pkg/common"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AddTagsRequest 新增食材。Split 預設為 true，false 時整段文字視為一個食材。
type AddTagsRequest struct {
	Text  string `json:"text" binding:"required"`
	Split *bool  `json:"split,omitempty"`
}

// AddTagsResponse 新增食材結果
type AddTagsResponse struct {
	Result  tag.AddResult           `json:"result"`
	Session sessionService.Snapshot `json:"session"`
}

// GenerationFailedResponse 生成失敗時回傳錯誤與目前狀態
type GenerationFailedResponse struct {
	common.ErrorResponse
	Session sessionService.Snapshot `json:"session"`
}

// NotificationsResponse 待顯示的通知
type NotificationsResponse struct {
	Notifications []notify.Notification `json:"notifications"`
}

// Handler 工作階段處理程序
type Handler struct {
	sessions *sessionService.Manager
	queue    *queue.Manager
	debug    bool
}

// NewHandler 創建新的工作階段處理程序
func NewHandler(sessions *sessionService.Manager, q *queue.Manager, debug bool) *Handler {
	return &Handler{
		sessions: sessions,
		queue:    q,
		debug:    debug,
	}
}

// Register 註冊路由。tagMiddleware 只套用在食材相關路由上（例如請求去重），
// 生成、重新生成、建立工作階段等每次都必須是新的請求。
func (h *Handler) Register(rg *gin.RouterGroup, tagMiddleware ...gin.HandlerFunc) {
	rg.POST("/sessions", h.Create)

	s := rg.Group("/sessions/:id")
	{
		s.GET("", h.Get)
		s.DELETE("", h.Delete)
		s.POST("/generate", h.Generate)
		s.POST("/shuffle", h.Shuffle)
		s.POST("/save", h.Save)
		s.POST("/voice", h.Voice)
		s.GET("/notifications", h.Notifications)
	}

	tags := s.Group("/tags", tagMiddleware...)
	{
		tags.POST("", h.AddTags)
		tags.DELETE("", h.ClearTags)
		tags.POST("/common", h.AddCommon)
		tags.DELETE("/:tag", h.RemoveTag)
	}
}

// Create 建立工作階段
func (h *Handler) Create(c *gin.Context) {
	s := h.sessions.Create()
	common.LogInfo("工作階段已建立",
		zap.String("session_id", s.ID),
		zap.String("request_id", requestid.Get(c)),
	)
	c.JSON(http.StatusCreated, s.Snapshot())
}

// Get 取得工作階段快照
func (h *Handler) Get(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

// Delete 結束工作階段
func (h *Handler) Delete(c *gin.Context) {
	if !h.sessions.Delete(c.Param("id")) {
		h.fail(c, sessionService.ErrNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

// AddTags 新增食材
func (h *Handler) AddTags(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}

	var req AddTagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.LogWarn("請求格式無效",
			zap.Error(err),
			zap.String("request_id", requestid.Get(c)),
		)
		h.fail(c, common.ErrInvalidRequest.WithErr(err))
		return
	}

	var res tag.AddResult
	var err error
	if req.Split == nil || *req.Split {
		res, err = s.AddText(c.Request.Context(), req.Text)
	} else {
		res, err = s.AddSingle(c.Request.Context(), req.Text)
	}
	h.respondAdd(c, s, res, err)
}

// AddCommon 加入常見食材
func (h *Handler) AddCommon(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	res, err := s.AddCommon(c.Request.Context())
	h.respondAdd(c, s, res, err)
}

// respondAdd 只有在完全沒有新增任何食材時才以錯誤回應容量問題
func (h *Handler) respondAdd(c *gin.Context, s *sessionService.Session, res tag.AddResult, err error) {
	if err != nil && (!common.IsCapacityError(err) || res.Added == 0) {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, AddTagsResponse{Result: res, Session: s.Snapshot()})
}

// RemoveTag 移除食材
func (h *Handler) RemoveTag(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	if !s.RemoveTag(c.Param("tag")) {
		h.fail(c, common.NewError(common.ErrCodeNotFound, "ingredient not found", http.StatusNotFound, nil))
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

// ClearTags 清空食材
func (h *Handler) ClearTags(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	s.ClearTags()
	c.JSON(http.StatusOK, s.Snapshot())
}

// Generate 生成食譜，?async=true 時交給佇列並立即回傳 202
func (h *Handler) Generate(c *gin.Context) {
	h.generate(c, false)
}

// Shuffle 以相同食材重新生成
func (h *Handler) Shuffle(c *gin.Context) {
	h.generate(c, true)
}

func (h *Handler) generate(c *gin.Context, shuffle bool) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if async, _ := strconv.ParseBool(c.Query("async")); async && h.queue != nil {
		begin := s.Begin
		if shuffle {
			begin = s.BeginShuffle
		}
		// 隊列已滿或已關閉時不會開始請求，原本的食譜保持不變
		if err := h.queue.Submit(ctx, begin); err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusAccepted, s.Snapshot())
		return
	}

	var st recipe.State
	var err error
	if shuffle {
		st, err = s.Shuffle(ctx)
	} else {
		st, err = s.Generate(ctx)
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	if st.Status == recipe.StatusFailed {
		resp := common.ErrGeneration.Response(false)
		resp.Message = st.Reason
		c.JSON(common.ErrGeneration.Status, GenerationFailedResponse{ErrorResponse: resp, Session: s.Snapshot()})
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

// Save 儲存食譜（目前只有通知）
func (h *Handler) Save(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := s.Save(c.Request.Context()); err != nil {
		h.fail(c, common.NewError("NO_RECIPE", "please generate a recipe first", http.StatusBadRequest, err))
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

// Voice 語音輸入（尚未提供）
func (h *Handler) Voice(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	s.Voice(c.Request.Context())
	c.JSON(http.StatusOK, s.Snapshot())
}

// Notifications 取出待顯示的通知
func (h *Handler) Notifications(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, NotificationsResponse{Notifications: s.Notifications()})
}

func (h *Handler) lookup(c *gin.Context) (*sessionService.Session, bool) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return s, true
}

// fail 將領域錯誤轉換為 API 錯誤響應
func (h *Handler) fail(c *gin.Context, err error) {
	ce := toCustomError(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(ce.Status, ce.Response(h.debug))
}

func toCustomError(err error) *common.CustomError {
	var ce *common.CustomError
	switch {
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, sessionService.ErrNotFound):
		return common.ErrSessionNotFound
	case errors.Is(err, recipe.ErrRequestPending):
		return common.ErrRequestPending
	case errors.Is(err, queue.ErrQueueFull):
		return common.ErrQueueFull.WithErr(err)
	case errors.Is(err, queue.ErrClosed):
		return common.ErrServiceUnavailable.WithErr(err)
	case common.IsCapacityError(err):
		return common.ErrTooManyTags.WithErr(err)
	case common.IsValidationError(err):
		// 目前唯一會回傳 ValidationError 的路徑是空食材
		return common.ErrNoIngredients.WithErr(err)
	case common.IsGenerationError(err):
		return common.ErrGeneration.WithErr(err)
	default:
		return common.ErrInternalError.WithErr(err)
	}
}
