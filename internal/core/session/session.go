package session

import (
	"context"
	"sync"
	"time"

	"fridge-chef/internal/core/notify"
	"fridge-chef/internal/core/recipe"
	"fridge-chef/internal/core/tag"
	"fridge-chef/internal/pkg/common"
)

// TagObserver 接收食材新增統計
type TagObserver interface {
	TagsAdded(added, rejected int)
}

// Session 一位使用者的食材與食譜狀態
type Session struct {
	ID        string
	CreatedAt time.Time

	mu          sync.Mutex
	tags        tag.Set
	coordinator *recipe.Coordinator
	inbox       *notify.Inbox
	notifier    notify.Notifier
	observer    TagObserver
}

// Snapshot 顯示層需要的完整狀態
type Snapshot struct {
	ID            string       `json:"id"`
	Tags          []string     `json:"tags"`
	TagCount      int          `json:"tag_count"`
	MaxTags       int          `json:"max_tags"`
	Full          bool         `json:"full"`
	Status        string       `json:"status"`
	Pending       bool         `json:"pending"`
	Recipe        *recipe.View `json:"recipe,omitempty"`
	Error         string       `json:"error,omitempty"`
	Notifications int          `json:"notifications"`
	CreatedAt     time.Time    `json:"created_at"`
}

// newSession 由 Manager 建立
func newSession(id string, gen recipe.Generator, inboxSize int, observer TagObserver, opts ...recipe.Option) *Session {
	inbox := notify.NewInbox(inboxSize)
	notifier := notify.Multi{inbox, notify.LogNotifier{SessionID: id}}

	opts = append([]recipe.Option{recipe.WithNotifier(notifier)}, opts...)
	return &Session{
		ID:          id,
		CreatedAt:   time.Now(),
		coordinator: recipe.NewCoordinator(gen, opts...),
		inbox:       inbox,
		notifier:    notifier,
		observer:    observer,
	}
}

// Tags 目前的食材集合
func (s *Session) Tags() tag.Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tags
}

// AddText 切分自由輸入的文字後加入食材
func (s *Session) AddText(ctx context.Context, text string) (tag.AddResult, error) {
	var tokens []string
	for token := range tag.Segment(text) {
		tokens = append(tokens, token)
	}
	return s.add(ctx, tokens...)
}

// AddSingle 將整段文字當作一個食材加入
func (s *Session) AddSingle(ctx context.Context, text string) (tag.AddResult, error) {
	return s.add(ctx, text)
}

// AddCommon 加入常見食材
func (s *Session) AddCommon(ctx context.Context) (tag.AddResult, error) {
	return s.add(ctx, tag.CommonIngredients...)
}

// add 超過上限時已加入的食材仍保留，回傳 CapacityError 並發出一則通知
func (s *Session) add(ctx context.Context, tokens ...string) (tag.AddResult, error) {
	s.mu.Lock()
	next, res := tag.Add(s.tags, tokens...)
	s.tags = next
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.TagsAdded(res.Added, res.Rejected)
	}
	if res.Rejected > 0 {
		notify.Send(ctx, s.notifier, notify.TooManyIngredients(tag.MaxTags, res.Rejected))
		return res, &common.CapacityError{Rejected: res.Rejected, Limit: tag.MaxTags}
	}
	return res, nil
}

// RemoveTag 移除食材，輸入會先正規化，不存在時回傳 false
func (s *Session) RemoveTag(text string) bool {
	t, ok := tag.Normalize(text)
	if !ok {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.tags.Contains(t) {
		return false
	}
	s.tags = tag.Remove(s.tags, t)
	return true
}

// ClearTags 清空食材
func (s *Session) ClearTags() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags = tag.Set{}
}

// State 食譜請求狀態
func (s *Session) State() recipe.State {
	return s.coordinator.State()
}

// Generate 以目前食材生成食譜並等待結果
func (s *Session) Generate(ctx context.Context) (recipe.State, error) {
	return s.coordinator.Generate(ctx, s.Tags())
}

// Begin 開始生成但不等待，回傳的 Job 交給佇列執行
func (s *Session) Begin(ctx context.Context) (*recipe.Job, error) {
	return s.coordinator.Begin(ctx, s.Tags())
}

// Shuffle 以相同食材重新生成
func (s *Session) Shuffle(ctx context.Context) (recipe.State, error) {
	return s.coordinator.Shuffle(ctx, s.Tags())
}

// BeginShuffle Shuffle 的非同步版本
func (s *Session) BeginShuffle(ctx context.Context) (*recipe.Job, error) {
	return s.coordinator.BeginShuffle(ctx, s.Tags())
}

// Save 目前只發出通知，不會保存任何資料
func (s *Session) Save(ctx context.Context) error {
	st := s.coordinator.State()
	if st.Status != recipe.StatusSucceeded || st.Recipe == nil {
		notify.Send(ctx, s.notifier, notify.NothingToSave)
		return common.NewValidationError("no recipe to save")
	}
	notify.Send(ctx, s.notifier, notify.RecipeSaved(st.Recipe.RecipeName))
	return nil
}

// Voice 語音輸入尚未提供
func (s *Session) Voice(ctx context.Context) {
	notify.Send(ctx, s.notifier, notify.VoiceSoon)
}

// Notifications 取出待顯示的通知
func (s *Session) Notifications() []notify.Notification {
	return s.inbox.Drain()
}

// Snapshot 目前狀態的快照
func (s *Session) Snapshot() Snapshot {
	tags := s.Tags()
	st := s.coordinator.State()
	return Snapshot{
		ID:            s.ID,
		Tags:          tags.Strings(),
		TagCount:      tags.Len(),
		MaxTags:       tag.MaxTags,
		Full:          tags.Full(),
		Status:        st.Status.String(),
		Pending:       st.Pending(),
		Recipe:        st.View(),
		Error:         st.Reason,
		Notifications: s.inbox.Len(),
		CreatedAt:     s.CreatedAt,
	}
}
