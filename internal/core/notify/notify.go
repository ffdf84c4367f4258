package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fridge-chef/internal/pkg/common"

	"go.uber.org/zap"
)

// Severity 通知等級
type Severity string

const (
	SeverityInfo        Severity = "info"
	SeverityDestructive Severity = "destructive"
)

// Notification 一則通知
type Notification struct {
	Severity    Severity  `json:"severity"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Info 建立一般通知
func Info(title, description string) Notification {
	return Notification{Severity: SeverityInfo, Title: title, Description: description}
}

// Destructive 建立錯誤通知
func Destructive(title, description string) Notification {
	return Notification{Severity: SeverityDestructive, Title: title, Description: description}
}

// Notifier 通知接收端
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc 讓一般函式實作 Notifier
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Send 送出通知，吞掉錯誤與 panic
func Send(ctx context.Context, notifier Notifier, n Notification) {
	if notifier == nil {
		return
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	defer func() {
		if r := recover(); r != nil {
			common.LogWarn("通知發送時發生 panic",
				zap.Any("panic", r),
				zap.String("title", n.Title),
			)
		}
	}()
	if err := notifier.Notify(ctx, n); err != nil {
		common.LogWarn("通知發送失敗",
			zap.Error(err),
			zap.String("title", n.Title),
		)
	}
}

// Multi 依序轉送給多個 Notifier，單一失敗不影響其他
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	for _, notifier := range m {
		Send(ctx, notifier, n)
	}
	return nil
}

// LogNotifier 將通知寫入日誌
type LogNotifier struct {
	SessionID string
}

func (l LogNotifier) Notify(ctx context.Context, n Notification) error {
	fields := []zap.Field{
		zap.String("session_id", l.SessionID),
		zap.String("severity", string(n.Severity)),
		zap.String("title", n.Title),
		zap.String("description", n.Description),
	}
	if n.Severity == SeverityDestructive {
		common.LogWarn("通知", fields...)
		return nil
	}
	common.LogDebug("通知", fields...)
	return nil
}

// Inbox 有上限的通知佇列，由顯示層取出。滿了之後丟棄最舊的通知。
type Inbox struct {
	mu    sync.Mutex
	items []Notification
	size  int
}

// NewInbox 建立通知佇列
func NewInbox(size int) *Inbox {
	if size <= 0 {
		size = 20
	}
	return &Inbox{size: size}
}

func (b *Inbox) Notify(ctx context.Context, n Notification) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) >= b.size {
		b.items = b.items[1:]
	}
	b.items = append(b.items, n)
	return nil
}

// Drain 取出並清空所有通知
func (b *Inbox) Drain() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.items
	b.items = nil
	if out == nil {
		return []Notification{}
	}
	return out
}

// Peek 取得目前通知的副本
func (b *Inbox) Peek() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Notification, len(b.items))
	copy(out, b.items)
	return out
}

// Len 目前通知數
func (b *Inbox) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// 常用通知
var (
	NoIngredients = Destructive("No Ingredients 😟", "Please add some ingredients first!")
	RecipeReady   = Info("Recipe generated! 🍳", "Your delicious recipe is ready below.")
	Shuffling     = Info("Shuffling Recipe... ♻️", "Getting a fresh idea for you!")
	VoiceSoon     = Info("Voice Input 🎤 (Coming Soon!)", "This feature is under development. Please type your ingredients for now.")
	NothingToSave = Destructive("No Recipe to Save", "Please generate a recipe first.")
)

// TooManyIngredients 超過上限時的通知
func TooManyIngredients(limit, rejected int) Notification {
	desc := fmt.Sprintf("Please keep it to a maximum of %d ingredients.", limit)
	if rejected > 1 {
		desc = fmt.Sprintf("%d ingredients were not added. %s", rejected, desc)
	}
	return Destructive("Too many ingredients!", desc)
}

// GenerationFailed 生成失敗時的通知
func GenerationFailed(message string) Notification {
	return Destructive("Oops! AI Error 🤖", message)
}

// RecipeSaved 儲存食譜（尚未實作持久化）的通知
func RecipeSaved(name string) Notification {
	return Info("Recipe Saved! 💾 (Coming Soon)",
		fmt.Sprintf("%q has been notionally saved. This feature is under development.", name))
}
