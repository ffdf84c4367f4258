package recipe

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"fridge-chef/internal/core/notify"
	"fridge-chef/internal/core/tag"
	"fridge-chef/internal/pkg/common"

	"go.uber.org/zap"
)

// FallbackMessage 生成服務沒有提供錯誤訊息時顯示的文字
const FallbackMessage = "Failed to generate recipe. Please try again."

// ErrRequestPending 已有請求進行中
var ErrRequestPending = errors.New("a recipe request is already in progress")

// Outcome 一次請求的結果分類，用於指標
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeInvalid   Outcome = "invalid"
	OutcomeBusy      Outcome = "busy"
)

// Observer 接收請求結果，例如 Prometheus 指標
type Observer interface {
	ObserveGeneration(outcome Outcome, duration time.Duration)
}

// Option 協調器選項
type Option func(*Coordinator)

// WithNotifier 設定通知接收端
func WithNotifier(n notify.Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

// WithObserver 設定結果觀察者
func WithObserver(o Observer) Option {
	return func(c *Coordinator) { c.observer = o }
}

// WithTimeout 限制單次生成的時間，0 表示不限制
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

// WithPrepEstimator 設定準備時間估計（分鐘）
func WithPrepEstimator(f func() int) Option {
	return func(c *Coordinator) { c.prepMinutes = f }
}

// Coordinator 管理單一食材集合的食譜請求
type Coordinator struct {
	mu          sync.Mutex
	state       State
	generator   Generator
	notifier    notify.Notifier
	observer    Observer
	timeout     time.Duration
	prepMinutes func() int
}

// NewCoordinator 創建協調器，初始狀態為 Idle
func NewCoordinator(gen Generator, opts ...Option) *Coordinator {
	c := &Coordinator{
		generator:   gen,
		prepMinutes: func() int { return rand.IntN(30) + 10 },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State 目前狀態
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending 是否有請求進行中
func (c *Coordinator) Pending() bool {
	return c.State().Pending()
}

// Begin 驗證並將狀態轉為 Pending，回傳待執行的工作。
// 空集合回傳 ValidationError，已有請求進行中回傳 ErrRequestPending，兩者都不改變狀態。
func (c *Coordinator) Begin(ctx context.Context, set tag.Set) (*Job, error) {
	if set.Len() == 0 {
		notify.Send(ctx, c.notifier, notify.NoIngredients)
		c.observe(OutcomeInvalid, 0)
		return nil, common.NewValidationError("no ingredients to generate a recipe from")
	}

	c.mu.Lock()
	if c.state.Status == StatusPending {
		c.mu.Unlock()
		c.observe(OutcomeBusy, 0)
		return nil, ErrRequestPending
	}
	seq := c.state.Sequence + 1
	previous := c.state.Recipe
	prep := c.state.PrepMinutes
	c.state = State{
		Status:      StatusPending,
		Recipe:      previous,
		PrepMinutes: prep,
		Sequence:    seq,
	}
	c.mu.Unlock()

	return &Job{
		coordinator: c,
		request:     Request{Ingredients: set.Join(",")},
		sequence:    seq,
		requestID:   common.RequestIDFrom(ctx),
	}, nil
}

// Generate 發出請求並等待結果。生成失敗不回傳錯誤，而是反映在 Failed 狀態中。
func (c *Coordinator) Generate(ctx context.Context, set tag.Set) (State, error) {
	job, err := c.Begin(ctx, set)
	if err != nil {
		return c.State(), err
	}
	return job.Run(ctx), nil
}

// Shuffle 以同一組食材重新生成，不重用上一次的結果
func (c *Coordinator) Shuffle(ctx context.Context, set tag.Set) (State, error) {
	job, err := c.BeginShuffle(ctx, set)
	if err != nil {
		return c.State(), err
	}
	return job.Run(ctx), nil
}

// BeginShuffle Shuffle 的非同步版本，請求成功開始後才發出通知
func (c *Coordinator) BeginShuffle(ctx context.Context, set tag.Set) (*Job, error) {
	job, err := c.Begin(ctx, set)
	if err != nil {
		return nil, err
	}
	notify.Send(ctx, c.notifier, notify.Shuffling)
	return job, nil
}

// resolve 將 Pending 轉為最終狀態，過期的 sequence 會被忽略
func (c *Coordinator) resolve(ctx context.Context, seq uint64, r *Recipe, err error, elapsed time.Duration) State {
	c.mu.Lock()
	if c.state.Status != StatusPending || c.state.Sequence != seq {
		st := c.state
		c.mu.Unlock()
		return st
	}
	if err == nil {
		c.state = State{
			Status:      StatusSucceeded,
			Recipe:      r,
			PrepMinutes: c.prepMinutes(),
			Sequence:    seq,
		}
	} else {
		c.state = State{
			Status:   StatusFailed,
			Reason:   failureMessage(err),
			Sequence: seq,
		}
	}
	st := c.state
	c.mu.Unlock()

	if err == nil {
		notify.Send(ctx, c.notifier, notify.RecipeReady)
		c.observe(OutcomeSucceeded, elapsed)
	} else {
		notify.Send(ctx, c.notifier, notify.GenerationFailed(st.Reason))
		c.observe(OutcomeFailed, elapsed)
	}
	return st
}

func (c *Coordinator) observe(outcome Outcome, d time.Duration) {
	if c.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			common.LogWarn("指標記錄時發生 panic", zap.Any("panic", r))
		}
	}()
	c.observer.ObserveGeneration(outcome, d)
}

// Job 一次已開始（Pending）的請求
type Job struct {
	coordinator *Coordinator
	request     Request
	sequence    uint64
	requestID   string
	once        sync.Once
	result      State
}

// Request 送往生成服務的內容
func (j *Job) Request() Request {
	return j.request
}

// Run 呼叫生成服務並解析結果，只會執行一次
func (j *Job) Run(ctx context.Context) State {
	j.once.Do(func() {
		c := j.coordinator
		if c.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}

		start := time.Now()
		r, err := j.call(ctx)
		if err == nil && r == nil {
			err = common.NewGenerationError("", errors.New("empty response from recipe service"))
		}
		if err == nil {
			if verr := r.Validate(); verr != nil {
				err = common.NewGenerationError("", verr)
			}
		}
		elapsed := time.Since(start)

		common.LogGeneration(j.request.Ingredients, elapsed, err, j.requestID)
		j.result = c.resolve(ctx, j.sequence, r, err, elapsed)
	})
	return j.result
}

func (j *Job) call(ctx context.Context) (r *Recipe, err error) {
	defer func() {
		if p := recover(); p != nil {
			r = nil
			err = fmt.Errorf("recipe service panicked: %v", p)
		}
	}()
	if j.coordinator.generator == nil {
		return nil, errors.New("recipe generation is not configured")
	}
	return j.coordinator.generator.Generate(ctx, j.request)
}

// failureMessage 取得要顯示給使用者的錯誤訊息
func failureMessage(err error) string {
	var genErr *common.GenerationError
	if errors.As(err, &genErr) && strings.TrimSpace(genErr.Message) != "" {
		return genErr.Message
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Recipe generation timed out. Please try again."
	case errors.Is(err, context.Canceled):
		return "Recipe generation was cancelled."
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return FallbackMessage
}
