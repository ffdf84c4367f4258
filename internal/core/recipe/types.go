package recipe

import (
	"context"
	"strings"

	"fridge-chef/internal/pkg/common"
)

// Request 生成請求，Ingredients 為逗號串接的食材
type Request struct {
	Ingredients string `json:"ingredients"`
}

// Recipe 生成結果
type Recipe struct {
	RecipeName        string `json:"recipeName"`
	IngredientsList   string `json:"ingredientsList"`
	Instructions      string `json:"instructions"`
	ServingSuggestion string `json:"servingSuggestion,omitempty"`
}

// Validate 檢查必要欄位
func (r *Recipe) Validate() error {
	var missing []string
	if strings.TrimSpace(r.RecipeName) == "" {
		missing = append(missing, "recipeName")
	}
	if strings.TrimSpace(r.IngredientsList) == "" {
		missing = append(missing, "ingredientsList")
	}
	if strings.TrimSpace(r.Instructions) == "" {
		missing = append(missing, "instructions")
	}
	if len(missing) > 0 {
		return common.NewValidationError("recipe is missing required fields: " + strings.Join(missing, ", "))
	}
	return nil
}

// IngredientLines 依行切分的食材清單，略過空行
func (r *Recipe) IngredientLines() []string {
	return common.SplitLines(r.IngredientsList)
}

// InstructionLines 依行切分的步驟，略過空行
func (r *Recipe) InstructionLines() []string {
	return common.SplitLines(r.Instructions)
}

// IngredientCount 食材行數
func (r *Recipe) IngredientCount() int {
	return len(r.IngredientLines())
}

// Generator 食譜生成服務
type Generator interface {
	Generate(ctx context.Context, req Request) (*Recipe, error)
}

// GeneratorFunc 讓一般函式實作 Generator
type GeneratorFunc func(ctx context.Context, req Request) (*Recipe, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (*Recipe, error) {
	return f(ctx, req)
}

// Status 請求狀態
type Status int

const (
	StatusIdle Status = iota
	StatusPending
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "idle"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// State 協調器狀態快照。
// Succeeded 時 Recipe 為最新結果；Pending 時保留上一個成功的結果供顯示；Failed 時 Recipe 為 nil。
type State struct {
	Status      Status  `json:"status"`
	Recipe      *Recipe `json:"recipe,omitempty"`
	Reason      string  `json:"error,omitempty"`
	PrepMinutes int     `json:"prep_minutes,omitempty"`
	Sequence    uint64  `json:"sequence"`
}

// Pending 是否有請求進行中
func (s State) Pending() bool {
	return s.Status == StatusPending
}

// View 顯示用的食譜卡片
type View struct {
	RecipeName        string   `json:"recipe_name"`
	Ingredients       []string `json:"ingredients"`
	IngredientCount   int      `json:"ingredient_count"`
	Instructions      []string `json:"instructions"`
	ServingSuggestion string   `json:"serving_suggestion,omitempty"`
	PrepMinutes       int      `json:"prep_minutes"`
}

// View 產生顯示卡片；沒有可顯示的食譜時回傳 nil
func (s State) View() *View {
	if s.Recipe == nil {
		return nil
	}
	ingredients := s.Recipe.IngredientLines()
	return &View{
		RecipeName:        s.Recipe.RecipeName,
		Ingredients:       ingredients,
		IngredientCount:   len(ingredients),
		Instructions:      s.Recipe.InstructionLines(),
		ServingSuggestion: s.Recipe.ServingSuggestion,
		PrepMinutes:       s.PrepMinutes,
	}
}
