package openrouter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"fridge-chef/internal/core/recipe"
	"fridge-chef/internal/infrastructure/config"
	"fridge-chef/internal/pkg/common"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const promptTemplate = `You are a chef. Generate a simple and delicious recipe using the ingredients provided by the user. The recipe should be easy to follow and make use of all the ingredients if possible.
Format it with a clean title, clear ingredients list, step-by-step instructions, and a serving suggestion. Keep the tone warm and friendly, like a food blog. Each step should be on a new line. Each ingredient should be on a new line.

Ingredients: %s

Respond with a single JSON object and nothing else, using exactly these keys:
{
  "recipeName": "The name of the generated recipe",
  "ingredientsList": "Ingredients with quantities, each on a new line",
  "instructions": "Step-by-step instructions, each step on a new line",
  "servingSuggestion": "A suggestion for serving the recipe"
}`

// ErrNotConfigured 生成服務未啟用
var ErrNotConfigured = errors.New("recipe generation is not configured")

// Message 對話訊息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest chat/completions 請求
type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// ResponseFormat 要求模型輸出 JSON
type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatResponse chat/completions 回應
type ChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// ErrorBody 供應商錯誤格式
type ErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Generator 透過 OpenRouter 生成食譜
type Generator struct {
	config *config.Config
	client *resty.Client
}

// NewGenerator 創建 OpenRouter 生成器
func NewGenerator(cfg *config.Config) *Generator {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.OpenRouter.BaseURL, "/")).
		SetAuthToken(cfg.OpenRouter.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("HTTP-Referer", cfg.OpenRouter.Referer).
		SetHeader("X-Title", cfg.OpenRouter.Title).
		SetTimeout(cfg.OpenRouter.Timeout)

	return &Generator{
		config: cfg,
		client: client,
	}
}

// Prompt 組合送給模型的提示詞
func Prompt(ingredients string) string {
	return fmt.Sprintf(promptTemplate, ingredients)
}

// Generate 實作 recipe.Generator
func (g *Generator) Generate(ctx context.Context, req recipe.Request) (*recipe.Recipe, error) {
	body := ChatRequest{
		Model: g.config.OpenRouter.Model,
		Messages: []Message{
			{Role: "user", Content: Prompt(req.Ingredients)},
		},
		MaxTokens:      g.config.OpenRouter.MaxTokens,
		Temperature:    g.config.OpenRouter.Temperature,
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	}

	var result ChatResponse
	var apiErr ErrorBody
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		SetError(&apiErr).
		Post("/chat/completions")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to send request to OpenRouter: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		common.LogWarn("OpenRouter 回傳錯誤",
			zap.Int("status", resp.StatusCode()),
			zap.String("model", g.config.OpenRouter.Model),
		)
		cause := fmt.Errorf("OpenRouter API returned status %d", resp.StatusCode())
		return nil, common.NewGenerationError(strings.TrimSpace(apiErr.Error.Message), cause)
	}

	if len(result.Choices) == 0 {
		return nil, common.NewGenerationError("", errors.New("no choices in OpenRouter response"))
	}

	common.LogDebug("OpenRouter 回應",
		zap.String("id", result.ID),
		zap.String("finish_reason", result.Choices[0].FinishReason),
		zap.Int("total_tokens", result.Usage.TotalTokens),
	)

	return ParseRecipe(result.Choices[0].Message.Content)
}

// ParseRecipe 從模型輸出中取出 JSON 並驗證必要欄位
func ParseRecipe(content string) (*recipe.Recipe, error) {
	raw := common.ExtractJSONObject(content)
	if raw == "" {
		return nil, common.NewGenerationError("", errors.New("model response did not contain a JSON object"))
	}

	var r recipe.Recipe
	if err := common.ParseJSON(raw, &r); err != nil {
		return nil, common.NewGenerationError("", fmt.Errorf("failed to parse recipe: %w", err))
	}
	r.RecipeName = strings.TrimSpace(r.RecipeName)
	r.ServingSuggestion = strings.TrimSpace(r.ServingSuggestion)

	if err := r.Validate(); err != nil {
		return nil, common.NewGenerationError("", err)
	}
	return &r, nil
}

// Disabled 未設定 API key 時使用的生成器，每次呼叫都失敗
type Disabled struct{}

func (Disabled) Generate(context.Context, recipe.Request) (*recipe.Recipe, error) {
	return nil, common.NewGenerationError("", ErrNotConfigured)
}

// New 依設定回傳可用的生成器
func New(cfg *config.Config) recipe.Generator {
	if !cfg.OpenRouter.Enabled {
		common.LogWarn("OpenRouter 未啟用，食譜生成將一律失敗")
		return Disabled{}
	}
	common.LogInfo("OpenRouter 生成器已初始化",
		zap.String("model", cfg.OpenRouter.Model),
		zap.String("key", common.MaskAPIKey(cfg.OpenRouter.APIKey)),
		zap.Duration("timeout", cfg.OpenRouter.Timeout),
	)
	return NewGenerator(cfg)
}
