package suggestion

import (
	"net/http"

	"fridge-chef/internal/core/tag"

	"github.com/gin-gonic/gin"
)

// Response 食材建議
type Response struct {
	QuickAdd          []string `json:"quick_add"`
	PantryStaples     []string `json:"pantry_staples"`
	CommonIngredients []string `json:"common_ingredients"`
	MaxTags           int      `json:"max_tags"`
}

// List 回傳快速加入、常備與常見食材
func List(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		QuickAdd:          tag.QuickAdd,
		PantryStaples:     tag.PantryStaples,
		CommonIngredients: tag.CommonIngredients,
		MaxTags:           tag.MaxTags,
	})
}
