package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"fridge-chef/internal/infrastructure/cache"
	"fridge-chef/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Deduplication 請求去重中間件：window 內相同路徑與內容的 POST 只處理一次
func Deduplication(store cache.FingerprintStore, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 只處理 POST 請求
		if c.Request.Method != http.MethodPost || window <= 0 || store == nil {
			c.Next()
			return
		}

		var body []byte
		if c.Request.Body != nil {
			var err error
			body, err = io.ReadAll(c.Request.Body)
			if err != nil {
				common.LogError("Failed to read request body", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
					common.NewError("BODY_TOO_LARGE", "request body too large", http.StatusRequestEntityTooLarge, err).Response(false))
				return
			}
			// 恢復請求體
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		// 生成請求指紋
		fingerprint := cache.Fingerprint(c.ClientIP(), c.Request.Method, c.Request.URL.RequestURI(), string(body))

		seen, err := store.Seen(c.Request.Context(), fingerprint, window)
		if err != nil {
			common.LogWarn("去重檢查失敗，放行請求", zap.Error(err))
			c.Next()
			return
		}
		if seen {
			common.LogInfo("Duplicate request dropped",
				zap.String("path", c.Request.URL.Path),
				zap.String("ip", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				common.NewError("DUPLICATE_REQUEST", "request too frequent", http.StatusTooManyRequests, nil).Response(false))
			return
		}

		c.Next()
	}
}
