package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"multisig-core/pkg/logger"
)

// requestLogger 用 zap 代替 gin 默认的文本日志
func requestLogger() gin.HandlerFunc {
	log := logger.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
