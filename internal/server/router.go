package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"multisig-core/internal/handler"
	"multisig-core/pkg/monitor"
)

// Handlers 路由依赖
type Handlers struct {
	Sign     *handler.SignHandler
	Multisig *handler.MultisigHandler
}

// NewHTTPRouter 初始化并返回一个 Gin Engine。调用前需要完成 validator.Init 和 monitor.Init
func NewHTTPRouter(h Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.Use(monitor.PrometheusMiddleware())

	r.GET("/health", handler.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		if h.Sign != nil {
			api.GET("/sign/callback", h.Sign.Callback)

			flows := api.Group("/flows")
			flows.GET("/:id", h.Sign.GetFlow)
			flows.POST("/:id/cancel", h.Sign.CancelFlow)
			flows.POST("/:id/retry", h.Sign.RetryFlow)
		}

		if h.Multisig != nil {
			ms := api.Group("/multisig/:contract")
			ms.GET("/requests", h.Multisig.ListRequests)
			ms.POST("/requests", h.Multisig.SubmitRequest)
			ms.GET("/requests/:id", h.Multisig.GetRequest)
			ms.POST("/requests/:id/confirm", h.Multisig.Confirm)
			ms.POST("/requests/:id/reject", h.Multisig.Reject)

			api.GET("/accounts/:contract/lockup", h.Multisig.Lockup)
		}
	}

	return r
}
