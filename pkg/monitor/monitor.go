package monitor

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// 响应助手写入 gin 上下文的键，中间件在 c.Next() 之后读取
const (
	ctxResultCode = "multisig.result_code"
	ctxFlowMode   = "multisig.flow_mode"
	ctxFlowState  = "multisig.flow_state"
)

var (
	// APIRequestsTotal 按路由模板和业务码统计请求。所有业务错误都是 HTTP 200，
	// 所以 code 取 errno 码，只有没经过响应助手的请求才退回 http_<status>
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multisig_api_requests_total",
			Help: "API requests by route and errno result code.",
		},
		[]string{"method", "route", "code"},
	)

	// APIRequestDuration 记录 API 请求耗时。设备签名接口只排队不等待 Ledger，
	// 桶按普通 RPC 往返设置
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "multisig_api_request_duration_seconds",
			Help:    "API request latency by route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		},
		[]string{"method", "route"},
	)

	// APIFlowResponsesTotal 统计接口返回的签名流程快照，按模式和状态分组
	APIFlowResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multisig_api_flow_responses_total",
			Help: "Signing flow snapshots returned by the API, by mode and state.",
		},
		[]string{"route", "mode", "state"},
	)
)

// Init 初始化并注册监控指标，只应在进程入口调用一次
func Init() {
	prometheus.MustRegister(APIRequestsTotal, APIRequestDuration, APIFlowResponsesTotal)
	InitPipelineMetrics()
}

// SetResultCode 记录本次请求的 errno 业务码
func SetResultCode(c *gin.Context, code int) {
	c.Set(ctxResultCode, code)
}

// SetFlowState 记录本次请求返回的签名流程模式和状态
func SetFlowState(c *gin.Context, mode, state string) {
	c.Set(ctxFlowMode, mode)
	c.Set(ctxFlowState, state)
}

// resultLabel 优先用业务码，其次 HTTP 状态码
func resultLabel(c *gin.Context) string {
	if v, ok := c.Get(ctxResultCode); ok {
		if code, ok := v.(int); ok {
			return strconv.Itoa(code)
		}
	}
	return "http_" + strconv.Itoa(c.Writer.Status())
}

// PrometheusMiddleware 按路由模板 (/api/v1/flows/:id) 记录业务码、耗时和流程状态
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		route := c.FullPath()

		c.Next()

		if route == "" { // 未匹配路由不计入，避免扫描流量撑爆标签
			return
		}
		APIRequestsTotal.WithLabelValues(c.Request.Method, route, resultLabel(c)).Inc()
		APIRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())

		if state, ok := c.Get(ctxFlowState); ok {
			mode, _ := c.Get(ctxFlowMode)
			APIFlowResponsesTotal.WithLabelValues(route, toString(mode), toString(state)).Inc()
		}
	}
}

func toString(v interface{}) string {
	s, _ := v.(string)
	return s
}
