package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"multisig-core/internal/signing"
	"multisig-core/pkg/errno"
	"multisig-core/pkg/monitor"
)

// HeaderFlowState 流程类接口在响应头里带上当前状态，轮询方不必解析 body
const HeaderFlowState = "X-Flow-State"

// Response 统一 JSON 包: code 是 errno 业务码，0 表示成功
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"msg"`
	Data    interface{} `json:"data"`
}

// Success 返回成功响应，data 为 nil 时输出空对象
func Success(c *gin.Context, data interface{}) {
	if data == nil {
		data = gin.H{}
	}
	write(c, errno.OK.Code, errno.OK.Message, data)
}

// Flow 返回签名流程快照，并把模式和状态交给监控中间件
func Flow(c *gin.Context, st signing.Status) {
	c.Header(HeaderFlowState, string(st.State))
	monitor.SetFlowState(c, string(st.Mode), string(st.State))
	write(c, errno.OK.Code, errno.OK.Message, st)
}

// Error 业务错误统一 200 + code，签名流程的失败原因按 errno 码区分 (设备、拒签、网络)
func Error(c *gin.Context, err error) {
	code, msg := errno.Decode(err)
	write(c, code, msg, gin.H{})
}

func write(c *gin.Context, code int, msg string, data interface{}) {
	monitor.SetResultCode(c, code)
	c.JSON(http.StatusOK, Response{Code: code, Message: msg, Data: data})
}
