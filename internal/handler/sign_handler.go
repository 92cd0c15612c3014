package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"multisig-core/internal/handler/request"
	"multisig-core/internal/handler/response"
	"multisig-core/internal/signing"
	"multisig-core/pkg/errno"
	"multisig-core/pkg/validator"
)

// FlowService 签名编排器中 HTTP 层用到的部分
type FlowService interface {
	Flow(id string) (*signing.Flow, bool)
	Resume(ctx context.Context, flowID string, cb signing.Callback) (*signing.Flow, error)
}

type SignHandler struct {
	flows FlowService
}

func NewSignHandler(flows FlowService) *SignHandler {
	return &SignHandler{flows: flows}
}

// Callback GET /api/v1/sign/callback?flow=&transactionHashes=&errorCode=&errorMessage=
func (h *SignHandler) Callback(c *gin.Context) {
	var q request.SignCallbackQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, errno.ErrBind.WithMessage(validator.GetErrorMsg(err)))
		return
	}

	f, err := h.flows.Resume(c.Request.Context(), q.Flow, signing.Callback{
		TransactionHashes: q.Hashes(),
		ErrorCode:         q.ErrorCode,
		ErrorMessage:      q.ErrorMessage,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Flow(c, f.Status())
}

// GetFlow GET /api/v1/flows/:id
func (h *SignHandler) GetFlow(c *gin.Context) {
	f, ok := h.flows.Flow(c.Param("id"))
	if !ok {
		response.Error(c, errno.ErrFlowNotFound)
		return
	}
	response.Flow(c, f.Status())
}

// CancelFlow POST /api/v1/flows/:id/cancel
func (h *SignHandler) CancelFlow(c *gin.Context) {
	f, ok := h.flows.Flow(c.Param("id"))
	if !ok {
		response.Error(c, errno.ErrFlowNotFound)
		return
	}
	if err := f.Cancel(); err != nil {
		response.Error(c, err)
		return
	}
	response.Flow(c, f.Status())
}

// RetryFlow POST /api/v1/flows/:id/retry
func (h *SignHandler) RetryFlow(c *gin.Context) {
	f, ok := h.flows.Flow(c.Param("id"))
	if !ok {
		response.Error(c, errno.ErrFlowNotFound)
		return
	}
	if err := f.Retry(); err != nil {
		response.Error(c, err)
		return
	}
	response.Flow(c, f.Status())
}
