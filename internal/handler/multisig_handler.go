package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"multisig-core/internal/handler/request"
	"multisig-core/internal/handler/response"
	"multisig-core/internal/multisig"
	"multisig-core/internal/signing"
	"multisig-core/internal/txbuilder"
	"multisig-core/pkg/errno"
	"multisig-core/pkg/near"
	"multisig-core/pkg/validator"
)

// MultisigService 多签账本
type MultisigService interface {
	ListPendingRequests(ctx context.Context, contractID string) ([]uint32, error)
	GetRequest(ctx context.Context, contractID string, requestID uint32) (*multisig.Request, error)
	SubmitRequest(ctx context.Context, contractID, receiverID string, actions ...near.Action) (*signing.Flow, error)
	Confirm(ctx context.Context, contractID string, requestID uint32) (*signing.Flow, error)
	Reject(ctx context.Context, contractID string, requestID uint32) (*signing.Flow, error)
	LockupAccount(ctx context.Context, ownerID string) (*multisig.LockupAccount, error)
}

type MultisigHandler struct {
	ledger MultisigService
}

func NewMultisigHandler(ledger MultisigService) *MultisigHandler {
	return &MultisigHandler{ledger: ledger}
}

// ListRequests GET /api/v1/multisig/:contract/requests
func (h *MultisigHandler) ListRequests(c *gin.Context) {
	var uri request.ContractURI
	if !bindURI(c, &uri) {
		return
	}
	ids, err := h.ledger.ListPendingRequests(c.Request.Context(), uri.Contract)
	if err != nil {
		response.Error(c, err)
		return
	}
	if ids == nil {
		ids = []uint32{}
	}
	response.Success(c, gin.H{"contract_id": uri.Contract, "request_ids": ids})
}

// GetRequest GET /api/v1/multisig/:contract/requests/:id
func (h *MultisigHandler) GetRequest(c *gin.Context) {
	var uri request.RequestURI
	if !bindURI(c, &uri) {
		return
	}
	req, err := h.ledger.GetRequest(c.Request.Context(), uri.Contract, uri.RequestID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, req)
}

// SubmitRequest POST /api/v1/multisig/:contract/requests
func (h *MultisigHandler) SubmitRequest(c *gin.Context) {
	var uri request.ContractURI
	if !bindURI(c, &uri) {
		return
	}
	var body request.SubmitRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, errno.ErrBind.WithMessage(validator.GetErrorMsg(err)))
		return
	}
	actions, err := txbuilder.NormalizeAll(body.Actions)
	if err != nil {
		response.Error(c, err)
		return
	}

	f, err := h.ledger.SubmitRequest(c.Request.Context(), uri.Contract, body.ReceiverID, actions...)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Flow(c, f.Status())
}

// Confirm POST /api/v1/multisig/:contract/requests/:id/confirm
func (h *MultisigHandler) Confirm(c *gin.Context) {
	var uri request.RequestURI
	if !bindURI(c, &uri) {
		return
	}
	f, err := h.ledger.Confirm(c.Request.Context(), uri.Contract, uri.RequestID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Flow(c, f.Status())
}

// Reject POST /api/v1/multisig/:contract/requests/:id/reject
func (h *MultisigHandler) Reject(c *gin.Context) {
	var uri request.RequestURI
	if !bindURI(c, &uri) {
		return
	}
	f, err := h.ledger.Reject(c.Request.Context(), uri.Contract, uri.RequestID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Flow(c, f.Status())
}

// Lockup GET /api/v1/accounts/:contract/lockup，不存在时 data 为 null
func (h *MultisigHandler) Lockup(c *gin.Context) {
	var uri request.ContractURI
	if !bindURI(c, &uri) {
		return
	}
	acc, err := h.ledger.LockupAccount(c.Request.Context(), uri.Contract)
	if err != nil {
		response.Error(c, err)
		return
	}
	if acc == nil {
		response.Success(c, gin.H{"lockup": nil})
		return
	}
	response.Success(c, gin.H{"lockup": acc})
}

func bindURI(c *gin.Context, out interface{}) bool {
	if err := c.ShouldBindUri(out); err != nil {
		response.Error(c, errno.ErrBind.WithMessage(validator.GetErrorMsg(err)))
		return false
	}
	return true
}
