package request

import (
	"strings"

	"multisig-core/internal/txbuilder"
)

// SubmitRequest 新建多签请求，动作使用人类单位 (NEAR / TGas)
type SubmitRequest struct {
	ReceiverID string                  `json:"receiver_id" binding:"omitempty,near_account"`
	Actions    []txbuilder.ActionSpec `json:"actions" binding:"required,min=1"`
}

// RequestURI 路径参数
type RequestURI struct {
	Contract  string `uri:"contract" binding:"required,near_account"`
	RequestID uint32 `uri:"id"`
}

// ContractURI 路径参数
type ContractURI struct {
	Contract string `uri:"contract" binding:"required,near_account"`
}

// SignCallbackQuery 远程钱包签名完成后的回调参数
type SignCallbackQuery struct {
	Flow              string `form:"flow" binding:"required"`
	TransactionHashes string `form:"transactionHashes"`
	ErrorCode         string `form:"errorCode"`
	ErrorMessage      string `form:"errorMessage"`
}

// Hashes 钱包以逗号分隔返回多个交易哈希
func (q SignCallbackQuery) Hashes() []string {
	var out []string
	for _, h := range strings.Split(q.TransactionHashes, ",") {
		if h = strings.TrimSpace(h); h != "" {
			out = append(out, h)
		}
	}
	return out
}
