package event

import "time"

// TopicSigningOutcome 签名流程终态事件
const TopicSigningOutcome = "multisig:events:signing_outcome"

// SigningOutcomeEvent 签名流程进入终态 (成功或失败)
// Topic: multisig:events:signing_outcome，Key: signer_id
type SigningOutcomeEvent struct {
	FlowID     string    `json:"flow_id"`
	State      string    `json:"state"` // success, failed
	SignerID   string    `json:"signer_id"`
	ReceiverID string    `json:"receiver_id"`
	TxHash     string    `json:"tx_hash,omitempty"`
	Method     string    `json:"method,omitempty"`
	RequestID  *uint32   `json:"request_id,omitempty"`
	ErrorCode  int       `json:"error_code,omitempty"`
	Error      string    `json:"error,omitempty"`
	Attempts   int       `json:"attempts"`
	At         time.Time `json:"at"`
}

// Succeeded 交易已上链且执行成功
func (e SigningOutcomeEvent) Succeeded() bool {
	return e.State == "success"
}
