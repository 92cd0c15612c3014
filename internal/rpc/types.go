package rpc

import (
	"bytes"
	"encoding/json"
)

// AccessKeyView access_key 查询结果。
// 旧版节点对不存在的密钥不返回 RPC 错误，而是在结果里带 error 字段
type AccessKeyView struct {
	Nonce       uint64          `json:"nonce"`
	BlockHash   string          `json:"block_hash"`
	BlockHeight uint64          `json:"block_height"`
	Permission  json.RawMessage `json:"permission"`
	Error       string          `json:"error,omitempty"`
}

// AccountView view_account 查询结果
type AccountView struct {
	Amount       string `json:"amount"`
	Locked       string `json:"locked"`
	CodeHash     string `json:"code_hash"`
	StorageUsage uint64 `json:"storage_usage"`
	BlockHash    string `json:"block_hash"`
	BlockHeight  uint64 `json:"block_height"`
	Error        string `json:"error,omitempty"`
}

// CallResult call_function 结果: result 是 u8 数组而不是 base64
type CallResult struct {
	Result      []int    `json:"result"`
	Logs        []string `json:"logs"`
	BlockHash   string   `json:"block_hash"`
	BlockHeight uint64   `json:"block_height"`
	Error       string   `json:"error,omitempty"`
}

// Bytes 把 u8 数组还原成字节
func (r *CallResult) Bytes() []byte {
	out := make([]byte, len(r.Result))
	for i, b := range r.Result {
		out[i] = byte(b)
	}
	return out
}

// ExecutionStatus 执行状态，可能是字符串 ("Unknown") 也可能是单键对象 ({"Failure": {...}})
type ExecutionStatus struct {
	Kind  string
	Value json.RawMessage
}

const (
	StatusFailure          = "Failure"
	StatusSuccessValue     = "SuccessValue"
	StatusSuccessReceiptID = "SuccessReceiptId"
	StatusUnknown          = "Unknown"
)

func (s *ExecutionStatus) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		s.Value = nil
		return json.Unmarshal(data, &s.Kind)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	for k, v := range obj {
		s.Kind = k
		s.Value = v
		// Failure 优先，确保多键对象里不会漏掉失败
		if k == StatusFailure {
			break
		}
	}
	return nil
}

func (s ExecutionStatus) MarshalJSON() ([]byte, error) {
	if s.Value == nil {
		return json.Marshal(s.Kind)
	}
	return json.Marshal(map[string]json.RawMessage{s.Kind: s.Value})
}

func (s ExecutionStatus) IsFailure() bool {
	return s.Kind == StatusFailure
}

type ExecutionOutcome struct {
	Logs       []string        `json:"logs"`
	ReceiptIDs []string        `json:"receipt_ids"`
	GasBurnt   uint64          `json:"gas_burnt"`
	Status     ExecutionStatus `json:"status"`
}

type ExecutionOutcomeWithID struct {
	ID      string           `json:"id"`
	Outcome ExecutionOutcome `json:"outcome"`
}

// FinalExecutionOutcome broadcast_tx_commit / tx 的返回值
type FinalExecutionOutcome struct {
	Status      ExecutionStatus `json:"status"`
	Transaction struct {
		Hash     string `json:"hash"`
		SignerID string `json:"signer_id"`
	} `json:"transaction"`
	TransactionOutcome ExecutionOutcomeWithID   `json:"transaction_outcome"`
	ReceiptsOutcome    []ExecutionOutcomeWithID `json:"receipts_outcome"`
}

// Failure 顶层状态或任一回执带 Failure 时返回失败详情
func (o *FinalExecutionOutcome) Failure() (json.RawMessage, bool) {
	if o.Status.IsFailure() {
		return o.Status.Value, true
	}
	if o.TransactionOutcome.Outcome.Status.IsFailure() {
		return o.TransactionOutcome.Outcome.Status.Value, true
	}
	for _, r := range o.ReceiptsOutcome {
		if r.Outcome.Status.IsFailure() {
			return r.Outcome.Status.Value, true
		}
	}
	return nil, false
}
