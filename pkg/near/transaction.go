package near

import (
	"crypto/sha256"
	"errors"
)

// Transaction 未签名交易
type Transaction struct {
	SignerID   string
	PublicKey  PublicKey
	Nonce      uint64
	ReceiverID string
	BlockHash  CryptoHash
	Actions    []Action
}

// Serialize borsh 编码，即设备签名的消息体和远程钱包重定向里的载荷
func (tx *Transaction) Serialize() ([]byte, error) {
	if len(tx.Actions) == 0 {
		return nil, errors.New("交易至少需要一个动作")
	}
	w := &borshWriter{}
	tx.encode(w)
	return w.result()
}

func (tx *Transaction) encode(w *borshWriter) {
	w.string(tx.SignerID)
	w.publicKey(tx.PublicKey)
	w.u64(tx.Nonce)
	w.string(tx.ReceiverID)
	w.fixed(tx.BlockHash[:])
	w.u32(uint32(len(tx.Actions)))
	for _, a := range tx.Actions {
		encodeAction(w, a)
	}
}

// Hash 交易哈希 = sha256(borsh(tx))，本地密钥对它签名
func (tx *Transaction) Hash() (CryptoHash, error) {
	raw, err := tx.Serialize()
	if err != nil {
		return CryptoHash{}, err
	}
	return sha256.Sum256(raw), nil
}

// SignedTransaction 构造后不可变；只暴露读取方法
type SignedTransaction struct {
	tx        Transaction
	signature Signature
}

// NewSignedTransaction 复制交易，之后修改原交易不影响已签名交易
func NewSignedTransaction(tx Transaction, sig Signature) *SignedTransaction {
	tx.Actions = append([]Action(nil), tx.Actions...)
	return &SignedTransaction{tx: tx, signature: sig}
}

func (s *SignedTransaction) Transaction() Transaction {
	tx := s.tx
	tx.Actions = append([]Action(nil), s.tx.Actions...)
	return tx
}

func (s *SignedTransaction) Signature() Signature {
	return s.signature
}

func (s *SignedTransaction) Hash() (CryptoHash, error) {
	return s.tx.Hash()
}

// Serialize borsh(tx) || borsh(signature)，broadcast_tx_commit 的参数是它的 base64
func (s *SignedTransaction) Serialize() ([]byte, error) {
	if len(s.tx.Actions) == 0 {
		return nil, errors.New("交易至少需要一个动作")
	}
	w := &borshWriter{}
	s.tx.encode(w)
	w.u8(uint8(s.signature.Type))
	w.fixed(s.signature.Data[:])
	return w.result()
}
