// Package near 提供账户模型的基础类型: 公钥、签名、区块哈希、交易与动作的 borsh 编码、金额换算。
package near

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// KeyType 曲线类型，borsh 编码时写 1 字节
type KeyType uint8

const (
	KeyTypeED25519 KeyType = 0
)

const ed25519Prefix = "ed25519:"

// PublicKey ed25519 公钥
type PublicKey struct {
	Type KeyType
	Data [ed25519.PublicKeySize]byte
}

// PublicKeyFromEd25519 从原始公钥字节构造
func PublicKeyFromEd25519(raw []byte) (PublicKey, error) {
	if len(raw) != ed25519.PublicKeySize {
		return PublicKey{}, fmt.Errorf("ed25519 公钥长度错误: %d", len(raw))
	}
	var pk PublicKey
	pk.Type = KeyTypeED25519
	copy(pk.Data[:], raw)
	return pk, nil
}

// ParsePublicKey 解析 "ed25519:<base58>" 格式；省略前缀时默认 ed25519
func ParsePublicKey(s string) (PublicKey, error) {
	raw, err := base58.Decode(strings.TrimPrefix(s, ed25519Prefix))
	if err != nil {
		return PublicKey{}, fmt.Errorf("公钥 base58 解码失败: %w", err)
	}
	return PublicKeyFromEd25519(raw)
}

func (pk PublicKey) String() string {
	return ed25519Prefix + base58.Encode(pk.Data[:])
}

// Ed25519 返回标准库公钥，用于本地验签
func (pk PublicKey) Ed25519() ed25519.PublicKey {
	return ed25519.PublicKey(pk.Data[:])
}

func (pk PublicKey) IsZero() bool {
	return pk.Data == [ed25519.PublicKeySize]byte{}
}

func (pk PublicKey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

func (pk *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := ParsePublicKey(string(text))
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}

// Signature 分离签名
type Signature struct {
	Type KeyType
	Data [ed25519.SignatureSize]byte
}

// SignatureFromEd25519 设备或本地 Keystore 返回的 64 字节签名
func SignatureFromEd25519(raw []byte) (Signature, error) {
	if len(raw) != ed25519.SignatureSize {
		return Signature{}, fmt.Errorf("ed25519 签名长度错误: %d", len(raw))
	}
	var sig Signature
	sig.Type = KeyTypeED25519
	copy(sig.Data[:], raw)
	return sig, nil
}

func (s Signature) String() string {
	return ed25519Prefix + base58.Encode(s.Data[:])
}

// CryptoHash 32 字节哈希 (区块哈希、交易哈希)
type CryptoHash [32]byte

// ParseCryptoHash 解码 base58 区块哈希，长度必须为 32 字节
func ParseCryptoHash(s string) (CryptoHash, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return CryptoHash{}, fmt.Errorf("区块哈希 base58 解码失败: %w", err)
	}
	if len(raw) != 32 {
		return CryptoHash{}, fmt.Errorf("区块哈希长度错误: %d", len(raw))
	}
	var h CryptoHash
	copy(h[:], raw)
	return h, nil
}

func (h CryptoHash) String() string {
	return base58.Encode(h[:])
}
