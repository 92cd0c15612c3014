package bip32

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"fmt"
)

const curveSeed = "ed25519 seed"

// ExtendedKey ed25519 扩展私钥 (SLIP-10)
type ExtendedKey struct {
	Key       [32]byte
	ChainCode [32]byte
}

// NewMasterKey 从 BIP-39 种子生成主密钥
func NewMasterKey(seed []byte) (*ExtendedKey, error) {
	if len(seed) < 16 || len(seed) > 64 {
		return nil, ErrInvalidSeed
	}
	return split(hmacSHA512([]byte(curveSeed), seed)), nil
}

// Derive ed25519 只允许硬化派生
func (k *ExtendedKey) Derive(index uint32) (*ExtendedKey, error) {
	if !IsHardened(index) {
		return nil, fmt.Errorf("%w: ed25519 不支持非硬化索引 %d", ErrInvalidPath, index)
	}
	data := make([]byte, 0, 1+32+4)
	data = append(data, 0x00)
	data = append(data, k.Key[:]...)
	data = binary.BigEndian.AppendUint32(data, index)
	return split(hmacSHA512(k.ChainCode[:], data)), nil
}

// DerivePath 依次派生路径中的每一段
func (k *ExtendedKey) DerivePath(path Path) (*ExtendedKey, error) {
	current := k
	for _, index := range path {
		next, err := current.Derive(index)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return current, nil
}

// PrivateKey 返回标准库 ed25519 私钥
func (k *ExtendedKey) PrivateKey() ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(k.Key[:])
}

// DeriveEd25519 种子 + 路径 → 私钥，本地钱包导入助记词时使用
func DeriveEd25519(seed []byte, path string) (ed25519.PrivateKey, error) {
	p, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	master, err := NewMasterKey(seed)
	if err != nil {
		return nil, err
	}
	child, err := master.DerivePath(p)
	if err != nil {
		return nil, err
	}
	return child.PrivateKey(), nil
}

func hmacSHA512(key, data []byte) []byte {
	mac := hmac.New(sha512.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func split(i []byte) *ExtendedKey {
	k := &ExtendedKey{}
	copy(k.Key[:], i[:32])
	copy(k.ChainCode[:], i[32:])
	return k
}
