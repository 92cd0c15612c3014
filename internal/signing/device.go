package signing

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"

	"multisig-core/pkg/bip32"
	"multisig-core/pkg/ledger"
)

// Device 签名后端。每次签名尝试打开一次，并在所有路径上关闭
type Device interface {
	Open(ctx context.Context) (DeviceSigner, error)
}

// DeviceSigner 打开后的签名会话；Sign 的 message 是 borsh 编码的交易
type DeviceSigner interface {
	GetVersion(ctx context.Context) (ledger.Version, error)
	Sign(ctx context.Context, message []byte, path bip32.Path) ([]byte, error)
	Close() error
}

// LedgerDevice 硬件设备
type LedgerDevice struct {
	Device *ledger.Device
}

func (d LedgerDevice) Open(ctx context.Context) (DeviceSigner, error) {
	s, err := d.Device.Open(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// LocalDevice 本地 Keystore 密钥，和硬件设备走同一个状态机；路径被忽略
type LocalDevice struct {
	Key ed25519.PrivateKey
}

// localVersion 本地签名器没有固件，报告一个固定版本
var localVersion = ledger.Version{Major: 1, Minor: 0, Patch: 1}

func (d LocalDevice) Open(ctx context.Context) (DeviceSigner, error) {
	return localSigner{key: d.Key}, nil
}

type localSigner struct {
	key ed25519.PrivateKey
}

func (s localSigner) GetVersion(ctx context.Context) (ledger.Version, error) {
	return localVersion, nil
}

// Sign 和设备一样对 sha256(message) 签名
func (s localSigner) Sign(ctx context.Context, message []byte, _ bip32.Path) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hash := sha256.Sum256(message)
	return ed25519.Sign(s.key, hash[:]), nil
}

func (s localSigner) Close() error {
	return nil
}
