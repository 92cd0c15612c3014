package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"multisig-core/pkg/bip32"
	"multisig-core/pkg/errno"
	"multisig-core/pkg/monitor"
)

// 设备协议常量
const (
	CLA = 0x80

	InsSign         = 0x02
	InsGetPublicKey = 0x04
	InsGetVersion   = 0x06

	P1More = 0x00
	P1Last = 0x80

	// ChunkSize 128 字节传输上限减去 5 字节 APDU 头
	ChunkSize = 123
)

// Version 设备应用版本
type Version struct {
	Major, Minor, Patch byte
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Signer 在一个会话上执行设备协议
type Signer struct {
	session     *Session
	networkByte byte
}

func NewSigner(session *Session, networkByte byte) *Signer {
	return &Signer{session: session, networkByte: networkByte}
}

// GetVersion 同时会清掉设备上一次中断操作留下的缓冲区
func (s *Signer) GetVersion(ctx context.Context) (Version, error) {
	resp, err := s.session.Exchange(ctx, InsGetVersion, 0, 0, nil)
	if err != nil {
		return Version{}, err
	}
	if len(resp) < 3 || resp[0] == 0 || resp[1] == 0 || resp[2] == 0 {
		return Version{}, errno.ErrUnsupportedDevice.WithMessage(fmt.Sprintf("无法识别的设备版本 %x", resp))
	}
	return Version{Major: resp[0], Minor: resp[1], Patch: resp[2]}, nil
}

// GetPublicKey 返回设备上路径对应的原始公钥字节
func (s *Signer) GetPublicKey(ctx context.Context, path bip32.Path) ([]byte, error) {
	return s.session.Exchange(ctx, InsGetPublicKey, 0, s.networkByte, path.Bytes())
}

// Sign path||message 按 123 字节分块发送，最后一块的响应即签名
func (s *Signer) Sign(ctx context.Context, message []byte, path bip32.Path) ([]byte, error) {
	if _, err := s.GetVersion(ctx); err != nil {
		return nil, err
	}

	payload := append(path.Bytes(), message...)
	chunks := Chunks(payload)

	var signature []byte
	for i, chunk := range chunks {
		p1 := byte(P1More)
		if i == len(chunks)-1 {
			p1 = P1Last
		}
		resp, err := s.session.Exchange(ctx, InsSign, p1, s.networkByte, chunk)
		if err != nil {
			s.session.channel.log.Warn("签名分块失败", zap.Int("chunk", i), zap.Int("total", len(chunks)), zap.Error(err))
			return nil, err
		}
		monitor.AddDeviceChunks(1)
		if p1 == P1Last {
			signature = resp
		}
	}

	if signature == nil {
		return nil, errno.ErrProtocol.WithMessage("分块循环未到达最后一块")
	}
	return signature, nil
}

// Close 关闭底层会话
func (s *Signer) Close() error {
	return s.session.Close()
}

// Chunks 把载荷切成 ChunkSize 大小的块，块数 = ceil(len/ChunkSize)
func Chunks(payload []byte) [][]byte {
	var out [][]byte
	for offset := 0; offset < len(payload); offset += ChunkSize {
		end := offset + ChunkSize
		if end > len(payload) {
			end = len(payload)
		}
		out = append(out, payload[offset:end])
	}
	return out
}

// Device 把通道和网络字节组合起来，每次操作打开一个新会话
type Device struct {
	channel     *Channel
	networkByte byte
}

func NewDevice(channel *Channel, networkByte byte) *Device {
	return &Device{channel: channel, networkByte: networkByte}
}

// Open 打开会话并返回 Signer，调用方负责 Close
func (d *Device) Open(ctx context.Context) (*Signer, error) {
	session, err := d.channel.Open(ctx)
	if err != nil {
		return nil, err
	}
	return NewSigner(session, d.networkByte), nil
}

// PublicKey 一次性操作: 打开、读取公钥、关闭
func (d *Device) PublicKey(ctx context.Context, path bip32.Path) ([]byte, error) {
	signer, err := d.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer signer.Close()
	return signer.GetPublicKey(ctx, path)
}

// Version 一次性操作: 打开、读取版本、关闭
func (d *Device) Version(ctx context.Context) (Version, error) {
	signer, err := d.Open(ctx)
	if err != nil {
		return Version{}, err
	}
	defer signer.Close()
	return signer.GetVersion(ctx)
}
