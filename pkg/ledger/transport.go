// Package ledger 实现与外部签名设备的 APDU 通信: 独占会话、分块签名协议以及 TCP / WebSocket 传输。
package ledger

import (
	"context"
	"fmt"
)

// Transport 可插拔的传输介质 (USB 桥、模拟器 TCP、WebSocket 桥)
type Transport interface {
	Open(ctx context.Context) (Conn, error)
}

// Conn 已打开的设备连接。Send 返回的响应包含末尾 2 字节状态字
type Conn interface {
	Send(ctx context.Context, cla, ins, p1, p2 byte, data []byte) ([]byte, error)
	Close() error
}

// EncodeAPDU 短 APDU: CLA INS P1 P2 Lc data
func EncodeAPDU(cla, ins, p1, p2 byte, data []byte) ([]byte, error) {
	if len(data) > 255 {
		return nil, fmt.Errorf("APDU 数据过长: %d", len(data))
	}
	out := make([]byte, 0, 5+len(data))
	out = append(out, cla, ins, p1, p2, byte(len(data)))
	return append(out, data...), nil
}

// NewTransport 按配置选择传输实现
func NewTransport(kind, addr string) (Transport, error) {
	switch kind {
	case "tcp", "":
		return &TCPTransport{Addr: addr}, nil
	case "ws":
		return &WSTransport{URL: addr}, nil
	default:
		return nil, fmt.Errorf("未知的设备传输类型: %s", kind)
	}
}
