package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSTransport 通过 WebSocket 桥转发 APDU；每条二进制消息是一条完整的 APDU / 响应 (含状态字)
type WSTransport struct {
	URL    string
	Dialer *websocket.Dialer
}

func (t *WSTransport) Open(ctx context.Context) (Conn, error) {
	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, t.URL, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) Send(ctx context.Context, cla, ins, p1, p2 byte, data []byte) ([]byte, error) {
	apdu, err := EncodeAPDU(cla, ins, p1, p2, data)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Time{})
	_ = c.conn.SetReadDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() {
		now := time.Now()
		_ = c.conn.SetWriteDeadline(now)
		_ = c.conn.SetReadDeadline(now)
	})
	defer stop()

	if err := c.conn.WriteMessage(websocket.BinaryMessage, apdu); err != nil {
		return nil, fmt.Errorf("写入设备桥失败: %w", err)
	}
	for {
		msgType, resp, err := c.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("读取设备桥响应失败: %w", err)
		}
		if msgType == websocket.BinaryMessage {
			return resp, nil
		}
		// 桥可能推送文本状态消息，跳过
	}
}

func (c *wsConn) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return c.conn.Close()
}
