package ledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// TCPTransport 连接设备模拟器的 APDU 端口。
// 帧格式: 请求 = 4 字节大端长度 + APDU；响应 = 4 字节大端数据长度 + 数据 + 2 字节状态字
type TCPTransport struct {
	Addr string
}

func (t *TCPTransport) Open(ctx context.Context) (Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.Addr)
	if err != nil {
		return nil, err
	}
	return &tcpConn{conn: conn}, nil
}

type tcpConn struct {
	mu   sync.Mutex
	conn net.Conn
}

func (c *tcpConn) Send(ctx context.Context, cla, ins, p1, p2 byte, data []byte) ([]byte, error) {
	apdu, err := EncodeAPDU(cla, ins, p1, p2, data)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.conn.SetDeadline(time.Time{})
	// ctx 取消时立即让阻塞的读写返回
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer stop()

	frame := make([]byte, 4+len(apdu))
	binary.BigEndian.PutUint32(frame, uint32(len(apdu)))
	copy(frame[4:], apdu)
	if _, err := c.conn.Write(frame); err != nil {
		return nil, fmt.Errorf("写入设备失败: %w", err)
	}

	var header [4]byte
	if _, err := io.ReadFull(c.conn, header[:]); err != nil {
		return nil, fmt.Errorf("读取设备响应长度失败: %w", err)
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > 1<<16 {
		return nil, fmt.Errorf("设备响应长度异常: %d", size)
	}
	resp := make([]byte, int(size)+statusWordLength)
	if _, err := io.ReadFull(c.conn, resp); err != nil {
		return nil, fmt.Errorf("读取设备响应失败: %w", err)
	}
	return resp, nil
}

func (c *tcpConn) Close() error {
	return c.conn.Close()
}
