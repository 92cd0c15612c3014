package ledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"multisig-core/pkg/errno"
	"multisig-core/pkg/logger"
)

// 状态字
const (
	swOK              = 0x9000
	swUserRejected    = 0x6985
	swSecurityStatus  = 0x6982
	swInsNotSupported = 0x6d00
	swClaNotSupported = 0x6e00
	statusWordLength  = 2
)

// Channel 管理唯一的设备会话；已有会话时再次打开立即失败，不排队
type Channel struct {
	transport Transport
	log       *zap.Logger

	mu   sync.Mutex
	busy bool
}

func NewChannel(t Transport) *Channel {
	return &Channel{transport: t, log: logger.Named("ledger")}
}

// Open 打开会话；调用方必须在所有路径上调用 Session.Close
func (c *Channel) Open(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return nil, errno.ErrDeviceBusy
	}
	c.busy = true
	c.mu.Unlock()

	conn, err := c.transport.Open(ctx)
	if err != nil {
		c.release()
		c.log.Warn("打开设备失败", zap.Error(err))
		return nil, errno.ErrDeviceNotFound.Wrap(err)
	}
	c.log.Debug("设备会话已打开")
	return &Session{channel: c, conn: conn, connected: true}, nil
}

// Busy 是否存在未关闭的会话
func (c *Channel) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

func (c *Channel) release() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}

// Session 一次设备会话
type Session struct {
	channel *Channel
	conn    Conn

	mu        sync.Mutex
	connected bool
	closeErr  error
}

// Exchange 发送一条 APDU，校验并去掉状态字后返回数据部分
func (s *Session) Exchange(ctx context.Context, ins, p1, p2 byte, data []byte) ([]byte, error) {
	s.mu.Lock()
	connected := s.connected
	s.mu.Unlock()
	if !connected {
		return nil, errno.ErrDeviceSigningFailed.WithMessage("设备会话已关闭")
	}

	resp, err := s.conn.Send(ctx, CLA, ins, p1, p2, data)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errno.ErrDeviceSigningFailed.Wrap(err)
	}
	return checkStatus(resp)
}

// Close 幂等；底层连接只关闭一次，之后通道可以再次打开
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return s.closeErr
	}
	s.connected = false
	s.closeErr = s.conn.Close()
	s.channel.release()
	s.channel.log.Debug("设备会话已关闭")
	return s.closeErr
}

// Connected 会话是否仍然打开
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func checkStatus(resp []byte) ([]byte, error) {
	if len(resp) < statusWordLength {
		return nil, errno.ErrProtocol.WithMessage(fmt.Sprintf("设备响应缺少状态字 (%d 字节)", len(resp)))
	}
	n := len(resp) - statusWordLength
	sw := binary.BigEndian.Uint16(resp[n:])
	switch sw {
	case swOK:
		return resp[:n], nil
	case swUserRejected, swSecurityStatus:
		return nil, errno.ErrDeviceRejected
	case swClaNotSupported, swInsNotSupported:
		return nil, errno.ErrUnsupportedDevice.WithMessage(fmt.Sprintf("设备应用不支持该指令 (0x%04x)", sw))
	default:
		return nil, errno.ErrDeviceRejected.WithMessage(fmt.Sprintf("设备返回状态 0x%04x", sw))
	}
}
