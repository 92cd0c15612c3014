// Package ledgertest 提供记录所有 APDU 的内存设备，用于设备协议和签名流程的测试。
package ledgertest

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"multisig-core/pkg/ledger"
)

// Command 一条被记录的 APDU
type Command struct {
	CLA, INS, P1, P2 byte
	Data             []byte
}

// Handler 自定义响应，返回值需包含状态字
type Handler func(cmd Command) ([]byte, error)

// MockTransport 默认模拟一个版本 1.2.3 的设备，签名返回固定 64 字节
type MockTransport struct {
	Version   [3]byte
	PublicKey []byte
	Signature []byte
	Handler   Handler
	OpenErr   error

	// BlockSign 非 nil 时，签名分块在发送前阻塞直到通道关闭或 ctx 取消；
	// 阻塞开始时向 SignEntered 发送一次信号
	BlockSign   chan struct{}
	SignEntered chan struct{}

	mu         sync.Mutex
	commands   []Command
	openCount  int
	closeCount int
}

func New() *MockTransport {
	return &MockTransport{
		Version:   [3]byte{1, 2, 3},
		PublicKey: bytes.Repeat([]byte{0xAB}, 32),
		Signature: bytes.Repeat([]byte{0x5A}, 64),
	}
}

var ok = []byte{0x90, 0x00}

func (m *MockTransport) Open(ctx context.Context) (ledger.Conn, error) {
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	m.mu.Lock()
	m.openCount++
	m.mu.Unlock()
	return &mockConn{m: m}, nil
}

// Commands 返回所有已发送的 APDU
func (m *MockTransport) Commands() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Command(nil), m.commands...)
}

// CommandsFor 按指令过滤
func (m *MockTransport) CommandsFor(ins byte) []Command {
	var out []Command
	for _, c := range m.Commands() {
		if c.INS == ins {
			out = append(out, c)
		}
	}
	return out
}

func (m *MockTransport) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCount
}

func (m *MockTransport) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCount
}

type mockConn struct {
	m      *MockTransport
	closed bool
}

func (c *mockConn) Send(ctx context.Context, cla, ins, p1, p2 byte, data []byte) ([]byte, error) {
	cmd := Command{CLA: cla, INS: ins, P1: p1, P2: p2, Data: append([]byte(nil), data...)}
	m := c.m

	if ins == ledger.InsSign && m.BlockSign != nil {
		if m.SignEntered != nil {
			select {
			case m.SignEntered <- struct{}{}:
			default:
			}
		}
		select {
		case <-m.BlockSign:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	if c.closed {
		m.mu.Unlock()
		return nil, errors.New("connection closed")
	}
	m.commands = append(m.commands, cmd)
	m.mu.Unlock()

	if m.Handler != nil {
		return m.Handler(cmd)
	}

	switch ins {
	case ledger.InsGetVersion:
		return append(m.Version[:], ok...), nil
	case ledger.InsGetPublicKey:
		return append(append([]byte(nil), m.PublicKey...), ok...), nil
	case ledger.InsSign:
		if p1 == ledger.P1Last {
			return append(append([]byte(nil), m.Signature...), ok...), nil
		}
		return append([]byte(nil), ok...), nil
	default:
		return []byte{0x6d, 0x00}, nil
	}
}

func (c *mockConn) Close() error {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	c.closed = true
	c.m.closeCount++
	return nil
}
