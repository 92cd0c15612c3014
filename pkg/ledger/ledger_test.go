package ledger_test

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multisig-core/pkg/bip32"
	"multisig-core/pkg/errno"
	"multisig-core/pkg/ledger"
	"multisig-core/pkg/ledger/ledgertest"
)

const networkByte = 'W'

func defaultPath(t *testing.T) bip32.Path {
	t.Helper()
	p, err := bip32.ParsePath("44'/397'/0'/0'/1'")
	require.NoError(t, err)
	return p
}

func openSigner(t *testing.T, mock *ledgertest.MockTransport) *ledger.Signer {
	t.Helper()
	dev := ledger.NewDevice(ledger.NewChannel(mock), networkByte)
	signer, err := dev.Open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = signer.Close() })
	return signer
}

func TestSign_ChunkCount(t *testing.T) {
	tests := []struct {
		name       string
		messageLen int
		wantChunks int
	}{
		{"单块", 50, 1},
		{"恰好一块", 103, 1},
		{"跨块边界", 104, 2},
		{"220 字节载荷", 200, 2},
		{"三块", 300, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := ledgertest.New()
			signer := openSigner(t, mock)

			sig, err := signer.Sign(context.Background(), make([]byte, tt.messageLen), defaultPath(t))
			require.NoError(t, err)
			assert.Equal(t, mock.Signature, sig)

			payloadLen := 20 + tt.messageLen
			assert.Equal(t, (payloadLen+ledger.ChunkSize-1)/ledger.ChunkSize, tt.wantChunks)

			chunks := mock.CommandsFor(ledger.InsSign)
			require.Len(t, chunks, tt.wantChunks)
			total := 0
			for i, c := range chunks {
				assert.Equal(t, byte(ledger.CLA), c.CLA)
				assert.Equal(t, byte(networkByte), c.P2)
				if i == len(chunks)-1 {
					assert.Equal(t, byte(ledger.P1Last), c.P1, "最后一块必须设置 P1=0x80")
				} else {
					assert.Equal(t, byte(ledger.P1More), c.P1)
					assert.Len(t, c.Data, ledger.ChunkSize)
				}
				total += len(c.Data)
			}
			assert.Equal(t, payloadLen, total)
		})
	}
}

func TestSign_GetVersionFirstAndPathPrefix(t *testing.T) {
	mock := ledgertest.New()
	signer := openSigner(t, mock)

	message := []byte("payload")
	_, err := signer.Sign(context.Background(), message, defaultPath(t))
	require.NoError(t, err)

	cmds := mock.Commands()
	require.Len(t, cmds, 2)
	assert.Equal(t, byte(ledger.InsGetVersion), cmds[0].INS, "签名前必须先调用 getVersion")
	assert.Equal(t, append(defaultPath(t).Bytes(), message...), cmds[1].Data)
}

func TestGetVersion(t *testing.T) {
	tests := []struct {
		name    string
		resp    []byte
		want    ledger.Version
		wantErr error
	}{
		{"正常版本", []byte{1, 2, 3, 0x90, 0x00}, ledger.Version{Major: 1, Minor: 2, Patch: 3}, nil},
		{"零分量", []byte{1, 0, 3, 0x90, 0x00}, ledger.Version{}, errno.ErrUnsupportedDevice},
		{"缺少分量", []byte{1, 2, 0x90, 0x00}, ledger.Version{}, errno.ErrUnsupportedDevice},
		{"缺少状态字", []byte{0x90}, ledger.Version{}, errno.ErrProtocol},
		{"用户拒绝", []byte{0x69, 0x85}, ledger.Version{}, errno.ErrDeviceRejected},
		{"应用未打开", []byte{0x6e, 0x00}, ledger.Version{}, errno.ErrUnsupportedDevice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := ledgertest.New()
			mock.Handler = func(ledgertest.Command) ([]byte, error) { return tt.resp, nil }
			signer := openSigner(t, mock)

			v, err := signer.GetVersion(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
			assert.Equal(t, "1.2.3", v.String())
		})
	}
}

func TestGetPublicKey(t *testing.T) {
	mock := ledgertest.New()
	signer := openSigner(t, mock)

	pk, err := signer.GetPublicKey(context.Background(), defaultPath(t))
	require.NoError(t, err)
	assert.Equal(t, mock.PublicKey, pk)

	cmds := mock.CommandsFor(ledger.InsGetPublicKey)
	require.Len(t, cmds, 1)
	assert.Len(t, cmds[0].Data, 20)
}

func TestSign_RejectedChunkStops(t *testing.T) {
	mock := ledgertest.New()
	mock.Handler = func(cmd ledgertest.Command) ([]byte, error) {
		if cmd.INS == ledger.InsGetVersion {
			return []byte{1, 2, 3, 0x90, 0x00}, nil
		}
		return []byte{0x69, 0x85}, nil
	}
	signer := openSigner(t, mock)

	_, err := signer.Sign(context.Background(), make([]byte, 300), defaultPath(t))
	assert.ErrorIs(t, err, errno.ErrDeviceRejected)
	assert.Len(t, mock.CommandsFor(ledger.InsSign), 1, "第一块失败后不再发送后续分块")
}

func TestSign_IOFailure(t *testing.T) {
	mock := ledgertest.New()
	mock.Handler = func(cmd ledgertest.Command) ([]byte, error) {
		if cmd.INS == ledger.InsGetVersion {
			return []byte{1, 2, 3, 0x90, 0x00}, nil
		}
		return nil, errors.New("usb unplugged")
	}
	signer := openSigner(t, mock)

	_, err := signer.Sign(context.Background(), []byte("x"), defaultPath(t))
	assert.ErrorIs(t, err, errno.ErrDeviceSigningFailed)
}

func TestChannel_ExclusiveSession(t *testing.T) {
	mock := ledgertest.New()
	ch := ledger.NewChannel(mock)

	s1, err := ch.Open(context.Background())
	require.NoError(t, err)
	assert.True(t, ch.Busy())

	_, err = ch.Open(context.Background())
	assert.ErrorIs(t, err, errno.ErrDeviceBusy, "第二个会话必须立即失败")
	assert.Equal(t, 1, mock.OpenCount())

	require.NoError(t, s1.Close())
	require.NoError(t, s1.Close())
	assert.Equal(t, 1, mock.CloseCount(), "底层连接只关闭一次")
	assert.False(t, ch.Busy())

	s2, err := ch.Open(context.Background())
	require.NoError(t, err)
	defer s2.Close()

	_, err = s1.Exchange(context.Background(), ledger.InsGetVersion, 0, 0, nil)
	assert.ErrorIs(t, err, errno.ErrDeviceSigningFailed, "已关闭的会话不能再发送")
}

func TestChannel_OpenFailureReleases(t *testing.T) {
	mock := ledgertest.New()
	mock.OpenErr = errors.New("no device")
	ch := ledger.NewChannel(mock)

	_, err := ch.Open(context.Background())
	assert.ErrorIs(t, err, errno.ErrDeviceNotFound)
	assert.False(t, ch.Busy())
}

func TestDevice_OneShotClosesSession(t *testing.T) {
	mock := ledgertest.New()
	dev := ledger.NewDevice(ledger.NewChannel(mock), networkByte)

	_, err := dev.PublicKey(context.Background(), defaultPath(t))
	require.NoError(t, err)
	_, err = dev.Version(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, mock.OpenCount())
	assert.Equal(t, 2, mock.CloseCount())
}

func TestChunks(t *testing.T) {
	assert.Empty(t, ledger.Chunks(nil))
	chunks := ledger.Chunks(make([]byte, 220))
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 123)
	assert.Len(t, chunks[1], 97)
}

// speculos 风格的 APDU 服务器: 回显版本号
func startAPDUServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var header [4]byte
			if _, err := io.ReadFull(conn, header[:]); err != nil {
				return
			}
			apdu := make([]byte, binary.BigEndian.Uint32(header[:]))
			if _, err := io.ReadFull(conn, apdu); err != nil {
				return
			}
			data := []byte{2, 0, 1}
			if apdu[1] == ledger.InsGetVersion {
				data = []byte{2, 1, 1}
			}
			resp := make([]byte, 4, 4+len(data)+2)
			binary.BigEndian.PutUint32(resp, uint32(len(data)))
			resp = append(resp, data...)
			resp = append(resp, 0x90, 0x00)
			if _, err := conn.Write(resp); err != nil {
				return
			}
		}
	}()
	return ln.Addr().String()
}

func TestTCPTransport(t *testing.T) {
	addr := startAPDUServer(t)
	dev := ledger.NewDevice(ledger.NewChannel(&ledger.TCPTransport{Addr: addr}), networkByte)

	v, err := dev.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ledger.Version{Major: 2, Minor: 1, Patch: 1}, v)
}

func TestWSTransport(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, apdu, err := conn.ReadMessage()
			if err != nil {
				return
			}
			_ = conn.WriteMessage(websocket.TextMessage, []byte("ack"))
			resp := []byte{0x6d, 0x00}
			if apdu[1] == ledger.InsGetVersion {
				resp = []byte{3, 1, 4, 0x90, 0x00}
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, resp); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	transport, err := ledger.NewTransport("ws", url)
	require.NoError(t, err)
	dev := ledger.NewDevice(ledger.NewChannel(transport), networkByte)

	v, err := dev.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3.1.4", v.String())
}

func TestEncodeAPDU(t *testing.T) {
	apdu, err := ledger.EncodeAPDU(0x80, 0x02, 0x80, 'W', []byte{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80, 0x02, 0x80, 'W', 2, 1, 2}, apdu)

	_, err = ledger.EncodeAPDU(0x80, 0x02, 0, 0, make([]byte, 256))
	assert.Error(t, err)
}
