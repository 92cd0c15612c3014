package txbuilder

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/json"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multisig-core/internal/rpc"
	"multisig-core/pkg/errno"
	"multisig-core/pkg/near"
)

type fakeViewer struct {
	view  *rpc.AccessKeyView
	err   error
	calls int
}

func (f *fakeViewer) ViewAccessKey(ctx context.Context, accountID string, pk near.PublicKey) (*rpc.AccessKeyView, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	v := *f.view
	return &v, nil
}

var blockHash = sha256.Sum256([]byte("H"))

func testKey(t *testing.T) near.PublicKey {
	t.Helper()
	pk, err := near.PublicKeyFromEd25519(ed25519.NewKeyFromSeed(make([]byte, 32)).Public().(ed25519.PublicKey))
	require.NoError(t, err)
	return pk
}

func newViewer(nonce uint64) *fakeViewer {
	return &fakeViewer{view: &rpc.AccessKeyView{Nonce: nonce, BlockHash: base58.Encode(blockHash[:])}}
}

func TestBuild_NonceIncrement(t *testing.T) {
	viewer := newViewer(41)
	b := New(viewer)

	tx, err := b.Build(context.Background(), "alice.near", testKey(t), "bob.near",
		ActionSpec{Type: near.KindTransfer, Deposit: "1.5"})
	require.NoError(t, err)

	assert.Equal(t, uint64(42), tx.Nonce)
	assert.Equal(t, near.CryptoHash(blockHash), tx.BlockHash)
	assert.Equal(t, "alice.near", tx.SignerID)
	assert.Equal(t, "bob.near", tx.ReceiverID)
	require.Len(t, tx.Actions, 1)
	assert.Equal(t, "1500000000000000000000000", tx.Actions[0].(near.Transfer).Deposit.String())
	assert.Equal(t, 1, viewer.calls)
}

func TestBuild_Deterministic(t *testing.T) {
	b := New(newViewer(7))
	spec := ActionSpec{Type: near.KindFunctionCall, MethodName: "confirm", Args: json.RawMessage(`{"request_id":1}`), Gas: "250"}

	tx1, err := b.Build(context.Background(), "alice.near", testKey(t), "ms.near", spec)
	require.NoError(t, err)
	tx2, err := b.Build(context.Background(), "alice.near", testKey(t), "ms.near", spec)
	require.NoError(t, err)

	raw1, _ := tx1.Serialize()
	raw2, _ := tx2.Serialize()
	assert.Equal(t, raw1, raw2)
	assert.Equal(t, uint64(250_000_000_000_000), tx1.Actions[0].(near.FunctionCall).Gas)
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name      string
		viewer    *fakeViewer
		specs     []ActionSpec
		wantErr   error
		wantCalls int
	}{
		{
			name:    "访问密钥不存在",
			viewer:  &fakeViewer{err: errno.ErrAccessKeyNotFound},
			specs:   []ActionSpec{{Type: near.KindTransfer, Deposit: "1"}},
			wantErr: errno.ErrAccessKeyNotFound, wantCalls: 1,
		},
		{
			name:    "金额格式错误",
			viewer:  newViewer(1),
			specs:   []ActionSpec{{Type: near.KindTransfer, Deposit: "1,5"}},
			wantErr: errno.ErrInvalidAmount,
		},
		{
			name:    "gas 格式错误",
			viewer:  newViewer(1),
			specs:   []ActionSpec{{Type: near.KindFunctionCall, MethodName: "m", Gas: "-3"}},
			wantErr: errno.ErrInvalidAmount,
		},
		{
			name:    "空动作列表",
			viewer:  newViewer(1),
			specs:   nil,
			wantErr: errno.ErrInvalidAction,
		},
		{
			name:    "多签专用动作不能直接上链",
			viewer:  newViewer(1),
			specs:   []ActionSpec{{Type: near.KindSetNumConfirmations, NumConfirmations: 3}},
			wantErr: errno.ErrInvalidAction,
		},
		{
			name:    "区块哈希无效",
			viewer:  &fakeViewer{view: &rpc.AccessKeyView{Nonce: 1, BlockHash: "H"}},
			specs:   []ActionSpec{{Type: near.KindTransfer, Deposit: "1"}},
			wantErr: errno.ErrInvalidAction, wantCalls: 1,
		},
		{
			name:    "区块哈希长度不是 32 字节",
			viewer:  &fakeViewer{view: &rpc.AccessKeyView{Nonce: 1, BlockHash: base58.Encode(blockHash[:31])}},
			specs:   []ActionSpec{{Type: near.KindTransfer, Deposit: "1"}},
			wantErr: errno.ErrInvalidAction, wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := New(tt.viewer).Build(context.Background(), "alice.near", testKey(t), "bob.near", tt.specs...)
			assert.Nil(t, tx, "出错时不能返回部分交易")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantCalls, tt.viewer.calls)
		})
	}
}

func TestNormalize(t *testing.T) {
	pk := testKey(t)

	a, err := ActionSpec{Type: near.KindAddKey, PublicKey: pk.String(), Permission: &PermissionSpec{
		Allowance: "0.25", ReceiverID: "ms.near", MethodNames: []string{"confirm"},
	}}.Normalize()
	require.NoError(t, err)
	addKey := a.(near.AddKey)
	assert.Equal(t, "250000000000000000000000", addKey.Permission.Allowance.String())

	a, err = ActionSpec{Type: near.KindDeleteMember, Member: pk.String()}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, pk, *a.(near.DeleteMember).PublicKey)

	a, err = ActionSpec{Type: near.KindDeleteMember, Member: "carol.near"}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "carol.near", a.(near.DeleteMember).AccountID)

	a, err = ActionSpec{Type: near.KindFunctionCall, MethodName: "m"}.Normalize()
	require.NoError(t, err)
	call := a.(near.FunctionCall)
	assert.Equal(t, uint64(30_000_000_000_000), call.Gas, "默认 30 Tgas")
	assert.Equal(t, "0", call.Deposit.String())
	assert.Equal(t, []byte("{}"), call.Args)

	_, err = ActionSpec{Type: "Stake"}.Normalize()
	assert.ErrorIs(t, err, errno.ErrInvalidAction)

	_, err = ActionSpec{Type: near.KindSetNumConfirmations}.Normalize()
	assert.ErrorIs(t, err, errno.ErrInvalidAction)
}
