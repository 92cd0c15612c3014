package multisig_test

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multisig-core/internal/multisig"
	"multisig-core/internal/rpc"
	"multisig-core/internal/session"
	"multisig-core/internal/signing"
	"multisig-core/internal/txbuilder"
	"multisig-core/pkg/errno"
	"multisig-core/pkg/near"
)

const contractID = "msig.near"

type pendingRequest struct {
	ReceiverID string            `json:"receiver_id"`
	Actions    []json.RawMessage `json:"actions"`
}

// fakeChain 模拟节点和一个 v2 多签合约: 确认者记录为签名账户
type fakeChain struct {
	mu            sync.Mutex
	nextID        uint32
	requests      map[uint32]pendingRequest
	confirmations map[uint32][]string
	num           uint32
	nonces        map[string]uint64
	accounts      map[string]bool
	calls         map[string]int
}

func newFakeChain(num uint32) *fakeChain {
	return &fakeChain{
		requests:      make(map[uint32]pendingRequest),
		confirmations: make(map[uint32][]string),
		num:           num,
		nonces:        make(map[string]uint64),
		accounts:      make(map[string]bool),
		calls:         make(map[string]int),
	}
}

func (c *fakeChain) count(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

func (c *fakeChain) ViewAccessKey(ctx context.Context, accountID string, pk near.PublicKey) (*rpc.AccessKeyView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["view_access_key"]++
	return &rpc.AccessKeyView{
		Nonce:     c.nonces[accountID+pk.String()],
		BlockHash: near.CryptoHash(sha256.Sum256([]byte("H"))).String(),
	}, nil
}

func (c *fakeChain) ViewAccount(ctx context.Context, accountID string) (*rpc.AccountView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["view_account"]++
	if !c.accounts[accountID] {
		return nil, fmt.Errorf("%w: %s", rpc.ErrAccountNotFound, accountID)
	}
	return &rpc.AccountView{Amount: "1000"}, nil
}

func (c *fakeChain) CallFunction(ctx context.Context, contract, method string, args any, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[method]++

	var in struct {
		RequestID uint32 `json:"request_id"`
	}
	raw, _ := json.Marshal(args)
	_ = json.Unmarshal(raw, &in)

	var result any
	switch method {
	case multisig.MethodListRequestIDs:
		ids := []uint32{}
		for id := range c.requests {
			ids = append(ids, id)
		}
		result = ids
	case multisig.MethodGetRequest:
		req, ok := c.requests[in.RequestID]
		if !ok {
			return errno.ErrNetwork.WithMessage("wasm execution failed: No such request: either wrong number or already confirmed")
		}
		result = req
	case multisig.MethodGetConfirmations:
		result = append([]string{}, c.confirmations[in.RequestID]...)
	case multisig.MethodGetNumConfirmation:
		result = c.num
	default:
		return fmt.Errorf("unexpected view %s", method)
	}
	data, _ := json.Marshal(result)
	return json.Unmarshal(data, out)
}

func (c *fakeChain) BroadcastTxCommit(ctx context.Context, signed *near.SignedTransaction) (*rpc.FinalExecutionOutcome, error) {
	tx := signed.Transaction()
	call := tx.Actions[0].(near.FunctionCall)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["broadcast"]++
	c.nonces[tx.SignerID+tx.PublicKey.String()] = tx.Nonce

	switch call.MethodName {
	case multisig.MethodAddRequest:
		var args struct {
			Request pendingRequest `json:"request"`
		}
		if err := json.Unmarshal(call.Args, &args); err != nil {
			return nil, err
		}
		c.requests[c.nextID] = args.Request
		c.nextID++
	case multisig.MethodConfirm:
		var args struct {
			RequestID uint32 `json:"request_id"`
		}
		_ = json.Unmarshal(call.Args, &args)
		confirmed := c.confirmations[args.RequestID]
		for _, m := range confirmed {
			if m == tx.SignerID {
				return failureOutcome("Already confirmed this request with this key"), nil
			}
		}
		c.confirmations[args.RequestID] = append(confirmed, tx.SignerID)
		if uint32(len(c.confirmations[args.RequestID])) >= c.num {
			delete(c.requests, args.RequestID)
			delete(c.confirmations, args.RequestID)
		}
	case multisig.MethodDeleteRequest:
		var args struct {
			RequestID uint32 `json:"request_id"`
		}
		_ = json.Unmarshal(call.Args, &args)
		delete(c.requests, args.RequestID)
		delete(c.confirmations, args.RequestID)
	}

	hash, _ := signed.Hash()
	out := &rpc.FinalExecutionOutcome{Status: rpc.ExecutionStatus{Kind: rpc.StatusSuccessValue, Value: json.RawMessage(`""`)}}
	out.Transaction.Hash = hash.String()
	return out, nil
}

func (c *fakeChain) TxStatus(ctx context.Context, txHash, senderID string) (*rpc.FinalExecutionOutcome, error) {
	out := &rpc.FinalExecutionOutcome{Status: rpc.ExecutionStatus{Kind: rpc.StatusSuccessValue, Value: json.RawMessage(`""`)}}
	out.Transaction.Hash = txHash
	return out, nil
}

func failureOutcome(msg string) *rpc.FinalExecutionOutcome {
	raw, _ := json.Marshal(map[string]string{"ActionError": msg})
	return &rpc.FinalExecutionOutcome{Status: rpc.ExecutionStatus{Kind: rpc.StatusFailure, Value: raw}}
}

func member(t *testing.T, id string, kind session.WalletKind) session.Account {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	pk, err := near.PublicKeyFromEd25519(pub)
	require.NoError(t, err)
	return session.Account{AccountID: id, PublicKey: pk, WalletKind: kind, Contracts: []string{contractID}}
}

type fixture struct {
	chain  *fakeChain
	sess   *session.Context
	ledger *multisig.Ledger
}

func newFixture(t *testing.T, num uint32, version string, accounts ...session.Account) *fixture {
	t.Helper()
	_, key, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	chain := newFakeChain(num)
	sess := session.NewContext(accounts...)
	orch := signing.New(signing.LocalDevice{Key: key}, chain, signing.WithRemote(signing.RemoteConfig{
		WalletURL:   "https://wallet.example",
		CallbackURL: "http://localhost:8080/api/v1/sign/callback",
	}))
	l := multisig.New(chain, txbuilder.New(chain), orch, sess, multisig.Config{
		ContractVersion: version,
		RequestGas:      100_000_000_000_000,
		ConfirmGas:      250_000_000_000_000,
		LockupSuffix:    "lockup.near",
		CacheTTL:        time.Minute,
	})
	return &fixture{chain: chain, sess: sess, ledger: l}
}

func waitFlow(t *testing.T, f *signing.Flow) signing.Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := f.Wait(ctx)
	require.NoError(t, err)
	return st
}

func TestThresholdScenario(t *testing.T) {
	ctx := context.Background()
	alice := member(t, "alice.near", session.WalletLocal)
	bob := member(t, "bob.near", session.WalletLocal)
	fx := newFixture(t, 3, multisig.ContractV2, alice, bob)

	flow, err := fx.ledger.SubmitRequest(ctx, contractID, "", near.SetNumConfirmations{NumConfirmations: 3})
	require.NoError(t, err)
	assert.Equal(t, signing.StateSuccess, waitFlow(t, flow).State)

	ids, err := fx.ledger.ListPendingRequests(ctx, contractID)
	require.NoError(t, err)
	require.Equal(t, []uint32{0}, ids)

	flow, err = fx.ledger.Confirm(ctx, contractID, 0)
	require.NoError(t, err)
	assert.Equal(t, signing.StateSuccess, waitFlow(t, flow).State)

	require.True(t, fx.sess.SetActive("bob.near"))
	flow, err = fx.ledger.Confirm(ctx, contractID, 0)
	require.NoError(t, err)
	assert.Equal(t, signing.StateSuccess, waitFlow(t, flow).State)

	observed := fx.ledger.Observed(contractID, 0)
	assert.Equal(t, 2, observed.Len())
	assert.Equal(t, []string{"alice.near", "bob.near"}, observed.List())

	req, err := fx.ledger.GetRequest(ctx, contractID, 0)
	require.NoError(t, err)
	assert.Equal(t, contractID, req.ReceiverID)
	assert.Equal(t, uint32(3), req.RequiredConfirmations)
	assert.Equal(t, 2, req.Confirmations.Len())
	assert.False(t, req.Ready())
	require.Len(t, req.Actions, 1)
	assert.Equal(t, near.SetNumConfirmations{NumConfirmations: 3}, req.Actions[0])
}

func TestConfirm_ObservedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	alice := member(t, "alice.near", session.WalletLocal)
	fx := newFixture(t, 3, multisig.ContractV2, alice)

	flow, err := fx.ledger.SubmitRequest(ctx, contractID, "bob.near", near.Transfer{Deposit: big.NewInt(1)})
	require.NoError(t, err)
	waitFlow(t, flow)

	flow, err = fx.ledger.Confirm(ctx, contractID, 0)
	require.NoError(t, err)
	assert.Equal(t, signing.StateSuccess, waitFlow(t, flow).State)

	// 合约拒绝重复确认，本地集合也不变
	flow, err = fx.ledger.Confirm(ctx, contractID, 0)
	require.NoError(t, err)
	st := waitFlow(t, flow)
	assert.Equal(t, signing.StateFailed, st.State)
	assert.ErrorIs(t, st.Err, errno.ErrTransactionFailed)

	assert.Equal(t, 1, fx.ledger.Observed(contractID, 0).Len())
}

func TestMutatingCalls_RequireUsableKey(t *testing.T) {
	ctx := context.Background()
	other := member(t, "carol.near", session.WalletLocal)
	other.Contracts = []string{"other-msig.near"}
	fx := newFixture(t, 2, "v1", other)

	_, err := fx.ledger.SubmitRequest(ctx, contractID, "", near.CreateAccount{})
	assert.ErrorIs(t, err, errno.ErrNoUsableKey)
	_, err = fx.ledger.Confirm(ctx, contractID, 0)
	assert.ErrorIs(t, err, errno.ErrNoUsableKey)
	_, err = fx.ledger.Reject(ctx, contractID, 0)
	assert.ErrorIs(t, err, errno.ErrNoUsableKey)

	assert.Zero(t, fx.chain.count("view_access_key"), "本地检查失败时不应访问节点")
	assert.Zero(t, fx.chain.count("broadcast"))
}

func TestReject(t *testing.T) {
	ctx := context.Background()
	alice := member(t, "alice.near", session.WalletLocal)
	fx := newFixture(t, 2, multisig.ContractV2, alice)

	flow, err := fx.ledger.SubmitRequest(ctx, contractID, "", near.SetActiveRequestsLimit{ActiveRequestsLimit: 4})
	require.NoError(t, err)
	waitFlow(t, flow)

	flow, err = fx.ledger.Reject(ctx, contractID, 0)
	require.NoError(t, err)
	assert.Equal(t, signing.StateSuccess, waitFlow(t, flow).State)

	ids, err := fx.ledger.ListPendingRequests(ctx, contractID)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = fx.ledger.GetRequest(ctx, contractID, 0)
	assert.ErrorIs(t, err, errno.ErrRequestNotFound)
}

func TestListPendingRequests_Cached(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, 2, "v1")

	for i := 0; i < 3; i++ {
		_, err := fx.ledger.ListPendingRequests(ctx, contractID)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, fx.chain.count(multisig.MethodListRequestIDs))

	fx.ledger.Invalidate(ctx, contractID)
	_, err := fx.ledger.ListPendingRequests(ctx, contractID)
	require.NoError(t, err)
	assert.Equal(t, 2, fx.chain.count(multisig.MethodListRequestIDs))
}

func TestRemoteAccount_Redirects(t *testing.T) {
	ctx := context.Background()
	alice := member(t, "alice.near", session.WalletRemote)
	fx := newFixture(t, 2, multisig.ContractV2, alice)

	flow, err := fx.ledger.Confirm(ctx, contractID, 7)
	require.NoError(t, err)
	st := flow.Status()
	assert.Equal(t, signing.ModeRemote, st.Mode)
	assert.Equal(t, signing.StateAwaitingRemote, st.State)
	assert.Contains(t, st.RedirectURL, "https://wallet.example/sign?")
	assert.Equal(t, map[string]string{
		multisig.MetaContract:  contractID,
		multisig.MetaMethod:    multisig.MethodConfirm,
		multisig.MetaRequestID: "7",
	}, st.Meta)
	assert.Zero(t, fx.chain.count("broadcast"))
}

func TestRevokeAction(t *testing.T) {
	pk, err := near.ParsePublicKey("ed25519:6E8sCci9badyRkXb3JoRpBj5p8C6Tw41ELDZoiihKEtp")
	require.NoError(t, err)

	v1 := newFixture(t, 2, "v1").ledger
	assert.Equal(t, near.DeleteKey{PublicKey: pk}, v1.RevokeAction(pk))

	v2 := newFixture(t, 2, multisig.ContractV2).ledger
	assert.Equal(t, near.DeleteMember{PublicKey: &pk}, v2.RevokeAction(pk))
}

func TestLockupAccount(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, 2, "v1")

	got, err := fx.ledger.LockupAccount(ctx, "alice.near")
	require.NoError(t, err)
	assert.Nil(t, got, "不存在的锁仓账户视为不适用")

	id := near.LockupAccountID("alice.near", "lockup.near")
	fx.chain.accounts[id] = true
	got, err = fx.ledger.LockupAccount(ctx, "alice.near")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.AccountID)
	assert.Equal(t, "1000", got.View.Amount)
}
