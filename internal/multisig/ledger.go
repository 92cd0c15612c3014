// Package multisig 多签合约的读写层: 通过交易构造器和签名编排器提交请求、确认、拒绝，
// 并反映本地观察到的确认状态。阈值执行由合约负责，这里从不断言执行。
package multisig

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"multisig-core/internal/rpc"
	"multisig-core/internal/session"
	"multisig-core/internal/signing"
	"multisig-core/pkg/bip32"
	"multisig-core/pkg/cache"
	"multisig-core/pkg/errno"
	"multisig-core/pkg/logger"
	"multisig-core/pkg/monitor"
	"multisig-core/pkg/near"
)

// 合约方法名
const (
	MethodListRequestIDs     = "list_request_ids"
	MethodGetRequest         = "get_request"
	MethodGetConfirmations   = "get_confirmations"
	MethodGetNumConfirmation = "get_num_confirmations"
	MethodAddRequest         = "add_request"
	MethodConfirm            = "confirm"
	MethodDeleteRequest      = "delete_request"
)

// 流程标签，事件订阅方据此失效缓存
const (
	MetaContract  = "contract"
	MetaMethod    = "method"
	MetaRequestID = "request_id"
)

// ContractV2 成员按 DeleteMember 撤销；其余版本按 DeleteKey
const ContractV2 = "v2"

// NodeClient 只读节点查询
type NodeClient interface {
	CallFunction(ctx context.Context, contractID, method string, args any, out any) error
	ViewAccount(ctx context.Context, accountID string) (*rpc.AccountView, error)
}

// TxBuilder 交易构造
type TxBuilder interface {
	BuildActions(ctx context.Context, senderID string, pk near.PublicKey, receiverID string, actions []near.Action) (*near.Transaction, error)
}

// FlowStarter 签名编排
type FlowStarter interface {
	Start(ctx context.Context, tx *near.Transaction, path bip32.Path, opts ...signing.FlowOption) (*signing.Flow, error)
	StartRemote(tx *near.Transaction, opts ...signing.FlowOption) (*signing.Flow, error)
}

type Config struct {
	ContractVersion string
	RequestGas      uint64 // add_request 附带的 gas
	ConfirmGas      uint64 // confirm 可能触发执行，需要更多 gas
	LockupSuffix    string
	Path            bip32.Path
	CacheTTL        time.Duration
}

// Ledger 多签账本
type Ledger struct {
	node    NodeClient
	builder TxBuilder
	flows   FlowStarter
	session *session.Context
	cache   cache.Cache
	cfg     Config
	log     *zap.Logger

	mu       sync.Mutex
	observed map[string]ConfirmationSet
}

type LedgerOption func(*Ledger)

// WithCache 替换默认的进程内缓存
func WithCache(c cache.Cache) LedgerOption {
	return func(l *Ledger) { l.cache = c }
}

func New(node NodeClient, builder TxBuilder, flows FlowStarter, sess *session.Context, cfg Config, opts ...LedgerOption) *Ledger {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Second
	}
	l := &Ledger{
		node:     node,
		builder:  builder,
		flows:    flows,
		session:  sess,
		cfg:      cfg,
		log:      logger.Named("multisig"),
		observed: make(map[string]ConfirmationSet),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.cache == nil {
		l.cache = cache.NewMemoryCache(cfg.CacheTTL, time.Minute)
	}
	return l
}

type requestArgs struct {
	RequestID uint32 `json:"request_id"`
}

// ListPendingRequests 合约上尚未执行的请求 ID，升序
func (l *Ledger) ListPendingRequests(ctx context.Context, contractID string) ([]uint32, error) {
	key := idsKey(contractID)
	var ids []uint32
	if err := l.cache.Get(ctx, key, &ids); err == nil {
		return ids, nil
	}

	if err := l.node.CallFunction(ctx, contractID, MethodListRequestIDs, struct{}{}, &ids); err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	monitor.SetPendingRequests(contractID, len(ids))

	if err := l.cache.Set(ctx, key, ids, l.cfg.CacheTTL); err != nil {
		l.log.Warn("写入请求列表缓存失败", zap.String("contract", contractID), zap.Error(err))
	}
	return ids, nil
}

// GetRequest 链上请求视图，确认集合合并本地观察到的确认
func (l *Ledger) GetRequest(ctx context.Context, contractID string, requestID uint32) (*Request, error) {
	snap, err := l.snapshot(ctx, contractID, requestID)
	if err != nil {
		return nil, err
	}
	actions, err := snap.Request.decode()
	if err != nil {
		return nil, err
	}

	required := snap.Required
	if required == 0 {
		required = 1
	}
	req := &Request{
		ContractID:            contractID,
		RequestID:             requestID,
		ReceiverID:            snap.Request.ReceiverID,
		Actions:               actions,
		Confirmations:         NewConfirmationSet(snap.Confirmations...).Union(l.Observed(contractID, requestID)),
		RequiredConfirmations: required,
	}
	return req, nil
}

func (l *Ledger) snapshot(ctx context.Context, contractID string, requestID uint32) (*requestSnapshot, error) {
	key := requestKey(contractID, requestID)
	var snap requestSnapshot
	if err := l.cache.Get(ctx, key, &snap); err == nil {
		return &snap, nil
	}

	args := requestArgs{RequestID: requestID}
	if err := l.node.CallFunction(ctx, contractID, MethodGetRequest, args, &snap.Request); err != nil {
		if isNoSuchRequest(err) {
			return nil, errno.ErrRequestNotFound.WithMessage(fmt.Sprintf("%s 上不存在请求 #%d", contractID, requestID))
		}
		return nil, err
	}
	if err := l.node.CallFunction(ctx, contractID, MethodGetConfirmations, args, &snap.Confirmations); err != nil {
		return nil, err
	}
	if err := l.node.CallFunction(ctx, contractID, MethodGetNumConfirmation, struct{}{}, &snap.Required); err != nil {
		return nil, err
	}

	if err := l.cache.Set(ctx, key, snap, l.cfg.CacheTTL); err != nil {
		l.log.Warn("写入请求缓存失败", zap.String("contract", contractID), zap.Uint32("request_id", requestID), zap.Error(err))
	}
	return &snap, nil
}

// SubmitRequest add_request: 把动作包装成多签请求提交。receiverID 为空时目标是合约自身
func (l *Ledger) SubmitRequest(ctx context.Context, contractID, receiverID string, actions ...near.Action) (*signing.Flow, error) {
	account, err := l.usableKey(contractID)
	if err != nil {
		return nil, err
	}
	if len(actions) == 0 {
		return nil, errno.ErrInvalidAction.WithMessage("请求动作为空")
	}
	if receiverID == "" {
		receiverID = contractID
	}
	req, err := encodeRequest(receiverID, actions)
	if err != nil {
		return nil, err
	}

	call, err := functionCall(MethodAddRequest, map[string]any{"request": req}, l.cfg.RequestGas)
	if err != nil {
		return nil, err
	}
	return l.sign(ctx, account, contractID, call, signing.WithOnSuccess(func(st signing.Status) {
		l.log.Info("多签请求已提交", zap.String("contract", contractID), zap.String("tx_hash", st.TxHash))
		l.Invalidate(context.Background(), contractID)
	}))
}

// Confirm 确认请求；交易成功后当前账户记入本地观察到的确认集合
func (l *Ledger) Confirm(ctx context.Context, contractID string, requestID uint32) (*signing.Flow, error) {
	account, err := l.usableKey(contractID)
	if err != nil {
		return nil, err
	}
	call, err := functionCall(MethodConfirm, requestArgs{RequestID: requestID}, l.cfg.ConfirmGas)
	if err != nil {
		return nil, err
	}
	member := memberID(account)
	return l.sign(ctx, account, contractID, call, requestMeta(requestID), signing.WithOnSuccess(func(st signing.Status) {
		l.observe(contractID, requestID, member)
		l.Invalidate(context.Background(), contractID, requestID)
		l.log.Info("多签请求已确认",
			zap.String("contract", contractID),
			zap.Uint32("request_id", requestID),
			zap.String("member", member))
	}))
}

// Reject delete_request
func (l *Ledger) Reject(ctx context.Context, contractID string, requestID uint32) (*signing.Flow, error) {
	account, err := l.usableKey(contractID)
	if err != nil {
		return nil, err
	}
	call, err := functionCall(MethodDeleteRequest, requestArgs{RequestID: requestID}, l.cfg.RequestGas)
	if err != nil {
		return nil, err
	}
	return l.sign(ctx, account, contractID, call, requestMeta(requestID), signing.WithOnSuccess(func(st signing.Status) {
		l.mu.Lock()
		delete(l.observed, requestKey(contractID, requestID))
		l.mu.Unlock()
		l.Invalidate(context.Background(), contractID, requestID)
		l.log.Info("多签请求已删除", zap.String("contract", contractID), zap.Uint32("request_id", requestID))
	}))
}

// RevokeAction 撤销成员的动作，由配置的合约版本决定，不做探测
func (l *Ledger) RevokeAction(pk near.PublicKey) near.Action {
	if l.cfg.ContractVersion == ContractV2 {
		return near.DeleteMember{PublicKey: &pk}
	}
	return near.DeleteKey{PublicKey: pk}
}

// RevokeMember 提交撤销成员的请求
func (l *Ledger) RevokeMember(ctx context.Context, contractID string, pk near.PublicKey) (*signing.Flow, error) {
	return l.SubmitRequest(ctx, contractID, contractID, l.RevokeAction(pk))
}

// LockupAccount 账户对应的锁仓账户；不存在时返回 nil, nil
type LockupAccount struct {
	AccountID string           `json:"account_id"`
	View      *rpc.AccountView `json:"view"`
}

func (l *Ledger) LockupAccount(ctx context.Context, ownerID string) (*LockupAccount, error) {
	id := near.LockupAccountID(ownerID, l.cfg.LockupSuffix)
	view, err := l.node.ViewAccount(ctx, id)
	if errors.Is(err, rpc.ErrAccountNotFound) {
		l.log.Debug("锁仓账户不存在", zap.String("owner", ownerID), zap.String("lockup", id))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &LockupAccount{AccountID: id, View: view}, nil
}

// Observed 本地观察到的确认 (本进程成功提交的 confirm)
func (l *Ledger) Observed(contractID string, requestID uint32) ConfirmationSet {
	l.mu.Lock()
	defer l.mu.Unlock()
	return NewConfirmationSet(l.observed[requestKey(contractID, requestID)].List()...)
}

// Invalidate 删除合约的请求列表缓存，以及给定请求的缓存
func (l *Ledger) Invalidate(ctx context.Context, contractID string, requestIDs ...uint32) {
	keys := []string{idsKey(contractID)}
	for _, id := range requestIDs {
		keys = append(keys, requestKey(contractID, id))
	}
	for _, k := range keys {
		if err := l.cache.Delete(ctx, k); err != nil {
			l.log.Warn("删除缓存失败", zap.String("key", k), zap.Error(err))
		}
	}
}

func (l *Ledger) observe(contractID string, requestID uint32, member string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := requestKey(contractID, requestID)
	set := l.observed[key]
	set.Add(member)
	l.observed[key] = set
}

// usableKey 本地检查，失败时不产生任何设备或网络调用
func (l *Ledger) usableKey(contractID string) (session.Account, error) {
	account, ok := l.session.UsableKey(contractID)
	if !ok {
		return account, errno.ErrNoUsableKey.WithMessage("没有可用于 " + contractID + " 的签名密钥")
	}
	return account, nil
}

func (l *Ledger) sign(ctx context.Context, account session.Account, contractID string, call near.FunctionCall, opts ...signing.FlowOption) (*signing.Flow, error) {
	tx, err := l.builder.BuildActions(ctx, account.AccountID, account.PublicKey, contractID, []near.Action{call})
	if err != nil {
		return nil, err
	}
	opts = append(opts, signing.WithMeta(MetaContract, contractID), signing.WithMeta(MetaMethod, call.MethodName))
	l.log.Debug("提交多签调用",
		zap.String("contract", contractID),
		zap.String("method", call.MethodName),
		zap.String("signer", account.AccountID))
	if account.WalletKind == session.WalletRemote {
		return l.flows.StartRemote(tx, opts...)
	}
	return l.flows.Start(ctx, tx, l.cfg.Path, opts...)
}

// memberID 合约记录确认者的方式: 账户即合约时记录公钥，否则记录账户 ID
func memberID(a session.Account) string {
	if len(a.Contracts) == 0 {
		return a.PublicKey.String()
	}
	return a.AccountID
}

func requestMeta(requestID uint32) signing.FlowOption {
	return signing.WithMeta(MetaRequestID, strconv.FormatUint(uint64(requestID), 10))
}

func idsKey(contractID string) string {
	return "multisig:" + contractID + ":ids"
}

func requestKey(contractID string, requestID uint32) string {
	return fmt.Sprintf("multisig:%s:req:%d", contractID, requestID)
}

func isNoSuchRequest(err error) bool {
	return strings.Contains(err.Error(), "No such request")
}
