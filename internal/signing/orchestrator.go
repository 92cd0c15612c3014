// Package signing 驱动交易从待签名经设备签名 (或远程钱包) 到广播终态的状态机。
package signing

import (
	"context"
	"encoding/base64"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"multisig-core/internal/rpc"
	"multisig-core/pkg/bip32"
	"multisig-core/pkg/errno"
	"multisig-core/pkg/logger"
	"multisig-core/pkg/monitor"
	"multisig-core/pkg/near"
)

// Broadcaster 节点侧依赖
type Broadcaster interface {
	BroadcastTxCommit(ctx context.Context, signed *near.SignedTransaction) (*rpc.FinalExecutionOutcome, error)
	TxStatus(ctx context.Context, txHash, senderID string) (*rpc.FinalExecutionOutcome, error)
}

// Recorder 观察每一次状态变化 (持久化、事件)
type Recorder interface {
	Record(ctx context.Context, st Status)
}

// RemoteConfig 远程钱包重定向参数
type RemoteConfig struct {
	WalletURL   string
	CallbackURL string
}

// Callback 远程钱包回调携带的参数
type Callback struct {
	TransactionHashes []string
	ErrorCode         string
	ErrorMessage      string
}

type Option func(*Orchestrator)

func WithRemote(cfg RemoteConfig) Option {
	return func(o *Orchestrator) { o.remote = cfg }
}

func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorders = append(o.recorders, r) }
}

// Orchestrator 管理所有签名流程
type Orchestrator struct {
	device    Device
	node      Broadcaster
	remote    RemoteConfig
	recorders []Recorder
	log       *zap.Logger

	mu    sync.RWMutex
	flows map[string]*Flow
}

func New(device Device, node Broadcaster, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		device: device,
		node:   node,
		log:    logger.Named("signing"),
		flows:  make(map[string]*Flow),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start 设备签名: Idle → AwaitingDevice，随后在独立协程里打开设备、签名、广播。
// 流程不受 ctx 取消影响，只能通过 Flow.Cancel 中止
func (o *Orchestrator) Start(ctx context.Context, tx *near.Transaction, path bip32.Path, opts ...FlowOption) (*Flow, error) {
	if o.device == nil {
		return nil, errno.ErrDeviceNotFound.WithMessage("未配置签名设备")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := o.newFlow(ModeDevice, tx, path, opts)
	if err != nil {
		return nil, err
	}
	var workCtx context.Context
	if !f.apply(EventSignRequested, func() {
		f.attempts = 1
		workCtx = f.armLocked()
	}) {
		return nil, errno.ErrInvalidTransition
	}
	o.log.Info("签名流程开始", zap.String("flow_id", f.id), zap.String("signer", tx.SignerID), zap.Uint64("nonce", tx.Nonce))
	go o.runDevice(workCtx, f)
	return f, nil
}

// StartRemote 远程钱包签名: Idle → AwaitingRemote，返回的流程带重定向地址
func (o *Orchestrator) StartRemote(tx *near.Transaction, opts ...FlowOption) (*Flow, error) {
	if o.remote.WalletURL == "" {
		return nil, errno.InternalServerError.WithMessage("未配置远程钱包地址")
	}
	f, err := o.newFlow(ModeRemote, tx, nil, opts)
	if err != nil {
		return nil, err
	}
	redirect, err := o.redirectURL(f)
	if err != nil {
		o.forget(f.id)
		return nil, err
	}
	if !f.apply(EventRedirected, func() {
		f.attempts = 1
		f.redirectURL = redirect
	}) {
		return nil, errno.ErrInvalidTransition
	}
	o.log.Info("已生成远程签名重定向", zap.String("flow_id", f.id))
	return f, nil
}

// Resume 远程钱包回调: 带交易哈希 → Broadcasting → 查询结果；带错误码 → Failed
func (o *Orchestrator) Resume(ctx context.Context, flowID string, cb Callback) (*Flow, error) {
	f, ok := o.Flow(flowID)
	if !ok {
		return nil, errno.ErrFlowNotFound
	}
	if f.mode != ModeRemote {
		return nil, errno.ErrInvalidTransition.WithMessage("设备签名流程不接受远程回调")
	}

	if cb.ErrorCode != "" || len(cb.TransactionHashes) == 0 {
		msg := cb.ErrorCode
		if cb.ErrorMessage != "" {
			msg += ": " + cb.ErrorMessage
		}
		if msg == "" {
			msg = "回调缺少交易哈希"
		}
		if !f.apply(EventRemoteFailed, func() { f.err = errno.ErrRemoteRejected.WithMessage(msg) }) {
			return nil, errno.ErrInvalidTransition.WithMessage("流程不在等待远程签名状态")
		}
		f.finish()
		return f, nil
	}

	hash := cb.TransactionHashes[0]
	if !f.apply(EventRemoteSigned, func() { f.txHash = hash }) {
		return nil, errno.ErrInvalidTransition.WithMessage("流程不在等待远程签名状态")
	}

	base := context.WithoutCancel(ctx)
	go func() {
		defer f.finish()
		outcome, err := o.node.TxStatus(base, hash, f.tx.SignerID)
		o.settle(f, outcome, err)
	}()
	return f, nil
}

// Flow 按 ID 查找流程
func (o *Orchestrator) Flow(id string) (*Flow, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	f, ok := o.flows[id]
	return f, ok
}

// Prune 清理早于 olderThan 进入终态的流程，返回清理数量
func (o *Orchestrator) Prune(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for id, f := range o.flows {
		st := f.Status()
		if st.State.Terminal() && st.UpdatedAt.Before(cutoff) {
			delete(o.flows, id)
			n++
		}
	}
	return n
}

func (o *Orchestrator) newFlow(mode Mode, tx *near.Transaction, path bip32.Path, opts []FlowOption) (*Flow, error) {
	if tx == nil || len(tx.Actions) == 0 {
		return nil, errno.ErrInvalidAction.WithMessage("交易为空")
	}
	f := &Flow{
		id:        uuid.NewString(),
		mode:      mode,
		tx:        *tx,
		path:      path,
		orch:      o,
		state:     StateIdle,
		updatedAt: time.Now(),
		done:      make(chan struct{}),
	}
	f.tx.Actions = append([]near.Action(nil), tx.Actions...)
	for _, opt := range opts {
		opt(f)
	}

	o.mu.Lock()
	o.flows[f.id] = f
	o.mu.Unlock()
	return f, nil
}

func (o *Orchestrator) forget(id string) {
	o.mu.Lock()
	delete(o.flows, id)
	o.mu.Unlock()
}

func (o *Orchestrator) redirectURL(f *Flow) (string, error) {
	raw, err := f.tx.Serialize()
	if err != nil {
		return "", errno.ErrInvalidAction.Wrap(err)
	}
	wallet, err := url.Parse(o.remote.WalletURL)
	if err != nil {
		return "", err
	}
	callback, err := url.Parse(o.remote.CallbackURL)
	if err != nil {
		return "", err
	}
	cbQuery := callback.Query()
	cbQuery.Set("flow", f.id)
	callback.RawQuery = cbQuery.Encode()

	wallet = wallet.JoinPath("sign")
	q := wallet.Query()
	q.Set("transactions", base64.StdEncoding.EncodeToString(raw))
	q.Set("callbackUrl", callback.String())
	wallet.RawQuery = q.Encode()
	return wallet.String(), nil
}

// runDevice AwaitingDevice → Signing → Broadcasting → 终态。
// 设备会话在签名结束后立即释放，并且在任何退出路径上都会关闭
func (o *Orchestrator) runDevice(ctx context.Context, f *Flow) {
	defer f.finish()

	signer, err := o.device.Open(ctx)
	if err != nil {
		f.fail(EventDeviceFailed, deviceError(err))
		return
	}
	release := sync.OnceFunc(func() {
		if err := signer.Close(); err != nil {
			o.log.Warn("关闭设备会话失败", zap.String("flow_id", f.id), zap.Error(err))
		}
	})
	defer release()

	version, err := signer.GetVersion(ctx)
	if err != nil {
		f.fail(EventDeviceFailed, deviceError(err))
		return
	}
	if !f.apply(EventDeviceReady, nil) {
		return
	}
	o.log.Debug("设备就绪", zap.String("flow_id", f.id), zap.String("version", version.String()))

	message, err := f.tx.Serialize()
	if err != nil {
		f.fail(EventDeviceFailed, errno.ErrInvalidAction.Wrap(err))
		return
	}
	raw, err := signer.Sign(ctx, message, f.path)
	release()
	if err != nil {
		if ctx.Err() == nil {
			o.log.Warn("设备签名失败", zap.String("flow_id", f.id), zap.Error(err))
		}
		f.fail(EventDeviceFailed, deviceError(err))
		return
	}
	sig, err := near.SignatureFromEd25519(raw)
	if err != nil {
		f.fail(EventDeviceFailed, errno.ErrProtocol.Wrap(err))
		return
	}

	signed := near.NewSignedTransaction(f.tx, sig)
	hash, err := signed.Hash()
	if err != nil {
		f.fail(EventDeviceFailed, errno.ErrProtocol.Wrap(err))
		return
	}
	if !f.apply(EventSigned, func() {
		f.signed = signed
		f.txHash = hash.String()
	}) {
		return
	}

	outcome, err := o.node.BroadcastTxCommit(ctx, signed)
	o.settle(f, outcome, err)
}

// settle Broadcasting → Success / Failed。顶层状态和所有回执都没有 Failure 才算成功
func (o *Orchestrator) settle(f *Flow, outcome *rpc.FinalExecutionOutcome, err error) {
	if err != nil {
		o.log.Warn("广播失败", zap.String("flow_id", f.id), zap.Error(err))
		f.fail(EventBroadcastFailed, err)
		return
	}
	if failure, failed := outcome.Failure(); failed {
		o.log.Warn("交易执行失败", zap.String("flow_id", f.id), zap.ByteString("failure", failure))
		f.apply(EventBroadcastFailed, func() {
			f.outcome = outcome
			f.err = errno.ErrTransactionFailed.WithMessage(string(failure))
		})
		return
	}
	f.apply(EventBroadcastOK, func() {
		f.outcome = outcome
		if outcome.Transaction.Hash != "" {
			f.txHash = outcome.Transaction.Hash
		}
	})
	o.log.Info("交易已上链", zap.String("flow_id", f.id), zap.String("tx_hash", f.Status().TxHash))
}

func (o *Orchestrator) observe(st Status) {
	for _, r := range o.recorders {
		r.Record(context.Background(), st)
	}
}

func (o *Orchestrator) terminal(st Status) {
	monitor.IncSigningFlow(string(st.State))
	if st.State == StateFailed && !errors.Is(st.Err, errno.ErrCancelled) {
		o.log.Warn("签名流程失败", zap.String("flow_id", st.ID), zap.Int("code", st.ErrorCode), zap.String("error", st.Error))
	}
}
