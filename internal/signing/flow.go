package signing

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"multisig-core/internal/rpc"
	"multisig-core/pkg/bip32"
	"multisig-core/pkg/errno"
	"multisig-core/pkg/near"
)

// Mode 设备签名或远程钱包签名
type Mode string

const (
	ModeDevice Mode = "device"
	ModeRemote Mode = "remote"
)

// Status 流程快照，UI / API 通过它观察状态
type Status struct {
	ID          string    `json:"id"`
	Mode        Mode      `json:"mode"`
	State       State     `json:"state"`
	SignerID    string    `json:"signer_id"`
	ReceiverID  string    `json:"receiver_id"`
	Nonce       uint64    `json:"nonce"`
	TxHash      string    `json:"tx_hash,omitempty"`
	RedirectURL string    `json:"redirect_url,omitempty"`
	Attempts    int       `json:"attempts"`
	ErrorCode   int       `json:"error_code,omitempty"`
	Error       string    `json:"error,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
	// Meta 调用方附加的业务标签 (合约、方法、请求 ID)
	Meta map[string]string `json:"meta,omitempty"`

	Err error `json:"-"`
}

// FlowOption 单个流程的选项
type FlowOption func(*Flow)

// WithOnSuccess 成功后、Done 关闭前执行的钩子
func WithOnSuccess(fn func(Status)) FlowOption {
	return func(f *Flow) {
		f.onSuccess = append(f.onSuccess, fn)
	}
}

// WithMeta 附加业务标签，随每次状态快照一起输出
func WithMeta(key, value string) FlowOption {
	return func(f *Flow) {
		if f.meta == nil {
			f.meta = make(map[string]string)
		}
		f.meta[key] = value
	}
}

// Flow 一笔交易从待签名到终态的流程。未签名交易在失败后保留，Retry 复用同一笔交易
type Flow struct {
	id   string
	mode Mode
	tx   near.Transaction
	path bip32.Path
	orch *Orchestrator

	onSuccess []func(Status)
	meta      map[string]string

	mu          sync.Mutex
	state       State
	err         error
	signed      *near.SignedTransaction
	outcome     *rpc.FinalExecutionOutcome
	txHash      string
	redirectURL string
	attempts    int
	updatedAt   time.Time
	cancel      context.CancelFunc
	done        chan struct{}
}

func (f *Flow) ID() string {
	return f.id
}

// Transaction 返回保留的未签名交易
func (f *Flow) Transaction() near.Transaction {
	tx := f.tx
	tx.Actions = append([]near.Action(nil), f.tx.Actions...)
	return tx
}

// Signed 已签名交易，远程流程或尚未签名时为 nil
func (f *Flow) Signed() *near.SignedTransaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signed
}

// Outcome 最近一次广播 / 查询到的执行结果
func (f *Flow) Outcome() *rpc.FinalExecutionOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outcome
}

func (f *Flow) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusLocked()
}

func (f *Flow) statusLocked() Status {
	st := Status{
		ID:          f.id,
		Mode:        f.mode,
		State:       f.state,
		SignerID:    f.tx.SignerID,
		ReceiverID:  f.tx.ReceiverID,
		Nonce:       f.tx.Nonce,
		TxHash:      f.txHash,
		RedirectURL: f.redirectURL,
		Attempts:    f.attempts,
		UpdatedAt:   f.updatedAt,
		Meta:        f.meta,
		Err:         f.err,
	}
	if f.err != nil {
		st.ErrorCode, st.Error = errno.Decode(f.err)
	}
	return st
}

// Done 当前尝试结束 (终态且清理完成) 时关闭；Retry 后返回新的通道
func (f *Flow) Done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

// Wait 等待当前尝试结束
func (f *Flow) Wait(ctx context.Context) (Status, error) {
	select {
	case <-f.Done():
		return f.Status(), nil
	case <-ctx.Done():
		return f.Status(), ctx.Err()
	}
}

// Cancel 只在 AwaitingDevice / Signing 允许。状态立即变为 Failed，设备会话由工作协程关闭
func (f *Flow) Cancel() error {
	f.mu.Lock()
	next, err := Transition(f.state, EventCancel)
	if err != nil {
		f.mu.Unlock()
		return err
	}
	f.state = next
	f.err = errno.ErrCancelled
	f.updatedAt = time.Now()
	cancel := f.cancel
	st := f.statusLocked()
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	f.orch.log.Info("签名流程已取消", zap.String("flow_id", f.id))
	f.orch.observe(st)
	return nil
}

// Retry 从 Failed 重新开始，交易 (nonce / 区块哈希) 不变
func (f *Flow) Retry() error {
	f.mu.Lock()
	select {
	case <-f.done:
	default:
		f.mu.Unlock()
		return errno.ErrInvalidTransition.WithMessage("上一次尝试尚未结束")
	}

	event := EventRetry
	if f.mode == ModeRemote {
		event = EventRedirected
	}
	next, err := Transition(f.state, event)
	if err != nil {
		f.mu.Unlock()
		return err
	}
	f.state = next
	f.err = nil
	f.outcome = nil
	f.attempts++
	f.updatedAt = time.Now()
	f.done = make(chan struct{})
	var workCtx context.Context
	if f.mode == ModeDevice {
		workCtx = f.armLocked()
	}
	st := f.statusLocked()
	f.mu.Unlock()

	f.orch.log.Info("签名流程重试", zap.String("flow_id", f.id), zap.Int("attempt", st.Attempts))
	f.orch.observe(st)

	if workCtx != nil {
		go f.orch.runDevice(workCtx, f)
	}
	return nil
}

// armLocked 为当前尝试创建可取消的上下文，调用方持有 f.mu。
// 状态转换和 cancel 在同一个临界区内设置，Cancel 总能中止即将启动的工作协程
func (f *Flow) armLocked() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	return ctx
}

// apply 执行一次状态转换；转换非法 (例如已被取消) 时返回 false 且不修改任何字段
func (f *Flow) apply(event Event, mutate func()) bool {
	f.mu.Lock()
	next, err := Transition(f.state, event)
	if err != nil {
		f.mu.Unlock()
		f.orch.log.Debug("忽略过期的状态事件", zap.String("flow_id", f.id), zap.String("event", string(event)), zap.Error(err))
		return false
	}
	f.state = next
	f.updatedAt = time.Now()
	if mutate != nil {
		mutate()
	}
	st := f.statusLocked()
	f.mu.Unlock()

	f.orch.observe(st)
	return true
}

func (f *Flow) fail(event Event, err error) {
	f.apply(event, func() { f.err = err })
}

// finish 尝试结束: 成功钩子在 Done 关闭前执行
func (f *Flow) finish() {
	f.mu.Lock()
	if !f.state.Terminal() {
		f.state = StateFailed
		f.err = errno.InternalServerError.WithMessage("签名流程意外退出")
		f.updatedAt = time.Now()
	}
	st := f.statusLocked()
	f.mu.Unlock()

	if st.State == StateSuccess {
		for _, fn := range f.onSuccess {
			fn(st)
		}
	}
	f.orch.terminal(st)

	f.mu.Lock()
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	close(f.done)
	f.mu.Unlock()
}

// deviceError 非错误码类型的设备错误统一归为 DeviceSigningFailed
func deviceError(err error) error {
	var typed errno.Errno
	var wrapped *errno.Error
	if errors.As(err, &typed) || errors.As(err, &wrapped) {
		return err
	}
	return errno.ErrDeviceSigningFailed.Wrap(err)
}
