// Package rpc 是区块链节点的 JSON-RPC 客户端，所有出站调用都先经过限流器。
package rpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"multisig-core/pkg/errno"
	"multisig-core/pkg/logger"
	"multisig-core/pkg/near"
	"multisig-core/pkg/ratelimit"
)

// ErrAccountNotFound 查询的账户不存在
var ErrAccountNotFound = errors.New("account does not exist")

const finality = "final"

// Client 节点客户端
type Client struct {
	rpc     *gethrpc.Client
	limiter *ratelimit.Limiter
	log     *zap.Logger
}

// Dial 连接节点 RPC
func Dial(ctx context.Context, url string, limiter *ratelimit.Limiter) (*Client, error) {
	c, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, errno.ErrNetwork.Wrap(err)
	}
	return NewClient(c, limiter), nil
}

func NewClient(c *gethrpc.Client, limiter *ratelimit.Limiter) *Client {
	return &Client{rpc: c, limiter: limiter, log: logger.Named("rpc")}
}

func (c *Client) Close() {
	c.rpc.Close()
}

// call 先拿令牌再发请求；限流器不重试失败的调用
func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	if err := c.limiter.Acquire(ctx); err != nil {
		return err
	}
	if err := c.rpc.CallContext(ctx, result, method, args...); err != nil {
		c.log.Debug("RPC 调用失败", zap.String("method", method), zap.Error(err))
		return err
	}
	return nil
}

type queryRequest struct {
	RequestType string `json:"request_type"`
	Finality    string `json:"finality"`
	AccountID   string `json:"account_id"`
	PublicKey   string `json:"public_key,omitempty"`
	MethodName  string `json:"method_name,omitempty"`
	ArgsBase64  string `json:"args_base64,omitempty"`
}

// ViewAccessKey 返回 (nonce, block_hash)；密钥不存在时返回 ErrAccessKeyNotFound
func (c *Client) ViewAccessKey(ctx context.Context, accountID string, pk near.PublicKey) (*AccessKeyView, error) {
	var view AccessKeyView
	err := c.call(ctx, &view, "query", queryRequest{
		RequestType: "view_access_key",
		Finality:    finality,
		AccountID:   accountID,
		PublicKey:   pk.String(),
	})
	if err != nil {
		if isUnknown(err) {
			return nil, errno.ErrAccessKeyNotFound.Wrap(err)
		}
		return nil, classify(err)
	}
	if view.Error != "" {
		return nil, errno.ErrAccessKeyNotFound.WithMessage(view.Error)
	}
	return &view, nil
}

// ViewAccount 账户不存在时返回 ErrAccountNotFound
func (c *Client) ViewAccount(ctx context.Context, accountID string) (*AccountView, error) {
	var view AccountView
	err := c.call(ctx, &view, "query", queryRequest{
		RequestType: "view_account",
		Finality:    finality,
		AccountID:   accountID,
	})
	if err != nil {
		if isUnknown(err) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
		}
		return nil, classify(err)
	}
	if view.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, view.Error)
	}
	return &view, nil
}

// CallFunction 合约只读调用；args 序列化为 JSON 后 base64，结果 JSON 解码进 out
func (c *Client) CallFunction(ctx context.Context, contractID, method string, args any, out any) error {
	rawArgs, err := json.Marshal(args)
	if err != nil {
		return err
	}

	var res CallResult
	err = c.call(ctx, &res, "query", queryRequest{
		RequestType: "call_function",
		Finality:    finality,
		AccountID:   contractID,
		MethodName:  method,
		ArgsBase64:  base64.StdEncoding.EncodeToString(rawArgs),
	})
	if err != nil {
		return classify(err)
	}
	if res.Error != "" {
		return errno.ErrNetwork.WithMessage(fmt.Sprintf("%s.%s: %s", contractID, method, res.Error))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(res.Bytes(), out); err != nil {
		return fmt.Errorf("解析 %s.%s 返回值失败: %w", contractID, method, err)
	}
	return nil
}

// BroadcastTxCommit 广播并等待执行结果。节点拒绝交易 (如 nonce 过期) 返回 ErrTransactionFailed
func (c *Client) BroadcastTxCommit(ctx context.Context, signed *near.SignedTransaction) (*FinalExecutionOutcome, error) {
	raw, err := signed.Serialize()
	if err != nil {
		return nil, err
	}
	var outcome FinalExecutionOutcome
	if err := c.call(ctx, &outcome, "broadcast_tx_commit", base64.StdEncoding.EncodeToString(raw)); err != nil {
		var rpcErr gethrpc.Error
		if errors.As(err, &rpcErr) {
			return nil, errno.ErrTransactionFailed.Wrap(err)
		}
		return nil, classify(err)
	}
	return &outcome, nil
}

// TxStatus 按哈希查询交易结果，远程钱包回调后使用
func (c *Client) TxStatus(ctx context.Context, txHash, senderID string) (*FinalExecutionOutcome, error) {
	var outcome FinalExecutionOutcome
	if err := c.call(ctx, &outcome, "tx", txHash, senderID); err != nil {
		return nil, classify(err)
	}
	return &outcome, nil
}

// classify 把传输层 / 节点错误统一归类为 ErrNetwork，ctx 取消原样返回
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errno.ErrNetwork.Wrap(err)
}

// isUnknown 识别 "账户/密钥不存在" 类错误。新版节点在 data 里给出原因，旧版只在 message 里
func isUnknown(err error) bool {
	text := strings.ToLower(err.Error())
	var dataErr gethrpc.DataError
	if errors.As(err, &dataErr) {
		if data, err := json.Marshal(dataErr.ErrorData()); err == nil {
			text += " " + strings.ToLower(string(data))
		}
	}
	for _, marker := range []string{"unknown_access_key", "unknown_account", "does not exist", "has never been observed"} {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
