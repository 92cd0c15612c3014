// Package txbuilder 组装未签名交易: 查询访问密钥得到 nonce 和最近区块哈希，再规范化动作列表。
// 构造器不签名也不广播。
package txbuilder

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"multisig-core/internal/rpc"
	"multisig-core/pkg/errno"
	"multisig-core/pkg/logger"
	"multisig-core/pkg/near"
)

// AccessKeyViewer 构造器唯一依赖的节点查询
type AccessKeyViewer interface {
	ViewAccessKey(ctx context.Context, accountID string, pk near.PublicKey) (*rpc.AccessKeyView, error)
}

type Builder struct {
	node AccessKeyViewer
	log  *zap.Logger
}

func New(node AccessKeyViewer) *Builder {
	return &Builder{node: node, log: logger.Named("txbuilder")}
}

// Build 用人类单位的动作描述构造交易
func (b *Builder) Build(ctx context.Context, senderID string, pk near.PublicKey, receiverID string, specs ...ActionSpec) (*near.Transaction, error) {
	actions, err := NormalizeAll(specs)
	if err != nil {
		return nil, err
	}
	return b.BuildActions(ctx, senderID, pk, receiverID, actions)
}

// BuildActions 动作已经是链上单位。
// 相同的访问密钥快照产生相同的交易；同一账户的并发构造可能拿到相同 nonce，由节点拒绝过期的那笔
func (b *Builder) BuildActions(ctx context.Context, senderID string, pk near.PublicKey, receiverID string, actions []near.Action) (*near.Transaction, error) {
	// 1. 校验动作，输入错误不产生任何 RPC 调用
	if len(actions) == 0 {
		return nil, errno.ErrInvalidAction.WithMessage("动作列表为空")
	}
	for i, a := range actions {
		if a == nil || !near.IsNative(a) {
			return nil, errno.ErrInvalidAction.WithMessage(fmt.Sprintf("动作 #%d (%T) 不能直接上链", i, a))
		}
	}

	// 2. 查询访问密钥 (经限流)
	view, err := b.node.ViewAccessKey(ctx, senderID, pk)
	if err != nil {
		b.log.Warn("查询访问密钥失败", zap.String("account", senderID), zap.Error(err))
		return nil, err
	}

	// 3. 解码区块哈希
	blockHash, err := near.ParseCryptoHash(view.BlockHash)
	if err != nil {
		return nil, errno.ErrInvalidAction.WithMessage("节点返回的区块哈希无效: " + err.Error())
	}

	tx := &near.Transaction{
		SignerID:   senderID,
		PublicKey:  pk,
		Nonce:      view.Nonce + 1,
		ReceiverID: receiverID,
		BlockHash:  blockHash,
		Actions:    append([]near.Action(nil), actions...),
	}
	b.log.Debug("交易已构造",
		zap.String("signer", senderID),
		zap.String("receiver", receiverID),
		zap.Uint64("nonce", tx.Nonce),
		zap.Int("actions", len(actions)))
	return tx, nil
}
