// Package bootstrap 根据配置组装签名流水线，供 cmd/ 下的服务端和命令行共用。
package bootstrap

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"go.uber.org/zap"

	"multisig-core/internal/multisig"
	"multisig-core/internal/rpc"
	"multisig-core/internal/session"
	"multisig-core/internal/signing"
	"multisig-core/internal/txbuilder"
	"multisig-core/pkg/bip32"
	"multisig-core/pkg/cache"
	"multisig-core/pkg/config"
	"multisig-core/pkg/keystore"
	"multisig-core/pkg/ledger"
	"multisig-core/pkg/logger"
	"multisig-core/pkg/near"
	"multisig-core/pkg/ratelimit"
)

type Options struct {
	Cache     cache.Cache
	Recorders []signing.Recorder
}

// Core 组装好的核心组件
type Core struct {
	Node         *rpc.Client
	Builder      *txbuilder.Builder
	Orchestrator *signing.Orchestrator
	Session      *session.Context
	Ledger       *multisig.Ledger
	Device       *ledger.Device // 非 ledger 钱包时为 nil
	Path         bip32.Path
}

func New(ctx context.Context, cfg *config.Config, opts Options) (*Core, error) {
	path, err := bip32.ParsePath(cfg.Ledger.Path)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.New(cfg.Near.Rate, cfg.Near.MaxTokens)
	node, err := rpc.Dial(ctx, cfg.Near.RpcUrl, limiter)
	if err != nil {
		return nil, err
	}

	core := &Core{Node: node, Builder: txbuilder.New(node), Path: path}
	device, account, err := core.openWallet(ctx, cfg)
	if err != nil {
		node.Close()
		return nil, err
	}

	signOpts := []signing.Option{signing.WithRemote(signing.RemoteConfig{
		WalletURL:   cfg.Wallet.Url,
		CallbackURL: cfg.Wallet.CallbackUrl,
	})}
	for _, r := range opts.Recorders {
		signOpts = append(signOpts, signing.WithRecorder(r))
	}
	core.Orchestrator = signing.New(device, node, signOpts...)
	core.Session = session.NewContext(account)

	msCfg, err := MultisigConfig(cfg, path)
	if err != nil {
		node.Close()
		return nil, err
	}
	var ledgerOpts []multisig.LedgerOption
	if opts.Cache != nil {
		ledgerOpts = append(ledgerOpts, multisig.WithCache(opts.Cache))
	}
	core.Ledger = multisig.New(node, core.Builder, core.Orchestrator, core.Session, msCfg, ledgerOpts...)

	logger.Info("签名流水线就绪",
		zap.String("account", account.AccountID),
		zap.String("wallet_kind", string(account.WalletKind)),
		zap.String("public_key", account.PublicKey.String()))
	return core, nil
}

func (c *Core) Close() {
	c.Node.Close()
}

// MultisigConfig 把人类单位的配置转换为账本配置
func MultisigConfig(cfg *config.Config, path bip32.Path) (multisig.Config, error) {
	requestGas, err := near.ParseTeraGas(cfg.Multisig.RequestGasTera)
	if err != nil {
		return multisig.Config{}, fmt.Errorf("multisig.request_gas_tera: %w", err)
	}
	confirmGas, err := near.ParseTeraGas(cfg.Multisig.ConfirmGasTera)
	if err != nil {
		return multisig.Config{}, fmt.Errorf("multisig.confirm_gas_tera: %w", err)
	}
	return multisig.Config{
		ContractVersion: cfg.Multisig.ContractVersion,
		RequestGas:      requestGas,
		ConfirmGas:      confirmGas,
		LockupSuffix:    cfg.Multisig.LockupSuffix,
		Path:            path,
		CacheTTL:        cfg.Multisig.CacheTTL,
	}, nil
}

// NetworkByte 设备签名的网络标识，取配置的第一个字符
func NetworkByte(cfg *config.Config) byte {
	if cfg.Ledger.NetworkByte == "" {
		return 'W'
	}
	return cfg.Ledger.NetworkByte[0]
}

// NewLedgerDevice 按配置创建硬件设备
func NewLedgerDevice(cfg *config.Config) (*ledger.Device, error) {
	transport, err := ledger.NewTransport(cfg.Ledger.Transport, cfg.Ledger.Addr)
	if err != nil {
		return nil, err
	}
	return ledger.NewDevice(ledger.NewChannel(transport), NetworkByte(cfg)), nil
}

// openWallet 按钱包类型创建签名后端和会话账户
func (c *Core) openWallet(ctx context.Context, cfg *config.Config) (signing.Device, session.Account, error) {
	account := session.Account{
		AccountID:  cfg.Wallet.AccountID,
		WalletKind: session.WalletKind(cfg.Wallet.Kind),
		Contracts:  cfg.Wallet.Contracts,
	}

	switch account.WalletKind {
	case session.WalletLocal:
		key, keyJSON, err := LoadLocalKey(cfg.Wallet.KeystorePath, cfg.Wallet.Password)
		if err != nil {
			return nil, account, err
		}
		if account.AccountID == "" {
			account.AccountID = keyJSON.AccountID
		}
		if account.PublicKey, err = near.PublicKeyFromEd25519(key.Public().(ed25519.PublicKey)); err != nil {
			return nil, account, err
		}
		return signing.LocalDevice{Key: key}, account, nil

	case session.WalletRemote:
		pk, err := near.ParsePublicKey(cfg.Wallet.PublicKey)
		if err != nil {
			return nil, account, fmt.Errorf("remote 钱包需要配置 wallet.public_key: %w", err)
		}
		account.PublicKey = pk
		// 远程钱包没有本地设备，只能走重定向流程
		return nil, account, nil

	case session.WalletLedger, "":
		account.WalletKind = session.WalletLedger
		dev, err := NewLedgerDevice(cfg)
		if err != nil {
			return nil, account, err
		}
		c.Device = dev

		if cfg.Wallet.PublicKey != "" {
			if account.PublicKey, err = near.ParsePublicKey(cfg.Wallet.PublicKey); err != nil {
				return nil, account, err
			}
		} else {
			raw, err := dev.PublicKey(ctx, c.Path)
			if err != nil {
				return nil, account, fmt.Errorf("读取设备公钥失败 (可配置 wallet.public_key 跳过): %w", err)
			}
			if account.PublicKey, err = near.PublicKeyFromEd25519(raw); err != nil {
				return nil, account, err
			}
		}
		return signing.LedgerDevice{Device: dev}, account, nil

	default:
		return nil, account, fmt.Errorf("未知的钱包类型: %s", cfg.Wallet.Kind)
	}
}

// LoadLocalKey 读取并解密 Keystore
func LoadLocalKey(path, password string) (ed25519.PrivateKey, *keystore.EncryptedKeyJSON, error) {
	if password == "" {
		return nil, nil, fmt.Errorf("加载 Keystore 失败: 未提供密码 (环境变量 WALLET_PASSWORD)")
	}
	keyJSON, err := keystore.LoadFromFile(path)
	if err != nil {
		return nil, nil, err
	}
	key, err := keystore.DecryptKey(keyJSON, password)
	if err != nil {
		return nil, nil, err
	}
	return key, keyJSON, nil
}
