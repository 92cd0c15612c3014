// Package session 持有当前导入的签名账户。由应用入口创建并显式传给各组件。
package session

import (
	"strings"
	"sync"

	"multisig-core/pkg/near"
)

// WalletKind 账户由哪种钱包后端持有
type WalletKind string

const (
	WalletLedger WalletKind = "ledger"
	WalletLocal  WalletKind = "local"
	WalletRemote WalletKind = "remote"
)

// Account 一个签名身份
type Account struct {
	AccountID  string         `json:"account_id"`
	PublicKey  near.PublicKey `json:"public_key"`
	WalletKind WalletKind     `json:"wallet_kind"`
	// Contracts 该密钥可以操作的多签合约；为空表示账户本身即合约 (成员直接持有合约上的密钥)
	Contracts []string `json:"contracts,omitempty"`
}

// CanSignFor 账户是否持有该合约的可用密钥
func (a Account) CanSignFor(contractID string) bool {
	if len(a.Contracts) == 0 {
		return a.AccountID == contractID
	}
	for _, c := range a.Contracts {
		if strings.EqualFold(c, contractID) {
			return true
		}
	}
	return false
}

// Context 会话上下文
type Context struct {
	mu       sync.RWMutex
	accounts []Account
	active   int
}

func NewContext(accounts ...Account) *Context {
	c := &Context{}
	c.Import(accounts...)
	return c
}

// Import 整体替换账户集合，活跃账户重置为第一个
func (c *Context) Import(accounts ...Account) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts = append([]Account(nil), accounts...)
	c.active = 0
}

func (c *Context) Accounts() []Account {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Account(nil), c.accounts...)
}

// Active 当前活跃账户
func (c *Context) Active() (Account, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.accounts) == 0 {
		return Account{}, false
	}
	return c.accounts[c.active], true
}

// SetActive 切换活跃账户，账户不存在时返回 false
func (c *Context) SetActive(accountID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, a := range c.accounts {
		if a.AccountID == accountID {
			c.active = i
			return true
		}
	}
	return false
}

// UsableKey 为合约挑选签名账户: 优先活跃账户，其次按导入顺序
func (c *Context) UsableKey(contractID string) (Account, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.accounts) == 0 {
		return Account{}, false
	}
	if a := c.accounts[c.active]; a.CanSignFor(contractID) {
		return a, true
	}
	for _, a := range c.accounts {
		if a.CanSignFor(contractID) {
			return a, true
		}
	}
	return Account{}, false
}
