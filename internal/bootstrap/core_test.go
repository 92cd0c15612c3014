package bootstrap

import (
	"context"
	"crypto/ed25519"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multisig-core/internal/session"
	"multisig-core/pkg/config"
	"multisig-core/pkg/keystore"
	"multisig-core/pkg/near"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Near.RpcUrl = "http://127.0.0.1:1"
	cfg.Near.Rate = 10
	cfg.Near.MaxTokens = 10
	cfg.Ledger.Path = "44'/397'/0'/0'/1'"
	cfg.Wallet.Url = "https://wallet.example"
	cfg.Wallet.CallbackUrl = "http://localhost/api/v1/sign/callback"
	cfg.Multisig.ContractVersion = "v2"
	cfg.Multisig.RequestGasTera = "100"
	cfg.Multisig.ConfirmGasTera = "250"
	cfg.Multisig.CacheTTL = 4 * time.Second
	return cfg
}

func TestNew_LocalWallet(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	keyJSON, err := keystore.EncryptKey("alice.near", priv, "pw", keystore.LightScrypt)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "keystore.json")
	require.NoError(t, keyJSON.SaveToFile(path))

	cfg := testConfig(t)
	cfg.Wallet.Kind = "local"
	cfg.Wallet.KeystorePath = path
	cfg.Wallet.Password = "pw"
	cfg.Wallet.Contracts = []string{"msig.near"}

	core, err := New(context.Background(), cfg, Options{})
	require.NoError(t, err)
	defer core.Close()

	acc, ok := core.Session.UsableKey("msig.near")
	require.True(t, ok)
	assert.Equal(t, "alice.near", acc.AccountID)
	assert.Equal(t, session.WalletLocal, acc.WalletKind)
	want, _ := near.PublicKeyFromEd25519(pub)
	assert.Equal(t, want, acc.PublicKey)
	assert.Nil(t, core.Device)
}

func testPublicKey(t *testing.T) string {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	pk, err := near.PublicKeyFromEd25519(pub)
	require.NoError(t, err)
	return pk.String()
}

func TestNew_RemoteWallet(t *testing.T) {
	cfg := testConfig(t)
	cfg.Wallet.Kind = "remote"
	cfg.Wallet.AccountID = "bob.near"

	_, err := New(context.Background(), cfg, Options{})
	assert.Error(t, err, "缺少公钥")

	cfg.Wallet.PublicKey = testPublicKey(t)
	core, err := New(context.Background(), cfg, Options{})
	require.NoError(t, err)
	defer core.Close()
	_, ok := core.Session.UsableKey("bob.near")
	assert.True(t, ok)
}

func TestNew_LedgerWithConfiguredKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Wallet.AccountID = "msig.near"
	cfg.Wallet.PublicKey = testPublicKey(t)
	cfg.Ledger.Transport = "ws"
	cfg.Ledger.Addr = "ws://127.0.0.1:1/apdu"

	core, err := New(context.Background(), cfg, Options{})
	require.NoError(t, err)
	defer core.Close()
	assert.NotNil(t, core.Device)
	acc, _ := core.Session.Active()
	assert.Equal(t, session.WalletLedger, acc.WalletKind)
}

func TestMultisigConfig(t *testing.T) {
	cfg := testConfig(t)
	ms, err := MultisigConfig(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000_000_000_000), ms.RequestGas)
	assert.Equal(t, uint64(250_000_000_000_000), ms.ConfirmGas)
	assert.Equal(t, 4*time.Second, ms.CacheTTL)

	cfg.Multisig.ConfirmGasTera = "abc"
	_, err = MultisigConfig(cfg, nil)
	assert.Error(t, err)
}

func TestNetworkByte(t *testing.T) {
	cfg := &config.Config{}
	assert.Equal(t, byte('W'), NetworkByte(cfg))
	cfg.Ledger.NetworkByte = "T"
	assert.Equal(t, byte('T'), NetworkByte(cfg))
}

func TestLoadLocalKey_RequiresPassword(t *testing.T) {
	_, _, err := LoadLocalKey("missing.json", "")
	assert.Error(t, err)
}
