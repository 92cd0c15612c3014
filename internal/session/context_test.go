package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_ImportReplacesWholesale(t *testing.T) {
	c := NewContext(
		Account{AccountID: "alice.near", WalletKind: WalletLedger},
		Account{AccountID: "bob.near", WalletKind: WalletLocal},
	)
	require.True(t, c.SetActive("bob.near"))

	c.Import(Account{AccountID: "carol.near", WalletKind: WalletRemote})

	assert.Len(t, c.Accounts(), 1)
	active, ok := c.Active()
	require.True(t, ok)
	assert.Equal(t, "carol.near", active.AccountID)
	assert.False(t, c.SetActive("bob.near"), "旧账户已被替换")
}

func TestContext_UsableKey(t *testing.T) {
	c := NewContext(
		Account{AccountID: "alice.near", Contracts: []string{"team.near"}},
		Account{AccountID: "ops.near"},
		Account{AccountID: "bob.near", Contracts: []string{"team.near", "ops.near"}},
	)

	a, ok := c.UsableKey("team.near")
	require.True(t, ok)
	assert.Equal(t, "alice.near", a.AccountID)

	require.True(t, c.SetActive("bob.near"))
	a, ok = c.UsableKey("team.near")
	require.True(t, ok)
	assert.Equal(t, "bob.near", a.AccountID, "优先使用活跃账户")

	a, ok = c.UsableKey("ops.near")
	require.True(t, ok)
	assert.Equal(t, "bob.near", a.AccountID)

	_, ok = c.UsableKey("other.near")
	assert.False(t, ok)

	_, ok = NewContext().UsableKey("team.near")
	assert.False(t, ok)
}
