package multisig

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multisig-core/pkg/errno"
	"multisig-core/pkg/near"
)

func TestEncodeAction_WireShape(t *testing.T) {
	pk, err := near.ParsePublicKey("ed25519:6E8sCci9badyRkXb3JoRpBj5p8C6Tw41ELDZoiihKEtp")
	require.NoError(t, err)

	tests := []struct {
		name   string
		action near.Action
		want   string
	}{
		{"transfer", near.Transfer{Deposit: big.NewInt(1000)}, `{"type":"Transfer","amount":"1000"}`},
		{"zero transfer", near.Transfer{}, `{"type":"Transfer","amount":"0"}`},
		{"create account", near.CreateAccount{}, `{"type":"CreateAccount"}`},
		{"num confirmations", near.SetNumConfirmations{NumConfirmations: 3}, `{"type":"SetNumConfirmations","num_confirmations":3}`},
		{"requests limit", near.SetActiveRequestsLimit{ActiveRequestsLimit: 0}, `{"type":"SetActiveRequestsLimit","active_requests_limit":0}`},
		{"delete key", near.DeleteKey{PublicKey: pk}, `{"type":"DeleteKey","public_key":"` + pk.String() + `"}`},
		{"delete member", near.DeleteMember{AccountID: "bob.near"}, `{"type":"DeleteMember","member":{"account_id":"bob.near"}}`},
		{
			"limited key",
			near.AddKey{PublicKey: pk, Permission: &near.FunctionCallPermission{ReceiverID: "app.near"}},
			`{"type":"AddKey","public_key":"` + pk.String() + `","permission":{"allowance":null,"receiver_id":"app.near","method_names":[]}}`,
		},
		{
			"function call",
			near.FunctionCall{MethodName: "m", Args: []byte(`{}`), Gas: 30_000_000_000_000, Deposit: big.NewInt(0)},
			`{"type":"FunctionCall","method_name":"m","args":"e30=","deposit":"0","gas":"30000000000000"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := EncodeAction(tt.action)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(raw))

			back, err := DecodeAction(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.action.Kind(), back.Kind())
		})
	}
}

func TestEncodeAction_Invalid(t *testing.T) {
	_, err := EncodeAction(near.SetNumConfirmations{})
	assert.ErrorIs(t, err, errno.ErrInvalidAction)

	_, err = EncodeAction(near.DeleteMember{})
	assert.ErrorIs(t, err, errno.ErrInvalidAction)

	_, err = EncodeAction(nil)
	assert.ErrorIs(t, err, errno.ErrInvalidAction)
}

func TestDecodeAction_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"unknown type", `{"type":"Stake"}`, errno.ErrInvalidAction},
		{"negative amount", `{"type":"Transfer","amount":"-1"}`, errno.ErrInvalidAmount},
		{"bad gas", `{"type":"FunctionCall","method_name":"m","args":"","gas":"1.5"}`, errno.ErrInvalidAmount},
		{"missing threshold", `{"type":"SetNumConfirmations"}`, errno.ErrInvalidAction},
		{"not json", `[`, errno.ErrInvalidAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeAction(json.RawMessage(tt.raw))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestConfirmationSet(t *testing.T) {
	var s ConfirmationSet
	assert.True(t, s.Add("bob.near"))
	assert.True(t, s.Add("alice.near"))
	assert.False(t, s.Add("bob.near"), "重复确认不改变集合")
	assert.Equal(t, 2, s.Len())

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `["alice.near","bob.near"]`, string(raw))

	var back ConfirmationSet
	require.NoError(t, json.Unmarshal([]byte(`["x","x","y"]`), &back))
	assert.Equal(t, 2, back.Len())

	u := s.Union(back)
	assert.Equal(t, 4, u.Len())
	assert.Equal(t, 2, s.Len())
}

func TestRequestJSON(t *testing.T) {
	req := &Request{
		ContractID:            "msig.near",
		RequestID:             3,
		ReceiverID:            "msig.near",
		Actions:               []near.Action{near.SetNumConfirmations{NumConfirmations: 2}},
		Confirmations:         NewConfirmationSet("a"),
		RequiredConfirmations: 2,
	}
	raw, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"contract_id":"msig.near","request_id":3,"receiver_id":"msig.near",
		"actions":[{"type":"SetNumConfirmations","num_confirmations":2}],
		"confirmations":["a"],"required_confirmations":2
	}`, string(raw))
}
