package validator

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAccountID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"alice.near", true},
		{"msig-1.testnet", true},
		{"a_b", true},
		{"a", false},
		{"Alice.near", false},
		{".near", false},
		{"alice..near", false},
		{"alice.", false},
		{"alice near", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsAccountID(tt.id), tt.id)
	}
}

func TestGetErrorMsg(t *testing.T) {
	v := validator.New()
	require.NoError(t, Register(v))

	type req struct {
		Contract  string `validate:"required,near_account"`
		PublicKey string `validate:"near_pubkey"`
	}
	err := v.Struct(req{Contract: "", PublicKey: "nope"})
	require.Error(t, err)
	msg := GetErrorMsg(err)
	assert.Contains(t, msg, "Contract 不能为空")
	assert.Contains(t, msg, "PublicKey 不是合法的公钥")

	assert.Equal(t, "请求参数错误", GetErrorMsg(assert.AnError))
}
