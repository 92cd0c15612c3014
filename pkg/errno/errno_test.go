package errno

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrnoIs(t *testing.T) {
	err := ErrDeviceRejected.WithMessage("用户在设备上拒绝")
	assert.True(t, errors.Is(err, ErrDeviceRejected))
	assert.False(t, errors.Is(err, ErrProtocol))

	// 多层包装后仍可按错误码匹配
	wrapped := fmt.Errorf("sign: %w", ErrDeviceSigningFailed.Wrap(err))
	assert.True(t, errors.Is(wrapped, ErrDeviceSigningFailed))
	assert.True(t, errors.Is(wrapped, ErrDeviceRejected))
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"nil", nil, 0},
		{"plain errno", ErrNetwork, 30201},
		{"wrapped", ErrAccessKeyNotFound.Wrap(errors.New("unknown key")), 30301},
		{"foreign", errors.New("boom"), 10001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := Decode(tt.err)
			assert.Equal(t, tt.code, code)
		})
	}
}
