package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multisig-core/internal/multisig"
	"multisig-core/internal/signing"
	"multisig-core/pkg/errno"
)

func TestRecordFromStatus(t *testing.T) {
	now := time.Now()
	code, msg := errno.Decode(errno.ErrDeviceRejected)
	st := signing.Status{
		ID:         "flow-1",
		Mode:       signing.ModeDevice,
		State:      signing.StateFailed,
		SignerID:   "alice.near",
		ReceiverID: "msig.near",
		Nonce:      42,
		Attempts:   2,
		ErrorCode:  code,
		Error:      msg,
		UpdatedAt:  now,
		Meta: map[string]string{
			multisig.MetaContract:  "msig.near",
			multisig.MetaMethod:    multisig.MethodConfirm,
			multisig.MetaRequestID: "5",
		},
	}

	rec := RecordFromStatus(st)
	assert.Equal(t, "flow-1", rec.FlowID)
	assert.Equal(t, "failed", rec.State)
	assert.Equal(t, "device", rec.Mode)
	assert.Equal(t, uint64(42), rec.Nonce)
	assert.Equal(t, "confirm", rec.Method)
	require.NotNil(t, rec.RequestID)
	assert.Equal(t, uint32(5), *rec.RequestID)
	assert.Equal(t, 30004, rec.ErrorCode)

	ev := OutcomeEvent(st)
	assert.False(t, ev.Succeeded())
	assert.Equal(t, "msig.near", ev.ReceiverID)
	assert.Equal(t, rec.RequestID, ev.RequestID)
	assert.Equal(t, now, ev.At)
}

func TestRequestID_Absent(t *testing.T) {
	assert.Nil(t, requestID(signing.Status{}))
	assert.Nil(t, requestID(signing.Status{Meta: map[string]string{multisig.MetaRequestID: "x"}}))
}
