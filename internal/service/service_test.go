package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multisig-core/internal/event"
	"multisig-core/internal/model"
	"multisig-core/internal/service/mq"
	"multisig-core/pkg/utils/lock"
)

type memOutbox struct {
	mu       sync.Mutex
	messages []model.OutboxMessage
	sent     []uint64
}

func (o *memOutbox) Pending(ctx context.Context, limit int) ([]model.OutboxMessage, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []model.OutboxMessage
	for _, m := range o.messages {
		if m.Status == model.OutboxPending && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

func (o *memOutbox) MarkSent(ctx context.Context, id uint64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range o.messages {
		if o.messages[i].ID == id {
			o.messages[i].Status = model.OutboxSent
		}
	}
	o.sent = append(o.sent, id)
	return nil
}

type recordingProducer struct {
	failTopic string
	published []string
}

func (p *recordingProducer) Publish(ctx context.Context, topic, key string, payload []byte) error {
	if topic == p.failTopic {
		return errors.New("broker down")
	}
	p.published = append(p.published, topic+"/"+key)
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func TestRelayService_ProcessPending(t *testing.T) {
	outbox := &memOutbox{messages: []model.OutboxMessage{
		{ID: 1, Topic: event.TopicSigningOutcome, Key: "alice.near", Status: model.OutboxPending},
		{ID: 2, Topic: "broken", Key: "bob.near", Status: model.OutboxPending},
		{ID: 3, Topic: event.TopicSigningOutcome, Key: "carol.near", Status: model.OutboxSent},
	}}
	producer := &recordingProducer{failTopic: "broken"}
	relay := NewRelayService(outbox, producer)

	assert.Equal(t, 1, relay.ProcessPending(context.Background()))
	assert.Equal(t, []string{event.TopicSigningOutcome + "/alice.near"}, producer.published)
	assert.Equal(t, []uint64{1}, outbox.sent, "发送失败的消息保持 PENDING")

	// 第二轮只剩失败的那条
	assert.Equal(t, 0, relay.ProcessPending(context.Background()))
}

type fakeLedger struct {
	mu          sync.Mutex
	pending     map[string][]uint32
	listed      []string
	invalidated []string
}

func (l *fakeLedger) ListPendingRequests(ctx context.Context, contractID string) ([]uint32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listed = append(l.listed, contractID)
	ids, ok := l.pending[contractID]
	if !ok {
		return nil, errors.New("unknown contract")
	}
	return ids, nil
}

func (l *fakeLedger) Invalidate(ctx context.Context, contractID string, requestIDs ...uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := contractID
	for _, id := range requestIDs {
		key += "#" + string(rune('0'+id))
	}
	l.invalidated = append(l.invalidated, key)
}

type countingPruner struct{ calls int }

func (p *countingPruner) Prune(olderThan time.Duration) int {
	p.calls++
	return 0
}

func TestWatcher_Poll(t *testing.T) {
	ledger := &fakeLedger{pending: map[string][]uint32{"a.near": {1, 2}}}
	pruner := &countingPruner{}
	locker := lock.NewLocalLock()
	w := NewWatcher("@every 1m", []string{"a.near", "missing.near"}, ledger, pruner, locker)

	ctx := context.Background()
	require.True(t, w.Poll(ctx))
	assert.Equal(t, []string{"a.near", "missing.near"}, ledger.listed, "单个合约失败不影响其它合约")
	assert.Equal(t, []string{"a.near", "missing.near"}, ledger.invalidated)
	assert.Equal(t, 1, pruner.calls)

	// 其它实例持有锁时跳过
	ok, err := locker.Acquire(ctx, watcherLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, w.Poll(ctx))
	assert.Equal(t, 1, pruner.calls)
}

func TestWatcher_StartRejectsBadSpec(t *testing.T) {
	w := NewWatcher("not a spec", nil, &fakeLedger{}, nil, lock.NewLocalLock())
	assert.Error(t, w.Start())
}

func TestOutcomeSubscriber_Handle(t *testing.T) {
	ledger := &fakeLedger{}
	sub := NewOutcomeSubscriber(nil, ledger)
	ctx := context.Background()

	id := uint32(4)
	payload, _ := json.Marshal(event.SigningOutcomeEvent{
		FlowID: "f", State: "success", ReceiverID: "msig.near", Method: "confirm", RequestID: &id,
	})
	require.NoError(t, sub.Handle(ctx, &mq.Message{Payload: payload}))

	plain, _ := json.Marshal(event.SigningOutcomeEvent{FlowID: "g", State: "success", ReceiverID: "bob.near"})
	require.NoError(t, sub.Handle(ctx, &mq.Message{Payload: plain}))

	require.NoError(t, sub.Handle(ctx, &mq.Message{Payload: []byte("{")}), "格式错误的消息直接丢弃")

	assert.Equal(t, []string{"msig.near#4"}, ledger.invalidated)
}
