package signing

import (
	"fmt"

	"multisig-core/pkg/errno"
)

// State 签名流程状态
type State string

const (
	StateIdle           State = "idle"
	StateAwaitingDevice State = "awaiting_device"
	StateSigning        State = "signing"
	StateAwaitingRemote State = "awaiting_remote"
	StateBroadcasting   State = "broadcasting"
	StateSuccess        State = "success"
	StateFailed         State = "failed"
)

// Terminal Success 和 Failed；Failed 仍可 Retry
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailed
}

// Cancellable 只有等待设备和设备签名两个阶段可以取消
func (s State) Cancellable() bool {
	return s == StateAwaitingDevice || s == StateSigning
}

// Event 驱动状态变化的事件
type Event string

const (
	EventSignRequested   Event = "sign_requested"
	EventDeviceReady     Event = "device_ready"
	EventSigned          Event = "signed"
	EventDeviceFailed    Event = "device_failed"
	EventCancel          Event = "cancel"
	EventRedirected      Event = "redirected"
	EventRemoteSigned    Event = "remote_signed"
	EventRemoteFailed    Event = "remote_failed"
	EventBroadcastOK     Event = "broadcast_ok"
	EventBroadcastFailed Event = "broadcast_failed"
	EventRetry           Event = "retry"
)

type transitionKey struct {
	from  State
	event Event
}

var transitions = map[transitionKey]State{
	{StateIdle, EventSignRequested}: StateAwaitingDevice,
	{StateIdle, EventRedirected}:    StateAwaitingRemote,

	{StateAwaitingDevice, EventDeviceReady}:  StateSigning,
	{StateAwaitingDevice, EventDeviceFailed}: StateFailed,
	{StateAwaitingDevice, EventCancel}:       StateFailed,

	{StateSigning, EventSigned}:       StateBroadcasting,
	{StateSigning, EventDeviceFailed}: StateFailed,
	{StateSigning, EventCancel}:       StateFailed,

	{StateAwaitingRemote, EventRemoteSigned}: StateBroadcasting,
	{StateAwaitingRemote, EventRemoteFailed}: StateFailed,

	{StateBroadcasting, EventBroadcastOK}:     StateSuccess,
	{StateBroadcasting, EventBroadcastFailed}: StateFailed,

	{StateFailed, EventRetry}:      StateAwaitingDevice,
	{StateFailed, EventRedirected}: StateAwaitingRemote,
}

// Transition 纯函数: 返回新状态，非法转换返回 ErrInvalidTransition
func Transition(from State, event Event) (State, error) {
	next, ok := transitions[transitionKey{from, event}]
	if !ok {
		return from, errno.ErrInvalidTransition.WithMessage(fmt.Sprintf("状态 %s 不接受事件 %s", from, event))
	}
	return next, nil
}
