package errno

import "errors"

// Errno defines the error code logic
type Errno struct {
	Code    int
	Message string
}

func (e Errno) Error() string {
	return e.Message
}

// Is 按错误码匹配，WithMessage 生成的变体仍然等于原始错误
func (e Errno) Is(target error) bool {
	var t Errno
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// WithMessage 返回同一错误码但消息不同的副本
func (e Errno) WithMessage(msg string) Errno {
	return Errno{Code: e.Code, Message: msg}
}

// Wrap 把底层错误挂在错误码下面，errors.Is 同时匹配两者
func (e Errno) Wrap(cause error) error {
	if cause == nil {
		return e
	}
	return &Error{Errno: e, Cause: cause}
}

// Error 是携带底层原因的 Errno
type Error struct {
	Errno
	Cause error
}

func (e *Error) Error() string {
	return e.Message + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	return e.Errno.Is(target)
}

// Decode tries to convert an error to Errno
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}

	var wrapped *Error
	if errors.As(err, &wrapped) {
		return wrapped.Code, wrapped.Error()
	}
	var typed Errno
	if errors.As(err, &typed) {
		return typed.Code, typed.Message
	}
	return InternalServerError.Code, err.Error()
}

// Common Errors
var (
	OK                  = Errno{Code: 0, Message: "Success"}
	InternalServerError = Errno{Code: 10001, Message: "Internal server error"}
	ErrBind             = Errno{Code: 10002, Message: "Error occurred while binding the request body to the struct"}
	ErrDatabase         = Errno{Code: 10004, Message: "Database error"}
)

// Device Errors (30000+)
var (
	ErrDeviceNotFound      = Errno{Code: 30001, Message: "Signing device not found"}
	ErrDeviceBusy          = Errno{Code: 30002, Message: "Signing device session already open"}
	ErrUnsupportedDevice   = Errno{Code: 30003, Message: "Unsupported device firmware version"}
	ErrDeviceRejected      = Errno{Code: 30004, Message: "Device rejected the operation"}
	ErrDeviceSigningFailed = Errno{Code: 30005, Message: "Device signing failed"}
	ErrProtocol            = Errno{Code: 30101, Message: "Malformed device response"}
)

// Network / Builder Errors
var (
	ErrNetwork           = Errno{Code: 30201, Message: "RPC call failed"}
	ErrTransactionFailed = Errno{Code: 30202, Message: "Transaction execution failed"}
	ErrAccessKeyNotFound = Errno{Code: 30301, Message: "Access key not found"}
	ErrInvalidAmount     = Errno{Code: 30302, Message: "Invalid amount"}
	ErrInvalidAction     = Errno{Code: 30303, Message: "Invalid action"}
)

// Orchestration / Multisig Errors
var (
	ErrNoUsableKey       = Errno{Code: 30401, Message: "No usable signing key for contract"}
	ErrRequestNotFound   = Errno{Code: 30402, Message: "Multisig request not found"}
	ErrCancelled         = Errno{Code: 30501, Message: "Signing cancelled"}
	ErrInvalidTransition = Errno{Code: 30502, Message: "Invalid signing state transition"}
	ErrRemoteRejected    = Errno{Code: 30503, Message: "Remote wallet rejected the transaction"}
	ErrFlowNotFound      = Errno{Code: 30504, Message: "Signing flow not found"}
)
