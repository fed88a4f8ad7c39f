package chat

import (
	"errors"
	"fmt"
)

// ErrorCode 会话服务的错误分类，handler 据此映射 HTTP 状态码。
type ErrorCode string

const (
	ErrorInvalidInput          ErrorCode = "INVALID_INPUT"
	ErrorNotFound              ErrorCode = "NOT_FOUND"
	ErrorVoiceReferenceMissing ErrorCode = "VOICE_REFERENCE_MISSING"
	ErrorLimitExceeded         ErrorCode = "LIMIT_EXCEEDED"
	ErrorProvider              ErrorCode = "PROVIDER_ERROR"
	ErrorInternal              ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("chat: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("chat: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// CodeOf 取出错误码；非 *Error 视为内部错误。
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrorInternal
}
