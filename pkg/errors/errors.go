package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// 业务错误码。取值固定，处理器按码映射 HTTP 状态，任务失败时按码归类错误种类。
const (
	CodeInternal          = 50000
	CodeInvalidRequest    = 40001
	CodeInvalidReorder    = 40002
	CodeInvalidTrim       = 40003
	CodeInvalidSplitPoint = 40004
	CodeUnknownProfile    = 40401
	CodeMissingSource     = 40402
	CodeNotFound          = 40404
	CodeSynthesisFailed   = 50201
	CodeModelUnavailable  = 50301
)

// Error represents a custom error with code and stack trace
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"` // 原始错误，不序列化
	Stack   string `json:"stack,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

// Unwrap implements the errors.Wrapper interface
func (e *Error) Unwrap() error {
	return e.Err
}

// Is 同码错误视为同类，供 errors.Is 使用
func (e *Error) Is(target error) bool {
	var t *Error
	if stderrors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithCode creates a new error with code
func WithCode(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Stack:   captureStack(),
	}
}

// WithCodef creates a new error with code and formatted message
func WithCodef(code int, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(),
	}
}

// Wrap wraps an error with code and message
func Wrap(err error, code int, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
		Stack:   captureStack(),
	}
}

// Wrapf wraps an error with code and formatted message
func Wrapf(err error, code int, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
		Stack:   captureStack(),
	}
}

// GetCode returns the error code
func GetCode(err error) int {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// GetMessage returns the error message
func GetMessage(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// GetStack returns the error stack trace
func GetStack(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Stack
	}
	return ""
}

// Kind 返回错误种类的稳定标识，用于任务失败上报
func Kind(err error) string {
	switch GetCode(err) {
	case CodeInvalidRequest:
		return "invalid_request"
	case CodeInvalidReorder:
		return "invalid_reorder"
	case CodeInvalidTrim:
		return "invalid_trim"
	case CodeInvalidSplitPoint:
		return "invalid_split_point"
	case CodeUnknownProfile:
		return "unknown_profile"
	case CodeMissingSource:
		return "missing_source"
	case CodeNotFound:
		return "not_found"
	case CodeSynthesisFailed:
		return "synthesis_failed"
	case CodeModelUnavailable:
		return "model_unavailable"
	default:
		return "internal"
	}
}

// HTTPStatus 业务错误码到 HTTP 状态码的映射
func HTTPStatus(code int) int {
	switch code {
	case 0:
		return http.StatusOK
	case CodeInvalidRequest, CodeInvalidReorder, CodeInvalidTrim, CodeInvalidSplitPoint:
		return http.StatusBadRequest
	case CodeUnknownProfile, CodeMissingSource, CodeNotFound:
		return http.StatusNotFound
	case CodeSynthesisFailed:
		return http.StatusBadGateway
	case CodeModelUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// captureStack captures the current stack trace
func captureStack() string {
	buf := make([]byte, 1024)
	n := runtime.Stack(buf, false)
	stack := string(buf[:n])

	// 移除顶部几行（captureStack 和构造函数本身的调用帧）
	lines := strings.Split(stack, "\n")
	if len(lines) > 6 {
		stack = strings.Join(lines[6:], "\n")
	}
	return strings.TrimSpace(stack)
}

// Format implements fmt.Formatter
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "%s", e.Error())
			if e.Stack != "" {
				fmt.Fprintf(s, "\n%s", e.Stack)
			}
			return
		}
		fallthrough
	case 's':
		fmt.Fprintf(s, "%s", e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
