package errors

import (
	stderrors "errors"
	"fmt"
)

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示示例程序的错误码及默认信息。
type Definition struct {
	Code    string
	Message string
}

// 连接与代理相关错误。
var (
	NotConnected      = Definition{Code: "NOT_CONNECTED", Message: "Not connected to RabbitMQ"}
	BrokerUnavailable = Definition{Code: "BROKER_UNAVAILABLE", Message: "Broker is not reachable"}
)

// 请求参数错误。
var (
	InvalidNumbers = Definition{Code: "INVALID_NUMBERS", Message: "Invalid numbers provided"}
	InvalidRequest = Definition{Code: "INVALID_REQUEST", Message: "Invalid request"}
	TooManyRequests = Definition{Code: "TOO_MANY_REQUESTS", Message: "Too many requests, please retry later"}
)

// 资源不存在。
var (
	UserNotFound = Definition{Code: "USER_NOT_FOUND", Message: "User not found"}
	TaskNotFound = Definition{Code: "TASK_NOT_FOUND", Message: "Task not found"}
	NotFound     = Definition{Code: "NOT_FOUND", Message: "Not found"}
)

var Internal = Definition{Code: "INTERNAL_ERROR", Message: "Internal error"}

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{
	NotConnected.Code:      NotConnected,
	BrokerUnavailable.Code: BrokerUnavailable,
	InvalidNumbers.Code:    InvalidNumbers,
	InvalidRequest.Code:    InvalidRequest,
	TooManyRequests.Code:   TooManyRequests,
	UserNotFound.Code:      UserNotFound,
	TaskNotFound.Code:      TaskNotFound,
	NotFound.Code:          NotFound,
	Internal.Code:          Internal,
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}

// OpError 是 "<Op> error: <cause>" 形式的操作错误
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Wrap 用操作名包装错误，err 为 nil 时返回 nil
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Err: err}
}

// AsDefinition 从错误链中取出 Definition
func AsDefinition(err error) (Definition, bool) {
	var def Definition
	if stderrors.As(err, &def) {
		return def, true
	}
	return Definition{}, false
}
