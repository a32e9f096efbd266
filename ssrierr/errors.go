// Package ssrierr defines the five error kinds that surface at the JSON-RPC boundary and
// their numeric codes, plus the conversion from an internal error chain into one of them.
package ssrierr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is a JSON-RPC error object code.
type Code int

// The five RPC-facing error kinds, bit-exact per the ABI.
const (
	CodeJSONRPCRequest Code = 1000
	CodeEncoding       Code = 1001
	CodeInvalidRequest Code = 1002
	CodeScript         Code = 1003
	CodeVM             Code = 1004
)

// Error is a JSON-RPC error object: a numeric Code and a Message. JsonRpcRequestError
// always carries an empty Message, matching the ABI's "don't leak chain internals" rule.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// JSONRPCRequest wraps any upstream chain call failure. Its message is always empty.
func JSONRPCRequest() *Error {
	return &Error{Code: CodeJSONRPCRequest}
}

// Encoding wraps a malformed hex input from the client.
func Encoding(message string) *Error {
	return &Error{Code: CodeEncoding, Message: message}
}

// InvalidRequest wraps a missing cell or missing cell data.
func InvalidRequest(message string) *Error {
	return &Error{Code: CodeInvalidRequest, Message: message}
}

// Script wraps a nonzero guest exit code.
func Script(exitCode int8) *Error {
	return &Error{Code: CodeScript, Message: fmt.Sprintf("Script returns %d", exitCode)}
}

// VM wraps a fatal VM trap: bad memory access, unhandled syscall, a chain error raised
// inside a syscall, or a program load failure.
func VM(message string) *Error {
	return &Error{Code: CodeVM, Message: message}
}

// As recovers an *Error from err's cause chain, if any syscall/router code already
// produced one.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
