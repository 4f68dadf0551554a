// Package rpc defines the request and reply messages exchanged with motor
// server clients and an in-process request channel.
//
// Messages are transport agnostic; package wsrpc carries them as JSON over
// websocket.
package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/arloliu/go-motor/motor"
)

// Code classifies a failed request.
type Code string

const (
	CodeOutOfRange    Code = "out_of_range"
	CodeInvalidAxis   Code = "invalid_axis"
	CodeUnsupported   Code = "unsupported"
	CodeSerialTimeout Code = "serial_timeout"
	CodeCommunication Code = "communication"
	CodeTerminated    Code = "terminated"
	CodeInternal      Code = "internal"
	CodeUnknownMethod Code = "unknown_method"
	CodeBadParams     Code = "bad_params"
)

// Request is a remote call. Params is a JSON object whose shape depends on
// Method.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Reply answers the Request with the same ID. Exactly one of Result and
// Error is meaningful.
type Reply struct {
	ID     string `json:"id"`
	Result any    `json:"result"`
	Error  *Error `json:"error,omitempty"`
}

// Error is the error member of a Reply. It also implements error so request
// handlers can return it directly.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc: %s: %s", e.Code, e.Message)
}

// Errorf creates an *Error with the given code.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Bind decodes the request parameters into v. Unknown fields are rejected.
// Failures are reported as CodeBadParams errors.
func (r Request) Bind(v any) error {
	if len(r.Params) == 0 {
		return Errorf(CodeBadParams, "%s: missing params", r.Method)
	}

	dec := json.NewDecoder(bytes.NewReader(r.Params))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return Errorf(CodeBadParams, "%s: %v", r.Method, err)
	}

	return nil
}

// Result creates a successful reply to req.
func Result(req Request, result any) Reply {
	return Reply{ID: req.ID, Result: result}
}

// Failure creates an error reply to req, classifying err with CodeOf.
func Failure(req Request, err error) Reply {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return Reply{ID: req.ID, Error: rpcErr}
	}

	return Reply{ID: req.ID, Error: &Error{Code: CodeOf(err), Message: err.Error()}}
}

// CodeOf classifies err. Errors carrying a more specific cause are checked
// first: a serial timeout also wraps motor.ErrCommunication.
func CodeOf(err error) Code {
	var rpcErr *Error

	switch {
	case err == nil:
		return ""
	case errors.As(err, &rpcErr):
		return rpcErr.Code
	case errors.Is(err, motor.ErrOutOfRange):
		return CodeOutOfRange
	case errors.Is(err, motor.ErrInvalidAxis):
		return CodeInvalidAxis
	case errors.Is(err, motor.ErrUnsupported):
		return CodeUnsupported
	case errors.Is(err, motor.ErrSerialTimeout):
		return CodeSerialTimeout
	case errors.Is(err, motor.ErrCommunication), errors.Is(err, motor.ErrMalformedReply):
		return CodeCommunication
	case errors.Is(err, ErrTerminated):
		return CodeTerminated
	default:
		return CodeInternal
	}
}

// ErrTerminated is returned for requests reaching a terminated server.
var ErrTerminated = errors.New("rpc: server terminated")
