package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcjson"
)

// Kind is the typed classification of a failed lookup. Presentation code
// switches on Kind instead of matching error text.
type Kind string

const (
	KindServerFault  Kind = "server_fault"
	KindNotFound     Kind = "not_found"
	KindInvalidInput Kind = "invalid_input"
	KindNetwork      Kind = "network"
)

// Classified is implemented by errors that know their own Kind.
type Classified interface {
	error
	Kind() Kind
}

// TransportError reports a failure below the JSON-RPC layer: the request never
// got an answer (StatusCode 0) or the node replied with a non-2xx status and
// no decodable error envelope.
type TransportError struct {
	Method     string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("rpc %s: transport failure: %v", e.Method, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("rpc %s: HTTP %d: %s", e.Method, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("rpc %s: HTTP %d", e.Method, e.StatusCode)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Kind reports Network when no HTTP response was received.
func (e *TransportError) Kind() Kind {
	if e.StatusCode == 0 {
		return KindNetwork
	}
	return KindServerFault
}

// DecodeError reports a response body that is not valid JSON.
type DecodeError struct {
	Method string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("rpc %s: failed to decode response: %v", e.Method, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Kind() Kind { return KindServerFault }

// RPCError is the error object carried in a node response envelope.
type RPCError struct {
	Code    btcjson.RPCErrorCode `json:"code"`
	Message string               `json:"message"`
	Method  string               `json:"-"`
}

func (e *RPCError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("rpc %s: error %d: %s", e.Method, e.Code, e.Message)
}

// Kind maps Bitcoin Core error codes onto the lookup taxonomy. Core answers
// unknown blocks, transactions and addresses with RPC_INVALID_ADDRESS_OR_KEY.
func (e *RPCError) Kind() Kind {
	switch e.Code {
	case btcjson.ErrRPCInvalidAddressOrKey:
		return KindNotFound
	case btcjson.ErrRPCInvalidParameter, btcjson.ErrRPCType, btcjson.ErrRPCInvalidParams.Code:
		return KindInvalidInput
	default:
		return KindServerFault
	}
}

// Classify returns the Kind of err, or "" for a nil error.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var classified Classified
	if errors.As(err, &classified) {
		return classified.Kind()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindNetwork
	}
	return KindServerFault
}
