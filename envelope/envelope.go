// Package envelope defines the request and response structures exchanged
// for an RPC call. Envelopes travel as plain maps so that every codec,
// including ones shared with non-Go nodes, sees the same shape:
//
//	request:  {"args": [...], "kwargs": {...}}
//	response: {"result": value}  or  {"error": "text", "kind": "..."}
package envelope

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	keyArgs   = "args"
	keyKwargs = "kwargs"
	keyResult = "result"
	keyError  = "error"
	keyKind   = "kind"
)

// Kind qualifies an error response.
type Kind string

const (
	// KindHandler means the handler itself failed.
	KindHandler Kind = "handler"
	// KindMethodNotFound means the callee has no such method.
	KindMethodNotFound Kind = "method_not_found"
	// KindInvalidRequest means the request could not be decoded.
	KindInvalidRequest Kind = "invalid_request"
	// KindSerialization means the result could not be encoded.
	KindSerialization Kind = "serialization"
)

// ErrMalformed is wrapped by every decoding failure of this package.
var ErrMalformed = errors.New("malformed envelope")

// Request carries the arguments of a call.
type Request struct {
	Args   []interface{}
	Kwargs map[string]interface{}
}

// ToWire returns the map form of r. Nil fields become empty containers.
func (r Request) ToWire() map[string]interface{} {
	args := r.Args
	if args == nil {
		args = []interface{}{}
	}
	kwargs := r.Kwargs
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}
	return map[string]interface{}{keyArgs: args, keyKwargs: kwargs}
}

// RequestFromWire validates a decoded request map. Missing fields are
// treated as empty.
func RequestFromWire(v interface{}) (Request, error) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return Request{}, errors.Wrapf(ErrMalformed, "request must be a map, got %T", v)
	}
	var r Request
	if raw, ok := m[keyArgs]; ok && raw != nil {
		args, ok := raw.([]interface{})
		if !ok {
			return Request{}, errors.Wrapf(ErrMalformed, "args must be a list, got %T", raw)
		}
		r.Args = args
	}
	if raw, ok := m[keyKwargs]; ok && raw != nil {
		kwargs, ok := raw.(map[string]interface{})
		if !ok {
			return Request{}, errors.Wrapf(ErrMalformed, "kwargs must be a map, got %T", raw)
		}
		r.Kwargs = kwargs
	}
	for k := range m {
		if k != keyArgs && k != keyKwargs {
			return Request{}, errors.Wrapf(ErrMalformed, "unexpected request field %q", k)
		}
	}
	return r, nil
}

// Response is either a result or an error, never both.
type Response struct {
	Result interface{}
	// Error is set when the call failed, the result is ignored then.
	Error *Error
}

// Error is the text of a remote failure.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Success builds a response carrying result.
func Success(result interface{}) Response {
	return Response{Result: result}
}

// Failure builds an error response.
func Failure(kind Kind, format string, args ...interface{}) Response {
	return Response{Error: &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}}
}

// IsError reports whether the response carries an error.
func (r Response) IsError() bool {
	return r.Error != nil
}

// ToWire returns the map form of r.
func (r Response) ToWire() map[string]interface{} {
	if r.Error != nil {
		m := map[string]interface{}{keyError: r.Error.Message}
		if r.Error.Kind != "" {
			m[keyKind] = string(r.Error.Kind)
		}
		return m
	}
	return map[string]interface{}{keyResult: r.Result}
}

// ResponseFromWire validates a decoded response map, exactly one of result
// and error has to be present.
func ResponseFromWire(v interface{}) (Response, error) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return Response{}, errors.Wrapf(ErrMalformed, "response must be a map, got %T", v)
	}
	result, hasResult := m[keyResult]
	rawErr, hasError := m[keyError]
	switch {
	case hasResult && hasError:
		return Response{}, errors.Wrap(ErrMalformed, "response has both result and error")
	case !hasResult && !hasError:
		return Response{}, errors.Wrap(ErrMalformed, "response has neither result nor error")
	case hasResult:
		if _, ok := m[keyKind]; ok || len(m) != 1 {
			return Response{}, errors.Wrap(ErrMalformed, "unexpected fields next to result")
		}
		return Success(result), nil
	}
	msg, ok := rawErr.(string)
	if !ok {
		return Response{}, errors.Wrapf(ErrMalformed, "error must be a string, got %T", rawErr)
	}
	e := &Error{Message: msg}
	if rawKind, ok := m[keyKind]; ok {
		kind, ok := rawKind.(string)
		if !ok {
			return Response{}, errors.Wrapf(ErrMalformed, "kind must be a string, got %T", rawKind)
		}
		e.Kind = Kind(kind)
	}
	return Response{Error: e}, nil
}
