package ipc

import (
	"context"
	"time"

	"github.com/PwzXxm/ipc-lite/envelope"
	"github.com/PwzXxm/ipc-lite/rpccore"
	"github.com/pkg/errors"
)

type callOptions struct {
	args    []interface{}
	kwargs  map[string]interface{}
	timeout time.Duration
}

// CallOption configures one call.
type CallOption func(*callOptions)

// Args appends positional arguments.
func Args(args ...interface{}) CallOption {
	return func(o *callOptions) { o.args = append(o.args, args...) }
}

// KwargsOf merges keyword arguments.
func KwargsOf(kwargs map[string]interface{}) CallOption {
	return func(o *callOptions) {
		for k, v := range kwargs {
			Kwarg(k, v)(o)
		}
	}
}

// Kwarg sets one keyword argument.
func Kwarg(key string, value interface{}) CallOption {
	return func(o *callOptions) {
		if o.kwargs == nil {
			o.kwargs = make(map[string]interface{})
		}
		o.kwargs[key] = value
	}
}

// Timeout overrides the node's default timeout.
func Timeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

// Call invokes method on the node target with positional arguments and
// returns its result.
func (n *Node) Call(ctx context.Context, target, method string, args ...interface{}) (interface{}, error) {
	return n.CallWith(ctx, target, method, Args(args...))
}

// CallWith invokes method on the node target. The call ends at the first
// of: the reply, the timeout, ctx being done, or Disconnect.
func (n *Node) CallWith(ctx context.Context, target, method string, opts ...CallOption) (interface{}, error) {
	co := callOptions{timeout: n.timeout}
	for _, opt := range opts {
		opt(&co)
	}
	if co.timeout <= 0 {
		return nil, invalidRequestf("timeout must be positive, got %v", co.timeout)
	}
	subject, err := n.router.RPCSubject(target, method)
	if err != nil {
		return nil, err
	}
	data, err := n.codec.Encode(envelope.Request{Args: co.args, Kwargs: co.kwargs}.ToWire())
	if err != nil {
		return nil, errors.WithStack(&SerializationError{DataType: "request envelope", Err: err})
	}
	s := n.session()
	if s == nil {
		return nil, errors.WithStack(&ConnectionError{URL: n.url(), Err: ErrNotConnected})
	}

	start := time.Now()
	timeout := co.timeout
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline)
	}
	cctx, cancel := context.WithTimeout(ctx, co.timeout)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	raw, err := s.conn.Request(cctx, subject, data)
	if err == nil {
		var result interface{}
		result, err = n.decodeResponse(target, method, raw)
		n.called.RecordCall(target+"."+method, time.Since(start), err == nil)
		return result, err
	}

	switch {
	case s.ctx.Err() != nil:
		err = &ConnectionError{URL: n.url(), Err: ErrDisconnected}
	case errors.Is(err, rpccore.ErrNoResponders):
		err = &MethodNotFoundError{Method: method, NodeID: target}
	case errors.Is(err, rpccore.ErrTimeout):
		err = &TimeoutError{Target: target, Method: method, Timeout: timeout}
	case ctx.Err() != nil:
		err = ctx.Err()
	default:
		err = &ConnectionError{URL: n.url(), Err: err}
	}
	n.called.RecordCall(target+"."+method, time.Since(start), false)
	n.logger.Debugf("Call to %v.%v failed: %v", target, method, err)
	return nil, errors.WithStack(err)
}

func (n *Node) decodeResponse(target, method string, raw []byte) (interface{}, error) {
	var v interface{}
	if err := n.codec.Decode(raw, &v); err != nil {
		return nil, errors.WithStack(&SerializationError{DataType: "response envelope", Err: err})
	}
	res, err := envelope.ResponseFromWire(v)
	if err != nil {
		return nil, errors.WithStack(&SerializationError{DataType: typeName(v), Err: err})
	}
	if !res.IsError() {
		return res.Result, nil
	}
	switch res.Error.Kind {
	case envelope.KindMethodNotFound:
		return nil, errors.WithStack(&MethodNotFoundError{Method: method, NodeID: target})
	case envelope.KindInvalidRequest:
		return nil, errors.WithStack(&InvalidRequestError{Reason: res.Error.Message})
	case envelope.KindSerialization:
		return nil, errors.WithStack(&SerializationError{DataType: "remote result", Err: errors.New(res.Error.Message)})
	}
	return nil, errors.WithStack(&RemoteError{Target: target, Method: method, Message: res.Error.Message})
}
