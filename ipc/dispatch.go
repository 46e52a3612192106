package ipc

import (
	"context"
	"time"

	"github.com/PwzXxm/ipc-lite/envelope"
	"github.com/PwzXxm/ipc-lite/rpccore"
	"github.com/pkg/errors"
)

// handleRequest answers one inbound request. Every request that expects a
// reply gets exactly one response envelope.
func (n *Node) handleRequest(s *session, msg *rpccore.Msg) {
	_, method, ok := n.router.ParseRPCSubject(msg.Subject)
	if !ok {
		n.reply(msg, envelope.Failure(envelope.KindInvalidRequest, "unroutable subject %v", msg.Subject))
		return
	}
	var v interface{}
	if err := n.codec.Decode(msg.Data, &v); err != nil {
		n.reply(msg, envelope.Failure(envelope.KindInvalidRequest, "%v", err))
		return
	}
	req, err := envelope.RequestFromWire(v)
	if err != nil {
		n.reply(msg, envelope.Failure(envelope.KindInvalidRequest, "%v", err))
		return
	}
	h, found := n.registry.get(method)
	if !found {
		n.reply(msg, envelope.Failure(envelope.KindMethodNotFound,
			"%v", &MethodNotFoundError{Method: method, NodeID: n.id}))
		return
	}

	inv := &Invocation{NodeID: n.id, Method: method, Args: req.Args, Kwargs: req.Kwargs, Handler: h}
	if h.Kind() == Immediate {
		n.reply(msg, n.invoke(s.ctx, inv))
		return
	}
	if !s.spawn(func() { n.reply(msg, n.invoke(s.ctx, inv)) }) {
		n.reply(msg, envelope.Failure(envelope.KindHandler, "%v", ErrDisconnected))
	}
}

// invoke runs the middleware chain and the handler, turning any failure
// into an error response.
func (n *Node) invoke(ctx context.Context, inv *Invocation) (res envelope.Response) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			n.logger.Errorf("Handler of %v panicked: %v", inv.Method, r)
			res = envelope.Failure(envelope.KindHandler, "handler panicked (recovered): %v", r)
		}
		n.served.RecordCall(inv.Method, time.Since(start), !res.IsError())
	}()

	result, err := n.invoker(ctx, inv)
	if err == nil {
		return envelope.Success(result)
	}
	n.logger.Debugf("Handler of %v failed: %v", inv.Method, err)
	var ae *argumentError
	if errors.As(err, &ae) {
		var ire *InvalidRequestError
		if errors.As(ae.err, &ire) {
			return envelope.Failure(envelope.KindInvalidRequest, "%v", ire.Reason)
		}
		return envelope.Failure(envelope.KindInvalidRequest, "%v", ae.err)
	}
	return envelope.Failure(envelope.KindHandler, "%v", err)
}

func (n *Node) reply(msg *rpccore.Msg, res envelope.Response) {
	if !msg.ExpectsReply() {
		return
	}
	data, err := n.codec.Encode(res.ToWire())
	if err != nil {
		se := &SerializationError{DataType: typeName(res.Result), Err: err}
		n.logger.Warnf("Unable to encode the response: %v", se)
		data, err = n.codec.Encode(envelope.Failure(envelope.KindSerialization, "%v", se).ToWire())
		if err != nil {
			n.logger.Errorf("Unable to encode the error response: %v", err)
			return
		}
	}
	if err := msg.Respond(data); err != nil {
		n.logger.Debugf("Unable to respond on %v: %v", msg.Subject, err)
	}
}
