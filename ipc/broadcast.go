package ipc

import (
	"github.com/PwzXxm/ipc-lite/rpccore"
	"github.com/pkg/errors"
)

// Subscribe invokes fn with every payload broadcast on channel until the
// node disconnects. fn is adapted with HandlerOf and receives the decoded
// payload as its only argument, its result is ignored. Subscribing twice to
// one channel delivers each broadcast twice.
func (n *Node) Subscribe(channel string, fn interface{}) error {
	subject, err := n.router.BroadcastSubject(channel)
	if err != nil {
		return err
	}
	h, err := HandlerOf(fn)
	if err != nil {
		return invalidRequestf("subscriber of %v: %v", channel, err)
	}

	n.lock.Lock()
	defer n.lock.Unlock()
	s := n.sess
	if s == nil {
		return errors.WithStack(&ConnectionError{URL: n.url(), Err: ErrNotConnected})
	}
	sub, err := s.conn.Subscribe(subject, func(msg *rpccore.Msg) {
		n.handleBroadcast(s, channel, h, msg)
	})
	if err != nil {
		return errors.WithStack(&ConnectionError{URL: n.url(), Err: err})
	}
	n.subs.addBroadcast(channel, sub)
	n.logger.Debugf("Subscribed to %v (%v)", channel, h.Kind())
	return nil
}

// Broadcast publishes payload on channel to every current subscriber.
func (n *Node) Broadcast(channel string, payload interface{}) error {
	subject, err := n.router.BroadcastSubject(channel)
	if err != nil {
		return err
	}
	data, err := n.codec.Encode(payload)
	if err != nil {
		return errors.WithStack(&SerializationError{DataType: typeName(payload), Err: err})
	}
	s := n.session()
	if s == nil {
		return errors.WithStack(&ConnectionError{URL: n.url(), Err: ErrNotConnected})
	}
	if err := s.conn.Publish(subject, data); err != nil {
		return errors.WithStack(&ConnectionError{URL: n.url(), Err: err})
	}
	return nil
}

func (n *Node) handleBroadcast(s *session, channel string, h Handler, msg *rpccore.Msg) {
	var payload interface{}
	if err := n.codec.Decode(msg.Data, &payload); err != nil {
		n.logger.Warnf("Dropped broadcast on %v: %v", channel,
			&SerializationError{DataType: "broadcast payload", Err: err})
		return
	}
	run := func() {
		defer func() {
			if r := recover(); r != nil {
				n.logger.Errorf("Subscriber of %v panicked: %v", channel, r)
			}
		}()
		if _, err := h.Invoke(s.ctx, []interface{}{payload}, nil); err != nil {
			n.logger.Warnf("Subscriber of %v failed: %v", channel, err)
		}
	}
	if h.Kind() == Immediate {
		run()
		return
	}
	if !s.spawn(run) {
		n.logger.Debugf("Dropped broadcast on %v, node is disconnecting", channel)
	}
}
