/*
 * Project: ipc-lite
 * ---------------------
 * Authors:
 *   Minjian Chen 813534
 *   Shijie Liu   813277
 *   Weizhi Xu    752454
 *   Wenqing Xue  813044
 *   Zijun Chen   813190
 */

// Package rpccore provides a abstract layer of the low level messaging transport.
// Serialization && dispatcher should be implemented in the upper level.
// There are three implementations, one is based on NATS, one is a small
// broker over TCP and the other one is a mocked version based on channel
// for testing and simulation.
package rpccore

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrTimeout is returned when no reply arrives before the deadline.
	ErrTimeout = errors.New("request timeout")
	// ErrNoResponders is returned when nothing is subscribed to the subject.
	ErrNoResponders = errors.New("no responders available for request")
	// ErrClosed is returned by every operation on a closed connection.
	ErrClosed = errors.New("connection closed")
	// ErrNoReply is returned by Respond on a message that was published,
	// not requested.
	ErrNoReply = errors.New("message does not expect a reply")
	// ErrUnreachable is returned by a Connector that cannot reach any server.
	ErrUnreachable = errors.New("no servers available for connection")
)

// MsgHandler is the callback invoked for every message delivered to a
// subscription. Calls for one subscription are serialized.
type MsgHandler func(msg *Msg)

// Connector creates connections to a messaging transport.
type Connector interface {
	Connect(ctx context.Context, urls []string) (Conn, error)
}

// Conn is one connection to the transport. It is safe for concurrent use.
type Conn interface {
	// Publish sends data to every subscriber of subject, no response.
	Publish(subject string, data []byte) error

	// Subscribe registers cb for messages published or requested at subject.
	Subscribe(subject string, cb MsgHandler) (Subscription, error)

	// Request sends data to subject and waits for the first reply. The
	// deadline comes from ctx.
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)

	// Close releases the connection, pending requests fail with ErrClosed.
	Close() error
}

// Subscription is a handle returned by Conn.Subscribe.
type Subscription interface {
	Subject() string
	Unsubscribe() error
}

// Msg is a message delivered to a subscription.
type Msg struct {
	Subject string
	Data    []byte

	respond func(data []byte) error
}

// NewMsg builds a message whose Respond calls respond. A nil respond means
// the message does not expect a reply.
func NewMsg(subject string, data []byte, respond func([]byte) error) *Msg {
	return &Msg{Subject: subject, Data: data, respond: respond}
}

// Respond answers a request. Only the first reply reaches the requester.
func (m *Msg) Respond(data []byte) error {
	if m.respond == nil {
		return ErrNoReply
	}
	return m.respond(data)
}

// ExpectsReply reports whether the message was sent with Request.
func (m *Msg) ExpectsReply() bool {
	return m.respond != nil
}
