package rpccore

import (
	"context"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultURL is used when a connector is given no server address.
const DefaultURL = nats.DefaultURL

// NATSConnector connects to a NATS cluster.
type NATSConnector struct {
	// Name is reported to the server as the client name.
	Name string
	// Logger receives connection state changes, may be nil.
	Logger *logrus.Entry
	// Options are appended after the connector's own options.
	Options []nats.Option
}

func (c *NATSConnector) Connect(ctx context.Context, urls []string) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	if len(urls) == 0 {
		urls = []string{DefaultURL}
	}
	opts := []nats.Option{
		nats.Name(c.Name),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if c.Logger != nil && err != nil {
				c.Logger.Warnf("[NATS] Disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			if c.Logger != nil {
				c.Logger.Infof("[NATS] Reconnected to %v", nc.ConnectedUrl())
			}
		}),
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}
	opts = append(opts, c.Options...)
	nc, err := nats.Connect(strings.Join(urls, ","), opts...)
	if err != nil {
		if errors.Is(err, nats.ErrNoServers) {
			return nil, errors.Wrap(ErrUnreachable, err.Error())
		}
		return nil, errors.WithStack(err)
	}
	return &natsConn{nc: nc}, nil
}

type natsConn struct {
	nc *nats.Conn
}

func (c *natsConn) Publish(subject string, data []byte) error {
	return mapNATSError(c.nc.Publish(subject, data))
}

func (c *natsConn) Subscribe(subject string, cb MsgHandler) (Subscription, error) {
	sub, err := c.nc.Subscribe(subject, func(m *nats.Msg) {
		var respond func([]byte) error
		if m.Reply != "" {
			respond = func(data []byte) error {
				return mapNATSError(m.Respond(data))
			}
		}
		cb(NewMsg(m.Subject, m.Data, respond))
	})
	if err != nil {
		return nil, mapNATSError(err)
	}
	// make sure the server knows about the interest before returning
	if err := c.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, mapNATSError(err)
	}
	return &natsSub{sub: sub}, nil
}

func (c *natsConn) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	msg, err := c.nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, mapNATSError(err)
	}
	return msg.Data, nil
}

func (c *natsConn) Close() error {
	if c.nc.IsClosed() {
		return nil
	}
	c.nc.Close()
	return nil
}

type natsSub struct {
	sub *nats.Subscription
}

func (s *natsSub) Subject() string {
	return s.sub.Subject
}

func (s *natsSub) Unsubscribe() error {
	return mapNATSError(s.sub.Unsubscribe())
}

// mapNATSError translates client errors into the package sentinels.
func mapNATSError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, nats.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return errors.WithStack(ErrTimeout)
	case errors.Is(err, nats.ErrNoResponders):
		return errors.WithStack(ErrNoResponders)
	case errors.Is(err, nats.ErrConnectionClosed), errors.Is(err, nats.ErrBadSubscription),
		errors.Is(err, nats.ErrConnectionDraining):
		return errors.Wrap(ErrClosed, err.Error())
	default:
		return errors.WithStack(err)
	}
}
