package rpccore

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PwzXxm/ipc-lite/utils"
	"github.com/pkg/errors"
)

// DelayGenerator returns the one way delay of a message sent from the
// connection named source to the connection named target.
type DelayGenerator func(source, target string) time.Duration

// ChanNetwork is an in-memory broker with NATS subject semantics. Every
// connection made through it shares one subject space.
type ChanNetwork struct {
	lock           sync.RWMutex
	conns          map[string]*ChanConn
	subs           map[uint64]*chanSub
	offline        map[string]bool
	delayGenerator DelayGenerator
	lossRate       float64
	shutdown       bool

	nextSubID  uint64
	nextConnID uint64
}

func NewChanNetwork() *ChanNetwork {
	n := new(ChanNetwork)
	n.conns = make(map[string]*ChanConn)
	n.subs = make(map[uint64]*chanSub)
	n.offline = make(map[string]bool)
	n.delayGenerator = func(source, target string) time.Duration {
		return 0
	}
	return n
}

// Connect implements Connector with a generated connection name.
func (n *ChanNetwork) Connect(ctx context.Context, urls []string) (Conn, error) {
	name := "conn-" + strconv.FormatUint(atomic.AddUint64(&n.nextConnID, 1), 10)
	return n.NewConn(name)
}

// Named returns a Connector whose connections carry name, so that delay,
// loss and status settings can target them.
func (n *ChanNetwork) Named(name string) Connector {
	return namedConnector{network: n, name: name}
}

type namedConnector struct {
	network *ChanNetwork
	name    string
}

func (c namedConnector) Connect(ctx context.Context, urls []string) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.network.NewConn(c.name)
}

// NewConn opens a connection with the given name.
func (n *ChanNetwork) NewConn(name string) (*ChanConn, error) {
	n.lock.Lock()
	defer n.lock.Unlock()
	if n.shutdown {
		return nil, errors.WithStack(ErrUnreachable)
	}
	if _, ok := n.conns[name]; ok {
		return nil, errors.New(fmt.Sprintf(
			"Connection with same name already exists. Name: %v.", name))
	}
	c := &ChanConn{
		name:    name,
		network: n,
		subs:    make(map[uint64]*chanSub),
		closed:  make(chan struct{}),
	}
	n.conns[name] = c
	return c, nil
}

// Shutdown closes every connection, later connects fail with ErrUnreachable.
func (n *ChanNetwork) Shutdown() {
	n.lock.Lock()
	n.shutdown = true
	conns := make([]*ChanConn, 0, len(n.conns))
	for _, c := range n.conns {
		conns = append(conns, c)
	}
	n.lock.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

func (n *ChanNetwork) SetDelayGenerator(delayGenerator DelayGenerator) {
	n.lock.Lock()
	n.delayGenerator = delayGenerator
	n.lock.Unlock()
}

// SetNetworkReliability makes every message take a random one way latency
// in [latencyMin, latencyMax] and get lost with probability lossRate.
func (n *ChanNetwork) SetNetworkReliability(latencyMin, latencyMax time.Duration, lossRate float64) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.lossRate = lossRate
	if latencyMax <= 0 {
		n.delayGenerator = func(source, target string) time.Duration { return 0 }
		return
	}
	n.delayGenerator = func(source, target string) time.Duration {
		return utils.RandomTime(latencyMin, latencyMax)
	}
}

// SetConnStatus takes a connection offline or back online. Messages from
// or to an offline connection are dropped.
func (n *ChanNetwork) SetConnStatus(name string, online bool) {
	n.lock.Lock()
	if online {
		delete(n.offline, name)
	} else {
		n.offline[name] = true
	}
	n.lock.Unlock()
}

// route decides whether a message from source reaches target and after
// how long.
func (n *ChanNetwork) route(source, target string) (time.Duration, bool) {
	n.lock.RLock()
	defer n.lock.RUnlock()
	if n.offline[source] || n.offline[target] {
		return 0, false
	}
	if n.lossRate > 0 && utils.RandomBool(n.lossRate) {
		return 0, false
	}
	return n.delayGenerator(source, target), true
}

func (n *ChanNetwork) match(subject string) []*chanSub {
	n.lock.RLock()
	defer n.lock.RUnlock()
	rst := make([]*chanSub, 0)
	for _, s := range n.subs {
		if SubjectMatches(s.subject, subject) {
			rst = append(rst, s)
		}
	}
	return rst
}

// deliver pushes msg to sub, honouring the simulated network.
func (n *ChanNetwork) deliver(source string, sub *chanSub, msg *Msg) {
	delay, ok := n.route(source, sub.conn.name)
	if !ok {
		return
	}
	if delay <= 0 {
		sub.push(msg)
		return
	}
	time.AfterFunc(delay, func() { sub.push(msg) })
}

// ChanConn is a connection to a ChanNetwork.
type ChanConn struct {
	name    string
	network *ChanNetwork

	lock     sync.Mutex
	subs     map[uint64]*chanSub
	isClosed bool
	closed   chan struct{}
}

func (c *ChanConn) Name() string {
	return c.name
}

func (c *ChanConn) Publish(subject string, data []byte) error {
	if c.IsClosed() {
		return errors.WithStack(ErrClosed)
	}
	for _, sub := range c.network.match(subject) {
		msg := NewMsg(subject, copyBytes(data), nil)
		c.network.deliver(c.name, sub, msg)
	}
	return nil
}

func (c *ChanConn) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	if c.IsClosed() {
		return nil, errors.WithStack(ErrClosed)
	}
	targets := c.network.match(subject)
	if len(targets) == 0 {
		return nil, errors.WithStack(ErrNoResponders)
	}
	// first reply wins, late replies are discarded
	resChan := make(chan []byte, 1)
	for _, sub := range targets {
		responder := sub.conn.name
		respond := func(res []byte) error {
			delay, ok := c.network.route(responder, c.name)
			if !ok {
				return nil
			}
			res = copyBytes(res)
			send := func() {
				select {
				case resChan <- res:
				default:
				}
			}
			if delay <= 0 {
				send()
			} else {
				time.AfterFunc(delay, send)
			}
			return nil
		}
		c.network.deliver(c.name, sub, NewMsg(subject, copyBytes(data), respond))
	}
	select {
	case res := <-resChan:
		return res, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.WithStack(ErrTimeout)
		}
		return nil, errors.WithStack(ctx.Err())
	case <-c.closed:
		return nil, errors.WithStack(ErrClosed)
	}
}

func (c *ChanConn) Subscribe(subject string, cb MsgHandler) (Subscription, error) {
	if err := ValidateSubject(subject, true); err != nil {
		return nil, err
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.isClosed {
		return nil, errors.WithStack(ErrClosed)
	}
	sub := &chanSub{
		msgQueue: newMsgQueue(cb),
		id:       atomic.AddUint64(&c.network.nextSubID, 1),
		subject:  subject,
		conn:     c,
	}
	c.subs[sub.id] = sub
	c.network.lock.Lock()
	c.network.subs[sub.id] = sub
	c.network.lock.Unlock()
	go sub.loop()
	return sub, nil
}

func (c *ChanConn) Close() error {
	c.lock.Lock()
	if c.isClosed {
		c.lock.Unlock()
		return nil
	}
	c.isClosed = true
	close(c.closed)
	subs := c.subs
	c.subs = make(map[uint64]*chanSub)
	c.lock.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	c.network.lock.Lock()
	delete(c.network.conns, c.name)
	c.network.lock.Unlock()
	return nil
}

func (c *ChanConn) IsClosed() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.isClosed
}

type chanSub struct {
	*msgQueue
	id      uint64
	subject string
	conn    *ChanConn
}

func (s *chanSub) Subject() string {
	return s.subject
}

func (s *chanSub) Unsubscribe() error {
	s.conn.lock.Lock()
	_, ok := s.conn.subs[s.id]
	delete(s.conn.subs, s.id)
	closed := s.conn.isClosed
	s.conn.lock.Unlock()
	if !ok {
		if closed {
			return errors.WithStack(ErrClosed)
		}
		return errors.Errorf("invalid subscription: %v", s.subject)
	}
	s.stop()
	return nil
}

func (s *chanSub) stop() {
	s.conn.network.lock.Lock()
	delete(s.conn.network.subs, s.id)
	s.conn.network.lock.Unlock()
	s.close()
}

func copyBytes(data []byte) []byte {
	if data == nil {
		return nil
	}
	rst := make([]byte, len(data))
	copy(rst, data)
	return rst
}
