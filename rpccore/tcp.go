package rpccore

import (
	"context"
	"encoding/gob"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/valyala/gorpc"
)

func init() {
	gob.Register(tcpReqMsg{})
	gob.Register(tcpResMsg{})

	// ignore all log printed by [gorpc]
	gorpc.SetErrorLogger(func(format string, args ...interface{}) {})
}

const (
	tcpOpHello   = "hello"
	tcpOpBye     = "bye"
	tcpOpSub     = "sub"
	tcpOpUnsub   = "unsub"
	tcpOpPub     = "pub"
	tcpOpReq     = "req"
	tcpOpPoll    = "poll"
	tcpOpRespond = "respond"

	tcpCodeTimeout      = "timeout"
	tcpCodeNoResponders = "no_responders"
	tcpCodeClosed       = "closed"

	tcpPollWait       = 500 * time.Millisecond
	tcpCallTimeout    = 10 * time.Second
	tcpHelloTimeout   = 3 * time.Second
	tcpDefaultIdleTTL = 30 * time.Second
)

// TCPBroker exposes a ChanNetwork to other processes over TCP. Each remote
// connection is a session owning one ChanConn; deliveries are queued on the
// session and fetched by the client with long polling.
type TCPBroker struct {
	network  *ChanNetwork
	server   *gorpc.Server
	logger   *logrus.Entry
	idleTTL  time.Duration
	lock     sync.Mutex
	sessions map[string]*tcpSession
	stop     chan struct{}
	done     chan struct{}
}

// NewTCPBroker serves network on listenAddr. A nil network gets a fresh one.
func NewTCPBroker(listenAddr string, network *ChanNetwork, logger *logrus.Entry) *TCPBroker {
	if network == nil {
		network = NewChanNetwork()
	}
	b := &TCPBroker{
		network:  network,
		logger:   logger,
		idleTTL:  tcpDefaultIdleTTL,
		sessions: make(map[string]*tcpSession),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	b.server = &gorpc.Server{
		Addr: listenAddr,
		Handler: func(clientAddr string, request interface{}) interface{} {
			req, ok := request.(tcpReqMsg)
			if !ok {
				return tcpResMsg{Err: "unexpected request type"}
			}
			return b.handle(clientAddr, req)
		},
	}
	return b
}

// Network returns the network shared by every session, local nodes can
// join it with Named or Connect.
func (b *TCPBroker) Network() *ChanNetwork {
	return b.network
}

// SetIdleTTL changes how long a silent session survives. Call before Start.
func (b *TCPBroker) SetIdleTTL(ttl time.Duration) {
	b.idleTTL = ttl
}

func (b *TCPBroker) Start() error {
	if err := b.server.Start(); err != nil {
		return errors.WithStack(err)
	}
	go b.reap()
	return nil
}

// Stop closes every session and the listener.
func (b *TCPBroker) Stop() {
	close(b.stop)
	<-b.done
	b.lock.Lock()
	sessions := b.sessions
	b.sessions = make(map[string]*tcpSession)
	b.lock.Unlock()
	for _, s := range sessions {
		s.close()
	}
	b.server.Stop()
}

func (b *TCPBroker) reap() {
	defer close(b.done)
	ticker := time.NewTicker(b.idleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.lock.Lock()
			for id, s := range b.sessions {
				if s.idleFor() > b.idleTTL {
					delete(b.sessions, id)
					go s.close()
					if b.logger != nil {
						b.logger.Infof("[TCPBroker] Session %v expired", id)
					}
				}
			}
			b.lock.Unlock()
		case <-b.stop:
			return
		}
	}
}

func (b *TCPBroker) session(id string) (*tcpSession, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	s, ok := b.sessions[id]
	if ok {
		s.touch()
	}
	return s, ok
}

func (b *TCPBroker) handle(clientAddr string, req tcpReqMsg) tcpResMsg {
	if req.Op == tcpOpHello {
		id := uuid.NewString()
		conn, err := b.network.NewConn(req.Name + "@" + id)
		if err != nil {
			return errorRes(err)
		}
		s := newTCPSession(id, conn)
		b.lock.Lock()
		b.sessions[id] = s
		b.lock.Unlock()
		if b.logger != nil {
			b.logger.Debugf("[TCPBroker] New session %v from %v", id, clientAddr)
		}
		return tcpResMsg{Session: id}
	}

	s, ok := b.session(req.Session)
	if !ok {
		return tcpResMsg{Code: tcpCodeClosed, Err: "unknown session"}
	}
	switch req.Op {
	case tcpOpBye:
		b.lock.Lock()
		delete(b.sessions, req.Session)
		b.lock.Unlock()
		s.close()
		return tcpResMsg{}
	case tcpOpSub:
		return errorRes(s.subscribe(req.SubID, req.Subject))
	case tcpOpUnsub:
		return errorRes(s.unsubscribe(req.SubID))
	case tcpOpPub:
		return errorRes(s.conn.Publish(req.Subject, req.Data))
	case tcpOpReq:
		ctx, cancel := context.WithTimeout(context.Background(),
			time.Duration(req.TimeoutMs)*time.Millisecond)
		defer cancel()
		data, err := s.conn.Request(ctx, req.Subject, req.Data)
		if err != nil {
			return errorRes(err)
		}
		return tcpResMsg{Data: data}
	case tcpOpPoll:
		return tcpResMsg{Deliveries: s.poll(tcpPollWait)}
	case tcpOpRespond:
		return errorRes(s.respond(req.ReplyID, req.Data))
	default:
		return tcpResMsg{Err: "unsupported operation: " + req.Op}
	}
}

type tcpSession struct {
	id   string
	conn *ChanConn

	lock      sync.Mutex
	subs      map[uint64]Subscription
	replies   map[uint64]*Msg
	nextReply uint64
	pending   []tcpDelivery
	lastSeen  time.Time
	notify    chan struct{}
}

func newTCPSession(id string, conn *ChanConn) *tcpSession {
	return &tcpSession{
		id:       id,
		conn:     conn,
		subs:     make(map[uint64]Subscription),
		replies:  make(map[uint64]*Msg),
		lastSeen: time.Now(),
		notify:   make(chan struct{}, 1),
	}
}

func (s *tcpSession) touch() {
	s.lock.Lock()
	s.lastSeen = time.Now()
	s.lock.Unlock()
}

func (s *tcpSession) idleFor() time.Duration {
	s.lock.Lock()
	defer s.lock.Unlock()
	return time.Since(s.lastSeen)
}

func (s *tcpSession) subscribe(subID uint64, subject string) error {
	sub, err := s.conn.Subscribe(subject, func(msg *Msg) {
		d := tcpDelivery{SubID: subID, Subject: msg.Subject, Data: msg.Data}
		s.lock.Lock()
		if msg.ExpectsReply() {
			s.nextReply++
			d.ReplyID = s.nextReply
			s.replies[d.ReplyID] = msg
		}
		s.pending = append(s.pending, d)
		s.lock.Unlock()
		select {
		case s.notify <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return err
	}
	s.lock.Lock()
	s.subs[subID] = sub
	s.lock.Unlock()
	return nil
}

func (s *tcpSession) unsubscribe(subID uint64) error {
	s.lock.Lock()
	sub, ok := s.subs[subID]
	delete(s.subs, subID)
	s.lock.Unlock()
	if !ok {
		return errors.Errorf("invalid subscription: %v", subID)
	}
	return sub.Unsubscribe()
}

func (s *tcpSession) poll(wait time.Duration) []tcpDelivery {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		s.lock.Lock()
		if len(s.pending) > 0 {
			rst := s.pending
			s.pending = nil
			s.lock.Unlock()
			return rst
		}
		s.lock.Unlock()
		select {
		case <-s.notify:
		case <-timer.C:
			return nil
		}
	}
}

func (s *tcpSession) respond(replyID uint64, data []byte) error {
	s.lock.Lock()
	msg, ok := s.replies[replyID]
	delete(s.replies, replyID)
	s.lock.Unlock()
	if !ok {
		return errors.WithStack(ErrNoReply)
	}
	return msg.Respond(data)
}

func (s *tcpSession) close() {
	_ = s.conn.Close()
	s.lock.Lock()
	s.replies = make(map[uint64]*Msg)
	s.pending = nil
	s.lock.Unlock()
}

// TCPConnector connects to a TCPBroker. URLs look like tcp://host:port,
// the first one that answers is used.
type TCPConnector struct {
	Name   string
	Logger *logrus.Entry
}

func (c *TCPConnector) Connect(ctx context.Context, urls []string) (Conn, error) {
	helloTimeout := tcpHelloTimeout
	if deadline, ok := ctx.Deadline(); ok {
		helloTimeout = time.Until(deadline)
	}
	var lastErr error = ErrUnreachable
	for _, url := range urls {
		if err := ctx.Err(); err != nil {
			return nil, errors.WithStack(err)
		}
		addr := strings.TrimPrefix(url, "tcp://")
		client := &gorpc.Client{Addr: addr, RequestTimeout: tcpCallTimeout}
		client.Start()
		res, err := client.CallTimeout(tcpReqMsg{Op: tcpOpHello, Name: c.Name}, helloTimeout)
		if err != nil {
			client.Stop()
			lastErr = err
			continue
		}
		hello := res.(tcpResMsg)
		if hello.Err != "" {
			client.Stop()
			lastErr = errors.New(hello.Err)
			continue
		}
		conn := &tcpConn{
			client:  client,
			session: hello.Session,
			logger:  c.Logger,
			subs:    make(map[uint64]*tcpSub),
			closed:  make(chan struct{}),
			done:    make(chan struct{}),
		}
		go conn.pollLoop()
		return conn, nil
	}
	return nil, errors.Wrap(ErrUnreachable, lastErr.Error())
}

type tcpConn struct {
	client  *gorpc.Client
	session string
	logger  *logrus.Entry

	// held for reading while talking to the broker so Close never stops
	// the client under a caller
	lock      sync.RWMutex
	isClosed  bool
	subs      map[uint64]*tcpSub
	nextSubID uint64
	closed    chan struct{}
	done      chan struct{}
}

// call sends one operation to the broker.
func (c *tcpConn) call(req tcpReqMsg) (tcpResMsg, error) {
	c.lock.RLock()
	if c.isClosed {
		c.lock.RUnlock()
		return tcpResMsg{}, errors.WithStack(ErrClosed)
	}
	req.Session = c.session
	res, err := c.client.Call(req)
	c.lock.RUnlock()
	if err != nil {
		return tcpResMsg{}, errors.Wrap(ErrClosed, err.Error())
	}
	r := res.(tcpResMsg)
	return r, r.err()
}

func (c *tcpConn) Publish(subject string, data []byte) error {
	_, err := c.call(tcpReqMsg{Op: tcpOpPub, Subject: subject, Data: data})
	return err
}

func (c *tcpConn) Subscribe(subject string, cb MsgHandler) (Subscription, error) {
	c.lock.Lock()
	if c.isClosed {
		c.lock.Unlock()
		return nil, errors.WithStack(ErrClosed)
	}
	c.nextSubID++
	sub := &tcpSub{msgQueue: newMsgQueue(cb), id: c.nextSubID, subject: subject, conn: c}
	c.subs[sub.id] = sub
	c.lock.Unlock()

	if _, err := c.call(tcpReqMsg{Op: tcpOpSub, Subject: subject, SubID: sub.id}); err != nil {
		c.lock.Lock()
		delete(c.subs, sub.id)
		c.lock.Unlock()
		return nil, err
	}
	go sub.loop()
	return sub, nil
}

func (c *tcpConn) Request(ctx context.Context, subject string, data []byte) ([]byte, error) {
	timeout := tcpCallTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if timeout <= 0 {
		return nil, errors.WithStack(ErrTimeout)
	}
	req := tcpReqMsg{Op: tcpOpReq, Session: c.session, Subject: subject, Data: data,
		TimeoutMs: timeout.Milliseconds()}

	c.lock.RLock()
	if c.isClosed {
		c.lock.RUnlock()
		return nil, errors.WithStack(ErrClosed)
	}
	ar, err := c.client.CallAsync(req)
	c.lock.RUnlock()
	if err != nil {
		return nil, errors.Wrap(ErrClosed, err.Error())
	}

	select {
	case <-ar.Done:
		if ar.Error != nil {
			return nil, errors.Wrap(ErrClosed, ar.Error.Error())
		}
		res := ar.Response.(tcpResMsg)
		if err := res.err(); err != nil {
			return nil, err
		}
		return res.Data, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errors.WithStack(ErrTimeout)
		}
		return nil, errors.WithStack(ctx.Err())
	case <-c.closed:
		return nil, errors.WithStack(ErrClosed)
	}
}

func (c *tcpConn) Close() error {
	c.lock.Lock()
	if c.isClosed {
		c.lock.Unlock()
		return nil
	}
	c.isClosed = true
	close(c.closed)
	subs := c.subs
	c.subs = make(map[uint64]*tcpSub)
	c.lock.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	<-c.done
	_, _ = c.client.Call(tcpReqMsg{Op: tcpOpBye, Session: c.session})
	c.client.Stop()
	return nil
}

func (c *tcpConn) pollLoop() {
	defer close(c.done)
	for {
		select {
		case <-c.closed:
			return
		default:
		}
		res, err := c.call(tcpReqMsg{Op: tcpOpPoll})
		if err != nil {
			if errors.Is(err, ErrClosed) {
				select {
				case <-c.closed:
					return
				default:
				}
			}
			if c.logger != nil {
				c.logger.Warnf("[TCPConn] Poll failed: %v", err)
			}
			select {
			case <-c.closed:
				return
			case <-time.After(tcpPollWait):
			}
			continue
		}
		for _, d := range res.Deliveries {
			c.lock.RLock()
			sub, ok := c.subs[d.SubID]
			c.lock.RUnlock()
			if !ok {
				continue
			}
			var respond func([]byte) error
			if d.ReplyID != 0 {
				replyID := d.ReplyID
				respond = func(data []byte) error {
					_, err := c.call(tcpReqMsg{Op: tcpOpRespond, ReplyID: replyID, Data: data})
					return err
				}
			}
			sub.push(NewMsg(d.Subject, d.Data, respond))
		}
	}
}

type tcpSub struct {
	*msgQueue
	id      uint64
	subject string
	conn    *tcpConn
}

func (s *tcpSub) Subject() string {
	return s.subject
}

func (s *tcpSub) Unsubscribe() error {
	s.conn.lock.Lock()
	_, ok := s.conn.subs[s.id]
	delete(s.conn.subs, s.id)
	s.conn.lock.Unlock()
	s.close()
	if !ok {
		return errors.Errorf("invalid subscription: %v", s.subject)
	}
	_, err := s.conn.call(tcpReqMsg{Op: tcpOpUnsub, SubID: s.id})
	return err
}

type tcpReqMsg struct {
	Op        string
	Session   string
	Name      string
	Subject   string
	SubID     uint64
	ReplyID   uint64
	TimeoutMs int64
	Data      []byte
}

type tcpResMsg struct {
	Err        string
	Code       string
	Session    string
	Data       []byte
	Deliveries []tcpDelivery
}

type tcpDelivery struct {
	SubID   uint64
	ReplyID uint64
	Subject string
	Data    []byte
}

func errorRes(err error) tcpResMsg {
	switch {
	case err == nil:
		return tcpResMsg{}
	case errors.Is(err, ErrTimeout):
		return tcpResMsg{Code: tcpCodeTimeout, Err: err.Error()}
	case errors.Is(err, ErrNoResponders):
		return tcpResMsg{Code: tcpCodeNoResponders, Err: err.Error()}
	case errors.Is(err, ErrClosed):
		return tcpResMsg{Code: tcpCodeClosed, Err: err.Error()}
	default:
		return tcpResMsg{Err: err.Error()}
	}
}

func (r tcpResMsg) err() error {
	if r.Err == "" {
		return nil
	}
	switch r.Code {
	case tcpCodeTimeout:
		return errors.WithStack(ErrTimeout)
	case tcpCodeNoResponders:
		return errors.WithStack(ErrNoResponders)
	case tcpCodeClosed:
		return errors.Wrap(ErrClosed, r.Err)
	default:
		return errors.New(r.Err)
	}
}
