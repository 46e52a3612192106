package ipc

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PwzXxm/ipc-lite/codec"
	"github.com/PwzXxm/ipc-lite/directory"
	"github.com/PwzXxm/ipc-lite/rpccore"
	"github.com/creachadair/taskgroup"
	"github.com/pkg/errors"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"
)

const directoryTimeout = 5 * time.Second

// Node is an addressable endpoint exposing methods and broadcast
// subscriptions. Its methods are safe for concurrent use.
type Node struct {
	id        string
	servers   []string
	timeout   time.Duration
	connector rpccore.Connector
	codec     codec.Codec
	router    Router
	logger    *logrus.Entry
	directory directory.Directory
	invoker   Invoker

	registry *registry
	subs     *subscriptions
	served   *Metrics
	called   *Metrics

	// guards sess and the pairing of registry entries with subscriptions
	lock deadlock.Mutex
	sess *session
}

// session is the state of one connected interval.
type session struct {
	conn   rpccore.Conn
	ctx    context.Context
	cancel context.CancelFunc
	tasks  *taskgroup.Group

	// closing is set under lock before tasks.Wait, no task starts after it
	lock    sync.RWMutex
	closing bool
}

// spawn runs fn on the session's task group unless the session is closing.
func (s *session) spawn(fn func()) bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.closing {
		return false
	}
	s.tasks.Go(func() error {
		fn()
		return nil
	})
	return true
}

// New creates a disconnected node.
func New(opts ...Option) (*Node, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	n := &Node{
		id:        o.id,
		servers:   o.servers,
		timeout:   o.timeout,
		connector: o.connector,
		codec:     o.codec,
		router:    o.router,
		logger:    o.logger,
		directory: o.directory,
		invoker:   Chain(o.middleware...)(invokeHandler),
		registry:  newRegistry(),
		subs:      newSubscriptions(),
		served:    NewMetrics(),
		called:    NewMetrics(),
	}
	return n, nil
}

// ID returns the node id.
func (n *Node) ID() string { return n.id }

// Logger returns the node's logger.
func (n *Node) Logger() *logrus.Entry { return n.logger }

// Codec returns the codec of the node.
func (n *Node) Codec() codec.Codec { return n.codec }

// Metrics returns the metrics of the calls this node served, keyed by
// method.
func (n *Node) Metrics() *Metrics { return n.served }

// CallMetrics returns the metrics of the calls this node made, keyed by
// "target.method".
func (n *Node) CallMetrics() *Metrics { return n.called }

func (n *Node) url() string {
	return strings.Join(n.servers, ",")
}

func (n *Node) IsConnected() bool {
	return n.session() != nil
}

func (n *Node) session() *session {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.sess
}

// Connect opens the transport connection and subscribes every registered
// method.
func (n *Node) Connect(ctx context.Context) error {
	n.lock.Lock()
	connected := n.sess != nil
	n.lock.Unlock()
	if connected {
		return errors.WithStack(&ConnectionError{URL: n.url(), Err: ErrAlreadyConnected})
	}
	// n.lock is not held while dialing
	conn, err := n.connector.Connect(ctx, n.servers)
	if err != nil {
		return errors.WithStack(&ConnectionError{URL: n.url(), Err: err})
	}

	n.lock.Lock()
	if n.sess != nil {
		n.lock.Unlock()
		_ = conn.Close()
		return errors.WithStack(&ConnectionError{URL: n.url(), Err: ErrAlreadyConnected})
	}
	sctx, cancel := context.WithCancel(context.Background())
	s := &session{conn: conn, ctx: sctx, cancel: cancel, tasks: taskgroup.New(nil)}
	for _, name := range n.registry.names() {
		if err := n.subscribeMethod(s, name); err != nil {
			for _, sub := range n.subs.drain() {
				_ = sub.Unsubscribe()
			}
			cancel()
			_ = conn.Close()
			n.lock.Unlock()
			return errors.WithStack(&ConnectionError{URL: n.url(), Err: err})
		}
	}
	n.sess = s
	n.lock.Unlock()

	n.logger.Infof("Connected to %v", n.url())
	n.announce()
	return nil
}

// Disconnect unsubscribes everything and closes the connection. Calls in
// flight fail with a ConnectionError, suspending handlers see their context
// cancelled and are waited for, so Disconnect must not be called from a
// suspending handler. Disconnecting a disconnected node is a no-op.
func (n *Node) Disconnect() error {
	n.lock.Lock()
	s := n.sess
	n.sess = nil
	subs := n.subs.drain()
	n.lock.Unlock()
	if s == nil {
		return nil
	}

	var errs []error
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			n.logger.Warnf("Unable to unsubscribe from %v: %v", sub.Subject(), err)
			errs = append(errs, err)
		}
	}
	s.lock.Lock()
	s.closing = true
	s.lock.Unlock()
	s.cancel()
	_ = s.tasks.Wait()
	if err := s.conn.Close(); err != nil {
		errs = append(errs, err)
	}
	n.withdraw()
	n.logger.Infof("Disconnected from %v", n.url())

	if len(errs) > 0 {
		return errors.WithStack(&ConnectionError{URL: n.url(),
			Err: errors.Errorf("%d error(s) while disconnecting, first: %v", len(errs), errs[0])})
	}
	return nil
}

// Register adds or replaces the handler of name. fn is adapted with
// HandlerOf. On a connected node the method is reachable when Register
// returns, otherwise from the next Connect on.
func (n *Node) Register(name string, fn interface{}) error {
	if err := ValidateName("method", name); err != nil {
		return err
	}
	h, err := HandlerOf(fn)
	if err != nil {
		return invalidRequestf("method %v: %v", name, err)
	}

	n.lock.Lock()
	replaced := n.registry.set(name, h)
	s := n.sess
	if s != nil && !n.subs.hasMethod(name) {
		if err := n.subscribeMethod(s, name); err != nil {
			n.lock.Unlock()
			return errors.WithStack(&ConnectionError{URL: n.url(), Err: err})
		}
	}
	n.lock.Unlock()

	if replaced {
		n.logger.Debugf("Replaced handler of %v", name)
	} else {
		n.logger.Debugf("Registered %v (%v)", name, h.Kind())
	}
	if s != nil && !replaced {
		n.announce()
	}
	return nil
}

// MustRegister is like Register but panics on error.
func (n *Node) MustRegister(name string, fn interface{}) {
	if err := n.Register(name, fn); err != nil {
		panic(err)
	}
}

// Unregister removes name and its subscription. It reports whether the
// method was registered.
func (n *Node) Unregister(name string) bool {
	n.lock.Lock()
	removed := n.registry.remove(name)
	sub := n.subs.removeMethod(name)
	connected := n.sess != nil
	n.lock.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			n.logger.Warnf("Unable to unsubscribe from %v: %v", sub.Subject(), err)
		}
	}
	if removed && connected {
		n.announce()
	}
	return removed
}

// Methods returns the registered method names, sorted.
func (n *Node) Methods() []string {
	return n.registry.names()
}

// Channels returns the number of broadcast subscriptions per channel.
func (n *Node) Channels() map[string]int {
	return n.subs.channels()
}

// Info describes the node for tools.
func (n *Node) Info() map[string]string {
	snap := n.served.Snapshot()
	return map[string]string{
		"id":            n.id,
		"connected":     boolString(n.IsConnected()),
		"servers":       n.url(),
		"codec":         n.codec.Name(),
		"methods":       strings.Join(n.Methods(), ","),
		"subscriptions": itoa(int64(n.subs.count())),
		"served":        itoa(snap.TotalCalls),
		"errors":        itoa(snap.TotalErrors),
	}
}

// subscribeMethod binds name's subject. Called with n.lock held.
func (n *Node) subscribeMethod(s *session, name string) error {
	subject, err := n.router.RPCSubject(n.id, name)
	if err != nil {
		return err
	}
	sub, err := s.conn.Subscribe(subject, func(msg *rpccore.Msg) {
		n.handleRequest(s, msg)
	})
	if err != nil {
		return err
	}
	n.subs.addMethod(name, sub)
	return nil
}

func (n *Node) announce() {
	if n.directory == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), directoryTimeout)
	defer cancel()
	e := directory.Entry{NodeID: n.id, Methods: n.Methods(), Codec: n.codec.Name()}
	if err := n.directory.Announce(ctx, e); err != nil {
		n.logger.Warnf("Unable to announce to the directory: %v", err)
	}
}

func (n *Node) withdraw() {
	if n.directory == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), directoryTimeout)
	defer cancel()
	if err := n.directory.Withdraw(ctx, n.id); err != nil {
		n.logger.Warnf("Unable to withdraw from the directory: %v", err)
	}
}

func boolString(b bool) string {
	return strconv.FormatBool(b)
}

func itoa(i int64) string {
	return strconv.FormatInt(i, 10)
}
