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

// Package simulation runs a cluster of nodes on an in-memory network, with
// knobs for latency, loss and nodes going offline.
package simulation

import (
	"context"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/PwzXxm/ipc-lite/directory"
	"github.com/PwzXxm/ipc-lite/ipc"
	"github.com/PwzXxm/ipc-lite/rpccore"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// EventChannel is the broadcast channel every node listens to.
	EventChannel = "events"
	callTimeout  = 2 * time.Second
)

type Local struct {
	network *rpccore.ChanNetwork
	dir     *directory.Memory
	nodes   map[string]*ipc.Node
	loggers map[string]*logrus.Logger

	lock     sync.Mutex
	received map[string][]interface{}
}

var log *logrus.Logger

func init() {
	log = logrus.New()
	log.Out = os.Stdout
}

// RunLocally starts n connected nodes named "0" to "n-1". It panics when
// the cluster cannot be created.
func RunLocally(n int) *Local {
	log.Info("Starting simulation locally ...")

	l, err := newLocal(n)
	if err != nil {
		log.Panicln(err)
	}
	for _, id := range l.NodeIDs() {
		if err := l.ConnectNode(id); err != nil {
			l.StopAll()
			log.Panicln(err)
		}
	}
	return l
}

func newLocal(n int) (*Local, error) {
	if n <= 0 {
		return nil, errors.Errorf("The number of nodes should be positive, but got %v", n)
	}

	l := &Local{
		network:  rpccore.NewChanNetwork(),
		dir:      directory.NewMemory(),
		nodes:    make(map[string]*ipc.Node),
		loggers:  make(map[string]*logrus.Logger),
		received: make(map[string][]interface{}),
	}
	for i := 0; i < n; i++ {
		id := strconv.Itoa(i)
		logger := logrus.New()
		logger.Out = os.Stdout
		l.loggers[id] = logger

		node, err := ipc.New(
			ipc.WithNodeID(id),
			ipc.WithConnector(l.network.Named(id)),
			ipc.WithTimeout(callTimeout),
			ipc.WithLogger(logrus.NewEntry(logger)),
			ipc.WithDirectory(l.dir),
		)
		if err != nil {
			return nil, errors.Wrapf(err, "Failed to allocate a new node with node id %v", id)
		}
		registerMethods(node)
		l.nodes[id] = node
	}
	return l, nil
}

// registerMethods gives every simulated node the same set of methods.
func registerMethods(node *ipc.Node) {
	node.MustRegister("echo", func(v interface{}) interface{} { return v })
	node.MustRegister("add", func(a, b float64) float64 { return a + b })
	node.MustRegister("boom", func(msg string) error { return errors.New(msg) })
	node.MustRegister("slow_echo", func(ctx context.Context, v interface{}, ms int) (interface{}, error) {
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
			return v, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	node.MustRegister("info", func() map[string]string { return node.Info() })
}

func (l *Local) node(id string) (*ipc.Node, error) {
	n, ok := l.nodes[id]
	if !ok {
		return nil, errors.Errorf("Unable to find node %v in the current list", id)
	}
	return n, nil
}

// NodeIDs returns every node id, sorted.
func (l *Local) NodeIDs() []string {
	rst := make([]string, 0, len(l.nodes))
	for id := range l.nodes {
		rst = append(rst, id)
	}
	sort.Strings(rst)
	return rst
}

// ConnectNode connects id and subscribes it to EventChannel.
func (l *Local) ConnectNode(id string) error {
	n, err := l.node(id)
	if err != nil {
		return err
	}
	if err := n.Connect(context.Background()); err != nil {
		return err
	}
	return n.Subscribe(EventChannel, func(payload interface{}) {
		l.lock.Lock()
		l.received[id] = append(l.received[id], payload)
		l.lock.Unlock()
	})
}

// ShutDownNode disconnects id, it can be connected again.
func (l *Local) ShutDownNode(id string) error {
	n, err := l.node(id)
	if err != nil {
		return err
	}
	return n.Disconnect()
}

func (l *Local) StopAll() {
	for id, n := range l.nodes {
		if err := n.Disconnect(); err != nil {
			log.Warnf("Unable to disconnect node %v: %v", id, err)
		}
	}
	l.network.Shutdown()
}

// Call calls method on node to from node from.
func (l *Local) Call(from, to, method string, args ...interface{}) (interface{}, error) {
	n, err := l.node(from)
	if err != nil {
		return nil, err
	}
	return n.Call(context.Background(), to, method, args...)
}

// Broadcast publishes payload on channel from node from.
func (l *Local) Broadcast(from, channel string, payload interface{}) error {
	n, err := l.node(from)
	if err != nil {
		return err
	}
	return n.Broadcast(channel, payload)
}

// Received returns the EventChannel payloads id got so far.
func (l *Local) Received(id string) []interface{} {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]interface{}(nil), l.received[id]...)
}

func (l *Local) ResetReceived() {
	l.lock.Lock()
	l.received = make(map[string][]interface{})
	l.lock.Unlock()
}

func (l *Local) SetNetworkReliability(latencyMin, latencyMax time.Duration, lossRate float64) {
	l.network.SetNetworkReliability(latencyMin, latencyMax, lossRate)
}

// SetNodeNetworkStatus takes a node offline without disconnecting it, its
// messages are silently dropped.
func (l *Local) SetNodeNetworkStatus(id string, online bool) {
	l.network.SetConnStatus(id, online)
}

func (l *Local) Wait(sec int) {
	if sec <= 0 {
		log.Warnf("Seconds to wait should be positive integer, not %v", sec)
		return
	}

	log.Infof("Sleeping for %v second(s)", sec)
	time.Sleep(time.Duration(sec) * time.Second)
}

func (l *Local) getAllNodeInfo() map[string]map[string]string {
	m := make(map[string]map[string]string)
	for id, n := range l.nodes {
		m[id] = n.Info()
	}
	return m
}

// AgreeOnDirectory checks that exactly the connected nodes are listed in
// the directory, with their methods.
func (l *Local) AgreeOnDirectory() error {
	entries, err := l.dir.List(context.Background())
	if err != nil {
		return err
	}
	listed := make(map[string]directory.Entry)
	for _, e := range entries {
		listed[e.NodeID] = e
	}
	for id, n := range l.nodes {
		e, ok := listed[id]
		switch {
		case n.IsConnected() && !ok:
			return errors.Errorf("Node %v is connected but not listed.\n\n%v\n", id, l.getAllNodeInfo())
		case !n.IsConnected() && ok:
			return errors.Errorf("Node %v is disconnected but still listed.\n\n%v\n", id, l.getAllNodeInfo())
		case ok && len(e.Methods) != len(n.Methods()):
			return errors.Errorf("Node %v lists %v, has %v", id, e.Methods, n.Methods())
		}
	}
	return nil
}
