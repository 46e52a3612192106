// Package client is an interactive console attached to a live node: it
// calls methods on other nodes, broadcasts, listens to channels and reads
// the directory.
package client

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/PwzXxm/ipc-lite/cmdconfig"
	"github.com/PwzXxm/ipc-lite/directory"
	"github.com/PwzXxm/ipc-lite/ipc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Client struct {
	node   *ipc.Node
	dir    directory.Directory
	logger *logrus.Entry

	lock     sync.Mutex
	received map[string][]interface{}
}

// StartClientFromFile connects a client node configured by the file at
// filePath and reads commands from STDIN until EOF.
func StartClientFromFile(filePath string) error {
	config, err := cmdconfig.ReadNodeConfig(filePath)
	if err != nil {
		return err
	}
	logger := logrus.New()
	logger.Out = os.Stderr
	loggerEntry := logrus.NewEntry(logger)

	var dir directory.Directory
	etcd, err := config.Directory()
	if err != nil {
		return err
	}
	if etcd != nil {
		defer func() { _ = etcd.Close() }()
		dir = etcd
	}
	// clients get a generated id unless the file sets one
	opts, err := config.Options(loggerEntry, dir)
	if err != nil {
		return err
	}
	node, err := ipc.New(opts...)
	if err != nil {
		return err
	}
	c := NewClient(node, dir)
	if err := node.Connect(context.Background()); err != nil {
		return err
	}
	defer func() {
		if err := node.Disconnect(); err != nil {
			loggerEntry.Warnf("Unable to disconnect: %v", err)
		}
	}()
	fmt.Printf("Client %v connected, type help for the commands.\n", node.ID())
	c.startReadingCmd()
	return nil
}

// NewClient wraps node. dir may be nil, the nodes command then fails.
func NewClient(node *ipc.Node, dir directory.Directory) *Client {
	return &Client{
		node:     node,
		dir:      dir,
		logger:   node.Logger(),
		received: make(map[string][]interface{}),
	}
}

func (c *Client) call(target, method string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	return c.node.CallWith(context.Background(), target, method, ipc.Args(args...), ipc.KwargsOf(kwargs))
}

func (c *Client) subscribe(channel string) error {
	return c.node.Subscribe(channel, func(payload interface{}) {
		c.lock.Lock()
		c.received[channel] = append(c.received[channel], payload)
		c.lock.Unlock()
		c.logger.Infof("[%v] %v", channel, payload)
	})
}

// drainReceived returns and forgets the payloads received on channel.
func (c *Client) drainReceived(channel string) []interface{} {
	c.lock.Lock()
	defer c.lock.Unlock()
	rst := c.received[channel]
	delete(c.received, channel)
	return rst
}

func (c *Client) nodes() ([]directory.Entry, error) {
	if c.dir == nil {
		return nil, errors.New("No directory configured, set EtcdEndpoints in the config file")
	}
	return c.dir.List(context.Background())
}

func (c *Client) channels() []string {
	chs := c.node.Channels()
	rst := make([]string, 0, len(chs))
	for ch := range chs {
		rst = append(rst, ch)
	}
	sort.Strings(rst)
	return rst
}
