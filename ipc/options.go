package ipc

import (
	"strings"
	"time"

	"github.com/PwzXxm/ipc-lite/codec"
	"github.com/PwzXxm/ipc-lite/directory"
	"github.com/PwzXxm/ipc-lite/rpccore"
	"github.com/PwzXxm/ipc-lite/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds a call that sets no timeout of its own.
const DefaultTimeout = 30 * time.Second

type options struct {
	id         string
	servers    []string
	timeout    time.Duration
	connector  rpccore.Connector
	codec      codec.Codec
	router     Router
	logger     *logrus.Entry
	middleware []Middleware
	directory  directory.Directory
}

// Option configures a Node.
type Option func(*options)

// WithNodeID sets the node id, by default one like node_1a2b3c4d is
// generated.
func WithNodeID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithServers sets the transport addresses, by default rpccore.DefaultURL.
func WithServers(urls ...string) Option {
	return func(o *options) { o.servers = append([]string(nil), urls...) }
}

// WithTimeout sets the default timeout of Call.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithConnector replaces the NATS connector.
func WithConnector(c rpccore.Connector) Option {
	return func(o *options) { o.connector = c }
}

// WithCodec sets the codec of envelopes and broadcast payloads. Nodes
// talking to each other must agree on it.
func WithCodec(c codec.Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithRouter changes the subject prefixes.
func WithRouter(r Router) Option {
	return func(o *options) { o.router = r }
}

// WithLogger sets the logger, a nodeID field is added to it.
func WithLogger(logger *logrus.Entry) Option {
	return func(o *options) { o.logger = logger }
}

// WithMiddleware wraps every handler invocation, the first middleware is
// the outermost.
func WithMiddleware(mws ...Middleware) Option {
	return func(o *options) { o.middleware = append(o.middleware, mws...) }
}

// WithDirectory makes the node announce itself and its methods while it is
// connected.
func WithDirectory(d directory.Directory) Option {
	return func(o *options) { o.directory = d }
}

func newOptions(opts []Option) (*options, error) {
	o := &options{
		timeout: DefaultTimeout,
		codec:   codec.Default,
		router:  DefaultRouter,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.id == "" {
		o.id = generateNodeID()
	}
	if !utils.ValidNodeID(o.id) {
		return nil, invalidRequestf("invalid node id %q, only letters, digits, _ and - are allowed", o.id)
	}
	if err := o.router.Validate(); err != nil {
		return nil, err
	}
	if o.timeout <= 0 {
		return nil, invalidRequestf("timeout must be positive, got %v", o.timeout)
	}
	if len(o.servers) == 0 {
		o.servers = []string{rpccore.DefaultURL}
	}
	if o.codec == nil {
		o.codec = codec.Default
	}
	if o.logger == nil {
		o.logger = logrus.NewEntry(logrus.StandardLogger())
	}
	o.logger = o.logger.WithFields(logrus.Fields{"nodeID": o.id})
	if o.connector == nil {
		o.connector = &rpccore.NATSConnector{Name: o.id, Logger: o.logger}
	}
	return o, nil
}

func generateNodeID() string {
	return "node_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
