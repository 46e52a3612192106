/*
 * Project: ipc-lite
 * ---------------------
 * Authors:
 * Minjian Chen 813534
 * Shijie Liu   813277
 * Weizhi Xu    752454
 * Wenqing Xue  813044
 * Zijun Chen   813190
 */

// Package cmdconfig reads the JSON configuration of the command line tools
// and applies the environment overrides.
package cmdconfig

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/PwzXxm/ipc-lite/codec"
	"github.com/PwzXxm/ipc-lite/directory"
	"github.com/PwzXxm/ipc-lite/ipc"
	"github.com/PwzXxm/ipc-lite/rpccore"
	"github.com/PwzXxm/ipc-lite/utils"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	EnvServers      = "NATS_SERVERS"
	EnvTimeout      = "NATS_TIMEOUT"
	EnvIterations   = "PERF_TEST_ITERATIONS"
	EnvWarmup       = "PERF_TEST_WARMUP"
	TransportNATS   = "nats"
	TransportTCP    = "tcp"
	etcdDialTimeout = 5 * time.Second
)

// NodeConfig configures one node process.
type NodeConfig struct {
	NodeID          string
	Servers         []string
	TimeoutSeconds  float64
	Transport       string
	Codec           string
	RPCPrefix       string
	BroadcastPrefix string
	EtcdEndpoints   []string
	StatsFilePath   string
	StatsInterval   int
	GatewayAddr     string
	// BrokerAddr starts a TCP broker inside the process.
	BrokerAddr string
	LogPath    string
}

// BenchConfig sizes a benchmark run.
type BenchConfig struct {
	Iterations  int
	Warmup      int
	Concurrency int
	PayloadSize int
}

// DefaultNodeConfig has the values used when neither the file nor the
// environment sets them.
func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		Servers:        []string{rpccore.DefaultURL},
		TimeoutSeconds: ipc.DefaultTimeout.Seconds(),
		Transport:      TransportNATS,
		StatsInterval:  10,
	}
}

func DefaultBenchConfig() BenchConfig {
	return BenchConfig{Iterations: 100, Warmup: 10, Concurrency: 1, PayloadSize: 1024}
}

// ReadNodeConfig reads filepath over the defaults, then the environment.
// An empty filepath reads only the environment.
func ReadNodeConfig(filepath string) (NodeConfig, error) {
	config := DefaultNodeConfig()
	if filepath != "" {
		if err := utils.ReadFromJSON(&config, filepath); err != nil {
			return config, err
		}
	}
	if err := config.applyEnv(os.LookupEnv); err != nil {
		return config, err
	}
	return config, config.Validate()
}

// ReadBenchConfig returns the defaults overridden by the environment.
func ReadBenchConfig() (BenchConfig, error) {
	config := DefaultBenchConfig()
	return config, config.applyEnv(os.LookupEnv)
}

type lookupFunc func(key string) (string, bool)

func (c *NodeConfig) applyEnv(lookup lookupFunc) error {
	if v, ok := lookup(EnvServers); ok && strings.TrimSpace(v) != "" {
		c.Servers = nil
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				c.Servers = append(c.Servers, s)
			}
		}
	}
	if v, ok := lookup(EnvTimeout); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid %v", EnvTimeout)
		}
		c.TimeoutSeconds = f
	}
	return nil
}

func (c *BenchConfig) applyEnv(lookup lookupFunc) error {
	for key, dst := range map[string]*int{EnvIterations: &c.Iterations, EnvWarmup: &c.Warmup} {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		i, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %v", key)
		}
		*dst = i
	}
	return nil
}

func (c NodeConfig) Validate() error {
	if c.NodeID != "" && !utils.ValidNodeID(c.NodeID) {
		return errors.Errorf("invalid node id %q", c.NodeID)
	}
	if len(c.Servers) == 0 {
		return errors.New("at least one server is required")
	}
	if c.TimeoutSeconds <= 0 {
		return errors.Errorf("timeout must be positive, got %v", c.TimeoutSeconds)
	}
	switch c.Transport {
	case "", TransportNATS, TransportTCP:
	default:
		return errors.Errorf("unknown transport %q, use %v or %v", c.Transport, TransportNATS, TransportTCP)
	}
	if _, err := codec.ByName(c.Codec); err != nil {
		return err
	}
	if c.StatsFilePath != "" && c.StatsInterval <= 0 {
		return errors.Errorf("stats interval must be positive, got %v", c.StatsInterval)
	}
	return nil
}

// Timeout is TimeoutSeconds as a duration.
func (c NodeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds * float64(time.Second))
}

// Directory connects to etcd when endpoints are configured, nil otherwise.
func (c NodeConfig) Directory() (*directory.Etcd, error) {
	if len(c.EtcdEndpoints) == 0 {
		return nil, nil
	}
	return directory.NewEtcd(c.EtcdEndpoints, etcdDialTimeout)
}

// Options turns the configuration into node options. dir may be nil.
func (c NodeConfig) Options(logger *logrus.Entry, dir directory.Directory) ([]ipc.Option, error) {
	cd, err := codec.ByName(c.Codec)
	if err != nil {
		return nil, err
	}
	opts := []ipc.Option{
		ipc.WithServers(c.Servers...),
		ipc.WithTimeout(c.Timeout()),
		ipc.WithCodec(cd),
	}
	if c.NodeID != "" {
		opts = append(opts, ipc.WithNodeID(c.NodeID))
	}
	if logger != nil {
		opts = append(opts, ipc.WithLogger(logger))
	}
	if c.RPCPrefix != "" || c.BroadcastPrefix != "" {
		router := ipc.DefaultRouter
		if c.RPCPrefix != "" {
			router.RPCPrefix = c.RPCPrefix
		}
		if c.BroadcastPrefix != "" {
			router.BroadcastPrefix = c.BroadcastPrefix
		}
		opts = append(opts, ipc.WithRouter(router))
	}
	if c.Transport == TransportTCP {
		opts = append(opts, ipc.WithConnector(&rpccore.TCPConnector{Name: c.NodeID, Logger: logger}))
	}
	if dir != nil {
		opts = append(opts, ipc.WithDirectory(dir))
	}
	return opts, nil
}
