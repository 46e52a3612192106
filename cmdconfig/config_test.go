package cmdconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/PwzXxm/ipc-lite/ipc"
	"github.com/google/go-cmp/cmp"
)

func lookupMap(m map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestNodeConfigEnv(t *testing.T) {
	c := DefaultNodeConfig()
	err := c.applyEnv(lookupMap(map[string]string{
		EnvServers: "nats://a:4222, nats://b:4222,",
		EnvTimeout: "2.5",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"nats://a:4222", "nats://b:4222"}, c.Servers); diff != "" {
		t.Errorf("servers (-want +got):\n%s", diff)
	}
	if c.Timeout() != 2500*time.Millisecond {
		t.Errorf("timeout: got %v", c.Timeout())
	}

	c = DefaultNodeConfig()
	if err := c.applyEnv(lookupMap(map[string]string{EnvTimeout: "soon"})); err == nil {
		t.Errorf("an invalid timeout should fail")
	}
	if c.Timeout() != ipc.DefaultTimeout {
		t.Errorf("default timeout: got %v", c.Timeout())
	}
}

func TestBenchConfigEnv(t *testing.T) {
	c := DefaultBenchConfig()
	err := c.applyEnv(lookupMap(map[string]string{EnvIterations: "7", EnvWarmup: "1"}))
	if err != nil {
		t.Fatal(err)
	}
	if c.Iterations != 7 || c.Warmup != 1 {
		t.Errorf("got %+v", c)
	}
	if err := c.applyEnv(lookupMap(map[string]string{EnvWarmup: "x"})); err == nil {
		t.Errorf("an invalid warmup should fail")
	}
}

func TestReadNodeConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.json")
	data := `{"NodeID": "server", "Transport": "tcp", "Servers": ["tcp://127.0.0.1:4250"], "Codec": "msgpack", "RPCPrefix": "app"}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	os.Unsetenv(EnvServers)
	os.Unsetenv(EnvTimeout)
	c, err := ReadNodeConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.NodeID != "server" || c.Transport != TransportTCP || c.StatsInterval != 10 {
		t.Errorf("got %+v", c)
	}
	opts, err := c.Options(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	n, err := ipc.New(opts...)
	if err != nil {
		t.Fatal(err)
	}
	if n.ID() != "server" || n.Codec().Name() != "msgpack" {
		t.Errorf("node %v uses %v", n.ID(), n.Codec().Name())
	}
	dir, err := c.Directory()
	if err != nil || dir != nil {
		t.Errorf("no directory expected, got (%v, %v)", dir, err)
	}
}

func TestValidate(t *testing.T) {
	for _, c := range []NodeConfig{
		{NodeID: "a b", Servers: []string{"x"}, TimeoutSeconds: 1},
		{Servers: nil, TimeoutSeconds: 1},
		{Servers: []string{"x"}, TimeoutSeconds: 0},
		{Servers: []string{"x"}, TimeoutSeconds: 1, Transport: "udp"},
		{Servers: []string{"x"}, TimeoutSeconds: 1, Codec: "xml"},
		{Servers: []string{"x"}, TimeoutSeconds: 1, StatsFilePath: "s.bin"},
	} {
		if err := c.Validate(); err == nil {
			t.Errorf("Validate(%+v) should fail", c)
		}
	}
}
