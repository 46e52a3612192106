package middleware_test

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PwzXxm/ipc-lite/ipc"
	"github.com/PwzXxm/ipc-lite/middleware"
	"github.com/PwzXxm/ipc-lite/rpccore"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func init() {
	fmt.Println("* middleware test *")
}

func pair(t *testing.T, mws ...ipc.Middleware) (*ipc.Node, *ipc.Node) {
	t.Helper()
	network := rpccore.NewChanNetwork()
	t.Cleanup(network.Shutdown)
	server, err := ipc.New(ipc.WithNodeID("server"), ipc.WithConnector(network.Named("server")),
		ipc.WithMiddleware(mws...))
	if err != nil {
		t.Fatal(err)
	}
	client, err := ipc.New(ipc.WithNodeID("client"), ipc.WithConnector(network.Named("client")))
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range []*ipc.Node{server, client} {
		if err := n.Connect(context.Background()); err != nil {
			t.Fatal(err)
		}
		n := n
		t.Cleanup(func() { _ = n.Disconnect() })
	}
	return server, client
}

func TestLogging(t *testing.T) {
	logger := logrus.New()
	var out strings.Builder
	logger.SetOutput(&out)
	logger.SetLevel(logrus.DebugLevel)

	server, client := pair(t, middleware.Logging(logrus.NewEntry(logger)))
	server.MustRegister("ping", func() string { return "pong" })
	server.MustRegister("fail", func() error { return errors.New("nope") })

	if _, err := client.Call(context.Background(), "server", "ping"); err != nil {
		t.Fatal(err)
	}
	_, _ = client.Call(context.Background(), "server", "fail")
	logs := out.String()
	if !strings.Contains(logs, "method=ping") || !strings.Contains(logs, "ping took") {
		t.Errorf("missing ping entry in:\n%s", logs)
	}
	if !strings.Contains(logs, "fail failed: nope") {
		t.Errorf("missing failure entry in:\n%s", logs)
	}
}

func TestTimeout(t *testing.T) {
	server, client := pair(t, middleware.Timeout(100*time.Millisecond))
	server.MustRegister("slow", func() string {
		time.Sleep(300 * time.Millisecond)
		return "done"
	})
	server.MustRegister("fast", func() int { return 1 })

	start := time.Now()
	_, err := client.Call(context.Background(), "server", "slow")
	var re *ipc.RemoteError
	if !errors.As(err, &re) || !strings.Contains(re.Message, "timed out") {
		t.Errorf("slow: got %v, want a RemoteError about the timeout", err)
	}
	if time.Since(start) > 250*time.Millisecond {
		t.Errorf("slow: took %v", time.Since(start))
	}
	res, err := client.Call(context.Background(), "server", "fast")
	if err != nil || res != 1 {
		t.Errorf("fast: got (%v, %v)", res, err)
	}
}

func TestRateLimit(t *testing.T) {
	server, client := pair(t, middleware.RateLimit(1, 2))
	server.MustRegister("ping", func() string { return "pong" })

	var ok, limited int
	for i := 0; i < 5; i++ {
		_, err := client.Call(context.Background(), "server", "ping")
		var re *ipc.RemoteError
		switch {
		case err == nil:
			ok++
		case errors.As(err, &re) && strings.Contains(re.Message, "rate limit"):
			limited++
		default:
			t.Fatalf("ping: unexpected error %v", err)
		}
	}
	if ok < 2 || ok > 3 || ok+limited != 5 {
		t.Errorf("got %d admitted and %d limited calls", ok, limited)
	}
}

func TestRetry(t *testing.T) {
	policy := middleware.RetryPolicy{MaxRetries: 3, Delay: time.Millisecond, Backoff: 2}
	transient := &ipc.TimeoutError{Target: "t", Method: "m", Timeout: time.Second}

	tests := []struct {
		name     string
		failures int
		err      error
		calls    int32
		wantErr  bool
	}{
		{"success", 0, nil, 1, false},
		{"recovers", 2, transient, 3, false},
		{"gives up", 10, transient, 4, true},
		{"permanent", 10, &ipc.RemoteError{Message: "bad"}, 1, true},
		{"connection", 1, &ipc.ConnectionError{Err: ipc.ErrNotConnected}, 2, false},
	}
	for _, test := range tests {
		var calls int32
		call := func(ctx context.Context, target, method string, opts ...ipc.CallOption) (interface{}, error) {
			n := atomic.AddInt32(&calls, 1)
			if int(n) <= test.failures {
				return nil, errors.WithStack(test.err)
			}
			return "ok", nil
		}
		res, err := middleware.Retry(policy)(call)(context.Background(), "t", "m")
		if (err != nil) != test.wantErr {
			t.Errorf("%v: got (%v, %v)", test.name, res, err)
		}
		if calls != test.calls {
			t.Errorf("%v: %d calls, want %d", test.name, calls, test.calls)
		}
	}
}

func TestRetryStopsWithContext(t *testing.T) {
	policy := middleware.RetryPolicy{MaxRetries: 5, Delay: time.Hour}
	call := func(ctx context.Context, target, method string, opts ...ipc.CallOption) (interface{}, error) {
		return nil, &ipc.TimeoutError{Target: target, Method: method}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := middleware.Retry(policy)(call)(ctx, "t", "m")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestRetryOnNode(t *testing.T) {
	_, client := pair(t)
	call := middleware.Retry(middleware.RetryPolicy{MaxRetries: 1, Delay: time.Millisecond})(client.CallWith)
	_, err := call(context.Background(), "server", "missing")
	var mnf *ipc.MethodNotFoundError
	if !errors.As(err, &mnf) {
		t.Errorf("got %v, want a MethodNotFoundError", err)
	}
}
