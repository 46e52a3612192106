package rpccore

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
)

// TestNATS runs against a real server when IPC_TEST_NATS_URL is set.
func TestNATS(t *testing.T) {
	url := os.Getenv("IPC_TEST_NATS_URL")
	if url == "" {
		t.Skip("IPC_TEST_NATS_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	connector := &NATSConnector{Name: "rpccore_test"}
	conn, err := connector.Connect(ctx, strings.Split(url, ","))
	checkNoError(t, err)
	defer func() { _ = conn.Close() }()

	sub, err := conn.Subscribe("ipc.natstest.upper", func(msg *Msg) {
		_ = msg.Respond([]byte(strings.ToUpper(string(msg.Data))))
	})
	checkNoError(t, err)

	res, err := conn.Request(ctx, "ipc.natstest.upper", []byte("abc"))
	checkNoError(t, err)
	if string(res) != "ABC" {
		t.Errorf("got %q, want %q", res, "ABC")
	}

	checkNoError(t, sub.Unsubscribe())
	_, err = conn.Request(ctx, "ipc.natstest.upper", []byte("abc"))
	if !errors.Is(err, ErrNoResponders) {
		t.Errorf("after unsubscribe: got %v, want %v", err, ErrNoResponders)
	}
}

func TestNATSUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	connector := &NATSConnector{Name: "rpccore_test"}
	_, err := connector.Connect(ctx, []string{"nats://127.0.0.1:1"})
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("got %v, want %v", err, ErrUnreachable)
	}
}
