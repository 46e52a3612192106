package rpccore

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
)

const testBrokerAddr = "127.0.0.1:24681"

func TestTCPBroker(t *testing.T) {
	broker := NewTCPBroker(testBrokerAddr, nil, nil)
	if err := broker.Start(); err != nil {
		t.Fatalf("Unable to start broker: %+v", err)
	}
	defer broker.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	connector := &TCPConnector{Name: "remote"}
	remote, err := connector.Connect(ctx, []string{"tcp://" + testBrokerAddr})
	if err != nil {
		t.Fatalf("Unable to connect: %+v", err)
	}
	defer remote.Close()

	// a local conn on the broker's network talks to the remote one
	local, err := broker.Network().NewConn("local")
	checkNoError(t, err)

	_, err = remote.Subscribe("ipc.remote.echo", func(msg *Msg) {
		_ = msg.Respond(append([]byte("echo:"), msg.Data...))
	})
	checkNoError(t, err)

	res, err := local.Request(ctx, "ipc.remote.echo", []byte("hi"))
	checkNoError(t, err)
	if string(res) != "echo:hi" {
		t.Errorf("got %q; want %q", res, "echo:hi")
	}

	// and the other way around
	_, err = local.Subscribe("ipc.local.echo", func(msg *Msg) { _ = msg.Respond(msg.Data) })
	checkNoError(t, err)
	res, err = remote.Request(ctx, "ipc.local.echo", []byte("yo"))
	checkNoError(t, err)
	if string(res) != "yo" {
		t.Errorf("got %q; want %q", res, "yo")
	}

	got := make(chan string, 1)
	_, err = remote.Subscribe("broadcast.news", func(msg *Msg) { got <- string(msg.Data) })
	checkNoError(t, err)
	checkNoError(t, local.Publish("broadcast.news", []byte("hello")))
	select {
	case s := <-got:
		if s != "hello" {
			t.Errorf("got %q; want %q", s, "hello")
		}
	case <-time.After(3 * time.Second):
		t.Error("broadcast was not delivered over tcp")
	}

	_, err = remote.Request(ctx, "ipc.nobody.echo", nil)
	if !errors.Is(err, ErrNoResponders) {
		t.Errorf("got %v; want %v", err, ErrNoResponders)
	}
}

func TestTCPConnectorUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	connector := &TCPConnector{Name: "lonely"}
	_, err := connector.Connect(ctx, []string{"tcp://127.0.0.1:24689"})
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("got %v; want %v", err, ErrUnreachable)
	}
}
