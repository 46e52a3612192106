package ipc

import (
	"context"
	"testing"
	"time"

	"github.com/PwzXxm/ipc-lite/codec"
	"github.com/PwzXxm/ipc-lite/envelope"
	"github.com/PwzXxm/ipc-lite/rpccore"
)

func connectedNode(t *testing.T, network *rpccore.ChanNetwork, id string) *Node {
	t.Helper()
	n, err := New(WithNodeID(id), WithConnector(network.Named(id)))
	if err != nil {
		t.Fatal(err)
	}
	if err := n.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = n.Disconnect() })
	return n
}

func decodeReply(t *testing.T, data []byte) envelope.Response {
	t.Helper()
	var v interface{}
	if err := codec.Gob.Decode(data, &v); err != nil {
		t.Fatalf("reply is not decodable: %v", err)
	}
	res, err := envelope.ResponseFromWire(v)
	if err != nil {
		t.Fatalf("reply is not an envelope: %v", err)
	}
	return res
}

func TestMalformedRequests(t *testing.T) {
	network := rpccore.NewChanNetwork()
	defer network.Shutdown()
	server := connectedNode(t, network, "server")
	client := connectedNode(t, network, "client")
	server.MustRegister("add", func(a, b int) int { return a + b })

	raw, err := network.NewConn("raw")
	if err != nil {
		t.Fatal(err)
	}
	notAMap, _ := codec.Gob.Encode("just a string")
	badArgs, _ := codec.Gob.Encode(map[string]interface{}{"args": "x"})

	for _, data := range [][]byte{{0xde, 0xad}, notAMap, badArgs} {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		reply, err := raw.Request(ctx, "ipc.server.add", data)
		cancel()
		if err != nil {
			t.Fatalf("request %x got no reply: %v", data, err)
		}
		res := decodeReply(t, reply)
		if !res.IsError() || res.Error.Kind != envelope.KindInvalidRequest {
			t.Errorf("request %x: got %+v, want an invalid_request error", data, res)
		}
	}

	// the server keeps serving
	sum, err := client.Call(context.Background(), "server", "add", 2, 3)
	if err != nil || sum != 5 {
		t.Errorf("add after malformed requests: got %v, %v", sum, err)
	}
}

func TestMissingMethodReply(t *testing.T) {
	network := rpccore.NewChanNetwork()
	defer network.Shutdown()
	server := connectedNode(t, network, "server")

	data, err := codec.Gob.Encode(envelope.Request{}.ToWire())
	if err != nil {
		t.Fatal(err)
	}
	replies := make(chan []byte, 1)
	msg := rpccore.NewMsg("ipc.server.missing", data, func(b []byte) error {
		replies <- b
		return nil
	})
	server.handleRequest(server.session(), msg)

	select {
	case reply := <-replies:
		res := decodeReply(t, reply)
		want := "Method 'missing' not found on node server"
		if !res.IsError() || res.Error.Kind != envelope.KindMethodNotFound || res.Error.Message != want {
			t.Errorf("got %+v, want a method_not_found error %q", res.Error, want)
		}
	case <-time.After(time.Second):
		t.Fatal("no reply for a missing method")
	}
}
