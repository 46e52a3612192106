package gateway_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/PwzXxm/ipc-lite/directory"
	"github.com/PwzXxm/ipc-lite/gateway"
	"github.com/PwzXxm/ipc-lite/ipc"
	"github.com/PwzXxm/ipc-lite/rpccore"
	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/rpc/v2/json2"
	"github.com/pkg/errors"
)

func init() {
	fmt.Println("* gateway test *")
}

func post(t *testing.T, url, method string, args, reply interface{}) error {
	t.Helper()
	body, err := json2.EncodeClientRequest(method, args)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url+gateway.Path, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	return json2.DecodeClientResponse(resp.Body, reply)
}

func TestGateway(t *testing.T) {
	network := rpccore.NewChanNetwork()
	defer network.Shutdown()
	dir := directory.NewMemory()

	server, _ := ipc.New(ipc.WithNodeID("server"), ipc.WithConnector(network.Named("server")),
		ipc.WithDirectory(dir))
	gw, _ := ipc.New(ipc.WithNodeID("gateway"), ipc.WithConnector(network.Named("gateway")))
	server.MustRegister("add", func(a, b int) int { return a + b })
	server.MustRegister("boom", func() error { return errors.New("bad") })
	got := make(chan interface{}, 1)
	for _, n := range []*ipc.Node{server, gw} {
		if err := n.Connect(context.Background()); err != nil {
			t.Fatal(err)
		}
		defer n.Disconnect()
	}
	if err := server.Subscribe("events", func(v interface{}) { got <- v }); err != nil {
		t.Fatal(err)
	}

	handler, err := gateway.NewHandler(gw, dir)
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(handler)
	defer ts.Close()

	var call gateway.CallReply
	if err := post(t, ts.URL, "IPC.Call", &gateway.CallArgs{Target: "server", Method: "add", Args: []interface{}{2, 3}}, &call); err != nil {
		t.Fatalf("IPC.Call: %v", err)
	}
	if call.Result != 5.0 {
		t.Errorf("add(2, 3): got %v", call.Result)
	}

	tests := []struct {
		method string
		code   json2.ErrorCode
	}{
		{"boom", gateway.CodeRemote},
		{"missing", gateway.CodeMethodNotFound},
		{"in.valid", gateway.CodeInvalidRequest},
	}
	for _, test := range tests {
		err := post(t, ts.URL, "IPC.Call", &gateway.CallArgs{Target: "server", Method: test.method}, &call)
		var je *json2.Error
		if !errors.As(err, &je) || je.Code != test.code {
			t.Errorf("%v: got %v, want code %v", test.method, err, test.code)
		}
	}

	var bc gateway.BroadcastReply
	if err := post(t, ts.URL, "IPC.Broadcast", &gateway.BroadcastArgs{Channel: "events", Payload: "hello"}, &bc); err != nil {
		t.Fatalf("IPC.Broadcast: %v", err)
	}
	if v := <-got; v != "hello" {
		t.Errorf("broadcast payload: got %v", v)
	}

	var info gateway.InfoReply
	if err := post(t, ts.URL, "IPC.Info", &gateway.InfoArgs{}, &info); err != nil {
		t.Fatalf("IPC.Info: %v", err)
	}
	if info.Info["id"] != "gateway" {
		t.Errorf("info: %v", info.Info)
	}

	var nodes gateway.NodesReply
	if err := post(t, ts.URL, "IPC.Nodes", &gateway.NodesArgs{}, &nodes); err != nil {
		t.Fatalf("IPC.Nodes: %v", err)
	}
	if len(nodes.Nodes) != 1 {
		t.Fatalf("nodes: %+v", nodes.Nodes)
	}
	if diff := cmp.Diff([]string{"add", "boom"}, nodes.Nodes[0].Methods); diff != "" {
		t.Errorf("methods (-want +got):\n%s", diff)
	}
}

func TestGatewayStart(t *testing.T) {
	network := rpccore.NewChanNetwork()
	defer network.Shutdown()
	node, _ := ipc.New(ipc.WithNodeID("self"), ipc.WithConnector(network.Named("self")))
	node.MustRegister("ping", func() string { return "pong" })
	if err := node.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer node.Disconnect()

	g, err := gateway.Start("127.0.0.1:0", node, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Stop(time.Second)

	var call gateway.CallReply
	if err := post(t, "http://"+g.Addr(), "IPC.Call", &gateway.CallArgs{Target: "self", Method: "ping"}, &call); err != nil {
		t.Fatalf("IPC.Call: %v", err)
	}
	if call.Result != "pong" {
		t.Errorf("ping: got %v", call.Result)
	}
	var nodes gateway.NodesReply
	if err := post(t, "http://"+g.Addr(), "IPC.Nodes", &gateway.NodesArgs{}, &nodes); err != nil || len(nodes.Nodes) != 0 {
		t.Errorf("IPC.Nodes without a directory: got (%v, %v)", nodes.Nodes, err)
	}
}
