package ipc

import (
	"testing"

	"github.com/pkg/errors"
)

func TestRouter(t *testing.T) {
	r := DefaultRouter
	if err := r.Validate(); err != nil {
		t.Fatalf("default router: %v", err)
	}
	subject, err := r.RPCSubject("server", "add")
	if err != nil || subject != "ipc.server.add" {
		t.Errorf("RPCSubject: got (%q, %v)", subject, err)
	}
	subject, err = r.BroadcastSubject("x")
	if err != nil || subject != "broadcast.x" {
		t.Errorf("BroadcastSubject: got (%q, %v)", subject, err)
	}

	node, method, ok := r.ParseRPCSubject("ipc.server.add")
	if !ok || node != "server" || method != "add" {
		t.Errorf("ParseRPCSubject: got (%q, %q, %v)", node, method, ok)
	}
	for _, s := range []string{"broadcast.x", "ipc.server", "ipc.server.a.b", "ipc..add", "ipcx.server.add"} {
		if _, _, ok := r.ParseRPCSubject(s); ok {
			t.Errorf("ParseRPCSubject(%q) should fail", s)
		}
	}
}

func TestRouterRejects(t *testing.T) {
	var ire *InvalidRequestError
	for _, r := range []Router{
		{RPCPrefix: "", BroadcastPrefix: "b"},
		{RPCPrefix: "a", BroadcastPrefix: "a"},
		{RPCPrefix: "a.b", BroadcastPrefix: "a"},
		{RPCPrefix: "a", BroadcastPrefix: "a.*"},
		{RPCPrefix: "a b", BroadcastPrefix: "c"},
	} {
		if err := r.Validate(); !errors.As(err, &ire) {
			t.Errorf("Validate(%+v): got %v, want an InvalidRequestError", r, err)
		}
	}
	custom := Router{RPCPrefix: "app.rpc", BroadcastPrefix: "app.events"}
	if err := custom.Validate(); err != nil {
		t.Errorf("Validate(%+v): %v", custom, err)
	}

	for _, test := range []struct{ node, method string }{
		{"server", "a.b"},
		{"server", ""},
		{"server", "*"},
		{"ser.ver", "add"},
		{"", "add"},
	} {
		if _, err := DefaultRouter.RPCSubject(test.node, test.method); !errors.As(err, &ire) {
			t.Errorf("RPCSubject(%q, %q): got %v, want an InvalidRequestError", test.node, test.method, err)
		}
	}
	if _, err := DefaultRouter.BroadcastSubject("a>"); !errors.As(err, &ire) {
		t.Errorf("BroadcastSubject(a>): got %v, want an InvalidRequestError", err)
	}
}
