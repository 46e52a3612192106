// Package gateway exposes a node over HTTP JSON-RPC 2.0, so that tools
// without a transport client can call methods and broadcast.
//
//	POST /rpc {"jsonrpc":"2.0","method":"IPC.Call","params":[{"target":"server","method":"add","args":[2,3]}],"id":1}
package gateway

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/PwzXxm/ipc-lite/directory"
	"github.com/PwzXxm/ipc-lite/ipc"
	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Path is where the gateway serves requests.
const Path = "/rpc"

// Error codes of failed calls, in the JSON-RPC server error range.
const (
	CodeConnection     json2.ErrorCode = -32001
	CodeTimeout        json2.ErrorCode = -32002
	CodeRemote         json2.ErrorCode = -32003
	CodeSerialization  json2.ErrorCode = -32004
	CodeMethodNotFound json2.ErrorCode = -32005
	CodeInvalidRequest json2.ErrorCode = -32006
)

// Service is the "IPC" JSON-RPC service.
type Service struct {
	node      *ipc.Node
	directory directory.Directory
	logger    *logrus.Entry
}

type CallArgs struct {
	Target    string                 `json:"target"`
	Method    string                 `json:"method"`
	Args      []interface{}          `json:"args"`
	Kwargs    map[string]interface{} `json:"kwargs"`
	TimeoutMs int64                  `json:"timeoutMs"`
}

type CallReply struct {
	Result interface{} `json:"result"`
}

type BroadcastArgs struct {
	Channel string      `json:"channel"`
	Payload interface{} `json:"payload"`
}

type BroadcastReply struct {
	Channel string `json:"channel"`
}

type InfoArgs struct{}

type InfoReply struct {
	Info    map[string]string `json:"info"`
	Methods []string          `json:"methods"`
}

type NodesArgs struct{}

type NodesReply struct {
	Nodes []directory.Entry `json:"nodes"`
}

// Call calls a method through the node.
func (s *Service) Call(r *http.Request, args *CallArgs, reply *CallReply) error {
	opts := []ipc.CallOption{ipc.Args(args.Args...), ipc.KwargsOf(args.Kwargs)}
	if args.TimeoutMs > 0 {
		opts = append(opts, ipc.Timeout(time.Duration(args.TimeoutMs)*time.Millisecond))
	}
	res, err := s.node.CallWith(r.Context(), args.Target, args.Method, opts...)
	if err != nil {
		s.logger.Debugf("Gateway call to %v.%v failed: %v", args.Target, args.Method, err)
		return toJSONError(err)
	}
	reply.Result = res
	return nil
}

// Broadcast publishes the payload on a channel.
func (s *Service) Broadcast(r *http.Request, args *BroadcastArgs, reply *BroadcastReply) error {
	if err := s.node.Broadcast(args.Channel, args.Payload); err != nil {
		return toJSONError(err)
	}
	reply.Channel = args.Channel
	return nil
}

// Info describes the gateway's own node.
func (s *Service) Info(r *http.Request, args *InfoArgs, reply *InfoReply) error {
	reply.Info = s.node.Info()
	reply.Methods = s.node.Methods()
	return nil
}

// Nodes lists the directory, empty without one.
func (s *Service) Nodes(r *http.Request, args *NodesArgs, reply *NodesReply) error {
	reply.Nodes = []directory.Entry{}
	if s.directory == nil {
		return nil
	}
	entries, err := s.directory.List(r.Context())
	if err != nil {
		return &json2.Error{Code: json2.E_SERVER, Message: err.Error()}
	}
	reply.Nodes = entries
	return nil
}

func toJSONError(err error) *json2.Error {
	var (
		ce  *ipc.ConnectionError
		te  *ipc.TimeoutError
		re  *ipc.RemoteError
		se  *ipc.SerializationError
		mnf *ipc.MethodNotFoundError
		ire *ipc.InvalidRequestError
	)
	code := json2.E_SERVER
	switch {
	case errors.As(err, &ce):
		code = CodeConnection
	case errors.As(err, &te):
		code = CodeTimeout
	case errors.As(err, &re):
		code = CodeRemote
	case errors.As(err, &se):
		code = CodeSerialization
	case errors.As(err, &mnf):
		code = CodeMethodNotFound
	case errors.As(err, &ire):
		code = CodeInvalidRequest
	}
	return &json2.Error{Code: code, Message: err.Error()}
}

// NewHandler returns the JSON-RPC handler of node. dir may be nil.
func NewHandler(node *ipc.Node, dir directory.Directory) (http.Handler, error) {
	server := rpc.NewServer()
	server.RegisterCodec(json2.NewCodec(), "application/json")
	svc := &Service{node: node, directory: dir, logger: node.Logger()}
	if err := server.RegisterService(svc, "IPC"); err != nil {
		return nil, errors.Wrap(err, "cannot register the IPC service")
	}
	mux := http.NewServeMux()
	mux.Handle(Path, server)
	return mux, nil
}

// Gateway serves NewHandler on a TCP address.
type Gateway struct {
	server   *http.Server
	listener net.Listener
	logger   *logrus.Entry
}

// Start listens on addr and serves in the background.
func Start(addr string, node *ipc.Node, dir directory.Directory) (*Gateway, error) {
	handler, err := NewHandler(node, dir)
	if err != nil {
		return nil, err
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot listen on %v", addr)
	}
	g := &Gateway{
		server:   &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second},
		listener: l,
		logger:   node.Logger().WithField("gateway", l.Addr().String()),
	}
	go func() {
		if err := g.server.Serve(l); err != nil && err != http.ErrServerClosed {
			g.logger.Errorf("Gateway stopped: %v", err)
		}
	}()
	g.logger.Infof("Gateway listening on http://%v%v", l.Addr(), Path)
	return g, nil
}

// Addr is the address the gateway listens on.
func (g *Gateway) Addr() string {
	return g.listener.Addr().String()
}

// Stop waits up to timeout for requests in flight.
func (g *Gateway) Stop(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return g.server.Shutdown(ctx)
}
