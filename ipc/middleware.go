package ipc

import "context"

// Invocation is one handler call on the callee side.
type Invocation struct {
	NodeID  string
	Method  string
	Args    []interface{}
	Kwargs  map[string]interface{}
	Handler Handler
}

// Invoker runs an invocation.
type Invoker func(ctx context.Context, inv *Invocation) (interface{}, error)

// Middleware wraps an Invoker.
type Middleware func(next Invoker) Invoker

// Chain composes middlewares, the first one is the outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Invoker) Invoker {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

func invokeHandler(ctx context.Context, inv *Invocation) (interface{}, error) {
	return inv.Handler.Invoke(ctx, inv.Args, inv.Kwargs)
}

// CallFunc has the signature of Node.CallWith, caller side helpers wrap it.
type CallFunc func(ctx context.Context, target, method string, opts ...CallOption) (interface{}, error)
