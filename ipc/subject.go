package ipc

import (
	"strings"

	"github.com/PwzXxm/ipc-lite/rpccore"
	"github.com/PwzXxm/ipc-lite/utils"
)

const (
	DefaultRPCPrefix       = "ipc"
	DefaultBroadcastPrefix = "broadcast"
)

// Router maps node methods and broadcast channels to transport subjects:
//
//	<RPCPrefix>.<nodeID>.<method>
//	<BroadcastPrefix>.<channel>
type Router struct {
	RPCPrefix       string
	BroadcastPrefix string
}

// DefaultRouter is interoperable with every other node using the defaults.
var DefaultRouter = Router{RPCPrefix: DefaultRPCPrefix, BroadcastPrefix: DefaultBroadcastPrefix}

// Validate checks that both prefixes are valid subjects and that no RPC
// subject can ever equal a broadcast subject.
func (r Router) Validate() error {
	for _, p := range []string{r.RPCPrefix, r.BroadcastPrefix} {
		if err := rpccore.ValidateSubject(p, false); err != nil {
			return invalidRequestf("invalid subject prefix %q: %v", p, err)
		}
	}
	rpc := strings.Split(r.RPCPrefix, rpccore.TokenSeparator)
	bc := strings.Split(r.BroadcastPrefix, rpccore.TokenSeparator)
	if tokensPrefix(rpc, bc) || tokensPrefix(bc, rpc) {
		return invalidRequestf("subject prefixes %q and %q collide", r.RPCPrefix, r.BroadcastPrefix)
	}
	return nil
}

// tokensPrefix reports whether a is a prefix of b, token wise.
func tokensPrefix(a, b []string) bool {
	if len(a) > len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// RPCSubject returns the subject of method on node.
func (r Router) RPCSubject(node, method string) (string, error) {
	if !utils.ValidNodeID(node) {
		return "", invalidRequestf("invalid node id %q", node)
	}
	if err := ValidateName("method", method); err != nil {
		return "", err
	}
	return r.RPCPrefix + rpccore.TokenSeparator + node + rpccore.TokenSeparator + method, nil
}

// BroadcastSubject returns the subject of channel.
func (r Router) BroadcastSubject(channel string) (string, error) {
	if err := ValidateName("channel", channel); err != nil {
		return "", err
	}
	return r.BroadcastPrefix + rpccore.TokenSeparator + channel, nil
}

// ParseRPCSubject splits an RPC subject into node id and method.
func (r Router) ParseRPCSubject(subject string) (node, method string, ok bool) {
	prefix := r.RPCPrefix + rpccore.TokenSeparator
	if !strings.HasPrefix(subject, prefix) {
		return "", "", false
	}
	parts := strings.Split(strings.TrimPrefix(subject, prefix), rpccore.TokenSeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// ValidateName rejects method and channel names that would make routing
// ambiguous: empty, containing the delimiter, a wildcard or whitespace.
func ValidateName(kind, name string) error {
	switch {
	case name == "":
		return invalidRequestf("%v name cannot be empty", kind)
	case strings.Contains(name, rpccore.TokenSeparator):
		return invalidRequestf("%v name %q cannot contain %q", kind, name, rpccore.TokenSeparator)
	case strings.Contains(name, rpccore.WildcardOne), strings.Contains(name, rpccore.WildcardTail):
		return invalidRequestf("%v name %q cannot contain a wildcard", kind, name)
	case strings.IndexFunc(name, isSpace) >= 0:
		return invalidRequestf("%v name %q cannot contain whitespace", kind, name)
	}
	return nil
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f'
}
