package ipc

import (
	"github.com/PwzXxm/ipc-lite/rpccore"
	"github.com/sasha-s/go-deadlock"
)

// subscriptions tracks every transport subscription of a node: at most one
// per registered method and one per Subscribe call.
type subscriptions struct {
	lock       deadlock.Mutex
	methods    map[string]rpccore.Subscription
	broadcasts []broadcastSub
}

type broadcastSub struct {
	channel string
	sub     rpccore.Subscription
}

func newSubscriptions() *subscriptions {
	return &subscriptions{methods: make(map[string]rpccore.Subscription)}
}

func (s *subscriptions) hasMethod(name string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	_, ok := s.methods[name]
	return ok
}

func (s *subscriptions) addMethod(name string, sub rpccore.Subscription) {
	s.lock.Lock()
	s.methods[name] = sub
	s.lock.Unlock()
}

func (s *subscriptions) removeMethod(name string) rpccore.Subscription {
	s.lock.Lock()
	defer s.lock.Unlock()
	sub := s.methods[name]
	delete(s.methods, name)
	return sub
}

func (s *subscriptions) addBroadcast(channel string, sub rpccore.Subscription) {
	s.lock.Lock()
	s.broadcasts = append(s.broadcasts, broadcastSub{channel: channel, sub: sub})
	s.lock.Unlock()
}

// channels counts the broadcast subscriptions per channel.
func (s *subscriptions) channels() map[string]int {
	s.lock.Lock()
	defer s.lock.Unlock()
	rst := make(map[string]int)
	for _, b := range s.broadcasts {
		rst[b.channel]++
	}
	return rst
}

func (s *subscriptions) count() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.methods) + len(s.broadcasts)
}

// drain forgets every subscription and returns them for unsubscribing.
func (s *subscriptions) drain() []rpccore.Subscription {
	s.lock.Lock()
	defer s.lock.Unlock()
	rst := make([]rpccore.Subscription, 0, len(s.methods)+len(s.broadcasts))
	for _, sub := range s.methods {
		rst = append(rst, sub)
	}
	for _, b := range s.broadcasts {
		rst = append(rst, b.sub)
	}
	s.methods = make(map[string]rpccore.Subscription)
	s.broadcasts = nil
	return rst
}
