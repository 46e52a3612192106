package ipc

import (
	"sort"

	"github.com/sasha-s/go-deadlock"
)

// registry maps method names to handlers. Writers replace the whole map,
// readers only hold the lock long enough to grab the current one, so a
// lookup never waits for a handler to finish.
type registry struct {
	lock     deadlock.RWMutex
	handlers map[string]Handler
}

func newRegistry() *registry {
	return &registry{handlers: make(map[string]Handler)}
}

func (r *registry) snapshot() map[string]Handler {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.handlers
}

func (r *registry) get(name string) (Handler, bool) {
	h, ok := r.snapshot()[name]
	return h, ok
}

// set upserts name and reports whether an older handler was replaced.
func (r *registry) set(name string, h Handler) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	next := make(map[string]Handler, len(r.handlers)+1)
	for k, v := range r.handlers {
		next[k] = v
	}
	_, replaced := next[name]
	next[name] = h
	r.handlers = next
	return replaced
}

func (r *registry) remove(name string) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.handlers[name]; !ok {
		return false
	}
	next := make(map[string]Handler, len(r.handlers))
	for k, v := range r.handlers {
		if k != name {
			next[k] = v
		}
	}
	r.handlers = next
	return true
}

func (r *registry) names() []string {
	handlers := r.snapshot()
	rst := make([]string, 0, len(handlers))
	for name := range handlers {
		rst = append(rst, name)
	}
	sort.Strings(rst)
	return rst
}
