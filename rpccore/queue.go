package rpccore

import "sync"

// msgQueue hands queued messages to its callback one at a time on its own
// goroutine, so a slow callback never blocks whoever pushes.
type msgQueue struct {
	cb MsgHandler

	lock   sync.Mutex
	queue  []*Msg
	closed bool
	notify chan struct{}
}

func newMsgQueue(cb MsgHandler) *msgQueue {
	return &msgQueue{cb: cb, notify: make(chan struct{}, 1)}
}

func (q *msgQueue) push(msg *Msg) {
	q.lock.Lock()
	if q.closed {
		q.lock.Unlock()
		return
	}
	q.queue = append(q.queue, msg)
	q.lock.Unlock()
	q.wake()
}

// close drops pending messages. A callback already running is not waited
// for, it may be the one closing the queue.
func (q *msgQueue) close() {
	q.lock.Lock()
	q.closed = true
	q.queue = nil
	q.lock.Unlock()
	q.wake()
}

func (q *msgQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *msgQueue) loop() {
	for {
		q.lock.Lock()
		if q.closed {
			q.lock.Unlock()
			return
		}
		if len(q.queue) == 0 {
			q.lock.Unlock()
			<-q.notify
			continue
		}
		msg := q.queue[0]
		q.queue[0] = nil
		q.queue = q.queue[1:]
		q.lock.Unlock()
		q.cb(msg)
	}
}
