package rpc

import (
	"context"

	"github.com/arloliu/go-motor/internal/queue"
)

type pendingRequest struct {
	req   Request
	reply chan Reply
}

// QueueChannel is an in-process request channel. Producers Submit requests
// from any goroutine; the consumer handles them with Drain. It is safe for
// concurrent use.
type QueueChannel struct {
	q queue.Queue[pendingRequest]
}

// NewQueueChannel creates an empty request channel.
func NewQueueChannel() *QueueChannel {
	return &QueueChannel{q: queue.NewLockFreeQueue[pendingRequest]()}
}

// Submit enqueues req. The returned channel receives exactly one reply once
// the request was handled.
func (c *QueueChannel) Submit(req Request) <-chan Reply {
	ch := make(chan Reply, 1)
	c.q.Enqueue(pendingRequest{req: req, reply: ch})

	return ch
}

// Call submits req and waits for its reply or for ctx to be done.
func (c *QueueChannel) Call(ctx context.Context, req Request) (Reply, error) {
	select {
	case reply := <-c.Submit(req):
		return reply, nil
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

// Drain handles every queued request in arrival order and returns how many
// were handled. It never waits for new requests.
func (c *QueueChannel) Drain(handle func(Request) Reply) int {
	n := 0
	for {
		p, ok := c.q.Dequeue()
		if !ok {
			return n
		}

		reply := handle(p.req)
		reply.ID = p.req.ID
		p.reply <- reply
		n++
	}
}

// Len returns the number of queued requests.
func (c *QueueChannel) Len() int { return c.q.Length() }
