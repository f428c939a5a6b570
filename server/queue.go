// Package server carries protocol requests from the transports to the host
// loop and writes the replies back.
package server

import (
	"context"

	"github.com/w1xm/derot/wire"
)

// Responder answers a request with the encoded reply.
type Responder interface {
	Respond(rq *wire.RequestPacket) []byte
}

type pending struct {
	rq    wire.RequestPacket
	reply chan []byte
}

// Queue hands requests from transport goroutines to the single goroutine
// that owns the controller.
type Queue struct {
	Name string
	ch   chan pending
}

func NewQueue(name string) *Queue {
	return &Queue{Name: name, ch: make(chan pending)}
}

// Submit blocks until rq has been answered or ctx is done.
func (q *Queue) Submit(ctx context.Context, rq *wire.RequestPacket) ([]byte, error) {
	p := pending{rq: *rq, reply: make(chan []byte, 1)}
	select {
	case q.ch <- p:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case b := <-p.reply:
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ServeOne answers at most one waiting request. It never blocks.
func (q *Queue) ServeOne(r Responder) bool {
	select {
	case p := <-q.ch:
		p.reply <- r.Respond(&p.rq)
		return true
	default:
		return false
	}
}
