// Package bus is the in-process message transport between agents. It stands
// in for the external messaging substrate: reliable, ordered delivery of
// opaque typed envelopes between named endpoints, with sends that never
// block the sender on the receiver.
package bus

import (
	"fmt"
	"sync"

	"reliefnet/internal/protocol"
)

// Bus routes envelopes between registered endpoints. Every endpoint drains
// its inbound queue in arrival order, which gives FIFO delivery per sender
// pair (and in fact per receiver).
type Bus struct {
	mu        sync.Mutex
	closed    bool
	endpoints map[string]*Endpoint
}

func New() *Bus {
	return &Bus{endpoints: make(map[string]*Endpoint)}
}

// Endpoint registers (or returns) the mailbox for a named agent.
func (b *Bus) Endpoint(name string) *Endpoint {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ep, ok := b.endpoints[name]; ok {
		return ep
	}
	ep := &Endpoint{
		name: name,
		out:  make(chan protocol.Envelope),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go ep.pump()
	b.endpoints[name] = ep
	return ep
}

// Send encodes payload and queues it for the destination endpoint. It never
// blocks on the receiver; delivery is asynchronous. Sending to an unknown
// endpoint is an error the caller may log and ignore.
func (b *Bus) Send(from, to, msgType string, payload any) error {
	env, err := protocol.Encode(from, to, msgType, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msgType, err)
	}
	b.mu.Lock()
	ep, ok := b.endpoints[to]
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return fmt.Errorf("bus closed")
	}
	if !ok {
		return fmt.Errorf("unknown endpoint: %s", to)
	}
	ep.enqueue(env)
	return nil
}

// Close shuts down every endpoint pump. Queued but undelivered envelopes
// are dropped; by this point all agents have stopped reading anyway.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ep := range b.endpoints {
		close(ep.done)
	}
}

// Endpoint is a named mailbox. The queue is unbounded so a burst of traffic
// (e.g. the world broadcasting to the whole fleet) never stalls the sender.
type Endpoint struct {
	name string

	mu    sync.Mutex
	queue []protocol.Envelope

	wake chan struct{}
	out  chan protocol.Envelope
	done chan struct{}
}

// Receive is the endpoint's delivery channel, drained by the agent loop.
func (e *Endpoint) Receive() <-chan protocol.Envelope { return e.out }

func (e *Endpoint) enqueue(env protocol.Envelope) {
	e.mu.Lock()
	e.queue = append(e.queue, env)
	e.mu.Unlock()
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Endpoint) pump() {
	for {
		e.mu.Lock()
		var next protocol.Envelope
		have := len(e.queue) > 0
		if have {
			next = e.queue[0]
			e.queue = e.queue[1:]
		}
		e.mu.Unlock()

		if !have {
			select {
			case <-e.done:
				return
			case <-e.wake:
			}
			continue
		}
		select {
		case <-e.done:
			return
		case e.out <- next:
		}
	}
}
