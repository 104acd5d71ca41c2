package agents

import (
	"io"
	"log"
	"testing"

	"reliefnet/internal/protocol"
	"reliefnet/internal/simgraph"
)

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

// captureSender records every envelope an agent sends.
type captureSender struct {
	sent []protocol.Envelope
}

func (c *captureSender) Send(from, to, msgType string, payload any) error {
	env, err := protocol.Encode(from, to, msgType, payload)
	if err != nil {
		return err
	}
	c.sent = append(c.sent, env)
	return nil
}

func (c *captureSender) ofType(msgType string) []protocol.Envelope {
	var out []protocol.Envelope
	for _, env := range c.sent {
		if env.Type == msgType {
			out = append(out, env)
		}
	}
	return out
}

func (c *captureSender) reset() { c.sent = nil }

// pump is a synchronous in-memory transport for multi-agent tests: sends
// queue up and Pump drains them in FIFO order, delivering each envelope to
// the attached handler. Messages produced while handling are appended to
// the same queue, so causality is preserved and runs are deterministic.
type pump struct {
	t        *testing.T
	handlers map[string]Handler
	queue    []protocol.Envelope
}

func newPump(t *testing.T) *pump {
	return &pump{t: t, handlers: map[string]Handler{}}
}

func (p *pump) Attach(jid string, h Handler) { p.handlers[jid] = h }

func (p *pump) Send(from, to, msgType string, payload any) error {
	env, err := protocol.Encode(from, to, msgType, payload)
	if err != nil {
		return err
	}
	p.queue = append(p.queue, env)
	return nil
}

func (p *pump) Pump() {
	for len(p.queue) > 0 {
		env := p.queue[0]
		p.queue = p.queue[1:]
		if h, ok := p.handlers[env.To]; ok {
			h.HandleMessage(env)
		}
	}
}

func testMap() *simgraph.Map {
	return simgraph.BuildMap(
		map[string]simgraph.Point{"depot": {}, "junction": {}, "camp": {}},
		[]simgraph.Road{
			{From: "depot", To: "junction", BaseTime: 2, Bidirectional: true},
			{From: "junction", To: "camp", BaseTime: 3, Bidirectional: true},
			{From: "depot", To: "camp", BaseTime: 10, Bidirectional: true},
		},
	)
}

func decodeAs[T any](t *testing.T, env protocol.Envelope) T {
	t.Helper()
	var msg T
	if err := env.Decode(&msg); err != nil {
		t.Fatalf("decode %s: %v", env.Type, err)
	}
	return msg
}
