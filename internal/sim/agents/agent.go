// Package agents implements the coordination core: the World engine and the
// AidCenter, AidGroup and Vehicle agents. Each agent runs as a single
// goroutine owning all of its state; the only way in or out is a typed
// message or the periodic tick, and the two are serialized by the run loop.
package agents

import (
	"context"
	"log"
	"os"
	"time"

	"reliefnet/internal/protocol"
)

// Sender delivers a typed message to a named endpoint. The in-process bus
// implements it; tests substitute a synchronous pump.
type Sender interface {
	Send(from, to, msgType string, payload any) error
}

// Event is one simulation occurrence for the observer feed and the tick log.
type Event map[string]any

// EventSink receives simulation events. Publish must not block the caller
// for long; sinks buffer or drop on their own.
type EventSink interface {
	Publish(Event)
}

// MultiSink fans one event out to several sinks, skipping nils.
func MultiSink(sinks ...EventSink) EventSink {
	var active []EventSink
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}
	return multiSink(active)
}

type multiSink []EventSink

func (m multiSink) Publish(ev Event) {
	for _, s := range m {
		s.Publish(ev)
	}
}

// Handler is the event surface of one agent. OnStart runs once before the
// loop; HandleMessage and OnTick are never invoked concurrently.
type Handler interface {
	OnStart()
	HandleMessage(env protocol.Envelope)
	OnTick()
	Done() <-chan struct{}
}

// Run drives one agent until it stops itself (shutdown message, or the
// world reaching max ticks) or the context is cancelled.
func Run(ctx context.Context, h Handler, in <-chan protocol.Envelope, tick time.Duration) {
	h.OnStart()
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.Done():
			return
		case env := <-in:
			h.HandleMessage(env)
		case <-ticker.C:
			h.OnTick()
		}
	}
}

func ensureLogger(l *log.Logger, prefix string) *log.Logger {
	if l != nil {
		return l
	}
	return log.New(os.Stdout, prefix, log.LstdFlags|log.Lmicroseconds)
}

func publish(sink EventSink, ev Event) {
	if sink != nil {
		sink.Publish(ev)
	}
}
